package storage

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"mime"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/OFFIS-RIT/lexlink/pkg/common"
	"github.com/OFFIS-RIT/lexlink/pkg/extract"

	"golang.org/x/sync/singleflight"
)

// DirLoader reads source material from a local directory tree, e.g. a
// mirror of the bucket. Concurrent loads of the same file share one read.
type DirLoader struct {
	Root  string
	group singleflight.Group
}

func NewDirLoader(root string) *DirLoader {
	return &DirLoader{Root: root}
}

func (l *DirLoader) Load(ctx context.Context, record common.Record) (extract.Material, error) {
	if record.SourceKey == "" {
		return extract.Material{}, fmt.Errorf("%w: record %d has no source key", extract.ErrNoMaterial, record.ID)
	}
	key := path.Clean("/" + strings.ReplaceAll(record.SourceKey, "\\", "/"))[1:]
	if err := ctx.Err(); err != nil {
		return extract.Material{}, err
	}

	result, err, _ := l.group.Do(key, func() (any, error) {
		body, err := os.ReadFile(filepath.Join(l.Root, filepath.FromSlash(key)))
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", extract.ErrNoMaterial, key)
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read material: %w", err)
		}
		return body, nil
	})
	if err != nil {
		return extract.Material{}, err
	}

	return extract.Material{
		Key:         key,
		ContentType: mime.TypeByExtension(path.Ext(key)),
		Body:        result.([]byte),
	}, nil
}

var _ extract.MaterialLoader = (*DirLoader)(nil)
