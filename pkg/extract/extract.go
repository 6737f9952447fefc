// Package extract defines the boundary between raw source material and the
// graph engine. Extractors turn a record's material into unresolved mentions;
// they never touch the store.
package extract

import (
	"context"
	"errors"
	"fmt"

	"github.com/OFFIS-RIT/lexlink/pkg/common"
)

var (
	// ErrNoMaterial is returned by loaders when a record has no stored source.
	ErrNoMaterial = errors.New("no source material")
	// ErrMalformed is returned when material cannot be decoded even after repair.
	ErrMalformed = errors.New("malformed source material")
)

// Material is the raw source a record was parsed from.
type Material struct {
	Key         string
	ContentType string
	Body        []byte
}

// MaterialLoader fetches the raw material of a record.
type MaterialLoader interface {
	Load(ctx context.Context, record common.Record) (Material, error)
}

// Extractor yields the mentions contained in a record's material. The same
// record and material must always yield the same mentions in the same order.
type Extractor interface {
	Extract(ctx context.Context, record common.Record, material Material) ([]common.Mention, error)
}

// Func adapts a function to the Extractor interface.
type Func func(ctx context.Context, record common.Record, material Material) ([]common.Mention, error)

func (f Func) Extract(ctx context.Context, record common.Record, material Material) ([]common.Mention, error) {
	return f(ctx, record, material)
}

// Static returns fixed mentions per record id and ignores the material.
type Static map[int64][]common.Mention

func (s Static) Extract(_ context.Context, record common.Record, _ Material) ([]common.Mention, error) {
	src := s[record.ID]
	if len(src) == 0 {
		return nil, nil
	}
	out := make([]common.Mention, len(src))
	copy(out, src)
	return out, nil
}

// MapLoader serves material from memory, keyed by Record.SourceKey.
type MapLoader map[string][]byte

func (m MapLoader) Load(_ context.Context, record common.Record) (Material, error) {
	body, ok := m[record.SourceKey]
	if !ok || record.SourceKey == "" {
		return Material{}, fmt.Errorf("%w: record %d key %q", ErrNoMaterial, record.ID, record.SourceKey)
	}
	return Material{Key: record.SourceKey, ContentType: "application/json", Body: body}, nil
}

// NopLoader returns empty material for every record. It pairs with
// extractors that do not read material, such as Static.
type NopLoader struct{}

func (NopLoader) Load(_ context.Context, record common.Record) (Material, error) {
	return Material{Key: record.SourceKey}, nil
}

// Mentions loads the material of record and runs ex over it.
func Mentions(ctx context.Context, loader MaterialLoader, ex Extractor, record common.Record) ([]common.Mention, error) {
	material, err := loader.Load(ctx, record)
	if err != nil {
		return nil, fmt.Errorf("load material: %w", err)
	}
	mentions, err := ex.Extract(ctx, record, material)
	if err != nil {
		return nil, fmt.Errorf("extract mentions: %w", err)
	}
	return mentions, nil
}
