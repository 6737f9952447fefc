package storage

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/OFFIS-RIT/lexlink/pkg/common"
	"github.com/OFFIS-RIT/lexlink/pkg/extract"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDirLoader_Load(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "cl"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "cl", "1.json"), []byte(`{"a":1}`), 0o644))

	l := NewDirLoader(root)
	m, err := l.Load(context.Background(), common.Record{ID: 1, SourceKey: "cl/1.json"})
	require.NoError(t, err)
	assert.Equal(t, "cl/1.json", m.Key)
	assert.Equal(t, "application/json", m.ContentType)
	assert.Equal(t, `{"a":1}`, string(m.Body))
}

func TestDirLoader_StaysInsideRoot(t *testing.T) {
	parent := t.TempDir()
	root := filepath.Join(parent, "material")
	require.NoError(t, os.MkdirAll(root, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(parent, "secret.json"), []byte(`{}`), 0o644))

	_, err := NewDirLoader(root).Load(context.Background(), common.Record{ID: 1, SourceKey: "../secret.json"})
	assert.ErrorIs(t, err, extract.ErrNoMaterial)
}

func TestDirLoader_Missing(t *testing.T) {
	l := NewDirLoader(t.TempDir())

	_, err := l.Load(context.Background(), common.Record{ID: 1, SourceKey: "cl/9.json"})
	assert.ErrorIs(t, err, extract.ErrNoMaterial)

	_, err = l.Load(context.Background(), common.Record{ID: 2})
	assert.ErrorIs(t, err, extract.ErrNoMaterial)
}
