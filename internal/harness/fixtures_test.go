package harness

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCopyFixtures(t *testing.T) {
	src := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(src, "App", "config"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(src, "ensamble.tw"), []byte("new"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(src, "App", "config", "measures.twm"), []byte("measures"), 0644))

	dst := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dst, "App"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(dst, "ensamble.tw"), []byte("old content"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dst, "App", "keep.txt"), []byte("keep"), 0644))

	copied, err := copyFixtures(src, dst)
	require.NoError(t, err)
	assert.True(t, copied)

	data, err := os.ReadFile(filepath.Join(dst, "ensamble.tw"))
	require.NoError(t, err)
	assert.Equal(t, "new", string(data), "existing files are overwritten")

	data, err = os.ReadFile(filepath.Join(dst, "App", "config", "measures.twm"))
	require.NoError(t, err)
	assert.Equal(t, "measures", string(data))

	assert.FileExists(t, filepath.Join(dst, "App", "keep.txt"), "existing directories are merged")
}

func TestCopyFixtures_MissingSource(t *testing.T) {
	copied, err := copyFixtures(filepath.Join(t.TempDir(), "missing"), t.TempDir())
	require.NoError(t, err)
	assert.False(t, copied)
}

func TestCopyFixtures_SourceIsFile(t *testing.T) {
	src := filepath.Join(t.TempDir(), "file")
	require.NoError(t, os.WriteFile(src, nil, 0644))

	copied, err := copyFixtures(src, t.TempDir())
	require.NoError(t, err)
	assert.False(t, copied)
}
