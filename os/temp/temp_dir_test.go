package temp

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewTempDirCreatesParents(t *testing.T) {
	parent := filepath.Join(t.TempDir(), "logs", "sub")
	d, err := NewTempDir(parent, ".mprof-")
	require.NoError(t, err)
	assert.Equal(t, parent, filepath.Dir(d.Dir))

	f, err := d.TempFile("mprof.dat-")
	require.NoError(t, err)
	f.Close()
	assert.Equal(t, d.Dir, filepath.Dir(f.Name()))

	require.NoError(t, d.Remove())
	_, err = os.Stat(d.Dir)
	assert.True(t, os.IsNotExist(err))
}

func TestMoveToReplaces(t *testing.T) {
	base := t.TempDir()
	dst := filepath.Join(base, "predictions", "sub")
	require.NoError(t, os.MkdirAll(dst, 0777))
	require.NoError(t, os.WriteFile(filepath.Join(dst, "stale"), []byte("x"), 0666))

	staging, err := NewTempDir(base, ".staging-")
	require.NoError(t, err)
	f, err := staging.TempFile("fresh-")
	require.NoError(t, err)
	f.Close()

	require.NoError(t, staging.MoveTo(dst))
	entries, err := os.ReadDir(dst)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, filepath.Base(f.Name()), entries[0].Name())

	_, err = os.Stat(staging.Dir)
	assert.True(t, os.IsNotExist(err))
}
