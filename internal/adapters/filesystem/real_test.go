package filesystem

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/felixgeelhaar/gpuprep/internal/testutil"
)

func TestRealFileSystem_WriteAndRead(t *testing.T) {
	t.Parallel()

	fs := NewRealFileSystem()
	path := filepath.Join(t.TempDir(), "vllm.pid")

	require.NoError(t, fs.WriteFile(path, []byte("4242\n"), 0o644))
	testutil.AssertFileExists(t, path)

	data, err := fs.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "4242\n", string(data))

	size, err := fs.FileSize(path)
	require.NoError(t, err)
	assert.Equal(t, int64(5), size)

	_, err = fs.FileSize(filepath.Dir(path))
	assert.ErrorContains(t, err, "is a directory")
}

func TestRealFileSystem_WriteFileReplaces(t *testing.T) {
	t.Parallel()

	fs := NewRealFileSystem()
	dir := t.TempDir()
	path := filepath.Join(dir, "pip.conf")

	require.NoError(t, fs.WriteFile(path, []byte("old"), 0o600))
	require.NoError(t, fs.WriteFile(path, []byte("new"), 0o600))

	testutil.AssertFileEquals(t, path, "new")

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1, "no temporary files are left behind")
}

func TestRealFileSystem_WriteFileMissingDir(t *testing.T) {
	t.Parallel()

	err := NewRealFileSystem().WriteFile(filepath.Join(t.TempDir(), "missing", "x"), []byte("x"), 0o644)

	assert.Error(t, err)
}

func TestRealFileSystem_FileHash(t *testing.T) {
	t.Parallel()

	fs := NewRealFileSystem()
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte("hello"), 0o644))

	hash, err := fs.FileHash(path)

	require.NoError(t, err)
	assert.Equal(t, "2cf24dba5fb0a30e26e83b2ac5b9e29e1b161e5c1fa7425e73043362938b9824", hash)

	_, err = fs.FileHash(filepath.Join(t.TempDir(), "absent"))
	assert.True(t, errors.Is(err, os.ErrNotExist))
}

func TestRealFileSystem_Dirs(t *testing.T) {
	t.Parallel()

	fs := NewRealFileSystem()
	dir := filepath.Join(testutil.WriteTempDir(t, t.TempDir(), "models"), "Qwen")

	assert.False(t, fs.Exists(dir))
	require.NoError(t, fs.MkdirAll(dir, 0o755))
	assert.True(t, fs.Exists(dir))
	assert.True(t, fs.IsDir(dir))
	testutil.AssertDirExists(t, dir)

	require.NoError(t, fs.Remove(dir))
	assert.False(t, fs.IsDir(dir))
	testutil.AssertFileNotExists(t, dir)
}
