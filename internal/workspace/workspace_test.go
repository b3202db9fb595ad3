package workspace

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitialize_CreatesAllDirectories(t *testing.T) {
	storage := filepath.Join(t.TempDir(), DefaultStorageDir)

	require.NoError(t, Initialize(storage))

	for _, dir := range []string{"state", "events", "history/snapshots"} {
		path := filepath.Join(storage, filepath.FromSlash(dir))
		info, err := os.Stat(path)
		require.NoError(t, err, "Directory %s should exist", dir)
		assert.True(t, info.IsDir(), "%s should be a directory", dir)
		assert.Equal(t, os.FileMode(0700), info.Mode().Perm(),
			"Directory %s should have 0700 permissions", dir)
	}
}

func TestInitialize_IdempotentCalls(t *testing.T) {
	storage := t.TempDir()

	require.NoError(t, Initialize(storage))
	assert.NoError(t, Initialize(storage), "Second initialize should be idempotent")
}

func TestInitialize_InvalidPath(t *testing.T) {
	// A regular file where a directory is needed
	file := filepath.Join(t.TempDir(), "file")
	require.NoError(t, os.WriteFile(file, []byte("x"), 0600))

	assert.Error(t, Initialize(filepath.Join(file, "storage")))
}

func TestIsInitialized(t *testing.T) {
	storage := t.TempDir()

	initialized, err := IsInitialized(storage)
	require.NoError(t, err)
	assert.False(t, initialized)

	require.NoError(t, os.Mkdir(filepath.Join(storage, "state"), 0700))
	initialized, err = IsInitialized(storage)
	require.NoError(t, err)
	assert.False(t, initialized, "Should not be considered initialized if missing directories")

	require.NoError(t, Initialize(storage))
	initialized, err = IsInitialized(storage)
	require.NoError(t, err)
	assert.True(t, initialized)
}

func TestListRuns_NewestFirst(t *testing.T) {
	storage := t.TempDir()
	require.NoError(t, Initialize(storage))

	for _, name := range []string{
		"run-20260101-090000-aaaaaaaa.ndjson",
		"run-20260301-090000-bbbbbbbb.ndjson",
		"notes.txt",
	} {
		require.NoError(t, os.WriteFile(filepath.Join(storage, "events", name), nil, 0600))
	}

	runs, err := ListRuns(storage)
	require.NoError(t, err)
	assert.Equal(t, []string{"run-20260301-090000-bbbbbbbb", "run-20260101-090000-aaaaaaaa"}, runs)
}

func TestListRuns_MissingStorage(t *testing.T) {
	runs, err := ListRuns(filepath.Join(t.TempDir(), "absent"))
	require.NoError(t, err)
	assert.Empty(t, runs)
}
