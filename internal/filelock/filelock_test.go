package filelock

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAcquireAndRelease(t *testing.T) {
	dir := t.TempDir()

	lock, err := Acquire(dir)
	require.NoError(t, err)
	assert.FileExists(t, lock.Path)
	assert.FileExists(t, lock.Path+".meta")

	meta, err := ReadMeta(lock.Path)
	require.NoError(t, err)
	assert.Equal(t, os.Getpid(), meta.PID)

	require.NoError(t, lock.Release())
	assert.NoFileExists(t, lock.Path+".meta")
}

func TestReleaseIsIdempotent(t *testing.T) {
	dir := t.TempDir()

	lock, err := Acquire(dir)
	require.NoError(t, err)
	require.NoError(t, lock.Release())
	require.NoError(t, lock.Release())
}

func TestReacquireAfterRelease(t *testing.T) {
	dir := t.TempDir()

	lock, err := Acquire(dir)
	require.NoError(t, err)
	require.NoError(t, lock.Release())

	lock2, err := Acquire(dir)
	require.NoError(t, err)
	require.NoError(t, lock2.Release())
}

func TestIsStaleWithDeadPID(t *testing.T) {
	dir := t.TempDir()
	lockPath := filepath.Join(dir, "workspace.lock")

	// PID that almost certainly does not exist.
	data, err := json.Marshal(Meta{PID: 1 << 22, Timestamp: "2024-01-01T00:00:00Z"})
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(lockPath+".meta", data, 0644))

	assert.True(t, IsStale(lockPath))
}

func TestIsStaleWithLivePID(t *testing.T) {
	dir := t.TempDir()

	lock, err := Acquire(dir)
	require.NoError(t, err)
	defer lock.Release()

	assert.False(t, IsStale(lock.Path))
}

func TestIsStaleWithoutMeta(t *testing.T) {
	assert.True(t, IsStale(filepath.Join(t.TempDir(), "missing.lock")))
}
