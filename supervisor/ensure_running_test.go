package supervisor

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnsureWorkerRunningSpawnsWhenNoLockFile(t *testing.T) {
	dir := t.TempDir()
	cfg := DefaultWorkerConfig()
	cfg.LockDir = dir

	s := New("/bin/does-not-matter", DriverConfig{DriverKind: "sqlite"}, cfg)
	spawned := false
	s.probeLive = func(int) bool { return false }
	s.spawn = func([]string) error { spawned = true; return nil }

	require.NoError(t, s.EnsureWorkerRunning(context.Background()))
	assert.True(t, spawned)
}

func TestEnsureWorkerRunningSkipsWhenLockOwnerAlive(t *testing.T) {
	dir := t.TempDir()
	cfg := DefaultWorkerConfig()
	cfg.LockDir = dir

	release, err := AcquireLock(dir)
	require.NoError(t, err)
	defer release()

	s := New("/bin/does-not-matter", DriverConfig{}, cfg)
	spawned := false
	s.probeLive = func(int) bool { return true }
	s.spawn = func([]string) error { spawned = true; return nil }

	require.NoError(t, s.EnsureWorkerRunning(context.Background()))
	assert.False(t, spawned)
}

func TestEnsureWorkerRunningRemovesStaleLock(t *testing.T) {
	dir := t.TempDir()
	cfg := DefaultWorkerConfig()
	cfg.LockDir = dir

	release, err := AcquireLock(dir)
	require.NoError(t, err)
	_ = release

	s := New("/bin/does-not-matter", DriverConfig{}, cfg)
	spawned := false
	s.probeLive = func(int) bool { return false }
	s.spawn = func([]string) error { spawned = true; return nil }

	require.NoError(t, s.EnsureWorkerRunning(context.Background()))
	assert.True(t, spawned)
	_, err = os.Stat(filepath.Join(dir, "queue_worker.lock"))
	assert.True(t, os.IsNotExist(err))
}
