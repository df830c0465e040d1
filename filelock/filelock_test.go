package filelock

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestAcquireThenDenyOtherOwner(t *testing.T) {
	c, err := New(t.TempDir(), time.Minute)
	require.NoError(t, err)

	_, err = c.Acquire(context.Background(), "/repo/main.go", "agent-a", 0)
	require.NoError(t, err)

	_, err = c.Acquire(context.Background(), "/repo/main.go", "agent-b", 0)
	require.Error(t, err)
}

func TestAcquireSameOwnerRefreshes(t *testing.T) {
	c, err := New(t.TempDir(), time.Minute)
	require.NoError(t, err)

	_, err = c.Acquire(context.Background(), "/repo/main.go", "agent-a", 0)
	require.NoError(t, err)
	_, err = c.Acquire(context.Background(), "/repo/main.go", "agent-a", 0)
	require.NoError(t, err)
}

func TestReleaseThenReacquireByAnother(t *testing.T) {
	c, err := New(t.TempDir(), time.Minute)
	require.NoError(t, err)

	_, err = c.Acquire(context.Background(), "/repo/main.go", "agent-a", 0)
	require.NoError(t, err)
	require.NoError(t, c.Release("/repo/main.go", "agent-a"))

	_, err = c.Acquire(context.Background(), "/repo/main.go", "agent-b", 0)
	require.NoError(t, err)
}

func TestExpiredLockCanBeReacquired(t *testing.T) {
	c, err := New(t.TempDir(), time.Millisecond)
	require.NoError(t, err)

	_, err = c.Acquire(context.Background(), "/repo/main.go", "agent-a", 0)
	require.NoError(t, err)
	time.Sleep(5 * time.Millisecond)

	_, err = c.Acquire(context.Background(), "/repo/main.go", "agent-b", 0)
	require.NoError(t, err)
}

func TestAcquireWaitsOutContentionThenSucceeds(t *testing.T) {
	c, err := New(t.TempDir(), time.Minute)
	require.NoError(t, err)

	_, err = c.Acquire(context.Background(), "/repo/main.go", "agent-a", 0)
	require.NoError(t, err)

	go func() {
		time.Sleep(50 * time.Millisecond)
		require.NoError(t, c.Release("/repo/main.go", "agent-a"))
	}()

	start := time.Now()
	_, err = c.Acquire(context.Background(), "/repo/main.go", "agent-b", time.Second)
	require.NoError(t, err)
	require.Greater(t, time.Since(start), 40*time.Millisecond)
}

func TestAcquireDeniedAfterTimeoutElapses(t *testing.T) {
	c, err := New(t.TempDir(), time.Minute)
	require.NoError(t, err)

	_, err = c.Acquire(context.Background(), "/repo/main.go", "agent-a", 0)
	require.NoError(t, err)

	_, err = c.Acquire(context.Background(), "/repo/main.go", "agent-b", 50*time.Millisecond)
	require.Error(t, err)
}

func TestPersistsAcrossInstances(t *testing.T) {
	dir := t.TempDir()
	c1, err := New(dir, time.Minute)
	require.NoError(t, err)
	_, err = c1.Acquire(context.Background(), "/repo/main.go", "agent-a", 0)
	require.NoError(t, err)

	c2, err := New(dir, time.Minute)
	require.NoError(t, err)
	owner, ok := c2.Holder("/repo/main.go")
	require.True(t, ok)
	require.Equal(t, "agent-a", owner)
}

func TestCheckStaleDetectsExternalWrite(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "file.go")
	require.NoError(t, os.WriteFile(path, []byte("v1"), 0o644))

	c, err := New(t.TempDir(), time.Minute)
	require.NoError(t, err)
	require.NoError(t, c.TrackRead(path, "agent-a"))

	time.Sleep(10 * time.Millisecond)
	require.NoError(t, os.WriteFile(path, []byte("v2 from someone else"), 0o644))
	// Ensure mtime actually advances on filesystems with coarse resolution.
	future := time.Now().Add(time.Second)
	require.NoError(t, os.Chtimes(path, future, future))

	err = c.CheckStale(path, "agent-a")
	require.Error(t, err)
}
