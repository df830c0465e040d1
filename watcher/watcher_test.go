package watcher

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestPollingWatcherDetectsCreatedChangedDeleted(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.go"), []byte("package a"), 0o644))
	require.NoError(t, os.Mkdir(filepath.Join(dir, "sub"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "sub", "b.go"), []byte("package a"), 0o644))

	var mu sync.Mutex
	var events []struct {
		path string
		t    ChangeType
	}
	record := func(path string, t ChangeType) {
		mu.Lock()
		events = append(events, struct {
			path string
			t    ChangeType
		}{path, t})
		mu.Unlock()
	}

	p := NewPollingWatcher(dir, []string{"go"}, time.Hour, 2, record)
	initial := p.scan()
	require.Len(t, initial, 2)

	time.Sleep(10 * time.Millisecond)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "c.go"), []byte("package a"), 0o644))
	future := time.Now().Add(time.Second)
	require.NoError(t, os.Chtimes(filepath.Join(dir, "sub", "b.go"), future, future))
	require.NoError(t, os.Remove(filepath.Join(dir, "a.go")))

	p.fileMap = initial
	p.checkForChanges()

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, events, 3)
}

func TestShouldSkipDir(t *testing.T) {
	require.True(t, shouldSkipDir("node_modules"))
	require.True(t, shouldSkipDir(".git"))
	require.True(t, shouldSkipDir(".hidden"))
	require.False(t, shouldSkipDir("src"))
}

func TestPathToURI(t *testing.T) {
	uri := pathToURI("/tmp/workspace/main.go")
	require.Contains(t, uri, "file://")
	require.Contains(t, uri, "main.go")
}
