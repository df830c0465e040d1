package session

import (
	"os"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestStartPersistsAndStopRemoves(t *testing.T) {
	dir := t.TempDir()
	m := New(dir)
	require.NoError(t, m.Start([]string{"/repo"}))

	path := sessionFilePath(dir, m.ID())
	_, err := os.Stat(path)
	require.NoError(t, err)

	require.NoError(t, m.Stop())
	_, err = os.Stat(path)
	require.True(t, os.IsNotExist(err))
}

func TestAddRootDeduplicatesAndPersists(t *testing.T) {
	dir := t.TempDir()
	m := New(dir)
	require.NoError(t, m.Start(nil))

	require.NoError(t, m.AddRoot("/repo"))
	require.NoError(t, m.AddRoot("/repo"))
	require.Equal(t, []string{"/repo"}, m.Roots())
}

func TestListReturnsPersistedSessions(t *testing.T) {
	dir := t.TempDir()
	m := New(dir)
	require.NoError(t, m.Start([]string{"/repo"}))

	sessions, err := List(dir)
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	require.Equal(t, m.ID(), sessions[0].ID)
}

func TestListEmptyWhenNoSessions(t *testing.T) {
	sessions, err := List(t.TempDir())
	require.NoError(t, err)
	require.Empty(t, sessions)
}

func TestAliveDetectsCurrentProcess(t *testing.T) {
	require.True(t, Alive(os.Getpid()))
}
