package logger

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewWritesToFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "catenary.log")

	l, err := New(Config{FilePath: path, Level: "debug"})
	require.NoError(t, err)
	defer l.Close()

	l.Info("hello", "key", "value")
	require.NoError(t, l.file.Sync())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Contains(t, string(data), "hello")
}

func TestNoOpDoesNotPanic(t *testing.T) {
	l := NoOp()
	l.Debug("ignored")
	l.Info("ignored")
	l.Warn("ignored")
	l.Error("ignored")
	require.NoError(t, l.Close())
}

func TestInitLoggerInstallsDefault(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "catenary.log")
	require.NoError(t, InitLogger(Config{FilePath: path, Level: "info"}))
	defer Close()

	require.NotNil(t, Default().file)
	Info("through the package default")
	require.NoError(t, Default().file.Sync())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Contains(t, string(data), "through the package default")
}
