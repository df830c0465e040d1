package security

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestValidateAcceptsPathInsideRoot(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "main.go"), []byte("package main"), 0o644))

	v, err := New([]string{dir}, nil)
	require.NoError(t, err)

	got, err := v.Validate(filepath.Join(dir, "main.go"), ModeRead)
	require.NoError(t, err)
	require.Contains(t, got, "main.go")
}

func TestValidateRejectsSiblingWithSharedPrefix(t *testing.T) {
	dir := t.TempDir()
	root := filepath.Join(dir, "workspace")
	evil := filepath.Join(dir, "workspace-evil")
	require.NoError(t, os.MkdirAll(root, 0o755))
	require.NoError(t, os.MkdirAll(evil, 0o755))

	v, err := New([]string{root}, nil)
	require.NoError(t, err)

	_, err = v.Validate(filepath.Join(evil, "file.txt"), ModeRead)
	require.Error(t, err)
}

func TestValidateRejectsEscapeViaDotDot(t *testing.T) {
	dir := t.TempDir()
	root := filepath.Join(dir, "workspace")
	require.NoError(t, os.MkdirAll(root, 0o755))

	v, err := New([]string{root}, nil)
	require.NoError(t, err)

	_, err = v.Validate(filepath.Join(root, "..", "outside.txt"), ModeRead)
	require.Error(t, err)
}

func TestValidateRejectsProtectedConfigOnWrite(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, ".git"), 0o755))

	v, err := New([]string{dir}, []string{".git", "go.sum"})
	require.NoError(t, err)

	_, err = v.Validate(filepath.Join(dir, ".git", "config"), ModeWrite)
	require.Error(t, err)

	// Same path is fine for a read.
	_, err = v.Validate(filepath.Join(dir, ".git", "config"), ModeRead)
	require.NoError(t, err)
}

func TestValidateErrorNeverLeaksResolvedPath(t *testing.T) {
	dir := t.TempDir()
	v, err := New([]string{dir}, nil)
	require.NoError(t, err)

	_, err = v.Validate("/definitely/outside/anything.go", ModeRead)
	require.Error(t, err)
	require.Contains(t, err.Error(), "/definitely/outside/anything.go")
}

func TestAddRootDeduplicates(t *testing.T) {
	dir := t.TempDir()
	v, err := New([]string{dir}, nil)
	require.NoError(t, err)
	require.NoError(t, v.AddRoot(dir))
	require.Len(t, v.Roots(), 1)
}
