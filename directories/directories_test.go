package directories

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

type fakeEnv struct{ values map[string]string }

func (f fakeEnv) Getenv(key string) string { return f.values[key] }
func (f fakeEnv) LookupEnv(key string) (string, bool) {
	v, ok := f.values[key]
	return v, ok
}

func TestGetConfigDirectoryHonorsOverride(t *testing.T) {
	dir := t.TempDir()
	want := filepath.Join(dir, "custom-config")
	r := NewDirectoryResolver("catenary", DefaultUserProvider{}, fakeEnv{values: map[string]string{"CATENARY_CONFIG_DIR": want}}, true)

	got, err := r.GetConfigDirectory()
	require.NoError(t, err)
	require.Equal(t, want, got)
}

func TestGetLogDirectoryFallsBackToXDG(t *testing.T) {
	r := NewDirectoryResolver("catenary", DefaultUserProvider{}, fakeEnv{values: map[string]string{}}, false)
	got, err := r.GetLogDirectory()
	require.NoError(t, err)
	require.Contains(t, got, "catenary")
}
