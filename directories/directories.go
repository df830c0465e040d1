// Package directories resolves the on-disk locations Catenary reads
// configuration from and writes logs, session state, and locks to,
// following the XDG Base Directory layout on Linux/BSD and the
// corresponding platform conventions elsewhere via adrg/xdg.
package directories

import (
	"os"
	"path/filepath"

	"github.com/adrg/xdg"
)

// UserProvider abstracts the parts of os/user a resolver needs, so tests
// can substitute a fixed identity instead of depending on the host's
// actual user database.
type UserProvider interface {
	HomeDir() (string, error)
	Username() (string, error)
}

// EnvProvider abstracts environment variable lookups for the same reason.
type EnvProvider interface {
	Getenv(key string) string
	LookupEnv(key string) (string, bool)
}

type DefaultUserProvider struct{}

func (DefaultUserProvider) HomeDir() (string, error) { return os.UserHomeDir() }
func (DefaultUserProvider) Username() (string, error) {
	if u := os.Getenv("USER"); u != "" {
		return u, nil
	}
	return "unknown", nil
}

type DefaultEnvProvider struct{}

func (DefaultEnvProvider) Getenv(key string) string { return os.Getenv(key) }
func (DefaultEnvProvider) LookupEnv(key string) (string, bool) { return os.LookupEnv(key) }

// Resolver computes Catenary's config/log/state/cache directories for a
// named application, honoring CATENARY_* environment overrides before
// falling back to XDG defaults.
type Resolver struct {
	appName     string
	users       UserProvider
	env         EnvProvider
	createDirs  bool
}

// NewDirectoryResolver builds a Resolver for appName. When createDirs is
// true, every Get*Directory call ensures the directory exists before
// returning it.
func NewDirectoryResolver(appName string, users UserProvider, env EnvProvider, createDirs bool) *Resolver {
	return &Resolver{appName: appName, users: users, env: env, createDirs: createDirs}
}

func (r *Resolver) ensure(dir string) (string, error) {
	if r.createDirs {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return "", err
		}
	}
	return dir, nil
}

func (r *Resolver) override(envVar string) (string, bool) {
	if r.env == nil {
		return "", false
	}
	return r.env.LookupEnv(envVar)
}

// GetConfigDirectory returns CATENARY_CONFIG_DIR, or $XDG_CONFIG_HOME/<app>.
func (r *Resolver) GetConfigDirectory() (string, error) {
	if v, ok := r.override("CATENARY_CONFIG_DIR"); ok && v != "" {
		return r.ensure(v)
	}
	return r.ensure(filepath.Join(xdg.ConfigHome, r.appName))
}

// GetLogDirectory returns CATENARY_LOG_DIR, or $XDG_STATE_HOME/<app>/logs.
func (r *Resolver) GetLogDirectory() (string, error) {
	if v, ok := r.override("CATENARY_LOG_DIR"); ok && v != "" {
		return r.ensure(v)
	}
	return r.ensure(filepath.Join(xdg.StateHome, r.appName, "logs"))
}

// GetStateDirectory returns CATENARY_STATE_DIR, or $XDG_STATE_HOME/<app>,
// the home for session PID files, root journals and the lock directory.
func (r *Resolver) GetStateDirectory() (string, error) {
	if v, ok := r.override("CATENARY_STATE_DIR"); ok && v != "" {
		return r.ensure(v)
	}
	return r.ensure(filepath.Join(xdg.StateHome, r.appName))
}

// GetCacheDirectory returns CATENARY_CACHE_DIR, or $XDG_CACHE_HOME/<app>.
func (r *Resolver) GetCacheDirectory() (string, error) {
	if v, ok := r.override("CATENARY_CACHE_DIR"); ok && v != "" {
		return r.ensure(v)
	}
	return r.ensure(filepath.Join(xdg.CacheHome, r.appName))
}
