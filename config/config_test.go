package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoadLSPConfigMergesOntoDefault(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "catenary.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
servers:
  go:
    command: gopls
    args: ["serve"]
global:
  log_level: debug
`), 0o644))

	cfg, err := LoadLSPConfig(path)
	require.NoError(t, err)
	require.Equal(t, "debug", cfg.Global.LogLevel)
	require.Equal(t, 3, cfg.Global.MaxRestartAttempts) // inherited from Default()
	require.Equal(t, "gopls", cfg.LanguageServers["go"].Command)
}

func TestTryLoadConfigFallsThrough(t *testing.T) {
	dir := t.TempDir()
	fallback := filepath.Join(dir, "lsp_config.json")
	require.NoError(t, os.WriteFile(fallback, []byte("servers: {}\n"), 0o644))

	cfg, used, err := TryLoadConfig(filepath.Join(dir, "missing.yaml"), fallback)
	require.NoError(t, err)
	require.Equal(t, fallback, used)
	require.NotNil(t, cfg)
}

func TestApplyEnvOverrides(t *testing.T) {
	cfg := Default()
	t.Setenv("CATENARY_LOG_LEVEL", "warn")
	t.Setenv("CATENARY_IDLE_TIMEOUT_SECONDS", "60")

	ApplyEnvOverrides(cfg)

	require.Equal(t, "warn", cfg.Global.LogLevel)
	require.Equal(t, 60, cfg.Global.IdleTimeoutSeconds)
}
