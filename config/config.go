// Package config loads Catenary's configuration into the resolved shape
// defined by types.LSPServerConfig. The on-disk representation is YAML;
// spec'd as logical key/value shape only, so YAML gives the pack's actual
// parsing library a home without inventing a bespoke format.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"catenary/types"
)

// Default returns the compiled-in baseline configuration: no servers, a
// minimal extension map, conservative global settings. It is the first
// link in the precedence chain: the serve command falls back to it when no
// config file loads. LoadLSPConfig itself returns nil and an error when
// its file cannot be read or parsed.
func Default() *types.LSPServerConfig {
	return &types.LSPServerConfig{
		Global: types.GlobalConfig{
			LogLevel:           "info",
			MaxLogFiles:        5,
			MaxRestartAttempts: 3,
			RestartDelayMs:     500,
			IdleTimeoutSeconds: 1800,
			SmartWait:          true,
		},
		LanguageServers:      map[types.LanguageID]types.LanguageServerConfig{},
		ExtensionLanguageMap: map[string]types.LanguageID{},
		ProtectedConfigFiles: []string{".git", "go.sum", "go.mod", "Cargo.lock", "package-lock.json"},
		ToolsRun:             types.ToolsRunConfig{Base: types.RunAllowlist{}},
	}
}

// LoadLSPConfig reads and parses path as YAML into the resolved shape,
// merging onto Default() so a partial file only needs to specify what it
// overrides.
func LoadLSPConfig(path string) (*types.LSPServerConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: reading %s: %w", path, err)
	}
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parsing %s: %w", path, err)
	}
	return cfg, nil
}

// TryLoadConfig tries primaryPath, then each of fallbacks in order,
// returning the first one that parses. It mirrors the bridge's own
// fallback-chasing behavior for locating a config file across a handful
// of conventional names.
func TryLoadConfig(primaryPath string, fallbacks ...string) (*types.LSPServerConfig, string, error) {
	candidates := append([]string{primaryPath}, fallbacks...)
	var lastErr error
	for _, candidate := range candidates {
		if candidate == "" {
			continue
		}
		if _, err := os.Stat(candidate); err != nil {
			lastErr = err
			continue
		}
		cfg, err := LoadLSPConfig(candidate)
		if err != nil {
			lastErr = err
			continue
		}
		return cfg, candidate, nil
	}
	return nil, "", fmt.Errorf("config: no usable config file found: %w", lastErr)
}

// envPrefix is the namespace for every environment override, per §6.4.
const envPrefix = "CATENARY_"

// ApplyEnvOverrides mutates cfg in place with any CATENARY_* environment
// variables present, the last and highest-priority link in the
// precedence chain before explicit CLI flags.
func ApplyEnvOverrides(cfg *types.LSPServerConfig) {
	if v, ok := os.LookupEnv(envPrefix + "LOG_LEVEL"); ok {
		cfg.Global.LogLevel = v
	}
	if v, ok := os.LookupEnv(envPrefix + "LOG_FILE_PATH"); ok {
		cfg.Global.LogFilePath = v
	}
	if v, ok := os.LookupEnv(envPrefix + "MAX_RESTART_ATTEMPTS"); ok {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Global.MaxRestartAttempts = n
		}
	}
	if v, ok := os.LookupEnv(envPrefix + "IDLE_TIMEOUT_SECONDS"); ok {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Global.IdleTimeoutSeconds = n
		}
	}
	if v, ok := os.LookupEnv(envPrefix + "SMART_WAIT"); ok {
		cfg.Global.SmartWait = v == "1" || strings.EqualFold(v, "true")
	}
	if v, ok := os.LookupEnv(envPrefix + "WORKSPACE_ROOTS"); ok && v != "" {
		cfg.WorkspaceRoots = strings.Split(v, string(os.PathListSeparator))
	}
}
