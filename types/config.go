package types

import "encoding/json"

// LanguageServerConfig describes how to spawn and initialize one language
// server, keyed by LanguageID in LSPServerConfig.LanguageServers.
type LanguageServerConfig struct {
	Command                string          `yaml:"command" json:"command"`
	Args                   []string        `yaml:"args" json:"args"`
	InitializationOptions  json.RawMessage `yaml:"initialization_options,omitempty" json:"initialization_options,omitempty"`
	Filetypes              []string        `yaml:"filetypes,omitempty" json:"filetypes,omitempty"`
	RootMarkers            []string        `yaml:"root_markers,omitempty" json:"root_markers,omitempty"`
	DiagnosticsStrategy    string          `yaml:"diagnostics_strategy,omitempty" json:"diagnostics_strategy,omitempty"`
	EagerStart             bool            `yaml:"eager_start,omitempty" json:"eager_start,omitempty"`
}

// RunAllowlist is the set of shell commands the "run" style tools may
// execute for a given scope (global, or per-language override).
type RunAllowlist struct {
	Allowed []string `yaml:"allowed" json:"allowed"`
}

// Allows reports whether command is present in the allowlist verbatim, or
// the allowlist contains "*" for unrestricted.
func (r RunAllowlist) Allows(command string) bool {
	for _, a := range r.Allowed {
		if a == "*" || a == command {
			return true
		}
	}
	return false
}

type ToolsRunConfig struct {
	Base        RunAllowlist            `yaml:"base" json:"base"`
	PerLanguage map[LanguageID]RunAllowlist `yaml:"per_language,omitempty" json:"per_language,omitempty"`
}

// Allows reports whether command is allowed for lang, checking the
// per-language override before falling back to the base allowlist.
func (t ToolsRunConfig) Allows(lang LanguageID, command string) bool {
	if override, ok := t.PerLanguage[lang]; ok {
		return override.Allows(command)
	}
	return t.Base.Allows(command)
}

// GlobalConfig holds the settings that apply across every language server.
type GlobalConfig struct {
	LogFilePath        string `yaml:"log_file_path,omitempty" json:"log_file_path,omitempty"`
	LogLevel           string `yaml:"log_level,omitempty" json:"log_level,omitempty"`
	MaxLogFiles        int    `yaml:"max_log_files,omitempty" json:"max_log_files,omitempty"`
	MaxRestartAttempts int    `yaml:"max_restart_attempts,omitempty" json:"max_restart_attempts,omitempty"`
	RestartDelayMs     int    `yaml:"restart_delay_ms,omitempty" json:"restart_delay_ms,omitempty"`
	IdleTimeoutSeconds int    `yaml:"idle_timeout_seconds,omitempty" json:"idle_timeout_seconds,omitempty"`
	SmartWait          bool   `yaml:"smart_wait" json:"smart_wait"`
}

// LSPServerConfig is the fully-resolved configuration shape described in
// spec §3.1, regardless of which on-disk format it was loaded from.
type LSPServerConfig struct {
	Global               GlobalConfig                    `yaml:"global" json:"global"`
	LanguageServers      map[LanguageID]LanguageServerConfig `yaml:"servers" json:"servers"`
	ExtensionLanguageMap map[string]LanguageID           `yaml:"extension_language_map,omitempty" json:"extension_language_map,omitempty"`
	WorkspaceRoots       []string                        `yaml:"workspace_roots,omitempty" json:"workspace_roots,omitempty"`
	ProtectedConfigFiles []string                        `yaml:"protected_config_files,omitempty" json:"protected_config_files,omitempty"`
	ToolsRun             ToolsRunConfig                  `yaml:"tools_run,omitempty" json:"tools_run,omitempty"`
}

// LanguageFor resolves the configured language for a filename extension
// (without the leading dot), returning ok=false when unmapped.
func (c *LSPServerConfig) LanguageFor(ext string) (LanguageID, bool) {
	if c.ExtensionLanguageMap == nil {
		return "", false
	}
	lang, ok := c.ExtensionLanguageMap[ext]
	return lang, ok
}

// ServerConfigFor returns the configured server for lang, ok=false if the
// language has no entry in servers.
func (c *LSPServerConfig) ServerConfigFor(lang LanguageID) (LanguageServerConfig, bool) {
	cfg, ok := c.LanguageServers[lang]
	return cfg, ok
}
