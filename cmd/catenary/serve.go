package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"catenary/bridge"
	"catenary/config"
	"catenary/logger"
	"catenary/mcpserver"
	"catenary/types"
)

var (
	serveRoots       []string
	serveLSP         []string
	serveIdleTimeout int
)

func addServeFlags(c *cobra.Command) {
	c.Flags().StringArrayVar(&serveRoots, "root", nil, "workspace root to serve (repeatable)")
	c.Flags().StringArrayVar(&serveLSP, "lsp", nil, "language:command [args...] to append to configured servers (repeatable)")
	c.Flags().IntVar(&serveIdleTimeout, "idle-timeout", 0, "seconds of inactivity before a client is torn down (overrides config)")
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the MCP server on stdio (default command)",
	RunE:  runServe,
}

func init() {
	addServeFlags(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := resolveConfig()
	if err != nil {
		return err
	}

	if err := logger.InitLogger(logger.Config{FilePath: logPath(), Level: cfg.Global.LogLevel, MaxFiles: cfg.Global.MaxLogFiles}); err != nil {
		return fmt.Errorf("catenary: initializing logger: %w", err)
	}
	defer logger.Close()

	for _, root := range serveRoots {
		cfg.WorkspaceRoots = append(cfg.WorkspaceRoots, root)
	}
	if serveIdleTimeout > 0 {
		cfg.Global.IdleTimeoutSeconds = serveIdleTimeout
	}
	if len(cfg.WorkspaceRoots) == 0 {
		if cwd, err := os.Getwd(); err == nil {
			cfg.WorkspaceRoots = []string{cwd}
		}
	}
	if err := applyLSPFlags(cfg, serveLSP); err != nil {
		return err
	}

	b, err := bridge.New(cfg, stateDir(), logger.Default())
	if err != nil {
		return fmt.Errorf("catenary: building bridge: %w", err)
	}

	if err := b.Sessions().Start(cfg.WorkspaceRoots); err != nil {
		logger.Warn("persisting session record failed", "error", err.Error())
	}

	ctx, cancel := context.WithCancel(context.Background())
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigs
		cancel()
	}()
	defer func() {
		b.Shutdown(context.Background())
	}()

	logger.Info("connecting to configured language servers")
	if err := b.SyncAutoConnect(ctx); err != nil {
		logger.Warn("auto-connect failed", "error", err.Error())
	}

	socketPath := filepath.Join(stateDir(), "sessions", b.Sessions().ID()+".sock")
	go func() {
		if err := b.Events().Serve(ctx, socketPath); err != nil {
			logger.Warn("event bus stopped", "error", err.Error())
		}
	}()

	mcpSrv := mcpserver.Setup(b)
	b.SetServer(mcpSrv)

	logger.Info("starting MCP server on stdio")
	return mcpserver.Serve(mcpSrv)
}

// applyLSPFlags parses "language:command [args...]" entries from --lsp and
// appends or overrides the corresponding server config.
func applyLSPFlags(cfg *types.LSPServerConfig, entries []string) error {
	for _, entry := range entries {
		lang, rest, ok := strings.Cut(entry, ":")
		if !ok || lang == "" || rest == "" {
			return fmt.Errorf("catenary: --lsp entry %q must be language:command [args...]", entry)
		}
		fields := strings.Fields(rest)
		cfg.LanguageServers[types.LanguageID(lang)] = types.LanguageServerConfig{
			Command: fields[0],
			Args:    fields[1:],
		}
	}
	return nil
}

// findProjectConfig walks from the current directory up to the filesystem
// root looking for .catenary.yaml, implementing the "project config file
// discovered by walking parents from the current directory" link of the
// precedence chain. It returns "" if none is found.
func findProjectConfig() string {
	dir, err := os.Getwd()
	if err != nil {
		return ""
	}
	for {
		candidate := filepath.Join(dir, ".catenary.yaml")
		if _, err := os.Stat(candidate); err == nil {
			return candidate
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return ""
		}
		dir = parent
	}
}

// resolveConfig builds the resolved config. Candidate files are listed
// highest-priority first: explicit --config, project config file (parent
// walk from cwd), user config file. TryLoadConfig returns the first
// candidate that parses, and the other candidates are not merged in; when
// none loads, the compiled defaults are used. Environment overrides are
// applied last.
func resolveConfig() (*types.LSPServerConfig, error) {
	candidates := []string{}
	if configPath != "" {
		candidates = append(candidates, configPath)
	}
	if proj := findProjectConfig(); proj != "" {
		candidates = append(candidates, proj)
	}
	candidates = append(candidates, defaultConfigPath())

	cfg, _, err := config.TryLoadConfig(candidates[0], candidates[1:]...)
	if err != nil {
		cfg = config.Default()
	}
	config.ApplyEnvOverrides(cfg)
	return cfg, nil
}
