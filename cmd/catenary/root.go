// Package cmd is Catenary's CLI surface: the "serve" default command
// plus "list", "monitor", "doctor", and the hook commands a host editor
// CLI shells out to around its own tool-call lifecycle.
package cmd

import (
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"catenary/directories"
)

var (
	configPath string
	noColor    bool
)

var rootCmd = &cobra.Command{
	Use:   "catenary",
	Short: "A bidirectional bridge between language servers and MCP tool callers",
	Long: `Catenary spawns and supervises LSP language servers on behalf of MCP
tool callers, translating hover/definition/diagnostics/etc. tool calls
into the underlying LSP requests and keeping one server alive per
language for the lifetime of the session.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe(cmd, args)
	},
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to the configuration file")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "disable colored TUI output")

	addServeFlags(rootCmd)

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(monitorCmd)
	rootCmd.AddCommand(doctorCmd)
	rootCmd.AddCommand(acquireCmd)
	rootCmd.AddCommand(releaseCmd)
	rootCmd.AddCommand(trackReadCmd)
	rootCmd.AddCommand(notifyCmd)
	rootCmd.AddCommand(syncRootsCmd)
}

var resolver = directories.NewDirectoryResolver("catenary", directories.DefaultUserProvider{}, directories.DefaultEnvProvider{}, true)

func defaultConfigPath() string {
	dir, err := resolver.GetConfigDirectory()
	if err != nil {
		return "catenary.yaml"
	}
	return filepath.Join(dir, "catenary.yaml")
}

func stateDir() string {
	dir, err := resolver.GetStateDirectory()
	if err != nil {
		return filepath.Join(os.TempDir(), "catenary")
	}
	return dir
}

func logPath() string {
	dir, err := resolver.GetLogDirectory()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, "catenary.log")
}
