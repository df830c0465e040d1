package cmd

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"catenary/logger"
	"catenary/lsp"
)

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Check that every configured language server binary is reachable and can initialize",
	RunE:  runDoctor,
}

func runDoctor(cmd *cobra.Command, args []string) error {
	cfg, err := resolveConfig()
	if err != nil {
		return err
	}
	log := logger.NoOp()

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "LANGUAGE\tCOMMAND\tSTATUS")

	root := ""
	if len(cfg.WorkspaceRoots) > 0 {
		root = cfg.WorkspaceRoots[0]
	} else if cwd, err := os.Getwd(); err == nil {
		root = cwd
	}

	for lang, server := range cfg.LanguageServers {
		status := "ok"
		if _, err := exec.LookPath(server.Command); err != nil {
			status = fmt.Sprintf("binary %q not found on PATH", server.Command)
			fmt.Fprintf(w, "%s\t%s\t%s\n", lang, server.Command, status)
			continue
		}

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		client := lsp.New(lang, server, lsp.WithLogger(log))
		if err := client.Connect(ctx); err != nil {
			status = fmt.Sprintf("spawn failed: %v", err)
		} else if err := client.Initialize(ctx, []string{root}); err != nil {
			status = fmt.Sprintf("initialize failed: %v", err)
			_ = client.Shutdown(context.Background(), 2*time.Second)
		} else {
			_ = client.Shutdown(context.Background(), 2*time.Second)
		}
		cancel()

		fmt.Fprintf(w, "%s\t%s\t%s\n", lang, server.Command, status)
	}

	return w.Flush()
}
