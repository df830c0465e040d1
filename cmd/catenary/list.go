package cmd

import (
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"catenary/session"
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List running catenary sessions",
	RunE: func(cmd *cobra.Command, args []string) error {
		infos, err := session.List(stateDir())
		if err != nil {
			return fmt.Errorf("catenary: listing sessions: %w", err)
		}
		if len(infos) == 0 {
			fmt.Println("No sessions found.")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tPID\tSTARTED\tALIVE\tROOTS")
		for _, info := range infos {
			fmt.Fprintf(w, "%s\t%d\t%s\t%t\t%s\n",
				info.ID, info.PID, info.StartedAt.Format("2006-01-02 15:04:05"),
				session.Alive(info.PID), strings.Join(info.Roots, ","))
		}
		return w.Flush()
	},
}
