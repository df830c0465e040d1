package cmd

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"catenary/session"
	"catenary/tui"
)

var monitorCmd = &cobra.Command{
	Use:   "monitor [session-id]",
	Short: "Attach a live TUI to a running session's event stream",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		infos, err := session.List(stateDir())
		if err != nil {
			return fmt.Errorf("catenary: listing sessions: %w", err)
		}

		target, err := pickSession(infos, args)
		if err != nil {
			return err
		}

		socket := filepath.Join(stateDir(), "sessions", target.ID+".sock")
		return tui.Start(context.Background(), tui.Options{
			SessionID: target.ID,
			Socket:    socket,
			NoColor:   noColor,
		})
	},
}

func pickSession(infos []session.Info, args []string) (session.Info, error) {
	if len(args) == 1 {
		for _, info := range infos {
			if info.ID == args[0] {
				return info, nil
			}
		}
		return session.Info{}, fmt.Errorf("catenary: no session with id %q", args[0])
	}

	var alive []session.Info
	for _, info := range infos {
		if session.Alive(info.PID) {
			alive = append(alive, info)
		}
	}
	switch len(alive) {
	case 0:
		return session.Info{}, fmt.Errorf("catenary: no running sessions to monitor")
	case 1:
		return alive[0], nil
	default:
		return session.Info{}, fmt.Errorf("catenary: multiple running sessions, specify one by id (catenary list)")
	}
}
