package cmd

import (
	"context"
	"encoding/json"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"catenary/filelock"
	"catenary/session"
	"catenary/types"
)

// readHookInput decodes stdin into dst, or exits silently if it can't —
// hook commands must never block or error out onto the host CLI.
func readHookInput(dst any) bool {
	data, err := io.ReadAll(os.Stdin)
	if err != nil {
		os.Exit(0)
	}
	if err := json.Unmarshal(data, dst); err != nil {
		os.Exit(0)
	}
	return true
}

func writeHookOutput(v any) {
	data, err := json.Marshal(v)
	if err != nil {
		os.Exit(0)
	}
	os.Stdout.Write(data)
}

func hookLockCoordinator() *filelock.Coordinator {
	c, err := filelock.New(stateDir(), 2*time.Minute)
	if err != nil {
		os.Exit(0)
	}
	return c
}

var acquireCmd = &cobra.Command{
	Use:    "acquire",
	Short:  "Acquire a file lock on behalf of a host-editor plugin",
	Hidden: true,
	Run: func(cmd *cobra.Command, args []string) {
		var in struct {
			Path           string `json:"path"`
			Owner          string `json:"owner"`
			TimeoutSeconds int    `json:"timeout_seconds"`
		}
		readHookInput(&in)
		timeout := time.Duration(in.TimeoutSeconds) * time.Second

		coord := hookLockCoordinator()
		lock, err := coord.Acquire(context.Background(), in.Path, in.Owner, timeout)
		if err != nil {
			status := "denied"
			reason := err.Error()
			if e, ok := types.AsError(err); ok {
				reason = e.Message
			}
			writeHookOutput(map[string]any{"status": status, "reason": reason})
			return
		}

		result := map[string]any{"status": "acquired", "lock": lock}
		if err := coord.CheckStale(in.Path, in.Owner); err != nil {
			result["warning"] = err.Error()
		}
		writeHookOutput(result)
	},
}

var releaseCmd = &cobra.Command{
	Use:    "release",
	Short:  "Release a file lock held by a host-editor plugin",
	Hidden: true,
	Run: func(cmd *cobra.Command, args []string) {
		var in struct {
			Path  string `json:"path"`
			Owner string `json:"owner"`
			Grace int    `json:"grace_seconds"`
		}
		readHookInput(&in)

		coord := hookLockCoordinator()
		if err := coord.Release(in.Path, in.Owner); err != nil {
			writeHookOutput(map[string]any{"status": "error", "reason": err.Error()})
			return
		}
		writeHookOutput(map[string]any{"status": "released"})
	},
}

var trackReadCmd = &cobra.Command{
	Use:    "track-read",
	Short:  "Record that a host-editor plugin observed a file's current contents",
	Hidden: true,
	Run: func(cmd *cobra.Command, args []string) {
		var in struct {
			Path  string `json:"path"`
			Owner string `json:"owner"`
		}
		readHookInput(&in)

		coord := hookLockCoordinator()
		if err := coord.TrackRead(in.Path, in.Owner); err != nil {
			writeHookOutput(map[string]any{"status": "error", "reason": err.Error()})
			return
		}
		writeHookOutput(map[string]any{"status": "tracked"})
	},
}

// notifyCmd acknowledges a host-CLI lifecycle notification. A running
// catenary server only picks up the notification the next time its own
// watcher or diagnostics loop touches the path; there is no control
// channel into an already-running serve process from a separate process.
var notifyCmd = &cobra.Command{
	Use:    "notify",
	Short:  "Acknowledge a host-editor lifecycle notification",
	Hidden: true,
	Run: func(cmd *cobra.Command, args []string) {
		var in struct {
			Method string          `json:"method"`
			Params json.RawMessage `json:"params"`
		}
		readHookInput(&in)
		writeHookOutput(map[string]any{"status": "acknowledged"})
	},
}

// syncRootsCmd picks the first recorded session whose PID is alive (or the
// first recorded session when none is) and reports its id with status
// "queued". It does not match sessions by their recorded roots, and it does
// not add the root to any session record or running server.
var syncRootsCmd = &cobra.Command{
	Use:    "sync-roots",
	Short:  "Report the running session a workspace root would be synced to; the root is not added",
	Hidden: true,
	Run: func(cmd *cobra.Command, args []string) {
		var in struct {
			Root string `json:"root"`
		}
		readHookInput(&in)

		infos, err := session.List(stateDir())
		if err != nil || len(infos) == 0 {
			writeHookOutput(map[string]any{"status": "no_session"})
			return
		}

		target := infos[0]
		for _, info := range infos {
			if session.Alive(info.PID) {
				target = info
				break
			}
		}
		writeHookOutput(map[string]any{"status": "queued", "session_id": target.ID})
	},
}
