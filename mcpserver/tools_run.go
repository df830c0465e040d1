package mcpserver

import (
	"bytes"
	"context"
	"encoding/json"
	"os/exec"
	"time"

	mcplib "github.com/mark3labs/mcp-go/mcp"
	mcpgoserver "github.com/mark3labs/mcp-go/server"

	"catenary/security"
	"catenary/types"
)

const runTimeout = 60 * time.Second

// runTools returns the "run" tool, gated by the configured allowlist
// (global, with an optional per-language override) from [tools.run].
func (d *dispatcher) runTools() []mcpgoserver.ServerTool {
	return []mcpgoserver.ServerTool{d.runTool()}
}

func (d *dispatcher) runTool() mcpgoserver.ServerTool {
	opts := []mcplib.ToolOption{
		mcplib.WithDescription("Run an allowlisted shell command in a workspace root"),
		mcplib.WithString("command", mcplib.Required(), mcplib.Description("Command to execute, checked against the configured allowlist verbatim")),
		mcplib.WithString("file", mcplib.Description("A file under the target language's workspace, used to pick the per-language allowlist override")),
	}
	return mcpgoserver.ServerTool{
		Tool: mcplib.NewTool("run", opts...),
		Handler: func(ctx context.Context, req mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
			args := req.GetArguments()
			command, ok := stringArg(args, "command")
			if !ok {
				return mcplib.NewToolResultError("command is required"), nil
			}

			var lang types.LanguageID
			if file, ok := stringArg(args, "file"); ok {
				if resolved, resolveErr := d.bridge.Validator().Validate(file, security.ModeRead); resolveErr == nil {
					if l, ok := d.bridge.ResolveLanguage(resolved); ok {
						lang = l
					}
				}
			}

			if !d.bridge.Config().ToolsRun.Allows(lang, command) {
				return toolError(types.RunDenied(command)), nil
			}

			root := d.firstRoot()
			runCtx, cancel := context.WithTimeout(ctx, runTimeout)
			defer cancel()

			cmd := exec.CommandContext(runCtx, "sh", "-c", command)
			cmd.Dir = root

			var stdout, stderr bytes.Buffer
			cmd.Stdout = &stdout
			cmd.Stderr = &stderr
			runErr := cmd.Run()

			result := map[string]any{
				"command": command,
				"stdout":  stdout.String(),
				"stderr":  stderr.String(),
			}
			if cmd.ProcessState != nil {
				result["exit_code"] = cmd.ProcessState.ExitCode()
			}
			if runCtx.Err() == context.DeadlineExceeded {
				result["timed_out"] = true
			} else if runErr != nil {
				result["error"] = runErr.Error()
			}

			data, err := json.Marshal(result)
			if err != nil {
				return mcplib.NewToolResultErrorFromErr("marshaling run result", err), nil
			}
			return toolResultJSON(string(data)), nil
		},
	}
}
