package mcpserver

import (
	"context"
	"encoding/json"
	"os"

	mcplib "github.com/mark3labs/mcp-go/mcp"
	mcpgoserver "github.com/mark3labs/mcp-go/server"

	"catenary/security"
)

func (d *dispatcher) diagnosticsTools() []mcpgoserver.ServerTool {
	return []mcpgoserver.ServerTool{d.diagnosticsTool()}
}

// diagnosticsTool reads the cached snapshot for a file, or drives the
// two-phase nudge-and-await sequence first when wait_for_reanalysis is
// set, per spec §4.6's diagnostics row.
func (d *dispatcher) diagnosticsTool() mcpgoserver.ServerTool {
	opts := []mcplib.ToolOption{
		mcplib.WithDescription("Read cached diagnostics for a file, optionally waiting for the server to finish reanalyzing it first"),
		mcplib.WithString("file", mcplib.Required(), mcplib.Description("Path to the file, relative to a workspace root")),
		mcplib.WithBoolean("wait_for_reanalysis", mcplib.Description("Nudge the server with didChange+didSave and wait for a fresh publish before returning")),
	}
	return mcpgoserver.ServerTool{
		Tool: mcplib.NewTool("diagnostics", opts...),
		Handler: func(ctx context.Context, req mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
			args := req.GetArguments()
			path, lang, err := d.resolveFile(args, security.ModeRead)
			if err != nil {
				return mcplib.NewToolResultError(err.Error()), nil
			}
			uri := fileURI(path)

			if boolArg(args, "wait_for_reanalysis") {
				text, err := os.ReadFile(path)
				if err != nil {
					return mcplib.NewToolResultErrorFromErr("reading file for reanalysis", err), nil
				}
				// Ensure a client exists and the document is open before
				// nudging it; NudgeAndAwait sends didChange/didSave, which
				// require didOpen to have been sent first.
				client, err := d.client(ctx, lang)
				if err != nil {
					return toolError(err), nil
				}
				if err := client.DidOpen(ctx, uri, string(lang), string(text)); err != nil {
					return mcplib.NewToolResultErrorFromErr("opening document", err), nil
				}
				snap, err := d.bridge.Diagnostics().NudgeAndAwait(ctx, lang, uri, 0, string(text))
				if err != nil {
					return toolError(err), nil
				}
				return marshalSnapshot(snap)
			}

			snap, err := d.bridge.Diagnostics().Snapshot(lang, uri)
			if err != nil {
				return toolError(err), nil
			}
			return marshalSnapshot(snap)
		},
	}
}

func marshalSnapshot(snap interface{}) (*mcplib.CallToolResult, error) {
	data, err := json.Marshal(snap)
	if err != nil {
		return mcplib.NewToolResultErrorFromErr("marshaling diagnostics", err), nil
	}
	return toolResultJSON(string(data)), nil
}
