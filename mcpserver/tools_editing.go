package mcpserver

import (
	"context"
	"encoding/json"
	"strings"

	mcplib "github.com/mark3labs/mcp-go/mcp"
	mcpgoserver "github.com/mark3labs/mcp-go/server"

	"catenary/security"
)

func (d *dispatcher) editingTools() []mcpgoserver.ServerTool {
	return []mcpgoserver.ServerTool{
		d.formattingTool(),
		d.rangeFormattingTool(),
		d.renameTool(),
		d.codeActionsTool(),
		d.applyQuickfixTool(),
	}
}

// formatting/rename/codeAction proposals are returned as edits, never
// applied — the core has no filesystem write path for LSP results, per
// the untrusted-output design note.

func (d *dispatcher) formattingTool() mcpgoserver.ServerTool {
	opts := []mcplib.ToolOption{
		mcplib.WithDescription("Propose formatting edits for a whole document; never writes the file"),
		mcplib.WithString("file", mcplib.Required(), mcplib.Description("Path to the file, relative to a workspace root")),
	}
	return mcpgoserver.ServerTool{
		Tool: mcplib.NewTool("formatting", opts...),
		Handler: func(ctx context.Context, req mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
			args := req.GetArguments()
			path, lang, err := d.resolveFile(args, security.ModeRead)
			if err != nil {
				return mcplib.NewToolResultError(err.Error()), nil
			}
			client, err := d.client(ctx, lang)
			if err != nil {
				return toolError(err), nil
			}
			if err := d.ensureOpen(ctx, client, path, lang); err != nil {
				return mcplib.NewToolResultErrorFromErr("opening document", err), nil
			}
			params := map[string]any{
				"textDocument": map[string]any{"uri": fileURI(path)},
				"options":      map[string]any{"tabSize": 4, "insertSpaces": true},
			}
			var result json.RawMessage
			if err := client.Request(ctx, "textDocument/formatting", params, &result, requestTimeout); err != nil {
				return toolError(err), nil
			}
			return toolResultJSON(string(result)), nil
		},
	}
}

func (d *dispatcher) rangeFormattingTool() mcpgoserver.ServerTool {
	opts := []mcplib.ToolOption{
		mcplib.WithDescription("Propose formatting edits limited to a line range; never writes the file"),
		mcplib.WithString("file", mcplib.Required(), mcplib.Description("Path to the file, relative to a workspace root")),
		mcplib.WithNumber("start_line", mcplib.Required(), mcplib.Description("Zero-based first line of the range")),
		mcplib.WithNumber("end_line", mcplib.Required(), mcplib.Description("Zero-based last line of the range")),
	}
	return mcpgoserver.ServerTool{
		Tool: mcplib.NewTool("range_formatting", opts...),
		Handler: func(ctx context.Context, req mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
			args := req.GetArguments()
			path, lang, err := d.resolveFile(args, security.ModeRead)
			if err != nil {
				return mcplib.NewToolResultError(err.Error()), nil
			}
			startLine, _ := intArg(args, "start_line")
			endLine, _ := intArg(args, "end_line")

			client, err := d.client(ctx, lang)
			if err != nil {
				return toolError(err), nil
			}
			if err := d.ensureOpen(ctx, client, path, lang); err != nil {
				return mcplib.NewToolResultErrorFromErr("opening document", err), nil
			}
			params := map[string]any{
				"textDocument": map[string]any{"uri": fileURI(path)},
				"range": map[string]any{
					"start": map[string]any{"line": startLine, "character": 0},
					"end":   map[string]any{"line": endLine, "character": 0},
				},
				"options": map[string]any{"tabSize": 4, "insertSpaces": true},
			}
			var result json.RawMessage
			if err := client.Request(ctx, "textDocument/rangeFormatting", params, &result, requestTimeout); err != nil {
				return toolError(err), nil
			}
			return toolResultJSON(string(result)), nil
		},
	}
}

func (d *dispatcher) renameTool() mcpgoserver.ServerTool {
	opts := append([]mcplib.ToolOption{
		mcplib.WithDescription("Propose a workspace edit renaming the symbol at a position; never writes files"),
	}, positionToolArgs()...)
	opts = append(opts, mcplib.WithString("new_name", mcplib.Required(), mcplib.Description("The new name for the symbol")))

	return mcpgoserver.ServerTool{
		Tool: mcplib.NewTool("rename", opts...),
		Handler: func(ctx context.Context, req mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
			args := req.GetArguments()
			path, lang, err := d.resolveFile(args, security.ModeRead)
			if err != nil {
				return mcplib.NewToolResultError(err.Error()), nil
			}
			line, _ := intArg(args, "line")
			character, _ := intArg(args, "character")
			newName, ok := stringArg(args, "new_name")
			if !ok {
				return mcplib.NewToolResultError("new_name is required"), nil
			}

			client, err := d.client(ctx, lang)
			if err != nil {
				return toolError(err), nil
			}
			if err := d.ensureOpen(ctx, client, path, lang); err != nil {
				return mcplib.NewToolResultErrorFromErr("opening document", err), nil
			}
			params := positionParams(path, line, character)
			params["newName"] = newName

			var result json.RawMessage
			if err := client.Request(ctx, "textDocument/rename", params, &result, requestTimeout); err != nil {
				return toolError(err), nil
			}
			return toolResultJSON(string(result)), nil
		},
	}
}

func (d *dispatcher) codeActionsTool() mcpgoserver.ServerTool {
	opts := []mcplib.ToolOption{
		mcplib.WithDescription("List code actions available for a line range, including quickfixes and refactors"),
		mcplib.WithString("file", mcplib.Required(), mcplib.Description("Path to the file, relative to a workspace root")),
		mcplib.WithNumber("start_line", mcplib.Required(), mcplib.Description("Zero-based first line of the range")),
		mcplib.WithNumber("end_line", mcplib.Required(), mcplib.Description("Zero-based last line of the range")),
	}
	return mcpgoserver.ServerTool{
		Tool: mcplib.NewTool("code_actions", opts...),
		Handler: func(ctx context.Context, req mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
			args := req.GetArguments()
			result, err := d.requestCodeActions(ctx, args)
			if err != nil {
				return toolError(err), nil
			}
			return toolResultJSON(string(result)), nil
		},
	}
}

func (d *dispatcher) requestCodeActions(ctx context.Context, args map[string]any) (json.RawMessage, error) {
	path, lang, err := d.resolveFile(args, security.ModeRead)
	if err != nil {
		return nil, err
	}
	startLine, _ := intArg(args, "start_line")
	endLine, _ := intArg(args, "end_line")

	client, err := d.client(ctx, lang)
	if err != nil {
		return nil, err
	}
	if err := d.ensureOpen(ctx, client, path, lang); err != nil {
		return nil, err
	}
	params := map[string]any{
		"textDocument": map[string]any{"uri": fileURI(path)},
		"range": map[string]any{
			"start": map[string]any{"line": startLine, "character": 0},
			"end":   map[string]any{"line": endLine, "character": 0},
		},
		"context": map[string]any{"diagnostics": []any{}},
	}
	var result json.RawMessage
	if err := client.Request(ctx, "textDocument/codeAction", params, &result, requestTimeout); err != nil {
		return nil, err
	}
	return result, nil
}

// apply_quickfix looks up code actions for the range and returns the
// first quickfix's proposed edit — it never writes to disk itself, per
// spec's "No filesystem write" note; the caller applies the edit with
// its own file tool.
func (d *dispatcher) applyQuickfixTool() mcpgoserver.ServerTool {
	opts := []mcplib.ToolOption{
		mcplib.WithDescription("Look up a quickfix code action for a line range and return its proposed edit; never writes the file"),
		mcplib.WithString("file", mcplib.Required(), mcplib.Description("Path to the file, relative to a workspace root")),
		mcplib.WithNumber("start_line", mcplib.Required(), mcplib.Description("Zero-based first line of the range")),
		mcplib.WithNumber("end_line", mcplib.Required(), mcplib.Description("Zero-based last line of the range")),
		mcplib.WithString("title_contains", mcplib.Description("Select the first quickfix whose title contains this substring, instead of the first overall")),
	}
	return mcpgoserver.ServerTool{
		Tool: mcplib.NewTool("apply_quickfix", opts...),
		Handler: func(ctx context.Context, req mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
			args := req.GetArguments()
			raw, err := d.requestCodeActions(ctx, args)
			if err != nil {
				return toolError(err), nil
			}

			var actions []map[string]any
			if err := json.Unmarshal(raw, &actions); err != nil {
				return mcplib.NewToolResultErrorFromErr("parsing code actions", err), nil
			}

			titleContains, _ := stringArg(args, "title_contains")
			for _, action := range actions {
				kind, _ := action["kind"].(string)
				if kind != "" && kind != "quickfix" && !strings.HasPrefix(kind, "quickfix") {
					continue
				}
				if titleContains != "" {
					title, _ := action["title"].(string)
					if !strings.Contains(title, titleContains) {
						continue
					}
				}
				edit, ok := action["edit"]
				if !ok {
					continue
				}
				data, err := json.Marshal(edit)
				if err != nil {
					continue
				}
				return toolResultJSON(string(data)), nil
			}
			return mcplib.NewToolResultError("no matching quickfix found"), nil
		},
	}
}
