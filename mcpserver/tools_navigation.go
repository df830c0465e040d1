package mcpserver

import (
	"context"
	"encoding/json"

	mcplib "github.com/mark3labs/mcp-go/mcp"
	mcpgoserver "github.com/mark3labs/mcp-go/server"

	"catenary/security"
)

func (d *dispatcher) navigationTools() []mcpgoserver.ServerTool {
	return []mcpgoserver.ServerTool{
		d.positionTool("hover", "Show hover information at a position", "textDocument/hover"),
		d.positionTool("definition", "Go to the definition of the symbol at a position", "textDocument/definition"),
		d.positionTool("type_definition", "Go to the type definition of the symbol at a position", "textDocument/typeDefinition"),
		d.positionTool("implementation", "Go to implementations of the symbol at a position", "textDocument/implementation"),
		d.findReferencesTool(),
		d.documentSymbolsTool(),
		d.completionTool(),
		d.signatureHelpTool(),
	}
}

func positionParams(path string, line, character int) map[string]any {
	return map[string]any{
		"textDocument": map[string]any{"uri": fileURI(path)},
		"position":     map[string]any{"line": line, "character": character},
	}
}

func positionToolArgs() []mcplib.ToolOption {
	return []mcplib.ToolOption{
		mcplib.WithString("file", mcplib.Required(), mcplib.Description("Path to the file, relative to a workspace root")),
		mcplib.WithNumber("line", mcplib.Required(), mcplib.Description("Zero-based line number")),
		mcplib.WithNumber("character", mcplib.Required(), mcplib.Description("Zero-based character offset, honoring the server's negotiated position encoding")),
	}
}

// positionTool builds the common shape shared by hover/definition/
// type_definition/implementation: resolve file+position, call method,
// return the raw result as JSON.
func (d *dispatcher) positionTool(name, description, method string) mcpgoserver.ServerTool {
	opts := append([]mcplib.ToolOption{mcplib.WithDescription(description)}, positionToolArgs()...)
	return mcpgoserver.ServerTool{
		Tool: mcplib.NewTool(name, opts...),
		Handler: func(ctx context.Context, req mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
			args := req.GetArguments()
			path, lang, err := d.resolveFile(args, security.ModeRead)
			if err != nil {
				return mcplib.NewToolResultError(err.Error()), nil
			}
			line, _ := intArg(args, "line")
			character, _ := intArg(args, "character")

			client, err := d.client(ctx, lang)
			if err != nil {
				return toolError(err), nil
			}
			if err := d.ensureOpen(ctx, client, path, lang); err != nil {
				return mcplib.NewToolResultErrorFromErr("opening document", err), nil
			}

			var result json.RawMessage
			if err := client.Request(ctx, method, positionParams(path, line, character), &result, requestTimeout); err != nil {
				return toolError(err), nil
			}
			return toolResultJSON(string(result)), nil
		},
	}
}

func (d *dispatcher) findReferencesTool() mcpgoserver.ServerTool {
	opts := []mcplib.ToolOption{
		mcplib.WithDescription("Find references to the symbol at a position; given a symbol name instead, return its workspace/symbol matches"),
		mcplib.WithString("file", mcplib.Description("Path to the file, relative to a workspace root")),
		mcplib.WithNumber("line", mcplib.Description("Zero-based line number")),
		mcplib.WithNumber("character", mcplib.Description("Zero-based character offset")),
		mcplib.WithString("symbol", mcplib.Description("Symbol name; when given instead of file/line/character, returns the workspace/symbol matches per language; no references request is made")),
		mcplib.WithBoolean("include_declaration", mcplib.Description("Include the declaration itself in the results")),
	}
	return mcpgoserver.ServerTool{
		Tool: mcplib.NewTool("find_references", opts...),
		Handler: func(ctx context.Context, req mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
			args := req.GetArguments()
			if symbol, ok := stringArg(args, "symbol"); ok {
				return d.findReferencesBySymbol(ctx, symbol)
			}

			path, lang, err := d.resolveFile(args, security.ModeRead)
			if err != nil {
				return mcplib.NewToolResultError(err.Error()), nil
			}
			line, _ := intArg(args, "line")
			character, _ := intArg(args, "character")

			client, err := d.client(ctx, lang)
			if err != nil {
				return toolError(err), nil
			}
			if err := d.ensureOpen(ctx, client, path, lang); err != nil {
				return mcplib.NewToolResultErrorFromErr("opening document", err), nil
			}

			params := positionParams(path, line, character)
			params["context"] = map[string]any{"includeDeclaration": boolArg(args, "include_declaration")}

			var result json.RawMessage
			if err := client.Request(ctx, "textDocument/references", params, &result, requestTimeout); err != nil {
				return toolError(err), nil
			}
			return toolResultJSON(string(result)), nil
		},
	}
}

// findReferencesBySymbol runs workspace/symbol across every alive client
// and returns the matching symbols per language. It does not request
// textDocument/references for the hits.
func (d *dispatcher) findReferencesBySymbol(ctx context.Context, symbol string) (*mcplib.CallToolResult, error) {
	type hit struct {
		Language string          `json:"language"`
		Symbols  json.RawMessage `json:"symbols,omitempty"`
		Warning  string          `json:"warning,omitempty"`
	}
	var hits []hit
	for _, lang := range d.bridge.Manager().Languages() {
		client, ok := d.bridge.Manager().GetIfAlive(lang)
		if !ok {
			continue
		}
		var result json.RawMessage
		if err := client.Request(ctx, "workspace/symbol", map[string]any{"query": symbol}, &result, requestTimeout); err != nil {
			hits = append(hits, hit{Language: string(lang), Warning: "Warning: [" + string(lang) + "] unavailable, results may be incomplete"})
			continue
		}
		hits = append(hits, hit{Language: string(lang), Symbols: result})
	}
	data, err := json.Marshal(hits)
	if err != nil {
		return mcplib.NewToolResultErrorFromErr("marshaling symbol results", err), nil
	}
	return toolResultJSON(string(data)), nil
}

func (d *dispatcher) documentSymbolsTool() mcpgoserver.ServerTool {
	opts := []mcplib.ToolOption{
		mcplib.WithDescription("List a document's symbol tree, recursively, capped at a fixed depth"),
		mcplib.WithString("file", mcplib.Required(), mcplib.Description("Path to the file, relative to a workspace root")),
	}
	return mcpgoserver.ServerTool{
		Tool: mcplib.NewTool("document_symbols", opts...),
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
			params := map[string]any{"textDocument": map[string]any{"uri": fileURI(path)}}
			var result json.RawMessage
			if err := client.Request(ctx, "textDocument/documentSymbol", params, &result, requestTimeout); err != nil {
				return toolError(err), nil
			}
			capped, err := capSymbolDepth(result, maxSymbolDepth)
			if err != nil {
				return toolResultJSON(string(result)), nil
			}
			return toolResultJSON(capped), nil
		},
	}
}

const maxSymbolDepth = 8

// capSymbolDepth truncates a DocumentSymbol tree's "children" below
// maxDepth, returning the re-marshaled JSON. Falls back silently to the
// server's literal shape when it isn't a symbol-tree (some servers
// return SymbolInformation[] instead, which has no children to cap).
func capSymbolDepth(raw json.RawMessage, maxDepth int) (string, error) {
	var symbols []map[string]any
	if err := json.Unmarshal(raw, &symbols); err != nil {
		return "", err
	}
	capDepth(symbols, maxDepth)
	data, err := json.Marshal(symbols)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func capDepth(symbols []map[string]any, remaining int) {
	if remaining <= 0 {
		for _, s := range symbols {
			delete(s, "children")
		}
		return
	}
	for _, s := range symbols {
		children, ok := s["children"].([]any)
		if !ok {
			continue
		}
		typed := make([]map[string]any, 0, len(children))
		for _, c := range children {
			if m, ok := c.(map[string]any); ok {
				typed = append(typed, m)
			}
		}
		capDepth(typed, remaining-1)
		rebuilt := make([]any, len(typed))
		for i, m := range typed {
			rebuilt[i] = m
		}
		s["children"] = rebuilt
	}
}

const maxCompletionItems = 50

func (d *dispatcher) completionTool() mcpgoserver.ServerTool {
	opts := append([]mcplib.ToolOption{mcplib.WithDescription("Request completions at a position, capped at 50 items")}, positionToolArgs()...)
	return mcpgoserver.ServerTool{
		Tool: mcplib.NewTool("completion", opts...),
		Handler: func(ctx context.Context, req mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
			args := req.GetArguments()
			path, lang, err := d.resolveFile(args, security.ModeRead)
			if err != nil {
				return mcplib.NewToolResultError(err.Error()), nil
			}
			line, _ := intArg(args, "line")
			character, _ := intArg(args, "character")

			client, err := d.client(ctx, lang)
			if err != nil {
				return toolError(err), nil
			}
			if err := d.ensureOpen(ctx, client, path, lang); err != nil {
				return mcplib.NewToolResultErrorFromErr("opening document", err), nil
			}

			var result struct {
				IsIncomplete bool             `json:"isIncomplete"`
				Items        []map[string]any `json:"items"`
			}
			var raw json.RawMessage
			if err := client.Request(ctx, "textDocument/completion", positionParams(path, line, character), &raw, requestTimeout); err != nil {
				return toolError(err), nil
			}
			if err := json.Unmarshal(raw, &result); err != nil {
				// Some servers return a bare CompletionItem[] rather than a
				// CompletionList; fall back to the raw shape uncapped.
				return toolResultJSON(string(raw)), nil
			}
			if len(result.Items) > maxCompletionItems {
				result.Items = result.Items[:maxCompletionItems]
				result.IsIncomplete = true
			}
			data, err := json.Marshal(result)
			if err != nil {
				return toolResultJSON(string(raw)), nil
			}
			return toolResultJSON(string(data)), nil
		},
	}
}

func (d *dispatcher) signatureHelpTool() mcpgoserver.ServerTool {
	opts := append([]mcplib.ToolOption{mcplib.WithDescription("Request signature help at a position")}, positionToolArgs()...)
	return mcpgoserver.ServerTool{
		Tool: mcplib.NewTool("signature_help", opts...),
		Handler: func(ctx context.Context, req mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
			args := req.GetArguments()
			path, lang, err := d.resolveFile(args, security.ModeRead)
			if err != nil {
				return mcplib.NewToolResultError(err.Error()), nil
			}
			line, _ := intArg(args, "line")
			character, _ := intArg(args, "character")

			client, err := d.client(ctx, lang)
			if err != nil {
				return toolError(err), nil
			}
			if err := d.ensureOpen(ctx, client, path, lang); err != nil {
				return mcplib.NewToolResultErrorFromErr("opening document", err), nil
			}

			var result json.RawMessage
			if err := client.Request(ctx, "textDocument/signatureHelp", positionParams(path, line, character), &result, requestTimeout); err != nil {
				return toolError(err), nil
			}
			return toolResultJSON(string(result)), nil
		},
	}
}
