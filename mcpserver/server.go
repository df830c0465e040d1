// Package mcpserver is the tool dispatcher: it exposes the fixed set of
// MCP tools from the bridge as mcp-go ServerTools, validating arguments,
// selecting the target language, canonicalizing paths through the
// security validator, and attributing errors with "[<language>]" when
// they originate from an LSP client.
package mcpserver

import (
	"context"
	"fmt"
	"os"
	"time"

	mcplib "github.com/mark3labs/mcp-go/mcp"
	mcpgoserver "github.com/mark3labs/mcp-go/server"

	"catenary/bridge"
	"catenary/security"
	"catenary/types"
)

// requestTimeout is the hard cap on any single LSP request issued by a
// tool handler, matching the 30s ceiling from the error-handling design.
const requestTimeout = 30 * time.Second

// Setup builds the mcp-go server for b and registers every tool from
// spec §4.6's table, matching the teacher's SetupMCPServer(bridge) call
// shape: construct, register, hand back.
func Setup(b *bridge.Bridge) *mcpgoserver.MCPServer {
	s := mcpgoserver.NewMCPServer("catenary", "0.1.0",
		mcpgoserver.WithLogging(),
		mcpgoserver.WithRecovery(),
	)

	d := &dispatcher{bridge: b}
	s.AddTools(d.tools()...)
	return s
}

// Serve runs the MCP server on stdio until the client disconnects.
func Serve(s *mcpgoserver.MCPServer) error {
	return mcpgoserver.ServeStdio(s)
}

type dispatcher struct {
	bridge *bridge.Bridge
}

func (d *dispatcher) tools() []mcpgoserver.ServerTool {
	var tools []mcpgoserver.ServerTool
	tools = append(tools, d.navigationTools()...)
	tools = append(tools, d.editingTools()...)
	tools = append(tools, d.hierarchyTools()...)
	tools = append(tools, d.diagnosticsTools()...)
	tools = append(tools, d.workspaceTools()...)
	tools = append(tools, d.runTools()...)
	return tools
}

// toolResultJSON wraps a JSON payload as a text tool result, mirroring
// the corpus's toolResultJSON(data) shape.
func toolResultJSON(data string) *mcplib.CallToolResult {
	return mcplib.NewToolResultText(data)
}

func toolError(err error) *mcplib.CallToolResult {
	if lerr, ok := types.AsError(err); ok && lerr.LanguageID != "" {
		return mcplib.NewToolResultError(fmt.Sprintf("[%s] %s", lerr.LanguageID, lerr.Message))
	}
	return mcplib.NewToolResultErrorFromErr("catenary", err)
}

func stringArg(args map[string]any, name string) (string, bool) {
	v, ok := args[name].(string)
	return v, ok && v != ""
}

func intArg(args map[string]any, name string) (int, bool) {
	switch v := args[name].(type) {
	case float64:
		return int(v), true
	case int:
		return v, true
	}
	return 0, false
}

func boolArg(args map[string]any, name string) bool {
	v, _ := args[name].(bool)
	return v
}

// resolveFile validates the "file" argument against workspace roots and
// resolves the language it belongs to.
func (d *dispatcher) resolveFile(args map[string]any, mode security.Mode) (path string, lang types.LanguageID, err error) {
	file, ok := stringArg(args, "file")
	if !ok {
		return "", "", fmt.Errorf("file is required")
	}
	path, err = d.bridge.Validator().Validate(file, mode)
	if err != nil {
		return "", "", err
	}
	lang, ok = d.bridge.ResolveLanguage(path)
	if !ok {
		return "", "", fmt.Errorf("no language server configured for %s", file)
	}
	return path, lang, nil
}

func fileURI(path string) string { return "file://" + path }

// firstRoot picks a workspace root to spawn a language server against
// when none is more specific, matching the manager's GetOrSpawn(root)
// contract (an empty root leaves existing roots untouched).
func (d *dispatcher) firstRoot() string {
	roots := d.bridge.Config().WorkspaceRoots
	if len(roots) == 0 {
		return ""
	}
	return roots[0]
}

func (d *dispatcher) client(ctx context.Context, lang types.LanguageID) (types.LanguageClient, error) {
	return d.bridge.Manager().GetOrSpawn(ctx, lang, d.firstRoot())
}

// ensureOpen sends textDocument/didOpen for path against client if it
// hasn't been opened yet, per §3's invariant that a document is open only
// after didOpen; most servers answer textDocument/* requests correctly
// only once a document has been opened this way.
func (d *dispatcher) ensureOpen(ctx context.Context, client types.LanguageClient, path string, lang types.LanguageID) error {
	text, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return client.DidOpen(ctx, fileURI(path), string(lang), string(text))
}
