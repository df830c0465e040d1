package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	mcplib "github.com/mark3labs/mcp-go/mcp"
	mcpgoserver "github.com/mark3labs/mcp-go/server"

	"catenary/security"
	"catenary/types"
)

func (d *dispatcher) workspaceTools() []mcpgoserver.ServerTool {
	return []mcpgoserver.ServerTool{
		d.searchTool(),
		d.codebaseMapTool(),
		d.listDirectoryTool(),
		d.statusTool(),
	}
}

var ignoredBasenames = map[string]struct{}{
	".git": {}, "node_modules": {}, "vendor": {}, ".hg": {}, ".svn": {}, ".idea": {}, ".vscode": {},
}

func isIgnoredEntry(name string) bool {
	if _, ok := ignoredBasenames[name]; ok {
		return true
	}
	return strings.HasPrefix(name, ".") && name != "." && name != ".."
}

// searchTool always runs workspace/symbol on every alive client and a
// filesystem grep fallback, and marks every result with fallback_used,
// per the "always runs both" note.
func (d *dispatcher) searchTool() mcpgoserver.ServerTool {
	opts := []mcplib.ToolOption{
		mcplib.WithDescription("Search for a symbol across every alive language server, plus a filesystem grep fallback"),
		mcplib.WithString("query", mcplib.Required(), mcplib.Description("Symbol name or text to search for")),
	}
	return mcpgoserver.ServerTool{
		Tool: mcplib.NewTool("search", opts...),
		Handler: func(ctx context.Context, req mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
			args := req.GetArguments()
			query, ok := stringArg(args, "query")
			if !ok {
				return mcplib.NewToolResultError("query is required"), nil
			}

			type symbolHit struct {
				Language string          `json:"language"`
				Symbols  json.RawMessage `json:"symbols,omitempty"`
				Warning  string          `json:"warning,omitempty"`
			}
			var symbolHits []symbolHit
			for _, lang := range d.bridge.Manager().Languages() {
				client, ok := d.bridge.Manager().GetIfAlive(lang)
				if !ok {
					continue
				}
				var result json.RawMessage
				if err := client.Request(ctx, "workspace/symbol", map[string]any{"query": query}, &result, requestTimeout); err != nil {
					symbolHits = append(symbolHits, symbolHit{Language: string(lang), Warning: warningFor(lang)})
					continue
				}
				symbolHits = append(symbolHits, symbolHit{Language: string(lang), Symbols: result})
			}

			grepHits, _ := d.grepWorkspace(query)

			data, err := json.Marshal(map[string]any{
				"symbols":       symbolHits,
				"text_matches":  grepHits,
				"fallback_used": true,
			})
			if err != nil {
				return mcplib.NewToolResultErrorFromErr("marshaling search results", err), nil
			}
			return toolResultJSON(string(data)), nil
		},
	}
}

type grepMatch struct {
	File string `json:"file"`
	Line int    `json:"line"`
	Text string `json:"text"`
}

const maxGrepMatches = 200

// grepWorkspace walks every configured root looking for literal
// occurrences of query, honoring the standard ignore conventions and
// re-validating resolved symlinks against the workspace roots.
func (d *dispatcher) grepWorkspace(query string) ([]grepMatch, error) {
	var matches []grepMatch
	for _, root := range d.bridge.Config().WorkspaceRoots {
		err := filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
			if err != nil {
				return nil
			}
			if len(matches) >= maxGrepMatches {
				return filepath.SkipAll
			}
			if info.IsDir() {
				if isIgnoredEntry(info.Name()) {
					return filepath.SkipDir
				}
				return nil
			}
			if isIgnoredEntry(info.Name()) {
				return nil
			}
			if info.Mode()&os.ModeSymlink != 0 {
				resolved, err := filepath.EvalSymlinks(path)
				if err != nil {
					return nil
				}
				if _, err := d.bridge.Validator().Validate(resolved, security.ModeRead); err != nil {
					return nil // escaped the workspace; skip per spec
				}
			}
			grepFile(path, query, &matches)
			return nil
		})
		if err != nil {
			return matches, err
		}
	}
	return matches, nil
}

func grepFile(path, query string, matches *[]grepMatch) {
	data, err := os.ReadFile(path)
	if err != nil {
		return
	}
	for i, line := range strings.Split(string(data), "\n") {
		if len(*matches) >= maxGrepMatches {
			return
		}
		if strings.Contains(line, query) {
			*matches = append(*matches, grepMatch{File: path, Line: i, Text: strings.TrimSpace(line)})
		}
	}
}

// codebaseMapTool walks the workspace and requests documentSymbol for
// every source file whose extension maps to an alive client, never
// spawning one, per the broadcast-tool rule.
func (d *dispatcher) codebaseMapTool() mcpgoserver.ServerTool {
	opts := []mcplib.ToolOption{
		mcplib.WithDescription("Walk the workspace and collect document symbols per file from every alive language server"),
	}
	return mcpgoserver.ServerTool{
		Tool: mcplib.NewTool("codebase_map", opts...),
		Handler: func(ctx context.Context, req mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
			type fileEntry struct {
				File    string          `json:"file"`
				Symbols json.RawMessage `json:"symbols,omitempty"`
				Warning string          `json:"warning,omitempty"`
			}
			var entries []fileEntry
			failedLangs := make(map[types.LanguageID]bool)

			for _, root := range d.bridge.Config().WorkspaceRoots {
				_ = filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
					if err != nil || info.IsDir() {
						if err == nil && info.IsDir() && isIgnoredEntry(info.Name()) {
							return filepath.SkipDir
						}
						return nil
					}
					if isIgnoredEntry(info.Name()) {
						return nil
					}
					lang, ok := d.bridge.ResolveLanguage(path)
					if !ok {
						return nil
					}
					client, ok := d.bridge.Manager().GetIfAlive(lang)
					if !ok {
						if !failedLangs[lang] {
							failedLangs[lang] = true
							entries = append(entries, fileEntry{File: path, Warning: warningFor(lang)})
						}
						return nil
					}
					var result json.RawMessage
					if err := client.Request(ctx, "textDocument/documentSymbol", map[string]any{
						"textDocument": map[string]any{"uri": fileURI(path)},
					}, &result, requestTimeout); err != nil {
						entries = append(entries, fileEntry{File: path, Warning: fmt.Sprintf("Warning: [%s] %s", lang, err.Error())})
						return nil
					}
					entries = append(entries, fileEntry{File: path, Symbols: result})
					return nil
				})
			}

			data, err := json.Marshal(entries)
			if err != nil {
				return mcplib.NewToolResultErrorFromErr("marshaling codebase map", err), nil
			}
			return toolResultJSON(string(data)), nil
		},
	}
}

func (d *dispatcher) listDirectoryTool() mcpgoserver.ServerTool {
	opts := []mcplib.ToolOption{
		mcplib.WithDescription("List a directory's entries, filesystem-only, using a non-following stat"),
		mcplib.WithString("path", mcplib.Required(), mcplib.Description("Path to the directory, relative to a workspace root")),
	}
	return mcpgoserver.ServerTool{
		Tool: mcplib.NewTool("list_directory", opts...),
		Handler: func(ctx context.Context, req mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
			args := req.GetArguments()
			raw, ok := stringArg(args, "path")
			if !ok {
				return mcplib.NewToolResultError("path is required"), nil
			}
			canon, err := d.bridge.Validator().Validate(raw, security.ModeRead)
			if err != nil {
				return mcplib.NewToolResultError(err.Error()), nil
			}

			entries, err := os.ReadDir(canon)
			if err != nil {
				return mcplib.NewToolResultErrorFromErr(fmt.Sprintf("listing %s", raw), err), nil
			}

			type direntry struct {
				Name  string `json:"name"`
				IsDir bool   `json:"is_dir"`
				Size  int64  `json:"size"`
			}
			var listing []direntry
			for _, e := range entries {
				info, err := e.Info() // Lstat-based, never follows symlinks
				if err != nil {
					continue
				}
				listing = append(listing, direntry{Name: e.Name(), IsDir: e.IsDir(), Size: info.Size()})
			}

			data, err := json.Marshal(listing)
			if err != nil {
				return mcplib.NewToolResultErrorFromErr("marshaling directory listing", err), nil
			}
			return toolResultJSON(string(data)), nil
		},
	}
}

func (d *dispatcher) statusTool() mcpgoserver.ServerTool {
	opts := []mcplib.ToolOption{mcplib.WithDescription("Report the manager's current client registry and diagnostics strategy per language")}
	return mcpgoserver.ServerTool{
		Tool: mcplib.NewTool("status", opts...),
		Handler: func(ctx context.Context, req mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
			type langStatus struct {
				Language string `json:"language"`
				Status   string `json:"status"`
				PID      int    `json:"pid"`
				Strategy string `json:"diagnostics_strategy"`
				Indexing bool   `json:"indexing"`
				Metrics  types.ClientMetrics `json:"metrics"`
			}
			var statuses []langStatus
			for _, lang := range d.bridge.Manager().Languages() {
				client, ok := d.bridge.Manager().GetIfAlive(lang)
				if !ok {
					continue
				}
				statuses = append(statuses, langStatus{
					Language: string(lang),
					Status:   client.Status().String(),
					PID:      client.PID(),
					Strategy: client.Strategy().String(),
					Indexing: client.Indexing(),
					Metrics:  client.Metrics(),
				})
			}
			data, err := json.Marshal(map[string]any{
				"session_id": d.bridge.Sessions().ID(),
				"roots":      d.bridge.Validator().Roots(),
				"clients":    statuses,
			})
			if err != nil {
				return mcplib.NewToolResultErrorFromErr("marshaling status", err), nil
			}
			return toolResultJSON(string(data)), nil
		},
	}
}
