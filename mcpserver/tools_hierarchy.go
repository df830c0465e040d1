package mcpserver

import (
	"context"
	"encoding/json"

	mcplib "github.com/mark3labs/mcp-go/mcp"
	mcpgoserver "github.com/mark3labs/mcp-go/server"

	"catenary/security"
	"catenary/types"
)

func (d *dispatcher) hierarchyTools() []mcpgoserver.ServerTool {
	return []mcpgoserver.ServerTool{
		d.callHierarchyTool(),
		d.typeHierarchyTool(),
	}
}

func (d *dispatcher) callHierarchyTool() mcpgoserver.ServerTool {
	opts := append([]mcplib.ToolOption{
		mcplib.WithDescription("Show incoming and outgoing calls for the function at a position"),
	}, positionToolArgs()...)
	opts = append(opts, mcplib.WithString("direction", mcplib.Description("\"incoming\", \"outgoing\", or \"both\" (default)")))

	return mcpgoserver.ServerTool{
		Tool: mcplib.NewTool("call_hierarchy", opts...),
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

			var items []map[string]any
			if err := client.Request(ctx, "textDocument/prepareCallHierarchy", positionParams(path, line, character), &items, requestTimeout); err != nil {
				return toolError(err), nil
			}
			if len(items) == 0 {
				return mcplib.NewToolResultError("no call hierarchy item at that position"), nil
			}

			direction, _ := stringArg(args, "direction")
			if direction == "" {
				direction = "both"
			}

			result := map[string]any{"item": items[0]}
			if direction == "incoming" || direction == "both" {
				var incoming json.RawMessage
				if err := client.Request(ctx, "callHierarchy/incomingCalls", map[string]any{"item": items[0]}, &incoming, requestTimeout); err != nil {
					result["incoming_warning"] = warningFor(lang)
				} else {
					result["incoming"] = incoming
				}
			}
			if direction == "outgoing" || direction == "both" {
				var outgoing json.RawMessage
				if err := client.Request(ctx, "callHierarchy/outgoingCalls", map[string]any{"item": items[0]}, &outgoing, requestTimeout); err != nil {
					result["outgoing_warning"] = warningFor(lang)
				} else {
					result["outgoing"] = outgoing
				}
			}

			data, err := json.Marshal(result)
			if err != nil {
				return mcplib.NewToolResultErrorFromErr("marshaling call hierarchy", err), nil
			}
			return toolResultJSON(string(data)), nil
		},
	}
}

func (d *dispatcher) typeHierarchyTool() mcpgoserver.ServerTool {
	opts := append([]mcplib.ToolOption{
		mcplib.WithDescription("Show supertypes and subtypes for the type at a position"),
	}, positionToolArgs()...)
	opts = append(opts, mcplib.WithString("direction", mcplib.Description("\"super\", \"sub\", or \"both\" (default)")))

	return mcpgoserver.ServerTool{
		Tool: mcplib.NewTool("type_hierarchy", opts...),
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

			var items []map[string]any
			if err := client.Request(ctx, "textDocument/prepareTypeHierarchy", positionParams(path, line, character), &items, requestTimeout); err != nil {
				return toolError(err), nil
			}
			if len(items) == 0 {
				return mcplib.NewToolResultError("no type hierarchy item at that position"), nil
			}

			direction, _ := stringArg(args, "direction")
			if direction == "" {
				direction = "both"
			}

			result := map[string]any{"item": items[0]}
			if direction == "super" || direction == "both" {
				var super json.RawMessage
				if err := client.Request(ctx, "typeHierarchy/supertypes", map[string]any{"item": items[0]}, &super, requestTimeout); err != nil {
					result["super_warning"] = warningFor(lang)
				} else {
					result["super"] = super
				}
			}
			if direction == "sub" || direction == "both" {
				var sub json.RawMessage
				if err := client.Request(ctx, "typeHierarchy/subtypes", map[string]any{"item": items[0]}, &sub, requestTimeout); err != nil {
					result["sub_warning"] = warningFor(lang)
				} else {
					result["sub"] = sub
				}
			}

			data, err := json.Marshal(result)
			if err != nil {
				return mcplib.NewToolResultErrorFromErr("marshaling type hierarchy", err), nil
			}
			return toolResultJSON(string(data)), nil
		},
	}
}

func warningFor(lang types.LanguageID) string {
	return "Warning: [" + string(lang) + "] unavailable, results may be incomplete"
}
