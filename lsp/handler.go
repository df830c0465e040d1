package lsp

import (
	"context"
	"encoding/json"

	"github.com/myleshyson/lsprotocol-go/protocol"
	"github.com/sourcegraph/jsonrpc2"

	"catenary/types"
)

// handler returns the jsonrpc2.Handler that processes every server-to-
// client request and notification arriving on this connection's reader
// goroutine. It never blocks on I/O itself; long-running work (killing the
// process, waking waiters) is either instantaneous bookkeeping or handed
// off to another goroutine.
func (c *Client) handler() jsonrpc2.Handler {
	return jsonrpc2.HandlerWithError(c.handle)
}

func (c *Client) handle(ctx context.Context, conn *jsonrpc2.Conn, req *jsonrpc2.Request) (any, error) {
	c.touch()
	switch req.Method {
	case "textDocument/publishDiagnostics":
		c.handlePublishDiagnostics(req)
		return nil, nil
	case "$/progress":
		c.handleProgress(req)
		return nil, nil
	case "window/logMessage", "window/showMessage", "telemetry/event":
		c.logWindowMessage(req)
		return nil, nil
	case "window/workDoneProgress/create":
		return map[string]any{}, nil
	case "client/registerCapability", "client/unregisterCapability":
		return map[string]any{}, nil
	case "workspace/configuration":
		return c.handleWorkspaceConfiguration(req), nil
	case "workspace/workspaceFolders":
		return c.workspaceFoldersResult(), nil
	case "window/showMessageRequest":
		return nil, nil
	default:
		if req.Notif {
			c.log.Debug("unhandled notification", "language", string(c.lang), "method", req.Method)
			return nil, nil
		}
		c.log.Debug("unhandled server request", "language", string(c.lang), "method", req.Method)
		return nil, &jsonrpc2.Error{Code: jsonrpc2.CodeMethodNotFound, Message: "method not supported: " + req.Method}
	}
}

func (c *Client) handlePublishDiagnostics(req *jsonrpc2.Request) {
	if req.Params == nil {
		return
	}
	var params struct {
		URI         string                 `json:"uri"`
		Version     *int32                 `json:"version"`
		Diagnostics []protocol.Diagnostic  `json:"diagnostics"`
	}
	if err := json.Unmarshal(*req.Params, &params); err != nil {
		merr := types.MalformedResponse(c.lang, "unparseable textDocument/publishDiagnostics params: "+err.Error())
		c.log.Warn("malformed publishDiagnostics", "language", string(c.lang), "error", merr.Error())
		return
	}
	c.diag.onPublishDiagnostics(params.URI, params.Diagnostics, params.Version)
}

func (c *Client) handleProgress(req *jsonrpc2.Request) {
	if req.Params == nil {
		return
	}
	var params struct {
		Token json.RawMessage `json:"token"`
		Value struct {
			Kind string `json:"kind"`
		} `json:"value"`
	}
	if err := json.Unmarshal(*req.Params, &params); err != nil {
		return
	}
	c.diag.onProgress(string(params.Token), params.Value.Kind)
}

func (c *Client) logWindowMessage(req *jsonrpc2.Request) {
	if req.Params == nil {
		return
	}
	var params struct {
		Type    int    `json:"type"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(*req.Params, &params); err != nil {
		return
	}
	c.log.Debug("server message", "language", string(c.lang), "type", params.Type, "message", params.Message)
}

func (c *Client) handleWorkspaceConfiguration(req *jsonrpc2.Request) any {
	var params struct {
		Items []map[string]any `json:"items"`
	}
	if req.Params != nil {
		_ = json.Unmarshal(*req.Params, &params)
	}
	result := make([]any, len(params.Items))
	for i := range result {
		result[i] = map[string]any{}
	}
	return result
}

func (c *Client) workspaceFoldersResult() any {
	roots := c.Roots()
	return workspaceFolders(roots)
}
