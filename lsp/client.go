// Package lsp implements Catenary's side of the LSP client connection to a
// single spawned language server: process lifecycle, the JSON-RPC
// connection, and the diagnostics bookkeeping the rest of the core reads.
package lsp

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/myleshyson/lsprotocol-go/protocol"
	"github.com/sourcegraph/jsonrpc2"

	"catenary/logger"
	"catenary/transport"
	"catenary/types"
)

// Client is a single language server connection. It implements
// types.LanguageClient.
type Client struct {
	lang    types.LanguageID
	command string
	args    []string
	initOpt json.RawMessage
	log     *logger.Logger

	ctx    context.Context
	cancel context.CancelFunc

	cmd  *exec.Cmd
	conn *jsonrpc2.Conn

	rootsMu sync.RWMutex
	roots   []string

	statusMu         sync.RWMutex
	status           types.ClientStatus
	serverCaps       protocol.ServerCapabilities
	positionEncoding types.PositionEncoding

	metricsMu sync.Mutex
	metrics   types.ClientMetrics
	lastSeen  time.Time

	diag *diagnosticsState

	openMu   sync.Mutex
	openDocs map[string]*openDoc

	requestSeq atomic.Int64
}

// openDoc tracks one document's open state, matching §3's open-documents
// shape (last-access-time, version-counter).
type openDoc struct {
	version    int32
	lastAccess time.Time
}

// Option configures a Client at construction time.
type Option func(*Client)

func WithLogger(l *logger.Logger) Option {
	return func(c *Client) { c.log = l }
}

// New builds a Client for lang from its configuration. It does not spawn
// the process; call Connect for that.
func New(lang types.LanguageID, cfg types.LanguageServerConfig, opts ...Option) *Client {
	c := &Client{
		lang:    lang,
		command: cfg.Command,
		args:    append([]string(nil), cfg.Args...),
		initOpt: cfg.InitializationOptions,
		status:   types.StatusSpawning,
		diag:     newDiagnosticsState(),
		openDocs: make(map[string]*openDoc),
		log:      logger.NoOp(),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

func (c *Client) LanguageID() types.LanguageID { return c.lang }

func (c *Client) Status() types.ClientStatus {
	c.statusMu.RLock()
	defer c.statusMu.RUnlock()
	return c.status
}

func (c *Client) setStatus(s types.ClientStatus) {
	c.statusMu.Lock()
	c.status = s
	c.statusMu.Unlock()
}

func (c *Client) PID() int {
	if c.cmd == nil || c.cmd.Process == nil {
		return 0
	}
	return c.cmd.Process.Pid
}

func (c *Client) Roots() []string {
	c.rootsMu.RLock()
	defer c.rootsMu.RUnlock()
	return append([]string(nil), c.roots...)
}

func (c *Client) ServerCapabilities() protocol.ServerCapabilities {
	c.statusMu.RLock()
	defer c.statusMu.RUnlock()
	return c.serverCaps
}

func (c *Client) PositionEncoding() types.PositionEncoding {
	c.statusMu.RLock()
	defer c.statusMu.RUnlock()
	if c.positionEncoding == "" {
		return types.PositionEncodingUTF16
	}
	return c.positionEncoding
}

func (c *Client) Metrics() types.ClientMetrics {
	c.metricsMu.Lock()
	defer c.metricsMu.Unlock()
	return c.metrics
}

func (c *Client) LastActivity() time.Time {
	c.metricsMu.Lock()
	defer c.metricsMu.Unlock()
	return c.lastSeen
}

func (c *Client) touch() {
	c.metricsMu.Lock()
	c.lastSeen = time.Now()
	c.metricsMu.Unlock()
}

// Connect spawns the server process and establishes the JSON-RPC
// connection over its stdio pipes. It does not send "initialize"; callers
// do that separately so the manager can fan out AddRoot calls first if
// the server is already running for another root.
func (c *Client) Connect(ctx context.Context) error {
	if err := sanitizeCommand(c.command); err != nil {
		return types.SpawnFailed(c.lang, err.Error(), err)
	}
	if err := sanitizeArgs(c.args); err != nil {
		return types.SpawnFailed(c.lang, err.Error(), err)
	}

	c.ctx, c.cancel = context.WithCancel(context.Background())

	cmd := exec.CommandContext(c.ctx, c.command, c.args...)
	cmd.Env = append(os.Environ(), "TERM=dumb", "NO_COLOR=1")
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true, Pgid: 0}

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return types.SpawnFailed(c.lang, "stdin pipe", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return types.SpawnFailed(c.lang, "stdout pipe", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return types.SpawnFailed(c.lang, "stderr pipe", err)
	}

	if err := cmd.Start(); err != nil {
		return types.SpawnFailed(c.lang, fmt.Sprintf("starting %s", c.command), err)
	}
	c.cmd = cmd

	rwc := &transport.ReadWriteCloser{
		Reader:  stdout,
		Writer:  stdin,
		Closers: []io.Closer{stdin},
	}
	stream := jsonrpc2.NewBufferedStream(rwc, jsonrpc2.VSCodeObjectCodec{})
	c.conn = jsonrpc2.NewConn(c.ctx, stream, c.handler(),
		jsonrpc2.SetLogger(jsonrpcLogger{log: c.log, lang: c.lang}))

	go c.drainStderr(stderr)
	go c.watchDisconnect()
	go c.watchProcess()

	c.log.Info("lsp client connected", "language", string(c.lang), "pid", c.PID())
	return nil
}

func (c *Client) drainStderr(r io.Reader) {
	buf := make([]byte, 1024)
	for {
		n, err := r.Read(buf)
		if n > 0 {
			c.log.Debug("server stderr", "language", string(c.lang), "data", string(buf[:n]))
		}
		if err != nil {
			return
		}
	}
}

func (c *Client) watchDisconnect() {
	<-c.conn.DisconnectNotify()
	c.log.Warn("lsp connection disconnected", "language", string(c.lang))
	c.setStatus(types.StatusClosed)
}

func (c *Client) watchProcess() {
	if c.cmd == nil {
		return
	}
	err := c.cmd.Wait()
	if err != nil {
		c.log.Warn("lsp process exited", "language", string(c.lang), "error", err.Error())
	} else {
		c.log.Info("lsp process exited", "language", string(c.lang))
	}
	c.setStatus(types.StatusClosed)
}

// Initialize performs the LSP initialize/initialized handshake for the
// given workspace roots.
func (c *Client) Initialize(ctx context.Context, roots []string) error {
	c.setStatus(types.StatusInitializing)
	c.rootsMu.Lock()
	c.roots = append([]string(nil), roots...)
	c.rootsMu.Unlock()

	params := c.buildInitializeParams(roots)

	var result map[string]any
	if err := c.Request(ctx, "initialize", params, &result, 60*time.Second); err != nil {
		c.setStatus(types.StatusDegraded)
		return types.InitializeFailed(c.lang, "initialize request failed", err)
	}

	if caps, ok := result["capabilities"]; ok {
		raw, err := json.Marshal(caps)
		if err == nil {
			var sc protocol.ServerCapabilities
			if err := json.Unmarshal(raw, &sc); err == nil {
				c.statusMu.Lock()
				c.serverCaps = sc
				c.statusMu.Unlock()
			}
		}
	}
	c.extractPositionEncoding(result)

	if err := c.Notify(ctx, "initialized", map[string]any{}); err != nil {
		c.setStatus(types.StatusDegraded)
		return types.InitializeFailed(c.lang, "initialized notification failed", err)
	}

	c.setStatus(types.StatusReady)
	return nil
}

func (c *Client) extractPositionEncoding(initResult map[string]any) {
	caps, ok := initResult["capabilities"].(map[string]any)
	if !ok {
		return
	}
	enc, ok := caps["positionEncoding"].(string)
	if !ok {
		return
	}
	c.statusMu.Lock()
	c.positionEncoding = types.PositionEncoding(enc)
	c.statusMu.Unlock()
}

func (c *Client) buildInitializeParams(roots []string) map[string]any {
	params := map[string]any{
		"processId": os.Getpid(),
		"capabilities": map[string]any{
			"textDocument": map[string]any{
				"synchronization":    map[string]any{"didSave": true, "dynamicRegistration": false},
				"publishDiagnostics": map[string]any{"relatedInformation": true},
				"hover":              map[string]any{"dynamicRegistration": false},
				"completion":         map[string]any{"dynamicRegistration": false},
			},
			"workspace": map[string]any{
				"workspaceFolders": true,
				"didChangeWatchedFiles": map[string]any{
					"dynamicRegistration": true,
				},
			},
			"general": map[string]any{
				"positionEncodings": []string{"utf-16", "utf-8", "utf-32"},
			},
		},
		"rootUri":          rootURI(roots),
		"workspaceFolders": workspaceFolders(roots),
	}
	if len(c.initOpt) > 0 {
		var v any
		if err := json.Unmarshal(c.initOpt, &v); err == nil {
			params["initializationOptions"] = v
		}
	}
	return params
}

func rootURI(roots []string) any {
	if len(roots) == 0 {
		return nil
	}
	return "file://" + roots[0]
}

func workspaceFolders(roots []string) []map[string]string {
	folders := make([]map[string]string, 0, len(roots))
	for _, r := range roots {
		folders = append(folders, map[string]string{"uri": "file://" + r, "name": r})
	}
	return folders
}

// AddRoot notifies an already-initialized server of an additional
// workspace folder, per spec §4.4's add_root operation.
func (c *Client) AddRoot(ctx context.Context, root string) error {
	c.rootsMu.Lock()
	for _, r := range c.roots {
		if r == root {
			c.rootsMu.Unlock()
			return nil
		}
	}
	c.roots = append(c.roots, root)
	c.rootsMu.Unlock()

	return c.Notify(ctx, "workspace/didChangeWorkspaceFolders", map[string]any{
		"event": map[string]any{
			"added":   []map[string]string{{"uri": "file://" + root, "name": root}},
			"removed": []map[string]string{},
		},
	})
}

// Request issues a JSON-RPC call and decodes its result into result.
func (c *Client) Request(ctx context.Context, method string, params, result any, timeout time.Duration) error {
	if c.conn == nil {
		return types.ServerClosed(c.lang, method)
	}
	select {
	case <-c.ctx.Done():
		return types.ServerClosed(c.lang, method)
	default:
	}

	c.requestSeq.Add(1)
	reqCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	err := c.conn.Call(reqCtx, method, params, result)
	c.touch()
	c.metricsMu.Lock()
	c.metrics.RequestsSent++
	if err != nil {
		c.metrics.RequestsFailed++
	} else {
		c.metrics.RequestsSucceeded++
	}
	c.metricsMu.Unlock()

	if err != nil {
		if reqCtx.Err() != nil {
			return types.RequestTimeout(c.lang, method)
		}
		return types.DecodeFailed(c.lang, method, err)
	}
	return nil
}

// Notify sends a JSON-RPC notification (no response expected).
func (c *Client) Notify(ctx context.Context, method string, params any) error {
	if c.conn == nil {
		return types.ServerClosed(c.lang, method)
	}
	err := c.conn.Notify(ctx, method, params)
	c.touch()
	c.metricsMu.Lock()
	c.metrics.NotificationsSent++
	c.metricsMu.Unlock()
	return err
}

// DidOpen sends textDocument/didOpen for uri if it isn't already tracked
// as open; a document already open just has its last-access time
// refreshed, per §3's "open only if didOpen sent and not yet didClose"
// invariant.
func (c *Client) DidOpen(ctx context.Context, uri, languageID, text string) error {
	c.openMu.Lock()
	if doc, ok := c.openDocs[uri]; ok {
		doc.lastAccess = time.Now()
		c.openMu.Unlock()
		return nil
	}
	c.openMu.Unlock()

	params := map[string]any{
		"textDocument": map[string]any{
			"uri":        uri,
			"languageId": languageID,
			"version":    1,
			"text":       text,
		},
	}
	if err := c.Notify(ctx, "textDocument/didOpen", params); err != nil {
		return err
	}

	c.openMu.Lock()
	c.openDocs[uri] = &openDoc{version: 1, lastAccess: time.Now()}
	c.openMu.Unlock()
	return nil
}

// DidClose sends textDocument/didClose and stops tracking uri. A no-op,
// network-wise, if uri was never opened.
func (c *Client) DidClose(ctx context.Context, uri string) error {
	c.openMu.Lock()
	_, open := c.openDocs[uri]
	delete(c.openDocs, uri)
	c.openMu.Unlock()
	if !open {
		return nil
	}
	return c.Notify(ctx, "textDocument/didClose", map[string]any{
		"textDocument": map[string]any{"uri": uri},
	})
}

// IdleDocuments returns every open URI whose last access is older than
// idleTimeout, for the manager's per-document idle_sweep.
func (c *Client) IdleDocuments(idleTimeout time.Duration) []string {
	now := time.Now()
	c.openMu.Lock()
	defer c.openMu.Unlock()
	var idle []string
	for uri, doc := range c.openDocs {
		if now.Sub(doc.lastAccess) > idleTimeout {
			idle = append(idle, uri)
		}
	}
	return idle
}

// HasOpenDocuments reports whether any document is currently open, gating
// whole-client idle teardown per §4.4's idle_sweep.
func (c *Client) HasOpenDocuments() bool {
	c.openMu.Lock()
	defer c.openMu.Unlock()
	return len(c.openDocs) > 0
}

// Shutdown performs the LSP shutdown/exit sequence, then kills the process
// if it hasn't exited within grace.
func (c *Client) Shutdown(ctx context.Context, grace time.Duration) error {
	c.setStatus(types.StatusShuttingDown)

	if c.conn != nil {
		shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		_ = c.Request(shutdownCtx, "shutdown", nil, nil, 5*time.Second)
		cancel()
		_ = c.Notify(ctx, "exit", nil)
	}

	done := make(chan struct{})
	go func() {
		if c.cmd != nil {
			c.cmd.Wait()
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(grace):
		if c.cmd != nil && c.cmd.Process != nil {
			c.log.Warn("lsp process did not exit in time, killing", "language", string(c.lang))
			_ = c.cmd.Process.Kill()
		}
	}

	if c.cancel != nil {
		c.cancel()
	}
	c.setStatus(types.StatusClosed)
	return nil
}

func (c *Client) Diagnostics(uri string) (types.DiagnosticsSnapshot, bool) {
	return c.diag.Diagnostics(uri)
}

func (c *Client) Generation(uri string) uint64 { return c.diag.Generation(uri) }

func (c *Client) BumpGeneration(uri string) uint64 { return c.diag.BumpGeneration(uri) }

func (c *Client) Strategy() types.DiagnosticsStrategy { return c.diag.Strategy() }

// Indexing reports whether the server has an open $/progress token, the
// same bookkeeping used to promote the strategy to TokenMonitor.
func (c *Client) Indexing() bool { return c.diag.anyProgressActive() }

func (c *Client) AwaitDiagnostics(ctx context.Context, uri string, sinceGeneration uint64) (types.DiagnosticsSnapshot, error) {
	return c.diag.AwaitDiagnostics(ctx, uri, sinceGeneration, c.PID())
}

type jsonrpcLogger struct {
	log  *logger.Logger
	lang types.LanguageID
}

func (l jsonrpcLogger) Printf(format string, v ...any) {
	l.log.Debug(fmt.Sprintf("[%s] "+format, append([]any{l.lang}, v...)...))
}
