// Package bridge is the composition root: it owns every long-lived
// component (the client manager, diagnostics engine, path validator,
// file-lock coordinator, workspace watchers, session state) and wires
// them together behind the surface the MCP tool dispatcher calls into.
package bridge

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/mark3labs/mcp-go/server"

	"catenary/diagnostics"
	"catenary/filelock"
	"catenary/lsp"
	"catenary/manager"
	"catenary/logger"
	"catenary/security"
	"catenary/session"
	"catenary/types"
	"catenary/watcher"
)

// Bridge is the MCP-facing core: every tool handler reaches the rest of
// the system through this struct.
type Bridge struct {
	mcpServer *server.MCPServer

	cfg       *types.LSPServerConfig
	log       *logger.Logger
	manager   *manager.Manager
	diag      *diagnostics.Engine
	validator *security.Validator
	locks     *filelock.Coordinator
	sessions  *session.Manager
	events    *session.EventBus

	mu       sync.RWMutex
	watchers map[string]*watcher.Watcher
}

// New builds a Bridge from the resolved configuration. stateDir is where
// session records, locks, and per-session sockets live.
func New(cfg *types.LSPServerConfig, stateDir string, log *logger.Logger) (*Bridge, error) {
	if log == nil {
		log = logger.NoOp()
	}

	validator, err := security.New(cfg.WorkspaceRoots, cfg.ProtectedConfigFiles)
	if err != nil {
		return nil, fmt.Errorf("bridge: building path validator: %w", err)
	}

	locks, err := filelock.New(stateDir, 2*time.Minute)
	if err != nil {
		return nil, fmt.Errorf("bridge: building lock coordinator: %w", err)
	}

	b := &Bridge{
		cfg:       cfg,
		log:       log,
		validator: validator,
		locks:     locks,
		sessions:  session.New(stateDir),
		events:    session.NewEventBus(log),
		watchers:  make(map[string]*watcher.Watcher),
	}

	b.manager = manager.New(cfg, b.spawnClient, log)
	b.diag = diagnostics.New(b.manager, log)

	return b, nil
}

// SetServer wires the already-constructed mcp-go server back into the
// bridge so handlers registered on it can call back in, matching the
// teacher's two-phase construction (build the bridge, build the MCP
// server from it, then hand the server back).
func (b *Bridge) SetServer(s *server.MCPServer) { b.mcpServer = s }

func (b *Bridge) Manager() *manager.Manager       { return b.manager }
func (b *Bridge) Diagnostics() *diagnostics.Engine { return b.diag }
func (b *Bridge) Validator() *security.Validator  { return b.validator }
func (b *Bridge) Locks() *filelock.Coordinator    { return b.locks }
func (b *Bridge) Sessions() *session.Manager      { return b.sessions }
func (b *Bridge) Events() *session.EventBus       { return b.events }
func (b *Bridge) Config() *types.LSPServerConfig  { return b.cfg }

// spawnClient is the manager.Factory this bridge installs: it builds an
// lsp.Client, connects it, and performs the initialize handshake.
func (b *Bridge) spawnClient(ctx context.Context, lang types.LanguageID, cfg types.LanguageServerConfig, roots []string) (types.LanguageClient, error) {
	client := lsp.New(lang, cfg, lsp.WithLogger(b.log.With("language", string(lang))))
	if err := client.Connect(ctx); err != nil {
		return nil, err
	}
	if err := client.Initialize(ctx, roots); err != nil {
		_ = client.Shutdown(ctx, 2*time.Second)
		return nil, err
	}
	return client, nil
}

// ResolveLanguage maps a validated path's extension to a configured
// language, per the extension_language_map.
func (b *Bridge) ResolveLanguage(path string) (types.LanguageID, bool) {
	ext := extensionOf(path)
	return b.cfg.LanguageFor(ext)
}

// SyncAutoConnect starts every eager-start language server and a
// workspace watcher for each configured root, matching the bridge's
// startup behavior from main.go's composition.
func (b *Bridge) SyncAutoConnect(ctx context.Context) error {
	b.manager.EagerStart(ctx, b.cfg.WorkspaceRoots)
	for _, root := range b.cfg.WorkspaceRoots {
		if err := b.startWatcher(ctx, root); err != nil {
			b.log.Warn("starting workspace watcher failed", "root", root, "error", err.Error())
		}
	}
	go b.manager.RunIdleSweepLoop(ctx, time.Minute)
	return nil
}

// AddRoot validates and registers a new workspace root: the path
// validator, every live client, the session record, and a new watcher all
// learn about it, matching the sync-roots operation's fan-out.
func (b *Bridge) AddRoot(ctx context.Context, root string) error {
	if err := b.validator.AddRoot(root); err != nil {
		return err
	}
	b.manager.AddRootToAll(ctx, root)
	if err := b.sessions.AddRoot(root); err != nil {
		b.log.Warn("persisting synced root failed", "root", root, "error", err.Error())
	}
	if err := b.startWatcher(ctx, root); err != nil {
		b.log.Warn("starting workspace watcher failed", "root", root, "error", err.Error())
	}
	b.events.Publish(session.Event{Type: "root_added", Data: map[string]any{"root": root}})
	return nil
}

func (b *Bridge) startWatcher(ctx context.Context, root string) error {
	b.mu.Lock()
	if _, exists := b.watchers[root]; exists {
		b.mu.Unlock()
		return nil
	}
	w := watcher.New(root, b.watchedExtensions(), watcher.ModeAuto, b.log)
	b.watchers[root] = w
	b.mu.Unlock()

	return w.Start(ctx, func(changes []watcher.FileChange) {
		b.onWorkspaceChanges(ctx, changes)
	})
}

func (b *Bridge) watchedExtensions() []string {
	exts := make([]string, 0, len(b.cfg.ExtensionLanguageMap))
	for ext := range b.cfg.ExtensionLanguageMap {
		exts = append(exts, ext)
	}
	return exts
}

// onWorkspaceChanges forwards externally observed file changes to every
// live client as workspace/didChangeWatchedFiles, per the supplemented
// file-watching feature.
func (b *Bridge) onWorkspaceChanges(ctx context.Context, changes []watcher.FileChange) {
	events := make([]map[string]any, 0, len(changes))
	for _, c := range changes {
		events = append(events, map[string]any{"uri": c.URI, "type": int(c.Type)})
	}
	params := map[string]any{"changes": events}

	for _, lang := range b.manager.Languages() {
		client, ok := b.manager.GetIfAlive(lang)
		if !ok {
			continue
		}
		if err := client.Notify(ctx, "workspace/didChangeWatchedFiles", params); err != nil {
			b.log.Warn("forwarding file changes failed", "language", string(lang), "error", err.Error())
		}
	}
	b.events.Publish(session.Event{Type: "workspace_changed", Data: map[string]any{"count": len(changes)}})
}

// Shutdown tears down every watcher and client, and removes the session
// record, in that order so no client receives a change notification after
// it has begun shutting down.
func (b *Bridge) Shutdown(ctx context.Context) {
	b.mu.Lock()
	watchers := make([]*watcher.Watcher, 0, len(b.watchers))
	for _, w := range b.watchers {
		watchers = append(watchers, w)
	}
	b.watchers = make(map[string]*watcher.Watcher)
	b.mu.Unlock()

	for _, w := range watchers {
		w.Stop()
	}
	b.manager.ShutdownAll(ctx)
	if err := b.sessions.Stop(); err != nil {
		b.log.Warn("removing session record failed", "error", err.Error())
	}
}

func extensionOf(path string) string {
	for i := len(path) - 1; i >= 0; i-- {
		if path[i] == '.' {
			return path[i+1:]
		}
		if path[i] == '/' || path[i] == '\\' {
			break
		}
	}
	return ""
}
