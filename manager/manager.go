// Package manager implements the client manager: the per-language
// registry of spawned LSP clients, enforcing exactly one live client per
// language, coalescing concurrent spawns of the same language into a
// single shared future, and sweeping idle clients after a configurable
// timeout.
package manager

import (
	"context"
	"fmt"
	"sync"
	"time"

	"catenary/logger"
	"catenary/types"
)

// Factory constructs and connects a new client for lang. Swapped out in
// tests for one that returns a fake client instead of spawning a real
// process.
type Factory func(ctx context.Context, lang types.LanguageID, cfg types.LanguageServerConfig, roots []string) (types.LanguageClient, error)

type spawnFuture struct {
	done   chan struct{}
	client types.LanguageClient
	err    error
}

// Manager owns the one-client-per-language map and every spawn/teardown
// path that mutates it.
type Manager struct {
	mu       sync.Mutex
	clients  map[types.LanguageID]types.LanguageClient
	spawning map[types.LanguageID]*spawnFuture

	cfg         *types.LSPServerConfig
	factory     Factory
	log         *logger.Logger
	idleTimeout time.Duration
}

func New(cfg *types.LSPServerConfig, factory Factory, log *logger.Logger) *Manager {
	idleTimeout := time.Duration(cfg.Global.IdleTimeoutSeconds) * time.Second
	if idleTimeout <= 0 {
		idleTimeout = 30 * time.Minute
	}
	if log == nil {
		log = logger.NoOp()
	}
	return &Manager{
		clients:     make(map[types.LanguageID]types.LanguageClient),
		spawning:    make(map[types.LanguageID]*spawnFuture),
		cfg:         cfg,
		factory:     factory,
		log:         log,
		idleTimeout: idleTimeout,
	}
}

// GetIfAlive returns the currently registered client for lang without
// spawning one, per spec's get_if_alive operation.
func (m *Manager) GetIfAlive(lang types.LanguageID) (types.LanguageClient, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.clients[lang]
	if !ok {
		return nil, false
	}
	if c.Status() == types.StatusClosed {
		delete(m.clients, lang)
		return nil, false
	}
	return c, true
}

// GetOrSpawn returns the live client for lang, spawning and initializing
// one against root if none exists, or adding root to an existing one.
// Concurrent callers requesting the same not-yet-spawned language share a
// single in-flight spawn instead of racing to start the process twice —
// the one-per-language invariant holds even under concurrent tool calls.
func (m *Manager) GetOrSpawn(ctx context.Context, lang types.LanguageID, root string) (types.LanguageClient, error) {
	m.mu.Lock()
	if c, ok := m.clients[lang]; ok && c.Status() != types.StatusClosed {
		m.mu.Unlock()
		if root != "" {
			if err := c.AddRoot(ctx, root); err != nil {
				return nil, err
			}
		}
		return c, nil
	}

	if future, ok := m.spawning[lang]; ok {
		m.mu.Unlock()
		<-future.done
		if future.err != nil {
			return nil, future.err
		}
		if root != "" {
			if err := future.client.AddRoot(ctx, root); err != nil {
				return nil, err
			}
		}
		return future.client, nil
	}

	future := &spawnFuture{done: make(chan struct{})}
	m.spawning[lang] = future
	m.mu.Unlock()

	client, err := m.spawn(ctx, lang, root)

	m.mu.Lock()
	delete(m.spawning, lang)
	if err == nil {
		m.clients[lang] = client
	}
	m.mu.Unlock()

	future.client, future.err = client, err
	close(future.done)

	return client, err
}

// spawn invokes the factory, retrying up to MaxRestartAttempts times with
// RestartDelayMs between attempts. The factory is responsible for the full
// connect-and-initialize sequence; by the time it returns successfully the
// client is ready to serve requests.
func (m *Manager) spawn(ctx context.Context, lang types.LanguageID, root string) (types.LanguageClient, error) {
	cfg, ok := m.cfg.ServerConfigFor(lang)
	if !ok {
		return nil, types.MethodNotSupported(lang, "spawn")
	}
	roots := []string{}
	if root != "" {
		roots = append(roots, root)
	}

	maxAttempts := m.cfg.Global.MaxRestartAttempts
	if maxAttempts <= 0 {
		maxAttempts = 1
	}
	delay := time.Duration(m.cfg.Global.RestartDelayMs) * time.Millisecond

	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		client, err := m.factory(ctx, lang, cfg, roots)
		if err == nil {
			m.log.Info("spawned language server", "language", string(lang), "pid", client.PID())
			return client, nil
		}
		lastErr = err
		m.log.Warn("spawn attempt failed", "language", string(lang), "attempt", attempt+1, "error", err.Error())
		if attempt < maxAttempts-1 {
			time.Sleep(delay)
		}
	}
	return nil, fmt.Errorf("manager: spawning %s after %d attempts: %w", lang, maxAttempts, lastErr)
}

// EagerStart spawns every language server configured with EagerStart, per
// spec §4.4's eager_start operation, used at bridge startup for servers
// that are cheap to keep warm regardless of whether a tool call has asked
// for them yet.
func (m *Manager) EagerStart(ctx context.Context, roots []string) {
	for lang, cfg := range m.cfg.LanguageServers {
		if !cfg.EagerStart {
			continue
		}
		root := ""
		if len(roots) > 0 {
			root = roots[0]
		}
		if _, err := m.GetOrSpawn(ctx, lang, root); err != nil {
			m.log.Warn("eager start failed", "language", string(lang), "error", err.Error())
		}
	}
}

// AddRootToAll propagates a newly synced workspace root to every live
// client, per spec's sync-roots operation.
func (m *Manager) AddRootToAll(ctx context.Context, root string) {
	m.mu.Lock()
	clients := make([]types.LanguageClient, 0, len(m.clients))
	for _, c := range m.clients {
		clients = append(clients, c)
	}
	m.mu.Unlock()

	for _, c := range clients {
		if err := c.AddRoot(ctx, root); err != nil {
			m.log.Warn("add root failed", "language", string(c.LanguageID()), "error", err.Error())
		}
	}
}

// IdleSweep closes documents unused for longer than the idle timeout, then
// shuts down and unregisters every client whose last observed activity
// is older than the timeout and that has no open documents left, per
// spec §4.4's idle_sweep: document-level and client-level teardown are
// independent, and a client with an open document is never torn down
// regardless of how long it's been since its last request.
func (m *Manager) IdleSweep(ctx context.Context) {
	m.mu.Lock()
	clients := make([]types.LanguageClient, 0, len(m.clients))
	for _, c := range m.clients {
		clients = append(clients, c)
	}
	m.mu.Unlock()

	for _, c := range clients {
		for _, uri := range c.IdleDocuments(m.idleTimeout) {
			if err := c.DidClose(ctx, uri); err != nil {
				m.log.Warn("idle sweep closing document failed", "language", string(c.LanguageID()), "uri", uri, "error", err.Error())
			}
		}
	}

	now := time.Now()
	m.mu.Lock()
	var idle []types.LanguageClient
	for lang, c := range m.clients {
		if now.Sub(c.LastActivity()) > m.idleTimeout && !c.HasOpenDocuments() {
			idle = append(idle, c)
			delete(m.clients, lang)
		}
	}
	m.mu.Unlock()

	for _, c := range idle {
		m.log.Info("idle sweep shutting down client", "language", string(c.LanguageID()))
		_ = c.Shutdown(ctx, 5*time.Second)
	}
}

// RunIdleSweepLoop blocks, calling IdleSweep every interval, until ctx is
// canceled. The bridge runs this in its own goroutine.
func (m *Manager) RunIdleSweepLoop(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.IdleSweep(ctx)
		}
	}
}

// ShutdownAll tears down every live client, used on process exit.
func (m *Manager) ShutdownAll(ctx context.Context) {
	m.mu.Lock()
	clients := make([]types.LanguageClient, 0, len(m.clients))
	for lang, c := range m.clients {
		clients = append(clients, c)
		delete(m.clients, lang)
	}
	m.mu.Unlock()

	var wg sync.WaitGroup
	for _, c := range clients {
		wg.Add(1)
		go func(c types.LanguageClient) {
			defer wg.Done()
			_ = c.Shutdown(ctx, 5*time.Second)
		}(c)
	}
	wg.Wait()
}

// Languages returns every language with a currently registered client.
func (m *Manager) Languages() []types.LanguageID {
	m.mu.Lock()
	defer m.mu.Unlock()
	langs := make([]types.LanguageID, 0, len(m.clients))
	for lang := range m.clients {
		langs = append(langs, lang)
	}
	return langs
}
