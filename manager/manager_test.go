package manager

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/myleshyson/lsprotocol-go/protocol"
	"github.com/stretchr/testify/require"

	"catenary/types"
)

type fakeClient struct {
	lang     types.LanguageID
	mu       sync.Mutex
	roots    []string
	status   types.ClientStatus
	lastSeen time.Time
	openDocs map[string]time.Time
}

func newFakeClient(lang types.LanguageID, roots []string) *fakeClient {
	return &fakeClient{lang: lang, roots: roots, status: types.StatusReady, lastSeen: time.Now(), openDocs: make(map[string]time.Time)}
}

func (f *fakeClient) LanguageID() types.LanguageID { return f.lang }
func (f *fakeClient) Status() types.ClientStatus   { return f.status }
func (f *fakeClient) PID() int                     { return 1234 }
func (f *fakeClient) Roots() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.roots...)
}
func (f *fakeClient) AddRoot(ctx context.Context, root string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.roots = append(f.roots, root)
	return nil
}
func (f *fakeClient) Request(ctx context.Context, method string, params, result any, timeout time.Duration) error {
	return nil
}
func (f *fakeClient) Notify(ctx context.Context, method string, params any) error { return nil }
func (f *fakeClient) DidOpen(ctx context.Context, uri, languageID, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.openDocs[uri] = time.Now()
	return nil
}
func (f *fakeClient) DidClose(ctx context.Context, uri string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.openDocs, uri)
	return nil
}
func (f *fakeClient) IdleDocuments(idleTimeout time.Duration) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var idle []string
	for uri, last := range f.openDocs {
		if time.Since(last) > idleTimeout {
			idle = append(idle, uri)
		}
	}
	return idle
}
func (f *fakeClient) HasOpenDocuments() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.openDocs) > 0
}
func (f *fakeClient) ServerCapabilities() protocol.ServerCapabilities             { return protocol.ServerCapabilities{} }
func (f *fakeClient) PositionEncoding() types.PositionEncoding                    { return types.PositionEncodingUTF16 }
func (f *fakeClient) Diagnostics(uri string) (types.DiagnosticsSnapshot, bool)    { return types.DiagnosticsSnapshot{}, false }
func (f *fakeClient) Generation(uri string) uint64                               { return 0 }
func (f *fakeClient) BumpGeneration(uri string) uint64                           { return 1 }
func (f *fakeClient) Strategy() types.DiagnosticsStrategy                        { return types.StrategyUnknown }
func (f *fakeClient) Indexing() bool                                             { return false }
func (f *fakeClient) AwaitDiagnostics(ctx context.Context, uri string, since uint64) (types.DiagnosticsSnapshot, error) {
	return types.DiagnosticsSnapshot{}, nil
}
func (f *fakeClient) Metrics() types.ClientMetrics { return types.ClientMetrics{} }
func (f *fakeClient) LastActivity() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lastSeen
}
func (f *fakeClient) Shutdown(ctx context.Context, grace time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.status = types.StatusClosed
	return nil
}

func testConfig() *types.LSPServerConfig {
	return &types.LSPServerConfig{
		Global: types.GlobalConfig{MaxRestartAttempts: 1, RestartDelayMs: 1, IdleTimeoutSeconds: 1},
		LanguageServers: map[types.LanguageID]types.LanguageServerConfig{
			"go": {Command: "gopls", Args: []string{"serve"}},
		},
	}
}

func TestGetOrSpawnSpawnsOnce(t *testing.T) {
	var spawnCount atomic.Int64
	factory := func(ctx context.Context, lang types.LanguageID, cfg types.LanguageServerConfig, roots []string) (types.LanguageClient, error) {
		spawnCount.Add(1)
		return newFakeClient(lang, roots), nil
	}
	m := New(testConfig(), factory, nil)

	c1, err := m.GetOrSpawn(context.Background(), "go", "/repo")
	require.NoError(t, err)
	c2, err := m.GetOrSpawn(context.Background(), "go", "/repo")
	require.NoError(t, err)

	require.Same(t, c1, c2)
	require.EqualValues(t, 1, spawnCount.Load())
}

func TestGetOrSpawnCoalescesConcurrentCallers(t *testing.T) {
	var spawnCount atomic.Int64
	started := make(chan struct{})
	release := make(chan struct{})
	factory := func(ctx context.Context, lang types.LanguageID, cfg types.LanguageServerConfig, roots []string) (types.LanguageClient, error) {
		spawnCount.Add(1)
		close(started)
		<-release
		return newFakeClient(lang, roots), nil
	}
	m := New(testConfig(), factory, nil)

	var wg sync.WaitGroup
	results := make([]types.LanguageClient, 4)
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			c, err := m.GetOrSpawn(context.Background(), "go", "/repo")
			require.NoError(t, err)
			results[i] = c
		}(i)
	}

	<-started
	close(release)
	wg.Wait()

	require.EqualValues(t, 1, spawnCount.Load())
	for _, c := range results[1:] {
		require.Same(t, results[0], c)
	}
}

func TestGetIfAliveReturnsFalseWhenUnspawned(t *testing.T) {
	m := New(testConfig(), nil, nil)
	_, ok := m.GetIfAlive("go")
	require.False(t, ok)
}

func TestIdleSweepRemovesStaleClients(t *testing.T) {
	factory := func(ctx context.Context, lang types.LanguageID, cfg types.LanguageServerConfig, roots []string) (types.LanguageClient, error) {
		c := newFakeClient(lang, roots)
		c.lastSeen = time.Now().Add(-time.Hour)
		return c, nil
	}
	m := New(testConfig(), factory, nil)
	_, err := m.GetOrSpawn(context.Background(), "go", "/repo")
	require.NoError(t, err)

	m.IdleSweep(context.Background())

	_, ok := m.GetIfAlive("go")
	require.False(t, ok)
}

func TestIdleSweepKeepsClientWithOpenDocument(t *testing.T) {
	var spawned *fakeClient
	factory := func(ctx context.Context, lang types.LanguageID, cfg types.LanguageServerConfig, roots []string) (types.LanguageClient, error) {
		spawned = newFakeClient(lang, roots)
		spawned.lastSeen = time.Now().Add(-time.Hour)
		return spawned, nil
	}
	m := New(testConfig(), factory, nil)
	c, err := m.GetOrSpawn(context.Background(), "go", "/repo")
	require.NoError(t, err)
	require.NoError(t, c.DidOpen(context.Background(), "file:///repo/a.go", "go", "package a"))

	m.IdleSweep(context.Background())

	_, ok := m.GetIfAlive("go")
	require.True(t, ok, "client with an open document must not be torn down")
}

func TestIdleSweepClosesIdleDocumentsIndependently(t *testing.T) {
	factory := func(ctx context.Context, lang types.LanguageID, cfg types.LanguageServerConfig, roots []string) (types.LanguageClient, error) {
		return newFakeClient(lang, roots), nil
	}
	m := New(testConfig(), factory, nil)
	c, err := m.GetOrSpawn(context.Background(), "go", "/repo")
	require.NoError(t, err)
	require.NoError(t, c.DidOpen(context.Background(), "file:///repo/a.go", "go", "package a"))
	c.(*fakeClient).openDocs["file:///repo/a.go"] = time.Now().Add(-time.Hour)

	m.IdleSweep(context.Background())

	require.False(t, c.HasOpenDocuments())
}

func TestShutdownAllClearsRegistry(t *testing.T) {
	factory := func(ctx context.Context, lang types.LanguageID, cfg types.LanguageServerConfig, roots []string) (types.LanguageClient, error) {
		return newFakeClient(lang, roots), nil
	}
	m := New(testConfig(), factory, nil)
	_, err := m.GetOrSpawn(context.Background(), "go", "/repo")
	require.NoError(t, err)

	m.ShutdownAll(context.Background())

	require.Empty(t, m.Languages())
}
