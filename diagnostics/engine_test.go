package diagnostics

import (
	"context"
	"testing"
	"time"

	"github.com/myleshyson/lsprotocol-go/protocol"
	"github.com/stretchr/testify/require"

	"catenary/manager"
	"catenary/types"
)

type fakeClient struct {
	lang         types.LanguageID
	generation   uint64
	notified     []string
	snapshot     types.DiagnosticsSnapshot
	awaitCalled  bool
}

func (f *fakeClient) LanguageID() types.LanguageID { return f.lang }
func (f *fakeClient) Status() types.ClientStatus   { return types.StatusReady }
func (f *fakeClient) PID() int                     { return 1 }
func (f *fakeClient) Roots() []string              { return nil }
func (f *fakeClient) AddRoot(ctx context.Context, root string) error { return nil }
func (f *fakeClient) Request(ctx context.Context, method string, params, result any, timeout time.Duration) error {
	return nil
}
func (f *fakeClient) Notify(ctx context.Context, method string, params any) error {
	f.notified = append(f.notified, method)
	return nil
}
func (f *fakeClient) DidOpen(ctx context.Context, uri, languageID, text string) error { return nil }
func (f *fakeClient) DidClose(ctx context.Context, uri string) error                  { return nil }
func (f *fakeClient) IdleDocuments(idleTimeout time.Duration) []string                { return nil }
func (f *fakeClient) HasOpenDocuments() bool                                          { return false }
func (f *fakeClient) ServerCapabilities() protocol.ServerCapabilities { return protocol.ServerCapabilities{} }
func (f *fakeClient) PositionEncoding() types.PositionEncoding        { return types.PositionEncodingUTF16 }
func (f *fakeClient) Diagnostics(uri string) (types.DiagnosticsSnapshot, bool) {
	return f.snapshot, f.snapshot.URI != ""
}
func (f *fakeClient) Generation(uri string) uint64     { return f.generation }
func (f *fakeClient) BumpGeneration(uri string) uint64 { f.generation++; return f.generation }
func (f *fakeClient) Strategy() types.DiagnosticsStrategy { return types.StrategyVersion }
func (f *fakeClient) Indexing() bool                      { return false }
func (f *fakeClient) AwaitDiagnostics(ctx context.Context, uri string, since uint64) (types.DiagnosticsSnapshot, error) {
	f.awaitCalled = true
	return types.DiagnosticsSnapshot{URI: uri, Generation: since}, nil
}
func (f *fakeClient) Metrics() types.ClientMetrics { return types.ClientMetrics{} }
func (f *fakeClient) LastActivity() time.Time      { return time.Now() }
func (f *fakeClient) Shutdown(ctx context.Context, grace time.Duration) error { return nil }

func testManager(client types.LanguageClient) *manager.Manager {
	cfg := &types.LSPServerConfig{
		Global: types.GlobalConfig{MaxRestartAttempts: 1},
		LanguageServers: map[types.LanguageID]types.LanguageServerConfig{
			"go": {Command: "gopls"},
		},
	}
	factory := func(ctx context.Context, lang types.LanguageID, cfg types.LanguageServerConfig, roots []string) (types.LanguageClient, error) {
		return client, nil
	}
	return manager.New(cfg, factory, nil)
}

func TestNudgeAndAwaitSendsChangeThenUnconditionalSave(t *testing.T) {
	fc := &fakeClient{lang: "go"}
	mgr := testManager(fc)
	_, err := mgr.GetOrSpawn(context.Background(), "go", "/repo")
	require.NoError(t, err)

	e := New(mgr, nil)
	snap, err := e.NudgeAndAwait(context.Background(), "go", "file:///repo/a.go", 2, "package a")
	require.NoError(t, err)

	require.Equal(t, []string{"textDocument/didChange", "textDocument/didSave"}, fc.notified)
	require.True(t, fc.awaitCalled)
	require.Equal(t, uint64(1), snap.Generation)
}

func TestSnapshotReturnsMethodNotSupportedWhenNoClient(t *testing.T) {
	mgr := testManager(&fakeClient{lang: "go"})
	e := New(mgr, nil)

	_, err := e.Snapshot("python", "file:///repo/a.py")
	require.Error(t, err)
	require.ErrorIs(t, err, types.MethodNotSupported("python", "diagnostics"))
}
