package types

import (
	"context"
	"time"

	"github.com/myleshyson/lsprotocol-go/protocol"
)

// LanguageClient is the surface the manager, diagnostics engine and tool
// dispatcher use to talk to a single spawned language server. lsp.Client is
// the production implementation; tests substitute a fake.
type LanguageClient interface {
	LanguageID() LanguageID
	Status() ClientStatus
	PID() int
	Roots() []string
	AddRoot(ctx context.Context, root string) error

	Request(ctx context.Context, method string, params, result any, timeout time.Duration) error
	Notify(ctx context.Context, method string, params any) error

	// DidOpen sends textDocument/didOpen for uri and marks it open if it
	// isn't already tracked; otherwise it only refreshes the document's
	// last-access time. DidClose sends textDocument/didClose and stops
	// tracking it. IdleDocuments/HasOpenDocuments back the per-document and
	// whole-client idle sweeps.
	DidOpen(ctx context.Context, uri, languageID, text string) error
	DidClose(ctx context.Context, uri string) error
	IdleDocuments(idleTimeout time.Duration) []string
	HasOpenDocuments() bool

	ServerCapabilities() protocol.ServerCapabilities
	PositionEncoding() PositionEncoding

	Diagnostics(uri string) (DiagnosticsSnapshot, bool)
	Generation(uri string) uint64
	BumpGeneration(uri string) uint64
	Strategy() DiagnosticsStrategy
	AwaitDiagnostics(ctx context.Context, uri string, sinceGeneration uint64) (DiagnosticsSnapshot, error)
	Indexing() bool

	Metrics() ClientMetrics
	LastActivity() time.Time

	Shutdown(ctx context.Context, grace time.Duration) error
}

// DiagnosticsSnapshot is a point-in-time read of one document's published
// diagnostics plus the generation it was observed at.
type DiagnosticsSnapshot struct {
	URI         string
	Generation  uint64
	Diagnostics []protocol.Diagnostic
	Version     *int32
}
