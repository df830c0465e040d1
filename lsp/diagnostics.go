package lsp

import (
	"context"
	"sync"
	"time"

	"github.com/myleshyson/lsprotocol-go/protocol"

	"catenary/types"
)

// diagnosticsState tracks, per open document URI, the generation counter
// and most recent published diagnostics for one server connection, plus
// the signals used to promote the server's DiagnosticsStrategy.
type diagnosticsState struct {
	mu       sync.Mutex
	byURI    map[string]*uriState
	strategy types.DiagnosticsStrategy

	progressActive map[string]bool // progress token -> still running

	pid          int
	lastCPUTicks int64
	lastCPUAt    time.Time
}

type uriState struct {
	generation   uint64
	snapshot     types.DiagnosticsSnapshot
	lastSettleAt time.Time
	waiters      []chan struct{}
}

func newDiagnosticsState() *diagnosticsState {
	return &diagnosticsState{
		byURI:          make(map[string]*uriState),
		progressActive: make(map[string]bool),
	}
}

func (d *diagnosticsState) entry(uri string) *uriState {
	e, ok := d.byURI[uri]
	if !ok {
		e = &uriState{}
		d.byURI[uri] = e
	}
	return e
}

// BumpGeneration is called immediately before the triggering didChange or
// didSave is written to the wire. The returned value is the generation the
// caller should pass to AwaitDiagnostics.
func (d *diagnosticsState) BumpGeneration(uri string) uint64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	e := d.entry(uri)
	e.generation++
	return e.generation
}

func (d *diagnosticsState) Generation(uri string) uint64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	if e, ok := d.byURI[uri]; ok {
		return e.generation
	}
	return 0
}

func (d *diagnosticsState) Diagnostics(uri string) (types.DiagnosticsSnapshot, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	e, ok := d.byURI[uri]
	if !ok {
		return types.DiagnosticsSnapshot{}, false
	}
	return e.snapshot, true
}

func (d *diagnosticsState) Strategy() types.DiagnosticsStrategy {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.strategy
}

func (d *diagnosticsState) promote(s types.DiagnosticsStrategy) {
	// Version beats TokenMonitor beats ProcessMonitor; never demote.
	if strategyRank(s) > strategyRank(d.strategy) {
		d.strategy = s
	}
}

// strategyRank orders strategies by preference; the enum's numeric order
// is not the preference order.
func strategyRank(s types.DiagnosticsStrategy) int {
	switch s {
	case types.StrategyVersion:
		return 3
	case types.StrategyTokenMonitor:
		return 2
	case types.StrategyProcessMonitor:
		return 1
	}
	return 0
}

// onPublishDiagnostics records a textDocument/publishDiagnostics
// notification and wakes anyone waiting on this URI.
func (d *diagnosticsState) onPublishDiagnostics(uri string, diags []protocol.Diagnostic, version *int32) {
	d.mu.Lock()
	defer d.mu.Unlock()
	e := d.entry(uri)
	e.snapshot = types.DiagnosticsSnapshot{
		URI:         uri,
		Generation:  e.generation,
		Diagnostics: diags,
		Version:     version,
	}
	e.lastSettleAt = time.Now()
	if version != nil {
		d.promote(types.StrategyVersion)
	}
	for _, w := range e.waiters {
		close(w)
	}
	e.waiters = nil
}

// onProgress records a $/progress begin/report/end notification for a
// token so the strategy can be promoted to TokenMonitor and Phase 1 of the
// wait protocol can block on the token's end event.
func (d *diagnosticsState) onProgress(token string, kind string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	switch kind {
	case "begin", "report":
		d.progressActive[token] = true
		d.promote(types.StrategyTokenMonitor)
	case "end":
		delete(d.progressActive, token)
	}
}

func (d *diagnosticsState) anyProgressActive() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, active := range d.progressActive {
		if active {
			return true
		}
	}
	return false
}

// AwaitDiagnostics blocks until a publish for uri is observed at
// generation >= sinceGeneration, the context is canceled, or a
// strategy-appropriate timeout elapses. It implements the two-phase wait
// from the diagnostics engine design: Phase 1 waits for a readiness signal
// specific to the negotiated strategy, Phase 2 requires the settle window
// of silence before returning.
func (d *diagnosticsState) AwaitDiagnostics(ctx context.Context, uri string, sinceGeneration uint64, pid int) (types.DiagnosticsSnapshot, error) {
	if err := d.awaitPhase1(ctx, uri, sinceGeneration, pid); err != nil {
		return types.DiagnosticsSnapshot{}, err
	}
	d.awaitPhase2(ctx, uri)

	d.mu.Lock()
	defer d.mu.Unlock()
	e := d.entry(uri)
	return e.snapshot, nil
}

func (d *diagnosticsState) awaitPhase1(ctx context.Context, uri string, sinceGeneration uint64, pid int) error {
	strategy := d.Strategy()
	switch strategy {
	case types.StrategyVersion:
		return d.waitForGeneration(ctx, uri, sinceGeneration, 30*time.Second)
	case types.StrategyTokenMonitor:
		return d.waitProgressMonitor(ctx, uri, sinceGeneration, 30*time.Second)
	default:
		return d.waitProcessMonitor(ctx, uri, sinceGeneration, pid)
	}
}

func (d *diagnosticsState) awaitPhase2(ctx context.Context, uri string) {
	timer := time.NewTimer(types.ActivitySettleWindowSeconds * time.Second)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}

func (d *diagnosticsState) waitForGeneration(ctx context.Context, uri string, sinceGeneration uint64, timeout time.Duration) error {
	d.mu.Lock()
	e := d.entry(uri)
	if e.generation >= sinceGeneration && e.snapshot.Generation >= sinceGeneration {
		d.mu.Unlock()
		return nil
	}
	ch := make(chan struct{})
	e.waiters = append(e.waiters, ch)
	d.mu.Unlock()

	t := time.NewTimer(timeout)
	defer t.Stop()
	select {
	case <-ch:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil // fall through to the settle window with whatever we have
	}
}

// waitProgressMonitor waits for every outstanding $/progress token to reach
// its "end" transition, then gives the server a short window to publish the
// diagnostics that settle usually follows the progress report with, per
// spec §4.5's TokenMonitor strategy. If a publish at sinceGeneration already
// arrived while progress was still running, it returns immediately.
func (d *diagnosticsState) waitProgressMonitor(ctx context.Context, uri string, sinceGeneration uint64, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()
	for {
		d.mu.Lock()
		e := d.entry(uri)
		published := e.snapshot.Generation >= sinceGeneration
		d.mu.Unlock()
		if published {
			return nil
		}
		if !d.anyProgressActive() {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if time.Now().After(deadline) {
				return nil
			}
		}
	}

	remaining := time.Until(deadline)
	if remaining <= 0 {
		remaining = 2 * time.Second
	}
	return d.waitForGeneration(ctx, uri, sinceGeneration, remaining)
}

// waitProcessMonitor polls the server process's CPU tick count, using the
// decaying patience sequence from types.ProcessMonitorPatience: as long as
// ticks keep advancing between checks the wait continues, up to the next
// patience budget in the sequence.
func (d *diagnosticsState) waitProcessMonitor(ctx context.Context, uri string, sinceGeneration uint64, pid int) error {
	if pid == 0 || !processCPUTicksAvailable(pid) {
		// No heuristic available; just wait for a publish with a generous
		// fixed budget.
		return d.waitForGeneration(ctx, uri, sinceGeneration, 30*time.Second)
	}
	for _, patience := range types.ProcessMonitorPatience {
		deadline := time.Now().Add(time.Duration(patience) * time.Second)
		lastTicks, _ := processCPUTicks(pid)
		for time.Now().Before(deadline) {
			select {
			case <-ctx.Done():
				return ctx.Err()
			default:
			}
			d.mu.Lock()
			e := d.entry(uri)
			done := e.snapshot.Generation >= sinceGeneration
			d.mu.Unlock()
			if done {
				return nil
			}
			time.Sleep(250 * time.Millisecond)
			ticks, err := processCPUTicks(pid)
			if err == nil && ticks == lastTicks {
				// no CPU burned since the last check; server looks idle,
				// move to a shorter patience window.
				break
			}
			lastTicks = ticks
		}
	}
	return nil
}
