// Package diagnostics implements the diagnostics consistency engine: it
// drives the nudge-and-retry sequence after an edit (an unconditional
// didSave following didChange, since many servers are lazier about
// publishing on didChange alone) and the two-phase wait that lets a tool
// call block until the server has actually caught up, rather than
// returning whatever was cached before the edit.
package diagnostics

import (
	"context"
	"fmt"

	"catenary/logger"
	"catenary/manager"
	"catenary/types"
)

type Engine struct {
	mgr *manager.Manager
	log *logger.Logger
}

func New(mgr *manager.Manager, log *logger.Logger) *Engine {
	if log == nil {
		log = logger.NoOp()
	}
	return &Engine{mgr: mgr, log: log}
}

// Snapshot returns whatever diagnostics are currently cached for uri
// without triggering a write or waiting, used when a caller just wants
// the last known state.
func (e *Engine) Snapshot(lang types.LanguageID, uri string) (types.DiagnosticsSnapshot, error) {
	client, ok := e.mgr.GetIfAlive(lang)
	if !ok {
		return types.DiagnosticsSnapshot{}, types.MethodNotSupported(lang, "diagnostics")
	}
	snap, ok := client.Diagnostics(uri)
	if !ok {
		return types.DiagnosticsSnapshot{URI: uri}, nil
	}
	return snap, nil
}

// NudgeAndAwait bumps uri's generation counter, sends the didChange that
// triggered the call followed by an unconditional didSave, then blocks
// (via the client's two-phase wait) until a publish at or after that
// generation arrives.
//
// The generation counter is bumped before the didChange is written to the
// wire, so the wait is never satisfied by a snapshot recorded before this
// call. Every publish recorded after the bump is stamped with the new
// generation, including one the server sent for an earlier edit that
// arrives after the bump; such a publish is not told apart from one that
// reflects this edit.
func (e *Engine) NudgeAndAwait(ctx context.Context, lang types.LanguageID, uri string, version int32, text string) (types.DiagnosticsSnapshot, error) {
	client, ok := e.mgr.GetIfAlive(lang)
	if !ok {
		return types.DiagnosticsSnapshot{}, types.MethodNotSupported(lang, "diagnostics")
	}

	generation := client.BumpGeneration(uri)

	changeParams := map[string]any{
		"textDocument": map[string]any{"uri": uri, "version": version},
		"contentChanges": []map[string]any{
			{"text": text},
		},
	}
	if err := client.Notify(ctx, "textDocument/didChange", changeParams); err != nil {
		return types.DiagnosticsSnapshot{}, fmt.Errorf("diagnostics: didChange: %w", err)
	}

	saveParams := map[string]any{
		"textDocument": map[string]any{"uri": uri},
		"text":         text,
	}
	if err := client.Notify(ctx, "textDocument/didSave", saveParams); err != nil {
		e.log.Warn("didSave nudge failed", "language", string(lang), "uri", uri, "error", err.Error())
	}

	snap, err := client.AwaitDiagnostics(ctx, uri, generation)
	if err != nil {
		return types.DiagnosticsSnapshot{}, fmt.Errorf("diagnostics: awaiting generation %d for %s: %w", generation, uri, err)
	}
	return snap, nil
}

// Strategy reports the negotiated diagnostics strategy for a live client,
// surfaced by the "status" and "doctor" operations.
func (e *Engine) Strategy(lang types.LanguageID) (types.DiagnosticsStrategy, bool) {
	client, ok := e.mgr.GetIfAlive(lang)
	if !ok {
		return types.StrategyUnknown, false
	}
	return client.Strategy(), true
}
