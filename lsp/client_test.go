package lsp

import (
	"testing"

	"github.com/stretchr/testify/require"

	"catenary/types"
)

func TestSanitizeArgsRejectsShellMetacharacters(t *testing.T) {
	cases := []string{"; rm -rf /", "foo | bar", "foo && bar", "$(whoami)", "`whoami`"}
	for _, c := range cases {
		err := sanitizeArgs([]string{c})
		require.Errorf(t, err, "expected rejection of %q", c)
	}
}

func TestSanitizeArgsAllowsOrdinaryFlags(t *testing.T) {
	err := sanitizeArgs([]string{"--stdio", "-v", "--log-level=debug"})
	require.NoError(t, err)
}

func TestSanitizeCommandRejectsEmpty(t *testing.T) {
	require.Error(t, sanitizeCommand(""))
}

func TestDiagnosticsStateBumpGeneration(t *testing.T) {
	d := newDiagnosticsState()
	require.Equal(t, uint64(1), d.BumpGeneration("file:///a.go"))
	require.Equal(t, uint64(2), d.BumpGeneration("file:///a.go"))
	require.Equal(t, uint64(1), d.BumpGeneration("file:///b.go"))
}

func TestDiagnosticsStatePublishPromotesVersionStrategy(t *testing.T) {
	d := newDiagnosticsState()
	require.Equal(t, types.StrategyUnknown, d.Strategy())

	v := int32(3)
	d.onPublishDiagnostics("file:///a.go", nil, &v)
	require.Equal(t, "version", d.Strategy().String())
}

func TestDiagnosticsStateProgressPromotesTokenMonitor(t *testing.T) {
	d := newDiagnosticsState()
	d.onProgress("tok-1", "begin")
	require.Equal(t, "token_monitor", d.Strategy().String())
	require.True(t, d.anyProgressActive())
	d.onProgress("tok-1", "end")
	require.False(t, d.anyProgressActive())
}

func TestDiagnosticsStateNeverDemotes(t *testing.T) {
	d := newDiagnosticsState()
	v := int32(1)
	d.onPublishDiagnostics("file:///a.go", nil, &v)
	d.onProgress("tok-1", "begin")
	require.Equal(t, "version", d.Strategy().String())
}
