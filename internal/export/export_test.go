package export

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.lsp.dev/protocol"
	"go.lsp.dev/uri"

	"github.com/standardbeagle/lad/internal/document"
	"github.com/standardbeagle/lad/internal/types"
)

func snapshotFor(t *testing.T, text string) *document.Snapshot {
	t.Helper()
	mgr := document.NewManager(0)
	doc, err := mgr.Open(uri.File("/tmp/diag.txt"), text)
	require.NoError(t, err)
	return doc.Snapshot()
}

func TestDiagnostics_FiltersHighlightData(t *testing.T) {
	snap := snapshotFor(t, "line one\nline two\n")
	records := []types.HighlightRecord{
		{Kind: types.KindSyntax, Range: types.TextRange{Start: 0, End: 4}, Rule: "comment", Message: "ignored"},
		{Kind: types.KindSemantic, Range: types.TextRange{Start: 0, End: 4}, Rule: "symbol.function", Message: "lineOne"},
		{Kind: types.KindInspections, Range: types.TextRange{Start: 9, End: 13}, Severity: types.SeverityWarning, Rule: "long-line", Message: "line too long"},
	}

	diags := Diagnostics(snap, records)
	require.Len(t, diags, 1)
	assert.Equal(t, "line too long", diags[0].Message)
	assert.Equal(t, "long-line", diags[0].Code)
	assert.Equal(t, protocol.DiagnosticSeverityWarning, diags[0].Severity)
}

func TestDiagnostics_PositionsSpanLines(t *testing.T) {
	snap := snapshotFor(t, "abc\ndef\n")
	records := []types.HighlightRecord{
		{Kind: types.KindTodo, Range: types.TextRange{Start: 4, End: 7}, Severity: types.SeverityInfo, Rule: "todo.keyword", Message: "TODO marker"},
	}

	diags := Diagnostics(snap, records)
	require.Len(t, diags, 1)
	assert.Equal(t, uint32(1), diags[0].Range.Start.Line)
	assert.Equal(t, uint32(0), diags[0].Range.Start.Character)
	assert.Equal(t, uint32(1), diags[0].Range.End.Line)
	assert.Equal(t, uint32(3), diags[0].Range.End.Character)
	assert.Equal(t, protocol.DiagnosticSeverityInformation, diags[0].Severity)
}

func TestPublish_CarriesURIAndVersion(t *testing.T) {
	snap := snapshotFor(t, "hello\n")
	params := Publish(snap, nil)
	assert.Equal(t, snap.URI, params.URI)
	assert.Empty(t, params.Diagnostics)
}
