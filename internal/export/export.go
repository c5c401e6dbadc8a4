// Package export converts highlight records into LSP diagnostics for
// editor-facing surfaces. Syntax tokens and plain symbol records stay
// internal; only findings with a message to show the user are exported.
package export

import (
	"strings"

	"go.lsp.dev/protocol"

	"github.com/standardbeagle/lad/internal/document"
	"github.com/standardbeagle/lad/internal/types"
)

// diagnosticSource tags every exported diagnostic with its producer.
const diagnosticSource = "lad"

// severityFor maps highlight severities onto the LSP scale.
func severityFor(s types.Severity) protocol.DiagnosticSeverity {
	switch s {
	case types.SeverityError:
		return protocol.DiagnosticSeverityError
	case types.SeverityWarning:
		return protocol.DiagnosticSeverityWarning
	case types.SeverityHint:
		return protocol.DiagnosticSeverityHint
	default:
		return protocol.DiagnosticSeverityInformation
	}
}

// exportable filters out records that are highlight data rather than user
// findings: syntax tokens and bare symbol-name records.
func exportable(rec types.HighlightRecord) bool {
	if rec.Kind == types.KindSyntax {
		return false
	}
	if rec.Kind == types.KindSemantic && strings.HasPrefix(rec.Rule, "symbol.") {
		return false
	}
	return rec.Message != ""
}

// rangeFor converts a byte range into LSP line/character positions using the
// snapshot's line index.
func rangeFor(snap *document.Snapshot, rng types.TextRange) protocol.Range {
	startLine, startCol := snap.PositionFor(rng.Start)
	endLine, endCol := snap.PositionFor(rng.End)
	return protocol.Range{
		Start: protocol.Position{Line: uint32(startLine), Character: uint32(startCol)},
		End:   protocol.Position{Line: uint32(endLine), Character: uint32(endCol)},
	}
}

// Diagnostics converts the exportable subset of records into LSP
// diagnostics positioned against the given snapshot.
func Diagnostics(snap *document.Snapshot, records []types.HighlightRecord) []protocol.Diagnostic {
	diags := make([]protocol.Diagnostic, 0, len(records))
	for _, rec := range records {
		if !exportable(rec) {
			continue
		}
		diags = append(diags, protocol.Diagnostic{
			Range:    rangeFor(snap, rec.Range),
			Severity: severityFor(rec.Severity),
			Code:     rec.Rule,
			Source:   diagnosticSource,
			Message:  rec.Message,
		})
	}
	return diags
}

// Publish packages a document's current records as a publishDiagnostics
// payload.
func Publish(snap *document.Snapshot, records []types.HighlightRecord) protocol.PublishDiagnosticsParams {
	return protocol.PublishDiagnosticsParams{
		URI:         snap.URI,
		Version:     uint32(snap.Version),
		Diagnostics: Diagnostics(snap, records),
	}
}
