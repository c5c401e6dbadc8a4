package analysis

import (
	"fmt"
	"strings"

	tree_sitter "github.com/tree-sitter/go-tree-sitter"

	laderrors "github.com/standardbeagle/lad/internal/errors"
	"github.com/standardbeagle/lad/internal/passes"
	"github.com/standardbeagle/lad/internal/types"
)

// syntaxChunkSize is how many records accumulate before an intermediate
// delivery. Keeps large files responsive to cancellation without flooding
// the gate.
const syntaxChunkSize = 256

// SyntaxPass produces token-level highlights from a tree-sitter parse. It is
// the root of the pass graph; semantic and inspection kinds run after it.
type SyntaxPass struct{}

// NewSyntaxPass returns the syntax highlighting pass.
func NewSyntaxPass() *SyntaxPass { return &SyntaxPass{} }

func (p *SyntaxPass) Kind() types.PassKind { return types.KindSyntax }

func (p *SyntaxPass) Collect(ctx *passes.Context) ([]types.HighlightRecord, error) {
	if err := ctx.CheckCanceled(); err != nil {
		return nil, err
	}
	entry := languageFor(ctx.Snapshot.URI)
	if entry == nil {
		// Unsupported extension: the window completes with no records.
		return nil, nil
	}

	parser := tree_sitter.NewParser()
	defer parser.Close()
	if err := parser.SetLanguage(entry.language); err != nil {
		return nil, laderrors.NewPassExecutionError(types.KindSyntax, err)
	}

	// Tree-sitter mutates input buffers through CGO; parse a private copy so
	// the snapshot text stays immutable.
	buf := []byte(ctx.Snapshot.Text)
	content := make([]byte, len(buf))
	copy(content, buf)

	tree := parser.Parse(content, nil)
	if tree == nil {
		return nil, laderrors.NewPassExecutionError(types.KindSyntax,
			fmt.Errorf("parse produced no tree for %s", ctx.Snapshot.URI))
	}
	defer tree.Close()

	qc := tree_sitter.NewQueryCursor()
	defer qc.Close()
	matches := qc.Matches(entry.query, tree.RootNode(), content)
	captureNames := entry.query.CaptureNames()

	check := ctx.Checkpoint(types.CheckCancelEveryN)
	var records []types.HighlightRecord
	var pending []types.HighlightRecord
	delivered := ctx.Window.Start

	for {
		if err := check.Step(); err != nil {
			return nil, err
		}
		match := matches.Next()
		if match == nil {
			break
		}
		for _, c := range match.Captures {
			name := captureNames[c.Index]
			// Sub-captures like function.name feed the semantic pass, not
			// the highlight stream.
			if strings.Contains(name, ".") {
				continue
			}
			nodeRange := types.TextRange{
				Start: int(c.Node.StartByte()),
				End:   int(c.Node.EndByte()),
			}
			rng := nodeRange.Intersect(ctx.Window)
			if rng.Empty() {
				continue
			}
			rec := types.HighlightRecord{
				Kind:     types.KindSyntax,
				Range:    rng,
				Severity: types.SeverityInfo,
				Rule:     name,
			}
			records = append(records, rec)
			pending = append(pending, rec)

			if len(pending) >= syntaxChunkSize && rng.Start > delivered {
				// Matches arrive in document order, so everything before
				// this node's start is complete.
				ctx.Deliver(pending, types.TextRange{Start: delivered, End: rng.Start})
				delivered = rng.Start
				pending = nil
			}
		}
	}
	return records, nil
}
