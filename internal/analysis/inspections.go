package analysis

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/t14raptor/go-fast/ast"
	"github.com/t14raptor/go-fast/parser"

	"github.com/standardbeagle/lad/internal/passes"
	"github.com/standardbeagle/lad/internal/types"
)

// inspectionsChunkLines is how many lines are inspected between intermediate
// deliveries.
const inspectionsChunkLines = 512

// InspectionsPass runs textual lint checks on every file and AST-based
// checks on plain JavaScript. It depends on the syntax kind so inspections
// never paint over a window whose tokens are still stale.
type InspectionsPass struct {
	LongLineLimit int
}

// NewInspectionsPass returns the lint pass with the configured line-length
// threshold.
func NewInspectionsPass(longLineLimit int) *InspectionsPass {
	return &InspectionsPass{LongLineLimit: longLineLimit}
}

func (p *InspectionsPass) Kind() types.PassKind { return types.KindInspections }

func (p *InspectionsPass) Collect(ctx *passes.Context) ([]types.HighlightRecord, error) {
	records, err := p.collectLines(ctx)
	if err != nil {
		return nil, err
	}
	jsRecords, err := p.collectJavaScript(ctx)
	if err != nil {
		return nil, err
	}
	return append(records, jsRecords...), nil
}

// collectLines walks the lines overlapping the window and reports long
// lines and trailing whitespace, delivering completed chunks as it goes.
func (p *InspectionsPass) collectLines(ctx *passes.Context) ([]types.HighlightRecord, error) {
	if err := ctx.CheckCanceled(); err != nil {
		return nil, err
	}
	snap := ctx.Snapshot
	starts := snap.LineStarts()
	check := ctx.Checkpoint(types.CheckCancelEveryN)

	var records []types.HighlightRecord
	var pending []types.HighlightRecord
	delivered := ctx.Window.Start
	sinceDeliver := 0

	for i, lineStart := range starts {
		lineEnd := len(snap.Text)
		if i+1 < len(starts) {
			lineEnd = starts[i+1]
		}
		line := types.TextRange{Start: lineStart, End: lineEnd}
		if !line.Overlaps(ctx.Window) && !line.Empty() {
			continue
		}
		if lineStart >= ctx.Window.End {
			break
		}
		if err := check.Step(); err != nil {
			return nil, err
		}

		text := strings.TrimRight(snap.Text[lineStart:lineEnd], "\n")
		if p.LongLineLimit > 0 && len(text) > p.LongLineLimit {
			rng := types.TextRange{Start: lineStart + p.LongLineLimit, End: lineStart + len(text)}
			if r := rng.Intersect(ctx.Window); !r.Empty() {
				rec := types.HighlightRecord{
					Kind:     types.KindInspections,
					Range:    r,
					Severity: types.SeverityWarning,
					Rule:     "long-line",
					Message:  fmt.Sprintf("line exceeds %d characters (%d)", p.LongLineLimit, len(text)),
				}
				records = append(records, rec)
				pending = append(pending, rec)
			}
		}
		if trimmed := strings.TrimRight(text, " \t"); len(trimmed) < len(text) {
			rng := types.TextRange{Start: lineStart + len(trimmed), End: lineStart + len(text)}
			if r := rng.Intersect(ctx.Window); !r.Empty() {
				rec := types.HighlightRecord{
					Kind:     types.KindInspections,
					Range:    r,
					Severity: types.SeverityHint,
					Rule:     "trailing-whitespace",
					Message:  "trailing whitespace",
				}
				records = append(records, rec)
				pending = append(pending, rec)
			}
		}

		sinceDeliver++
		if sinceDeliver >= inspectionsChunkLines && lineStart > delivered {
			ctx.Deliver(pending, types.TextRange{Start: delivered, End: lineStart})
			delivered = lineStart
			pending = nil
			sinceDeliver = 0
		}
	}
	return records, nil
}

// collectJavaScript parses plain .js files with go-fAST and flags var
// declarations and empty function bodies. ES modules and TypeScript are out
// of the parser's reach; a parse failure simply yields no AST lints, the
// textual checks above still stand.
func (p *InspectionsPass) collectJavaScript(ctx *passes.Context) ([]types.HighlightRecord, error) {
	ext := strings.ToLower(filepath.Ext(ctx.Snapshot.URI.Filename()))
	if ext != ".js" {
		return nil, nil
	}
	if err := ctx.CheckCanceled(); err != nil {
		return nil, err
	}

	program, err := parser.ParseFile(ctx.Snapshot.Text)
	if err != nil {
		return nil, nil
	}

	var records []types.HighlightRecord
	for _, stmt := range program.Body {
		records = p.visitStatement(ctx, stmt.Stmt, records)
	}
	return records, nil
}

func (p *InspectionsPass) visitStatement(ctx *passes.Context, stmt ast.Stmt, records []types.HighlightRecord) []types.HighlightRecord {
	if stmt == nil {
		return records
	}
	switch s := stmt.(type) {
	case *ast.VariableDeclaration:
		if s.Token.String() == "var" {
			off := int(s.Idx)
			if off > 0 {
				off--
			}
			rng := types.TextRange{Start: off, End: off + len("var")}
			if r := rng.Intersect(ctx.Window); !r.Empty() {
				records = append(records, types.HighlightRecord{
					Kind:     types.KindInspections,
					Range:    r,
					Severity: types.SeverityWarning,
					Rule:     "no-var",
					Message:  "var declaration; prefer let or const",
				})
			}
		}

	case *ast.FunctionDeclaration:
		if s.Function != nil {
			if s.Function.Body != nil && len(s.Function.Body.List) == 0 && s.Function.Name != nil {
				off := int(s.Function.Function)
				if off > 0 {
					off--
				}
				rng := types.TextRange{Start: off, End: off + len("function")}
				if r := rng.Intersect(ctx.Window); !r.Empty() {
					records = append(records, types.HighlightRecord{
						Kind:     types.KindInspections,
						Range:    r,
						Severity: types.SeverityHint,
						Rule:     "empty-function",
						Message:  fmt.Sprintf("function %q has an empty body", s.Function.Name.Name),
					})
				}
			}
			if s.Function.Body != nil {
				for _, bodyStmt := range s.Function.Body.List {
					records = p.visitStatement(ctx, bodyStmt.Stmt, records)
				}
			}
		}

	case *ast.BlockStatement:
		for _, inner := range s.List {
			records = p.visitStatement(ctx, inner.Stmt, records)
		}
	}
	return records
}
