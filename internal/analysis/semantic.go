package analysis

import (
	"fmt"
	"strings"
	"unicode"

	tree_sitter "github.com/tree-sitter/go-tree-sitter"

	laderrors "github.com/standardbeagle/lad/internal/errors"
	"github.com/standardbeagle/lad/internal/passes"
	"github.com/standardbeagle/lad/internal/types"
)

// SemanticPass extracts declared symbol names and flags naming-style
// problems. It runs after the syntax kind so a broken parse never produces
// half-baked symbol highlights on top of stale tokens.
type SemanticPass struct{}

// NewSemanticPass returns the symbol extraction pass.
func NewSemanticPass() *SemanticPass { return &SemanticPass{} }

func (p *SemanticPass) Kind() types.PassKind { return types.KindSemantic }

func (p *SemanticPass) Collect(ctx *passes.Context) ([]types.HighlightRecord, error) {
	if err := ctx.CheckCanceled(); err != nil {
		return nil, err
	}
	entry := languageFor(ctx.Snapshot.URI)
	if entry == nil {
		return nil, nil
	}

	parser := tree_sitter.NewParser()
	defer parser.Close()
	if err := parser.SetLanguage(entry.language); err != nil {
		return nil, laderrors.NewPassExecutionError(types.KindSemantic, err)
	}

	buf := []byte(ctx.Snapshot.Text)
	content := make([]byte, len(buf))
	copy(content, buf)

	tree := parser.Parse(content, nil)
	if tree == nil {
		return nil, laderrors.NewPassExecutionError(types.KindSemantic,
			fmt.Errorf("parse produced no tree for %s", ctx.Snapshot.URI))
	}
	defer tree.Close()

	qc := tree_sitter.NewQueryCursor()
	defer qc.Close()
	matches := qc.Matches(entry.query, tree.RootNode(), content)
	captureNames := entry.query.CaptureNames()

	check := ctx.Checkpoint(types.CheckCancelEveryN)
	var records []types.HighlightRecord

	for {
		if err := check.Step(); err != nil {
			return nil, err
		}
		match := matches.Next()
		if match == nil {
			break
		}
		for _, c := range match.Captures {
			capture := captureNames[c.Index]
			if !strings.HasSuffix(capture, ".name") {
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
			name := string(content[nodeRange.Start:nodeRange.End])
			role := strings.TrimSuffix(capture, ".name")

			records = append(records, types.HighlightRecord{
				Kind:     types.KindSemantic,
				Range:    rng,
				Severity: types.SeverityInfo,
				Rule:     "symbol." + role,
				Message:  name,
			})
			if hint := namingHint(name); hint != "" {
				records = append(records, types.HighlightRecord{
					Kind:     types.KindSemantic,
					Range:    rng,
					Severity: types.SeverityHint,
					Rule:     "naming-style",
					Message:  hint,
				})
			}
		}
	}
	return records, nil
}

// separator flags found by the first pass over a name.
type separatorSet uint8

const (
	sepUnderscore separatorSet = 1 << iota
	sepHyphen
	sepCamel
)

// detectSeparators classifies which word-boundary styles a name mixes.
func detectSeparators(name string) separatorSet {
	var seps separatorSet
	runes := []rune(name)
	for i, ch := range runes {
		switch ch {
		case '_':
			seps |= sepUnderscore
		case '-':
			seps |= sepHyphen
		}
		if i > 0 && unicode.IsUpper(ch) && unicode.IsLower(runes[i-1]) {
			seps |= sepCamel
		}
	}
	return seps
}

// splitName breaks a symbol name into its constituent words, handling
// snake_case, kebab-case, camelCase and PascalCase in one pass.
func splitName(name string) []string {
	var words []string
	var cur strings.Builder
	flush := func() {
		if cur.Len() > 0 {
			words = append(words, cur.String())
			cur.Reset()
		}
	}
	runes := []rune(name)
	for i, ch := range runes {
		switch {
		case ch == '_' || ch == '-' || ch == '.':
			flush()
		case unicode.IsUpper(ch) && i > 0 && unicode.IsLower(runes[i-1]):
			flush()
			cur.WriteRune(unicode.ToLower(ch))
		default:
			cur.WriteRune(unicode.ToLower(ch))
		}
	}
	flush()
	return words
}

// namingHint returns a human-readable style complaint, or "" when the name
// is consistent.
func namingHint(name string) string {
	seps := detectSeparators(name)
	switch {
	case seps&sepUnderscore != 0 && seps&sepCamel != 0:
		return fmt.Sprintf("%q mixes snake_case and camelCase", name)
	case seps&sepHyphen != 0 && seps&sepCamel != 0:
		return fmt.Sprintf("%q mixes kebab-case and camelCase", name)
	case seps&sepUnderscore != 0 && seps&sepHyphen != 0:
		return fmt.Sprintf("%q mixes snake_case and kebab-case", name)
	}
	return ""
}
