package analysis

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/hbollon/go-edlib"
	"github.com/surgebase/porter2"

	"github.com/standardbeagle/lad/internal/passes"
	"github.com/standardbeagle/lad/internal/types"
)

// todoMinWordLen filters out short tokens that would otherwise fuzzy-match
// everything.
const todoMinWordLen = 3

// TodoPass finds todo-style markers in the window text. Exact matches go
// through a stemmer so "FIXMES" still hits "fixme"; near-misses are caught
// with Jaro-Winkler similarity above the configured threshold.
type TodoPass struct {
	keywords []string // lower-cased
	stems    map[string]string
	fuzzyMin float64
}

// NewTodoPass builds the marker pass from the configured keyword list and
// fuzzy threshold.
func NewTodoPass(keywords []string, fuzzyThreshold float64) *TodoPass {
	p := &TodoPass{
		stems:    make(map[string]string, len(keywords)),
		fuzzyMin: fuzzyThreshold,
	}
	for _, kw := range keywords {
		lower := strings.ToLower(kw)
		p.keywords = append(p.keywords, lower)
		p.stems[porter2.Stem(lower)] = lower
	}
	return p
}

func (p *TodoPass) Kind() types.PassKind { return types.KindTodo }

func (p *TodoPass) Collect(ctx *passes.Context) ([]types.HighlightRecord, error) {
	if err := ctx.CheckCanceled(); err != nil {
		return nil, err
	}
	snap := ctx.Snapshot
	window := ctx.Window.Clip(snap.FullRange())
	text := snap.Slice(window)

	check := ctx.Checkpoint(types.CheckCancelEveryN)
	var records []types.HighlightRecord

	start := -1
	flush := func(end int) error {
		if start < 0 {
			return nil
		}
		word := text[start:end]
		wordStart := start
		start = -1
		if len(word) < todoMinWordLen {
			return nil
		}
		if err := check.Step(); err != nil {
			return err
		}
		keyword, fuzzy := p.match(strings.ToLower(word))
		if keyword == "" {
			return nil
		}
		rule := "todo.keyword"
		msg := fmt.Sprintf("%s marker", strings.ToUpper(keyword))
		if fuzzy {
			rule = "todo.fuzzy"
			msg = fmt.Sprintf("%q looks like a %s marker", word, strings.ToUpper(keyword))
		}
		records = append(records, types.HighlightRecord{
			Kind:     types.KindTodo,
			Range:    types.TextRange{Start: window.Start + wordStart, End: window.Start + wordStart + len(word)},
			Severity: types.SeverityInfo,
			Rule:     rule,
			Message:  msg,
		})
		return nil
	}

	for i, ch := range text {
		if unicode.IsLetter(ch) {
			if start < 0 {
				start = i
			}
			continue
		}
		if err := flush(i); err != nil {
			return nil, err
		}
	}
	if err := flush(len(text)); err != nil {
		return nil, err
	}
	return records, nil
}

// match resolves a lower-cased word to a configured keyword. The second
// return reports a fuzzy (misspelled) hit.
func (p *TodoPass) match(word string) (string, bool) {
	if kw, ok := p.stems[porter2.Stem(word)]; ok {
		return kw, false
	}
	if p.fuzzyMin <= 0 {
		return "", false
	}
	for _, kw := range p.keywords {
		if sim, err := edlib.StringsSimilarity(word, kw, edlib.JaroWinkler); err == nil && float64(sim) >= p.fuzzyMin {
			return kw, true
		}
	}
	return "", false
}
