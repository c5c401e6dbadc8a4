package types

import (
	"fmt"
)

// Common system-wide constants
const (
	// Scheduling defaults
	DefaultAutoReparseDelayMs = 300 // Debounce window between an edit burst and the restart
	// Rationale: long enough to coalesce a typing burst into one
	// run, short enough that results still feel immediate. Matches
	// the historical editor daemon default.

	DefaultWorkerPoolCap = 4 // Upper bound on concurrently executing passes
	// Rationale: analysis passes are CPU-bound; beyond a handful of
	// workers the apply actor becomes the bottleneck and extra
	// parallelism only adds cancellation latency.

	// Cancellation granularity
	CheckCancelEveryN = 64 // Suggested work units between CheckCanceled calls inside a pass
	// Rationale: fine enough that an edit abandons a running pass
	// within microseconds, coarse enough that the atomic load never
	// shows up in profiles.

	// Document limits
	DefaultMaxDocumentSize = 10 * 1024 * 1024 // 10MB per tracked document
	// Rationale: documents above this are generated or binary;
	// analyzing them burns the worker pool for no user benefit.
)

// DocumentID identifies a tracked document for the lifetime of the process.
// Identity is assigned by the document manager; 0 is never a valid ID.
type DocumentID uint32

// Generation is the monotonic scheduling-cycle counter. Every restart mints
// a new generation; tokens and result batches carry the generation they were
// created under so superseded work can be detected.
type Generation uint64

// PassKind is the identity of a pass category, used for dependency
// declarations and dirty-scope bookkeeping.
type PassKind string

// Built-in pass kinds. External kinds may be declared through the pass
// manifest; these four ship with the daemon.
const (
	KindSyntax      PassKind = "syntax"
	KindSemantic    PassKind = "semantic"
	KindInspections PassKind = "inspections"
	KindTodo        PassKind = "todo"

	// KindAll is the wildcard accepted by dirty-map operations that
	// apply to every registered kind. Never a real pass kind.
	KindAll PassKind = "*"
)

// TextRange is a half-open [Start,End) offset range within a document.
type TextRange struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

// NewTextRange builds a range, normalizing inverted bounds.
func NewTextRange(start, end int) TextRange {
	if end < start {
		start, end = end, start
	}
	if start < 0 {
		start = 0
	}
	if end < 0 {
		end = 0
	}
	return TextRange{Start: start, End: end}
}

// Empty reports whether the range covers no offsets.
func (r TextRange) Empty() bool {
	return r.End <= r.Start
}

// Len returns the number of offsets covered.
func (r TextRange) Len() int {
	if r.Empty() {
		return 0
	}
	return r.End - r.Start
}

// Contains reports whether other lies fully inside r.
func (r TextRange) Contains(other TextRange) bool {
	return other.Start >= r.Start && other.End <= r.End
}

// ContainsOffset reports whether the offset lies inside r.
func (r TextRange) ContainsOffset(off int) bool {
	return off >= r.Start && off < r.End
}

// Overlaps reports whether r and other share at least one offset.
func (r TextRange) Overlaps(other TextRange) bool {
	return r.Start < other.End && other.Start < r.End
}

// Touches reports whether r and other overlap or are directly adjacent.
// Adjacent ranges merge in the dirty map.
func (r TextRange) Touches(other TextRange) bool {
	return r.Start <= other.End && other.Start <= r.End
}

// Union returns the smallest range covering both r and other.
func (r TextRange) Union(other TextRange) TextRange {
	if r.Empty() {
		return other
	}
	if other.Empty() {
		return r
	}
	u := r
	if other.Start < u.Start {
		u.Start = other.Start
	}
	if other.End > u.End {
		u.End = other.End
	}
	return u
}

// Intersect returns the overlap of r and other; empty when disjoint.
func (r TextRange) Intersect(other TextRange) TextRange {
	i := TextRange{Start: max(r.Start, other.Start), End: min(r.End, other.End)}
	if i.End < i.Start {
		return TextRange{Start: i.Start, End: i.Start}
	}
	return i
}

// Clip bounds r to the given limits.
func (r TextRange) Clip(bounds TextRange) TextRange {
	return r.Intersect(bounds)
}

func (r TextRange) String() string {
	return fmt.Sprintf("[%d,%d)", r.Start, r.End)
}

// Severity classifies a highlight record for display and filtering.
type Severity uint8

const (
	SeverityInfo Severity = iota
	SeverityHint
	SeverityWarning
	SeverityError
)

func (s Severity) String() string {
	switch s {
	case SeverityInfo:
		return "info"
	case SeverityHint:
		return "hint"
	case SeverityWarning:
		return "warning"
	case SeverityError:
		return "error"
	default:
		return "unknown"
	}
}

// HighlightRecord is one unit of pass output: a classified range with an
// optional message. Syntax passes emit classification records (Rule holds
// the capture name); inspection passes emit findings with messages.
type HighlightRecord struct {
	Kind     PassKind  `json:"kind"`
	Range    TextRange `json:"range"`
	Severity Severity  `json:"severity"`
	Message  string    `json:"message,omitempty"`
	Rule     string    `json:"rule,omitempty"`
}

// ResultBatch carries one pass's output for one range to the application
// gate. Batches are deduplicated by (Doc, Kind, Range, Generation).
type ResultBatch struct {
	Doc        DocumentID        `json:"doc"`
	Kind       PassKind          `json:"kind"`
	Range      TextRange         `json:"range"`
	Generation Generation        `json:"generation"`
	Records    []HighlightRecord `json:"records"`
}

// Key returns the identity used for duplicate-delivery detection.
func (b ResultBatch) Key() BatchKey {
	return BatchKey{Doc: b.Doc, Kind: b.Kind, Range: b.Range, Generation: b.Generation}
}

// BatchKey is the comparable identity of a result batch.
type BatchKey struct {
	Doc        DocumentID
	Kind       PassKind
	Range      TextRange
	Generation Generation
}

// ChangeEvent describes one document mutation observed by the daemon.
// Range is the damaged region in post-edit offsets; NewLen is the document
// length after the edit, used to drop state past a shrunken end.
type ChangeEvent struct {
	Doc    DocumentID
	Range  TextRange
	NewLen int
	Reason string
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}

func max(a, b int) int {
	if a > b {
		return a
	}
	return b
}
