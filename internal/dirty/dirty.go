// Package dirty tracks which document regions still need analysis, per pass
// kind. Ranges are half-open byte offsets kept sorted and disjoint; marking
// overlapping or adjacent regions dirty merges them.
package dirty

import (
	"sync"

	"github.com/standardbeagle/lad/internal/debug"
	"github.com/standardbeagle/lad/internal/types"
)

// IntervalSet is a sorted set of disjoint, non-empty ranges.
type IntervalSet struct {
	ranges []types.TextRange
}

// Add inserts r, merging it with any overlapping or adjacent ranges.
// Adding an empty range is a no-op.
func (s *IntervalSet) Add(r types.TextRange) {
	if r.Empty() {
		return
	}

	out := make([]types.TextRange, 0, len(s.ranges)+1)
	merged := r
	i := 0

	// Ranges strictly before r, not even adjacent
	for ; i < len(s.ranges) && s.ranges[i].End < merged.Start; i++ {
		out = append(out, s.ranges[i])
	}

	// Absorb every range that overlaps or touches the growing merge
	for ; i < len(s.ranges) && s.ranges[i].Start <= merged.End; i++ {
		merged = merged.Union(s.ranges[i])
	}
	out = append(out, merged)

	// Ranges strictly after
	for ; i < len(s.ranges); i++ {
		out = append(out, s.ranges[i])
	}
	s.ranges = out
}

// Remove subtracts r from the set, splitting ranges that straddle it.
func (s *IntervalSet) Remove(r types.TextRange) {
	if r.Empty() || len(s.ranges) == 0 {
		return
	}

	out := make([]types.TextRange, 0, len(s.ranges)+1)
	for _, existing := range s.ranges {
		if !existing.Overlaps(r) {
			out = append(out, existing)
			continue
		}
		left := types.TextRange{Start: existing.Start, End: r.Start}
		right := types.TextRange{Start: r.End, End: existing.End}
		if !left.Empty() {
			out = append(out, left)
		}
		if !right.Empty() {
			out = append(out, right)
		}
	}
	s.ranges = out
}

// Empty reports whether the set contains no ranges.
func (s *IntervalSet) Empty() bool {
	return len(s.ranges) == 0
}

// Ranges returns a copy of the ranges in ascending order.
func (s *IntervalSet) Ranges() []types.TextRange {
	out := make([]types.TextRange, len(s.ranges))
	copy(out, s.ranges)
	return out
}

// Cover returns the smallest single range containing the whole set, or an
// empty range when the set is empty.
func (s *IntervalSet) Cover() types.TextRange {
	if len(s.ranges) == 0 {
		return types.TextRange{}
	}
	return types.TextRange{Start: s.ranges[0].Start, End: s.ranges[len(s.ranges)-1].End}
}

// Overlaps reports whether any range in the set intersects r.
func (s *IntervalSet) Overlaps(r types.TextRange) bool {
	for _, existing := range s.ranges {
		if existing.Overlaps(r) {
			return true
		}
		if existing.Start >= r.End {
			break
		}
	}
	return false
}

// Total returns the summed length of all ranges.
func (s *IntervalSet) Total() int {
	total := 0
	for _, r := range s.ranges {
		total += r.Len()
	}
	return total
}

type docScopes struct {
	byKind map[types.PassKind]*IntervalSet
}

// Map is the per-document, per-pass-kind dirty bookkeeping. Edits mark
// regions dirty; pass completion marks the covered sub-range clean. The
// executor's completion path and the restart scheduler are the only writers.
type Map struct {
	mu       sync.RWMutex
	kinds    []types.PassKind
	docs     map[types.DocumentID]*docScopes
	disposed map[types.DocumentID]bool
}

// NewMap creates a dirty map tracking the given pass kinds. Kinds registered
// later join via AddKind.
func NewMap(kinds []types.PassKind) *Map {
	m := &Map{
		docs:     make(map[types.DocumentID]*docScopes),
		disposed: make(map[types.DocumentID]bool),
	}
	for _, k := range kinds {
		m.kinds = append(m.kinds, k)
	}
	return m
}

// AddKind registers an additional pass kind. Existing documents start clean
// for it.
func (m *Map) AddKind(kind types.PassKind) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, k := range m.kinds {
		if k == kind {
			return
		}
	}
	m.kinds = append(m.kinds, kind)
}

// Kinds returns the registered pass kinds.
func (m *Map) Kinds() []types.PassKind {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]types.PassKind, len(m.kinds))
	copy(out, m.kinds)
	return out
}

// MarkDirty records rng as needing analysis for kind. KindAll marks every
// registered kind. Idempotent; overlapping and adjacent regions merge.
// Disposed documents are ignored.
func (m *Map) MarkDirty(doc types.DocumentID, rng types.TextRange, kind types.PassKind) {
	if rng.Empty() {
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.disposed[doc] {
		return
	}

	scopes := m.docs[doc]
	if scopes == nil {
		scopes = &docScopes{byKind: make(map[types.PassKind]*IntervalSet)}
		m.docs[doc] = scopes
	}

	if kind == types.KindAll {
		for _, k := range m.kinds {
			m.addLocked(scopes, k, rng)
		}
		return
	}
	m.addLocked(scopes, kind, rng)
}

func (m *Map) addLocked(scopes *docScopes, kind types.PassKind, rng types.TextRange) {
	set := scopes.byKind[kind]
	if set == nil {
		set = &IntervalSet{}
		scopes.byKind[kind] = set
	}
	set.Add(rng)
}

// MarkClean removes rng from kind's dirty set. A pass canceled mid-way clears
// only the sub-range it completed. Unknown or disposed documents are no-ops.
func (m *Map) MarkClean(doc types.DocumentID, rng types.TextRange, kind types.PassKind) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.disposed[doc] {
		return
	}
	scopes := m.docs[doc]
	if scopes == nil {
		return
	}
	if set := scopes.byKind[kind]; set != nil {
		set.Remove(rng)
	}
}

// IsClean reports whether kind has no dirty regions for doc. Untracked
// documents are clean.
func (m *Map) IsClean(doc types.DocumentID, kind types.PassKind) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	scopes := m.docs[doc]
	if scopes == nil {
		return true
	}
	set := scopes.byKind[kind]
	return set == nil || set.Empty()
}

// AllClean reports whether every registered kind is clean for doc.
func (m *Map) AllClean(doc types.DocumentID) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	scopes := m.docs[doc]
	if scopes == nil {
		return true
	}
	for _, set := range scopes.byKind {
		if set != nil && !set.Empty() {
			return false
		}
	}
	return true
}

// DirtyScope returns kind's dirty ranges for doc in ascending order. Passes
// use this read-only view to bound their analysis window.
func (m *Map) DirtyScope(doc types.DocumentID, kind types.PassKind) []types.TextRange {
	m.mu.RLock()
	defer m.mu.RUnlock()
	scopes := m.docs[doc]
	if scopes == nil {
		return nil
	}
	set := scopes.byKind[kind]
	if set == nil || set.Empty() {
		return nil
	}
	return set.Ranges()
}

// Cover returns the single bounding range of kind's dirty scope, used to
// bind a pass to one contiguous window.
func (m *Map) Cover(doc types.DocumentID, kind types.PassKind) types.TextRange {
	m.mu.RLock()
	defer m.mu.RUnlock()
	scopes := m.docs[doc]
	if scopes == nil {
		return types.TextRange{}
	}
	set := scopes.byKind[kind]
	if set == nil {
		return types.TextRange{}
	}
	return set.Cover()
}

// MarkAllDirty marks the given full-document ranges dirty for every kind.
// reason is logged for restart diagnostics.
func (m *Map) MarkAllDirty(full map[types.DocumentID]types.TextRange, reason string) {
	debug.LogDirty("mark all dirty (%d documents): %s\n", len(full), reason)
	for doc, rng := range full {
		m.MarkDirty(doc, rng, types.KindAll)
	}
}

// DisposeDocument drops all bookkeeping for doc. Later operations against it
// are no-ops, matching best-effort cleanup semantics.
func (m *Map) DisposeDocument(doc types.DocumentID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.docs, doc)
	m.disposed[doc] = true
}

// DirtyDocuments returns the IDs with at least one dirty region.
func (m *Map) DirtyDocuments() []types.DocumentID {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []types.DocumentID
	for doc, scopes := range m.docs {
		for _, set := range scopes.byKind {
			if set != nil && !set.Empty() {
				out = append(out, doc)
				break
			}
		}
	}
	return out
}

// Summary reports the dirty byte total per kind for one document, used by
// status surfaces.
func (m *Map) Summary(doc types.DocumentID) map[types.PassKind]int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[types.PassKind]int)
	scopes := m.docs[doc]
	if scopes == nil {
		return out
	}
	for kind, set := range scopes.byKind {
		if set != nil && !set.Empty() {
			out[kind] = set.Total()
		}
	}
	return out
}
