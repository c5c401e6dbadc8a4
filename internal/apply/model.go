// Package apply owns the visible highlight model and the gate that
// serializes result application onto it. Pass results arrive concurrently;
// a single actor applies them one batch at a time, in completion order.
package apply

import (
	"sort"
	"sync"

	"github.com/standardbeagle/lad/internal/types"
)

// Model is the UI-visible highlight state, one record list per document.
// Only the gate's actor mutates it; snapshots are safe from any goroutine.
type Model struct {
	mu   sync.RWMutex
	docs map[types.DocumentID][]types.HighlightRecord
}

// NewModel creates an empty visible model.
func NewModel() *Model {
	return &Model{docs: make(map[types.DocumentID][]types.HighlightRecord)}
}

// replace merges a batch: prior records of the batch's kind lying fully
// inside the batch range are removed, records straddling the boundary stay
// untouched, then the batch records are inserted. Range-exact replacement
// only.
func (m *Model) replace(batch types.ResultBatch) {
	m.mu.Lock()
	defer m.mu.Unlock()

	existing := m.docs[batch.Doc]
	kept := make([]types.HighlightRecord, 0, len(existing)+len(batch.Records))
	for _, rec := range existing {
		if rec.Kind == batch.Kind && batch.Range.Contains(rec.Range) {
			continue
		}
		kept = append(kept, rec)
	}
	kept = append(kept, batch.Records...)
	sort.SliceStable(kept, func(i, j int) bool {
		if kept[i].Range.Start != kept[j].Range.Start {
			return kept[i].Range.Start < kept[j].Range.Start
		}
		return kept[i].Range.End < kept[j].Range.End
	})
	m.docs[batch.Doc] = kept
}

// truncate removes records extending past the new document end. After a
// shrinking edit those records point at bytes that no longer exist.
func (m *Model) truncate(doc types.DocumentID, length int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	existing := m.docs[doc]
	kept := make([]types.HighlightRecord, 0, len(existing))
	for _, rec := range existing {
		if rec.Range.End > length {
			continue
		}
		kept = append(kept, rec)
	}
	m.docs[doc] = kept
}

// drop removes every record for doc, used when a document closes.
func (m *Model) drop(doc types.DocumentID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.docs, doc)
}

// Snapshot returns a copy of the visible records for doc, sorted by range.
func (m *Model) Snapshot(doc types.DocumentID) []types.HighlightRecord {
	m.mu.RLock()
	defer m.mu.RUnlock()
	records := m.docs[doc]
	out := make([]types.HighlightRecord, len(records))
	copy(out, records)
	return out
}

// Count returns the number of visible records for doc.
func (m *Model) Count(doc types.DocumentID) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.docs[doc])
}
