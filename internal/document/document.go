// Package document tracks the mutable text buffers the daemon analyses.
// The daemon never owns document content; it observes edits, keeps a content
// stamp per document, and hands immutable snapshots to passes.
package document

import (
	"fmt"
	"sync"

	"github.com/cespare/xxhash/v2"
	"go.lsp.dev/uri"

	laderrors "github.com/standardbeagle/lad/internal/errors"
	"github.com/standardbeagle/lad/internal/types"
)

// Document is one tracked text buffer. All mutation goes through the manager
// so change listeners observe every edit.
type Document struct {
	id  types.DocumentID
	uri uri.URI

	mu      sync.RWMutex
	text    string
	stamp   uint64
	version int
	closed  bool
}

// ID returns the stable identity assigned at open time.
func (d *Document) ID() types.DocumentID {
	return d.id
}

// URI returns the document's resource identifier.
func (d *Document) URI() uri.URI {
	return d.uri
}

// Stamp returns the xxhash content stamp of the current text. Two documents
// with equal stamps are treated as unmodified for scheduling purposes.
func (d *Document) Stamp() uint64 {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.stamp
}

// Version returns the edit counter, incremented on every replacement.
func (d *Document) Version() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.version
}

// Len returns the current text length in bytes.
func (d *Document) Len() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.text)
}

// Closed reports whether the document was removed from the manager.
func (d *Document) Closed() bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.closed
}

// Snapshot returns an immutable view of the document for a pass to analyze.
func (d *Document) Snapshot() *Snapshot {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return &Snapshot{
		ID:      d.id,
		URI:     d.uri,
		Text:    d.text,
		Stamp:   d.stamp,
		Version: d.version,
	}
}

// Snapshot is a point-in-time copy of a document. Passes receive snapshots,
// never live documents, so a concurrent edit cannot shift offsets under an
// executing pass.
type Snapshot struct {
	ID      types.DocumentID
	URI     uri.URI
	Text    string
	Stamp   uint64
	Version int

	lineOnce   sync.Once
	lineStarts []int
}

// FullRange returns the range covering the whole snapshot.
func (s *Snapshot) FullRange() types.TextRange {
	return types.TextRange{Start: 0, End: len(s.Text)}
}

// Slice returns the text inside rng, clipped to the snapshot bounds.
func (s *Snapshot) Slice(rng types.TextRange) string {
	rng = rng.Clip(s.FullRange())
	if rng.Empty() {
		return ""
	}
	return s.Text[rng.Start:rng.End]
}

// LineStarts returns the byte offsets at which each line begins, computed
// lazily and cached on the snapshot.
func (s *Snapshot) LineStarts() []int {
	s.lineOnce.Do(func() {
		starts := []int{0}
		for i := 0; i < len(s.Text); i++ {
			if s.Text[i] == '\n' {
				starts = append(starts, i+1)
			}
		}
		s.lineStarts = starts
	})
	return s.lineStarts
}

// PositionFor converts a byte offset to zero-based line/column.
func (s *Snapshot) PositionFor(offset int) (line, col int) {
	starts := s.LineStarts()
	if offset < 0 {
		offset = 0
	}
	if offset > len(s.Text) {
		offset = len(s.Text)
	}
	// Binary search for the containing line
	lo, hi := 0, len(starts)-1
	for lo < hi {
		mid := (lo + hi + 1) / 2
		if starts[mid] <= offset {
			lo = mid
		} else {
			hi = mid - 1
		}
	}
	return lo, offset - starts[lo]
}

// ChangeListener observes document mutations.
type ChangeListener func(ev types.ChangeEvent)

// Manager owns the set of tracked documents and assigns identities.
type Manager struct {
	mu        sync.RWMutex
	nextID    types.DocumentID
	byID      map[types.DocumentID]*Document
	byURI     map[uri.URI]types.DocumentID
	listeners []ChangeListener

	maxSize int64
}

// NewManager creates an empty document manager. maxSize bounds accepted
// document content; larger opens are rejected.
func NewManager(maxSize int64) *Manager {
	if maxSize <= 0 {
		maxSize = types.DefaultMaxDocumentSize
	}
	return &Manager{
		nextID:  1,
		byID:    make(map[types.DocumentID]*Document),
		byURI:   make(map[uri.URI]types.DocumentID),
		maxSize: maxSize,
	}
}

// AddChangeListener registers a callback invoked after every edit. Listeners
// run on the mutating goroutine and must be fast.
func (m *Manager) AddChangeListener(l ChangeListener) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listeners = append(m.listeners, l)
}

// Open starts tracking a document. Re-opening an already tracked URI replaces
// its content (an external full reload).
func (m *Manager) Open(u uri.URI, text string) (*Document, error) {
	if int64(len(text)) > m.maxSize {
		return nil, laderrors.NewDocumentError("open", string(u),
			fmt.Errorf("document of %d bytes exceeds limit %d", len(text), m.maxSize))
	}

	m.mu.Lock()
	if id, ok := m.byURI[u]; ok {
		doc := m.byID[id]
		m.mu.Unlock()
		doc.mu.Lock()
		doc.text = text
		doc.stamp = xxhash.Sum64String(text)
		doc.version++
		doc.mu.Unlock()
		m.notify(types.ChangeEvent{Doc: id, Range: types.TextRange{Start: 0, End: len(text)}, NewLen: len(text), Reason: "reopen"})
		return doc, nil
	}

	id := m.nextID
	m.nextID++
	doc := &Document{
		id:    id,
		uri:   u,
		text:  text,
		stamp: xxhash.Sum64String(text),
	}
	m.byID[id] = doc
	m.byURI[u] = id
	m.mu.Unlock()
	return doc, nil
}

// Get returns the document by ID, or nil when unknown or closed.
func (m *Manager) Get(id types.DocumentID) *Document {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.byID[id]
}

// Lookup returns the document tracked under the URI, or nil.
func (m *Manager) Lookup(u uri.URI) *Document {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if id, ok := m.byURI[u]; ok {
		return m.byID[id]
	}
	return nil
}

// All returns a snapshot of the tracked documents.
func (m *Manager) All() []*Document {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*Document, 0, len(m.byID))
	for _, d := range m.byID {
		out = append(out, d)
	}
	return out
}

// Replace applies one edit: the text inside rng is replaced by newText.
// Listeners receive the damaged region: the replacement result for a
// same-length edit, widened to the end of the new text when the edit changes
// the document length, since every offset past the splice point shifts.
func (m *Manager) Replace(id types.DocumentID, rng types.TextRange, newText string) error {
	m.mu.RLock()
	doc := m.byID[id]
	m.mu.RUnlock()
	if doc == nil {
		return laderrors.NewDocumentError("replace", fmt.Sprintf("document %d", id),
			fmt.Errorf("unknown document"))
	}

	doc.mu.Lock()
	if doc.closed {
		doc.mu.Unlock()
		return nil // edits to closed documents are dropped, not errors
	}
	full := types.TextRange{Start: 0, End: len(doc.text)}
	rng = rng.Clip(full)
	updated := doc.text[:rng.Start] + newText + doc.text[rng.End:]
	if int64(len(updated)) > m.maxSize {
		doc.mu.Unlock()
		return laderrors.NewDocumentError("replace", string(doc.uri),
			fmt.Errorf("document of %d bytes exceeds limit %d", len(updated), m.maxSize))
	}
	doc.text = updated
	doc.stamp = xxhash.Sum64String(updated)
	doc.version++
	doc.mu.Unlock()

	changed := types.TextRange{Start: rng.Start, End: rng.Start + len(newText)}
	if len(newText) != rng.Len() {
		changed.End = len(updated)
		if changed.Empty() && len(updated) > 0 {
			// Deletion at the tail: keep one byte of damage so the edit
			// still schedules re-analysis.
			changed.Start = len(updated) - 1
		}
	}
	m.notify(types.ChangeEvent{Doc: id, Range: changed, NewLen: len(updated), Reason: "edit"})
	return nil
}

// Close stops tracking the document. Later operations against the ID are
// no-ops.
func (m *Manager) Close(id types.DocumentID) {
	m.mu.Lock()
	doc := m.byID[id]
	if doc != nil {
		delete(m.byID, id)
		delete(m.byURI, doc.uri)
	}
	m.mu.Unlock()

	if doc != nil {
		doc.mu.Lock()
		doc.closed = true
		doc.mu.Unlock()
	}
}

func (m *Manager) notify(ev types.ChangeEvent) {
	m.mu.RLock()
	listeners := make([]ChangeListener, len(m.listeners))
	copy(listeners, m.listeners)
	m.mu.RUnlock()
	for _, l := range listeners {
		l(ev)
	}
}
