package apply

import (
	"sync"

	"github.com/standardbeagle/lad/internal/debug"
	"github.com/standardbeagle/lad/internal/types"
)

// Dispatcher is the host's single UI-thread abstraction. The gate's actor
// hands every model mutation to it; the daemon never implements the real
// one. Invoke must run fn exactly once and may block until it ran.
type Dispatcher interface {
	Invoke(fn func())
}

// SyncDispatcher runs work inline on the calling goroutine. The CLI, the MCP
// server, and tests use it; an embedding editor injects its own.
type SyncDispatcher struct{}

func (SyncDispatcher) Invoke(fn func()) { fn() }

// item is one queued application: the batch plus the completion hook the
// executor uses to mark the covered range clean.
type item struct {
	batch     types.ResultBatch
	onApplied func(batch types.ResultBatch)
	barrier   chan struct{} // non-nil for Drain sentinels
	truncate  bool          // batch.Range.End carries the new document length
}

// Gate serializes result application. Batches from concurrently finishing
// passes queue here and a single actor goroutine applies them in arrival
// (completion) order, never submission order. Duplicate batches and batches
// from superseded generations are dropped.
type Gate struct {
	dispatcher Dispatcher
	model      *Model

	in chan item
	wg sync.WaitGroup

	mu        sync.Mutex
	seen      map[types.BatchKey]struct{}
	newestGen map[types.DocumentID]types.Generation
	closed    bool
}

// queueDepth bounds the in-flight batch queue. Passes block on a full queue,
// which back-pressures the worker pool instead of growing memory.
const queueDepth = 128

// NewGate starts the apply actor over the given model and dispatcher.
func NewGate(model *Model, dispatcher Dispatcher) *Gate {
	if model == nil {
		model = NewModel()
	}
	if dispatcher == nil {
		dispatcher = SyncDispatcher{}
	}
	g := &Gate{
		dispatcher: dispatcher,
		model:      model,
		in:         make(chan item, queueDepth),
		seen:       make(map[types.BatchKey]struct{}),
		newestGen:  make(map[types.DocumentID]types.Generation),
	}
	g.wg.Add(1)
	go g.run()
	return g
}

// Model returns the visible model the gate applies to.
func (g *Gate) Model() *Model {
	return g.model
}

// Submit queues one batch. onApplied runs on the actor after the batch is
// visible, and is skipped when the batch is deduplicated or stale. Submit
// after Close is a no-op.
func (g *Gate) Submit(batch types.ResultBatch, onApplied func(batch types.ResultBatch)) {
	g.mu.Lock()
	if g.closed {
		g.mu.Unlock()
		return
	}
	g.mu.Unlock()
	g.in <- item{batch: batch, onApplied: onApplied}
}

// Drain blocks until every batch queued before the call has been applied.
func (g *Gate) Drain() {
	g.mu.Lock()
	if g.closed {
		g.mu.Unlock()
		return
	}
	g.mu.Unlock()

	barrier := make(chan struct{})
	g.in <- item{barrier: barrier}
	<-barrier
}

// DropDocument removes a closed document's records from the visible model,
// serialized like any other mutation. The wildcard kind marks the sentinel;
// it is never a real pass kind.
func (g *Gate) DropDocument(doc types.DocumentID) {
	g.Submit(types.ResultBatch{Doc: doc, Kind: types.KindAll}, nil)
}

// TruncateDocument drops visible records lying past the new end of a
// shrunken document, serialized like any other mutation. A no-op for grown
// documents.
func (g *Gate) TruncateDocument(doc types.DocumentID, length int) {
	g.mu.Lock()
	if g.closed {
		g.mu.Unlock()
		return
	}
	g.mu.Unlock()
	g.in <- item{
		batch:    types.ResultBatch{Doc: doc, Kind: types.KindAll, Range: types.TextRange{Start: 0, End: length}},
		truncate: true,
	}
}

// Close stops the actor after the queue drains. The gate cannot be reused.
func (g *Gate) Close() {
	g.mu.Lock()
	if g.closed {
		g.mu.Unlock()
		return
	}
	g.closed = true
	g.mu.Unlock()

	close(g.in)
	g.wg.Wait()
}

func (g *Gate) run() {
	defer g.wg.Done()
	for it := range g.in {
		if it.barrier != nil {
			close(it.barrier)
			continue
		}
		g.applyOne(it)
	}
}

// applyOne enforces the gate invariants and forwards the model mutation to
// the dispatcher. Running on the single actor goroutine guarantees no two
// batches for overlapping ranges ever apply concurrently.
func (g *Gate) applyOne(it item) {
	batch := it.batch

	if it.truncate {
		g.dispatcher.Invoke(func() { g.model.truncate(batch.Doc, batch.Range.End) })
		return
	}

	// Document-drop sentinel (KindAll is never a real pass kind).
	if batch.Kind == types.KindAll {
		g.dispatcher.Invoke(func() { g.model.drop(batch.Doc) })
		return
	}

	key := batch.Key()
	g.mu.Lock()
	if _, dup := g.seen[key]; dup {
		g.mu.Unlock()
		debug.LogApply("dropped duplicate batch %s %s gen=%d\n", batch.Kind, batch.Range, batch.Generation)
		return
	}
	if newest, ok := g.newestGen[batch.Doc]; ok && batch.Generation < newest {
		g.mu.Unlock()
		debug.LogApply("dropped stale batch %s %s gen=%d (newest %d)\n", batch.Kind, batch.Range, batch.Generation, newest)
		return
	}
	g.seen[key] = struct{}{}
	if batch.Generation > g.newestGen[batch.Doc] {
		g.newestGen[batch.Doc] = batch.Generation
		// Older generations can never apply again; their dedup entries
		// for this document are dead weight.
		for k := range g.seen {
			if k.Doc == batch.Doc && k.Generation < batch.Generation {
				delete(g.seen, k)
			}
		}
	}
	g.mu.Unlock()

	g.dispatcher.Invoke(func() { g.model.replace(batch) })
	if it.onApplied != nil {
		it.onApplied(batch)
	}
	debug.LogApply("applied %d records for %s %s gen=%d\n", len(batch.Records), batch.Kind, batch.Range, batch.Generation)
}
