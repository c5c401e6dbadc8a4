package executor

import (
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.lsp.dev/uri"

	"github.com/standardbeagle/lad/internal/apply"
	"github.com/standardbeagle/lad/internal/dirty"
	"github.com/standardbeagle/lad/internal/document"
	laderrors "github.com/standardbeagle/lad/internal/errors"
	"github.com/standardbeagle/lad/internal/metrics"
	"github.com/standardbeagle/lad/internal/passes"
	"github.com/standardbeagle/lad/internal/progress"
	"github.com/standardbeagle/lad/internal/types"
)

type fakePass struct {
	kind types.PassKind
	fn   func(ctx *passes.Context) ([]types.HighlightRecord, error)
}

func (p *fakePass) Kind() types.PassKind { return p.kind }
func (p *fakePass) Collect(ctx *passes.Context) ([]types.HighlightRecord, error) {
	if p.fn == nil {
		return nil, nil
	}
	return p.fn(ctx)
}

func descriptor(kind types.PassKind, fn func(ctx *passes.Context) ([]types.HighlightRecord, error), after ...types.PassKind) *passes.Descriptor {
	return &passes.Descriptor{
		Kind:      kind,
		RunsAfter: after,
		New:       func() passes.Pass { return &fakePass{kind: kind, fn: fn} },
	}
}

type harness struct {
	docs   *document.Manager
	dirty  *dirty.Map
	gate   *apply.Gate
	svc    *Service
	source *progress.Source
}

func newHarness(t *testing.T, kinds ...types.PassKind) *harness {
	t.Helper()
	if len(kinds) == 0 {
		kinds = []types.PassKind{types.KindSyntax, types.KindSemantic}
	}
	h := &harness{
		docs:   document.NewManager(0),
		dirty:  dirty.NewMap(kinds),
		gate:   apply.NewGate(apply.NewModel(), apply.SyncDispatcher{}),
		source: progress.NewSource(),
	}
	h.svc = NewService(h.dirty, h.gate, metrics.NewRunStats(), 4)
	t.Cleanup(func() {
		h.svc.Shutdown("test teardown")
		h.gate.Close()
	})
	return h
}

func (h *harness) openDoc(t *testing.T, text string) *document.Document {
	t.Helper()
	doc, err := h.docs.Open(uri.File(fmt.Sprintf("/tmp/doc-%d.go", len(h.docs.All()))), text)
	require.NoError(t, err)
	return doc
}

func (h *harness) submit(t *testing.T, docs []*document.Document, order ...*passes.Descriptor) *Run {
	t.Helper()
	snaps := make([]*document.Snapshot, len(docs))
	for i, d := range docs {
		snaps[i] = d.Snapshot()
	}
	return h.svc.Submit(h.source.Next("test restart"), snaps, order)
}

func TestService_CompletedRunMarksClean(t *testing.T) {
	h := newHarness(t)
	doc := h.openDoc(t, "package main\n")
	h.dirty.MarkDirty(doc.ID(), types.TextRange{Start: 0, End: 13}, types.KindAll)

	syntax := descriptor(types.KindSyntax, func(ctx *passes.Context) ([]types.HighlightRecord, error) {
		return []types.HighlightRecord{{Kind: types.KindSyntax, Range: ctx.Window, Rule: "token"}}, nil
	})
	semantic := descriptor(types.KindSemantic, nil, types.KindSyntax)

	h.submit(t, []*document.Document{doc}, syntax, semantic)
	require.NoError(t, h.svc.WaitFor(2*time.Second))

	assert.True(t, h.dirty.IsClean(doc.ID(), types.KindSyntax))
	assert.True(t, h.dirty.IsClean(doc.ID(), types.KindSemantic))
	assert.True(t, h.dirty.AllClean(doc.ID()))
	assert.Len(t, h.gate.Model().Snapshot(doc.ID()), 2)
}

func TestService_DependencyCompletesBeforeDependentStarts(t *testing.T) {
	h := newHarness(t)
	doc := h.openDoc(t, "0123456789012345678901234567890")
	h.dirty.MarkDirty(doc.ID(), types.TextRange{Start: 10, End: 20}, types.KindAll)

	var syntaxDone atomic.Bool
	var semanticSawSyntaxDone atomic.Bool

	syntax := descriptor(types.KindSyntax, func(ctx *passes.Context) ([]types.HighlightRecord, error) {
		time.Sleep(20 * time.Millisecond) // widen the race window
		syntaxDone.Store(true)
		return []types.HighlightRecord{{Kind: types.KindSyntax, Range: ctx.Window, Rule: "syn"}}, nil
	})
	semantic := descriptor(types.KindSemantic, func(ctx *passes.Context) ([]types.HighlightRecord, error) {
		semanticSawSyntaxDone.Store(syntaxDone.Load())
		return []types.HighlightRecord{{Kind: types.KindSemantic, Range: ctx.Window, Rule: "sem"}}, nil
	}, types.KindSyntax)

	h.submit(t, []*document.Document{doc}, syntax, semantic)
	require.NoError(t, h.svc.WaitFor(2*time.Second))

	assert.True(t, semanticSawSyntaxDone.Load(),
		"semantic must not start before syntax completed for the overlapping range")

	// Application order follows completion order: syntax's batch first.
	records := h.gate.Model().Snapshot(doc.ID())
	require.Len(t, records, 2)
}

func TestService_DisjointWindowsCarryNoEdge(t *testing.T) {
	h := newHarness(t)
	doc := h.openDoc(t, "0123456789012345678901234567890123456789")
	// Syntax dirty only at the front, semantic only at the back.
	h.dirty.MarkDirty(doc.ID(), types.TextRange{Start: 0, End: 5}, types.KindSyntax)
	h.dirty.MarkDirty(doc.ID(), types.TextRange{Start: 30, End: 40}, types.KindSemantic)

	syntaxStarted := make(chan struct{})
	release := make(chan struct{})
	syntax := descriptor(types.KindSyntax, func(ctx *passes.Context) ([]types.HighlightRecord, error) {
		close(syntaxStarted)
		<-release
		return nil, nil
	})
	semanticRan := make(chan struct{})
	semantic := descriptor(types.KindSemantic, func(ctx *passes.Context) ([]types.HighlightRecord, error) {
		close(semanticRan)
		return nil, nil
	}, types.KindSyntax)

	h.submit(t, []*document.Document{doc}, syntax, semantic)

	<-syntaxStarted
	select {
	case <-semanticRan:
		// expected: no overlap means no ordering constraint
	case <-time.After(time.Second):
		t.Fatal("semantic never ran while a disjoint syntax window was blocked")
	}
	close(release)
	require.NoError(t, h.svc.WaitFor(2*time.Second))
}

func TestService_FailingPassLeavesRangeDirty(t *testing.T) {
	h := newHarness(t)
	doc := h.openDoc(t, "hello world")
	target := types.TextRange{Start: 0, End: 5}
	h.dirty.MarkDirty(doc.ID(), target, types.KindAll)

	syntax := descriptor(types.KindSyntax, func(ctx *passes.Context) ([]types.HighlightRecord, error) {
		return nil, fmt.Errorf("analyzer blew up")
	})
	siblingRan := atomic.Bool{}
	semantic := descriptor(types.KindSemantic, func(ctx *passes.Context) ([]types.HighlightRecord, error) {
		siblingRan.Store(true)
		return nil, nil
	}, types.KindSyntax)

	run := h.submit(t, []*document.Document{doc}, syntax, semantic)
	require.NoError(t, h.svc.WaitFor(2*time.Second))

	assert.False(t, h.dirty.IsClean(doc.ID(), types.KindSyntax),
		"failed pass's range stays dirty so the next run retries it")
	assert.True(t, siblingRan.Load(), "sibling passes proceed unaffected")

	saved := h.svc.SavedErrors(run.Generation())
	require.Len(t, saved, 1)
	assert.True(t, laderrors.IsRecoverable(saved[0]))
}

func TestService_PanickingPassIsContained(t *testing.T) {
	h := newHarness(t)
	doc := h.openDoc(t, "hello")
	h.dirty.MarkDirty(doc.ID(), types.TextRange{Start: 0, End: 5}, types.KindSyntax)

	syntax := descriptor(types.KindSyntax, func(ctx *passes.Context) ([]types.HighlightRecord, error) {
		panic("boom")
	})

	run := h.submit(t, []*document.Document{doc}, syntax)
	require.NoError(t, h.svc.WaitFor(2*time.Second))

	assert.False(t, h.dirty.IsClean(doc.ID(), types.KindSyntax))
	assert.Len(t, h.svc.SavedErrors(run.Generation()), 1)
}

func TestService_CancellationAbandonsTail(t *testing.T) {
	h := newHarness(t)
	doc := h.openDoc(t, "0123456789")
	h.dirty.MarkDirty(doc.ID(), types.TextRange{Start: 0, End: 10}, types.KindSyntax)

	started := make(chan struct{})
	var once sync.Once
	syntax := descriptor(types.KindSyntax, func(ctx *passes.Context) ([]types.HighlightRecord, error) {
		once.Do(func() { close(started) })
		for {
			if err := ctx.CheckCanceled(); err != nil {
				return nil, err
			}
			time.Sleep(time.Millisecond)
		}
	})

	h.submit(t, []*document.Document{doc}, syntax)
	<-started
	h.svc.CancelAll(false, "test cancel")
	require.NoError(t, h.svc.WaitFor(2*time.Second))

	assert.False(t, h.dirty.IsClean(doc.ID(), types.KindSyntax),
		"abandoned tail stays dirty")
	assert.Empty(t, h.gate.Model().Snapshot(doc.ID()),
		"zero applications after cancel drains")
}

func TestService_ChunkDeliveredAfterCancelIsNotApplied(t *testing.T) {
	h := newHarness(t)
	doc := h.openDoc(t, "0123456789")
	h.dirty.MarkDirty(doc.ID(), types.TextRange{Start: 0, End: 10}, types.KindSyntax)

	started := make(chan struct{})
	canceled := make(chan struct{})
	syntax := descriptor(types.KindSyntax, func(ctx *passes.Context) ([]types.HighlightRecord, error) {
		close(started)
		<-canceled
		// A pass between checkpoints hands over a chunk after CancelAll
		// returned; the executor must refuse it.
		head := types.TextRange{Start: 0, End: 5}
		ctx.Deliver([]types.HighlightRecord{{Kind: types.KindSyntax, Range: head, Rule: "late"}}, head)
		return nil, ctx.CheckCanceled()
	})

	h.submit(t, []*document.Document{doc}, syntax)
	<-started
	h.svc.CancelAll(false, "test cancel")
	close(canceled)
	require.NoError(t, h.svc.WaitFor(2*time.Second))

	assert.Empty(t, h.gate.Model().Snapshot(doc.ID()),
		"zero applications after cancel returns")
	assert.False(t, h.dirty.IsClean(doc.ID(), types.KindSyntax))
}

func TestService_DeliveredChunksSurviveCancellation(t *testing.T) {
	h := newHarness(t)
	doc := h.openDoc(t, "0123456789012345678901234567890")
	h.dirty.MarkDirty(doc.ID(), types.TextRange{Start: 0, End: 30}, types.KindSyntax)

	syntax := descriptor(types.KindSyntax, func(ctx *passes.Context) ([]types.HighlightRecord, error) {
		// Hand over the first half, then observe cancellation.
		head := types.TextRange{Start: 0, End: 15}
		ctx.Deliver([]types.HighlightRecord{{Kind: types.KindSyntax, Range: head, Rule: "head"}}, head)
		ctx.Token.Cancel("simulated mid-pass edit")
		return nil, ctx.CheckCanceled()
	})

	h.submit(t, []*document.Document{doc}, syntax)
	require.NoError(t, h.svc.WaitFor(2*time.Second))

	records := h.gate.Model().Snapshot(doc.ID())
	require.Len(t, records, 1, "the delivered head chunk was applied")
	assert.Equal(t, "head", records[0].Rule)

	scope := h.dirty.DirtyScope(doc.ID(), types.KindSyntax)
	require.Len(t, scope, 1)
	assert.Equal(t, types.TextRange{Start: 15, End: 30}, scope[0],
		"completed head cleaned, abandoned tail still dirty")
}

func TestService_NewRunSupersedesOldResults(t *testing.T) {
	h := newHarness(t)
	doc := h.openDoc(t, "0123456789")
	h.dirty.MarkDirty(doc.ID(), types.TextRange{Start: 0, End: 10}, types.KindSyntax)

	oldStarted := make(chan struct{})
	holdOld := make(chan struct{})
	var first atomic.Bool
	first.Store(true)

	syntax := descriptor(types.KindSyntax, func(ctx *passes.Context) ([]types.HighlightRecord, error) {
		if first.CompareAndSwap(true, false) {
			close(oldStarted)
			<-holdOld
			// The old run tries to publish after being superseded; the
			// executor refuses because its token is canceled.
			return []types.HighlightRecord{{Kind: types.KindSyntax, Range: ctx.Window, Rule: "old"}}, nil
		}
		return []types.HighlightRecord{{Kind: types.KindSyntax, Range: ctx.Window, Rule: "new"}}, nil
	})

	h.submit(t, []*document.Document{doc}, syntax)
	<-oldStarted

	h.dirty.MarkDirty(doc.ID(), types.TextRange{Start: 0, End: 10}, types.KindSyntax)
	h.submit(t, []*document.Document{doc}, syntax)
	close(holdOld)

	require.NoError(t, h.svc.WaitFor(2*time.Second))
	time.Sleep(20 * time.Millisecond) // let the old run's goroutine finish
	h.gate.Drain()

	records := h.gate.Model().Snapshot(doc.ID())
	require.Len(t, records, 1)
	assert.Equal(t, "new", records[0].Rule,
		"no old-run result applies once the new run is current")
}

func TestService_CleanDocumentSchedulesNothing(t *testing.T) {
	h := newHarness(t)
	doc := h.openDoc(t, "clean")

	ran := atomic.Bool{}
	syntax := descriptor(types.KindSyntax, func(ctx *passes.Context) ([]types.HighlightRecord, error) {
		ran.Store(true)
		return nil, nil
	})

	run := h.submit(t, []*document.Document{doc}, syntax)
	require.NoError(t, h.svc.WaitFor(time.Second))

	assert.Zero(t, run.PassCount())
	assert.False(t, ran.Load())
}

func TestService_WaitForTimesOut(t *testing.T) {
	h := newHarness(t)
	doc := h.openDoc(t, "0123456789")
	h.dirty.MarkDirty(doc.ID(), types.TextRange{Start: 0, End: 10}, types.KindSyntax)

	release := make(chan struct{})
	syntax := descriptor(types.KindSyntax, func(ctx *passes.Context) ([]types.HighlightRecord, error) {
		<-release
		return nil, nil
	})

	h.submit(t, []*document.Document{doc}, syntax)
	err := h.svc.WaitFor(50 * time.Millisecond)
	require.Error(t, err)
	assert.True(t, laderrors.IsTimeout(err))

	close(release)
	require.NoError(t, h.svc.WaitFor(2*time.Second))
}

func TestService_RunFinishedCallback(t *testing.T) {
	h := newHarness(t)
	doc := h.openDoc(t, "0123456789")
	h.dirty.MarkDirty(doc.ID(), types.TextRange{Start: 0, End: 10}, types.KindSyntax)

	finished := make(chan bool, 1)
	h.svc.SetOnRunFinished(func(run *Run, canceled bool) {
		finished <- canceled
	})

	syntax := descriptor(types.KindSyntax, nil)
	h.submit(t, []*document.Document{doc}, syntax)

	select {
	case canceled := <-finished:
		assert.False(t, canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("run finished callback never fired")
	}
}

func TestService_CancelAllRestartInvokesHook(t *testing.T) {
	h := newHarness(t)

	hooked := make(chan string, 1)
	h.svc.SetRestartHook(func(reason string) { hooked <- reason })

	h.svc.CancelAll(true, "settings changed")
	select {
	case reason := <-hooked:
		assert.Equal(t, "settings changed", reason)
	case <-time.After(time.Second):
		t.Fatal("restart hook never fired")
	}
}
