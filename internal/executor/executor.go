// Package executor runs the pass graph of one scheduling cycle over a
// bounded worker pool. It owns the ScheduledRun bookkeeping and the
// completion path: marking ranges clean and handing result batches to the
// application gate, both serialized by the gate's actor.
package executor

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/standardbeagle/lad/internal/apply"
	"github.com/standardbeagle/lad/internal/debug"
	"github.com/standardbeagle/lad/internal/dirty"
	"github.com/standardbeagle/lad/internal/document"
	laderrors "github.com/standardbeagle/lad/internal/errors"
	"github.com/standardbeagle/lad/internal/metrics"
	"github.com/standardbeagle/lad/internal/passes"
	"github.com/standardbeagle/lad/internal/progress"
	"github.com/standardbeagle/lad/internal/types"
)

// instance is one pass bound to one document window for the current run.
type instance struct {
	snap   *document.Snapshot
	desc   *passes.Descriptor
	pass   passes.Pass
	window types.TextRange

	mu         sync.Mutex
	depsLeft   int
	dependents []*instance
	scheduled  bool
}

// Run is the bookkeeping for one scheduling cycle: one token, the ordered
// pass list instantiated per target document. Created on each restart,
// discarded once every pass finished or was abandoned.
type Run struct {
	Token *progress.Token
	Docs  []*document.Snapshot

	instances []*instance
	pending   int
	mu        sync.Mutex
	done      chan struct{}
}

// Generation returns the scheduling cycle the run belongs to.
func (r *Run) Generation() types.Generation { return r.Token.Generation() }

// Done is closed once every instance finished or was abandoned.
func (r *Run) Done() <-chan struct{} { return r.done }

// PassCount returns the number of pass instances the run scheduled.
func (r *Run) PassCount() int { return len(r.instances) }

// Service executes runs with bounded parallelism. At most one run is current;
// submitting a new one cancels the previous run's token first.
type Service struct {
	dirtyMap *dirty.Map
	gate     *apply.Gate
	stats    *metrics.RunStats

	sem *semaphore.Weighted
	ctx context.Context
	stop context.CancelFunc
	wg  sync.WaitGroup

	mu      sync.Mutex
	current *Run
	saved   map[types.Generation][]error

	// onRunFinished fires after a run drains, on the goroutine of the last
	// finishing pass. Set once at wiring time.
	onRunFinished func(run *Run, canceled bool)

	// restartHook re-arms the debounced restart; set by the restart
	// scheduler so CancelAll(restart=true) works without an import cycle.
	restartHook func(reason string)
}

// NewService creates an executor over the shared dirty map and gate. workers
// caps concurrently executing passes.
func NewService(dirtyMap *dirty.Map, gate *apply.Gate, stats *metrics.RunStats, workers int) *Service {
	if workers < 1 {
		workers = types.DefaultWorkerPoolCap
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Service{
		dirtyMap: dirtyMap,
		gate:     gate,
		stats:    stats,
		sem:      semaphore.NewWeighted(int64(workers)),
		ctx:      ctx,
		stop:     cancel,
		saved:    make(map[types.Generation][]error),
	}
}

// SetOnRunFinished registers the run-drained callback.
func (s *Service) SetOnRunFinished(fn func(run *Run, canceled bool)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onRunFinished = fn
}

// SetRestartHook registers the debounced-restart trigger used by CancelAll.
func (s *Service) SetRestartHook(fn func(reason string)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.restartHook = fn
}

// Submit begins executing a run for the given token, target snapshots, and
// pass order. The previous run's token is canceled first, so its passes
// observe cancellation before this run's completion path writes to the dirty
// map. Windows are bound from the dirty map at submit time; kinds that are
// already clean for a document get no instance.
func (s *Service) Submit(token *progress.Token, docs []*document.Snapshot, order []*passes.Descriptor) *Run {
	run := &Run{
		Token: token,
		Docs:  docs,
		done:  make(chan struct{}),
	}

	s.mu.Lock()
	if prev := s.current; prev != nil {
		prev.Token.Cancel("superseded by newer run")
	}
	s.current = run
	s.mu.Unlock()

	s.buildInstances(run, order)
	if s.stats != nil {
		s.stats.RunStarted()
	}
	debug.LogPass("submitted run gen=%d with %d pass instances over %d documents\n",
		run.Generation(), len(run.instances), len(docs))

	run.mu.Lock()
	run.pending = len(run.instances)
	initial := make([]*instance, 0, len(run.instances))
	for _, inst := range run.instances {
		if inst.depsLeft == 0 {
			inst.scheduled = true
			initial = append(initial, inst)
		}
	}
	run.mu.Unlock()

	if len(run.instances) == 0 {
		s.finalize(run)
		return run
	}
	for _, inst := range initial {
		s.dispatch(run, inst)
	}
	return run
}

// buildInstances binds each ordered pass kind to each document's dirty
// window and wires dependency edges between instances on the same document
// whose windows overlap. A dependency only constrains the overlapping range:
// disjoint windows carry no edge.
func (s *Service) buildInstances(run *Run, order []*passes.Descriptor) {
	for _, snap := range run.Docs {
		byKind := make(map[types.PassKind]*instance, len(order))
		for _, desc := range order {
			if desc.New == nil {
				continue
			}
			window := s.dirtyMap.Cover(snap.ID, desc.Kind)
			if window.Empty() {
				continue
			}
			inst := &instance{
				snap:   snap,
				desc:   desc,
				pass:   desc.New(),
				window: window,
			}
			for _, depKind := range desc.RunsAfter {
				pred := byKind[depKind]
				if pred == nil || !pred.window.Overlaps(inst.window) {
					continue
				}
				inst.depsLeft++
				pred.dependents = append(pred.dependents, inst)
			}
			byKind[desc.Kind] = inst
			run.instances = append(run.instances, inst)
		}
	}
}

// dispatch hands an instance to the worker pool.
func (s *Service) dispatch(run *Run, inst *instance) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if err := s.sem.Acquire(s.ctx, 1); err != nil {
			// Process shutdown; the run is abandoned wholesale.
			s.finishInstance(run, inst)
			return
		}
		defer s.sem.Release(1)
		s.execute(run, inst)
		s.finishInstance(run, inst)
	}()
}

// execute runs one pass instance, classifying its outcome: completed, failed
// (logged, range stays dirty), or abandoned by cancellation (tail stays
// dirty, nothing past already-delivered chunks is applied).
func (s *Service) execute(run *Run, inst *instance) {
	kind := inst.desc.Kind
	token := run.Token
	if token.IsCanceled() {
		if s.stats != nil {
			s.stats.PassAbandoned(kind)
		}
		return
	}

	deliver := func(records []types.HighlightRecord, completed types.TextRange) {
		if token.IsCanceled() {
			return
		}
		completed = completed.Clip(inst.window)
		if completed.Empty() {
			return
		}
		s.submitBatch(types.ResultBatch{
			Doc:        inst.snap.ID,
			Kind:       kind,
			Range:      completed,
			Generation: token.Generation(),
			Records:    records,
		})
	}

	started := time.Now()
	ctx := passes.NewContext(inst.snap, inst.window, token, deliver)
	records, err := s.safeCollect(inst, ctx)

	switch {
	case err == nil && !token.IsCanceled():
		deliver(records, inst.window)
		if s.stats != nil {
			s.stats.PassCompleted(kind, time.Since(started))
		}
		debug.LogPass("pass %s completed for doc %d window %s\n", kind, inst.snap.ID, inst.window)

	case err == nil || laderrors.IsCancellation(err):
		// Abandoned: already-delivered chunks stay applied and clean, the
		// tail stays dirty for the next run.
		if s.stats != nil {
			s.stats.PassAbandoned(kind)
		}
		debug.LogPass("pass %s abandoned for doc %d: %v\n", kind, inst.snap.ID, err)

	default:
		passErr := laderrors.NewPassExecutionError(kind, err).WithDocument(inst.snap.ID, inst.window)
		s.saveError(token.Generation(), passErr)
		if s.stats != nil {
			s.stats.PassFailed(kind)
		}
		debug.CatastrophicError("pass %s failed for doc %d: %v\n", kind, inst.snap.ID, err)
	}
}

// safeCollect guards against panicking pass implementations; a panic is a
// pass failure, never a daemon crash.
func (s *Service) safeCollect(inst *instance, ctx *passes.Context) (records []types.HighlightRecord, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = laderrors.NewPassExecutionError(inst.desc.Kind,
				&panicError{value: r}).WithRecoverable(true)
		}
	}()
	return inst.pass.Collect(ctx)
}

type panicError struct{ value any }

func (p *panicError) Error() string { return "pass panicked" }

// submitBatch forwards a batch through the gate. Marking the covered range
// clean happens in the gate's actor, after the batch is visible, so dirty
// mutations tied to completion stay serialized with application.
func (s *Service) submitBatch(batch types.ResultBatch) {
	s.gate.Submit(batch, func(applied types.ResultBatch) {
		s.dirtyMap.MarkClean(applied.Doc, applied.Range, applied.Kind)
		if s.stats != nil {
			s.stats.BatchApplied(len(applied.Records))
		}
	})
}

// finishInstance releases dependents and finalizes the run once every
// instance is accounted for. Dependents of failed or abandoned passes still
// run: a failed predecessor produced no results, but its siblings and
// successors proceed unaffected.
func (s *Service) finishInstance(run *Run, inst *instance) {
	var newlyReady []*instance
	run.mu.Lock()
	for _, dep := range inst.dependents {
		dep.mu.Lock()
		dep.depsLeft--
		if dep.depsLeft == 0 && !dep.scheduled {
			dep.scheduled = true
			newlyReady = append(newlyReady, dep)
		}
		dep.mu.Unlock()
	}
	run.pending--
	last := run.pending == 0
	run.mu.Unlock()

	for _, dep := range newlyReady {
		s.dispatch(run, dep)
	}
	if last {
		s.finalize(run)
	}
}

func (s *Service) finalize(run *Run) {
	canceled := run.Token.IsCanceled()
	if s.stats != nil {
		s.stats.RunFinished(canceled)
	}

	s.mu.Lock()
	callback := s.onRunFinished
	s.mu.Unlock()

	close(run.done)
	if callback != nil {
		callback(run, canceled)
	}
	debug.LogPass("run gen=%d drained (canceled=%v)\n", run.Generation(), canceled)
}

// CancelAll cancels the active run's token. With restart=true the registered
// restart hook re-arms a debounced run; this is the path every edit takes.
func (s *Service) CancelAll(restart bool, reason string) {
	s.mu.Lock()
	run := s.current
	hook := s.restartHook
	s.mu.Unlock()

	if run != nil {
		run.Token.Cancel(reason)
	}
	if restart && hook != nil {
		hook(reason)
	}
}

// Current returns the live run, or nil before the first submit.
func (s *Service) Current() *Run {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

// WaitFor blocks until the current run drains and its applications flush, or
// the bound elapses. Test and diagnostic use only; the daemon never blocks
// on pass execution.
func (s *Service) WaitFor(timeout time.Duration) error {
	s.mu.Lock()
	run := s.current
	s.mu.Unlock()

	if run != nil {
		select {
		case <-run.done:
		case <-time.After(timeout):
			return laderrors.NewTimeoutError("pass executor", timeout)
		}
	}
	s.gate.Drain()
	return nil
}

// SavedErrors returns the pass failures recorded for a generation.
func (s *Service) SavedErrors(gen types.Generation) []error {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]error, len(s.saved[gen]))
	copy(out, s.saved[gen])
	return out
}

func (s *Service) saveError(gen types.Generation, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.saved[gen] = append(s.saved[gen], err)

	// Old generations never report again; keep only the newest few.
	for g := range s.saved {
		if g+8 < gen {
			delete(s.saved, g)
		}
	}
}

// Shutdown cancels the active run and waits for workers to drain.
func (s *Service) Shutdown(reason string) {
	s.CancelAll(false, reason)
	s.stop()
	s.wg.Wait()
}
