// Package daemon is the incremental analysis scheduler: it watches document
// edits, keeps the dirty map current, and coalesces edit bursts into one
// debounced scheduling cycle executed by the pass executor. One daemon owns
// one project's documents.
package daemon

import (
	"fmt"
	"sync"
	"time"

	"go.lsp.dev/uri"

	"github.com/standardbeagle/lad/internal/apply"
	"github.com/standardbeagle/lad/internal/config"
	"github.com/standardbeagle/lad/internal/debug"
	"github.com/standardbeagle/lad/internal/dirty"
	"github.com/standardbeagle/lad/internal/document"
	"github.com/standardbeagle/lad/internal/executor"
	"github.com/standardbeagle/lad/internal/metrics"
	"github.com/standardbeagle/lad/internal/passes"
	"github.com/standardbeagle/lad/internal/progress"
	"github.com/standardbeagle/lad/internal/types"
)

// Listener observes daemon lifecycle events. Callbacks run on daemon
// goroutines and must be fast.
type Listener struct {
	// RunStarted fires when a scheduling cycle is submitted.
	RunStarted func(gen types.Generation, docs int)

	// RunFinished fires when a cycle drains, canceled or not.
	RunFinished func(gen types.Generation, canceled bool)

	// RunCanceled fires when a live cycle is stopped, with the reason.
	RunCanceled func(gen types.Generation, reason string)

	// EverythingFinished fires only when a cycle completed un-canceled and
	// every registered kind is clean for every target document.
	EverythingFinished func(gen types.Generation)
}

// Daemon wires the document manager, dirty map, pass registry, executor and
// gate into the restart state machine.
type Daemon struct {
	cfg      *config.Config
	docs     *document.Manager
	dirtyMap *dirty.Map
	registry *passes.Registry
	source   *progress.Source
	gate     *apply.Gate
	exec     *executor.Service
	stats    *metrics.RunStats

	mu            sync.Mutex
	timer         *time.Timer
	delay         time.Duration
	disableCount  int
	updateByTimer bool
	disposed      bool
	lastStamp     map[types.DocumentID]uint64
	listeners     []Listener
}

// New builds a daemon from validated configuration and a populated registry.
// dispatcher is the host UI-thread abstraction; nil falls back to the
// synchronous dispatcher used by the CLI and tests.
func New(cfg *config.Config, registry *passes.Registry, dispatcher apply.Dispatcher) *Daemon {
	kinds := registry.Kinds()
	d := &Daemon{
		cfg:           cfg,
		docs:          document.NewManager(cfg.Daemon.MaxDocumentSize),
		dirtyMap:      dirty.NewMap(kinds),
		registry:      registry,
		source:        progress.NewSource(),
		gate:          apply.NewGate(apply.NewModel(), dispatcher),
		stats:         metrics.NewRunStats(),
		delay:         time.Duration(cfg.Daemon.AutoReparseDelayMs) * time.Millisecond,
		updateByTimer: cfg.Daemon.UpdateByTimer,
		lastStamp:     make(map[types.DocumentID]uint64),
	}
	workers := cfg.Daemon.Workers
	if workers <= 0 {
		workers = config.SmartWorkerCount()
	}
	d.exec = executor.NewService(d.dirtyMap, d.gate, d.stats, workers)
	d.exec.SetOnRunFinished(d.onRunFinished)
	d.exec.SetRestartHook(func(reason string) { d.scheduleRestart(reason) })
	d.docs.AddChangeListener(d.onDocumentChange)
	return d
}

// Documents returns the document manager for this daemon.
func (d *Daemon) Documents() *document.Manager { return d.docs }

// DirtyMap returns the shared dirty bookkeeping (read-mostly for callers).
func (d *Daemon) DirtyMap() *dirty.Map { return d.dirtyMap }

// Model returns the visible highlight model.
func (d *Daemon) Model() *apply.Model { return d.gate.Model() }

// Executor returns the pass executor, used by tests and status surfaces.
func (d *Daemon) Executor() *executor.Service { return d.exec }

// Registry returns the pass registry.
func (d *Daemon) Registry() *passes.Registry { return d.registry }

// Stats returns the scheduling counters.
func (d *Daemon) Stats() *metrics.RunStats { return d.stats }

// AddListener registers lifecycle callbacks.
func (d *Daemon) AddListener(l Listener) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.listeners = append(d.listeners, l)
}

// OpenDocument starts tracking a document, marks it fully dirty, and arms a
// debounced run.
func (d *Daemon) OpenDocument(u uri.URI, text string) (*document.Document, error) {
	if d.isDisposed() {
		return nil, fmt.Errorf("daemon disposed")
	}
	doc, err := d.docs.Open(u, text)
	if err != nil {
		return nil, err
	}
	d.MarkFileScopeDirty(doc.ID(), doc.Snapshot().FullRange(), "document opened")
	d.StopProcess(true, "document opened")
	return doc, nil
}

// CloseDocument stops tracking a document. Its dirty bookkeeping becomes
// tombstoned and its highlights leave the visible model.
func (d *Daemon) CloseDocument(id types.DocumentID) {
	if d.isDisposed() {
		return
	}
	d.docs.Close(id)
	d.dirtyMap.DisposeDocument(id)
	d.gate.DropDocument(id)

	d.mu.Lock()
	delete(d.lastStamp, id)
	d.mu.Unlock()
}

// MarkFileScopeDirty records a region as needing re-analysis for every kind.
// This is the entry point external collaborators use; reason is logged.
func (d *Daemon) MarkFileScopeDirty(doc types.DocumentID, rng types.TextRange, reason string) {
	if d.isDisposed() {
		return
	}
	debug.LogDaemon("mark dirty doc=%d %s: %s\n", doc, rng, reason)
	d.dirtyMap.MarkDirty(doc, rng, types.KindAll)
}

// MarkAllDirty marks every tracked document fully dirty, as on a settings
// change, and arms a restart.
func (d *Daemon) MarkAllDirty(reason string) {
	if d.isDisposed() {
		return
	}
	full := make(map[types.DocumentID]types.TextRange)
	for _, doc := range d.docs.All() {
		full[doc.ID()] = doc.Snapshot().FullRange()
	}
	d.dirtyMap.MarkAllDirty(full, reason)
	d.StopProcess(true, reason)
}

// onDocumentChange is the edit event consumer: drop records past a shrunken
// end, mark the damaged region dirty, then cancel-and-rearm. Bursts re-arm
// the same timer.
func (d *Daemon) onDocumentChange(ev types.ChangeEvent) {
	d.gate.TruncateDocument(ev.Doc, ev.NewLen)
	d.MarkFileScopeDirty(ev.Doc, ev.Range, ev.Reason)
	d.StopProcess(true, "document changed: "+ev.Reason)
}

// StopProcess cancels the live run and, when restart is requested and
// automatic updates are allowed, arms the debounce timer. Every stop carries
// a human-readable reason.
func (d *Daemon) StopProcess(restart bool, reason string) {
	if d.isDisposed() {
		return
	}
	if run := d.exec.Current(); run != nil && !run.Token.IsCanceled() {
		d.notify(func(l Listener) {
			if l.RunCanceled != nil {
				l.RunCanceled(run.Generation(), reason)
			}
		})
	}
	d.exec.CancelAll(false, reason)
	if restart {
		d.scheduleRestart(reason)
	}
}

// RestartNow is the urgent path: it bypasses the debounce delay and submits
// immediately. Honored even while update-by-timer is disabled.
func (d *Daemon) RestartNow(reason string) {
	if d.isDisposed() {
		return
	}
	d.mu.Lock()
	d.stopTimerLocked()
	d.mu.Unlock()

	d.exec.CancelAll(false, reason)
	d.submitRun(reason)
}

// scheduleRestart arms (or re-arms) the debounce timer. Suppressed while
// updates are disabled; the dirty state survives and a later re-enable picks
// it up.
func (d *Daemon) scheduleRestart(reason string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.disposed || !d.updateByTimer || d.disableCount > 0 {
		debug.LogDaemon("restart suppressed (%s): disabled=%d updateByTimer=%v\n",
			reason, d.disableCount, d.updateByTimer)
		return
	}
	d.stopTimerLocked()
	d.timer = time.AfterFunc(d.delay, func() { d.timerFired(reason) })
	d.stats.RestartQueued()
	debug.LogDaemon("restart armed in %v: %s\n", d.delay, reason)
}

func (d *Daemon) stopTimerLocked() {
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
}

func (d *Daemon) timerFired(reason string) {
	d.mu.Lock()
	if d.disposed || !d.updateByTimer || d.disableCount > 0 {
		d.timer = nil
		d.mu.Unlock()
		return
	}
	fired := d.timer
	d.mu.Unlock()

	d.submitRun(reason)

	// Clear only our own timer; a re-arm during submit stays pending.
	d.mu.Lock()
	if d.timer == fired {
		d.timer = nil
	}
	d.mu.Unlock()
}

// submitRun builds the pass order, gathers the dirty targets, and hands one
// ScheduledRun to the executor. A graph configuration error aborts the cycle
// without submitting anything.
func (d *Daemon) submitRun(reason string) {
	order, err := d.registry.BuildOrder()
	if err != nil {
		debug.CatastrophicError("pass graph rejected, run aborted: %v\n", err)
		return
	}

	var snaps []*document.Snapshot
	for _, id := range d.dirtyMap.DirtyDocuments() {
		doc := d.docs.Get(id)
		if doc == nil || doc.Closed() {
			continue
		}
		snap := doc.Snapshot()

		// Unchanged content whose last cycle finished clean still has valid
		// results in the visible model; re-marking it dirty (settings
		// toggles, watcher resync) must not burn the worker pool.
		d.mu.Lock()
		stamp, analyzed := d.lastStamp[id]
		d.mu.Unlock()
		if analyzed && stamp == snap.Stamp {
			for _, kind := range d.registry.Kinds() {
				d.dirtyMap.MarkClean(id, snap.FullRange(), kind)
			}
			debug.LogDaemon("skipping unmodified doc %d (stamp match)\n", id)
			continue
		}
		snaps = append(snaps, snap)
	}
	if len(snaps) == 0 {
		debug.LogDaemon("nothing dirty, no run submitted: %s\n", reason)
		return
	}

	token := d.source.Next(reason)
	d.exec.Submit(token, snaps, order)
	d.notify(func(l Listener) {
		if l.RunStarted != nil {
			l.RunStarted(token.Generation(), len(snaps))
		}
	})
}

// onRunFinished records stamps for completed documents and publishes the
// finish events.
func (d *Daemon) onRunFinished(run *executor.Run, canceled bool) {
	allClean := true
	if !canceled {
		d.mu.Lock()
		for _, snap := range run.Docs {
			if d.dirtyMap.AllClean(snap.ID) {
				d.lastStamp[snap.ID] = snap.Stamp
			} else {
				allClean = false
			}
		}
		d.mu.Unlock()
	}

	d.notify(func(l Listener) {
		if l.RunFinished != nil {
			l.RunFinished(run.Generation(), canceled)
		}
	})
	if !canceled && allClean {
		d.notify(func(l Listener) {
			if l.EverythingFinished != nil {
				l.EverythingFinished(run.Generation())
			}
		})
	}
}

// DisableUpdateByTimer suppresses automatic debounced restarts. Calls nest;
// each one must be balanced by ReenableUpdateByTimer.
func (d *Daemon) DisableUpdateByTimer(reason string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.disableCount++
	d.stopTimerLocked()
	debug.LogDaemon("update-by-timer disabled (%d): %s\n", d.disableCount, reason)
}

// ReenableUpdateByTimer balances one DisableUpdateByTimer. Dropping to zero
// with dirty documents restarts immediately. Unbalanced calls are a caller
// bug and are logged loudly rather than panicking the daemon.
func (d *Daemon) ReenableUpdateByTimer() {
	d.mu.Lock()
	if d.disableCount == 0 {
		d.mu.Unlock()
		debug.CatastrophicError("unbalanced ReenableUpdateByTimer\n")
		return
	}
	d.disableCount--
	restart := d.disableCount == 0 && !d.disposed
	d.mu.Unlock()

	if restart && len(d.dirtyMap.DirtyDocuments()) > 0 {
		d.RestartNow("update re-enabled with dirty documents")
	}
}

// SetUpdateByTimer flips the automatic-restart setting. Enabling with dirty
// state arms a run.
func (d *Daemon) SetUpdateByTimer(enabled bool) {
	d.mu.Lock()
	d.updateByTimer = enabled
	if !enabled {
		d.stopTimerLocked()
	}
	d.mu.Unlock()

	if enabled && len(d.dirtyMap.DirtyDocuments()) > 0 {
		d.scheduleRestart("update-by-timer enabled")
	}
}

// UpdateByTimerEnabled reports the effective automatic-restart state.
func (d *Daemon) UpdateByTimerEnabled() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.updateByTimer && d.disableCount == 0
}

// WaitForIdle blocks until no timer is armed, the current run drained, and
// all applications flushed. Test and one-shot use only.
func (d *Daemon) WaitForIdle(timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for {
		d.mu.Lock()
		pending := d.timer != nil
		d.mu.Unlock()
		if !pending {
			break
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("restart timer still armed after %v", timeout)
		}
		time.Sleep(2 * time.Millisecond)
	}
	remaining := time.Until(deadline)
	if remaining <= 0 {
		remaining = time.Millisecond
	}
	return d.exec.WaitFor(remaining)
}

// Dispose shuts the daemon down. One-way: every later operation is a no-op.
func (d *Daemon) Dispose() {
	d.mu.Lock()
	if d.disposed {
		d.mu.Unlock()
		return
	}
	d.disposed = true
	d.stopTimerLocked()
	d.mu.Unlock()

	d.exec.Shutdown("daemon disposed")
	d.gate.Close()
	debug.LogDaemon("disposed\n")
}

func (d *Daemon) isDisposed() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.disposed
}

func (d *Daemon) notify(fn func(Listener)) {
	d.mu.Lock()
	listeners := make([]Listener, len(d.listeners))
	copy(listeners, d.listeners)
	d.mu.Unlock()
	for _, l := range listeners {
		fn(l)
	}
}
