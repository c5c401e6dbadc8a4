// Package metrics tracks daemon scheduling statistics with cheap atomic
// counters. Updates happen on hot paths (pass completion, batch application),
// so there is no locking beyond the per-kind map.
package metrics

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/standardbeagle/lad/internal/types"
)

// RunStats accumulates counters across scheduling cycles.
type RunStats struct {
	runsStarted    atomic.Int64
	runsFinished   atomic.Int64
	runsCanceled   atomic.Int64
	restartsQueued atomic.Int64

	passesCompleted atomic.Int64
	passesFailed    atomic.Int64
	passesAbandoned atomic.Int64
	batchesApplied  atomic.Int64
	recordsApplied  atomic.Int64

	startTime time.Time

	kindMu  sync.Mutex
	perKind map[types.PassKind]*KindStats
}

// KindStats is the per-pass-kind completion breakdown.
type KindStats struct {
	Completed int64
	Failed    int64
	Abandoned int64
	TotalTime time.Duration
}

// NewRunStats creates a zeroed stats accumulator.
func NewRunStats() *RunStats {
	return &RunStats{
		startTime: time.Now(),
		perKind:   make(map[types.PassKind]*KindStats),
	}
}

// RunStarted records a new scheduling cycle.
func (s *RunStats) RunStarted() { s.runsStarted.Add(1) }

// RunFinished records a cycle that drained; canceled tells the two ends
// apart.
func (s *RunStats) RunFinished(canceled bool) {
	s.runsFinished.Add(1)
	if canceled {
		s.runsCanceled.Add(1)
	}
}

// RestartQueued records a debounced restart being armed.
func (s *RunStats) RestartQueued() { s.restartsQueued.Add(1) }

// PassCompleted records one pass finishing cleanly.
func (s *RunStats) PassCompleted(kind types.PassKind, took time.Duration) {
	s.passesCompleted.Add(1)
	s.kind(kind, func(k *KindStats) {
		k.Completed++
		k.TotalTime += took
	})
}

// PassFailed records an unexpected pass error.
func (s *RunStats) PassFailed(kind types.PassKind) {
	s.passesFailed.Add(1)
	s.kind(kind, func(k *KindStats) { k.Failed++ })
}

// PassAbandoned records a cancellation observed inside a pass.
func (s *RunStats) PassAbandoned(kind types.PassKind) {
	s.passesAbandoned.Add(1)
	s.kind(kind, func(k *KindStats) { k.Abandoned++ })
}

// BatchApplied records one result batch landing in the visible model.
func (s *RunStats) BatchApplied(records int) {
	s.batchesApplied.Add(1)
	s.recordsApplied.Add(int64(records))
}

func (s *RunStats) kind(kind types.PassKind, update func(*KindStats)) {
	s.kindMu.Lock()
	defer s.kindMu.Unlock()
	k := s.perKind[kind]
	if k == nil {
		k = &KindStats{}
		s.perKind[kind] = k
	}
	update(k)
}

// Snapshot is a point-in-time copy for status surfaces.
type Snapshot struct {
	Uptime          time.Duration               `json:"uptime"`
	RunsStarted     int64                       `json:"runs_started"`
	RunsFinished    int64                       `json:"runs_finished"`
	RunsCanceled    int64                       `json:"runs_canceled"`
	RestartsQueued  int64                       `json:"restarts_queued"`
	PassesCompleted int64                       `json:"passes_completed"`
	PassesFailed    int64                       `json:"passes_failed"`
	PassesAbandoned int64                       `json:"passes_abandoned"`
	BatchesApplied  int64                       `json:"batches_applied"`
	RecordsApplied  int64                       `json:"records_applied"`
	PerKind         map[types.PassKind]KindStats `json:"per_kind"`
}

// Snapshot copies the counters.
func (s *RunStats) Snapshot() Snapshot {
	snap := Snapshot{
		Uptime:          time.Since(s.startTime),
		RunsStarted:     s.runsStarted.Load(),
		RunsFinished:    s.runsFinished.Load(),
		RunsCanceled:    s.runsCanceled.Load(),
		RestartsQueued:  s.restartsQueued.Load(),
		PassesCompleted: s.passesCompleted.Load(),
		PassesFailed:    s.passesFailed.Load(),
		PassesAbandoned: s.passesAbandoned.Load(),
		BatchesApplied:  s.batchesApplied.Load(),
		RecordsApplied:  s.recordsApplied.Load(),
		PerKind:         make(map[types.PassKind]KindStats),
	}
	s.kindMu.Lock()
	for kind, k := range s.perKind {
		snap.PerKind[kind] = *k
	}
	s.kindMu.Unlock()
	return snap
}
