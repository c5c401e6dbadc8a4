package daemon

import (
	"github.com/standardbeagle/lad/internal/metrics"
	"github.com/standardbeagle/lad/internal/types"
)

// Status is a point-in-time view of the daemon for CLIs and tool surfaces.
type Status struct {
	Running        bool               `json:"running"`
	Disposed       bool               `json:"disposed"`
	Generation     types.Generation   `json:"generation"`
	UpdateByTimer  bool               `json:"update_by_timer"`
	DisableCount   int                `json:"disable_count"`
	RestartPending bool               `json:"restart_pending"`
	TrackedDocs    int                `json:"tracked_documents"`
	DirtyDocs      int                `json:"dirty_documents"`
	Kinds          []types.PassKind   `json:"pass_kinds"`
	Stats          metrics.Snapshot   `json:"stats"`
}

// Status assembles the current daemon state. Numbers are sampled without a
// global pause, so counts from different subsystems may be a beat apart.
func (d *Daemon) Status() Status {
	d.mu.Lock()
	st := Status{
		Disposed:       d.disposed,
		UpdateByTimer:  d.updateByTimer,
		DisableCount:   d.disableCount,
		RestartPending: d.timer != nil,
	}
	d.mu.Unlock()

	if run := d.exec.Current(); run != nil {
		st.Generation = run.Generation()
		select {
		case <-run.Done():
		default:
			st.Running = !run.Token.IsCanceled()
		}
	}
	st.TrackedDocs = len(d.docs.All())
	st.DirtyDocs = len(d.dirtyMap.DirtyDocuments())
	st.Kinds = d.registry.ActiveKinds()
	st.Stats = d.stats.Snapshot()
	return st
}
