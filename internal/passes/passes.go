// Package passes defines the analysis pass contract, the pass registry, and
// the ordered graph the executor runs. Kinds declare which kinds they run
// after; ordering among unconstrained kinds falls to declared priority, with
// the syntax kind always first among ties.
package passes

import (
	"github.com/standardbeagle/lad/internal/document"
	"github.com/standardbeagle/lad/internal/progress"
	"github.com/standardbeagle/lad/internal/types"
)

// DeliverFunc hands one chunk of records to the application gate. completed
// is the sub-range the records cover; it is marked clean once the chunk is
// applied.
type DeliverFunc func(records []types.HighlightRecord, completed types.TextRange)

// Context carries everything a pass may touch: an immutable snapshot, the
// window it is bound to, and the run's cancellation token. Passes never see
// the dirty map or the visible model directly.
type Context struct {
	Snapshot *document.Snapshot
	Window   types.TextRange
	Token    *progress.Token

	deliver DeliverFunc
}

// NewContext builds a pass context. deliver may be nil for one-shot callers
// that only consume the final Collect return value.
func NewContext(snap *document.Snapshot, window types.TextRange, token *progress.Token, deliver DeliverFunc) *Context {
	return &Context{Snapshot: snap, Window: window, Token: token, deliver: deliver}
}

// CheckCanceled polls the run token. Passes call this at least once per small
// unit of work; it is the only interruption mechanism.
func (c *Context) CheckCanceled() error {
	return c.Token.CheckCanceled()
}

// Checkpoint returns a strided poller over the run token for tight loops.
func (c *Context) Checkpoint(every int) *progress.Checkpoint {
	return progress.NewCheckpoint(c.Token, every)
}

// Deliver hands an intermediate chunk to the gate. A pass that delivers
// incrementally keeps its already-applied head clean even when the tail is
// later abandoned by cancellation.
func (c *Context) Deliver(records []types.HighlightRecord, completed types.TextRange) {
	if c.deliver != nil {
		c.deliver(records, completed)
	}
}

// Pass is one unit of analysis work bound to a (document, window) pair at
// execution time. Implementations must be safe for concurrent Collect calls
// on distinct contexts.
type Pass interface {
	// Kind returns the pass-kind identity used for dependency declarations
	// and dirty bookkeeping.
	Kind() types.PassKind

	// Collect analyzes the context window and returns the records for the
	// part of the window it completed. A cancellation error abandons the
	// remainder; any other error marks the pass failed and leaves the
	// window dirty for the next run.
	Collect(ctx *Context) ([]types.HighlightRecord, error)
}

// Descriptor declares a pass kind to the registry: its ordering constraints,
// its tie-break priority, and the factory producing instances.
type Descriptor struct {
	Kind      types.PassKind
	RunsAfter []types.PassKind
	Priority  int
	Disabled  bool

	// New produces the pass implementation. Instances are shared across
	// runs, so implementations hold no per-run state.
	New func() Pass
}
