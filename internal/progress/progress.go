// Package progress provides the cooperative cancellation tokens shared by
// every pass of one scheduling cycle. Cancellation is polled, never pushed:
// a pass observes it only at its own CheckCanceled call sites, so the flag
// read has to stay a single atomic load.
package progress

import (
	"sync"
	"sync/atomic"

	laderrors "github.com/standardbeagle/lad/internal/errors"
	"github.com/standardbeagle/lad/internal/types"
)

// State is a token's lifecycle position. Both terminal states behave the
// same for callers; they are recorded separately for diagnostics.
type State int32

const (
	StateActive State = iota
	StateCanceled
	StateSuperseded
)

func (s State) String() string {
	switch s {
	case StateActive:
		return "active"
	case StateCanceled:
		return "canceled"
	case StateSuperseded:
		return "superseded"
	default:
		return "unknown"
	}
}

// Token is the cancellation flag for one scheduling cycle. All passes of a
// run share the run's token. Tokens transition at most once and are never
// reused; a restart mints a new one through Source.Next.
type Token struct {
	generation types.Generation

	// canceled is the hot-path flag, stored only after state and reason
	// are committed under mu, so a reader that sees it set always finds
	// a terminal state behind the mutex.
	canceled atomic.Bool

	mu     sync.Mutex
	state  State
	reason string
}

// NewToken creates an active token for the given generation. Production
// code obtains tokens from a Source; direct construction is for tests and
// standalone pass invocations.
func NewToken(gen types.Generation) *Token {
	return &Token{generation: gen, state: StateActive}
}

// Generation returns the scheduling cycle this token was minted for.
func (t *Token) Generation() types.Generation {
	return t.generation
}

// IsCanceled reports whether the token reached a terminal state. Safe from
// any goroutine; a single atomic load.
func (t *Token) IsCanceled() bool {
	return t.canceled.Load()
}

// CheckCanceled returns the cancellation error once the token is canceled
// or superseded, nil while active. Passes call it at least once per small
// unit of work. Never blocks on the fast path.
func (t *Token) CheckCanceled() error {
	if !t.canceled.Load() {
		return nil
	}

	t.mu.Lock()
	state, reason := t.state, t.reason
	t.mu.Unlock()

	cs := laderrors.CancelStateCanceled
	if state == StateSuperseded {
		cs = laderrors.CancelStateSuperseded
	}
	return laderrors.NewCancellationError(t.generation, cs, reason)
}

// State returns the current lifecycle position.
func (t *Token) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// Reason returns the cancellation reason, empty while active.
func (t *Token) Reason() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.reason
}

// Cancel moves the token to Canceled. Idempotent; the first terminal
// transition wins and later calls change nothing.
func (t *Token) Cancel(reason string) {
	t.terminate(StateCanceled, reason)
}

// Supersede moves the token to Superseded. Called by the source when a
// newer generation takes over.
func (t *Token) Supersede(reason string) {
	t.terminate(StateSuperseded, reason)
}

func (t *Token) terminate(state State, reason string) {
	t.mu.Lock()
	if t.state != StateActive {
		t.mu.Unlock()
		return
	}
	t.state = state
	t.reason = reason
	t.mu.Unlock()

	t.canceled.Store(true)
}

// Source mints tokens and owns the generation counter. One source exists
// per daemon; Next is called by the restart scheduler only, reads are free
// for any goroutine.
type Source struct {
	generation atomic.Uint64

	mu      sync.Mutex
	current *Token
}

// NewSource creates a source with an initial active token for generation 1,
// so Current never returns nil.
func NewSource() *Source {
	s := &Source{}
	s.generation.Store(1)
	s.current = NewToken(1)
	return s
}

// Current returns the live token. The result may already be canceled by the
// time the caller polls it; that is the contract of cooperative
// cancellation.
func (s *Source) Current() *Token {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

// Generation returns the newest minted generation.
func (s *Source) Generation() types.Generation {
	return types.Generation(s.generation.Load())
}

// Next supersedes the current token and mints an active one for the next
// generation. The returned token belongs to the new scheduling cycle.
func (s *Source) Next(reason string) *Token {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.current.Supersede(reason)
	gen := types.Generation(s.generation.Add(1))
	s.current = NewToken(gen)
	return s.current
}

// CancelCurrent cancels the live token without minting a successor. Used
// when the daemon stops without scheduling a restart.
func (s *Source) CancelCurrent(reason string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.current.Cancel(reason)
}

// Checkpoint spreads CheckCanceled calls over a work loop so the atomic
// load happens once per batch of iterations instead of every iteration.
type Checkpoint struct {
	token *Token
	every int
	count int
}

// NewCheckpoint wraps token with the given polling stride; stride values
// below 1 fall back to the system default.
func NewCheckpoint(token *Token, every int) *Checkpoint {
	if every < 1 {
		every = types.CheckCancelEveryN
	}
	return &Checkpoint{token: token, every: every}
}

// Step counts one unit of work and polls the token at each stride boundary.
func (c *Checkpoint) Step() error {
	c.count++
	if c.count%c.every != 0 {
		return nil
	}
	return c.token.CheckCanceled()
}
