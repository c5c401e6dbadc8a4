package passes

import (
	"fmt"
	"sort"
	"sync"

	"github.com/hbollon/go-edlib"

	laderrors "github.com/standardbeagle/lad/internal/errors"
	"github.com/standardbeagle/lad/internal/types"
)

// suggestionThreshold is the Jaro-Winkler floor for "did you mean" hints on
// unknown pass kinds.
const suggestionThreshold = 0.80

// Registry holds the declared pass kinds. Registration happens at startup
// (built-ins, then the optional manifest); reads are free afterwards.
type Registry struct {
	mu    sync.RWMutex
	order []types.PassKind
	byKnd map[types.PassKind]*Descriptor
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{byKnd: make(map[types.PassKind]*Descriptor)}
}

// Register adds a pass descriptor. Duplicate kinds and the reserved wildcard
// are configuration errors.
func (r *Registry) Register(d Descriptor) error {
	if d.Kind == "" || d.Kind == types.KindAll {
		return laderrors.NewConfigurationError("passes.kind", string(d.Kind),
			fmt.Errorf("reserved or empty pass kind"))
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.byKnd[d.Kind]; exists {
		return laderrors.NewConfigurationError("passes.kind", string(d.Kind),
			fmt.Errorf("pass kind registered twice"))
	}
	desc := d
	r.byKnd[d.Kind] = &desc
	r.order = append(r.order, d.Kind)
	return nil
}

// Lookup returns the descriptor for kind, or nil.
func (r *Registry) Lookup(kind types.PassKind) *Descriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.byKnd[kind]
}

// Kinds returns every registered kind in declaration order, including
// disabled ones.
func (r *Registry) Kinds() []types.PassKind {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]types.PassKind, len(r.order))
	copy(out, r.order)
	return out
}

// ActiveKinds returns the kinds that will actually run.
func (r *Registry) ActiveKinds() []types.PassKind {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []types.PassKind
	for _, k := range r.order {
		if !r.byKnd[k].Disabled {
			out = append(out, k)
		}
	}
	return out
}

// SetDisabled switches a kind on or off. Unknown kinds report an error with
// a spelling suggestion.
func (r *Registry) SetDisabled(kind types.PassKind, disabled bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	d := r.byKnd[kind]
	if d == nil {
		return r.unknownKindLocked("passes.disabled", kind)
	}
	d.Disabled = disabled
	return nil
}

// Validate checks every declared dependency against the registry. All
// problems are reported together so the operator fixes them in one round.
func (r *Registry) Validate() error {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var errs []error
	for _, k := range r.order {
		for _, dep := range r.byKnd[k].RunsAfter {
			if dep == k {
				errs = append(errs, laderrors.NewConfigurationError(
					"passes.runs_after", string(k),
					fmt.Errorf("pass kind depends on itself")))
				continue
			}
			if _, ok := r.byKnd[dep]; !ok {
				errs = append(errs, r.unknownKindLocked(
					fmt.Sprintf("passes.%s.runs_after", k), dep))
			}
		}
	}
	if len(errs) == 1 {
		return errs[0]
	}
	if len(errs) > 0 {
		return laderrors.NewMultiError(errs)
	}
	return nil
}

// unknownKindLocked builds the error for a reference to an unregistered
// kind, with a fuzzy "did you mean" when a registered kind is close enough.
func (r *Registry) unknownKindLocked(field string, kind types.PassKind) error {
	msg := fmt.Errorf("unknown pass kind")
	if suggestion := r.suggestLocked(kind); suggestion != "" {
		msg = fmt.Errorf("unknown pass kind (did you mean %q?)", suggestion)
	}
	return laderrors.NewConfigurationError(field, string(kind), msg)
}

func (r *Registry) suggestLocked(kind types.PassKind) string {
	best := ""
	bestScore := float32(suggestionThreshold)
	candidates := make([]string, 0, len(r.order))
	for _, k := range r.order {
		candidates = append(candidates, string(k))
	}
	sort.Strings(candidates)
	for _, candidate := range candidates {
		score, err := edlib.StringsSimilarity(string(kind), candidate, edlib.JaroWinkler)
		if err != nil {
			continue
		}
		if score > bestScore {
			best = candidate
			bestScore = score
		}
	}
	return best
}
