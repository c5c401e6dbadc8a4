package passes

import (
	"sort"

	laderrors "github.com/standardbeagle/lad/internal/errors"
	"github.com/standardbeagle/lad/internal/types"
)

// BuildOrder resolves the registered kinds into the execution order: a
// topological sort of the runs-after graph. Among kinds with no constraint
// between them the lower priority number goes first, except that the syntax
// kind always wins a tie. That special case is deliberate and documented:
// syntax highlighting historically precedes every semantic pass, and the
// daemon keeps the rule explicit instead of relying on priority numbers.
//
// A declared dependency cycle is a fatal ConfigurationError detected here,
// eagerly, before anything is submitted.
func (r *Registry) BuildOrder() ([]*Descriptor, error) {
	if err := r.Validate(); err != nil {
		return nil, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	active := make(map[types.PassKind]*Descriptor)
	for _, k := range r.order {
		if d := r.byKnd[k]; !d.Disabled {
			active[k] = d
		}
	}

	// In-degree over active kinds only; an edge from a disabled kind does
	// not constrain anything.
	indegree := make(map[types.PassKind]int, len(active))
	dependents := make(map[types.PassKind][]types.PassKind, len(active))
	for k, d := range active {
		if _, ok := indegree[k]; !ok {
			indegree[k] = 0
		}
		for _, dep := range d.RunsAfter {
			if _, ok := active[dep]; !ok {
				continue
			}
			indegree[k]++
			dependents[dep] = append(dependents[dep], k)
		}
	}

	ready := make([]types.PassKind, 0, len(active))
	for k, deg := range indegree {
		if deg == 0 {
			ready = append(ready, k)
		}
	}

	var out []*Descriptor
	for len(ready) > 0 {
		sortTieBreak(ready, active)
		next := ready[0]
		ready = ready[1:]

		out = append(out, active[next])
		for _, dep := range dependents[next] {
			indegree[dep]--
			if indegree[dep] == 0 {
				ready = append(ready, dep)
			}
		}
	}

	if len(out) != len(active) {
		return nil, laderrors.NewCycleError(findCycle(active, out))
	}
	return out, nil
}

// sortTieBreak orders the ready set: syntax first, then ascending priority,
// then kind name for determinism.
func sortTieBreak(ready []types.PassKind, active map[types.PassKind]*Descriptor) {
	sort.Slice(ready, func(i, j int) bool {
		a, b := ready[i], ready[j]
		if (a == types.KindSyntax) != (b == types.KindSyntax) {
			return a == types.KindSyntax
		}
		pa, pb := active[a].Priority, active[b].Priority
		if pa != pb {
			return pa < pb
		}
		return a < b
	})
}

// findCycle walks the kinds the topological sort could not place and returns
// one cycle through them, closed back on its first member.
func findCycle(active map[types.PassKind]*Descriptor, placed []*Descriptor) []types.PassKind {
	done := make(map[types.PassKind]bool, len(placed))
	for _, d := range placed {
		done[d.Kind] = true
	}

	var stuck []types.PassKind
	for k := range active {
		if !done[k] {
			stuck = append(stuck, k)
		}
	}
	sort.Slice(stuck, func(i, j int) bool { return stuck[i] < stuck[j] })
	if len(stuck) == 0 {
		return nil
	}

	// Follow runs-after edges within the stuck set until a kind repeats.
	seen := make(map[types.PassKind]int)
	var path []types.PassKind
	cur := stuck[0]
	for {
		if at, ok := seen[cur]; ok {
			return append(path[at:], cur)
		}
		seen[cur] = len(path)
		path = append(path, cur)

		advanced := false
		for _, dep := range active[cur].RunsAfter {
			if _, ok := active[dep]; ok && !done[dep] {
				cur = dep
				advanced = true
				break
			}
		}
		if !advanced {
			return path
		}
	}
}
