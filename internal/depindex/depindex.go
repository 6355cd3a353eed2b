// Package depindex computes the derived reverse-dependency index and
// blocking-set queries from spec.md §4.5. Every function here is
// stateless over a snapshot map[string]*types.Issue — issues never hold
// pointers to each other, only to ids, per spec.md §9's design note.
package depindex

import (
	"sort"

	"github.com/rrnewton/minibeads/internal/types"
)

// Index is a precomputed snapshot of the dependency structure of an issue
// set, built once per Repository read and reused by ready/blocked/stats.
type Index struct {
	issues     map[string]*types.Issue
	dependents map[string][]types.DependentRef
	blocked    map[string]bool     // is_blocked(Y), O(1) lookup
	blockers   map[string][]string // blocking(Y) ids, computed once by Build
}

// Build computes dependents() and the blocking/is_blocked sets from a
// snapshot of all issues in the store.
func Build(issues map[string]*types.Issue) *Index {
	idx := &Index{
		issues:     issues,
		dependents: make(map[string][]types.DependentRef),
		blocked:    make(map[string]bool),
		blockers:   make(map[string][]string),
	}

	ids := sortedKeys(issues)
	for _, y := range ids {
		issue := issues[y]
		for target, kind := range issue.DependsOn {
			idx.dependents[target] = append(idx.dependents[target], types.DependentRef{ID: y, Kind: kind})
		}
	}
	for target := range idx.dependents {
		sort.Slice(idx.dependents[target], func(i, j int) bool {
			return idx.dependents[target][i].ID < idx.dependents[target][j].ID
		})
	}

	for _, y := range ids {
		issue := issues[y]
		var blockers []string
		for target, kind := range issue.DependsOn {
			if kind != types.DepBlocks {
				continue
			}
			blocker, ok := issues[target]
			if !ok {
				continue // forward reference: not yet a live blocker
			}
			if blocker.Status == types.StatusOpen || blocker.Status == types.StatusInProgress {
				blockers = append(blockers, target)
			}
		}
		if len(blockers) > 0 {
			sort.Strings(blockers)
			idx.blockers[y] = blockers
			idx.blocked[y] = true
		}
	}

	return idx
}

// Dependents returns the (id, kind) pairs depending on target.
func (idx *Index) Dependents(target string) []types.DependentRef {
	return idx.dependents[target]
}

// Blocking returns the set of open/in-progress blockers of y. Use
// IsBlocked for an O(1) existence check when the list itself is not
// needed.
func (idx *Index) Blocking(y string) []string {
	return idx.blockers[y]
}

// IsBlocked is the O(1)-average existence check spec.md §4.5 requires.
func (idx *Index) IsBlocked(y string) bool {
	return idx.blocked[y]
}

// Cycles returns the strongly connected components of size > 1 over the
// `blocks` subgraph, plus any self-edge X->X, each rendered in canonical
// lexicographically-minimum rotation. Computed via Tarjan's algorithm.
func (idx *Index) Cycles() [][]string {
	adj := make(map[string][]string)
	for y, issue := range idx.issues {
		for target, kind := range issue.DependsOn {
			if kind != types.DepBlocks {
				continue
			}
			if _, ok := idx.issues[target]; !ok {
				continue
			}
			adj[y] = append(adj[y], target)
		}
	}
	for y := range adj {
		sort.Strings(adj[y])
	}

	t := &tarjan{
		adj:     adj,
		index:   make(map[string]int),
		lowlink: make(map[string]int),
		onStack: make(map[string]bool),
	}
	ids := sortedKeys(idx.issues)
	for _, v := range ids {
		if _, seen := t.index[v]; !seen {
			t.strongconnect(v)
		}
	}

	var cycles [][]string
	for _, scc := range t.sccs {
		isCycle := len(scc) > 1
		if len(scc) == 1 {
			// self-edge X->X
			for _, n := range adj[scc[0]] {
				if n == scc[0] {
					isCycle = true
					break
				}
			}
		}
		if isCycle {
			cycles = append(cycles, canonicalRotation(scc))
		}
	}
	sort.Slice(cycles, func(i, j int) bool { return cycles[i][0] < cycles[j][0] })
	return cycles
}

type tarjan struct {
	adj     map[string][]string
	index   map[string]int
	lowlink map[string]int
	onStack map[string]bool
	stack   []string
	counter int
	sccs    [][]string
}

func (t *tarjan) strongconnect(v string) {
	t.index[v] = t.counter
	t.lowlink[v] = t.counter
	t.counter++
	t.stack = append(t.stack, v)
	t.onStack[v] = true

	for _, w := range t.adj[v] {
		if _, seen := t.index[w]; !seen {
			t.strongconnect(w)
			if t.lowlink[w] < t.lowlink[v] {
				t.lowlink[v] = t.lowlink[w]
			}
		} else if t.onStack[w] {
			if t.index[w] < t.lowlink[v] {
				t.lowlink[v] = t.index[w]
			}
		}
	}

	if t.lowlink[v] == t.index[v] {
		var scc []string
		for {
			n := len(t.stack) - 1
			w := t.stack[n]
			t.stack = t.stack[:n]
			t.onStack[w] = false
			scc = append(scc, w)
			if w == v {
				break
			}
		}
		t.sccs = append(t.sccs, scc)
	}
}

// canonicalRotation returns scc rotated so it starts at its
// lexicographically minimum element, preserving the relative order in
// which Tarjan's algorithm popped the cycle off its stack. Must not sort
// scc itself first: that would discard the genuine cycle adjacency and
// make the rotation meaningless.
func canonicalRotation(scc []string) []string {
	if len(scc) == 0 {
		return scc
	}
	minIdx := 0
	for i, v := range scc {
		if v < scc[minIdx] {
			minIdx = i
		}
	}
	out := make([]string, len(scc))
	for i := range scc {
		out[i] = scc[(minIdx+i)%len(scc)]
	}
	return out
}

func sortedKeys(m map[string]*types.Issue) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
