package build

import (
	"maps"
	"slices"
	"sync"
)

// waitGraph tracks which tasks are currently waiting on which, within one
// run, so that a declaration requesting a dependency that (transitively)
// waits on it fails instead of deadlocking.
//
// Example cycle:
//
//	model:Page declaration calls GetBlock("Hero") -> edge model:Page -> block:Hero
//	block:Hero declaration calls GetModel("Page") -> block:Hero -> model:Page
//	model:Page already reaches block:Hero: cycle
//
// Edges exist only while a wait is in progress. A finished build has no
// outgoing edges, so waiting on it again never looks like a cycle.
//
// Thread-safe: all methods may be called concurrently.
type waitGraph struct {
	mu    sync.Mutex
	edges map[string]map[string]int // map[waiter]map[target]count
}

func newWaitGraph() *waitGraph {
	return &waitGraph{edges: make(map[string]map[string]int)}
}

// add records that from waits on to. If to already reaches from, the edge
// is not added and the cycle from -> to -> ... -> from is returned.
func (g *waitGraph) add(from, to string) *DependencyCycleError {
	g.mu.Lock()
	defer g.mu.Unlock()

	if path := g.path(to, from); path != nil {
		cycle := append([]string{from}, path...)
		return &DependencyCycleError{Path: cycle}
	}

	if g.edges[from] == nil {
		g.edges[from] = make(map[string]int)
	}
	g.edges[from][to]++
	return nil
}

// remove drops one from -> to wait.
func (g *waitGraph) remove(from, to string) {
	g.mu.Lock()
	defer g.mu.Unlock()

	targets := g.edges[from]
	if targets == nil {
		return
	}
	targets[to]--
	if targets[to] <= 0 {
		delete(targets, to)
	}
	if len(targets) == 0 {
		delete(g.edges, from)
	}
}

// path returns a path of keys from start to goal, both inclusive, or nil.
// Callers hold g.mu.
func (g *waitGraph) path(start, goal string) []string {
	visited := map[string]bool{}
	var walk func(key string) []string
	walk = func(key string) []string {
		if key == goal {
			return []string{key}
		}
		if visited[key] {
			return nil
		}
		visited[key] = true
		for _, next := range slices.Sorted(maps.Keys(g.edges[key])) {
			if rest := walk(next); rest != nil {
				return append([]string{key}, rest...)
			}
		}
		return nil
	}
	return walk(start)
}

// size returns the number of distinct edges. Used for testing.
func (g *waitGraph) size() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	n := 0
	for _, targets := range g.edges {
		n += len(targets)
	}
	return n
}
