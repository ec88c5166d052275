package loader

import (
	"fmt"
	"slices"
	"strings"
)

// Cycle is a static dependency cycle between items, e.g.
// ["model:Page", "block:Hero", "model:Page"].
type Cycle struct {
	Path []string `json:"path"`
}

func (c Cycle) String() string {
	return strings.Join(c.Path, " -> ")
}

// Check reports references to undeclared items and static dependency
// cycles. Building a cyclic set fails at run time too; Check finds the
// cycles without touching the remote service.
func Check(items []*Item) []error {
	declared := make(map[string]bool, len(items))
	for _, it := range items {
		declared[it.Key()] = true
	}

	var errs []error
	for _, it := range items {
		for _, dep := range it.Dependencies() {
			if !declared[dep] {
				errs = append(errs, errorf(ErrCodeUnknownItem, it.Pos, "%s references undeclared %s", it.Key(), dep))
			}
		}
	}
	for _, c := range Cycles(items) {
		errs = append(errs, &LoadError{Code: ErrCodeCycle, Message: fmt.Sprintf("dependency cycle: %s", c)})
	}
	return errs
}

// dependencyGraph maps an item key to the keys it depends on.
type dependencyGraph map[string][]string

func buildDependencyGraph(items []*Item) dependencyGraph {
	graph := make(dependencyGraph, len(items))
	for _, it := range items {
		graph[it.Key()] = it.Dependencies()
	}
	return graph
}

// Cycles returns every static dependency cycle among items, found with
// Tarjan's strongly connected components. Each strongly connected
// component with more than one item, or a single item depending on itself,
// yields one Cycle.
func Cycles(items []*Item) []Cycle {
	graph := buildDependencyGraph(items)
	var cycles []Cycle
	for _, scc := range tarjanSCC(graph) {
		if len(scc) == 1 && !slices.Contains(graph[scc[0]], scc[0]) {
			continue
		}
		cycles = append(cycles, Cycle{Path: cyclePath(scc, graph)})
	}
	slices.SortFunc(cycles, func(a, b Cycle) int {
		return strings.Compare(a.Path[0], b.Path[0])
	})
	return cycles
}

// tarjanSCC finds strongly connected components. Nodes are visited in
// sorted order so results are deterministic.
func tarjanSCC(graph dependencyGraph) [][]string {
	var (
		index   = 0
		stack   []string
		indices = make(map[string]int)
		lowlink = make(map[string]int)
		onStack = make(map[string]bool)
		sccs    [][]string
	)

	var strongConnect func(string)
	strongConnect = func(v string) {
		indices[v] = index
		lowlink[v] = index
		index++
		stack = append(stack, v)
		onStack[v] = true

		for _, w := range graph[v] {
			if _, visited := indices[w]; !visited {
				strongConnect(w)
				lowlink[v] = min(lowlink[v], lowlink[w])
			} else if onStack[w] {
				lowlink[v] = min(lowlink[v], indices[w])
			}
		}

		if lowlink[v] == indices[v] {
			var scc []string
			for {
				w := stack[len(stack)-1]
				stack = stack[:len(stack)-1]
				onStack[w] = false
				scc = append(scc, w)
				if w == v {
					break
				}
			}
			slices.Sort(scc)
			sccs = append(sccs, scc)
		}
	}

	nodes := make([]string, 0, len(graph))
	for node := range graph {
		nodes = append(nodes, node)
	}
	slices.Sort(nodes)
	for _, node := range nodes {
		if _, visited := indices[node]; !visited {
			strongConnect(node)
		}
	}
	return sccs
}

// cyclePath returns a path through the component from its smallest key
// back to itself.
func cyclePath(scc []string, graph dependencyGraph) []string {
	start := scc[0]
	if len(scc) == 1 {
		return []string{start, start}
	}

	members := make(map[string]bool, len(scc))
	for _, n := range scc {
		members[n] = true
	}

	visited := map[string]bool{}
	var walk func(current string) []string
	walk = func(current string) []string {
		visited[current] = true
		for _, next := range graph[current] {
			if next == start {
				return []string{current, start}
			}
			if !members[next] || visited[next] {
				continue
			}
			if rest := walk(next); rest != nil {
				return append([]string{current}, rest...)
			}
		}
		return nil
	}
	return walk(start)
}
