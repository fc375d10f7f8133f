package history

import (
	"fmt"
	"sort"
)

// dag is the parent->child edge set of a revision graph.
type dag struct {
	nodes map[string]*dagNode
	edges map[string][]string
}

type dagNode struct {
	rev      Revision
	inDegree int
	visited  bool
	inStack  bool
}

func newDAG() *dag {
	return &dag{
		nodes: make(map[string]*dagNode),
		edges: make(map[string][]string),
	}
}

func (d *dag) build(revs []Revision) error {
	for _, r := range revs {
		if r.ID == "" {
			return &GraphError{Reason: "revision with empty id"}
		}
		if isReserved(r.ID) {
			return &GraphError{Reason: fmt.Sprintf("revision id %q is reserved", r.ID)}
		}
		if _, exists := d.nodes[r.ID]; exists {
			return &GraphError{Reason: fmt.Sprintf("duplicate revision %q", r.ID)}
		}
		d.nodes[r.ID] = &dagNode{rev: r}
		d.edges[r.ID] = []string{}
	}
	for _, r := range revs {
		for _, p := range r.Parents {
			if _, ok := d.nodes[p]; !ok {
				return &GraphError{Reason: fmt.Sprintf("revision %q has unknown down revision %q", r.ID, p)}
			}
			d.edges[p] = append(d.edges[p], r.ID)
			d.nodes[r.ID].inDegree++
		}
	}
	return nil
}

// detectCycle returns the first cycle found by DFS, or nil.
func (d *dag) detectCycle() []string {
	for _, node := range d.nodes {
		node.visited = false
		node.inStack = false
	}

	names := make([]string, 0, len(d.nodes))
	for name := range d.nodes {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		if !d.nodes[name].visited {
			if cycle := d.dfs(name, nil); cycle != nil {
				return cycle
			}
		}
	}
	return nil
}

func (d *dag) dfs(name string, path []string) []string {
	node := d.nodes[name]
	node.visited = true
	node.inStack = true
	path = append(path, name)

	for _, child := range d.edges[name] {
		childNode := d.nodes[child]
		if childNode.inStack {
			for i, p := range path {
				if p == child {
					return append(append([]string{}, path[i:]...), child)
				}
			}
		}
		if !childNode.visited {
			if cycle := d.dfs(child, path); cycle != nil {
				return cycle
			}
		}
	}

	node.inStack = false
	return nil
}

// sort returns the revisions base-first using Kahn's algorithm. Each batch of
// ready revisions is sorted by id so the order is deterministic.
func (d *dag) sort() ([]Revision, error) {
	if cycle := d.detectCycle(); cycle != nil {
		return nil, &GraphError{Reason: fmt.Sprintf("circular dependency detected: %v", cycle)}
	}

	inDegree := make(map[string]int, len(d.nodes))
	var queue []string
	for name, node := range d.nodes {
		inDegree[name] = node.inDegree
		if node.inDegree == 0 {
			queue = append(queue, name)
		}
	}

	result := make([]Revision, 0, len(d.nodes))
	for len(queue) > 0 {
		batch := queue
		queue = nil
		sort.Strings(batch)

		for _, current := range batch {
			result = append(result, d.nodes[current].rev)
			for _, child := range d.edges[current] {
				inDegree[child]--
				if inDegree[child] == 0 {
					queue = append(queue, child)
				}
			}
		}
	}

	if len(result) != len(d.nodes) {
		return nil, &GraphError{Reason: "topological sort failed - graph contains cycles"}
	}
	return result, nil
}

// Linearize orders an unordered revision DAG heads-first, the order a Source
// yields. Branches are interleaved deterministically and a merge revision
// always follows all of its parents.
func Linearize(revs []Revision) ([]Revision, error) {
	d := newDAG()
	if err := d.build(revs); err != nil {
		return nil, err
	}
	baseFirst, err := d.sort()
	if err != nil {
		return nil, err
	}
	out := make([]Revision, len(baseFirst))
	for i, r := range baseFirst {
		out[len(baseFirst)-1-i] = r
	}
	return out, nil
}
