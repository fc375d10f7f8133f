package history

import (
	"context"
	"fmt"
	"sort"
)

// Step is one adjacent pair of a window: the revision being left and the one
// being reached.
type Step struct {
	Prev string
	Curr string
}

// Graph is the immutable canonical ordering [base, r1, ..., rN, heads].
// Adjacency and ranges are index lookups.
type Graph struct {
	order     []string
	index     map[string]int
	revisions map[string]Revision
	heads     []string
}

// Parse builds a Graph from a Source. The source order (heads to base) is
// reversed and framed with the sentinels.
func Parse(ctx context.Context, src Source) (*Graph, error) {
	revs, err := src.IterateRevisions(ctx)
	if err != nil {
		return nil, fmt.Errorf("read revision history: %w", err)
	}
	return New(revs)
}

// New builds a Graph from revisions ordered heads to base.
func New(revs []Revision) (*Graph, error) {
	g := &Graph{
		order:     make([]string, 0, len(revs)+2),
		index:     make(map[string]int, len(revs)+2),
		revisions: make(map[string]Revision, len(revs)),
	}
	g.order = append(g.order, Base)

	for i := len(revs) - 1; i >= 0; i-- {
		r := revs[i]
		if r.ID == "" {
			return nil, &GraphError{Reason: "revision with empty id"}
		}
		if isReserved(r.ID) {
			return nil, &GraphError{Reason: fmt.Sprintf("revision id %q is reserved", r.ID)}
		}
		if _, dup := g.revisions[r.ID]; dup {
			return nil, &GraphError{Reason: fmt.Sprintf("duplicate revision %q", r.ID)}
		}
		for _, p := range r.Parents {
			if _, ok := g.revisions[p]; !ok {
				return nil, &GraphError{Reason: fmt.Sprintf("revision %q depends on %q which does not precede it", r.ID, p)}
			}
		}
		g.revisions[r.ID] = r
		g.order = append(g.order, r.ID)
	}
	g.order = append(g.order, Heads)

	for i, id := range g.order {
		g.index[id] = i
	}
	g.heads = computeHeads(revs)
	return g, nil
}

func computeHeads(revs []Revision) []string {
	isParent := make(map[string]bool, len(revs))
	for _, r := range revs {
		for _, p := range r.Parents {
			isParent[p] = true
		}
	}
	var heads []string
	for _, r := range revs {
		if !isParent[r.ID] {
			heads = append(heads, r.ID)
		}
	}
	sort.Strings(heads)
	return heads
}

// Revisions returns the canonical order including both sentinels.
func (g *Graph) Revisions() []string {
	out := make([]string, len(g.order))
	copy(out, g.order)
	return out
}

// Len is the number of real revisions.
func (g *Graph) Len() int { return len(g.order) - 2 }

// Revision returns the metadata of a real revision.
func (g *Graph) Revision(id string) (Revision, bool) {
	r, ok := g.revisions[id]
	return r, ok
}

// Contains reports whether rev (after normalization) is in the ordering.
func (g *Graph) Contains(rev string) bool {
	_, ok := g.index[Normalize(rev)]
	return ok
}

// Validate normalizes rev and checks it is part of the ordering.
func (g *Graph) Validate(rev string) (string, error) {
	rev = Normalize(rev)
	if _, ok := g.index[rev]; !ok {
		return "", &UnknownRevisionError{Revision: rev}
	}
	return rev, nil
}

func (g *Graph) position(rev string) (int, error) {
	rev, err := g.Validate(rev)
	if err != nil {
		return 0, err
	}
	return g.index[rev], nil
}

// Previous returns the revision before rev; false at base.
func (g *Graph) Previous(rev string) (string, bool, error) {
	i, err := g.position(rev)
	if err != nil {
		return "", false, err
	}
	if i == 0 {
		return "", false, nil
	}
	return g.order[i-1], true, nil
}

// Next returns the revision after rev; false at heads.
func (g *Graph) Next(rev string) (string, bool, error) {
	i, err := g.position(rev)
	if err != nil {
		return "", false, err
	}
	if i == len(g.order)-1 {
		return "", false, nil
	}
	return g.order[i+1], true, nil
}

// Range returns the revisions from..to inclusive. It is empty when from comes
// after to.
func (g *Graph) Range(from, to string) ([]string, error) {
	i, err := g.position(from)
	if err != nil {
		return nil, err
	}
	j, err := g.position(to)
	if err != nil {
		return nil, err
	}
	if i > j {
		return []string{}, nil
	}
	out := make([]string, j-i+1)
	copy(out, g.order[i:j+1])
	return out, nil
}

// Window returns the adjacent pairs spanning from..to, the exact steps an
// upgrade from "from" to "to" performs. It is empty when from == to.
func (g *Graph) Window(from, to string) ([]Step, error) {
	revs, err := g.Range(from, to)
	if err != nil {
		return nil, err
	}
	if len(revs) < 2 {
		return []Step{}, nil
	}
	steps := make([]Step, 0, len(revs)-1)
	for i := 1; i < len(revs); i++ {
		steps = append(steps, Step{Prev: revs[i-1], Curr: revs[i]})
	}
	return steps, nil
}

// Tip is the last real revision of the ordering, or base for an empty history.
// Reaching the tip is reaching heads.
func (g *Graph) Tip() string {
	return g.order[len(g.order)-2]
}

// Heads returns the revisions nobody depends on, sorted.
func (g *Graph) Heads() []string {
	out := make([]string, len(g.heads))
	copy(out, g.heads)
	return out
}

// RequireSingleHead returns the only head or a GraphError listing all of them.
func RequireSingleHead(heads []string) (string, error) {
	if len(heads) != 1 {
		reason := "expected exactly one head revision"
		if len(heads) == 0 {
			reason = "expected exactly one head revision, found none"
		}
		return "", &GraphError{Reason: reason, Heads: append([]string(nil), heads...)}
	}
	return heads[0], nil
}
