// Package dag stores the causal dependency graph of integrated operations.
//
// The graph is kept in runs: a Node covers a contiguous id span of one client
// whose first element has explicit parents and whose later elements each
// depend on the previous element. Every element also depends on the previous
// counter of its own client; Add inserts that edge when the caller omits it.
package dag

import (
	"iter"
	"slices"
	"sort"

	"github.com/roach88/weft/internal/crdterr"
	"github.com/roach88/weft/internal/id"
)

// Lamport is a logical timestamp: one more than the largest parent's.
type Lamport int64

// Node is a run of causally chained elements from one client.
type Node struct {
	Span    id.IDSpan
	Parents []id.ID // parents of Span.First()
	Lamport Lamport // timestamp of Span.First()
}

// Graph is the causal graph of one container. Not safe for concurrent use.
type Graph struct {
	runs     map[id.ClientID][]Node
	order    []id.IDSpan
	vv       id.VersionVector
	frontier []id.ID
}

// New creates an empty graph.
func New() *Graph {
	return &Graph{
		runs: make(map[id.ClientID][]Node),
		vv:   id.NewVersionVector(),
	}
}

// Add integrates the span with the given parents and returns the part of
// the span that was new. Already known prefixes are trimmed, so a duplicate
// delivery returns an empty span and no error.
//
// Fails with UNKNOWN_ID if a parent is absent or if the span would leave a
// gap in the client's counters.
func (g *Graph) Add(span id.IDSpan, parents []id.ID) (id.IDSpan, error) {
	if span.IsEmpty() {
		return id.IDSpan{}, nil
	}

	known := g.vv.Get(span.Client)
	if span.End <= known {
		return id.IDSpan{}, nil
	}
	if span.Start > known {
		return id.IDSpan{}, crdterr.New(crdterr.CodeUnknownID,
			"span %s starts after the client's last known counter", span).
			WithID(id.New(span.Client, known))
	}
	if span.Start < known {
		span = id.NewIDSpan(span.Client, known, span.End)
		parents = []id.ID{id.New(span.Client, known-1)}
	}

	deps := make([]id.ID, 0, len(parents)+1)
	for _, p := range parents {
		if !g.vv.Includes(p) {
			return id.IDSpan{}, crdterr.New(crdterr.CodeUnknownID,
				"parent of %s is not integrated", span).WithID(p)
		}
		if !slices.Contains(deps, p) {
			deps = append(deps, p)
		}
	}
	if span.Start > 0 {
		prev := id.New(span.Client, span.Start-1)
		if !slices.Contains(deps, prev) {
			deps = append(deps, prev)
		}
	}
	slices.SortFunc(deps, id.ID.Compare)

	var lamport Lamport
	for _, p := range deps {
		if l, _ := g.Lamport(p); l+1 > lamport {
			lamport = l + 1
		}
	}

	g.appendRun(Node{Span: span, Parents: deps, Lamport: lamport})
	g.order = append(g.order, span)
	g.vv.Extend(span)
	g.advanceFrontier(deps, span.Last())
	return span, nil
}

// appendRun extends the client's last run when the new node simply
// continues it, otherwise starts a new run.
func (g *Graph) appendRun(n Node) {
	runs := g.runs[n.Span.Client]
	if len(runs) > 0 {
		last := &runs[len(runs)-1]
		if last.Span.End == n.Span.Start && len(n.Parents) == 1 && n.Parents[0] == last.Span.Last() {
			last.Span.End = n.Span.End
			return
		}
	}
	g.runs[n.Span.Client] = append(runs, n)
}

func (g *Graph) advanceFrontier(deps []id.ID, last id.ID) {
	next := g.frontier[:0:0]
	for _, f := range g.frontier {
		if !slices.Contains(deps, f) {
			next = append(next, f)
		}
	}
	next = append(next, last)
	slices.SortFunc(next, id.ID.Compare)
	g.frontier = next
}

// Node returns the run containing i.
func (g *Graph) Node(i id.ID) (Node, bool) {
	runs := g.runs[i.Client]
	idx := sort.Search(len(runs), func(k int) bool { return runs[k].Span.End > i.Counter })
	if idx < len(runs) && runs[idx].Span.Contains(i) {
		return runs[idx], true
	}
	return Node{}, false
}

// Run returns the span and first-element parents of the run containing i.
func (g *Graph) Run(i id.ID) (id.IDSpan, []id.ID, bool) {
	n, ok := g.Node(i)
	return n.Span, n.Parents, ok
}

// ParentsOf returns the direct parents of i.
func (g *Graph) ParentsOf(i id.ID) ([]id.ID, bool) {
	n, ok := g.Node(i)
	if !ok {
		return nil, false
	}
	if i == n.Span.First() {
		return slices.Clone(n.Parents), true
	}
	return []id.ID{i.Inc(-1)}, true
}

// Lamport returns the timestamp of i.
func (g *Graph) Lamport(i id.ID) (Lamport, bool) {
	n, ok := g.Node(i)
	if !ok {
		return 0, false
	}
	return n.Lamport + Lamport(i.Counter-n.Span.Start), true
}

// Contains reports whether i is integrated.
func (g *Graph) Contains(i id.ID) bool {
	return g.vv.Includes(i)
}

// VersionVector returns a copy of the integrated version.
func (g *Graph) VersionVector() id.VersionVector {
	return g.vv.Clone()
}

// Frontier returns the maximal integrated ids, ordered by client.
func (g *Graph) Frontier() []id.ID {
	return slices.Clone(g.frontier)
}

// Diff returns the integrated spans not covered by vv.
func (g *Graph) Diff(vv id.VersionVector) id.IDSpanVector {
	return g.vv.Diff(vv)
}

// Spans yields the integrated spans in integration order. The order is a
// valid causal order.
func (g *Graph) Spans() iter.Seq[id.IDSpan] {
	return slices.Values(g.order)
}

// Len returns the number of integrated elements.
func (g *Graph) Len() int {
	n := 0
	for _, end := range g.vv {
		n += int(end)
	}
	return n
}

// FrontierToVersion returns the version vector of everything causally at or
// before the given ids.
func (g *Graph) FrontierToVersion(frontier []id.ID) (id.VersionVector, error) {
	vv := id.NewVersionVector()
	stack := slices.Clone(frontier)
	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if vv.Includes(cur) {
			continue
		}
		if !g.vv.Includes(cur) {
			return nil, crdterr.New(crdterr.CodeUnknownID, "frontier id is not integrated").WithID(cur)
		}

		// Everything below cur on its client is an ancestor. Runs below the
		// old coverage already had their parents pushed.
		old := vv.Get(cur.Client)
		vv[cur.Client] = cur.Counter + 1
		for _, run := range g.runs[cur.Client] {
			if run.Span.Start > cur.Counter {
				break
			}
			if run.Span.Start >= old {
				stack = append(stack, run.Parents...)
			}
		}
	}
	return vv, nil
}
