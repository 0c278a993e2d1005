// Package frontier computes the critical version of a causal history: the
// latest version every event of the history is comparable to. Events before
// it can be summarized without losing the ability to merge anything that
// follows.
//
// CriticalVersion sweeps the history breadth-first and is the production
// path. CriticalVersionDFS sweeps it depth-first and exists to cross-check
// the first; both always agree.
package frontier

import (
	"slices"

	mapset "github.com/deckarep/golang-set/v2"

	"github.com/roach88/weft/internal/crdterr"
	"github.com/roach88/weft/internal/id"
)

// Graph is the causal graph view the calculator reads.
type Graph interface {
	// Run returns the run containing i and the parents of the run's first
	// element. Later elements of a run depend only on their predecessor.
	Run(i id.ID) (span id.IDSpan, parents []id.ID, ok bool)
}

// Result of a critical version computation.
type Result struct {
	// Critical lists the critical ids found, latest first.
	Critical []id.ID
	// Version is the causal closure of the latest critical id.
	Version id.VersionVector
}

// Equal reports whether two results name the same critical ids and version.
func (r Result) Equal(o Result) bool {
	return slices.Equal(r.Critical, o.Critical) && r.Version.Equal(o.Version)
}

// EndList turns end versions into the set of maximal ids they name, sorted.
// Fails with UNKNOWN_END_VERSION if an end mentions an id absent from g.
func EndList(g Graph, ends []id.VersionVector) ([]id.ID, error) {
	all := mapset.NewThreadUnsafeSet[id.ID]()
	for _, vv := range ends {
		for _, last := range vv.LastIDs() {
			if _, _, ok := g.Run(last); !ok {
				return nil, crdterr.New(crdterr.CodeUnknownEndVersion,
					"end version %s names an id absent from the graph", vv).WithID(last)
			}
			all.Add(last)
		}
	}

	ids := all.ToSlice()
	slices.SortFunc(ids, id.ID.Compare)
	out := ids[:0:0]
	for _, a := range ids {
		dominated := false
		for _, b := range ids {
			if a != b && precedes(g, a, b) {
				dominated = true
				break
			}
		}
		if !dominated {
			out = append(out, a)
		}
	}
	return out, nil
}

// precedes reports whether a is a strict ancestor of b.
func precedes(g Graph, a, b id.ID) bool {
	if a == b {
		return false
	}
	seen := mapset.NewThreadUnsafeSet[id.ID]()
	stack := []id.ID{b}
	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if cur.Client == a.Client && cur.Counter >= a.Counter {
			return true
		}
		span, parents, ok := g.Run(cur)
		if !ok || !seen.Add(span.First()) {
			continue
		}
		stack = append(stack, parents...)
	}
	return false
}

// CriticalVersion computes the critical version of the history below ends
// with a breadth-first sweep.
func CriticalVersion(g Graph, ends ...id.VersionVector) (Result, error) {
	sg, err := build(g, ends)
	if err != nil {
		return Result{}, err
	}
	return sg.sweep(sg.kahnOrder()), nil
}

// CriticalVersionDFS computes the same result as CriticalVersion with a
// depth-first sweep.
func CriticalVersionDFS(g Graph, ends ...id.VersionVector) (Result, error) {
	sg, err := build(g, ends)
	if err != nil {
		return Result{}, err
	}
	return sg.sweep(sg.postOrderReversed()), nil
}
