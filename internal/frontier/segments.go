package frontier

import (
	"slices"

	mapset "github.com/deckarep/golang-set/v2"

	"github.com/roach88/weft/internal/crdterr"
	"github.com/roach88/weft/internal/id"
)

// segment is a piece of a run that ends at a referenced id. Only the last
// element of a segment has children outside it.
type segment struct {
	span    id.IDSpan
	parents []id.ID // last ids of parent segments
}

// segmentGraph is the history below a set of ends, cut at every id some
// event or end refers to. Segments are keyed by their last id.
type segmentGraph struct {
	ends []id.ID
	segs map[id.ID]*segment
}

func build(g Graph, endVersions []id.VersionVector) (*segmentGraph, error) {
	ends, err := EndList(g, endVersions)
	if err != nil {
		return nil, err
	}
	sg := &segmentGraph{ends: ends, segs: make(map[id.ID]*segment)}
	if len(ends) == 0 {
		return sg, nil
	}

	// Collect every referenced point and the run that holds it.
	type run struct {
		span    id.IDSpan
		parents []id.ID
	}
	runs := make(map[id.ID]run) // keyed by run first id
	points := make(map[id.ClientID][]id.Counter)
	seen := mapset.NewThreadUnsafeSet[id.ID]()
	stack := slices.Clone(ends)
	for len(stack) > 0 {
		p := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if !seen.Add(p) {
			continue
		}
		span, parents, ok := g.Run(p)
		if !ok {
			return nil, crdterr.New(crdterr.CodeUnknownID, "parent is absent from the graph").WithID(p)
		}
		points[p.Client] = append(points[p.Client], p.Counter)
		if _, ok := runs[span.First()]; !ok {
			runs[span.First()] = run{span: span, parents: parents}
			stack = append(stack, parents...)
		}
	}

	for client, counters := range points {
		slices.Sort(counters)
		for i, c := range counters {
			last := id.New(client, c)
			span, parents, _ := g.Run(last)
			start := span.Start
			if i > 0 && counters[i-1] >= span.Start {
				start = counters[i-1] + 1
				parents = []id.ID{id.New(client, start-1)}
			}
			sg.segs[last] = &segment{
				span:    id.NewIDSpan(client, start, c+1),
				parents: slices.Clone(parents),
			}
		}
	}
	sg.reduce()
	return sg, nil
}

// reduce drops parents that are ancestors of another parent of the same
// segment, so every remaining edge is a covering edge.
func (sg *segmentGraph) reduce() {
	for _, s := range sg.segs {
		if len(s.parents) < 2 {
			continue
		}
		kept := s.parents[:0:0]
		for _, p := range s.parents {
			redundant := false
			for _, q := range s.parents {
				if p != q && sg.reaches(q, p) {
					redundant = true
					break
				}
			}
			if !redundant {
				kept = append(kept, p)
			}
		}
		slices.SortFunc(kept, id.ID.Compare)
		s.parents = kept
	}
}

// reaches reports whether target is from or one of its ancestors.
func (sg *segmentGraph) reaches(from, target id.ID) bool {
	seen := mapset.NewThreadUnsafeSet[id.ID]()
	stack := []id.ID{from}
	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if cur == target {
			return true
		}
		if !seen.Add(cur) {
			continue
		}
		if s, ok := sg.segs[cur]; ok {
			stack = append(stack, s.parents...)
		}
	}
	return false
}

// keys returns the segment keys sorted.
func (sg *segmentGraph) keys() []id.ID {
	out := make([]id.ID, 0, len(sg.segs))
	for k := range sg.segs {
		out = append(out, k)
	}
	slices.SortFunc(out, id.ID.Compare)
	return out
}

// closure returns the version vector of last and everything before it.
func (sg *segmentGraph) closure(last id.ID) id.VersionVector {
	vv := id.NewVersionVector()
	seen := mapset.NewThreadUnsafeSet[id.ID]()
	stack := []id.ID{last}
	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if !seen.Add(cur) {
			continue
		}
		s := sg.segs[cur]
		vv.Extend(id.NewIDSpan(s.span.Client, 0, s.span.End))
		stack = append(stack, s.parents...)
	}
	return vv
}
