package frontier

import (
	"slices"

	mapset "github.com/deckarep/golang-set/v2"

	"github.com/roach88/weft/internal/id"
)

// kahnOrder lists segments children first, breadth-first from the ends.
func (sg *segmentGraph) kahnOrder() []id.ID {
	pending := make(map[id.ID]int, len(sg.segs))
	for _, k := range sg.keys() {
		for _, p := range sg.segs[k].parents {
			pending[p]++
		}
	}

	queue := make([]id.ID, 0, len(sg.segs))
	for _, e := range sg.ends {
		if pending[e] == 0 {
			queue = append(queue, e)
		}
	}
	for i := 0; i < len(queue); i++ {
		for _, p := range sg.segs[queue[i]].parents {
			pending[p]--
			if pending[p] == 0 {
				queue = append(queue, p)
			}
		}
	}
	return queue
}

// postOrderReversed lists segments children first as the reverse of a
// depth-first post-order from the ends.
func (sg *segmentGraph) postOrderReversed() []id.ID {
	type frame struct {
		key  id.ID
		next int
	}
	visited := mapset.NewThreadUnsafeSet[id.ID]()
	order := make([]id.ID, 0, len(sg.segs))
	for _, e := range sg.ends {
		if !visited.Add(e) {
			continue
		}
		stack := []frame{{key: e}}
		for len(stack) > 0 {
			top := &stack[len(stack)-1]
			parents := sg.segs[top.key].parents
			if top.next < len(parents) {
				p := parents[top.next]
				top.next++
				if visited.Add(p) {
					stack = append(stack, frame{key: p})
				}
				continue
			}
			order = append(order, top.key)
			stack = stack[:len(stack)-1]
		}
	}
	slices.Reverse(order)
	return order
}

// sweep walks segments children first. A segment is critical when, as it
// is reached, it is the only member of the cut (unvisited segments that
// are ends or parents of visited ones) and no root has been visited.
func (sg *segmentGraph) sweep(order []id.ID) Result {
	res := Result{Version: id.NewVersionVector()}
	cut := mapset.NewThreadUnsafeSet(sg.ends...)
	rootSeen := false
	for _, k := range order {
		if !rootSeen && cut.Cardinality() == 1 && cut.Contains(k) {
			res.Critical = append(res.Critical, k)
		}
		cut.Remove(k)
		parents := sg.segs[k].parents
		if len(parents) == 0 {
			rootSeen = true
		}
		cut.Append(parents...)
	}
	if len(res.Critical) > 0 {
		res.Version = sg.closure(res.Critical[0])
	}
	return res
}
