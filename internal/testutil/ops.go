package testutil

import (
	"math/rand/v2"
	"slices"

	"github.com/roach88/weft/internal/content"
	"github.com/roach88/weft/internal/id"
	"github.com/roach88/weft/internal/op"
)

// Insert builds a text insert op. A nil origin anchors at the document
// start.
func Insert(at id.ID, text string, origin *id.ID, parents ...id.ID) op.Op {
	body := content.NewText(text)
	return op.Op{
		ID:      at,
		Len:     body.Len(),
		Kind:    op.Insert,
		Parents: parents,
		Content: body,
		Origin:  origin,
	}
}

// Delete builds a delete op over targets.
func Delete(at id.ID, targets []id.IDSpan, parents ...id.ID) op.Op {
	return op.Op{
		ID:      at,
		Len:     id.TotalLen(targets),
		Kind:    op.Delete,
		Parents: parents,
		Targets: targets,
	}
}

// Ptr returns a pointer to i, for op origins.
func Ptr(i id.ID) *id.ID {
	return &i
}

// Shuffle returns ops in a random order that still delivers every op after
// its parents and after the earlier ops of its own client. The same seed
// yields the same order. Ops whose dependencies are never delivered are
// appended at the end in input order.
func Shuffle(seed uint64, ops []op.Op) []op.Op {
	r := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	pending := slices.Clone(ops)
	known := id.NewVersionVector()
	out := make([]op.Op, 0, len(ops))

	for len(pending) > 0 {
		var ready []int
		for i, o := range pending {
			if deliverable(known, o) {
				ready = append(ready, i)
			}
		}
		if len(ready) == 0 {
			return append(out, pending...)
		}
		i := ready[r.IntN(len(ready))]
		o := pending[i]
		pending = slices.Delete(pending, i, i+1)
		out = append(out, o)
		known.Extend(o.Span())
	}
	return out
}

func deliverable(known id.VersionVector, o op.Op) bool {
	if o.ID.Counter > known.Get(o.ID.Client) {
		return false
	}
	for _, p := range o.Parents {
		if !known.Includes(p) {
			return false
		}
	}
	return true
}
