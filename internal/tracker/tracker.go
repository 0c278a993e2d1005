// Package tracker turns integrated but unapplied operations into the
// ordered effects a renderer applies to its view.
//
// An Iter walks a set of target id spans against a content.Store. Insert
// ranges are made current and emit Ins when they become visible. Delete
// ranges resolve to their targets, which are marked deleted and emit Del
// when the content was visible. The pass is lazy and single-use, and the
// store must not be touched by anything else while it runs.
package tracker

import (
	"fmt"
	"iter"
	"slices"

	"github.com/roach88/weft/internal/content"
	"github.com/roach88/weft/internal/crdterr"
	"github.com/roach88/weft/internal/id"
)

// Kind of an Effect.
type Kind uint8

const (
	Ins Kind = iota + 1
	Del
)

func (k Kind) String() string {
	switch k {
	case Ins:
		return "ins"
	case Del:
		return "del"
	}
	return fmt.Sprintf("effect(%d)", uint8(k))
}

// Effect is one edit of the rendered view. Ins carries Content and Len;
// Del carries Len only.
type Effect struct {
	Kind    Kind
	Pos     int
	Len     int
	Content content.Slice
}

func (e Effect) String() string {
	if e.Kind == Ins {
		return fmt.Sprintf("ins(%d, %v)", e.Pos, e.Content)
	}
	return fmt.Sprintf("%s(%d, %d)", e.Kind, e.Pos, e.Len)
}

// Store is the part of a content.Store a pass reads and updates.
type Store interface {
	Generation() uint64
	LookupFirst(sp id.IDSpan) (content.First, bool)
	Peek(c content.Cursor) (content.SpanView, bool, error)
	UpdateStatus(c content.Cursor, t content.Transition) (int, error)
	MarkDeleted(target id.IDSpan, by id.ID) ([]content.Region, error)
}

// Iter produces effects for a target set.
type Iter struct {
	store Store
	outer []id.IDSpan // stack, top is last
	work  []id.IDSpan // pending delete targets, top is last
	by    id.ID       // delete op the work list belongs to
	gen   uint64
	err   error
	done  bool
}

// New creates a pass over targets. Lower clients are processed first.
func New(store Store, targets id.IDSpanVector) *Iter {
	spans := targets.Spans()
	slices.Reverse(spans)
	return &Iter{store: store, outer: spans, gen: store.Generation()}
}

// Err returns the error that stopped the pass, if any. Every error is an
// invariant violation of the store.
func (it *Iter) Err() error {
	return it.err
}

func (it *Iter) fail(err error) (Effect, bool) {
	it.err = err
	it.done = true
	return Effect{}, false
}

func (it *Iter) invariant(format string, args ...any) *crdterr.Error {
	return crdterr.New(crdterr.CodeInvariantViolation, format, args...)
}

// Next returns the next effect, or false when the pass is finished or
// failed.
func (it *Iter) Next() (Effect, bool) {
	if it.done {
		return Effect{}, false
	}
	if g := it.store.Generation(); g != it.gen {
		return it.fail(it.invariant("store mutated during tracker pass: generation %d, want %d", g, it.gen))
	}
	for {
		if len(it.work) > 0 {
			e, ok, err := it.stepDelete()
			if err != nil {
				return it.fail(err)
			}
			if ok {
				return e, true
			}
			continue
		}
		if len(it.outer) == 0 {
			it.done = true
			return Effect{}, false
		}
		e, ok, err := it.stepOuter()
		if err != nil {
			return it.fail(err)
		}
		if ok {
			return e, true
		}
	}
}

// stepOuter consumes a prefix of the top outer target.
func (it *Iter) stepOuter() (Effect, bool, error) {
	top := &it.outer[len(it.outer)-1]
	f, ok := it.store.LookupFirst(*top)
	if !ok {
		return Effect{}, false, it.invariant("target %s is not integrated", *top).WithID(top.First())
	}
	if f.Len <= 0 || f.Len > top.Len() {
		return Effect{}, false, it.invariant("lookup of %s resolved %d elements", *top, f.Len).WithID(top.First())
	}
	if f.Kind == content.FirstInsert {
		if err := it.checkCursor(*top, f); err != nil {
			return Effect{}, false, err
		}
	}
	matched := id.SpanOf(top.First(), f.Len)
	top.Start += id.Counter(f.Len)
	if top.IsEmpty() {
		it.outer = it.outer[:len(it.outer)-1]
	}

	if f.Kind == content.FirstDelete {
		if id.TotalLen(f.Targets) != f.Len {
			return Effect{}, false, it.invariant("delete %s resolves %d targets", matched, id.TotalLen(f.Targets))
		}
		for _, t := range slices.Backward(f.Targets) {
			it.work = append(it.work, t)
		}
		it.by = matched.First()
		return Effect{}, false, nil
	}

	pos := f.Cursor.Index()
	delta, err := it.store.UpdateStatus(f.Cursor, content.SetAsCurrent)
	it.gen = it.store.Generation()
	if err != nil {
		return Effect{}, false, err
	}
	switch delta {
	case 0:
		return Effect{}, false, nil
	case f.Len:
		v, err := it.contentOf(matched)
		if err != nil {
			return Effect{}, false, err
		}
		return Effect{Kind: Ins, Pos: pos, Len: f.Len, Content: v}, true, nil
	}
	return Effect{}, false, it.invariant("insert %s changed visible length by %d", matched, delta)
}

// checkCursor verifies that the cursor of an insert lookup addresses the
// first id of top and that the matched prefix fits the span under it.
func (it *Iter) checkCursor(top id.IDSpan, f content.First) error {
	v, ok, err := it.store.Peek(f.Cursor)
	if err != nil {
		return err
	}
	if !ok || v.ID != top.First() || f.Len > v.Len {
		return it.invariant("cursor for %s addresses %s", top, v.IDs()).WithID(top.First())
	}
	return nil
}

// contentOf reads the content of a span that was just made current.
func (it *Iter) contentOf(sp id.IDSpan) (content.Slice, error) {
	f, ok := it.store.LookupFirst(sp)
	if !ok || f.Kind != content.FirstInsert || f.Len != sp.Len() {
		return nil, it.invariant("content %s moved during the pass", sp)
	}
	v, ok, err := it.store.Peek(f.Cursor)
	if err != nil {
		return nil, err
	}
	if !ok || v.Len < sp.Len() {
		return nil, it.invariant("content %s moved during the pass", sp)
	}
	return v.Content.Slice(0, sp.Len()), nil
}

// stepDelete consumes a prefix of the top delete target.
func (it *Iter) stepDelete() (Effect, bool, error) {
	top := &it.work[len(it.work)-1]
	f, ok := it.store.LookupFirst(*top)
	if !ok {
		return Effect{}, false, it.invariant("delete target %s is not integrated", *top).WithID(top.First())
	}
	if f.Kind != content.FirstInsert {
		return Effect{}, false, it.invariant("delete target %s names a delete", *top).WithID(top.First())
	}
	if f.Len <= 0 || f.Len > top.Len() {
		return Effect{}, false, it.invariant("lookup of %s resolved %d elements", *top, f.Len).WithID(top.First())
	}
	if err := it.checkCursor(*top, f); err != nil {
		return Effect{}, false, err
	}
	matched := id.SpanOf(top.First(), f.Len)
	top.Start += id.Counter(f.Len)
	if top.IsEmpty() {
		it.work = it.work[:len(it.work)-1]
	}

	regions, err := it.store.MarkDeleted(matched, it.by)
	it.gen = it.store.Generation()
	if err != nil {
		return Effect{}, false, err
	}
	switch {
	case len(regions) == 0:
		return Effect{}, false, nil
	case len(regions) == 1 && regions[0].Len == f.Len:
		return Effect{Kind: Del, Pos: regions[0].Pos, Len: f.Len}, true, nil
	}
	return Effect{}, false, it.invariant("delete by %s of %s hid %v", it.by, matched, regions)
}

// All adapts the pass to a range loop. Check Err afterwards.
func (it *Iter) All() iter.Seq[Effect] {
	return func(yield func(Effect) bool) {
		for {
			e, ok := it.Next()
			if !ok || !yield(e) {
				return
			}
		}
	}
}

// Collect drains it.
func Collect(it *Iter) ([]Effect, error) {
	var out []Effect
	for e := range it.All() {
		out = append(out, e)
	}
	return out, it.Err()
}

// Coalesce merges neighbouring effects that touch: an insert continuing the
// previous insert, or a delete at the position of the previous delete.
func Coalesce(effects []Effect) []Effect {
	out := effects[:0:0]
	for _, e := range effects {
		if k := len(out) - 1; k >= 0 && out[k].Kind == e.Kind {
			prev := &out[k]
			switch {
			case e.Kind == Ins && e.Pos == prev.Pos+prev.Len:
				prev.Content = content.Concat(prev.Content, e.Content)
				prev.Len += e.Len
				continue
			case e.Kind == Del && e.Pos == prev.Pos:
				prev.Len += e.Len
				continue
			}
		}
		out = append(out, e)
	}
	return out
}
