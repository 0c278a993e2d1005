// Package op defines the operation records exchanged between replicas.
package op

import (
	"cmp"
	"fmt"
	"slices"

	"github.com/roach88/weft/internal/content"
	"github.com/roach88/weft/internal/crdterr"
	"github.com/roach88/weft/internal/id"
)

// Kind distinguishes inserts from deletes.
type Kind uint8

const (
	Insert Kind = iota + 1
	Delete
)

func (k Kind) String() string {
	switch k {
	case Insert:
		return "insert"
	case Delete:
		return "delete"
	}
	return fmt.Sprintf("kind(%d)", uint8(k))
}

// ParseKind parses the String form of a kind.
func ParseKind(s string) (Kind, error) {
	switch s {
	case "insert":
		return Insert, nil
	case "delete":
		return Delete, nil
	}
	return 0, fmt.Errorf("unknown op kind %q", s)
}

// Op is a run of Len elements starting at ID.
//
// Parents are the causal parents of the first element; each later element
// depends on the one before it. Inserts carry Content and Origin, the
// element to the left of the content when it was created (nil for the
// document start). Deletes carry Targets, the content ids they remove.
type Op struct {
	ID      id.ID
	Len     int
	Kind    Kind
	Parents []id.ID
	Content content.Slice
	Origin  *id.ID
	Targets []id.IDSpan
}

// Span returns the ids the op covers.
func (o Op) Span() id.IDSpan {
	return id.SpanOf(o.ID, o.Len)
}

// Validate checks the op is well formed.
func (o Op) Validate() error {
	fail := func(format string, args ...any) error {
		return crdterr.New(crdterr.CodeInvalidOp, format, args...).WithID(o.ID)
	}
	if o.Len <= 0 {
		return fail("op length %d", o.Len)
	}
	if o.ID.Counter < 0 {
		return fail("negative counter")
	}
	switch o.Kind {
	case Insert:
		if o.Content == nil || o.Content.Len() != o.Len {
			return fail("insert of %d elements carries %d", o.Len, contentLen(o.Content))
		}
		if len(o.Targets) > 0 {
			return fail("insert carries delete targets")
		}
	case Delete:
		if got := id.TotalLen(o.Targets); got != o.Len {
			return fail("delete of %d elements targets %d", o.Len, got)
		}
		for _, t := range o.Targets {
			if t.IsEmpty() {
				return fail("empty delete target")
			}
		}
		if a, b, ok := overlapping(o.Targets); ok {
			return fail("delete targets %s and %s overlap", a, b)
		}
		if o.Content != nil || o.Origin != nil {
			return fail("delete carries insert fields")
		}
	default:
		return fail("unknown kind %s", o.Kind)
	}
	return nil
}

// overlapping returns two targets that share an id. Targets must be
// non-empty.
func overlapping(targets []id.IDSpan) (id.IDSpan, id.IDSpan, bool) {
	if len(targets) < 2 {
		return id.IDSpan{}, id.IDSpan{}, false
	}
	sorted := slices.SortedFunc(slices.Values(targets), func(a, b id.IDSpan) int {
		return cmp.Or(cmp.Compare(a.Client, b.Client), cmp.Compare(a.Start, b.Start))
	})
	for i := 1; i < len(sorted); i++ {
		if _, ok := sorted[i-1].Intersect(sorted[i]); ok {
			return sorted[i-1], sorted[i], true
		}
	}
	return id.IDSpan{}, id.IDSpan{}, false
}

func contentLen(c content.Slice) int {
	if c == nil {
		return 0
	}
	return c.Len()
}

// Trim drops the elements before counter and returns the remainder. The
// remainder depends only on the element preceding it, and an insert
// remainder is anchored after that element. ok is false when nothing
// remains.
func (o Op) Trim(counter id.Counter) (Op, bool) {
	if counter <= o.ID.Counter {
		return o, true
	}
	skip := int(counter - o.ID.Counter)
	if skip >= o.Len {
		return Op{}, false
	}
	prev := o.ID.Inc(skip - 1)
	out := Op{
		ID:      o.ID.Inc(skip),
		Len:     o.Len - skip,
		Kind:    o.Kind,
		Parents: []id.ID{prev},
	}
	switch o.Kind {
	case Insert:
		out.Content = o.Content.Slice(skip, o.Len)
		out.Origin = &prev
	case Delete:
		out.Targets = id.SliceSpans(o.Targets, skip, o.Len)
	}
	return out, true
}

// Clone returns a deep copy of the slices an Op owns. Content is immutable
// and shared.
func (o Op) Clone() Op {
	o.Parents = slices.Clone(o.Parents)
	o.Targets = slices.Clone(o.Targets)
	if o.Origin != nil {
		origin := *o.Origin
		o.Origin = &origin
	}
	return o
}

func (o Op) String() string {
	switch o.Kind {
	case Insert:
		origin := "start"
		if o.Origin != nil {
			origin = o.Origin.String()
		}
		return fmt.Sprintf("insert %s after %s: %v", o.Span(), origin, o.Content)
	case Delete:
		return fmt.Sprintf("delete %s of %v", o.Span(), o.Targets)
	}
	return fmt.Sprintf("%s %s", o.Kind, o.Span())
}
