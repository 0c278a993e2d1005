package content

import (
	"github.com/roach88/weft/internal/id"
)

// Cursor addresses a position inside a span of a Store, optionally with a
// length. A cursor is valid only for the store generation that issued it;
// any mutation invalidates it.
type Cursor struct {
	arena  int32 // -1 past the last span
	offset int
	n      int
	index  int
	gen    uint64
}

// IsEnd reports whether c is past the last span.
func (c Cursor) IsEnd() bool { return c.arena < 0 }

// Len is the number of elements the cursor addresses.
func (c Cursor) Len() int { return c.n }

// Index is the visible position of the cursor: the number of visible
// elements before it.
func (c Cursor) Index() int { return c.index }

// FirstKind tells whether a lookup hit content or a delete record.
type FirstKind uint8

const (
	FirstInsert FirstKind = iota + 1
	FirstDelete
)

// First is the result of Store.LookupFirst.
type First struct {
	Kind FirstKind
	ID   id.ID
	Len  int

	// Cursor addresses the content when Kind is FirstInsert.
	Cursor Cursor

	// Targets holds the deleted content ids when Kind is FirstDelete.
	Targets []id.IDSpan
}

// SpanView is a read-only view of one physical span.
type SpanView struct {
	ID      id.ID
	Len     int
	Status  Status
	Content Slice
	// Pos is the number of visible elements before the span.
	Pos int
}

// IDs returns the ids the span covers.
func (v SpanView) IDs() id.IDSpan {
	return id.SpanOf(v.ID, v.Len)
}
