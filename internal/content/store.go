package content

import (
	"errors"
	"fmt"
	"iter"
	"slices"
	"strings"

	"github.com/tidwall/btree"

	"github.com/roach88/weft/internal/crdterr"
	"github.com/roach88/weft/internal/id"
)

// span is one arena slot.
type span struct {
	first   id.ID
	n       int
	status  Status
	content Slice
}

func (s *span) ids() id.IDSpan {
	return id.SpanOf(s.first, s.n)
}

func (s *span) visibleLen() int {
	if s.status.Visible() {
		return s.n
	}
	return 0
}

// entry maps an id range to an arena span (insert) or to the targets of a
// delete operation.
type entry struct {
	client  id.ClientID
	start   id.Counter
	n       int
	arena   int32 // -1 for deletes
	targets []id.IDSpan
}

func (e entry) isDelete() bool { return e.arena < 0 }

func (e entry) ids() id.IDSpan {
	return id.NewIDSpan(e.client, e.start, e.start+id.Counter(e.n))
}

func entryLess(a, b entry) bool {
	if a.client != b.client {
		return a.client < b.client
	}
	return a.start < b.start
}

// Store is the ordered sequence of content spans of one container plus an
// index from operation ids to the spans or delete records covering them.
//
// Spans live in an arena and are never removed; document order is a slice
// of arena indices. Cursors are arena index plus offset and are stamped
// with the store generation, which every mutation advances.
//
// A Store is not safe for concurrent use.
type Store struct {
	arena []span
	order []int32
	index *btree.BTreeG[entry]
	gen   uint64

	dirty bool
	pos   []int // arena index -> order position
	vis   []int // order position -> visible elements before it
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{
		index: btree.NewBTreeGOptions(entryLess, btree.Options{NoLocks: true, Degree: 8}),
		vis:   []int{0},
	}
}

// Generation returns the mutation counter.
func (s *Store) Generation() uint64 {
	return s.gen
}

func (s *Store) touch() {
	s.gen++
	s.dirty = true
}

func (s *Store) layout() {
	if !s.dirty {
		return
	}
	if cap(s.pos) < len(s.arena) {
		s.pos = make([]int, len(s.arena))
	}
	s.pos = s.pos[:len(s.arena)]
	s.vis = slices.Grow(s.vis[:0], len(s.order)+1)[:len(s.order)+1]
	s.vis[0] = 0
	for p, a := range s.order {
		s.pos[a] = p
		s.vis[p+1] = s.vis[p] + s.arena[a].visibleLen()
	}
	s.dirty = false
}

// Len returns the number of visible elements.
func (s *Store) Len() int {
	s.layout()
	return s.vis[len(s.order)]
}

// SpanCount returns the number of physical spans.
func (s *Store) SpanCount() int {
	return len(s.arena)
}

// find returns the index entry covering i.
func (s *Store) find(i id.ID) (entry, bool) {
	var found entry
	var ok bool
	s.index.Descend(entry{client: i.Client, start: i.Counter}, func(e entry) bool {
		if e.client == i.Client && e.ids().Contains(i) {
			found, ok = e, true
		}
		return false
	})
	return found, ok
}

// overlaps reports whether any indexed id falls inside sp.
func (s *Store) overlaps(sp id.IDSpan) bool {
	if _, ok := s.find(sp.First()); ok {
		return true
	}
	hit := false
	s.index.Ascend(entry{client: sp.Client, start: sp.Start}, func(e entry) bool {
		if e.client == sp.Client && e.start < sp.End {
			hit = true
		}
		return false
	})
	return hit
}

func (s *Store) checkCursor(c Cursor) error {
	if c.gen != s.gen {
		return crdterr.New(crdterr.CodeInvariantViolation,
			"stale cursor: issued at generation %d, store at %d", c.gen, s.gen)
	}
	if c.arena >= int32(len(s.arena)) || (c.arena >= 0 && c.offset >= s.arena[c.arena].n) {
		return crdterr.New(crdterr.CodeInvariantViolation, "cursor outside the arena")
	}
	return nil
}

// split cuts arena span a after offset elements and returns the arena
// index of the right piece, which directly follows a in document order.
// The offset must fall strictly inside the span.
func (s *Store) split(a int32, offset int) (int32, error) {
	s.layout()
	left := &s.arena[a]
	lids, rids, err := left.ids().SplitAt(offset)
	if err != nil {
		return 0, err
	}
	right := span{
		first:   rids.First(),
		n:       rids.Len(),
		status:  left.status,
		content: left.content.Slice(offset, left.n),
	}
	left.content = left.content.Slice(0, offset)
	left.n = lids.Len()
	s.index.Set(entry{client: lids.Client, start: lids.Start, n: left.n, arena: a})

	r := int32(len(s.arena))
	s.arena = append(s.arena, right)
	s.order = slices.Insert(s.order, s.pos[a]+1, r)
	s.index.Set(entry{client: rids.Client, start: rids.Start, n: right.n, arena: r})
	s.touch()
	return r, nil
}

// cursorAt builds a cursor for offset inside arena span a.
func (s *Store) cursorAt(a int32, offset, n int) Cursor {
	s.layout()
	sp := &s.arena[a]
	idx := s.vis[s.pos[a]]
	if sp.status.Visible() {
		idx += offset
	}
	return Cursor{arena: a, offset: offset, n: n, index: idx, gen: s.gen}
}

// IntegrateInsert places content with ids span immediately before the
// element at cursor at. The placement policy belongs to the caller. New
// content starts in the Future state; the tracker makes it current.
func (s *Store) IntegrateInsert(sp id.IDSpan, c Slice, at Cursor) error {
	if sp.IsEmpty() || c == nil || c.Len() != sp.Len() {
		return crdterr.New(crdterr.CodeInvalidOp, "insert %s carries %d elements", sp, sliceLen(c))
	}
	if s.overlaps(sp) {
		return crdterr.New(crdterr.CodeDuplicateID, "insert %s overlaps integrated ids", sp).WithID(sp.First())
	}
	if err := s.checkCursor(at); err != nil {
		return err
	}

	s.layout()
	var pos int
	switch {
	case at.arena < 0:
		pos = len(s.order)
	case at.offset > 0:
		r, err := s.split(at.arena, at.offset)
		if err != nil {
			return err
		}
		s.layout()
		pos = s.pos[r]
	default:
		pos = s.pos[at.arena]
	}

	a := int32(len(s.arena))
	s.arena = append(s.arena, span{first: sp.First(), n: sp.Len(), status: Status{Future: true}, content: c})
	s.order = slices.Insert(s.order, pos, a)
	s.index.Set(entry{client: sp.Client, start: sp.Start, n: sp.Len(), arena: a})
	s.touch()
	return nil
}

func sliceLen(c Slice) int {
	if c == nil {
		return 0
	}
	return c.Len()
}

// IntegrateDelete indexes a delete operation whose ids are sp and whose
// targets are the content it removes. Target content must be integrated.
func (s *Store) IntegrateDelete(sp id.IDSpan, targets []id.IDSpan) error {
	if sp.IsEmpty() || id.TotalLen(targets) != sp.Len() {
		return crdterr.New(crdterr.CodeInvalidOp,
			"delete %s targets %d elements", sp, id.TotalLen(targets))
	}
	if s.overlaps(sp) {
		return crdterr.New(crdterr.CodeDuplicateID, "delete %s overlaps integrated ids", sp).WithID(sp.First())
	}
	if err := s.CheckTargets(targets); err != nil {
		return err
	}
	s.index.Set(entry{client: sp.Client, start: sp.Start, n: sp.Len(), arena: -1, targets: slices.Clone(targets)})
	s.gen++
	return nil
}

// CheckTargets verifies that every target id is integrated content.
func (s *Store) CheckTargets(targets []id.IDSpan) error {
	for _, t := range targets {
		if err := s.checkContent(t); err != nil {
			return err
		}
	}
	return nil
}

// checkContent verifies that every id of t is integrated content.
func (s *Store) checkContent(t id.IDSpan) error {
	for cur := t; !cur.IsEmpty(); {
		e, ok := s.find(cur.First())
		if !ok {
			return crdterr.New(crdterr.CodeUnknownID, "target %s is not integrated", t).WithID(cur.First())
		}
		if e.isDelete() {
			return crdterr.New(crdterr.CodeInvalidOp, "target %s names a delete operation", t).WithID(cur.First())
		}
		cur.Start = min(e.start+id.Counter(e.n), cur.End)
	}
	return nil
}

// LookupFirst resolves the first id of sp. The result covers a prefix of sp
// that lies inside a single span or delete record. It returns false when
// nothing covers the id.
func (s *Store) LookupFirst(sp id.IDSpan) (First, bool) {
	if sp.IsEmpty() {
		return First{}, false
	}
	e, ok := s.find(sp.First())
	if !ok {
		return First{}, false
	}
	offset := int(sp.Start - e.start)
	n := min(e.n-offset, sp.Len())
	if e.isDelete() {
		return First{
			Kind:    FirstDelete,
			ID:      sp.First(),
			Len:     n,
			Targets: id.SliceSpans(e.targets, offset, offset+n),
		}, true
	}
	return First{
		Kind:   FirstInsert,
		ID:     sp.First(),
		Len:    n,
		Cursor: s.cursorAt(e.arena, offset, n),
	}, true
}

// UpdateStatus applies t to exactly the range addressed by c, splitting
// spans as needed, and returns the change in visible length.
func (s *Store) UpdateStatus(c Cursor, t Transition) (int, error) {
	if err := s.checkCursor(c); err != nil {
		return 0, err
	}
	if c.arena < 0 || c.n <= 0 || c.offset+c.n > s.arena[c.arena].n {
		return 0, crdterr.New(crdterr.CodeInvariantViolation, "cursor range does not fit its span")
	}

	next, err := s.arena[c.arena].status.apply(t)
	if err != nil {
		return 0, err
	}
	old := s.arena[c.arena].status
	if next == old {
		return 0, nil
	}

	a := c.arena
	if c.offset > 0 {
		if a, err = s.split(a, c.offset); err != nil {
			return 0, err
		}
	}
	if c.n < s.arena[a].n {
		if _, err := s.split(a, c.n); err != nil {
			return 0, err
		}
	}
	s.arena[a].status = next
	s.touch()

	switch {
	case !old.Visible() && next.Visible():
		return c.n, nil
	case old.Visible() && !next.Visible():
		return -c.n, nil
	}
	return 0, nil
}

// MarkDeleted applies one more delete to every span overlapping target and
// returns the regions that became invisible, each positioned in the view
// as it stands after the previous regions were removed.
func (s *Store) MarkDeleted(target id.IDSpan, by id.ID) ([]Region, error) {
	if err := s.checkContent(target); err != nil {
		var e *crdterr.Error
		if errors.As(err, &e) {
			e.With("delete", by.String())
		}
		return nil, err
	}

	var regions []Region
	for cur := target; !cur.IsEmpty(); {
		f, ok := s.LookupFirst(cur)
		if !ok || f.Kind != FirstInsert {
			return regions, crdterr.New(crdterr.CodeInvariantViolation,
				"target %s lost its content during delete", target).WithID(cur.First())
		}
		pos := f.Cursor.Index()
		delta, err := s.UpdateStatus(f.Cursor, Delete)
		if err != nil {
			return regions, err
		}
		if delta < 0 {
			regions = append(regions, Region{Pos: pos, Len: -delta})
		}
		cur.Start += id.Counter(f.Len)
	}
	return regions, nil
}

// Region is a visible position range.
type Region struct {
	Pos int
	Len int
}

// Spans yields the physical spans in document order.
func (s *Store) Spans() iter.Seq[SpanView] {
	return func(yield func(SpanView) bool) {
		s.layout()
		for p, a := range s.order {
			sp := &s.arena[a]
			v := SpanView{ID: sp.first, Len: sp.n, Status: sp.status, Content: sp.content, Pos: s.vis[p]}
			if !yield(v) {
				return
			}
		}
	}
}

// Content returns the visible content, or nil if nothing is visible.
func (s *Store) Content() Slice {
	var parts []Slice
	for _, a := range s.order {
		if sp := &s.arena[a]; sp.status.Visible() {
			parts = append(parts, sp.content)
		}
	}
	return Concat(parts...)
}

// VisibleID returns the id of the visible element at pos.
func (s *Store) VisibleID(pos int) (id.ID, bool) {
	s.layout()
	if pos < 0 || pos >= s.Len() {
		return id.ID{}, false
	}
	p, _ := slices.BinarySearch(s.vis, pos+1)
	a := s.order[p-1]
	return s.arena[a].first.Inc(pos - s.vis[p-1]), true
}

// VisibleSpans returns the ids of the visible elements [pos, pos+n) in
// document order, merging adjacent ids of the same run.
func (s *Store) VisibleSpans(pos, n int) ([]id.IDSpan, error) {
	s.layout()
	if pos < 0 || n < 0 || pos+n > s.Len() {
		return nil, crdterr.New(crdterr.CodeOutOfRange,
			"range [%d,%d) outside visible length %d", pos, pos+n, s.Len())
	}
	var out []id.IDSpan
	end := pos + n
	for p, a := range s.order {
		sp := &s.arena[a]
		lo, hi := s.vis[p], s.vis[p+1]
		if hi <= pos || !sp.status.Visible() {
			continue
		}
		if lo >= end {
			break
		}
		from, to := max(pos, lo)-lo, min(end, hi)-lo
		ids := sp.ids().Slice(from, to)
		if k := len(out) - 1; k >= 0 && out[k].Client == ids.Client && out[k].End == ids.Start {
			out[k].End = ids.End
		} else {
			out = append(out, ids)
		}
	}
	return out, nil
}

// Start returns a cursor at the first span, or End for an empty store.
func (s *Store) Start() Cursor {
	if len(s.order) == 0 {
		return s.End()
	}
	return s.cursorAt(s.order[0], 0, 0)
}

// End returns the cursor past the last span.
func (s *Store) End() Cursor {
	s.layout()
	return Cursor{arena: -1, index: s.Len(), gen: s.gen}
}

// CursorAfter returns the cursor directly after the content element i.
func (s *Store) CursorAfter(i id.ID) (Cursor, error) {
	e, ok := s.find(i)
	if !ok {
		return Cursor{}, crdterr.New(crdterr.CodeUnknownID, "element is not integrated").WithID(i)
	}
	if e.isDelete() {
		return Cursor{}, crdterr.New(crdterr.CodeInvalidOp, "id names a delete operation").WithID(i)
	}
	offset := int(i.Counter-e.start) + 1
	if offset < e.n {
		return s.cursorAt(e.arena, offset, 0), nil
	}
	return s.next(e.arena), nil
}

// next returns the cursor at the start of the span following arena a.
func (s *Store) next(a int32) Cursor {
	s.layout()
	p := s.pos[a] + 1
	if p >= len(s.order) {
		return s.End()
	}
	return s.cursorAt(s.order[p], 0, 0)
}

// Peek returns the remainder of the span at c, from the cursor offset on.
// It returns false at End.
func (s *Store) Peek(c Cursor) (SpanView, bool, error) {
	if err := s.checkCursor(c); err != nil {
		return SpanView{}, false, err
	}
	if c.arena < 0 {
		return SpanView{}, false, nil
	}
	sp := &s.arena[c.arena]
	return SpanView{
		ID:      sp.first.Inc(c.offset),
		Len:     sp.n - c.offset,
		Status:  sp.status,
		Content: sp.content.Slice(c.offset, sp.n),
		Pos:     c.index,
	}, true, nil
}

// Skip returns the cursor at the start of the span after the one at c.
func (s *Store) Skip(c Cursor) (Cursor, error) {
	if err := s.checkCursor(c); err != nil {
		return Cursor{}, err
	}
	if c.arena < 0 {
		return c, nil
	}
	return s.next(c.arena), nil
}

// Coverage returns the indexed id ranges, merged and ordered by client.
func (s *Store) Coverage() []id.IDSpan {
	var out []id.IDSpan
	s.index.Scan(func(e entry) bool {
		sp := e.ids()
		if k := len(out) - 1; k >= 0 && out[k].Client == sp.Client && out[k].End == sp.Start {
			out[k].End = sp.End
		} else {
			out = append(out, sp)
		}
		return true
	})
	return out
}

// CheckInvariants verifies the arena, order, index and layout agree and
// that no id is indexed twice.
func (s *Store) CheckInvariants() error {
	fail := func(format string, args ...any) error {
		return crdterr.New(crdterr.CodeInvariantViolation, format, args...)
	}

	if len(s.order) != len(s.arena) {
		return fail("order holds %d spans, arena %d", len(s.order), len(s.arena))
	}
	seen := make([]bool, len(s.arena))
	for _, a := range s.order {
		if a < 0 || int(a) >= len(s.arena) || seen[a] {
			return fail("arena index %d repeated or out of range in order", a)
		}
		seen[a] = true
	}

	indexed := make([]bool, len(s.arena))
	var prev *entry
	var err error
	s.index.Scan(func(e entry) bool {
		if prev != nil && prev.client == e.client && prev.start+id.Counter(prev.n) > e.start {
			err = fail("index entries %s and %s overlap", prev.ids(), e.ids())
			return false
		}
		if e.n <= 0 {
			err = fail("empty index entry at %s", e.ids())
			return false
		}
		if e.isDelete() {
			if id.TotalLen(e.targets) != e.n {
				err = fail("delete %s has %d targets", e.ids(), id.TotalLen(e.targets))
				return false
			}
		} else {
			if int(e.arena) >= len(s.arena) || indexed[e.arena] {
				err = fail("entry %s points at bad arena slot %d", e.ids(), e.arena)
				return false
			}
			sp := &s.arena[e.arena]
			if sp.ids() != e.ids() || sp.content.Len() != sp.n {
				err = fail("entry %s disagrees with span %s", e.ids(), sp.ids())
				return false
			}
			indexed[e.arena] = true
		}
		cp := e
		prev = &cp
		return true
	})
	if err != nil {
		return err
	}
	for a, ok := range indexed {
		if !ok {
			return fail("span %s is not indexed", s.arena[a].ids())
		}
	}

	if !s.dirty {
		total := 0
		for p, a := range s.order {
			if s.vis[p] != total || s.pos[a] != p {
				return fail("layout cache is stale at order position %d", p)
			}
			total += s.arena[a].visibleLen()
		}
		if s.vis[len(s.order)] != total {
			return fail("visible length cache %d, recount %d", s.vis[len(s.order)], total)
		}
	}
	return nil
}

// String renders the span table for debugging.
func (s *Store) String() string {
	var b strings.Builder
	for v := range s.Spans() {
		fmt.Fprintf(&b, "%s %s %v\n", id.SpanOf(v.ID, v.Len), v.Status, v.Content)
	}
	return b.String()
}
