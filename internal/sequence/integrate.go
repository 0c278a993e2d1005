package sequence

import (
	"github.com/roach88/weft/internal/content"
	"github.com/roach88/weft/internal/crdterr"
	"github.com/roach88/weft/internal/dag"
	"github.com/roach88/weft/internal/id"
	"github.com/roach88/weft/internal/op"
)

// integrate adds one op to the graph and the store without applying it.
func (c *Container) integrate(o op.Op) error {
	rest, ok := o.Trim(c.graph.VersionVector().Get(o.ID.Client))
	if !ok {
		return nil
	}
	o = rest

	// Checks that need no mutation come first so a rejected op leaves
	// both the graph and the store untouched.
	switch o.Kind {
	case op.Insert:
		if o.Origin != nil {
			if _, err := c.store.CursorAfter(*o.Origin); err != nil {
				return err
			}
		}
	case op.Delete:
		if err := c.store.CheckTargets(o.Targets); err != nil {
			return err
		}
	}
	if _, err := c.graph.Add(o.Span(), o.Parents); err != nil {
		return err
	}

	var err error
	switch o.Kind {
	case op.Insert:
		var at content.Cursor
		at, err = c.place(o)
		if err == nil {
			err = c.store.IntegrateInsert(o.Span(), o.Content, at)
		}
	case op.Delete:
		err = c.store.IntegrateDelete(o.Span(), o.Targets)
	}
	if err != nil {
		e := crdterr.New(crdterr.CodeInvariantViolation,
			"graph accepted %s but the store rejected it", o.Span()).WithID(o.ID)
		e.Err = err
		return e
	}
	c.log = append(c.log, o.Clone())
	return nil
}

// place finds the cursor for a new insert: right after its origin, past
// every span whose first element is ordered after the insert.
func (c *Container) place(o op.Op) (content.Cursor, error) {
	lamport, ok := c.graph.Lamport(o.ID)
	if !ok {
		return content.Cursor{}, crdterr.New(crdterr.CodeUnknownID, "insert is not in the graph").WithID(o.ID)
	}

	cur := c.store.Start()
	if o.Origin != nil {
		var err error
		if cur, err = c.store.CursorAfter(*o.Origin); err != nil {
			return content.Cursor{}, err
		}
	}
	for !cur.IsEnd() {
		v, _, err := c.store.Peek(cur)
		if err != nil {
			return content.Cursor{}, err
		}
		l, ok := c.graph.Lamport(v.ID)
		if !ok {
			return content.Cursor{}, crdterr.New(crdterr.CodeInvariantViolation,
				"stored content is not in the graph").WithID(v.ID)
		}
		if !after(l, v.ID.Client, lamport, o.ID.Client) {
			break
		}
		if cur, err = c.store.Skip(cur); err != nil {
			return content.Cursor{}, err
		}
	}
	return cur, nil
}

// after reports whether (la, ca) orders after (lb, cb).
func after(la dag.Lamport, ca id.ClientID, lb dag.Lamport, cb id.ClientID) bool {
	if la != lb {
		return la > lb
	}
	return ca > cb
}
