// Package sequence implements text and list containers on top of the
// causal graph, the content store and the tracker.
//
// A Container integrates operations from any replica and reports the
// effects each batch has on the rendered view. Concurrent inserts at the
// same place are ordered RGA style by (lamport, client), descending.
// A Container is single-writer: callers serialize access.
package sequence

import (
	"errors"
	"fmt"
	"slices"

	"github.com/roach88/weft/internal/content"
	"github.com/roach88/weft/internal/crdterr"
	"github.com/roach88/weft/internal/dag"
	"github.com/roach88/weft/internal/frontier"
	"github.com/roach88/weft/internal/id"
	"github.com/roach88/weft/internal/op"
	"github.com/roach88/weft/internal/tracker"
	"github.com/roach88/weft/internal/value"
)

// Kind is the content type of a container.
type Kind uint8

const (
	Text Kind = iota + 1
	List
)

func (k Kind) String() string {
	switch k {
	case Text:
		return "text"
	case List:
		return "list"
	}
	return fmt.Sprintf("kind(%d)", uint8(k))
}

// ParseKind parses "text" or "list".
func ParseKind(s string) (Kind, error) {
	switch s {
	case "text":
		return Text, nil
	case "list":
		return List, nil
	}
	return 0, fmt.Errorf("unknown container kind %q", s)
}

// Container is one sequence container replica.
type Container struct {
	id     value.ContainerID
	kind   Kind
	client id.ClientID

	graph   *dag.Graph
	store   *content.Store
	applied id.VersionVector
	log     []op.Op // integrated ops in integration order
	poison  error
}

// Option configures a Container.
type Option func(*Container)

// WithStore replaces the content store. Intended for tests.
func WithStore(s *content.Store) Option {
	return func(c *Container) { c.store = s }
}

// New creates an empty container whose local edits are issued by client.
func New(cid value.ContainerID, kind Kind, client id.ClientID, opts ...Option) *Container {
	c := &Container{
		id:      cid,
		kind:    kind,
		client:  client,
		graph:   dag.New(),
		store:   content.NewStore(),
		applied: id.NewVersionVector(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// ID returns the container id.
func (c *Container) ID() value.ContainerID { return c.id }

// Kind returns the container kind.
func (c *Container) Kind() Kind { return c.kind }

// Client returns the client id used for local edits.
func (c *Container) Client() id.ClientID { return c.client }

// Poisoned returns the fatal error that disabled the container, or nil.
func (c *Container) Poisoned() error { return c.poison }

// check returns CONTAINER_POISONED once the container is disabled.
func (c *Container) check() error {
	if c.poison != nil {
		return crdterr.Poisoned(string(c.id), c.poison)
	}
	return nil
}

// guard poisons the container on invariant violations.
func (c *Container) guard(err error) error {
	if err == nil || !crdterr.IsInvariantViolation(err) {
		return err
	}
	c.poison = err
	return crdterr.Poisoned(string(c.id), err)
}

// Import integrates ops and returns the effects on the rendered view.
// Ops must arrive in causal order; already known ops or prefixes are
// skipped. On a contract error the ops before the failing one stay
// integrated and their effects are returned along with the error.
func (c *Container) Import(ops ...op.Op) ([]tracker.Effect, error) {
	if err := c.check(); err != nil {
		return nil, err
	}
	for _, o := range ops {
		if err := c.validate(o); err != nil {
			return nil, err
		}
	}

	var failed error
	for _, o := range ops {
		if err := c.integrate(o); err != nil {
			if crdterr.IsInvariantViolation(err) {
				return nil, c.guard(err)
			}
			failed = err
			break
		}
	}

	effects, err := c.apply()
	if err != nil {
		return nil, c.guard(err)
	}
	return effects, failed
}

// validate checks an op in isolation.
func (c *Container) validate(o op.Op) error {
	if err := o.Validate(); err != nil {
		return err
	}
	if o.Kind != op.Insert {
		return nil
	}
	switch body := o.Content.(type) {
	case content.Text:
		if c.kind != Text {
			return crdterr.New(crdterr.CodeInvalidOp, "text content for %s container", c.kind).WithID(o.ID)
		}
	case content.Values:
		if c.kind != List {
			return crdterr.New(crdterr.CodeInvalidOp, "list content for %s container", c.kind).WithID(o.ID)
		}
		for _, v := range body {
			if err := value.Validate(v); err != nil {
				return err
			}
		}
	default:
		return crdterr.New(crdterr.CodeInvalidOp, "unsupported content %T", o.Content).WithID(o.ID)
	}
	return nil
}

// apply runs the tracker over everything integrated but not yet applied.
func (c *Container) apply() ([]tracker.Effect, error) {
	diff := c.graph.Diff(c.applied)
	if len(diff) == 0 {
		return nil, nil
	}
	effects, err := tracker.Collect(tracker.New(c.store, diff))
	if err != nil {
		return nil, err
	}
	c.applied = c.graph.VersionVector()
	return tracker.Coalesce(effects), nil
}

// InsertText inserts s before visible position pos.
func (c *Container) InsertText(pos int, s string) (op.Op, []tracker.Effect, error) {
	if c.kind != Text {
		return op.Op{}, nil, crdterr.New(crdterr.CodeInvalidOp, "text insert into %s container", c.kind)
	}
	return c.insert(pos, content.NewText(s))
}

// InsertValues inserts vals before visible position pos.
func (c *Container) InsertValues(pos int, vals ...value.Value) (op.Op, []tracker.Effect, error) {
	if c.kind != List {
		return op.Op{}, nil, crdterr.New(crdterr.CodeInvalidOp, "value insert into %s container", c.kind)
	}
	return c.insert(pos, content.Values(slices.Clone(vals)))
}

func (c *Container) insert(pos int, body content.Slice) (op.Op, []tracker.Effect, error) {
	if err := c.check(); err != nil {
		return op.Op{}, nil, err
	}
	if pos < 0 || pos > c.store.Len() {
		return op.Op{}, nil, crdterr.New(crdterr.CodeOutOfRange,
			"insert position %d outside length %d", pos, c.store.Len())
	}
	if body.Len() == 0 {
		return op.Op{}, nil, crdterr.New(crdterr.CodeInvalidOp, "empty insert")
	}
	o := c.next(body.Len(), op.Insert)
	o.Content = body
	if pos > 0 {
		origin, _ := c.store.VisibleID(pos - 1)
		o.Origin = &origin
	}
	effects, err := c.Import(o)
	if err != nil {
		return op.Op{}, nil, err
	}
	return o, effects, nil
}

// Delete removes n visible elements starting at pos.
func (c *Container) Delete(pos, n int) (op.Op, []tracker.Effect, error) {
	if err := c.check(); err != nil {
		return op.Op{}, nil, err
	}
	if n <= 0 {
		return op.Op{}, nil, crdterr.New(crdterr.CodeInvalidOp, "empty delete")
	}
	targets, err := c.store.VisibleSpans(pos, n)
	if err != nil {
		return op.Op{}, nil, err
	}
	o := c.next(n, op.Delete)
	o.Targets = targets
	effects, err := c.Import(o)
	if err != nil {
		return op.Op{}, nil, err
	}
	return o, effects, nil
}

// next allocates ids for a local op on top of the current frontier.
func (c *Container) next(n int, kind op.Kind) op.Op {
	return op.Op{
		ID:      id.New(c.client, c.graph.VersionVector().Get(c.client)),
		Len:     n,
		Kind:    kind,
		Parents: c.graph.Frontier(),
	}
}

// Export returns the integrated ops not covered by since, in causal order.
func (c *Container) Export(since id.VersionVector) []op.Op {
	var out []op.Op
	for _, o := range c.log {
		if rest, ok := o.Trim(since.Get(o.ID.Client)); ok {
			out = append(out, rest.Clone())
		}
	}
	return out
}

// Len returns the visible length.
func (c *Container) Len() int { return c.store.Len() }

// Text returns the visible text of a text container.
func (c *Container) Text() string {
	if t, ok := c.store.Content().(content.Text); ok {
		return t.String()
	}
	return ""
}

// Value returns the visible content as a String or List value.
func (c *Container) Value() value.Value {
	if body := c.store.Content(); body != nil {
		return body.ToValue()
	}
	if c.kind == List {
		return value.NewList()
	}
	return value.NewString("")
}

// Version returns the integrated version.
func (c *Container) Version() id.VersionVector { return c.graph.VersionVector() }

// Frontier returns the maximal integrated ids.
func (c *Container) Frontier() []id.ID { return c.graph.Frontier() }

// Graph exposes the causal graph for read-only use.
func (c *Container) Graph() *dag.Graph { return c.graph }

// Store exposes the content store for read-only use.
func (c *Container) Store() *content.Store { return c.store }

// CriticalVersion computes the critical version below ends, or below the
// current version when no ends are given.
func (c *Container) CriticalVersion(ends ...id.VersionVector) (frontier.Result, error) {
	if err := c.check(); err != nil {
		return frontier.Result{}, err
	}
	if len(ends) == 0 {
		ends = []id.VersionVector{c.graph.VersionVector()}
	}
	return frontier.CriticalVersion(c.graph, ends...)
}

// CheckInvariants verifies the store and that it covers exactly the ids
// of the causal graph, all of them applied.
func (c *Container) CheckInvariants() error {
	if err := c.check(); err != nil {
		return err
	}
	err := c.checkInvariants()
	return c.guard(err)
}

func (c *Container) checkInvariants() error {
	if err := c.store.CheckInvariants(); err != nil {
		return err
	}
	vv := c.graph.VersionVector()
	covered := id.NewVersionVector()
	for _, sp := range c.store.Coverage() {
		if sp.Start != 0 || covered.Get(sp.Client) != 0 {
			return crdterr.New(crdterr.CodeInvariantViolation, "store coverage has a gap before %s", sp)
		}
		covered.Extend(sp)
	}
	if !covered.Equal(vv) {
		return crdterr.New(crdterr.CodeInvariantViolation,
			"store covers %s, graph holds %s", covered, vv)
	}
	if !c.applied.Equal(vv) {
		return crdterr.New(crdterr.CodeInvariantViolation,
			"applied %s behind integrated %s", c.applied, vv)
	}
	return nil
}

// IsMissingDependency reports whether err means an op arrived before
// something it depends on.
func IsMissingDependency(err error) bool {
	var e *crdterr.Error
	return errors.As(err, &e) && e.Code == crdterr.CodeUnknownID
}
