package harness

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/roach88/weft/internal/engine"
	"github.com/roach88/weft/internal/id"
	"github.com/roach88/weft/internal/sequence"
	"github.com/roach88/weft/internal/value"
)

// AssertionError is returned when an assertion fails.
type AssertionError struct {
	Type     string // Assertion type for categorization
	Replica  uint64 // Zero for assertions over all replicas
	Expected string
	Actual   string
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder
	fmt.Fprintf(&buf, "Assertion failed: %s", e.Type)
	if e.Replica != 0 {
		fmt.Fprintf(&buf, " (replica %d)", e.Replica)
	}
	fmt.Fprintf(&buf, "\n  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s", e.Actual)
	return buf.String()
}

// AssertionContext provides the running replicas to assertions.
type AssertionContext struct {
	Ctx     context.Context
	Harness *Harness
}

func (a *AssertionContext) container(client uint64) (*sequence.Container, error) {
	r, ok := a.Harness.replicas[client]
	if !ok {
		return nil, fmt.Errorf("unknown replica %d", client)
	}
	c := r.Container(a.Harness.container)
	if c == nil {
		return nil, fmt.Errorf("replica %d has no container %s", client, a.Harness.container)
	}
	return c, nil
}

// EvaluateAssertions evaluates all assertions against the final state.
// Returns a slice of error messages for failed assertions.
func EvaluateAssertions(assertions []Assertion, actx *AssertionContext) []string {
	var errors []string

	for i, assertion := range assertions {
		var err error

		switch assertion.Type {
		case AssertConverged:
			err = assertConverged(actx)
		case AssertContent:
			err = assertContent(actx, assertion)
		case AssertVersion:
			err = assertVersion(actx, assertion)
		case AssertCritical:
			err = assertCritical(actx, assertion)
		case AssertPending:
			err = assertPending(actx, assertion)
		case AssertReplay:
			err = assertReplay(actx, assertion)
		case AssertInvariants:
			err = assertInvariants(actx)
		default:
			err = fmt.Errorf("assertion[%d]: unknown assertion type %q", i, assertion.Type)
		}

		if err != nil {
			errors = append(errors, err.Error())
		}
	}

	return errors
}

// assertConverged checks every replica holds the same version and content
// as the first one.
func assertConverged(actx *AssertionContext) error {
	order := actx.Harness.order
	first, err := actx.container(order[0])
	if err != nil {
		return err
	}
	for _, client := range order[1:] {
		c, err := actx.container(client)
		if err != nil {
			return err
		}
		if !c.Version().Equal(first.Version()) || !value.Equal(c.Value(), first.Value()) {
			return &AssertionError{
				Type:     AssertConverged,
				Replica:  client,
				Expected: fmt.Sprintf("%s %s (replica %d)", first.Version(), render(first.Value()), order[0]),
				Actual:   fmt.Sprintf("%s %s", c.Version(), render(c.Value())),
			}
		}
	}
	return nil
}

func assertContent(actx *AssertionContext, a Assertion) error {
	c, err := actx.container(a.Replica)
	if err != nil {
		return err
	}

	var want value.Value
	if c.Kind() == sequence.Text {
		want = value.NewString(*a.Text)
	} else {
		want, err = value.FromGo(a.Values)
		if err != nil {
			return fmt.Errorf("content: expected values: %w", err)
		}
	}
	if got := c.Value(); !value.Equal(got, want) {
		return &AssertionError{
			Type:     AssertContent,
			Replica:  a.Replica,
			Expected: render(want),
			Actual:   render(got),
		}
	}
	return nil
}

func assertVersion(actx *AssertionContext, a Assertion) error {
	c, err := actx.container(a.Replica)
	if err != nil {
		return err
	}
	want, err := id.ParseVersionVector(a.Version)
	if err != nil {
		return fmt.Errorf("version: %w", err)
	}
	if got := c.Version(); !got.Equal(want) {
		return &AssertionError{
			Type:     AssertVersion,
			Replica:  a.Replica,
			Expected: want.String(),
			Actual:   got.String(),
		}
	}
	return nil
}

// assertCritical compares the critical ids of the replica's current
// version, ignoring order.
func assertCritical(actx *AssertionContext, a Assertion) error {
	c, err := actx.container(a.Replica)
	if err != nil {
		return err
	}
	res, err := c.CriticalVersion()
	if err != nil {
		return fmt.Errorf("critical_version: %w", err)
	}

	want := make([]string, 0, len(a.Critical))
	for _, s := range a.Critical {
		i, err := id.ParseID(s)
		if err != nil {
			return fmt.Errorf("critical_version: %w", err)
		}
		want = append(want, i.String())
	}
	got := make([]string, 0, len(res.Critical))
	for _, i := range res.Critical {
		got = append(got, i.String())
	}
	slices.Sort(want)
	slices.Sort(got)

	if !slices.Equal(got, want) {
		return &AssertionError{
			Type:     AssertCritical,
			Replica:  a.Replica,
			Expected: "[" + strings.Join(want, " ") + "]",
			Actual:   "[" + strings.Join(got, " ") + "]",
		}
	}
	return nil
}

func assertPending(actx *AssertionContext, a Assertion) error {
	r := actx.Harness.replicas[a.Replica]
	if r == nil {
		return fmt.Errorf("unknown replica %d", a.Replica)
	}
	if got := r.Engine.Pending(actx.Harness.container); got != a.Count {
		return &AssertionError{
			Type:     AssertPending,
			Replica:  a.Replica,
			Expected: fmt.Sprintf("%d pending ops", a.Count),
			Actual:   fmt.Sprintf("%d pending ops", got),
		}
	}
	return nil
}

// assertReplay rebuilds the container from the replica's op log and
// compares it with the live one.
func assertReplay(actx *AssertionContext, a Assertion) error {
	r := actx.Harness.replicas[a.Replica]
	if r == nil {
		return fmt.Errorf("unknown replica %d", a.Replica)
	}
	live := r.Container(actx.Harness.container)
	rebuilt, err := engine.Replay(actx.Ctx, r.Store, actx.Harness.container, r.Client)
	if err != nil {
		return fmt.Errorf("replay: %w", err)
	}
	if !rebuilt.Version().Equal(live.Version()) || !value.Equal(rebuilt.Value(), live.Value()) {
		return &AssertionError{
			Type:     AssertReplay,
			Replica:  a.Replica,
			Expected: fmt.Sprintf("%s %s", live.Version(), render(live.Value())),
			Actual:   fmt.Sprintf("%s %s", rebuilt.Version(), render(rebuilt.Value())),
		}
	}
	return rebuilt.CheckInvariants()
}

func assertInvariants(actx *AssertionContext) error {
	for _, client := range actx.Harness.order {
		c, err := actx.container(client)
		if err != nil {
			return err
		}
		if err := c.CheckInvariants(); err != nil {
			return &AssertionError{
				Type:     AssertInvariants,
				Replica:  client,
				Expected: "no violations",
				Actual:   err.Error(),
			}
		}
	}
	return nil
}

func render(v value.Value) string {
	data, err := value.MarshalCanonical(v)
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(data)
}
