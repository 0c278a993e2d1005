package content

import (
	"fmt"

	"github.com/roach88/weft/internal/crdterr"
)

// State summarizes a Status.
type State uint8

const (
	// StateAlive content is visible.
	StateAlive State = iota
	// StateFuture content is integrated but not yet applied to the view.
	StateFuture
	// StateDeletedOnce content is hidden by exactly one delete.
	StateDeletedOnce
	// StateDeletedMany content is hidden by two or more concurrent deletes.
	StateDeletedMany
)

func (s State) String() string {
	switch s {
	case StateAlive:
		return "alive"
	case StateFuture:
		return "future"
	case StateDeletedOnce:
		return "deleted"
	case StateDeletedMany:
		return "deleted-many"
	}
	return fmt.Sprintf("state(%d)", uint8(s))
}

// Status is the causal status of a content span.
type Status struct {
	Future  bool
	Deletes int
}

// Visible reports whether the span shows in the rendered view.
func (s Status) Visible() bool {
	return !s.Future && s.Deletes == 0
}

// State returns the summary state. Future wins over deleted.
func (s Status) State() State {
	switch {
	case s.Future:
		return StateFuture
	case s.Deletes == 0:
		return StateAlive
	case s.Deletes == 1:
		return StateDeletedOnce
	default:
		return StateDeletedMany
	}
}

func (s Status) String() string {
	if s.Future && s.Deletes > 0 {
		return fmt.Sprintf("future(deletes=%d)", s.Deletes)
	}
	if s.Deletes > 1 {
		return fmt.Sprintf("deleted-many(%d)", s.Deletes)
	}
	return s.State().String()
}

// Transition is a status change applied by UpdateStatus.
type Transition uint8

const (
	// SetAsCurrent makes integrated content part of the current version.
	SetAsCurrent Transition = iota + 1
	// SetAsFuture removes content from the current version.
	SetAsFuture
	// Delete applies one more delete.
	Delete
	// Undo retracts one delete.
	Undo
)

func (t Transition) String() string {
	switch t {
	case SetAsCurrent:
		return "set-as-current"
	case SetAsFuture:
		return "set-as-future"
	case Delete:
		return "delete"
	case Undo:
		return "undo"
	}
	return fmt.Sprintf("transition(%d)", uint8(t))
}

func (s Status) apply(t Transition) (Status, error) {
	switch t {
	case SetAsCurrent:
		s.Future = false
	case SetAsFuture:
		s.Future = true
	case Delete:
		s.Deletes++
	case Undo:
		if s.Deletes == 0 {
			return s, crdterr.New(crdterr.CodeInvariantViolation, "undo on content with no deletes")
		}
		s.Deletes--
	default:
		return s, crdterr.New(crdterr.CodeInvariantViolation, "unknown transition %d", t)
	}
	return s, nil
}
