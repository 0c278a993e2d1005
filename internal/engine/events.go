package engine

import (
	"github.com/roach88/weft/internal/op"
	"github.com/roach88/weft/internal/sequence"
	"github.com/roach88/weft/internal/tracker"
	"github.com/roach88/weft/internal/value"
)

// EventType distinguishes between event kinds.
type EventType int

const (
	// EventTypeImport delivers remote ops to a container.
	EventTypeImport EventType = iota + 1
	// EventTypeLocal applies a local edit to a container.
	EventTypeLocal
)

func (t EventType) String() string {
	switch t {
	case EventTypeImport:
		return "import"
	case EventTypeLocal:
		return "local"
	}
	return "unknown"
}

// EditKind selects the local edit operation.
type EditKind int

const (
	EditInsertText EditKind = iota + 1
	EditInsertValues
	EditDelete
)

// Edit is a local edit at a visible position. Text is used by
// EditInsertText, Values by EditInsertValues and Len by EditDelete.
type Edit struct {
	Kind   EditKind
	Pos    int
	Text   string
	Values []value.Value
	Len    int
}

// Result is sent on Event.Reply once the event is processed.
type Result struct {
	// Ops are the ops integrated by this event, as persisted.
	Ops     []op.Op
	Effects []tracker.Effect
	// Pending is the number of ops still parked for the container.
	Pending int
	Err     error
}

// Event is a unit of work for the Run loop.
//
// Kind is used when the event is the first to name Container; an existing
// container must match it. Reply, if set, should be buffered.
type Event struct {
	Type      EventType
	Container value.ContainerID
	Kind      sequence.Kind
	Ops       []op.Op
	Edit      *Edit
	Reply     chan<- Result
}
