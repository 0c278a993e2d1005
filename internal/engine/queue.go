package engine

import "sync"

// eventQueue is an unbounded multi-producer queue drained in batches by
// the Run loop. Producers never block, so a transport reader is not held
// up by a slow container.
type eventQueue struct {
	mu     sync.Mutex
	events []Event
	closed bool
	ready  chan struct{} // capacity 1; closed by close
}

func newEventQueue() *eventQueue {
	return &eventQueue{ready: make(chan struct{}, 1)}
}

// push appends e. It returns false once the queue is closed.
func (q *eventQueue) push(e Event) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return false
	}
	q.events = append(q.events, e)
	select {
	case q.ready <- struct{}{}:
	default:
	}
	return true
}

// take swaps the queued events out for spare, which must be empty, and
// returns them in push order along with whether the queue is closed. The
// caller hands the returned slice back as spare on the next call, so two
// backing arrays alternate.
func (q *eventQueue) take(spare []Event) ([]Event, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	batch := q.events
	q.events = spare[:0]
	return batch, q.closed
}

// wait is signalled after a push and closed by close. A signal may be
// stale: take can still come back empty.
func (q *eventQueue) wait() <-chan struct{} {
	return q.ready
}

func (q *eventQueue) len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.events)
}

// close stops further pushes. Already queued events can still be taken.
func (q *eventQueue) close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if !q.closed {
		q.closed = true
		close(q.ready)
	}
}
