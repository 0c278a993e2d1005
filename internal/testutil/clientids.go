package testutil

import (
	"sync"

	"github.com/roach88/weft/internal/id"
)

// FixedClientIDs hands out client ids 1, 2, 3, ... in order.
//
// Replicas created through it get the same ids on every run, so effect
// traces and golden files stay byte-identical.
//
// Thread-safety: safe for concurrent use.
type FixedClientIDs struct {
	mu   sync.Mutex
	next id.ClientID
}

// NewFixedClientIDs returns a generator whose first id is start. A zero
// start means 1.
func NewFixedClientIDs(start id.ClientID) *FixedClientIDs {
	if start == 0 {
		start = 1
	}
	return &FixedClientIDs{next: start}
}

// Next returns the next client id.
//
// Implements engine.ClientIDSource.
func (g *FixedClientIDs) Next() id.ClientID {
	g.mu.Lock()
	defer g.mu.Unlock()
	c := g.next
	g.next++
	return c
}
