package testutil

import (
	"slices"
	"sync"
)

// SeqRecorder is a seq source for engines under test. It counts from 1
// and remembers every seq it issued, so a test can check which ops were
// persisted and in what order. Restore advances it like engine.Clock.
//
// Safe for concurrent use.
type SeqRecorder struct {
	mu     sync.Mutex
	seq    int64
	issued []int64
}

// NewSeqRecorder returns a recorder whose first seq is 1.
func NewSeqRecorder() *SeqRecorder {
	return &SeqRecorder{}
}

func (r *SeqRecorder) Next() int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seq++
	r.issued = append(r.issued, r.seq)
	return r.seq
}

func (r *SeqRecorder) Current() int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.seq
}

// AdvanceTo skips ahead to seq without recording the skipped values.
func (r *SeqRecorder) AdvanceTo(seq int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if seq > r.seq {
		r.seq = seq
	}
}

// Issued returns the seqs handed out so far.
func (r *SeqRecorder) Issued() []int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.issued)
}
