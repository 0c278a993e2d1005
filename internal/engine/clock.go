package engine

import "sync/atomic"

// Clock stamps persisted ops with strictly increasing seqs. Seqs order
// the op log for replay and never come from wall time.
//
// Safe for concurrent use, although only the Run goroutine calls Next.
type Clock struct {
	seq atomic.Int64
}

// NewClock returns a clock whose first seq is 1.
func NewClock() *Clock {
	return &Clock{}
}

// Next returns a fresh seq.
func (c *Clock) Next() int64 {
	return c.seq.Add(1)
}

// Current returns the last seq handed out.
func (c *Clock) Current() int64 {
	return c.seq.Load()
}

// AdvanceTo moves the clock forward to seq. It never moves backwards, so
// a restored engine keeps stamping past the log's MaxSeq.
func (c *Clock) AdvanceTo(seq int64) {
	for {
		cur := c.seq.Load()
		if cur >= seq || c.seq.CompareAndSwap(cur, seq) {
			return
		}
	}
}

// advancer is implemented by seq sources that Restore can move forward.
type advancer interface {
	AdvanceTo(seq int64)
}
