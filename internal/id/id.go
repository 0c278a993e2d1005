// Package id implements identifiers, id spans and version vectors.
//
// An ID names a single operation element: (client, counter). Counters start
// at 0 per client and increase by one per element. An IDSpan is a half-open
// run of counters from one client. All operations here are pure.
package id

import (
	"encoding/binary"
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/roach88/weft/internal/crdterr"
)

// ClientID identifies a replica.
type ClientID uint64

// Counter is a per-client operation counter.
type Counter int64

// NewClientID returns a random client id derived from a v4 UUID.
func NewClientID() ClientID {
	u := uuid.New()
	return ClientID(binary.BigEndian.Uint64(u[:8]))
}

// ParseClientID parses a decimal client id.
func ParseClientID(s string) (ClientID, error) {
	v, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse client id %q: %w", s, err)
	}
	return ClientID(v), nil
}

// ID identifies one element of an operation.
type ID struct {
	Client  ClientID
	Counter Counter
}

// New returns the id (client, counter).
func New(client ClientID, counter Counter) ID {
	return ID{Client: client, Counter: counter}
}

// Inc returns the id n elements later in the same client's run.
func (i ID) Inc(n int) ID {
	return ID{Client: i.Client, Counter: i.Counter + Counter(n)}
}

// String formats the id as counter@client.
func (i ID) String() string {
	return fmt.Sprintf("%d@%d", i.Counter, i.Client)
}

// Compare orders ids by client, then counter. This is a storage order,
// not a causal one.
func (i ID) Compare(o ID) int {
	switch {
	case i.Client < o.Client:
		return -1
	case i.Client > o.Client:
		return 1
	case i.Counter < o.Counter:
		return -1
	case i.Counter > o.Counter:
		return 1
	}
	return 0
}

// ParseID parses the counter@client form produced by String.
func ParseID(s string) (ID, error) {
	ctr, client, ok := strings.Cut(s, "@")
	if !ok {
		return ID{}, fmt.Errorf("parse id %q: missing '@'", s)
	}
	c, err := strconv.ParseInt(ctr, 10, 64)
	if err != nil {
		return ID{}, fmt.Errorf("parse id %q: %w", s, err)
	}
	p, err := ParseClientID(client)
	if err != nil {
		return ID{}, fmt.Errorf("parse id %q: %w", s, err)
	}
	return ID{Client: p, Counter: Counter(c)}, nil
}

// IDSpan is the half-open counter range [Start, End) of one client.
type IDSpan struct {
	Client ClientID
	Start  Counter
	End    Counter
}

// NewIDSpan constructs a span. It panics if start > end.
func NewIDSpan(client ClientID, start, end Counter) IDSpan {
	if start > end {
		panic(fmt.Sprintf("id: span start %d after end %d", start, end))
	}
	return IDSpan{Client: client, Start: start, End: end}
}

// SpanOf returns the span of n elements starting at first.
func SpanOf(first ID, n int) IDSpan {
	return NewIDSpan(first.Client, first.Counter, first.Counter+Counter(n))
}

// Len returns the number of ids in the span.
func (s IDSpan) Len() int {
	return int(s.End - s.Start)
}

// IsEmpty reports whether the span contains no ids.
func (s IDSpan) IsEmpty() bool {
	return s.End <= s.Start
}

// First returns the first id. Undefined for empty spans.
func (s IDSpan) First() ID {
	return ID{Client: s.Client, Counter: s.Start}
}

// Last returns the last id. Undefined for empty spans.
func (s IDSpan) Last() ID {
	return ID{Client: s.Client, Counter: s.End - 1}
}

// Contains reports whether the span contains id.
func (s IDSpan) Contains(i ID) bool {
	return i.Client == s.Client && i.Counter >= s.Start && i.Counter < s.End
}

// ContainsSpan reports whether o lies entirely inside s.
// The empty span of the same client is contained by any span.
func (s IDSpan) ContainsSpan(o IDSpan) bool {
	if o.Client != s.Client {
		return false
	}
	if o.IsEmpty() {
		return true
	}
	return o.Start >= s.Start && o.End <= s.End
}

// Intersect returns the overlap of two spans, and false if it is empty.
func (s IDSpan) Intersect(o IDSpan) (IDSpan, bool) {
	if s.Client != o.Client {
		return IDSpan{}, false
	}
	start := max(s.Start, o.Start)
	end := min(s.End, o.End)
	if start >= end {
		return IDSpan{}, false
	}
	return IDSpan{Client: s.Client, Start: start, End: end}, true
}

// SplitAt splits the span after offset elements. The offset must be
// strictly inside the span so both halves are non-empty.
func (s IDSpan) SplitAt(offset int) (IDSpan, IDSpan, error) {
	if offset <= 0 || offset >= s.Len() {
		return IDSpan{}, IDSpan{}, crdterr.New(crdterr.CodeOutOfRange,
			"split offset %d outside span %s", offset, s)
	}
	mid := s.Start + Counter(offset)
	return IDSpan{Client: s.Client, Start: s.Start, End: mid},
		IDSpan{Client: s.Client, Start: mid, End: s.End}, nil
}

// Slice returns the sub-span [from, to) in element offsets.
func (s IDSpan) Slice(from, to int) IDSpan {
	if from < 0 || to > s.Len() || from > to {
		panic(fmt.Sprintf("id: slice [%d,%d) outside span %s", from, to, s))
	}
	return IDSpan{Client: s.Client, Start: s.Start + Counter(from), End: s.Start + Counter(to)}
}

// String formats the span as client:[start,end).
func (s IDSpan) String() string {
	return fmt.Sprintf("%d:[%d,%d)", s.Client, s.Start, s.End)
}

// TotalLen sums the lengths of spans.
func TotalLen(spans []IDSpan) int {
	n := 0
	for _, s := range spans {
		n += s.Len()
	}
	return n
}

// SliceSpans returns the elements [from, to) of the concatenation of spans.
func SliceSpans(spans []IDSpan, from, to int) []IDSpan {
	var out []IDSpan
	offset := 0
	for _, s := range spans {
		n := s.Len()
		lo := max(from-offset, 0)
		hi := min(to-offset, n)
		if lo < hi {
			out = append(out, s.Slice(lo, hi))
		}
		offset += n
		if offset >= to {
			break
		}
	}
	return out
}
