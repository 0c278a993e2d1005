package id

import (
	"fmt"
	"maps"
	"slices"
	"strings"
)

// VersionVector maps each client to the exclusive end of its known counters.
// Clients absent from the map have counter 0 known, i.e. nothing.
type VersionVector map[ClientID]Counter

// NewVersionVector returns an empty vector.
func NewVersionVector() VersionVector {
	return make(VersionVector)
}

// Get returns the exclusive counter end for client.
func (vv VersionVector) Get(client ClientID) Counter {
	return vv[client]
}

// Includes reports whether id is covered by the vector.
func (vv VersionVector) Includes(i ID) bool {
	return i.Counter < vv[i.Client]
}

// IncludesSpan reports whether every id of s is covered.
func (vv VersionVector) IncludesSpan(s IDSpan) bool {
	return s.IsEmpty() || s.End <= vv[s.Client]
}

// Extend raises the client's end to cover s.
func (vv VersionVector) Extend(s IDSpan) {
	if s.End > vv[s.Client] {
		vv[s.Client] = s.End
	}
}

// Merge raises every entry to at least the other vector's entry.
func (vv VersionVector) Merge(o VersionVector) {
	for c, end := range o {
		if end > vv[c] {
			vv[c] = end
		}
	}
}

// Clone returns an independent copy.
func (vv VersionVector) Clone() VersionVector {
	out := make(VersionVector, len(vv))
	maps.Copy(out, vv)
	return out
}

// Equal reports whether both vectors cover the same ids.
func (vv VersionVector) Equal(o VersionVector) bool {
	for c, end := range vv {
		if o[c] != end {
			return false
		}
	}
	for c, end := range o {
		if vv[c] != end {
			return false
		}
	}
	return true
}

// Clients returns the clients with a non-zero entry in ascending order.
func (vv VersionVector) Clients() []ClientID {
	out := make([]ClientID, 0, len(vv))
	for c, end := range vv {
		if end > 0 {
			out = append(out, c)
		}
	}
	slices.Sort(out)
	return out
}

// Diff returns the spans covered by vv but not by o.
func (vv VersionVector) Diff(o VersionVector) IDSpanVector {
	out := NewIDSpanVector()
	for c, end := range vv {
		if start := o[c]; start < end {
			out[c] = IDSpan{Client: c, Start: start, End: end}
		}
	}
	return out
}

// LastIDs returns the last covered id of every client, ordered by client.
func (vv VersionVector) LastIDs() []ID {
	clients := vv.Clients()
	out := make([]ID, 0, len(clients))
	for _, c := range clients {
		out = append(out, ID{Client: c, Counter: vv[c] - 1})
	}
	return out
}

// String formats the vector as {client:end, ...} ordered by client.
func (vv VersionVector) String() string {
	var b strings.Builder
	b.WriteByte('{')
	for i, c := range vv.Clients() {
		if i > 0 {
			b.WriteString(", ")
		}
		fmt.Fprintf(&b, "%d:%d", c, vv[c])
	}
	b.WriteByte('}')
	return b.String()
}

// ParseVersionVector parses "client:end,client:end". Empty input yields an
// empty vector.
func ParseVersionVector(s string) (VersionVector, error) {
	vv := NewVersionVector()
	s = strings.Trim(strings.TrimSpace(s), "{}")
	if s == "" {
		return vv, nil
	}
	for _, part := range strings.Split(s, ",") {
		client, end, ok := strings.Cut(strings.TrimSpace(part), ":")
		if !ok {
			return nil, fmt.Errorf("parse version vector %q: entry %q missing ':'", s, part)
		}
		c, err := ParseClientID(strings.TrimSpace(client))
		if err != nil {
			return nil, fmt.Errorf("parse version vector: %w", err)
		}
		var n int64
		if _, err := fmt.Sscanf(strings.TrimSpace(end), "%d", &n); err != nil {
			return nil, fmt.Errorf("parse version vector %q: %w", s, err)
		}
		vv[c] = Counter(n)
	}
	return vv, nil
}

// IDSpanVector holds at most one span per client.
type IDSpanVector map[ClientID]IDSpan

// NewIDSpanVector returns an empty span vector.
func NewIDSpanVector() IDSpanVector {
	return make(IDSpanVector)
}

// Add merges s into the client's span. The spans must touch or overlap.
func (sv IDSpanVector) Add(s IDSpan) {
	if s.IsEmpty() {
		return
	}
	cur, ok := sv[s.Client]
	if !ok {
		sv[s.Client] = s
		return
	}
	if s.Start > cur.End || s.End < cur.Start {
		panic(fmt.Sprintf("id: span %s not contiguous with %s", s, cur))
	}
	sv[s.Client] = IDSpan{Client: s.Client, Start: min(cur.Start, s.Start), End: max(cur.End, s.End)}
}

// Spans returns the non-empty spans ordered by client.
func (sv IDSpanVector) Spans() []IDSpan {
	out := make([]IDSpan, 0, len(sv))
	for _, s := range sv {
		if !s.IsEmpty() {
			out = append(out, s)
		}
	}
	slices.SortFunc(out, func(a, b IDSpan) int {
		return a.First().Compare(b.First())
	})
	return out
}

// Len sums the span lengths.
func (sv IDSpanVector) Len() int {
	n := 0
	for _, s := range sv {
		n += s.Len()
	}
	return n
}
