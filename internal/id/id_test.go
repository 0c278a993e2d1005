package id

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/weft/internal/crdterr"
)

func TestIDStringRoundTrip(t *testing.T) {
	i := New(42, 7)
	assert.Equal(t, "7@42", i.String())

	parsed, err := ParseID("7@42")
	require.NoError(t, err)
	assert.Equal(t, i, parsed)

	_, err = ParseID("742")
	assert.Error(t, err)
}

func TestIDSpanBasics(t *testing.T) {
	s := NewIDSpan(1, 2, 6)
	assert.Equal(t, 4, s.Len())
	assert.False(t, s.IsEmpty())
	assert.Equal(t, New(1, 2), s.First())
	assert.Equal(t, New(1, 5), s.Last())

	assert.True(t, s.Contains(New(1, 2)))
	assert.True(t, s.Contains(New(1, 5)))
	assert.False(t, s.Contains(New(1, 6)))
	assert.False(t, s.Contains(New(2, 3)))

	assert.True(t, s.ContainsSpan(NewIDSpan(1, 3, 5)))
	assert.False(t, s.ContainsSpan(NewIDSpan(1, 3, 7)))
	assert.False(t, s.ContainsSpan(NewIDSpan(2, 3, 4)))
}

func TestNewIDSpanPanicsOnReversedRange(t *testing.T) {
	assert.Panics(t, func() { NewIDSpan(1, 5, 4) })
	assert.NotPanics(t, func() { NewIDSpan(1, 5, 5) })
}

func TestIntersect(t *testing.T) {
	tests := []struct {
		name string
		a, b IDSpan
		want IDSpan
		ok   bool
	}{
		{"overlap", NewIDSpan(1, 0, 5), NewIDSpan(1, 3, 8), NewIDSpan(1, 3, 5), true},
		{"contained", NewIDSpan(1, 0, 10), NewIDSpan(1, 2, 4), NewIDSpan(1, 2, 4), true},
		{"adjacent", NewIDSpan(1, 0, 3), NewIDSpan(1, 3, 6), IDSpan{}, false},
		{"other client", NewIDSpan(1, 0, 5), NewIDSpan(2, 0, 5), IDSpan{}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := tt.a.Intersect(tt.b)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)

			// Intersection is symmetric.
			got2, ok2 := tt.b.Intersect(tt.a)
			assert.Equal(t, ok, ok2)
			assert.Equal(t, got, got2)
		})
	}
}

func TestSplitAtReconstructs(t *testing.T) {
	s := NewIDSpan(3, 10, 15)
	for offset := 1; offset < s.Len(); offset++ {
		left, right, err := s.SplitAt(offset)
		require.NoError(t, err)
		assert.Equal(t, offset, left.Len())
		assert.Equal(t, s.Start, left.Start)
		assert.Equal(t, left.End, right.Start)
		assert.Equal(t, s.End, right.End)
		assert.Equal(t, s.Len(), left.Len()+right.Len())
	}
}

func TestSplitAtOutOfRange(t *testing.T) {
	s := NewIDSpan(3, 10, 15)
	for _, offset := range []int{-1, 0, 5, 6} {
		_, _, err := s.SplitAt(offset)
		require.Error(t, err, "offset %d", offset)
		assert.True(t, crdterr.Is(err, crdterr.CodeOutOfRange))
		assert.True(t, crdterr.IsContractViolation(err))
	}
}

func TestSliceSpans(t *testing.T) {
	spans := []IDSpan{NewIDSpan(1, 0, 3), NewIDSpan(2, 5, 7), NewIDSpan(1, 8, 10)}
	assert.Equal(t, 7, TotalLen(spans))

	got := SliceSpans(spans, 2, 6)
	assert.Equal(t, []IDSpan{NewIDSpan(1, 2, 3), NewIDSpan(2, 5, 7), NewIDSpan(1, 8, 9)}, got)
	assert.Empty(t, SliceSpans(spans, 3, 3))
}

func TestNewClientIDIsRandom(t *testing.T) {
	a, b := NewClientID(), NewClientID()
	assert.NotEqual(t, a, b)
}
