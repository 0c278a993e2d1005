package id

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVersionVectorIncludes(t *testing.T) {
	vv := VersionVector{1: 3, 2: 1}
	assert.True(t, vv.Includes(New(1, 2)))
	assert.False(t, vv.Includes(New(1, 3)))
	assert.False(t, vv.Includes(New(9, 0)))

	assert.True(t, vv.IncludesSpan(NewIDSpan(1, 0, 3)))
	assert.False(t, vv.IncludesSpan(NewIDSpan(1, 2, 4)))
	assert.True(t, vv.IncludesSpan(NewIDSpan(9, 0, 0)))
}

func TestVersionVectorMergeAndDiff(t *testing.T) {
	a := VersionVector{1: 5, 2: 2}
	b := VersionVector{1: 3, 3: 4}

	diff := a.Diff(b)
	assert.Equal(t, []IDSpan{NewIDSpan(1, 3, 5), NewIDSpan(2, 0, 2)}, diff.Spans())
	assert.Equal(t, 4, diff.Len())

	merged := a.Clone()
	merged.Merge(b)
	assert.Equal(t, VersionVector{1: 5, 2: 2, 3: 4}, merged)
	assert.Equal(t, VersionVector{1: 5, 2: 2}, a, "clone must not alias")

	assert.True(t, merged.Equal(VersionVector{1: 5, 2: 2, 3: 4, 7: 0}))
	assert.False(t, merged.Equal(a))
}

func TestVersionVectorStringRoundTrip(t *testing.T) {
	vv := VersionVector{2: 1, 1: 4}
	assert.Equal(t, "{1:4, 2:1}", vv.String())

	parsed, err := ParseVersionVector(vv.String())
	require.NoError(t, err)
	assert.True(t, vv.Equal(parsed))

	empty, err := ParseVersionVector("")
	require.NoError(t, err)
	assert.Empty(t, empty)

	_, err = ParseVersionVector("1-4")
	assert.Error(t, err)
}

func TestLastIDs(t *testing.T) {
	vv := VersionVector{2: 1, 1: 4, 3: 0}
	assert.Equal(t, []ID{New(1, 3), New(2, 0)}, vv.LastIDs())
}

func TestIDSpanVectorAdd(t *testing.T) {
	sv := NewIDSpanVector()
	sv.Add(NewIDSpan(1, 0, 2))
	sv.Add(NewIDSpan(1, 2, 5))
	sv.Add(NewIDSpan(2, 0, 0))

	assert.Equal(t, []IDSpan{NewIDSpan(1, 0, 5)}, sv.Spans())
	assert.Panics(t, func() { sv.Add(NewIDSpan(1, 7, 8)) })
}
