package testutil

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSeqRecorder(t *testing.T) {
	r := NewSeqRecorder()
	assert.Equal(t, int64(0), r.Current())
	assert.Empty(t, r.Issued())

	assert.Equal(t, int64(1), r.Next())
	assert.Equal(t, int64(2), r.Next())

	r.AdvanceTo(10)
	r.AdvanceTo(4)
	assert.Equal(t, int64(11), r.Next())
	assert.Equal(t, []int64{1, 2, 11}, r.Issued())
	assert.Equal(t, int64(11), r.Current())
}

func TestSeqRecorder_SameRunSameSeqs(t *testing.T) {
	a, b := NewSeqRecorder(), NewSeqRecorder()
	for range 50 {
		a.Next()
		b.Next()
	}
	assert.Equal(t, a.Issued(), b.Issued())
}
