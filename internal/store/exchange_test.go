package store

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/weft/internal/content"
	"github.com/roach88/weft/internal/crdterr"
	"github.com/roach88/weft/internal/id"
	"github.com/roach88/weft/internal/op"
	"github.com/roach88/weft/internal/value"
)

func TestBatch_RoundTrip(t *testing.T) {
	origin := id.New(1, 1)
	in := Batch{
		Container: "notes",
		Kind:      "text",
		Ops: []op.Op{
			textInsert(1, 0, "hé<", nil),
			textInsert(2, 0, "x", &origin, id.New(1, 3)),
			{
				ID:      id.New(1, 4),
				Len:     2,
				Kind:    op.Delete,
				Parents: []id.ID{id.New(2, 0)},
				Targets: []id.IDSpan{id.NewIDSpan(1, 0, 1), id.NewIDSpan(2, 0, 1)},
			},
		},
	}
	data, err := MarshalBatch(in)
	require.NoError(t, err)
	assert.Contains(t, string(data), "\"hé<\"")

	out, err := UnmarshalBatch(data)
	require.NoError(t, err)
	assert.Equal(t, "notes", out.Container)
	assert.Equal(t, "text", out.Kind)
	require.Len(t, out.Ops, 3)
	for i, want := range in.Ops {
		got := out.Ops[i]
		assert.Equal(t, want.ID, got.ID)
		assert.Equal(t, want.Len, got.Len)
		assert.Equal(t, want.Kind, got.Kind)
		assert.ElementsMatch(t, want.Parents, got.Parents)
		assert.Equal(t, want.Origin, got.Origin)
		assert.True(t, content.Equal(want.Content, got.Content), "ops[%d] content", i)
		assert.Equal(t, want.Targets, got.Targets)
	}
}

func TestBatch_ListContent(t *testing.T) {
	body := content.Values{value.I64(1), value.NewMap(map[string]value.Value{"é": value.NewString("a")})}
	in := Batch{Container: "todo", Kind: "list", Ops: []op.Op{{ID: id.New(5, 0), Len: 2, Kind: op.Insert, Content: body}}}

	data, err := MarshalBatch(in)
	require.NoError(t, err)
	out, err := UnmarshalBatch(data)
	require.NoError(t, err)
	require.Len(t, out.Ops, 1)
	assert.True(t, content.Equal(body, out.Ops[0].Content))
}

func TestUnmarshalBatch_Rejects(t *testing.T) {
	tests := []struct {
		name string
		src  string
	}{
		{"not json", `{`},
		{"unknown field", `{"container":"a","kind":"text","ops":[],"extra":1}`},
		{"bad id", `{"container":"a","kind":"text","ops":[{"id":"x","len":1,"kind":"insert","parents":[],"content":"a"}]}`},
		{"bad kind", `{"container":"a","kind":"text","ops":[{"id":"0@1","len":1,"kind":"move","parents":[],"content":"a"}]}`},
		{"length mismatch", `{"container":"a","kind":"text","ops":[{"id":"0@1","len":2,"kind":"insert","parents":[],"content":"a"}]}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := UnmarshalBatch([]byte(tt.src))
			assert.Error(t, err)
		})
	}

	_, err := UnmarshalBatch([]byte(`{"container":"a","kind":"text","ops":[` +
		`{"id":"0@2","len":2,"kind":"delete","parents":[],"targets":[{"client":"1","start":0,"end":1},{"client":"1","start":0,"end":1}]}]}`))
	assert.True(t, crdterr.Is(err, crdterr.CodeInvalidOp), "got %v", err)
	assert.True(t, strings.Contains(err.Error(), "overlap"))
}
