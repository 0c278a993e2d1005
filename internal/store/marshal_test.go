package store

import (
	"database/sql"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/weft/internal/content"
	"github.com/roach88/weft/internal/id"
	"github.com/roach88/weft/internal/value"
)

func TestMarshalParents(t *testing.T) {
	s, err := marshalParents([]id.ID{id.New(1, 3), id.New(2, 0)})
	require.NoError(t, err)
	assert.Equal(t, `["3@1","0@2"]`, s)

	s, err = marshalParents(nil)
	require.NoError(t, err)
	assert.Equal(t, `[]`, s)

	_, err = unmarshalParents(`["bogus"]`)
	assert.Error(t, err)
}

func TestMarshalContent_TextIsNotNormalized(t *testing.T) {
	// "e" followed by a combining acute accent: two runes, one after NFC
	decomposed := content.NewText("e\u0301<")
	col, err := marshalContent(decomposed)
	require.NoError(t, err)
	assert.Equal(t, "\"e\u0301<\"", col.String)

	back, err := unmarshalContent(col)
	require.NoError(t, err)
	assert.Equal(t, 3, back.Len())
}

func TestMarshalContent_ValuesAreNotNormalized(t *testing.T) {
	list := content.Values{
		value.NewString("e\u0301"),
		value.NewMap(map[string]value.Value{"e\u0301": value.I64(1), "\u00e9": value.I64(2)}),
	}
	col, err := marshalContent(list)
	require.NoError(t, err)

	back, err := unmarshalContent(col)
	require.NoError(t, err)
	assert.True(t, content.Equal(list, back), "round trip of %s", col.String)

	m, ok := back.(content.Values)[1].(value.Map)
	require.True(t, ok)
	assert.Equal(t, 2, m.Len())
}

func TestMarshalContent_Nil(t *testing.T) {
	col, err := marshalContent(nil)
	require.NoError(t, err)
	assert.False(t, col.Valid)

	back, err := unmarshalContent(sql.NullString{})
	require.NoError(t, err)
	assert.Nil(t, back)
}

func TestUnmarshalTargets_RejectsReversedSpan(t *testing.T) {
	_, err := unmarshalTargets(sql.NullString{String: `[{"client":"1","start":4,"end":2}]`, Valid: true})
	assert.Error(t, err)
}
