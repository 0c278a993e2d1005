package cli

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInspect_Table(t *testing.T) {
	out, err := execute(t, "inspect", "--db", seedDB(t), "--container", "notes")
	require.NoError(t, err)

	assert.Contains(t, out, "Container: notes (text), length 3, version {1:7}")
	assert.Contains(t, out, "IDS")
	assert.Contains(t, out, "1:[0,1)")
	assert.Contains(t, out, `"el"`)
	assert.Contains(t, out, "deleted")
}

func TestInspect_JSON(t *testing.T) {
	out, err := execute(t, "inspect", "--db", seedDB(t), "--container", "notes", "--format", "json")
	require.NoError(t, err)

	var resp struct {
		Status string        `json:"status"`
		Data   InspectResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, 3, resp.Data.Len)
	assert.Equal(t, []string{"6@1"}, resp.Data.Frontier)
	assert.Equal(t, []InspectSpan{
		{IDs: "1:[0,1)", Len: 1, Status: "alive", Visible: true, Pos: 0, Content: `"h"`},
		{IDs: "1:[1,3)", Len: 2, Status: "deleted", Visible: false, Pos: 1, Content: `"el"`},
		{IDs: "1:[3,5)", Len: 2, Status: "alive", Visible: true, Pos: 1, Content: `"lo"`},
	}, resp.Data.Spans)
}

func TestInspect_UnknownContainer(t *testing.T) {
	_, err := execute(t, "inspect", "--db", seedDB(t), "--container", "missing")
	require.Error(t, err)
	assert.Equal(t, ExitUsage, ExitCode(err))
}
