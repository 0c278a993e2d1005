package cli

import (
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// clientConfig pins the client id so edits get predictable op ids.
func clientConfig(t *testing.T) string {
	t.Helper()
	return writeFile(t, filepath.Join(t.TempDir(), "weft.cue"), "client_id: 2\n")
}

func TestEdit_InsertText(t *testing.T) {
	db := seedDB(t)

	out, err := execute(t, "edit", "--db", db, "--config", clientConfig(t),
		"--container", "notes", "--insert", "X", "--pos", "1")
	require.NoError(t, err)
	assert.Contains(t, out, "Applied 2:[0,1) to notes, version {1:7, 2:1}")
	assert.Contains(t, out, "ins(1, X)")
	assert.Contains(t, out, `Content: "hXlo"`)

	out, err = execute(t, "replay", "--db", db, "--container", "notes", "-v")
	require.NoError(t, err)
	assert.Contains(t, out, "Ops: 3, version {1:7, 2:1}")
	assert.Contains(t, out, `Content: "hXlo"`)
}

func TestEdit_DeleteJSON(t *testing.T) {
	db := seedDB(t)

	out, err := execute(t, "edit", "--db", db, "--config", clientConfig(t),
		"--container", "notes", "--delete", "2", "--format", "json")
	require.NoError(t, err)

	var resp struct {
		Status string     `json:"status"`
		Data   EditResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, "text", resp.Data.Kind)
	assert.Equal(t, []string{"del(0, 2)"}, resp.Data.Effects)
	assert.Equal(t, `"o"`, resp.Data.Content)
}

func TestEdit_NewListContainer(t *testing.T) {
	db := emptyDB(t)

	out, err := execute(t, "edit", "--db", db, "--config", clientConfig(t),
		"--container", "todo", "--kind", "list", "--values", `[1,"b"]`, "--format", "json")
	require.NoError(t, err)

	var resp struct {
		Data EditResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "list", resp.Data.Kind)
	assert.Equal(t, `[1,"b"]`, resp.Data.Content)
	assert.Equal(t, "{2:2}", resp.Data.Version)

	_, err = execute(t, "replay", "--db", db)
	require.NoError(t, err)
}

func TestEdit_KindFromConfig(t *testing.T) {
	cfg := writeFile(t, filepath.Join(t.TempDir(), "weft.cue"), "client_id: 4\ncontainers: {\n\tdraft: \"text\"\n}\n")

	out, err := execute(t, "edit", "--db", emptyDB(t), "--config", cfg, "--container", "draft", "--insert", "hi")
	require.NoError(t, err)
	assert.Contains(t, out, `Content: "hi"`)
}

func TestEdit_Errors(t *testing.T) {
	tests := []struct {
		name string
		args []string
		exit int
		msg  string
	}{
		{"position out of range", []string{"--container", "notes", "--delete", "5"}, ExitUsage, "edit rejected by notes"},
		{"wrong kind", []string{"--container", "todo", "--kind", "text", "--insert", "x"}, ExitUsage, "edit rejected by todo"},
		{"new container without kind", []string{"--container", "fresh", "--insert", "x"}, ExitUsage, "pass --kind"},
		{"values not a list", []string{"--container", "todo", "--values", `{"a":1}`}, ExitUsage, "must be a JSON array"},
		{"values not json", []string{"--container", "todo", "--values", `[1,`}, ExitUsage, "invalid --values"},
		{"bad kind", []string{"--container", "fresh", "--kind", "tree", "--insert", "x"}, ExitUsage, "invalid --kind"},
	}
	db := seedDB(t)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := execute(t, append([]string{"edit", "--db", db}, tt.args...)...)
			require.Error(t, err)
			assert.Equal(t, tt.exit, ExitCode(err))
			assert.Contains(t, err.Error(), tt.msg)
		})
	}

	out, err := execute(t, "replay", "--db", db, "-v")
	require.NoError(t, err)
	assert.Contains(t, out, `Content: "hlo"`, "rejected edits leave the log alone")
}

func TestEdit_NeedsExactlyOneEdit(t *testing.T) {
	db := seedDB(t)

	_, err := execute(t, "edit", "--db", db, "--container", "notes")
	assert.Error(t, err)

	_, err = execute(t, "edit", "--db", db, "--container", "notes", "--insert", "a", "--delete", "1")
	assert.Error(t, err)
}

func TestEdit_MissingDatabase(t *testing.T) {
	_, err := execute(t, "edit", "--db", filepath.Join(t.TempDir(), "nope.db"), "--container", "notes", "--insert", "a")
	require.Error(t, err)
	assert.Equal(t, ExitUsage, ExitCode(err))
	assert.Contains(t, err.Error(), "database not found")
}
