package cli

import (
	"bytes"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/weft/internal/op"
	"github.com/roach88/weft/internal/store"
)

// exportTo writes the batch for container in db to a temp file.
func exportTo(t *testing.T, db, container string, extra ...string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), container+".json")
	args := append([]string{"export", "--db", db, "--container", container, "--output", path}, extra...)
	_, err := execute(t, args...)
	require.NoError(t, err)
	return path
}

func TestExport_Stdout(t *testing.T) {
	out, err := execute(t, "export", "--db", seedDB(t), "--container", "notes")
	require.NoError(t, err)

	batch, err := store.UnmarshalBatch([]byte(out))
	require.NoError(t, err)
	assert.Equal(t, "notes", batch.Container)
	assert.Equal(t, "text", batch.Kind)
	require.Len(t, batch.Ops, 2)
	assert.Equal(t, op.Insert, batch.Ops[0].Kind)
	assert.Equal(t, op.Delete, batch.Ops[1].Kind)
}

func TestExport_SinceJSON(t *testing.T) {
	out, err := execute(t, "export", "--db", seedDB(t), "--container", "notes", "--since", "{1:6}", "--format", "json")
	require.NoError(t, err)

	var resp struct {
		Status string       `json:"status"`
		Data   ExportResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, "{1:6}", resp.Data.Since)
	assert.Equal(t, 1, resp.Data.Ops)

	batch, err := store.UnmarshalBatch(resp.Data.Batch)
	require.NoError(t, err)
	require.Len(t, batch.Ops, 1)
	assert.Equal(t, 1, batch.Ops[0].Len, "the delete is trimmed to the part after {1:6}")
}

func TestExport_Errors(t *testing.T) {
	db := seedDB(t)

	_, err := execute(t, "export", "--db", db, "--container", "missing")
	assert.Equal(t, ExitUsage, ExitCode(err))

	_, err = execute(t, "export", "--db", db, "--container", "notes", "--since", "{1}")
	assert.Equal(t, ExitUsage, ExitCode(err))
}

func TestImport_IntoEmptyLog(t *testing.T) {
	batch := exportTo(t, seedDB(t), "notes")
	db := emptyDB(t)

	out, err := execute(t, "import", "--db", db, batch)
	require.NoError(t, err)
	assert.Contains(t, out, "Imported 2 of 2 op(s) into notes, version {1:7}")

	out, err = execute(t, "replay", "--db", db, "-v")
	require.NoError(t, err)
	assert.Contains(t, out, "✓ Container: notes (text)")
	assert.Contains(t, out, `Content: "hlo"`)

	// A second delivery is all duplicates.
	out, err = execute(t, "import", "--db", db, batch)
	require.NoError(t, err)
	assert.Contains(t, out, "Imported 0 of 2 op(s)")
}

func TestImport_MergesConcurrentEdits(t *testing.T) {
	a, b := seedDB(t), emptyDB(t)
	_, err := execute(t, "import", "--db", b, exportTo(t, a, "notes"))
	require.NoError(t, err)

	cfg := func(client string) string {
		return writeFile(t, filepath.Join(t.TempDir(), "weft.cue"), "client_id: "+client+"\n")
	}
	_, err = execute(t, "edit", "--db", a, "--config", cfg("2"), "--container", "notes", "--insert", "A", "--pos", "3")
	require.NoError(t, err)
	_, err = execute(t, "edit", "--db", b, "--config", cfg("3"), "--container", "notes", "--insert", "B", "--pos", "3")
	require.NoError(t, err)

	_, err = execute(t, "import", "--db", a, exportTo(t, b, "notes", "--since", "{1:7}"))
	require.NoError(t, err)
	_, err = execute(t, "import", "--db", b, exportTo(t, a, "notes", "--since", "{1:7}"))
	require.NoError(t, err)

	contentOf := func(db string) string {
		out, err := execute(t, "replay", "--db", db, "--container", "notes", "--format", "json")
		require.NoError(t, err)
		var resp struct {
			Data ReplayResult `json:"data"`
		}
		require.NoError(t, json.Unmarshal([]byte(out), &resp))
		require.Len(t, resp.Data.Containers, 1)
		require.True(t, resp.Data.Containers[0].Deterministic)
		return resp.Data.Containers[0].Content
	}
	assert.Equal(t, contentOf(a), contentOf(b))
	assert.Len(t, []rune(contentOf(a)), len(`"hloAB"`))
}

func TestImport_MissingDependenciesStayPending(t *testing.T) {
	batch := exportTo(t, seedDB(t), "notes", "--since", "{1:5}")

	out, err := execute(t, "import", "--db", emptyDB(t), batch, "--format", "json")
	require.Error(t, err)
	assert.Equal(t, ExitCheckFailed, ExitCode(err))

	var resp struct {
		Status string         `json:"status"`
		Data   ImportResult   `json:"data"`
		Error  *ResponseError `json:"error"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "error", resp.Status)
	assert.Equal(t, CodePending, resp.Error.Code)
	assert.Equal(t, 1, resp.Data.Pending)
	assert.Equal(t, 0, resp.Data.Integrated)
}

func TestImport_WrongKind(t *testing.T) {
	db := seedDB(t)
	batch := exportTo(t, db, "notes")

	_, err := execute(t, "import", "--db", db, "--container", "todo", batch)
	require.Error(t, err)
	assert.Equal(t, ExitCheckFailed, ExitCode(err))
	assert.Contains(t, err.Error(), "rejected ops")
}

func TestImport_Stdin(t *testing.T) {
	data, err := os.ReadFile(exportTo(t, seedDB(t), "todo"))
	require.NoError(t, err)
	db := emptyDB(t)

	buf := &bytes.Buffer{}
	cmd := NewRootCommand()
	cmd.SetIn(bytes.NewReader(data))
	cmd.SetOut(buf)
	cmd.SetErr(io.Discard)
	cmd.SetArgs([]string{"import", "--db", db, "-", "-v"})
	require.NoError(t, cmd.Execute())
	assert.Contains(t, buf.String(), `Content: [1,"a"]`)
}

func TestImport_BadBatch(t *testing.T) {
	db := emptyDB(t)

	_, err := execute(t, "import", "--db", db, filepath.Join(t.TempDir(), "missing.json"))
	assert.Equal(t, ExitUsage, ExitCode(err))

	bad := writeFile(t, filepath.Join(t.TempDir(), "bad.json"), `{"container":"x","kind":"text","ops":[{"id":"0@1"}]}`)
	_, err = execute(t, "import", "--db", db, bad)
	assert.Equal(t, ExitUsage, ExitCode(err))
	assert.Contains(t, err.Error(), "invalid batch")

	anonymous := writeFile(t, filepath.Join(t.TempDir(), "anon.json"), `{"container":"","kind":"text","ops":[]}`)
	_, err = execute(t, "import", "--db", db, anonymous)
	assert.Equal(t, ExitUsage, ExitCode(err))
	assert.Contains(t, err.Error(), "pass --container")
}
