package cli

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/roach88/weft/internal/engine"
	"github.com/roach88/weft/internal/sequence"
	"github.com/roach88/weft/internal/store"
	"github.com/roach88/weft/internal/value"
)

// execute runs the root command with args and returns stdout.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	buf := &bytes.Buffer{}
	cmd := NewRootCommand()
	cmd.SetOut(buf)
	cmd.SetErr(io.Discard)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return buf.String(), err
}

// seedDB writes a text container "notes" holding "hlo" ("hello" with "el"
// deleted) and a list container "todo" holding [1,"a"].
func seedDB(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "weft.db")
	st, err := store.Open(path)
	require.NoError(t, err)
	defer st.Close()

	eng := engine.New(
		engine.WithStore(st),
		engine.WithClientIDs(engine.StaticClientID(1)),
		engine.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
	)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- eng.Run(ctx) }()

	submit := func(cid value.ContainerID, kind sequence.Kind, edit engine.Edit) {
		reply := make(chan engine.Result, 1)
		require.True(t, eng.Enqueue(engine.Event{
			Type:      engine.EventTypeLocal,
			Container: cid,
			Kind:      kind,
			Edit:      &edit,
			Reply:     reply,
		}))
		require.NoError(t, (<-reply).Err)
	}
	submit("notes", sequence.Text, engine.Edit{Kind: engine.EditInsertText, Pos: 0, Text: "hello"})
	submit("notes", sequence.Text, engine.Edit{Kind: engine.EditDelete, Pos: 1, Len: 2})
	submit("todo", sequence.List, engine.Edit{
		Kind:   engine.EditInsertValues,
		Values: []value.Value{value.I64(1), value.NewString("a")},
	})

	eng.Stop()
	require.NoError(t, <-done)
	return path
}

func emptyDB(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "empty.db")
	st, err := store.Open(path)
	require.NoError(t, err)
	require.NoError(t, st.Close())
	return path
}

func writeFile(t *testing.T, path, body string) string {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}
