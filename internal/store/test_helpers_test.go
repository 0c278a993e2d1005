package store

import (
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/roach88/weft/internal/content"
	"github.com/roach88/weft/internal/id"
	"github.com/roach88/weft/internal/op"
)

func createTestStore(t *testing.T, opts ...Option) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "weft.db"), opts...)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func textInsert(client id.ClientID, counter id.Counter, text string, origin *id.ID, parents ...id.ID) op.Op {
	body := content.NewText(text)
	return op.Op{
		ID:      id.New(client, counter),
		Len:     body.Len(),
		Kind:    op.Insert,
		Parents: parents,
		Content: body,
		Origin:  origin,
	}
}

func pragma(t *testing.T, s *Store, name string) string {
	t.Helper()
	var v string
	require.NoError(t, s.db.QueryRow("PRAGMA "+name).Scan(&v))
	return v
}

func getTableColumns(t *testing.T, db *sql.DB, table string) []string {
	t.Helper()
	rows, err := db.Query("SELECT name FROM pragma_table_info(?)", table)
	require.NoError(t, err)
	defer rows.Close()

	var columns []string
	for rows.Next() {
		var name string
		require.NoError(t, rows.Scan(&name))
		columns = append(columns, name)
	}
	require.NoError(t, rows.Err())
	return columns
}

func getTableIndexes(t *testing.T, db *sql.DB, table string) []string {
	t.Helper()
	rows, err := db.Query("SELECT name FROM pragma_index_list(?)", table)
	require.NoError(t, err)
	defer rows.Close()

	var indexes []string
	for rows.Next() {
		var name string
		require.NoError(t, rows.Scan(&name))
		indexes = append(indexes, name)
	}
	require.NoError(t, rows.Err())
	return indexes
}
