package config

import (
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/weft/internal/id"
	"github.com/roach88/weft/internal/sequence"
)

func writeFile(t *testing.T, src string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "weft.cue")
	require.NoError(t, os.WriteFile(path, []byte(src), 0o644))
	return path
}

func TestDefault(t *testing.T) {
	c := Default()
	assert.Equal(t, "weft.db", c.Database)
	assert.Equal(t, "info", c.LogLevel)
	assert.Equal(t, uint64(0), c.ClientID)
	assert.NotNil(t, c.Containers)
	assert.Empty(t, c.Containers)
	assert.Equal(t, slog.LevelInfo, c.Level())

	_, ok := c.Client()
	assert.False(t, ok)
}

func TestLoad_Full(t *testing.T) {
	path := writeFile(t, `
database:  "doc.db"
log_level: "debug"
client_id: 18446744073709551615
containers: {
	todo:  "list"
	notes: "text"
}
`)
	c, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "doc.db", c.Database)
	assert.Equal(t, slog.LevelDebug, c.Level())

	client, ok := c.Client()
	assert.True(t, ok)
	assert.Equal(t, id.ClientID(18446744073709551615), client)

	specs, err := c.ContainerSpecs()
	require.NoError(t, err)
	assert.Equal(t, []ContainerSpec{
		{ID: "notes", Kind: sequence.Text},
		{ID: "todo", Kind: sequence.List},
	}, specs)
}

func TestLoad_Rejects(t *testing.T) {
	tests := []struct {
		name string
		src  string
		code string
	}{
		{"bad level", `log_level: "loud"`, ErrCodeInvalid},
		{"negative client", `client_id: -1`, ErrCodeInvalid},
		{"unknown field", `port: 80`, ErrCodeInvalid},
		{"bad kind", `containers: m: "map"`, ErrCodeInvalid},
		{"empty database", `database: ""`, ErrCodeInvalid},
		{"syntax", `database: "x`, ErrCodeSyntax},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeFile(t, tt.src))
			require.Error(t, err)

			var le *LoadError
			require.True(t, errors.As(err, &le), "got %T", err)
			assert.Equal(t, tt.code, le.Code)
		})
	}
}

func TestLoad_ErrorHasPosition(t *testing.T) {
	tests := []struct {
		name string
		src  string
		line int
	}{
		{"log level outside disjunction", "database: \"a.db\"\nlog_level: \"loud\"\n", 2},
		{"container kind outside disjunction", "containers: {\n\tnotes: \"tree\"\n}\n", 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeFile(t, tt.src)
			_, err := Load(path)

			var le *LoadError
			require.True(t, errors.As(err, &le))
			assert.Equal(t, ErrCodeInvalid, le.Code)
			require.True(t, le.Pos.IsValid(), "error %v has no position", err)
			assert.Equal(t, path, le.Pos.Filename())
			assert.Equal(t, tt.line, le.Pos.Line())
			assert.True(t, strings.HasPrefix(err.Error(), path))
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.cue"))

	var le *LoadError
	require.True(t, errors.As(err, &le))
	assert.Equal(t, ErrCodeRead, le.Code)
}

func TestLoadError_Format(t *testing.T) {
	err := &LoadError{Code: ErrCodeInvalid, Message: "boom"}
	assert.Equal(t, "CONFIG_INVALID: boom", err.Error())
}
