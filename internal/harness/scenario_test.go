package harness

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadScenario(t *testing.T) {
	s, err := LoadScenario(filepath.Join("testdata", "scenarios", "list-shuffle.yaml"))
	require.NoError(t, err)

	assert.Equal(t, "list-shuffle", s.Name)
	assert.Equal(t, "items", s.Container)
	assert.Equal(t, "list", s.Kind)
	assert.Equal(t, []uint64{1, 2}, s.Replicas)
	require.Len(t, s.Steps, 4)
	assert.Equal(t, []any{1, "two"}, s.Steps[0].Insert.Values)
	assert.Equal(t, &SyncStep{From: 1, To: 2, Order: OrderShuffle, Seed: 7}, s.Steps[3].Sync)
	require.Len(t, s.Assertions, 5)
	assert.Equal(t, []any{"two", true}, s.Assertions[1].Values)
}

func TestLoadScenario_DefaultContainer(t *testing.T) {
	s, err := LoadScenario(filepath.Join("testdata", "scenarios", "concurrent-insert.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "doc", s.Container)
	assert.Equal(t, "OUT_OF_RANGE", s.Steps[4].ExpectError)
}

func TestLoadScenario_MissingFile(t *testing.T) {
	_, err := LoadScenario(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.ErrorContains(t, err, "failed to read scenario file")
}

func TestLoadScenarios_SkipsOtherFiles(t *testing.T) {
	dir := t.TempDir()
	src, err := os.ReadFile(filepath.Join("testdata", "scenarios", "concurrent-delete.yaml"))
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "b.yaml"), src, 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "README.md"), []byte("# notes"), 0o644))

	scenarios, err := LoadScenarios(dir)
	require.NoError(t, err)
	require.Len(t, scenarios, 1)
	assert.Equal(t, "concurrent-delete", scenarios[0].Name)
}

const validHeader = `
name: t
description: d
kind: text
replicas: [1, 2]
`

func TestParseScenario_Rejects(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		want string
	}{
		{
			name: "unknown field",
			yaml: validHeader + "steps:\n  - replica: 1\n    insert: { pos: 0, text: a }\nassertion:\n  - type: converged\n",
			want: "field assertion not found",
		},
		{
			name: "missing name",
			yaml: "description: d\nkind: text\nreplicas: [1]\n",
			want: "name is required",
		},
		{
			name: "bad kind",
			yaml: "name: t\ndescription: d\nkind: tree\nreplicas: [1]\n",
			want: `unknown container kind "tree"`,
		},
		{
			name: "zero client",
			yaml: "name: t\ndescription: d\nkind: text\nreplicas: [0]\n",
			want: "client id must be positive",
		},
		{
			name: "duplicate client",
			yaml: "name: t\ndescription: d\nkind: text\nreplicas: [1, 1]\n",
			want: "duplicate client id 1",
		},
		{
			name: "no steps",
			yaml: validHeader + "assertions:\n  - type: converged\n",
			want: "steps list is required",
		},
		{
			name: "two actions in a step",
			yaml: validHeader + "steps:\n  - replica: 1\n    insert: { pos: 0, text: a }\n    delete: { pos: 0, len: 1 }\nassertions:\n  - type: converged\n",
			want: "exactly one of insert, delete or sync",
		},
		{
			name: "unknown replica",
			yaml: validHeader + "steps:\n  - replica: 3\n    insert: { pos: 0, text: a }\nassertions:\n  - type: converged\n",
			want: "unknown replica 3",
		},
		{
			name: "values on text",
			yaml: validHeader + "steps:\n  - replica: 1\n    insert: { pos: 0, values: [1] }\nassertions:\n  - type: converged\n",
			want: "values on a text container",
		},
		{
			name: "sync to self",
			yaml: validHeader + "steps:\n  - sync: { from: 1, to: 1 }\nassertions:\n  - type: converged\n",
			want: "from and to are the same replica",
		},
		{
			name: "bad order",
			yaml: validHeader + "steps:\n  - sync: { from: 1, to: 2, order: random }\nassertions:\n  - type: converged\n",
			want: `unknown order "random"`,
		},
		{
			name: "no assertions",
			yaml: validHeader + "steps:\n  - sync: { from: 1, to: 2 }\n",
			want: "assertions list is required",
		},
		{
			name: "content without text",
			yaml: validHeader + "steps:\n  - sync: { from: 1, to: 2 }\nassertions:\n  - type: content\n    replica: 1\n",
			want: "text is required for text containers",
		},
		{
			name: "version without vector",
			yaml: validHeader + "steps:\n  - sync: { from: 1, to: 2 }\nassertions:\n  - type: version\n    replica: 1\n",
			want: "version is required",
		},
		{
			name: "unknown assertion",
			yaml: validHeader + "steps:\n  - sync: { from: 1, to: 2 }\nassertions:\n  - type: eventually\n",
			want: `unknown assertion type "eventually"`,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseScenario([]byte(tt.yaml))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}
