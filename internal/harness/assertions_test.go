package harness

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ptr[T any](v T) *T { return &v }

// diverged leaves replica 2 without replica 1's edit.
func diverged(assertions ...Assertion) *Scenario {
	return &Scenario{
		Name:        "diverged",
		Description: "one edit, never synced",
		Container:   "doc",
		Kind:        "text",
		Replicas:    []uint64{1, 2},
		Steps: []Step{
			{Replica: 1, Insert: &InsertStep{Pos: 0, Text: "ab"}},
		},
		Assertions: assertions,
	}
}

func TestAssertions_Failures(t *testing.T) {
	tests := []struct {
		name      string
		assertion Assertion
		want      string
	}{
		{"converged", Assertion{Type: AssertConverged}, "Assertion failed: converged (replica 2)"},
		{"content", Assertion{Type: AssertContent, Replica: 1, Text: ptr("ba")}, `Expected: "ba"`},
		{"version", Assertion{Type: AssertVersion, Replica: 2, Version: "{1:2}"}, "Actual: {}"},
		{"critical", Assertion{Type: AssertCritical, Replica: 1, Critical: []string{"0@1"}}, "Actual: [1@1]"},
		{"pending", Assertion{Type: AssertPending, Replica: 1, Count: 2}, "Expected: 2 pending ops"},
		{"unknown", Assertion{Type: "eventually"}, `unknown assertion type "eventually"`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := Run(diverged(tt.assertion))
			require.NoError(t, err)
			assert.False(t, result.Pass)
			require.Len(t, result.Errors, 1)
			assert.Contains(t, result.Errors[0], tt.want)
		})
	}
}

func TestAssertions_Pass(t *testing.T) {
	result, err := Run(diverged(
		Assertion{Type: AssertContent, Replica: 1, Text: ptr("ab")},
		Assertion{Type: AssertContent, Replica: 2, Text: ptr("")},
		Assertion{Type: AssertVersion, Replica: 1, Version: "{1:2}"},
		Assertion{Type: AssertCritical, Replica: 1, Critical: []string{"1@1"}},
		Assertion{Type: AssertPending, Replica: 2},
		Assertion{Type: AssertReplay, Replica: 1},
		Assertion{Type: AssertReplay, Replica: 2},
		Assertion{Type: AssertInvariants},
	))
	require.NoError(t, err)
	assert.True(t, result.Pass, "errors: %v", result.Errors)
}

func TestAssertionError_Format(t *testing.T) {
	err := &AssertionError{Type: AssertContent, Replica: 3, Expected: `"a"`, Actual: `"b"`}
	assert.Equal(t, "Assertion failed: content (replica 3)\n  Expected: \"a\"\n  Actual: \"b\"", err.Error())
}
