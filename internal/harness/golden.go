package harness

import (
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/roach88/weft/internal/value"
)

// MarshalTrace renders a trace as canonical JSON with a trailing newline:
// an object with "scenario_name" and one "trace" entry per step. Equal
// traces always give equal bytes.
func MarshalTrace(scenarioName string, trace []TraceEvent) ([]byte, error) {
	steps := make([]any, len(trace))
	for i, ev := range trace {
		steps[i] = map[string]any{
			"step":    ev.Step,
			"replica": ev.Replica,
			"action":  ev.Action,
			"ops":     anySlice(ev.Ops),
			"effects": anySlice(ev.Effects),
			"pending": ev.Pending,
		}
	}
	v, err := value.FromGo(map[string]any{"scenario_name": scenarioName, "trace": steps})
	if err != nil {
		return nil, err
	}
	data, err := value.MarshalCanonical(v)
	if err != nil {
		return nil, err
	}
	return append(data, '\n'), nil
}

func anySlice(ss []string) []any {
	out := make([]any, len(ss))
	for i, s := range ss {
		out[i] = s
	}
	return out
}

// RunWithGolden runs s and checks its trace against
// testdata/golden/<name>.golden. Regenerate with
//
//	go test ./internal/harness -update
//
// A mismatch fails t; the returned error covers execution only.
func RunWithGolden(t *testing.T, s *Scenario) (*Result, error) {
	t.Helper()
	result, err := Run(s)
	if err != nil {
		return nil, err
	}
	trace, err := MarshalTrace(s.Name, result.Trace)
	if err != nil {
		return nil, err
	}
	g := goldie.New(t, goldie.WithFixtureDir("testdata/golden"), goldie.WithNameSuffix(".golden"))
	g.Assert(t, s.Name, trace)
	return result, nil
}
