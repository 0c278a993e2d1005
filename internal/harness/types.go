package harness

// TraceEvent records one scenario step as seen by the replica it ran on.
type TraceEvent struct {
	Step    int      `json:"step"`
	Replica uint64   `json:"replica"`
	Action  string   `json:"action"`
	Ops     []string `json:"ops"`
	Effects []string `json:"effects"`
	Pending int      `json:"pending"`
}

// Result is the outcome of a test scenario execution.
type Result struct {
	// Pass is true if every step and assertion succeeded.
	Pass bool `json:"pass"`

	// Trace contains one event per step, in order.
	Trace []TraceEvent `json:"trace"`

	// Errors contains validation error messages.
	// Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Trace:  []TraceEvent{},
		Errors: []string{},
	}
}

// AddError adds a validation error and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// AddTrace appends a step to the trace.
func (r *Result) AddTrace(ev TraceEvent) {
	if ev.Ops == nil {
		ev.Ops = []string{}
	}
	if ev.Effects == nil {
		ev.Effects = []string{}
	}
	r.Trace = append(r.Trace, ev)
}
