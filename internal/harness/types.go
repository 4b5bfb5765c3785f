package harness

import "github.com/roach88/qflow/internal/engine"

// TraceEvent records one submission and the state it produced.
type TraceEvent struct {
	Seq              int64               `json:"seq"` // snapshot version after the submission
	Question         string              `json:"question,omitempty"`
	AddInstance      string              `json:"add_instance,omitempty"`
	RemoveInstance   string              `json:"remove_instance,omitempty"`
	Value            any                 `json:"value"`
	Final            bool                `json:"final"`
	Error            string              `json:"error,omitempty"` // engine error code
	Visible          []string            `json:"visible"`
	Required         []string            `json:"required"`
	Step             string              `json:"step"`
	Completion       int                 `json:"completion"`
	Complete         bool                `json:"complete"`
	ValidationErrors map[string][]string `json:"validation_errors,omitempty"`
}

// Result is the outcome of a scenario execution.
type Result struct {
	// Pass is true when every expectation and assertion held and the
	// session replayed to the same state.
	Pass bool `json:"pass"`

	// Trace contains one event per flow step, in order.
	Trace []TraceEvent `json:"trace"`

	// Errors contains assertion failures. Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`

	// Final is the session state after the last step.
	Final engine.Snapshot `json:"final"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Trace:  []TraceEvent{},
		Errors: []string{},
	}
}

// AddError adds a failure message and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

func (r *Result) addEvent(ev TraceEvent) {
	r.Trace = append(r.Trace, ev)
}
