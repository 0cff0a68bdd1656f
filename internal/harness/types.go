package harness

import "github.com/roach88/upbb/internal/ir"

// TraceEvent is one recorded evaluation, in plan order.
type TraceEvent struct {
	Index   int64          `json:"index"`
	Input   []float64      `json:"input"`
	Outcome ir.OutcomeKind `json:"outcome"`
	Value   float64        `json:"value"` // Zero unless the outcome is defined
	Reason  string         `json:"reason,omitempty"`
}

// ReplayCheck summarises re-aggregation of the recorded raw data.
type ReplayCheck struct {
	Complete     bool   `json:"complete"`
	ResultsMatch bool   `json:"results_match"`
	Missing      int    `json:"missing"`
	Corrupt      int    `json:"corrupt"`
	Error        string `json:"error,omitempty"`
}

// Result is the outcome of a test scenario execution.
type Result struct {
	// Pass indicates overall test success.
	// True if all assertions hold.
	Pass bool `json:"pass"`

	RunID string `json:"run_id"`

	// Output is the enclosure, nil if the run failed.
	Output *ir.Result `json:"output,omitempty"`

	// ErrorCode and ErrorMessage describe a failed run.
	ErrorCode    string `json:"error_code,omitempty"`
	ErrorMessage string `json:"error_message,omitempty"`

	// Trace contains every recorded evaluation in plan order.
	Trace []TraceEvent `json:"trace"`

	// Replay is the re-aggregation check of the recorded raw data.
	Replay ReplayCheck `json:"replay"`

	// Errors contains assertion failure messages.
	// Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`
}

// NewResult creates a new passing result.
// Used as the starting point for test execution.
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

// AddRecordTrace appends one evaluation record to the trace.
func (r *Result) AddRecordTrace(rec ir.EvaluationRecord) {
	ev := TraceEvent{
		Index:   rec.Index,
		Input:   rec.Input.Clone(),
		Outcome: rec.Outcome.Kind,
		Reason:  rec.Outcome.Reason,
	}
	if rec.Outcome.IsDefined() {
		ev.Value = rec.Outcome.Value
	}
	r.Trace = append(r.Trace, ev)
}
