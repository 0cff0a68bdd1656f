package store

import (
	"time"

	"github.com/roach88/upbb/internal/ir"
)

// Run status values stored in runs.status.
const (
	StatusRunning   = "running"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
	StatusCancelled = "cancelled"
)

// Run is the metadata row of one propagation run.
type Run struct {
	ID        string
	Name      string // Output quantity name
	Model     string
	Method    ir.Method
	N         int
	Seed      uint64
	Variables []ir.Quantity // Declared input order
	PlanHash  string
	Planned   int64 // Number of samples in the plan
	CreatedAt time.Time

	Status string
	Result *ir.Result // Set once Status is StatusCompleted
	Error  string

	EngineVersion string
	FormatVersion string
}

// VariableLabels returns the input symbols in declared order.
func (r Run) VariableLabels() []string {
	out := make([]string, len(r.Variables))
	for i, v := range r.Variables {
		out[i] = v.Label()
	}
	return out
}
