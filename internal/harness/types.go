package harness

import (
	"github.com/roach88/dpmcheck/internal/ir"
)

// Result is the outcome of a test scenario execution.
type Result struct {
	// Pass indicates overall test success.
	// True if the report meets every expectation and assertion.
	Pass bool `json:"pass"`

	// Report is the validation report the scenario produced.
	Report *ir.Report `json:"report"`

	// Rejected lists catalog entries that failed to compile.
	Rejected []string `json:"rejected,omitempty"`

	// Errors contains expectation and assertion failures.
	// Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:     true,
		Rejected: []string{},
		Errors:   []string{},
	}
}

// AddError adds a validation error and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}
