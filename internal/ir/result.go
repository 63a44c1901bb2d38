package ir

// Outcome is the result of evaluating one rule against one row.
type Outcome string

const (
	OutcomePass      Outcome = "pass"
	OutcomeFail      Outcome = "fail"
	OutcomeEvalError Outcome = "eval_error"
)

// ValidationResult is the outcome of one (rule, table, row) evaluation.
// RowIndex is nil for table rules evaluated against the totals row.
type ValidationResult struct {
	RuleID   string  `json:"rule_id"`
	TableID  string  `json:"table_id"`
	RowIndex *int    `json:"row_index,omitempty"`
	Outcome  Outcome `json:"outcome"`
	Message  string  `json:"message,omitempty"`
	// Code is the evaluation error code when Outcome is OutcomeEvalError.
	Code string `json:"code,omitempty"`
}

// Finding is a failing or erroring result as listed in a report.
type Finding struct {
	RuleID   string `json:"rule_id"`
	RowIndex *int   `json:"row_index,omitempty"`
	Message  string `json:"message"`
	Code     string `json:"code,omitempty"`
}

// Warning records a rule that could not be applied to a table.
type Warning struct {
	RuleID  string `json:"rule_id"`
	TableID string `json:"table_id"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// TableStatus summarises one table in a report.
type TableStatus string

const (
	StatusPass  TableStatus = "PASS"
	StatusFail  TableStatus = "FAIL"
	StatusError TableStatus = "ERROR"
)

// TableReport is the per-table section of a report.
type TableReport struct {
	TableID       string      `json:"table_id"`
	Status        TableStatus `json:"status"`
	RowsProcessed int         `json:"rows_processed"`
	RulesApplied  int         `json:"rules_applied"`
	Evaluations   int         `json:"evaluations"`
	Failures      []Finding   `json:"failures"`
	Errors        []Finding   `json:"errors"`
}

// ErrorCount is the number of failures plus evaluation errors.
func (t *TableReport) ErrorCount() int {
	return len(t.Failures) + len(t.Errors)
}

// Report is the result of a validation run.
type Report struct {
	RunID       string `json:"run_id"`
	CatalogHash string `json:"catalog_hash"`
	Version     string `json:"version"`

	// OverallPass is true iff TotalErrors is zero.
	OverallPass bool `json:"overall_pass"`

	// TotalErrors counts business failures and evaluation errors.
	TotalErrors int `json:"total_errors"`
	Failures    int `json:"failures"`
	EvalErrors  int `json:"eval_errors"`

	// Complete is false when the run was cancelled before all units finished.
	Complete bool `json:"complete"`

	Tables   []TableReport `json:"tables"`
	Warnings []Warning     `json:"warnings"`
}

// Table returns the report section for id, or nil.
func (r *Report) Table(id string) *TableReport {
	for i := range r.Tables {
		if SameTable(r.Tables[i].TableID, id) {
			return &r.Tables[i]
		}
	}
	return nil
}
