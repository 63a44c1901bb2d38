package engine

import "fmt"

// EvalError represents a fault detected while evaluating a rule against a
// row. It is a distinct outcome from a business-rule failure: the data may
// be fine, the rule just could not be checked.
//
// EvalError never aborts a run. It is attached to its (rule, row) result and
// counted separately in the report.
type EvalError struct {
	// Code identifies the error category.
	Code EvalErrorCode

	// Message is a human-readable description.
	Message string

	RuleID  string
	TableID string

	// RowIndex is the source row, nil for the totals row.
	RowIndex *int

	// Node is the sub-expression that failed, as written.
	Node string
}

// EvalErrorCode categorizes evaluation errors.
type EvalErrorCode string

const (
	// ErrCodeUnknownColumn indicates a reference was not resolved at bind time.
	ErrCodeUnknownColumn EvalErrorCode = "UNKNOWN_COLUMN"

	// ErrCodeBadPattern indicates a match pattern is not a valid regex.
	ErrCodeBadPattern EvalErrorCode = "BAD_PATTERN"

	// ErrCodeNonNumeric indicates arithmetic or SUM over a non-numeric cell.
	ErrCodeNonNumeric EvalErrorCode = "NON_NUMERIC_OPERAND"

	// ErrCodeTypeMismatch indicates operands that cannot be compared, or a
	// value used where a condition is required.
	ErrCodeTypeMismatch EvalErrorCode = "TYPE_MISMATCH"

	// ErrCodeDivisionByZero indicates a division by a zero operand.
	ErrCodeDivisionByZero EvalErrorCode = "DIVISION_BY_ZERO"
)

// Error implements the error interface.
func (e *EvalError) Error() string {
	if e.RuleID == "" {
		return fmt.Sprintf("%s: %s", e.Code, e.Message)
	}
	if e.RowIndex != nil {
		return fmt.Sprintf("%s: %s (rule=%s, table=%s, row=%d)", e.Code, e.Message, e.RuleID, e.TableID, *e.RowIndex)
	}
	return fmt.Sprintf("%s: %s (rule=%s, table=%s)", e.Code, e.Message, e.RuleID, e.TableID)
}

func newEvalError(code EvalErrorCode, node, format string, args ...any) *EvalError {
	return &EvalError{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
		Node:    node,
	}
}
