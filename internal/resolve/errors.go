package resolve

import (
	"errors"
	"fmt"
)

// ContextError reports that a rule cannot be applied to a table.
type ContextError struct {
	// Code identifies the error category.
	Code ContextErrorCode

	// Message is a human-readable description.
	Message string

	RuleID  string
	TableID string

	// Ref is the offending reference as written, if any.
	Ref string
}

// ContextErrorCode categorizes binding failures.
type ContextErrorCode string

const (
	// ErrCodeUnknownColumn indicates a referenced column is not in the schema.
	ErrCodeUnknownColumn ContextErrorCode = "UNKNOWN_COLUMN"

	// ErrCodeEmptyRange indicates a range matched no declared column.
	ErrCodeEmptyRange ContextErrorCode = "EMPTY_RANGE"

	// ErrCodeTableMismatch indicates the rule is scoped to another table.
	ErrCodeTableMismatch ContextErrorCode = "TABLE_MISMATCH"

	// ErrCodeCrossTable indicates a reference into a table other than the one
	// being validated.
	ErrCodeCrossTable ContextErrorCode = "CROSS_TABLE_REFERENCE"
)

// Error implements the error interface.
func (e *ContextError) Error() string {
	if e.Ref != "" {
		return fmt.Sprintf("%s: %s (rule=%s, table=%s, ref=%s)", e.Code, e.Message, e.RuleID, e.TableID, e.Ref)
	}
	return fmt.Sprintf("%s: %s (rule=%s, table=%s)", e.Code, e.Message, e.RuleID, e.TableID)
}

// IsTableMismatch returns true if err reports a rule scoped to another table.
func IsTableMismatch(err error) bool {
	var ce *ContextError
	if errors.As(err, &ce) {
		return ce.Code == ErrCodeTableMismatch
	}
	return false
}
