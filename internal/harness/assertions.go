package harness

import (
	"fmt"
	"strings"

	"github.com/roach88/dpmcheck/internal/ir"
)

// AssertionError is returned when an assertion fails.
// It includes the findings of the rule to help debug the failure.
type AssertionError struct {
	Type     string   // Assertion type for categorization
	Expected string   // Human-readable expected outcome
	Actual   string   // Human-readable actual outcome
	Findings []string // Findings of the asserted rule
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	if len(e.Findings) > 0 {
		fmt.Fprintf(&buf, "\nFindings:\n")
		for i, f := range e.Findings {
			fmt.Fprintf(&buf, "  [%d] %s\n", i+1, f)
		}
	}

	return buf.String()
}

// located is a finding together with the table it belongs to.
type located struct {
	table string
	ir.Finding
}

func (l located) String() string {
	return fmt.Sprintf("%s %s %s: %s", l.table, l.RuleID, rowLabel(l.RowIndex), l.Message)
}

func rowLabel(row *int) string {
	if row == nil {
		return "totals"
	}
	return fmt.Sprintf("row %d", *row)
}

// findings collects the failures (or errors) of rule, filtered by the
// assertion's table and row.
func findings(report *ir.Report, a Assertion, errors bool) []located {
	var out []located
	for _, t := range report.Tables {
		if a.Table != "" && !ir.SameTable(a.Table, t.TableID) {
			continue
		}
		list := t.Failures
		if errors {
			list = t.Errors
		}
		for _, f := range list {
			if f.RuleID != a.Rule {
				continue
			}
			if a.Totals && f.RowIndex != nil {
				continue
			}
			if a.Row != nil && (f.RowIndex == nil || *f.RowIndex != *a.Row) {
				continue
			}
			out = append(out, located{table: t.TableID, Finding: f})
		}
	}
	return out
}

func describe(a Assertion) string {
	where := a.Rule
	if a.Table != "" {
		where += " in " + a.Table
	}
	switch {
	case a.Totals:
		where += " at totals"
	case a.Row != nil:
		where += fmt.Sprintf(" at row %d", *a.Row)
	}
	return where
}

func strs(fs []located) []string {
	out := make([]string, len(fs))
	for i, f := range fs {
		out[i] = f.String()
	}
	return out
}

// assertFailure checks that a failure for the rule exists and, when a
// message is given, that one matches it exactly.
func assertFailure(report *ir.Report, a Assertion) error {
	all := findings(report, Assertion{Rule: a.Rule}, false)
	matched := findings(report, a, false)
	if len(matched) == 0 {
		return &AssertionError{
			Type:     AssertFailure,
			Expected: "failure for " + describe(a),
			Actual:   "no such failure",
			Findings: strs(all),
		}
	}
	if a.Message == "" {
		return nil
	}
	for _, f := range matched {
		if f.Message == a.Message {
			return nil
		}
	}
	return &AssertionError{
		Type:     AssertFailure,
		Expected: fmt.Sprintf("failure for %s with message %q", describe(a), a.Message),
		Actual:   fmt.Sprintf("message %q", matched[0].Message),
		Findings: strs(all),
	}
}

// assertNoFailure checks that the rule never failed.
func assertNoFailure(report *ir.Report, a Assertion) error {
	matched := findings(report, a, false)
	if len(matched) == 0 {
		return nil
	}
	return &AssertionError{
		Type:     AssertNoFailure,
		Expected: "no failure for " + describe(a),
		Actual:   fmt.Sprintf("%d failures", len(matched)),
		Findings: strs(matched),
	}
}

// assertEvalError checks for an evaluation error. The code matches the
// finding's error code; the message matches as a substring.
func assertEvalError(report *ir.Report, a Assertion) error {
	matched := findings(report, a, true)
	for _, f := range matched {
		if a.Code != "" && f.Code != a.Code {
			continue
		}
		if a.Message != "" && !strings.Contains(f.Message, a.Message) {
			continue
		}
		return nil
	}

	expected := "evaluation error for " + describe(a)
	if a.Code != "" {
		expected += " with code " + a.Code
	}
	return &AssertionError{
		Type:     AssertEvalError,
		Expected: expected,
		Actual:   "no matching error",
		Findings: strs(findings(report, Assertion{Rule: a.Rule}, true)),
	}
}

// assertWarning checks that the rule was reported as not applicable.
func assertWarning(report *ir.Report, a Assertion) error {
	var seen []string
	for _, w := range report.Warnings {
		if w.RuleID != a.Rule {
			continue
		}
		seen = append(seen, fmt.Sprintf("%s %s: %s", w.TableID, w.Code, w.Message))
		if a.Table != "" && !ir.SameTable(a.Table, w.TableID) {
			continue
		}
		if a.Code != "" && w.Code != a.Code {
			continue
		}
		return nil
	}

	expected := "warning for " + describe(a)
	if a.Code != "" {
		expected += " with code " + a.Code
	}
	return &AssertionError{
		Type:     AssertWarning,
		Expected: expected,
		Actual:   "not found",
		Findings: seen,
	}
}

// assertTableStatus checks the final status of one table.
func assertTableStatus(report *ir.Report, a Assertion) error {
	t := report.Table(a.Table)
	if t == nil {
		return &AssertionError{
			Type:     AssertTableStatus,
			Expected: fmt.Sprintf("table %s with status %s", a.Table, a.Status),
			Actual:   "table not in report",
		}
	}
	if string(t.Status) != a.Status {
		return &AssertionError{
			Type:     AssertTableStatus,
			Expected: fmt.Sprintf("table %s with status %s", a.Table, a.Status),
			Actual:   fmt.Sprintf("status %s (%d failures, %d errors)", t.Status, len(t.Failures), len(t.Errors)),
		}
	}
	return nil
}

// EvaluateAssertions evaluates all assertions against the report.
// Returns a slice of error messages for failed assertions.
func EvaluateAssertions(report *ir.Report, assertions []Assertion) []string {
	var errors []string

	for i, assertion := range assertions {
		var err error

		switch assertion.Type {
		case AssertFailure:
			err = assertFailure(report, assertion)
		case AssertNoFailure:
			err = assertNoFailure(report, assertion)
		case AssertEvalError:
			err = assertEvalError(report, assertion)
		case AssertWarning:
			err = assertWarning(report, assertion)
		case AssertTableStatus:
			err = assertTableStatus(report, assertion)
		default:
			err = fmt.Errorf("assertion[%d]: unknown assertion type %q", i, assertion.Type)
		}

		if err != nil {
			errors = append(errors, err.Error())
		}
	}

	return errors
}
