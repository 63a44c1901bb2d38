package harness

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/sebdah/goldie/v2"
)

// Snapshot renders the parts of a result that must stay stable: totals,
// per-table status and every finding in report order. The catalog hash is
// left out so that editing an unrelated rule does not churn snapshots.
func Snapshot(name string, result *Result) []byte {
	r := result.Report
	var b strings.Builder

	fmt.Fprintf(&b, "scenario: %s\n", name)
	fmt.Fprintf(&b, "run: %s\n", r.RunID)
	fmt.Fprintf(&b, "overall_pass: %t\n", r.OverallPass)
	fmt.Fprintf(&b, "complete: %t\n", r.Complete)
	fmt.Fprintf(&b, "total_errors: %d (failures %d, eval_errors %d)\n", r.TotalErrors, r.Failures, r.EvalErrors)
	fmt.Fprintf(&b, "rejected: %d\n", len(result.Rejected))

	for _, t := range r.Tables {
		fmt.Fprintf(&b, "\ntable %s %s rows=%d rules=%d evaluations=%d\n",
			t.TableID, t.Status, t.RowsProcessed, t.RulesApplied, t.Evaluations)
		for _, f := range t.Failures {
			fmt.Fprintf(&b, "  fail %s %s: %s\n", f.RuleID, rowLabel(f.RowIndex), f.Message)
		}
		for _, f := range t.Errors {
			fmt.Fprintf(&b, "  error %s %s: %s\n", f.RuleID, rowLabel(f.RowIndex), f.Message)
		}
	}

	if len(r.Warnings) == 0 {
		b.WriteString("\nwarnings: none\n")
	} else {
		b.WriteString("\nwarnings:\n")
		for _, w := range r.Warnings {
			fmt.Fprintf(&b, "  %s %s %s\n", w.RuleID, w.TableID, w.Code)
		}
	}
	return []byte(b.String())
}

// RunWithGolden executes a scenario, fails t on any unmet expectation and
// compares the snapshot against testdata/golden/{scenario.Name}.golden.
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
func RunWithGolden(t *testing.T, scenario *Scenario) (*Result, error) {
	t.Helper()

	result, err := Run(context.Background(), scenario)
	if err != nil {
		return nil, err
	}
	for _, msg := range result.Errors {
		t.Error(msg)
	}

	AssertGolden(t, scenario.Name, result)
	return result, nil
}

// AssertGolden compares the snapshot of an existing result against its
// golden file.
func AssertGolden(t *testing.T, scenarioName string, result *Result) {
	t.Helper()

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, scenarioName, Snapshot(scenarioName, result))
}
