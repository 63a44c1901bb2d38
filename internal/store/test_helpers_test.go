package store

import (
	"path/filepath"
	"testing"

	"github.com/roach88/dpmcheck/internal/ir"
)

// createTestStore creates a new store in a temp dir for testing.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// createTestTable builds a two-column table with one number, one text and
// one null cell plus a declared totals row.
func createTestTable(id string) *ir.Table {
	return &ir.Table{
		ID: id,
		Columns: []ir.Column{
			{Code: "c0010", Position: 0},
			{Code: "c0020", Position: 1},
		},
		Rows: []ir.Row{
			{Index: 0, Cells: map[string]ir.Value{"c0010": ir.MustNumber("1.10"), "c0020": ir.Text("ABC")}},
			{Index: 1, Cells: map[string]ir.Value{"c0010": ir.MustNumber("2"), "c0020": ir.Code{Namespace: "eba_CO", Code: "x3"}}},
			{Index: 2, Cells: map[string]ir.Value{}},
		},
		Totals: &ir.Row{Index: -1, Cells: map[string]ir.Value{"c0010": ir.MustNumber("3.10")}},
	}
}

func intPtr(i int) *int { return &i }

// createTestReport builds a report with one failure and one evaluation
// error.
func createTestReport(runID string) *ir.Report {
	return &ir.Report{
		RunID:       runID,
		CatalogHash: "hash-1",
		Version:     ir.ReportVersion,
		OverallPass: false,
		TotalErrors: 2,
		Failures:    1,
		EvalErrors:  1,
		Complete:    true,
		Tables: []ir.TableReport{{
			TableID:       "tB_01.01",
			Status:        ir.StatusFail,
			RowsProcessed: 3,
			RulesApplied:  2,
			Evaluations:   6,
			Failures:      []ir.Finding{{RuleID: "R1", RowIndex: intPtr(1), Message: "expected 9 got 10"}},
			Errors:        []ir.Finding{{RuleID: "R2", Message: "DIVISION_BY_ZERO: division by zero in {c0010} / {c0020}", Code: "DIVISION_BY_ZERO"}},
		}},
		Warnings: []ir.Warning{{RuleID: "R3", TableID: "tB_01.01", Code: "UNKNOWN_COLUMN", Message: "column c0999 not in table"}},
	}
}
