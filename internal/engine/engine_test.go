package engine

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/dpmcheck/internal/compiler"
	"github.com/roach88/dpmcheck/internal/ir"
	"github.com/roach88/dpmcheck/internal/testutil"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func compileAll(t *testing.T, specs ...compiler.RuleSpec) []*ir.Rule {
	t.Helper()
	rules := make([]*ir.Rule, len(specs))
	for i, spec := range specs {
		r, err := compiler.CompileRule(spec)
		require.NoError(t, err)
		rules[i] = r
	}
	return rules
}

func newValidator(t *testing.T, rules []*ir.Rule, opts ...Option) *Validator {
	t.Helper()
	opts = append([]Option{
		WithRunIDGenerator(NewFixedGenerator("run-1", "run-2", "run-3")),
		WithLogger(discardLogger()),
	}, opts...)
	v, err := New(rules, opts...)
	require.NoError(t, err)
	return v
}

func numberTable(id string, codes []string, rows ...[]string) *ir.Table {
	b := testutil.NewTable(id, codes...)
	for _, r := range rows {
		b.Numbers(r...)
	}
	return b.Build()
}

func TestValidateEndToEnd(t *testing.T) {
	rules := compileAll(t,
		compiler.RuleSpec{ID: "R1", Expression: `{c0010} >= 0`, Table: "tB_01.01"},
		compiler.RuleSpec{ID: "R2", Expression: `c0010+c0020=c0030`, Table: "tB_01.01"},
	)
	table := numberTable("tB_01.01", []string{"c0010", "c0020", "c0030"},
		[]string{"1", "2", "3"},
		[]string{"4", "5", "10"},
		[]string{"0", "0", "0"},
	)

	report, err := newValidator(t, rules).Validate(context.Background(), []*ir.Table{table})
	require.NoError(t, err)

	assert.Equal(t, "run-1", report.RunID)
	assert.Equal(t, ir.ReportVersion, report.Version)
	assert.Equal(t, ir.MustCatalogHash(rules), report.CatalogHash)
	assert.True(t, report.Complete)
	assert.False(t, report.OverallPass)
	assert.Equal(t, 1, report.TotalErrors)
	assert.Equal(t, 1, report.Failures)
	assert.Equal(t, 0, report.EvalErrors)

	require.Len(t, report.Tables, 1)
	section := report.Tables[0]
	assert.Equal(t, ir.StatusFail, section.Status)
	assert.Equal(t, 3, section.RowsProcessed)
	assert.Equal(t, 2, section.RulesApplied)
	assert.Equal(t, 6, section.Evaluations)

	require.Len(t, section.Failures, 1)
	f := section.Failures[0]
	assert.Equal(t, "R2", f.RuleID)
	require.NotNil(t, f.RowIndex)
	assert.Equal(t, 1, *f.RowIndex)
	assert.Equal(t, "expected 9 got 10", f.Message)
}

func TestValidateAllPass(t *testing.T) {
	rules := compileAll(t, compiler.RuleSpec{ID: "R1", Expression: `{c0010} >= 0`})
	table := numberTable("tB_01.01", []string{"c0010"}, []string{"1"}, []string{"2"})

	report, err := newValidator(t, rules).Validate(context.Background(), []*ir.Table{table})
	require.NoError(t, err)
	assert.True(t, report.OverallPass)
	assert.Equal(t, 0, report.TotalErrors)
	assert.Equal(t, ir.StatusPass, report.Tables[0].Status)
	assert.Empty(t, report.Tables[0].Failures)
}

func TestValidateFailuresInRowOrder(t *testing.T) {
	rules := compileAll(t,
		compiler.RuleSpec{ID: "POSITIVE", Expression: `{c0010} > 0`},
		compiler.RuleSpec{ID: "SMALL", Expression: `{c0010} < 1000`},
	)

	var rows [][]string
	for i := 0; i < 500; i++ {
		rows = append(rows, []string{fmt.Sprint(i * 7)})
	}
	table := numberTable("tB_01.01", []string{"c0010"}, rows...)

	for _, workers := range []int{1, 4, 16} {
		t.Run(fmt.Sprintf("workers=%d", workers), func(t *testing.T) {
			v := newValidator(t, rules, WithWorkers(workers), WithChunkSize(7))
			report, err := v.Validate(context.Background(), []*ir.Table{table})
			require.NoError(t, err)

			failures := report.Tables[0].Failures
			// row 0 fails POSITIVE; rows with i*7 >= 1000 fail SMALL
			require.Len(t, failures, 1+(500-143))
			assert.Equal(t, "POSITIVE", failures[0].RuleID)
			for i := 1; i < len(failures); i++ {
				assert.Less(t, *failures[i-1].RowIndex, *failures[i].RowIndex)
			}
			assert.Equal(t, 500, report.Tables[0].RowsProcessed)
		})
	}
}

func TestValidateIsRepeatable(t *testing.T) {
	rules := compileAll(t,
		compiler.RuleSpec{ID: "R1", Expression: `c0010+c0020=c0030`},
	)
	table := testutil.NewTable("tB_01.01", "c0010", "c0020", "c0030").
		Numbers("1", "2", "3").
		Numbers("1", "2", "4").
		Numbers("", "2", "2").
		Build()

	v := newValidator(t, rules, WithRunIDGenerator(testutil.NewConstantRunID("run-same")))
	first, err := v.Validate(context.Background(), []*ir.Table{table})
	require.NoError(t, err)
	second, err := v.Validate(context.Background(), []*ir.Table{table})
	require.NoError(t, err)

	assert.Equal(t, "run-same", second.RunID)
	assert.Equal(t, first, second)
}

func TestValidateTableRulesRunOnTotals(t *testing.T) {
	rules := compileAll(t,
		compiler.RuleSpec{ID: "ROW", Expression: `{c0100} >= 0`, Table: "t01_01"},
		compiler.RuleSpec{ID: "TOTAL", Expression: `SUM(c0100:c0110)=c0120`, Source: compiler.SourceTable, Table: "t01_01"},
	)

	t.Run("declared totals", func(t *testing.T) {
		table := numberTable("t01_01", []string{"c0100", "c0110", "c0120"},
			[]string{"5", "3", ""},
			[]string{"1", "1", ""},
		)
		table.Totals = &ir.Row{Index: -1, Cells: map[string]ir.Value{
			"c0100": ir.MustNumber("6"), "c0110": ir.MustNumber("4"), "c0120": ir.MustNumber("11"),
		}}

		report, err := newValidator(t, rules).Validate(context.Background(), []*ir.Table{table})
		require.NoError(t, err)

		section := report.Tables[0]
		assert.Equal(t, 3, section.Evaluations, "one sheet rule on two rows plus one table rule")
		require.Len(t, section.Failures, 1)
		assert.Equal(t, "TOTAL", section.Failures[0].RuleID)
		assert.Nil(t, section.Failures[0].RowIndex, "table rules have no row")
		assert.Equal(t, "expected 10 got 11", section.Failures[0].Message)
	})

	t.Run("computed totals", func(t *testing.T) {
		table := numberTable("t01_01", []string{"c0100", "c0110", "c0120"},
			[]string{"5", "3", "8"},
			[]string{"1", "", "1"},
		)

		report, err := newValidator(t, rules).Validate(context.Background(), []*ir.Table{table})
		require.NoError(t, err)
		assert.True(t, report.OverallPass)
	})
}

func TestValidateWarningsForUnbindableRules(t *testing.T) {
	rules := compileAll(t,
		compiler.RuleSpec{ID: "UNKNOWN", Expression: `{c0999} > 0`},
		compiler.RuleSpec{ID: "OTHER_TABLE", Expression: `{c0010} > 0`, Table: "tB_09.09"},
		compiler.RuleSpec{ID: "OK", Expression: `{c0010} > 0`},
	)
	table := numberTable("tB_01.01", []string{"c0010"}, []string{"1"})

	report, err := newValidator(t, rules).Validate(context.Background(), []*ir.Table{table})
	require.NoError(t, err)

	require.Len(t, report.Warnings, 1, "rules scoped elsewhere are not warnings")
	assert.Equal(t, "UNKNOWN", report.Warnings[0].RuleID)
	assert.Equal(t, "UNKNOWN_COLUMN", report.Warnings[0].Code)
	assert.Equal(t, 1, report.Tables[0].RulesApplied)
	assert.True(t, report.OverallPass, "warnings are not failures")
}

func TestValidateEvalErrorsCountedSeparately(t *testing.T) {
	rules := compileAll(t,
		compiler.RuleSpec{ID: "DIV", Expression: `{c0010} / {c0020} > 0`},
		compiler.RuleSpec{ID: "NEG", Expression: `{c0010} < 0`},
	)
	table := numberTable("tB_01.01", []string{"c0010", "c0020"}, []string{"1", "0"})

	report, err := newValidator(t, rules).Validate(context.Background(), []*ir.Table{table})
	require.NoError(t, err)

	assert.Equal(t, 1, report.Failures)
	assert.Equal(t, 1, report.EvalErrors)
	assert.Equal(t, 2, report.TotalErrors)
	assert.False(t, report.OverallPass)

	section := report.Tables[0]
	require.Len(t, section.Errors, 1)
	assert.Equal(t, "DIV", section.Errors[0].RuleID)
	assert.Contains(t, section.Errors[0].Message, "DIVISION_BY_ZERO")
	assert.Equal(t, string(ErrCodeDivisionByZero), section.Errors[0].Code)
	assert.Empty(t, section.Failures[0].Code, "failures carry no error code")
	assert.Equal(t, ir.StatusFail, section.Status)
}

func TestValidateErrorOnlyStatus(t *testing.T) {
	rules := compileAll(t, compiler.RuleSpec{ID: "BAD", Expression: `match({c0010}, "[")`})
	table := &ir.Table{
		ID:      "tB_01.01",
		Columns: []ir.Column{{Code: "c0010"}},
		Rows:    []ir.Row{{Index: 0, Cells: map[string]ir.Value{"c0010": ir.Text("x")}}},
	}

	report, err := newValidator(t, rules).Validate(context.Background(), []*ir.Table{table})
	require.NoError(t, err)
	assert.Equal(t, ir.StatusError, report.Tables[0].Status)
}

func TestValidateCancelled(t *testing.T) {
	rules := compileAll(t, compiler.RuleSpec{ID: "R1", Expression: `{c0010} >= 0`})
	table := numberTable("tB_01.01", []string{"c0010"}, []string{"1"}, []string{"2"})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	report, err := newValidator(t, rules).Validate(ctx, []*ir.Table{table})
	require.ErrorIs(t, err, context.Canceled)
	require.NotNil(t, report)
	assert.False(t, report.Complete)
	assert.False(t, report.OverallPass)
}

func TestValidateCancelledMidRun(t *testing.T) {
	rules := compileAll(t, compiler.RuleSpec{ID: "R1", Expression: `{c0010} >= 3`})
	table := numberTable("tB_01.01", []string{"c0010"},
		[]string{"1"}, []string{"2"}, []string{"3"}, []string{"4"}, []string{"5"})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var finished []Progress
	v := newValidator(t, rules,
		WithWorkers(1),
		WithChunkSize(1),
		WithProgress(func(p Progress) {
			finished = append(finished, p)
			if len(finished) == 2 {
				cancel()
			}
		}),
	)

	report, err := v.Validate(ctx, []*ir.Table{table})
	require.ErrorIs(t, err, context.Canceled)
	require.NotNil(t, report)
	assert.False(t, report.Complete)
	assert.False(t, report.OverallPass)

	require.Len(t, finished, 2)
	for _, p := range finished {
		assert.Equal(t, Progress{TableID: "tB_01.01", Rows: 1}, p)
	}

	section := report.Tables[0]
	assert.Equal(t, 2, section.RowsProcessed)
	assert.Equal(t, 2, section.Evaluations)
	require.Len(t, section.Failures, 2, "finished units keep their findings")
	for i, f := range section.Failures {
		require.NotNil(t, f.RowIndex)
		assert.Equal(t, i, *f.RowIndex)
	}
}

func TestValidateMultipleTables(t *testing.T) {
	rules := compileAll(t,
		compiler.RuleSpec{ID: "A", Expression: `{c0010} > 0`, Table: "tB_01.01"},
		compiler.RuleSpec{ID: "B", Expression: `{c0010} > 10`, Table: "tB_01.02"},
	)
	t1 := numberTable("tB_01.01", []string{"c0010"}, []string{"5"})
	t2 := numberTable("tB_01.02", []string{"c0010"}, []string{"5"})

	report, err := newValidator(t, rules).Validate(context.Background(), []*ir.Table{t1, t2})
	require.NoError(t, err)

	require.Len(t, report.Tables, 2)
	assert.Equal(t, ir.StatusPass, report.Table("tB_01.01").Status)
	assert.Equal(t, ir.StatusFail, report.Table("t01_02").Status)
	assert.Equal(t, 1, report.TotalErrors)
}

func TestNewCopiesRules(t *testing.T) {
	rules := compileAll(t,
		compiler.RuleSpec{ID: "A", Expression: `{c0010} > 0`},
		compiler.RuleSpec{ID: "B", Expression: `{c0010} > 1`},
	)
	v := newValidator(t, rules)
	rules[0], rules[1] = rules[1], rules[0]

	got := v.Rules()
	assert.Equal(t, "A", got[0].ID)
	assert.Equal(t, "B", got[1].ID)
	assert.NotEmpty(t, v.CatalogHash())
}
