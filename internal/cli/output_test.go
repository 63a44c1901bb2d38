package cli

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/dpmcheck/internal/ir"
)

func TestOutputFormatter_JSONSuccess(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{
		Format: "json",
		Writer: buf,
	}

	data := map[string]string{"result": "success"}
	err := formatter.Success(data)
	require.NoError(t, err)

	var resp CLIResponse
	err = json.Unmarshal(buf.Bytes(), &resp)
	require.NoError(t, err)
	assert.Equal(t, "ok", resp.Status)
	assert.NotNil(t, resp.Data)
}

func TestOutputFormatter_JSONError(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{
		Format: "json",
		Writer: buf,
	}

	err := formatter.Error("E001", "catalog not found", nil)
	require.NoError(t, err)

	var resp CLIResponse
	err = json.Unmarshal(buf.Bytes(), &resp)
	require.NoError(t, err)
	assert.Equal(t, "error", resp.Status)
	assert.NotNil(t, resp.Error)
	assert.Equal(t, "E001", resp.Error.Code)
	assert.Equal(t, "catalog not found", resp.Error.Message)
}

func TestOutputFormatter_JSONErrorWithDetails(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{
		Format: "json",
		Writer: buf,
	}

	details := map[string]string{"file": "test.cue", "line": "42"}
	err := formatter.Error("E002", "expression does not parse", details)
	require.NoError(t, err)

	var resp CLIResponse
	err = json.Unmarshal(buf.Bytes(), &resp)
	require.NoError(t, err)
	assert.Equal(t, "error", resp.Status)
	assert.NotNil(t, resp.Error)
	assert.NotNil(t, resp.Error.Details)
}

func TestOutputFormatter_TextSuccess(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{
		Format: "text",
		Writer: buf,
	}

	err := formatter.Success("All rules passed")
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "All rules passed")
}

func TestOutputFormatter_TextError(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{
		Format:  "text",
		Writer:  buf,
		Verbose: false,
	}

	err := formatter.Error("E001", "catalog not found", nil)
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "Error [E001]")
	assert.Contains(t, buf.String(), "catalog not found")
}

func TestOutputFormatter_TextErrorVerbose(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{
		Format:  "text",
		Writer:  buf,
		Verbose: true,
	}

	details := map[string]string{"file": "test.cue"}
	err := formatter.Error("E001", "catalog not found", details)
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "Error [E001]")
	assert.Contains(t, buf.String(), "Details:")
}

func TestOutputFormatter_VerboseLog(t *testing.T) {
	tests := []struct {
		name    string
		verbose bool
		wantLog bool
	}{
		{"verbose_enabled", true, true},
		{"verbose_disabled", false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf := &bytes.Buffer{}
			formatter := &OutputFormatter{
				Format:  "text",
				Writer:  buf,
				Verbose: tt.verbose,
			}

			formatter.VerboseLog("Compiled rule: %s", "v0001_m")

			if tt.wantLog {
				assert.Contains(t, buf.String(), "Compiled rule: v0001_m")
			} else {
				assert.Empty(t, buf.String())
			}
		})
	}
}

func TestGetExitCode(t *testing.T) {
	assert.Equal(t, ExitCommandError, GetExitCode(NewExitError(ExitCommandError, "bad path")))
	assert.Equal(t, ExitFailure, GetExitCode(fmt.Errorf("wrapped: %w", NewExitError(ExitFailure, "rules failed"))))
	assert.Equal(t, ExitFailure, GetExitCode(errors.New("plain")))
}

func intPtr(i int) *int { return &i }

func sampleReport() *ir.Report {
	return &ir.Report{
		RunID:       "run-1",
		CatalogHash: "0123456789abcdef0123",
		Version:     "1.0.0",
		TotalErrors: 4,
		Failures:    3,
		EvalErrors:  1,
		Complete:    true,
		Tables: []ir.TableReport{
			{
				TableID:       "tB_01.01",
				Status:        ir.StatusFail,
				RowsProcessed: 5,
				Failures: []ir.Finding{
					{RuleID: "R1", RowIndex: intPtr(0), Message: "expected 1 got 2"},
					{RuleID: "R1", RowIndex: intPtr(3), Message: "expected 5 got 6"},
					{RuleID: "T1", Message: "expected 10 got 11"},
				},
				Errors: []ir.Finding{
					{RuleID: "R2", RowIndex: intPtr(1), Message: "DIVISION_BY_ZERO: {c0020} is zero"},
				},
			},
			{TableID: "tB_01.02", Status: ir.StatusPass, RowsProcessed: 2},
		},
		Warnings: []ir.Warning{
			{RuleID: "R3", TableID: "tB_01.02", Code: "UNKNOWN_COLUMN", Message: "column c0999 not in table"},
		},
	}
}

func TestWriteReportText(t *testing.T) {
	buf := &bytes.Buffer{}
	writeReportText(buf, sampleReport(), 0)

	want := `Run run-1 (catalog 0123456789ab, version 1.0.0)
✗ 4 error(s): 3 failure(s), 1 evaluation error(s)

tB_01.01  FAIL  rows=5 errors=4
  R1 row 0: expected 1 got 2
  R1 row 3: expected 5 got 6
  T1 totals: expected 10 got 11
  R2 row 1: DIVISION_BY_ZERO: {c0020} is zero

tB_01.02  PASS  rows=2 errors=0

Warnings:
  R3 tB_01.02 UNKNOWN_COLUMN: column c0999 not in table
`
	assert.Equal(t, want, buf.String())
}

func TestWriteReportText_CapsFindings(t *testing.T) {
	buf := &bytes.Buffer{}
	writeReportText(buf, sampleReport(), 2)

	out := buf.String()
	assert.Contains(t, out, "R1 row 3: expected 5 got 6")
	assert.NotContains(t, out, "T1 totals")
	assert.Contains(t, out, "  ... and 2 more\n")
}

func TestWriteReportText_Status(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(r *ir.Report)
		want   string
	}{
		{"pass", func(r *ir.Report) { r.OverallPass, r.TotalErrors = true, 0 }, "✓ All rules passed"},
		{"incomplete", func(r *ir.Report) { r.Complete = false }, "✗ Run incomplete: 4 error(s) before cancellation"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := sampleReport()
			tt.mutate(r)
			buf := &bytes.Buffer{}
			writeReportText(buf, r, 0)
			assert.Contains(t, buf.String(), tt.want)
		})
	}
}
