package cli

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/roach88/dpmcheck/internal/ir"
	"github.com/roach88/dpmcheck/internal/store"
)

// ReportOptions holds flags for the report command.
type ReportOptions struct {
	*RootOptions
	Database string
	List     bool
	Limit    int
	Rule     string
}

// FindingsResult is the output of `report --rule`.
type FindingsResult struct {
	RunID    string             `json:"run_id"`
	RuleID   string             `json:"rule_id"`
	Findings []store.RunFinding `json:"findings"`
}

// NewReportCommand creates the report command.
func NewReportCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ReportOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "report [run-id]",
		Short: "Show stored validation runs",
		Long: `Show a validation run from the store.

Without a run id the most recent run is shown. --list lists runs newest
first, and --rule lists the findings of one rule within the run.

Example:
  dpmcheck report --db ./report.db
  dpmcheck report --db ./report.db --list
  dpmcheck report --db ./report.db 0190c2a4-... --rule v0001_m`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			runID := ""
			if len(args) == 1 {
				runID = args[0]
			}
			return runReport(opts, runID, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (default: store.path)")
	cmd.Flags().BoolVar(&opts.List, "list", false, "list stored runs")
	cmd.Flags().IntVar(&opts.Limit, "limit", 10, "maximum runs to list (0 = all)")
	cmd.Flags().StringVar(&opts.Rule, "rule", "", "list the findings of this rule only")

	return cmd
}

func runReport(opts *ReportOptions, runID string, cmd *cobra.Command) error {
	formatter := opts.formatter(cmd)
	cfg, _ := opts.settings()
	ctx := cmd.Context()

	dbPath := databasePath(opts.Database, cfg.Store.Path)
	if _, err := os.Stat(dbPath); err != nil {
		_ = formatter.Error(ErrCodeNotFound, fmt.Sprintf("database not found: %s", dbPath), nil)
		return NewExitError(ExitCommandError, fmt.Sprintf("database not found: %s", dbPath))
	}
	st, err := store.Open(dbPath)
	if err != nil {
		_ = formatter.Error(ErrCodeStore, err.Error(), nil)
		return WrapExitError(ExitCommandError, "failed to open database", err)
	}
	defer st.Close()

	if opts.List {
		runs, err := st.ListRuns(ctx, opts.Limit)
		if err != nil {
			_ = formatter.Error(ErrCodeStore, err.Error(), nil)
			return WrapExitError(ExitCommandError, "failed to list runs", err)
		}
		return outputRunList(formatter, runs)
	}

	var report *ir.Report
	if runID == "" {
		report, err = st.LatestRun(ctx)
	} else {
		report, err = st.ReadRun(ctx, runID)
	}
	if errors.Is(err, store.ErrRunNotFound) {
		_ = formatter.Error(ErrCodeRunNotFound, err.Error(), nil)
		return WrapExitError(ExitCommandError, "run not found", err)
	}
	if err != nil {
		_ = formatter.Error(ErrCodeStore, err.Error(), nil)
		return WrapExitError(ExitCommandError, "failed to read run", err)
	}

	if opts.Rule != "" {
		findings, err := st.ReadFindings(ctx, report.RunID, opts.Rule)
		if err != nil {
			_ = formatter.Error(ErrCodeStore, err.Error(), nil)
			return WrapExitError(ExitCommandError, "failed to read findings", err)
		}
		return outputFindings(formatter, FindingsResult{RunID: report.RunID, RuleID: opts.Rule, Findings: findings})
	}

	if formatter.Format == "json" {
		return formatter.Success(report)
	}
	writeReportText(formatter.Writer, report, cfg.Report.MaxFindings)
	return nil
}

// outputRunList prints run summaries, newest first.
func outputRunList(formatter *OutputFormatter, runs []store.RunSummary) error {
	if formatter.Format == "json" {
		return formatter.Success(runs)
	}

	w := formatter.Writer
	if len(runs) == 0 {
		fmt.Fprintln(w, "No runs found in database.")
		return nil
	}
	for _, r := range runs {
		status := "PASS"
		switch {
		case !r.Complete:
			status = "INCOMPLETE"
		case !r.OverallPass:
			status = "FAIL"
		}
		fmt.Fprintf(w, "%4d  %s  %-10s errors=%d tables=%d\n", r.Seq, r.ID, status, r.TotalErrors, r.Tables)
	}
	return nil
}

// outputFindings prints the findings of one rule.
func outputFindings(formatter *OutputFormatter, result FindingsResult) error {
	if formatter.Format == "json" {
		return formatter.Success(result)
	}

	w := formatter.Writer
	if len(result.Findings) == 0 {
		fmt.Fprintf(w, "No findings for %s in run %s.\n", result.RuleID, result.RunID)
		return nil
	}
	fmt.Fprintf(w, "%d finding(s) for %s in run %s\n", len(result.Findings), result.RuleID, result.RunID)
	for _, f := range result.Findings {
		fmt.Fprintf(w, "  %s %s %s: %s\n", f.TableID, f.Outcome, findingRow(f.RowIndex), f.Message)
	}
	return nil
}
