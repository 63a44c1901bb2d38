package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/roach88/dpmcheck/internal/engine"
	"github.com/roach88/dpmcheck/internal/ir"
	"github.com/roach88/dpmcheck/internal/resolve"
	"github.com/roach88/dpmcheck/internal/store"
)

// ValidateOptions holds flags for the validate command.
type ValidateOptions struct {
	*RootOptions
	Database  string
	Catalog   string
	Tables    []string
	AllTables bool
	Workers   int
	ChunkSize int
	CodeMatch string
	MatchNull string

	// RunIDs allows overriding the run id generator (for testing).
	// If nil, defaults to UUIDv7Generator.
	RunIDs engine.RunIDGenerator
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	return newValidateCommand(&ValidateOptions{RootOptions: rootOpts})
}

func newValidateCommand(opts *ValidateOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate stored report tables against the rule catalog",
		Long: `Validate the report tables in the store against every applicable rule.

Only report sheets (tB_xx.xx) are validated unless --all-tables is given or
tables are named with --table. The report is written to the store as a new
run; inspect it later with "dpmcheck report".

Exit codes:
  0 - All rules passed
  1 - Rule failures or evaluation errors
  2 - Command error (database not found, catalog unreadable, etc.)

Example:
  dpmcheck validate --db ./report.db
  dpmcheck validate --db ./report.db --catalog ./rules --table tB_01.01
  dpmcheck validate --db ./report.db --workers 8 --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (default: store.path)")
	cmd.Flags().StringVar(&opts.Catalog, "catalog", "", "CUE catalog directory (default: catalog.dir, else the embedded catalog)")
	cmd.Flags().StringSliceVar(&opts.Tables, "table", nil, "validate only these tables (repeatable)")
	cmd.Flags().BoolVar(&opts.AllTables, "all-tables", false, "validate every stored table, not only report sheets")
	cmd.Flags().IntVar(&opts.Workers, "workers", 0, "worker pool size (default: engine.workers)")
	cmd.Flags().IntVar(&opts.ChunkSize, "chunk-size", 0, "rows per work unit (default: engine.chunk_size)")
	cmd.Flags().StringVar(&opts.CodeMatch, "code-match", "", "code comparison: exact or fold (default: engine.code_match)")
	cmd.Flags().StringVar(&opts.MatchNull, "match-null", "", "match on a null cell: fail or skip (default: engine.match_null)")

	return cmd
}

func runValidate(opts *ValidateOptions, cmd *cobra.Command) error {
	formatter := opts.formatter(cmd)
	cfg, logger := opts.settings()

	// Flags override the layered config
	engineCfg := cfg.Engine
	if opts.Workers > 0 {
		engineCfg.Workers = opts.Workers
	}
	if opts.ChunkSize > 0 {
		engineCfg.ChunkSize = opts.ChunkSize
	}
	if opts.CodeMatch != "" {
		engineCfg.CodeMatch = opts.CodeMatch
	}
	if opts.MatchNull != "" {
		engineCfg.MatchNull = opts.MatchNull
	}
	allTables := opts.AllTables || engineCfg.AllTables
	catalogDir := opts.Catalog
	if catalogDir == "" {
		catalogDir = cfg.Catalog.Dir
	}

	matcher, ok := resolve.MatcherByName(engineCfg.CodeMatch)
	if !ok {
		return outputValidateError(formatter, ErrCodeGeneric, fmt.Sprintf("unknown code match %q: must be exact or fold", engineCfg.CodeMatch))
	}

	var skipNull bool
	switch engineCfg.MatchNull {
	case "", "fail":
	case "skip":
		skipNull = true
	default:
		return outputValidateError(formatter, ErrCodeGeneric, fmt.Sprintf("unknown match null policy %q: must be fail or skip", engineCfg.MatchNull))
	}

	// Open database; validation never creates one
	dbPath := databasePath(opts.Database, cfg.Store.Path)
	if _, err := os.Stat(dbPath); err != nil {
		return outputValidateError(formatter, ErrCodeNotFound, fmt.Sprintf("database not found: %s", dbPath))
	}
	st, err := store.Open(dbPath)
	if err != nil {
		return outputValidateError(formatter, ErrCodeStore, err.Error())
	}
	defer func() {
		if closeErr := st.Close(); closeErr != nil {
			logger.Error("error closing database", slog.String("error", closeErr.Error()))
		}
	}()

	// Load catalog; rejected rules are logged and skipped
	loadResult, loadErrors := LoadCatalog(catalogDir, LoadModeCollectAll)
	if loadResult == nil {
		code, message := parseCompileError(loadErrors[0])
		return outputValidateError(formatter, code, message)
	}
	logRejected(logger, loadErrors)
	logger.Info("catalog loaded",
		slog.String("source", loadResult.Source),
		slog.Int("rules", len(loadResult.Rules)),
		slog.Int("rejected", len(loadErrors)))

	ctx, stop := signalContext(cmd.Context(), logger)
	defer stop()

	tables, err := st.LoadTables(ctx, store.TableFilter{IDs: opts.Tables})
	if err != nil {
		return outputValidateError(formatter, ErrCodeStore, err.Error())
	}
	if len(opts.Tables) == 0 && !allTables {
		tables = sheetTables(tables, logger)
	}
	formatter.VerboseLog("Validating %d table(s) against %d rule(s)", len(tables), len(loadResult.Rules))

	runIDs := opts.RunIDs
	if runIDs == nil {
		runIDs = engine.UUIDv7Generator{}
	}
	validator, err := engine.New(loadResult.Rules,
		engine.WithWorkers(engineCfg.Workers),
		engine.WithChunkSize(engineCfg.ChunkSize),
		engine.WithCodeMatcher(matcher),
		engine.WithSkipNullMatch(skipNull),
		engine.WithRunIDGenerator(runIDs),
		engine.WithLogger(logger),
		engine.WithProgress(func(p engine.Progress) {
			logger.Debug("unit finished", "table", p.TableID, "rows", p.Rows, "totals", p.Totals)
		}),
	)
	if err != nil {
		return outputValidateError(formatter, ErrCodeGeneric, err.Error())
	}

	report, err := validator.Validate(ctx, tables)
	if err != nil && report == nil {
		return outputValidateError(formatter, ErrCodeGeneric, err.Error())
	}

	// A cancelled run is still persisted, marked incomplete
	if writeErr := st.WriteRun(context.WithoutCancel(ctx), report); writeErr != nil {
		return outputValidateError(formatter, ErrCodeStore, writeErr.Error())
	}

	if formatter.Format == "json" {
		if outErr := outputReportJSON(formatter, report); outErr != nil {
			return outErr
		}
	} else {
		writeReportText(formatter.Writer, report, cfg.Report.MaxFindings)
	}

	switch {
	case isInterrupted(err):
		return WrapExitError(ExitCommandError, "validation interrupted", err)
	case err != nil:
		return WrapExitError(ExitCommandError, "validation error", err)
	case !report.OverallPass:
		// Rule failures = exit code 1
		return NewExitError(ExitFailure, fmt.Sprintf("validation failed with %d error(s)", report.TotalErrors))
	}
	return nil
}

// sheetTables keeps report sheets (tB_xx.xx); other stored tables are
// skipped.
func sheetTables(tables []*ir.Table, logger *slog.Logger) []*ir.Table {
	out := make([]*ir.Table, 0, len(tables))
	for _, t := range tables {
		if !ir.IsSheetTableID(t.ID) {
			logger.Debug("skipping non-sheet table", slog.String("table", t.ID))
			continue
		}
		out = append(out, t)
	}
	return out
}

// signalContext cancels on SIGINT or SIGTERM.
func signalContext(parent context.Context, logger *slog.Logger) (context.Context, func()) {
	if parent == nil {
		parent = context.Background()
	}
	ctx, cancel := context.WithCancel(parent)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		select {
		case sig := <-sigChan:
			logger.Warn("received signal, stopping validation", slog.String("signal", sig.String()))
			cancel()
		case <-ctx.Done():
		}
	}()

	return ctx, func() {
		signal.Stop(sigChan) // Prevent signal handler leak
		cancel()
	}
}

// outputReportJSON writes the report as the data of a CLIResponse. A
// report with errors has status "error".
func outputReportJSON(formatter *OutputFormatter, report *ir.Report) error {
	response := CLIResponse{Status: "ok", Data: report, RunID: report.RunID}
	if !report.OverallPass {
		response.Status = "error"
		response.Error = &CLIError{
			Code:    ErrCodeValidationFailed,
			Message: fmt.Sprintf("%d error(s): %d failure(s), %d evaluation error(s)", report.TotalErrors, report.Failures, report.EvalErrors),
		}
	}
	return encodeJSON(formatter.Writer, response)
}

// outputValidateError outputs a command error.
func outputValidateError(formatter *OutputFormatter, code, message string) error {
	_ = formatter.Error(code, message, nil)
	// Command-level errors (exit code 2)
	return NewExitError(ExitCommandError, fmt.Sprintf("%s: %s", code, message))
}

// isInterrupted reports whether err comes from cancellation.
func isInterrupted(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
