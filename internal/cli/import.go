package cli

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/roach88/dpmcheck/internal/ir"
	"github.com/roach88/dpmcheck/internal/store"
)

// ImportOptions holds flags for the import command.
type ImportOptions struct {
	*RootOptions
	Database string
	Prune    bool
}

// ImportResult lists the tables written by an import.
type ImportResult struct {
	Source string            `json:"source"`
	Tables []store.TableInfo `json:"tables"`
	// Removed lists stored tables dropped by --prune.
	Removed []string `json:"removed,omitempty"`
}

// NewImportCommand creates the import command.
func NewImportCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ImportOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "import <tables.yaml>",
		Short: "Import report tables into the store",
		Long: `Import report tables from a YAML table dump into the SQLite store.

The database is created if it doesn't exist. A table that is already stored
is replaced and keeps its position. Use "-" to read the dump from stdin.
With --prune, stored tables missing from the dump are removed, so the store
holds exactly the dumped report.

Example:
  dpmcheck import --db ./report.db tables.yaml
  dpmcheck import --db ./report.db --prune resubmission.yaml`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runImport(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (default: store.path)")
	cmd.Flags().BoolVar(&opts.Prune, "prune", false, "remove stored tables that are not in the dump")

	return cmd
}

func runImport(opts *ImportOptions, path string, cmd *cobra.Command) error {
	formatter := opts.formatter(cmd)
	cfg, logger := opts.settings()
	ctx := cmd.Context()

	var (
		r      io.Reader
		source = filepath.Base(path)
	)
	if path == "-" {
		r = cmd.InOrStdin()
		source = "stdin"
	} else {
		f, err := os.Open(path)
		if err != nil {
			_ = formatter.Error(ErrCodeNotFound, fmt.Sprintf("table dump not found: %s", path), nil)
			return WrapExitError(ExitCommandError, "failed to open table dump", err)
		}
		defer f.Close()
		r = f
	}

	tables, err := store.ReadTableDump(r)
	if err != nil {
		_ = formatter.Error(ErrCodeGeneric, err.Error(), nil)
		return WrapExitError(ExitCommandError, "invalid table dump", err)
	}

	dbPath := databasePath(opts.Database, cfg.Store.Path)
	st, err := store.Open(dbPath)
	if err != nil {
		_ = formatter.Error(ErrCodeStore, err.Error(), nil)
		return WrapExitError(ExitCommandError, "failed to open database", err)
	}
	defer st.Close()

	for _, t := range tables {
		if err := st.WriteTable(ctx, t, source); err != nil {
			_ = formatter.Error(ErrCodeStore, err.Error(), nil)
			return WrapExitError(ExitCommandError, "import failed", err)
		}
		logger.Debug("table imported",
			slog.String("table", t.ID),
			slog.Int("rows", len(t.Rows)),
			slog.Int("empty_rows", emptyRows(t)))
	}

	infos, err := st.ListTables(ctx)
	if err != nil {
		_ = formatter.Error(ErrCodeStore, err.Error(), nil)
		return WrapExitError(ExitCommandError, "import failed", err)
	}
	result := ImportResult{Source: source, Tables: imported(infos, tables)}

	if opts.Prune {
		for _, id := range stale(infos, tables) {
			if err := st.DeleteTable(ctx, id); err != nil {
				_ = formatter.Error(ErrCodeStore, err.Error(), nil)
				return WrapExitError(ExitCommandError, "import failed", err)
			}
			logger.Debug("table removed", slog.String("table", id))
			result.Removed = append(result.Removed, id)
		}
	}

	if formatter.Format == "json" {
		return formatter.Success(result)
	}
	empty := make(map[string]int, len(tables))
	for _, t := range tables {
		empty[t.ID] = emptyRows(t)
	}
	fmt.Fprintf(formatter.Writer, "✓ Imported %d table(s) from %s into %s\n", len(tables), source, dbPath)
	for _, info := range result.Tables {
		extra := ""
		if n := empty[info.ID]; n > 0 {
			extra += fmt.Sprintf(", %d empty", n)
		}
		if info.HasTotals {
			extra += ", totals"
		}
		fmt.Fprintf(formatter.Writer, "  %s: %d row(s), %d column(s)%s\n", info.ID, info.Rows, info.Columns, extra)
	}
	for _, id := range result.Removed {
		fmt.Fprintf(formatter.Writer, "  removed %s\n", id)
	}
	return nil
}

// emptyRows counts data rows whose cells are all null.
func emptyRows(t *ir.Table) int {
	n := 0
	for _, row := range t.Rows {
		if row.IsEmpty() {
			n++
		}
	}
	return n
}

// stale lists stored tables that the dump does not contain.
func stale(infos []store.TableInfo, tables []*ir.Table) []string {
	written := make(map[string]bool, len(tables))
	for _, t := range tables {
		written[t.ID] = true
	}
	var out []string
	for _, info := range infos {
		if !written[info.ID] {
			out = append(out, info.ID)
		}
	}
	return out
}

// imported picks the stored summaries of the tables just written.
func imported(infos []store.TableInfo, tables []*ir.Table) []store.TableInfo {
	written := make(map[string]bool, len(tables))
	for _, t := range tables {
		written[t.ID] = true
	}
	out := []store.TableInfo{}
	for _, info := range infos {
		if written[info.ID] {
			out = append(out, info)
		}
	}
	return out
}

// databasePath picks the --db flag over the configured store path.
func databasePath(flag, configured string) string {
	if flag != "" {
		return flag
	}
	return configured
}
