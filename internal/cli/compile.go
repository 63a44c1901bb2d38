package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/dpmcheck/internal/compiler"
	"github.com/roach88/dpmcheck/internal/ir"
)

// CompileOptions holds flags for the compile command.
type CompileOptions struct {
	*RootOptions
	Output string // output file path
}

// RuleSummary is the listing form of a compiled rule.
type RuleSummary struct {
	ID         string   `json:"id"`
	Kind       string   `json:"kind"`
	Provenance string   `json:"provenance"`
	Table      string   `json:"table,omitempty"`
	Columns    []string `json:"columns"`
	Expression string   `json:"expression"`
}

// CompilationResult holds the compiled catalog.
type CompilationResult struct {
	Source      string                     `json:"source"`
	CatalogHash string                     `json:"catalog_hash"`
	Rules       []RuleSummary              `json:"rules"`
	Findings    []compiler.ValidationError `json:"findings"`
}

// CompilationStats holds summary statistics.
type CompilationStats struct {
	RuleCount  int
	TableRules int
	ByKind     map[ir.RuleKind]int
}

// NewCompileCommand creates the compile command.
func NewCompileCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &CompileOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "compile [catalog-dir]",
		Short: "Compile and lint the rule catalog",
		Long: `Compile a CUE rule catalog and list its rules.

Every entry is checked against the #Rule schema and its expression parsed.
Rules are classified by kind and provenance, and lint findings are listed.
Without a directory the configured catalog (catalog.dir) is used, and
without one of those the embedded catalog.`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true, // Don't print usage on errors - we handle our own error output
		SilenceErrors: true, // Don't print errors - we handle our own error output
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := ""
			if len(args) == 1 {
				dir = args[0]
			}
			return runCompile(opts, dir, cmd)
		},
	}

	cmd.Flags().StringVarP(&opts.Output, "output", "o", "", "write the rule listing as JSON to this file")

	return cmd
}

func runCompile(opts *CompileOptions, dir string, cmd *cobra.Command) error {
	formatter := opts.formatter(cmd)
	cfg, _ := opts.settings()
	if dir == "" {
		dir = cfg.Catalog.Dir
	}

	// Use shared loader with collect-all mode
	loadResult, loadErrors := LoadCatalog(dir, LoadModeCollectAll)

	// Handle load errors (directory not found, no files, etc.)
	if loadResult == nil {
		var loadErr *LoadError
		if errors.As(loadErrors[0], &loadErr) {
			return outputCompileError(formatter, loadErr.Code, loadErr.Message, nil)
		}
		return outputCompileError(formatter, ErrCodeGeneric, loadErrors[0].Error(), nil)
	}

	formatter.VerboseLog("Found %d CUE file(s) in %s", loadResult.FileCount, loadResult.Source)
	for _, rule := range loadResult.Rules {
		formatter.VerboseLog("Compiled rule: %s (%s)", rule.ID, rule.Kind)
	}

	// Handle compilation errors
	if len(loadErrors) > 0 {
		return outputCompileErrors(formatter, loadErrors)
	}

	hash, err := ir.CatalogHash(loadResult.Rules)
	if err != nil {
		return outputCompileError(formatter, ErrCodeGeneric, fmt.Sprintf("hashing catalog: %v", err), nil)
	}

	result := &CompilationResult{
		Source:      loadResult.Source,
		CatalogHash: hash,
		Rules:       summarizeRules(loadResult.Rules),
		Findings:    compiler.Validate(loadResult.Rules),
	}
	if result.Findings == nil {
		result.Findings = []compiler.ValidationError{}
	}

	// Write to file if --output specified
	if opts.Output != "" {
		if err := writeRulesToFile(result, opts.Output); err != nil {
			return outputCompileError(formatter, ErrCodeWriteFailed, fmt.Sprintf("writing output file: %v", err), nil)
		}
	}

	// Output success
	return outputCompileSuccess(formatter, result, calculateStats(loadResult.Rules), opts.Output)
}

func summarizeRules(rules []*ir.Rule) []RuleSummary {
	out := make([]RuleSummary, len(rules))
	for i, r := range rules {
		cols := r.Columns
		if cols == nil {
			cols = []string{}
		}
		out[i] = RuleSummary{
			ID:         r.ID,
			Kind:       string(r.Kind),
			Provenance: string(r.Provenance),
			Table:      r.Table,
			Columns:    cols,
			Expression: r.Expression,
		}
	}
	return out
}

// calculateStats computes summary statistics from the compiled rules.
func calculateStats(rules []*ir.Rule) CompilationStats {
	stats := CompilationStats{
		RuleCount: len(rules),
		ByKind:    make(map[ir.RuleKind]int),
	}
	for _, r := range rules {
		stats.ByKind[r.Kind]++
		if r.IsTableRule() {
			stats.TableRules++
		}
	}
	return stats
}

// outputCompileSuccess outputs successful compilation results.
func outputCompileSuccess(formatter *OutputFormatter, result *CompilationResult, stats CompilationStats, outputFile string) error {
	if formatter.Format == "json" {
		return formatter.Success(result)
	}

	// Human-readable text output
	w := formatter.Writer
	fmt.Fprintf(w, "✓ Compiled %d rule(s) from %s (%d table rule(s))\n",
		stats.RuleCount, result.Source, stats.TableRules)

	var kinds []string
	for _, k := range []ir.RuleKind{ir.KindArithmetic, ir.KindComparison, ir.KindConditional, ir.KindSummation} {
		if n := stats.ByKind[k]; n > 0 {
			kinds = append(kinds, fmt.Sprintf("%s %d", k, n))
		}
	}
	if len(kinds) > 0 {
		fmt.Fprintf(w, "  %s\n", strings.Join(kinds, ", "))
	}
	fmt.Fprintln(w)

	for _, r := range result.Rules {
		table := r.Table
		if table == "" {
			table = "*"
		}
		fmt.Fprintf(w, "  %-12s %-11s %-10s %-9s %s\n",
			r.ID, r.Kind, r.Provenance, table, strings.Join(r.Columns, ","))
	}

	if len(result.Findings) > 0 {
		fmt.Fprintf(w, "\nLint findings (%d):\n", len(result.Findings))
		for _, f := range result.Findings {
			fmt.Fprintf(w, "  %s %s: %s\n", f.Code, f.RuleID, f.Message)
		}
	}

	if outputFile != "" {
		fmt.Fprintf(w, "\nWrote rule listing to %s\n", outputFile)
	}

	return nil
}

// outputCompileError outputs a single compilation error.
func outputCompileError(formatter *OutputFormatter, code, message string, details interface{}) error {
	_ = formatter.Error(code, message, details)
	// Compilation errors are command-level errors (exit code 2)
	return WrapExitError(ExitCommandError, fmt.Sprintf("%s: %s", code, message), nil)
}

// outputCompileErrors outputs multiple compilation errors.
func outputCompileErrors(formatter *OutputFormatter, errs []error) error {
	if formatter.Format == "json" {
		cliErrors := make([]CLIError, len(errs))
		for i, err := range errs {
			code, message := parseCompileError(err)
			cliErrors[i] = CLIError{
				Code:    code,
				Message: message,
			}
		}

		response := CLIResponse{
			Status: "error",
			Error:  &cliErrors[0],
			Data:   cliErrors, // Include all errors in data
		}

		encoder := json.NewEncoder(formatter.Writer)
		encoder.SetIndent("", "  ")
		if err := encoder.Encode(response); err != nil {
			return err
		}

		return NewExitError(ExitCommandError, fmt.Sprintf("compilation failed with %d error(s)", len(errs)))
	}

	// Text format
	fmt.Fprintf(formatter.Writer, "✗ Compilation failed: %d rule(s) rejected\n", len(errs))
	fmt.Fprintln(formatter.Writer)

	for _, err := range errs {
		code, message := parseCompileError(err)
		var loadErr *LoadError
		if errors.As(err, &loadErr) && loadErr.Pos.IsValid() {
			fmt.Fprintf(formatter.Writer, "%s:%d:%d\n",
				loadErr.Pos.Filename(),
				loadErr.Pos.Line(),
				loadErr.Pos.Column())
		}
		fmt.Fprintf(formatter.Writer, "  %s: %s\n\n", code, message)
	}

	return NewExitError(ExitCommandError, fmt.Sprintf("compilation failed with %d error(s)", len(errs)))
}

// parseCompileError extracts error code and message from an error.
func parseCompileError(err error) (string, string) {
	var loadErr *LoadError
	if errors.As(err, &loadErr) {
		msg := loadErr.Message
		if loadErr.RuleID != "" {
			msg = "rule " + loadErr.RuleID + ": " + msg
		}
		return loadErr.Code, msg
	}
	return ErrCodeGeneric, err.Error()
}

// writeRulesToFile writes the compilation result to a file as indented JSON.
func writeRulesToFile(result *CompilationResult, filename string) error {
	data, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling rules: %w", err)
	}

	if err := os.WriteFile(filename, data, 0644); err != nil {
		return fmt.Errorf("writing file: %w", err)
	}

	return nil
}
