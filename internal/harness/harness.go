package harness

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/roach88/dpmcheck/internal/compiler"
	"github.com/roach88/dpmcheck/internal/engine"
	"github.com/roach88/dpmcheck/internal/ir"
	"github.com/roach88/dpmcheck/internal/logging"
	"github.com/roach88/dpmcheck/internal/resolve"
	"github.com/roach88/dpmcheck/internal/store"
)

// Harness runs scenarios. The zero value is not usable; call New.
type Harness struct {
	logger *slog.Logger
}

// Option configures a Harness.
type Option func(*Harness)

// WithLogger sets the logger handed to the validator. Logs are discarded
// by default.
func WithLogger(l *slog.Logger) Option {
	return func(h *Harness) {
		if l != nil {
			h.logger = l
		}
	}
}

// New creates a Harness.
func New(opts ...Option) *Harness {
	h := &Harness{logger: logging.Discard()}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Run executes a scenario with a default Harness.
func Run(ctx context.Context, scenario *Scenario) (*Result, error) {
	return New().Run(ctx, scenario)
}

// RunID is the fixed run id of a scenario's report.
func RunID(scenario *Scenario) string {
	return "scenario-" + scenario.Name
}

// Run executes a test scenario and returns the result.
//
// Each scenario runs in a fresh in-memory database for isolation.
//
// Execution flow:
// 1. Compile the catalog file and inline rules (rejections are recorded)
// 2. Import the tables into the store and load them back
// 3. Validate with a fixed run id, persist the run and read it back
// 4. Check expectations and assertions against the stored report
//
// An error is returned only when the scenario cannot run at all.
func (h *Harness) Run(ctx context.Context, scenario *Scenario) (*Result, error) {
	result := NewResult()

	rules, rejected, err := compileRules(scenario)
	if err != nil {
		return nil, err
	}
	for _, e := range rejected {
		result.Rejected = append(result.Rejected, e.Error())
	}

	st, err := store.Open(":memory:")
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory store: %w", err)
	}
	defer st.Close()

	tables, err := scenario.Dump()
	if err != nil {
		return nil, fmt.Errorf("scenario %s: %w", scenario.Name, err)
	}
	for _, t := range tables {
		if err := st.WriteTable(ctx, t, scenario.Name); err != nil {
			return nil, err
		}
	}
	tables, err = st.LoadTables(ctx, store.TableFilter{})
	if err != nil {
		return nil, err
	}

	matcher, ok := resolve.MatcherByName(scenario.Options.CodeMatch)
	if !ok {
		return nil, fmt.Errorf("scenario %s: unknown code_match %q", scenario.Name, scenario.Options.CodeMatch)
	}
	opts := []engine.Option{
		engine.WithRunIDGenerator(engine.NewFixedGenerator(RunID(scenario))),
		engine.WithCodeMatcher(matcher),
		engine.WithLogger(h.logger),
	}
	if scenario.Options.Workers > 0 {
		opts = append(opts, engine.WithWorkers(scenario.Options.Workers))
	}
	if scenario.Options.ChunkSize > 0 {
		opts = append(opts, engine.WithChunkSize(scenario.Options.ChunkSize))
	}

	v, err := engine.New(rules, opts...)
	if err != nil {
		return nil, err
	}
	report, err := v.Validate(ctx, tables)
	if err != nil {
		return nil, fmt.Errorf("scenario %s: %w", scenario.Name, err)
	}

	if err := st.WriteRun(ctx, report); err != nil {
		return nil, err
	}
	if result.Report, err = st.ReadRun(ctx, report.RunID); err != nil {
		return nil, err
	}

	for _, msg := range checkExpect(result, scenario.Expect) {
		result.AddError(msg)
	}
	for _, msg := range EvaluateAssertions(result.Report, scenario.Assertions) {
		result.AddError(msg)
	}
	return result, nil
}

// compileRules compiles the scenario catalog then the inline rules, in
// that order.
func compileRules(scenario *Scenario) ([]*ir.Rule, []error, error) {
	var (
		rules    []*ir.Rule
		rejected []error
	)
	if scenario.Catalog != "" {
		data, err := os.ReadFile(scenario.Catalog)
		if err != nil {
			return nil, nil, fmt.Errorf("scenario %s: %w", scenario.Name, err)
		}
		rules, rejected = compiler.CompileCatalogBytes(filepath.Base(scenario.Catalog), data)
	}
	for _, spec := range scenario.Rules {
		r, err := compiler.CompileRule(spec)
		if err != nil {
			rejected = append(rejected, err)
			continue
		}
		rules = append(rules, r)
	}
	return rules, rejected, nil
}

func checkExpect(result *Result, e Expect) []string {
	r := result.Report
	var errs []string
	if e.OverallPass != nil && r.OverallPass != *e.OverallPass {
		errs = append(errs, fmt.Sprintf("overall_pass: expected %t, got %t", *e.OverallPass, r.OverallPass))
	}
	checkInt := func(name string, want *int, got int) {
		if want != nil && got != *want {
			errs = append(errs, fmt.Sprintf("%s: expected %d, got %d", name, *want, got))
		}
	}
	checkInt("total_errors", e.TotalErrors, r.TotalErrors)
	checkInt("failures", e.Failures, r.Failures)
	checkInt("eval_errors", e.EvalErrors, r.EvalErrors)
	checkInt("warnings", e.Warnings, len(r.Warnings))
	checkInt("rejected", e.Rejected, len(result.Rejected))
	return errs
}
