package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"

	"golang.org/x/sync/errgroup"

	"github.com/roach88/dpmcheck/internal/ir"
	"github.com/roach88/dpmcheck/internal/resolve"
)

// DefaultChunkSize is the number of rows in one work unit.
const DefaultChunkSize = 256

// Validator runs a rule catalog over report tables.
//
// The rule slice order never changes after construction: rules execute in
// catalog order and rows in source order, so results are reproducible no
// matter how work units are scheduled.
//
// Thread-safety: a Validator holds no per-run state. Validate may be called
// from several goroutines at once.
type Validator struct {
	rules       []*ir.Rule
	catalogHash string

	workers   int
	chunkSize int
	matcher   resolve.CodeMatcher
	skipNull  bool
	runIDs    RunIDGenerator
	logger    *slog.Logger
	progress  func(Progress)
}

// Progress describes a finished work unit.
type Progress struct {
	TableID string
	// Rows is the number of data rows the unit evaluated; 0 for totals.
	Rows   int
	Totals bool
}

// Option configures a Validator.
type Option func(*Validator)

// WithWorkers sets the worker pool size. Values below 1 mean GOMAXPROCS.
func WithWorkers(n int) Option {
	return func(v *Validator) {
		v.workers = n
	}
}

// WithChunkSize sets the number of rows per work unit.
//
// Default: 256 rows (DefaultChunkSize)
func WithChunkSize(n int) Option {
	return func(v *Validator) {
		if n > 0 {
			v.chunkSize = n
		}
	}
}

// WithCodeMatcher sets how code-list values compare.
func WithCodeMatcher(m resolve.CodeMatcher) Option {
	return func(v *Validator) {
		if m != nil {
			v.matcher = m
		}
	}
}

// WithSkipNullMatch makes match on a null cell a vacuous pass instead of
// a failure.
func WithSkipNullMatch(skip bool) Option {
	return func(v *Validator) {
		v.skipNull = skip
	}
}

// WithRunIDGenerator sets the run id source. Tests use FixedGenerator.
func WithRunIDGenerator(g RunIDGenerator) Option {
	return func(v *Validator) {
		if g != nil {
			v.runIDs = g
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(v *Validator) {
		if l != nil {
			v.logger = l
		}
	}
}

// WithProgress sets a callback run after each work unit finishes. It may
// be called from several workers at once.
func WithProgress(fn func(Progress)) Option {
	return func(v *Validator) {
		v.progress = fn
	}
}

// New creates a Validator for rules. The slice is copied so later changes
// by the caller cannot reorder the catalog.
func New(rules []*ir.Rule, opts ...Option) (*Validator, error) {
	hash, err := ir.CatalogHash(rules)
	if err != nil {
		return nil, fmt.Errorf("hashing catalog: %w", err)
	}

	v := &Validator{
		rules:       append([]*ir.Rule(nil), rules...),
		catalogHash: hash,
		workers:     runtime.GOMAXPROCS(0),
		chunkSize:   DefaultChunkSize,
		matcher:     resolve.ExactMatcher{},
		runIDs:      UUIDv7Generator{},
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(v)
	}
	if v.workers < 1 {
		v.workers = runtime.GOMAXPROCS(0)
	}
	return v, nil
}

// Rules returns the catalog in execution order.
func (v *Validator) Rules() []*ir.Rule {
	return append([]*ir.Rule(nil), v.rules...)
}

// CatalogHash returns the content hash of the catalog.
func (v *Validator) CatalogHash() string {
	return v.catalogHash
}

// tablePlan is a table after MapColumns: its rules bound to its schema.
type tablePlan struct {
	table      *ir.Table
	sheetRules []*resolve.Binding
	tableRules []*resolve.Binding

	// idleRows counts rows of a table without sheet rules; they are read
	// but need no unit.
	idleRows int
}

// unit is one independently schedulable slice of work. Each unit owns its
// result slot, so workers never share mutable state.
type unit struct {
	plan     int
	from, to int  // row range for sheet rules
	totals   bool // table rules against the totals row
	results  []ir.ValidationResult
	rowsDone int
	done     bool
}

// Validate runs every applicable rule against every table.
//
// Per table: MapColumns binds each rule (a rule that cannot bind is a
// warning, not a failure), then sheet rules run on each data row and table
// rules once on the totals row, then results aggregate into the report.
//
// Recoverable problems never stop the run. If ctx is cancelled, unscheduled
// units are dropped and Validate returns the partial report with
// Complete=false together with ctx's error.
func (v *Validator) Validate(ctx context.Context, tables []*ir.Table) (*ir.Report, error) {
	report := &ir.Report{
		RunID:       v.runIDs.Generate(),
		CatalogHash: v.catalogHash,
		Version:     ir.ReportVersion,
		Tables:      []ir.TableReport{},
		Warnings:    []ir.Warning{},
	}
	logger := v.logger.With("run_id", report.RunID)

	plans := make([]*tablePlan, len(tables))
	for i, t := range tables {
		plan, warnings := v.mapColumns(t)
		plans[i] = plan
		report.Warnings = append(report.Warnings, warnings...)
		for _, w := range warnings {
			logger.Debug("rule not applicable", "rule", w.RuleID, "table", w.TableID, "code", w.Code)
		}
	}

	units := v.partition(plans)
	logger.Info("validation started", "tables", len(tables), "rules", len(v.rules), "units", len(units))

	err := v.run(ctx, plans, units)

	v.aggregate(report, plans, units)
	if err == nil && !report.Complete {
		err = ctx.Err()
	}
	if err != nil {
		logger.Warn("validation interrupted", "error", err)
		return report, err
	}

	logger.Info("validation finished",
		"overall_pass", report.OverallPass,
		"failures", report.Failures,
		"eval_errors", report.EvalErrors,
		"warnings", len(report.Warnings))
	return report, nil
}

// mapColumns binds every rule scoped to t. Rules scoped to other tables are
// skipped silently; rules that apply but cannot bind become warnings.
func (v *Validator) mapColumns(t *ir.Table) (*tablePlan, []ir.Warning) {
	schema := resolve.NewSchema(t)
	plan := &tablePlan{table: t}

	var warnings []ir.Warning
	for _, rule := range v.rules {
		b, err := resolve.Bind(rule, schema, resolve.WithMatcher(v.matcher), resolve.WithSkipNullMatch(v.skipNull))
		if resolve.IsTableMismatch(err) {
			continue
		}
		if err != nil {
			var ce *resolve.ContextError
			code := "CONTEXT_ERROR"
			if errors.As(err, &ce) {
				code = string(ce.Code)
			}
			warnings = append(warnings, ir.Warning{
				RuleID:  rule.ID,
				TableID: t.ID,
				Code:    code,
				Message: err.Error(),
			})
			continue
		}
		if rule.IsTableRule() {
			plan.tableRules = append(plan.tableRules, b)
		} else {
			plan.sheetRules = append(plan.sheetRules, b)
		}
	}
	return plan, warnings
}

// partition splits each table into row chunks plus one totals unit.
// Unit order is table order, then row order, then the totals unit.
func (v *Validator) partition(plans []*tablePlan) []*unit {
	var units []*unit
	for i, p := range plans {
		if len(p.sheetRules) > 0 {
			for from := 0; from < len(p.table.Rows); from += v.chunkSize {
				to := min(from+v.chunkSize, len(p.table.Rows))
				units = append(units, &unit{plan: i, from: from, to: to})
			}
		} else {
			p.idleRows = len(p.table.Rows)
		}
		if len(p.tableRules) > 0 {
			units = append(units, &unit{plan: i, totals: true})
		}
	}
	return units
}

func (v *Validator) run(ctx context.Context, plans []*tablePlan, units []*unit) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(v.workers)

	for _, u := range units {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			return v.runUnit(gctx, plans[u.plan], u)
		})
	}
	return g.Wait()
}

// runUnit evaluates one unit into its own slot.
func (v *Validator) runUnit(ctx context.Context, plan *tablePlan, u *unit) error {
	if u.totals {
		row := totalsRow(plan.table)
		for _, b := range plan.tableRules {
			u.results = append(u.results, v.evaluate(b, row, nil))
		}
		u.done = true
		v.report(plan, u)
		return nil
	}

	for i := u.from; i < u.to; i++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		row := plan.table.Rows[i]
		index := row.Index
		for _, b := range plan.sheetRules {
			u.results = append(u.results, v.evaluate(b, row, &index))
		}
		u.rowsDone++
	}
	u.done = true
	v.report(plan, u)
	return nil
}

func (v *Validator) report(plan *tablePlan, u *unit) {
	if v.progress != nil {
		v.progress(Progress{TableID: plan.table.ID, Rows: u.rowsDone, Totals: u.totals})
	}
}

func (v *Validator) evaluate(b *resolve.Binding, row ir.Row, index *int) ir.ValidationResult {
	res := Evaluate(b, row)
	out := ir.ValidationResult{
		RuleID:   b.Rule.ID,
		TableID:  b.Schema.TableID,
		RowIndex: index,
		Outcome:  res.Outcome,
		Message:  res.Message,
	}
	if res.Err != nil {
		res.Err.RowIndex = index
		out.Code = string(res.Err.Code)
		v.logger.Debug("evaluation error", "error", res.Err.Error(), "node", res.Err.Node)
	}
	return out
}

// aggregate merges unit results into the report. Units are visited in
// creation order, which lists findings in source row order.
func (v *Validator) aggregate(report *ir.Report, plans []*tablePlan, units []*unit) {
	sections := make([]ir.TableReport, len(plans))
	for i, p := range plans {
		sections[i] = ir.TableReport{
			TableID:       p.table.ID,
			RowsProcessed: p.idleRows,
			RulesApplied:  len(p.sheetRules) + len(p.tableRules),
			Failures:      []ir.Finding{},
			Errors:        []ir.Finding{},
		}
	}

	report.Complete = true
	for _, u := range units {
		if !u.done {
			report.Complete = false
		}
		section := &sections[u.plan]
		section.RowsProcessed += u.rowsDone
		for _, r := range u.results {
			section.Evaluations++
			finding := ir.Finding{RuleID: r.RuleID, RowIndex: r.RowIndex, Message: r.Message, Code: r.Code}
			switch r.Outcome {
			case ir.OutcomeFail:
				section.Failures = append(section.Failures, finding)
			case ir.OutcomeEvalError:
				section.Errors = append(section.Errors, finding)
			}
		}
	}

	for i := range sections {
		s := &sections[i]
		switch {
		case len(s.Failures) > 0:
			s.Status = ir.StatusFail
		case len(s.Errors) > 0:
			s.Status = ir.StatusError
		default:
			s.Status = ir.StatusPass
		}
		report.Failures += len(s.Failures)
		report.EvalErrors += len(s.Errors)
	}

	report.Tables = sections
	report.TotalErrors = report.Failures + report.EvalErrors
	report.OverallPass = report.Complete && report.TotalErrors == 0
}
