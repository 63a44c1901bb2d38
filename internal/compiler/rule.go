package compiler

import (
	"errors"
	"fmt"
	"strings"

	"cuelang.org/go/cue"
	cueerrors "cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/token"

	"github.com/roach88/dpmcheck/internal/expr"
	"github.com/roach88/dpmcheck/internal/ir"
)

// Catalog source values.
const (
	SourceSheet = "validation_sheet"
	SourceTable = "table_rule"
)

// RuleSpec is the uncompiled form of a catalog entry. The CUE catalog and
// YAML scenarios both decode into it.
type RuleSpec struct {
	ID          string   `yaml:"id" json:"id"`
	Expression  string   `yaml:"expression" json:"expression"`
	Kind        string   `yaml:"kind,omitempty" json:"kind,omitempty"`
	Source      string   `yaml:"source,omitempty" json:"source,omitempty"`
	Table       string   `yaml:"table,omitempty" json:"table,omitempty"`
	Sheet       string   `yaml:"sheet,omitempty" json:"sheet,omitempty"`
	Description string   `yaml:"description,omitempty" json:"description,omitempty"`
	Columns     []string `yaml:"columns,omitempty" json:"columns,omitempty"`
	Functions   []string `yaml:"functions,omitempty" json:"functions,omitempty"`

	// Pos is the CUE position of the entry, when loaded from CUE.
	Pos token.Pos `yaml:"-" json:"-"`
}

// CompileError reports a catalog entry that could not be compiled.
type CompileError struct {
	RuleID  string
	Field   string
	Message string
	Pos     token.Pos

	// Err is the underlying error, e.g. *expr.ParseError.
	Err error
}

func (e *CompileError) Error() string {
	prefix := ""
	if e.RuleID != "" {
		prefix = "rule " + e.RuleID + ": "
	}
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s%s: %s",
			e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(),
			prefix, e.Field, e.Message)
	}
	return fmt.Sprintf("%s%s: %s", prefix, e.Field, e.Message)
}

func (e *CompileError) Unwrap() error {
	return e.Err
}

// IsCompileError returns true if err is or wraps a *CompileError.
func IsCompileError(err error) bool {
	var ce *CompileError
	return errors.As(err, &ce)
}

// CompileRule parses the expression of spec and builds the immutable rule.
// A syntax error yields a *CompileError wrapping the *expr.ParseError.
func CompileRule(spec RuleSpec) (*ir.Rule, error) {
	if strings.TrimSpace(spec.ID) == "" {
		return nil, &CompileError{Field: "id", Message: "rule id is required", Pos: spec.Pos}
	}

	parsed, err := expr.Parse(spec.Expression)
	if err != nil {
		return nil, &CompileError{
			RuleID:  spec.ID,
			Field:   "expression",
			Message: err.Error(),
			Pos:     spec.Pos,
			Err:     err,
		}
	}

	rule := &ir.Rule{
		ID:          spec.ID,
		Expression:  spec.Expression,
		Sheet:       spec.Sheet,
		Description: spec.Description,
		Columns:     expr.Columns(parsed.Body),
		Functions:   expr.Functions(parsed.Body),
		AST:         parsed,
	}

	switch spec.Source {
	case "", SourceSheet:
		rule.Provenance = ir.ProvenanceSheet
	case SourceTable:
		rule.Provenance = ir.ProvenanceTable
	default:
		return nil, &CompileError{
			RuleID:  spec.ID,
			Field:   "source",
			Message: fmt.Sprintf("unknown source %q", spec.Source),
			Pos:     spec.Pos,
		}
	}

	if spec.Kind != "" {
		kind := ir.RuleKind(spec.Kind)
		if !kind.Valid() {
			return nil, &CompileError{
				RuleID:  spec.ID,
				Field:   "kind",
				Message: fmt.Sprintf("unknown kind %q", spec.Kind),
				Pos:     spec.Pos,
			}
		}
		rule.Kind = kind
	} else {
		rule.Kind = InferKind(parsed.Body)
	}

	if parsed.Context != nil {
		ctx, err := compileContext(parsed.Context)
		if err != nil {
			return nil, &CompileError{
				RuleID:  spec.ID,
				Field:   "expression",
				Message: err.Error(),
				Pos:     spec.Pos,
				Err:     err,
			}
		}
		rule.Context = ctx
	}

	rule.Table = scopeTable(rule, spec, parsed)
	return rule, nil
}

// scopeTable picks the table a rule applies to: the with-context table, the
// catalog's table, the first annotated reference, then the catalog's sheet
// when it names a report sheet. Rule-book worksheet names such as
// "DPM Business Validation Rules" are provenance only.
func scopeTable(rule *ir.Rule, spec RuleSpec, parsed *expr.Expression) string {
	if rule.Context != nil && rule.Context.TableID != "" {
		return rule.Context.TableID
	}
	if spec.Table != "" {
		return spec.Table
	}
	if tables := expr.Tables(parsed.Body); len(tables) > 0 {
		return tables[0]
	}
	if ir.IsSheetTableID(spec.Sheet) {
		return spec.Sheet
	}
	return ""
}

func compileContext(c *expr.Context) (*ir.RuleContext, error) {
	ctx := &ir.RuleContext{TableID: c.Table, Interval: c.Interval}
	if c.Default != nil {
		v, err := LiteralValue(c.Default)
		if err != nil {
			return nil, fmt.Errorf("default: %w", err)
		}
		ctx.Default = v
	}
	return ctx, nil
}

// LiteralValue converts a parsed literal to a value.
func LiteralValue(lit *expr.Literal) (ir.Value, error) {
	switch lit.Kind {
	case expr.LitNull:
		return ir.Null{}, nil
	case expr.LitNumber:
		return ir.ParseNumber(lit.Text)
	case expr.LitString, expr.LitBool:
		return ir.Text(lit.Text), nil
	}
	return nil, fmt.Errorf("unsupported literal %s", lit.String())
}

// InferKind classifies a rule body: conditionals first, then sums, then
// arithmetic, and comparison for everything else.
func InferKind(body expr.Node) ir.RuleKind {
	if _, ok := body.(*expr.Conditional); ok {
		return ir.KindConditional
	}
	var hasSum, hasArith bool
	expr.Walk(body, func(n expr.Node) bool {
		switch n := n.(type) {
		case *expr.Call:
			if n.Func == expr.FuncSum {
				hasSum = true
			}
		case *expr.Arith:
			hasArith = true
		}
		return true
	})
	switch {
	case hasSum:
		return ir.KindSummation
	case hasArith:
		return ir.KindArithmetic
	}
	return ir.KindComparison
}

// decodeRuleSpec reads a schema-checked CUE rule entry.
func decodeRuleSpec(id string, v cue.Value) (RuleSpec, error) {
	spec := RuleSpec{ID: id, Pos: v.Pos()}

	fields := []struct {
		name string
		dst  *string
	}{
		{"expression", &spec.Expression},
		{"kind", &spec.Kind},
		{"source", &spec.Source},
		{"table", &spec.Table},
		{"sheet", &spec.Sheet},
		{"description", &spec.Description},
	}
	for _, f := range fields {
		fv := v.LookupPath(cue.ParsePath(f.name))
		if !fv.Exists() {
			continue
		}
		s, err := fv.String()
		if err != nil {
			return spec, formatCUEError(err)
		}
		*f.dst = s
	}

	lists := []struct {
		name string
		dst  *[]string
	}{
		{"columns", &spec.Columns},
		{"functions", &spec.Functions},
	}
	for _, l := range lists {
		lv := v.LookupPath(cue.ParsePath(l.name))
		if !lv.Exists() {
			continue
		}
		if err := lv.Decode(l.dst); err != nil {
			return spec, formatCUEError(err)
		}
	}
	return spec, nil
}

// formatCUEError extracts position info from CUE errors.
func formatCUEError(err error) error {
	if err == nil {
		return nil
	}

	errs := cueerrors.Errors(err)
	if len(errs) == 0 {
		return err
	}

	first := errs[0]
	if positions := cueerrors.Positions(first); len(positions) > 0 {
		return &CompileError{
			Field:   "cue",
			Message: first.Error(),
			Pos:     positions[0],
			Err:     err,
		}
	}
	return err
}
