package compiler

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/roach88/dpmcheck/internal/expr"
	"github.com/roach88/dpmcheck/internal/ir"
)

// Catalog validation codes (E100-E199). These are lint findings over
// compiled rules; a rule with findings still runs.
const (
	ErrDuplicateRuleID  = "E101" // rule id appears more than once
	ErrTableRuleNoScope = "E102" // table rule without a table
	ErrInvalidTableID   = "E103" // table id does not normalise to anything
	ErrNoColumnRefs     = "E104" // rule reads no column
	ErrBadPattern       = "E105" // match pattern does not compile
	ErrConstantDefault  = "E106" // default given on a rule that has no value positions
)

// ValidationError is a catalog lint finding.
type ValidationError struct {
	RuleID  string `json:"rule_id"`
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code"`
}

// Error implements the error interface.
func (e ValidationError) Error() string {
	return fmt.Sprintf("[%s] rule %s: %s: %s", e.Code, e.RuleID, e.Field, e.Message)
}

// Validate lints compiled rules. Returns all findings (does not fail fast).
func Validate(rules []*ir.Rule) []ValidationError {
	var errs []ValidationError
	seen := make(map[string]bool, len(rules))

	for _, rule := range rules {
		// E101: duplicate ids make findings ambiguous in reports
		if seen[rule.ID] {
			errs = append(errs, ValidationError{
				RuleID:  rule.ID,
				Field:   "id",
				Message: "duplicate rule id",
				Code:    ErrDuplicateRuleID,
			})
		}
		seen[rule.ID] = true

		errs = append(errs, validateRule(rule)...)
	}
	return errs
}

func validateRule(rule *ir.Rule) []ValidationError {
	var errs []ValidationError

	// E102: a table rule runs against one table's totals row
	if rule.IsTableRule() && strings.TrimSpace(rule.Table) == "" {
		errs = append(errs, ValidationError{
			RuleID:  rule.ID,
			Field:   "table",
			Message: "table rule has no table scope and would run against every table",
			Code:    ErrTableRuleNoScope,
		})
	}

	// E103
	if rule.Table != "" && ir.CanonicalTableID(rule.Table) == "" {
		errs = append(errs, ValidationError{
			RuleID:  rule.ID,
			Field:   "table",
			Message: fmt.Sprintf("invalid table id %q", rule.Table),
			Code:    ErrInvalidTableID,
		})
	}

	// E104
	if len(rule.Columns) == 0 {
		errs = append(errs, ValidationError{
			RuleID:  rule.ID,
			Field:   "expression",
			Message: "expression does not reference any column",
			Code:    ErrNoColumnRefs,
		})
	}

	// E105: the evaluator reports these per row; flag them once here too
	expr.Walk(rule.Body(), func(n expr.Node) bool {
		call, ok := n.(*expr.Call)
		if !ok || call.Func != expr.FuncMatch {
			return true
		}
		if lit, ok := call.Args[1].(*expr.Literal); ok {
			if _, err := regexp.Compile(lit.Text); err != nil {
				errs = append(errs, ValidationError{
					RuleID:  rule.ID,
					Field:   "expression",
					Message: fmt.Sprintf("invalid match pattern %q: %v", lit.Text, err),
					Code:    ErrBadPattern,
				})
			}
		}
		return true
	})

	// E106
	if _, ok := rule.Substitution(); ok && !hasValuePosition(rule.Body()) {
		errs = append(errs, ValidationError{
			RuleID:  rule.ID,
			Field:   "expression",
			Message: "default has no effect: the rule only tests nullity",
			Code:    ErrConstantDefault,
		})
	}

	return errs
}

// hasValuePosition reports whether any reference is read as a value rather
// than only tested for nullity.
func hasValuePosition(body expr.Node) bool {
	found := false
	var visit func(n expr.Node)
	visit = func(n expr.Node) {
		if found || n == nil {
			return
		}
		switch n := n.(type) {
		case *expr.ColumnRef, *expr.RangeRef, *expr.TupleRef:
			found = true
		case *expr.Call:
			if n.Func == expr.FuncIsNull {
				return
			}
			for _, a := range n.Args {
				visit(a)
			}
		case *expr.Compare:
			if expr.IsNullLiteral(n.Left) || expr.IsNullLiteral(n.Right) {
				return
			}
			visit(n.Left)
			visit(n.Right)
		case *expr.Not:
			visit(n.Operand)
		case *expr.Logic:
			visit(n.Left)
			visit(n.Right)
		case *expr.Arith:
			visit(n.Left)
			visit(n.Right)
		case *expr.In:
			visit(n.Operand)
		case *expr.Conditional:
			visit(n.Cond)
			visit(n.Then)
		}
	}
	visit(body)
	return found
}
