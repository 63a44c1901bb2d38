package compiler

import (
	_ "embed"
	"fmt"
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"

	"github.com/roach88/dpmcheck/internal/ir"
)

//go:embed schema.cue
var schemaSource string

// ruleSchema returns the #Rule definition compiled in ctx.
func ruleSchema(ctx *cue.Context) (cue.Value, error) {
	v := ctx.CompileString(schemaSource, cue.Filename("schema.cue"))
	if err := v.Err(); err != nil {
		return cue.Value{}, fmt.Errorf("compiling rule schema: %w", err)
	}
	return v.LookupPath(cue.ParsePath("#Rule")), nil
}

// CompileCatalog compiles every entry under `rule` in v, in catalog order.
//
// Each entry is checked against the #Rule schema and its expression parsed.
// A bad entry is reported in errs and skipped; the rest still compile, so a
// single typo never takes the whole catalog down.
func CompileCatalog(v cue.Value) (rules []*ir.Rule, errs []error) {
	if err := v.Err(); err != nil {
		return nil, []error{formatCUEError(err)}
	}

	rulesVal := v.LookupPath(cue.ParsePath("rule"))
	if !rulesVal.Exists() {
		return nil, nil
	}

	schema, err := ruleSchema(v.Context())
	if err != nil {
		return nil, []error{err}
	}

	iter, err := rulesVal.Fields()
	if err != nil {
		return nil, []error{formatCUEError(err)}
	}

	for iter.Next() {
		id := strings.Trim(iter.Selector().String(), `"`)
		entry := iter.Value()

		checked := schema.Unify(entry)
		if err := checked.Validate(cue.Concrete(true)); err != nil {
			errs = append(errs, withRuleID(id, formatCUEError(err)))
			continue
		}

		spec, err := decodeRuleSpec(id, checked)
		if err != nil {
			errs = append(errs, withRuleID(id, err))
			continue
		}
		spec.Pos = entry.Pos()

		rule, err := CompileRule(spec)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		rules = append(rules, rule)
	}
	return rules, errs
}

// CompileCatalogBytes compiles a single CUE catalog file held in memory.
func CompileCatalogBytes(filename string, data []byte) ([]*ir.Rule, []error) {
	ctx := cuecontext.New()
	v := ctx.CompileBytes(data, cue.Filename(filename))
	return CompileCatalog(v)
}

func withRuleID(id string, err error) error {
	if ce, ok := err.(*CompileError); ok {
		if ce.RuleID == "" {
			ce.RuleID = id
		}
		return ce
	}
	return &CompileError{RuleID: id, Field: "cue", Message: err.Error(), Err: err}
}
