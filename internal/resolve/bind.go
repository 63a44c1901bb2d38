package resolve

import (
	"fmt"
	"regexp"

	"github.com/roach88/dpmcheck/internal/expr"
	"github.com/roach88/dpmcheck/internal/ir"
)

// Binding is a rule resolved against one table schema.
type Binding struct {
	Rule   *ir.Rule
	Schema *Schema

	matcher     CodeMatcher
	refs        map[expr.Node][]string
	patterns    map[*expr.Call]*regexp.Regexp
	patternErrs map[*expr.Call]error
	substitute  ir.Value
	skipNull    bool
}

// Option configures Bind.
type Option func(*Binding)

// WithMatcher sets the code-list matcher. The default is ExactMatcher.
func WithMatcher(m CodeMatcher) Option {
	return func(b *Binding) {
		if m != nil {
			b.matcher = m
		}
	}
}

// WithSkipNullMatch makes match on a null cell unknown instead of false,
// so blank identifier cells pass.
func WithSkipNullMatch(skip bool) Option {
	return func(b *Binding) {
		b.skipNull = skip
	}
}

// Applies reports whether rule is scoped to tableID. Rules without a table
// scope apply to every table.
func Applies(rule *ir.Rule, tableID string) bool {
	return rule.Table == "" || ir.SameTable(rule.Table, tableID)
}

// Bind resolves every reference of rule against schema.
//
// Returns *ContextError when the rule is scoped to another table, refers to
// another table, names a column the schema lacks, or has a range that
// matches no declared column.
func Bind(rule *ir.Rule, schema *Schema, opts ...Option) (*Binding, error) {
	b := &Binding{
		Rule:        rule,
		Schema:      schema,
		matcher:     ExactMatcher{},
		refs:        make(map[expr.Node][]string),
		patterns:    make(map[*expr.Call]*regexp.Regexp),
		patternErrs: make(map[*expr.Call]error),
	}
	for _, opt := range opts {
		opt(b)
	}

	if !Applies(rule, schema.TableID) {
		return nil, b.contextError(ErrCodeTableMismatch, "",
			fmt.Sprintf("rule is scoped to table %s", rule.Table))
	}
	if v, ok := rule.Substitution(); ok {
		b.substitute = v
	}

	var bindErr error
	expr.Walk(rule.Body(), func(n expr.Node) bool {
		if bindErr != nil {
			return false
		}
		switch r := n.(type) {
		case *expr.ColumnRef:
			bindErr = b.bindCodes(n, r.Table, []string{r.Code})
		case *expr.TupleRef:
			bindErr = b.bindCodes(n, r.Table, r.Codes)
		case *expr.RangeRef:
			bindErr = b.bindRange(r)
		case *expr.Call:
			if r.Func == expr.FuncMatch {
				b.compilePattern(r)
			}
		}
		return true
	})
	if bindErr != nil {
		return nil, bindErr
	}
	return b, nil
}

func (b *Binding) checkTable(n expr.Node, table string) error {
	if table == "" || ir.SameTable(table, b.Schema.TableID) {
		return nil
	}
	return b.contextError(ErrCodeCrossTable, n.String(),
		fmt.Sprintf("reference into table %s", table))
}

func (b *Binding) bindCodes(n expr.Node, table string, codes []string) error {
	if err := b.checkTable(n, table); err != nil {
		return err
	}
	resolved := make([]string, 0, len(codes))
	for _, code := range codes {
		declared, ok := b.Schema.Lookup(code)
		if !ok {
			return b.contextError(ErrCodeUnknownColumn, n.String(),
				fmt.Sprintf("column %s is not declared", code))
		}
		resolved = append(resolved, declared)
	}
	b.refs[n] = resolved
	return nil
}

func (b *Binding) bindRange(r *expr.RangeRef) error {
	if err := b.checkTable(r, r.Table); err != nil {
		return err
	}
	codes := b.Schema.ExpandRange(r.From, r.To)
	if len(codes) == 0 {
		return b.contextError(ErrCodeEmptyRange, r.String(),
			fmt.Sprintf("range %s-%s matches no declared column", r.From, r.To))
	}
	b.refs[r] = codes
	return nil
}

// compilePattern compiles a match pattern fully anchored. A bad pattern is
// not a binding failure: it surfaces as an evaluation error on every row.
func (b *Binding) compilePattern(c *expr.Call) {
	lit, ok := c.Args[1].(*expr.Literal)
	if !ok {
		b.patternErrs[c] = fmt.Errorf("pattern is not a string literal")
		return
	}
	re, err := regexp.Compile(`^(?:` + lit.Text + `)$`)
	if err != nil {
		b.patternErrs[c] = err
		return
	}
	b.patterns[c] = re
}

func (b *Binding) contextError(code ContextErrorCode, ref, msg string) *ContextError {
	return &ContextError{
		Code:    code,
		Message: msg,
		RuleID:  b.Rule.ID,
		TableID: b.Schema.TableID,
		Ref:     ref,
	}
}

// Columns returns the declared column codes a reference node resolved to.
func (b *Binding) Columns(n expr.Node) ([]string, bool) {
	codes, ok := b.refs[n]
	return codes, ok
}

// Pattern returns the compiled, anchored regex of a match call.
func (b *Binding) Pattern(c *expr.Call) (*regexp.Regexp, error) {
	if err, ok := b.patternErrs[c]; ok {
		return nil, err
	}
	re, ok := b.patterns[c]
	if !ok {
		return nil, fmt.Errorf("pattern of %s was not compiled", c.String())
	}
	return re, nil
}

// SkipsNullMatch reports whether match treats a null cell as unknown.
func (b *Binding) SkipsNullMatch() bool {
	return b.skipNull
}

// Matcher returns the code-list matcher.
func (b *Binding) Matcher() CodeMatcher {
	return b.matcher
}

// Value reads a cell in a value position: null cells are replaced by the
// rule's default when it has one.
func (b *Binding) Value(row ir.Row, code string) ir.Value {
	v := row.Get(code)
	if ir.IsNull(v) && b.substitute != nil {
		return b.substitute
	}
	return v
}

// Defaulted reports whether Value substitutes the rule default for the cell.
func (b *Binding) Defaulted(row ir.Row, code string) bool {
	return b.substitute != nil && ir.IsNull(row.Get(code))
}

// Raw reads a cell as stored. Nullity tests use raw cells.
func (b *Binding) Raw(row ir.Row, code string) ir.Value {
	return row.Get(code)
}
