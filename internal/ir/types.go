package ir

import (
	"regexp"
	"strings"

	"github.com/roach88/dpmcheck/internal/expr"
)

// Column is a declared column of a table. Position is the zero-based
// declaration order.
type Column struct {
	Code     string `json:"code" yaml:"code"`
	Position int    `json:"position" yaml:"position"`
}

// Row is one data row. A column with no entry in Cells reads as Null.
// Index is the source row number reported in results.
type Row struct {
	Index int
	Cells map[string]Value
}

// Get returns the cell for code, or Null when absent.
func (r Row) Get(code string) Value {
	if v, ok := r.Cells[code]; ok && v != nil {
		return v
	}
	return Null{}
}

// IsEmpty reports whether every cell of the row is null.
func (r Row) IsEmpty() bool {
	for _, v := range r.Cells {
		if !IsNull(v) {
			return false
		}
	}
	return true
}

// Table is a report table: ordered columns, data rows and an optional
// declared totals row.
type Table struct {
	ID      string
	Columns []Column
	Rows    []Row

	// Totals is the declared aggregate row; nil when the source has none.
	Totals *Row
}

// ColumnCodes returns the column codes in declaration order.
func (t *Table) ColumnCodes() []string {
	codes := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		codes[i] = c.Code
	}
	return codes
}

// RuleKind classifies a rule for reporting.
type RuleKind string

const (
	KindArithmetic  RuleKind = "arithmetic"
	KindComparison  RuleKind = "comparison"
	KindConditional RuleKind = "conditional"
	KindSummation   RuleKind = "summation"
)

// Valid reports whether k is one of the known kinds.
func (k RuleKind) Valid() bool {
	switch k {
	case KindArithmetic, KindComparison, KindConditional, KindSummation:
		return true
	}
	return false
}

// Provenance records where a rule came from. Sheet rules are checked per
// row; table rules once against the totals row.
type Provenance string

const (
	ProvenanceSheet Provenance = "sheet-rule"
	ProvenanceTable Provenance = "table-rule"
)

// RuleContext is the resolved `with {...}:` scope of a rule.
type RuleContext struct {
	TableID string

	// Default is the substitution value for null cells; nil or Null means
	// no substitution.
	Default Value

	Interval bool
}

// Substitution returns the value that replaces null cells in value
// positions, if any.
func (c *RuleContext) Substitution() (Value, bool) {
	if c == nil || IsNull(c.Default) {
		return nil, false
	}
	return c.Default, true
}

// Rule is a compiled catalog rule. Rules are immutable once compiled and
// shared read-only by all workers.
type Rule struct {
	ID          string
	Expression  string
	Kind        RuleKind
	Provenance  Provenance
	Context     *RuleContext
	Table       string
	Sheet       string
	Description string
	Columns     []string
	Functions   []string

	// AST is the parsed expression, cached at load time.
	AST *expr.Expression
}

// Body returns the rule body without the scope prefix.
func (r *Rule) Body() expr.Node {
	if r.AST == nil {
		return nil
	}
	return r.AST.Body
}

// IsTableRule reports whether the rule is evaluated once per table.
func (r *Rule) IsTableRule() bool {
	return r.Provenance == ProvenanceTable
}

// Substitution returns the rule's null substitution value, if any.
func (r *Rule) Substitution() (Value, bool) {
	return r.Context.Substitution()
}

var sheetTablePattern = regexp.MustCompile(`(?i)^tB_\d{2}\.\d{2}$`)

// IsSheetTableID reports whether id names a report sheet such as tB_01.02.
func IsSheetTableID(id string) bool {
	return sheetTablePattern.MatchString(strings.TrimSpace(id))
}

// CanonicalTableID normalises the spellings of a table id so that
// tB_01.02, t01_02, B_01.02 and 01.02 compare equal.
func CanonicalTableID(id string) string {
	s := strings.ToLower(strings.TrimSpace(id))
	switch {
	case strings.HasPrefix(s, "tb_"):
		s = s[3:]
	case strings.HasPrefix(s, "b_"):
		s = s[2:]
	case strings.HasPrefix(s, "t"):
		s = s[1:]
	}
	return strings.ReplaceAll(s, ".", "_")
}

// SameTable reports whether two table ids name the same table.
func SameTable(a, b string) bool {
	return CanonicalTableID(a) == CanonicalTableID(b)
}
