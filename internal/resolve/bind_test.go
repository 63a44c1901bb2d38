package resolve

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/dpmcheck/internal/compiler"
	"github.com/roach88/dpmcheck/internal/expr"
	"github.com/roach88/dpmcheck/internal/ir"
)

func compileRule(t *testing.T, id, expression, table string) *ir.Rule {
	t.Helper()
	rule, err := compiler.CompileRule(compiler.RuleSpec{ID: id, Expression: expression, Table: table})
	require.NoError(t, err)
	return rule
}

func refNodes(rule *ir.Rule) []expr.Node {
	var nodes []expr.Node
	expr.Walk(rule.Body(), func(n expr.Node) bool {
		if expr.IsReference(n) {
			nodes = append(nodes, n)
		}
		return true
	})
	return nodes
}

func TestBindResolvesReferences(t *testing.T) {
	schema := NewSchema(testTable("tB_01.02", "c0020", "c0030", "c0050", "C0080"))
	rule := compileRule(t, "R1",
		`with {tB_01.02, default: null, interval: false}: not ( isnull ({c0020-0090}) ) and {c0080} > 0`, "")

	b, err := Bind(rule, schema)
	require.NoError(t, err)

	refs := refNodes(rule)
	require.Len(t, refs, 2)

	cols, ok := b.Columns(refs[0])
	require.True(t, ok)
	assert.Equal(t, []string{"c0020", "c0030", "c0050", "C0080"}, cols, "range membership ignores case")

	cols, ok = b.Columns(refs[1])
	require.True(t, ok)
	assert.Equal(t, []string{"C0080"}, cols, "bound to the declared spelling")
}

func TestBindTuple(t *testing.T) {
	schema := NewSchema(testTable("t01_01", "c0010", "c0020", "c0030"))
	rule := compileRule(t, "R1", `isnull({(c0010, c0030)})`, "")

	b, err := Bind(rule, schema)
	require.NoError(t, err)

	refs := refNodes(rule)
	require.Len(t, refs, 1)
	cols, _ := b.Columns(refs[0])
	assert.Equal(t, []string{"c0010", "c0030"}, cols)
}

func TestBindErrors(t *testing.T) {
	schema := NewSchema(testTable("tB_01.02", "c0020", "c0030", "c0050"))

	tests := []struct {
		name       string
		expression string
		table      string
		code       ContextErrorCode
	}{
		{"unknown column", `{c0099} > 0`, "", ErrCodeUnknownColumn},
		{"unknown tuple member", `isnull({(c0020, c0099)})`, "", ErrCodeUnknownColumn},
		{"empty range", `isnull({c0060-0090})`, "", ErrCodeEmptyRange},
		{"reversed range", `isnull({c0090-0020})`, "", ErrCodeEmptyRange},
		{"other table", `{c0020} > 0`, "tB_03.01", ErrCodeTableMismatch},
		{"cross table ref", `{tB_03.01, c0020} > 0`, "tB_01.02", ErrCodeCrossTable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rule := compileRule(t, "R1", tt.expression, tt.table)
			_, err := Bind(rule, schema)
			require.Error(t, err)

			var ce *ContextError
			require.ErrorAs(t, err, &ce)
			assert.Equal(t, tt.code, ce.Code)
			assert.Equal(t, "R1", ce.RuleID)
			assert.Equal(t, "tB_01.02", ce.TableID)
		})
	}
}

func TestApplies(t *testing.T) {
	scoped := compileRule(t, "R1", `{c0010} > 0`, "tB_01.02")
	global := compileRule(t, "R2", `{c0010} > 0`, "")

	assert.True(t, Applies(scoped, "tB_01.02"))
	assert.True(t, Applies(scoped, "t01_02"), "table id spellings are equivalent")
	assert.False(t, Applies(scoped, "tB_01.03"))
	assert.True(t, Applies(global, "anything"))

	_, err := Bind(scoped, NewSchema(testTable("tB_01.03", "c0010")))
	assert.True(t, IsTableMismatch(err))
}

func TestBindDefaultSubstitution(t *testing.T) {
	schema := NewSchema(testTable("tB_01.01", "c0010"))
	row := ir.Row{Index: 0, Cells: map[string]ir.Value{}}

	withDefault := compileRule(t, "R1", `with {tB_01.01, default: 0}: {c0010} >= 0`, "")
	b, err := Bind(withDefault, schema)
	require.NoError(t, err)
	assert.Equal(t, "0", b.Value(row, "c0010").String())
	assert.True(t, ir.IsNull(b.Raw(row, "c0010")), "raw reads ignore the default")

	nullDefault := compileRule(t, "R2", `with {tB_01.01, default: null}: {c0010} >= 0`, "")
	b, err = Bind(nullDefault, schema)
	require.NoError(t, err)
	assert.True(t, ir.IsNull(b.Value(row, "c0010")))

	row.Cells["c0010"] = ir.MustNumber("5")
	assert.Equal(t, "5", b.Value(row, "c0010").String())
}

func TestBindPatterns(t *testing.T) {
	schema := NewSchema(testTable("tB_01.01", "c0010"))

	good := compileRule(t, "R1", `match({c0010}, "[A-Z]{2}")`, "")
	b, err := Bind(good, schema)
	require.NoError(t, err)
	call := good.Body().(*expr.Call)
	re, err := b.Pattern(call)
	require.NoError(t, err)
	assert.True(t, re.MatchString("FR"))
	assert.False(t, re.MatchString("FRA"), "patterns are anchored")

	bad := compileRule(t, "R2", `match({c0010}, "[A-Z")`, "")
	b, err = Bind(bad, schema)
	require.NoError(t, err, "a bad pattern does not fail binding")
	_, err = b.Pattern(bad.Body().(*expr.Call))
	assert.Error(t, err)
}

func TestBindMatcherOption(t *testing.T) {
	schema := NewSchema(testTable("tB_01.01", "c0010"))
	rule := compileRule(t, "R1", `{c0010} = [eba_CO:x3]`, "")

	b, err := Bind(rule, schema)
	require.NoError(t, err)
	assert.IsType(t, ExactMatcher{}, b.Matcher())

	b, err = Bind(rule, schema, WithMatcher(FoldMatcher{}))
	require.NoError(t, err)
	assert.IsType(t, FoldMatcher{}, b.Matcher())
}
