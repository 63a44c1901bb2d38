package compiler

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/dpmcheck/internal/expr"
	"github.com/roach88/dpmcheck/internal/ir"
)

func TestCompileRuleSheetRule(t *testing.T) {
	rule, err := CompileRule(RuleSpec{
		ID:         "ECB_RULE_007",
		Expression: `with {tB_02.02, default: 0, interval: false}: {c0080} > {c0070}`,
		Source:     SourceSheet,
		Sheet:      "tB_02.02",
	})
	require.NoError(t, err)

	assert.Equal(t, "ECB_RULE_007", rule.ID)
	assert.Equal(t, ir.ProvenanceSheet, rule.Provenance)
	assert.Equal(t, ir.KindComparison, rule.Kind)
	assert.Equal(t, "tB_02.02", rule.Table)
	assert.Equal(t, []string{"c0080", "c0070"}, rule.Columns)
	assert.Empty(t, rule.Functions)

	require.NotNil(t, rule.Context)
	v, ok := rule.Substitution()
	require.True(t, ok)
	assert.Equal(t, "0", v.String())
	assert.False(t, rule.Context.Interval)
}

func TestCompileRuleNullDefault(t *testing.T) {
	rule, err := CompileRule(RuleSpec{
		ID:         "R1",
		Expression: `with {tB_01.02, default:null, interval:false}: not ( isnull ({c0020-0090}) )`,
	})
	require.NoError(t, err)

	_, ok := rule.Substitution()
	assert.False(t, ok)
	assert.Equal(t, []string{expr.FuncIsNull}, rule.Functions)
}

func TestCompileRuleTableRule(t *testing.T) {
	rule, err := CompileRule(RuleSpec{
		ID:         "TABLE_t01_01_1",
		Expression: `SUM(c0100:c0110)=c0120`,
		Source:     SourceTable,
		Table:      "t01_01",
	})
	require.NoError(t, err)

	assert.True(t, rule.IsTableRule())
	assert.Equal(t, ir.KindSummation, rule.Kind)
	assert.Equal(t, "t01_01", rule.Table)
	assert.Nil(t, rule.Context)
}

func TestCompileRuleScopeFromAnnotatedRef(t *testing.T) {
	rule, err := CompileRule(RuleSpec{
		ID:         "R2",
		Expression: `match({tB_01.01, c0020}[get ERI], "^[A-Z0-9]{18}[0-9]{2}$")`,
		Sheet:      "tB_99.99",
	})
	require.NoError(t, err)
	assert.Equal(t, "tB_01.01", rule.Table)
}

func TestCompileRuleScopeFromSheet(t *testing.T) {
	rule, err := CompileRule(RuleSpec{ID: "R3", Expression: `{c0110} >= 0`, Sheet: "tB_03.01"})
	require.NoError(t, err)
	assert.Equal(t, "tB_03.01", rule.Table)
}

func TestCompileRuleCatalogKindWins(t *testing.T) {
	rule, err := CompileRule(RuleSpec{ID: "R4", Expression: `not(isnull({c0020}))`, Kind: "arithmetic"})
	require.NoError(t, err)
	assert.Equal(t, ir.KindArithmetic, rule.Kind)
}

func TestInferKind(t *testing.T) {
	tests := []struct {
		src  string
		want ir.RuleKind
	}{
		{`if {c0020} = [eba_CO:x3] then {c0030} != empty`, ir.KindConditional},
		{`SUM({c0100-0110}) = {c0120}`, ir.KindSummation},
		{`c0010+c0020=c0030`, ir.KindArithmetic},
		{`{c0080} <= {c0090}`, ir.KindComparison},
		{`not(isnull({c0020}))`, ir.KindComparison},
	}
	for _, tt := range tests {
		parsed, err := expr.Parse(tt.src)
		require.NoError(t, err)
		assert.Equal(t, tt.want, InferKind(parsed.Body), tt.src)
	}
}

func TestCompileRuleErrors(t *testing.T) {
	tests := []struct {
		name  string
		spec  RuleSpec
		field string
	}{
		{"missing id", RuleSpec{Expression: `{c0010} > 0`}, "id"},
		{"syntax error", RuleSpec{ID: "R", Expression: `{c0010} > `}, "expression"},
		{"unknown source", RuleSpec{ID: "R", Expression: `{c0010} > 0`, Source: "excel"}, "source"},
		{"unknown kind", RuleSpec{ID: "R", Expression: `{c0010} > 0`, Kind: "lookup"}, "kind"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := CompileRule(tt.spec)
			require.Error(t, err)
			assert.True(t, IsCompileError(err))

			var ce *CompileError
			require.ErrorAs(t, err, &ce)
			assert.Equal(t, tt.field, ce.Field)
		})
	}
}

func TestCompileRuleWrapsParseError(t *testing.T) {
	_, err := CompileRule(RuleSpec{ID: "R", Expression: `if {c0010} = 1 {c0020}`})
	require.Error(t, err)

	var pe *expr.ParseError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, []string{"then"}, pe.Expected)
	assert.Contains(t, err.Error(), "rule R: expression:")
}

func TestLiteralValue(t *testing.T) {
	v, err := LiteralValue(&expr.Literal{Kind: expr.LitNumber, Text: "-1.50"})
	require.NoError(t, err)
	assert.Equal(t, "-1.5", v.String())

	v, err = LiteralValue(&expr.Literal{Kind: expr.LitNull})
	require.NoError(t, err)
	assert.True(t, ir.IsNull(v))

	v, err = LiteralValue(&expr.Literal{Kind: expr.LitString, Text: "x"})
	require.NoError(t, err)
	assert.Equal(t, ir.Text("x"), v)
}

func TestCompileRuleWorksheetNameIsNotAScope(t *testing.T) {
	rule, err := CompileRule(RuleSpec{
		ID:         "ECB_RULE_090",
		Expression: `if {c0020} = [eba_CO:x3] then {c0030} != empty`,
		Sheet:      "DPM Business Validation Rules",
	})
	require.NoError(t, err)
	assert.Empty(t, rule.Table)
	assert.Equal(t, "DPM Business Validation Rules", rule.Sheet)
}
