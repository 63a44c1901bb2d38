package resolve

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/dpmcheck/internal/ir"
)

func TestMatchers(t *testing.T) {
	a := ir.Code{Namespace: "eba_CO", Code: "x3"}
	upper := ir.Code{Namespace: "EBA_CO", Code: "x3"}
	other := ir.Code{Namespace: "eba_CO", Code: "X3"}

	assert.True(t, ExactMatcher{}.Equal(a, a))
	assert.False(t, ExactMatcher{}.Equal(a, upper))

	assert.True(t, FoldMatcher{}.Equal(a, upper))
	assert.False(t, FoldMatcher{}.Equal(a, other), "code part stays case sensitive")
}

func TestMatcherByName(t *testing.T) {
	m, ok := MatcherByName("")
	require.True(t, ok)
	assert.IsType(t, ExactMatcher{}, m)

	m, ok = MatcherByName("FOLD")
	require.True(t, ok)
	assert.IsType(t, FoldMatcher{}, m)

	_, ok = MatcherByName("fuzzy")
	assert.False(t, ok)
}

func TestCoerceCode(t *testing.T) {
	want := ir.Code{Namespace: "eba_CO", Code: "x3"}

	got, ok := CoerceCode(want)
	require.True(t, ok)
	assert.Equal(t, want, got)

	got, ok = CoerceCode(ir.Text("[eba_CO:x3]"))
	require.True(t, ok)
	assert.Equal(t, want, got)

	_, ok = CoerceCode(ir.Text("plain text"))
	assert.False(t, ok)

	_, ok = CoerceCode(ir.MustNumber("3"))
	assert.False(t, ok)

	_, ok = CoerceCode(ir.Null{})
	assert.False(t, ok)
}
