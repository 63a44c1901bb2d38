package ir

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValueSealed(t *testing.T) {
	values := []Value{Null{}, NumberFromInt(1), Text("x"), Code{Namespace: "eba_CO", Code: "x3"}}
	kinds := []ValueKind{KindNull, KindNumber, KindText, KindCode}
	for i, v := range values {
		assert.Equal(t, kinds[i], v.Kind())
	}
}

func TestNullIsDistinct(t *testing.T) {
	assert.True(t, IsNull(nil))
	assert.True(t, IsNull(Null{}))
	assert.False(t, IsNull(Text("")))
	assert.False(t, IsNull(NumberFromInt(0)))
}

func TestNumberExactArithmetic(t *testing.T) {
	a := MustNumber("0.1")
	b := MustNumber("0.2")

	sum, err := a.Add(b)
	require.NoError(t, err)
	assert.Equal(t, 0, sum.Cmp(MustNumber("0.3")), "decimal sum must be exact")
	assert.Equal(t, "0.3", sum.String())

	diff, err := NumberFromInt(5).Sub(NumberFromInt(8))
	require.NoError(t, err)
	assert.Equal(t, "-3", diff.String())

	prod, err := MustNumber("2.5").Mul(NumberFromInt(4))
	require.NoError(t, err)
	assert.Equal(t, "10", prod.String())

	quo, err := NumberFromInt(7).Quo(NumberFromInt(2))
	require.NoError(t, err)
	assert.Equal(t, "3.5", quo.String())

	_, err = NumberFromInt(7).Quo(NumberFromInt(0))
	assert.Error(t, err)
}

func TestNumberStringNormalises(t *testing.T) {
	tests := map[string]string{
		"8":      "8",
		"8.00":   "8",
		"100":    "100",
		"1e3":    "1000",
		"-0.50":  "-0.5",
		" 42 ":   "42",
		"0.0001": "0.0001",
	}
	for in, want := range tests {
		assert.Equal(t, want, MustNumber(in).String(), in)
	}
}

func TestParseNumberRejects(t *testing.T) {
	for _, s := range []string{"", "abc", "NaN", "Infinity", "1,5"} {
		_, err := ParseNumber(s)
		assert.Error(t, err, s)
	}
}

func TestNumberZeroValue(t *testing.T) {
	var n Number
	assert.True(t, n.IsZero())
	assert.Equal(t, "0", n.String())
	assert.Equal(t, 0, n.Cmp(NumberFromInt(0)))
}

func TestAsNumber(t *testing.T) {
	n, ok := AsNumber(Text(" 12.5 "))
	require.True(t, ok)
	assert.Equal(t, "12.5", n.String())

	_, ok = AsNumber(Text("LEI123"))
	assert.False(t, ok)
	_, ok = AsNumber(Text(""))
	assert.False(t, ok)
	_, ok = AsNumber(Null{})
	assert.False(t, ok)
	_, ok = AsNumber(Code{Namespace: "a", Code: "1"})
	assert.False(t, ok)
}

func TestParseCode(t *testing.T) {
	tests := []struct {
		in   string
		want Code
		ok   bool
	}{
		{"[eba_CO:x3]", Code{"eba_CO", "x3"}, true},
		{"eba_qCO:qx2000", Code{"eba_qCO", "qx2000"}, true},
		{" [ eba_CT:x212 ] ", Code{"eba_CT", "x212"}, true},
		{"x3", Code{}, false},
		{":x3", Code{}, false},
		{"eba_CO:", Code{}, false},
		{"eba CO:x3", Code{}, false},
	}
	for _, tt := range tests {
		got, ok := ParseCode(tt.in)
		assert.Equal(t, tt.ok, ok, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}
}

func TestValueFromAny(t *testing.T) {
	tests := []struct {
		in   any
		kind ValueKind
		text string
	}{
		{nil, KindNull, "null"},
		{"abc", KindText, "abc"},
		{7, KindNumber, "7"},
		{int64(-3), KindNumber, "-3"},
		{2.5, KindNumber, "2.5"},
		{true, KindText, "true"},
	}
	for _, tt := range tests {
		v, err := ValueFromAny(tt.in)
		require.NoError(t, err)
		assert.Equal(t, tt.kind, v.Kind())
		assert.Equal(t, tt.text, v.String())
	}

	_, err := ValueFromAny([]int{1})
	assert.Error(t, err)
}

func TestEncodeDecodeValue(t *testing.T) {
	values := []Value{Null{}, MustNumber("12.50"), Text("LEI"), Code{Namespace: "eba_CO", Code: "x3"}}
	for _, v := range values {
		kind, text := EncodeValue(v)
		got, err := DecodeValue(kind, text)
		require.NoError(t, err)
		assert.Equal(t, v.Kind(), got.Kind())
		assert.Equal(t, v.String(), got.String())
	}

	_, err := DecodeValue("blob", "x")
	assert.Error(t, err)
	_, err = DecodeValue(KindCode, "nocolon")
	assert.Error(t, err)
}
