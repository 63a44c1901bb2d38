package resolve

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/roach88/dpmcheck/internal/ir"
	"github.com/roach88/dpmcheck/internal/testutil"
)

func testTable(id string, codes ...string) *ir.Table {
	return testutil.NewTable(id, codes...).Build()
}

func TestNewSchemaOrdersByPosition(t *testing.T) {
	s := NewSchema(&ir.Table{
		ID: "tB_01.01",
		Columns: []ir.Column{
			{Code: "c0030", Position: 2},
			{Code: "c0010", Position: 0},
			{Code: "c0020", Position: 1},
			{Code: "C0020", Position: 3},
		},
	})
	assert.Equal(t, []string{"c0010", "c0020", "c0030"}, s.Codes())
}

func TestSchemaLookup(t *testing.T) {
	s := NewSchema(testTable("tB_01.01", "c0010", "C0020"))

	got, ok := s.Lookup("C0010")
	assert.True(t, ok)
	assert.Equal(t, "c0010", got)

	got, ok = s.Lookup("c0020")
	assert.True(t, ok)
	assert.Equal(t, "C0020", got, "lookup returns the declared spelling")

	_, ok = s.Lookup("c0099")
	assert.False(t, ok)
}

func TestExpandRange(t *testing.T) {
	s := NewSchema(testTable("tB_01.02", "c0050", "c0020", "c0030", "c0100", "r0020"))

	tests := []struct {
		name     string
		from, to string
		want     []string
	}{
		{"gaps skipped", "c0020", "c0090", []string{"c0020", "c0030", "c0050"}},
		{"single", "c0030", "c0030", []string{"c0030"}},
		{"upper bound inclusive", "c0050", "c0100", []string{"c0050", "c0100"}},
		{"case insensitive prefix", "C0020", "C0030", []string{"c0020", "c0030"}},
		{"reversed", "c0090", "c0020", nil},
		{"no hits", "c0060", "c0090", nil},
		{"prefix mismatch", "c0020", "r0090", nil},
		{"not a code", "total", "c0090", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := s.ExpandRange(tt.from, tt.to)
			if tt.want == nil {
				assert.Empty(t, got)
				return
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSplitCode(t *testing.T) {
	p, n, ok := splitCode("c0020")
	assert.True(t, ok)
	assert.Equal(t, "c", p)
	assert.Equal(t, 20, n)

	for _, bad := range []string{"", "0020", "c", "c00x"} {
		_, _, ok := splitCode(bad)
		assert.False(t, ok, bad)
	}
}
