package testutil

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/dpmcheck/internal/ir"
)

func TestNewTable_Columns(t *testing.T) {
	tbl := NewTable("tB_01.01", "c0010", "c0020").Build()

	assert.Equal(t, "tB_01.01", tbl.ID)
	assert.Equal(t, []string{"c0010", "c0020"}, tbl.ColumnCodes())
	assert.Equal(t, 1, tbl.Columns[1].Position)
	assert.Empty(t, tbl.Rows)
	assert.Nil(t, tbl.Totals)
}

func TestTableBuilder_Rows(t *testing.T) {
	tbl := NewTable("tB_01.01", "c0010", "c0020").
		Numbers("1.5", "").
		Row(map[string]ir.Value{"c0020": ir.Text("x")}).
		Totals("1.5", "0").
		Build()

	require.Len(t, tbl.Rows, 2)
	assert.Equal(t, 0, tbl.Rows[0].Index)
	assert.Equal(t, ir.MustNumber("1.5"), tbl.Rows[0].Get("c0010"))
	assert.True(t, ir.IsNull(tbl.Rows[0].Get("c0020")))
	assert.Equal(t, 1, tbl.Rows[1].Index)
	assert.Equal(t, ir.Text("x"), tbl.Rows[1].Get("c0020"))

	require.NotNil(t, tbl.Totals)
	assert.Equal(t, -1, tbl.Totals.Index)
	assert.Equal(t, ir.MustNumber("0"), tbl.Totals.Get("c0020"))
}

func TestTableBuilder_PanicsOnBadNumber(t *testing.T) {
	assert.Panics(t, func() {
		NewTable("tB_01.01", "c0010").Numbers("abc")
	})
}

func TestConstantRunID(t *testing.T) {
	gen := NewConstantRunID("run-1")
	assert.Equal(t, "run-1", gen.Generate())
	assert.Equal(t, "run-1", gen.Generate())

	assert.Equal(t, "test-run", NewConstantRunID("").Generate())
}

func TestConstantRunID_Concurrent(t *testing.T) {
	gen := NewConstantRunID("run-1")

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				assert.Equal(t, "run-1", gen.Generate())
			}
		}()
	}
	wg.Wait()
}
