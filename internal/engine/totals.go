package engine

import (
	"github.com/roach88/dpmcheck/internal/ir"
)

// totalsRow returns the row table rules run against: the declared totals
// row when the table has one, else the column sums of the data rows.
//
// A computed total covers numeric cells only. A column holding any
// non-numeric cell has no total and reads as null, so identities over it
// pass vacuously instead of comparing a partial sum.
func totalsRow(t *ir.Table) ir.Row {
	if t.Totals != nil {
		return *t.Totals
	}

	cells := make(map[string]ir.Value, len(t.Columns))
	skip := make(map[string]bool)
	for _, row := range t.Rows {
		for code, v := range row.Cells {
			if skip[code] || ir.IsNull(v) {
				continue
			}
			n, ok := ir.AsNumber(v)
			if !ok {
				skip[code] = true
				delete(cells, code)
				continue
			}
			sum := ir.NumberFromInt(0)
			if prev, ok := cells[code].(ir.Number); ok {
				sum = prev
			}
			next, err := sum.Add(n)
			if err != nil {
				skip[code] = true
				delete(cells, code)
				continue
			}
			cells[code] = next
		}
	}
	return ir.Row{Index: -1, Cells: cells}
}
