// Package testutil provides builders shared by package tests.
package testutil

import "github.com/roach88/dpmcheck/internal/ir"

// TableBuilder assembles an ir.Table row by row.
type TableBuilder struct {
	table *ir.Table
}

// NewTable starts a table with the given columns in declaration order.
func NewTable(id string, codes ...string) *TableBuilder {
	t := &ir.Table{ID: id}
	for i, c := range codes {
		t.Columns = append(t.Columns, ir.Column{Code: c, Position: i})
	}
	return &TableBuilder{table: t}
}

// Numbers appends a data row of decimal literals, one per column. An empty
// string leaves the cell null.
//
// Panics if a literal does not parse.
func (b *TableBuilder) Numbers(values ...string) *TableBuilder {
	row := ir.Row{Index: len(b.table.Rows), Cells: b.numberCells(values)}
	b.table.Rows = append(b.table.Rows, row)
	return b
}

// Row appends a data row with arbitrary cells.
func (b *TableBuilder) Row(cells map[string]ir.Value) *TableBuilder {
	b.table.Rows = append(b.table.Rows, ir.Row{Index: len(b.table.Rows), Cells: cells})
	return b
}

// Totals sets the declared totals row.
func (b *TableBuilder) Totals(values ...string) *TableBuilder {
	b.table.Totals = &ir.Row{Index: -1, Cells: b.numberCells(values)}
	return b
}

// Build returns the table. The builder must not be reused.
func (b *TableBuilder) Build() *ir.Table {
	return b.table
}

func (b *TableBuilder) numberCells(values []string) map[string]ir.Value {
	cells := make(map[string]ir.Value)
	for i, s := range values {
		if s == "" || i >= len(b.table.Columns) {
			continue
		}
		cells[b.table.Columns[i].Code] = ir.MustNumber(s)
	}
	return cells
}
