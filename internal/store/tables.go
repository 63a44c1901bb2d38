package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/roach88/dpmcheck/internal/ir"
)

// TableInfo summarizes a stored table.
type TableInfo struct {
	ID        string `json:"id"`
	Source    string `json:"source"`
	Columns   int    `json:"columns"`
	Rows      int    `json:"rows"`
	HasTotals bool   `json:"has_totals"`
}

// TableFilter selects tables for LoadTables. The zero value selects all.
type TableFilter struct {
	// IDs restricts the result to these tables. Sheet and canonical forms
	// (tB_01.01, t01_01) both match.
	IDs []string
}

func (f TableFilter) match(id string) bool {
	if len(f.IDs) == 0 {
		return true
	}
	for _, want := range f.IDs {
		if ir.SameTable(want, id) {
			return true
		}
	}
	return false
}

// WriteTable stores t, replacing any table with the same id. The table
// keeps its original import position when replaced.
func (s *Store) WriteTable(ctx context.Context, t *ir.Table, source string) error {
	if t.ID == "" {
		return fmt.Errorf("write table: empty table id")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("write table %s: %w", t.ID, err)
	}
	defer tx.Rollback()

	var seq int64
	err = tx.QueryRowContext(ctx, `SELECT seq FROM data_tables WHERE id = ?`, t.ID).Scan(&seq)
	switch {
	case err == sql.ErrNoRows:
		if err := tx.QueryRowContext(ctx, `SELECT COALESCE(MAX(seq), 0) + 1 FROM data_tables`).Scan(&seq); err != nil {
			return fmt.Errorf("write table %s: %w", t.ID, err)
		}
	case err != nil:
		return fmt.Errorf("write table %s: %w", t.ID, err)
	default:
		if _, err := tx.ExecContext(ctx, `DELETE FROM data_tables WHERE id = ?`, t.ID); err != nil {
			return fmt.Errorf("write table %s: %w", t.ID, err)
		}
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO data_tables (id, seq, source) VALUES (?, ?, ?)`,
		t.ID, seq, source,
	); err != nil {
		return fmt.Errorf("write table %s: %w", t.ID, err)
	}

	for _, c := range t.Columns {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO data_columns (table_id, code, position) VALUES (?, ?, ?)`,
			t.ID, c.Code, c.Position,
		); err != nil {
			return fmt.Errorf("write table %s: column %s: %w", t.ID, c.Code, err)
		}
	}

	for _, row := range t.Rows {
		if err := writeRow(ctx, tx, t.ID, row, false); err != nil {
			return fmt.Errorf("write table %s: %w", t.ID, err)
		}
	}
	if t.Totals != nil {
		if err := writeRow(ctx, tx, t.ID, *t.Totals, true); err != nil {
			return fmt.Errorf("write table %s: totals: %w", t.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("write table %s: %w", t.ID, err)
	}
	return nil
}

func writeRow(ctx context.Context, tx *sql.Tx, tableID string, row ir.Row, total bool) error {
	index := row.Index
	if total {
		index = -1
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO data_rows (table_id, row_index, is_total) VALUES (?, ?, ?)`,
		tableID, index, total,
	); err != nil {
		return fmt.Errorf("row %d: %w", index, err)
	}

	for code, v := range row.Cells {
		if v == nil || ir.IsNull(v) {
			continue
		}
		kind, text := ir.EncodeValue(v)
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO data_cells (table_id, row_index, is_total, code, kind, value)
			VALUES (?, ?, ?, ?, ?, ?)
		`, tableID, index, total, code, string(kind), text); err != nil {
			return fmt.Errorf("row %d cell %s: %w", index, code, err)
		}
	}
	return nil
}

// DeleteTable removes a table with its rows and cells. Deleting a missing
// table is not an error.
func (s *Store) DeleteTable(ctx context.Context, id string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM data_tables WHERE id = ?`, id); err != nil {
		return fmt.Errorf("delete table %s: %w", id, err)
	}
	return nil
}

// ListTables returns a summary of every stored table in import order.
func (s *Store) ListTables(ctx context.Context) ([]TableInfo, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT t.id, t.source,
			(SELECT COUNT(*) FROM data_columns c WHERE c.table_id = t.id),
			(SELECT COUNT(*) FROM data_rows r WHERE r.table_id = t.id AND r.is_total = 0),
			EXISTS (SELECT 1 FROM data_rows r WHERE r.table_id = t.id AND r.is_total = 1)
		FROM data_tables t
		ORDER BY t.seq ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("list tables: %w", err)
	}
	defer rows.Close()

	infos := []TableInfo{}
	for rows.Next() {
		var info TableInfo
		if err := rows.Scan(&info.ID, &info.Source, &info.Columns, &info.Rows, &info.HasTotals); err != nil {
			return nil, fmt.Errorf("list tables: %w", err)
		}
		infos = append(infos, info)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list tables: %w", err)
	}
	return infos, nil
}

// LoadTables reads the tables selected by filter in import order. Rows come
// back in row_index order.
func (s *Store) LoadTables(ctx context.Context, filter TableFilter) ([]*ir.Table, error) {
	infos, err := s.ListTables(ctx)
	if err != nil {
		return nil, err
	}

	tables := []*ir.Table{}
	for _, info := range infos {
		if !filter.match(info.ID) {
			continue
		}
		t, err := s.loadTable(ctx, info.ID)
		if err != nil {
			return nil, err
		}
		tables = append(tables, t)
	}

	if missing := filter.missing(tables); len(missing) > 0 {
		return nil, fmt.Errorf("load tables: not in store: %s", strings.Join(missing, ", "))
	}
	return tables, nil
}

func (f TableFilter) missing(found []*ir.Table) []string {
	var missing []string
	for _, want := range f.IDs {
		ok := false
		for _, t := range found {
			if ir.SameTable(want, t.ID) {
				ok = true
				break
			}
		}
		if !ok {
			missing = append(missing, want)
		}
	}
	return missing
}

func (s *Store) loadTable(ctx context.Context, id string) (*ir.Table, error) {
	t := &ir.Table{ID: id, Columns: []ir.Column{}, Rows: []ir.Row{}}

	cols, err := s.db.QueryContext(ctx, `
		SELECT code, position FROM data_columns
		WHERE table_id = ?
		ORDER BY position ASC, code ASC
	`, id)
	if err != nil {
		return nil, fmt.Errorf("load table %s: %w", id, err)
	}
	defer cols.Close()
	for cols.Next() {
		var c ir.Column
		if err := cols.Scan(&c.Code, &c.Position); err != nil {
			return nil, fmt.Errorf("load table %s: %w", id, err)
		}
		t.Columns = append(t.Columns, c)
	}
	if err := cols.Err(); err != nil {
		return nil, fmt.Errorf("load table %s: %w", id, err)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT row_index, is_total FROM data_rows
		WHERE table_id = ?
		ORDER BY is_total ASC, row_index ASC
	`, id)
	if err != nil {
		return nil, fmt.Errorf("load table %s: %w", id, err)
	}
	defer rows.Close()

	byIndex := make(map[int]int)
	for rows.Next() {
		var index int
		var total bool
		if err := rows.Scan(&index, &total); err != nil {
			return nil, fmt.Errorf("load table %s: %w", id, err)
		}
		row := ir.Row{Index: index, Cells: map[string]ir.Value{}}
		if total {
			t.Totals = &row
			continue
		}
		byIndex[index] = len(t.Rows)
		t.Rows = append(t.Rows, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("load table %s: %w", id, err)
	}

	cells, err := s.db.QueryContext(ctx, `
		SELECT row_index, is_total, code, kind, value FROM data_cells
		WHERE table_id = ?
	`, id)
	if err != nil {
		return nil, fmt.Errorf("load table %s: %w", id, err)
	}
	defer cells.Close()
	for cells.Next() {
		var (
			index      int
			total      bool
			code, kind string
			text       string
		)
		if err := cells.Scan(&index, &total, &code, &kind, &text); err != nil {
			return nil, fmt.Errorf("load table %s: %w", id, err)
		}
		v, err := ir.DecodeValue(ir.ValueKind(kind), text)
		if err != nil {
			return nil, fmt.Errorf("load table %s: row %d cell %s: %w", id, index, code, err)
		}
		if total {
			t.Totals.Cells[code] = v
			continue
		}
		t.Rows[byIndex[index]].Cells[code] = v
	}
	if err := cells.Err(); err != nil {
		return nil, fmt.Errorf("load table %s: %w", id, err)
	}

	return t, nil
}
