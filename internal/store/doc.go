// Package store provides SQLite-backed storage for report tables and
// validation runs.
//
// The store holds:
//   - Tables: imported report tables (columns, data rows, totals row, cells)
//   - Runs: one JSON report per validation run
//   - Run findings: failures and evaluation errors indexed by rule
//
// # Ordering
//
//   - Tables come back in import order (data_tables.seq); re-importing a
//     table keeps its position
//   - Rows come back in row_index order, never insertion order
//   - Runs list newest first by seq, never by wall time
//
// # Cells
//
// A cell is stored as a kind tag plus its text (ir.EncodeValue). Numbers
// keep their exact decimal digits. Null cells are not stored; an absent
// cell reads as null.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Cells and rows cascade with their table
//
// Tables can also be exchanged as YAML dumps (ReadTableDump,
// WriteTableDump) without a database.
package store
