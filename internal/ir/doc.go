// Package ir provides the shared data model for dpmcheck: cell values,
// tables, compiled rules, validation results and reports.
//
// Every other internal package imports ir. ir itself imports only expr, for
// the cached rule AST, so the model stays the foundational layer with no
// circular dependencies.
//
// Key design constraints:
//   - Numbers are exact decimals (apd), never float64
//   - Null is a value of its own, distinct from "" and 0
//   - Rules are immutable after compilation and safe to share across goroutines
//   - All JSON tags use snake_case
package ir
