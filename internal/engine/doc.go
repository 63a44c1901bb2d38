// Package engine evaluates compiled rules against report tables.
//
// Evaluate is the per-row evaluator: a pure function of a bound rule and a
// row. It uses three-valued logic, where a null operand makes a comparison
// unknown and an unknown verdict is a vacuous pass. isnull and the nullity
// comparisons (= empty, != "null") always give a definite answer.
//
// Validator is the orchestrator. For each table it binds the catalog to the
// table schema, runs sheet rules on every data row and table rules once on
// the totals row, and aggregates the results into an ir.Report.
//
// CONCURRENCY:
//
// Rows are partitioned into chunks; every chunk and every totals row is an
// independent unit run on an errgroup limited to the worker count. Rules,
// bindings and schemas are immutable and shared by reference. Each unit
// writes only to its own result slot, and aggregation walks the units in
// creation order, so failures are listed in source row order whatever the
// completion order was.
//
// ERRORS:
//
// Faults found while evaluating (bad pattern, non-numeric operand, type
// mismatch, division by zero) become *EvalError results and are counted
// apart from business failures. Rules that cannot bind to a table become
// report warnings. Neither stops the run.
package engine
