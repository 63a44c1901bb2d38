// Package resolve binds compiled rules to table schemas.
//
// Binding happens once per (rule, table) before any row is evaluated. It
// checks that the rule applies to the table, expands column ranges and
// tuples into concrete column codes, compiles match patterns and captures
// the rule's null-substitution policy. A rule that cannot be bound is
// reported as a *ContextError and skipped for that table; it is never a
// fatal error.
//
// Bindings are immutable after Bind returns and may be shared by any
// number of goroutines.
package resolve
