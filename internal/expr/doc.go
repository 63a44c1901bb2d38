// Package expr parses DPM rule expressions into an abstract syntax tree.
//
// A rule expression is an optional scope prefix followed by a boolean body:
//
//	with {tB_01.02, default: null, interval: false}: not ( isnull ({c0020-0090}) )
//	if ({c0020} = [eba_CO:x3]) then ({c0030} != empty) endif
//	SUM(c0100:c0110)=c0120
//
// The grammar is case- and whitespace-insensitive. Parsing is pure: the same
// source always yields a structurally identical tree, and Parse never consults
// any table data. Column references are kept symbolic here; resolving them
// against a table schema is the job of package resolve.
//
// Node types form a sealed set. Only the types in this package implement
// Node, so evaluators can switch exhaustively over them.
package expr
