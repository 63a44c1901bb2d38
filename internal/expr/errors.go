package expr

import (
	"errors"
	"fmt"
	"slices"
	"strings"
)

// ParseError reports a syntax error at a byte offset of the rule source.
type ParseError struct {
	// Pos is the byte offset of the offending token.
	Pos int

	// Found is the offending token as written, or "end of expression".
	Found string

	// Expected lists what the parser would have accepted, sorted.
	Expected []string
}

func (e *ParseError) Error() string {
	switch len(e.Expected) {
	case 0:
		return fmt.Sprintf("parse error at offset %d: unexpected %s", e.Pos, e.Found)
	case 1:
		return fmt.Sprintf("parse error at offset %d: expected %s, found %s", e.Pos, e.Expected[0], e.Found)
	default:
		return fmt.Sprintf("parse error at offset %d: expected one of %s, found %s",
			e.Pos, strings.Join(e.Expected, " "), e.Found)
	}
}

// IsParseError returns true if err is or wraps a *ParseError.
func IsParseError(err error) bool {
	var pe *ParseError
	return errors.As(err, &pe)
}

func newParseError(tok Token, expected ...string) *ParseError {
	exp := slices.Clone(expected)
	slices.Sort(exp)
	return &ParseError{
		Pos:      tok.Pos,
		Found:    tok.describe(),
		Expected: slices.Compact(exp),
	}
}
