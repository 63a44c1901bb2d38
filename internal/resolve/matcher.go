package resolve

import (
	"strings"

	"github.com/roach88/dpmcheck/internal/ir"
)

// CodeMatcher decides whether two code-list values denote the same code.
// Implementations must be safe for concurrent use.
type CodeMatcher interface {
	Equal(a, b ir.Code) bool
}

// ExactMatcher compares namespace and code byte for byte.
type ExactMatcher struct{}

// Equal implements CodeMatcher.
func (ExactMatcher) Equal(a, b ir.Code) bool {
	return a == b
}

// FoldMatcher ignores case in the namespace and compares codes exactly.
// Submissions often spell eba_CO as EBA_CO.
type FoldMatcher struct{}

// Equal implements CodeMatcher.
func (FoldMatcher) Equal(a, b ir.Code) bool {
	return strings.EqualFold(a.Namespace, b.Namespace) && a.Code == b.Code
}

// MatcherByName returns the matcher configured by name: "exact" or "fold".
func MatcherByName(name string) (CodeMatcher, bool) {
	switch strings.ToLower(name) {
	case "", "exact":
		return ExactMatcher{}, true
	case "fold":
		return FoldMatcher{}, true
	}
	return nil, false
}

// CoerceCode returns v as a code. Code values pass through; text cells
// count when they parse as [ns:code] or ns:code.
func CoerceCode(v ir.Value) (ir.Code, bool) {
	switch val := v.(type) {
	case ir.Code:
		return val, true
	case ir.Text:
		return ir.ParseCode(string(val))
	}
	return ir.Code{}, false
}
