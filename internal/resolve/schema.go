package resolve

import (
	"slices"
	"strconv"
	"strings"

	"github.com/roach88/dpmcheck/internal/ir"
)

// Schema is the column layout of one table, indexed for reference lookup.
type Schema struct {
	TableID string

	codes []string
	index map[string]string
}

// NewSchema builds the schema of t. Column codes are matched
// case-insensitively; lookups return the declared spelling.
func NewSchema(t *ir.Table) *Schema {
	s := &Schema{
		TableID: t.ID,
		codes:   make([]string, 0, len(t.Columns)),
		index:   make(map[string]string, len(t.Columns)),
	}
	cols := slices.Clone(t.Columns)
	slices.SortStableFunc(cols, func(a, b ir.Column) int { return a.Position - b.Position })
	for _, c := range cols {
		key := strings.ToLower(c.Code)
		if _, dup := s.index[key]; dup {
			continue
		}
		s.index[key] = c.Code
		s.codes = append(s.codes, c.Code)
	}
	return s
}

// Codes returns the declared column codes in declaration order.
func (s *Schema) Codes() []string {
	return slices.Clone(s.codes)
}

// Lookup returns the declared spelling of code.
func (s *Schema) Lookup(code string) (string, bool) {
	declared, ok := s.index[strings.ToLower(code)]
	return declared, ok
}

// ExpandRange returns the declared codes whose numeric suffix lies in
// [from, to], in ascending numeric order. Codes missing from the schema are
// skipped, so {c0020-0090} over c0020, c0030, c0050 yields those three.
func (s *Schema) ExpandRange(from, to string) []string {
	prefix, lo, ok := splitCode(from)
	if !ok {
		return nil
	}
	toPrefix, hi, ok := splitCode(to)
	if !ok || !strings.EqualFold(prefix, toPrefix) || lo > hi {
		return nil
	}

	type numbered struct {
		code string
		n    int
	}
	var hits []numbered
	for _, code := range s.codes {
		p, n, ok := splitCode(code)
		if ok && strings.EqualFold(p, prefix) && n >= lo && n <= hi {
			hits = append(hits, numbered{code, n})
		}
	}
	slices.SortStableFunc(hits, func(a, b numbered) int { return a.n - b.n })

	out := make([]string, len(hits))
	for i, h := range hits {
		out[i] = h.code
	}
	return out
}

// splitCode splits c0020 into ("c", 20).
func splitCode(code string) (string, int, bool) {
	i := 0
	for i < len(code) && (code[i] < '0' || code[i] > '9') {
		i++
	}
	if i == 0 || i == len(code) {
		return "", 0, false
	}
	n, err := strconv.Atoi(code[i:])
	if err != nil {
		return "", 0, false
	}
	return code[:i], n, true
}
