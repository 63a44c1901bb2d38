package store

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/roach88/dpmcheck/internal/ir"
)

// marshalReport converts a report to JSON TEXT for storage.
// HTML escaping is off so messages like `expected {c0010} < 5` are stored
// as written.
func marshalReport(r *ir.Report) (string, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(r); err != nil {
		return "", fmt.Errorf("marshal report: %w", err)
	}
	// Encoder adds a trailing newline
	return strings.TrimSpace(buf.String()), nil
}

// unmarshalReport parses JSON TEXT back into a report.
func unmarshalReport(data string) (*ir.Report, error) {
	var r ir.Report
	if err := json.Unmarshal([]byte(data), &r); err != nil {
		return nil, fmt.Errorf("unmarshal report: %w", err)
	}
	if r.Tables == nil {
		r.Tables = []ir.TableReport{}
	}
	if r.Warnings == nil {
		r.Warnings = []ir.Warning{}
	}
	return &r, nil
}
