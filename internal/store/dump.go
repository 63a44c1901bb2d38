package store

import (
	"errors"
	"fmt"
	"io"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/roach88/dpmcheck/internal/ir"
)

// TableDump is the YAML interchange form of report tables, read by
// `dpmcheck import` and by test scenarios:
//
//	tables:
//	  - id: tB_01.01
//	    columns: [c0010, c0020]
//	    rows:
//	      - {c0010: 5, c0020: "ABC"}
//	      - {c0010: null}
//	    totals: {c0010: 5}
//
// Numbers keep their literal digits; `1.10` stays 1.10 and is never routed
// through float64.
type TableDump struct {
	Tables []TableSpec `yaml:"tables"`
}

// TableSpec is one table of a dump. Columns may be omitted, in which case
// they are the sorted union of the row keys.
type TableSpec struct {
	ID      string    `yaml:"id"`
	Columns []string  `yaml:"columns,omitempty"`
	Rows    []CellMap `yaml:"rows"`
	Totals  CellMap   `yaml:"totals,omitempty"`
}

// CellMap is one row of a dump, keyed by column code.
type CellMap map[string]ir.Value

// UnmarshalYAML decodes a row mapping, typing each scalar from its tag.
func (m *CellMap) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.MappingNode {
		return fmt.Errorf("line %d: row must be a mapping", node.Line)
	}
	cells := make(CellMap, len(node.Content)/2)
	for i := 0; i+1 < len(node.Content); i += 2 {
		key, val := node.Content[i], node.Content[i+1]
		v, err := scalarValue(val)
		if err != nil {
			return fmt.Errorf("line %d: column %s: %w", val.Line, key.Value, err)
		}
		cells[key.Value] = v
	}
	*m = cells
	return nil
}

// MarshalYAML writes cells sorted by code. Text is always quoted so it
// never reads back as a number or a code.
func (m CellMap) MarshalYAML() (any, error) {
	codes := make([]string, 0, len(m))
	for code := range m {
		codes = append(codes, code)
	}
	sort.Strings(codes)

	node := &yaml.Node{Kind: yaml.MappingNode}
	for _, code := range codes {
		node.Content = append(node.Content,
			&yaml.Node{Kind: yaml.ScalarNode, Value: code},
			valueNode(m[code]))
	}
	return node, nil
}

func scalarValue(n *yaml.Node) (ir.Value, error) {
	if n.Kind == yaml.AliasNode && n.Alias != nil {
		n = n.Alias
	}
	if n.Kind != yaml.ScalarNode {
		return nil, errors.New("cell must be a scalar")
	}
	switch n.ShortTag() {
	case "!!null":
		return ir.Null{}, nil
	case "!!int", "!!float":
		return ir.ParseNumber(n.Value)
	case "!!bool":
		var b bool
		if err := n.Decode(&b); err != nil {
			return nil, err
		}
		return ir.ValueFromAny(b)
	default:
		if c, ok := ir.ParseCode(n.Value); ok && n.Style == 0 {
			return c, nil
		}
		return ir.Text(n.Value), nil
	}
}

func valueNode(v ir.Value) *yaml.Node {
	switch val := v.(type) {
	case nil, ir.Null:
		return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!null", Value: "null"}
	case ir.Number:
		return &yaml.Node{Kind: yaml.ScalarNode, Value: val.String()}
	case ir.Code:
		return &yaml.Node{Kind: yaml.ScalarNode, Value: val.Namespace + ":" + val.Code}
	default:
		return &yaml.Node{Kind: yaml.ScalarNode, Style: yaml.DoubleQuotedStyle, Value: v.String()}
	}
}

// Table converts the spec to an ir.Table. Data rows are indexed from 0 in
// listed order.
func (s TableSpec) Table() (*ir.Table, error) {
	if s.ID == "" {
		return nil, errors.New("table without id")
	}
	codes := s.Columns
	if len(codes) == 0 {
		seen := make(map[string]bool)
		for _, row := range s.Rows {
			for code := range row {
				if !seen[code] {
					seen[code] = true
					codes = append(codes, code)
				}
			}
		}
		sort.Strings(codes)
	}

	t := &ir.Table{ID: s.ID, Columns: make([]ir.Column, len(codes)), Rows: make([]ir.Row, len(s.Rows))}
	known := make(map[string]bool, len(codes))
	for i, code := range codes {
		if known[code] {
			return nil, fmt.Errorf("table %s: duplicate column %s", s.ID, code)
		}
		known[code] = true
		t.Columns[i] = ir.Column{Code: code, Position: i}
	}

	check := func(where string, cells CellMap) error {
		for code := range cells {
			if !known[code] {
				return fmt.Errorf("table %s: %s: column %s is not declared", s.ID, where, code)
			}
		}
		return nil
	}
	for i, cells := range s.Rows {
		if err := check(fmt.Sprintf("row %d", i), cells); err != nil {
			return nil, err
		}
		t.Rows[i] = ir.Row{Index: i, Cells: map[string]ir.Value(cells)}
		if t.Rows[i].Cells == nil {
			t.Rows[i].Cells = map[string]ir.Value{}
		}
	}
	if s.Totals != nil {
		if err := check("totals", s.Totals); err != nil {
			return nil, err
		}
		t.Totals = &ir.Row{Index: -1, Cells: map[string]ir.Value(s.Totals)}
	}
	return t, nil
}

// ToTables converts every table of the dump.
func (d TableDump) ToTables() ([]*ir.Table, error) {
	tables := make([]*ir.Table, 0, len(d.Tables))
	seen := make(map[string]bool)
	for _, spec := range d.Tables {
		t, err := spec.Table()
		if err != nil {
			return nil, err
		}
		key := ir.CanonicalTableID(t.ID)
		if seen[key] {
			return nil, fmt.Errorf("table %s listed twice", t.ID)
		}
		seen[key] = true
		tables = append(tables, t)
	}
	return tables, nil
}

// ReadTableDump decodes a YAML table dump.
func ReadTableDump(r io.Reader) ([]*ir.Table, error) {
	var d TableDump
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&d); err != nil {
		if errors.Is(err, io.EOF) {
			return []*ir.Table{}, nil
		}
		return nil, fmt.Errorf("read table dump: %w", err)
	}
	tables, err := d.ToTables()
	if err != nil {
		return nil, fmt.Errorf("read table dump: %w", err)
	}
	return tables, nil
}

// WriteTableDump encodes tables as YAML, the inverse of ReadTableDump.
func WriteTableDump(w io.Writer, tables []*ir.Table) error {
	d := TableDump{Tables: make([]TableSpec, len(tables))}
	for i, t := range tables {
		spec := TableSpec{ID: t.ID, Columns: t.ColumnCodes(), Rows: make([]CellMap, len(t.Rows))}
		for j, row := range t.Rows {
			spec.Rows[j] = CellMap(row.Cells)
		}
		if t.Totals != nil {
			spec.Totals = CellMap(t.Totals.Cells)
		}
		d.Tables[i] = spec
	}

	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(d); err != nil {
		return fmt.Errorf("write table dump: %w", err)
	}
	return enc.Close()
}
