package expr

// Walk visits n and its descendants in depth-first, left-to-right order.
// If fn returns false the children of that node are skipped.
func Walk(n Node, fn func(Node) bool) {
	if n == nil || !fn(n) {
		return
	}
	switch n := n.(type) {
	case *Not:
		Walk(n.Operand, fn)
	case *Logic:
		Walk(n.Left, fn)
		Walk(n.Right, fn)
	case *Compare:
		Walk(n.Left, fn)
		Walk(n.Right, fn)
	case *Arith:
		Walk(n.Left, fn)
		Walk(n.Right, fn)
	case *Call:
		for _, a := range n.Args {
			Walk(a, fn)
		}
	case *In:
		Walk(n.Operand, fn)
		for _, s := range n.Set {
			Walk(s, fn)
		}
	case *Conditional:
		Walk(n.Cond, fn)
		Walk(n.Then, fn)
	}
}

// Columns returns the column codes named by n in first-occurrence order.
// Ranges contribute their two endpoints; the codes in between depend on the
// table schema.
func Columns(n Node) []string {
	seen := make(map[string]bool)
	var out []string
	add := func(code string) {
		if !seen[code] {
			seen[code] = true
			out = append(out, code)
		}
	}
	Walk(n, func(n Node) bool {
		switch r := n.(type) {
		case *ColumnRef:
			add(r.Code)
		case *RangeRef:
			add(r.From)
			add(r.To)
		case *TupleRef:
			for _, c := range r.Codes {
				add(c)
			}
		}
		return true
	})
	return out
}

// Functions returns the built-in functions used by n in first-occurrence
// order. Conditionals report as "if" and membership tests as "in".
func Functions(n Node) []string {
	seen := make(map[string]bool)
	var out []string
	add := func(name string) {
		if !seen[name] {
			seen[name] = true
			out = append(out, name)
		}
	}
	Walk(n, func(n Node) bool {
		switch f := n.(type) {
		case *Call:
			add(f.Func)
		case *In:
			add(FuncIn)
		case *Conditional:
			add(FuncIf)
		}
		return true
	})
	return out
}

// Tables returns the table ids named by annotated references in n.
func Tables(n Node) []string {
	seen := make(map[string]bool)
	var out []string
	Walk(n, func(n Node) bool {
		var table string
		switch r := n.(type) {
		case *ColumnRef:
			table = r.Table
		case *RangeRef:
			table = r.Table
		case *TupleRef:
			table = r.Table
		}
		if table != "" && !seen[table] {
			seen[table] = true
			out = append(out, table)
		}
		return true
	})
	return out
}
