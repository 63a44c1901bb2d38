package expr

import (
	"fmt"
	"strings"
)

// Node is a sealed interface for expression tree nodes.
// Only the node types declared in this file implement it.
type Node interface {
	exprNode()

	// Pos is the byte offset of the node's first token in the source.
	Pos() int

	// String renders the node in normalised expression syntax.
	String() string
}

// Expression is a parsed rule: the optional scope prefix and the body.
type Expression struct {
	Source  string
	Context *Context
	Body    Node
}

// Context is the parsed `with {table, default: V, interval: B}:` prefix.
type Context struct {
	Table string

	// Default is the literal given for `default:`; nil when absent.
	Default *Literal

	Interval    bool
	HasInterval bool
}

func (c *Context) String() string {
	parts := []string{c.Table}
	if c.Default != nil {
		parts = append(parts, "default: "+c.Default.String())
	}
	if c.HasInterval {
		parts = append(parts, fmt.Sprintf("interval: %t", c.Interval))
	}
	return "with {" + strings.Join(parts, ", ") + "}"
}

func (e *Expression) String() string {
	if e.Context != nil {
		return e.Context.String() + ": " + e.Body.String()
	}
	return e.Body.String()
}

// LiteralKind distinguishes literal values.
type LiteralKind int

const (
	LitNull LiteralKind = iota
	LitNumber
	LitString
	LitBool
)

// Literal is a number, string, boolean or null constant. The words `null`
// and `empty` and the quoted string "null" all produce LitNull.
type Literal struct {
	Kind LiteralKind
	Text string
	At   int
}

// ColumnRef is a single column reference: {c0020}, c0020, or the annotated
// form {tB_01.01, c0020}[get ERI].
type ColumnRef struct {
	Code  string
	Table string
	Label string
	At    int
}

// RangeRef is an inclusive column range: {c0020-0090} or c0100:c0110.
// From and To are full column codes.
type RangeRef struct {
	From  string
	To    string
	Table string
	Label string
	At    int
}

// TupleRef is an explicit ordered column list: {(c0020, c0040, c0050)}.
type TupleRef struct {
	Codes []string
	Table string
	Label string
	At    int
}

// CodeLiteral is a code-list value such as [eba_CO:x3].
type CodeLiteral struct {
	Namespace string
	Code      string
	At        int
}

// Not negates a boolean operand.
type Not struct {
	Operand Node
	At      int
}

// LogicOp is a binary boolean connective.
type LogicOp string

const (
	OpAnd LogicOp = "and"
	OpOr  LogicOp = "or"
)

// Logic combines two boolean operands.
type Logic struct {
	Op    LogicOp
	Left  Node
	Right Node
	At    int
}

// CompareOp is a relational operator.
type CompareOp string

const (
	OpEq CompareOp = "="
	OpNe CompareOp = "!="
	OpLt CompareOp = "<"
	OpLe CompareOp = "<="
	OpGt CompareOp = ">"
	OpGe CompareOp = ">="
)

// Compare relates two scalar operands.
type Compare struct {
	Op    CompareOp
	Left  Node
	Right Node
	At    int
}

// ArithOp is an arithmetic operator.
type ArithOp string

const (
	OpAdd ArithOp = "+"
	OpSub ArithOp = "-"
	OpMul ArithOp = "*"
	OpDiv ArithOp = "/"
)

// Arith applies an arithmetic operator to two numeric operands.
type Arith struct {
	Op    ArithOp
	Left  Node
	Right Node
	At    int
}

// Function names as reported by Functions.
const (
	FuncIsNull = "isnull"
	FuncMatch  = "match"
	FuncSum    = "SUM"
	FuncIn     = "in"
	FuncIf     = "if"
)

// Call is a built-in function application: isnull(x), match(x, "re"), SUM(range).
type Call struct {
	Func string
	Args []Node
	At   int
}

// In tests membership of Operand in a literal set: x in {[ns:a], [ns:b]}.
type In struct {
	Operand Node
	Set     []Node
	At      int
}

// Conditional is `if Cond then Then [endif]`.
type Conditional struct {
	Cond Node
	Then Node
	At   int
}

func (*Literal) exprNode()     {}
func (*ColumnRef) exprNode()   {}
func (*RangeRef) exprNode()    {}
func (*TupleRef) exprNode()    {}
func (*CodeLiteral) exprNode() {}
func (*Not) exprNode()         {}
func (*Logic) exprNode()       {}
func (*Compare) exprNode()     {}
func (*Arith) exprNode()       {}
func (*Call) exprNode()        {}
func (*In) exprNode()          {}
func (*Conditional) exprNode() {}

func (n *Literal) Pos() int     { return n.At }
func (n *ColumnRef) Pos() int   { return n.At }
func (n *RangeRef) Pos() int    { return n.At }
func (n *TupleRef) Pos() int    { return n.At }
func (n *CodeLiteral) Pos() int { return n.At }
func (n *Not) Pos() int         { return n.At }
func (n *Logic) Pos() int       { return n.At }
func (n *Compare) Pos() int     { return n.At }
func (n *Arith) Pos() int       { return n.At }
func (n *Call) Pos() int        { return n.At }
func (n *In) Pos() int          { return n.At }
func (n *Conditional) Pos() int { return n.At }

func (n *Literal) String() string {
	switch n.Kind {
	case LitNull:
		return "null"
	case LitString:
		return fmt.Sprintf("%q", n.Text)
	default:
		return n.Text
	}
}

func refSuffix(label string) string {
	if label == "" {
		return ""
	}
	return "[get " + label + "]"
}

func refPrefix(table string) string {
	if table == "" {
		return ""
	}
	return table + ", "
}

func (n *ColumnRef) String() string {
	return "{" + refPrefix(n.Table) + n.Code + "}" + refSuffix(n.Label)
}

func (n *RangeRef) String() string {
	return "{" + refPrefix(n.Table) + n.From + "-" + strings.TrimLeft(n.To, "cC") + "}" + refSuffix(n.Label)
}

func (n *TupleRef) String() string {
	return "{" + refPrefix(n.Table) + "(" + strings.Join(n.Codes, ", ") + ")}" + refSuffix(n.Label)
}

func (n *CodeLiteral) String() string {
	return "[" + n.Namespace + ":" + n.Code + "]"
}

func (n *Not) String() string {
	return "not(" + n.Operand.String() + ")"
}

func (n *Logic) String() string {
	return "(" + n.Left.String() + " " + string(n.Op) + " " + n.Right.String() + ")"
}

func (n *Compare) String() string {
	return n.Left.String() + " " + string(n.Op) + " " + n.Right.String()
}

func (n *Arith) String() string {
	return "(" + n.Left.String() + " " + string(n.Op) + " " + n.Right.String() + ")"
}

func (n *Call) String() string {
	args := make([]string, len(n.Args))
	for i, a := range n.Args {
		args[i] = a.String()
	}
	return n.Func + "(" + strings.Join(args, ", ") + ")"
}

func (n *In) String() string {
	set := make([]string, len(n.Set))
	for i, s := range n.Set {
		set[i] = s.String()
	}
	return n.Operand.String() + " in {" + strings.Join(set, ", ") + "}"
}

func (n *Conditional) String() string {
	return "if " + n.Cond.String() + " then " + n.Then.String() + " endif"
}

// IsReference reports whether n reads table cells directly.
func IsReference(n Node) bool {
	switch n.(type) {
	case *ColumnRef, *RangeRef, *TupleRef:
		return true
	}
	return false
}

// IsNullLiteral reports whether n is a null literal.
func IsNullLiteral(n Node) bool {
	lit, ok := n.(*Literal)
	return ok && lit.Kind == LitNull
}
