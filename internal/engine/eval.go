package engine

import (
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/text/unicode/norm"

	"github.com/roach88/dpmcheck/internal/compiler"
	"github.com/roach88/dpmcheck/internal/expr"
	"github.com/roach88/dpmcheck/internal/ir"
	"github.com/roach88/dpmcheck/internal/resolve"
)

// truth is a three-valued boolean. Unknown comes from null operands.
type truth int8

const (
	unknown truth = iota
	truthFalse
	truthTrue
)

func (t truth) not() truth {
	switch t {
	case truthTrue:
		return truthFalse
	case truthFalse:
		return truthTrue
	}
	return unknown
}

// Result is the outcome of one rule against one row.
type Result struct {
	Outcome ir.Outcome
	Message string

	// Err is set when Outcome is ir.OutcomeEvalError.
	Err *EvalError
}

// Evaluate checks a bound rule against one row.
//
// Evaluate is pure: it reads only the binding and the row, so the same
// inputs always give the same Result and calls may run concurrently. A
// verdict of unknown (a null operand reached the top) is a vacuous pass.
func Evaluate(b *resolve.Binding, row ir.Row) Result {
	e := evaluator{b: b, row: row}

	t, why, err := e.cond(b.Rule.Body())
	if err != nil {
		err.RuleID = b.Rule.ID
		err.TableID = b.Schema.TableID
		return Result{
			Outcome: ir.OutcomeEvalError,
			Message: fmt.Sprintf("%s: %s", err.Code, err.Message),
			Err:     err,
		}
	}
	if t == truthFalse {
		return Result{Outcome: ir.OutcomeFail, Message: why}
	}
	return Result{Outcome: ir.OutcomePass}
}

type evaluator struct {
	b   *resolve.Binding
	row ir.Row
}

// cond evaluates n as a condition. When the result is false, why explains
// which part failed.
func (e *evaluator) cond(n expr.Node) (truth, string, *EvalError) {
	switch n := n.(type) {
	case *expr.Literal:
		switch n.Kind {
		case expr.LitNull:
			return unknown, "", nil
		case expr.LitBool:
			if n.Text == "true" {
				return truthTrue, "", nil
			}
			return truthFalse, "false", nil
		}

	case *expr.Not:
		t, _, err := e.cond(n.Operand)
		if err != nil {
			return unknown, "", err
		}
		if t.not() == truthFalse {
			return truthFalse, negated(n.Operand), nil
		}
		return t.not(), "", nil

	case *expr.Logic:
		return e.logic(n)

	case *expr.Compare:
		return e.compare(n)

	case *expr.Call:
		switch n.Func {
		case expr.FuncIsNull:
			null, err := e.isNull(n.Args[0])
			if err != nil {
				return unknown, "", err
			}
			if !null {
				return truthFalse, n.Args[0].String() + " is not null", nil
			}
			return truthTrue, "", nil
		case expr.FuncMatch:
			return e.match(n)
		}

	case *expr.In:
		return e.in(n)

	case *expr.Conditional:
		c, _, err := e.cond(n.Cond)
		if err != nil {
			return unknown, "", err
		}
		if c != truthTrue {
			return truthTrue, "", nil
		}
		t, why, err := e.cond(n.Then)
		if err != nil {
			return unknown, "", err
		}
		if t == truthFalse {
			return truthFalse, why, nil
		}
		return t, "", nil
	}

	return unknown, "", newEvalError(ErrCodeTypeMismatch, n.String(),
		"%s is a value, not a condition", n.String())
}

func negated(n expr.Node) string {
	if call, ok := n.(*expr.Call); ok && call.Func == expr.FuncIsNull {
		return call.Args[0].String() + " is null"
	}
	return n.String() + " holds"
}

// logic applies Kleene and/or. A decisive left operand short-circuits.
func (e *evaluator) logic(n *expr.Logic) (truth, string, *EvalError) {
	l, lwhy, err := e.cond(n.Left)
	if err != nil {
		return unknown, "", err
	}

	switch n.Op {
	case expr.OpAnd:
		if l == truthFalse {
			return truthFalse, lwhy, nil
		}
		r, rwhy, err := e.cond(n.Right)
		if err != nil {
			return unknown, "", err
		}
		if r == truthFalse {
			return truthFalse, rwhy, nil
		}
		if l == truthTrue && r == truthTrue {
			return truthTrue, "", nil
		}
		return unknown, "", nil

	default:
		if l == truthTrue {
			return truthTrue, "", nil
		}
		r, rwhy, err := e.cond(n.Right)
		if err != nil {
			return unknown, "", err
		}
		if r == truthTrue {
			return truthTrue, "", nil
		}
		if l == truthFalse && r == truthFalse {
			return truthFalse, lwhy + "; " + rwhy, nil
		}
		return unknown, "", nil
	}
}

// isCondition reports whether n yields a condition rather than a value.
func isCondition(n expr.Node) bool {
	switch n := n.(type) {
	case *expr.Not, *expr.Logic, *expr.Compare, *expr.In, *expr.Conditional:
		return true
	case *expr.Call:
		return n.Func == expr.FuncIsNull || n.Func == expr.FuncMatch
	case *expr.Literal:
		return n.Kind == expr.LitBool
	}
	return false
}

func (e *evaluator) compare(n *expr.Compare) (truth, string, *EvalError) {
	if expr.IsNullLiteral(n.Left) || expr.IsNullLiteral(n.Right) {
		return e.nullity(n)
	}
	if isCondition(n.Left) || isCondition(n.Right) {
		return e.compareConditions(n)
	}

	l, ldef, err := e.operand(n.Left)
	if err != nil {
		return unknown, "", err
	}
	r, rdef, err := e.operand(n.Right)
	if err != nil {
		return unknown, "", err
	}
	// The default only stands in where it compares with the other side;
	// a null code cell against [ns:code] stays null.
	if ldef && !kindsMatch(l, r) {
		l = ir.Null{}
	}
	if rdef && !kindsMatch(r, l) {
		r = ir.Null{}
	}
	if ir.IsNull(l) || ir.IsNull(r) {
		return unknown, "", nil
	}

	c, err := e.order(n, l, r)
	if err != nil {
		return unknown, "", err
	}

	var ok bool
	switch n.Op {
	case expr.OpEq:
		ok = c == 0
	case expr.OpNe:
		ok = c != 0
	case expr.OpLt:
		ok = c < 0
	case expr.OpLe:
		ok = c <= 0
	case expr.OpGt:
		ok = c > 0
	case expr.OpGe:
		ok = c >= 0
	}
	if ok {
		return truthTrue, "", nil
	}

	switch n.Op {
	case expr.OpEq:
		return truthFalse, fmt.Sprintf("expected %s got %s", display(l), display(r)), nil
	case expr.OpNe:
		return truthFalse, fmt.Sprintf("expected %s to differ from %s", display(l), display(r)), nil
	}
	return truthFalse, fmt.Sprintf("expected %s %s %s", display(l), n.Op, display(r)), nil
}

// nullity handles `x = empty`, `x != "null"` and friends. These test the
// raw cell, so the rule default never hides a missing value.
func (e *evaluator) nullity(n *expr.Compare) (truth, string, *EvalError) {
	operand := n.Left
	if expr.IsNullLiteral(n.Left) {
		operand = n.Right
	}

	null := true
	if !expr.IsNullLiteral(operand) {
		var err *EvalError
		if null, err = e.isNull(operand); err != nil {
			return unknown, "", err
		}
	}

	switch n.Op {
	case expr.OpEq:
		if null {
			return truthTrue, "", nil
		}
		return truthFalse, operand.String() + " is not null", nil
	case expr.OpNe:
		if !null {
			return truthTrue, "", nil
		}
		return truthFalse, operand.String() + " is null", nil
	}
	// ordering against null is unknown
	return unknown, "", nil
}

func (e *evaluator) compareConditions(n *expr.Compare) (truth, string, *EvalError) {
	if n.Op != expr.OpEq && n.Op != expr.OpNe {
		return unknown, "", newEvalError(ErrCodeTypeMismatch, n.String(),
			"conditions are not ordered")
	}
	l, _, err := e.cond(n.Left)
	if err != nil {
		return unknown, "", err
	}
	r, _, err := e.cond(n.Right)
	if err != nil {
		return unknown, "", err
	}
	if l == unknown || r == unknown {
		return unknown, "", nil
	}
	if (l == r) == (n.Op == expr.OpEq) {
		return truthTrue, "", nil
	}
	return truthFalse, n.String() + " does not hold", nil
}

// order compares two non-null values: numerically when both are numbers,
// by code identity for code-list values, by NFC text otherwise.
func (e *evaluator) order(n *expr.Compare, l, r ir.Value) (int, *EvalError) {
	ln, lnum := ir.AsNumber(l)
	rn, rnum := ir.AsNumber(r)
	if lnum && rnum {
		return ln.Cmp(rn), nil
	}

	if l.Kind() == ir.KindCode || r.Kind() == ir.KindCode {
		if n.Op != expr.OpEq && n.Op != expr.OpNe {
			return 0, newEvalError(ErrCodeTypeMismatch, n.String(),
				"code-list values are not ordered")
		}
		lc, lok := resolve.CoerceCode(l)
		rc, rok := resolve.CoerceCode(r)
		if !lok || !rok {
			return 0, newEvalError(ErrCodeTypeMismatch, n.String(),
				"cannot compare %s with %s", describe(l), describe(r))
		}
		if e.b.Matcher().Equal(lc, rc) {
			return 0, nil
		}
		return 1, nil
	}

	if l.Kind() == ir.KindNumber || r.Kind() == ir.KindNumber {
		return 0, newEvalError(ErrCodeTypeMismatch, n.String(),
			"cannot compare %s with %s", describe(l), describe(r))
	}
	return strings.Compare(norm.NFC.String(l.String()), norm.NFC.String(r.String())), nil
}

// equal is exact equality per value kind; mismatched kinds are unequal.
func (e *evaluator) equal(a, b ir.Value) bool {
	if an, ok := ir.AsNumber(a); ok {
		bn, ok := ir.AsNumber(b)
		return ok && an.Cmp(bn) == 0
	}
	if a.Kind() == ir.KindCode || b.Kind() == ir.KindCode {
		ac, aok := resolve.CoerceCode(a)
		bc, bok := resolve.CoerceCode(b)
		return aok && bok && e.b.Matcher().Equal(ac, bc)
	}
	if a.Kind() != b.Kind() {
		return false
	}
	return norm.NFC.String(a.String()) == norm.NFC.String(b.String())
}

func (e *evaluator) in(n *expr.In) (truth, string, *EvalError) {
	v, def, err := e.operand(n.Operand)
	if err != nil {
		return unknown, "", err
	}
	if ir.IsNull(v) {
		return unknown, "", nil
	}
	members := make([]ir.Value, 0, len(n.Set))
	matchable := !def
	for _, member := range n.Set {
		m, err := e.value(member)
		if err != nil {
			return unknown, "", err
		}
		if ir.IsNull(m) {
			continue
		}
		members = append(members, m)
		matchable = matchable || kindsMatch(v, m)
	}
	if !matchable {
		return unknown, "", nil
	}
	for _, m := range members {
		if e.equal(v, m) {
			return truthTrue, "", nil
		}
	}
	set := make([]string, len(n.Set))
	for i, m := range n.Set {
		set[i] = m.String()
	}
	return truthFalse, fmt.Sprintf("%s is not one of {%s}", display(v), strings.Join(set, ", ")), nil
}

// match is true iff the value is non-null and its text fully matches the
// anchored pattern. A null value fails unless the binding skips nulls.
func (e *evaluator) match(n *expr.Call) (truth, string, *EvalError) {
	re, perr := e.b.Pattern(n)
	if perr != nil {
		return unknown, "", newEvalError(ErrCodeBadPattern, n.String(), "invalid pattern: %v", perr)
	}
	v, err := e.value(n.Args[0])
	if err != nil {
		return unknown, "", err
	}
	if ir.IsNull(v) {
		if e.b.SkipsNullMatch() {
			return unknown, "", nil
		}
		return truthFalse, n.Args[0].String() + " is null", nil
	}
	if !re.MatchString(v.String()) {
		return truthFalse, fmt.Sprintf("%s does not match %s", display(v), n.Args[1].String()), nil
	}
	return truthTrue, "", nil
}

// isNull tests raw cells. A range or tuple is null when every member is.
func (e *evaluator) isNull(n expr.Node) (bool, *EvalError) {
	if expr.IsReference(n) {
		codes, err := e.columns(n)
		if err != nil {
			return false, err
		}
		for _, code := range codes {
			if !ir.IsNull(e.b.Raw(e.row, code)) {
				return false, nil
			}
		}
		return true, nil
	}
	v, err := e.value(n)
	if err != nil {
		return false, err
	}
	return ir.IsNull(v), nil
}

func (e *evaluator) columns(n expr.Node) ([]string, *EvalError) {
	codes, ok := e.b.Columns(n)
	if !ok {
		return nil, newEvalError(ErrCodeUnknownColumn, n.String(),
			"%s is not bound to a column", n.String())
	}
	return codes, nil
}

// operand evaluates n as a comparison operand. def reports that n is a
// single cell whose null was replaced by the rule default.
func (e *evaluator) operand(n expr.Node) (ir.Value, bool, *EvalError) {
	v, err := e.value(n)
	if err != nil || !expr.IsReference(n) {
		return v, false, err
	}
	codes, _ := e.b.Columns(n)
	return v, e.b.Defaulted(e.row, codes[0]), nil
}

// kindsMatch reports whether order can compare a with b without a type
// mismatch. Null matches anything.
func kindsMatch(a, b ir.Value) bool {
	if ir.IsNull(a) || ir.IsNull(b) {
		return true
	}
	_, anum := ir.AsNumber(a)
	_, bnum := ir.AsNumber(b)
	if anum && bnum {
		return true
	}
	if a.Kind() == ir.KindCode || b.Kind() == ir.KindCode {
		_, aok := resolve.CoerceCode(a)
		_, bok := resolve.CoerceCode(b)
		return aok && bok
	}
	return a.Kind() != ir.KindNumber && b.Kind() != ir.KindNumber
}

// value evaluates n as a value. Cells read here get the rule default.
func (e *evaluator) value(n expr.Node) (ir.Value, *EvalError) {
	switch n := n.(type) {
	case *expr.Literal:
		v, err := compiler.LiteralValue(n)
		if err != nil {
			return nil, newEvalError(ErrCodeNonNumeric, n.String(), "%v", err)
		}
		return v, nil

	case *expr.CodeLiteral:
		return ir.Code{Namespace: n.Namespace, Code: n.Code}, nil

	case *expr.ColumnRef, *expr.RangeRef, *expr.TupleRef:
		codes, err := e.columns(n)
		if err != nil {
			return nil, err
		}
		if len(codes) != 1 {
			return nil, newEvalError(ErrCodeTypeMismatch, n.String(),
				"%s names %d columns where one value is expected", n.String(), len(codes))
		}
		return e.b.Value(e.row, codes[0]), nil

	case *expr.Arith:
		return e.arith(n)

	case *expr.Call:
		if n.Func == expr.FuncSum {
			return e.sum(n)
		}
	}

	return nil, newEvalError(ErrCodeTypeMismatch, n.String(),
		"%s is a condition, not a value", n.String())
}

func (e *evaluator) arith(n *expr.Arith) (ir.Value, *EvalError) {
	l, err := e.value(n.Left)
	if err != nil {
		return nil, err
	}
	r, err := e.value(n.Right)
	if err != nil {
		return nil, err
	}
	if ir.IsNull(l) || ir.IsNull(r) {
		return ir.Null{}, nil
	}

	ln, ok := ir.AsNumber(l)
	if !ok {
		return nil, nonNumeric(n.Left, l)
	}
	rn, ok := ir.AsNumber(r)
	if !ok {
		return nil, nonNumeric(n.Right, r)
	}

	var (
		out  ir.Number
		aerr error
	)
	switch n.Op {
	case expr.OpAdd:
		out, aerr = ln.Add(rn)
	case expr.OpSub:
		out, aerr = ln.Sub(rn)
	case expr.OpMul:
		out, aerr = ln.Mul(rn)
	case expr.OpDiv:
		if rn.IsZero() {
			return nil, newEvalError(ErrCodeDivisionByZero, n.String(),
				"%s is zero", n.Right.String())
		}
		out, aerr = ln.Quo(rn)
	}
	if aerr != nil {
		return nil, newEvalError(ErrCodeNonNumeric, n.String(), "%v", aerr)
	}
	return out, nil
}

// sum adds the member cells of a reference. Null cells count as zero; a
// non-numeric cell is an error rather than a silent zero.
func (e *evaluator) sum(n *expr.Call) (ir.Value, *EvalError) {
	arg := n.Args[0]
	if !expr.IsReference(arg) {
		v, err := e.value(arg)
		if err != nil || ir.IsNull(v) {
			return v, err
		}
		num, ok := ir.AsNumber(v)
		if !ok {
			return nil, nonNumeric(arg, v)
		}
		return num, nil
	}

	codes, err := e.columns(arg)
	if err != nil {
		return nil, err
	}
	total := ir.NumberFromInt(0)
	for _, code := range codes {
		v := e.b.Value(e.row, code)
		if ir.IsNull(v) {
			continue
		}
		num, ok := ir.AsNumber(v)
		if !ok {
			return nil, newEvalError(ErrCodeNonNumeric, n.String(),
				"column %s holds %s", code, describe(v))
		}
		var aerr error
		if total, aerr = total.Add(num); aerr != nil {
			return nil, newEvalError(ErrCodeNonNumeric, n.String(), "%v", aerr)
		}
	}
	return total, nil
}

func nonNumeric(n expr.Node, v ir.Value) *EvalError {
	return newEvalError(ErrCodeNonNumeric, n.String(), "%s is %s", n.String(), describe(v))
}

// display renders a value in a message: text quoted, the rest bare.
func display(v ir.Value) string {
	if t, ok := v.(ir.Text); ok {
		return strconv.Quote(string(t))
	}
	return v.String()
}

func describe(v ir.Value) string {
	switch v.Kind() {
	case ir.KindNumber:
		return "number " + v.String()
	case ir.KindCode:
		return "code " + v.String()
	case ir.KindText:
		return "text " + strconv.Quote(v.String())
	}
	return "null"
}
