package ir

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/cockroachdb/apd/v3"
)

// ValueKind names the kind of a cell or literal value.
type ValueKind string

const (
	KindNull   ValueKind = "null"
	KindNumber ValueKind = "number"
	KindText   ValueKind = "text"
	KindCode   ValueKind = "code"
)

// Value is a sealed interface over cell and literal values.
// Only Null, Number, Text and Code implement it. Null is distinct from
// Text("") and from a zero Number.
type Value interface {
	irValue()
	Kind() ValueKind
	String() string
}

// Null is the absent value. A row that has no entry for a column reads as Null.
type Null struct{}

func (Null) irValue()        {}
func (Null) Kind() ValueKind { return KindNull }
func (Null) String() string  { return "null" }

// Number is an exact decimal. Arithmetic never goes through float64 so that
// column sums compare exactly against declared totals.
type Number struct {
	d *apd.Decimal
}

func (Number) irValue()        {}
func (Number) Kind() ValueKind { return KindNumber }

// String renders the number without exponent and without trailing zeros.
func (n Number) String() string {
	var r apd.Decimal
	r.Reduce(n.dec())
	return r.Text('f')
}

// Text is a string cell or literal.
type Text string

func (Text) irValue()         {}
func (Text) Kind() ValueKind  { return KindText }
func (t Text) String() string { return string(t) }

// Code is a code-list value such as [eba_CO:x3].
type Code struct {
	Namespace string
	Code      string
}

func (Code) irValue()        {}
func (Code) Kind() ValueKind { return KindCode }

func (c Code) String() string {
	return "[" + c.Namespace + ":" + c.Code + "]"
}

// decimalContext is shared read-only by all arithmetic. apd contexts are
// configuration only, so concurrent use is safe.
var decimalContext = apd.BaseContext.WithPrecision(34)

// ParseNumber parses a finite decimal number.
func ParseNumber(s string) (Number, error) {
	d, _, err := apd.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return Number{}, fmt.Errorf("invalid number %q: %w", s, err)
	}
	if d.Form != apd.Finite {
		return Number{}, fmt.Errorf("invalid number %q: not finite", s)
	}
	return Number{d: d}, nil
}

// MustNumber is like ParseNumber but panics on error.
// Use only in tests or with literal inputs.
func MustNumber(s string) Number {
	n, err := ParseNumber(s)
	if err != nil {
		panic(err)
	}
	return n
}

// NumberFromInt returns the Number for i.
func NumberFromInt(i int64) Number {
	return Number{d: apd.New(i, 0)}
}

func (n Number) dec() *apd.Decimal {
	if n.d == nil {
		return new(apd.Decimal)
	}
	return n.d
}

// Cmp compares n and m, returning -1, 0 or +1.
func (n Number) Cmp(m Number) int {
	return n.dec().Cmp(m.dec())
}

// IsZero reports whether n equals zero.
func (n Number) IsZero() bool {
	return n.dec().IsZero()
}

// Add returns n + m.
func (n Number) Add(m Number) (Number, error) {
	return n.apply(m, decimalContext.Add)
}

// Sub returns n - m.
func (n Number) Sub(m Number) (Number, error) {
	return n.apply(m, decimalContext.Sub)
}

// Mul returns n * m.
func (n Number) Mul(m Number) (Number, error) {
	return n.apply(m, decimalContext.Mul)
}

// Quo returns n / m. Division by zero is an error.
func (n Number) Quo(m Number) (Number, error) {
	if m.IsZero() {
		return Number{}, fmt.Errorf("division by zero")
	}
	return n.apply(m, decimalContext.Quo)
}

func (n Number) apply(m Number, op func(d, x, y *apd.Decimal) (apd.Condition, error)) (Number, error) {
	out := new(apd.Decimal)
	if _, err := op(out, n.dec(), m.dec()); err != nil {
		return Number{}, err
	}
	return Number{d: out}, nil
}

// ParseCode parses "[ns:code]" or "ns:code". Both parts must be non-empty
// and free of whitespace.
func ParseCode(s string) (Code, bool) {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "[") && strings.HasSuffix(s, "]") {
		s = strings.TrimSpace(s[1 : len(s)-1])
	}
	ns, code, ok := strings.Cut(s, ":")
	if !ok || ns == "" || code == "" || strings.ContainsAny(s, " \t\r\n") {
		return Code{}, false
	}
	return Code{Namespace: ns, Code: code}, true
}

// IsNull reports whether v is absent or Null.
func IsNull(v Value) bool {
	return v == nil || v.Kind() == KindNull
}

// AsNumber returns v as a Number. Text that parses as a decimal counts.
func AsNumber(v Value) (Number, bool) {
	switch val := v.(type) {
	case Number:
		return val, true
	case Text:
		if strings.TrimSpace(string(val)) == "" {
			return Number{}, false
		}
		n, err := ParseNumber(string(val))
		if err != nil {
			return Number{}, false
		}
		return n, true
	}
	return Number{}, false
}

// ValueFromAny converts a decoded YAML/JSON scalar to a Value.
func ValueFromAny(x any) (Value, error) {
	switch val := x.(type) {
	case nil:
		return Null{}, nil
	case Value:
		return val, nil
	case string:
		return Text(val), nil
	case int:
		return NumberFromInt(int64(val)), nil
	case int64:
		return NumberFromInt(val), nil
	case uint64:
		return ParseNumber(strconv.FormatUint(val, 10))
	case float64:
		return ParseNumber(strconv.FormatFloat(val, 'f', -1, 64))
	case bool:
		return Text(strconv.FormatBool(val)), nil
	default:
		return nil, fmt.Errorf("unsupported cell value type %T", x)
	}
}

// EncodeValue splits v into a kind tag and a text payload for storage.
func EncodeValue(v Value) (ValueKind, string) {
	if IsNull(v) {
		return KindNull, ""
	}
	switch val := v.(type) {
	case Code:
		return KindCode, val.Namespace + ":" + val.Code
	default:
		return v.Kind(), v.String()
	}
}

// DecodeValue is the inverse of EncodeValue.
func DecodeValue(kind ValueKind, text string) (Value, error) {
	switch kind {
	case KindNull:
		return Null{}, nil
	case KindNumber:
		return ParseNumber(text)
	case KindText:
		return Text(text), nil
	case KindCode:
		c, ok := ParseCode(text)
		if !ok {
			return nil, fmt.Errorf("invalid code %q", text)
		}
		return c, nil
	default:
		return nil, fmt.Errorf("unknown value kind %q", kind)
	}
}
