package expr

import (
	"math"
	"strconv"
	"strings"
	"time"

	dekeerrors "github.com/relicta-tech/deke/internal/errors"
)

// Expr is a node of a parsed policy. The set of variants is closed:
// Bool, Int, Float, DateTime, Span, Identifier, *Array, *Function,
// *Lambda and *JSONPointer.
//
// String renders the node as program text that parses back to the same node.
type Expr interface {
	String() string
	expr()
}

// Primitive is a scalar Expr.
type Primitive interface {
	Expr
	// Kind names the primitive kind for diagnostics.
	Kind() string
	primitive()
}

// Ident is a function or variable name.
type Ident string

// Bool is a boolean primitive, written #t or #f.
type Bool bool

// Int is a 64-bit signed integer primitive.
type Int int64

// Float is a 64-bit float primitive that is never NaN.
// Construct it with NewFloat.
type Float struct {
	v float64
}

// DateTime is a point in time, kept in UTC.
type DateTime struct {
	t time.Time
}

// Identifier is a name used in value position. It is only valid as the
// head of a call; reaching the end of evaluation with one is an error.
type Identifier string

// Array is an ordered sequence of expressions. After evaluation every
// element is a primitive and all elements share a kind (Int and Float may mix).
type Array struct {
	Elems []Expr
}

// Function is a call of a named builtin.
type Function struct {
	Ident Ident
	Args  []Expr
}

// Lambda is a partially applied builtin: the trailing arguments are bound
// and the first is supplied by a higher-order builtin such as filter.
type Lambda struct {
	Ident Ident
	Args  []Expr
}

// JSONPointer references a location in the context document. Pointer is
// the RFC 6901 path after the leading '$' ("" for the whole document).
// Value is nil until ResolvePointers has run.
type JSONPointer struct {
	Pointer string
	Value   Expr
}

// NewFloat returns a Float, failing if f is NaN.
func NewFloat(f float64) (Float, error) {
	if math.IsNaN(f) {
		return Float{}, dekeerrors.Type("expr.NewFloat", "float value is NaN")
	}
	return Float{v: f}, nil
}

// MustFloat is NewFloat for constants known not to be NaN.
func MustFloat(f float64) Float {
	v, err := NewFloat(f)
	if err != nil {
		panic(err)
	}
	return v
}

// Float64 returns the underlying value.
func (f Float) Float64() float64 { return f.v }

// NewDateTime returns a DateTime for t converted to UTC.
func NewDateTime(t time.Time) DateTime {
	return DateTime{t: t.UTC()}
}

// Time returns the underlying time.
func (d DateTime) Time() time.Time { return d.t }

// NewArray builds an Array from primitives.
func NewArray[P Primitive](elems ...P) *Array {
	out := make([]Expr, len(elems))
	for i, e := range elems {
		out[i] = e
	}
	return &Array{Elems: out}
}

func (Bool) expr()         {}
func (Int) expr()          {}
func (Float) expr()        {}
func (DateTime) expr()     {}
func (Span) expr()         {}
func (Identifier) expr()   {}
func (*Array) expr()       {}
func (*Function) expr()    {}
func (*Lambda) expr()      {}
func (*JSONPointer) expr() {}

func (Bool) primitive()       {}
func (Int) primitive()        {}
func (Float) primitive()      {}
func (DateTime) primitive()   {}
func (Span) primitive()       {}
func (Identifier) primitive() {}

func (Bool) Kind() string       { return "bool" }
func (Int) Kind() string        { return "int" }
func (Float) Kind() string      { return "float" }
func (DateTime) Kind() string   { return "datetime" }
func (Span) Kind() string       { return "span" }
func (Identifier) Kind() string { return "identifier" }

func (b Bool) String() string {
	if b {
		return "#t"
	}
	return "#f"
}

func (i Int) String() string {
	return strconv.FormatInt(int64(i), 10)
}

// String always includes a decimal point or exponent so the literal
// lexes back as a float.
func (f Float) String() string {
	s := strconv.FormatFloat(f.v, 'g', -1, 64)
	if math.IsInf(f.v, 0) {
		return s
	}
	if !strings.ContainsAny(s, ".eE") {
		s += ".0"
	}
	return s
}

func (d DateTime) String() string {
	if d.t.Hour() == 0 && d.t.Minute() == 0 && d.t.Second() == 0 && d.t.Nanosecond() == 0 {
		return d.t.Format(time.DateOnly)
	}
	return d.t.Format(time.RFC3339Nano)
}

func (i Identifier) String() string {
	return string(i)
}

func (a *Array) String() string {
	return "[" + joinExprs(a.Elems) + "]"
}

func (f *Function) String() string {
	return callString(f.Ident, f.Args)
}

func (l *Lambda) String() string {
	return callString(l.Ident, l.Args)
}

func (p *JSONPointer) String() string {
	return "$" + p.Pointer
}

func callString(ident Ident, args []Expr) string {
	if len(args) == 0 {
		return "(" + string(ident) + ")"
	}
	return "(" + string(ident) + " " + joinExprs(args) + ")"
}

func joinExprs(elems []Expr) string {
	parts := make([]string, len(elems))
	for i, e := range elems {
		parts[i] = e.String()
	}
	return strings.Join(parts, " ")
}
