package expr

import (
	"fmt"
	"math"
	"sort"

	dekeerrors "github.com/relicta-tech/deke/internal/errors"
)

// builtins is the standard function table.
func builtins() []*Func {
	return []*Func{
		{Name: "eq", Arity: 2, Op: equality("eq", false)},
		{Name: "ne", Arity: 2, Op: equality("ne", true)},
		{Name: "neq", Arity: 2, Op: equality("neq", true)},
		{Name: "gt", Arity: 2, Op: ordering("gt", func(c int) bool { return c > 0 })},
		{Name: "lt", Arity: 2, Op: ordering("lt", func(c int) bool { return c < 0 })},
		{Name: "gte", Arity: 2, Op: ordering("gte", func(c int) bool { return c >= 0 })},
		{Name: "lte", Arity: 2, Op: ordering("lte", func(c int) bool { return c <= 0 })},

		{Name: "add", Arity: 2, Op: opAdd},
		{Name: "sub", Arity: 2, Op: opSub},
		{Name: "mul", Arity: 2, Op: opMul},
		{Name: "divz", Arity: 2, Op: opDivz},
		{Name: "duration", Arity: 2, Op: opDuration},

		{Name: "and", Arity: 2, Op: logical("and", func(a, b bool) bool { return a && b })},
		{Name: "or", Arity: 2, Op: logical("or", func(a, b bool) bool { return a || b })},
		{Name: "not", Arity: 1, Op: opNot},

		{Name: "max", Arity: 1, Op: extremum("max", func(a, b float64) bool { return a > b })},
		{Name: "min", Arity: 1, Op: extremum("min", func(a, b float64) bool { return a < b })},
		{Name: "avg", Arity: 1, Op: opAvg},
		{Name: "median", Arity: 1, Op: opMedian},
		{Name: "count", Arity: 1, Op: opCount},

		{Name: "all", Arity: 1, Op: quantifier("all", true, false)},
		{Name: "nall", Arity: 1, Op: quantifier("nall", true, true)},
		{Name: "some", Arity: 1, Op: quantifier("some", false, false)},
		{Name: "none", Arity: 1, Op: quantifier("none", false, true)},

		{Name: "filter", Arity: 2, Op: opFilter},
		{Name: "foreach", Arity: 2, Op: opForeach},
	}
}

// evalArgs checks arity and evaluates every argument.
func evalArgs(env *Env, name string, args []Expr, arity int) ([]Expr, error) {
	if len(args) != arity {
		return nil, dekeerrors.Typef("expr."+name, "%s expects %d argument(s), got %d", name, arity, len(args)).
			WithDetail("function", name)
	}
	return env.visitAll(args)
}

func badArgs(name, shape string, got ...Expr) *dekeerrors.Error {
	kinds := make([]any, len(got))
	for i, g := range got {
		kinds[i] = describe(g)
	}
	return dekeerrors.Typef("expr."+name, "%s expects %s, got %v", name, shape, kinds).
		WithDetail("function", name)
}

// number is an Int or Float operand after promotion.
type number struct {
	isFloat bool
	i       int64
	f       float64
}

func asNumber(e Expr) (number, bool) {
	switch v := e.(type) {
	case Int:
		return number{i: int64(v), f: float64(v)}, true
	case Float:
		return number{isFloat: true, f: v.v}, true
	}
	return number{}, false
}

func numbers(a, b Expr) (number, number, bool) {
	x, ok1 := asNumber(a)
	y, ok2 := asNumber(b)
	return x, y, ok1 && ok2
}

// floatResult rejects results with no literal form: NaN, and infinities
// from finite operands overflowing.
func floatResult(name string, f float64) (Expr, error) {
	if math.IsInf(f, 0) {
		return nil, dekeerrors.Typef("expr."+name, "%s: float overflow", name).WithDetail("function", name)
	}
	v, err := NewFloat(f)
	if err != nil {
		return nil, dekeerrors.Typef("expr."+name, "%s produced NaN", name).WithDetail("function", name)
	}
	return v, nil
}

func overflow(name string) *dekeerrors.Error {
	return dekeerrors.Typef("expr."+name, "%s: integer overflow", name).WithDetail("function", name)
}

func equal(name string, a, b Expr) (bool, error) {
	if x, y, ok := numbers(a, b); ok {
		if !x.isFloat && !y.isFloat {
			return x.i == y.i, nil
		}
		return x.f == y.f, nil
	}
	switch x := a.(type) {
	case Bool:
		if y, ok := b.(Bool); ok {
			return x == y, nil
		}
	case DateTime:
		if y, ok := b.(DateTime); ok {
			return x.t.Equal(y.t), nil
		}
	case Span:
		if y, ok := b.(Span); ok {
			return x == y, nil
		}
	}
	return false, badArgs(name, "two primitives of the same kind", a, b)
}

func equality(name string, negate bool) Op {
	return func(env *Env, args []Expr) (Expr, error) {
		vals, err := evalArgs(env, name, args, 2)
		if err != nil {
			return nil, err
		}
		eq, err := equal(name, vals[0], vals[1])
		if err != nil {
			return nil, err
		}
		return Bool(eq != negate), nil
	}
}

func compare(name string, a, b Expr) (int, error) {
	if x, y, ok := numbers(a, b); ok {
		if !x.isFloat && !y.isFloat {
			return cmp3(x.i < y.i, x.i > y.i), nil
		}
		return cmp3(x.f < y.f, x.f > y.f), nil
	}
	if x, ok := a.(DateTime); ok {
		if y, ok := b.(DateTime); ok {
			return x.t.Compare(y.t), nil
		}
	}
	return 0, badArgs(name, "two numbers or two datetimes", a, b)
}

func cmp3(less, greater bool) int {
	switch {
	case less:
		return -1
	case greater:
		return 1
	}
	return 0
}

func ordering(name string, holds func(int) bool) Op {
	return func(env *Env, args []Expr) (Expr, error) {
		vals, err := evalArgs(env, name, args, 2)
		if err != nil {
			return nil, err
		}
		c, err := compare(name, vals[0], vals[1])
		if err != nil {
			return nil, err
		}
		return Bool(holds(c)), nil
	}
}

func opAdd(env *Env, args []Expr) (Expr, error) {
	vals, err := evalArgs(env, "add", args, 2)
	if err != nil {
		return nil, err
	}
	a, b := vals[0], vals[1]
	if x, y, ok := numbers(a, b); ok {
		if !x.isFloat && !y.isFloat {
			s := x.i + y.i
			if (x.i > 0 && y.i > 0 && s < 0) || (x.i < 0 && y.i < 0 && s >= 0) {
				return nil, overflow("add")
			}
			return Int(s), nil
		}
		return floatResult("add", x.f+y.f)
	}
	switch x := a.(type) {
	case DateTime:
		if sp, ok := b.(Span); ok {
			return NewDateTime(sp.AddTo(x.t)), nil
		}
	case Span:
		if dt, ok := b.(DateTime); ok {
			return NewDateTime(x.AddTo(dt.t)), nil
		}
	}
	return nil, badArgs("add", "two numbers, or a datetime and a span", a, b)
}

func opSub(env *Env, args []Expr) (Expr, error) {
	vals, err := evalArgs(env, "sub", args, 2)
	if err != nil {
		return nil, err
	}
	a, b := vals[0], vals[1]
	if x, y, ok := numbers(a, b); ok {
		if !x.isFloat && !y.isFloat {
			d := x.i - y.i
			if (x.i >= 0 && y.i < 0 && d < 0) || (x.i < 0 && y.i > 0 && d >= 0) {
				return nil, overflow("sub")
			}
			return Int(d), nil
		}
		return floatResult("sub", x.f-y.f)
	}
	if dt, ok := a.(DateTime); ok {
		if sp, ok := b.(Span); ok {
			return NewDateTime(sp.Negate().AddTo(dt.t)), nil
		}
	}
	return nil, badArgs("sub", "two numbers, or a datetime and a span", a, b)
}

func opMul(env *Env, args []Expr) (Expr, error) {
	vals, err := evalArgs(env, "mul", args, 2)
	if err != nil {
		return nil, err
	}
	x, y, ok := numbers(vals[0], vals[1])
	if !ok {
		return nil, badArgs("mul", "two numbers", vals[0], vals[1])
	}
	if !x.isFloat && !y.isFloat {
		p := x.i * y.i
		if x.i != 0 && (p/x.i != y.i || (x.i == -1 && y.i == math.MinInt64)) {
			return nil, overflow("mul")
		}
		return Int(p), nil
	}
	return floatResult("mul", x.f*y.f)
}

// opDivz divides after promotion to float, yielding 0.0 for a zero divisor.
func opDivz(env *Env, args []Expr) (Expr, error) {
	vals, err := evalArgs(env, "divz", args, 2)
	if err != nil {
		return nil, err
	}
	x, y, ok := numbers(vals[0], vals[1])
	if !ok {
		return nil, badArgs("divz", "two numbers", vals[0], vals[1])
	}
	if y.f == 0 {
		return MustFloat(0), nil
	}
	return floatResult("divz", x.f/y.f)
}

func opDuration(env *Env, args []Expr) (Expr, error) {
	vals, err := evalArgs(env, "duration", args, 2)
	if err != nil {
		return nil, err
	}
	a, ok1 := vals[0].(DateTime)
	b, ok2 := vals[1].(DateTime)
	if !ok1 || !ok2 {
		return nil, badArgs("duration", "two datetimes", vals[0], vals[1])
	}
	return spanBetween(b.t, a.t), nil
}

func logical(name string, fn func(a, b bool) bool) Op {
	return func(env *Env, args []Expr) (Expr, error) {
		vals, err := evalArgs(env, name, args, 2)
		if err != nil {
			return nil, err
		}
		a, ok1 := vals[0].(Bool)
		b, ok2 := vals[1].(Bool)
		if !ok1 || !ok2 {
			return nil, badArgs(name, "two bools", vals[0], vals[1])
		}
		return Bool(fn(bool(a), bool(b))), nil
	}
}

func opNot(env *Env, args []Expr) (Expr, error) {
	vals, err := evalArgs(env, "not", args, 1)
	if err != nil {
		return nil, err
	}
	b, ok := vals[0].(Bool)
	if !ok {
		return nil, badArgs("not", "a bool", vals[0])
	}
	return !b, nil
}

// arrayArg evaluates the single array argument of an aggregate.
func arrayArg(env *Env, name string, args []Expr) (*Array, error) {
	vals, err := evalArgs(env, name, args, 1)
	if err != nil {
		return nil, err
	}
	arr, ok := vals[0].(*Array)
	if !ok {
		return nil, badArgs(name, "an array", vals[0])
	}
	return arr, nil
}

// numericArray evaluates an array argument whose elements must all be numbers.
func numericArray(env *Env, name string, args []Expr, allowEmpty bool) ([]number, error) {
	arr, err := arrayArg(env, name, args)
	if err != nil {
		return nil, err
	}
	if len(arr.Elems) == 0 && !allowEmpty {
		return nil, dekeerrors.Typef("expr."+name, "%s of an empty array", name).WithDetail("function", name)
	}
	out := make([]number, len(arr.Elems))
	for i, el := range arr.Elems {
		n, ok := asNumber(el)
		if !ok {
			return nil, badArgs(name, "an array of numbers", el)
		}
		out[i] = n
	}
	return out, nil
}

// extremum returns max or min; the result is a Float if any element is.
func extremum(name string, better func(a, b float64) bool) Op {
	return func(env *Env, args []Expr) (Expr, error) {
		nums, err := numericArray(env, name, args, false)
		if err != nil {
			return nil, err
		}
		best := nums[0]
		anyFloat := best.isFloat
		for _, n := range nums[1:] {
			anyFloat = anyFloat || n.isFloat
			if n.isFloat || best.isFloat {
				if better(n.f, best.f) {
					best = n
				}
			} else if better(float64(cmp3(n.i < best.i, n.i > best.i)), 0) {
				best = n
			}
		}
		if anyFloat {
			return floatResult(name, best.f)
		}
		return Int(best.i), nil
	}
}

func opAvg(env *Env, args []Expr) (Expr, error) {
	nums, err := numericArray(env, "avg", args, false)
	if err != nil {
		return nil, err
	}
	var sum float64
	for _, n := range nums {
		sum += n.f
	}
	return floatResult("avg", sum/float64(len(nums)))
}

func opMedian(env *Env, args []Expr) (Expr, error) {
	nums, err := numericArray(env, "median", args, false)
	if err != nil {
		return nil, err
	}
	fs := make([]float64, len(nums))
	for i, n := range nums {
		fs[i] = n.f
	}
	sort.Float64s(fs)
	mid := len(fs) / 2
	if len(fs)%2 == 1 {
		return floatResult("median", fs[mid])
	}
	return floatResult("median", (fs[mid-1]+fs[mid])/2)
}

func opCount(env *Env, args []Expr) (Expr, error) {
	arr, err := arrayArg(env, "count", args)
	if err != nil {
		return nil, err
	}
	return Int(len(arr.Elems)), nil
}

// quantifier implements all/some and their negations over an array of bools.
func quantifier(name string, every, negate bool) Op {
	return func(env *Env, args []Expr) (Expr, error) {
		arr, err := arrayArg(env, name, args)
		if err != nil {
			return nil, err
		}
		result := every
		for _, el := range arr.Elems {
			b, ok := el.(Bool)
			if !ok {
				return nil, badArgs(name, "an array of bools", el)
			}
			if bool(b) != every {
				result = !every
				break
			}
		}
		return Bool(result != negate), nil
	}
}

// lambdaAndArray evaluates the (lambda, array) arguments of a higher-order builtin.
func lambdaAndArray(env *Env, name string, args []Expr) (*Lambda, *Array, error) {
	vals, err := evalArgs(env, name, args, 2)
	if err != nil {
		return nil, nil, err
	}
	l, ok1 := vals[0].(*Lambda)
	arr, ok2 := vals[1].(*Array)
	if !ok1 || !ok2 {
		return nil, nil, badArgs(name, "a lambda and an array", vals[0], vals[1])
	}
	return l, arr, nil
}

func opFilter(env *Env, args []Expr) (Expr, error) {
	l, arr, err := lambdaAndArray(env, "filter", args)
	if err != nil {
		return nil, err
	}
	kept := make([]Expr, 0, len(arr.Elems))
	for _, el := range arr.Elems {
		v, err := env.apply(l, el)
		if err != nil {
			return nil, err
		}
		b, ok := v.(Bool)
		if !ok {
			return nil, dekeerrors.Typef("expr.filter", "filter predicate %s returned %s, expected bool", l, describe(v)).
				WithDetail("function", "filter")
		}
		if b {
			kept = append(kept, el)
		}
	}
	return &Array{Elems: kept}, nil
}

func opForeach(env *Env, args []Expr) (Expr, error) {
	l, arr, err := lambdaAndArray(env, "foreach", args)
	if err != nil {
		return nil, err
	}
	mapped := make([]Expr, len(arr.Elems))
	for i, el := range arr.Elems {
		v, err := env.apply(l, el)
		if err != nil {
			return nil, err
		}
		mapped[i] = v
	}
	out, err := checkedArray(mapped)
	if err != nil {
		return nil, fmt.Errorf("foreach %s: %w", l, err)
	}
	return out, nil
}
