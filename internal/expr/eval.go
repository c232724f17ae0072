package expr

import (
	"fmt"

	dekeerrors "github.com/relicta-tech/deke/internal/errors"
)

// Visit evaluates e, rewriting it until a value remains. Pointers must
// have been resolved by ResolvePointers first.
func (env *Env) Visit(e Expr) (Expr, error) {
	switch n := e.(type) {
	case Identifier:
		return env.visitIdentifier(n)
	case Bool, Int, Float, DateTime, Span:
		return n, nil
	case *Array:
		return env.visitArray(n)
	case *Function:
		return env.call(n.Ident, n.Args)
	case *Lambda:
		return env.visitLambda(n)
	case *JSONPointer:
		if n.Value == nil {
			return nil, dekeerrors.Internal("expr.Visit",
				fmt.Sprintf("JSON pointer %s reached evaluation unresolved; ResolvePointers must run first", n)).
				WithDetail("pointer", n.Pointer)
		}
		return n.Value, nil
	case nil:
		return nil, dekeerrors.Internal("expr.Visit", "nil expression")
	default:
		return nil, dekeerrors.Internal("expr.Visit", fmt.Sprintf("unhandled expression %T", e))
	}
}

func (env *Env) visitIdentifier(id Identifier) (Expr, error) {
	b, ok := env.Get(Ident(id))
	if !ok {
		return nil, dekeerrors.New(dekeerrors.KindKindMismatch,
			fmt.Sprintf("unresolved identifier %q used as a value", string(id))).
			WithDetail("identifier", string(id))
	}
	v, ok := b.(Var)
	if !ok {
		return nil, dekeerrors.New(dekeerrors.KindKindMismatch,
			fmt.Sprintf("expected value, found function %q", string(id))).
			WithDetail("identifier", string(id))
	}
	return v.Value, nil
}

func (env *Env) visitArray(a *Array) (Expr, error) {
	elems, err := env.visitAll(a.Elems)
	if err != nil {
		return nil, err
	}
	return checkedArray(elems)
}

// checkedArray wraps evaluated elements, requiring primitives of one kind.
func checkedArray(elems []Expr) (*Array, error) {
	var kind string
	for i, el := range elems {
		p, ok := el.(Primitive)
		if !ok {
			return nil, dekeerrors.Typef("expr.Array", "array element %d is %s, expected a primitive", i, describe(el))
		}
		if _, isIdent := p.(Identifier); isIdent {
			return nil, dekeerrors.Typef("expr.Array", "array element %d is an identifier", i)
		}
		k := numericKind(p.Kind())
		if kind == "" {
			kind = k
		} else if kind != k {
			return nil, dekeerrors.Typef("expr.Array", "array mixes %s and %s elements", kind, k)
		}
	}
	return &Array{Elems: elems}, nil
}

// visitLambda evaluates the bound arguments and keeps the lambda as a value.
func (env *Env) visitLambda(l *Lambda) (Expr, error) {
	args, err := env.visitAll(l.Args)
	if err != nil {
		return nil, err
	}
	return &Lambda{Ident: l.Ident, Args: args}, nil
}

func (env *Env) visitAll(args []Expr) ([]Expr, error) {
	out := make([]Expr, len(args))
	for i, a := range args {
		v, err := env.Visit(a)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

// apply calls l with x as the first argument.
func (env *Env) apply(l *Lambda, x Expr) (Expr, error) {
	args := make([]Expr, 0, len(l.Args)+1)
	args = append(args, x)
	args = append(args, l.Args...)
	return env.call(l.Ident, args)
}

// numericKind folds int and float together for homogeneity checks.
func numericKind(kind string) string {
	if kind == "int" || kind == "float" {
		return "number"
	}
	return kind
}

// KindOf names the kind of e as used in error messages.
func KindOf(e Expr) string {
	return describe(e)
}

func describe(e Expr) string {
	switch v := e.(type) {
	case Primitive:
		return v.Kind()
	case *Array:
		return "array"
	case *Lambda:
		return "lambda"
	case *Function:
		return "function call"
	case *JSONPointer:
		return "JSON pointer"
	default:
		return fmt.Sprintf("%T", e)
	}
}
