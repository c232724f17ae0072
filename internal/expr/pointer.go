package expr

import (
	"fmt"

	"github.com/go-openapi/jsonpointer"

	dekeerrors "github.com/relicta-tech/deke/internal/errors"
)

// ResolvePointers returns a copy of e in which every JSON pointer carries
// the context value it references. e itself is left untouched, so the
// unresolved tree stays available for explanations.
func ResolvePointers(e Expr, context any) (Expr, error) {
	switch n := e.(type) {
	case *JSONPointer:
		v, err := lookup(n.Pointer, context)
		if err != nil {
			return nil, err
		}
		return &JSONPointer{Pointer: n.Pointer, Value: v}, nil
	case *Array:
		elems, err := resolveAll(n.Elems, context)
		if err != nil {
			return nil, err
		}
		return &Array{Elems: elems}, nil
	case *Function:
		args, err := resolveAll(n.Args, context)
		if err != nil {
			return nil, err
		}
		return &Function{Ident: n.Ident, Args: args}, nil
	case *Lambda:
		args, err := resolveAll(n.Args, context)
		if err != nil {
			return nil, err
		}
		return &Lambda{Ident: n.Ident, Args: args}, nil
	default:
		return e, nil
	}
}

func resolveAll(exprs []Expr, context any) ([]Expr, error) {
	out := make([]Expr, len(exprs))
	for i, e := range exprs {
		r, err := ResolvePointers(e, context)
		if err != nil {
			return nil, err
		}
		out[i] = r
	}
	return out, nil
}

// lookup navigates context along an RFC 6901 path and converts the result.
func lookup(path string, context any) (Expr, error) {
	ptr, err := jsonpointer.New(path)
	if err != nil {
		return nil, lookupError(err, path, "invalid JSON pointer")
	}
	if context == nil && path != "" {
		return nil, lookupError(nil, path, "context is null")
	}
	v, _, err := ptr.Get(context)
	if err != nil {
		return nil, lookupError(err, path, "path not found in context")
	}
	e, err := FromJSON(v)
	if err != nil {
		return nil, lookupError(err, path, "cannot use context value")
	}
	return e, nil
}

func lookupError(err error, path, msg string) *dekeerrors.Error {
	full := fmt.Sprintf("%s: $%s", msg, path)
	if err == nil {
		return dekeerrors.Lookup("expr.ResolvePointers", full).WithDetail("pointer", "$"+path)
	}
	return dekeerrors.LookupWrap(err, "expr.ResolvePointers", full).WithDetail("pointer", "$"+path)
}
