package expr

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"time"

	dekeerrors "github.com/relicta-tech/deke/internal/errors"
)

// DecodeContext decodes a JSON context document. Numbers are kept as
// json.Number so integers stay integers. Empty input decodes to nil.
func DecodeContext(data []byte) (any, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, nil
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var doc any
	if err := dec.Decode(&doc); err != nil {
		return nil, dekeerrors.Wrap(err, dekeerrors.KindLookup, "expr.DecodeContext", "invalid JSON context")
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil, dekeerrors.Lookup("expr.DecodeContext", "trailing data after JSON context")
	}
	return doc, nil
}

// FromJSON converts a decoded JSON value into an Expr. Strings convert
// only when they hold a datetime or a span; null and objects never do.
func FromJSON(v any) (Expr, error) {
	switch x := v.(type) {
	case nil:
		return nil, dekeerrors.Lookup("expr.FromJSON", "null has no expression value")
	case bool:
		return Bool(x), nil
	case json.Number:
		if i, err := x.Int64(); err == nil {
			return Int(i), nil
		}
		f, err := x.Float64()
		if err != nil {
			return nil, dekeerrors.LookupWrap(err, "expr.FromJSON", fmt.Sprintf("number %s out of range", x))
		}
		return NewFloat(f)
	case float64:
		return NewFloat(x)
	case int:
		return Int(x), nil
	case int64:
		return Int(x), nil
	case string:
		if t, err := parseDateTime(x); err == nil {
			return NewDateTime(t), nil
		}
		if sp, err := ParseSpan(x); err == nil {
			return sp, nil
		}
		return nil, dekeerrors.Lookup("expr.FromJSON",
			fmt.Sprintf("string %q is neither a datetime nor a span", x))
	case []any:
		elems := make([]Expr, len(x))
		for i, el := range x {
			if _, nested := el.([]any); nested {
				return nil, dekeerrors.Lookup("expr.FromJSON", fmt.Sprintf("nested array at index %d", i))
			}
			e, err := FromJSON(el)
			if err != nil {
				return nil, err
			}
			elems[i] = e
		}
		arr, err := checkedArray(elems)
		if err != nil {
			return nil, dekeerrors.LookupWrap(err, "expr.FromJSON", "array is not homogeneous")
		}
		return arr, nil
	case map[string]any:
		return nil, dekeerrors.Lookup("expr.FromJSON", "objects have no expression value")
	default:
		return nil, dekeerrors.Lookup("expr.FromJSON", fmt.Sprintf("unsupported JSON value %T", v))
	}
}

// ToJSON converts an evaluated Expr into a value encoding/json can marshal.
func ToJSON(e Expr) (any, error) {
	switch v := e.(type) {
	case Bool:
		return bool(v), nil
	case Int:
		return int64(v), nil
	case Float:
		if math.IsInf(v.v, 0) {
			return nil, dekeerrors.Type("expr.ToJSON", "infinite float has no JSON form")
		}
		return v.v, nil
	case DateTime:
		return v.t.Format(time.RFC3339Nano), nil
	case Span:
		return v.String(), nil
	case *Array:
		out := make([]any, len(v.Elems))
		for i, el := range v.Elems {
			j, err := ToJSON(el)
			if err != nil {
				return nil, err
			}
			out[i] = j
		}
		return out, nil
	default:
		return nil, dekeerrors.Type("expr.ToJSON", fmt.Sprintf("%s has no JSON form", describe(e)))
	}
}
