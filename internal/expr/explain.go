package expr

import (
	"bytes"
	"encoding/json"
	"fmt"

	dekeerrors "github.com/relicta-tech/deke/internal/errors"
)

const noValue = "No value returned by query"

var operatorPhrases = map[Ident]string{
	"gt":  "greater than",
	"lt":  "less than",
	"gte": "greater than or equal to",
	"lte": "less than or equal to",
	"eq":  "equal to",
	"ne":  "not equal to",
	"neq": "not equal to",
}

// Explain describes in English why program failed for the given analysis
// value. label names what the value measures. A nil value means the
// analysis produced nothing.
//
// Threshold comparisons, percentages of filtered counts and counts of
// filtered arrays get a tailored sentence; anything else falls back to
// quoting the inner program.
func (x *Executor) Explain(program, label string, value json.RawMessage) (string, error) {
	parsed, err := x.Parse(program)
	if err != nil {
		return "", err
	}
	fn, ok := parsed.(*Function)
	if !ok {
		return "", dekeerrors.Explain("expr.Explain", "policy is not a function call").
			WithDetail("policy", program)
	}
	operator, err := operatorPhrase(fn.Ident)
	if err != nil {
		return "", err
	}
	if len(fn.Args) == 0 {
		return "", dekeerrors.Explain("expr.Explain", fmt.Sprintf("%s has no arguments", fn.Ident))
	}
	inner := fn.Args[0]
	threshold, err := primitivePhrase(fn.Args[len(fn.Args)-1])
	if err != nil {
		return "", err
	}

	if ptr, ok := inner.(*JSONPointer); ok && ptr.Pointer == "" {
		was := noValue
		if value != nil {
			was = compactJSON(value)
		}
		return fmt.Sprintf("expected %s to be %s %s, was %s", label, operator, threshold, was), nil
	}

	was := noValue
	if value != nil {
		doc, err := DecodeContext(value)
		if err != nil {
			return "", err
		}
		v, err := x.EvalExpr(inner, doc)
		if err != nil {
			return "", err
		}
		was = v.String()
	}

	if op, thr, ok := percentShape(inner); ok {
		return fmt.Sprintf("expected the percentage of %s %s %s to be %s %s, was %s",
			label, op, thr, operator, threshold, was), nil
	}
	if op, thr, ok := countShape(inner); ok {
		if op == operatorPhrases["eq"] && thr == "true" {
			return fmt.Sprintf("expected the number of %s to be %s %s, was %s",
				label, operator, threshold, was), nil
		}
		return fmt.Sprintf("expected the number of %s %s %s to be %s %s, was %s",
			label, op, thr, operator, threshold, was), nil
	}
	return fmt.Sprintf("expected the %s passed through %s to be %s %s, was %s",
		label, inner, operator, threshold, was), nil
}

func operatorPhrase(ident Ident) (string, error) {
	phrase, ok := operatorPhrases[ident]
	if !ok {
		return "", dekeerrors.Explain("expr.Explain",
			fmt.Sprintf("%s does not return a bool and cannot head a policy", ident)).
			WithDetail("function", string(ident))
	}
	return phrase, nil
}

func primitivePhrase(e Expr) (string, error) {
	switch v := e.(type) {
	case Bool:
		if v {
			return "true", nil
		}
		return "false", nil
	case Int, Float, DateTime, Span:
		return v.String(), nil
	}
	return "", dekeerrors.Explain("expr.Explain",
		fmt.Sprintf("threshold %s is not a literal", e)).WithDetail("threshold", e.String())
}

// percentShape matches (divz (count (filter (OP T) ...)) (count $)).
func percentShape(e Expr) (string, string, bool) {
	div, ok := e.(*Function)
	if !ok || div.Ident != "divz" || len(div.Args) != 2 {
		return "", "", false
	}
	if div.Args[1].String() != "(count $)" {
		return "", "", false
	}
	return countShape(div.Args[0])
}

// countShape matches (count (filter (OP T) ...)).
func countShape(e Expr) (string, string, bool) {
	count, ok := e.(*Function)
	if !ok || count.Ident != "count" || len(count.Args) == 0 {
		return "", "", false
	}
	filter, ok := count.Args[0].(*Function)
	if !ok || filter.Ident != "filter" || len(filter.Args) == 0 {
		return "", "", false
	}
	ident, args, ok := callParts(filter.Args[0])
	if !ok || len(args) == 0 {
		return "", "", false
	}
	op, err := operatorPhrase(ident)
	if err != nil {
		return "", "", false
	}
	thr, err := primitivePhrase(args[0])
	if err != nil {
		return "", "", false
	}
	return op, thr, true
}

func callParts(e Expr) (Ident, []Expr, bool) {
	switch n := e.(type) {
	case *Lambda:
		return n.Ident, n.Args, true
	case *Function:
		return n.Ident, n.Args, true
	}
	return "", nil, false
}

func compactJSON(raw json.RawMessage) string {
	var buf bytes.Buffer
	if err := json.Compact(&buf, raw); err != nil {
		return string(raw)
	}
	return buf.String()
}
