package expr

import (
	"fmt"

	dekeerrors "github.com/relicta-tech/deke/internal/errors"
)

// LanguageVersion is the version of the policy language this package
// implements. Policy sets may constrain it with a semver range.
const LanguageVersion = "0.1.0"

// Executor parses, resolves and evaluates policy programs. It holds no
// mutable state and may be shared between goroutines.
type Executor struct {
	env *Env
}

// NewExecutor creates an executor over the standard environment.
func NewExecutor() *Executor {
	return &Executor{env: Std()}
}

// Env returns the environment programs are evaluated in.
func (x *Executor) Env() *Env {
	return x.env
}

// Parse parses program against the executor's environment.
func (x *Executor) Parse(program string) (Expr, error) {
	tokens, err := NewLexer(program).Tokenize()
	if err != nil {
		return nil, err
	}
	return NewParser(tokens, x.env).Parse()
}

// Eval parses program, resolves its pointers against context and
// evaluates the result.
func (x *Executor) Eval(program string, context any) (Expr, error) {
	parsed, err := x.Parse(program)
	if err != nil {
		return nil, err
	}
	return x.EvalExpr(parsed, context)
}

// EvalExpr resolves and evaluates an already parsed program.
func (x *Executor) EvalExpr(parsed Expr, context any) (Expr, error) {
	resolved, err := ResolvePointers(parsed, context)
	if err != nil {
		return nil, err
	}
	return x.env.Visit(resolved)
}

// Run evaluates program and requires a boolean result.
func (x *Executor) Run(program string, context any) (bool, error) {
	v, err := x.Eval(program, context)
	if err != nil {
		return false, err
	}
	b, ok := v.(Bool)
	if !ok {
		return false, dekeerrors.New(dekeerrors.KindNotBool,
			fmt.Sprintf("policy did not return a bool, returned %s %s", describe(v), v)).
			WithDetail("result", v.String())
	}
	return bool(b), nil
}

// EvalBytes is Eval with a JSON-encoded context.
func (x *Executor) EvalBytes(program string, context []byte) (Expr, error) {
	doc, err := DecodeContext(context)
	if err != nil {
		return nil, err
	}
	return x.Eval(program, doc)
}

// RunBytes is Run with a JSON-encoded context.
func (x *Executor) RunBytes(program string, context []byte) (bool, error) {
	doc, err := DecodeContext(context)
	if err != nil {
		return false, err
	}
	return x.Run(program, doc)
}
