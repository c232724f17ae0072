package expr

import (
	"sort"

	dekeerrors "github.com/relicta-tech/deke/internal/errors"
)

// Op implements a builtin. It receives the unevaluated arguments and
// evaluates them through env as it needs them.
type Op func(env *Env, args []Expr) (Expr, error)

// Binding is what an identifier resolves to: a *Func or a Var.
type Binding interface {
	binding()
}

// Func binds a name to a builtin with a fixed arity.
type Func struct {
	Name  Ident
	Arity int
	Op    Op
}

// Var binds a name to a value. No standard bindings are variables; the
// variant exists so that calling a value is reported as a kind mismatch.
type Var struct {
	Value Primitive
}

func (*Func) binding() {}
func (Var) binding()   {}

// Env maps identifiers to bindings. An Env is never mutated after
// construction, so one instance can serve concurrent evaluations.
type Env struct {
	bindings map[Ident]Binding
}

var stdEnv = newEnv(builtins())

// Std returns the standard environment holding every builtin.
func Std() *Env {
	return stdEnv
}

func newEnv(funcs []*Func, vars ...map[Ident]Primitive) *Env {
	env := &Env{bindings: make(map[Ident]Binding, len(funcs))}
	for _, f := range funcs {
		env.bindings[f.Name] = f
	}
	for _, m := range vars {
		for name, v := range m {
			env.bindings[name] = Var{Value: v}
		}
	}
	return env
}

// With returns a copy of env extended with the given variables.
func (env *Env) With(vars map[Ident]Primitive) *Env {
	out := &Env{bindings: make(map[Ident]Binding, len(env.bindings)+len(vars))}
	for name, b := range env.bindings {
		out.bindings[name] = b
	}
	for name, v := range vars {
		out.bindings[name] = Var{Value: v}
	}
	return out
}

// Get looks up a binding.
func (env *Env) Get(name Ident) (Binding, bool) {
	b, ok := env.bindings[name]
	return b, ok
}

// Arity returns the arity of a function binding.
func (env *Env) Arity(name Ident) (int, bool) {
	if f, ok := env.bindings[name].(*Func); ok {
		return f.Arity, true
	}
	return 0, false
}

// Names returns the bound identifiers in sorted order.
func (env *Env) Names() []Ident {
	names := make([]Ident, 0, len(env.bindings))
	for name := range env.bindings {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool { return names[i] < names[j] })
	return names
}

// call applies the named function to args.
func (env *Env) call(name Ident, args []Expr) (Expr, error) {
	b, ok := env.Get(name)
	if !ok {
		return nil, dekeerrors.New(dekeerrors.KindUnknownFunction, "unknown function: "+string(name)).
			WithDetail("function", string(name))
	}
	f, ok := b.(*Func)
	if !ok {
		return nil, dekeerrors.New(dekeerrors.KindKindMismatch, "expected function, found variable: "+string(name)).
			WithDetail("function", string(name))
	}
	return f.Op(env, args)
}
