// Package expr implements deke, a small S-expression language for
// writing pass/fail policies over JSON analysis results.
//
// A program such as
//
//	(lte (divz (count (filter (eq #f) $)) (count $)) 0.05)
//
// is evaluated in three strictly ordered steps: Parse builds an Expr tree,
// ResolvePointers copies that tree with every $-pointer bound to a value
// from the context document, and (*Env).Visit reduces the copy to a value.
// The unresolved tree is left intact so Explain can recognize its shape.
//
// Builtins called with fewer arguments than their arity parse as a Lambda.
// Higher-order builtins supply the element as the first argument, so
// (filter (gt 8.0) xs) keeps the elements greater than 8.0.
package expr
