package errors

import (
	"context"
	"errors"
	"fmt"
	"testing"
)

func TestErrorKind(t *testing.T) {
	tests := []struct {
		name string
		err  *Error
		want Kind
	}{
		{"lex error", Lex("test", "msg"), KindLex},
		{"parse error", Parse("test", "msg"), KindParse},
		{"lookup error", Lookup("test", "msg"), KindLookup},
		{"type error", Type("test", "msg"), KindType},
		{"formatted type error", Typef("test", "%d args", 2), KindType},
		{"explain error", Explain("test", "msg"), KindExplain},
		{"internal error", Internal("test", "msg"), KindInternal},
		{"config error", Config("test", "msg"), KindConfig},
		{"validation error", Validation("test", "msg"), KindValidation},
		{"not found error", NotFound("test", "msg"), KindNotFound},
		{"io error", IO("test", "msg"), KindIO},
		{"canceled error", Canceled(context.Canceled, "test"), KindCanceled},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.err.Kind != tt.want {
				t.Errorf("Error kind = %v, want %v", tt.err.Kind, tt.want)
			}
		})
	}
}

func TestGetKind(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Kind
	}{
		{"nil error", nil, KindUnknown},
		{"standard error", errors.New("test"), KindUnknown},
		{"custom error", Config("op", "msg"), KindConfig},
		{"wrapped custom error", ConfigWrap(errors.New("inner"), "op", "msg"), KindConfig},
		{"fmt wrapped", fmt.Errorf("outer: %w", Lookup("op", "msg")), KindLookup},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := GetKind(tt.err)
			if got != tt.want {
				t.Errorf("GetKind() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestErrorWithDetail(t *testing.T) {
	err := Lookup("op", "msg").WithDetail("pointer", "/a/b")

	v, ok := err.Detail("pointer")
	if !ok || v != "/a/b" {
		t.Errorf("Detail(pointer) = %v, %v; want /a/b, true", v, ok)
	}
	if _, ok := err.Detail("missing"); ok {
		t.Errorf("Detail(missing) should not be present")
	}
}

func TestKindString(t *testing.T) {
	tests := []struct {
		kind Kind
		want string
	}{
		{KindUnknown, "unknown"},
		{KindLex, "lex"},
		{KindParse, "parse"},
		{KindUnknownFunction, "unknown_function"},
		{KindKindMismatch, "kind_mismatch"},
		{KindLookup, "lookup"},
		{KindType, "type"},
		{KindNotBool, "not_bool"},
		{KindInternal, "internal"},
		{KindExplain, "explain"},
		{KindConfig, "configuration"},
		{KindIO, "io"},
		{KindValidation, "validation"},
		{KindNotFound, "not_found"},
		{KindCanceled, "canceled"},
		{Kind(255), "unknown"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			got := tt.kind.String()
			if got != tt.want {
				t.Errorf("Kind.String() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestErrorError(t *testing.T) {
	tests := []struct {
		name string
		err  *Error
		want string
	}{
		{
			name: "with op and message only",
			err:  &Error{Op: "TestOp", Message: "test message"},
			want: "TestOp: test message",
		},
		{
			name: "with op, message, and underlying error",
			err:  &Error{Op: "TestOp", Message: "test message", Err: errors.New("underlying error")},
			want: "TestOp: test message: underlying error",
		},
		{
			name: "message only (no op)",
			err:  &Error{Message: "test message"},
			want: "test message",
		},
		{
			name: "message with underlying error (no op)",
			err:  &Error{Message: "test message", Err: errors.New("underlying error")},
			want: "test message: underlying error",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.err.Error()
			if got != tt.want {
				t.Errorf("Error.Error() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestErrorUnwrap(t *testing.T) {
	underlyingErr := errors.New("underlying error")
	err := &Error{Op: "TestOp", Message: "test message", Err: underlyingErr}

	if err.Unwrap() != underlyingErr {
		t.Errorf("Unwrap() = %v, want %v", err.Unwrap(), underlyingErr)
	}

	errNoUnderlying := &Error{Op: "TestOp", Message: "test message"}
	if errNoUnderlying.Unwrap() != nil {
		t.Errorf("Unwrap() of error without underlying error should return nil")
	}
}

func TestErrorIs(t *testing.T) {
	tests := []struct {
		name   string
		err    *Error
		target error
		want   bool
	}{
		{"match by kind only (sentinel pattern)", Parse("op", "msg"), &Error{Kind: KindParse}, true},
		{"match by kind and op", Parse("op", "msg"), Parse("op", "different msg"), true},
		{"different kind", Parse("op", "msg"), &Error{Kind: KindLex}, false},
		{"same kind different op", Parse("op1", "msg"), Parse("op2", "msg"), false},
		{"non-Error target", Parse("op", "msg"), errors.New("standard error"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := errors.Is(tt.err, tt.target); got != tt.want {
				t.Errorf("errors.Is() = %v, want %v", got, tt.want)
			}
		})
	}
}

