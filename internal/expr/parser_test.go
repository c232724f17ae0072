package expr

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dekeerrors "github.com/relicta-tech/deke/internal/errors"
)

func TestParse_Primitives(t *testing.T) {
	tests := []struct {
		input    string
		expected Expr
	}{
		{"#t", Bool(true)},
		{"42", Int(42)},
		{"2.5", MustFloat(2.5)},
		{"P1w", Span{Weeks: 1}},
		{"foo", Identifier("foo")},
		{"$", &JSONPointer{Pointer: ""}},
		{"$/a/b", &JSONPointer{Pointer: "/a/b"}},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := Parse(tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, got)
		})
	}
}

func TestParse_FunctionCall(t *testing.T) {
	got, err := Parse("(eq (add 1 2) 3)")
	require.NoError(t, err)

	expected := &Function{
		Ident: "eq",
		Args: []Expr{
			&Function{Ident: "add", Args: []Expr{Int(1), Int(2)}},
			Int(3),
		},
	}
	assert.Equal(t, expected, got)
}

func TestParse_LambdaByArity(t *testing.T) {
	got, err := Parse("(filter (gt 8.0) [1.0 9.0])")
	require.NoError(t, err)

	fn, ok := got.(*Function)
	require.True(t, ok)
	assert.Equal(t, Ident("filter"), fn.Ident)

	lambda, ok := fn.Args[0].(*Lambda)
	require.True(t, ok, "expected lambda, got %T", fn.Args[0])
	assert.Equal(t, Ident("gt"), lambda.Ident)
	assert.Equal(t, []Expr{MustFloat(8.0)}, lambda.Args)

	arr, ok := fn.Args[1].(*Array)
	require.True(t, ok)
	assert.Len(t, arr.Elems, 2)
}

func TestParse_UnknownHeadIsFunction(t *testing.T) {
	got, err := Parse("(frobnicate 1)")
	require.NoError(t, err)
	assert.IsType(t, &Function{}, got)
}

func TestParse_FullArityIsFunction(t *testing.T) {
	got, err := Parse("(gt 9 8)")
	require.NoError(t, err)
	assert.IsType(t, &Function{}, got)
}

func TestParse_CustomEnvDecidesArity(t *testing.T) {
	env := newEnv([]*Func{{Name: "gt", Arity: 3}})
	tokens, err := NewLexer("(gt 1 2)").Tokenize()
	require.NoError(t, err)

	got, err := NewParser(tokens, env).Parse()
	require.NoError(t, err)
	assert.IsType(t, &Lambda{}, got)
}

func TestParse_Errors(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"empty program", "", "expression"},
		{"empty call", "()", "IDENT"},
		{"literal head", "(1 2)", "IDENT"},
		{"unclosed call", "(add 1", ")"},
		{"unclosed array", "[1 2", "]"},
		{"stray close", ")", "expression"},
		{"trailing tokens", "#t #f", "EOF"},
		{"trailing close", "(not #t))", "EOF"},
		{"partial builtin in array", "[(gt)]", "value"},
		{"partially applied builtin in array", "[1 (add 1)]", "value"},
		{"bare identifier in array", "[gt]", "value"},
		{"nested array with bare identifier", "[[1] [max]]", "value"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(tt.input)
			require.Error(t, err)
			require.True(t, dekeerrors.IsKind(err, dekeerrors.KindParse), "got %v", err)

			var e *dekeerrors.Error
			require.True(t, dekeerrors.As(err, &e))
			expected, _ := e.Detail("expected")
			assert.Equal(t, tt.expected, expected)
		})
	}
}

func TestParse_ArrayErrorPointsAtElement(t *testing.T) {
	_, err := Parse("[1\n  (gt)]")
	require.Error(t, err)

	var e *dekeerrors.Error
	require.True(t, dekeerrors.As(err, &e))
	line, _ := e.Detail("line")
	column, _ := e.Detail("column")
	assert.Equal(t, 2, line)
	assert.Equal(t, 3, column)
}

func TestParse_ArrayOfCallsIsValid(t *testing.T) {
	got, err := Parse("[(add 1 2) (count [1])]")
	require.NoError(t, err)
	arr, ok := got.(*Array)
	require.True(t, ok)
	assert.Len(t, arr.Elems, 2)
}

func TestParse_LexErrorPropagates(t *testing.T) {
	_, err := Parse("(gt $ #maybe)")
	require.Error(t, err)
	assert.True(t, dekeerrors.IsKind(err, dekeerrors.KindLex))
}

func TestParse_DeepNestingFails(t *testing.T) {
	program := strings.Repeat("(not ", 1000) + "#t" + strings.Repeat(")", 1000)
	_, err := Parse(program)
	require.Error(t, err)
	assert.True(t, dekeerrors.IsKind(err, dekeerrors.KindParse))
}

func TestParse_StringRoundTrip(t *testing.T) {
	programs := []string{
		"#t",
		"$",
		"$/a/0",
		"(eq (add 1 2) 3)",
		"(eq 3 (count (filter (gt 8.0) (foreach (sub 1.0) [1.0 2.0 10.0 20.0 30.0]))))",
		"(add 2024-09-26 P1W)",
		"(add 2024-09-26 -P1DT2H)",
		"(lte (divz (count (filter (eq #f) $)) (count $)) 0.05)",
		"(gt 2024-09-26T10:30:00Z 2024-09-26)",
		"[]",
	}

	for _, program := range programs {
		t.Run(program, func(t *testing.T) {
			parsed, err := Parse(program)
			require.NoError(t, err)
			assert.Equal(t, program, parsed.String())

			again, err := Parse(parsed.String())
			require.NoError(t, err)
			assert.Equal(t, parsed, again)
		})
	}
}
