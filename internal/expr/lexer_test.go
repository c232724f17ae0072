package expr

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dekeerrors "github.com/relicta-tech/deke/internal/errors"
)

func TestLexer_BasicTokens(t *testing.T) {
	input := `(add 1 2.5 #t $/a/b 2024-09-26 P1w [x])`
	tokens, err := NewLexer(input).Tokenize()
	require.NoError(t, err)

	expected := []TokenType{
		TokenLParen, TokenIdent, TokenInt, TokenFloat, TokenBool, TokenPointer,
		TokenDateTime, TokenSpan, TokenLBracket, TokenIdent, TokenRBracket, TokenRParen, TokenEOF,
	}
	require.Len(t, tokens, len(expected))
	for i, exp := range expected {
		assert.Equal(t, exp, tokens[i].Type, "token %d", i)
	}
}

func TestLexer_Literals(t *testing.T) {
	tests := []struct {
		input    string
		typ      TokenType
		expected any
	}{
		{"#t", TokenBool, true},
		{"#f", TokenBool, false},
		{"42", TokenInt, int64(42)},
		{"-7", TokenInt, int64(-7)},
		{"+3", TokenInt, int64(3)},
		{"0.5", TokenFloat, 0.5},
		{"-2.25", TokenFloat, -2.25},
		{"1e3", TokenFloat, 1000.0},
		{"1.5E-1", TokenFloat, 0.15},
		{"$", TokenPointer, ""},
		{"$/items/0", TokenPointer, "/items/0"},
		{"P1w", TokenSpan, Span{Weeks: 1}},
		{"P2Y3M", TokenSpan, Span{Years: 2, Months: 3}},
		{"PT1h30m", TokenSpan, Span{Hours: 1, Minutes: 30}},
		{"2024-09-26", TokenDateTime, time.Date(2024, 9, 26, 0, 0, 0, 0, time.UTC)},
		{"2024-09-26T10:30:00Z", TokenDateTime, time.Date(2024, 9, 26, 10, 30, 0, 0, time.UTC)},
		{"2024-09-26T12:00:00+02:00", TokenDateTime, time.Date(2024, 9, 26, 10, 0, 0, 0, time.UTC)},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			tok, err := NewLexer(tt.input).NextToken()
			require.NoError(t, err)
			assert.Equal(t, tt.typ, tok.Type)
			if want, ok := tt.expected.(time.Time); ok {
				got, ok := tok.Literal.(time.Time)
				require.True(t, ok)
				assert.True(t, want.Equal(got), "want %s, got %s", want, got)
				return
			}
			assert.Equal(t, tt.expected, tok.Literal)
		})
	}
}

func TestLexer_Identifiers(t *testing.T) {
	for _, input := range []string{"gt", "filter", "my_fn", "foo-bar", "P", "pass"} {
		t.Run(input, func(t *testing.T) {
			tok, err := NewLexer(input).NextToken()
			require.NoError(t, err)
			assert.Equal(t, TokenIdent, tok.Type)
			assert.Equal(t, input, tok.Value)
		})
	}
}

func TestLexer_Positions(t *testing.T) {
	input := "(gt\n  $ 1)"
	tokens, err := NewLexer(input).Tokenize()
	require.NoError(t, err)

	assert.Equal(t, 1, tokens[0].Line)
	assert.Equal(t, 1, tokens[0].Column)
	assert.Equal(t, 2, tokens[2].Line)
	assert.Equal(t, 3, tokens[2].Column)
	assert.Equal(t, 6, tokens[2].Offset)
}

func TestLexer_EOFRepeats(t *testing.T) {
	l := NewLexer("  ")
	for i := 0; i < 3; i++ {
		tok, err := l.NextToken()
		require.NoError(t, err)
		assert.Equal(t, TokenEOF, tok.Type)
	}
}

func TestLexer_Errors(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"bad boolean", "#x"},
		{"pointer without slash", "$abc"},
		{"malformed number", "1.2.3"},
		{"int out of range", "99999999999999999999"},
		{"bad date", "2024-13-45"},
		{"stray symbol", "(gt $ @)"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewLexer(tt.input).Tokenize()
			require.Error(t, err)
			assert.True(t, dekeerrors.IsKind(err, dekeerrors.KindLex), "got %v", err)
		})
	}
}

func TestLexer_ErrorCarriesPosition(t *testing.T) {
	_, err := NewLexer("(gt\n $ #q)").Tokenize()
	require.Error(t, err)

	var e *dekeerrors.Error
	require.True(t, dekeerrors.As(err, &e))
	line, _ := e.Detail("line")
	col, _ := e.Detail("column")
	text, _ := e.Detail("text")
	assert.Equal(t, 2, line)
	assert.Equal(t, 4, col)
	assert.Equal(t, "#q", text)
}

func TestParseSpan(t *testing.T) {
	tests := []struct {
		input   string
		want    Span
		wantErr bool
	}{
		{input: "P1W", want: Span{Weeks: 1}},
		{input: "p3d", want: Span{Days: 3}},
		{input: "P1Y2M3W4DT5H6M7S", want: Span{Years: 1, Months: 2, Weeks: 3, Days: 4, Hours: 5, Minutes: 6, Seconds: 7}},
		{input: "PT45S", want: Span{Seconds: 45}},
		{input: "-P7D", want: Span{Days: -7}},
		{input: "-P1DT2H", want: Span{Days: -1, Hours: -2}},
		{input: "+P1W", want: Span{Weeks: 1}},
		{input: "-P", wantErr: true},
		{input: "--P1D", wantErr: true},
		{input: "P-7D", wantErr: true},
		{input: "P", wantErr: true},
		{input: "PT", wantErr: true},
		{input: "P1D2Y", wantErr: true},
		{input: "P1H", wantErr: true},
		{input: "P1", wantErr: true},
		{input: "X1D", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseSpan(tt.input)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSpan_String(t *testing.T) {
	assert.Equal(t, "P1W", Span{Weeks: 1}.String())
	assert.Equal(t, "P1DT2H", Span{Days: 1, Hours: 2}.String())
	assert.Equal(t, "PT0S", Span{}.String())
	assert.Equal(t, "-P7D", Span{Days: -7}.String())
	assert.Equal(t, "-P1DT2H", Span{Days: 1, Hours: 2}.Negate().String())
}

func TestLexer_SignedSpan(t *testing.T) {
	tokens, err := NewLexer("(add $ -P7D)").Tokenize()
	require.NoError(t, err)
	require.Len(t, tokens, 6)
	assert.Equal(t, TokenSpan, tokens[3].Type)
	assert.Equal(t, Span{Days: -7}, tokens[3].Literal)

	tokens, err = NewLexer("P-7D").Tokenize()
	require.NoError(t, err)
	assert.Equal(t, TokenIdent, tokens[0].Type, "the sign goes in front of the P")
}

func TestSpan_AddTo(t *testing.T) {
	start := time.Date(2024, 1, 31, 12, 0, 0, 0, time.UTC)

	assert.Equal(t, time.Date(2024, 3, 2, 12, 0, 0, 0, time.UTC), Span{Months: 1}.AddTo(start))
	assert.Equal(t, time.Date(2024, 2, 1, 13, 30, 0, 0, time.UTC), Span{Days: 1, Hours: 1, Minutes: 30}.AddTo(start))
	assert.Equal(t, time.Date(2024, 1, 24, 12, 0, 0, 0, time.UTC), Span{Weeks: 1}.Negate().AddTo(start))
}
