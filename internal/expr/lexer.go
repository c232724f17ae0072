package expr

import (
	"fmt"
	"regexp"
	"strconv"
	"time"

	dekeerrors "github.com/relicta-tech/deke/internal/errors"
)

var (
	intPattern      = regexp.MustCompile(`^[+-]?[0-9]+$`)
	floatPattern    = regexp.MustCompile(`^[+-]?([0-9]+\.[0-9]+([eE][+-]?[0-9]+)?|[0-9]+[eE][+-]?[0-9]+)$`)
	datePattern     = regexp.MustCompile(`^[0-9]{4}-[0-9]{2}-[0-9]{2}`)
	identPattern    = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_\-]*$`)
	dateTimeLayouts = []string{
		time.DateOnly,
		"2006-01-02T15:04",
		"2006-01-02T15:04:05",
		"2006-01-02T15:04Z07:00",
		time.RFC3339,
	}
)

// Lexer tokenizes policy program text.
type Lexer struct {
	input   string
	pos     int
	line    int
	column  int
	start   int
	startLn int
	startCl int
}

// NewLexer creates a new lexer for the given input.
func NewLexer(input string) *Lexer {
	return &Lexer{
		input:  input,
		pos:    0,
		line:   1,
		column: 1,
	}
}

// Tokenize returns all tokens from the input, ending with TokenEOF.
func (l *Lexer) Tokenize() ([]Token, error) {
	var tokens []Token
	for {
		tok, err := l.NextToken()
		if err != nil {
			return nil, err
		}
		tokens = append(tokens, tok)
		if tok.Type == TokenEOF {
			break
		}
	}
	return tokens, nil
}

// NextToken returns the next token from the input. Once the input is
// exhausted it keeps returning TokenEOF.
func (l *Lexer) NextToken() (Token, error) {
	l.skipWhitespace()

	l.start = l.pos
	l.startLn = l.line
	l.startCl = l.column

	if l.pos >= len(l.input) {
		return l.token(TokenEOF, "", nil), nil
	}

	switch ch := l.input[l.pos]; ch {
	case '(':
		l.advance()
		return l.token(TokenLParen, "(", nil), nil
	case ')':
		l.advance()
		return l.token(TokenRParen, ")", nil), nil
	case '[':
		l.advance()
		return l.token(TokenLBracket, "[", nil), nil
	case ']':
		l.advance()
		return l.token(TokenRBracket, "]", nil), nil
	}

	return l.classify(l.scanWord())
}

// classify decides the lexical class of a bare word.
func (l *Lexer) classify(word string) (Token, error) {
	switch {
	case word[0] == '$':
		if len(word) > 1 && word[1] != '/' {
			return Token{}, l.errorf(word, "JSON pointer must be '$' or start with '$/'")
		}
		return l.token(TokenPointer, word, word[1:]), nil

	case word[0] == '#':
		switch word {
		case "#t":
			return l.token(TokenBool, word, true), nil
		case "#f":
			return l.token(TokenBool, word, false), nil
		}
		return Token{}, l.errorf(word, "invalid boolean literal")

	case datePattern.MatchString(word):
		t, err := parseDateTime(word)
		if err != nil {
			return Token{}, l.errorf(word, "invalid datetime literal")
		}
		return l.token(TokenDateTime, word, t), nil

	case intPattern.MatchString(word):
		n, err := strconv.ParseInt(word, 10, 64)
		if err != nil {
			return Token{}, l.errorf(word, "integer literal out of range")
		}
		return l.token(TokenInt, word, n), nil

	case floatPattern.MatchString(word):
		f, err := strconv.ParseFloat(word, 64)
		if err != nil {
			return Token{}, l.errorf(word, "float literal out of range")
		}
		return l.token(TokenFloat, word, f), nil
	}

	if isSpanStart(word) {
		if sp, err := ParseSpan(word); err == nil {
			return l.token(TokenSpan, word, sp), nil
		}
	}

	if identPattern.MatchString(word) {
		return l.token(TokenIdent, word, nil), nil
	}

	return Token{}, l.errorf(word, "unexpected token")
}

func (l *Lexer) token(typ TokenType, value string, literal any) Token {
	return Token{
		Type:    typ,
		Value:   value,
		Offset:  l.start,
		Line:    l.startLn,
		Column:  l.startCl,
		Literal: literal,
	}
}

func (l *Lexer) errorf(text, format string, args ...any) *dekeerrors.Error {
	msg := fmt.Sprintf(format, args...)
	return dekeerrors.Lex("expr.Lex",
		fmt.Sprintf("%s %q at line %d, column %d", msg, text, l.startLn, l.startCl)).
		WithDetail("text", text).
		WithDetail("line", l.startLn).
		WithDetail("column", l.startCl)
}

// scanWord consumes characters up to the next delimiter or whitespace.
func (l *Lexer) scanWord() string {
	for l.pos < len(l.input) && !isDelimiter(l.input[l.pos]) {
		l.advance()
	}
	return l.input[l.start:l.pos]
}

func (l *Lexer) advance() byte {
	if l.pos >= len(l.input) {
		return 0
	}
	ch := l.input[l.pos]
	l.pos++
	if ch == '\n' {
		l.line++
		l.column = 1
	} else {
		l.column++
	}
	return ch
}

func (l *Lexer) skipWhitespace() {
	for l.pos < len(l.input) && isSpace(l.input[l.pos]) {
		l.advance()
	}
}

// isSpanStart matches P, p and their signed forms (-P7D).
func isSpanStart(word string) bool {
	if word[0] == '-' || word[0] == '+' {
		word = word[1:]
	}
	return word != "" && (word[0] == 'P' || word[0] == 'p')
}

func isSpace(ch byte) bool {
	return ch == ' ' || ch == '\t' || ch == '\n' || ch == '\r'
}

func isDelimiter(ch byte) bool {
	return isSpace(ch) || ch == '(' || ch == ')' || ch == '[' || ch == ']'
}

// parseDateTime accepts an ISO 8601 date with an optional time and offset.
func parseDateTime(s string) (time.Time, error) {
	var lastErr error
	for _, layout := range dateTimeLayouts {
		t, err := time.Parse(layout, s)
		if err == nil {
			return t.UTC(), nil
		}
		lastErr = err
	}
	return time.Time{}, lastErr
}
