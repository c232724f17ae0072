package expr

// TokenType represents the lexical class of a token.
type TokenType int

const (
	// Special tokens
	TokenEOF TokenType = iota

	// Delimiters
	TokenLParen   // (
	TokenRParen   // )
	TokenLBracket // [
	TokenRBracket // ]

	// Literals
	TokenBool     // #t, #f
	TokenInt      // 42, -7
	TokenFloat    // 0.5, 1e3
	TokenDateTime // 2024-09-26, 2024-09-26T10:00:00Z
	TokenSpan     // P1w, PT1h30m
	TokenIdent    // gt, filter
	TokenPointer  // $, $/a/b
)

// Token represents a lexical token.
type Token struct {
	Type    TokenType
	Value   string
	Offset  int
	Line    int
	Column  int
	Literal any // Parsed literal value (bool, int64, float64, time.Time, Span)
}

var tokenNames = map[TokenType]string{
	TokenEOF:      "EOF",
	TokenLParen:   "(",
	TokenRParen:   ")",
	TokenLBracket: "[",
	TokenRBracket: "]",
	TokenBool:     "BOOL",
	TokenInt:      "INT",
	TokenFloat:    "FLOAT",
	TokenDateTime: "DATETIME",
	TokenSpan:     "SPAN",
	TokenIdent:    "IDENT",
	TokenPointer:  "POINTER",
}

// String returns the token type name.
func (t TokenType) String() string {
	if name, ok := tokenNames[t]; ok {
		return name
	}
	return "UNKNOWN"
}

// IsLiteral reports whether the token is a primitive literal.
func (t TokenType) IsLiteral() bool {
	return t >= TokenBool && t <= TokenIdent
}
