package expr

import (
	"fmt"
	"time"

	dekeerrors "github.com/relicta-tech/deke/internal/errors"
)

// maxDepth bounds nesting so hostile input fails instead of exhausting the stack.
const maxDepth = 256

// Parser parses tokens into an Expr.
type Parser struct {
	tokens  []Token
	pos     int
	current Token
	env     *Env
	depth   int
}

// NewParser creates a new parser for the given tokens. env decides which
// heads are builtins and their arity; nil means the standard environment.
func NewParser(tokens []Token, env *Env) *Parser {
	if env == nil {
		env = Std()
	}
	p := &Parser{
		tokens: tokens,
		pos:    0,
		env:    env,
	}
	if len(tokens) > 0 {
		p.current = tokens[0]
	}
	return p
}

// Parse tokenizes and parses a program against the standard environment.
func Parse(program string) (Expr, error) {
	tokens, err := NewLexer(program).Tokenize()
	if err != nil {
		return nil, err
	}
	return NewParser(tokens, Std()).Parse()
}

// Parse parses exactly one expression and requires the input to end there.
func (p *Parser) Parse() (Expr, error) {
	if p.current.Type == TokenEOF {
		return nil, p.error("expression", "empty program")
	}
	e, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	if p.current.Type != TokenEOF {
		return nil, p.error("EOF", "unexpected %s %q after expression", p.current.Type, p.current.Value)
	}
	return e, nil
}

func (p *Parser) parseExpr() (Expr, error) {
	switch p.current.Type {
	case TokenLParen:
		return p.parseCall()
	case TokenLBracket:
		return p.parseArray()
	case TokenPointer:
		ptr := &JSONPointer{Pointer: p.current.Literal.(string)}
		p.advance()
		return ptr, nil
	case TokenIdent:
		id := Identifier(p.current.Value)
		p.advance()
		return id, nil
	case TokenBool, TokenInt, TokenFloat, TokenDateTime, TokenSpan:
		return p.parseLiteral()
	case TokenEOF:
		return nil, p.error("expression", "unexpected end of input")
	default:
		return nil, p.error("expression", "unexpected %s", p.current.Type)
	}
}

func (p *Parser) parseLiteral() (Expr, error) {
	tok := p.current
	p.advance()
	switch tok.Type {
	case TokenBool:
		return Bool(tok.Literal.(bool)), nil
	case TokenInt:
		return Int(tok.Literal.(int64)), nil
	case TokenFloat:
		f, err := NewFloat(tok.Literal.(float64))
		if err != nil {
			return nil, err
		}
		return f, nil
	case TokenDateTime:
		return NewDateTime(tok.Literal.(time.Time)), nil
	case TokenSpan:
		return tok.Literal.(Span), nil
	}
	return nil, dekeerrors.Internal("expr.Parse", fmt.Sprintf("token %s is not a literal", tok.Type))
}

// parseCall parses '(' Ident Expr* ')'. A builtin given fewer arguments
// than its arity becomes a Lambda.
func (p *Parser) parseCall() (Expr, error) {
	if err := p.enter(); err != nil {
		return nil, err
	}
	defer p.leave()

	if err := p.expect(TokenLParen); err != nil {
		return nil, err
	}
	if p.current.Type == TokenRParen {
		return nil, p.error("IDENT", "empty function call")
	}
	if p.current.Type != TokenIdent {
		return nil, p.error("IDENT", "function head must be an identifier, got %s", p.current.Type)
	}
	ident := Ident(p.current.Value)
	p.advance()

	args := make([]Expr, 0, 2)
	for p.current.Type != TokenRParen {
		if p.current.Type == TokenEOF {
			return nil, p.error(")", "unclosed call to %s", ident)
		}
		arg, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		args = append(args, arg)
	}
	if err := p.expect(TokenRParen); err != nil {
		return nil, err
	}

	if arity, ok := p.env.Arity(ident); ok && len(args) < arity {
		return &Lambda{Ident: ident, Args: args}, nil
	}
	return &Function{Ident: ident, Args: args}, nil
}

func (p *Parser) parseArray() (Expr, error) {
	if err := p.enter(); err != nil {
		return nil, err
	}
	defer p.leave()

	if err := p.expect(TokenLBracket); err != nil {
		return nil, err
	}
	elems := make([]Expr, 0)
	for p.current.Type != TokenRBracket {
		if p.current.Type == TokenEOF {
			return nil, p.error("]", "unclosed array")
		}
		start := p.current
		el, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		switch el := el.(type) {
		case Identifier:
			return nil, p.errorAt(start, "value", "array element %s is a bare function", el)
		case *Lambda:
			return nil, p.errorAt(start, "value", "array element %s is a function missing arguments", el.Ident)
		}
		elems = append(elems, el)
	}
	if err := p.expect(TokenRBracket); err != nil {
		return nil, err
	}
	return &Array{Elems: elems}, nil
}

func (p *Parser) enter() error {
	p.depth++
	if p.depth > maxDepth {
		return p.error("expression", "nesting deeper than %d", maxDepth)
	}
	return nil
}

func (p *Parser) leave() {
	p.depth--
}

func (p *Parser) advance() {
	p.pos++
	if p.pos < len(p.tokens) {
		p.current = p.tokens[p.pos]
	} else {
		p.current = Token{Type: TokenEOF, Offset: p.current.Offset, Line: p.current.Line, Column: p.current.Column}
	}
}

func (p *Parser) expect(t TokenType) error {
	if p.current.Type != t {
		return p.error(t.String(), "expected %s, got %s", t, p.current.Type)
	}
	p.advance()
	return nil
}

func (p *Parser) error(expected, format string, args ...any) *dekeerrors.Error {
	return p.errorAt(p.current, expected, format, args...)
}

func (p *Parser) errorAt(tok Token, expected, format string, args ...any) *dekeerrors.Error {
	msg := fmt.Sprintf(format, args...)
	return dekeerrors.Parse("expr.Parse",
		fmt.Sprintf("parse error at line %d, column %d: %s", tok.Line, tok.Column, msg)).
		WithDetail("expected", expected).
		WithDetail("found", tok.Type.String()).
		WithDetail("line", tok.Line).
		WithDetail("column", tok.Column)
}
