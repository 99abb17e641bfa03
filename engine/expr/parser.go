package expr

import "fmt"

// The grammar, ascending precedence:
//
//	or      := and ("||" and)*
//	and     := cmp ("&&" cmp)*
//	cmp     := unary (("==" | "!=" | "<" | ">" | "<=" | ">=") unary)?
//	unary   := "!" unary | primary
//	primary := "true" | "false" | string | ident "(" ")" | ident | "(" or ")"
//
// A bare ident is a value node: resolved against the context when it names a
// known variable path, otherwise treated as a literal word in comparisons.

type node interface {
	exprNode()
}

type boolNode struct {
	value bool
}

// valueNode is a quoted string literal or a bare word / variable path.
// Resolution against the context is deferred to evaluation.
type valueNode struct {
	raw    string
	quoted bool
}

type callNode struct {
	name string
}

type notNode struct {
	expr node
}

type compareNode struct {
	op          tokenKind
	left, right node
}

type andNode struct {
	left, right node
}

type orNode struct {
	left, right node
}

func (boolNode) exprNode()    {}
func (valueNode) exprNode()   {}
func (callNode) exprNode()    {}
func (notNode) exprNode()     {}
func (compareNode) exprNode() {}
func (orNode) exprNode()      {}
func (andNode) exprNode()     {}

type parser struct {
	input  string
	tokens []token
	pos    int
}

func parse(input string) (node, error) {
	tokens, err := tokenize(input)
	if err != nil {
		return nil, err
	}
	p := &parser{input: input, tokens: tokens}
	n, err := p.parseOr()
	if err != nil {
		return nil, err
	}
	if tok := p.peek(); tok.kind != tokenEOF {
		return nil, p.errorf(tok, "unexpected %s", tok.kind)
	}
	return n, nil
}

func (p *parser) peek() token {
	return p.tokens[p.pos]
}

func (p *parser) next() token {
	tok := p.tokens[p.pos]
	if tok.kind != tokenEOF {
		p.pos++
	}
	return tok
}

func (p *parser) errorf(tok token, format string, args ...any) error {
	return &EvalError{Expression: p.input, Pos: tok.pos, Msg: fmt.Sprintf(format, args...)}
}

func (p *parser) parseOr() (node, error) {
	left, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	for p.peek().kind == tokenOr {
		p.next()
		right, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		left = orNode{left: left, right: right}
	}
	return left, nil
}

func (p *parser) parseAnd() (node, error) {
	left, err := p.parseComparison()
	if err != nil {
		return nil, err
	}
	for p.peek().kind == tokenAnd {
		p.next()
		right, err := p.parseComparison()
		if err != nil {
			return nil, err
		}
		left = andNode{left: left, right: right}
	}
	return left, nil
}

func (p *parser) parseComparison() (node, error) {
	left, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	switch op := p.peek().kind; op {
	case tokenEq, tokenNeq, tokenLt, tokenGt, tokenLte, tokenGte:
		p.next()
		right, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return compareNode{op: op, left: left, right: right}, nil
	}
	return left, nil
}

func (p *parser) parseUnary() (node, error) {
	if p.peek().kind == tokenNot {
		p.next()
		inner, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return notNode{expr: inner}, nil
	}
	return p.parsePrimary()
}

func (p *parser) parsePrimary() (node, error) {
	tok := p.next()
	switch tok.kind {
	case tokenLParen:
		inner, err := p.parseOr()
		if err != nil {
			return nil, err
		}
		if closing := p.next(); closing.kind != tokenRParen {
			return nil, p.errorf(closing, "expected ')', got %s", closing.kind)
		}
		return inner, nil
	case tokenString:
		return valueNode{raw: tok.text, quoted: true}, nil
	case tokenIdent:
		switch tok.text {
		case "true":
			return boolNode{value: true}, nil
		case "false":
			return boolNode{value: false}, nil
		}
		if p.peek().kind == tokenLParen {
			p.next()
			if closing := p.next(); closing.kind != tokenRParen {
				return nil, p.errorf(closing, "expected ')' after function %q", tok.text)
			}
			return callNode{name: tok.text}, nil
		}
		return valueNode{raw: tok.text}, nil
	default:
		return nil, p.errorf(tok, "unexpected %s", tok.kind)
	}
}
