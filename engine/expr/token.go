package expr

import (
	"fmt"
	"strings"
	"unicode"
)

type tokenKind int

const (
	tokenEOF tokenKind = iota
	tokenIdent
	tokenString
	tokenAnd
	tokenOr
	tokenNot
	tokenEq
	tokenNeq
	tokenLt
	tokenGt
	tokenLte
	tokenGte
	tokenLParen
	tokenRParen
)

func (k tokenKind) String() string {
	switch k {
	case tokenEOF:
		return "end of expression"
	case tokenIdent:
		return "identifier"
	case tokenString:
		return "string"
	case tokenAnd:
		return "&&"
	case tokenOr:
		return "||"
	case tokenNot:
		return "!"
	case tokenEq:
		return "=="
	case tokenNeq:
		return "!="
	case tokenLt:
		return "<"
	case tokenGt:
		return ">"
	case tokenLte:
		return "<="
	case tokenGte:
		return ">="
	case tokenLParen:
		return "("
	case tokenRParen:
		return ")"
	}
	return "unknown"
}

type token struct {
	kind tokenKind
	text string
	pos  int
}

// tokenize splits an expression into tokens. Quote handling happens here,
// so operators inside single- or double-quoted strings never split the
// expression.
func tokenize(input string) ([]token, error) {
	var tokens []token
	i := 0
	for i < len(input) {
		c := input[i]
		switch {
		case c == ' ' || c == '\t' || c == '\n' || c == '\r':
			i++
		case c == '\'' || c == '"':
			quote := c
			j := i + 1
			for j < len(input) && input[j] != quote {
				j++
			}
			if j >= len(input) {
				return nil, &EvalError{Expression: input, Pos: i, Msg: "unterminated string literal"}
			}
			tokens = append(tokens, token{kind: tokenString, text: input[i+1 : j], pos: i})
			i = j + 1
		case c == '(':
			tokens = append(tokens, token{kind: tokenLParen, text: "(", pos: i})
			i++
		case c == ')':
			tokens = append(tokens, token{kind: tokenRParen, text: ")", pos: i})
			i++
		case c == '&':
			if i+1 >= len(input) || input[i+1] != '&' {
				return nil, &EvalError{Expression: input, Pos: i, Msg: "expected '&&'"}
			}
			tokens = append(tokens, token{kind: tokenAnd, text: "&&", pos: i})
			i += 2
		case c == '|':
			if i+1 >= len(input) || input[i+1] != '|' {
				return nil, &EvalError{Expression: input, Pos: i, Msg: "expected '||'"}
			}
			tokens = append(tokens, token{kind: tokenOr, text: "||", pos: i})
			i += 2
		case c == '=':
			if i+1 >= len(input) || input[i+1] != '=' {
				return nil, &EvalError{Expression: input, Pos: i, Msg: "expected '=='"}
			}
			tokens = append(tokens, token{kind: tokenEq, text: "==", pos: i})
			i += 2
		case c == '!':
			if i+1 < len(input) && input[i+1] == '=' {
				tokens = append(tokens, token{kind: tokenNeq, text: "!=", pos: i})
				i += 2
			} else {
				tokens = append(tokens, token{kind: tokenNot, text: "!", pos: i})
				i++
			}
		case c == '<':
			if i+1 < len(input) && input[i+1] == '=' {
				tokens = append(tokens, token{kind: tokenLte, text: "<=", pos: i})
				i += 2
			} else {
				tokens = append(tokens, token{kind: tokenLt, text: "<", pos: i})
				i++
			}
		case c == '>':
			if i+1 < len(input) && input[i+1] == '=' {
				tokens = append(tokens, token{kind: tokenGte, text: ">=", pos: i})
				i += 2
			} else {
				tokens = append(tokens, token{kind: tokenGt, text: ">", pos: i})
				i++
			}
		case isIdentChar(rune(c)):
			j := i
			for j < len(input) && isIdentChar(rune(input[j])) {
				j++
			}
			tokens = append(tokens, token{kind: tokenIdent, text: input[i:j], pos: i})
			i = j
		default:
			return nil, &EvalError{
				Expression: input,
				Pos:        i,
				Msg:        fmt.Sprintf("unexpected character %q", c),
			}
		}
	}
	tokens = append(tokens, token{kind: tokenEOF, pos: len(input)})
	return tokens, nil
}

// isIdentChar covers variable paths (jobs.build.outputs.result), bare words,
// and numeric literals. Dots and hyphens are part of identifiers so job names
// like "lint-fast" resolve as a single token.
func isIdentChar(c rune) bool {
	return unicode.IsLetter(c) || unicode.IsDigit(c) ||
		c == '_' || c == '.' || c == '-'
}

// EvalError reports a malformed or unevaluable expression.
type EvalError struct {
	Expression string
	Pos        int
	Msg        string
}

func (e *EvalError) Error() string {
	expr := e.Expression
	if len(expr) > 80 {
		expr = expr[:77] + "..."
	}
	return fmt.Sprintf("invalid expression %q at position %d: %s", strings.TrimSpace(expr), e.Pos, e.Msg)
}
