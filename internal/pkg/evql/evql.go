// Package evql implements the small boolean filter language used by the
// advanced search box. Expressions look like:
//
//	host:web-01 AND connector!=gw2
//	(host:web-01 OR host:web-02) AND NOT "maintenance"
//
// A bare word or quoted string with no key is a case-insensitive
// full-text match across all categorical fields.
package evql

import (
	"fmt"
	"strings"
	"unicode"
)

type tokenType int

const (
	tokEOF tokenType = iota
	tokIdent
	tokString
	tokColon
	tokLParen
	tokRParen
	tokAnd
	tokOr
	tokNot
	tokNeq
)

type token struct {
	typ tokenType
	val string
}

type lexer struct {
	input string
	pos   int
}

func (l *lexer) next() token {
	for l.pos < len(l.input) && unicode.IsSpace(rune(l.input[l.pos])) {
		l.pos++
	}
	if l.pos >= len(l.input) {
		return token{typ: tokEOF}
	}

	switch ch := l.input[l.pos]; ch {
	case ':':
		l.pos++
		return token{typ: tokColon, val: ":"}
	case '(':
		l.pos++
		return token{typ: tokLParen, val: "("}
	case ')':
		l.pos++
		return token{typ: tokRParen, val: ")"}
	case '!':
		if l.pos+1 < len(l.input) && l.input[l.pos+1] == '=' {
			l.pos += 2
			return token{typ: tokNeq, val: "!="}
		}
	case '"':
		return l.readString()
	}
	return l.readWord()
}

func (l *lexer) readString() token {
	l.pos++ // opening quote
	start := l.pos
	for l.pos < len(l.input) && l.input[l.pos] != '"' {
		if l.input[l.pos] == '\\' && l.pos+1 < len(l.input) {
			l.pos++
		}
		l.pos++
	}
	val := l.input[start:l.pos]
	if l.pos < len(l.input) {
		l.pos++ // closing quote
	}
	return token{typ: tokString, val: val}
}

func (l *lexer) readWord() token {
	start := l.pos
	for l.pos < len(l.input) && isWordChar(l.input[l.pos]) {
		l.pos++
	}
	if l.pos == start {
		// Unknown character; skip it and continue.
		l.pos++
		return l.next()
	}
	val := l.input[start:l.pos]
	switch strings.ToUpper(val) {
	case "AND":
		return token{typ: tokAnd, val: "AND"}
	case "OR":
		return token{typ: tokOr, val: "OR"}
	case "NOT":
		return token{typ: tokNot, val: "NOT"}
	}
	return token{typ: tokIdent, val: val}
}

func isWordChar(ch byte) bool {
	r := rune(ch)
	return unicode.IsLetter(r) || unicode.IsDigit(r) ||
		ch == '_' || ch == '-' || ch == '.' || ch == '/' || ch >= 0x80
}

// nextValue lexes the value position of a key:value term. Unlike next,
// it keeps ':' inside the word so unquoted URLs survive as one token.
func (l *lexer) nextValue() token {
	for l.pos < len(l.input) && unicode.IsSpace(rune(l.input[l.pos])) {
		l.pos++
	}
	if l.pos >= len(l.input) {
		return token{typ: tokEOF}
	}
	if l.input[l.pos] == '"' {
		return l.readString()
	}
	start := l.pos
	for l.pos < len(l.input) && (isWordChar(l.input[l.pos]) || l.input[l.pos] == ':') {
		l.pos++
	}
	if l.pos == start {
		return l.next()
	}
	return token{typ: tokIdent, val: l.input[start:l.pos]}
}

// Node is a parsed expression.
type Node interface {
	eval(r *record) bool
}

// Parse parses an expression; an empty input yields a nil Node, which
// matches everything.
func Parse(input string) (Node, error) {
	if strings.TrimSpace(input) == "" {
		return nil, nil
	}
	p := &parser{lex: &lexer{input: input}}
	p.advance()
	node, err := p.parseOr()
	if err != nil {
		return nil, err
	}
	if p.cur.typ != tokEOF {
		return nil, fmt.Errorf("unexpected trailing token %q", p.cur.val)
	}
	return node, nil
}

type parser struct {
	lex *lexer
	cur token
}

func (p *parser) advance() {
	p.cur = p.lex.next()
}

func (p *parser) advanceValue() {
	p.cur = p.lex.nextValue()
}

// Precedence, loosest first: OR, AND, NOT, primary.
func (p *parser) parseOr() (Node, error) {
	left, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	for p.cur.typ == tokOr {
		p.advance()
		right, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		left = binary{op: opOr, left: left, right: right}
	}
	return left, nil
}

func (p *parser) parseAnd() (Node, error) {
	left, err := p.parseNot()
	if err != nil {
		return nil, err
	}
	for p.cur.typ == tokAnd {
		p.advance()
		right, err := p.parseNot()
		if err != nil {
			return nil, err
		}
		left = binary{op: opAnd, left: left, right: right}
	}
	return left, nil
}

func (p *parser) parseNot() (Node, error) {
	if p.cur.typ == tokNot {
		p.advance()
		inner, err := p.parseNot() // right-associative
		if err != nil {
			return nil, err
		}
		return not{inner}, nil
	}
	return p.parsePrimary()
}

func (p *parser) parsePrimary() (Node, error) {
	switch p.cur.typ {
	case tokLParen:
		p.advance()
		inner, err := p.parseOr()
		if err != nil {
			return nil, err
		}
		if p.cur.typ != tokRParen {
			return nil, fmt.Errorf("expected ')' but got %q", p.cur.val)
		}
		p.advance()
		return inner, nil

	case tokString:
		val := p.cur.val
		p.advance()
		return match{op: opContains, value: val}, nil

	case tokIdent:
		key := p.cur.val
		p.advance()
		switch p.cur.typ {
		case tokColon:
			p.advanceValue()
			return p.parseValue(key, opEq)
		case tokNeq:
			p.advanceValue()
			return p.parseValue(key, opNeq)
		}
		// Bare word: full-text match.
		return match{op: opContains, value: key}, nil

	default:
		return nil, fmt.Errorf("unexpected token %q", p.cur.val)
	}
}

func (p *parser) parseValue(key string, op matchOp) (Node, error) {
	if p.cur.typ != tokIdent && p.cur.typ != tokString {
		return nil, fmt.Errorf("expected value after %q", key)
	}
	val := p.cur.val
	p.advance()
	return match{key: key, op: op, value: val}, nil
}
