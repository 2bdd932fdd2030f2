package textir

import (
	"fmt"
	"strconv"
)

// This file implements the token scanner for the textual IR format
// (textir.ebnf). The format nests arbitrarily deep (PROG inside COND
// inside a routine body), so the scanner works rune by rune rather than
// line by line: a single mutable cursor advanced by the caller, tokens
// handed out one at a time.

type tokenKind uint8

const (
	tokEOF tokenKind = iota
	tokLt            // <
	tokGt            // >
	tokLParen        // (
	tokRParen        // )
	tokHash          // #
	tokDot           // .
	tokComma         // ,
	tokIdent
	tokNumber
	tokString
	tokChar
)

type token struct {
	kind tokenKind
	text string
	num  int32
	pos  int
}

type lexer struct {
	src []byte
	pos int
}

func newLexer(src []byte) *lexer { return &lexer{src: src} }

func (l *lexer) skipSpace() {
	for l.pos < len(l.src) {
		c := l.src[l.pos]
		switch {
		case c == ';' && l.pos+1 < len(l.src) && l.src[l.pos+1] == ';':
			for l.pos < len(l.src) && l.src[l.pos] != '\n' {
				l.pos++
			}
		case c == ' ' || c == '\t' || c == '\r' || c == '\n':
			l.pos++
		default:
			return
		}
	}
}

func isIdentByte(c byte) bool {
	switch c {
	case '<', '>', '(', ')', '#', '.', ',', '"', ' ', '\t', '\r', '\n':
		return false
	default:
		return true
	}
}

// next scans and returns the next token, advancing the cursor.
func (l *lexer) next() (token, error) {
	l.skipSpace()
	if l.pos >= len(l.src) {
		return token{kind: tokEOF, pos: l.pos}, nil
	}
	start := l.pos
	c := l.src[l.pos]
	switch c {
	case '<':
		l.pos++
		return token{kind: tokLt, pos: start}, nil
	case '>':
		l.pos++
		return token{kind: tokGt, pos: start}, nil
	case '(':
		l.pos++
		return token{kind: tokLParen, pos: start}, nil
	case ')':
		l.pos++
		return token{kind: tokRParen, pos: start}, nil
	case '#':
		l.pos++
		return token{kind: tokHash, pos: start}, nil
	case ',':
		l.pos++
		return token{kind: tokComma, pos: start}, nil
	case '.':
		// A bare "." not followed by an identifier byte is never produced by
		// this grammar (local refs are always ".NAME"); treat it as the
		// local-ref marker unconditionally and let the parser reject a
		// missing name.
		l.pos++
		return token{kind: tokDot, pos: start}, nil
	case '"':
		return l.scanString()
	case '!':
		return l.scanChar()
	}
	if c == '-' || (c >= '0' && c <= '9') {
		if tok, ok, err := l.scanNumber(); ok || err != nil {
			return tok, err
		}
	}
	for l.pos < len(l.src) && isIdentByte(l.src[l.pos]) {
		l.pos++
	}
	if l.pos == start {
		return token{}, fmt.Errorf("textir: unexpected byte %q at offset %d", c, start)
	}
	return token{kind: tokIdent, text: string(l.src[start:l.pos]), pos: start}, nil
}

func (l *lexer) scanString() (token, error) {
	start := l.pos
	l.pos++ // opening quote
	var out []byte
	for {
		if l.pos >= len(l.src) {
			return token{}, fmt.Errorf("textir: unterminated string starting at offset %d", start)
		}
		c := l.src[l.pos]
		if c == '"' {
			l.pos++
			return token{kind: tokString, text: string(out), pos: start}, nil
		}
		if c == '\\' && l.pos+1 < len(l.src) {
			l.pos++
			out = append(out, l.src[l.pos])
			l.pos++
			continue
		}
		out = append(out, c)
		l.pos++
	}
}

func (l *lexer) scanChar() (token, error) {
	start := l.pos
	l.pos++ // '!'
	if l.pos < len(l.src) && l.src[l.pos] == '\\' {
		l.pos++
	}
	if l.pos >= len(l.src) {
		return token{}, fmt.Errorf("textir: unterminated char literal at offset %d", start)
	}
	c := l.src[l.pos]
	l.pos++
	return token{kind: tokChar, num: int32(c), pos: start}, nil
}

// scanNumber scans an optionally-signed decimal integer. Returns ok=false
// (without advancing) when the leading '-' isn't actually a number, so the
// caller falls back to identifier scanning (ZIL allows "-" and hyphenated
// atom names like DO-NOT-DISTURB).
func (l *lexer) scanNumber() (token, bool, error) {
	start := l.pos
	p := l.pos
	if l.src[p] == '-' {
		p++
	}
	digitsStart := p
	for p < len(l.src) && l.src[p] >= '0' && l.src[p] <= '9' {
		p++
	}
	if p == digitsStart {
		return token{}, false, nil
	}
	// A number must not be immediately followed by an identifier byte other
	// than the digits already consumed (e.g. "3D" is an atom, not a number).
	if p < len(l.src) && isIdentByte(l.src[p]) {
		return token{}, false, nil
	}
	v, err := strconv.ParseInt(string(l.src[start:p]), 10, 32)
	if err != nil {
		return token{}, false, fmt.Errorf("textir: invalid number %q at offset %d", l.src[start:p], start)
	}
	l.pos = p
	return token{kind: tokNumber, num: int32(v), pos: start}, true, nil
}
