package sexpr

import (
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"
)

// tokenKind classifies a lexed token.
type tokenKind int

const (
	tokLParen tokenKind = iota
	tokRParen
	tokQuote
	tokString
	tokNumber
	tokAtom
	tokEOF
)

// token is one lexed unit with its 1-based source position.
type token struct {
	kind tokenKind
	text string
	line int
	col  int
}

// LexError reports an unreadable character or unterminated string.
type LexError struct {
	Line int
	Col  int
	Msg  string
}

// Error implements the error interface.
func (e *LexError) Error() string {
	return fmt.Sprintf("lex error at %d:%d: %s", e.Line, e.Col, e.Msg)
}

// lexer walks source text producing tokens. Comments run from ';' to end of
// line.
type lexer struct {
	src  string
	pos  int
	line int
	col  int
}

func newLexer(src string) *lexer {
	return &lexer{src: src, line: 1, col: 1}
}

func (l *lexer) peek() (rune, int) {
	if l.pos >= len(l.src) {
		return 0, 0
	}
	return utf8.DecodeRuneInString(l.src[l.pos:])
}

func (l *lexer) advance() rune {
	r, size := l.peek()
	if size == 0 {
		return 0
	}
	l.pos += size
	if r == '\n' {
		l.line++
		l.col = 1
	} else {
		l.col++
	}
	return r
}

func (l *lexer) skipSpaceAndComments() {
	for {
		r, size := l.peek()
		if size == 0 {
			return
		}
		switch {
		case unicode.IsSpace(r):
			l.advance()
		case r == ';':
			for {
				r, size = l.peek()
				if size == 0 || r == '\n' {
					break
				}
				l.advance()
			}
		default:
			return
		}
	}
}

// next returns the next token, or a *LexError.
func (l *lexer) next() (token, error) {
	l.skipSpaceAndComments()

	line, col := l.line, l.col
	r, size := l.peek()
	if size == 0 {
		return token{kind: tokEOF, line: line, col: col}, nil
	}

	switch r {
	case '(':
		l.advance()
		return token{kind: tokLParen, text: "(", line: line, col: col}, nil
	case ')':
		l.advance()
		return token{kind: tokRParen, text: ")", line: line, col: col}, nil
	case '\'':
		l.advance()
		return token{kind: tokQuote, text: "'", line: line, col: col}, nil
	case '"':
		return l.lexString(line, col)
	}

	if isNumberStart(l.src[l.pos:]) {
		return l.lexWhile(tokNumber, line, col)
	}
	return l.lexWhile(tokAtom, line, col)
}

// lexString consumes a double-quoted string with backslash escapes.
func (l *lexer) lexString(line, col int) (token, error) {
	l.advance() // opening quote

	var b strings.Builder
	for {
		r, size := l.peek()
		if size == 0 {
			return token{}, &LexError{Line: line, Col: col, Msg: "unterminated string"}
		}
		l.advance()
		switch r {
		case '"':
			return token{kind: tokString, text: b.String(), line: line, col: col}, nil
		case '\\':
			esc, escSize := l.peek()
			if escSize == 0 {
				return token{}, &LexError{Line: line, Col: col, Msg: "unterminated string escape"}
			}
			l.advance()
			switch esc {
			case 'n':
				b.WriteByte('\n')
			case 't':
				b.WriteByte('\t')
			case '"':
				b.WriteByte('"')
			case '\\':
				b.WriteByte('\\')
			default:
				return token{}, &LexError{Line: l.line, Col: l.col - 1, Msg: fmt.Sprintf("unknown escape \\%c", esc)}
			}
		default:
			b.WriteRune(r)
		}
	}
}

// lexWhile consumes atom characters until a delimiter.
func (l *lexer) lexWhile(kind tokenKind, line, col int) (token, error) {
	var b strings.Builder
	for {
		r, size := l.peek()
		if size == 0 || unicode.IsSpace(r) || r == '(' || r == ')' || r == ';' || r == '"' {
			break
		}
		b.WriteRune(r)
		l.advance()
	}
	return token{kind: kind, text: b.String(), line: line, col: col}, nil
}

// isNumberStart reports whether the remaining source begins a numeric
// literal. A bare "-" or "+" is a symbol; "-3" is a number.
func isNumberStart(rest string) bool {
	if rest == "" {
		return false
	}
	c := rest[0]
	if c >= '0' && c <= '9' {
		return true
	}
	if (c == '-' || c == '+') && len(rest) > 1 {
		next := rest[1]
		return next >= '0' && next <= '9'
	}
	return false
}
