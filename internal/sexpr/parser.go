package sexpr

import (
	"fmt"
	"strconv"
	"strings"
)

// ParseError reports a structural problem in the source, with 1-based
// coordinates.
type ParseError struct {
	Line int
	Col  int
	Msg  string
}

// Error implements the error interface.
func (e *ParseError) Error() string {
	return fmt.Sprintf("parse error at %d:%d: %s", e.Line, e.Col, e.Msg)
}

// Parse reads source text into a sequence of top-level forms.
func Parse(src string) ([]*Node, error) {
	p := &parser{lex: newLexer(src)}
	if err := p.prime(); err != nil {
		return nil, err
	}

	var forms []*Node
	for p.cur.kind != tokEOF {
		form, err := p.parseForm()
		if err != nil {
			return nil, err
		}
		forms = append(forms, form)
	}
	return forms, nil
}

// ParseOne reads exactly one form, rejecting trailing input.
func ParseOne(src string) (*Node, error) {
	forms, err := Parse(src)
	if err != nil {
		return nil, err
	}
	if len(forms) == 0 {
		return nil, &ParseError{Line: 1, Col: 1, Msg: "empty input"}
	}
	if len(forms) > 1 {
		return nil, &ParseError{Line: forms[1].Line, Col: forms[1].Col, Msg: "unexpected trailing form"}
	}
	return forms[0], nil
}

type parser struct {
	lex *lexer
	cur token
}

func (p *parser) prime() error {
	tok, err := p.lex.next()
	if err != nil {
		return err
	}
	p.cur = tok
	return nil
}

func (p *parser) parseForm() (*Node, error) {
	tok := p.cur

	switch tok.kind {
	case tokLParen:
		if err := p.prime(); err != nil {
			return nil, err
		}
		node := &Node{Kind: KindList, Line: tok.line, Col: tok.col}
		for p.cur.kind != tokRParen {
			if p.cur.kind == tokEOF {
				return nil, &ParseError{Line: tok.line, Col: tok.col, Msg: "unclosed list"}
			}
			child, err := p.parseForm()
			if err != nil {
				return nil, err
			}
			node.List = append(node.List, child)
		}
		if err := p.prime(); err != nil { // consume ')'
			return nil, err
		}
		return node, nil

	case tokRParen:
		return nil, &ParseError{Line: tok.line, Col: tok.col, Msg: "unexpected ')'"}

	case tokQuote:
		if err := p.prime(); err != nil {
			return nil, err
		}
		quoted, err := p.parseForm()
		if err != nil {
			return nil, err
		}
		sym := &Node{Kind: KindSymbol, Sym: "quote", Line: tok.line, Col: tok.col}
		return &Node{Kind: KindList, List: []*Node{sym, quoted}, Line: tok.line, Col: tok.col}, nil

	case tokString:
		if err := p.prime(); err != nil {
			return nil, err
		}
		return &Node{Kind: KindLiteral, Lit: tok.text, Line: tok.line, Col: tok.col}, nil

	case tokNumber:
		if err := p.prime(); err != nil {
			return nil, err
		}
		return parseNumber(tok)

	case tokAtom:
		if err := p.prime(); err != nil {
			return nil, err
		}
		return parseAtom(tok), nil

	default:
		return nil, &ParseError{Line: tok.line, Col: tok.col, Msg: "unexpected end of input"}
	}
}

func parseNumber(tok token) (*Node, error) {
	if strings.ContainsAny(tok.text, ".eE") {
		f, err := strconv.ParseFloat(tok.text, 64)
		if err != nil {
			return nil, &ParseError{Line: tok.line, Col: tok.col, Msg: "malformed number " + strconv.Quote(tok.text)}
		}
		return &Node{Kind: KindLiteral, Lit: f, Line: tok.line, Col: tok.col}, nil
	}
	i, err := strconv.ParseInt(tok.text, 10, 64)
	if err != nil {
		return nil, &ParseError{Line: tok.line, Col: tok.col, Msg: "malformed number " + strconv.Quote(tok.text)}
	}
	return &Node{Kind: KindLiteral, Lit: i, Line: tok.line, Col: tok.col}, nil
}

// parseAtom maps the reserved atoms true/false/nil to literals; everything
// else is a symbol.
func parseAtom(tok token) *Node {
	switch tok.text {
	case "true":
		return &Node{Kind: KindLiteral, Lit: true, Line: tok.line, Col: tok.col}
	case "false":
		return &Node{Kind: KindLiteral, Lit: false, Line: tok.line, Col: tok.col}
	case "nil":
		return &Node{Kind: KindLiteral, Lit: nil, Line: tok.line, Col: tok.col}
	default:
		return &Node{Kind: KindSymbol, Sym: tok.text, Line: tok.line, Col: tok.col}
	}
}
