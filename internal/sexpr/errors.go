package sexpr

import (
	"fmt"
	"strings"
)

// WrapErrorWithSource augments lex and parse errors with a caret-annotated
// snippet of the offending source line, with one line of context on either
// side. Other errors are returned unchanged.
func WrapErrorWithSource(err error, src string) error {
	switch e := err.(type) {
	case *LexError:
		return fmt.Errorf("%s", snippet(src, "LEXICAL ERROR", e.Line, e.Col, e.Msg))
	case *ParseError:
		return fmt.Errorf("%s", snippet(src, "PARSE ERROR", e.Line, e.Col, e.Msg))
	default:
		return err
	}
}

// snippet renders a numbered source excerpt with a caret under the 1-based
// column. Coordinates out of range are clamped.
func snippet(src, header string, line, col int, msg string) string {
	lines := strings.Split(src, "\n")
	if len(lines) == 0 {
		lines = []string{""}
	}
	if line < 1 {
		line = 1
	}
	if line > len(lines) {
		line = len(lines)
	}
	if col < 1 {
		col = 1
	}
	if col > len(lines[line-1])+1 {
		col = len(lines[line-1]) + 1
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%s at %d:%d: %s\n\n", header, line, col, msg)

	width := len(fmt.Sprintf("%d", min(line+1, len(lines))))
	if line > 1 {
		fmt.Fprintf(&b, "  %*d | %s\n", width, line-1, lines[line-2])
	}
	fmt.Fprintf(&b, "  %*d | %s\n", width, line, lines[line-1])
	fmt.Fprintf(&b, "  %s | %s^\n", strings.Repeat(" ", width), strings.Repeat(" ", col-1))
	if line < len(lines) {
		fmt.Fprintf(&b, "  %*d | %s\n", width, line+1, lines[line])
	}
	return strings.TrimRight(b.String(), "\n")
}
