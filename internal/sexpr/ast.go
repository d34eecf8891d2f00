// Package sexpr turns DSL source text into an AST of literals, symbols, and
// lists. It knows nothing about evaluation; special forms are recognized
// structurally by the evaluator.
package sexpr

import (
	"fmt"
	"strconv"
	"strings"
)

// Kind tags an AST node variant.
type Kind int

const (
	// KindLiteral is a self-evaluating value: int64, float64, string,
	// bool, or nil.
	KindLiteral Kind = iota
	// KindSymbol is a name resolved against the environment chain.
	KindSymbol
	// KindList is a parenthesized form: special form or application.
	KindList
)

// Node is one AST node. Line and Col are 1-based source coordinates kept for
// error reporting.
type Node struct {
	Kind Kind
	// Lit holds the literal value when Kind is KindLiteral.
	Lit any
	// Sym holds the symbol name when Kind is KindSymbol.
	Sym string
	// List holds the child forms when Kind is KindList.
	List []*Node

	Line int
	Col  int
}

// Literal builds a literal node.
func Literal(v any) *Node { return &Node{Kind: KindLiteral, Lit: v} }

// Symbol builds a symbol node.
func Symbol(name string) *Node { return &Node{Kind: KindSymbol, Sym: name} }

// ListOf builds a list node from the given children.
func ListOf(children ...*Node) *Node { return &Node{Kind: KindList, List: children} }

// IsSymbol reports whether the node is the named symbol.
func (n *Node) IsSymbol(name string) bool {
	return n != nil && n.Kind == KindSymbol && n.Sym == name
}

// Head returns the first element of a list node, or nil.
func (n *Node) Head() *Node {
	if n == nil || n.Kind != KindList || len(n.List) == 0 {
		return nil
	}
	return n.List[0]
}

// String renders the node back to source form.
func (n *Node) String() string {
	var b strings.Builder
	n.write(&b)
	return b.String()
}

func (n *Node) write(b *strings.Builder) {
	switch n.Kind {
	case KindLiteral:
		b.WriteString(FormatValue(n.Lit))
	case KindSymbol:
		b.WriteString(n.Sym)
	case KindList:
		b.WriteByte('(')
		for i, child := range n.List {
			if i > 0 {
				b.WriteByte(' ')
			}
			child.write(b)
		}
		b.WriteByte(')')
	}
}

// FormatValue renders a runtime value the way the printer renders literals:
// strings quoted, lists parenthesized, nil as nil.
func FormatValue(v any) string {
	switch val := v.(type) {
	case nil:
		return "nil"
	case bool:
		return strconv.FormatBool(val)
	case int64:
		return strconv.FormatInt(val, 10)
	case float64:
		return strconv.FormatFloat(val, 'g', -1, 64)
	case string:
		return strconv.Quote(val)
	case []any:
		parts := make([]string, len(val))
		for i, item := range val {
			parts[i] = FormatValue(item)
		}
		return "(" + strings.Join(parts, " ") + ")"
	default:
		return fmt.Sprintf("%v", val)
	}
}
