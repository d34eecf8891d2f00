package eval

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/weft-dsl/weft/internal/sexpr"
)

// Symbol is a quoted symbol value, distinct from a string literal.
type Symbol string

// Closure is a lambda value capturing its definition environment. Bodies are
// evaluated left to right; the last expression's value is the call's value.
type Closure struct {
	Params []string
	Body   []*sexpr.Node
	Env    *Environment
}

func (c *Closure) String() string {
	return fmt.Sprintf("#<closure (%s)>", strings.Join(c.Params, " "))
}

// BuiltinFunc is the Go implementation of a builtin.
type BuiltinFunc func(ctx context.Context, args []any) (any, error)

// Builtin is a named primitive installed in the global environment.
type Builtin struct {
	Name string
	Fn   BuiltinFunc
}

func (b *Builtin) String() string {
	return "#<builtin " + b.Name + ">"
}

// truthy implements conditional semantics: false and nil are false,
// everything else is true.
func truthy(value any) bool {
	switch v := value.(type) {
	case bool:
		return v
	case nil:
		return false
	default:
		return true
	}
}

// datum converts a quoted AST node into a runtime value: symbols become
// Symbol, lists become []any, literals pass through.
func datum(node *sexpr.Node) any {
	switch node.Kind {
	case sexpr.KindSymbol:
		return Symbol(node.Sym)
	case sexpr.KindList:
		items := make([]any, len(node.List))
		for i, child := range node.List {
			items[i] = datum(child)
		}
		return items
	default:
		return node.Lit
	}
}

// formatValue renders a runtime value for display.
func formatValue(value any) string {
	switch v := value.(type) {
	case nil:
		return "nil"
	case string:
		return v
	case Symbol:
		return string(v)
	case bool:
		return strconv.FormatBool(v)
	case int64:
		return strconv.FormatInt(v, 10)
	case float64:
		return strconv.FormatFloat(v, 'g', -1, 64)
	case []any:
		parts := make([]string, len(v))
		for i, item := range v {
			parts[i] = formatValue(item)
		}
		return "(" + strings.Join(parts, " ") + ")"
	case fmt.Stringer:
		return v.String()
	default:
		return fmt.Sprintf("%v", v)
	}
}
