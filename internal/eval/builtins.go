package eval

import (
	"context"
	"strings"

	"github.com/weft-dsl/weft/pkg/models"
)

// installBuiltins binds the primitive function set into env.
func installBuiltins(env *Environment) {
	for name, fn := range builtins {
		env.Define(name, &Builtin{Name: name, Fn: fn})
	}
}

var builtins = map[string]BuiltinFunc{
	"+":      numericFold("+", func(a, b float64) float64 { return a + b }, func(a, b int64) int64 { return a + b }),
	"-":      numericSub,
	"*":      numericFold("*", func(a, b float64) float64 { return a * b }, func(a, b int64) int64 { return a * b }),
	"/":      numericDiv,
	"=":      compare("=", func(a, b float64) bool { return a == b }),
	"<":      compare("<", func(a, b float64) bool { return a < b }),
	">":      compare(">", func(a, b float64) bool { return a > b }),
	"<=":     compare("<=", func(a, b float64) bool { return a <= b }),
	">=":     compare(">=", func(a, b float64) bool { return a >= b }),
	"not":    builtinNot,
	"first":  builtinFirst,
	"rest":   builtinRest,
	"cons":   builtinCons,
	"length": builtinLength,
	"append": builtinAppend,
	"nth":    builtinNth,
	"str":    builtinStr,
}

func argError(name, format string, args ...any) error {
	return models.NewTaskFailure(models.ReasonInputValidation,
		"%s: "+format, append([]any{name}, args...)...)
}

// asNumber widens a numeric value to float64, remembering whether it started
// integral so integer-only arithmetic stays integral.
func asNumber(name string, v any) (float64, bool, error) {
	switch n := v.(type) {
	case int64:
		return float64(n), true, nil
	case float64:
		return n, false, nil
	default:
		return 0, false, argError(name, "expected a number, got %s", formatValue(v))
	}
}

func numericFold(name string, ff func(a, b float64) float64, fi func(a, b int64) int64) BuiltinFunc {
	return func(_ context.Context, args []any) (any, error) {
		if len(args) == 0 {
			return nil, argError(name, "needs at least one argument")
		}
		acc, integral, err := asNumber(name, args[0])
		if err != nil {
			return nil, err
		}
		accInt, _ := args[0].(int64)
		for _, arg := range args[1:] {
			f, isInt, err := asNumber(name, arg)
			if err != nil {
				return nil, err
			}
			acc = ff(acc, f)
			if integral && isInt {
				accInt = fi(accInt, arg.(int64))
			} else {
				integral = false
			}
		}
		if integral {
			return accInt, nil
		}
		return acc, nil
	}
}

func numericSub(_ context.Context, args []any) (any, error) {
	if len(args) == 0 {
		return nil, argError("-", "needs at least one argument")
	}
	if len(args) == 1 {
		switch n := args[0].(type) {
		case int64:
			return -n, nil
		case float64:
			return -n, nil
		default:
			return nil, argError("-", "expected a number, got %s", formatValue(args[0]))
		}
	}
	return numericFold("-", func(a, b float64) float64 { return a - b }, func(a, b int64) int64 { return a - b })(nil, args)
}

func numericDiv(_ context.Context, args []any) (any, error) {
	if len(args) < 2 {
		return nil, argError("/", "needs at least two arguments")
	}
	acc, _, err := asNumber("/", args[0])
	if err != nil {
		return nil, err
	}
	for _, arg := range args[1:] {
		f, _, err := asNumber("/", arg)
		if err != nil {
			return nil, err
		}
		if f == 0 {
			return nil, argError("/", "division by zero")
		}
		acc /= f
	}
	return acc, nil
}

func compare(name string, cmp func(a, b float64) bool) BuiltinFunc {
	return func(_ context.Context, args []any) (any, error) {
		if len(args) < 2 {
			return nil, argError(name, "needs at least two arguments")
		}
		prev, _, err := asNumber(name, args[0])
		if err != nil {
			return nil, err
		}
		for _, arg := range args[1:] {
			next, _, err := asNumber(name, arg)
			if err != nil {
				return nil, err
			}
			if !cmp(prev, next) {
				return false, nil
			}
			prev = next
		}
		return true, nil
	}
}

func builtinNot(_ context.Context, args []any) (any, error) {
	if len(args) != 1 {
		return nil, argError("not", "takes exactly one argument")
	}
	return !truthy(args[0]), nil
}

func asList(name string, v any) ([]any, error) {
	list, ok := v.([]any)
	if !ok {
		return nil, argError(name, "expected a list, got %s", formatValue(v))
	}
	return list, nil
}

func builtinFirst(_ context.Context, args []any) (any, error) {
	if len(args) != 1 {
		return nil, argError("first", "takes exactly one argument")
	}
	list, err := asList("first", args[0])
	if err != nil {
		return nil, err
	}
	if len(list) == 0 {
		return nil, nil
	}
	return list[0], nil
}

func builtinRest(_ context.Context, args []any) (any, error) {
	if len(args) != 1 {
		return nil, argError("rest", "takes exactly one argument")
	}
	list, err := asList("rest", args[0])
	if err != nil {
		return nil, err
	}
	if len(list) == 0 {
		return []any{}, nil
	}
	return append([]any(nil), list[1:]...), nil
}

func builtinCons(_ context.Context, args []any) (any, error) {
	if len(args) != 2 {
		return nil, argError("cons", "takes exactly two arguments")
	}
	list, err := asList("cons", args[1])
	if err != nil {
		return nil, err
	}
	return append([]any{args[0]}, list...), nil
}

func builtinLength(_ context.Context, args []any) (any, error) {
	if len(args) != 1 {
		return nil, argError("length", "takes exactly one argument")
	}
	switch v := args[0].(type) {
	case []any:
		return int64(len(v)), nil
	case string:
		return int64(len(v)), nil
	default:
		return nil, argError("length", "expected a list or string, got %s", formatValue(args[0]))
	}
}

func builtinAppend(_ context.Context, args []any) (any, error) {
	var out []any
	for _, arg := range args {
		list, err := asList("append", arg)
		if err != nil {
			return nil, err
		}
		out = append(out, list...)
	}
	if out == nil {
		out = []any{}
	}
	return out, nil
}

func builtinNth(_ context.Context, args []any) (any, error) {
	if len(args) != 2 {
		return nil, argError("nth", "takes an index and a list")
	}
	idx, ok := args[0].(int64)
	if !ok {
		return nil, argError("nth", "index must be an integer")
	}
	list, err := asList("nth", args[1])
	if err != nil {
		return nil, err
	}
	if idx < 0 || idx >= int64(len(list)) {
		return nil, argError("nth", "index %d out of range for list of %d", idx, len(list))
	}
	return list[idx], nil
}

func builtinStr(_ context.Context, args []any) (any, error) {
	var b strings.Builder
	for _, arg := range args {
		b.WriteString(formatValue(arg))
	}
	return b.String(), nil
}
