package eval

import (
	"context"
	"fmt"

	"github.com/weft-dsl/weft/internal/handler"
	"github.com/weft-dsl/weft/internal/resource"
	"github.com/weft-dsl/weft/internal/sexpr"
	"github.com/weft-dsl/weft/internal/spawn"
	"github.com/weft-dsl/weft/pkg/models"
)

// DefaultMapWorkers is the map fan-out width when none is configured.
const DefaultMapWorkers = 1

// Evaluator evaluates DSL programs. Application heads resolve in order:
// lexical environment, then template registry, then tool registry; the first
// hit wins, so a local binding shadows a template of the same name.
type Evaluator struct {
	spawner   *spawn.Controller
	tracker   *resource.Tracker
	retriever handler.ContextRetriever
	global    *Environment
	chain     *spawn.CallChain
	workers   int
	maxDepth  int
}

// Option configures an Evaluator.
type Option func(*Evaluator)

// WithMapWorkers sets the bounded fan-out width for map.
func WithMapWorkers(n int) Option {
	return func(e *Evaluator) {
		if n > 0 {
			e.workers = n
		}
	}
}

// WithMaxDepth sets the nesting limit stamped on spawned requests. 0 keeps
// the request default.
func WithMaxDepth(n int) Option {
	return func(e *Evaluator) {
		if n > 0 {
			e.maxDepth = n
		}
	}
}

// WithTracker wires the session resource tracker, exposed to programs via
// (resources).
func WithTracker(tracker *resource.Tracker) Option {
	return func(e *Evaluator) { e.tracker = tracker }
}

// WithRetriever wires the context retriever backing get_context.
func WithRetriever(retriever handler.ContextRetriever) Option {
	return func(e *Evaluator) { e.retriever = retriever }
}

// NewEvaluator creates an evaluator dispatching applications through the
// given spawn controller.
func NewEvaluator(spawner *spawn.Controller, opts ...Option) *Evaluator {
	e := &Evaluator{
		spawner: spawner,
		global:  NewEnvironment(nil),
		chain:   spawn.NewCallChain(),
		workers: DefaultMapWorkers,
	}
	installBuiltins(e.global)
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Global returns the global environment, for host-side bindings.
func (e *Evaluator) Global() *Environment {
	return e.global
}

// EvalString parses and evaluates a program, returning the last top-level
// expression's value. Parse and evaluation errors carry source positions
// where available.
func (e *Evaluator) EvalString(ctx context.Context, src string) (any, error) {
	nodes, err := sexpr.Parse(src)
	if err != nil {
		return nil, sexpr.WrapErrorWithSource(err, src)
	}
	var last any
	for _, node := range nodes {
		last, err = e.Eval(ctx, node, e.global)
		if err != nil {
			return nil, err
		}
	}
	return last, nil
}

// Eval evaluates one expression in the given environment.
func (e *Evaluator) Eval(ctx context.Context, node *sexpr.Node, env *Environment) (any, error) {
	if err := ctx.Err(); err != nil {
		halted := models.NewTaskFailure(models.ReasonExecutionHalted, "evaluation halted")
		halted.Err = err
		return nil, halted
	}

	switch node.Kind {
	case sexpr.KindLiteral:
		return node.Lit, nil

	case sexpr.KindSymbol:
		if value, ok := env.Lookup(node.Sym); ok {
			return value, nil
		}
		return nil, models.NewTaskFailure(models.ReasonInputValidation,
			"unbound symbol %q at line %d, col %d", node.Sym, node.Line, node.Col)

	case sexpr.KindList:
		if len(node.List) == 0 {
			return nil, nil
		}
		if head := node.Head(); head.Kind == sexpr.KindSymbol {
			if fn, ok := specialForms[head.Sym]; ok {
				return fn(e, ctx, node, env)
			}
		}
		return e.apply(ctx, node, env)

	default:
		return nil, models.NewTaskFailure(models.ReasonUnexpected, "unknown node kind %d", node.Kind)
	}
}

// specialForm evaluates one special form; node is the whole list.
type specialForm func(e *Evaluator, ctx context.Context, node *sexpr.Node, env *Environment) (any, error)

var specialForms map[string]specialForm

func init() {
	specialForms = map[string]specialForm{
		"define":      evalDefine,
		"lambda":      evalLambda,
		"if":          evalIf,
		"cond":        evalCond,
		"let":         evalLet,
		"quote":       evalQuote,
		"list":        evalList,
		"and":         evalAnd,
		"or":          evalOr,
		"map":         evalMapForm,
		"get_context": evalGetContext,
		"resources":   evalResources,
	}
}

// apply evaluates an application: head resolution, argument evaluation left
// to right, then dispatch.
func (e *Evaluator) apply(ctx context.Context, node *sexpr.Node, env *Environment) (any, error) {
	head := node.Head()

	var (
		target any
		bound  bool
	)
	if head.Kind == sexpr.KindSymbol {
		target, bound = env.Lookup(head.Sym)
	} else {
		value, err := e.Eval(ctx, head, env)
		if err != nil {
			return nil, err
		}
		target, bound = value, true
	}

	args := make([]any, 0, len(node.List)-1)
	for _, argNode := range node.List[1:] {
		value, err := e.Eval(ctx, argNode, env)
		if err != nil {
			return nil, err
		}
		args = append(args, value)
	}

	if bound {
		return e.call(ctx, target, args)
	}

	// Not bound in any scope: resolve against the registry.
	name := head.Sym
	registry := e.spawner.Registry()
	if tmpl := registry.Find(name); tmpl != nil {
		return e.applyTemplate(ctx, tmpl.Name, tmpl.Params, args)
	}
	if tool := registry.Tool(name); tool != nil {
		result, err := tool(ctx, args)
		if err != nil {
			if _, ok := models.AsTaskFailure(err); ok {
				return nil, err
			}
			failure := models.NewTaskFailure(models.ReasonToolExecution, "tool %q failed", name)
			failure.Err = err
			return nil, failure
		}
		return result, nil
	}
	return nil, models.NewTaskFailure(models.ReasonTemplateNotFound,
		"%q is not a bound function, template, or tool (line %d, col %d)",
		name, node.Line, node.Col)
}

// call invokes an already-resolved callable value.
func (e *Evaluator) call(ctx context.Context, target any, args []any) (any, error) {
	switch fn := target.(type) {
	case *Closure:
		env, err := fn.Env.Extend(fn.Params, args)
		if err != nil {
			return nil, err
		}
		var last any
		for _, form := range fn.Body {
			last, err = e.Eval(ctx, form, env)
			if err != nil {
				return nil, err
			}
		}
		return last, nil
	case *Builtin:
		return fn.Fn(ctx, args)
	default:
		return nil, models.NewTaskFailure(models.ReasonInputValidation,
			"cannot apply non-function value %s", formatValue(target))
	}
}

// applyTemplate maps positional arguments onto the template's declared
// parameters and dispatches through the spawn controller.
func (e *Evaluator) applyTemplate(ctx context.Context, name string, params []string, args []any) (any, error) {
	if len(args) != len(params) {
		return nil, models.NewTaskFailure(models.ReasonInputValidation,
			"template %q takes %d argument(s), got %d", name, len(params), len(args))
	}
	inputs := make(map[string]any, len(params))
	for i, p := range params {
		inputs[p] = args[i]
	}

	result, err := e.spawner.Spawn(ctx, &models.SubtaskRequest{Name: name, Inputs: inputs, MaxDepth: e.maxDepth}, e.chain)
	if err != nil {
		return nil, err
	}
	if result.ParsedContent != nil {
		return result.ParsedContent, nil
	}
	return result.Content, nil
}

func evalDefine(e *Evaluator, ctx context.Context, node *sexpr.Node, env *Environment) (any, error) {
	if len(node.List) < 3 {
		return nil, formError(node, "define needs a name and a value")
	}
	target := node.List[1]

	// (define (f a b) body...) sugar.
	if target.Kind == sexpr.KindList {
		if len(target.List) == 0 || target.List[0].Kind != sexpr.KindSymbol {
			return nil, formError(node, "define: malformed function signature")
		}
		params, err := paramNames(target.List[1:])
		if err != nil {
			return nil, formError(node, "define: %v", err)
		}
		closure := &Closure{Params: params, Body: node.List[2:], Env: env}
		env.Define(target.List[0].Sym, closure)
		return closure, nil
	}

	if target.Kind != sexpr.KindSymbol {
		return nil, formError(node, "define: name must be a symbol")
	}
	if len(node.List) != 3 {
		return nil, formError(node, "define takes exactly one value")
	}
	value, err := e.Eval(ctx, node.List[2], env)
	if err != nil {
		return nil, err
	}
	env.Define(target.Sym, value)
	return value, nil
}

func evalLambda(_ *Evaluator, _ context.Context, node *sexpr.Node, env *Environment) (any, error) {
	if len(node.List) < 3 || node.List[1].Kind != sexpr.KindList {
		return nil, formError(node, "lambda needs a parameter list and a body")
	}
	params, err := paramNames(node.List[1].List)
	if err != nil {
		return nil, formError(node, "lambda: %v", err)
	}
	return &Closure{Params: params, Body: node.List[2:], Env: env}, nil
}

func evalIf(e *Evaluator, ctx context.Context, node *sexpr.Node, env *Environment) (any, error) {
	if len(node.List) < 3 || len(node.List) > 4 {
		return nil, formError(node, "if takes a condition, a then-branch, and an optional else-branch")
	}
	cond, err := e.Eval(ctx, node.List[1], env)
	if err != nil {
		return nil, err
	}
	if truthy(cond) {
		return e.Eval(ctx, node.List[2], env)
	}
	if len(node.List) == 4 {
		return e.Eval(ctx, node.List[3], env)
	}
	return nil, nil
}

func evalCond(e *Evaluator, ctx context.Context, node *sexpr.Node, env *Environment) (any, error) {
	for _, clause := range node.List[1:] {
		if clause.Kind != sexpr.KindList || len(clause.List) < 2 {
			return nil, formError(node, "cond clause must be (test expr...)")
		}
		matched := clause.List[0].IsSymbol("else")
		if !matched {
			test, err := e.Eval(ctx, clause.List[0], env)
			if err != nil {
				return nil, err
			}
			matched = truthy(test)
		}
		if matched {
			var last any
			var err error
			for _, form := range clause.List[1:] {
				last, err = e.Eval(ctx, form, env)
				if err != nil {
					return nil, err
				}
			}
			return last, nil
		}
	}
	return nil, nil
}

func evalLet(e *Evaluator, ctx context.Context, node *sexpr.Node, env *Environment) (any, error) {
	if len(node.List) < 3 || node.List[1].Kind != sexpr.KindList {
		return nil, formError(node, "let needs a binding list and a body")
	}
	child := NewEnvironment(env)
	for _, binding := range node.List[1].List {
		if binding.Kind != sexpr.KindList || len(binding.List) != 2 || binding.List[0].Kind != sexpr.KindSymbol {
			return nil, formError(node, "let binding must be (name value)")
		}
		// Bindings see earlier bindings of the same let.
		value, err := e.Eval(ctx, binding.List[1], child)
		if err != nil {
			return nil, err
		}
		child.Define(binding.List[0].Sym, value)
	}
	var last any
	var err error
	for _, form := range node.List[2:] {
		last, err = e.Eval(ctx, form, child)
		if err != nil {
			return nil, err
		}
	}
	return last, nil
}

func evalQuote(_ *Evaluator, _ context.Context, node *sexpr.Node, _ *Environment) (any, error) {
	if len(node.List) != 2 {
		return nil, formError(node, "quote takes exactly one form")
	}
	return datum(node.List[1]), nil
}

func evalList(e *Evaluator, ctx context.Context, node *sexpr.Node, env *Environment) (any, error) {
	items := make([]any, 0, len(node.List)-1)
	for _, child := range node.List[1:] {
		value, err := e.Eval(ctx, child, env)
		if err != nil {
			return nil, err
		}
		items = append(items, value)
	}
	return items, nil
}

func evalAnd(e *Evaluator, ctx context.Context, node *sexpr.Node, env *Environment) (any, error) {
	var last any = true
	for _, child := range node.List[1:] {
		value, err := e.Eval(ctx, child, env)
		if err != nil {
			return nil, err
		}
		if !truthy(value) {
			return value, nil
		}
		last = value
	}
	return last, nil
}

func evalOr(e *Evaluator, ctx context.Context, node *sexpr.Node, env *Environment) (any, error) {
	for _, child := range node.List[1:] {
		value, err := e.Eval(ctx, child, env)
		if err != nil {
			return nil, err
		}
		if truthy(value) {
			return value, nil
		}
	}
	return nil, nil
}

func evalGetContext(e *Evaluator, ctx context.Context, node *sexpr.Node, env *Environment) (any, error) {
	if len(node.List) < 2 {
		return nil, formError(node, "get_context takes a query and optional paths")
	}
	if e.retriever == nil {
		return nil, models.NewTaskFailure(models.ReasonContextRetrieval, "no context retriever configured")
	}
	queryVal, err := e.Eval(ctx, node.List[1], env)
	if err != nil {
		return nil, err
	}
	query, ok := queryVal.(string)
	if !ok {
		return nil, formError(node, "get_context query must be a string")
	}
	var paths []string
	for _, child := range node.List[2:] {
		value, err := e.Eval(ctx, child, env)
		if err != nil {
			return nil, err
		}
		path, ok := value.(string)
		if !ok {
			return nil, formError(node, "get_context paths must be strings")
		}
		paths = append(paths, path)
	}

	result, err := e.retriever.GetRelevantContext(ctx, &handler.ContextGenerationInput{Query: query, Paths: paths})
	if err != nil {
		failure := models.NewTaskFailure(models.ReasonContextRetrieval, "context retrieval failed")
		failure.Err = err
		return nil, failure
	}

	matches := make([]any, 0, len(result.Matches))
	for _, m := range result.Matches {
		entry := map[string]any{
			"path":      m.Path,
			"relevance": m.Relevance,
		}
		if m.Excerpt != "" {
			entry["excerpt"] = m.Excerpt
		}
		matches = append(matches, entry)
	}
	return matches, nil
}

func evalResources(e *Evaluator, _ context.Context, node *sexpr.Node, _ *Environment) (any, error) {
	if len(node.List) != 1 {
		return nil, formError(node, "resources takes no arguments")
	}
	if e.tracker == nil {
		return nil, nil
	}
	snapshot := e.tracker.Snapshot()
	return map[string]any{
		"turns_used":    int64(snapshot.Turns.Used),
		"turns_limit":   int64(snapshot.Turns.Limit),
		"context_used":  int64(snapshot.Context.Used),
		"context_limit": int64(snapshot.Context.Limit),
		"context_peak":  int64(snapshot.Context.Peak),
	}, nil
}

func paramNames(nodes []*sexpr.Node) ([]string, error) {
	params := make([]string, 0, len(nodes))
	seen := make(map[string]bool, len(nodes))
	for _, node := range nodes {
		if node.Kind != sexpr.KindSymbol {
			return nil, fmt.Errorf("parameter must be a symbol, got %s", node)
		}
		if seen[node.Sym] {
			return nil, fmt.Errorf("duplicate parameter %q", node.Sym)
		}
		seen[node.Sym] = true
		params = append(params, node.Sym)
	}
	return params, nil
}

func formError(node *sexpr.Node, format string, args ...any) error {
	msg := fmt.Sprintf(format, args...)
	return models.NewTaskFailure(models.ReasonInputValidation,
		"%s (line %d, col %d)", msg, node.Line, node.Col)
}
