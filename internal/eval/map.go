package eval

import (
	"context"
	"errors"
	"sync"

	"github.com/weft-dsl/weft/internal/sexpr"
	"github.com/weft-dsl/weft/pkg/models"
)

// evalMapForm evaluates (map fn items): fn applied to each item through a
// bounded worker pool. Results keep item order. The first failure cancels the
// remaining work and is returned with the failing item's index.
func evalMapForm(e *Evaluator, ctx context.Context, node *sexpr.Node, env *Environment) (any, error) {
	if len(node.List) != 3 {
		return nil, formError(node, "map takes a function and a list")
	}
	fnVal, err := e.Eval(ctx, node.List[1], env)
	if err != nil {
		return nil, err
	}
	itemsVal, err := e.Eval(ctx, node.List[2], env)
	if err != nil {
		return nil, err
	}
	items, ok := itemsVal.([]any)
	if !ok {
		return nil, formError(node, "map: second argument must be a list, got %s", formatValue(itemsVal))
	}
	if len(items) == 0 {
		return []any{}, nil
	}

	fn, err := e.mapCallable(ctx, node, fnVal)
	if err != nil {
		return nil, err
	}
	return e.fanOut(ctx, fn, items)
}

// mapCallable resolves the map target into a direct callable. A quoted symbol
// naming a template or tool is accepted alongside closures and builtins.
func (e *Evaluator) mapCallable(_ context.Context, node *sexpr.Node, fnVal any) (func(ctx context.Context, item any) (any, error), error) {
	switch fn := fnVal.(type) {
	case *Closure, *Builtin:
		return func(ctx context.Context, item any) (any, error) {
			return e.call(ctx, fn, []any{item})
		}, nil
	case Symbol:
		name := string(fn)
		registry := e.spawner.Registry()
		if tmpl := registry.Find(name); tmpl != nil {
			params := tmpl.Params
			return func(ctx context.Context, item any) (any, error) {
				return e.applyTemplate(ctx, name, params, []any{item})
			}, nil
		}
		if tool := registry.Tool(name); tool != nil {
			return func(ctx context.Context, item any) (any, error) {
				return tool(ctx, []any{item})
			}, nil
		}
		return nil, formError(node, "map: %q is not a template or tool", name)
	default:
		return nil, formError(node, "map: first argument must be a function, got %s", formatValue(fnVal))
	}
}

// fanOut applies fn to every item with at most e.workers concurrent
// applications, preserving input order in the result slice.
func (e *Evaluator) fanOut(ctx context.Context, fn func(ctx context.Context, item any) (any, error), items []any) ([]any, error) {
	workers := e.workers
	if workers < 1 {
		workers = 1
	}
	if workers > len(items) {
		workers = len(items)
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	type job struct {
		index int
		item  any
	}
	jobs := make(chan job)
	results := make([]any, len(items))

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		firstErr error
		firstIdx int
	)
	record := func(index int, err error) {
		mu.Lock()
		defer mu.Unlock()
		// Cancellation fallout from an already-recorded failure is not a
		// failure of its own item.
		if firstErr != nil && errors.Is(err, context.Canceled) {
			return
		}
		if firstErr == nil || index < firstIdx {
			firstErr = err
			firstIdx = index
			cancel()
		}
	}

	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := range jobs {
				if ctx.Err() != nil {
					return
				}
				value, err := fn(ctx, j.item)
				if err != nil {
					record(j.index, err)
					return
				}
				results[j.index] = value
			}
		}()
	}

feed:
	for i, item := range items {
		select {
		case jobs <- job{index: i, item: item}:
		case <-ctx.Done():
			break feed
		}
	}
	close(jobs)
	wg.Wait()

	if firstErr != nil {
		if failure, ok := models.AsTaskFailure(firstErr); ok {
			if failure.Index < 0 {
				failure.Index = firstIdx
			}
			return nil, failure
		}
		failure := models.NewTaskFailure(models.ReasonSubtaskFailure, "map item %d failed", firstIdx)
		failure.Index = firstIdx
		failure.Err = firstErr
		return nil, failure
	}
	return results, nil
}
