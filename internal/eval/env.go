// Package eval implements the S-expression evaluator: lexical environments,
// closures, special forms, and application dispatch into the task layer.
package eval

import (
	"sync"

	"github.com/weft-dsl/weft/pkg/models"
)

// Environment is a lexical scope frame. Lookup walks the parent chain;
// Define always binds in the receiving frame, never a parent.
type Environment struct {
	mu     sync.RWMutex
	vars   map[string]any
	parent *Environment
}

// NewEnvironment creates a scope frame under parent; parent may be nil for
// the global frame.
func NewEnvironment(parent *Environment) *Environment {
	return &Environment{vars: make(map[string]any), parent: parent}
}

// Define binds name in this frame, shadowing any parent binding.
func (e *Environment) Define(name string, value any) {
	e.mu.Lock()
	e.vars[name] = value
	e.mu.Unlock()
}

// Lookup resolves name against this frame and its ancestors.
func (e *Environment) Lookup(name string) (any, bool) {
	for frame := e; frame != nil; frame = frame.parent {
		frame.mu.RLock()
		value, ok := frame.vars[name]
		frame.mu.RUnlock()
		if ok {
			return value, true
		}
	}
	return nil, false
}

// Extend creates a child frame binding params to args pairwise. Arity
// mismatches are input-validation failures.
func (e *Environment) Extend(params []string, args []any) (*Environment, error) {
	if len(params) != len(args) {
		return nil, models.NewTaskFailure(models.ReasonInputValidation,
			"expected %d argument(s), got %d", len(params), len(args))
	}
	child := NewEnvironment(e)
	for i, name := range params {
		child.vars[name] = args[i]
	}
	return child, nil
}
