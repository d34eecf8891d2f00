package task

import (
	"context"
	"log"
	"sort"
	"sync"
)

// ToolFunc is a direct tool: a synchronous function invoked by the evaluator
// with already-evaluated arguments.
type ToolFunc func(ctx context.Context, args []any) (any, error)

// Registry maps names to task templates and direct tools. It is an
// explicitly constructed service, not a process-wide singleton, so tests can
// instantiate isolated registries.
type Registry struct {
	mu           sync.RWMutex
	templates    map[string]*Template
	tools        map[string]ToolFunc
	subtaskHints map[string][]string
	warnFn       func(format string, args ...any)
}

// NewRegistry creates an empty registry. Warnings go to the standard logger
// unless SetWarnFunc installs another sink.
func NewRegistry() *Registry {
	return &Registry{
		templates:    make(map[string]*Template),
		tools:        make(map[string]ToolFunc),
		subtaskHints: make(map[string][]string),
		warnFn:       log.Printf,
	}
}

// SetWarnFunc replaces the warning sink.
func (r *Registry) SetWarnFunc(fn func(format string, args ...any)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if fn != nil {
		r.warnFn = fn
	}
}

// Register validates the template and adds it. A name collision overwrites
// the previous registration and emits a warning; it is never silent.
// Validation failures (including the fresh/inherit exclusivity invariant)
// are rejected here, never at execution time.
func (r *Registry) Register(tmpl *Template) error {
	if err := tmpl.Validate(); err != nil {
		return err
	}

	r.mu.Lock()
	_, collision := r.templates[tmpl.Name]
	r.templates[tmpl.Name] = tmpl
	warn := r.warnFn
	r.mu.Unlock()

	if collision {
		warn("registry: template %q overwritten", tmpl.Name)
	}
	return nil
}

// Find returns the template for name, or nil.
func (r *Registry) Find(name string) *Template {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.templates[name]
}

// Names returns all registered template names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.templates))
	for name := range r.templates {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// RegisterTool adds a direct tool. Collisions overwrite with a warning, the
// same policy as templates.
func (r *Registry) RegisterTool(name string, fn ToolFunc) {
	r.mu.Lock()
	_, collision := r.tools[name]
	r.tools[name] = fn
	warn := r.warnFn
	r.mu.Unlock()

	if collision {
		warn("registry: tool %q overwritten", name)
	}
}

// Tool returns the tool function for name, or nil.
func (r *Registry) Tool(name string) ToolFunc {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.tools[name]
}

// RegisterSubtaskTool records a subtask-capable tool with forwarding hints
// attached to outbound payloads for that tool.
func (r *Registry) RegisterSubtaskTool(name string, hints []string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.subtaskHints[name] = append([]string(nil), hints...)
}

// SubtaskHints returns the hints recorded for a subtask tool.
func (r *Registry) SubtaskHints(name string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.subtaskHints[name]
}
