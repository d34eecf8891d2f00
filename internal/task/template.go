// Package task holds the task-template registry and the atomic task
// executor: the bridge between DSL applications and external LLM/tool calls.
package task

import (
	"regexp"
	"time"

	"github.com/weft-dsl/weft/internal/assemble"
	"github.com/weft-dsl/weft/pkg/models"
)

// placeholderRe matches {{name}} parameter placeholders in prompt text.
var placeholderRe = regexp.MustCompile(`\{\{([a-zA-Z_][a-zA-Z0-9_]*)\}\}`)

// OutputFormat declares how task output should be parsed and validated.
type OutputFormat struct {
	// Type is the output type: "text" or "json".
	Type string `yaml:"type" json:"type"`
	// Schema is an optional YAML schema hint (field name -> type) checked
	// against parsed JSON output.
	Schema string `yaml:"schema,omitempty" json:"schema,omitempty"`
}

// TerminationCondition optionally ends a Director-Evaluator loop early when
// an evaluator-reported numeric metric reaches a threshold.
type TerminationCondition struct {
	// MetricKey is the evaluator note holding the metric.
	MetricKey string `yaml:"metric" json:"metric"`
	// Threshold ends the loop when the metric is >= this value.
	Threshold float64 `yaml:"threshold" json:"threshold"`
}

// LoopSpec configures a director_evaluator_loop template.
type LoopSpec struct {
	// Director is the template generating each candidate.
	Director string `yaml:"director" json:"director"`
	// Evaluator is the template judging each candidate; its result notes
	// must carry success and feedback.
	Evaluator string `yaml:"evaluator" json:"evaluator"`
	// Script is an optional shell command run between the two steps.
	Script string `yaml:"script,omitempty" json:"script,omitempty"`
	// ScriptTimeout is the script deadline as a Go duration string.
	ScriptTimeout string `yaml:"script_timeout,omitempty" json:"script_timeout,omitempty"`
	// MaxIterations caps loop iterations; 0 means the default of 5.
	MaxIterations int `yaml:"max_iterations,omitempty" json:"max_iterations,omitempty"`
	// Terminate is the optional early-termination condition.
	Terminate *TerminationCondition `yaml:"terminate,omitempty" json:"terminate,omitempty"`
}

// ScriptTimeoutDuration parses ScriptTimeout, returning 0 when unset.
func (s *LoopSpec) ScriptTimeoutDuration() time.Duration {
	if s.ScriptTimeout == "" {
		return 0
	}
	d, err := time.ParseDuration(s.ScriptTimeout)
	if err != nil {
		return 0
	}
	return d
}

// Template is a registered task definition. Templates are created at
// registration and live for the registry's lifetime.
type Template struct {
	// Name is the unique template name applications resolve against.
	Name string `yaml:"name" json:"name"`
	// Type is the operator type; empty defaults to atomic.
	Type models.OperatorType `yaml:"type,omitempty" json:"type,omitempty"`
	// Description explains what the task does.
	Description string `yaml:"description,omitempty" json:"description,omitempty"`
	// Prompt is the instruction text with {{param}} placeholders.
	Prompt string `yaml:"prompt" json:"prompt"`
	// System is the optional system prompt.
	System string `yaml:"system,omitempty" json:"system,omitempty"`
	// Params are the declared parameter names, in application order.
	Params []string `yaml:"params,omitempty" json:"params,omitempty"`
	// Output optionally declares the expected output format.
	Output *OutputFormat `yaml:"output,omitempty" json:"output,omitempty"`
	// Context optionally overrides the operator-type context defaults.
	Context *models.ContextOverride `yaml:"context_management,omitempty" json:"context_management,omitempty"`
	// Loop configures director_evaluator_loop templates.
	Loop *LoopSpec `yaml:"loop,omitempty" json:"loop,omitempty"`
}

// EffectiveType returns the operator type, defaulted to atomic.
func (t *Template) EffectiveType() models.OperatorType {
	if t.Type == "" {
		return models.OpAtomic
	}
	return t.Type
}

// Placeholders returns the distinct placeholder names in the prompt, in
// first-appearance order.
func (t *Template) Placeholders() []string {
	seen := make(map[string]bool)
	var names []string
	for _, m := range placeholderRe.FindAllStringSubmatch(t.Prompt, -1) {
		if !seen[m[1]] {
			seen[m[1]] = true
			names = append(names, m[1])
		}
	}
	return names
}

// Validate checks the template at registration time: schema shape, declared
// parameters covering prompt placeholders, loop wiring, and the merged
// context-management invariant. Violations never reach execution.
func (t *Template) Validate() error {
	if t.Name == "" {
		return models.NewValidationError("template has no name")
	}
	if t.Type != "" && !t.Type.Valid() {
		return models.NewValidationError("template %q has unknown type %q", t.Name, t.Type)
	}

	declared := make(map[string]bool, len(t.Params))
	for _, p := range t.Params {
		if p == "" {
			return models.NewValidationError("template %q declares an empty parameter name", t.Name)
		}
		if declared[p] {
			return models.NewValidationError("template %q declares parameter %q twice", t.Name, p)
		}
		declared[p] = true
	}
	for _, name := range t.Placeholders() {
		if !declared[name] && !isLoopBinding(name) {
			return models.NewValidationError("template %q references undeclared parameter {{%s}}", t.Name, name)
		}
	}

	if t.Output != nil {
		switch t.Output.Type {
		case "", "text", "json":
		default:
			return models.NewValidationError("template %q has unknown output type %q", t.Name, t.Output.Type)
		}
		if t.Output.Schema != "" {
			if _, err := parseSchema(t.Output.Schema); err != nil {
				return err
			}
		}
	}

	if t.EffectiveType() == models.OpDirectorEvaluatorLoop {
		if t.Loop == nil || t.Loop.Director == "" || t.Loop.Evaluator == "" {
			return models.NewValidationError("loop template %q must name director and evaluator templates", t.Name)
		}
		if t.Loop.ScriptTimeout != "" {
			if _, err := time.ParseDuration(t.Loop.ScriptTimeout); err != nil {
				return models.NewValidationError("loop template %q has bad script_timeout %q", t.Name, t.Loop.ScriptTimeout)
			}
		}
		if t.Loop.MaxIterations < 0 {
			return models.NewValidationError("loop template %q has negative max_iterations", t.Name)
		}
	} else if t.Loop != nil {
		return models.NewValidationError("template %q has a loop section but type %q", t.Name, t.EffectiveType())
	}

	// Fresh/inherit exclusivity is rejected here, at registration.
	if _, err := assemble.Effective(t.EffectiveType(), t.Context); err != nil {
		return err
	}
	return nil
}

// isLoopBinding reports whether a placeholder is one of the iteration-scoped
// bindings the loop controller injects; director/evaluator templates may use
// these without declaring them.
func isLoopBinding(name string) bool {
	switch name {
	case "iteration", "feedback", "director_result",
		"script_stdout", "script_stderr", "script_exit_code":
		return true
	default:
		return false
	}
}
