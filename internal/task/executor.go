package task

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/weft-dsl/weft/internal/assemble"
	"github.com/weft-dsl/weft/internal/handler"
	"github.com/weft-dsl/weft/internal/resource"
	"github.com/weft-dsl/weft/pkg/models"
)

// ExecOptions carries per-invocation material the executor cannot derive
// from the template alone.
type ExecOptions struct {
	// Parent is the parent task's assembled context.
	Parent string
	// ParentSections are labeled parent fragments for subset inheritance.
	ParentSections map[string]string
	// Steps are prior-step records for accumulation.
	Steps []assemble.StepRecord
	// Override is the request-level context-management override, applied
	// on top of the template's own.
	Override *models.ContextOverride
	// Query drives fresh retrieval when enabled.
	Query string
	// FilePaths scope subset inheritance and retrieval.
	FilePaths []string
	// Hints are forwarded to the handler payload.
	Hints []string
}

// Executor performs atomic task execution: literal parameter substitution,
// context assembly, resource charging, and a single delegated external call.
// It never recursively evaluates expressions.
type Executor struct {
	handler   handler.Handler
	assembler *assemble.Assembler
	tracker   *resource.Tracker
	maxTokens int
}

// NewExecutor creates an Executor wired to its collaborators.
func NewExecutor(h handler.Handler, assembler *assemble.Assembler, tracker *resource.Tracker) *Executor {
	return &Executor{handler: h, assembler: assembler, tracker: tracker}
}

// SetMaxTokens caps the completion size requested with every payload. 0
// keeps the handler default.
func (e *Executor) SetMaxTokens(n int) {
	e.maxTokens = n
}

// Execute runs one atomic task. Substitution is strictly literal: every
// {{name}} placeholder must have a key in params; there is no reach into any
// outer scope. Missing parameters fail before any external call.
func (e *Executor) Execute(ctx context.Context, tmpl *Template, params map[string]any, opts *ExecOptions) (*models.TaskResult, error) {
	if opts == nil {
		opts = &ExecOptions{}
	}

	prompt, err := Substitute(tmpl.Prompt, params)
	if err != nil {
		return nil, err
	}

	cm, err := assemble.Effective(tmpl.EffectiveType(), tmpl.Context, opts.Override)
	if err != nil {
		// Registration already validated template settings; only a bad
		// request-level override can land here.
		return nil, err
	}

	notes := make(map[string]any)
	assembled, err := e.assembler.Assemble(ctx, cm, assemble.Input{
		Parent:         opts.Parent,
		ParentSections: opts.ParentSections,
		FilePaths:      opts.FilePaths,
		Query:          opts.Query,
		Steps:          opts.Steps,
	}, notes)
	if err != nil {
		return nil, err
	}

	// Charge before the external call: a rejected charge means the call
	// is never issued.
	if err := e.tracker.IncrementTurn(); err != nil {
		return nil, err
	}
	if err := e.tracker.AddContextUsage(len(prompt) + len(assembled)); err != nil {
		return nil, err
	}

	result, err := e.handler.ExecutePrompt(ctx, &handler.Payload{
		Prompt:    prompt,
		System:    tmpl.System,
		Context:   assembled,
		Hints:     opts.Hints,
		MaxTokens: e.maxTokens,
	})
	if err != nil {
		return nil, err
	}

	for key, value := range notes {
		result.Note(key, value)
	}
	result.Note("template", tmpl.Name)

	if err := e.tracker.AddContextUsage(len(result.Content)); err != nil {
		if re, ok := models.AsResourceExhausted(err); ok {
			re.Partial = result.Content
		}
		return nil, err
	}
	result.Note("resources", e.tracker.Snapshot())

	if tmpl.Output != nil && tmpl.Output.Type == "json" {
		if err := parseOutput(tmpl.Output, result); err != nil {
			return result, err
		}
	}
	return result, nil
}

// Substitute performs literal {{name}} replacement using keys present in
// params. Any placeholder without a matching key is an input-validation
// failure.
func Substitute(text string, params map[string]any) (string, error) {
	var missing []string
	out := placeholderRe.ReplaceAllStringFunc(text, func(m string) string {
		name := placeholderRe.FindStringSubmatch(m)[1]
		value, ok := params[name]
		if !ok {
			missing = append(missing, name)
			return m
		}
		return formatParam(value)
	})
	if len(missing) > 0 {
		return "", models.NewTaskFailure(models.ReasonInputValidation,
			"missing parameter(s) %s", strings.Join(missing, ", "))
	}
	return out, nil
}

// formatParam renders a parameter value for prompt insertion: strings as-is,
// everything else as compact JSON.
func formatParam(value any) string {
	switch v := value.(type) {
	case string:
		return v
	case nil:
		return "null"
	default:
		data, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprintf("%v", v)
		}
		return string(data)
	}
}

// parseOutput parses and validates JSON output in place. On failure the raw
// content is preserved, the result is marked FAILED with the parse error in
// notes, and an InvalidOutput error is returned.
func parseOutput(format *OutputFormat, result *models.TaskResult) error {
	raw := unwrapFenced(result.Content)

	var parsed any
	if err := json.Unmarshal([]byte(raw), &parsed); err != nil {
		result.Status = models.StatusFailed
		result.Note("parse_error", err.Error())
		return &models.InvalidOutput{Message: "output is not valid JSON", Raw: result.Content, Err: err}
	}

	if format.Schema != "" {
		fields, err := parseSchema(format.Schema)
		if err != nil {
			return err
		}
		if err := checkSchema(parsed, fields); err != nil {
			result.Status = models.StatusFailed
			result.Note("parse_error", err.Error())
			return &models.InvalidOutput{Message: "output does not match declared schema", Raw: result.Content, Err: err}
		}
	}

	result.ParsedContent = parsed
	return nil
}

// unwrapFenced strips a surrounding markdown code fence, if present.
func unwrapFenced(s string) string {
	trimmed := strings.TrimSpace(s)
	if !strings.HasPrefix(trimmed, "```") {
		return trimmed
	}
	trimmed = strings.TrimPrefix(trimmed, "```")
	if idx := strings.IndexByte(trimmed, '\n'); idx >= 0 {
		trimmed = trimmed[idx+1:]
	}
	trimmed = strings.TrimSuffix(strings.TrimSpace(trimmed), "```")
	return strings.TrimSpace(trimmed)
}
