// Package loop runs Director-Evaluator loops: bounded iterative refinement
// where a director template produces a candidate, an optional script exercises
// it, and an evaluator template judges it and feeds the verdict back.
package loop

import (
	"context"
	"fmt"
	"strconv"

	"github.com/weft-dsl/weft/internal/assemble"
	"github.com/weft-dsl/weft/internal/handler"
	"github.com/weft-dsl/weft/internal/task"
	"github.com/weft-dsl/weft/pkg/models"
)

// DefaultMaxIterations caps a loop whose template does not set its own limit.
const DefaultMaxIterations = 5

// Termination values recorded in the final result's notes.
const (
	TerminatedSuccess       = "success"
	TerminatedMaxIterations = "max_iterations"
	TerminatedCondition     = "condition_met"
)

// StepDispatcher issues director and evaluator step invocations. Routing
// steps through the spawn controller keeps depth and cycle guards active for
// nested invocations and sends loop-typed step templates back through the
// loop machinery instead of executing them as one atomic call.
type StepDispatcher interface {
	Dispatch(ctx context.Context, req *models.SubtaskRequest, opts *task.ExecOptions) (*models.TaskResult, error)
}

// Controller drives director_evaluator_loop templates: it sequences the
// steps and threads the iteration bindings through, delegating each step
// invocation to the dispatcher.
type Controller struct {
	registry *task.Registry
	executor *task.Executor
	runner   handler.CommandRunner
	dispatch StepDispatcher
}

// NewController creates a loop controller. runner may be nil when no loop
// template uses a script step.
func NewController(registry *task.Registry, executor *task.Executor, runner handler.CommandRunner) *Controller {
	return &Controller{registry: registry, executor: executor, runner: runner}
}

// SetDispatcher installs the step dispatcher. Must be called before Run;
// without one, steps execute directly against the executor and bypass the
// spawn guards.
func (c *Controller) SetDispatcher(d StepDispatcher) {
	c.dispatch = d
}

// step invokes one director or evaluator step. Bindings are copied so the
// request's inputs do not alias the mutating iteration map.
func (c *Controller) step(ctx context.Context, tmpl *task.Template, bindings map[string]any, opts *task.ExecOptions) (*models.TaskResult, error) {
	if c.dispatch == nil {
		return c.executor.Execute(ctx, tmpl, bindings, opts)
	}
	inputs := make(map[string]any, len(bindings))
	for k, v := range bindings {
		inputs[k] = v
	}
	return c.dispatch.Dispatch(ctx, &models.SubtaskRequest{Name: tmpl.Name, Inputs: inputs}, opts)
}

// Run executes one Director-Evaluator loop to termination. The returned
// result is the last director output; its notes carry "termination",
// "iterations", and the evaluator's final feedback.
func (c *Controller) Run(ctx context.Context, tmpl *task.Template, params map[string]any, opts *task.ExecOptions) (*models.TaskResult, error) {
	if tmpl.Loop == nil {
		return nil, models.NewValidationError("template %q is not a loop template", tmpl.Name)
	}
	director := c.registry.Find(tmpl.Loop.Director)
	if director == nil {
		return nil, models.NewTaskFailure(models.ReasonTemplateNotFound,
			"loop %q: director template %q not found", tmpl.Name, tmpl.Loop.Director)
	}
	evaluator := c.registry.Find(tmpl.Loop.Evaluator)
	if evaluator == nil {
		return nil, models.NewTaskFailure(models.ReasonTemplateNotFound,
			"loop %q: evaluator template %q not found", tmpl.Name, tmpl.Loop.Evaluator)
	}
	if tmpl.Loop.Script != "" && c.runner == nil {
		return nil, models.NewTaskFailure(models.ReasonToolExecution,
			"loop %q declares a script but no command runner is configured", tmpl.Name)
	}

	maxIter := tmpl.Loop.MaxIterations
	if maxIter <= 0 {
		maxIter = DefaultMaxIterations
	}
	if opts == nil {
		opts = &task.ExecOptions{}
	}

	bindings := make(map[string]any, len(params)+6)
	for k, v := range params {
		bindings[k] = v
	}
	bindings["feedback"] = ""

	var (
		last  *models.TaskResult
		steps = append([]assemble.StepRecord(nil), opts.Steps...)
	)
	for i := 1; i <= maxIter; i++ {
		bindings["iteration"] = int64(i)

		directorOpts := *opts
		directorOpts.Steps = steps
		result, err := c.step(ctx, director, bindings, &directorOpts)
		if err != nil {
			return nil, stepFailure(err, "director", i)
		}
		if result.Failed() {
			return result, iterationFailure("director", director.Name, i, result.Content)
		}
		last = result
		bindings["director_result"] = result.Content
		steps = append(steps, assemble.StepRecord{
			Name:    director.Name,
			Summary: fmt.Sprintf("iteration %d candidate", i),
			Output:  result.Content,
		})

		if tmpl.Loop.Script != "" {
			script, err := c.runner.Run(ctx, tmpl.Loop.Script, tmpl.Loop.ScriptTimeoutDuration(), map[string]string{
				"iteration":       strconv.Itoa(i),
				"director_result": result.Content,
			})
			if err != nil {
				return nil, stepFailure(err, "script", i)
			}
			bindings["script_stdout"] = script.Stdout
			bindings["script_stderr"] = script.Stderr
			bindings["script_exit_code"] = int64(script.ExitCode)
		}

		evalOpts := *opts
		evalOpts.Steps = steps
		verdict, err := c.step(ctx, evaluator, bindings, &evalOpts)
		if err != nil {
			return nil, stepFailure(err, "evaluator", i)
		}
		if verdict.Failed() {
			return verdict, iterationFailure("evaluator", evaluator.Name, i, verdict.Content)
		}
		promoteVerdict(verdict)

		feedback := verdict.StringNote("feedback")
		if feedback == "" {
			feedback = verdict.Content
		}
		bindings["feedback"] = feedback
		steps = append(steps, assemble.StepRecord{
			Name:    evaluator.Name,
			Summary: fmt.Sprintf("iteration %d verdict", i),
			Output:  feedback,
		})

		if verdict.BoolNote("success") {
			return finish(last, TerminatedSuccess, i, feedback, models.StatusComplete), nil
		}
		if cond := tmpl.Loop.Terminate; cond != nil {
			if metric, ok := floatNote(verdict, cond.MetricKey); ok && metric >= cond.Threshold {
				last.Note(cond.MetricKey, metric)
				return finish(last, TerminatedCondition, i, feedback, models.StatusComplete), nil
			}
		}
	}

	feedback, _ := bindings["feedback"].(string)
	return finish(last, TerminatedMaxIterations, maxIter, feedback, models.StatusContinuation), nil
}

func finish(result *models.TaskResult, termination string, iterations int, feedback string, status models.TaskStatus) *models.TaskResult {
	result.Status = status
	result.Note("termination", termination)
	result.Note("iterations", int64(iterations))
	if feedback != "" {
		result.Note("feedback", feedback)
	}
	return result
}

// stepFailure tags an underlying error with the loop step and iteration that
// produced it; typed failures pass through with the iteration filled in.
func stepFailure(err error, step string, iteration int) error {
	if failure, ok := models.AsTaskFailure(err); ok {
		if failure.Iteration == 0 {
			failure.Iteration = iteration
		}
		return failure
	}
	if _, ok := models.AsResourceExhausted(err); ok {
		return err
	}
	failure := models.NewTaskFailure(models.ReasonSubtaskFailure,
		"loop %s step failed on iteration %d", step, iteration)
	failure.Iteration = iteration
	failure.Err = err
	return failure
}

func iterationFailure(step, name string, iteration int, partial string) error {
	failure := models.NewTaskFailure(models.ReasonSubtaskFailure,
		"loop %s step %q reported failure on iteration %d", step, name, iteration)
	failure.Iteration = iteration
	failure.Partial = partial
	return failure
}

// promoteVerdict lifts evaluator verdict fields out of parsed JSON output so
// the loop reads them from notes regardless of how the evaluator reported.
func promoteVerdict(verdict *models.TaskResult) {
	parsed, ok := verdict.ParsedContent.(map[string]any)
	if !ok {
		return
	}
	for key, value := range parsed {
		if _, exists := verdict.Notes[key]; !exists {
			verdict.Note(key, value)
		}
	}
}

// floatNote reads a numeric note, accepting the types JSON decoding and tool
// results produce.
func floatNote(result *models.TaskResult, key string) (float64, bool) {
	if result.Notes == nil {
		return 0, false
	}
	switch v := result.Notes[key].(type) {
	case float64:
		return v, true
	case int64:
		return float64(v), true
	case int:
		return float64(v), true
	case string:
		f, err := strconv.ParseFloat(v, 64)
		return f, err == nil
	default:
		return 0, false
	}
}
