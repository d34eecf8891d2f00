package spawn

import (
	"context"
	"strings"
	"time"

	"github.com/weft-dsl/weft/internal/loop"
	"github.com/weft-dsl/weft/internal/task"
	"github.com/weft-dsl/weft/pkg/models"
)

// Observer receives metadata about each dispatched request: final status, a
// failure reason when applicable, the request depth, and wall time. Content
// never passes through it.
type Observer func(template, status, reason string, depth int, elapsed time.Duration)

// Controller validates and dispatches subtask requests. Every invocation
// passes through it, so depth and cycle violations are caught before any
// resource is charged or external call issued.
type Controller struct {
	registry *task.Registry
	executor *task.Executor
	loops    *loop.Controller
	observer Observer
}

// frame is the dispatch state a spawned invocation leaves in its context so
// that nested step invocations continue the same chain and depth limit.
type frame struct {
	chain    *CallChain
	maxDepth int
}

type frameKey struct{}

func withFrame(ctx context.Context, f frame) context.Context {
	return context.WithValue(ctx, frameKey{}, f)
}

func frameFrom(ctx context.Context) (frame, bool) {
	f, ok := ctx.Value(frameKey{}).(frame)
	return f, ok
}

// SetObserver installs the invocation observer. Not safe to call once Spawn
// may be running concurrently.
func (c *Controller) SetObserver(fn Observer) {
	c.observer = fn
}

// NewController creates a spawn controller. Loop steps are routed back
// through it so depth and cycle guards apply at every nesting level.
func NewController(registry *task.Registry, executor *task.Executor, loops *loop.Controller) *Controller {
	c := &Controller{registry: registry, executor: executor, loops: loops}
	if loops != nil {
		loops.SetDispatcher(c)
	}
	return c
}

// Registry exposes the template registry for resolution by callers.
func (c *Controller) Registry() *task.Registry {
	return c.registry
}

// Spawn executes one subtask request under the given call chain. The chain
// describes the frames above this request; Spawn checks the would-be child
// depth and exact-repetition cycles, resolves the template, and dispatches.
func (c *Controller) Spawn(ctx context.Context, req *models.SubtaskRequest, chain *CallChain) (*models.TaskResult, error) {
	if chain == nil {
		chain = NewCallChain()
	}
	return c.spawn(ctx, req, chain, nil)
}

// Dispatch issues a nested invocation under the chain recorded in the
// context by the enclosing Spawn. Loop steps re-enter through here, so the
// guards see the full nesting and loop-typed step templates route back to
// the loop controller instead of executing as one atomic call.
func (c *Controller) Dispatch(ctx context.Context, req *models.SubtaskRequest, opts *task.ExecOptions) (*models.TaskResult, error) {
	f, ok := frameFrom(ctx)
	if !ok {
		f = frame{chain: NewCallChain()}
	}
	if req.MaxDepth == 0 {
		req.MaxDepth = f.maxDepth
	}
	return c.spawn(ctx, req, f.chain, opts)
}

func (c *Controller) spawn(ctx context.Context, req *models.SubtaskRequest, chain *CallChain, opts *task.ExecOptions) (*models.TaskResult, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	childDepth := chain.Depth() + 1
	if childDepth > req.EffectiveMaxDepth() {
		failure := models.NewTaskFailure(models.ReasonSubtaskFailure,
			"spawning %q would exceed max depth %d", req.Name, req.EffectiveMaxDepth())
		failure.Request = req
		failure.Depth = childDepth
		return nil, failure
	}
	if chain.Contains(req.Name, req.Inputs) {
		failure := models.NewTaskFailure(models.ReasonSubtaskFailure,
			"cycle detected: %q invoked with identical inputs along chain %s",
			req.Name, strings.Join(append(chain.Names(), req.Name), " -> "))
		failure.Request = req
		failure.Depth = childDepth
		return nil, failure
	}

	tmpl := c.registry.Find(req.Name)
	if tmpl == nil {
		failure := models.NewTaskFailure(models.ReasonTemplateNotFound,
			"template %q not found", req.Name)
		failure.Request = req
		return nil, failure
	}
	if req.Type != "" && req.Type != tmpl.EffectiveType() {
		failure := models.NewTaskFailure(models.ReasonInputValidation,
			"request declares type %q but template %q is %q", req.Type, req.Name, tmpl.EffectiveType())
		failure.Request = req
		return nil, failure
	}

	if opts == nil {
		opts = &task.ExecOptions{
			Override:  req.ContextManagement,
			FilePaths: req.FilePaths,
			Hints:     append(append([]string(nil), req.TemplateHints...), c.registry.SubtaskHints(req.Name)...),
		}
	}

	// Nested invocations issued while this one runs see the extended chain.
	ctx = withFrame(ctx, frame{
		chain:    chain.Extend(req.Name, req.Inputs),
		maxDepth: req.EffectiveMaxDepth(),
	})

	var (
		result *models.TaskResult
		err    error
		start  = time.Now()
	)
	if tmpl.EffectiveType() == models.OpDirectorEvaluatorLoop {
		result, err = c.loops.Run(ctx, tmpl, req.Inputs, opts)
	} else {
		result, err = c.executor.Execute(ctx, tmpl, req.Inputs, opts)
	}
	if c.observer != nil {
		c.observer(req.Name, observedStatus(result, err), observedReason(err), childDepth, time.Since(start))
	}
	if err != nil {
		if failure, ok := models.AsTaskFailure(err); ok {
			if failure.Request == nil {
				failure.Request = req
			}
			if failure.Depth == 0 {
				failure.Depth = childDepth
			}
		}
		return result, err
	}
	return result, nil
}

func observedStatus(result *models.TaskResult, err error) string {
	if result != nil {
		return string(result.Status)
	}
	if err != nil {
		return string(models.StatusFailed)
	}
	return string(models.StatusComplete)
}

func observedReason(err error) string {
	if err == nil {
		return ""
	}
	if failure, ok := models.AsTaskFailure(err); ok {
		return string(failure.Reason)
	}
	if _, ok := models.AsResourceExhausted(err); ok {
		return "resource_exhaustion"
	}
	return "error"
}

// Verify Controller implements loop.StepDispatcher at compile time.
var _ loop.StepDispatcher = (*Controller)(nil)
