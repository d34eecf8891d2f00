package orchestrator

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/anthropics/anthropic-sdk-go"

	"github.com/weft-dsl/weft/internal/assemble"
	"github.com/weft-dsl/weft/internal/config"
	"github.com/weft-dsl/weft/internal/eval"
	"github.com/weft-dsl/weft/internal/handler"
	"github.com/weft-dsl/weft/internal/loop"
	"github.com/weft-dsl/weft/internal/resource"
	"github.com/weft-dsl/weft/internal/spawn"
	"github.com/weft-dsl/weft/internal/state"
	"github.com/weft-dsl/weft/internal/task"
)

// Session is one fully wired evaluation session: a registry, a resource
// tracker with its own session ID, and an evaluator dispatching through the
// spawn controller. Sessions are not reusable after Close.
type Session struct {
	cfg       *config.Config
	registry  *task.Registry
	tracker   *resource.Tracker
	evaluator *eval.Evaluator
	spawner   *spawn.Controller
	watcher   *task.Watcher
	audit     *state.DB
	ownsAudit bool
}

// NewSession builds a session from configuration. Template files are loaded
// from cfg.Templates.Dir when the directory exists.
func NewSession(cfg *config.Config, opts ...Option) (*Session, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	options := &sessionOptions{}
	for _, opt := range opts {
		opt(options)
	}

	h := options.handler
	if h == nil {
		var err error
		h, err = handler.NewAnthropicHandler(handler.AnthropicConfig{
			Model:         anthropic.Model(cfg.Anthropic.Model),
			APIKey:        cfg.Anthropic.APIKey,
			UseAWSBedrock: cfg.Anthropic.UseBedrock,
		})
		if err != nil {
			return nil, fmt.Errorf("create anthropic handler: %w", err)
		}
	}

	retriever := options.retriever
	if retriever == nil {
		cwd, err := os.Getwd()
		if err != nil {
			cwd = "."
		}
		retriever = handler.NewDirectoryRetriever(cwd)
	}

	runner := options.runner
	if runner == nil {
		runner = handler.NewExecRunner(cfg.Script.WorkDir)
	}

	tracker := resource.NewTracker(cfg.Resources.MaxTurns, cfg.Resources.MaxContext)
	registry := task.NewRegistry()

	if cfg.Templates.Dir != "" {
		if _, err := os.Stat(cfg.Templates.Dir); err == nil {
			if _, err := task.LoadDir(registry, cfg.Templates.Dir); err != nil {
				return nil, fmt.Errorf("load templates: %w", err)
			}
		}
	}

	assembler := assemble.New(retriever, 0)
	executor := task.NewExecutor(h, assembler, tracker)
	executor.SetMaxTokens(cfg.Anthropic.MaxTokens)
	loops := loop.NewController(registry, executor, runner)
	spawner := spawn.NewController(registry, executor, loops)
	evaluator := eval.NewEvaluator(spawner,
		eval.WithMapWorkers(cfg.Evaluator.MapWorkers),
		eval.WithMaxDepth(cfg.Evaluator.MaxDepth),
		eval.WithTracker(tracker),
		eval.WithRetriever(retriever),
	)

	s := &Session{
		cfg:       cfg,
		registry:  registry,
		tracker:   tracker,
		evaluator: evaluator,
		spawner:   spawner,
	}

	if err := s.initAudit(options); err != nil {
		return nil, err
	}

	if cfg.Templates.Watch && cfg.Templates.Dir != "" {
		watcher, err := task.NewWatcher(registry, cfg.Templates.Dir)
		if err != nil {
			s.closeAudit("failed")
			return nil, fmt.Errorf("watch templates: %w", err)
		}
		s.watcher = watcher
	}

	return s, nil
}

// initAudit opens the audit log when configured and records session start.
// Every dispatched invocation is mirrored into it via the spawn observer.
func (s *Session) initAudit(options *sessionOptions) error {
	db := options.audit
	if db == nil && s.cfg.State.Path != "" {
		opened, err := state.Open(s.cfg.State.Path)
		if err != nil {
			return fmt.Errorf("open audit db: %w", err)
		}
		if err := opened.Migrate(); err != nil {
			opened.Close()
			return fmt.Errorf("migrate audit db: %w", err)
		}
		db = opened
		s.ownsAudit = true
	}
	if db == nil {
		return nil
	}
	s.audit = db

	if err := db.BeginSession(s.tracker.SessionID(), s.tracker.Snapshot()); err != nil {
		s.closeAudit("failed")
		return err
	}
	sessionID := s.tracker.SessionID()
	s.spawner.SetObserver(func(template, status, reason string, depth int, elapsed time.Duration) {
		// Audit failures must not fail the invocation.
		_ = db.RecordInvocation(&state.InvocationRecord{
			SessionID: sessionID,
			Template:  template,
			Status:    status,
			Reason:    reason,
			Depth:     depth,
			Duration:  elapsed,
		})
	})
	return nil
}

// Run evaluates a DSL program, returning the last top-level value.
func (s *Session) Run(ctx context.Context, src string) (any, error) {
	return s.evaluator.EvalString(ctx, src)
}

// Registry returns the template registry for host-side registration.
func (s *Session) Registry() *task.Registry {
	return s.registry
}

// Evaluator returns the session's evaluator.
func (s *Session) Evaluator() *eval.Evaluator {
	return s.evaluator
}

// Tracker returns the session's resource tracker.
func (s *Session) Tracker() *resource.Tracker {
	return s.tracker
}

// SessionID returns the tracker-assigned session identifier.
func (s *Session) SessionID() string {
	return s.tracker.SessionID()
}

// Close tears the session down, recording final resource counters in the
// audit log. status should be "complete" or "failed".
func (s *Session) Close(status string) error {
	var firstErr error
	if s.watcher != nil {
		if err := s.watcher.Close(); err != nil {
			firstErr = err
		}
		s.watcher = nil
	}
	if err := s.closeAudit(status); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}

func (s *Session) closeAudit(status string) error {
	if s.audit == nil {
		return nil
	}
	err := s.audit.FinishSession(s.tracker.SessionID(), status, s.tracker.Snapshot())
	if s.ownsAudit {
		if closeErr := s.audit.Close(); closeErr != nil && err == nil {
			err = closeErr
		}
	}
	s.audit = nil
	return err
}
