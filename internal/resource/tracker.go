// Package resource provides per-session accounting of LLM turns and
// context-window usage against configured limits.
package resource

import (
	"sync"

	"github.com/google/uuid"

	"github.com/weft-dsl/weft/pkg/models"
)

// DefaultWarningThreshold is the fraction of a limit at which a one-shot
// warning fires.
const DefaultWarningThreshold = 0.80

// WarnFunc receives the resource name ("turns" or "context") and a metrics
// snapshot when usage first crosses the warning threshold.
type WarnFunc func(resource string, metrics models.ResourceMetrics)

// Tracker counts turns and context usage for one session. IncrementTurn and
// AddContextUsage are the only mutators; both are safe for concurrent use
// since map fan-out branches may charge the same session. A mutation that
// would push a counter past its limit is rejected with ResourceExhausted and
// leaves the counter untouched, so no over-limit state is ever observable.
type Tracker struct {
	mu sync.Mutex

	sessionID string

	turnsUsed  int
	turnsLimit int

	ctxUsed  int
	ctxLimit int
	ctxPeak  int

	warnedTurns   bool
	warnedContext bool
	warnThreshold float64
	warnFn        WarnFunc
}

// NewTracker creates a tracker with the given limits and a fresh session ID.
// A limit of 0 or less means the resource is unlimited.
func NewTracker(turnLimit, contextLimit int) *Tracker {
	return &Tracker{
		sessionID:     uuid.New().String()[:8],
		turnsLimit:    turnLimit,
		ctxLimit:      contextLimit,
		warnThreshold: DefaultWarningThreshold,
	}
}

// SessionID returns the identifier assigned to this session.
func (t *Tracker) SessionID() string {
	return t.sessionID
}

// SetWarnFunc installs the warning callback. Each resource warns at most
// once per session. The callback runs outside the tracker lock.
func (t *Tracker) SetWarnFunc(fn WarnFunc) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.warnFn = fn
}

// IncrementTurn charges one turn. The call that would exceed the limit is
// rejected and returns *models.ResourceExhausted with a snapshot taken at
// rejection time.
func (t *Tracker) IncrementTurn() error {
	t.mu.Lock()

	if t.turnsLimit > 0 && t.turnsUsed+1 > t.turnsLimit {
		err := &models.ResourceExhausted{Resource: "turns", Metrics: t.snapshotLocked()}
		t.mu.Unlock()
		return err
	}
	t.turnsUsed++

	var warn WarnFunc
	var snap models.ResourceMetrics
	if t.turnsLimit > 0 && !t.warnedTurns &&
		float64(t.turnsUsed) >= t.warnThreshold*float64(t.turnsLimit) {
		t.warnedTurns = true
		warn = t.warnFn
		snap = t.snapshotLocked()
	}
	t.mu.Unlock()

	if warn != nil {
		warn("turns", snap)
	}
	return nil
}

// AddContextUsage charges n units of context-window usage. Rejection
// semantics match IncrementTurn.
func (t *Tracker) AddContextUsage(n int) error {
	if n < 0 {
		return models.NewValidationError("context usage charge must be non-negative, got %d", n)
	}

	t.mu.Lock()

	if t.ctxLimit > 0 && t.ctxUsed+n > t.ctxLimit {
		err := &models.ResourceExhausted{Resource: "context", Metrics: t.snapshotLocked()}
		t.mu.Unlock()
		return err
	}
	t.ctxUsed += n
	if n > t.ctxPeak {
		t.ctxPeak = n
	}

	var warn WarnFunc
	var snap models.ResourceMetrics
	if t.ctxLimit > 0 && !t.warnedContext &&
		float64(t.ctxUsed) >= t.warnThreshold*float64(t.ctxLimit) {
		t.warnedContext = true
		warn = t.warnFn
		snap = t.snapshotLocked()
	}
	t.mu.Unlock()

	if warn != nil {
		warn("context", snap)
	}
	return nil
}

// Snapshot returns the current metrics.
func (t *Tracker) Snapshot() models.ResourceMetrics {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.snapshotLocked()
}

// snapshotLocked builds a metrics snapshot. Must be called with lock held.
func (t *Tracker) snapshotLocked() models.ResourceMetrics {
	return models.ResourceMetrics{
		Turns:   models.TurnMetrics{Used: t.turnsUsed, Limit: t.turnsLimit},
		Context: models.ContextMetrics{Used: t.ctxUsed, Limit: t.ctxLimit, Peak: t.ctxPeak},
	}
}
