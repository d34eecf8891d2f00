package models

// TurnMetrics is the turn counter pair for one session.
type TurnMetrics struct {
	Used  int `json:"used"`
	Limit int `json:"limit"`
}

// ContextMetrics is the context-window accounting for one session. Peak is
// the largest single charge observed, which approximates the widest prompt
// sent during the session.
type ContextMetrics struct {
	Used  int `json:"used"`
	Limit int `json:"limit"`
	Peak  int `json:"peak"`
}

// ResourceMetrics is a point-in-time snapshot of per-session resource
// consumption. Counters are monotonic within a session and reset only at
// session teardown.
type ResourceMetrics struct {
	Turns   TurnMetrics    `json:"turns"`
	Context ContextMetrics `json:"context"`
}

// TurnsRemaining returns the number of turns left before exhaustion.
func (m ResourceMetrics) TurnsRemaining() int {
	if m.Turns.Limit <= 0 {
		return 0
	}
	return m.Turns.Limit - m.Turns.Used
}

// ContextRemaining returns the context budget left before exhaustion.
func (m ResourceMetrics) ContextRemaining() int {
	if m.Context.Limit <= 0 {
		return 0
	}
	return m.Context.Limit - m.Context.Used
}
