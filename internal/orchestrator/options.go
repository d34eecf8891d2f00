// Package orchestrator wires configuration into a runnable evaluation
// session: provider handler, registry, resource tracker, spawn controller,
// and the evaluator itself.
package orchestrator

import (
	"github.com/weft-dsl/weft/internal/handler"
	"github.com/weft-dsl/weft/internal/state"
)

// Option configures a Session. Use With* functions to create Options.
type Option func(*sessionOptions)

// sessionOptions holds optional construction-time overrides.
type sessionOptions struct {
	handler   handler.Handler
	retriever handler.ContextRetriever
	runner    handler.CommandRunner
	audit     *state.DB
}

// WithHandler overrides the LLM handler (mainly for testing).
func WithHandler(h handler.Handler) Option {
	return func(o *sessionOptions) { o.handler = h }
}

// WithRetriever overrides the context retriever.
func WithRetriever(r handler.ContextRetriever) Option {
	return func(o *sessionOptions) { o.retriever = r }
}

// WithRunner overrides the script command runner.
func WithRunner(r handler.CommandRunner) Option {
	return func(o *sessionOptions) { o.runner = r }
}

// WithAuditDB sets an already-open audit database, overriding state.path.
func WithAuditDB(db *state.DB) Option {
	return func(o *sessionOptions) { o.audit = db }
}
