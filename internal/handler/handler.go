// Package handler defines the contracts for the external collaborators the
// orchestration core calls: the LLM provider, the context-retrieval backend,
// and the script runner. The core treats all three as blocking calls;
// concrete adapters live at the system boundary.
package handler

import (
	"context"
	"time"

	"github.com/weft-dsl/weft/pkg/models"
)

// Payload is the outbound request for a single LLM invocation.
type Payload struct {
	// Prompt is the fully substituted instruction text.
	Prompt string
	// System is the optional system prompt.
	System string
	// Context is the assembled context string prepended by the executor.
	Context string
	// Hints are free-form template hints forwarded from the request.
	Hints []string
	// MaxTokens caps the completion size; 0 uses the adapter default.
	MaxTokens int
}

// Handler executes a single prompt against the LLM provider.
type Handler interface {
	// ExecutePrompt performs one blocking LLM call. Provider failures are
	// returned as TASK_FAILURE(llm_error); the returned TaskResult notes
	// carry provider-reported usage metadata.
	ExecutePrompt(ctx context.Context, payload *Payload) (*models.TaskResult, error)
}

// ContextGenerationInput describes a fresh-context retrieval query.
type ContextGenerationInput struct {
	// Query is the free-text description of what to retrieve.
	Query string
	// Paths restricts retrieval to these paths when non-empty.
	Paths []string
	// Limit caps the number of matches; 0 uses the retriever default.
	Limit int
}

// Match is one retrieved context item.
type Match struct {
	Path      string  `json:"path"`
	Relevance float64 `json:"relevance"`
	Excerpt   string  `json:"excerpt,omitempty"`
}

// ContextResult is the outcome of a retrieval call.
type ContextResult struct {
	Summary string  `json:"context_summary"`
	Matches []Match `json:"matches"`
}

// ContextRetriever is the context-retrieval collaborator.
type ContextRetriever interface {
	GetRelevantContext(ctx context.Context, input *ContextGenerationInput) (*ContextResult, error)
}

// ScriptResult is the outcome of a script step.
type ScriptResult struct {
	Stdout   string `json:"stdout"`
	Stderr   string `json:"stderr"`
	ExitCode int    `json:"exit_code"`
}

// CommandRunner executes shell commands for script steps. Inputs are exposed
// to the command as environment variables.
type CommandRunner interface {
	Run(ctx context.Context, command string, timeout time.Duration, inputs map[string]string) (*ScriptResult, error)
}
