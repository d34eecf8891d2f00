// Package models defines the shared wire types exchanged between the
// evaluator core, the task executor, and external collaborators.
package models

// TaskStatus represents the completion state of a task execution.
type TaskStatus string

const (
	// StatusComplete indicates the task finished and the content is final.
	StatusComplete TaskStatus = "COMPLETE"
	// StatusContinuation indicates the task produced output but expects
	// further refinement (e.g. a loop that hit its iteration cap).
	StatusContinuation TaskStatus = "CONTINUATION"
	// StatusFailed indicates the task did not complete; partial output, if
	// any, is preserved in Content.
	StatusFailed TaskStatus = "FAILED"
)

// Valid returns true if the status is a known value.
func (s TaskStatus) Valid() bool {
	switch s {
	case StatusComplete, StatusContinuation, StatusFailed:
		return true
	default:
		return false
	}
}

// TaskResult is the outcome of a single task execution.
//
// Notes carries metadata only (resource usage, scores, parse diagnostics,
// nested failure detail) and never output content; output always lives in
// Content or ParsedContent.
type TaskResult struct {
	// Content is the raw textual output of the task.
	Content string `json:"content"`
	// Status is the completion state.
	Status TaskStatus `json:"status"`
	// Criteria optionally restates the success criteria the task was
	// executed against.
	Criteria string `json:"criteria,omitempty"`
	// ParsedContent holds structured output when the template declared an
	// output format and parsing succeeded.
	ParsedContent any `json:"parsedContent,omitempty"`
	// Notes holds diagnostic and accounting metadata.
	Notes map[string]any `json:"notes"`
}

// Note records a metadata entry, allocating the map on first use.
func (r *TaskResult) Note(key string, value any) {
	if r.Notes == nil {
		r.Notes = make(map[string]any)
	}
	r.Notes[key] = value
}

// BoolNote returns the boolean note for key, or false when absent or not a
// bool.
func (r *TaskResult) BoolNote(key string) bool {
	v, ok := r.Notes[key].(bool)
	return ok && v
}

// StringNote returns the string note for key, or "" when absent.
func (r *TaskResult) StringNote(key string) string {
	v, _ := r.Notes[key].(string)
	return v
}

// Failed reports whether the result carries a FAILED status.
func (r *TaskResult) Failed() bool {
	return r.Status == StatusFailed
}
