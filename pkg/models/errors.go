package models

import (
	"errors"
	"fmt"
)

// FailureReason classifies a TaskFailure.
type FailureReason string

const (
	ReasonContextRetrieval FailureReason = "context_retrieval_failure"
	ReasonContextMatching  FailureReason = "context_matching_failure"
	ReasonXMLValidation    FailureReason = "xml_validation_failure"
	ReasonOutputFormat     FailureReason = "output_format_failure"
	ReasonExecutionTimeout FailureReason = "execution_timeout"
	ReasonExecutionHalted  FailureReason = "execution_halted"
	ReasonSubtaskFailure   FailureReason = "subtask_failure"
	ReasonInputValidation  FailureReason = "input_validation_failure"
	ReasonTemplateNotFound FailureReason = "template_not_found"
	ReasonToolExecution    FailureReason = "tool_execution_error"
	ReasonLLMError         FailureReason = "llm_error"
	ReasonUnexpected       FailureReason = "unexpected_error"
)

// TaskFailure is the structured error surfaced when an evaluation branch
// aborts. The core performs no retries; failures propagate explicitly to the
// nearest caller, which may be an external orchestrator with its own retry
// policy.
type TaskFailure struct {
	// Reason classifies the failure.
	Reason FailureReason
	// Message is the human-readable description.
	Message string
	// Partial preserves any output produced before the failure.
	Partial string
	// Request is the originating SubtaskRequest for subtask failures.
	Request *SubtaskRequest
	// Depth is the nesting depth at which a subtask failure occurred.
	Depth int
	// Iteration is the loop iteration count for loop-step failures.
	Iteration int
	// Index is the failing item index for map fan-out failures; -1 when
	// not applicable.
	Index int
	// Err is the wrapped child error, if any.
	Err error
}

// NewTaskFailure builds a TaskFailure with the given reason and message.
func NewTaskFailure(reason FailureReason, format string, args ...any) *TaskFailure {
	return &TaskFailure{
		Reason:  reason,
		Message: fmt.Sprintf(format, args...),
		Index:   -1,
	}
}

// Error implements the error interface.
func (e *TaskFailure) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("TASK_FAILURE(%s): %s: %v", e.Reason, e.Message, e.Err)
	}
	return fmt.Sprintf("TASK_FAILURE(%s): %s", e.Reason, e.Message)
}

// Unwrap returns the wrapped child error.
func (e *TaskFailure) Unwrap() error { return e.Err }

// Detail returns the metadata map recorded in TaskResult notes for this
// failure. It never contains output content.
func (e *TaskFailure) Detail() map[string]any {
	detail := map[string]any{"reason": string(e.Reason)}
	if e.Request != nil {
		detail["request"] = e.Request
	}
	if e.Depth > 0 {
		detail["depth"] = e.Depth
	}
	if e.Iteration > 0 {
		detail["iteration"] = e.Iteration
	}
	if e.Index >= 0 {
		detail["index"] = e.Index
	}
	if e.Err != nil {
		detail["cause"] = e.Err.Error()
	}
	return detail
}

// AsTaskFailure unwraps err into a *TaskFailure if one is in its chain.
func AsTaskFailure(err error) (*TaskFailure, bool) {
	var tf *TaskFailure
	ok := errors.As(err, &tf)
	return tf, ok
}

// ResourceExhausted is raised by the mutating tracker call that would push a
// counter past its limit. The counter itself is left unmodified, so no
// over-limit state is ever observable.
type ResourceExhausted struct {
	// Resource names the exhausted counter: "turns" or "context".
	Resource string
	// Metrics is the snapshot taken at rejection time.
	Metrics ResourceMetrics
	// Partial preserves any content produced before exhaustion.
	Partial string
}

// Error implements the error interface.
func (e *ResourceExhausted) Error() string {
	switch e.Resource {
	case "turns":
		return fmt.Sprintf("RESOURCE_EXHAUSTION(turns): %d/%d turns used", e.Metrics.Turns.Used, e.Metrics.Turns.Limit)
	case "context":
		return fmt.Sprintf("RESOURCE_EXHAUSTION(context): %d/%d context used", e.Metrics.Context.Used, e.Metrics.Context.Limit)
	default:
		return fmt.Sprintf("RESOURCE_EXHAUSTION(%s)", e.Resource)
	}
}

// AsResourceExhausted unwraps err into a *ResourceExhausted if present.
func AsResourceExhausted(err error) (*ResourceExhausted, bool) {
	var re *ResourceExhausted
	ok := errors.As(err, &re)
	return re, ok
}

// InvalidOutput is raised when task output fails declared output-format
// parsing or validation. Raw output is preserved alongside the error.
type InvalidOutput struct {
	// Message describes the validation problem.
	Message string
	// Raw is the unparsed task output.
	Raw string
	// Err is the underlying parse error, if any.
	Err error
}

// Error implements the error interface.
func (e *InvalidOutput) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("INVALID_OUTPUT: %s: %v", e.Message, e.Err)
	}
	return "INVALID_OUTPUT: " + e.Message
}

// Unwrap returns the underlying parse error.
func (e *InvalidOutput) Unwrap() error { return e.Err }

// ValidationError is raised at registration or configuration time, never
// during execution.
type ValidationError struct {
	Message string
}

// NewValidationError builds a ValidationError.
func NewValidationError(format string, args ...any) *ValidationError {
	return &ValidationError{Message: fmt.Sprintf(format, args...)}
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	return "VALIDATION_ERROR: " + e.Message
}
