package models

// DefaultMaxDepth is the subtask nesting limit applied when a request does
// not set one.
const DefaultMaxDepth = 5

// SubtaskRequest describes one task invocation handed to the subtask
// spawning controller.
type SubtaskRequest struct {
	// Type is the operator type of the target template.
	Type OperatorType `json:"type"`
	// Name is the target template or tool name.
	Name string `json:"name"`
	// Description optionally explains why the subtask was spawned.
	Description string `json:"description,omitempty"`
	// Inputs are the evaluated arguments, keyed by parameter name.
	Inputs map[string]any `json:"inputs"`
	// TemplateHints are free-form hints forwarded to the handler.
	TemplateHints []string `json:"template_hints,omitempty"`
	// ContextManagement optionally overrides the target template's
	// context settings for this invocation only.
	ContextManagement *ContextOverride `json:"context_management,omitempty"`
	// MaxDepth bounds subtask nesting below this request; 0 means
	// DefaultMaxDepth.
	MaxDepth int `json:"max_depth,omitempty"`
	// FilePaths are explicit paths for subset inheritance and retrieval.
	FilePaths []string `json:"file_paths,omitempty"`
}

// EffectiveMaxDepth returns MaxDepth, defaulted when unset.
func (r *SubtaskRequest) EffectiveMaxDepth() int {
	if r.MaxDepth <= 0 {
		return DefaultMaxDepth
	}
	return r.MaxDepth
}

// Validate checks the structural shape of the request before any external
// call is issued.
func (r *SubtaskRequest) Validate() error {
	if r.Name == "" {
		return NewTaskFailure(ReasonInputValidation, "subtask request has no target name")
	}
	if r.Type != "" && !r.Type.Valid() {
		return NewTaskFailure(ReasonInputValidation, "subtask request for %q has unknown type %q", r.Name, r.Type)
	}
	if r.MaxDepth < 0 {
		return NewTaskFailure(ReasonInputValidation, "subtask request for %q has negative max_depth %d", r.Name, r.MaxDepth)
	}
	return nil
}
