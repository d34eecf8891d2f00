package models

// InheritMode controls how much of the parent task's context a child sees.
type InheritMode string

const (
	// InheritFull passes the parent's full assembled context to the child.
	InheritFull InheritMode = "full"
	// InheritNone passes no parent context.
	InheritNone InheritMode = "none"
	// InheritSubset passes only the parent context sections matching the
	// child's declared file paths.
	InheritSubset InheritMode = "subset"
)

// Valid returns true if the inherit mode is a known value.
func (m InheritMode) Valid() bool {
	switch m {
	case InheritFull, InheritNone, InheritSubset:
		return true
	default:
		return false
	}
}

// AccumulationFormat controls what accumulated prior-step data looks like.
type AccumulationFormat string

const (
	// AccumNotesOnly accumulates step summaries only.
	AccumNotesOnly AccumulationFormat = "notes_only"
	// AccumFullOutput accumulates complete step outputs.
	AccumFullOutput AccumulationFormat = "full_output"
)

// Valid returns true if the accumulation format is a known value.
func (f AccumulationFormat) Valid() bool {
	return f == AccumNotesOnly || f == AccumFullOutput
}

// FreshMode controls whether fresh context retrieval runs for a task.
type FreshMode string

const (
	// FreshEnabled retrieves fresh context before execution.
	FreshEnabled FreshMode = "enabled"
	// FreshDisabled skips fresh context retrieval.
	FreshDisabled FreshMode = "disabled"
)

// Valid returns true if the fresh mode is a known value.
func (m FreshMode) Valid() bool {
	return m == FreshEnabled || m == FreshDisabled
}

// ContextManagement is the fully resolved three-dimensional context model for
// one task execution: inheritance, accumulation, and fresh retrieval.
type ContextManagement struct {
	InheritContext     InheritMode        `json:"inherit_context" yaml:"inherit_context"`
	AccumulateData     bool               `json:"accumulate_data" yaml:"accumulate_data"`
	AccumulationFormat AccumulationFormat `json:"accumulation_format" yaml:"accumulation_format"`
	FreshContext       FreshMode          `json:"fresh_context" yaml:"fresh_context"`
}

// Validate checks field values and the mutual-exclusivity invariant: fresh
// retrieval cannot be combined with inherited context. Violations are
// rejected when templates are registered, never deferred to execution.
func (c ContextManagement) Validate() error {
	if !c.InheritContext.Valid() {
		return NewValidationError("inherit_context %q is not one of full, none, subset", c.InheritContext)
	}
	if !c.AccumulationFormat.Valid() {
		return NewValidationError("accumulation_format %q is not one of notes_only, full_output", c.AccumulationFormat)
	}
	if !c.FreshContext.Valid() {
		return NewValidationError("fresh_context %q is not one of enabled, disabled", c.FreshContext)
	}
	if c.FreshContext == FreshEnabled && c.InheritContext != InheritNone {
		return NewValidationError("fresh_context=enabled is incompatible with inherit_context=%s", c.InheritContext)
	}
	return nil
}

// ContextOverride is a partial ContextManagement as declared on a template or
// a SubtaskRequest. Zero-valued fields mean "use the operator default";
// AccumulateData is a pointer so false can be stated explicitly.
type ContextOverride struct {
	InheritContext     InheritMode        `json:"inherit_context,omitempty" yaml:"inherit_context,omitempty"`
	AccumulateData     *bool              `json:"accumulate_data,omitempty" yaml:"accumulate_data,omitempty"`
	AccumulationFormat AccumulationFormat `json:"accumulation_format,omitempty" yaml:"accumulation_format,omitempty"`
	FreshContext       FreshMode          `json:"fresh_context,omitempty" yaml:"fresh_context,omitempty"`
}

// ApplyTo overlays the override onto base, field by field, and returns the
// merged settings. The result must be re-validated by the caller.
func (o *ContextOverride) ApplyTo(base ContextManagement) ContextManagement {
	if o == nil {
		return base
	}
	merged := base
	if o.InheritContext != "" {
		merged.InheritContext = o.InheritContext
	}
	if o.AccumulateData != nil {
		merged.AccumulateData = *o.AccumulateData
	}
	if o.AccumulationFormat != "" {
		merged.AccumulationFormat = o.AccumulationFormat
	}
	if o.FreshContext != "" {
		merged.FreshContext = o.FreshContext
	}
	return merged
}
