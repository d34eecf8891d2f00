// Package assemble merges inherited, accumulated, and freshly retrieved
// context into the string an LLM call sees, per the three-dimensional
// context-management model.
package assemble

import (
	"context"
	"fmt"
	"strings"

	"github.com/weft-dsl/weft/internal/handler"
	"github.com/weft-dsl/weft/pkg/models"
)

// DefaultAccumulationCap bounds accumulated prior-step data in bytes.
const DefaultAccumulationCap = 16 * 1024

// Defaults returns the built-in ContextManagement for an operator type.
// Every default satisfies the fresh/inherit exclusivity invariant.
func Defaults(op models.OperatorType) models.ContextManagement {
	switch op {
	case models.OpSequential:
		return models.ContextManagement{
			InheritContext:     models.InheritFull,
			AccumulateData:     true,
			AccumulationFormat: models.AccumNotesOnly,
			FreshContext:       models.FreshDisabled,
		}
	case models.OpReduce:
		return models.ContextManagement{
			InheritContext:     models.InheritNone,
			AccumulateData:     true,
			AccumulationFormat: models.AccumFullOutput,
			FreshContext:       models.FreshDisabled,
		}
	case models.OpScript:
		return models.ContextManagement{
			InheritContext:     models.InheritNone,
			AccumulateData:     false,
			AccumulationFormat: models.AccumNotesOnly,
			FreshContext:       models.FreshDisabled,
		}
	case models.OpDirectorEvaluatorLoop:
		return models.ContextManagement{
			InheritContext:     models.InheritFull,
			AccumulateData:     true,
			AccumulationFormat: models.AccumNotesOnly,
			FreshContext:       models.FreshDisabled,
		}
	default: // atomic and unknown
		return models.ContextManagement{
			InheritContext:     models.InheritFull,
			AccumulateData:     false,
			AccumulationFormat: models.AccumNotesOnly,
			FreshContext:       models.FreshDisabled,
		}
	}
}

// Effective merges the operator defaults with the given overrides applied in
// order (later overrides win field by field), then re-validates the
// exclusivity invariant.
func Effective(op models.OperatorType, overrides ...*models.ContextOverride) (models.ContextManagement, error) {
	merged := Defaults(op)
	for _, override := range overrides {
		merged = override.ApplyTo(merged)
	}
	if err := merged.Validate(); err != nil {
		return models.ContextManagement{}, err
	}
	return merged, nil
}

// StepRecord is one prior step available for accumulation.
type StepRecord struct {
	// Name identifies the step.
	Name string
	// Summary is the step's note-level summary.
	Summary string
	// Output is the step's full output.
	Output string
}

// Input carries the raw material for one assembly.
type Input struct {
	// Parent is the parent task's assembled context.
	Parent string
	// ParentSections maps section labels (file paths) to parent context
	// fragments, used for subset inheritance.
	ParentSections map[string]string
	// FilePaths are the request's explicit paths, selecting subset
	// sections and scoping fresh retrieval.
	FilePaths []string
	// Query drives fresh retrieval when enabled.
	Query string
	// Steps are prior-step records for accumulation, oldest first.
	Steps []StepRecord
}

// Assembler builds effective context strings, calling the retrieval
// collaborator when fresh context is enabled.
type Assembler struct {
	retriever handler.ContextRetriever
	accumCap  int
}

// New creates an Assembler. retriever may be nil when no template enables
// fresh context. accumCap <= 0 uses DefaultAccumulationCap.
func New(retriever handler.ContextRetriever, accumCap int) *Assembler {
	if accumCap <= 0 {
		accumCap = DefaultAccumulationCap
	}
	return &Assembler{retriever: retriever, accumCap: accumCap}
}

// Assemble produces the effective context string for one execution. notes
// receives metadata about what was assembled, including any truncation;
// truncation is never silent.
func (a *Assembler) Assemble(ctx context.Context, cm models.ContextManagement, in Input, notes map[string]any) (string, error) {
	var sections []string

	switch cm.InheritContext {
	case models.InheritFull:
		if in.Parent != "" {
			sections = append(sections, in.Parent)
		}
	case models.InheritSubset:
		subset := a.subset(in)
		if subset != "" {
			sections = append(sections, subset)
		}
	case models.InheritNone:
		// nothing inherited
	}

	if cm.AccumulateData && len(in.Steps) > 0 {
		accumulated, truncated := a.accumulate(cm.AccumulationFormat, in.Steps)
		if truncated {
			notes["accumulation_truncated"] = true
			notes["accumulation_cap_bytes"] = a.accumCap
		}
		if accumulated != "" {
			sections = append(sections, accumulated)
		}
	}

	if cm.FreshContext == models.FreshEnabled {
		fresh, err := a.retrieve(ctx, in, notes)
		if err != nil {
			return "", err
		}
		if fresh != "" {
			sections = append(sections, fresh)
		}
	}

	return strings.Join(sections, "\n\n"), nil
}

// subset selects parent sections matching the request's file paths.
func (a *Assembler) subset(in Input) string {
	if len(in.ParentSections) == 0 || len(in.FilePaths) == 0 {
		return ""
	}
	var parts []string
	for _, path := range in.FilePaths {
		if section, ok := in.ParentSections[path]; ok {
			parts = append(parts, section)
		}
	}
	return strings.Join(parts, "\n\n")
}

// accumulate renders prior steps under the cap, dropping oldest entries
// first when over budget.
func (a *Assembler) accumulate(format models.AccumulationFormat, steps []StepRecord) (string, bool) {
	rendered := make([]string, 0, len(steps))
	for _, step := range steps {
		body := step.Summary
		if format == models.AccumFullOutput {
			body = step.Output
		}
		if body == "" {
			continue
		}
		rendered = append(rendered, fmt.Sprintf("[%s]\n%s", step.Name, body))
	}

	total := 0
	for _, r := range rendered {
		total += len(r)
	}
	truncated := false
	for total > a.accumCap && len(rendered) > 0 {
		total -= len(rendered[0])
		rendered = rendered[1:]
		truncated = true
	}
	if len(rendered) == 0 {
		return "", truncated
	}
	return "## Prior steps\n\n" + strings.Join(rendered, "\n\n"), truncated
}

// retrieve performs fresh context retrieval and renders the matches.
func (a *Assembler) retrieve(ctx context.Context, in Input, notes map[string]any) (string, error) {
	if a.retriever == nil {
		return "", models.NewTaskFailure(models.ReasonContextRetrieval, "fresh context enabled but no retriever configured")
	}

	result, err := a.retriever.GetRelevantContext(ctx, &handler.ContextGenerationInput{
		Query: in.Query,
		Paths: in.FilePaths,
	})
	if err != nil {
		failure := models.NewTaskFailure(models.ReasonContextRetrieval, "context retrieval failed")
		failure.Err = err
		return "", failure
	}

	notes["fresh_matches"] = len(result.Matches)
	if len(result.Matches) == 0 {
		return "", nil
	}

	var b strings.Builder
	b.WriteString("## Retrieved context\n")
	if result.Summary != "" {
		b.WriteString(result.Summary)
		b.WriteByte('\n')
	}
	for _, match := range result.Matches {
		fmt.Fprintf(&b, "\n--- %s (relevance %.2f)\n%s\n", match.Path, match.Relevance, match.Excerpt)
	}
	return b.String(), nil
}
