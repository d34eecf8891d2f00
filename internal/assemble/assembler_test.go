package assemble

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/weft-dsl/weft/internal/handler"
	"github.com/weft-dsl/weft/pkg/models"
)

func TestDefaults_SatisfyExclusivity(t *testing.T) {
	ops := []models.OperatorType{
		models.OpAtomic,
		models.OpSequential,
		models.OpReduce,
		models.OpScript,
		models.OpDirectorEvaluatorLoop,
	}
	for _, op := range ops {
		t.Run(string(op), func(t *testing.T) {
			if err := Defaults(op).Validate(); err != nil {
				t.Errorf("default for %s invalid: %v", op, err)
			}
		})
	}
}

func TestEffective_OverrideWinsFieldByField(t *testing.T) {
	cm, err := Effective(models.OpAtomic, &models.ContextOverride{
		InheritContext: models.InheritNone,
		FreshContext:   models.FreshEnabled,
	})
	if err != nil {
		t.Fatalf("Effective() error: %v", err)
	}
	if cm.InheritContext != models.InheritNone || cm.FreshContext != models.FreshEnabled {
		t.Errorf("merged = %+v", cm)
	}
	// Untouched field keeps the atomic default.
	if cm.AccumulateData {
		t.Error("AccumulateData flipped without an override")
	}
}

func TestEffective_RevalidatesAfterMerge(t *testing.T) {
	// Atomic default inherits full; enabling fresh without changing
	// inheritance must fail the merged validation.
	_, err := Effective(models.OpAtomic, &models.ContextOverride{FreshContext: models.FreshEnabled})
	if err == nil {
		t.Fatal("Effective() accepted fresh=enabled with inherited context")
	}
	if _, ok := err.(*models.ValidationError); !ok {
		t.Errorf("error = %T, want *models.ValidationError", err)
	}
}

func TestAssemble_InheritModes(t *testing.T) {
	a := New(nil, 0)
	in := Input{
		Parent: "parent context",
		ParentSections: map[string]string{
			"auth.go": "auth section",
			"db.go":   "db section",
		},
		FilePaths: []string{"auth.go"},
	}

	tests := []struct {
		name    string
		inherit models.InheritMode
		want    string
		exclude string
	}{
		{name: "full", inherit: models.InheritFull, want: "parent context"},
		{name: "none", inherit: models.InheritNone, exclude: "parent"},
		{name: "subset", inherit: models.InheritSubset, want: "auth section", exclude: "db section"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cm := models.ContextManagement{
				InheritContext:     tt.inherit,
				AccumulationFormat: models.AccumNotesOnly,
				FreshContext:       models.FreshDisabled,
			}
			notes := map[string]any{}
			got, err := a.Assemble(context.Background(), cm, in, notes)
			if err != nil {
				t.Fatalf("Assemble() error: %v", err)
			}
			if tt.want != "" && !strings.Contains(got, tt.want) {
				t.Errorf("context %q missing %q", got, tt.want)
			}
			if tt.exclude != "" && strings.Contains(got, tt.exclude) {
				t.Errorf("context %q should not contain %q", got, tt.exclude)
			}
		})
	}
}

func TestAssemble_AccumulationFormats(t *testing.T) {
	a := New(nil, 0)
	in := Input{Steps: []StepRecord{
		{Name: "step-1", Summary: "summary one", Output: "full output one"},
		{Name: "step-2", Summary: "summary two", Output: "full output two"},
	}}

	cm := models.ContextManagement{
		InheritContext:     models.InheritNone,
		AccumulateData:     true,
		AccumulationFormat: models.AccumNotesOnly,
		FreshContext:       models.FreshDisabled,
	}
	notes := map[string]any{}
	got, err := a.Assemble(context.Background(), cm, in, notes)
	if err != nil {
		t.Fatalf("Assemble() error: %v", err)
	}
	if !strings.Contains(got, "summary one") || strings.Contains(got, "full output one") {
		t.Errorf("notes_only produced %q", got)
	}

	cm.AccumulationFormat = models.AccumFullOutput
	got, err = a.Assemble(context.Background(), cm, in, notes)
	if err != nil {
		t.Fatalf("Assemble() error: %v", err)
	}
	if !strings.Contains(got, "full output two") {
		t.Errorf("full_output produced %q", got)
	}
}

func TestAssemble_TruncationRecordedInNotes(t *testing.T) {
	a := New(nil, 64)
	in := Input{Steps: []StepRecord{
		{Name: "old", Summary: strings.Repeat("x", 60)},
		{Name: "new", Summary: strings.Repeat("y", 40)},
	}}
	cm := models.ContextManagement{
		InheritContext:     models.InheritNone,
		AccumulateData:     true,
		AccumulationFormat: models.AccumNotesOnly,
		FreshContext:       models.FreshDisabled,
	}

	notes := map[string]any{}
	got, err := a.Assemble(context.Background(), cm, in, notes)
	if err != nil {
		t.Fatalf("Assemble() error: %v", err)
	}
	if notes["accumulation_truncated"] != true {
		t.Error("truncation not recorded in notes")
	}
	if strings.Contains(got, "xxxx") {
		t.Error("oldest step should have been dropped first")
	}
	if !strings.Contains(got, "yyyy") {
		t.Error("newest step should survive truncation")
	}
}

type stubRetriever struct {
	result *handler.ContextResult
	err    error
}

func (s *stubRetriever) GetRelevantContext(_ context.Context, _ *handler.ContextGenerationInput) (*handler.ContextResult, error) {
	return s.result, s.err
}

func TestAssemble_FreshRetrieval(t *testing.T) {
	a := New(&stubRetriever{result: &handler.ContextResult{
		Summary: "1 file matched",
		Matches: []handler.Match{{Path: "auth.go", Relevance: 0.9, Excerpt: "func Login"}},
	}}, 0)

	cm := models.ContextManagement{
		InheritContext:     models.InheritNone,
		AccumulationFormat: models.AccumNotesOnly,
		FreshContext:       models.FreshEnabled,
	}
	notes := map[string]any{}
	got, err := a.Assemble(context.Background(), cm, Input{Query: "login"}, notes)
	if err != nil {
		t.Fatalf("Assemble() error: %v", err)
	}
	if !strings.Contains(got, "func Login") {
		t.Errorf("fresh context missing excerpt: %q", got)
	}
	if notes["fresh_matches"] != 1 {
		t.Errorf("fresh_matches = %v, want 1", notes["fresh_matches"])
	}
}

func TestAssemble_RetrievalFailure(t *testing.T) {
	a := New(&stubRetriever{err: errors.New("backend down")}, 0)

	cm := models.ContextManagement{
		InheritContext:     models.InheritNone,
		AccumulationFormat: models.AccumNotesOnly,
		FreshContext:       models.FreshEnabled,
	}
	_, err := a.Assemble(context.Background(), cm, Input{Query: "q"}, map[string]any{})
	failure, ok := models.AsTaskFailure(err)
	if !ok {
		t.Fatalf("error = %v (%T), want *models.TaskFailure", err, err)
	}
	if failure.Reason != models.ReasonContextRetrieval {
		t.Errorf("Reason = %q, want context_retrieval_failure", failure.Reason)
	}
}
