package task

import (
	"context"
	"fmt"
	"testing"

	"github.com/weft-dsl/weft/pkg/models"
)

func validTemplate(name string) *Template {
	return &Template{
		Name:   name,
		Prompt: "Summarize {{text}}",
		Params: []string{"text"},
	}
}

func TestRegistry_RegisterAndFind(t *testing.T) {
	r := NewRegistry()
	if err := r.Register(validTemplate("summarize")); err != nil {
		t.Fatalf("Register() error: %v", err)
	}
	if r.Find("summarize") == nil {
		t.Error("Find() returned nil for registered template")
	}
	if r.Find("missing") != nil {
		t.Error("Find() returned a template for unknown name")
	}
}

func TestRegistry_NamesSorted(t *testing.T) {
	r := NewRegistry()
	for _, name := range []string{"zeta", "alpha", "mid"} {
		if err := r.Register(validTemplate(name)); err != nil {
			t.Fatal(err)
		}
	}
	got := r.Names()
	want := []string{"alpha", "mid", "zeta"}
	if len(got) != len(want) {
		t.Fatalf("Names() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("Names() = %v, want %v", got, want)
		}
	}
}

func TestRegistry_CollisionWarnsNeverSilent(t *testing.T) {
	r := NewRegistry()
	var warnings []string
	r.SetWarnFunc(func(format string, args ...any) {
		warnings = append(warnings, fmt.Sprintf(format, args...))
	})

	if err := r.Register(validTemplate("dup")); err != nil {
		t.Fatalf("Register() error: %v", err)
	}
	replacement := validTemplate("dup")
	replacement.Description = "second"
	if err := r.Register(replacement); err != nil {
		t.Fatalf("Register() collision error: %v", err)
	}

	if len(warnings) != 1 {
		t.Fatalf("got %d warnings, want 1", len(warnings))
	}
	if r.Find("dup").Description != "second" {
		t.Error("collision did not overwrite")
	}
}

func TestRegistry_RejectsExclusivityAtRegistration(t *testing.T) {
	r := NewRegistry()
	tmpl := validTemplate("bad-context")
	tmpl.Context = &models.ContextOverride{
		InheritContext: models.InheritFull,
		FreshContext:   models.FreshEnabled,
	}

	err := r.Register(tmpl)
	if err == nil {
		t.Fatal("Register() accepted fresh=enabled with inherit=full")
	}
	if _, ok := err.(*models.ValidationError); !ok {
		t.Errorf("error = %T, want *models.ValidationError", err)
	}
}

func TestTemplate_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Template)
		wantErr bool
	}{
		{name: "valid", mutate: func(*Template) {}, wantErr: false},
		{name: "no name", mutate: func(tm *Template) { tm.Name = "" }, wantErr: true},
		{name: "unknown type", mutate: func(tm *Template) { tm.Type = "mystery" }, wantErr: true},
		{name: "undeclared placeholder", mutate: func(tm *Template) { tm.Prompt = "{{text}} and {{other}}" }, wantErr: true},
		{name: "duplicate param", mutate: func(tm *Template) { tm.Params = []string{"text", "text"} }, wantErr: true},
		{name: "unknown output type", mutate: func(tm *Template) { tm.Output = &OutputFormat{Type: "xml"} }, wantErr: true},
		{name: "loop section on atomic", mutate: func(tm *Template) { tm.Loop = &LoopSpec{Director: "d", Evaluator: "e"} }, wantErr: true},
		{name: "loop without evaluator", mutate: func(tm *Template) {
			tm.Type = models.OpDirectorEvaluatorLoop
			tm.Loop = &LoopSpec{Director: "d"}
		}, wantErr: true},
		{name: "valid loop", mutate: func(tm *Template) {
			tm.Type = models.OpDirectorEvaluatorLoop
			tm.Loop = &LoopSpec{Director: "d", Evaluator: "e", MaxIterations: 3}
		}, wantErr: false},
		{name: "bad script timeout", mutate: func(tm *Template) {
			tm.Type = models.OpDirectorEvaluatorLoop
			tm.Loop = &LoopSpec{Director: "d", Evaluator: "e", ScriptTimeout: "soon"}
		}, wantErr: true},
		{name: "loop bindings need no declaration", mutate: func(tm *Template) {
			tm.Prompt = "Attempt {{iteration}}: improve {{text}} given {{feedback}}"
		}, wantErr: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tmpl := validTemplate("candidate")
			tt.mutate(tmpl)
			err := tmpl.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestRegistry_Tools(t *testing.T) {
	r := NewRegistry()
	r.RegisterTool("word_count", func(_ context.Context, args []any) (any, error) {
		return int64(len(args)), nil
	})
	if r.Tool("word_count") == nil {
		t.Error("Tool() returned nil for registered tool")
	}
	if r.Tool("missing") != nil {
		t.Error("Tool() returned a function for unknown name")
	}

	r.RegisterSubtaskTool("search", []string{"prefers-short-queries"})
	hints := r.SubtaskHints("search")
	if len(hints) != 1 || hints[0] != "prefers-short-queries" {
		t.Errorf("SubtaskHints() = %v", hints)
	}
}
