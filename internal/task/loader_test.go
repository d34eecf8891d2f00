package task

import (
	"os"
	"path/filepath"
	"testing"
)

func writeTemplateFile(t *testing.T, dir, name, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestLoadDir(t *testing.T) {
	dir := t.TempDir()
	writeTemplateFile(t, dir, "single.yaml", `
name: summarize
description: Summarize a passage
prompt: "Summarize {{text}}"
params:
  - text
`)
	writeTemplateFile(t, dir, "multi.yml", `
templates:
  - name: translate
    prompt: "Translate {{text}} to {{lang}}"
    params: [text, lang]
  - name: judge
    prompt: "Rate {{text}}"
    params: [text]
    output:
      type: json
      schema: |
        score: number
`)
	writeTemplateFile(t, dir, "notes.txt", "ignored, not yaml")

	r := NewRegistry()
	n, err := LoadDir(r, dir)
	if err != nil {
		t.Fatalf("LoadDir() error: %v", err)
	}
	if n != 3 {
		t.Errorf("LoadDir() = %d templates, want 3", n)
	}
	for _, name := range []string{"summarize", "translate", "judge"} {
		if r.Find(name) == nil {
			t.Errorf("template %q not registered", name)
		}
	}
	if got := r.Find("judge").Output.Type; got != "json" {
		t.Errorf("judge output type = %q, want json", got)
	}
}

func TestLoadDir_InvalidTemplateFails(t *testing.T) {
	dir := t.TempDir()
	writeTemplateFile(t, dir, "bad.yaml", `
name: broken
prompt: "Uses {{undeclared}}"
`)
	r := NewRegistry()
	if _, err := LoadDir(r, dir); err == nil {
		t.Fatal("LoadDir() accepted template with undeclared placeholder")
	}
}

func TestLoadFile_LoopTemplate(t *testing.T) {
	dir := t.TempDir()
	writeTemplateFile(t, dir, "refine.yaml", `
name: refine
type: director_evaluator_loop
prompt: "Iteratively improve {{goal}}"
params: [goal]
loop:
  director: draft
  evaluator: critique
  max_iterations: 4
  script: "make lint"
  script_timeout: 30s
`)
	r := NewRegistry()
	if _, err := LoadFile(r, filepath.Join(dir, "refine.yaml")); err != nil {
		t.Fatalf("LoadFile() error: %v", err)
	}
	tmpl := r.Find("refine")
	if tmpl == nil {
		t.Fatal("loop template not registered")
	}
	if tmpl.Loop == nil || tmpl.Loop.MaxIterations != 4 {
		t.Errorf("Loop = %+v, want max_iterations 4", tmpl.Loop)
	}
	if d := tmpl.Loop.ScriptTimeoutDuration(); d.Seconds() != 30 {
		t.Errorf("script timeout = %v, want 30s", d)
	}
}
