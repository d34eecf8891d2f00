package tui

import (
	"strings"
	"testing"

	"github.com/weft-dsl/weft/pkg/models"
)

func TestFormatUsage(t *testing.T) {
	if got := formatUsage(3, 10); got != "3/10" {
		t.Errorf("formatUsage(3, 10) = %q", got)
	}
	if got := formatUsage(3, 0); got != "3/∞" {
		t.Errorf("formatUsage(3, 0) = %q", got)
	}
}

func TestRepl_ResultAppendsHistory(t *testing.T) {
	r := &Repl{}
	model, _ := r.Update(resultMsg{input: "(+ 1 2)", output: "3"})
	r = model.(*Repl)

	if len(r.history) != 2 {
		t.Fatalf("history length = %d, want 2", len(r.history))
	}
	if !strings.Contains(r.history[0], "(+ 1 2)") {
		t.Errorf("input not echoed: %q", r.history[0])
	}
	if !strings.Contains(r.history[1], "3") {
		t.Errorf("result missing: %q", r.history[1])
	}
	if r.busy {
		t.Error("busy flag not cleared after result")
	}
}

func TestRepl_HistoryBounded(t *testing.T) {
	r := &Repl{}
	for i := 0; i < maxHistoryLines; i++ {
		model, _ := r.Update(resultMsg{input: "x", output: "y"})
		r = model.(*Repl)
	}
	if len(r.history) > maxHistoryLines {
		t.Errorf("history grew to %d lines, cap is %d", len(r.history), maxHistoryLines)
	}
}

func TestFormatResultSummary(t *testing.T) {
	got := FormatResultSummary(&models.TaskResult{Content: "done", Status: models.StatusComplete})
	if got != "[COMPLETE] done" {
		t.Errorf("FormatResultSummary() = %q", got)
	}
	if FormatResultSummary(nil) != "" {
		t.Error("nil result should render empty")
	}
}
