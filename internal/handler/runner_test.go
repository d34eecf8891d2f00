package handler

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/weft-dsl/weft/pkg/models"
)

func TestExecRunner_Run(t *testing.T) {
	runner := NewExecRunner(t.TempDir())

	result, err := runner.Run(context.Background(), "echo hello", 10*time.Second, nil)
	if err != nil {
		t.Fatalf("Run() error: %v", err)
	}
	if strings.TrimSpace(result.Stdout) != "hello" {
		t.Errorf("Stdout = %q, want hello", result.Stdout)
	}
	if result.ExitCode != 0 {
		t.Errorf("ExitCode = %d, want 0", result.ExitCode)
	}
}

func TestExecRunner_NonZeroExit(t *testing.T) {
	runner := NewExecRunner("")

	result, err := runner.Run(context.Background(), "echo oops >&2; exit 3", 10*time.Second, nil)
	if err != nil {
		t.Fatalf("Run() error: %v", err)
	}
	if result.ExitCode != 3 {
		t.Errorf("ExitCode = %d, want 3", result.ExitCode)
	}
	if !strings.Contains(result.Stderr, "oops") {
		t.Errorf("Stderr = %q, want oops", result.Stderr)
	}
}

func TestExecRunner_InputsAsEnv(t *testing.T) {
	runner := NewExecRunner("")

	result, err := runner.Run(context.Background(), "echo $WEFT_candidate", 10*time.Second,
		map[string]string{"candidate": "draft-7"})
	if err != nil {
		t.Fatalf("Run() error: %v", err)
	}
	if strings.TrimSpace(result.Stdout) != "draft-7" {
		t.Errorf("Stdout = %q, want draft-7", result.Stdout)
	}
}

func TestExecRunner_Timeout(t *testing.T) {
	runner := NewExecRunner("")

	_, err := runner.Run(context.Background(), "sleep 5", 100*time.Millisecond, nil)
	failure, ok := models.AsTaskFailure(err)
	if !ok {
		t.Fatalf("error = %v (%T), want *models.TaskFailure", err, err)
	}
	if failure.Reason != models.ReasonExecutionTimeout {
		t.Errorf("Reason = %q, want execution_timeout", failure.Reason)
	}
}
