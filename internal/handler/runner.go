package handler

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"time"

	"github.com/weft-dsl/weft/pkg/models"
)

// DefaultScriptTimeout bounds script steps that do not set their own.
const DefaultScriptTimeout = 2 * time.Minute

// ExecRunner implements CommandRunner using os/exec through "sh -c".
type ExecRunner struct {
	workDir string
}

// NewExecRunner creates an ExecRunner rooted at workDir. An empty workDir
// runs commands in the process working directory.
func NewExecRunner(workDir string) *ExecRunner {
	return &ExecRunner{workDir: workDir}
}

// Run executes a shell command with the given timeout. Inputs are passed as
// environment variables prefixed WEFT_. A non-zero exit is not an error at
// this layer; the caller decides what the exit code means. A timeout is
// surfaced as TASK_FAILURE(execution_timeout).
func (r *ExecRunner) Run(ctx context.Context, command string, timeout time.Duration, inputs map[string]string) (*ScriptResult, error) {
	if timeout <= 0 {
		timeout = DefaultScriptTimeout
	}
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, "sh", "-c", command)
	if r.workDir != "" {
		cmd.Dir = r.workDir
	}
	cmd.Env = os.Environ()
	for key, value := range inputs {
		cmd.Env = append(cmd.Env, fmt.Sprintf("WEFT_%s=%s", key, value))
	}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	result := &ScriptResult{
		Stdout: stdout.String(),
		Stderr: stderr.String(),
	}

	if runCtx.Err() == context.DeadlineExceeded {
		failure := models.NewTaskFailure(models.ReasonExecutionTimeout, "script exceeded %s timeout", timeout)
		failure.Partial = result.Stdout
		return result, failure
	}

	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			result.ExitCode = exitErr.ExitCode()
			return result, nil
		}
		failure := models.NewTaskFailure(models.ReasonToolExecution, "script failed to start")
		failure.Err = err
		return nil, failure
	}
	return result, nil
}

// Verify ExecRunner implements CommandRunner at compile time.
var _ CommandRunner = (*ExecRunner)(nil)
