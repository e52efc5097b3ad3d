// Package stage wraps the external tool invocations of the scoring
// pipeline. Each Stage runs one command to completion, checks its exit
// status and verifies that its declared output files exist.
package stage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"

	"go.uber.org/zap"
)

// Output is the captured result of one process execution.
type Output struct {
	Stdout   []byte
	Stderr   []byte
	ExitCode int
}

// Diagnostic returns the process's diagnostic text: stderr when present,
// otherwise stdout (plink2 reports most errors on stdout).
func (o *Output) Diagnostic() string {
	if o == nil {
		return ""
	}
	if d := strings.TrimSpace(string(o.Stderr)); d != "" {
		return d
	}
	return strings.TrimSpace(string(o.Stdout))
}

// Executor runs an external command and waits for it to exit. A non-zero
// exit is reported through Output.ExitCode, not as an error; the error
// return is for commands that could not be run at all.
type Executor interface {
	Run(ctx context.Context, name string, args ...string) (*Output, error)
}

// ExecExecutor runs commands as child processes.
type ExecExecutor struct {
	// Dir is the working directory of each command (empty: current directory).
	Dir    string
	logger *zap.Logger
}

// NewExecExecutor creates an executor running commands in dir.
func NewExecExecutor(dir string) *ExecExecutor {
	return &ExecExecutor{Dir: dir, logger: zap.NewNop()}
}

// SetLogger sets the logger used for command tracing.
func (e *ExecExecutor) SetLogger(l *zap.Logger) {
	e.logger = l
}

// Run executes name with args, capturing stdout and stderr.
func (e *ExecExecutor) Run(ctx context.Context, name string, args ...string) (*Output, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = e.Dir

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	e.logger.Debug("exec", zap.String("cmd", name), zap.Strings("args", args))

	err := cmd.Run()
	out := &Output{Stdout: stdout.Bytes(), Stderr: stderr.Bytes()}
	if err != nil {
		var exitErr *exec.ExitError
		if !errors.As(err, &exitErr) {
			return nil, fmt.Errorf("run %s: %w", name, err)
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, fmt.Errorf("run %s: %w", name, ctxErr)
		}
		out.ExitCode = exitErr.ExitCode()
	}

	e.logger.Debug("exec done", zap.String("cmd", name), zap.Int("exit_code", out.ExitCode))
	return out, nil
}
