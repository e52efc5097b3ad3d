// Package stagetest provides a scripted Executor for testing code that runs
// pipeline stages without the real tools installed.
package stagetest

import (
	"context"
	"os"
	"path/filepath"
	"sync"

	"github.com/inodb/vibe-prs/internal/stage"
)

// Call is one recorded command invocation.
type Call struct {
	Name string
	Args []string
}

// Flag returns the argument following flag, or "" when flag is absent.
func (c Call) Flag(flag string) string {
	for i := 0; i < len(c.Args)-1; i++ {
		if c.Args[i] == flag {
			return c.Args[i+1]
		}
	}
	return ""
}

// Has reports whether arg appears in the argument list.
func (c Call) Has(arg string) bool {
	for _, a := range c.Args {
		if a == arg {
			return true
		}
	}
	return false
}

// HandlerFunc scripts the outcome of one call.
type HandlerFunc func(c Call) (*stage.Output, error)

// Executor records calls and delegates each to Handler. A nil Handler
// succeeds without producing any files.
type Executor struct {
	Handler HandlerFunc

	mu    sync.Mutex
	calls []Call
}

// Run implements stage.Executor.
func (e *Executor) Run(ctx context.Context, name string, args ...string) (*stage.Output, error) {
	c := Call{Name: name, Args: append([]string(nil), args...)}
	e.mu.Lock()
	e.calls = append(e.calls, c)
	e.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if e.Handler == nil {
		return &stage.Output{}, nil
	}
	return e.Handler(c)
}

// Calls returns the recorded calls in order.
func (e *Executor) Calls() []Call {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]Call(nil), e.calls...)
}

// Fail returns an Output with the given exit code and stderr text.
func Fail(code int, stderr string) *stage.Output {
	return &stage.Output{ExitCode: code, Stderr: []byte(stderr)}
}

// WriteFile creates path (and its parent directories) with content.
func WriteFile(path, content string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	return os.WriteFile(path, []byte(content), 0644)
}

// Touch creates empty files.
func Touch(paths ...string) error {
	for _, p := range paths {
		if err := WriteFile(p, ""); err != nil {
			return err
		}
	}
	return nil
}
