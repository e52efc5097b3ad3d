package stage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
)

// Stage names, in pipeline order.
const (
	Filter  = "filter"
	Convert = "convert"
	Dedup   = "dedup"
	Score   = "score"
	Recode  = "recode"
)

// Artifact describes the files a successful stage produced.
type Artifact struct {
	// Path is the primary output: a file, or a plink2 file-set prefix.
	Path        string
	Files       []string
	Diagnostics string
}

// Stage is one blocking external tool invocation.
type Stage interface {
	Name() string
	Execute(ctx context.Context) (*Artifact, error)
}

// ExitError reports a tool that exited with a non-zero status.
type ExitError struct {
	Stage      string
	ExitCode   int
	Diagnostic string
}

func (e *ExitError) Error() string {
	if e.Diagnostic == "" {
		return fmt.Sprintf("%s stage failed: exit status %d", e.Stage, e.ExitCode)
	}
	return fmt.Sprintf("%s stage failed: exit status %d: %s", e.Stage, e.ExitCode, e.Diagnostic)
}

// MissingArtifactError reports a stage that exited cleanly but did not
// produce one of its declared outputs.
type MissingArtifactError struct {
	Stage string
	Path  string
}

func (e *MissingArtifactError) Error() string {
	return fmt.Sprintf("%s stage: expected output %s was not created", e.Stage, e.Path)
}

// toolStage is a Stage backed by a single command line.
type toolStage struct {
	name    string
	exec    Executor
	bin     string
	args    []string
	primary string
	outputs []string
}

func (s *toolStage) Name() string {
	return s.name
}

// CommandLine returns the command as it would be typed in a shell, for
// trail output.
func (s *toolStage) CommandLine() string {
	return s.bin + " " + strings.Join(s.args, " ")
}

func (s *toolStage) Execute(ctx context.Context) (*Artifact, error) {
	out, err := s.exec.Run(ctx, s.bin, s.args...)
	if err != nil {
		return nil, fmt.Errorf("%s stage: %w", s.name, err)
	}
	if out.ExitCode != 0 {
		return nil, &ExitError{Stage: s.name, ExitCode: out.ExitCode, Diagnostic: out.Diagnostic()}
	}

	for _, path := range s.outputs {
		if _, err := os.Stat(path); err != nil {
			if errors.Is(err, os.ErrNotExist) {
				return nil, &MissingArtifactError{Stage: s.name, Path: path}
			}
			return nil, fmt.Errorf("%s stage: stat output: %w", s.name, err)
		}
	}

	return &Artifact{
		Path:        s.primary,
		Files:       append([]string(nil), s.outputs...),
		Diagnostics: out.Diagnostic(),
	}, nil
}

// CommandLine returns the shell-style command of a tool stage, or "" for
// stages not backed by a command.
func CommandLine(s Stage) string {
	if ts, ok := s.(*toolStage); ok {
		return ts.CommandLine()
	}
	return ""
}
