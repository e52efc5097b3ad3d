package pipeline

import (
	"errors"
	"fmt"
	"io/fs"
)

// Kind classifies a pipeline failure.
type Kind int

const (
	// KindInput is a rejected request: unknown build or unreadable input.
	// Nothing has been written when it is returned.
	KindInput Kind = iota + 1
	// KindReference is missing or unreadable static reference data.
	KindReference
	// KindStage is an external tool that exited with a non-zero status.
	KindStage
	// KindArtifactMissing is a stage that exited cleanly without writing a
	// declared output.
	KindArtifactMissing
	// KindParse is malformed or truncated tool output or reference table.
	KindParse
	// KindInternal covers filesystem and other environment failures.
	KindInternal
)

func (k Kind) String() string {
	switch k {
	case KindInput:
		return "input"
	case KindReference:
		return "reference"
	case KindStage:
		return "stage"
	case KindArtifactMissing:
		return "artifact_missing"
	case KindParse:
		return "parse"
	case KindInternal:
		return "internal"
	default:
		return "unknown"
	}
}

// Error is a tagged pipeline failure.
type Error struct {
	Kind       Kind
	Stage      string // empty for failures outside a stage
	Path       string // offending file, when known
	Diagnostic string // raw tool diagnostic text
	Err        error
}

func (e *Error) Error() string {
	msg := e.Kind.String() + " error"
	if e.Stage != "" {
		msg = fmt.Sprintf("[%s] %s", e.Stage, msg)
	}
	if e.Path != "" {
		msg += " (" + e.Path + ")"
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// KindOf returns the Kind of a pipeline error, or 0 for other errors.
func KindOf(err error) Kind {
	var perr *Error
	if errors.As(err, &perr) {
		return perr.Kind
	}
	return 0
}

// IsInput reports whether err is a rejected request.
func IsInput(err error) bool {
	return KindOf(err) == KindInput
}

// IsNotFound reports whether err is a rejected request for a missing input
// file.
func IsNotFound(err error) bool {
	return IsInput(err) && errors.Is(err, fs.ErrNotExist)
}

// StageOf returns the stage tag of a pipeline error, if any.
func StageOf(err error) string {
	var perr *Error
	if errors.As(err, &perr) {
		return perr.Stage
	}
	return ""
}

func inputError(path string, err error) *Error {
	return &Error{Kind: KindInput, Path: path, Err: err}
}

func parseError(stage, path string, err error) *Error {
	return &Error{Kind: KindParse, Stage: stage, Path: path, Err: err}
}
