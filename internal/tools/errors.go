package tools

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorKind classifies a tool failure.
type ErrorKind string

const (
	// KindPathEscape means a path input resolved outside the workspace.
	KindPathEscape ErrorKind = "path_escape"

	// KindNotFound means the target file or action type does not exist.
	KindNotFound ErrorKind = "not_found"

	// KindIO covers filesystem and process failures.
	KindIO ErrorKind = "io"

	// KindTimeout means the action exceeded its timeout_sec.
	KindTimeout ErrorKind = "timeout"

	// KindCancelled means the run's cancellation reached the action.
	KindCancelled ErrorKind = "cancelled"

	// KindInvalidInput means the action input failed validation.
	KindInvalidInput ErrorKind = "invalid_input"
)

// ToolError is the uniform error produced by action execution.
type ToolError struct {
	Kind    ErrorKind
	Tool    string
	Path    string
	Message string
	Cause   error
}

// Error implements the error interface.
func (e *ToolError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "tool %s: %s", e.Tool, e.Kind)
	if e.Path != "" {
		fmt.Fprintf(&b, " (%s)", e.Path)
	}
	if e.Message != "" {
		fmt.Fprintf(&b, ": %s", e.Message)
	}
	return b.String()
}

// Unwrap returns the underlying cause.
func (e *ToolError) Unwrap() error {
	return e.Cause
}

// Retryable reports whether re-running the action can succeed.
func (e *ToolError) Retryable() bool {
	return e.Kind == KindIO || e.Kind == KindTimeout
}

// WithPath attaches the offending path.
func (e *ToolError) WithPath(path string) *ToolError {
	e.Path = path
	return e
}

// WithCause attaches the underlying error.
func (e *ToolError) WithCause(cause error) *ToolError {
	e.Cause = cause
	return e
}

// NewToolError builds a tool error.
func NewToolError(tool string, kind ErrorKind, message string) *ToolError {
	return &ToolError{Kind: kind, Tool: tool, Message: message}
}

// IsToolError extracts a ToolError from an error chain.
func IsToolError(err error) (*ToolError, bool) {
	var te *ToolError
	if errors.As(err, &te) {
		return te, true
	}
	return nil, false
}

// ErrorKindOf returns the tool error kind, or KindIO for foreign errors.
func ErrorKindOf(err error) ErrorKind {
	if te, ok := IsToolError(err); ok {
		return te.Kind
	}
	return KindIO
}
