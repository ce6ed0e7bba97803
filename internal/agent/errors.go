package agent

import (
	"errors"
	"fmt"

	"github.com/nexar-labs/nexar/pkg/models"
)

// Sentinel errors surfaced by the control plane.
var (
	// ErrRunNotFound means the run id is unknown or already evicted.
	ErrRunNotFound = errors.New("run not found")

	// ErrPlannerInvalidOutput means the planner kept returning output
	// that failed schema or dependency validation after repair retries.
	ErrPlannerInvalidOutput = errors.New("planner returned invalid output")
)

// ConflictError reports a control operation incompatible with the run's
// current status (e.g. reply on a run that is not waiting for input).
type ConflictError struct {
	RunID  string
	Status models.RunStatus
	Op     string
}

// Error implements the error interface.
func (e *ConflictError) Error() string {
	return fmt.Sprintf("run %s: cannot %s while %s", e.RunID, e.Op, e.Status)
}

// NewConflictError builds a conflict error.
func NewConflictError(runID string, status models.RunStatus, op string) *ConflictError {
	return &ConflictError{RunID: runID, Status: status, Op: op}
}

// IsConflict reports whether err is a run-state conflict.
func IsConflict(err error) bool {
	var ce *ConflictError
	return errors.As(err, &ce)
}
