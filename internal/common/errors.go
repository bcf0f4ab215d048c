package common

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// Domain errors - use errors.Is() to check
var (
	// Generic errors
	ErrNotFound = errors.New("not found")
	ErrConflict = errors.New("already exists")

	// Resource-specific errors
	ErrJobNotFound = fmt.Errorf("job %w", ErrNotFound)
	ErrJobExists   = fmt.Errorf("job %w", ErrConflict)

	// Validation errors
	ErrValidation = errors.New("validation error")

	// Pipeline errors
	ErrExecution     = errors.New("stage execution failed")
	ErrOrchestration = errors.New("orchestration fault")
)

// ExecutionError is a stage executor fault. It is recorded on the job and
// never returned to a submitting caller.
type ExecutionError struct {
	Stage  string
	Detail string
	Err    error
}

func (e *ExecutionError) Error() string {
	if e.Detail == "" && e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Stage, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Stage, e.Detail)
}

func (e *ExecutionError) Unwrap() error { return e.Err }

func (e *ExecutionError) Is(target error) bool {
	return target == ErrExecution
}

// NewExecutionError builds an ExecutionError, reusing err when it already is one
// for the same stage.
func NewExecutionError(stage string, err error) *ExecutionError {
	var execErr *ExecutionError
	if errors.As(err, &execErr) && execErr.Stage == stage {
		return execErr
	}
	detail := ""
	if err != nil {
		detail = err.Error()
	}
	return &ExecutionError{Stage: stage, Detail: detail, Err: err}
}

// OrchestrationError is an internal defect not attributable to a job's
// stages, e.g. a dequeued id whose record cannot be loaded.
type OrchestrationError struct {
	JobID uuid.UUID
	Op    string
	Err   error
}

func (e *OrchestrationError) Error() string {
	return fmt.Sprintf("orchestration fault: %s job %s: %v", e.Op, e.JobID, e.Err)
}

func (e *OrchestrationError) Unwrap() []error { return []error{ErrOrchestration, e.Err} }

// IsNotFound checks if error is a not found error
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsConflict checks if error is a conflict error
func IsConflict(err error) bool {
	return errors.Is(err, ErrConflict)
}

// IsValidation checks if error is a validation error
func IsValidation(err error) bool {
	return errors.Is(err, ErrValidation)
}

// IsExecution checks if error is a stage execution fault
func IsExecution(err error) bool {
	return errors.Is(err, ErrExecution)
}

// IsOrchestration checks if error is an orchestration fault
func IsOrchestration(err error) bool {
	return errors.Is(err, ErrOrchestration)
}
