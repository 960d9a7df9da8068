package engine

import (
	"errors"
	"fmt"
)

// RuntimeError represents an error detected while running a process.
//
// Runtime errors include:
//   - Invalid input: a request value that cannot become a process input
//   - Invalid output: an output that cannot be attached to the record
//   - Process failed: the process finished with a nonzero exit status
//   - Quota exceeded: a workflow submitted too many children
type RuntimeError struct {
	// Code identifies the error category.
	Code RuntimeErrorCode

	// Message is a human-readable description.
	Message string

	// ProcessType identifies the process that failed.
	ProcessType string

	// Record is the UUID of the process record, if one was stored.
	Record string

	// Details contains additional context.
	Details map[string]string
}

// RuntimeErrorCode categorizes runtime errors.
type RuntimeErrorCode string

const (
	// ErrCodeInvalidProcess indicates a value that is neither a Calculation
	// nor a Workflow.
	ErrCodeInvalidProcess RuntimeErrorCode = "INVALID_PROCESS"

	// ErrCodeInvalidInput indicates a request value that cannot be an input.
	ErrCodeInvalidInput RuntimeErrorCode = "INVALID_INPUT"

	// ErrCodeInvalidOutput indicates an output that cannot be attached.
	ErrCodeInvalidOutput RuntimeErrorCode = "INVALID_OUTPUT"

	// ErrCodeProcessFailed indicates a nonzero exit status.
	ErrCodeProcessFailed RuntimeErrorCode = "PROCESS_FAILED"

	// ErrCodeQuotaExceeded indicates a workflow exceeded max calls.
	ErrCodeQuotaExceeded RuntimeErrorCode = "QUOTA_EXCEEDED"
)

// Error implements the error interface.
func (e *RuntimeError) Error() string {
	if e.ProcessType != "" && e.Record != "" {
		return fmt.Sprintf("%s: %s (process=%s, record=%s)", e.Code, e.Message, e.ProcessType, e.Record)
	}
	if e.ProcessType != "" {
		return fmt.Sprintf("%s: %s (process=%s)", e.Code, e.Message, e.ProcessType)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// IsInputError returns true if the error is an invalid input error.
// Uses errors.As to handle wrapped errors.
func IsInputError(err error) bool {
	return hasCode(err, ErrCodeInvalidInput)
}

// IsOutputError returns true if the error is an invalid output error.
func IsOutputError(err error) bool {
	return hasCode(err, ErrCodeInvalidOutput)
}

// IsProcessFailed returns true if a process finished with a nonzero exit
// status.
func IsProcessFailed(err error) bool {
	return hasCode(err, ErrCodeProcessFailed)
}

// IsQuotaError returns true if the error is a quota exceeded error.
// Matches both RuntimeError with ErrCodeQuotaExceeded and StepsExceededError.
func IsQuotaError(err error) bool {
	if hasCode(err, ErrCodeQuotaExceeded) {
		return true
	}
	var se *StepsExceededError
	return errors.As(err, &se)
}

func hasCode(err error, code RuntimeErrorCode) bool {
	var re *RuntimeError
	if errors.As(err, &re) {
		return re.Code == code
	}
	return false
}

func newInputError(processType, label string, err error) *RuntimeError {
	return &RuntimeError{
		Code:        ErrCodeInvalidInput,
		Message:     fmt.Sprintf("input %q: %v", label, err),
		ProcessType: processType,
		Details:     map[string]string{"label": label},
	}
}

func newOutputError(processType, record, label, reason string) *RuntimeError {
	return &RuntimeError{
		Code:        ErrCodeInvalidOutput,
		Message:     fmt.Sprintf("output %q: %s", label, reason),
		ProcessType: processType,
		Record:      record,
		Details:     map[string]string{"label": label},
	}
}

// NewProcessFailedError creates a RuntimeError for a nonzero exit status.
func NewProcessFailedError(processType, record string, exit *ExitCode) *RuntimeError {
	return &RuntimeError{
		Code:        ErrCodeProcessFailed,
		Message:     exit.Error(),
		ProcessType: processType,
		Record:      record,
		Details: map[string]string{
			"exit_status": fmt.Sprintf("%d", exit.Status),
		},
	}
}

// ExitCode is returned by a process to finish with a specific exit status.
// A nonzero status records the process as finished but failed; failed
// records are never used as cache sources.
type ExitCode struct {
	Status  int
	Message string
}

// Exit creates an ExitCode error.
func Exit(status int, message string) error {
	return &ExitCode{Status: status, Message: message}
}

// Error implements the error interface.
func (e *ExitCode) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("exit status %d", e.Status)
	}
	return fmt.Sprintf("exit status %d: %s", e.Status, e.Message)
}
