package engine

import (
	"errors"
	"fmt"
)

// DefaultMaxCalls is the default maximum number of child processes one
// top-level run may submit, across all nesting levels.
const DefaultMaxCalls = 1000

// QuotaEnforcer counts child submissions of a top-level run and enforces
// a maximum. One enforcer is shared by every Runner of the run, so
// nested workflows draw from the same budget.
type QuotaEnforcer struct {
	maxCalls int
	current  int
}

// NewQuotaEnforcer creates a new quota enforcer with the given limit.
func NewQuotaEnforcer(maxCalls int) *QuotaEnforcer {
	return &QuotaEnforcer{maxCalls: maxCalls}
}

// Check increments the call counter and validates against the limit.
// Returns StepsExceededError if the quota is exceeded.
func (q *QuotaEnforcer) Check(record string) error {
	q.current++
	if q.current > q.maxCalls {
		return &StepsExceededError{
			Record: record,
			Steps:  q.current,
			Limit:  q.maxCalls,
		}
	}
	return nil
}

// Current returns the current call count.
func (q *QuotaEnforcer) Current() int {
	return q.current
}

// MaxCalls returns the limit.
func (q *QuotaEnforcer) MaxCalls() int {
	return q.maxCalls
}

// StepsExceededError is returned when a workflow tries to submit more
// children than the quota allows. The submitting workflow is recorded as
// excepted.
type StepsExceededError struct {
	Record string // The workflow that hit the quota
	Steps  int    // Number of submissions attempted
	Limit  int    // Maximum allowed submissions
}

// Error implements the error interface.
func (e *StepsExceededError) Error() string {
	return fmt.Sprintf("workflow %s exceeded max calls quota: %d calls > %d limit",
		e.Record, e.Steps, e.Limit)
}

// IsStepsExceededError returns true if the error is a StepsExceededError.
// Uses errors.As to handle wrapped errors.
func IsStepsExceededError(err error) bool {
	var se *StepsExceededError
	return errors.As(err, &se)
}
