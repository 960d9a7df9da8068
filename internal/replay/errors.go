package replay

import (
	"errors"
	"fmt"
)

// ErrorCode categorizes replay errors.
type ErrorCode string

const (
	// ErrCodeNotFound indicates a cache path that does not exist.
	ErrCodeNotFound ErrorCode = "NOT_FOUND"

	// ErrCodeInvalidArgument indicates a load with nothing to load from.
	ErrCodeInvalidArgument ErrorCode = "INVALID_ARGUMENT"

	// ErrCodeCorruptCache indicates a cache path that is neither a regular
	// file nor a directory.
	ErrCodeCorruptCache ErrorCode = "CORRUPT_CACHE"

	// ErrCodeImportFailed indicates an archive that could not be imported.
	// The underlying *archive.ImportError is available through errors.As.
	ErrCodeImportFailed ErrorCode = "IMPORT_FAILED"
)

// Error is returned for every failure the controller itself detects.
type Error struct {
	Code    ErrorCode
	Message string
	Path    string
	Err     error
}

// Error implements the error interface.
func (e *Error) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Code, e.Message)
	if e.Path != "" {
		msg += fmt.Sprintf(" (path=%s)", e.Path)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// IsNotFound returns true if err is a NOT_FOUND replay error.
func IsNotFound(err error) bool {
	return hasCode(err, ErrCodeNotFound)
}

// IsInvalidArgument returns true if err is an INVALID_ARGUMENT replay error.
func IsInvalidArgument(err error) bool {
	return hasCode(err, ErrCodeInvalidArgument)
}

// IsCorruptCache returns true if err is a CORRUPT_CACHE replay error.
func IsCorruptCache(err error) bool {
	return hasCode(err, ErrCodeCorruptCache)
}

// IsImportFailed returns true if err is an IMPORT_FAILED replay error.
func IsImportFailed(err error) bool {
	return hasCode(err, ErrCodeImportFailed)
}

func hasCode(err error, code ErrorCode) bool {
	var re *Error
	if errors.As(err, &re) {
		return re.Code == code
	}
	return false
}
