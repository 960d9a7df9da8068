package archive

import (
	"errors"
	"fmt"
)

// ErrArchiveExists is returned when exporting to an existing path without
// overwrite.
var ErrArchiveExists = errors.New("archive already exists")

// ImportError reports an archive that could not be decoded or committed.
type ImportError struct {
	Path string
	Err  error
}

// Error implements the error interface.
func (e *ImportError) Error() string {
	return fmt.Sprintf("import %s: %v", e.Path, e.Err)
}

// Unwrap returns the underlying cause.
func (e *ImportError) Unwrap() error {
	return e.Err
}

// IncompatibleVersionError reports an archive whose export version this
// build cannot import without migration.
type IncompatibleVersionError struct {
	Path    string
	Version string
}

// Error implements the error interface.
func (e *IncompatibleVersionError) Error() string {
	return fmt.Sprintf("archive %s has export version %q, current is %q", e.Path, e.Version, CurrentVersion)
}

// IsImportError returns true if err is or wraps an *ImportError.
func IsImportError(err error) bool {
	var ie *ImportError
	return errors.As(err, &ie)
}

// IsIncompatibleVersion returns true if err is or wraps an
// *IncompatibleVersionError.
func IsIncompatibleVersion(err error) bool {
	var ve *IncompatibleVersionError
	return errors.As(err, &ve)
}
