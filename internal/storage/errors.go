package storage

import (
	"errors"
	"fmt"
	"os"
)

// Sentinel errors for terminal per-file failures. These are never retried.
var (
	// ErrNotFound indicates the local file does not exist
	ErrNotFound = errors.New("file not found")

	// ErrPermissionDenied indicates the local file cannot be read
	ErrPermissionDenied = errors.New("permission denied")
)

// TransientError wraps a connectivity, credential, or service error that
// is expected to be retryable.
type TransientError struct {
	Err error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("transient store error: %v", e.Err)
}

func (e *TransientError) Unwrap() error {
	return e.Err
}

// Transient wraps err as a retryable store error.
func Transient(err error) error {
	if err == nil {
		return nil
	}
	return &TransientError{Err: err}
}

// IsTransient reports whether err is classified as retryable.
func IsTransient(err error) bool {
	var te *TransientError
	return errors.As(err, &te)
}

// classifyLocalError maps filesystem errors onto the terminal sentinels.
func classifyLocalError(path string, err error) error {
	switch {
	case os.IsNotExist(err):
		return fmt.Errorf("%w: %s", ErrNotFound, path)
	case os.IsPermission(err):
		return fmt.Errorf("%w: %s", ErrPermissionDenied, path)
	default:
		return fmt.Errorf("failed to access %s: %w", path, err)
	}
}
