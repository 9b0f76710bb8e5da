package repositories

import "fmt"

// StorageErrorCode enumerates failure reasons for cart storage operations.
type StorageErrorCode string

const (
	// StorageErrorNotFound indicates the requested key was never written.
	StorageErrorNotFound StorageErrorCode = "storage_not_found"
	// StorageErrorUnavailable indicates a transient storage outage.
	StorageErrorUnavailable StorageErrorCode = "storage_unavailable"
	// StorageErrorInvalidInput indicates the caller supplied an empty session or key.
	StorageErrorInvalidInput StorageErrorCode = "storage_invalid_input"
)

// StorageError implements RepositoryError for storage backends without their own error type.
type StorageError struct {
	Op   string
	Code StorageErrorCode
	Err  error
}

var _ RepositoryError = (*StorageError)(nil)

// NewStorageError constructs a typed storage error.
func NewStorageError(op string, code StorageErrorCode, err error) *StorageError {
	return &StorageError{Op: op, Code: code, Err: err}
}

// Error implements the error interface.
func (e *StorageError) Error() string {
	if e == nil {
		return ""
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Code, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Code)
}

// Unwrap exposes the underlying error, if any.
func (e *StorageError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// IsNotFound implements RepositoryError.
func (e *StorageError) IsNotFound() bool { return e != nil && e.Code == StorageErrorNotFound }

// IsConflict implements RepositoryError.
func (e *StorageError) IsConflict() bool { return false }

// IsUnavailable implements RepositoryError.
func (e *StorageError) IsUnavailable() bool { return e != nil && e.Code == StorageErrorUnavailable }
