package backend

import (
	"fmt"
	"net/http"

	"github.com/tomisteven/cliente-natural-pets/internal/repositories"
)

// Error describes a failed backend call. It implements repositories.RepositoryError so services
// translate it the same way as storage failures.
type Error struct {
	Op      string
	Status  int
	Message string
	// Rejected is set when the backend answered 2xx with success=false.
	Rejected bool
	Err      error
}

var _ repositories.RepositoryError = (*Error)(nil)

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	switch {
	case e.Err != nil && e.Status == 0:
		return fmt.Sprintf("backend: %s: %v", e.Op, e.Err)
	case e.Err != nil:
		return fmt.Sprintf("backend: %s: status %d: %v", e.Op, e.Status, e.Err)
	case e.Message != "":
		return fmt.Sprintf("backend: %s: status %d: %s", e.Op, e.Status, e.Message)
	default:
		return fmt.Sprintf("backend: %s: status %d", e.Op, e.Status)
	}
}

// Unwrap exposes the transport or decode error, if any.
func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// IsNotFound implements repositories.RepositoryError.
func (e *Error) IsNotFound() bool { return e != nil && e.Status == http.StatusNotFound }

// IsConflict implements repositories.RepositoryError.
func (e *Error) IsConflict() bool { return e != nil && e.Status == http.StatusConflict }

// IsUnavailable implements repositories.RepositoryError. Transport failures and 5xx replies count.
func (e *Error) IsUnavailable() bool {
	if e == nil {
		return false
	}
	return e.Status == 0 || e.Status >= http.StatusInternalServerError || e.Status == http.StatusTooManyRequests
}

// IsClientError reports a 4xx reply or an explicit success=false answer.
func (e *Error) IsClientError() bool {
	if e == nil {
		return false
	}
	if e.Rejected {
		return true
	}
	return e.Status >= http.StatusBadRequest && e.Status < http.StatusInternalServerError && e.Status != http.StatusTooManyRequests
}
