package sourceapi

import (
	"fmt"
	"net/http"

	"github.com/syncline/backend/internal/domain/shared"
)

// SourceError is a typed failure from the source system. Retryable decides
// whether the caller's retry discipline applies: transport failures, 429
// and 5xx are retryable; every other 4xx is fatal.
type SourceError struct {
	StatusCode int
	Message    string
	Retryable  bool
}

// Error implements the error interface
func (e *SourceError) Error() string {
	if e.StatusCode == 0 {
		return fmt.Sprintf("sourceapi: %s", e.Message)
	}
	return fmt.Sprintf("sourceapi: HTTP %d: %s", e.StatusCode, e.Message)
}

// VersionConflictError is the distinct 409 outcome: the server rejected a
// write because its current version differs from the version token sent.
// Carries the server's state so the conflict can be surfaced immediately
// without a second round trip.
type VersionConflictError struct {
	ServerVersion  string
	ConflictFields []string
	ServerDocument shared.Document
}

// Error implements the error interface
func (e *VersionConflictError) Error() string {
	return fmt.Sprintf("sourceapi: version conflict, server at version %s", e.ServerVersion)
}

// newTransportError wraps a failure that never produced an HTTP response
func newTransportError(err error) *SourceError {
	return &SourceError{Message: err.Error(), Retryable: true}
}

// newStatusError classifies an HTTP error status
func newStatusError(statusCode int, message string) *SourceError {
	return &SourceError{
		StatusCode: statusCode,
		Message:    message,
		Retryable:  statusCode == http.StatusTooManyRequests || statusCode >= 500,
	}
}

// IsRetryable reports whether an error from this package is worth retrying
func IsRetryable(err error) bool {
	if se, ok := err.(*SourceError); ok {
		return se.Retryable
	}
	return false
}
