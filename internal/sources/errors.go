package sources

import (
	"errors"
	"fmt"

	dErrors "petregistry/pkg/domain-errors"
)

// ErrorCategory is the normalized failure taxonomy for source lookups.
type ErrorCategory string

const (
	ErrorTimeout        ErrorCategory = "timeout"
	ErrorBadData        ErrorCategory = "bad_data"
	ErrorAuthentication ErrorCategory = "authentication"
	ErrorOutage         ErrorCategory = "outage"
	ErrorNotFound       ErrorCategory = "not_found"
	ErrorRateLimited    ErrorCategory = "rate_limited"
	ErrorCircuitOpen    ErrorCategory = "circuit_open"
	ErrorInternal       ErrorCategory = "internal"
)

// SourceError wraps a failed lookup against one origin subsystem.
type SourceError struct {
	Category   ErrorCategory
	Origin     string
	Message    string
	Underlying error
	Retryable  bool
}

func (e *SourceError) Error() string {
	if e.Underlying != nil {
		return fmt.Sprintf("source %s [%s]: %s: %v", e.Origin, e.Category, e.Message, e.Underlying)
	}
	return fmt.Sprintf("source %s [%s]: %s", e.Origin, e.Category, e.Message)
}

func (e *SourceError) Unwrap() error {
	return e.Underlying
}

func newSourceError(category ErrorCategory, origin, message string, underlying error) *SourceError {
	return &SourceError{
		Category:   category,
		Origin:     origin,
		Message:    message,
		Underlying: underlying,
		Retryable:  category == ErrorTimeout || category == ErrorOutage || category == ErrorRateLimited,
	}
}

// IsRetryable reports whether err is a transient source failure.
func IsRetryable(err error) bool {
	var se *SourceError
	if errors.As(err, &se) {
		return se.Retryable
	}
	return false
}

// CategoryOf extracts the category, defaulting to internal.
func CategoryOf(err error) ErrorCategory {
	var se *SourceError
	if errors.As(err, &se) {
		return se.Category
	}
	return ErrorInternal
}

// toDomain maps a source failure onto the service error taxonomy.
func toDomain(err *SourceError) error {
	switch err.Category {
	case ErrorNotFound:
		return dErrors.Wrap(err, dErrors.CodeNotFound, "source record not found")
	case ErrorTimeout, ErrorOutage, ErrorRateLimited, ErrorCircuitOpen:
		return dErrors.Wrap(err, dErrors.CodeUnavailable, "source "+err.Origin+" unavailable")
	}
	return dErrors.Wrap(err, dErrors.CodeInternal, "source lookup failed")
}
