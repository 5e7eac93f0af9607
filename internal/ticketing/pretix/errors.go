package pretix

import (
	"errors"
	"fmt"
)

// ErrorCategory normalizes provider failures.
type ErrorCategory string

// ErrorRejected means the provider refused the request (a 4xx other than 404).
const (
	ErrorTimeout        ErrorCategory = "timeout"
	ErrorProviderOutage ErrorCategory = "provider_outage"
	ErrorBadData        ErrorCategory = "bad_data"
	ErrorNotFound       ErrorCategory = "not_found"
	ErrorRejected       ErrorCategory = "rejected"
	ErrorCircuitOpen    ErrorCategory = "circuit_open"
)

// ProviderError wraps a failed provider call with its category and, when the
// provider answered, the HTTP status and a truncated body.
type ProviderError struct {
	Category   ErrorCategory
	Operation  string
	Status     int
	Body       string
	Underlying error
}

func (e *ProviderError) Error() string {
	msg := fmt.Sprintf("pretix %s [%s]", e.Operation, e.Category)
	if e.Status != 0 {
		msg += fmt.Sprintf(": status %d", e.Status)
	}
	if e.Underlying != nil {
		msg += ": " + e.Underlying.Error()
	}
	return msg
}

func (e *ProviderError) Unwrap() error { return e.Underlying }

// Retryable reports whether a later attempt may succeed.
func (e *ProviderError) Retryable() bool {
	switch e.Category {
	case ErrorTimeout, ErrorProviderOutage, ErrorCircuitOpen:
		return true
	}
	return false
}

// IsRetryable checks err's chain for a retryable ProviderError.
func IsRetryable(err error) bool {
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe.Retryable()
	}
	return false
}

// CategoryOf returns the category of the first ProviderError in err's chain.
func CategoryOf(err error) ErrorCategory {
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe.Category
	}
	return ""
}

func categorizeStatus(status int) ErrorCategory {
	switch {
	case status == 404:
		return ErrorNotFound
	case status == 408 || status == 504:
		return ErrorTimeout
	case status == 429 || status >= 500:
		return ErrorProviderOutage
	default:
		return ErrorRejected
	}
}
