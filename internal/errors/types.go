package errors

import (
	"errors"
	"fmt"
	"strings"
)

const maxFragmentLen = 200

// ParseError reports model output that could not be coerced into the intent
// schema even after repair. It is recoverable: callers may substitute the
// safe fallback response.
type ParseError struct {
	Fragment string // offending input, truncated
	Err      error
}

func (e *ParseError) Error() string {
	if e.Fragment != "" {
		return fmt.Sprintf("parse intent response: %v (fragment: %q)", e.Err, e.Fragment)
	}
	return fmt.Sprintf("parse intent response: %v", e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// NewParseError wraps err with the offending fragment, truncated so log
// lines stay bounded.
func NewParseError(err error, fragment string) *ParseError {
	return &ParseError{Err: err, Fragment: Truncate(fragment, maxFragmentLen)}
}

// ValidationError reports structurally valid JSON whose content violates the
// schema: bad enum value, confidence out of range, missing required field,
// or a top_intent that appears in no item. Never silently fixed.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("invalid intent response: %s: %s", e.Field, e.Message)
	}
	return fmt.Sprintf("invalid intent response: %s", e.Message)
}

// NewValidationError reports a schema violation at the given field path.
func NewValidationError(field, format string, args ...any) *ValidationError {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

// TimeoutError reports a model or time-service call that exceeded its
// deadline. The pipeline continues with degraded data.
type TimeoutError struct {
	Op  string
	Err error
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("%s timed out: %v", e.Op, e.Err)
}

func (e *TimeoutError) Unwrap() error { return e.Err }

// NewTimeoutError wraps err as a deadline failure of the named operation.
func NewTimeoutError(op string, err error) *TimeoutError {
	return &TimeoutError{Op: op, Err: err}
}

// ServiceUnavailableError reports a network or service failure from an
// external dependency. Recoverable via local fallbacks.
type ServiceUnavailableError struct {
	Service string
	Err     error
}

func (e *ServiceUnavailableError) Error() string {
	return fmt.Sprintf("%s unavailable: %v", e.Service, e.Err)
}

func (e *ServiceUnavailableError) Unwrap() error { return e.Err }

// NewServiceUnavailableError wraps err as a failure of the named dependency.
func NewServiceUnavailableError(service string, err error) *ServiceUnavailableError {
	return &ServiceUnavailableError{Service: service, Err: err}
}

// IsParse reports whether err is a ParseError.
func IsParse(err error) bool {
	var pe *ParseError
	return errors.As(err, &pe)
}

// IsValidation reports whether err is a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// IsTimeout reports whether err is a TimeoutError or a context deadline.
func IsTimeout(err error) bool {
	var te *TimeoutError
	if errors.As(err, &te) {
		return true
	}
	return err != nil && strings.Contains(strings.ToLower(err.Error()), "deadline exceeded")
}

// IsServiceUnavailable reports whether err is a ServiceUnavailableError.
func IsServiceUnavailable(err error) bool {
	var se *ServiceUnavailableError
	return errors.As(err, &se)
}

// IsRecoverable reports whether the pipeline may continue with a fallback.
// Only validation failures are fatal: they mean the model contradicted its
// own itemized output and the message must go to a human.
func IsRecoverable(err error) bool {
	if err == nil {
		return false
	}
	return !IsValidation(err)
}

// Truncate shortens s to at most n runes, marking the cut.
func Truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n]) + "…"
}
