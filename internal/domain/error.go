package domain

import (
	"context"
	"errors"
	"fmt"
)

var (
	// Common domain errors
	ErrNotFound           = errors.New("entity not found")
	ErrAlreadyExists      = errors.New("entity already exists")
	ErrInvalidArgument    = errors.New("invalid argument")
	ErrInvalidExecContext = errors.New("invalid execution context")
	ErrOperationFailed    = errors.New("operation failed")
	ErrReadDatabaseRow    = errors.New("failed to read database row")
	ErrPersistence        = errors.New("persistence failure")
	ErrIllegalTransition  = errors.New("illegal state transition")
	ErrRetryExhausted     = errors.New("retry attempts exhausted")
	ErrTimerExists        = errors.New("timer already registered for execution")
	ErrCircuitOpen        = errors.New("circuit breaker open")
)

// ErrorKind is the closed classification of external AI call failures.
// Adapters assign the kind at the provider boundary; nothing downstream
// inspects error strings.
type ErrorKind string

const (
	ErrKindTimeout        ErrorKind = "TIMEOUT"
	ErrKindQuotaExhausted ErrorKind = "QUOTA_EXHAUSTED"
	ErrKindInvalidAPIKey  ErrorKind = "INVALID_API_KEY"
	ErrKindRateLimited    ErrorKind = "RATE_LIMITED"
	ErrKindUnknown        ErrorKind = "UNKNOWN"
)

// ClassifiedError carries an ErrorKind alongside the underlying provider error.
type ClassifiedError struct {
	Kind ErrorKind
	Err  error
}

func (e *ClassifiedError) Error() string {
	if e.Err == nil {
		return string(e.Kind)
	}
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

func (e *ClassifiedError) Unwrap() error { return e.Err }

// NewClassifiedError tags err with kind. A nil err is allowed for
// synthetic failures such as circuit rejections.
func NewClassifiedError(kind ErrorKind, err error) *ClassifiedError {
	return &ClassifiedError{Kind: kind, Err: err}
}

// KindOf extracts the ErrorKind from err. Unclassified errors degrade to
// UNKNOWN rather than failing, so a missed adapter mapping never breaks
// the retry/dead-letter flow.
func KindOf(err error) ErrorKind {
	if err == nil {
		return ""
	}
	var ce *ClassifiedError
	if errors.As(err, &ce) {
		return ce.Kind
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return ErrKindTimeout
	}
	return ErrKindUnknown
}
