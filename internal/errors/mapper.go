package errors

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// MapRemote maps raw provider/transport errors into the featly taxonomy.
// Classification is conservative: anything that smells like a missing
// resource becomes ErrNotFound so callers can self-heal, and anything
// rate-limit or network shaped becomes ErrTransient so pipelines retry.
func MapRemote(err error) error {
	if err == nil {
		return nil
	}

	// Propagate context errors as-is
	if errors.Is(err, context.Canceled) {
		return err
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("request timeout: %w", ErrTransient)
	}

	errStr := strings.ToLower(err.Error())

	switch {
	case strings.Contains(errStr, "incorrect api key"), strings.Contains(errStr, "invalid api key"), strings.Contains(errStr, "no api key"):
		return fmt.Errorf("provider credentials rejected: %w", ErrConfiguration)

	case strings.Contains(errStr, "not found"), strings.Contains(errStr, "does not exist"), strings.Contains(errStr, "no assistant found"):
		return fmt.Errorf("resource not found: %w", ErrNotFound)

	case strings.Contains(errStr, "rate limit"), strings.Contains(errStr, "quota"), strings.Contains(errStr, "too many requests"):
		return fmt.Errorf("rate limited: %w", ErrTransient)

	case strings.Contains(errStr, "timeout"), strings.Contains(errStr, "deadline exceeded"):
		return fmt.Errorf("request timeout: %w", ErrTransient)

	case strings.Contains(errStr, "network"), strings.Contains(errStr, "connection"), strings.Contains(errStr, "unreachable"):
		return fmt.Errorf("network error: %w", ErrTransient)

	case strings.Contains(errStr, "invalid request"), strings.Contains(errStr, "bad request"):
		return fmt.Errorf("invalid request: %w", ErrValidation)

	default:
		return fmt.Errorf("provider error: %w", ErrInternal)
	}
}

// Category returns the taxonomy label for an error, for reports and logs.
func Category(err error) string {
	if err == nil {
		return ""
	}

	switch {
	case errors.Is(err, ErrConfiguration):
		return "ErrConfiguration"
	case errors.Is(err, ErrNotFound):
		return "ErrNotFound"
	case errors.Is(err, ErrUpload):
		return "ErrUpload"
	case errors.Is(err, ErrIndexing):
		return "ErrIndexing"
	case errors.Is(err, ErrIndexingTimeout):
		return "ErrIndexingTimeout"
	case errors.Is(err, ErrRunTimeout):
		return "ErrRunTimeout"
	case errors.Is(err, ErrSync):
		return "ErrSync"
	case errors.Is(err, ErrValidation):
		return "ErrValidation"
	case errors.Is(err, ErrOwnership):
		return "ErrOwnership"
	case errors.Is(err, ErrConfirmationRequired):
		return "ErrConfirmationRequired"
	case errors.Is(err, ErrConflict):
		return "ErrConflict"
	case errors.Is(err, ErrTransient):
		return "ErrTransient"
	case errors.Is(err, ErrInternal):
		return "ErrInternal"
	default:
		return "Unknown"
	}
}

// Wrap wraps an error with context.
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}

	return fmt.Errorf("%s: %w", message, err)
}

// NotFound wraps a message as not found
func NotFound(message string) error {
	return fmt.Errorf("%s: %w", message, ErrNotFound)
}

// Configuration wraps a message as a configuration error
func Configuration(message string) error {
	return fmt.Errorf("%s: %w", message, ErrConfiguration)
}

// Validation wraps a message as a validation error
func Validation(message string) error {
	return fmt.Errorf("%s: %w", message, ErrValidation)
}

// Transient wraps a message as transient
func Transient(message string) error {
	return fmt.Errorf("%s: %w", message, ErrTransient)
}

// Internal wraps a message as internal
func Internal(message string) error {
	return fmt.Errorf("%s: %w", message, ErrInternal)
}

// IsRetryable checks if an error is transient, indicating a bounded retry is worthwhile.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	return errors.Is(err, ErrTransient)
}
