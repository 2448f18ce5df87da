package errors

import (
	"context"
	stderrors "errors"
)

// CheckContext returns an error if the context is canceled or timed out.
// This provides a standardized way to check and wrap context errors.
func CheckContext(ctx context.Context, operation string) error {
	if err := ctx.Err(); err != nil {
		return Wrap(err, Canceled, operation+" canceled")
	}
	return nil
}

// Code extracts the ErrorCode from an error chain. Plain errors and nil
// report Unknown.
func Code(err error) ErrorCode {
	var e *Error
	if stderrors.As(err, &e) {
		return e.Code()
	}
	return Unknown
}

// IsTransient reports whether the error should be retried by the
// orchestrator. Context deadline errors from capability calls are wrapped
// as TransientCapability before they reach here; anything else is
// permanent.
func IsTransient(err error) bool {
	switch Code(err) {
	case TransientCapability, Timeout:
		return true
	default:
		return false
	}
}
