package internal

import (
	"context"
	"errors"
)

// Failure kinds that abort a pipeline run. Malformed markup and unmatched
// products are not errors; they are reported through Diagnostics.
var (
	ErrInvalidInput    = errors.New("invalid input")
	ErrExternalService = errors.New("external service error")
	ErrPersistence     = errors.New("persistence error")
)

// ErrorKind maps err to a stable label for logs and run records.
func ErrorKind(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrInvalidInput):
		return "invalid_input"
	case errors.Is(err, ErrExternalService):
		return "external_service"
	case errors.Is(err, ErrPersistence):
		return "persistence"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "canceled"
	default:
		return "internal"
	}
}
