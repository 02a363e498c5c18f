package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/tomhalloin/cardgen/internal/generation"
)

// MapErrorToStatusCode maps internal errors to appropriate HTTP status
// codes based on the error type. This prevents leaking internal error
// types or messages to clients.
func MapErrorToStatusCode(err error) int {
	switch {
	// Bad request errors
	case errors.Is(err, generation.ErrEmptyInput),
		errors.Is(err, generation.ErrInvalidConfig):
		return http.StatusBadRequest

	// Content policy errors
	case errors.Is(err, generation.ErrContentBlocked):
		return http.StatusUnprocessableEntity

	// Upstream availability errors
	case errors.Is(err, generation.ErrTransientFailure),
		errors.Is(err, generation.ErrAllChunksFailed):
		return http.StatusBadGateway

	// Timeouts
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout

	// Default: internal server error
	default:
		return http.StatusInternalServerError
	}
}

// GetSafeErrorMessage returns a sanitized, user-friendly error message
// based on the error type. This prevents leaking sensitive internal
// details.
func GetSafeErrorMessage(err error) string {
	if err == nil {
		return "An unexpected error occurred"
	}

	switch {
	case errors.Is(err, generation.ErrEmptyInput):
		return "Content is empty or produced no work"

	case errors.Is(err, generation.ErrInvalidConfig):
		return "Invalid generation parameters"

	case errors.Is(err, generation.ErrContentBlocked):
		return "Content was blocked by the provider's safety filters"

	case errors.Is(err, generation.ErrAllChunksFailed):
		return "All generation calls failed"

	case errors.Is(err, generation.ErrTransientFailure):
		return "The generation provider is temporarily unavailable"

	case errors.Is(err, context.DeadlineExceeded):
		return "Generation timed out"

	default:
		return "Failed to generate cards"
	}
}
