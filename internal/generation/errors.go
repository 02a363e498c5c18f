package generation

import (
	"errors"
	"fmt"
)

// Common errors returned by the generation package
var (
	// ErrGenerationFailed is returned when card generation fails for any general reason
	ErrGenerationFailed = errors.New("failed to generate cards from text")

	// ErrInvalidResponse is returned when the LLM response cannot be parsed or is malformed
	ErrInvalidResponse = errors.New("invalid response from language model")

	// ErrContentBlocked is returned when the LLM blocks the content due to safety filters
	ErrContentBlocked = errors.New("content blocked by language model safety filters")

	// ErrTransientFailure is returned for temporary errors that might resolve on retry
	ErrTransientFailure = errors.New("transient error during card generation")

	// ErrInvalidConfig is returned when the pipeline configuration is invalid
	ErrInvalidConfig = errors.New("invalid generator configuration")

	// ErrEmptyInput is returned when planning yields no work units because
	// the source content is empty or unusable
	ErrEmptyInput = errors.New("no usable input content")

	// ErrAllChunksFailed is returned when every planned provider call failed
	// and no cards could be produced
	ErrAllChunksFailed = errors.New("all provider calls failed")
)

// ProviderError describes a failure of a single provider call. Transient
// errors (timeouts, rate limits, 5xx responses) are retried with backoff
// and may escalate to failover; fatal errors (auth, malformed request,
// content policy) abort the work unit immediately.
type ProviderError struct {
	// Provider names the backend that produced the error.
	Provider string

	// StatusCode is the HTTP status of the failed call, if any.
	StatusCode int

	// Transient reports whether the failure is worth retrying.
	Transient bool

	// Err is the underlying cause.
	Err error
}

func (e *ProviderError) Error() string {
	kind := "fatal"
	if e.Transient {
		kind = "transient"
	}
	if e.StatusCode > 0 {
		return fmt.Sprintf("provider %s: %s error (status %d): %v", e.Provider, kind, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("provider %s: %s error: %v", e.Provider, kind, e.Err)
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

// IsTransient reports whether err is a provider error worth retrying.
// Errors that are not ProviderError values are treated as fatal.
func IsTransient(err error) bool {
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe.Transient
	}
	return false
}
