package domain

import (
	"errors"
	"strings"
)

// Request-level validation errors
var (
	// ErrEmptyContent is returned when a generation request carries no
	// usable source content.
	ErrEmptyContent = errors.New("source content cannot be empty")

	// ErrNegativeCardCount is returned when a requested card count is negative.
	ErrNegativeCardCount = errors.New("card count cannot be negative")
)

// GenerationRequest describes one card generation run. It is assembled
// once by the caller (API handler or CLI) and never mutated afterwards;
// the pipeline treats it as a read-only value.
type GenerationRequest struct {
	// Content is the full source text to generate cards from.
	Content string `json:"content"`

	// CardType selects the card schema to generate.
	CardType CardType `json:"card_type"`

	// CardCount is the requested number of cards. Zero means the pipeline
	// auto-estimates a count from the content length.
	CardCount int `json:"card_count"`

	// Temperature is the sampling temperature passed to the provider.
	Temperature float64 `json:"temperature"`

	// MaxOutputTokens caps the output budget of a single provider call.
	// Zero means the model profile's default is used.
	MaxOutputTokens int `json:"max_output_tokens,omitempty"`

	// CustomPrompt, when set, replaces the built-in prompt template for
	// the selected card type.
	CustomPrompt string `json:"custom_prompt,omitempty"`
}

// Validate checks the request for structural problems that make a run
// impossible before any provider call is attempted.
func (r *GenerationRequest) Validate() error {
	if strings.TrimSpace(r.Content) == "" {
		return ErrEmptyContent
	}
	if r.CardCount < 0 {
		return ErrNegativeCardCount
	}
	if _, err := ParseCardType(string(r.CardType)); err != nil {
		return err
	}
	return nil
}
