package domain

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/google/uuid"
)

// CardType identifies the schema variant of a generated card. It governs
// both the prompt sent to the provider and the validation rules applied
// to the parsed response.
type CardType string

// Supported card types.
const (
	CardTypeBasic CardType = "basic"
	CardTypeCloze CardType = "cloze"
	CardTypeMCQ   CardType = "mcq"
)

// Card-specific validation errors
var (
	// ErrCardFrontEmpty is returned when a basic card has no front text.
	ErrCardFrontEmpty = errors.New("card front cannot be empty")

	// ErrCardBackEmpty is returned when a basic card has no back text.
	ErrCardBackEmpty = errors.New("card back cannot be empty")

	// ErrClozeNoOcclusion is returned when a cloze card contains no
	// {{cN::...}} occlusion markers.
	ErrClozeNoOcclusion = errors.New("cloze card must contain at least one occlusion marker")

	// ErrClozeIndicesGap is returned when cloze occlusion indices are not
	// contiguous starting from 1.
	ErrClozeIndicesGap = errors.New("cloze occlusion indices must be contiguous from 1")

	// ErrMCQQuestionEmpty is returned when an MCQ card has no question text.
	ErrMCQQuestionEmpty = errors.New("mcq question cannot be empty")

	// ErrMCQTooFewOptions is returned when an MCQ card has fewer than two options.
	ErrMCQTooFewOptions = errors.New("mcq card must have at least two options")

	// ErrMCQCorrectIndexRange is returned when an MCQ correct index does not
	// point at one of the options.
	ErrMCQCorrectIndexRange = errors.New("mcq correct index out of range")

	// ErrCardContentMissing is returned when a card carries no content for
	// its declared type.
	ErrCardContentMissing = errors.New("card content missing for declared type")
)

// ParseCardType converts a string into a CardType, case-insensitively.
func ParseCardType(s string) (CardType, error) {
	switch CardType(strings.ToLower(strings.TrimSpace(s))) {
	case CardTypeBasic:
		return CardTypeBasic, nil
	case CardTypeCloze:
		return CardTypeCloze, nil
	case CardTypeMCQ:
		return CardTypeMCQ, nil
	default:
		return "", fmt.Errorf("unknown card type %q", s)
	}
}

// BasicContent is the payload of a front/back card.
type BasicContent struct {
	Front string `json:"front"`
	Back  string `json:"back"`
}

// ClozeContent is the payload of a cloze deletion card. Text embeds
// occlusions using the {{cN::answer}} marker syntax. BackExtra holds
// optional context shown with the answer.
type ClozeContent struct {
	Text      string `json:"text"`
	BackExtra string `json:"back_extra,omitempty"`
}

// MCQContent is the payload of a multiple-choice card.
type MCQContent struct {
	Question     string   `json:"question"`
	Options      []string `json:"options"`
	CorrectIndex int      `json:"correct_index"`
	Explanation  string   `json:"explanation,omitempty"`
}

// Card represents a single generated flashcard. Exactly one of the
// content fields matching Type is populated. Seq records the sequence
// index of the WorkUnit that produced the card, which fixes the card's
// position in the final output ordering.
type Card struct {
	ID    uuid.UUID     `json:"id"`
	Type  CardType      `json:"type"`
	Basic *BasicContent `json:"basic,omitempty"`
	Cloze *ClozeContent `json:"cloze,omitempty"`
	MCQ   *MCQContent   `json:"mcq,omitempty"`
	Tags  []string      `json:"tags,omitempty"`
	Seq   int           `json:"seq"`
}

// clozeMarkerRe matches {{cN::...}} occlusion markers and captures N.
var clozeMarkerRe = regexp.MustCompile(`\{\{c(\d+)::`)

// NewCard creates a Card of the given type with a fresh ID and validates it.
func NewCard(cardType CardType, seq int) *Card {
	return &Card{
		ID:   uuid.New(),
		Type: cardType,
		Seq:  seq,
	}
}

// PrimaryText returns the content used for duplicate detection: the front
// text for basic cards, the cloze text for cloze cards, and the question
// for MCQ cards.
func (c *Card) PrimaryText() string {
	switch c.Type {
	case CardTypeBasic:
		if c.Basic != nil {
			return c.Basic.Front
		}
	case CardTypeCloze:
		if c.Cloze != nil {
			return c.Cloze.Text
		}
	case CardTypeMCQ:
		if c.MCQ != nil {
			return c.MCQ.Question
		}
	}
	return ""
}

// Validate checks the card against the schema rules of its type.
// Returns a sentinel error describing the first rule violated.
func (c *Card) Validate() error {
	switch c.Type {
	case CardTypeBasic:
		if c.Basic == nil {
			return ErrCardContentMissing
		}
		if strings.TrimSpace(c.Basic.Front) == "" {
			return ErrCardFrontEmpty
		}
		if strings.TrimSpace(c.Basic.Back) == "" {
			return ErrCardBackEmpty
		}
		return nil

	case CardTypeCloze:
		if c.Cloze == nil {
			return ErrCardContentMissing
		}
		return validateClozeText(c.Cloze.Text)

	case CardTypeMCQ:
		if c.MCQ == nil {
			return ErrCardContentMissing
		}
		if strings.TrimSpace(c.MCQ.Question) == "" {
			return ErrMCQQuestionEmpty
		}
		if len(c.MCQ.Options) < 2 {
			return ErrMCQTooFewOptions
		}
		if c.MCQ.CorrectIndex < 0 || c.MCQ.CorrectIndex >= len(c.MCQ.Options) {
			return ErrMCQCorrectIndexRange
		}
		return nil

	default:
		return fmt.Errorf("unknown card type %q", c.Type)
	}
}

// validateClozeText checks that the text contains at least one occlusion
// marker and that the occlusion indices are contiguous starting from 1.
// Repeated indices are allowed; Anki permits multiple deletions sharing
// an index.
func validateClozeText(text string) error {
	matches := clozeMarkerRe.FindAllStringSubmatch(text, -1)
	if len(matches) == 0 {
		return ErrClozeNoOcclusion
	}

	seen := make(map[int]bool, len(matches))
	max := 0
	for _, m := range matches {
		n, err := strconv.Atoi(m[1])
		if err != nil || n < 1 {
			return ErrClozeIndicesGap
		}
		seen[n] = true
		if n > max {
			max = n
		}
	}
	for i := 1; i <= max; i++ {
		if !seen[i] {
			return ErrClozeIndicesGap
		}
	}
	return nil
}
