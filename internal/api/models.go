package api

import (
	"time"

	"github.com/google/uuid"

	"github.com/tomhalloin/cardgen/internal/domain"
)

// Common request/response structures

// GenerateRequest defines the payload for the card generation endpoint.
type GenerateRequest struct {
	// Content is the source text to generate cards from.
	Content string `json:"content"      validate:"required,min=1"`

	// CardType selects the kind of card to produce.
	CardType string `json:"card_type"    validate:"required,oneof=basic cloze mcq"`

	// CardCount is the number of cards requested; zero or omitted means
	// auto-estimate from the content length.
	CardCount int `json:"card_count,omitempty" validate:"omitempty,min=0,max=500"`

	// Temperature overrides the provider's sampling temperature.
	Temperature float64 `json:"temperature,omitempty" validate:"omitempty,min=0,max=2"`

	// MaxOutputTokens caps the output budget per provider call.
	MaxOutputTokens int `json:"max_output_tokens,omitempty" validate:"omitempty,min=0"`

	// CustomPrompt replaces the built-in prompt template for this
	// request.
	CustomPrompt string `json:"custom_prompt,omitempty"`
}

// CardResponse is one generated card in the response payload.
type CardResponse struct {
	ID    uuid.UUID     `json:"id"`
	Type  string        `json:"type"`
	Basic *BasicContent `json:"basic,omitempty"`
	Cloze *ClozeContent `json:"cloze,omitempty"`
	MCQ   *MCQContent   `json:"mcq,omitempty"`
	Tags  []string      `json:"tags,omitempty"`
}

// BasicContent mirrors domain.BasicContent for serialization.
type BasicContent struct {
	Front string `json:"front"`
	Back  string `json:"back"`
}

// ClozeContent mirrors domain.ClozeContent for serialization.
type ClozeContent struct {
	Text      string `json:"text"`
	BackExtra string `json:"back_extra,omitempty"`
}

// MCQContent mirrors domain.MCQContent for serialization.
type MCQContent struct {
	Question     string   `json:"question"`
	Options      []string `json:"options"`
	CorrectIndex int      `json:"correct_index"`
	Explanation  string   `json:"explanation,omitempty"`
}

// StatsResponse summarizes the run for the client.
type StatsResponse struct {
	ChunksPlanned   int     `json:"chunks_planned"`
	FailedChunks    int     `json:"failed_chunks"`
	CacheHits       int     `json:"cache_hits"`
	CacheMisses     int     `json:"cache_misses"`
	Retries         int     `json:"retries"`
	Failovers       int     `json:"failovers"`
	CardsAccepted   int     `json:"cards_accepted"`
	CardsRejected   int     `json:"cards_rejected"`
	CardsDeduped    int     `json:"cards_deduped"`
	EstimatedTokens int     `json:"estimated_tokens"`
	ActualTokens    int     `json:"actual_tokens"`
	ElapsedSeconds  float64 `json:"elapsed_seconds"`
}

// GenerateResponse defines the successful response for the generation
// endpoint.
type GenerateResponse struct {
	Cards []CardResponse `json:"cards"`
	Stats StatsResponse  `json:"stats"`
}

// newCardResponse converts a domain card for serialization.
func newCardResponse(card *domain.Card) CardResponse {
	out := CardResponse{
		ID:   card.ID,
		Type: string(card.Type),
		Tags: card.Tags,
	}
	if card.Basic != nil {
		out.Basic = &BasicContent{Front: card.Basic.Front, Back: card.Basic.Back}
	}
	if card.Cloze != nil {
		out.Cloze = &ClozeContent{Text: card.Cloze.Text, BackExtra: card.Cloze.BackExtra}
	}
	if card.MCQ != nil {
		out.MCQ = &MCQContent{
			Question:     card.MCQ.Question,
			Options:      card.MCQ.Options,
			CorrectIndex: card.MCQ.CorrectIndex,
			Explanation:  card.MCQ.Explanation,
		}
	}
	return out
}

// newStatsResponse converts run statistics for serialization.
func newStatsResponse(stats *domain.RunStats) StatsResponse {
	if stats == nil {
		return StatsResponse{}
	}
	return StatsResponse{
		ChunksPlanned:   stats.ChunksPlanned,
		FailedChunks:    stats.FailedChunks,
		CacheHits:       stats.CacheHits,
		CacheMisses:     stats.CacheMisses,
		Retries:         stats.Retries,
		Failovers:       stats.Failovers,
		CardsAccepted:   stats.CardsAccepted,
		CardsRejected:   stats.CardsRejected,
		CardsDeduped:    stats.CardsDeduped,
		EstimatedTokens: stats.EstimatedTokens,
		ActualTokens:    stats.ActualTokens,
		ElapsedSeconds:  stats.Elapsed.Round(time.Millisecond).Seconds(),
	}
}
