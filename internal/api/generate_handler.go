package api

import (
	"context"
	"net/http"

	"github.com/tomhalloin/cardgen/internal/api/shared"
	"github.com/tomhalloin/cardgen/internal/domain"
	"github.com/tomhalloin/cardgen/internal/generation"
)

// GenerationService runs one card generation request to completion.
// Implemented by generation.Orchestrator.
type GenerationService interface {
	Run(ctx context.Context, req domain.GenerationRequest) (*generation.Result, error)
}

// GenerateHandler handles card generation API requests.
type GenerateHandler struct {
	service GenerationService
}

// NewGenerateHandler creates a new GenerateHandler with the given
// dependencies.
func NewGenerateHandler(service GenerationService) *GenerateHandler {
	return &GenerateHandler{
		service: service,
	}
}

// Generate handles the POST /generate endpoint.
func (h *GenerateHandler) Generate(w http.ResponseWriter, r *http.Request) {
	var req GenerateRequest

	// Parse request
	if err := shared.DecodeJSON(r, &req); err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Invalid request format")
		return
	}

	// Validate request
	if err := shared.ValidateRequest(req); err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Validation error: "+err.Error())
		return
	}

	genReq := domain.GenerationRequest{
		Content:         req.Content,
		CardType:        domain.CardType(req.CardType),
		CardCount:       req.CardCount,
		Temperature:     req.Temperature,
		MaxOutputTokens: req.MaxOutputTokens,
		CustomPrompt:    req.CustomPrompt,
	}

	result, err := h.service.Run(r.Context(), genReq)
	if err != nil {
		shared.RespondWithErrorAndLog(w, r,
			MapErrorToStatusCode(err),
			GetSafeErrorMessage(err),
			err)
		return
	}

	cards := make([]CardResponse, 0, len(result.Cards))
	for _, card := range result.Cards {
		cards = append(cards, newCardResponse(card))
	}

	shared.RespondWithJSON(w, r, http.StatusOK, GenerateResponse{
		Cards: cards,
		Stats: newStatsResponse(result.Stats),
	})
}

// Health handles the GET /healthz endpoint.
func Health(w http.ResponseWriter, r *http.Request) {
	shared.RespondWithJSON(w, r, http.StatusOK, map[string]string{"status": "ok"})
}
