// Package openai implements the generation.Provider interface for any
// backend that speaks the OpenAI chat completions protocol, which covers
// OpenAI itself, DeepSeek, Ollama, and self-hosted gateways.
package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/tomhalloin/cardgen/internal/domain"
	"github.com/tomhalloin/cardgen/internal/generation"
)

// Default base URLs per provider name. A configured BaseURL always wins.
var defaultBaseURLs = map[string]string{
	"openai":   "https://api.openai.com/v1",
	"deepseek": "https://api.deepseek.com/v1",
	"ollama":   "http://localhost:11434/v1",
}

// Provider sends prompts to an OpenAI-compatible chat completions
// endpoint.
type Provider struct {
	logger  *slog.Logger
	client  *http.Client
	name    string
	baseURL string
	apiKey  string
	model   string
	profile *domain.ModelProfile
}

// Options configures a Provider.
type Options struct {
	// Name identifies the backend: "openai", "deepseek", "ollama", or
	// "custom".
	Name string

	// BaseURL overrides the default endpoint for Name. Required when
	// Name is "custom".
	BaseURL string

	// APIKey is sent as a bearer token. Optional for local backends.
	APIKey string

	// Model is the model identifier passed through to the backend.
	Model string

	// Profile describes the model's throughput and limits; nil selects
	// conservative defaults.
	Profile *domain.ModelProfile

	// HTTPClient overrides the default client, primarily for tests.
	HTTPClient *http.Client
}

// New creates an OpenAI-compatible provider.
func New(logger *slog.Logger, opts Options) (*Provider, error) {
	if logger == nil {
		return nil, errors.New("logger cannot be nil")
	}
	if opts.Model == "" {
		return nil, fmt.Errorf("%w: model name cannot be empty", generation.ErrInvalidConfig)
	}

	baseURL := opts.BaseURL
	if baseURL == "" {
		baseURL = defaultBaseURLs[opts.Name]
	}
	if baseURL == "" {
		return nil, fmt.Errorf("%w: no base URL for provider %q", generation.ErrInvalidConfig, opts.Name)
	}

	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{}
	}

	return &Provider{
		logger:  logger,
		client:  client,
		name:    opts.Name,
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  opts.APIKey,
		model:   opts.Model,
		profile: opts.Profile,
	}, nil
}

// Name implements generation.Provider.
func (p *Provider) Name() string { return p.name }

// Model implements generation.Provider.
func (p *Provider) Model() string { return p.model }

// Profile implements generation.Provider.
func (p *Provider) Profile() *domain.ModelProfile { return p.profile }

// chatRequest is the chat completions request payload.
type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature,omitempty"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// chatResponse is the subset of the chat completions response we read.
type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
	} `json:"usage"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}

// Send makes a single chat completions call. HTTP 429 and 5xx are
// transient; 4xx responses and malformed bodies are permanent.
func (p *Provider) Send(ctx context.Context, prompt string, params generation.Params) (*generation.Response, error) {
	payload := chatRequest{
		Model:       p.model,
		Temperature: params.Temperature,
		MaxTokens:   params.MaxOutputTokens,
		Messages: []chatMessage{
			{Role: "user", Content: prompt},
		},
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request payload: %w", err)
	}

	url := p.baseURL + "/chat/completions"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if p.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+p.apiKey)
	}

	p.logger.DebugContext(ctx, "Making chat completions call",
		"provider", p.name,
		"model", p.model,
		"prompt_length", len(prompt))

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, &generation.ProviderError{
			Provider:  p.name,
			Transient: true,
			Err:       fmt.Errorf("request failed: %w", err),
		}
	}
	defer func() {
		if closeErr := resp.Body.Close(); closeErr != nil {
			p.logger.WarnContext(ctx, "Failed to close response body", "error", closeErr)
		}
	}()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 10<<20))
	if err != nil {
		return nil, &generation.ProviderError{
			Provider:  p.name,
			Transient: true,
			Err:       fmt.Errorf("failed to read response body: %w", err),
		}
	}

	if resp.StatusCode != http.StatusOK {
		return nil, p.statusError(resp.StatusCode, raw)
	}

	var parsed chatResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, fmt.Errorf("%w: failed to parse response body: %v", generation.ErrInvalidResponse, err)
	}
	if parsed.Error != nil {
		return nil, fmt.Errorf("%w: %s", generation.ErrInvalidResponse, parsed.Error.Message)
	}
	if len(parsed.Choices) == 0 {
		return nil, fmt.Errorf("%w: no choices in response", generation.ErrInvalidResponse)
	}

	choice := parsed.Choices[0]
	if choice.FinishReason == "content_filter" {
		return nil, fmt.Errorf("%w: content blocked by safety filters", generation.ErrContentBlocked)
	}
	if choice.Message.Content == "" {
		return nil, fmt.Errorf("%w: empty response text", generation.ErrInvalidResponse)
	}

	p.logger.DebugContext(ctx, "Chat completions call successful",
		"provider", p.name,
		"model", p.model,
		"response_length", len(choice.Message.Content),
		"output_tokens", parsed.Usage.CompletionTokens)

	return &generation.Response{
		Text:         choice.Message.Content,
		InputTokens:  parsed.Usage.PromptTokens,
		OutputTokens: parsed.Usage.CompletionTokens,
		Model:        p.model,
	}, nil
}

// statusError maps an HTTP error status onto a ProviderError with the
// right transience. Rate limits and server errors deserve a retry;
// everything else is a caller or configuration problem.
func (p *Provider) statusError(status int, body []byte) error {
	transient := status == http.StatusTooManyRequests || status >= 500

	msg := strings.TrimSpace(string(body))
	var parsed chatResponse
	if err := json.Unmarshal(body, &parsed); err == nil && parsed.Error != nil {
		msg = parsed.Error.Message
	}
	if len(msg) > 200 {
		msg = msg[:200]
	}

	return &generation.ProviderError{
		Provider:   p.name,
		StatusCode: status,
		Transient:  transient,
		Err:        fmt.Errorf("unexpected status %d: %s", status, msg),
	}
}
