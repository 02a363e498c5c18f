package generation

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tomhalloin/cardgen/internal/cache"
	"github.com/tomhalloin/cardgen/internal/domain"
)

// funcProvider delegates Send to a closure, for scripting orchestrator
// scenarios per prompt.
type funcProvider struct {
	name    string
	model   string
	profile *domain.ModelProfile
	send    func(ctx context.Context, prompt string, params Params) (*Response, error)
	calls   atomic.Int64
}

func (f *funcProvider) Name() string                  { return f.name }
func (f *funcProvider) Model() string                 { return f.model }
func (f *funcProvider) Profile() *domain.ModelProfile { return f.profile }

func (f *funcProvider) Send(ctx context.Context, prompt string, params Params) (*Response, error) {
	f.calls.Add(1)
	return f.send(ctx, prompt, params)
}

// cardsJSON fabricates a basic-card response with count unique fronts.
func cardsJSON(label string, count int) string {
	var b strings.Builder
	b.WriteString(`{"cards": [`)
	for i := 0; i < count; i++ {
		if i > 0 {
			b.WriteString(",")
		}
		fmt.Fprintf(&b, `{"front": "Question %s-%d?", "back": "Answer %s-%d"}`, label, i, label, i)
	}
	b.WriteString("]}")
	return b.String()
}

func newTestOrchestrator(t *testing.T, provider Provider, withCache bool) *Orchestrator {
	t.Helper()

	iv, err := NewInvoker([]Provider{provider}, fastConfig(), testLogger())
	require.NoError(t, err)

	var responseCache *cache.ResponseCache
	if withCache {
		responseCache, err = cache.New(nil, 64, testLogger())
		require.NoError(t, err)
	}

	prompts, err := LoadPrompts("")
	require.NoError(t, err)

	o, err := NewOrchestrator(iv, responseCache, prompts, OrchestratorConfig{
		MaxConcurrentRequests: 4,
	}, testLogger())
	require.NoError(t, err)
	return o
}

func TestRunSingleChunk(t *testing.T) {
	t.Parallel()

	var serial atomic.Int64
	provider := &funcProvider{name: "openai", model: "gpt-4o-mini"}
	provider.send = func(ctx context.Context, prompt string, params Params) (*Response, error) {
		return &Response{Text: cardsJSON(fmt.Sprint(serial.Add(1)), 3), OutputTokens: 100}, nil
	}

	o := newTestOrchestrator(t, provider, false)
	result, err := o.Run(context.Background(), domain.GenerationRequest{
		Content:  "Go is a statically typed language designed at Google.",
		CardType: domain.CardTypeBasic,
	})
	require.NoError(t, err)

	assert.Len(t, result.Cards, 3)
	assert.Equal(t, 1, result.Stats.ChunksPlanned)
	assert.Equal(t, 0, result.Stats.FailedChunks)
	assert.Equal(t, 3, result.Stats.CardsAccepted)
	assert.Equal(t, 100, result.Stats.ActualTokens)
	assert.Equal(t, int64(1), provider.calls.Load())

	// Without a configured cache nothing is consulted, so neither
	// counter moves.
	assert.Equal(t, 0, result.Stats.CacheHits)
	assert.Equal(t, 0, result.Stats.CacheMisses)
}

// mcqRequest builds a request that the planner splits into three units:
// ceil(20 cards * 500 tokens / 4000 max) = 3.
func mcqRequest(content string) domain.GenerationRequest {
	return domain.GenerationRequest{
		Content:   content,
		CardType:  domain.CardTypeMCQ,
		CardCount: 20,
	}
}

func mcqJSON(label string, count int) string {
	var b strings.Builder
	b.WriteString(`{"cards": [`)
	for i := 0; i < count; i++ {
		if i > 0 {
			b.WriteString(",")
		}
		fmt.Fprintf(&b,
			`{"question": "Question %s-%d?", "options": ["A", "B", "C"], "correct_index": 0}`,
			label, i)
	}
	b.WriteString("]}")
	return b.String()
}

func TestRunMergesInSequenceOrder(t *testing.T) {
	t.Parallel()

	content := paragraphs(3000)

	var serial atomic.Int64
	provider := &funcProvider{name: "openai", model: "gpt-4o-mini"}
	provider.send = func(ctx context.Context, prompt string, params Params) (*Response, error) {
		// Later dispatches complete first, exercising the merge ordering.
		n := serial.Add(1)
		time.Sleep(time.Duration(4-n) * 10 * time.Millisecond)
		return &Response{Text: mcqJSON(fmt.Sprint(n), 7)}, nil
	}

	o := newTestOrchestrator(t, provider, false)
	result, err := o.Run(context.Background(), mcqRequest(content))
	require.NoError(t, err)

	assert.Equal(t, 3, result.Stats.ChunksPlanned)
	require.NotEmpty(t, result.Cards)

	prevSeq := 0
	for _, card := range result.Cards {
		assert.GreaterOrEqual(t, card.Seq, prevSeq,
			"cards must be ordered by work unit sequence regardless of completion order")
		prevSeq = card.Seq
	}
}

func TestRunToleratesPartialFailure(t *testing.T) {
	t.Parallel()

	// A marker planted mid-content identifies one chunk's prompt.
	content := paragraphs(1400) + "FAILHERE " + paragraphs(1400)

	provider := &funcProvider{name: "openai", model: "gpt-4o-mini"}
	var serial atomic.Int64
	provider.send = func(ctx context.Context, prompt string, params Params) (*Response, error) {
		if strings.Contains(prompt, "FAILHERE") {
			return nil, &ProviderError{Provider: "openai", StatusCode: 400, Transient: false, Err: fmt.Errorf("rejected")}
		}
		return &Response{Text: mcqJSON(fmt.Sprint(serial.Add(1)), 7)}, nil
	}

	o := newTestOrchestrator(t, provider, false)
	result, err := o.Run(context.Background(), mcqRequest(content))
	require.NoError(t, err, "sibling chunks must survive one chunk's fatal failure")

	assert.Equal(t, 3, result.Stats.ChunksPlanned)
	assert.Equal(t, 1, result.Stats.FailedChunks)
	assert.NotEmpty(t, result.Cards)

	// Failed invocations in a cache-less run are not cache misses.
	assert.Equal(t, 0, result.Stats.CacheHits)
	assert.Equal(t, 0, result.Stats.CacheMisses)
}

func TestRunAllChunksFailed(t *testing.T) {
	t.Parallel()

	provider := &funcProvider{name: "openai", model: "gpt-4o-mini"}
	provider.send = func(ctx context.Context, prompt string, params Params) (*Response, error) {
		return nil, &ProviderError{Provider: "openai", StatusCode: 401, Transient: false, Err: fmt.Errorf("unauthorized")}
	}

	o := newTestOrchestrator(t, provider, false)
	result, err := o.Run(context.Background(), mcqRequest(paragraphs(3000)))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrAllChunksFailed)

	// Partial stats still come back with the failure.
	require.NotNil(t, result)
	assert.Equal(t, 3, result.Stats.ChunksPlanned)
	assert.Equal(t, 3, result.Stats.FailedChunks)
}

func TestRunEmptyContent(t *testing.T) {
	t.Parallel()

	provider := &funcProvider{name: "openai", model: "gpt-4o-mini"}
	provider.send = func(ctx context.Context, prompt string, params Params) (*Response, error) {
		t.Fatal("provider must not be called for empty content")
		return nil, nil
	}

	o := newTestOrchestrator(t, provider, false)
	_, err := o.Run(context.Background(), domain.GenerationRequest{
		Content:  "   ",
		CardType: domain.CardTypeBasic,
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrEmptyInput)
}

func TestRunWarmCacheSkipsProvider(t *testing.T) {
	t.Parallel()

	var serial atomic.Int64
	provider := &funcProvider{name: "openai", model: "gpt-4o-mini"}
	provider.send = func(ctx context.Context, prompt string, params Params) (*Response, error) {
		return &Response{Text: mcqJSON(fmt.Sprint(serial.Add(1)), 7)}, nil
	}

	o := newTestOrchestrator(t, provider, true)
	req := mcqRequest(paragraphs(3000))

	first, err := o.Run(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, 3, first.Stats.CacheMisses)
	assert.Equal(t, 0, first.Stats.CacheHits)
	callsAfterFirst := provider.calls.Load()

	second, err := o.Run(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, 3, second.Stats.CacheHits)
	assert.Equal(t, 0, second.Stats.CacheMisses)
	assert.Equal(t, callsAfterFirst, provider.calls.Load(),
		"a warm cache must satisfy the run with zero provider calls")

	// Cached responses parse to the same cards.
	assert.Equal(t, len(first.Cards), len(second.Cards))
}

func TestRunDeduplicatesAcrossChunks(t *testing.T) {
	t.Parallel()

	// Every chunk answers with the same cards, so only the first chunk's
	// cards survive.
	provider := &funcProvider{name: "openai", model: "gpt-4o-mini"}
	provider.send = func(ctx context.Context, prompt string, params Params) (*Response, error) {
		return &Response{Text: mcqJSON("same", 7)}, nil
	}

	o := newTestOrchestrator(t, provider, false)
	result, err := o.Run(context.Background(), mcqRequest(paragraphs(3000)))
	require.NoError(t, err)

	assert.Len(t, result.Cards, 7)
	assert.Equal(t, 14, result.Stats.CardsDeduped)
	for _, card := range result.Cards {
		assert.Equal(t, 0, card.Seq, "survivors must come from the first work unit")
	}
}

func TestRunTimeout(t *testing.T) {
	t.Parallel()

	provider := &funcProvider{name: "openai", model: "gpt-4o-mini"}
	provider.send = func(ctx context.Context, prompt string, params Params) (*Response, error) {
		select {
		case <-time.After(5 * time.Second):
			return &Response{Text: cardsJSON("late", 1)}, nil
		case <-ctx.Done():
			return nil, fmt.Errorf("cancelled: %w", ctx.Err())
		}
	}

	iv, err := NewInvoker([]Provider{provider}, fastConfig(), testLogger())
	require.NoError(t, err)
	prompts, err := LoadPrompts("")
	require.NoError(t, err)

	o, err := NewOrchestrator(iv, nil, prompts, OrchestratorConfig{
		MaxConcurrentRequests: 2,
		RunTimeout:            50 * time.Millisecond,
	}, testLogger())
	require.NoError(t, err)

	_, err = o.Run(context.Background(), domain.GenerationRequest{
		Content:  "Some content to generate from.",
		CardType: domain.CardTypeBasic,
	})
	require.Error(t, err)
}
