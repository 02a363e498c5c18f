package generation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/tomhalloin/cardgen/internal/cache"
	"github.com/tomhalloin/cardgen/internal/domain"
)

// RunState names a phase of the orchestrator's per-run state machine.
type RunState string

// Run states, in order of progression.
const (
	StatePlanning    RunState = "planning"
	StateDispatching RunState = "dispatching"
	StateMerging     RunState = "merging"
	StateFiltering   RunState = "filtering"
	StateDone        RunState = "done"
	StateFailed      RunState = "failed"
)

// OrchestratorConfig tunes a generation run.
type OrchestratorConfig struct {
	// MaxConcurrentRequests bounds simultaneous in-flight provider calls.
	MaxConcurrentRequests int

	// SimilarityThreshold configures the deduplicator's optional
	// near-duplicate pass.
	SimilarityThreshold float64

	// RunTimeout, when positive, imposes an aggregate deadline on the
	// whole run.
	RunTimeout time.Duration
}

// Result is the terminal value of a successful run.
type Result struct {
	Cards []*domain.Card
	Stats *domain.RunStats
}

// Orchestrator composes the pipeline: it plans work units, drives their
// concurrent dispatch through the cache and invoker, merges and filters
// the results, and accumulates run statistics.
//
// The cache is the only resource shared across concurrent work units;
// its coalescing guarantee is the sole synchronization the dispatch
// phase relies on.
type Orchestrator struct {
	invoker *Invoker
	cache   *cache.ResponseCache
	prompts *PromptSet
	deduper *Deduper
	config  OrchestratorConfig
	logger  *slog.Logger
}

// NewOrchestrator wires an Orchestrator from its collaborators. cache
// may be nil to disable response caching entirely.
func NewOrchestrator(
	invoker *Invoker,
	responseCache *cache.ResponseCache,
	prompts *PromptSet,
	config OrchestratorConfig,
	logger *slog.Logger,
) (*Orchestrator, error) {
	if invoker == nil {
		return nil, fmt.Errorf("%w: invoker cannot be nil", ErrInvalidConfig)
	}
	if prompts == nil {
		return nil, fmt.Errorf("%w: prompt set cannot be nil", ErrInvalidConfig)
	}
	if logger == nil {
		return nil, errors.New("logger cannot be nil")
	}
	if config.MaxConcurrentRequests <= 0 {
		logger.Warn("invalid max concurrent requests, using default", "configured", config.MaxConcurrentRequests)
		config.MaxConcurrentRequests = 3
	}

	return &Orchestrator{
		invoker: invoker,
		cache:   responseCache,
		prompts: prompts,
		deduper: &Deduper{SimilarityThreshold: config.SimilarityThreshold},
		config:  config,
		logger:  logger,
	}, nil
}

// chunkResult is the outcome of one dispatched work unit. Exactly one of
// cards or err is meaningful.
type chunkResult struct {
	cards        []*domain.Card
	rejected     int
	retries      int
	failovers    int
	outputTokens int
	cacheChecked bool
	cacheHit     bool
	err          error
}

// Run executes one generation request to completion. Partial failure is
// tolerated: a work unit whose provider calls all fail is recorded in
// the stats, and the run still completes with the cards of its siblings.
// Only run-wide conditions (empty plan, cancellation, every chunk
// failing) surface as errors.
func (o *Orchestrator) Run(ctx context.Context, req domain.GenerationRequest) (*Result, error) {
	started := time.Now()
	stats := &domain.RunStats{}

	if o.config.RunTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.config.RunTimeout)
		defer cancel()
	}

	// Planning.
	o.logger.InfoContext(ctx, "generation run started",
		"state", StatePlanning,
		"card_type", req.CardType,
		"requested_count", req.CardCount,
		"content_length", len(req.Content))

	if err := req.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEmptyInput, err)
	}

	primary := o.invoker.Primary()
	profile := primary.Profile()

	maxOutput := req.MaxOutputTokens
	if maxOutput <= 0 {
		maxOutput = profile.MaxOutputTokens()
	}

	units, err := Plan(req.Content, req.CardType, req.CardCount, profile, maxOutput)
	if err != nil {
		return nil, err
	}
	if len(units) == 0 {
		return nil, fmt.Errorf("%w: planner produced no work units", ErrEmptyInput)
	}

	stats.ChunksPlanned = len(units)
	for _, wu := range units {
		stats.EstimatedTokens += wu.EstimatedTokens
		stats.EstimatedDuration += profile.EstimateDuration(req.CardType, wu.CardCount)
	}

	// Dispatching.
	o.logger.InfoContext(ctx, "dispatching work units",
		"state", StateDispatching,
		"chunks", len(units),
		"max_concurrent", o.config.MaxConcurrentRequests)

	results := make([]chunkResult, len(units))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.config.MaxConcurrentRequests)

	for _, wu := range units {
		wu := wu
		g.Go(func() error {
			results[wu.Seq] = o.dispatch(gctx, wu, req)
			// Per-chunk failures are folded into stats, never returned:
			// returning an error here would cancel sibling units.
			return gctx.Err()
		})
	}

	if err := g.Wait(); err != nil {
		// Cancellation discards partial results by contract.
		o.logger.WarnContext(ctx, "generation run cancelled",
			"state", StateFailed, "error", err)
		stats.Elapsed = time.Since(started)
		return nil, fmt.Errorf("%w: %v", ErrGenerationFailed, err)
	}

	// Merging: ascending sequence index, independent of completion order.
	o.logger.DebugContext(ctx, "merging chunk results", "state", StateMerging)

	var merged []*domain.Card
	failed := 0
	var firstChunkErr error
	for seq, res := range results {
		stats.Retries += res.retries
		stats.Failovers += res.failovers
		stats.ActualTokens += res.outputTokens
		stats.CardsRejected += res.rejected
		// Only units that actually consulted the cache count toward the
		// hit/miss ratio.
		if res.cacheChecked {
			if res.cacheHit {
				stats.CacheHits++
			} else {
				stats.CacheMisses++
			}
		}
		if res.err != nil {
			failed++
			if firstChunkErr == nil {
				firstChunkErr = res.err
			}
			o.logger.WarnContext(ctx, "work unit failed",
				"seq", seq, "error", res.err)
			continue
		}
		merged = append(merged, res.cards...)
	}
	stats.FailedChunks = failed

	sort.SliceStable(merged, func(i, j int) bool { return merged[i].Seq < merged[j].Seq })

	// Filtering.
	o.logger.DebugContext(ctx, "filtering merged cards",
		"state", StateFiltering, "merged", len(merged))

	cards, deduped := o.deduper.Dedupe(merged)
	stats.CardsDeduped = deduped
	stats.CardsAccepted = len(cards)
	stats.Elapsed = time.Since(started)

	if len(cards) == 0 {
		if failed == len(units) {
			o.logger.ErrorContext(ctx, "generation run failed",
				"state", StateFailed, "failed_chunks", failed)
			return &Result{Stats: stats}, fmt.Errorf("%w: %v", ErrAllChunksFailed, firstChunkErr)
		}
		o.logger.ErrorContext(ctx, "generation run produced no valid cards",
			"state", StateFailed)
		return &Result{Stats: stats}, fmt.Errorf("%w: provider responses contained no valid cards", ErrGenerationFailed)
	}

	o.logger.InfoContext(ctx, "generation run finished",
		"state", StateDone,
		"cards_accepted", stats.CardsAccepted,
		"cards_rejected", stats.CardsRejected,
		"failed_chunks", stats.FailedChunks,
		"cache_hits", stats.CacheHits,
		"retries", stats.Retries,
		"elapsed", stats.Elapsed)

	return &Result{Cards: cards, Stats: stats}, nil
}

// dispatch processes one work unit: prompt rendering, cache lookup or
// provider invocation, parsing, and validation. All failures are
// captured in the result rather than returned, to preserve the
// partial-failure semantics of the run.
func (o *Orchestrator) dispatch(ctx context.Context, wu WorkUnit, req domain.GenerationRequest) chunkResult {
	var res chunkResult

	if wu.CardCount <= 0 {
		// Nothing requested from this slice; an empty success keeps the
		// sequence contiguous.
		return res
	}

	prompt, err := o.prompts.Render(req.CardType, wu.Text, wu.CardCount, req.CustomPrompt)
	if err != nil {
		res.err = err
		return res
	}

	raw, err := o.fetchResponse(ctx, wu, req, prompt, &res)
	if err != nil {
		res.err = err
		return res
	}

	cards, rejected, err := ParseResponse(raw, req.CardType)
	res.rejected += rejected
	if err != nil {
		res.err = err
		return res
	}

	for _, card := range cards {
		card.Seq = wu.Seq
	}
	res.cards = cards
	return res
}

// fetchResponse resolves the raw response for a work unit, through the
// cache when one is configured. Invocation telemetry and cache hit/miss
// accounting are written into res, so coalesced or cached calls
// contribute zero retries and cache-less runs report no misses.
func (o *Orchestrator) fetchResponse(
	ctx context.Context,
	wu WorkUnit,
	req domain.GenerationRequest,
	prompt string,
	res *chunkResult,
) (string, error) {
	invoke := func(ctx context.Context) (string, error) {
		result, err := o.invoker.Invoke(ctx, prompt, req.Temperature, req.MaxOutputTokens)
		if result != nil {
			res.retries += result.Retries
			res.failovers += result.Failovers
			res.outputTokens += result.OutputTokens
		}
		if err != nil {
			return "", err
		}
		return result.Text, nil
	}

	if o.cache == nil {
		return invoke(ctx)
	}

	primary := o.invoker.Primary()
	key := cache.Fingerprint{
		Text:        wu.Text,
		CardType:    string(req.CardType),
		CardCount:   wu.CardCount,
		Provider:    primary.Name(),
		Model:       primary.Model(),
		PromptHash:  o.promptHash(req),
		Temperature: req.Temperature,
	}.Key()

	raw, hit, err := o.cache.GetOrCompute(ctx, key, invoke)
	res.cacheChecked = true
	res.cacheHit = hit
	return raw, err
}

// promptHash identifies the prompt template in effect for fingerprints.
func (o *Orchestrator) promptHash(req domain.GenerationRequest) string {
	if req.CustomPrompt != "" {
		return cache.Fingerprint{Text: req.CustomPrompt}.Key()[:16]
	}
	return o.prompts.Hash(req.CardType)
}
