package domain

import "time"

// RunStats aggregates telemetry for one generation run. The orchestrator
// builds it incrementally while the run executes; once returned to the
// caller it must be treated as immutable.
type RunStats struct {
	ChunksPlanned int `json:"chunks_planned"`
	CacheHits     int `json:"cache_hits"`
	CacheMisses   int `json:"cache_misses"`
	Retries       int `json:"retries"`
	Failovers     int `json:"failovers"`
	FailedChunks  int `json:"failed_chunks"`

	CardsAccepted int `json:"cards_accepted"`
	CardsRejected int `json:"cards_rejected"`
	CardsDeduped  int `json:"cards_deduped"`

	EstimatedTokens int `json:"estimated_tokens"`
	ActualTokens    int `json:"actual_tokens"`

	EstimatedDuration time.Duration `json:"estimated_duration"`
	Elapsed           time.Duration `json:"elapsed"`
}

// TokensPerSecond reports the observed output token rate of the run.
func (s *RunStats) TokensPerSecond() float64 {
	if s.Elapsed <= 0 {
		return 0
	}
	return float64(s.ActualTokens) / s.Elapsed.Seconds()
}
