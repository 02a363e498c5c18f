package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
)

// Fingerprint identifies one (content slice, generation parameters)
// pair. Requests with identical fingerprints are guaranteed to have
// identical responses cached, so the key must cover every input that
// influences the provider call.
type Fingerprint struct {
	// Text is the content slice sent to the provider.
	Text string

	// CardType and CardCount shape the prompt.
	CardType  string
	CardCount int

	// Provider and Model identify the backend.
	Provider string
	Model    string

	// PromptHash is a content hash of the prompt template in effect.
	PromptHash string

	// Temperature is the sampling temperature of the call.
	Temperature float64
}

// Key returns the content-addressed cache key for the fingerprint: a
// sha256 hex digest over the normalized text slice and all parameters.
// Whitespace runs in the text are collapsed before hashing so trivial
// formatting differences in otherwise identical content do not defeat
// the cache.
func (f Fingerprint) Key() string {
	h := sha256.New()
	fmt.Fprintf(h, "%s\x00%s\x00%d\x00%s\x00%s\x00%s\x00%.4f",
		normalize(f.Text),
		f.CardType,
		f.CardCount,
		f.Provider,
		f.Model,
		f.PromptHash,
		f.Temperature,
	)
	return hex.EncodeToString(h.Sum(nil))
}

func normalize(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
