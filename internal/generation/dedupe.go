package generation

import (
	"strings"

	"github.com/agnivade/levenshtein"
	"github.com/tomhalloin/cardgen/internal/domain"
)

// Deduper removes duplicate cards from a merged run result. Two cards
// are duplicates when their primary content (front text, cloze text, or
// question) is equal after normalization. When SimilarityThreshold is
// set above zero, a near-duplicate pass additionally drops cards whose
// normalized primary content is at least that similar (0..1) to an
// earlier card of the same type. The first occurrence, by work unit
// sequence index, always wins.
type Deduper struct {
	// SimilarityThreshold enables near-duplicate removal when > 0.
	// Cards below the threshold are never removed, to avoid false
	// positives.
	SimilarityThreshold float64
}

// Dedupe filters the cards, which must already be in sequence order,
// and reports how many were removed.
func (d *Deduper) Dedupe(cards []*domain.Card) ([]*domain.Card, int) {
	seen := make(map[string]bool, len(cards))
	kept := make([]*domain.Card, 0, len(cards))
	keptKeys := make([]string, 0, len(cards))
	removed := 0

	for _, card := range cards {
		key := normalizeText(card.PrimaryText())
		if key == "" || seen[key] {
			removed++
			continue
		}

		if d.SimilarityThreshold > 0 && d.nearDuplicate(key, kept, keptKeys, card.Type) {
			removed++
			continue
		}

		seen[key] = true
		kept = append(kept, card)
		keptKeys = append(keptKeys, key)
	}

	return kept, removed
}

// nearDuplicate reports whether key is close enough to the normalized
// primary text of an already kept card of the same type.
func (d *Deduper) nearDuplicate(key string, kept []*domain.Card, keptKeys []string, cardType domain.CardType) bool {
	for i, other := range kept {
		if other.Type != cardType {
			continue
		}
		if similarity(key, keptKeys[i]) >= d.SimilarityThreshold {
			return true
		}
	}
	return false
}

// similarity is a normalized Levenshtein ratio in [0,1]: 1 means equal,
// 0 means nothing in common.
func similarity(a, b string) float64 {
	if a == b {
		return 1
	}
	longest := len([]rune(a))
	if l := len([]rune(b)); l > longest {
		longest = l
	}
	if longest == 0 {
		return 1
	}
	dist := levenshtein.ComputeDistance(a, b)
	return 1 - float64(dist)/float64(longest)
}

// normalizeText case-folds and collapses all whitespace runs to single
// spaces, so formatting differences do not defeat duplicate detection.
func normalizeText(s string) string {
	return strings.ToLower(strings.Join(strings.Fields(s), " "))
}
