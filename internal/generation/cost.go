package generation

import (
	"time"
	"unicode"

	"github.com/tomhalloin/cardgen/internal/domain"
)

// Estimate is the cost model of the pipeline: it maps a prospective
// generation (content size, card type, target count) to an expected
// output token usage and wall-clock duration using the calibration
// metrics of the given model profile. It is a pure function; a nil or
// incomplete profile degrades to the global fallback constants.
func Estimate(
	contentLength int,
	cardType domain.CardType,
	cardCount int,
	profile *domain.ModelProfile,
) (tokens int, duration time.Duration) {
	if cardCount <= 0 {
		cardCount = EstimateCardCount(contentLength)
	}

	tokens = cardCount * profile.TokensPerCard(cardType)
	duration = profile.EstimateDuration(cardType, cardCount)
	return tokens, duration
}

// DefaultCardDensityWindow is the content span, in characters, assumed
// to yield one card when the caller does not request an explicit count.
// An empirical calibration constant, not a guaranteed behavior.
const DefaultCardDensityWindow = 500

// EstimateCardCount derives a target card count from the content length
// at the default density, clamped to at least one card.
func EstimateCardCount(contentLength int) int {
	count := contentLength / DefaultCardDensityWindow
	if count < 1 {
		count = 1
	}
	return count
}

// EstimateTextTokens approximates the token count of a text. CJK
// characters average about 1.5 characters per token while other scripts
// average about 4, so the two are weighted separately. Used when a
// provider does not report usage.
func EstimateTextTokens(text string) int {
	var cjk, other int
	for _, r := range text {
		if unicode.Is(unicode.Han, r) || unicode.Is(unicode.Hiragana, r) || unicode.Is(unicode.Katakana, r) || unicode.Is(unicode.Hangul, r) {
			cjk++
		} else {
			other++
		}
	}
	estimated := int(float64(cjk)/1.5 + float64(other)/4)
	if estimated < 1 {
		estimated = 1
	}
	return estimated
}
