package generation

import (
	"fmt"
	"strings"

	"github.com/tomhalloin/cardgen/internal/domain"
)

// WorkUnit is one partition of the source content, processed by a single
// provider call. Units are created by Plan, consumed exactly once by the
// invoker path, and discarded after their result is merged.
type WorkUnit struct {
	// Seq is the strictly increasing sequence index of the unit. Final
	// output ordering follows Seq regardless of completion order.
	Seq int

	// Start and End delimit the unit's byte range in the source content.
	Start int
	End   int

	// Text is the content slice content[Start:End].
	Text string

	// CardCount is the number of cards this unit is asked to produce.
	CardCount int

	// EstimatedTokens is the expected output token cost of the unit.
	EstimatedTokens int
}

// boundarySearchWindow bounds how far, in bytes, a cut point may drift
// from its ideal position while looking for a paragraph or sentence
// boundary. Cuts beyond this window fall back to the ideal position.
const boundarySearchWindow = 400

// Plan splits the source content and the requested card count into a
// sequence of WorkUnits sized to respect the per-call output token
// ceiling.
//
// The number of calls is ceil(count * tokensPerCard / maxOutputTokens),
// clamped to at least one. A zero requested count is auto-estimated from
// the content length first. Content is cut at paragraph boundaries where
// possible, then sentence boundaries, then hard positions; the resulting
// slices partition the content with no gaps or overlaps. The requested
// total is distributed across slices proportionally to slice length with
// the remainder assigned to the last slice. A slice that alone would
// exceed the model's context window is re-split recursively.
func Plan(
	content string,
	cardType domain.CardType,
	requestedCount int,
	profile *domain.ModelProfile,
	maxOutputTokens int,
) ([]WorkUnit, error) {
	if strings.TrimSpace(content) == "" {
		return nil, fmt.Errorf("%w: content is empty", ErrEmptyInput)
	}
	if requestedCount < 0 {
		return nil, fmt.Errorf("%w: negative card count", ErrInvalidConfig)
	}
	if requestedCount == 0 {
		requestedCount = EstimateCardCount(len(content))
	}
	if maxOutputTokens <= 0 {
		maxOutputTokens = profile.MaxOutputTokens()
	}

	tokensPerCard := profile.TokensPerCard(cardType)
	totalTokens := requestedCount * tokensPerCard

	callsNeeded := (totalTokens + maxOutputTokens - 1) / maxOutputTokens
	if callsNeeded < 1 {
		callsNeeded = 1
	}

	ranges := splitRanges(content, 0, len(content), callsNeeded)

	// Input budget per call: the context window minus the output budget.
	// Oversized slices are re-split until each fits.
	inputBudget := profile.Context() - maxOutputTokens
	if inputBudget > 0 {
		ranges = fitToContext(content, ranges, inputBudget)
	}

	units := make([]WorkUnit, 0, len(ranges))
	assigned := 0
	for i, r := range ranges {
		var count int
		if i == len(ranges)-1 {
			count = requestedCount - assigned
		} else {
			count = requestedCount * (r.end - r.start) / len(content)
			if count < 1 && requestedCount > len(ranges) {
				count = 1
			}
		}
		if count < 0 {
			count = 0
		}
		assigned += count

		units = append(units, WorkUnit{
			Seq:             i,
			Start:           r.start,
			End:             r.end,
			Text:            content[r.start:r.end],
			CardCount:       count,
			EstimatedTokens: count * tokensPerCard,
		})
	}

	return units, nil
}

type byteRange struct {
	start, end int
}

// splitRanges cuts content[start:end] into n contiguous ranges, placing
// each cut at the best boundary near its ideal position.
func splitRanges(content string, start, end, n int) []byteRange {
	if n <= 1 || end-start < 2 {
		return []byteRange{{start, end}}
	}

	ranges := make([]byteRange, 0, n)
	prev := start
	length := end - start
	for i := 1; i < n; i++ {
		ideal := start + length*i/n
		cut := bestBoundary(content, ideal, prev+1, end-1)
		if cut <= prev {
			continue
		}
		ranges = append(ranges, byteRange{prev, cut})
		prev = cut
	}
	ranges = append(ranges, byteRange{prev, end})
	return ranges
}

// bestBoundary returns the cut position nearest ideal within the search
// window, preferring paragraph breaks over line breaks over sentence
// ends. With no boundary in the window the ideal position wins, snapped
// onto a rune boundary so slices stay valid UTF-8.
func bestBoundary(content string, ideal, min, max int) int {
	lo := ideal - boundarySearchWindow
	if lo < min {
		lo = min
	}
	hi := ideal + boundarySearchWindow
	if hi > max {
		hi = max
	}
	if lo >= hi {
		return clampRune(content, ideal, min, max)
	}

	window := content[lo:hi]
	for _, sep := range []string{"\n\n", "\n"} {
		if cut := nearestSeparator(window, sep, ideal-lo); cut >= 0 {
			return lo + cut
		}
	}
	if cut := nearestSentenceEnd(window, ideal-lo); cut >= 0 {
		return lo + cut
	}
	return clampRune(content, ideal, min, max)
}

// nearestSeparator finds the occurrence of sep closest to offset and
// returns the position just past it, or -1 when sep is absent.
func nearestSeparator(window, sep string, offset int) int {
	best := -1
	from := 0
	for {
		i := strings.Index(window[from:], sep)
		if i < 0 {
			break
		}
		pos := from + i + len(sep)
		if best < 0 || abs(pos-offset) < abs(best-offset) {
			best = pos
		}
		from += i + len(sep)
	}
	return best
}

// sentenceEnders are the rune sets treated as sentence boundaries.
// Includes CJK full-width punctuation so prose in either script family
// avoids mid-sentence cuts.
var sentenceEnders = []string{". ", "! ", "? ", "。", "！", "？"}

func nearestSentenceEnd(window string, offset int) int {
	best := -1
	for _, end := range sentenceEnders {
		if cut := nearestSeparator(window, end, offset); cut >= 0 {
			if best < 0 || abs(cut-offset) < abs(best-offset) {
				best = cut
			}
		}
	}
	return best
}

// clampRune clamps pos into [min,max] and moves it backwards onto a
// UTF-8 rune start.
func clampRune(content string, pos, min, max int) int {
	if pos < min {
		pos = min
	}
	if pos > max {
		pos = max
	}
	for pos > min && !isRuneStart(content[pos]) {
		pos--
	}
	return pos
}

func isRuneStart(b byte) bool {
	return b&0xC0 != 0x80
}

// fitToContext re-splits any range whose estimated input token count
// exceeds the per-call budget, halving at the best available boundary
// until every range fits or can shrink no further.
func fitToContext(content string, ranges []byteRange, budget int) []byteRange {
	out := make([]byteRange, 0, len(ranges))
	for _, r := range ranges {
		out = append(out, resplitRange(content, r, budget, 0)...)
	}
	return out
}

func resplitRange(content string, r byteRange, budget, depth int) []byteRange {
	// Depth cap prevents pathological recursion on content whose token
	// estimate never drops below the budget.
	if depth > 16 || r.end-r.start < 2 {
		return []byteRange{r}
	}
	if EstimateTextTokens(content[r.start:r.end]) <= budget {
		return []byteRange{r}
	}

	halves := splitRanges(content, r.start, r.end, 2)
	if len(halves) < 2 {
		return []byteRange{r}
	}
	out := resplitRange(content, halves[0], budget, depth+1)
	return append(out, resplitRange(content, halves[1], budget, depth+1)...)
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
