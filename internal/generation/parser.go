package generation

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/tomhalloin/cardgen/internal/domain"
)

// responseSchema is the expected top-level structure of a model response.
type responseSchema struct {
	Cards []json.RawMessage `json:"cards"`
}

// ParseResponse turns raw model output into validated cards of the given
// type. Extraction tries a strict structured parse first (fenced JSON
// block, then a brace-balanced scan, then the whole response) and falls
// back to lenient repair (trailing comma removal) before giving up.
//
// Cards that fail schema validation are dropped individually and counted
// in rejected; they never invalidate the rest of the batch. The returned
// error is non-nil only when no card list could be recovered at all.
func ParseResponse(raw string, cardType domain.CardType) (cards []*domain.Card, rejected int, err error) {
	jsonStr := extractJSON(raw)
	if jsonStr == "" {
		return nil, 0, fmt.Errorf("%w: no JSON object found in response", ErrInvalidResponse)
	}

	var schema responseSchema
	if err := json.Unmarshal([]byte(jsonStr), &schema); err != nil {
		// Lenient pass: models frequently emit trailing commas.
		repaired := repairJSON(jsonStr)
		if err2 := json.Unmarshal([]byte(repaired), &schema); err2 != nil {
			return nil, 0, fmt.Errorf("%w: failed to parse JSON response: %v", ErrInvalidResponse, err)
		}
	}

	if len(schema.Cards) == 0 {
		return nil, 0, fmt.Errorf("%w: no cards in response", ErrInvalidResponse)
	}

	for _, rawCard := range schema.Cards {
		card, ok := buildCard(rawCard, cardType)
		if !ok {
			rejected++
			continue
		}
		if card.Validate() != nil {
			rejected++
			continue
		}
		cards = append(cards, card)
	}

	return cards, rejected, nil
}

var (
	fencedJSONRe  = regexp.MustCompile("(?s)```json\\s*(\\{.*?\\})\\s*```")
	fencedPlainRe = regexp.MustCompile("(?s)```\\s*(\\{.*\"cards\".*?\\})\\s*```")
	fenceStripRe  = regexp.MustCompile("(?s)^```(?:json)?\\s*|\\s*```$")
)

// extractJSON pulls the most plausible JSON object out of a model
// response: a ```json fence, an anonymous fence containing "cards", a
// brace-balanced object starting at `{"cards"`, or the whole trimmed
// response as a last resort.
func extractJSON(response string) string {
	if m := fencedJSONRe.FindStringSubmatch(response); m != nil {
		return m[1]
	}
	if m := fencedPlainRe.FindStringSubmatch(response); m != nil {
		return m[1]
	}

	if start := strings.Index(response, `{"cards"`); start >= 0 {
		depth := 0
		inString := false
		escaped := false
		for i := start; i < len(response); i++ {
			c := response[i]
			switch {
			case escaped:
				escaped = false
			case c == '\\' && inString:
				escaped = true
			case c == '"':
				inString = !inString
			case !inString && c == '{':
				depth++
			case !inString && c == '}':
				depth--
				if depth == 0 {
					return response[start : i+1]
				}
			}
		}
	}

	trimmed := fenceStripRe.ReplaceAllString(strings.TrimSpace(response), "")
	trimmed = strings.TrimSpace(trimmed)
	if strings.HasPrefix(trimmed, "{") {
		return trimmed
	}
	return ""
}

var (
	trailingCommaObjRe = regexp.MustCompile(`,\s*}`)
	trailingCommaArrRe = regexp.MustCompile(`,\s*]`)
)

// repairJSON fixes the common structural defects in model-emitted JSON.
func repairJSON(jsonStr string) string {
	out := trailingCommaObjRe.ReplaceAllString(jsonStr, "}")
	out = trailingCommaArrRe.ReplaceAllString(out, "]")
	return out
}

// buildCard maps one raw card object onto a domain.Card. Field names are
// matched leniently (e.g. "Front" or "front", "Question" falling back to
// "front") because models do not reproduce the schema faithfully under
// every prompt. Returns ok=false when required fields are absent.
func buildCard(rawCard json.RawMessage, cardType domain.CardType) (*domain.Card, bool) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(rawCard, &fields); err != nil {
		return nil, false
	}

	card := domain.NewCard(cardType, 0)
	card.Tags = stringSlice(fields, "tags", "Tags")

	switch cardType {
	case domain.CardTypeBasic:
		front := stringField(fields, "front", "Front")
		back := stringField(fields, "back", "Back")
		if front == "" || back == "" {
			return nil, false
		}
		card.Basic = &domain.BasicContent{Front: front, Back: back}

	case domain.CardTypeCloze:
		text := stringField(fields, "text", "Text", "front", "Front")
		if text == "" {
			return nil, false
		}
		card.Cloze = &domain.ClozeContent{
			Text:      text,
			BackExtra: stringField(fields, "back_extra", "BackExtra", "back"),
		}

	case domain.CardTypeMCQ:
		question := stringField(fields, "question", "Question", "front", "Front")
		options, correct := mcqOptions(fields)
		if question == "" || len(options) == 0 {
			return nil, false
		}
		card.MCQ = &domain.MCQContent{
			Question:     question,
			Options:      options,
			CorrectIndex: correct,
			Explanation:  stringField(fields, "explanation", "Explanation", "Note"),
		}

	default:
		return nil, false
	}

	return card, true
}

// mcqOptions decodes the options field, accepting either a plain string
// array with a separate correct_index, or an array of
// {text, is_correct} objects.
func mcqOptions(fields map[string]json.RawMessage) ([]string, int) {
	raw, ok := lookup(fields, "options", "Options")
	if !ok {
		return nil, -1
	}

	var plain []string
	if err := json.Unmarshal(raw, &plain); err == nil {
		correct := -1
		if idxRaw, ok := lookup(fields, "correct_index", "correctIndex", "CorrectIndex"); ok {
			var idx int
			if err := json.Unmarshal(idxRaw, &idx); err == nil {
				correct = idx
			}
		}
		return plain, correct
	}

	var tagged []struct {
		Text      string `json:"text"`
		IsCorrect bool   `json:"is_correct"`
	}
	if err := json.Unmarshal(raw, &tagged); err == nil {
		options := make([]string, 0, len(tagged))
		correct := -1
		correctCount := 0
		for i, opt := range tagged {
			options = append(options, opt.Text)
			if opt.IsCorrect {
				correctCount++
				correct = i
			}
		}
		// Exactly one correct answer is required; anything else fails
		// validation downstream.
		if correctCount != 1 {
			correct = -1
		}
		return options, correct
	}

	return nil, -1
}

func lookup(fields map[string]json.RawMessage, names ...string) (json.RawMessage, bool) {
	for _, name := range names {
		if raw, ok := fields[name]; ok {
			return raw, true
		}
	}
	return nil, false
}

func stringField(fields map[string]json.RawMessage, names ...string) string {
	raw, ok := lookup(fields, names...)
	if !ok {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return ""
	}
	return strings.TrimSpace(s)
}

func stringSlice(fields map[string]json.RawMessage, names ...string) []string {
	raw, ok := lookup(fields, names...)
	if !ok {
		return nil
	}
	var out []string
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil
	}
	return out
}
