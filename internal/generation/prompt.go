package generation

import (
	"bytes"
	"crypto/sha256"
	"embed"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"text/template"

	"github.com/tomhalloin/cardgen/internal/domain"
)

//go:embed templates/*.tmpl
var templateFS embed.FS

// promptData is the data passed to a prompt template.
type promptData struct {
	Content   string
	CardCount int
}

// PromptSet holds the parsed prompt template for each card type, plus a
// content hash of each template so cache fingerprints change when the
// template text changes.
type PromptSet struct {
	templates map[domain.CardType]*template.Template
	hashes    map[domain.CardType]string
}

// LoadPrompts parses the prompt templates for all card types. When dir
// is non-empty, <dir>/<cardtype>.tmpl overrides the embedded default for
// that type; missing override files fall back to the embedded template.
func LoadPrompts(dir string) (*PromptSet, error) {
	set := &PromptSet{
		templates: make(map[domain.CardType]*template.Template),
		hashes:    make(map[domain.CardType]string),
	}

	for _, cardType := range []domain.CardType{domain.CardTypeBasic, domain.CardTypeCloze, domain.CardTypeMCQ} {
		text, err := loadTemplateText(dir, cardType)
		if err != nil {
			return nil, err
		}

		tmpl, err := template.New(string(cardType)).Parse(text)
		if err != nil {
			return nil, fmt.Errorf("%w: failed to parse %s prompt template: %v",
				ErrInvalidConfig, cardType, err)
		}

		sum := sha256.Sum256([]byte(text))
		set.templates[cardType] = tmpl
		set.hashes[cardType] = hex.EncodeToString(sum[:8])
	}

	return set, nil
}

func loadTemplateText(dir string, cardType domain.CardType) (string, error) {
	if dir != "" {
		path := filepath.Join(dir, string(cardType)+".tmpl")
		content, err := os.ReadFile(path)
		if err == nil {
			return string(content), nil
		}
		if !os.IsNotExist(err) {
			return "", fmt.Errorf("%w: failed to read prompt template from %s: %v",
				ErrInvalidConfig, path, err)
		}
	}

	content, err := templateFS.ReadFile("templates/" + string(cardType) + ".tmpl")
	if err != nil {
		return "", fmt.Errorf("%w: missing embedded template for %s: %v",
			ErrInvalidConfig, cardType, err)
	}
	return string(content), nil
}

// Render produces the prompt for one work unit. A non-empty customPrompt
// replaces the card type's template and is itself parsed as a template
// so it can reference .Content and .CardCount.
func (s *PromptSet) Render(
	cardType domain.CardType,
	content string,
	cardCount int,
	customPrompt string,
) (string, error) {
	data := promptData{Content: content, CardCount: cardCount}

	tmpl := s.templates[cardType]
	if customPrompt != "" {
		custom, err := template.New("custom").Parse(customPrompt)
		if err != nil {
			return "", fmt.Errorf("%w: failed to parse custom prompt: %v", ErrInvalidConfig, err)
		}
		tmpl = custom
	}
	if tmpl == nil {
		return "", fmt.Errorf("%w: no prompt template for card type %q", ErrInvalidConfig, cardType)
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("failed to execute prompt template: %w", err)
	}
	return buf.String(), nil
}

// Hash returns a short content hash of the template registered for the
// card type, for inclusion in cache fingerprints. Custom prompts are
// hashed by the caller instead.
func (s *PromptSet) Hash(cardType domain.CardType) string {
	return s.hashes[cardType]
}
