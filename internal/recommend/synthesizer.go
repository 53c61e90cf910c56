package recommend

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/careerhub/ai-pipeline/internal/task"
)

// defaultContextItems caps how many retrieved items are folded into the
// generative prompt; the highest-similarity prefix is kept
const defaultContextItems = 5

// sourceTextPreviewLen bounds how much of each item's source text reaches
// the prompt
const sourceTextPreviewLen = 200

// requiredFields is the fixed response contract per task kind
var requiredFields = map[Kind][]string{
	KindActivity:  {"title", "rationale", "expected_benefits"},
	KindJob:       {"position", "match_score", "why_suitable"},
	KindPortfolio: {"strength", "weakness", "recommend_position"},
}

// Result is the structured output of a synthesis
type Result struct {
	Success         bool             `json:"success"`
	Recommendations []map[string]any `json:"recommendations"`
	Error           string           `json:"error,omitempty"`
	GeneratedAt     time.Time        `json:"generated_at"`
}

// Synthesizer combines a user profile and retrieved context into a
// schema-validated recommendation via the injected Completer. It never
// retries the generative call; retry policy belongs to the dispatcher.
type Synthesizer struct {
	completer       Completer
	maxContextItems int
	logger          *slog.Logger
}

// NewSynthesizer creates a synthesizer over the given Completer
func NewSynthesizer(completer Completer, logger *slog.Logger) *Synthesizer {
	return &Synthesizer{
		completer:       completer,
		maxContextItems: defaultContextItems,
		logger:          logger,
	}
}

// Synthesize produces a recommendation result for the task kind. No retrieved
// context for activity or job kinds is a valid empty result, not an error; a
// generative response missing required fields wraps task.ErrSchemaViolation.
func (s *Synthesizer) Synthesize(ctx context.Context, profile map[string]any, items []Item, kind Kind) (*Result, error) {
	required, ok := requiredFields[kind]
	if !ok {
		return nil, fmt.Errorf("%w: unsupported recommendation kind %q", task.ErrValidation, kind)
	}

	if len(items) == 0 && kind != KindPortfolio {
		// No matches after filtering is a valid outcome
		return &Result{
			Success:         true,
			Recommendations: []map[string]any{},
			GeneratedAt:     time.Now().UTC(),
		}, nil
	}

	context_ := s.boundContext(items)

	raw, err := s.completer.Complete(ctx, Request{
		Kind:   kind,
		System: systemPrompt(kind),
		Prompt: buildPrompt(kind, profile, context_),
	})
	if err != nil {
		return nil, task.NewTransientError(fmt.Errorf("generative service call failed: %w", err))
	}

	recommendations, err := parseResponse(kind, required, raw)
	if err != nil {
		return nil, err
	}

	s.logger.Debug("Synthesis complete",
		slog.String("kind", string(kind)),
		slog.Int("context_items", len(context_)),
		slog.Int("recommendations", len(recommendations)),
	)

	return &Result{
		Success:         true,
		Recommendations: recommendations,
		GeneratedAt:     time.Now().UTC(),
	}, nil
}

// boundContext keeps the highest-similarity prefix of the retrieved items
func (s *Synthesizer) boundContext(items []Item) []Item {
	bounded := make([]Item, len(items))
	copy(bounded, items)
	sortItems(bounded)

	if len(bounded) > s.maxContextItems {
		bounded = bounded[:s.maxContextItems]
	}
	return bounded
}

func systemPrompt(kind Kind) string {
	switch kind {
	case KindJob:
		return "You are a career consultant. Recommend suitable job postings based on the user's background and the retrieved postings. Respond with JSON only."
	case KindPortfolio:
		return "You are a portfolio analyst. Give objective, constructive feedback on the portfolio. Respond with JSON only."
	default:
		return "You are an advisor for extracurricular activities. Recommend suitable activities based on the user's profile and the retrieved candidates. Respond with JSON only."
	}
}

// truncatePreview cuts text to at most maxBytes without splitting a rune
func truncatePreview(text string, maxBytes int) string {
	if len(text) <= maxBytes {
		return text
	}
	cut := maxBytes
	for cut > 0 && !utf8.RuneStart(text[cut]) {
		cut--
	}
	return text[:cut]
}

// buildPrompt renders a deterministic request: profile attributes serialize
// with sorted keys and context items keep their retrieval order
func buildPrompt(kind Kind, profile map[string]any, items []Item) string {
	var b strings.Builder

	profileJSON, err := json.Marshal(profile)
	if err != nil {
		profileJSON = []byte("{}")
	}

	b.WriteString("User profile:\n")
	b.Write(profileJSON)
	b.WriteString("\n\nRetrieved context:\n")

	for i, item := range items {
		metadataJSON, err := json.Marshal(item.Metadata)
		if err != nil {
			metadataJSON = []byte("{}")
		}

		preview := truncatePreview(item.SourceText, sourceTextPreviewLen)

		fmt.Fprintf(&b, "%d. id=%s similarity=%.2f metadata=%s\n", i+1, item.ID, item.SimilarityScore, metadataJSON)
		if preview != "" {
			fmt.Fprintf(&b, "   %s\n", preview)
		}
	}

	b.WriteString("\nRespond with a single JSON object")
	switch kind {
	case KindPortfolio:
		b.WriteString(` with exactly the keys "strength", "weakness" and "recommend_position".`)
	case KindJob:
		b.WriteString(` of the form {"recommendations": [...]} where every entry has "position", "match_score" and "why_suitable".`)
	default:
		b.WriteString(` of the form {"recommendations": [...]} where every entry has "title", "rationale" and "expected_benefits".`)
	}

	return b.String()
}

// parseResponse validates the generative response against the kind's
// required-field contract. Missing fields are never patched with defaults: a
// malformed response means a prompt/schema mismatch the caller must see.
func parseResponse(kind Kind, required []string, raw string) ([]map[string]any, error) {
	if kind == KindPortfolio {
		var parsed map[string]any
		if err := json.Unmarshal([]byte(raw), &parsed); err != nil {
			return nil, fmt.Errorf("%w: response is not valid JSON: %v", task.ErrSchemaViolation, err)
		}
		if err := checkFields(parsed, required); err != nil {
			return nil, err
		}
		// Project to exactly the contract fields
		analysis := make(map[string]any, len(required))
		for _, field := range required {
			analysis[field] = parsed[field]
		}
		return []map[string]any{analysis}, nil
	}

	var parsed struct {
		Recommendations []map[string]any `json:"recommendations"`
	}
	if err := json.Unmarshal([]byte(raw), &parsed); err != nil {
		return nil, fmt.Errorf("%w: response is not valid JSON: %v", task.ErrSchemaViolation, err)
	}
	if parsed.Recommendations == nil {
		return nil, fmt.Errorf("%w: response has no recommendations field", task.ErrSchemaViolation)
	}

	for i, rec := range parsed.Recommendations {
		if err := checkFields(rec, required); err != nil {
			return nil, fmt.Errorf("recommendation %d: %w", i, err)
		}
	}

	return parsed.Recommendations, nil
}

func checkFields(entry map[string]any, required []string) error {
	var missing []string
	for _, field := range required {
		if _, ok := entry[field]; !ok {
			missing = append(missing, field)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: missing required fields [%s]", task.ErrSchemaViolation, strings.Join(missing, ", "))
	}
	return nil
}
