package openai

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/KevinLaRosa/yorimichi-workers/internal/ai"
	"github.com/KevinLaRosa/yorimichi-workers/internal/extract"
	placeschema "github.com/KevinLaRosa/yorimichi-workers/schema"
)

const (
	rewriterInputChars = 3000
	rewriterMaxTokens  = 500
	extractorMaxTokens = 300
	fallbackName       = "Unnamed place"
)

// Extractor rewrites the source text into an original description, then
// pulls structured fields out of the rewritten text.
type Extractor struct {
	client        *Client
	rewriterModel string
}

var _ ai.Extractor = (*Extractor)(nil)

func NewExtractor(client *Client, rewriterModel string) *Extractor {
	return &Extractor{client: client, rewriterModel: rewriterModel}
}

func (e *Extractor) RewriteAndExtract(ctx context.Context, documentText string) (ai.Extraction, error) {
	if e == nil || e.client == nil {
		return ai.Extraction{}, fmt.Errorf("extractor is not initialized")
	}

	input := extract.TruncateRunes(documentText, rewriterInputChars)
	description, err := e.client.ChatCompletion(ctx, e.rewriterModel, rewriterPrompt, input, 0.8, rewriterMaxTokens)
	if err != nil {
		return ai.Extraction{}, fmt.Errorf("rewrite document: %w", err)
	}
	if strings.TrimSpace(description) == "" {
		return ai.Extraction{}, fmt.Errorf("%w: rewriter returned empty description", ai.ErrExtraction)
	}

	raw, err := e.client.ChatCompletion(ctx, e.rewriterModel, extractorPrompt, description, 0.3, extractorMaxTokens)
	if err != nil {
		return ai.Extraction{}, fmt.Errorf("extract structured fields: %w", err)
	}

	extraction, err := placeschema.ValidatePlaceExtraction(json.RawMessage(stripCodeFences(raw)))
	if err != nil {
		return ai.Extraction{}, fmt.Errorf("%w: %v (raw output: %s)", ai.ErrExtraction, err, extract.TruncateRunes(raw, 500))
	}

	result := ai.Extraction{
		Name:        fallbackName,
		Description: description,
		Keywords:    extraction.Keywords,
	}
	if extraction.Name != nil {
		result.Name = *extraction.Name
	}
	if extraction.Neighborhood != nil {
		result.Neighborhood = *extraction.Neighborhood
	}
	if extraction.Summary != nil {
		result.Summary = *extraction.Summary
	}
	return result, nil
}

// stripCodeFences removes a ```json … ``` wrapper when the model adds one.
func stripCodeFences(raw string) string {
	trimmed := strings.TrimSpace(raw)
	trimmed = strings.TrimPrefix(trimmed, "```json")
	trimmed = strings.TrimPrefix(trimmed, "```")
	trimmed = strings.TrimSuffix(trimmed, "```")
	return strings.TrimSpace(trimmed)
}
