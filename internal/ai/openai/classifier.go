package openai

import (
	"context"
	"fmt"
	"strings"

	"github.com/KevinLaRosa/yorimichi-workers/internal/ai"
	"github.com/KevinLaRosa/yorimichi-workers/internal/extract"
)

const (
	classifierInputChars = 2000
	classifierMaxTokens  = 10
)

// Classifier asks the chat model whether a document describes a single,
// visitable place. The yes/no answer is authoritative.
type Classifier struct {
	client *Client
	model  string
}

var _ ai.Classifier = (*Classifier)(nil)

func NewClassifier(client *Client, model string) *Classifier {
	return &Classifier{client: client, model: model}
}

func (c *Classifier) Classify(ctx context.Context, documentText string) (ai.Verdict, error) {
	if c == nil || c.client == nil {
		return ai.Verdict{}, fmt.Errorf("classifier is not initialized")
	}

	input := extract.TruncateRunes(documentText, classifierInputChars)
	answer, err := c.client.ChatCompletion(ctx, c.model, classifierPrompt, input, 0.3, classifierMaxTokens)
	if err != nil {
		return ai.Verdict{}, fmt.Errorf("classify document: %w", err)
	}

	switch normalizeAnswer(answer) {
	case "OUI":
		return ai.Verdict{IsSubject: true, Confidence: 1}, nil
	case "NON":
		return ai.Verdict{IsSubject: false, Confidence: 1}, nil
	default:
		// An off-script answer is treated as a low-confidence negative
		// rather than an error: the gate biases toward precision.
		return ai.Verdict{IsSubject: false, Confidence: 0}, nil
	}
}

func normalizeAnswer(answer string) string {
	return strings.ToUpper(strings.Trim(strings.TrimSpace(answer), ".!"))
}
