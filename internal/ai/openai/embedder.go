package openai

import (
	"context"
	"fmt"

	"github.com/KevinLaRosa/yorimichi-workers/internal/ai"
	"github.com/KevinLaRosa/yorimichi-workers/internal/extract"
)

const embedderInputChars = 8000

// Embedder produces fixed-dimensionality vectors via the embeddings API.
type Embedder struct {
	client *Client
	model  string
	dims   int
}

var _ ai.Embedder = (*Embedder)(nil)

func NewEmbedder(client *Client, model string, dims int) *Embedder {
	return &Embedder{client: client, model: model, dims: dims}
}

func (e *Embedder) EmbedText(ctx context.Context, text string) ([]float32, error) {
	if e == nil || e.client == nil {
		return nil, fmt.Errorf("embedder is not initialized")
	}

	input := extract.TruncateRunes(text, embedderInputChars)
	vector, err := e.client.Embedding(ctx, e.model, input)
	if err != nil {
		return nil, fmt.Errorf("embed text: %w", err)
	}
	if e.dims > 0 && len(vector) != e.dims {
		return nil, fmt.Errorf("embedding has %d dimensions, expected %d", len(vector), e.dims)
	}
	return vector, nil
}
