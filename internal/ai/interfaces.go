// Package ai defines the boundary to the external model capabilities the
// pipeline consumes. Implementations live in subpackages; tests use the
// deterministic stubs in aitest.
package ai

import (
	"context"
	"errors"
)

// ErrExtraction marks malformed or unusable model output from the
// rewrite/extract step. It is terminal for the URL but never for the run.
var ErrExtraction = errors.New("extraction output invalid")

// Verdict is the subject-classification outcome for one document.
type Verdict struct {
	IsSubject  bool
	Confidence float64
}

// Extraction is the rewritten description plus the structured fields pulled
// out of it.
type Extraction struct {
	Name         string
	Description  string
	Neighborhood string
	Summary      string
	Keywords     []string
}

// Classifier decides whether a document describes a real, visitable place.
type Classifier interface {
	Classify(ctx context.Context, documentText string) (Verdict, error)
}

// Extractor produces an original description and structured fields from
// raw document text. Malformed model output wraps ErrExtraction.
type Extractor interface {
	RewriteAndExtract(ctx context.Context, documentText string) (Extraction, error)
}

// Embedder generates a fixed-dimensionality vector embedding for text.
// Implementations must be safe for concurrent use.
type Embedder interface {
	EmbedText(ctx context.Context, text string) ([]float32, error)
}
