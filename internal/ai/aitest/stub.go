// Package aitest provides deterministic in-memory implementations of the ai
// interfaces for tests.
package aitest

import (
	"context"
	"sync"

	"github.com/KevinLaRosa/yorimichi-workers/internal/ai"
)

// Classifier returns a fixed verdict per call, or the result of Fn when set.
type Classifier struct {
	mu      sync.Mutex
	calls   int
	Verdict ai.Verdict
	Err     error
	Fn      func(documentText string) (ai.Verdict, error)
}

func (c *Classifier) Classify(_ context.Context, documentText string) (ai.Verdict, error) {
	c.mu.Lock()
	c.calls++
	c.mu.Unlock()
	if c.Fn != nil {
		return c.Fn(documentText)
	}
	return c.Verdict, c.Err
}

func (c *Classifier) Calls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls
}

// Extractor returns a fixed extraction per call, or the result of Fn when set.
type Extractor struct {
	mu         sync.Mutex
	calls      int
	Extraction ai.Extraction
	Err        error
	Fn         func(documentText string) (ai.Extraction, error)
}

func (e *Extractor) RewriteAndExtract(_ context.Context, documentText string) (ai.Extraction, error) {
	e.mu.Lock()
	e.calls++
	e.mu.Unlock()
	if e.Fn != nil {
		return e.Fn(documentText)
	}
	return e.Extraction, e.Err
}

func (e *Extractor) Calls() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.calls
}

// Embedder returns a fixed vector per call, or the result of Fn when set.
type Embedder struct {
	mu     sync.Mutex
	calls  int
	Vector []float32
	Err    error
	Fn     func(text string) ([]float32, error)
}

func (e *Embedder) EmbedText(_ context.Context, text string) ([]float32, error) {
	e.mu.Lock()
	e.calls++
	e.mu.Unlock()
	if e.Fn != nil {
		return e.Fn(text)
	}
	return e.Vector, e.Err
}

func (e *Embedder) Calls() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.calls
}

var (
	_ ai.Classifier = (*Classifier)(nil)
	_ ai.Extractor  = (*Extractor)(nil)
	_ ai.Embedder   = (*Embedder)(nil)
)
