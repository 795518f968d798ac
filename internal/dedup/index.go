// Package dedup holds the in-memory similarity index used to detect when a
// freshly embedded place is semantically the same as one already stored.
package dedup

import (
	"math"
	"sync"
)

// DefaultThreshold matches the similarity cutoff used by the stored
// match_locations query.
const DefaultThreshold = 0.92

// Index keeps the embeddings of every persisted place and answers
// nearest-match queries against them. Safe for concurrent use.
type Index struct {
	threshold float64

	mu      sync.RWMutex
	vectors [][]float32
}

// NewIndex builds an index over the existing vectors. A non-positive
// threshold falls back to DefaultThreshold.
func NewIndex(threshold float64, existing [][]float32) *Index {
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	vectors := make([][]float32, 0, len(existing))
	for _, v := range existing {
		if len(v) > 0 {
			vectors = append(vectors, v)
		}
	}
	return &Index{
		threshold: threshold,
		vectors:   vectors,
	}
}

// Add appends a vector to the index. Empty vectors are ignored.
func (i *Index) Add(vector []float32) {
	if len(vector) == 0 {
		return
	}
	i.mu.Lock()
	i.vectors = append(i.vectors, vector)
	i.mu.Unlock()
}

// Size returns the number of indexed vectors.
func (i *Index) Size() int {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return len(i.vectors)
}

// MaxSimilarity returns the highest cosine similarity between the query and
// any indexed vector. An empty index or unusable query scores 0.
func (i *Index) MaxSimilarity(query []float32) float64 {
	i.mu.RLock()
	defer i.mu.RUnlock()

	best := 0.0
	for _, candidate := range i.vectors {
		if s := cosineSimilarity(query, candidate); s > best {
			best = s
		}
	}
	return best
}

// IsDuplicate reports whether the query meets or exceeds the similarity
// threshold against any indexed vector, along with the best score.
func (i *Index) IsDuplicate(query []float32) (bool, float64) {
	best := i.MaxSimilarity(query)
	return best >= i.threshold, best
}

// cosineSimilarity returns 0 for mismatched dimensions or zero-magnitude
// vectors rather than an error: such pairs are simply never duplicates.
func cosineSimilarity(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, normA, normB float64
	for idx := range a {
		x := float64(a[idx])
		y := float64(b[idx])
		dot += x * y
		normA += x * x
		normB += y * y
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
