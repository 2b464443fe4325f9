// Package similarity scores how alike two pieces of knowledge content are.
package similarity

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
)

// DefaultThreshold is the score at or above which content counts as similar.
const DefaultThreshold = 0.85

// Scorer returns a similarity in [0,1] for two texts.
type Scorer interface {
	Score(ctx context.Context, a, b string) (float64, error)
}

// Embedder produces a dense vector for text.
type Embedder interface {
	GenerateEmbedding(ctx context.Context, text string) ([]float32, error)
}

// JaccardScorer compares the sets of lower-cased whitespace-separated words.
type JaccardScorer struct{}

func (JaccardScorer) Score(_ context.Context, a, b string) (float64, error) {
	return Jaccard(a, b), nil
}

// Jaccard returns |A∩B| / |A∪B| over the word sets of a and b.
// Two empty texts are identical.
func Jaccard(a, b string) float64 {
	setA := wordSet(a)
	setB := wordSet(b)
	if len(setA) == 0 && len(setB) == 0 {
		return 1
	}

	intersection := 0
	for w := range setA {
		if _, ok := setB[w]; ok {
			intersection++
		}
	}
	union := len(setA) + len(setB) - intersection
	return float64(intersection) / float64(union)
}

func wordSet(s string) map[string]struct{} {
	words := strings.Fields(strings.ToLower(s))
	set := make(map[string]struct{}, len(words))
	for _, w := range words {
		set[w] = struct{}{}
	}
	return set
}

// EmbeddingScorer compares texts by the cosine of their embeddings.
type EmbeddingScorer struct {
	embedder Embedder
}

func NewEmbeddingScorer(embedder Embedder) *EmbeddingScorer {
	return &EmbeddingScorer{embedder: embedder}
}

func (s *EmbeddingScorer) Score(ctx context.Context, a, b string) (float64, error) {
	va, err := s.embedder.GenerateEmbedding(ctx, a)
	if err != nil {
		return 0, fmt.Errorf("embed candidate: %w", err)
	}
	vb, err := s.embedder.GenerateEmbedding(ctx, b)
	if err != nil {
		return 0, fmt.Errorf("embed stored entry: %w", err)
	}
	return Cosine(va, vb)
}

// ErrDimensionMismatch is returned when vectors of different length are compared.
var ErrDimensionMismatch = errors.New("vector dimensions differ")

// Cosine returns the cosine similarity of a and b clamped to [0,1].
func Cosine(a, b []float32) (float64, error) {
	if len(a) != len(b) {
		return 0, fmt.Errorf("%w: %d vs %d", ErrDimensionMismatch, len(a), len(b))
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0, nil
	}
	score := dot / (math.Sqrt(normA) * math.Sqrt(normB))
	return math.Max(0, math.Min(1, score)), nil
}
