package vectorstore

import (
	"context"
	"hash/fnv"
	"math"
	"strings"
	"unicode"
)

// Embedder produces vector embeddings from text. The engine accepts any
// implementation; production deployments should point it at a real model,
// but no such client exists anywhere in the dependency corpus this service
// was assembled from, so LocalEmbedder ships as the default so the service
// is usable with zero external dependencies.
type Embedder interface {
	// EmbedTexts returns one embedding per input text, in the same order.
	EmbedTexts(ctx context.Context, texts []string) ([][]float32, error)
	// ModelName identifies the embedding model for diagnostics.
	ModelName() string
	// Dimension is the length of vectors this embedder produces.
	Dimension() int
}

const (
	localModelName = "hashed-bow-v1"
	localDimension = 384
)

// LocalEmbedder is a deterministic, dependency-free embedder: it hashes
// tokens into a fixed-width bag-of-words vector and L2-normalizes it. It
// produces no semantic generalization, but its determinism makes it a
// reliable fallback and a predictable target for tests.
type LocalEmbedder struct{}

func (e *LocalEmbedder) ModelName() string { return localModelName }
func (e *LocalEmbedder) Dimension() int    { return localDimension }

func (e *LocalEmbedder) EmbedTexts(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, text := range texts {
		out[i] = embedOne(text)
	}
	return out, nil
}

func embedOne(text string) []float32 {
	vector := make([]float32, localDimension)
	for _, tok := range tokenize(text) {
		h := fnv.New64a()
		_, _ = h.Write([]byte(tok))
		vector[int(h.Sum64()%uint64(localDimension))] += 1
	}
	var norm float32
	for _, v := range vector {
		norm += v * v
	}
	if norm == 0 {
		return vector
	}
	inv := 1 / float32(math.Sqrt(float64(norm)))
	for i := range vector {
		vector[i] *= inv
	}
	return vector
}

func tokenize(text string) []string {
	text = strings.TrimSpace(strings.ToLower(text))
	if text == "" {
		return nil
	}
	return strings.FieldsFunc(text, func(r rune) bool {
		return !(unicode.IsLetter(r) || unicode.IsNumber(r))
	})
}

var _ Embedder = (*LocalEmbedder)(nil)
