package embedding

import (
	"context"
	"hash/fnv"
	"math"
)

// Mock is a deterministic in-process provider for tests and for running
// without a remote embedding service. The same text always maps to the
// same unit vector of the configured dimension.
type Mock struct {
	dimensions int
}

// NewMock returns a deterministic provider of the given dimension.
func NewMock(dimensions int) *Mock {
	if dimensions <= 0 {
		dimensions = 128
	}
	return &Mock{dimensions: dimensions}
}

// Dimensions returns the embedding dimension.
func (m *Mock) Dimensions() int { return m.dimensions }

// Embed returns a unit vector derived from the text hash.
func (m *Mock) Embed(_ context.Context, text string) ([]float32, error) {
	h := fnv.New64a()
	h.Write([]byte(text))
	seed := h.Sum64()

	vec := make([]float32, m.dimensions)
	for i := range vec {
		vec[i] = float32(math.Sin(float64(seed%1000)*0.1 + float64(i)))
	}

	var sum float64
	for _, v := range vec {
		sum += float64(v * v)
	}
	if sum > 0 {
		inv := float32(1 / math.Sqrt(sum))
		for i := range vec {
			vec[i] *= inv
		}
	}
	return vec, nil
}

// EmbedBatch calls Embed for each text.
func (m *Mock) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	vecs := make([][]float32, len(texts))
	for i, text := range texts {
		vec, err := m.Embed(ctx, text)
		if err != nil {
			return nil, err
		}
		vecs[i] = vec
	}
	return vecs, nil
}
