// Package embedding converts text into fixed-dimension vectors through an
// external provider.
package embedding

import (
	"context"
	"errors"
)

// ErrProvider wraps upstream provider failures so callers can distinguish
// them from local errors.
var ErrProvider = errors.New("embedding provider error")

// Provider produces vector embeddings for text. Dimensions is fixed per
// deployment.
type Provider interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	Dimensions() int
}
