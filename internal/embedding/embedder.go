// Package embedding turns text into fixed-length vectors: an offline n-gram embedder,
// hosted and local OpenAI-compatible providers, ONNX MiniLM, and the caches and batch
// runner shared by all of them.
package embedding

import (
	"context"
	"errors"

	"github.com/hyperjump/vincentbot/internal/models"
)

// Embedder produces vector embeddings for text. Every vector returned by one embedder
// has Dimensions() entries. EmbedBatch preserves input order.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	Dimensions() int
	// ModelID identifies the model and its settings; indexes built with a different
	// ModelID are not comparable.
	ModelID() string
	Close() error
}

// unavailable wraps a provider failure as EmbeddingUnavailable, flagging deadlines.
func unavailable(op string, err error) error {
	if err == nil {
		return nil
	}
	var typed *models.Error
	if errors.As(err, &typed) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return models.NewTimeoutError(models.KindEmbeddingUnavailable, op, err)
	}
	return models.NewError(models.KindEmbeddingUnavailable, op, "embedding request failed", err)
}

// embedEach calls Embed for each text in order.
func embedEach(ctx context.Context, e Embedder, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, text := range texts {
		v, err := e.Embed(ctx, text)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}
