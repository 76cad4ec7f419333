// Package search retrieves the chunks most relevant to a query from the vector index.
package search

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/hyperjump/vincentbot/internal/embedding"
	"github.com/hyperjump/vincentbot/internal/models"
	"github.com/hyperjump/vincentbot/internal/vector"
	"github.com/hyperjump/vincentbot/pkg/utils"
	"go.uber.org/zap"
)

// SnapshotSource hands out the current index snapshot. *vector.Store implements it.
type SnapshotSource interface {
	Snapshot() (*vector.Snapshot, error)
}

// Retriever embeds queries and looks them up in the vector index.
type Retriever struct {
	embedder embedding.Embedder
	index    SnapshotSource
	logger   *zap.Logger
}

// Option configures a Retriever.
type Option func(*Retriever)

// WithLogger sets the retriever's logger.
func WithLogger(l *zap.Logger) Option {
	return func(r *Retriever) { r.logger = l }
}

// NewRetriever creates a retriever over index using embedder for queries.
func NewRetriever(embedder embedding.Embedder, index SnapshotSource, opts ...Option) *Retriever {
	r := &Retriever{embedder: embedder, index: index}
	for _, opt := range opts {
		opt(r)
	}
	r.logger = utils.OrNop(r.logger)
	return r
}

// Retrieve returns up to k chunks ordered by descending similarity to query. An empty
// index yields an empty result without embedding the query.
func (r *Retriever) Retrieve(ctx context.Context, query string, k int) (*models.RetrievalResult, error) {
	if k <= 0 {
		return nil, models.NewError(models.KindInvalidArgument, "retrieve",
			fmt.Sprintf("k must be positive, got %d", k), nil)
	}
	if strings.TrimSpace(query) == "" {
		return nil, models.NewError(models.KindInvalidArgument, "retrieve", "query is empty", nil)
	}

	// One snapshot serves the whole query.
	snap, err := r.index.Snapshot()
	if err != nil {
		return nil, err
	}
	result := &models.RetrievalResult{Query: query, K: k, Chunks: []models.ScoredChunk{}}
	if snap.Len() == 0 {
		return result, nil
	}

	start := time.Now()
	vec, err := r.embedder.Embed(ctx, query)
	if err != nil {
		return nil, err
	}
	hits, err := snap.Query(vec, k)
	if err != nil {
		return nil, err
	}
	result.Chunks = hits
	r.logger.Debug("retrieved",
		zap.Int("k", k),
		zap.Int("hits", len(hits)),
		zap.Duration("took", time.Since(start)))
	return result, nil
}
