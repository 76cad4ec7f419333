// Package indexer turns loaded documents into a persisted, queryable index.
package indexer

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/hyperjump/vincentbot/internal/embedding"
	"github.com/hyperjump/vincentbot/internal/keyword"
	"github.com/hyperjump/vincentbot/internal/loader"
	"github.com/hyperjump/vincentbot/internal/models"
	"github.com/hyperjump/vincentbot/internal/storage"
	"github.com/hyperjump/vincentbot/internal/vector"
	"github.com/hyperjump/vincentbot/pkg/utils"
	"go.uber.org/zap"
)

// Report summarises one ingestion run.
type Report struct {
	BuildID    string        `json:"build_id"`
	Documents  int           `json:"documents"`
	Chunks     int           `json:"chunks"`
	Dimensions int           `json:"dimensions"`
	ModelID    string        `json:"model_id"`
	Took       time.Duration `json:"took"`
	Warnings   []string      `json:"warnings,omitempty"`
}

// Indexer chunks, embeds and stores documents. The vector store is the source of
// truth; the catalog and the passage index are companions refreshed after it.
type Indexer struct {
	chunker  *Chunker
	embedder embedding.Embedder
	store    *vector.Store

	catalog  storage.Catalog
	passages *keyword.PassageIndex
	loader   *loader.Loader
	combine  bool

	batchSize int
	workers   int
	logger    *zap.Logger
}

// IndexerOption configures an Indexer.
type IndexerOption func(*Indexer)

// WithLogger sets a logger for ingestion events.
func WithLogger(l *zap.Logger) IndexerOption {
	return func(idx *Indexer) { idx.logger = l }
}

// WithCatalog records documents, chunks and builds in c.
func WithCatalog(c storage.Catalog) IndexerOption {
	return func(idx *Indexer) { idx.catalog = c }
}

// WithPassages rebuilds p after every successful ingestion.
func WithPassages(p *keyword.PassageIndex) IndexerOption {
	return func(idx *Indexer) { idx.passages = p }
}

// WithBatch sets the embedding batch size and worker count.
func WithBatch(size, workers int) IndexerOption {
	return func(idx *Indexer) {
		idx.batchSize = size
		idx.workers = workers
	}
}

// WithLoader sets the loader used by IngestSources. When combine is true all loaded
// files are joined into a single document before chunking.
func WithLoader(l *loader.Loader, combine bool) IndexerOption {
	return func(idx *Indexer) {
		idx.loader = l
		idx.combine = combine
	}
}

// NewIndexer creates an indexer with the given dependencies.
func NewIndexer(chunker *Chunker, embedder embedding.Embedder, store *vector.Store, opts ...IndexerOption) *Indexer {
	idx := &Indexer{
		chunker:   chunker,
		embedder:  embedder,
		store:     store,
		batchSize: 32,
		workers:   4,
	}
	for _, opt := range opts {
		opt(idx)
	}
	idx.logger = utils.OrNop(idx.logger)
	return idx
}

// Embedder returns the embedder the index is built with.
func (idx *Indexer) Embedder() embedding.Embedder { return idx.embedder }

// Store returns the vector store.
func (idx *Indexer) Store() *vector.Store { return idx.store }

// IngestSources loads sources with the configured loader and ingests the result.
func (idx *Indexer) IngestSources(ctx context.Context, sources []string) (*Report, error) {
	if idx.loader == nil {
		return nil, models.NewError(models.KindInvalidConfiguration, "ingest", "no loader configured", nil)
	}
	docs, err := idx.loader.Load(ctx, sources)
	if err != nil {
		return nil, fmt.Errorf("failed to load sources: %w", err)
	}
	if idx.combine {
		if combined, ok := loader.Concatenate(docs); ok {
			docs = []models.Document{combined}
		}
	}
	return idx.Ingest(ctx, docs)
}

// Ingest replaces the index with the chunks of docs. When the vector build fails the
// previous index stays in place and the build is recorded as failed. Catalog and
// passage failures after a successful build only add warnings to the report.
func (idx *Indexer) Ingest(ctx context.Context, docs []models.Document) (*Report, error) {
	start := time.Now()
	report := &Report{
		BuildID:   uuid.New().String(),
		Documents: len(docs),
		ModelID:   idx.embedder.ModelID(),
	}
	log := idx.logger.With(zap.String("build_id", report.BuildID))
	log.Info("ingestion started", zap.Int("documents", len(docs)))

	var build *storage.Build
	if idx.catalog != nil {
		b, err := idx.catalog.StartBuild(ctx, report.BuildID)
		if err != nil {
			log.Warn("failed to record build start", zap.Error(err))
			report.Warnings = append(report.Warnings, fmt.Sprintf("catalog: %v", err))
		} else {
			build = b
		}
	}

	var chunks []models.Chunk
	for _, doc := range docs {
		chunks = append(chunks, idx.chunker.Chunk(doc)...)
	}
	report.Chunks = len(chunks)

	if err := idx.buildVectors(ctx, chunks, report); err != nil {
		log.Error("ingestion failed", zap.Error(err))
		idx.finishBuild(build, report, err)
		return nil, err
	}

	if idx.catalog != nil {
		if err := idx.catalog.ReplaceCorpus(ctx, docs, chunks); err != nil {
			log.Warn("failed to update catalog", zap.Error(err))
			report.Warnings = append(report.Warnings, fmt.Sprintf("catalog: %v", err))
		}
	}
	if idx.passages != nil {
		if err := idx.passages.Rebuild(ctx, chunks); err != nil {
			log.Warn("failed to rebuild passage index", zap.Error(err))
			report.Warnings = append(report.Warnings, fmt.Sprintf("passages: %v", err))
		}
	}

	report.Took = time.Since(start)
	idx.finishBuild(build, report, nil)
	log.Info("ingestion finished",
		zap.Int("chunks", report.Chunks),
		zap.Int("dimensions", report.Dimensions),
		zap.Duration("took", report.Took))
	return report, nil
}

func (idx *Indexer) buildVectors(ctx context.Context, chunks []models.Chunk, report *Report) error {
	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
	}
	vectors, err := embedding.EmbedMany(ctx, idx.embedder, texts, idx.batchSize, idx.workers)
	if err != nil {
		return err
	}
	entries := make([]models.IndexedEntry, len(chunks))
	for i, c := range chunks {
		entries[i] = models.IndexedEntry{Chunk: c, Vector: vectors[i]}
	}
	dims := idx.embedder.Dimensions()
	if len(vectors) > 0 {
		dims = len(vectors[0])
	}
	report.Dimensions = dims
	return idx.store.Build(ctx, entries, vector.BuildInfo{
		ModelID:    report.ModelID,
		BuildID:    report.BuildID,
		Dimensions: dims,
	})
}

// finishBuild records the outcome with a fresh context so a cancelled ingestion is
// still marked failed.
func (idx *Indexer) finishBuild(build *storage.Build, report *Report, buildErr error) {
	if build == nil {
		return
	}
	build.ModelID = report.ModelID
	build.Documents = report.Documents
	build.Chunks = report.Chunks
	build.Status = storage.BuildSucceeded
	if buildErr != nil {
		build.Status = storage.BuildFailed
		build.Error = buildErr.Error()
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := idx.catalog.FinishBuild(ctx, build); err != nil {
		idx.logger.Warn("failed to record build result", zap.String("build_id", build.ID), zap.Error(err))
	}
}
