// Package pipeline answers questions against the indexed knowledge base and serializes
// rebuilds of that index.
package pipeline

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/hyperjump/vincentbot/internal/generation"
	"github.com/hyperjump/vincentbot/internal/indexer"
	"github.com/hyperjump/vincentbot/internal/models"
	"github.com/hyperjump/vincentbot/internal/prompt"
	"github.com/hyperjump/vincentbot/internal/search"
	"github.com/hyperjump/vincentbot/internal/vector"
	"github.com/hyperjump/vincentbot/pkg/utils"
	"go.uber.org/zap"
)

// DefaultK is the number of chunks retrieved per question.
const DefaultK = 5

// Pipeline ties retrieval, prompt assembly and generation together. It is built once
// at startup and is safe for concurrent use.
type Pipeline struct {
	indexer   *indexer.Indexer
	retriever *search.Retriever
	assembler *prompt.Assembler
	generator generation.Generator

	sources []string
	k       int
	logger  *zap.Logger

	rebuildMu sync.Mutex
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithLogger sets the pipeline's logger.
func WithLogger(l *zap.Logger) Option {
	return func(p *Pipeline) { p.logger = l }
}

// WithK sets the default number of retrieved chunks.
func WithK(k int) Option {
	return func(p *Pipeline) {
		if k > 0 {
			p.k = k
		}
	}
}

// WithSources sets the source paths Rebuild ingests.
func WithSources(sources []string) Option {
	return func(p *Pipeline) { p.sources = sources }
}

// WithGenerator sets the answer generator. Without one, Ask fails with
// InvalidConfiguration; ingestion and retrieval still work.
func WithGenerator(g generation.Generator) Option {
	return func(p *Pipeline) { p.generator = g }
}

// New creates a pipeline. The retriever reads from the indexer's store.
func New(idx *indexer.Indexer, assembler *prompt.Assembler, opts ...Option) *Pipeline {
	p := &Pipeline{
		indexer:   idx,
		assembler: assembler,
		k:         DefaultK,
	}
	for _, opt := range opts {
		opt(p)
	}
	p.logger = utils.OrNop(p.logger)
	if p.assembler == nil {
		p.assembler = prompt.NewAssembler()
	}
	p.retriever = search.NewRetriever(idx.Embedder(), idx.Store(), search.WithLogger(p.logger))
	return p
}

// K returns the default retrieval depth.
func (p *Pipeline) K() int { return p.k }

// Ask answers query using the default k.
func (p *Pipeline) Ask(ctx context.Context, query string) (*models.Answer, error) {
	return p.AskK(ctx, query, p.k)
}

// AskK retrieves k chunks for query, assembles the prompt and generates an answer.
func (p *Pipeline) AskK(ctx context.Context, query string, k int) (*models.Answer, error) {
	start := time.Now()
	if p.generator == nil {
		return nil, models.NewError(models.KindInvalidConfiguration, "ask", "no generator configured", nil)
	}
	result, err := p.retriever.Retrieve(ctx, query, k)
	if err != nil {
		return nil, err
	}
	pr := p.assembler.Assemble(query, result.Texts())
	if pr.DroppedChunks > 0 {
		p.logger.Warn("context chunks dropped to fit input limit",
			zap.Int("dropped", pr.DroppedChunks),
			zap.Int("kept", pr.ContextChunks))
	}
	answer, err := p.generator.Generate(ctx, pr)
	if err != nil {
		p.logger.Warn("generation failed",
			zap.String("kind", string(models.KindOf(err))),
			zap.Bool("timeout", models.IsTimeout(err)),
			zap.Error(err))
		return nil, err
	}
	// Sources cover only the chunks that made it into the prompt.
	used := &models.RetrievalResult{Chunks: result.Chunks[:pr.ContextChunks]}
	answer.Sources = used.Sources()
	answer.DroppedChunks = pr.DroppedChunks
	answer.Took = time.Since(start)
	p.logger.Debug("answered",
		zap.Int("k", k),
		zap.Int("context_chunks", pr.ContextChunks),
		zap.Duration("took", answer.Took))
	return answer, nil
}

// Retrieve exposes retrieval alone.
func (p *Pipeline) Retrieve(ctx context.Context, query string, k int) (*models.RetrievalResult, error) {
	return p.retriever.Retrieve(ctx, query, k)
}

// Rebuild reingests the configured sources and swaps in the new index. Concurrent
// calls run one after another; queries in flight keep the snapshot they started with.
func (p *Pipeline) Rebuild(ctx context.Context) (*indexer.Report, error) {
	p.rebuildMu.Lock()
	defer p.rebuildMu.Unlock()
	p.logger.Info("rebuilding index", zap.Strings("sources", p.sources))
	return p.indexer.IngestSources(ctx, p.sources)
}

// Manifest describes the loaded index; false when nothing is loaded.
func (p *Pipeline) Manifest() (vector.Manifest, bool) {
	return p.indexer.Store().Manifest()
}

// EmbedderID returns the model ID of the query embedder.
func (p *Pipeline) EmbedderID() string { return p.indexer.Embedder().ModelID() }

// CheckIndex reports IndexUnavailable when no index is loaded or when the loaded
// index was built by a different embedding model.
func (p *Pipeline) CheckIndex() error {
	manifest, ok := p.indexer.Store().Manifest()
	if !ok {
		return models.NewError(models.KindIndexUnavailable, "check_index", "no index loaded", nil)
	}
	embedder := p.indexer.Embedder()
	if manifest.ModelID != embedder.ModelID() {
		return models.NewError(models.KindIndexUnavailable, "check_index",
			fmt.Sprintf("index built with %q, embedder is %q; rebuild required", manifest.ModelID, embedder.ModelID()), nil)
	}
	if dims := embedder.Dimensions(); dims > 0 && manifest.Count > 0 && manifest.Dimensions != dims {
		return models.NewError(models.KindIndexUnavailable, "check_index",
			fmt.Sprintf("index has %d dimensions, embedder produces %d; rebuild required", manifest.Dimensions, dims), nil)
	}
	return nil
}

// User-facing messages, one per failure category.
const (
	MsgEmbeddingUnavailable = "embedding service unavailable"
	MsgGenerationTimeout    = "the answer took too long, please try again"
	MsgGenerationRetry      = "could not generate an answer, please try again"
	MsgGenerationMalformed  = "could not generate an answer"
	MsgIndexUnavailable     = "knowledge base unavailable"
	MsgInvalidArgument      = "invalid question"
	MsgInternal             = "internal error"
)

// UserMessage maps err to a stable message safe to show to users.
func UserMessage(err error) string {
	switch models.KindOf(err) {
	case models.KindEmbeddingUnavailable:
		return MsgEmbeddingUnavailable
	case models.KindGenerationUnavailable:
		if models.IsTimeout(err) {
			return MsgGenerationTimeout
		}
		return MsgGenerationRetry
	case models.KindGenerationMalformed:
		return MsgGenerationMalformed
	case models.KindIndexUnavailable:
		return MsgIndexUnavailable
	case models.KindInvalidArgument:
		return MsgInvalidArgument
	}
	return MsgInternal
}
