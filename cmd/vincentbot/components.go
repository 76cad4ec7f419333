package main

import (
	"fmt"

	"github.com/hyperjump/vincentbot/internal/config"
	"github.com/hyperjump/vincentbot/internal/embedding"
	"github.com/hyperjump/vincentbot/internal/extract"
	"github.com/hyperjump/vincentbot/internal/generation"
	"github.com/hyperjump/vincentbot/internal/indexer"
	"github.com/hyperjump/vincentbot/internal/keyword"
	"github.com/hyperjump/vincentbot/internal/loader"
	"github.com/hyperjump/vincentbot/internal/pipeline"
	"github.com/hyperjump/vincentbot/internal/prompt"
	"github.com/hyperjump/vincentbot/internal/storage"
	"github.com/hyperjump/vincentbot/internal/vector"
	"go.uber.org/zap"
)

// Components holds everything a command needs.
type Components struct {
	Embedder embedding.Embedder
	Store    *vector.Store
	Catalog  *storage.SQLiteCatalog
	Passages *keyword.PassageIndex
	Indexer  *indexer.Indexer
	Pipeline *pipeline.Pipeline
}

// Close releases the catalog, the passage index and the embedder.
func (c *Components) Close() {
	if c.Passages != nil {
		_ = c.Passages.Close()
	}
	if c.Catalog != nil {
		_ = c.Catalog.Close()
	}
	if c.Embedder != nil {
		_ = c.Embedder.Close()
	}
}

// initializeComponents wires the pipeline from cfg. The generator is only built when
// needGenerator is set, so commands that never answer do not require an API key.
func initializeComponents(cfg *config.Config, logger *zap.Logger, needGenerator bool) (*Components, error) {
	var gen generation.Generator
	if needGenerator {
		if err := config.RequireGenerationKey(cfg); err != nil {
			return nil, err
		}
		g, err := generation.New(cfg.Generation, logger)
		if err != nil {
			return nil, fmt.Errorf("init generator: %w", err)
		}
		gen = g
	}

	chunker, err := indexer.NewChunker(cfg.Chunking.MaxChunkSize, cfg.Chunking.Overlap())
	if err != nil {
		return nil, err
	}

	embedder, err := embedding.New(cfg.Embedding,
		embedding.WithLogger(logger),
		embedding.WithCacheDir(cfg.Storage.EmbeddingCacheDir),
	)
	if err != nil {
		return nil, fmt.Errorf("init embedder: %w", err)
	}
	c := &Components{Embedder: embedder}

	c.Catalog, err = storage.NewSQLiteCatalog(cfg.Storage.DatabasePath)
	if err != nil {
		c.Close()
		return nil, fmt.Errorf("init catalog: %w", err)
	}
	c.Passages, err = keyword.OpenPassageIndex(cfg.Storage.PassagesPath, logger)
	if err != nil {
		c.Close()
		return nil, fmt.Errorf("init passage index: %w", err)
	}

	c.Store = vector.NewStore(cfg.Storage.IndexDir, vector.WithLogger(logger))
	ld := loader.NewLoader(extract.NewExtractor(),
		loader.WithLogger(logger),
		loader.WithExtensions(cfg.Sources.Extensions),
	)
	c.Indexer = indexer.NewIndexer(chunker, embedder, c.Store,
		indexer.WithLogger(logger),
		indexer.WithCatalog(c.Catalog),
		indexer.WithPassages(c.Passages),
		indexer.WithBatch(cfg.Embedding.BatchSize, cfg.Embedding.Workers),
		indexer.WithLoader(ld, cfg.Sources.CombineOrDefault()),
	)

	assembler := prompt.NewAssembler(
		prompt.WithPersona(cfg.Generation.Persona),
		prompt.WithMaxInputChars(cfg.Generation.MaxInputChars),
	)
	opts := []pipeline.Option{
		pipeline.WithLogger(logger),
		pipeline.WithSources(cfg.Sources.Paths),
		pipeline.WithK(cfg.Retrieval.K),
	}
	if gen != nil {
		opts = append(opts, pipeline.WithGenerator(gen))
	}
	c.Pipeline = pipeline.New(c.Indexer, assembler, opts...)
	return c, nil
}

// diskPaths lists the on-disk artifacts counted by status.
func diskPaths(cfg *config.Config) []string {
	return []string{
		cfg.Storage.IndexDir,
		cfg.Storage.DatabasePath,
		cfg.Storage.PassagesPath,
		cfg.Storage.EmbeddingCacheDir,
	}
}
