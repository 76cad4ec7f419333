package indexer

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/hyperjump/vincentbot/internal/embedding"
	"github.com/hyperjump/vincentbot/internal/keyword"
	"github.com/hyperjump/vincentbot/internal/loader"
	"github.com/hyperjump/vincentbot/internal/models"
	"github.com/hyperjump/vincentbot/internal/storage"
	"github.com/hyperjump/vincentbot/internal/vector"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type failingEmbedder struct {
	*embedding.NgramEmbedder
}

func (f failingEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	return nil, models.NewError(models.KindEmbeddingUnavailable, "embed", "down", errors.New("connection refused"))
}

type testEnv struct {
	idx      *Indexer
	store    *vector.Store
	catalog  *storage.SQLiteCatalog
	passages *keyword.PassageIndex
}

func newTestEnv(t *testing.T, embedder embedding.Embedder) *testEnv {
	t.Helper()
	dir := t.TempDir()
	chunker, err := NewChunker(50, 10)
	require.NoError(t, err)
	catalog, err := storage.NewSQLiteCatalog(filepath.Join(dir, "catalog.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = catalog.Close() })
	passages, err := keyword.OpenPassageIndex(filepath.Join(dir, "passages"), zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = passages.Close() })
	store := vector.NewStore(filepath.Join(dir, "index"))

	idx := NewIndexer(chunker, embedder, store,
		WithCatalog(catalog),
		WithPassages(passages),
		WithBatch(2, 2),
		WithLogger(zap.NewNop()),
	)
	return &testEnv{idx: idx, store: store, catalog: catalog, passages: passages}
}

func vincentDocs() []models.Document {
	return []models.Document{
		{ID: "doc-chatbot", Source: "chatbot.txt", Text: "Vincent built a chatbot using Python and OpenRouter."},
		{ID: "doc-backend", Source: "backend.txt", Text: "Vincent is a backend engineer who designs scalable backend systems."},
	}
}

func TestIndexer_Ingest(t *testing.T) {
	env := newTestEnv(t, embedding.NewNgramEmbedder(128))
	ctx := context.Background()

	report, err := env.idx.Ingest(ctx, vincentDocs())
	require.NoError(t, err)
	assert.NotEmpty(t, report.BuildID)
	assert.Equal(t, 2, report.Documents)
	assert.Equal(t, 128, report.Dimensions)
	assert.Equal(t, "ngram-v1-128", report.ModelID)
	assert.Empty(t, report.Warnings)

	manifest, ok := env.store.Manifest()
	require.True(t, ok)
	assert.Equal(t, report.Chunks, manifest.Count)
	assert.Equal(t, report.BuildID, manifest.BuildID)

	nDocs, err := env.catalog.CountDocuments(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 2, nDocs)
	nChunks, err := env.catalog.CountChunks(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, report.Chunks, nChunks)

	build, err := env.catalog.LatestBuild(ctx)
	require.NoError(t, err)
	require.NotNil(t, build)
	assert.Equal(t, storage.BuildSucceeded, build.Status)
	assert.Equal(t, report.Chunks, build.Chunks)

	hits, err := env.passages.Search(ctx, "chatbot", 5, nil)
	require.NoError(t, err)
	require.NotEmpty(t, hits)
	assert.Equal(t, "chatbot.txt", hits[0].Source)
}

func TestIndexer_IngestIsIdempotent(t *testing.T) {
	env := newTestEnv(t, embedding.NewNgramEmbedder(64))
	ctx := context.Background()

	_, err := env.idx.Ingest(ctx, vincentDocs())
	require.NoError(t, err)
	first, err := env.store.Snapshot()
	require.NoError(t, err)

	_, err = env.idx.Ingest(ctx, vincentDocs())
	require.NoError(t, err)
	second, err := env.store.Snapshot()
	require.NoError(t, err)

	assert.Equal(t, first.Entries(), second.Entries())
}

func TestIndexer_IngestEmptyCorpus(t *testing.T) {
	env := newTestEnv(t, embedding.NewNgramEmbedder(32))
	report, err := env.idx.Ingest(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, 0, report.Chunks)

	snap, err := env.store.Snapshot()
	require.NoError(t, err)
	assert.Equal(t, 0, snap.Len())
}

func TestIndexer_EmbeddingFailureKeepsPreviousIndex(t *testing.T) {
	ngram := embedding.NewNgramEmbedder(32)
	env := newTestEnv(t, ngram)
	ctx := context.Background()
	_, err := env.idx.Ingest(ctx, vincentDocs())
	require.NoError(t, err)
	before, _ := env.store.Manifest()

	env.idx.embedder = failingEmbedder{NgramEmbedder: ngram}
	_, err = env.idx.Ingest(ctx, []models.Document{{ID: "x", Source: "x.txt", Text: "something new"}})
	require.Error(t, err)
	assert.ErrorIs(t, err, models.ErrEmbeddingUnavailable)

	after, ok := env.store.Manifest()
	require.True(t, ok)
	assert.Equal(t, before, after)

	build, err := env.catalog.LatestBuild(ctx)
	require.NoError(t, err)
	assert.Equal(t, storage.BuildFailed, build.Status)
	assert.Contains(t, build.Error, "connection refused")
}

func TestIndexer_CatalogFailureIsWarning(t *testing.T) {
	env := newTestEnv(t, embedding.NewNgramEmbedder(32))
	require.NoError(t, env.catalog.Close())

	report, err := env.idx.Ingest(context.Background(), vincentDocs())
	require.NoError(t, err)
	assert.NotEmpty(t, report.Warnings)
	assert.True(t, env.store.Loaded())
}

func TestIndexer_IngestSources(t *testing.T) {
	dir := t.TempDir()
	a := filepath.Join(dir, "cv_text.txt")
	b := filepath.Join(dir, "github_data.txt")
	require.NoError(t, os.WriteFile(a, []byte("Vincent, backend engineer."), 0600))
	require.NoError(t, os.WriteFile(b, []byte("Repositories: vincentbot"), 0600))

	env := newTestEnv(t, embedding.NewNgramEmbedder(32))
	WithLoader(loader.NewLoader(nil), true)(env.idx)
	report, err := env.idx.IngestSources(context.Background(), []string{a, b})
	require.NoError(t, err)
	assert.Equal(t, 1, report.Documents)

	WithLoader(loader.NewLoader(nil), false)(env.idx)
	report, err = env.idx.IngestSources(context.Background(), []string{a, b})
	require.NoError(t, err)
	assert.Equal(t, 2, report.Documents)
}

func TestIndexer_IngestSourcesWithoutLoader(t *testing.T) {
	env := newTestEnv(t, embedding.NewNgramEmbedder(32))
	_, err := env.idx.IngestSources(context.Background(), []string{"x"})
	assert.ErrorIs(t, err, models.ErrInvalidConfiguration)
}
