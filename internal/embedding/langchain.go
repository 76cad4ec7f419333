package embedding

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/hyperjump/vincentbot/internal/models"
	"github.com/hyperjump/vincentbot/pkg/utils"
	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms/openai"
)

// LangchainEmbedder embeds through langchaingo against a local OpenAI-compatible
// server such as Ollama or LM Studio.
type LangchainEmbedder struct {
	embedder   embeddings.Embedder
	model      string
	dimensions atomic.Int64
	timeout    time.Duration
}

// LangchainOptions configures NewLangchainEmbedder.
type LangchainOptions struct {
	BaseURL string
	Model   string
	// APIKey may be empty for local servers that do not check it.
	APIKey string
	// Dimensions is the expected vector size; zero learns it from the first response.
	Dimensions int
	BatchSize  int
	Timeout    time.Duration
}

// NewLangchainEmbedder creates a langchaingo-backed embedder.
func NewLangchainEmbedder(opts LangchainOptions) (*LangchainEmbedder, error) {
	if opts.BaseURL == "" || opts.Model == "" {
		return nil, models.NewError(models.KindInvalidConfiguration, "embedding.langchain",
			"base_url and model are required", nil)
	}
	token := opts.APIKey
	if token == "" {
		token = "none"
	}
	client, err := openai.New(
		openai.WithBaseURL(opts.BaseURL),
		openai.WithToken(token),
		openai.WithEmbeddingModel(opts.Model),
	)
	if err != nil {
		return nil, models.NewError(models.KindInvalidConfiguration, "embedding.langchain", "create client", err)
	}
	embOpts := []embeddings.Option{embeddings.WithStripNewLines(true)}
	if opts.BatchSize > 0 {
		embOpts = append(embOpts, embeddings.WithBatchSize(opts.BatchSize))
	}
	emb, err := embeddings.NewEmbedder(client, embOpts...)
	if err != nil {
		return nil, models.NewError(models.KindInvalidConfiguration, "embedding.langchain", "create embedder", err)
	}
	e := &LangchainEmbedder{embedder: emb, model: opts.Model, timeout: opts.Timeout}
	e.dimensions.Store(int64(opts.Dimensions))
	return e, nil
}

// Embed embeds a single text.
func (e *LangchainEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vecs, err := e.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// EmbedBatch embeds texts in order.
func (e *LangchainEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	if e.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}
	vecs, err := e.embedder.EmbedDocuments(ctx, texts)
	if err != nil {
		return nil, unavailable("embedding.langchain", err)
	}
	if len(vecs) != len(texts) {
		return nil, models.NewError(models.KindEmbeddingUnavailable, "embedding.langchain",
			fmt.Sprintf("got %d embeddings for %d inputs", len(vecs), len(texts)), nil)
	}
	want := int(e.dimensions.Load())
	for _, v := range vecs {
		if want == 0 {
			want = len(v)
			e.dimensions.CompareAndSwap(0, int64(want))
		}
		if len(v) != want {
			return nil, models.NewError(models.KindEmbeddingUnavailable, "embedding.langchain",
				fmt.Sprintf("got %d dimensions, want %d", len(v), want), nil)
		}
		utils.NormalizeL2(v)
	}
	return vecs, nil
}

// Dimensions returns the vector size, or zero before the first response when it was
// not configured.
func (e *LangchainEmbedder) Dimensions() int { return int(e.dimensions.Load()) }

// ModelID returns "langchain-<model>".
func (e *LangchainEmbedder) ModelID() string { return "langchain-" + e.model }

// Close is a no-op.
func (e *LangchainEmbedder) Close() error { return nil }
