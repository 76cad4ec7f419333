package embedding

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/hyperjump/vincentbot/internal/models"
	"github.com/hyperjump/vincentbot/pkg/utils"
	openai "github.com/sashabaranov/go-openai"
)

// OpenAIEmbedder calls an OpenAI-compatible /embeddings endpoint.
type OpenAIEmbedder struct {
	client     *openai.Client
	model      string
	dimensions int
	timeout    time.Duration
}

// OpenAIOptions configures NewOpenAIEmbedder.
type OpenAIOptions struct {
	APIKey  string
	BaseURL string
	Model   string
	// Dimensions is requested from models that support shortening; zero keeps the
	// model's native size.
	Dimensions int
	Timeout    time.Duration
}

// NewOpenAIEmbedder creates an embedder for the hosted OpenAI embeddings API or any
// compatible server.
func NewOpenAIEmbedder(opts OpenAIOptions) (*OpenAIEmbedder, error) {
	if opts.APIKey == "" {
		return nil, models.NewError(models.KindInvalidConfiguration, "embedding.openai", "API key not set", nil)
	}
	if opts.Model == "" {
		return nil, models.NewError(models.KindInvalidConfiguration, "embedding.openai", "model not set", nil)
	}
	cfg := openai.DefaultConfig(opts.APIKey)
	if opts.BaseURL != "" {
		cfg.BaseURL = opts.BaseURL
	}
	dims := opts.Dimensions
	if dims == 0 {
		dims = nativeDimensions(opts.Model)
	}
	return &OpenAIEmbedder{
		client:     openai.NewClientWithConfig(cfg),
		model:      opts.Model,
		dimensions: dims,
		timeout:    opts.Timeout,
	}, nil
}

func nativeDimensions(model string) int {
	switch model {
	case "text-embedding-3-large":
		return 3072
	default:
		return 1536
	}
}

// Embed embeds a single text.
func (e *OpenAIEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vecs, err := e.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// EmbedBatch embeds texts in one request and returns vectors in input order.
func (e *OpenAIEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	if e.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}

	req := openai.EmbeddingRequest{
		Input: texts,
		Model: openai.EmbeddingModel(e.model),
	}
	if e.dimensions != nativeDimensions(e.model) {
		req.Dimensions = e.dimensions
	}
	resp, err := e.client.CreateEmbeddings(ctx, req)
	if err != nil {
		return nil, unavailable("embedding.openai", err)
	}
	if len(resp.Data) != len(texts) {
		return nil, models.NewError(models.KindEmbeddingUnavailable, "embedding.openai",
			fmt.Sprintf("got %d embeddings for %d inputs", len(resp.Data), len(texts)), nil)
	}

	data := resp.Data
	sort.SliceStable(data, func(i, j int) bool { return data[i].Index < data[j].Index })
	out := make([][]float32, len(data))
	for i, d := range data {
		v := make([]float32, len(d.Embedding))
		for j := range d.Embedding {
			v[j] = float32(d.Embedding[j])
		}
		utils.NormalizeL2(v)
		out[i] = v
	}
	return out, nil
}

// Dimensions returns the configured or native vector size.
func (e *OpenAIEmbedder) Dimensions() int { return e.dimensions }

// ModelID returns "openai-<model>-<dims>".
func (e *OpenAIEmbedder) ModelID() string { return fmt.Sprintf("openai-%s-%d", e.model, e.dimensions) }

// Close is a no-op.
func (e *OpenAIEmbedder) Close() error { return nil }
