// Package generation produces answers from assembled prompts through an
// OpenAI-compatible chat completions API.
package generation

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/hyperjump/vincentbot/internal/models"
	"github.com/hyperjump/vincentbot/pkg/utils"
	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"
)

// DefaultBaseURL is OpenRouter's OpenAI-compatible endpoint.
const DefaultBaseURL = "https://openrouter.ai/api/v1"

// Generator turns a prompt into an answer.
type Generator interface {
	Generate(ctx context.Context, p models.Prompt) (*models.Answer, error)
}

// Options configures an OpenAIGenerator.
type Options struct {
	APIKey      string
	BaseURL     string
	Model       string
	Timeout     time.Duration
	Temperature float32
	MaxTokens   int
	HTTPClient  *http.Client
	Logger      *zap.Logger
}

// OpenAIGenerator calls chat completions on OpenRouter or any compatible server.
type OpenAIGenerator struct {
	client *openai.Client
	opts   Options
	logger *zap.Logger
}

// NewOpenAIGenerator creates a generator. The API key is required.
func NewOpenAIGenerator(opts Options) (*OpenAIGenerator, error) {
	if opts.APIKey == "" {
		return nil, models.NewError(models.KindInvalidConfiguration, "generation", "API key not set", nil)
	}
	if opts.Model == "" {
		return nil, models.NewError(models.KindInvalidConfiguration, "generation", "model not set", nil)
	}
	if opts.BaseURL == "" {
		opts.BaseURL = DefaultBaseURL
	}
	cfg := openai.DefaultConfig(opts.APIKey)
	cfg.BaseURL = opts.BaseURL
	if opts.HTTPClient != nil {
		cfg.HTTPClient = opts.HTTPClient
	}
	return &OpenAIGenerator{
		client: openai.NewClientWithConfig(cfg),
		opts:   opts,
		logger: utils.OrNop(opts.Logger),
	}, nil
}

// Model returns the configured model name.
func (g *OpenAIGenerator) Model() string { return g.opts.Model }

// Generate sends the prompt's messages and returns the first choice, trimmed.
func (g *OpenAIGenerator) Generate(ctx context.Context, p models.Prompt) (*models.Answer, error) {
	if g.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.opts.Timeout)
		defer cancel()
	}

	msgs := make([]openai.ChatCompletionMessage, len(p.Messages))
	for i, m := range p.Messages {
		msgs[i] = openai.ChatCompletionMessage{Role: m.Role, Content: m.Content}
	}
	req := openai.ChatCompletionRequest{
		Model:       g.opts.Model,
		Messages:    msgs,
		Temperature: g.opts.Temperature,
		MaxTokens:   g.opts.MaxTokens,
	}

	start := time.Now()
	resp, err := g.client.CreateChatCompletion(ctx, req)
	if err != nil {
		cerr := classify(ctx, err)
		g.logger.Warn("generation failed",
			zap.String("model", g.opts.Model),
			zap.Duration("took", time.Since(start)),
			zap.Error(cerr))
		return nil, cerr
	}
	if len(resp.Choices) == 0 {
		return nil, models.NewError(models.KindGenerationMalformed, "generate", "response has no choices", nil)
	}
	text := strings.TrimSpace(resp.Choices[0].Message.Content)
	if text == "" {
		return nil, models.NewError(models.KindGenerationMalformed, "generate", "response content is empty", nil)
	}

	model := resp.Model
	if model == "" {
		model = g.opts.Model
	}
	took := time.Since(start)
	g.logger.Debug("generated",
		zap.String("model", model),
		zap.Int("prompt_chars", p.Chars),
		zap.Int("answer_chars", len(text)),
		zap.Duration("took", took))
	return &models.Answer{Text: text, Model: model, DroppedChunks: p.DroppedChunks, Took: took}, nil
}

// classify maps a client error to a typed generation failure.
func classify(ctx context.Context, err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return models.NewTimeoutError(models.KindGenerationUnavailable, "generate", err)
	}
	if errors.Is(err, context.Canceled) {
		e := models.NewError(models.KindGenerationUnavailable, "generate", "cancelled", err)
		e.Transient = false
		return e
	}

	status := 0
	var apiErr *openai.APIError
	var reqErr *openai.RequestError
	switch {
	case errors.As(err, &apiErr):
		status = apiErr.HTTPStatusCode
	case errors.As(err, &reqErr):
		status = reqErr.HTTPStatusCode
	}
	if status == 0 {
		var syntaxErr *json.SyntaxError
		var typeErr *json.UnmarshalTypeError
		if errors.As(err, &syntaxErr) || errors.As(err, &typeErr) || errors.Is(err, io.ErrUnexpectedEOF) {
			return models.NewError(models.KindGenerationMalformed, "generate", "undecodable response", err)
		}
		return models.NewError(models.KindGenerationUnavailable, "generate", "transport error", err)
	}

	e := models.NewError(models.KindGenerationUnavailable, "generate", "upstream error", err)
	e.StatusCode = status
	e.Transient = status == http.StatusRequestTimeout || status == http.StatusTooManyRequests || status >= 500
	return e
}
