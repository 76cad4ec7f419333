package generation

import (
	"github.com/hyperjump/vincentbot/internal/config"
	"go.uber.org/zap"
)

// New builds the configured generator, wrapped in retries when max_attempts > 1.
func New(cfg config.GenerationConfig, logger *zap.Logger) (Generator, error) {
	g, err := NewOpenAIGenerator(Options{
		APIKey:      cfg.APIKey(),
		BaseURL:     cfg.BaseURL,
		Model:       cfg.Model,
		Timeout:     cfg.Timeout,
		Temperature: cfg.Temperature,
		MaxTokens:   cfg.MaxTokens,
		Logger:      logger,
	})
	if err != nil {
		return nil, err
	}
	if cfg.MaxAttempts <= 1 {
		return g, nil
	}
	return WithRetry(g, cfg.MaxAttempts, cfg.RetryBaseDelay, logger), nil
}
