package config

import (
	"fmt"

	"github.com/hyperjump/vincentbot/internal/models"
)

// MaxGenerationAttempts caps generation retries.
const MaxGenerationAttempts = 3

// Validate checks values that would make the pipeline misbehave.
// Every failure is an InvalidConfiguration error.
func Validate(cfg *Config) error {
	invalid := func(format string, args ...any) error {
		return models.NewError(models.KindInvalidConfiguration, "config.validate", fmt.Sprintf(format, args...), nil)
	}
	maxSize, overlap := cfg.Chunking.MaxChunkSize, cfg.Chunking.Overlap()
	if maxSize <= 0 {
		return invalid("max_chunk_size must be positive, got %d", maxSize)
	}
	if overlap < 0 || overlap >= maxSize {
		return invalid("overlap_size must be in [0, %d), got %d", maxSize, overlap)
	}
	if cfg.Retrieval.K <= 0 {
		return invalid("retrieval k must be positive, got %d", cfg.Retrieval.K)
	}
	switch cfg.Embedding.Provider {
	case ProviderNgram, ProviderOpenAI, ProviderLangchain, ProviderONNX:
	default:
		return invalid("unknown embedding provider %q", cfg.Embedding.Provider)
	}
	if cfg.Embedding.Dimensions < 0 {
		return invalid("embedding dimensions must not be negative, got %d", cfg.Embedding.Dimensions)
	}
	if cfg.Embedding.Timeout <= 0 || cfg.Generation.Timeout <= 0 {
		return invalid("timeouts must be positive")
	}
	if a := cfg.Generation.MaxAttempts; a < 1 || a > MaxGenerationAttempts {
		return invalid("generation max_attempts must be in [1, %d], got %d", MaxGenerationAttempts, a)
	}
	if cfg.Generation.MaxInputChars <= 0 {
		return invalid("generation max_input_chars must be positive, got %d", cfg.Generation.MaxInputChars)
	}
	return nil
}

// RequireGenerationKey fails when the generation credential is not set in the environment.
func RequireGenerationKey(cfg *Config) error {
	if cfg.Generation.APIKey() == "" {
		return models.NewError(models.KindInvalidConfiguration, "config.validate",
			fmt.Sprintf("environment variable %s is not set", cfg.Generation.APIKeyEnv), nil)
	}
	return nil
}
