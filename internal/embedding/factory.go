package embedding

import (
	"fmt"

	"github.com/hyperjump/vincentbot/internal/config"
	"github.com/hyperjump/vincentbot/internal/models"
	"github.com/hyperjump/vincentbot/pkg/utils"
	"go.uber.org/zap"
)

// FactoryOption configures New.
type FactoryOption func(*factoryOptions)

type factoryOptions struct {
	logger        *zap.Logger
	cacheDir      string
	skipPersisted bool
}

// WithLogger sets the logger used by the caches.
func WithLogger(l *zap.Logger) FactoryOption {
	return func(o *factoryOptions) { o.logger = l }
}

// WithCacheDir sets the persistent cache directory.
func WithCacheDir(dir string) FactoryOption {
	return func(o *factoryOptions) { o.cacheDir = dir }
}

// WithoutPersistentCache disables the on-disk cache regardless of config.
func WithoutPersistentCache() FactoryOption {
	return func(o *factoryOptions) { o.skipPersisted = true }
}

// New builds the configured provider wrapped in the embedding caches.
func New(cfg config.EmbeddingConfig, opts ...FactoryOption) (Embedder, error) {
	o := factoryOptions{}
	for _, opt := range opts {
		opt(&o)
	}
	logger := utils.OrNop(o.logger)

	base, err := newProvider(cfg)
	if err != nil {
		return nil, err
	}
	logger.Debug("embedder ready",
		zap.String("provider", cfg.Provider),
		zap.String("model_id", base.ModelID()),
		zap.Int("dimensions", base.Dimensions()))

	if cfg.Provider == config.ProviderNgram {
		return base, nil
	}
	cacheOpts := []CachedOption{WithCacheLogger(logger)}
	var pc *PersistentCache
	if cfg.PersistentCacheOrDefault() && !o.skipPersisted && o.cacheDir != "" {
		pc, err = OpenPersistentCache(o.cacheDir, logger)
		if err != nil {
			logger.Warn("persistent embedding cache disabled", zap.Error(err))
			pc = nil
		} else {
			cacheOpts = append(cacheOpts, WithPersistentCache(pc))
		}
	}
	cached, err := NewCachedEmbedder(base, cfg.CacheSize, cacheOpts...)
	if err != nil {
		if pc != nil {
			_ = pc.Close()
		}
		_ = base.Close()
		return nil, err
	}
	return cached, nil
}

func newProvider(cfg config.EmbeddingConfig) (Embedder, error) {
	switch cfg.Provider {
	case config.ProviderNgram, "":
		return NewNgramEmbedder(cfg.Dimensions), nil
	case config.ProviderOpenAI:
		e, err := NewOpenAIEmbedder(OpenAIOptions{
			APIKey:     cfg.APIKey(),
			BaseURL:    cfg.BaseURL,
			Model:      cfg.Model,
			Dimensions: cfg.Dimensions,
			Timeout:    cfg.Timeout,
		})
		if err != nil {
			return nil, err
		}
		return e, nil
	case config.ProviderLangchain:
		e, err := NewLangchainEmbedder(LangchainOptions{
			BaseURL:    cfg.BaseURL,
			Model:      cfg.Model,
			APIKey:     cfg.APIKey(),
			Dimensions: cfg.Dimensions,
			BatchSize:  cfg.BatchSize,
			Timeout:    cfg.Timeout,
		})
		if err != nil {
			return nil, err
		}
		return e, nil
	case config.ProviderONNX:
		e, err := NewONNXEmbedder(cfg.ModelPath, cfg.Dimensions, cfg.MaxTokens)
		if err != nil {
			return nil, err
		}
		return e, nil
	default:
		return nil, models.NewError(models.KindInvalidConfiguration, "embedding",
			fmt.Sprintf("unknown provider %q", cfg.Provider), nil)
	}
}
