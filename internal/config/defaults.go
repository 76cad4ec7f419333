package config

import "time"

// DefaultPersona is the fixed instruction placed before the retrieved context.
const DefaultPersona = "You are Vincent Bot, an assistant that answers questions about Vincent's " +
	"background, experience and projects. Answer using only the provided context when possible. " +
	"If the context does not contain the answer, say that you do not know."

// Embedding providers.
const (
	ProviderNgram     = "ngram"
	ProviderOpenAI    = "openai"
	ProviderLangchain = "langchain"
	ProviderONNX      = "onnx"
)

// ApplyDefaults sets default values for any zero values in cfg.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "127.0.0.1"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8000
	}
	if cfg.Server.RequestTimeout == 0 {
		cfg.Server.RequestTimeout = 60 * time.Second
	}
	if cfg.Storage.IndexDir == "" {
		cfg.Storage.IndexDir = "./data/index"
	}
	if cfg.Storage.DatabasePath == "" {
		cfg.Storage.DatabasePath = "./data/catalog.db"
	}
	if cfg.Storage.PassagesPath == "" {
		cfg.Storage.PassagesPath = "./data/passages"
	}
	if cfg.Storage.EmbeddingCacheDir == "" {
		cfg.Storage.EmbeddingCacheDir = "./data/embedding-cache"
	}
	if cfg.Sources.Paths == nil {
		cfg.Sources.Paths = []string{"./profile_docs"}
	}
	if cfg.Sources.Extensions == nil {
		cfg.Sources.Extensions = []string{".txt", ".md", ".rst", ".pdf", ".docx", ".html", ".htm"}
	}
	if cfg.Chunking.MaxChunkSize == 0 {
		cfg.Chunking.MaxChunkSize = 1000
	}
	if cfg.Chunking.OverlapSize == nil {
		overlap := 200
		cfg.Chunking.OverlapSize = &overlap
	}
	applyEmbeddingDefaults(&cfg.Embedding)
	applyGenerationDefaults(&cfg.Generation)
	if cfg.Retrieval.K == 0 {
		cfg.Retrieval.K = 5
	}
	if cfg.Watch.Debounce == 0 {
		cfg.Watch.Debounce = 400 * time.Millisecond
	}
}

func applyEmbeddingDefaults(e *EmbeddingConfig) {
	if e.Provider == "" {
		e.Provider = ProviderNgram
	}
	switch e.Provider {
	case ProviderNgram:
		if e.Dimensions == 0 {
			e.Dimensions = 512
		}
	case ProviderOpenAI:
		if e.Model == "" {
			e.Model = "text-embedding-3-small"
		}
		if e.APIKeyEnv == "" {
			e.APIKeyEnv = "OPENAI_API_KEY"
		}
	case ProviderLangchain:
		if e.Model == "" {
			e.Model = "all-minilm"
		}
		if e.BaseURL == "" {
			e.BaseURL = "http://localhost:11434/v1"
		}
	case ProviderONNX:
		if e.ModelPath == "" {
			e.ModelPath = "./data/models/all-MiniLM-L6-v2.onnx"
		}
		if e.Dimensions == 0 {
			e.Dimensions = 384
		}
	}
	if e.MaxTokens == 0 {
		e.MaxTokens = 256
	}
	if e.BatchSize == 0 {
		e.BatchSize = 32
	}
	if e.Workers == 0 {
		e.Workers = 4
	}
	if e.CacheSize == 0 {
		e.CacheSize = 10000
	}
	if e.Timeout == 0 {
		e.Timeout = 30 * time.Second
	}
}

func applyGenerationDefaults(g *GenerationConfig) {
	if g.Model == "" {
		g.Model = "mistralai/mistral-7b-instruct"
	}
	if g.BaseURL == "" {
		g.BaseURL = "https://openrouter.ai/api/v1"
	}
	if g.APIKeyEnv == "" {
		g.APIKeyEnv = "OPENROUTER_API_KEY"
	}
	if g.Timeout == 0 {
		g.Timeout = 30 * time.Second
	}
	if g.MaxAttempts == 0 {
		g.MaxAttempts = 1
	}
	if g.RetryBaseDelay == 0 {
		g.RetryBaseDelay = 500 * time.Millisecond
	}
	if g.Temperature == 0 {
		g.Temperature = 0.2
	}
	if g.MaxTokens == 0 {
		g.MaxTokens = 512
	}
	if g.MaxInputChars == 0 {
		g.MaxInputChars = 12000
	}
	if g.Persona == "" {
		g.Persona = DefaultPersona
	}
}
