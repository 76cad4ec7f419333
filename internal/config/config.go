// Package config provides configuration loading and structs for the vincentbot service.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the application.
type Config struct {
	Debug      bool             `yaml:"debug"`
	Server     ServerConfig     `yaml:"server"`
	Storage    StorageConfig    `yaml:"storage"`
	Sources    SourcesConfig    `yaml:"sources"`
	Chunking   ChunkingConfig   `yaml:"chunking"`
	Embedding  EmbeddingConfig  `yaml:"embedding"`
	Generation GenerationConfig `yaml:"generation"`
	Retrieval  RetrievalConfig  `yaml:"retrieval"`
	Watch      WatchConfig      `yaml:"watch"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host           string        `yaml:"host"`
	Port           int           `yaml:"port"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
}

// Addr returns host:port.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// StorageConfig holds paths for the persisted index and its companions.
type StorageConfig struct {
	IndexDir          string `yaml:"index_dir"`
	DatabasePath      string `yaml:"database_path"`
	PassagesPath      string `yaml:"passages_path"`
	EmbeddingCacheDir string `yaml:"embedding_cache_dir"`
}

// SourcesConfig lists the raw text sources to ingest.
type SourcesConfig struct {
	Paths      []string `yaml:"paths"`
	Extensions []string `yaml:"extensions"`
	// Combine joins all sources into one document separated by a blank line.
	Combine *bool `yaml:"combine"`
}

// CombineOrDefault returns whether sources are combined; defaults to true when unset.
func (s *SourcesConfig) CombineOrDefault() bool {
	if s.Combine != nil {
		return *s.Combine
	}
	return true
}

// ChunkingConfig holds chunk sizing, in characters.
type ChunkingConfig struct {
	MaxChunkSize int  `yaml:"max_chunk_size"`
	OverlapSize  *int `yaml:"overlap_size"`
}

// Overlap returns the overlap size; zero when unset.
func (c ChunkingConfig) Overlap() int {
	if c.OverlapSize != nil {
		return *c.OverlapSize
	}
	return 0
}

// EmbeddingConfig selects and tunes the embedding provider.
type EmbeddingConfig struct {
	Provider        string        `yaml:"provider"`
	Model           string        `yaml:"model"`
	BaseURL         string        `yaml:"base_url"`
	APIKeyEnv       string        `yaml:"api_key_env"`
	Dimensions      int           `yaml:"dimensions"`
	MaxTokens       int           `yaml:"max_tokens"`
	ModelPath       string        `yaml:"model_path"`
	BatchSize       int           `yaml:"batch_size"`
	Workers         int           `yaml:"workers"`
	CacheSize       int           `yaml:"cache_size"`
	PersistentCache *bool         `yaml:"persistent_cache"`
	Timeout         time.Duration `yaml:"timeout"`
}

// APIKey returns the embedding credential from the environment.
func (e EmbeddingConfig) APIKey() string {
	return os.Getenv(e.APIKeyEnv)
}

// PersistentCacheOrDefault returns whether the on-disk embedding cache is used; defaults to true.
func (e EmbeddingConfig) PersistentCacheOrDefault() bool {
	if e.PersistentCache != nil {
		return *e.PersistentCache
	}
	return true
}

// GenerationConfig holds the chat completion settings.
type GenerationConfig struct {
	Model          string        `yaml:"model"`
	BaseURL        string        `yaml:"base_url"`
	APIKeyEnv      string        `yaml:"api_key_env"`
	Timeout        time.Duration `yaml:"timeout"`
	MaxAttempts    int           `yaml:"max_attempts"`
	RetryBaseDelay time.Duration `yaml:"retry_base_delay"`
	Temperature    float32       `yaml:"temperature"`
	MaxTokens      int           `yaml:"max_tokens"`
	MaxInputChars  int           `yaml:"max_input_chars"`
	Persona        string        `yaml:"persona"`
}

// APIKey returns the generation credential from the environment.
func (g GenerationConfig) APIKey() string {
	return os.Getenv(g.APIKeyEnv)
}

// RetrievalConfig holds retrieval settings.
type RetrievalConfig struct {
	K int `yaml:"k"`
}

// WatchConfig holds source watch settings.
type WatchConfig struct {
	Enabled  bool          `yaml:"enabled"`
	Debounce time.Duration `yaml:"debounce"`
}

// Load reads and parses the config file at path, applies defaults and environment
// overrides, and expands paths. Returns an error if the file cannot be read or parsed.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := finish(&cfg, filepath.Dir(path)); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Default returns the default configuration with environment overrides applied.
// Relative paths resolve against baseDir.
func Default(baseDir string) (*Config, error) {
	var cfg Config
	if err := finish(&cfg, baseDir); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func finish(cfg *Config, baseDir string) error {
	if err := ApplyEnv(cfg); err != nil {
		return err
	}
	ApplyDefaults(cfg)
	cfg.Storage.IndexDir = expandPath(cfg.Storage.IndexDir, baseDir)
	cfg.Storage.DatabasePath = expandPath(cfg.Storage.DatabasePath, baseDir)
	cfg.Storage.PassagesPath = expandPath(cfg.Storage.PassagesPath, baseDir)
	cfg.Storage.EmbeddingCacheDir = expandPath(cfg.Storage.EmbeddingCacheDir, baseDir)
	if cfg.Embedding.ModelPath != "" {
		cfg.Embedding.ModelPath = expandPath(cfg.Embedding.ModelPath, baseDir)
	}
	for i := range cfg.Sources.Paths {
		cfg.Sources.Paths[i] = expandPath(cfg.Sources.Paths[i], baseDir)
	}
	return nil
}

// expandPath converts a path to absolute. Paths starting with "./" are relative to baseDir;
// paths starting with "~/" are relative to the home directory.
func expandPath(path string, baseDir string) string {
	if path == "" || filepath.IsAbs(path) {
		return path
	}
	if strings.HasPrefix(path, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, path[2:])
		}
		return path
	}
	return filepath.Join(baseDir, path)
}
