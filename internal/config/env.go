package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/hyperjump/vincentbot/internal/models"
)

// EnvPrefix is the prefix of every environment override.
const EnvPrefix = "VINCENTBOT_"

// ApplyEnv overrides cfg with VINCENTBOT_* environment variables that are set.
// Numeric variables that do not parse fail with InvalidConfiguration.
func ApplyEnv(cfg *Config) error {
	strs := []struct {
		name string
		dst  *string
	}{
		{"EMBEDDING_PROVIDER", &cfg.Embedding.Provider},
		{"EMBEDDING_MODEL", &cfg.Embedding.Model},
		{"EMBEDDING_BASE_URL", &cfg.Embedding.BaseURL},
		{"GENERATION_MODEL", &cfg.Generation.Model},
		{"GENERATION_BASE_URL", &cfg.Generation.BaseURL},
		{"INDEX_DIR", &cfg.Storage.IndexDir},
	}
	for _, s := range strs {
		if v, ok := os.LookupEnv(EnvPrefix + s.name); ok && v != "" {
			*s.dst = v
		}
	}

	if v, ok, err := envInt("MAX_CHUNK_SIZE"); err != nil {
		return err
	} else if ok {
		cfg.Chunking.MaxChunkSize = v
	}
	if v, ok, err := envInt("OVERLAP_SIZE"); err != nil {
		return err
	} else if ok {
		cfg.Chunking.OverlapSize = &v
	}
	if v, ok, err := envInt("K"); err != nil {
		return err
	} else if ok {
		cfg.Retrieval.K = v
	}
	if v, ok := os.LookupEnv(EnvPrefix + "DEBUG"); ok && v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return models.NewError(models.KindInvalidConfiguration, "config.env",
				fmt.Sprintf("%sDEBUG=%q is not a boolean", EnvPrefix, v), err)
		}
		cfg.Debug = b
	}
	return nil
}

func envInt(name string) (int, bool, error) {
	v, ok := os.LookupEnv(EnvPrefix + name)
	if !ok || v == "" {
		return 0, false, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, false, models.NewError(models.KindInvalidConfiguration, "config.env",
			fmt.Sprintf("%s%s=%q is not an integer", EnvPrefix, name, v), err)
	}
	return n, true, nil
}
