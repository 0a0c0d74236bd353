package embeddings

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/policyrag/internal/config"
)

var (
	// ErrEmptyInput indicates empty or nil input texts
	ErrEmptyInput = errors.New("empty or nil input texts")

	// ErrInvalidConfig indicates invalid configuration
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrEmbeddingFailed indicates embedding generation failure
	ErrEmbeddingFailed = errors.New("embedding generation failed")
)

// Provider names accepted by NewProvider.
const (
	ProviderTransformers = "transformers"
	ProviderFastEmbed    = "fastembed"
	ProviderOpenAI       = "openai"
)

// Provider generates embeddings.
type Provider interface {
	// EmbedDocuments returns one vector per text, in input order.
	EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error)
	// EmbedQuery returns the vector for a search query.
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
	// Dimension returns the embedding dimension for the current model.
	Dimension() int
	// Close releases resources held by the provider.
	Close() error
}

// knownDimensions lists output sizes of models we ship defaults for.
var knownDimensions = map[string]int{
	"sentence-transformers-multi-qa-MiniLM-L6-cos-v1": 384,
	"sentence-transformers/all-MiniLM-L6-v2":          384,
	"BAAI/bge-small-en-v1.5":                          384,
	"BAAI/bge-small-en":                               384,
	"BAAI/bge-base-en-v1.5":                           768,
	"BAAI/bge-base-en":                                768,
	"BAAI/bge-small-zh-v1.5":                          512,
	"text-embedding-3-small":                          1536,
	"text-embedding-3-large":                          3072,
	"text-embedding-ada-002":                          1536,
}

// detectDimensionFromModel returns the embedding dimension for a model name.
// Falls back to 384, the size of the default transformers model.
func detectDimensionFromModel(model string) int {
	if dim, ok := knownDimensions[model]; ok {
		return dim
	}
	lower := strings.ToLower(model)
	switch {
	case strings.Contains(lower, "large"):
		return 1024
	case strings.Contains(lower, "base"):
		return 768
	default:
		return 384
	}
}

// NewProvider creates the embedding provider selected by cfg.Provider.
func NewProvider(cfg config.EmbeddingsConfig, logger *zap.Logger) (Provider, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	var (
		p   Provider
		err error
	)
	switch cfg.Provider {
	case ProviderTransformers, "":
		p, err = NewService(Config{
			BaseURL:    cfg.BaseURL,
			Model:      cfg.Model,
			Timeout:    cfg.Timeout.Duration(),
			MaxRetries: cfg.MaxRetries,
			RateLimit:  cfg.RateLimit,
		}, logger)
	case ProviderFastEmbed:
		p, err = NewFastEmbedProvider(FastEmbedConfig{
			Model:    cfg.Model,
			CacheDir: cfg.CacheDir,
		})
	case ProviderOpenAI:
		p, err = NewOpenAIProvider(OpenAIConfig{
			APIKey:     cfg.APIKey.Value(),
			BaseURL:    cfg.BaseURL,
			Model:      cfg.Model,
			Timeout:    cfg.Timeout.Duration(),
			MaxRetries: cfg.MaxRetries,
			RateLimit:  cfg.RateLimit,
		}, logger)
	default:
		return nil, fmt.Errorf("%w: unknown provider %q", ErrInvalidConfig, cfg.Provider)
	}
	if err != nil {
		return nil, err
	}

	if cfg.CacheSize > 0 {
		p = NewCached(p, cfg.CacheSize, time.Duration(cfg.CacheTTL))
	}

	logger.Info("embedding provider initialized",
		zap.String("provider", cfg.Provider),
		zap.String("model", cfg.Model),
		zap.Int("dimension", p.Dimension()),
		zap.Int("cache_size", cfg.CacheSize),
	)
	return p, nil
}
