// Package config provides configuration loading for policyrag.
//
// Configuration is read from a YAML file and environment variables on top of
// built-in defaults. See Load for precedence and key mapping.
package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/hashicorp/go-multierror"
)

// Config holds the complete policyrag configuration.
type Config struct {
	VectorStore VectorStoreConfig `koanf:"vectorstore"`
	Embeddings  EmbeddingsConfig  `koanf:"embeddings"`
	Segment     SegmentConfig     `koanf:"segment"`
	Search      SearchConfig      `koanf:"search"`
	Ingest      IngestConfig      `koanf:"ingest"`
	Server      ServerConfig      `koanf:"server"`
	Logging     LoggingConfig     `koanf:"logging"`
	Telemetry   TelemetryConfig   `koanf:"telemetry"`
}

// VectorStoreConfig selects and configures the vector store.
type VectorStoreConfig struct {
	// Provider is "qdrant" (exact filter) or "chromem" (post filter).
	Provider string        `koanf:"provider"`
	Qdrant   QdrantConfig  `koanf:"qdrant"`
	Chromem  ChromemConfig `koanf:"chromem"`
}

// QdrantConfig holds Qdrant connection settings.
type QdrantConfig struct {
	Host       string `koanf:"host"`
	Port       int    `koanf:"port"`
	Collection string `koanf:"collection"`
	// VectorSize of 0 uses the embedding provider's dimension.
	VectorSize int    `koanf:"vector_size"`
	UseTLS     bool   `koanf:"use_tls"`
	APIKey     Secret `koanf:"api_key"`
}

// ChromemConfig holds embedded chromem-go settings.
type ChromemConfig struct {
	// Path of the persistence directory. Empty keeps data in memory.
	Path       string `koanf:"path"`
	Collection string `koanf:"collection"`
	Compress   bool   `koanf:"compress"`
}

// EmbeddingsConfig configures the embedding gateway.
type EmbeddingsConfig struct {
	// Provider is "transformers", "fastembed" or "openai".
	Provider string `koanf:"provider"`
	// BaseURL of the transformers inference service or an OpenAI-compatible API.
	BaseURL    string   `koanf:"base_url"`
	Model      string   `koanf:"model"`
	APIKey     Secret   `koanf:"api_key"`
	BatchSize  int      `koanf:"batch_size"`
	Timeout    Duration `koanf:"timeout"`
	MaxRetries int      `koanf:"max_retries"`
	// RateLimit is requests per second to the embedding service; 0 is unlimited.
	RateLimit float64 `koanf:"rate_limit"`
	// CacheSize bounds the query embedding cache; 0 disables it.
	CacheSize int      `koanf:"cache_size"`
	CacheTTL  Duration `koanf:"cache_ttl"`
	// CacheDir is where fastembed keeps downloaded models.
	CacheDir string `koanf:"cache_dir"`
}

// SegmentConfig configures document segmentation.
type SegmentConfig struct {
	ChunkSize int `koanf:"chunk_size"`
}

// SearchConfig configures retrieval.
type SearchConfig struct {
	Limit int `koanf:"limit"`
	// OverFetch multiplies the limit for post-filter backends.
	OverFetch int `koanf:"over_fetch"`
}

// IngestConfig configures document discovery.
type IngestConfig struct {
	DataDir  string   `koanf:"data_dir"`
	Pattern  string   `koanf:"pattern"`
	Watch    bool     `koanf:"watch"`
	Debounce Duration `koanf:"debounce"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host            string        `koanf:"host"`
	Port            int           `koanf:"port"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
}

// Addr returns host:port.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// LoggingConfig configures the zap logger.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

// TelemetryConfig configures OpenTelemetry export. Disabled by default.
type TelemetryConfig struct {
	Enabled  bool   `koanf:"enabled"`
	Endpoint string `koanf:"endpoint"`
	// Protocol is "grpc" or "http/protobuf".
	Protocol      string `koanf:"protocol"`
	Insecure      bool   `koanf:"insecure"`
	TLSSkipVerify bool   `koanf:"tls_skip_verify"`
	ServiceName   string `koanf:"service_name"`
	// SampleRate is the fraction of root traces kept, 0.0-1.0.
	SampleRate      float64  `koanf:"sample_rate"`
	MetricsInterval Duration `koanf:"metrics_interval"`
	ShutdownTimeout Duration `koanf:"shutdown_timeout"`
}

var (
	telemetryProtocols   = []string{"grpc", "http/protobuf"}
	vectorStoreProviders = []string{"qdrant", "chromem"}
	embeddingProviders   = []string{"transformers", "fastembed", "openai"}
	logLevels            = []string{"debug", "info", "warn", "error"}
	logFormats           = []string{"json", "console"}
)

// Default returns the configuration used when nothing is overridden.
func Default() *Config {
	cfg := &Config{}
	applyDefaults(cfg)
	return cfg
}

// applyDefaults sets default values for missing configuration fields.
func applyDefaults(cfg *Config) {
	// Vector store
	if cfg.VectorStore.Provider == "" {
		cfg.VectorStore.Provider = "qdrant"
	}
	if cfg.VectorStore.Qdrant.Host == "" {
		cfg.VectorStore.Qdrant.Host = "localhost"
	}
	if cfg.VectorStore.Qdrant.Port == 0 {
		cfg.VectorStore.Qdrant.Port = 6334
	}
	if cfg.VectorStore.Qdrant.Collection == "" {
		cfg.VectorStore.Qdrant.Collection = "policy_documents"
	}
	if cfg.VectorStore.Chromem.Path == "" {
		cfg.VectorStore.Chromem.Path = "~/.config/policyrag/vectorstore"
	}
	if cfg.VectorStore.Chromem.Collection == "" {
		cfg.VectorStore.Chromem.Collection = "policy_documents"
	}

	// Embeddings
	if cfg.Embeddings.Provider == "" {
		cfg.Embeddings.Provider = "transformers"
	}
	if cfg.Embeddings.BaseURL == "" && cfg.Embeddings.Provider == "transformers" {
		cfg.Embeddings.BaseURL = "http://localhost:8081"
	}
	if cfg.Embeddings.BatchSize == 0 {
		cfg.Embeddings.BatchSize = 10
	}
	if cfg.Embeddings.Timeout == 0 {
		cfg.Embeddings.Timeout = Duration(30 * time.Second)
	}
	if cfg.Embeddings.MaxRetries == 0 {
		cfg.Embeddings.MaxRetries = 3
	}
	if cfg.Embeddings.CacheTTL == 0 {
		cfg.Embeddings.CacheTTL = Duration(10 * time.Minute)
	}

	if cfg.Segment.ChunkSize == 0 {
		cfg.Segment.ChunkSize = 300
	}

	if cfg.Search.Limit == 0 {
		cfg.Search.Limit = 3
	}
	if cfg.Search.OverFetch == 0 {
		cfg.Search.OverFetch = 3
	}

	if cfg.Ingest.DataDir == "" {
		cfg.Ingest.DataDir = "./data"
	}
	if cfg.Ingest.Pattern == "" {
		cfg.Ingest.Pattern = "*.txt"
	}
	if cfg.Ingest.Debounce == 0 {
		cfg.Ingest.Debounce = Duration(500 * time.Millisecond)
	}

	if cfg.Server.Host == "" {
		cfg.Server.Host = "127.0.0.1"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8090
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = 10 * time.Second
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}

	if cfg.Telemetry.Endpoint == "" {
		cfg.Telemetry.Endpoint = "localhost:4317"
	}
	if cfg.Telemetry.Protocol == "" {
		cfg.Telemetry.Protocol = "grpc"
	}
	if cfg.Telemetry.ServiceName == "" {
		cfg.Telemetry.ServiceName = "policyrag"
	}
	if cfg.Telemetry.SampleRate == 0 {
		cfg.Telemetry.SampleRate = 1.0
	}
	if cfg.Telemetry.MetricsInterval == 0 {
		cfg.Telemetry.MetricsInterval = Duration(15 * time.Second)
	}
	if cfg.Telemetry.ShutdownTimeout == 0 {
		cfg.Telemetry.ShutdownTimeout = Duration(5 * time.Second)
	}
}

// Validate validates the configuration. All problems are reported together.
func (c *Config) Validate() error {
	var errs *multierror.Error

	if !oneOf(c.VectorStore.Provider, vectorStoreProviders) {
		errs = multierror.Append(errs, fmt.Errorf("vectorstore.provider %q not one of %v", c.VectorStore.Provider, vectorStoreProviders))
	}
	if c.VectorStore.Qdrant.Port < 1 || c.VectorStore.Qdrant.Port > 65535 {
		errs = multierror.Append(errs, fmt.Errorf("invalid vectorstore.qdrant.port: %d (must be 1-65535)", c.VectorStore.Qdrant.Port))
	}
	if c.VectorStore.Qdrant.VectorSize < 0 {
		errs = multierror.Append(errs, errors.New("vectorstore.qdrant.vector_size must not be negative"))
	}

	if !oneOf(c.Embeddings.Provider, embeddingProviders) {
		errs = multierror.Append(errs, fmt.Errorf("embeddings.provider %q not one of %v", c.Embeddings.Provider, embeddingProviders))
	}
	if c.Embeddings.Provider == "transformers" && c.Embeddings.BaseURL == "" {
		errs = multierror.Append(errs, errors.New("embeddings.base_url required for transformers provider"))
	}
	if c.Embeddings.Provider == "openai" && !c.Embeddings.APIKey.IsSet() {
		errs = multierror.Append(errs, errors.New("embeddings.api_key required for openai provider"))
	}
	if c.Embeddings.BatchSize < 1 {
		errs = multierror.Append(errs, fmt.Errorf("embeddings.batch_size must be positive, got %d", c.Embeddings.BatchSize))
	}
	if c.Embeddings.MaxRetries < 0 {
		errs = multierror.Append(errs, errors.New("embeddings.max_retries must not be negative"))
	}
	if c.Embeddings.RateLimit < 0 {
		errs = multierror.Append(errs, errors.New("embeddings.rate_limit must not be negative"))
	}
	if c.Embeddings.CacheSize < 0 {
		errs = multierror.Append(errs, errors.New("embeddings.cache_size must not be negative"))
	}

	if c.Segment.ChunkSize < 1 {
		errs = multierror.Append(errs, fmt.Errorf("segment.chunk_size must be positive, got %d", c.Segment.ChunkSize))
	}

	if c.Search.Limit < 1 || c.Search.Limit > 100 {
		errs = multierror.Append(errs, fmt.Errorf("search.limit must be 1-100, got %d", c.Search.Limit))
	}
	if c.Search.OverFetch < 1 {
		errs = multierror.Append(errs, fmt.Errorf("search.over_fetch must be positive, got %d", c.Search.OverFetch))
	}

	if c.Server.Port < 1 || c.Server.Port > 65535 {
		errs = multierror.Append(errs, fmt.Errorf("invalid server.port: %d (must be 1-65535)", c.Server.Port))
	}
	if c.Server.ShutdownTimeout <= 0 {
		errs = multierror.Append(errs, errors.New("server.shutdown_timeout must be positive"))
	}

	if !oneOf(c.Logging.Level, logLevels) {
		errs = multierror.Append(errs, fmt.Errorf("logging.level %q not one of %v", c.Logging.Level, logLevels))
	}
	if !oneOf(c.Logging.Format, logFormats) {
		errs = multierror.Append(errs, fmt.Errorf("logging.format %q not one of %v", c.Logging.Format, logFormats))
	}

	if c.Telemetry.Enabled {
		if c.Telemetry.Endpoint == "" {
			errs = multierror.Append(errs, errors.New("telemetry.endpoint required when telemetry is enabled"))
		}
		if !oneOf(c.Telemetry.Protocol, telemetryProtocols) {
			errs = multierror.Append(errs, fmt.Errorf("telemetry.protocol %q not one of %v", c.Telemetry.Protocol, telemetryProtocols))
		}
		if c.Telemetry.SampleRate < 0 || c.Telemetry.SampleRate > 1 {
			errs = multierror.Append(errs, fmt.Errorf("telemetry.sample_rate must be 0.0-1.0, got %v", c.Telemetry.SampleRate))
		}
		if c.Telemetry.ServiceName == "" {
			errs = multierror.Append(errs, errors.New("telemetry.service_name required"))
		}
	}

	return errs.ErrorOrNil()
}

func oneOf(v string, allowed []string) bool {
	for _, a := range allowed {
		if v == a {
			return true
		}
	}
	return false
}
