package vectorstore

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/policyrag/internal/config"
)

// Provider names accepted by NewStore.
const (
	ProviderQdrant  = "qdrant"
	ProviderChromem = "chromem"
)

// NewStore creates the Store selected by cfg.Provider:
//   - "qdrant" (default): exact-filter QdrantStore, requires a Qdrant server
//   - "chromem": approximate-filter ChromemStore, embedded
//
// dimension is the embedding provider's output size; it is used when the
// configuration leaves the vector size unset.
func NewStore(ctx context.Context, cfg config.VectorStoreConfig, dimension int, logger *zap.Logger) (Store, error) {
	switch cfg.Provider {
	case ProviderQdrant, "":
		size := cfg.Qdrant.VectorSize
		if size == 0 {
			size = dimension
		}
		if size <= 0 {
			return nil, fmt.Errorf("%w: qdrant vector size unknown", ErrInvalidConfig)
		}
		return NewQdrantStore(ctx, QdrantConfig{
			Host:           cfg.Qdrant.Host,
			Port:           cfg.Qdrant.Port,
			APIKey:         cfg.Qdrant.APIKey.Value(),
			UseTLS:         cfg.Qdrant.UseTLS,
			CollectionName: cfg.Qdrant.Collection,
			VectorSize:     uint64(size),
		}, logger)

	case ProviderChromem:
		return NewChromemStore(ChromemConfig{
			Path:           cfg.Chromem.Path,
			Compress:       cfg.Chromem.Compress,
			CollectionName: cfg.Chromem.Collection,
			VectorSize:     dimension,
		}, logger)

	default:
		return nil, fmt.Errorf("%w: unsupported vectorstore provider %q (supported: %s, %s)",
			ErrInvalidConfig, cfg.Provider, ProviderQdrant, ProviderChromem)
	}
}
