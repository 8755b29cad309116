package recipients

import (
	"context"
	"errors"
	"fmt"

	"github.com/speedrun-hq/speedrun-intents/pkg/config"
	"github.com/speedrun-hq/speedrun-intents/pkg/models"
)

// ErrNotFound is returned when no manifest is stored for an intent
var ErrNotFound = errors.New("recipient manifest not found")

// Store keeps recipient manifests off-chain, keyed by intent id. A second Put for
// the same intent replaces the first.
type Store interface {
	Put(ctx context.Context, manifest *models.RecipientManifest) error
	Get(ctx context.Context, intentID string) (*models.RecipientManifest, error)
	Delete(ctx context.Context, intentID string) error
	List(ctx context.Context) ([]string, error)
	Close() error
}

// NewStore opens the backend selected by the configuration
func NewStore(ctx context.Context, cfg config.StoreConfig) (Store, error) {
	switch cfg.Backend {
	case "", config.StoreBackendMemory:
		return NewMemoryStore(), nil
	case config.StoreBackendRedis:
		return NewRedisStore(ctx, cfg)
	case config.StoreBackendPostgres:
		return NewPostgresStore(ctx, cfg.PostgresDSN)
	default:
		return nil, fmt.Errorf("unknown recipient store backend %q", cfg.Backend)
	}
}
