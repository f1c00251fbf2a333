package cache

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/prepmind/prepmind-backend/internal/logger"
	"github.com/prepmind/prepmind-backend/internal/utils"
)

// Cache holds serialized responses keyed by request fingerprint. Entries
// expire after their TTL; Clear drops everything at once.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, val []byte, ttl time.Duration) error
	Clear(ctx context.Context) error
}

type Provider string

const (
	ProviderMemory Provider = "memory"
	ProviderRedis  Provider = "redis"
)

func NewFromEnv(log *logger.Logger) (Cache, error) {
	provider := strings.ToLower(strings.TrimSpace(utils.GetEnv("CACHE_PROVIDER", string(ProviderMemory), log)))
	switch Provider(provider) {
	case ProviderMemory:
		return NewMemoryCache(log), nil
	case ProviderRedis:
		addr := strings.TrimSpace(utils.GetEnv("REDIS_ADDR", "localhost:6379", log))
		return NewRedisCache(log, addr), nil
	default:
		return nil, fmt.Errorf("unsupported CACHE_PROVIDER %q", provider)
	}
}
