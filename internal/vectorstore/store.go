package vectorstore

import (
	"context"
	"fmt"
	"strings"

	"github.com/prepmind/prepmind-backend/internal/logger"
	"github.com/prepmind/prepmind-backend/internal/repos"
	"github.com/prepmind/prepmind-backend/internal/utils"
)

type Vector struct {
	ID       string
	Values   []float32
	Metadata map[string]any
}

type Match struct {
	ID    string
	Score float64
}

// Store is the vector index behind retrieval. Namespaces map 1:1 to
// subjects.
type Store interface {
	Upsert(ctx context.Context, namespace string, vectors []Vector) error
	Query(ctx context.Context, namespace string, q []float32, topK int) ([]Match, error)
	DeleteNamespace(ctx context.Context, namespace string) error
	Ping(ctx context.Context) error
}

type Provider string

const (
	ProviderLocal  Provider = "local"
	ProviderQdrant Provider = "qdrant"
)

// NewFromEnv selects the vector provider from VECTOR_PROVIDER. The local
// provider ranks chunk embeddings straight out of Postgres; qdrant talks to
// an external collection over HTTP.
func NewFromEnv(log *logger.Logger, chunkRepo repos.DocumentChunkRepo) (Store, error) {
	provider := strings.ToLower(strings.TrimSpace(utils.GetEnv("VECTOR_PROVIDER", string(ProviderLocal), log)))
	switch Provider(provider) {
	case ProviderLocal:
		return NewLocalStore(log, chunkRepo), nil
	case ProviderQdrant:
		cfg, err := ResolveQdrantConfigFromEnv(log)
		if err != nil {
			return nil, err
		}
		return NewQdrantStore(log, cfg)
	default:
		return nil, fmt.Errorf("unsupported VECTOR_PROVIDER %q", provider)
	}
}
