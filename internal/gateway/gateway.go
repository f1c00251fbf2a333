package gateway

import (
	"context"
	"errors"
	"sync"

	"github.com/prepmind/prepmind-backend/internal/logger"
	"github.com/prepmind/prepmind-backend/internal/repos"
	"github.com/prepmind/prepmind-backend/internal/vectorstore"
)

// ErrNotReady means a capability failed to initialize or Init was never
// called. It is retryable: a later Init or backend recovery can clear it.
var ErrNotReady = errors.New("model gateway not ready")

type Deps struct {
	ChunkRepo repos.DocumentChunkRepo
}

// Gateway owns the process-wide model backends. A failed capability leaves
// the gateway degraded, never panicking: accessors return ErrNotReady and
// HealthCheck carries the reason.
type Gateway struct {
	log *logger.Logger

	ai    OpenAIClient
	aiErr error

	store    vectorstore.Store
	storeErr error
}

var (
	initOnce sync.Once
	instance *Gateway
)

// Init builds the singleton exactly once; later calls return the same
// instance regardless of arguments.
func Init(baseLog *logger.Logger, deps Deps) *Gateway {
	initOnce.Do(func() {
		instance = newGateway(baseLog, deps)
	})
	return instance
}

func Get() (*Gateway, error) {
	if instance == nil {
		return nil, ErrNotReady
	}
	return instance, nil
}

func newGateway(baseLog *logger.Logger, deps Deps) *Gateway {
	g := &Gateway{log: baseLog.With("service", "ModelGateway")}

	ai, err := NewOpenAIClient(baseLog)
	if err != nil {
		g.aiErr = err
		g.log.Warn("OpenAI client unavailable, gateway degraded", "error", err)
	} else {
		g.ai = ai
	}

	store, err := vectorstore.NewFromEnv(baseLog, deps.ChunkRepo)
	if err != nil {
		g.storeErr = err
		g.log.Warn("Vector store unavailable, gateway degraded", "error", err)
	} else {
		g.store = store
	}

	return g
}

func (g *Gateway) Embedder() (Embedder, error) {
	if g.ai == nil {
		return nil, ErrNotReady
	}
	return g.ai, nil
}

func (g *Gateway) TextGenerator() (TextGenerator, error) {
	if g.ai == nil {
		return nil, ErrNotReady
	}
	return g.ai, nil
}

func (g *Gateway) VectorStore() (vectorstore.Store, error) {
	if g.store == nil {
		return nil, ErrNotReady
	}
	return g.store, nil
}

// The methods below let a degraded gateway be wired everywhere a capability
// is expected: calls resolve at request time and fail with ErrNotReady
// instead of the process refusing to start.

func (g *Gateway) Embed(ctx context.Context, inputs []string) ([][]float32, error) {
	if g.ai == nil {
		return nil, ErrNotReady
	}
	return g.ai.Embed(ctx, inputs)
}

func (g *Gateway) GenerateJSON(ctx context.Context, system string, user string, schemaName string, schema map[string]any) (map[string]any, error) {
	if g.ai == nil {
		return nil, ErrNotReady
	}
	return g.ai.GenerateJSON(ctx, system, user, schemaName, schema)
}

// Store always returns a usable vectorstore.Store; when the provider failed
// to initialize, every call reports ErrNotReady.
func (g *Gateway) Store() vectorstore.Store {
	if g.store == nil {
		return notReadyStore{}
	}
	return g.store
}

type notReadyStore struct{}

func (notReadyStore) Upsert(ctx context.Context, namespace string, vectors []vectorstore.Vector) error {
	return ErrNotReady
}
func (notReadyStore) Query(ctx context.Context, namespace string, q []float32, topK int) ([]vectorstore.Match, error) {
	return nil, ErrNotReady
}
func (notReadyStore) DeleteNamespace(ctx context.Context, namespace string) error {
	return ErrNotReady
}
func (notReadyStore) Ping(ctx context.Context) error {
	return ErrNotReady
}

type CapabilityHealth struct {
	Ready  bool   `json:"ready"`
	Reason string `json:"reason,omitempty"`
}

type HealthReport struct {
	Ready        bool                        `json:"ready"`
	Capabilities map[string]CapabilityHealth `json:"capabilities"`
}

func (g *Gateway) HealthCheck(ctx context.Context) HealthReport {
	report := HealthReport{Capabilities: map[string]CapabilityHealth{}}

	model := CapabilityHealth{Ready: g.ai != nil}
	if g.aiErr != nil {
		model.Reason = g.aiErr.Error()
	}
	report.Capabilities["embedder"] = model
	report.Capabilities["text_generator"] = model

	store := CapabilityHealth{Ready: g.store != nil}
	if g.storeErr != nil {
		store.Reason = g.storeErr.Error()
	} else if g.store != nil {
		if err := g.store.Ping(ctx); err != nil {
			store.Ready = false
			store.Reason = err.Error()
		}
	}
	report.Capabilities["vector_store"] = store

	report.Ready = true
	for _, cap := range report.Capabilities {
		if !cap.Ready {
			report.Ready = false
			break
		}
	}
	return report
}
