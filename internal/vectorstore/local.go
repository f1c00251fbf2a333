package vectorstore

import (
	"context"
	"encoding/json"
	"math"
	"sort"

	"gorm.io/datatypes"

	"github.com/prepmind/prepmind-backend/internal/logger"
	"github.com/prepmind/prepmind-backend/internal/repos"
)

// localStore ranks the chunk embeddings already persisted in Postgres by
// cosine similarity, in process. Upsert and DeleteNamespace are no-ops
// because the chunk rows themselves are the index.
type localStore struct {
	log       *logger.Logger
	chunkRepo repos.DocumentChunkRepo
}

func NewLocalStore(log *logger.Logger, chunkRepo repos.DocumentChunkRepo) Store {
	return &localStore{
		log:       log.With("service", "LocalVectorStore"),
		chunkRepo: chunkRepo,
	}
}

func (s *localStore) Upsert(ctx context.Context, namespace string, vectors []Vector) error {
	return nil
}

func (s *localStore) DeleteNamespace(ctx context.Context, namespace string) error {
	return nil
}

func (s *localStore) Ping(ctx context.Context) error {
	return nil
}

func (s *localStore) Query(ctx context.Context, namespace string, q []float32, topK int) ([]Match, error) {
	if topK <= 0 {
		topK = 10
	}
	chunks, err := s.chunkRepo.GetBySubject(ctx, nil, namespace)
	if err != nil {
		return nil, err
	}

	type scored struct {
		id string
		s  float64
	}
	arr := make([]scored, 0, len(chunks))
	for _, ch := range chunks {
		if ch == nil {
			continue
		}
		vec, ok := parseEmbedding(ch.Embedding)
		if !ok {
			continue
		}
		arr = append(arr, scored{id: ch.ID.String(), s: cosine(vec, q)})
	}
	sort.Slice(arr, func(i, j int) bool { return arr[i].s > arr[j].s })
	if topK > len(arr) {
		topK = len(arr)
	}
	out := make([]Match, 0, topK)
	for i := 0; i < topK; i++ {
		out = append(out, Match{ID: arr[i].id, Score: arr[i].s})
	}
	return out, nil
}

// ---- helpers ----

func parseEmbedding(js datatypes.JSON) ([]float32, bool) {
	if len(js) == 0 {
		return nil, false
	}
	var v []float32
	if err := json.Unmarshal(js, &v); err != nil {
		var f64 []float64
		if err2 := json.Unmarshal(js, &f64); err2 != nil {
			return nil, false
		}
		v = make([]float32, len(f64))
		for i := range f64 {
			v[i] = float32(f64[i])
		}
	}
	if len(v) == 0 {
		return nil, false
	}
	return v, true
}

func cosine(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return -1
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return -1
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
