package vectorstore

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	"github.com/prepmind/prepmind-backend/internal/repos"
	"github.com/prepmind/prepmind-backend/internal/repos/testutil"
	"github.com/prepmind/prepmind-backend/internal/types"
)

func seedChunk(t *testing.T, chunkRepo repos.DocumentChunkRepo, subject, text string, vec []float32) uuid.UUID {
	t.Helper()
	emb, err := json.Marshal(vec)
	if err != nil {
		t.Fatalf("marshal embedding: %v", err)
	}
	now := time.Now()
	id := uuid.New()
	_, err = chunkRepo.Create(context.Background(), nil, []*types.DocumentChunk{{
		ID:         id,
		Subject:    subject,
		SourceFile: "seed.txt",
		Index:      0,
		Text:       text,
		Embedding:  datatypes.JSON(emb),
		Metadata:   datatypes.JSON([]byte(`{}`)),
		CreatedAt:  now,
		UpdatedAt:  now,
	}})
	if err != nil {
		t.Fatalf("seed chunk: %v", err)
	}
	return id
}

func TestLocalStoreQueryOrdersByCosine(t *testing.T) {
	db := testutil.DB(t)
	log := testutil.Logger(t)
	chunkRepo := repos.NewDocumentChunkRepo(db, log)
	store := NewLocalStore(log, chunkRepo)

	best := seedChunk(t, chunkRepo, "physics", "best", []float32{1, 0, 0})
	mid := seedChunk(t, chunkRepo, "physics", "mid", []float32{0.7, 0.7, 0})
	seedChunk(t, chunkRepo, "physics", "worst", []float32{0, 1, 0})

	matches, err := store.Query(context.Background(), "physics", []float32{1, 0, 0}, 2)
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(matches) != 2 {
		t.Fatalf("expected topK=2 matches, got %d", len(matches))
	}
	if matches[0].ID != best.String() {
		t.Fatalf("expected best match first, got %s", matches[0].ID)
	}
	if matches[1].ID != mid.String() {
		t.Fatalf("expected mid match second, got %s", matches[1].ID)
	}
	if matches[0].Score < matches[1].Score {
		t.Fatalf("scores out of order: %v then %v", matches[0].Score, matches[1].Score)
	}
}

func TestLocalStoreQueryScopedToNamespace(t *testing.T) {
	db := testutil.DB(t)
	log := testutil.Logger(t)
	chunkRepo := repos.NewDocumentChunkRepo(db, log)
	store := NewLocalStore(log, chunkRepo)

	seedChunk(t, chunkRepo, "physics", "physics chunk", []float32{1, 0, 0})
	seedChunk(t, chunkRepo, "chemistry", "chemistry chunk", []float32{1, 0, 0})

	matches, err := store.Query(context.Background(), "physics", []float32{1, 0, 0}, 10)
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(matches) != 1 {
		t.Fatalf("expected only physics chunks, got %d matches", len(matches))
	}
}

func TestLocalStoreQueryEmptyNamespace(t *testing.T) {
	db := testutil.DB(t)
	log := testutil.Logger(t)
	chunkRepo := repos.NewDocumentChunkRepo(db, log)
	store := NewLocalStore(log, chunkRepo)

	matches, err := store.Query(context.Background(), "nothing", []float32{1, 0, 0}, 5)
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(matches) != 0 {
		t.Fatalf("expected no matches, got %d", len(matches))
	}
}

func TestLocalStorePing(t *testing.T) {
	db := testutil.DB(t)
	log := testutil.Logger(t)
	store := NewLocalStore(log, repos.NewDocumentChunkRepo(db, log))
	if err := store.Ping(context.Background()); err != nil {
		t.Fatalf("ping: %v", err)
	}
}
