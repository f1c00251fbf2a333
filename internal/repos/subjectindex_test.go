package repos

import (
	"context"
	"testing"
	"time"

	"gorm.io/datatypes"

	"github.com/prepmind/prepmind-backend/internal/repos/testutil"
	"github.com/prepmind/prepmind-backend/internal/types"
)

func TestSubjectIndexRepoUpsert(t *testing.T) {
	db := testutil.DB(t)
	log := testutil.Logger(t)
	repo := NewSubjectIndexRepo(db, log)
	ctx := context.Background()

	got, err := repo.GetBySubject(ctx, nil, "physics")
	if err != nil {
		t.Fatalf("get missing: %v", err)
	}
	if got != nil {
		t.Fatalf("expected nil for unknown subject, got %+v", got)
	}

	if _, err := repo.Upsert(ctx, nil, &types.SubjectIndex{
		Subject:       "physics",
		Checksum:      "abc",
		ChunkCount:    10,
		DocumentCount: 2,
		SkippedDocs:   datatypes.JSON([]byte(`[]`)),
		IndexedAt:     time.Now(),
	}); err != nil {
		t.Fatalf("insert: %v", err)
	}

	if _, err := repo.Upsert(ctx, nil, &types.SubjectIndex{
		Subject:       "physics",
		Checksum:      "def",
		ChunkCount:    14,
		DocumentCount: 3,
		SkippedDocs:   datatypes.JSON([]byte(`[]`)),
		IndexedAt:     time.Now(),
	}); err != nil {
		t.Fatalf("update: %v", err)
	}

	got, err = repo.GetBySubject(ctx, nil, "physics")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got == nil {
		t.Fatalf("expected row after upsert")
	}
	if got.Checksum != "def" || got.ChunkCount != 14 || got.DocumentCount != 3 {
		t.Fatalf("upsert did not update fields: %+v", got)
	}

	all, err := repo.GetAll(ctx, nil)
	if err != nil {
		t.Fatalf("get all: %v", err)
	}
	if len(all) != 1 {
		t.Fatalf("upsert must not duplicate rows, got %d", len(all))
	}
}
