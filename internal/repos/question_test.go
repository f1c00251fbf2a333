package repos

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	"github.com/prepmind/prepmind-backend/internal/repos/testutil"
	"github.com/prepmind/prepmind-backend/internal/types"
)

func testQuestion(generationID uuid.UUID, seq int) *types.Question {
	now := time.Now()
	return &types.Question{
		ID:            uuid.New(),
		GenerationID:  generationID,
		Subject:       "physics",
		Seq:           seq,
		PromptMD:      "What is inertia?",
		Options:       datatypes.JSON([]byte(`["A","B","C","D"]`)),
		CorrectIndex:  1,
		ExplanationMD: "Newton's first law.",
		Difficulty:    "medium",
		Grounded:      true,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

func TestQuestionRepoSeqAccounting(t *testing.T) {
	db := testutil.DB(t)
	log := testutil.Logger(t)
	repo := NewQuestionRepo(db, log)
	ctx := context.Background()

	genID := uuid.New()

	count, err := repo.CountByGenerationID(ctx, nil, genID)
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 0 {
		t.Fatalf("expected 0 questions, got %d", count)
	}
	maxSeq, err := repo.MaxSeqByGenerationID(ctx, nil, genID)
	if err != nil {
		t.Fatalf("max seq: %v", err)
	}
	if maxSeq != 0 {
		t.Fatalf("expected max seq 0 for empty generation, got %d", maxSeq)
	}

	if _, err := repo.Create(ctx, nil, []*types.Question{
		testQuestion(genID, 1),
		testQuestion(genID, 2),
		testQuestion(genID, 3),
	}); err != nil {
		t.Fatalf("create: %v", err)
	}

	count, err = repo.CountByGenerationID(ctx, nil, genID)
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 3 {
		t.Fatalf("expected 3 questions, got %d", count)
	}
	maxSeq, err = repo.MaxSeqByGenerationID(ctx, nil, genID)
	if err != nil {
		t.Fatalf("max seq: %v", err)
	}
	if maxSeq != 3 {
		t.Fatalf("expected max seq 3, got %d", maxSeq)
	}
}

func TestQuestionRepoGetByGenerationIDOrdersBySeq(t *testing.T) {
	db := testutil.DB(t)
	log := testutil.Logger(t)
	repo := NewQuestionRepo(db, log)
	ctx := context.Background()

	genID := uuid.New()
	if _, err := repo.Create(ctx, nil, []*types.Question{
		testQuestion(genID, 3),
		testQuestion(genID, 1),
		testQuestion(genID, 2),
	}); err != nil {
		t.Fatalf("create: %v", err)
	}

	qs, err := repo.GetByGenerationID(ctx, nil, genID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if len(qs) != 3 {
		t.Fatalf("expected 3 questions, got %d", len(qs))
	}
	for i, q := range qs {
		if q.Seq != i+1 {
			t.Fatalf("expected seq %d at position %d, got %d", i+1, i, q.Seq)
		}
	}
}

func TestQuestionRepoRejectsDuplicateSeq(t *testing.T) {
	db := testutil.DB(t)
	log := testutil.Logger(t)
	repo := NewQuestionRepo(db, log)
	ctx := context.Background()

	genID := uuid.New()
	if _, err := repo.Create(ctx, nil, []*types.Question{testQuestion(genID, 1)}); err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := repo.Create(ctx, nil, []*types.Question{testQuestion(genID, 1)}); err == nil {
		t.Fatalf("expected unique index violation on duplicate (generation, seq)")
	}
}

func TestQuestionRepoScopesToGeneration(t *testing.T) {
	db := testutil.DB(t)
	log := testutil.Logger(t)
	repo := NewQuestionRepo(db, log)
	ctx := context.Background()

	genA := uuid.New()
	genB := uuid.New()
	if _, err := repo.Create(ctx, nil, []*types.Question{
		testQuestion(genA, 1),
		testQuestion(genA, 2),
		testQuestion(genB, 1),
	}); err != nil {
		t.Fatalf("create: %v", err)
	}

	count, err := repo.CountByGenerationID(ctx, nil, genA)
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 2 {
		t.Fatalf("expected 2 questions for generation A, got %d", count)
	}
}
