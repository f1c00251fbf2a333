package repos

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/prepmind/prepmind-backend/internal/logger"
	"github.com/prepmind/prepmind-backend/internal/types"
)

type DocumentChunkRepo interface {
	Create(ctx context.Context, tx *gorm.DB, chunks []*types.DocumentChunk) ([]*types.DocumentChunk, error)
	GetBySubject(ctx context.Context, tx *gorm.DB, subject string) ([]*types.DocumentChunk, error)
	GetByIDs(ctx context.Context, tx *gorm.DB, ids []uuid.UUID) ([]*types.DocumentChunk, error)
	CountBySubject(ctx context.Context, tx *gorm.DB, subject string) (int64, error)
	DeleteBySubject(ctx context.Context, tx *gorm.DB, subject string) error
}

type documentChunkRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewDocumentChunkRepo(db *gorm.DB, baseLog *logger.Logger) DocumentChunkRepo {
	repoLog := baseLog.With("repo", "DocumentChunkRepo")
	return &documentChunkRepo{db: db, log: repoLog}
}

func (r *documentChunkRepo) Create(ctx context.Context, tx *gorm.DB, chunks []*types.DocumentChunk) ([]*types.DocumentChunk, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if len(chunks) == 0 {
		return []*types.DocumentChunk{}, nil
	}

	// Keep batches small because Text is large
	const batchSize = 100

	if err := transaction.WithContext(ctx).CreateInBatches(chunks, batchSize).Error; err != nil {
		return nil, err
	}
	return chunks, nil
}

func (r *documentChunkRepo) GetBySubject(ctx context.Context, tx *gorm.DB, subject string) ([]*types.DocumentChunk, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var results []*types.DocumentChunk
	if subject == "" {
		return results, nil
	}
	if err := transaction.WithContext(ctx).
		Where("subject = ?", subject).
		Order("source_file, chunk_index ASC").
		Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

func (r *documentChunkRepo) GetByIDs(ctx context.Context, tx *gorm.DB, ids []uuid.UUID) ([]*types.DocumentChunk, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var results []*types.DocumentChunk
	if len(ids) == 0 {
		return results, nil
	}
	if err := transaction.WithContext(ctx).
		Where("id IN ?", ids).
		Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

func (r *documentChunkRepo) CountBySubject(ctx context.Context, tx *gorm.DB, subject string) (int64, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var count int64
	if subject == "" {
		return 0, nil
	}
	if err := transaction.WithContext(ctx).
		Model(&types.DocumentChunk{}).
		Where("subject = ?", subject).
		Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

func (r *documentChunkRepo) DeleteBySubject(ctx context.Context, tx *gorm.DB, subject string) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if subject == "" {
		return nil
	}
	if err := transaction.WithContext(ctx).
		Where("subject = ?", subject).
		Delete(&types.DocumentChunk{}).Error; err != nil {
		return err
	}
	return nil
}
