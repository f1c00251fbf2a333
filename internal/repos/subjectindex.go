package repos

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/prepmind/prepmind-backend/internal/logger"
	"github.com/prepmind/prepmind-backend/internal/types"
)

type SubjectIndexRepo interface {
	Upsert(ctx context.Context, tx *gorm.DB, index *types.SubjectIndex) (*types.SubjectIndex, error)
	GetBySubject(ctx context.Context, tx *gorm.DB, subject string) (*types.SubjectIndex, error)
	GetAll(ctx context.Context, tx *gorm.DB) ([]*types.SubjectIndex, error)
}

type subjectIndexRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewSubjectIndexRepo(db *gorm.DB, baseLog *logger.Logger) SubjectIndexRepo {
	repoLog := baseLog.With("repo", "SubjectIndexRepo")
	return &subjectIndexRepo{db: db, log: repoLog}
}

func (r *subjectIndexRepo) Upsert(ctx context.Context, tx *gorm.DB, index *types.SubjectIndex) (*types.SubjectIndex, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if index == nil {
		return nil, nil
	}
	if index.ID == uuid.Nil {
		index.ID = uuid.New()
	}
	now := time.Now()
	if index.CreatedAt.IsZero() {
		index.CreatedAt = now
	}
	index.UpdatedAt = now

	if err := transaction.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "subject"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"checksum", "chunk_count", "document_count", "skipped_docs", "indexed_at", "updated_at",
			}),
		}).
		Create(index).Error; err != nil {
		return nil, err
	}
	return index, nil
}

func (r *subjectIndexRepo) GetBySubject(ctx context.Context, tx *gorm.DB, subject string) (*types.SubjectIndex, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if subject == "" {
		return nil, nil
	}
	var index types.SubjectIndex
	err := transaction.WithContext(ctx).
		Where("subject = ?", subject).
		First(&index).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &index, nil
}

func (r *subjectIndexRepo) GetAll(ctx context.Context, tx *gorm.DB) ([]*types.SubjectIndex, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var results []*types.SubjectIndex
	if err := transaction.WithContext(ctx).
		Order("subject ASC").
		Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}
