package repos

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/prepmind/prepmind-backend/internal/logger"
	"github.com/prepmind/prepmind-backend/internal/types"
)

type GenerationSessionRepo interface {
	Create(ctx context.Context, tx *gorm.DB, sessions []*types.GenerationSession) ([]*types.GenerationSession, error)
	GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*types.GenerationSession, error)
	GetByUserID(ctx context.Context, tx *gorm.DB, userID uuid.UUID) ([]*types.GenerationSession, error)
	UpdateFields(ctx context.Context, tx *gorm.DB, id uuid.UUID, updates map[string]interface{}) error
}

type generationSessionRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewGenerationSessionRepo(db *gorm.DB, baseLog *logger.Logger) GenerationSessionRepo {
	repoLog := baseLog.With("repo", "GenerationSessionRepo")
	return &generationSessionRepo{db: db, log: repoLog}
}

func (r *generationSessionRepo) Create(ctx context.Context, tx *gorm.DB, sessions []*types.GenerationSession) ([]*types.GenerationSession, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if len(sessions) == 0 {
		return []*types.GenerationSession{}, nil
	}
	if err := transaction.WithContext(ctx).Create(&sessions).Error; err != nil {
		return nil, err
	}
	return sessions, nil
}

func (r *generationSessionRepo) GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*types.GenerationSession, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if id == uuid.Nil {
		return nil, nil
	}
	var session types.GenerationSession
	err := transaction.WithContext(ctx).
		Where("id = ?", id).
		First(&session).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &session, nil
}

func (r *generationSessionRepo) GetByUserID(ctx context.Context, tx *gorm.DB, userID uuid.UUID) ([]*types.GenerationSession, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var results []*types.GenerationSession
	if userID == uuid.Nil {
		return results, nil
	}
	if err := transaction.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

func (r *generationSessionRepo) UpdateFields(ctx context.Context, tx *gorm.DB, id uuid.UUID, updates map[string]interface{}) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if id == uuid.Nil {
		return nil
	}
	if updates == nil {
		updates = map[string]interface{}{}
	}
	if _, ok := updates["updated_at"]; !ok {
		updates["updated_at"] = time.Now()
	}
	return transaction.WithContext(ctx).
		Model(&types.GenerationSession{}).
		Where("id = ?", id).
		Updates(updates).Error
}
