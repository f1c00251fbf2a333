package types

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

const (
	GenerationStatusPending    = "pending"
	GenerationStatusGenerating = "generating"
	GenerationStatusCompleted  = "completed"
	GenerationStatusFailed     = "failed"
	GenerationStatusCancelled  = "cancelled"
)

type GenerationSession struct {
	ID            uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	UserID        uuid.UUID      `gorm:"type:uuid;not null;index" json:"user_id"`
	Subject       string         `gorm:"column:subject;not null;index" json:"subject"`
	Difficulty    string         `gorm:"column:difficulty;not null" json:"difficulty"`
	Status        string         `gorm:"column:status;not null;index" json:"status"` // pending|generating|completed|failed|cancelled
	TotalCount    int            `gorm:"column:total_count;not null" json:"total_count"`
	ProducedCount int            `gorm:"column:produced_count;not null;default:0" json:"produced_count"`
	Error         string         `gorm:"column:error" json:"error"`
	LastErrorAt   *time.Time     `gorm:"column:last_error_at" json:"last_error_at,omitempty"`
	Metadata      datatypes.JSON `gorm:"type:jsonb;column:metadata" json:"metadata"`
	CreatedAt     time.Time      `gorm:"not null;index" json:"created_at"`
	UpdatedAt     time.Time      `gorm:"not null" json:"updated_at"`
}

func (GenerationSession) TableName() string {
	return "generation_session"
}
