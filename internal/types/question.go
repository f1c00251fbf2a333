package types

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// Question is one persisted MCQ. Seq is 1-based and unique within a
// generation session; it never changes once written.
type Question struct {
	ID            uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	GenerationID  uuid.UUID      `gorm:"type:uuid;not null;index;uniqueIndex:idx_question_generation_seq" json:"generation_id"`
	Subject       string         `gorm:"column:subject;not null;index" json:"subject"`
	Seq           int            `gorm:"column:seq;not null;uniqueIndex:idx_question_generation_seq" json:"seq"`
	PromptMD      string         `gorm:"column:prompt_md;not null" json:"prompt_md"`
	Options       datatypes.JSON `gorm:"type:jsonb;column:options;not null" json:"options"`
	CorrectIndex  int            `gorm:"column:correct_index;not null" json:"correct_index"`
	ExplanationMD string         `gorm:"column:explanation_md" json:"explanation_md"`
	Difficulty    string         `gorm:"column:difficulty;not null" json:"difficulty"`
	Grounded      bool           `gorm:"column:grounded;not null;default:false" json:"grounded"`
	Metadata      datatypes.JSON `gorm:"type:jsonb;column:metadata" json:"metadata"`
	CreatedAt     time.Time      `gorm:"not null" json:"created_at"`
	UpdatedAt     time.Time      `gorm:"not null" json:"updated_at"`
}

func (Question) TableName() string {
	return "question"
}
