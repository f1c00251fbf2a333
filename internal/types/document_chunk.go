package types

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

type DocumentChunk struct {
	ID         uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	Subject    string         `gorm:"column:subject;not null;index" json:"subject"`
	SourceFile string         `gorm:"column:source_file;not null;index" json:"source_file"`
	Index      int            `gorm:"column:chunk_index;not null" json:"index"`
	Text       string         `gorm:"column:text;not null" json:"text"`
	Embedding  datatypes.JSON `gorm:"type:jsonb;column:embedding" json:"embedding"`
	Metadata   datatypes.JSON `gorm:"type:jsonb;column:metadata" json:"metadata"`
	CreatedAt  time.Time      `gorm:"not null" json:"created_at"`
	UpdatedAt  time.Time      `gorm:"not null" json:"updated_at"`
}

func (DocumentChunk) TableName() string {
	return "document_chunk"
}
