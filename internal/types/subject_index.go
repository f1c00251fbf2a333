package types

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// SubjectIndex is the per-subject index metadata row. Checksum covers the
// whole document set, so any added/removed/edited document changes it.
type SubjectIndex struct {
	ID            uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	Subject       string         `gorm:"column:subject;not null;uniqueIndex" json:"subject"`
	Checksum      string         `gorm:"column:checksum;not null" json:"checksum"`
	ChunkCount    int            `gorm:"column:chunk_count;not null;default:0" json:"chunk_count"`
	DocumentCount int            `gorm:"column:document_count;not null;default:0" json:"document_count"`
	SkippedDocs   datatypes.JSON `gorm:"type:jsonb;column:skipped_docs" json:"skipped_docs"`
	IndexedAt     time.Time      `gorm:"column:indexed_at;not null" json:"indexed_at"`
	CreatedAt     time.Time      `gorm:"not null" json:"created_at"`
	UpdatedAt     time.Time      `gorm:"not null" json:"updated_at"`
}

func (SubjectIndex) TableName() string {
	return "subject_index"
}
