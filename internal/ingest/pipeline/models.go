package pipeline

import (
	"time"
)

// SourceFile is the archived original of one ingested export. The raw
// bytes are snappy-compressed so a disputed figure can always be traced
// back to the exact file that produced it.
type SourceFile struct {
	ID         string    `gorm:"primaryKey;type:text" json:"id"`
	FileName   string    `gorm:"type:text;not null" json:"file_name"`
	Vendor     string    `gorm:"type:text;not null" json:"vendor"`
	Sublayout  string    `gorm:"type:text;not null" json:"sublayout"`
	BatchID    string    `gorm:"type:text;index" json:"batch_id"`
	SizeBytes  int64     `gorm:"not null" json:"size_bytes"`
	Compressed []byte    `gorm:"type:blob" json:"-"`
	ArchivedAt time.Time `gorm:"not null" json:"archived_at"`
}

// TableName sets the database table name.
func (SourceFile) TableName() string { return "source_files" }
