package pipeline

import (
	"context"

	"github.com/golang/snappy"
	"gorm.io/gorm"
)

// ArchiveRepository stores and retrieves compressed source files.
type ArchiveRepository interface {
	Save(ctx context.Context, file *SourceFile) error
	Get(ctx context.Context, id string) (*SourceFile, []byte, error)
	List(ctx context.Context, limit int) ([]SourceFile, error)
}

type archiveRepo struct {
	db *gorm.DB
}

func ProvideArchive(db *gorm.DB) ArchiveRepository {
	return &archiveRepo{db: db}
}

func (r *archiveRepo) Save(ctx context.Context, file *SourceFile) error {
	return r.db.WithContext(ctx).Create(file).Error
}

// Get returns the archive row plus the decompressed original bytes.
func (r *archiveRepo) Get(ctx context.Context, id string) (*SourceFile, []byte, error) {
	var file SourceFile
	if err := r.db.WithContext(ctx).First(&file, "id = ?", id).Error; err != nil {
		return nil, nil, err
	}
	raw, err := snappy.Decode(nil, file.Compressed)
	if err != nil {
		return nil, nil, err
	}
	return &file, raw, nil
}

func (r *archiveRepo) List(ctx context.Context, limit int) ([]SourceFile, error) {
	if limit <= 0 {
		limit = 100
	}
	var files []SourceFile
	err := r.db.WithContext(ctx).
		Omit("compressed").
		Order("archived_at DESC").
		Limit(limit).
		Find(&files).Error
	return files, err
}
