// Package repository provides a small generic gorm store shared by the
// domain services.
package repository

import (
	"context"

	"github.com/PresidentofMexico/openai-usage-metrics/pkg/db/option"
	"gorm.io/gorm"
)

// Repository is the generic persistence contract for a single model type.
type Repository[T any] interface {
	WithTrx(tx *gorm.DB) Repository[T]
	Find(ctx context.Context, query *T, opts ...option.QueryOption) ([]*T, error)
	FindOne(ctx context.Context, query *T, opts ...option.QueryOption) (*T, error)
	Create(ctx context.Context, resource *T) error
	Delete(ctx context.Context, resourceID string) error
	Count(ctx context.Context, query *T) (int64, error)
	BatchCreate(ctx context.Context, resources []*T) error
}
