package repository

import (
	"context"
	"fmt"

	identitydomain "github.com/PresidentofMexico/openai-usage-metrics/internal/identity/domain"
	pkgdb "github.com/PresidentofMexico/openai-usage-metrics/pkg/db"
	"gorm.io/gorm"
)

// Repository persists the employee roster and serves roster-wide queries.
type Repository interface {
	ReplaceAll(ctx context.Context, employees []identitydomain.EmployeeRecord) error
	All(ctx context.Context) ([]identitydomain.EmployeeRecord, error)
	UsageByUser(ctx context.Context) ([]identitydomain.UnidentifiedUsage, error)
}

type repo struct {
	db *gorm.DB
}

func Provide(db *gorm.DB) Repository {
	return &repo{db: db}
}

// ReplaceAll swaps the roster wholesale inside one transaction. The
// employees table carries a unique email index; a roster file listing the
// same address twice trips it and is rejected as a whole.
func (r *repo) ReplaceAll(ctx context.Context, employees []identitydomain.EmployeeRecord) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("1 = 1").Delete(&identitydomain.EmployeeRecord{}).Error; err != nil {
			return err
		}
		if len(employees) == 0 {
			return nil
		}
		return tx.CreateInBatches(employees, 500).Error
	})
	if pkgdb.IsDuplicateKeyErr(err) {
		return fmt.Errorf("%w: %v", identitydomain.ErrDuplicateEmail, err)
	}
	return err
}

func (r *repo) All(ctx context.Context) ([]identitydomain.EmployeeRecord, error) {
	var employees []identitydomain.EmployeeRecord
	err := r.db.WithContext(ctx).Find(&employees).Error
	return employees, err
}

// UsageByUser aggregates persisted usage per subject. The service filters
// the result through the resolver to keep name-fallback semantics in one
// place.
func (r *repo) UsageByUser(ctx context.Context) ([]identitydomain.UnidentifiedUsage, error) {
	var rows []identitydomain.UnidentifiedUsage
	err := r.db.WithContext(ctx).Raw(
		`SELECT user_key,
		        MAX(display_name) AS display_name,
		        SUM(usage_count)  AS usage_count,
		        SUM(cost_usd)     AS cost_usd
		 FROM usage_records
		 GROUP BY user_key
		 ORDER BY SUM(usage_count) DESC`,
	).Scan(&rows).Error
	return rows, err
}
