package repository

import (
	"context"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/tesseract-nexus/pubsub-gateway/internal/model"
)

// UsageRepository persists closed daily usage aggregates and serves
// range reads for the admin API.
type UsageRepository interface {
	Upsert(ctx context.Context, usage model.DailyUsage) error
	ListRange(ctx context.Context, tenantID, from, to string) ([]model.DailyUsage, error)
}

type usageRepository struct {
	db *gorm.DB
}

// NewUsageRepository builds the GORM-backed UsageRepository.
func NewUsageRepository(db *gorm.DB) UsageRepository {
	return &usageRepository{db: db}
}

// Upsert writes or merges a day's aggregate. Called repeatedly as the
// aggregator snapshots live counters, and once more at day close.
func (r *usageRepository) Upsert(ctx context.Context, usage model.DailyUsage) error {
	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "tenant_id"}, {Name: "date"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"messages_in", "messages_out", "bytes_in", "bytes_out",
				"active_agents", "active_channels", "updated_at",
			}),
		}).
		Create(&usage).Error
	if err != nil {
		return fmt.Errorf("failed to upsert daily usage: %w", err)
	}
	return nil
}

// ListRange returns closed aggregates for tenantID between from and to
// (inclusive, YYYY-MM-DD), ordered oldest first.
func (r *usageRepository) ListRange(ctx context.Context, tenantID, from, to string) ([]model.DailyUsage, error) {
	var rows []model.DailyUsage
	err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND date BETWEEN ? AND ?", tenantID, from, to).
		Order("date ASC").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list daily usage: %w", err)
	}
	return rows, nil
}
