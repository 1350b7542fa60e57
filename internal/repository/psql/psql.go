package psql

import (
	"context"
	"fmt"
	"time"

	"airmonitor/internal/domain/entity"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type GormLedgerRepo struct {
	DB *gorm.DB
}

func NewGormLedgerRepo(db *gorm.DB) *GormLedgerRepo {
	return &GormLedgerRepo{DB: db}
}

// CreateCycle records a cycle. A second record for the same object key
// replaces the first, so a re-shipped log keeps one row.
func (r *GormLedgerRepo) CreateCycle(ctx context.Context, cycle *entity.WindowCycle) error {
	return r.DB.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "object_key"}},
		DoUpdates: clause.AssignmentColumns([]string{"status", "shipped_at", "readings", "updated_at"}),
	}).Create(cycle).Error
}

func (r *GormLedgerRepo) UpdateCycleStatus(ctx context.Context, objectKey string, status entity.CycleStatus, shippedAt time.Time) error {
	cycle := &entity.WindowCycle{}
	err := r.DB.WithContext(ctx).First(cycle, "object_key = ?", objectKey).Error
	if err != nil {
		return fmt.Errorf("cycle not found: %w", err)
	}

	cycle.Status = status
	cycle.ShippedAt = shippedAt

	return r.DB.WithContext(ctx).Save(cycle).Error
}

func (r *GormLedgerRepo) GetCycle(ctx context.Context, objectKey string) (*entity.WindowCycle, error) {
	cycle := &entity.WindowCycle{}
	if err := r.DB.WithContext(ctx).First(cycle, "object_key = ?", objectKey).Error; err != nil {
		return nil, fmt.Errorf("cycle not found: %w", err)
	}
	return cycle, nil
}

func (r *GormLedgerRepo) SaveAlerts(ctx context.Context, alerts []entity.AlertRecord) error {
	if len(alerts) == 0 {
		return nil
	}
	return r.DB.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&alerts).Error
}

func (r *GormLedgerRepo) ListAlerts(ctx context.Context, limit int) ([]entity.AlertRecord, error) {
	var alerts []entity.AlertRecord
	err := r.DB.WithContext(ctx).Order("id desc").Limit(limit).Find(&alerts).Error
	return alerts, err
}
