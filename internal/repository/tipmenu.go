package repository

import (
	"context"

	"fanlive/internal/models"

	"gorm.io/gorm"
)

// TipMenuRepository defines persistence operations for tipping menu items.
type TipMenuRepository interface {
	DeleteByLive(ctx context.Context, liveID uint) error
	CreateBatch(ctx context.Context, items []models.LiveTipMenu) error
	ListActive(ctx context.Context, liveID uint) ([]models.LiveTipMenu, error)
}

type tipMenuRepository struct {
	db *gorm.DB
}

func NewTipMenuRepository(db *gorm.DB) TipMenuRepository {
	return &tipMenuRepository{db: db}
}

func (r *tipMenuRepository) DeleteByLive(ctx context.Context, liveID uint) error {
	if err := r.db.WithContext(ctx).
		Where("live_id = ?", liveID).
		Delete(&models.LiveTipMenu{}).Error; err != nil {
		return models.NewInternalError(err)
	}
	return nil
}

func (r *tipMenuRepository) CreateBatch(ctx context.Context, items []models.LiveTipMenu) error {
	if len(items) == 0 {
		return nil
	}
	if err := r.db.WithContext(ctx).CreateInBatches(&items, 100).Error; err != nil {
		return models.NewInternalError(err)
	}
	return nil
}

func (r *tipMenuRepository) ListActive(ctx context.Context, liveID uint) ([]models.LiveTipMenu, error) {
	var items []models.LiveTipMenu
	if err := r.db.WithContext(ctx).
		Where("live_id = ? AND active = ?", liveID, true).
		Order("id ASC").
		Find(&items).Error; err != nil {
		return nil, models.NewInternalError(err)
	}
	return items, nil
}
