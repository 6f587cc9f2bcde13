package repository

import (
	"context"
	"errors"

	"fanlive/internal/models"

	"gorm.io/gorm"
)

// CallRepository defines persistence operations for video calls.
type CallRepository interface {
	Create(ctx context.Context, call *models.Call) error
	GetByID(ctx context.Context, id uint) (*models.Call, error)
	LatestActiveByRoom(ctx context.Context, roomID string) (*models.Call, error)
	UpdateStatus(ctx context.Context, id uint, status models.CallStatus) error
}

type callRepository struct {
	db *gorm.DB
}

func NewCallRepository(db *gorm.DB) CallRepository {
	return &callRepository{db: db}
}

func (r *callRepository) Create(ctx context.Context, call *models.Call) error {
	if err := r.db.WithContext(ctx).Create(call).Error; err != nil {
		return models.NewInternalError(err)
	}
	return nil
}

func (r *callRepository) GetByID(ctx context.Context, id uint) (*models.Call, error) {
	var call models.Call
	if err := r.db.WithContext(ctx).First(&call, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, models.NewNotFoundError("Call", nil)
		}
		return nil, models.NewInternalError(err)
	}
	return &call, nil
}

// LatestActiveByRoom returns the most recently created ringing or answered call in roomID.
func (r *callRepository) LatestActiveByRoom(ctx context.Context, roomID string) (*models.Call, error) {
	var call models.Call
	if err := r.db.WithContext(ctx).
		Where("room_id = ? AND status IN ?", roomID, models.ActiveCallStatuses).
		Order("created_at DESC, id DESC").
		First(&call).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, models.NewNotFoundError("Call", nil)
		}
		return nil, models.NewInternalError(err)
	}
	return &call, nil
}

func (r *callRepository) UpdateStatus(ctx context.Context, id uint, status models.CallStatus) error {
	if err := r.db.WithContext(ctx).
		Model(&models.Call{}).
		Where("id = ?", id).
		Update("status", status).Error; err != nil {
		return models.NewInternalError(err)
	}
	return nil
}
