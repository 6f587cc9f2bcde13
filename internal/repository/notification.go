package repository

import (
	"context"
	"errors"

	"fanlive/internal/models"

	"gorm.io/gorm"
)

// NotificationRepository stores pending live reminders.
type NotificationRepository interface {
	CreateBatch(ctx context.Context, rows []models.LiveNotification) error
	DeletePending(ctx context.Context, liveID uint, types []string) (int64, error)
	GetByID(ctx context.Context, id uint) (*models.LiveNotification, error)
	MarkSent(ctx context.Context, id uint) (bool, error)
}

type notificationRepository struct {
	db *gorm.DB
}

func NewNotificationRepository(db *gorm.DB) NotificationRepository {
	return &notificationRepository{db: db}
}

func (r *notificationRepository) CreateBatch(ctx context.Context, rows []models.LiveNotification) error {
	if len(rows) == 0 {
		return nil
	}
	if err := r.db.WithContext(ctx).CreateInBatches(&rows, 200).Error; err != nil {
		return models.NewInternalError(err)
	}
	return nil
}

// DeletePending removes unsent reminders of the given types for liveID.
func (r *notificationRepository) DeletePending(ctx context.Context, liveID uint, types []string) (int64, error) {
	if len(types) == 0 {
		return 0, nil
	}
	res := r.db.WithContext(ctx).
		Where("live_id = ? AND sent = ? AND type IN ?", liveID, false, types).
		Delete(&models.LiveNotification{})
	if res.Error != nil {
		return 0, models.NewInternalError(res.Error)
	}
	return res.RowsAffected, nil
}

func (r *notificationRepository) GetByID(ctx context.Context, id uint) (*models.LiveNotification, error) {
	var n models.LiveNotification
	if err := r.db.WithContext(ctx).First(&n, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, models.NewNotFoundError("Notification", id)
		}
		return nil, models.NewInternalError(err)
	}
	return &n, nil
}

// MarkSent flags a pending reminder as delivered. It reports false when the
// row was already sent or no longer exists.
func (r *notificationRepository) MarkSent(ctx context.Context, id uint) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.LiveNotification{}).
		Where("id = ? AND sent = ?", id, false).
		Update("sent", true)
	if res.Error != nil {
		return false, models.NewInternalError(res.Error)
	}
	return res.RowsAffected > 0, nil
}
