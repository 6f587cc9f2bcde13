package repository

import (
	"context"

	"fanlive/internal/models"

	"gorm.io/gorm"
)

// EarningsRepository reads coin totals and bookings for a live.
type EarningsRepository interface {
	SumForLive(ctx context.Context, liveID, receiverID uint, types []string) (int64, error)
	SumForGoal(ctx context.Context, goalID uint) (int64, error)
	BookingCount(ctx context.Context, liveID uint) (int64, error)
	HasBooking(ctx context.Context, liveID, userID uint) (bool, error)
	BookedUserIDs(ctx context.Context, liveID uint) ([]uint, error)
	CreateBooking(ctx context.Context, booking *models.LiveBooking) error
	CreateTransaction(ctx context.Context, txn *models.Transaction) error
}

type earningsRepository struct {
	db *gorm.DB
}

func NewEarningsRepository(db *gorm.DB) EarningsRepository {
	return &earningsRepository{db: db}
}

// SumForLive totals completed transactions of the given types paid to receiverID for liveID.
func (r *earningsRepository) SumForLive(ctx context.Context, liveID, receiverID uint, types []string) (int64, error) {
	var total int64
	if err := r.db.WithContext(ctx).
		Model(&models.Transaction{}).
		Select("COALESCE(SUM(coins), 0)").
		Where("live_id = ? AND receiver_id = ? AND status = ? AND type IN ?",
			liveID, receiverID, models.TransactionStatusCompleted, types).
		Scan(&total).Error; err != nil {
		return 0, models.NewInternalError(err)
	}
	return total, nil
}

// SumForGoal totals completed goal tips toward goalID.
func (r *earningsRepository) SumForGoal(ctx context.Context, goalID uint) (int64, error) {
	var total int64
	if err := r.db.WithContext(ctx).
		Model(&models.Transaction{}).
		Select("COALESCE(SUM(coins), 0)").
		Where("goal_id = ? AND status = ? AND type = ?",
			goalID, models.TransactionStatusCompleted, models.TransactionLiveGoalTip).
		Scan(&total).Error; err != nil {
		return 0, models.NewInternalError(err)
	}
	return total, nil
}

func (r *earningsRepository) BookingCount(ctx context.Context, liveID uint) (int64, error) {
	var count int64
	if err := r.db.WithContext(ctx).
		Model(&models.LiveBooking{}).
		Where("live_id = ?", liveID).
		Count(&count).Error; err != nil {
		return 0, models.NewInternalError(err)
	}
	return count, nil
}

func (r *earningsRepository) HasBooking(ctx context.Context, liveID, userID uint) (bool, error) {
	var count int64
	if err := r.db.WithContext(ctx).
		Model(&models.LiveBooking{}).
		Where("live_id = ? AND user_id = ?", liveID, userID).
		Count(&count).Error; err != nil {
		return false, models.NewInternalError(err)
	}
	return count > 0, nil
}

func (r *earningsRepository) BookedUserIDs(ctx context.Context, liveID uint) ([]uint, error) {
	var ids []uint
	if err := r.db.WithContext(ctx).
		Model(&models.LiveBooking{}).
		Where("live_id = ?", liveID).
		Order("user_id ASC").
		Pluck("user_id", &ids).Error; err != nil {
		return nil, models.NewInternalError(err)
	}
	return ids, nil
}

func (r *earningsRepository) CreateBooking(ctx context.Context, booking *models.LiveBooking) error {
	return wrapWriteErr(r.db.WithContext(ctx).Create(booking).Error, "Live already booked")
}

func (r *earningsRepository) CreateTransaction(ctx context.Context, txn *models.Transaction) error {
	if err := r.db.WithContext(ctx).Create(txn).Error; err != nil {
		return models.NewInternalError(err)
	}
	return nil
}
