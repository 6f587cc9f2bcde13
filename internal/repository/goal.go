package repository

import (
	"context"
	"errors"

	"fanlive/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GoalRepository defines persistence operations for live goals.
//
// The active flag is authoritative for "current goal"; among active rows the
// highest id wins.
type GoalRepository interface {
	Create(ctx context.Context, goal *models.LiveGoal) error
	GetByID(ctx context.Context, id uint) (*models.LiveGoal, error)
	LatestActive(ctx context.Context, liveID uint) (*models.LiveGoal, error)
	LatestActiveForUpdate(ctx context.Context, liveID uint) (*models.LiveGoal, error)
	ListActive(ctx context.Context, liveID uint) ([]models.LiveGoal, error)
	UpdateFields(ctx context.Context, id uint, name string, amount int64) error
	Deactivate(ctx context.Context, liveID uint, ids []uint) (int64, error)
}

type goalRepository struct {
	db *gorm.DB
}

func NewGoalRepository(db *gorm.DB) GoalRepository {
	return &goalRepository{db: db}
}

func (r *goalRepository) Create(ctx context.Context, goal *models.LiveGoal) error {
	return wrapWriteErr(r.db.WithContext(ctx).Create(goal).Error, "Live already has an active goal")
}

func (r *goalRepository) GetByID(ctx context.Context, id uint) (*models.LiveGoal, error) {
	var goal models.LiveGoal
	if err := r.db.WithContext(ctx).First(&goal, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, models.NewNotFoundError("Goal", nil)
		}
		return nil, models.NewInternalError(err)
	}
	return &goal, nil
}

func (r *goalRepository) latestActive(q *gorm.DB, liveID uint) (*models.LiveGoal, error) {
	var goals []models.LiveGoal
	if err := q.
		Where("live_id = ? AND active = ?", liveID, true).
		Order("id DESC").
		Limit(1).
		Find(&goals).Error; err != nil {
		return nil, models.NewInternalError(err)
	}
	if len(goals) == 0 {
		return nil, nil
	}
	return &goals[0], nil
}

// LatestActive returns nil without error when the live has no active goal.
func (r *goalRepository) LatestActive(ctx context.Context, liveID uint) (*models.LiveGoal, error) {
	return r.latestActive(r.db.WithContext(ctx), liveID)
}

func (r *goalRepository) LatestActiveForUpdate(ctx context.Context, liveID uint) (*models.LiveGoal, error) {
	return r.latestActive(r.db.WithContext(ctx).Clauses(clause.Locking{Strength: "UPDATE"}), liveID)
}

func (r *goalRepository) ListActive(ctx context.Context, liveID uint) ([]models.LiveGoal, error) {
	var goals []models.LiveGoal
	if err := r.db.WithContext(ctx).
		Where("live_id = ? AND active = ?", liveID, true).
		Order("id DESC").
		Find(&goals).Error; err != nil {
		return nil, models.NewInternalError(err)
	}
	return goals, nil
}

func (r *goalRepository) UpdateFields(ctx context.Context, id uint, name string, amount int64) error {
	if err := r.db.WithContext(ctx).
		Model(&models.LiveGoal{}).
		Where("id = ?", id).
		Updates(map[string]any{"name": name, "amount": amount}).Error; err != nil {
		return models.NewInternalError(err)
	}
	return nil
}

// Deactivate clears the active flag on ids that belong to liveID. Empty ids is a no-op.
func (r *goalRepository) Deactivate(ctx context.Context, liveID uint, ids []uint) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	res := r.db.WithContext(ctx).
		Model(&models.LiveGoal{}).
		Where("live_id = ? AND id IN ? AND active = ?", liveID, ids, true).
		Update("active", false)
	if res.Error != nil {
		return 0, models.NewInternalError(res.Error)
	}
	return res.RowsAffected, nil
}
