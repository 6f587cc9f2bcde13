package repository

import (
	"context"
	"errors"
	"time"

	"fanlive/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ErrLiveAlreadyCreated is the conflict message when an owner already has a scheduled live.
const ErrLiveAlreadyCreated = "Live already created"

// LiveRepository defines persistence operations for lives.
type LiveRepository interface {
	Create(ctx context.Context, live *models.Live) error
	GetByID(ctx context.Context, id uint) (*models.Live, error)
	GetForUpdate(ctx context.Context, id uint) (*models.Live, error)
	GetOwned(ctx context.Context, id, ownerID uint) (*models.Live, error)
	GetOwnedForUpdate(ctx context.Context, id, ownerID uint) (*models.Live, error)
	HasScheduled(ctx context.Context, ownerID uint) (bool, error)
	Save(ctx context.Context, live *models.Live) error
	UpdateStatus(ctx context.Context, id uint, status models.LiveStatus) error
	UpdateFilter(ctx context.Context, id uint, filter string) error
	MarkCreatorJoined(ctx context.Context, id uint) (bool, error)
	ListScheduledBefore(ctx context.Context, before time.Time) ([]models.Live, error)
	SetStatus(ctx context.Context, ids []uint, from, to models.LiveStatus) (int64, error)
}

type liveRepository struct {
	db *gorm.DB
}

// NewLiveRepository creates a new live repository
func NewLiveRepository(db *gorm.DB) LiveRepository {
	return &liveRepository{db: db}
}

func (r *liveRepository) Create(ctx context.Context, live *models.Live) error {
	return wrapWriteErr(r.db.WithContext(ctx).Create(live).Error, ErrLiveAlreadyCreated)
}

func (r *liveRepository) first(q *gorm.DB, id uint) (*models.Live, error) {
	var live models.Live
	if err := q.First(&live, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, models.NewNotFoundError("Live", nil)
		}
		return nil, models.NewInternalError(err)
	}
	return &live, nil
}

func (r *liveRepository) GetByID(ctx context.Context, id uint) (*models.Live, error) {
	return r.first(r.db.WithContext(ctx), id)
}

func (r *liveRepository) GetForUpdate(ctx context.Context, id uint) (*models.Live, error) {
	return r.first(r.db.WithContext(ctx).Clauses(clause.Locking{Strength: "UPDATE"}), id)
}

// GetOwned reports a live owned by someone else as not found.
func (r *liveRepository) GetOwned(ctx context.Context, id, ownerID uint) (*models.Live, error) {
	return r.first(r.db.WithContext(ctx).Where("user_id = ?", ownerID), id)
}

func (r *liveRepository) GetOwnedForUpdate(ctx context.Context, id, ownerID uint) (*models.Live, error) {
	return r.first(r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("user_id = ?", ownerID), id)
}

func (r *liveRepository) HasScheduled(ctx context.Context, ownerID uint) (bool, error) {
	var count int64
	if err := r.db.WithContext(ctx).
		Model(&models.Live{}).
		Where("user_id = ? AND status = ?", ownerID, models.LiveStatusScheduled).
		Count(&count).Error; err != nil {
		return false, models.NewInternalError(err)
	}
	return count > 0, nil
}

func (r *liveRepository) Save(ctx context.Context, live *models.Live) error {
	return wrapWriteErr(r.db.WithContext(ctx).Save(live).Error, ErrLiveAlreadyCreated)
}

func (r *liveRepository) UpdateStatus(ctx context.Context, id uint, status models.LiveStatus) error {
	if err := r.db.WithContext(ctx).
		Model(&models.Live{}).
		Where("id = ?", id).
		Update("status", status).Error; err != nil {
		return models.NewInternalError(err)
	}
	return nil
}

func (r *liveRepository) UpdateFilter(ctx context.Context, id uint, filter string) error {
	if err := r.db.WithContext(ctx).
		Model(&models.Live{}).
		Where("id = ?", id).
		Update("filter", filter).Error; err != nil {
		return models.NewInternalError(err)
	}
	return nil
}

// MarkCreatorJoined flips creator_joined once. It reports whether this call flipped it.
func (r *liveRepository) MarkCreatorJoined(ctx context.Context, id uint) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.Live{}).
		Where("id = ? AND creator_joined = ?", id, false).
		Update("creator_joined", true)
	if res.Error != nil {
		return false, models.NewInternalError(res.Error)
	}
	return res.RowsAffected > 0, nil
}

func (r *liveRepository) ListScheduledBefore(ctx context.Context, before time.Time) ([]models.Live, error) {
	var lives []models.Live
	if err := r.db.WithContext(ctx).
		Where("status = ? AND scheduled_at < ?", models.LiveStatusScheduled, before).
		Order("id ASC").
		Find(&lives).Error; err != nil {
		return nil, models.NewInternalError(err)
	}
	return lives, nil
}

// SetStatus moves the given lives from one status to another and returns how many moved.
func (r *liveRepository) SetStatus(ctx context.Context, ids []uint, from, to models.LiveStatus) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	res := r.db.WithContext(ctx).
		Model(&models.Live{}).
		Where("id IN ? AND status = ?", ids, from).
		Update("status", to)
	if res.Error != nil {
		return 0, models.NewInternalError(res.Error)
	}
	return res.RowsAffected, nil
}
