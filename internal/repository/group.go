package repository

import (
	"context"

	"fanlive/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GroupRepository answers admin group membership questions.
type GroupRepository interface {
	IsMember(ctx context.Context, groupTag string, userID uint) (bool, error)
	Members(ctx context.Context, groupTag string) ([]uint, error)
	Add(ctx context.Context, groupTag string, userID uint) error
	Remove(ctx context.Context, groupTag string, userID uint) error
}

type groupRepository struct {
	db *gorm.DB
}

func NewGroupRepository(db *gorm.DB) GroupRepository {
	return &groupRepository{db: db}
}

// IsMember is false for an empty tag.
func (r *groupRepository) IsMember(ctx context.Context, groupTag string, userID uint) (bool, error) {
	if groupTag == "" {
		return false, nil
	}
	var count int64
	if err := r.db.WithContext(ctx).
		Model(&models.GroupMember{}).
		Where("group_tag = ? AND user_id = ?", groupTag, userID).
		Count(&count).Error; err != nil {
		return false, models.NewInternalError(err)
	}
	return count > 0, nil
}

func (r *groupRepository) Members(ctx context.Context, groupTag string) ([]uint, error) {
	var ids []uint
	if err := r.db.WithContext(ctx).
		Model(&models.GroupMember{}).
		Where("group_tag = ?", groupTag).
		Order("user_id ASC").
		Pluck("user_id", &ids).Error; err != nil {
		return nil, models.NewInternalError(err)
	}
	return ids, nil
}

// Add is idempotent.
func (r *groupRepository) Add(ctx context.Context, groupTag string, userID uint) error {
	if err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&models.GroupMember{GroupTag: groupTag, UserID: userID}).Error; err != nil {
		return models.NewInternalError(err)
	}
	return nil
}

func (r *groupRepository) Remove(ctx context.Context, groupTag string, userID uint) error {
	if err := r.db.WithContext(ctx).
		Where("group_tag = ? AND user_id = ?", groupTag, userID).
		Delete(&models.GroupMember{}).Error; err != nil {
		return models.NewInternalError(err)
	}
	return nil
}
