// Package repository provides data access layer implementations for the application.
package repository

import (
	"context"

	"fanlive/internal/database"
	"fanlive/internal/models"

	"gorm.io/gorm"
)

// Store bundles the repositories that share one connection or transaction.
type Store struct {
	db *gorm.DB

	Lives         LiveRepository
	Goals         GoalRepository
	TipMenus      TipMenuRepository
	Notifications NotificationRepository
	Calls         CallRepository
	Users         UserRepository
	Groups        GroupRepository
	Earnings      EarningsRepository
}

// NewStore builds every repository over db.
func NewStore(db *gorm.DB) *Store {
	return &Store{
		db:            db,
		Lives:         NewLiveRepository(db),
		Goals:         NewGoalRepository(db),
		TipMenus:      NewTipMenuRepository(db),
		Notifications: NewNotificationRepository(db),
		Calls:         NewCallRepository(db),
		Users:         NewUserRepository(db),
		Groups:        NewGroupRepository(db),
		Earnings:      NewEarningsRepository(db),
	}
}

// InTx runs fn with a Store bound to one transaction. Any error returned by
// fn rolls the transaction back and is returned unchanged.
func (s *Store) InTx(ctx context.Context, fn func(tx *Store) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(NewStore(tx))
	})
}

// DB exposes the underlying handle.
func (s *Store) DB() *gorm.DB {
	return s.db
}

// wrapWriteErr maps unique violations to conflictMsg and everything else to
// an internal error.
func wrapWriteErr(err error, conflictMsg string) error {
	if err == nil {
		return nil
	}
	if database.IsUniqueViolation(err) {
		return &models.AppError{Code: models.CodeConflict, Message: conflictMsg, Err: err}
	}
	return models.NewInternalError(err)
}
