package service

import (
	"context"
	"strings"

	"fanlive/internal/models"
	"fanlive/internal/repository"
)

// GoalInput is a goal write request. GoalID is the decoded id or zero.
type GoalInput struct {
	Name   string
	Amount int64
	GoalID uint
}

func (in GoalInput) normalized() GoalInput {
	in.Name = strings.TrimSpace(in.Name)
	return in
}

// IsClear reports a request carrying no goal data at all.
func (in GoalInput) IsClear() bool {
	in = in.normalized()
	return in.Name == "" && in.Amount == 0 && in.GoalID == 0
}

// Validate rejects a goal with only one of name and amount.
func (in GoalInput) Validate() error {
	in = in.normalized()
	if in.Amount < 0 {
		return models.NewFieldValidationError("Invalid goal", map[string]string{"goal_amount": "must not be negative"})
	}
	hasName, hasAmount := in.Name != "", in.Amount > 0
	switch {
	case hasName && !hasAmount:
		return models.NewFieldValidationError("Goal name and amount must be provided together",
			map[string]string{"goal_amount": "is required when goal_name is set"})
	case hasAmount && !hasName:
		return models.NewFieldValidationError("Goal name and amount must be provided together",
			map[string]string{"goal_name": "is required when goal_amount is set"})
	case !hasName && !hasAmount && in.GoalID != 0:
		return models.NewFieldValidationError("Goal name and amount are required",
			map[string]string{"goal_name": "is required", "goal_amount": "is required"})
	}
	return nil
}

// GoalService owns the goal ledger of each live.
type GoalService struct {
	store   *repository.Store
	mirror  GoalMirror
	events  EventPublisher
	effects *SideEffects
}

func NewGoalService(store *repository.Store, mirror GoalMirror, events EventPublisher, effects *SideEffects) *GoalService {
	if events == nil {
		events = noopPublisher{}
	}
	return &GoalService{store: store, mirror: mirror, events: events, effects: effects}
}

// lockOwnedLive loads the live under a row lock and checks ownership.
func lockOwnedLive(ctx context.Context, tx *repository.Store, ownerID, liveID uint) (*models.Live, error) {
	live, err := tx.Lives.GetForUpdate(ctx, liveID)
	if err != nil {
		return nil, err
	}
	if live.UserID != ownerID {
		return nil, models.NewForbiddenError("You are not the owner of this live")
	}
	return live, nil
}

// Upsert applies in to liveID for its owner and returns the active goals.
// Exactly one goal is active afterwards.
func (s *GoalService) Upsert(ctx context.Context, ownerID, liveID uint, in GoalInput) ([]models.LiveGoal, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}

	var active []models.LiveGoal
	err := s.store.InTx(ctx, func(tx *repository.Store) error {
		if _, err := lockOwnedLive(ctx, tx, ownerID, liveID); err != nil {
			return err
		}
		if _, err := upsertGoal(ctx, tx, liveID, in); err != nil {
			return err
		}
		var err error
		active, err = tx.Goals.ListActive(ctx, liveID)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.syncLater(ctx, liveID)
	return active, nil
}

// upsertGoal is the ledger write. It must run inside a transaction that holds
// the live row lock.
func upsertGoal(ctx context.Context, tx *repository.Store, liveID uint, in GoalInput) (*models.LiveGoal, error) {
	in = in.normalized()
	if err := in.Validate(); err != nil {
		return nil, err
	}

	if in.IsClear() {
		latest, err := tx.Goals.LatestActiveForUpdate(ctx, liveID)
		if err != nil {
			return nil, err
		}
		if latest != nil && latest.IsEmpty() {
			return latest, nil
		}
		if latest != nil {
			if _, err := tx.Goals.Deactivate(ctx, liveID, []uint{latest.ID}); err != nil {
				return nil, err
			}
		}
		return createGoal(ctx, tx, liveID, "", 0)
	}

	if in.GoalID != 0 {
		goal, err := tx.Goals.GetByID(ctx, in.GoalID)
		if models.ErrorCode(err) == models.CodeNotFound || (err == nil && (goal.LiveID != liveID || !goal.Active)) {
			return nil, models.NewInvalidInputError("Invalid goal id")
		}
		if err != nil {
			return nil, err
		}
		if err := tx.Goals.UpdateFields(ctx, goal.ID, in.Name, in.Amount); err != nil {
			return nil, err
		}
		goal.Name, goal.Amount = in.Name, in.Amount
		return goal, nil
	}

	latest, err := tx.Goals.LatestActiveForUpdate(ctx, liveID)
	if err != nil {
		return nil, err
	}
	switch {
	case latest == nil:
		return createGoal(ctx, tx, liveID, in.Name, in.Amount)
	case latest.IsEmpty():
		// A real goal replaces the placeholder so the history keeps both rows.
		if _, err := tx.Goals.Deactivate(ctx, liveID, []uint{latest.ID}); err != nil {
			return nil, err
		}
		return createGoal(ctx, tx, liveID, in.Name, in.Amount)
	default:
		if err := tx.Goals.UpdateFields(ctx, latest.ID, in.Name, in.Amount); err != nil {
			return nil, err
		}
		latest.Name, latest.Amount = in.Name, in.Amount
		return latest, nil
	}
}

func createGoal(ctx context.Context, tx *repository.Store, liveID uint, name string, amount int64) (*models.LiveGoal, error) {
	goal := &models.LiveGoal{LiveID: liveID, Name: name, Amount: amount, Active: true}
	if err := tx.Goals.Create(ctx, goal); err != nil {
		return nil, err
	}
	return goal, nil
}

// Deactivate clears the active flag on ids of an owned live and returns the goals still active.
func (s *GoalService) Deactivate(ctx context.Context, ownerID, liveID uint, ids []uint) ([]models.LiveGoal, error) {
	var active []models.LiveGoal
	err := s.store.InTx(ctx, func(tx *repository.Store) error {
		if _, err := lockOwnedLive(ctx, tx, ownerID, liveID); err != nil {
			return err
		}
		if _, err := tx.Goals.Deactivate(ctx, liveID, ids); err != nil {
			return err
		}
		var err error
		active, err = tx.Goals.ListActive(ctx, liveID)
		return err
	})
	if err != nil {
		return nil, err
	}
	if len(ids) > 0 {
		s.syncLater(ctx, liveID)
	}
	return active, nil
}

// Progress returns the current goal of liveID with its tips, refreshing the mirror.
// The goal is nil when the live has no active goal.
func (s *GoalService) Progress(ctx context.Context, liveID uint) (*models.GoalProgress, error) {
	if _, err := s.store.Lives.GetByID(ctx, liveID); err != nil {
		return nil, err
	}
	p, err := currentProgress(ctx, s.store, liveID)
	if err != nil {
		return nil, err
	}
	s.syncLater(ctx, liveID)
	return p, nil
}

func currentProgress(ctx context.Context, store *repository.Store, liveID uint) (*models.GoalProgress, error) {
	goal, err := store.Goals.LatestActive(ctx, liveID)
	if err != nil || goal == nil {
		return nil, err
	}
	tips, err := store.Earnings.SumForGoal(ctx, goal.ID)
	if err != nil {
		return nil, err
	}
	p := models.NewGoalProgress(goal, tips)
	return &p, nil
}

// SyncMirror rebuilds the mirrored goal of liveID from the database and
// announces it to viewers.
func (s *GoalService) SyncMirror(ctx context.Context, liveID uint) error {
	p, err := currentProgress(ctx, s.store, liveID)
	if err != nil {
		return err
	}
	if p == nil {
		p = &models.GoalProgress{LiveID: liveID}
	}
	if s.mirror != nil {
		if err := s.mirror.Sync(ctx, *p); err != nil {
			return err
		}
	}
	return s.events.PublishLiveEvent(ctx, liveID, EventGoalProgress, p)
}

// DropMirror removes the mirrored goal of a live that has ended.
func (s *GoalService) DropMirror(ctx context.Context, liveID uint) error {
	if s.mirror == nil {
		return nil
	}
	return s.mirror.Clear(ctx, liveID)
}

func (s *GoalService) syncLater(ctx context.Context, liveID uint) {
	if s.effects == nil {
		return
	}
	s.effects.Go(ctx, "goal_mirror_sync", func(ctx context.Context) error {
		return s.SyncMirror(ctx, liveID)
	})
}
