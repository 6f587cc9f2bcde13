package service

import (
	"context"
	"fmt"
	"strings"

	"fanlive/internal/models"
	"fanlive/internal/repository"
	"fanlive/internal/settings"
)

// TipMenuInput is the full replacement menu as parallel lists.
type TipMenuInput struct {
	Activities []string
	Coins      []int64
}

// TipMenuService owns the tipping menu of each live.
type TipMenuService struct {
	store    *repository.Store
	settings settings.Source
	events   EventPublisher
	effects  *SideEffects
}

func NewTipMenuService(store *repository.Store, src settings.Source, events EventPublisher, effects *SideEffects) *TipMenuService {
	if events == nil {
		events = noopPublisher{}
	}
	return &TipMenuService{store: store, settings: src, events: events, effects: effects}
}

// ValidateTipMenu checks every entry against the tip bounds and reports all
// failures at once, keyed by field and index.
func ValidateTipMenu(in TipMenuInput, minCoins, maxCoins int64) ([]models.LiveTipMenu, error) {
	if len(in.Activities) != len(in.Coins) {
		return nil, models.NewFieldValidationError("Activities and coins must have the same length",
			map[string]string{"coins": fmt.Sprintf("expected %d entries, got %d", len(in.Activities), len(in.Coins))})
	}

	fields := map[string]string{}
	items := make([]models.LiveTipMenu, 0, len(in.Activities))
	for i, name := range in.Activities {
		name = strings.TrimSpace(name)
		if name == "" {
			fields[fmt.Sprintf("activities[%d]", i)] = "is required"
		} else if len(name) > 100 {
			fields[fmt.Sprintf("activities[%d]", i)] = "must be at most 100 characters"
		}
		if c := in.Coins[i]; c < minCoins || c > maxCoins {
			fields[fmt.Sprintf("coins[%d]", i)] = fmt.Sprintf("must be between %d and %d", minCoins, maxCoins)
		}
		items = append(items, models.LiveTipMenu{Activity: name, Coins: in.Coins[i], Active: true})
	}
	if len(fields) > 0 {
		return nil, models.NewFieldValidationError("Invalid tip menu", fields)
	}
	return items, nil
}

// Replace swaps the whole menu of an owned live. Nothing is written when any entry is invalid.
func (s *TipMenuService) Replace(ctx context.Context, ownerID, liveID uint, in TipMenuInput) ([]models.LiveTipMenu, error) {
	cfg, err := s.settings.Get(ctx)
	if err != nil {
		return nil, models.NewInternalError(err)
	}
	items, err := ValidateTipMenu(in, cfg.MinTipAmount, cfg.MaxTipAmount)
	if err != nil {
		return nil, err
	}

	var menu []models.LiveTipMenu
	err = s.store.InTx(ctx, func(tx *repository.Store) error {
		if _, err := lockOwnedLive(ctx, tx, ownerID, liveID); err != nil {
			return err
		}
		var err error
		menu, err = replaceTipMenu(ctx, tx, liveID, items)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.announce(ctx, liveID, menu)
	return menu, nil
}

// replaceTipMenu deletes every row of liveID then inserts items.
func replaceTipMenu(ctx context.Context, tx *repository.Store, liveID uint, items []models.LiveTipMenu) ([]models.LiveTipMenu, error) {
	if err := tx.TipMenus.DeleteByLive(ctx, liveID); err != nil {
		return nil, err
	}
	for i := range items {
		items[i].ID = 0
		items[i].LiveID = liveID
		items[i].Active = true
	}
	if err := tx.TipMenus.CreateBatch(ctx, items); err != nil {
		return nil, err
	}
	return tx.TipMenus.ListActive(ctx, liveID)
}

// Active returns the active menu of liveID.
func (s *TipMenuService) Active(ctx context.Context, liveID uint) ([]models.LiveTipMenu, error) {
	if _, err := s.store.Lives.GetByID(ctx, liveID); err != nil {
		return nil, err
	}
	return s.store.TipMenus.ListActive(ctx, liveID)
}

func (s *TipMenuService) announce(ctx context.Context, liveID uint, menu []models.LiveTipMenu) {
	if s.effects == nil {
		return
	}
	s.effects.Go(ctx, "tip_menu_event", func(ctx context.Context) error {
		return s.events.PublishLiveEvent(ctx, liveID, EventTipMenu, menu)
	})
}
