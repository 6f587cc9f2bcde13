// Package service holds the live session business logic.
package service

import (
	"context"

	"fanlive/internal/models"
)

// GoalMirror receives derived goal progress for fast reads.
type GoalMirror interface {
	Sync(ctx context.Context, p models.GoalProgress) error
	Clear(ctx context.Context, liveID uint) error
}

// ViewerCounter reports how many users are connected to a live.
type ViewerCounter interface {
	Count(ctx context.Context, liveID uint) (int64, error)
}

// EventPublisher fans live events out to connected clients.
type EventPublisher interface {
	PublishLiveEvent(ctx context.Context, liveID uint, event string, payload any) error
}

// ReminderScheduler plans reminder delivery for a live. skipEmail carries the
// buffer decision; the scheduler honors it but never decides it.
type ReminderScheduler interface {
	Schedule(ctx context.Context, live *models.Live, recipients []uint, skipEmail bool) error
}

// Live event names published to viewers.
const (
	EventGoalProgress = "goal_progress"
	EventTipMenu      = "tip_menu"
	EventFilter       = "filter"
	EventLiveDeleted  = models.LiveEventDeleted
	EventLiveExpired  = models.LiveEventExpired
	EventRescheduled  = "live_rescheduled"
)

type noopPublisher struct{}

func (noopPublisher) PublishLiveEvent(context.Context, uint, string, any) error { return nil }

type noopReminders struct{}

func (noopReminders) Schedule(context.Context, *models.Live, []uint, bool) error { return nil }
