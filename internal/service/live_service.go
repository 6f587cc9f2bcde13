package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"fanlive/internal/models"
	"fanlive/internal/observability"
	"fanlive/internal/repository"
	"fanlive/internal/rtc"
	"fanlive/internal/settings"

	"github.com/google/uuid"
)

// MinRescheduleLead is how far ahead a non-exempt owner must reschedule.
const MinRescheduleLead = 12 * time.Hour

// ExpireGrace is how long after its planned end a never-closed live expires.
const ExpireGrace = time.Hour

// LiveInput carries the editable fields of a live. ScheduledAt is UTC and
// ignored for immediate lives.
type LiveInput struct {
	Type            models.LiveType
	Title           string
	ScheduledAt     time.Time
	Timezone        string
	DurationMinutes int
	Price           int64
	Availability    string
	Goal            *GoalInput
	TipMenu         *TipMenuInput
}

// LiveResult is the outcome of a create or edit.
type LiveResult struct {
	Live        *models.Live
	Rescheduled bool
	SkipEmail   bool
	Credential  *rtc.Credential
}

// LiveService owns the live session lifecycle.
type LiveService struct {
	store     *repository.Store
	settings  settings.Source
	issuer    *rtc.Issuer
	goals     *GoalService
	reminders ReminderScheduler
	events    EventPublisher
	effects   *SideEffects
	now       func() time.Time
}

func NewLiveService(
	store *repository.Store,
	src settings.Source,
	issuer *rtc.Issuer,
	goals *GoalService,
	reminders ReminderScheduler,
	events EventPublisher,
	effects *SideEffects,
) *LiveService {
	if reminders == nil {
		reminders = noopReminders{}
	}
	if events == nil {
		events = noopPublisher{}
	}
	return &LiveService{
		store:     store,
		settings:  src,
		issuer:    issuer,
		goals:     goals,
		reminders: reminders,
		events:    events,
		effects:   effects,
		now:       time.Now,
	}
}

// SetClock replaces the time source.
func (s *LiveService) SetClock(now func() time.Time) {
	s.now = now
}

// NewChannelName returns a globally unique channel for ownerID.
func NewChannelName(ownerID uint) string {
	return fmt.Sprintf("live-%s-%d", strings.ReplaceAll(uuid.NewString(), "-", ""), ownerID)
}

// skipEmail is true when the live starts inside the buffer window or the owner
// is notification-restricted.
func skipEmail(scheduledAt, now time.Time, bufferMinutes int, restricted bool) bool {
	if restricted {
		return true
	}
	return scheduledAt.Sub(now) < time.Duration(bufferMinutes)*time.Minute
}

func (s *LiveService) loadSettings(ctx context.Context) (models.AdminSettings, error) {
	cfg, err := s.settings.Get(ctx)
	if err != nil {
		return models.AdminSettings{}, models.NewInternalError(err)
	}
	return cfg, nil
}

func (s *LiveService) validateInput(in *LiveInput, now time.Time) error {
	switch in.Type {
	case models.LiveTypeImmediate:
		in.ScheduledAt = now.UTC()
	case models.LiveTypeScheduled:
		if in.ScheduledAt.IsZero() {
			return models.NewFieldValidationError("Invalid live", map[string]string{"date": "is required"})
		}
		in.ScheduledAt = in.ScheduledAt.UTC()
	default:
		return models.NewFieldValidationError("Invalid live", map[string]string{"type": "must be immediate or scheduled"})
	}
	if in.Goal != nil {
		if err := in.Goal.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// Create inserts a new scheduled-status live for ownerID. An owner may hold
// only one live in scheduled status; the partial unique index enforces it
// against concurrent requests.
func (s *LiveService) Create(ctx context.Context, ownerID uint, in LiveInput) (res *LiveResult, err error) {
	defer func() { observability.RecordLiveOperation("create", models.ErrorCode(err)) }()

	now := s.now()
	if err := s.validateInput(&in, now); err != nil {
		return nil, err
	}
	if _, err := s.store.Users.GetByID(ctx, ownerID); err != nil {
		return nil, err
	}

	cfg, err := s.loadSettings(ctx)
	if err != nil {
		return nil, err
	}
	app := settings.AppCredentials(cfg)
	if in.Type == models.LiveTypeImmediate && !hasAppCredentials(app) {
		return nil, errRTCUnavailable()
	}
	var menu []models.LiveTipMenu
	if in.TipMenu != nil {
		if menu, err = ValidateTipMenu(*in.TipMenu, cfg.MinTipAmount, cfg.MaxTipAmount); err != nil {
			return nil, err
		}
	}
	restricted, err := s.store.Groups.IsMember(ctx, cfg.NotifyRestrictedGroup, ownerID)
	if err != nil {
		return nil, err
	}

	live := &models.Live{
		UserID:          ownerID,
		ChannelName:     NewChannelName(ownerID),
		Type:            in.Type,
		Title:           strings.TrimSpace(in.Title),
		ScheduledAt:     in.ScheduledAt,
		Timezone:        in.Timezone,
		DurationMinutes: in.DurationMinutes,
		Price:           in.Price,
		Availability:    in.Availability,
		Status:          models.LiveStatusScheduled,
		Filter:          models.FilterNone,
	}

	err = s.store.InTx(ctx, func(tx *repository.Store) error {
		exists, err := tx.Lives.HasScheduled(ctx, ownerID)
		if err != nil {
			return err
		}
		if exists {
			return models.NewConflictError(repository.ErrLiveAlreadyCreated)
		}
		if err := tx.Lives.Create(ctx, live); err != nil {
			return err
		}

		goal := GoalInput{}
		if in.Goal != nil {
			goal = *in.Goal
		}
		if _, err := upsertGoal(ctx, tx, live.ID, goal); err != nil {
			return err
		}
		if in.TipMenu != nil {
			if _, err := replaceTipMenu(ctx, tx, live.ID, menu); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	res = &LiveResult{
		Live:      live,
		SkipEmail: skipEmail(live.ScheduledAt, now, cfg.RescheduleBufferMinutes, restricted),
	}
	if in.Type == models.LiveTypeImmediate {
		if res.Credential, err = s.publisherCredential(app, live); err != nil {
			return nil, err
		}
	}

	s.afterWrite(ctx, live, true, res.SkipEmail)
	return res, nil
}

func hasAppCredentials(app rtc.AppCredentials) bool {
	return app.AppID != "" && app.AppSecret != ""
}

func errRTCUnavailable() error {
	return models.NewConfigUnavailableError("Real-time configuration is unavailable")
}

func (s *LiveService) publisherCredential(app rtc.AppCredentials, live *models.Live) (*rtc.Credential, error) {
	cred, err := s.issuer.Issue(app, live.ChannelName, rtc.RolePublisher)
	if err != nil {
		return nil, credentialError(err)
	}
	observability.CredentialsIssued.WithLabelValues("live", string(rtc.RolePublisher)).Inc()
	return &cred, nil
}

// Edit updates an owned live. Changing the start time is a reschedule and is
// bounded by the admin ceiling and the minimum lead time. Switching a
// scheduled live to immediate starts it now: reminders are rebuilt and a
// publisher credential is issued, but it does not count as a reschedule.
func (s *LiveService) Edit(ctx context.Context, ownerID, liveID uint, in LiveInput) (res *LiveResult, err error) {
	defer func() { observability.RecordLiveOperation("edit", models.ErrorCode(err)) }()

	now := s.now()
	if err := s.validateInput(&in, now); err != nil {
		return nil, err
	}

	cfg, err := s.loadSettings(ctx)
	if err != nil {
		return nil, err
	}
	var menu []models.LiveTipMenu
	if in.TipMenu != nil {
		if menu, err = ValidateTipMenu(*in.TipMenu, cfg.MinTipAmount, cfg.MaxTipAmount); err != nil {
			return nil, err
		}
	}
	exempt, err := s.store.Groups.IsMember(ctx, cfg.RescheduleExemptGroup, ownerID)
	if err != nil {
		return nil, err
	}
	restricted, err := s.store.Groups.IsMember(ctx, cfg.NotifyRestrictedGroup, ownerID)
	if err != nil {
		return nil, err
	}

	app := settings.AppCredentials(cfg)

	var live *models.Live
	rescheduled, startedNow := false, false
	err = s.store.InTx(ctx, func(tx *repository.Store) error {
		var err error
		live, err = tx.Lives.GetOwnedForUpdate(ctx, liveID, ownerID)
		if err != nil {
			return err
		}
		if live.Type != models.LiveTypeScheduled && in.Type == models.LiveTypeScheduled {
			return models.NewNotFoundError("Live", nil)
		}
		if live.Status != models.LiveStatusScheduled {
			return models.NewInvalidStateError(fmt.Sprintf("Live stream is %s and cannot be edited", live.Status))
		}

		if live.Type == models.LiveTypeScheduled && in.Type == models.LiveTypeScheduled &&
			!in.ScheduledAt.Equal(live.ScheduledAt.UTC()) {
			if live.RescheduleCount >= cfg.MaxReschedules {
				return models.NewLimitExceededError(
					fmt.Sprintf("Live can be rescheduled at most %d times", cfg.MaxReschedules))
			}
			if !exempt && in.ScheduledAt.Before(now.Add(MinRescheduleLead)) {
				return models.NewTooSoonError("Live must be rescheduled at least 12 hours in advance")
			}
			live.ScheduledAt = in.ScheduledAt
			live.RescheduleCount++
			rescheduled = true
		}
		if live.Type == models.LiveTypeScheduled && in.Type == models.LiveTypeImmediate {
			if !hasAppCredentials(app) {
				return errRTCUnavailable()
			}
			live.ScheduledAt = in.ScheduledAt
			startedNow = true
		}

		live.Type = in.Type
		live.Title = strings.TrimSpace(in.Title)
		live.Timezone = in.Timezone
		live.DurationMinutes = in.DurationMinutes
		live.Price = in.Price
		live.Availability = in.Availability
		if err := tx.Lives.Save(ctx, live); err != nil {
			return err
		}

		if in.Goal != nil {
			if _, err := upsertGoal(ctx, tx, live.ID, *in.Goal); err != nil {
				return err
			}
		}
		if in.TipMenu != nil {
			if _, err := replaceTipMenu(ctx, tx, live.ID, menu); err != nil {
				return err
			}
		}
		if rescheduled || startedNow {
			if _, err := tx.Notifications.DeletePending(ctx, live.ID, models.LiveReminderTypes); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	res = &LiveResult{
		Live:        live,
		Rescheduled: rescheduled,
		SkipEmail:   skipEmail(live.ScheduledAt, now, cfg.RescheduleBufferMinutes, restricted),
	}
	if startedNow {
		if res.Credential, err = s.publisherCredential(app, live); err != nil {
			return nil, err
		}
	}
	s.afterWrite(ctx, live, rescheduled || startedNow, res.SkipEmail)
	if rescheduled || startedNow {
		s.publish(ctx, live.ID, EventRescheduled, map[string]any{"scheduled_at": live.ScheduledAt})
	}
	return res, nil
}

func (s *LiveService) afterWrite(ctx context.Context, live *models.Live, notify, skip bool) {
	if s.effects == nil {
		return
	}
	if s.goals != nil {
		liveID := live.ID
		s.effects.Go(ctx, "goal_mirror_sync", func(ctx context.Context) error {
			return s.goals.SyncMirror(ctx, liveID)
		})
	}
	if notify {
		snapshot := *live
		s.effects.Go(ctx, "schedule_reminders", func(ctx context.Context) error {
			fans, err := s.store.Earnings.BookedUserIDs(ctx, snapshot.ID)
			if err != nil {
				return err
			}
			recipients := append([]uint{snapshot.UserID}, fans...)
			return s.reminders.Schedule(ctx, &snapshot, recipients, skip)
		})
	}
}

func (s *LiveService) publish(ctx context.Context, liveID uint, event string, payload any) {
	if s.effects == nil {
		return
	}
	s.effects.Go(ctx, "live_event_"+event, func(ctx context.Context) error {
		return s.events.PublishLiveEvent(ctx, liveID, event, payload)
	})
}

// Delete soft-deletes a scheduled live and drops its pending reminders.
func (s *LiveService) Delete(ctx context.Context, ownerID, liveID uint) (err error) {
	defer func() { observability.RecordLiveOperation("delete", models.ErrorCode(err)) }()

	err = s.store.InTx(ctx, func(tx *repository.Store) error {
		live, err := tx.Lives.GetOwnedForUpdate(ctx, liveID, ownerID)
		if err != nil {
			return err
		}
		if live.Status != models.LiveStatusScheduled {
			return models.NewInvalidStateError(fmt.Sprintf("Live stream is %s and cannot be deleted", live.Status))
		}
		if err := tx.Lives.UpdateStatus(ctx, live.ID, models.LiveStatusDeleted); err != nil {
			return err
		}
		_, err = tx.Notifications.DeletePending(ctx, live.ID, models.LiveReminderTypes)
		return err
	})
	if err != nil {
		return err
	}
	s.publish(ctx, liveID, EventLiveDeleted, map[string]any{"status": models.LiveStatusDeleted.String()})
	s.dropMirrors(ctx, liveID)
	return nil
}

func (s *LiveService) dropMirrors(ctx context.Context, liveIDs ...uint) {
	if s.effects == nil || s.goals == nil {
		return
	}
	s.effects.Go(ctx, "goal_mirror_clear", func(ctx context.Context) error {
		var errs []error
		for _, id := range liveIDs {
			if err := s.goals.DropMirror(ctx, id); err != nil {
				errs = append(errs, err)
			}
		}
		return errors.Join(errs...)
	})
}

// GetFilter returns the filter applied to an owned live.
func (s *LiveService) GetFilter(ctx context.Context, callerID, liveID uint) (string, error) {
	live, err := s.store.Lives.GetByID(ctx, liveID)
	if err != nil {
		return "", err
	}
	if live.UserID != callerID {
		return "", models.NewForbiddenError("You are not the owner of this live")
	}
	return models.SanitizeFilter(live.Filter), nil
}

// ApplyFilter stores key on an owned live. Unknown keys become FilterNone.
func (s *LiveService) ApplyFilter(ctx context.Context, callerID, liveID uint, key string) (filter string, err error) {
	defer func() { observability.RecordLiveOperation("filter", models.ErrorCode(err)) }()

	filter = models.SanitizeFilter(strings.ToLower(strings.TrimSpace(key)))
	err = s.store.InTx(ctx, func(tx *repository.Store) error {
		if _, err := lockOwnedLive(ctx, tx, callerID, liveID); err != nil {
			return err
		}
		return tx.Lives.UpdateFilter(ctx, liveID, filter)
	})
	if err != nil {
		return "", err
	}
	s.publish(ctx, liveID, EventFilter, map[string]string{"filter": filter})
	return filter, nil
}

// ExpireStale marks scheduled lives whose planned end plus ExpireGrace has
// passed as expired. It returns how many lives were expired.
func (s *LiveService) ExpireStale(ctx context.Context) (int64, error) {
	now := s.now().UTC()
	candidates, err := s.store.Lives.ListScheduledBefore(ctx, now.Add(-ExpireGrace))
	if err != nil {
		return 0, err
	}

	var ids []uint
	for _, l := range candidates {
		end := l.ScheduledAt.Add(time.Duration(l.DurationMinutes) * time.Minute).Add(ExpireGrace)
		if end.Before(now) {
			ids = append(ids, l.ID)
		}
	}
	if len(ids) == 0 {
		return 0, nil
	}

	var moved int64
	err = s.store.InTx(ctx, func(tx *repository.Store) error {
		var err error
		moved, err = tx.Lives.SetStatus(ctx, ids, models.LiveStatusScheduled, models.LiveStatusExpired)
		if err != nil {
			return err
		}
		for _, id := range ids {
			if _, err := tx.Notifications.DeletePending(ctx, id, models.LiveReminderTypes); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	for _, id := range ids {
		s.publish(ctx, id, EventLiveExpired, map[string]any{"status": models.LiveStatusExpired.String()})
	}
	s.dropMirrors(ctx, ids...)
	return moved, nil
}

func credentialError(err error) error {
	if errors.Is(err, rtc.ErrConfigUnavailable) {
		return models.NewConfigUnavailableError("Real-time configuration is unavailable")
	}
	return models.NewInternalError(err)
}
