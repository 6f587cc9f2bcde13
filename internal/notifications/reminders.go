package notifications

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"fanlive/internal/middleware"
	"fanlive/internal/models"
	"fanlive/internal/observability"
	"fanlive/internal/queue"
	"fanlive/internal/repository"
)

// TaskLiveReminder delivers one pending LiveNotification row.
const TaskLiveReminder = "live:reminder"

const reminderMaxRetry = 5

// reminderOffsets are the send times relative to the start of a live.
var reminderOffsets = []struct {
	Type   string
	Before time.Duration
}{
	{models.NotificationLiveReminder24h, 24 * time.Hour},
	{models.NotificationLiveReminder1h, time.Hour},
	{models.NotificationLiveStarting, 0},
}

// Enqueuer is the part of queue.Client the scheduler needs.
type Enqueuer interface {
	Enqueue(ctx context.Context, t queue.Task, opts queue.Options) (string, error)
}

// ReminderPayload is the body of a TaskLiveReminder task.
type ReminderPayload struct {
	NotificationID uint `json:"notification_id"`
}

// ReminderScheduler writes the reminder rows of a live and queues their delivery.
type ReminderScheduler struct {
	notifications repository.NotificationRepository
	queue         Enqueuer
	now           func() time.Time
}

// NewReminderScheduler returns a scheduler. A nil q only writes rows.
func NewReminderScheduler(notifications repository.NotificationRepository, q Enqueuer) *ReminderScheduler {
	return &ReminderScheduler{notifications: notifications, queue: q, now: time.Now}
}

func (s *ReminderScheduler) SetClock(now func() time.Time) {
	s.now = now
}

// Schedule replaces the pending reminders of live for recipients. Send times
// already in the past are skipped.
func (s *ReminderScheduler) Schedule(ctx context.Context, live *models.Live, recipients []uint, skipEmail bool) error {
	now := s.now()
	if _, err := s.notifications.DeletePending(ctx, live.ID, models.LiveReminderTypes); err != nil {
		return err
	}

	seen := make(map[uint]struct{}, len(recipients))
	var rows []models.LiveNotification
	for _, userID := range recipients {
		if _, dup := seen[userID]; dup || userID == 0 {
			continue
		}
		seen[userID] = struct{}{}
		for _, o := range reminderOffsets {
			sendAt := live.ScheduledAt.Add(-o.Before)
			if sendAt.Before(now) {
				continue
			}
			rows = append(rows, models.LiveNotification{
				LiveID:    live.ID,
				UserID:    userID,
				Type:      o.Type,
				SendAt:    sendAt.UTC(),
				SkipEmail: skipEmail,
			})
		}
	}
	if len(rows) == 0 {
		return nil
	}
	if err := s.notifications.CreateBatch(ctx, rows); err != nil {
		return err
	}
	if s.queue == nil {
		return nil
	}

	var errs []error
	for _, row := range rows {
		body, err := json.Marshal(ReminderPayload{NotificationID: row.ID})
		if err != nil {
			return err
		}
		_, err = s.queue.Enqueue(ctx, queue.Task{Type: TaskLiveReminder, Payload: body}, queue.Options{
			Queue:     queue.QueueReminders,
			TaskID:    fmt.Sprintf("live-reminder-%d", row.ID),
			ProcessAt: row.SendAt,
			MaxRetry:  reminderMaxRetry,
		})
		if err != nil && !errors.Is(err, queue.ErrDuplicate) {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// UserPublisher delivers a payload to one user.
type UserPublisher interface {
	PublishUser(ctx context.Context, userID uint, payload string) error
}

// ReminderMessage is what a user receives when a reminder fires.
type ReminderMessage struct {
	Type    string         `json:"type"`
	Payload ReminderDetail `json:"payload"`
}

type ReminderDetail struct {
	ChannelName string    `json:"channel_name"`
	Title       string    `json:"title"`
	ScheduledAt time.Time `json:"scheduled_at"`
	SkipEmail   bool      `json:"skip_email"`
}

// ReminderHandler delivers TaskLiveReminder tasks.
type ReminderHandler struct {
	store     *repository.Store
	publisher UserPublisher
}

func NewReminderHandler(store *repository.Store, publisher UserPublisher) *ReminderHandler {
	return &ReminderHandler{store: store, publisher: publisher}
}

// Handle publishes the reminder and marks the row sent. Rows removed by a
// reschedule or delete, and lives no longer scheduled, are dropped.
func (h *ReminderHandler) Handle(ctx context.Context, t queue.Task) error {
	outcome, err := h.handle(ctx, t)
	observability.RemindersDelivered.WithLabelValues(outcome).Inc()
	if err != nil {
		middleware.Logger.WarnContext(ctx, "reminder delivery failed",
			slog.String("outcome", outcome),
			slog.String("error", err.Error()),
		)
	}
	return err
}

func (h *ReminderHandler) handle(ctx context.Context, t queue.Task) (string, error) {
	var p ReminderPayload
	if err := json.Unmarshal(t.Payload, &p); err != nil || p.NotificationID == 0 {
		return "invalid", queue.Permanent(fmt.Errorf("invalid reminder payload %q", t.Payload))
	}

	row, err := h.store.Notifications.GetByID(ctx, p.NotificationID)
	if models.ErrorCode(err) == models.CodeNotFound {
		return "stale", nil
	}
	if err != nil {
		return "error", err
	}
	if row.Sent {
		return "duplicate", nil
	}

	live, err := h.store.Lives.GetByID(ctx, row.LiveID)
	if models.ErrorCode(err) == models.CodeNotFound {
		return "stale", nil
	}
	if err != nil {
		return "error", err
	}
	if live.Status != models.LiveStatusScheduled {
		return "cancelled", nil
	}

	body, err := json.Marshal(ReminderMessage{
		Type: row.Type,
		Payload: ReminderDetail{
			ChannelName: live.ChannelName,
			Title:       live.Title,
			ScheduledAt: live.ScheduledAt.UTC(),
			SkipEmail:   row.SkipEmail,
		},
	})
	if err != nil {
		return "error", err
	}
	if err := h.publisher.PublishUser(ctx, row.UserID, string(body)); err != nil {
		return "error", err
	}

	marked, err := h.store.Notifications.MarkSent(ctx, row.ID)
	if err != nil {
		return "error", err
	}
	if !marked {
		return "duplicate", nil
	}
	return "sent", nil
}
