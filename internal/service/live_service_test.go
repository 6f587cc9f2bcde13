package service

import (
	"context"
	"testing"
	"time"

	"fanlive/internal/models"
	"fanlive/internal/rtc"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLiveService_CreateScheduled(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.user(t, 1, true)

	res, err := f.lives.Create(context.Background(), 1, scheduledInput(testNow.Add(48*time.Hour)))
	require.NoError(t, err)

	live := res.Live
	assert.Equal(t, models.LiveStatusScheduled, live.Status)
	assert.Equal(t, 0, live.RescheduleCount)
	assert.False(t, live.CreatorJoined)
	assert.Equal(t, models.FilterNone, live.Filter)
	assert.Contains(t, live.ChannelName, "-1")
	assert.Nil(t, res.Credential)
	assert.False(t, res.SkipEmail)

	goals := f.activeGoals(t, live.ID)
	require.Len(t, goals, 1)
	assert.True(t, goals[0].IsEmpty())
}

func TestLiveService_CreateSecondScheduledIsRejected(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.user(t, 1, true)
	f.createScheduled(t, 1, testNow.Add(48*time.Hour))

	_, err := f.lives.Create(context.Background(), 1, scheduledInput(testNow.Add(72*time.Hour)))
	require.Error(t, err)
	assert.Equal(t, models.CodeConflict, models.ErrorCode(err))
	assert.Equal(t, "Live already created", err.(*models.AppError).Message)
	assert.Equal(t, 400, models.StatusFor(err))
}

func TestLiveService_CreateImmediateIssuesPublisherCredential(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.user(t, 1, true)

	res, err := f.lives.Create(context.Background(), 1, LiveInput{
		Type: models.LiveTypeImmediate, DurationMinutes: 30, Availability: "everyone",
		ScheduledAt: testNow.Add(1000 * time.Hour),
	})
	require.NoError(t, err)
	require.NotNil(t, res.Credential)
	assert.Equal(t, rtc.RolePublisher, res.Credential.Role)
	assert.Equal(t, res.Live.ChannelName, res.Credential.Channel)
	assert.True(t, res.Live.ScheduledAt.Equal(testNow), "immediate lives start now")
	assert.True(t, res.SkipEmail, "a live starting now is inside the buffer")
}

func TestLiveService_CreateImmediateWithoutConfigWritesNothing(t *testing.T) {
	t.Parallel()
	f := newFixture(t, func(s *models.AdminSettings) { s.RTCAppSecret = "" })
	f.user(t, 1, true)

	_, err := f.lives.Create(context.Background(), 1, LiveInput{Type: models.LiveTypeImmediate, DurationMinutes: 30})
	assert.Equal(t, models.CodeConfigUnavailable, models.ErrorCode(err))

	has, err := f.store.Lives.HasScheduled(context.Background(), 1)
	require.NoError(t, err)
	assert.False(t, has)
}

func TestLiveService_CreateWithGoalAndMenu(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.user(t, 1, true)

	in := scheduledInput(testNow.Add(48 * time.Hour))
	in.Goal = &GoalInput{Name: "New camera", Amount: 500}
	in.TipMenu = &TipMenuInput{Activities: []string{"Wave", "Song"}, Coins: []int64{5, 50}}

	res, err := f.lives.Create(context.Background(), 1, in)
	require.NoError(t, err)

	goals := f.activeGoals(t, res.Live.ID)
	require.Len(t, goals, 1)
	assert.Equal(t, "New camera", goals[0].Name)
	assert.Equal(t, int64(1), f.goalRows(t, res.Live.ID))

	menu, err := f.store.TipMenus.ListActive(context.Background(), res.Live.ID)
	require.NoError(t, err)
	assert.Len(t, menu, 2)

	f.effects.Wait()
	p, ok := f.mirror.last()
	require.True(t, ok)
	assert.Equal(t, "New camera", p.Name)
}

func TestLiveService_CreateRejectsInvalidMenuBeforeWriting(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.user(t, 1, true)

	in := scheduledInput(testNow.Add(48 * time.Hour))
	in.TipMenu = &TipMenuInput{Activities: []string{"Wave", ""}, Coins: []int64{5, 0}}

	_, err := f.lives.Create(context.Background(), 1, in)
	require.Error(t, err)
	assert.Equal(t, models.CodeValidation, models.ErrorCode(err))
	fields := err.(*models.AppError).Fields
	assert.Contains(t, fields, "activities[1]")
	assert.Contains(t, fields, "coins[1]")

	has, err := f.store.Lives.HasScheduled(context.Background(), 1)
	require.NoError(t, err)
	assert.False(t, has)
}

func TestLiveService_SkipEmailDecision(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name       string
		at         time.Duration
		restricted bool
		want       bool
	}{
		{"far ahead", 48 * time.Hour, false, false},
		{"inside buffer", 30 * time.Minute, false, true},
		{"exactly at buffer", 60 * time.Minute, false, false},
		{"restricted owner", 48 * time.Hour, true, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			f.user(t, 1, true)
			if tt.restricted {
				require.NoError(t, f.store.Groups.Add(context.Background(), "notify_restricted", 1))
			}

			res, err := f.lives.Create(context.Background(), 1, scheduledInput(testNow.Add(tt.at)))
			require.NoError(t, err)
			assert.Equal(t, tt.want, res.SkipEmail)

			f.effects.Wait()
			f.mu.Lock()
			defer f.mu.Unlock()
			require.Len(t, f.scheduled, 1)
			assert.Equal(t, tt.want, f.scheduled[0])
		})
	}
}

func TestLiveService_RescheduleCeiling(t *testing.T) {
	t.Parallel()
	f := newFixture(t, func(s *models.AdminSettings) { s.MaxReschedules = 2 })
	f.user(t, 1, true)
	live := f.createScheduled(t, 1, testNow.Add(48*time.Hour))
	ctx := context.Background()

	for i := 1; i <= 2; i++ {
		res, err := f.lives.Edit(ctx, 1, live.ID, scheduledInput(testNow.Add(time.Duration(48+i)*time.Hour)))
		require.NoError(t, err)
		assert.True(t, res.Rescheduled)
		assert.Equal(t, i, res.Live.RescheduleCount)
	}

	_, err := f.lives.Edit(ctx, 1, live.ID, scheduledInput(testNow.Add(96*time.Hour)))
	require.Error(t, err)
	assert.Equal(t, models.CodeLimitExceeded, models.ErrorCode(err))
	assert.Equal(t, 400, models.StatusFor(err))

	stored, err := f.store.Lives.GetByID(ctx, live.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, stored.RescheduleCount)
	assert.True(t, stored.ScheduledAt.Equal(testNow.Add(50*time.Hour)))
}

func TestLiveService_RescheduleLeadTime(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.user(t, 1, true)
	live := f.createScheduled(t, 1, testNow.Add(48*time.Hour))
	ctx := context.Background()

	_, err := f.lives.Edit(ctx, 1, live.ID, scheduledInput(testNow.Add(12*time.Hour-time.Second)))
	assert.Equal(t, models.CodeTooSoon, models.ErrorCode(err))

	stored, err := f.store.Lives.GetByID(ctx, live.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, stored.RescheduleCount)

	res, err := f.lives.Edit(ctx, 1, live.ID, scheduledInput(testNow.Add(12*time.Hour)))
	require.NoError(t, err)
	assert.Equal(t, 1, res.Live.RescheduleCount)
}

func TestLiveService_RescheduleExemptGroup(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.user(t, 1, true)
	require.NoError(t, f.store.Groups.Add(context.Background(), "reschedule_exempt", 1))
	live := f.createScheduled(t, 1, testNow.Add(48*time.Hour))

	res, err := f.lives.Edit(context.Background(), 1, live.ID, scheduledInput(testNow.Add(2*time.Hour)))
	require.NoError(t, err)
	assert.True(t, res.Rescheduled)
	assert.Equal(t, 1, res.Live.RescheduleCount)
}

func TestLiveService_EditSameTimeIsNotReschedule(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.user(t, 1, true)
	at := testNow.Add(48 * time.Hour)
	live := f.createScheduled(t, 1, at)

	in := scheduledInput(at)
	in.Title = "Renamed"
	res, err := f.lives.Edit(context.Background(), 1, live.ID, in)
	require.NoError(t, err)
	assert.False(t, res.Rescheduled)
	assert.Equal(t, 0, res.Live.RescheduleCount)
	assert.Equal(t, "Renamed", res.Live.Title)
}

func TestLiveService_RescheduleDropsPendingReminders(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.user(t, 1, true)
	live := f.createScheduled(t, 1, testNow.Add(48*time.Hour))
	ctx := context.Background()

	require.NoError(t, f.store.Notifications.CreateBatch(ctx, []models.LiveNotification{
		{LiveID: live.ID, UserID: 1, Type: models.NotificationLiveReminder1h, SendAt: testNow.Add(47 * time.Hour)},
	}))

	_, err := f.lives.Edit(ctx, 1, live.ID, scheduledInput(testNow.Add(60*time.Hour)))
	require.NoError(t, err)

	var n int64
	require.NoError(t, f.store.DB().Model(&models.LiveNotification{}).Where("live_id = ?", live.ID).Count(&n).Error)
	assert.Zero(t, n)

	f.effects.Wait()
	assert.True(t, f.events.has(EventRescheduled))
}

func TestLiveService_EditScheduledToImmediateStartsNow(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.user(t, 1, true)
	live := f.createScheduled(t, 1, testNow.Add(48*time.Hour))
	ctx := context.Background()
	f.effects.Wait()
	f.mu.Lock()
	before := len(f.scheduled)
	f.mu.Unlock()

	require.NoError(t, f.store.Notifications.CreateBatch(ctx, []models.LiveNotification{
		{LiveID: live.ID, UserID: 1, Type: models.NotificationLiveReminder1h, SendAt: testNow.Add(47 * time.Hour)},
	}))

	in := scheduledInput(testNow.Add(48 * time.Hour))
	in.Type = models.LiveTypeImmediate
	res, err := f.lives.Edit(ctx, 1, live.ID, in)
	require.NoError(t, err)

	assert.True(t, res.Live.ScheduledAt.Equal(testNow))
	assert.Equal(t, models.LiveTypeImmediate, res.Live.Type)
	assert.Equal(t, 0, res.Live.RescheduleCount, "starting now is not a reschedule")
	require.NotNil(t, res.Credential)
	assert.Equal(t, rtc.RolePublisher, res.Credential.Role)
	assert.Equal(t, live.ChannelName, res.Credential.Channel)

	var n int64
	require.NoError(t, f.store.DB().Model(&models.LiveNotification{}).Where("live_id = ?", live.ID).Count(&n).Error)
	assert.Zero(t, n, "reminders for the old start time are dropped")

	f.effects.Wait()
	f.mu.Lock()
	defer f.mu.Unlock()
	require.Len(t, f.scheduled, before+1)
	assert.True(t, f.scheduled[len(f.scheduled)-1], "a live starting now skips email")
}

func TestLiveService_EditScheduledToImmediateWithoutConfig(t *testing.T) {
	t.Parallel()
	f := newFixture(t, func(s *models.AdminSettings) { s.RTCAppID = "" })
	f.user(t, 1, true)
	at := testNow.Add(48 * time.Hour)
	live := f.createScheduled(t, 1, at)

	in := scheduledInput(at)
	in.Type = models.LiveTypeImmediate
	_, err := f.lives.Edit(context.Background(), 1, live.ID, in)
	assert.Equal(t, models.CodeConfigUnavailable, models.ErrorCode(err))

	stored, err := f.store.Lives.GetByID(context.Background(), live.ID)
	require.NoError(t, err)
	assert.Equal(t, models.LiveTypeScheduled, stored.Type)
	assert.True(t, stored.ScheduledAt.Equal(at))
}

func TestLiveService_EditImmediateToScheduledIsNotFound(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.user(t, 1, true)
	res, err := f.lives.Create(context.Background(), 1, LiveInput{Type: models.LiveTypeImmediate, DurationMinutes: 30})
	require.NoError(t, err)

	_, err = f.lives.Edit(context.Background(), 1, res.Live.ID, scheduledInput(testNow.Add(48*time.Hour)))
	assert.Equal(t, models.CodeNotFound, models.ErrorCode(err))
}

func TestLiveService_EditNonScheduledStatus(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.user(t, 1, true)
	live := f.createScheduled(t, 1, testNow.Add(48*time.Hour))
	require.NoError(t, f.store.Lives.UpdateStatus(context.Background(), live.ID, models.LiveStatusCompleted))

	_, err := f.lives.Edit(context.Background(), 1, live.ID, scheduledInput(testNow.Add(48*time.Hour)))
	assert.Equal(t, models.CodeInvalidState, models.ErrorCode(err))
}

func TestLiveService_EditOtherOwnerIsNotFound(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.user(t, 1, true)
	live := f.createScheduled(t, 1, testNow.Add(48*time.Hour))

	_, err := f.lives.Edit(context.Background(), 2, live.ID, scheduledInput(testNow.Add(50*time.Hour)))
	assert.Equal(t, models.CodeNotFound, models.ErrorCode(err))
}

func TestLiveService_DeleteCompletedLive(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.user(t, 1, true)
	live := f.createScheduled(t, 1, testNow.Add(48*time.Hour))
	require.NoError(t, f.store.Lives.UpdateStatus(context.Background(), live.ID, models.LiveStatusCompleted))

	err := f.lives.Delete(context.Background(), 1, live.ID)
	require.Error(t, err)
	assert.Equal(t, 400, models.StatusFor(err))
	assert.Equal(t, "Live stream is completed and cannot be deleted", err.(*models.AppError).Message)
}

func TestLiveService_DeleteSoftDeletesAndCleansReminders(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.user(t, 1, true)
	live := f.createScheduled(t, 1, testNow.Add(48*time.Hour))
	ctx := context.Background()

	require.NoError(t, f.store.Notifications.CreateBatch(ctx, []models.LiveNotification{
		{LiveID: live.ID, UserID: 1, Type: models.NotificationLiveStarting, SendAt: testNow.Add(48 * time.Hour)},
		{LiveID: live.ID, UserID: 1, Type: models.NotificationLiveReminder24h, SendAt: testNow.Add(24 * time.Hour)},
	}))

	require.NoError(t, f.lives.Delete(ctx, 1, live.ID))
	f.effects.Wait()
	assert.True(t, f.events.has(EventLiveDeleted))
	assert.Equal(t, []uint{live.ID}, f.mirror.clearedIDs())

	stored, err := f.store.Lives.GetByID(ctx, live.ID)
	require.NoError(t, err)
	assert.Equal(t, models.LiveStatusDeleted, stored.Status)

	var n int64
	require.NoError(t, f.store.DB().Model(&models.LiveNotification{}).Where("live_id = ?", live.ID).Count(&n).Error)
	assert.Zero(t, n)

	// The owner may create a new live once the old one is gone.
	f.createScheduled(t, 1, testNow.Add(72*time.Hour))

	assert.Equal(t, models.CodeNotFound, models.ErrorCode(f.lives.Delete(ctx, 2, live.ID)))
}

func TestLiveService_Filter(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.user(t, 1, true)
	live := f.createScheduled(t, 1, testNow.Add(48*time.Hour))
	ctx := context.Background()

	got, err := f.lives.ApplyFilter(ctx, 1, live.ID, "not-a-real-filter")
	require.NoError(t, err)
	assert.Equal(t, models.FilterNone, got)

	got, err = f.lives.ApplyFilter(ctx, 1, live.ID, " Clarendon ")
	require.NoError(t, err)
	assert.Equal(t, "clarendon", got)

	current, err := f.lives.GetFilter(ctx, 1, live.ID)
	require.NoError(t, err)
	assert.Equal(t, "clarendon", current)

	_, err = f.lives.ApplyFilter(ctx, 2, live.ID, "lark")
	assert.Equal(t, models.CodeForbidden, models.ErrorCode(err))
	_, err = f.lives.GetFilter(ctx, 2, live.ID)
	assert.Equal(t, models.CodeForbidden, models.ErrorCode(err))
	_, err = f.lives.GetFilter(ctx, 1, 999)
	assert.Equal(t, models.CodeNotFound, models.ErrorCode(err))
}

func TestLiveService_ExpireStale(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.user(t, 1, true)
	f.user(t, 2, true)
	ctx := context.Background()

	stale := f.createScheduled(t, 1, testNow.Add(-3*time.Hour))
	fresh := f.createScheduled(t, 2, testNow.Add(-90*time.Minute))

	n, err := f.lives.ExpireStale(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	got, err := f.store.Lives.GetByID(ctx, stale.ID)
	require.NoError(t, err)
	assert.Equal(t, models.LiveStatusExpired, got.Status)

	got, err = f.store.Lives.GetByID(ctx, fresh.ID)
	require.NoError(t, err)
	assert.Equal(t, models.LiveStatusScheduled, got.Status)

	f.effects.Wait()
	assert.True(t, f.events.has(EventLiveExpired))
	assert.Equal(t, []uint{stale.ID}, f.mirror.clearedIDs())
}

func TestSkipEmail(t *testing.T) {
	t.Parallel()
	assert.True(t, skipEmail(testNow.Add(59*time.Minute), testNow, 60, false))
	assert.False(t, skipEmail(testNow.Add(61*time.Minute), testNow, 60, false))
	assert.True(t, skipEmail(testNow.Add(100*time.Hour), testNow, 60, true))
}
