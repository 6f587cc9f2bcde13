package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"fanlive/internal/database"
	"fanlive/internal/models"
	"fanlive/internal/repository"
	"fanlive/internal/rtc"
	"fanlive/internal/settings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

var testNow = time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)

func setupStore(t *testing.T) *repository.Store {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{TranslateError: true})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	require.NoError(t, database.Migrate(db))
	return repository.NewStore(db)
}

func testSettings() models.AdminSettings {
	s := settings.Defaults(nil)
	s.RTCAppID = "app-id"
	s.RTCAppSecret = "app-secret"
	return s
}

func testIssuer() *rtc.Issuer {
	return rtc.NewIssuer(
		rtc.WithClock(func() time.Time { return testNow }),
		rtc.WithParticipantSource(func() int { return 77 }),
	)
}

type mirrorStub struct {
	mu      sync.Mutex
	syncs   []models.GoalProgress
	cleared []uint
	err     error
}

func (m *mirrorStub) Sync(_ context.Context, p models.GoalProgress) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.syncs = append(m.syncs, p)
	return m.err
}

func (m *mirrorStub) Clear(_ context.Context, liveID uint) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cleared = append(m.cleared, liveID)
	return m.err
}

func (m *mirrorStub) clearedIDs() []uint {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]uint(nil), m.cleared...)
}

func (m *mirrorStub) last() (models.GoalProgress, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.syncs) == 0 {
		return models.GoalProgress{}, false
	}
	return m.syncs[len(m.syncs)-1], true
}

type publisherStub struct {
	mu     sync.Mutex
	events []string
}

func (p *publisherStub) PublishLiveEvent(_ context.Context, _ uint, event string, _ any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return nil
}

func (p *publisherStub) has(event string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, e := range p.events {
		if e == event {
			return true
		}
	}
	return false
}

type reminderStub struct {
	scheduleFn func(context.Context, *models.Live, []uint, bool) error
}

func (r *reminderStub) Schedule(ctx context.Context, live *models.Live, recipients []uint, skip bool) error {
	return r.scheduleFn(ctx, live, recipients, skip)
}

type viewerStub struct {
	countFn func(context.Context, uint) (int64, error)
}

func (v *viewerStub) Count(ctx context.Context, liveID uint) (int64, error) {
	return v.countFn(ctx, liveID)
}

type fixture struct {
	store     *repository.Store
	settings  settings.Static
	mirror    *mirrorStub
	events    *publisherStub
	effects   *SideEffects
	goals     *GoalService
	tipmenus  *TipMenuService
	lives     *LiveService
	details   *LiveDetailsService
	reminders *reminderStub

	mu        sync.Mutex
	scheduled []bool
}

func newFixture(t *testing.T, mutate ...func(*models.AdminSettings)) *fixture {
	t.Helper()
	cfg := testSettings()
	for _, m := range mutate {
		m(&cfg)
	}
	f := &fixture{
		store:    setupStore(t),
		settings: settings.Static(cfg),
		mirror:   &mirrorStub{},
		events:   &publisherStub{},
		effects:  NewSideEffects(time.Second),
	}
	f.reminders = &reminderStub{scheduleFn: func(_ context.Context, _ *models.Live, _ []uint, skip bool) error {
		f.mu.Lock()
		defer f.mu.Unlock()
		f.scheduled = append(f.scheduled, skip)
		return nil
	}}
	f.goals = NewGoalService(f.store, f.mirror, f.events, f.effects)
	f.tipmenus = NewTipMenuService(f.store, f.settings, f.events, f.effects)
	f.lives = NewLiveService(f.store, f.settings, testIssuer(), f.goals, f.reminders, f.events, f.effects)
	f.lives.SetClock(func() time.Time { return testNow })
	f.details = NewLiveDetailsService(f.store, f.settings, testIssuer(), f.goals,
		&viewerStub{countFn: func(context.Context, uint) (int64, error) { return 3, nil }}, f.effects)
	t.Cleanup(f.effects.Wait)
	return f
}

func (f *fixture) user(t *testing.T, id uint, verified bool) *models.User {
	t.Helper()
	u := &models.User{ID: id, Username: "user" + string(rune('a'+id)), Email: string(rune('a'+id)) + "@example.com", IsVerified: verified}
	require.NoError(t, f.store.Users.Create(context.Background(), u))
	return u
}

func scheduledInput(at time.Time) LiveInput {
	return LiveInput{
		Type:            models.LiveTypeScheduled,
		Title:           "Evening stream",
		ScheduledAt:     at,
		Timezone:        "Europe/Berlin",
		DurationMinutes: 60,
		Price:           100,
		Availability:    "everyone",
	}
}

func (f *fixture) createScheduled(t *testing.T, ownerID uint, at time.Time) *models.Live {
	t.Helper()
	res, err := f.lives.Create(context.Background(), ownerID, scheduledInput(at))
	require.NoError(t, err)
	return res.Live
}

func (f *fixture) activeGoals(t *testing.T, liveID uint) []models.LiveGoal {
	t.Helper()
	goals, err := f.store.Goals.ListActive(context.Background(), liveID)
	require.NoError(t, err)
	return goals
}

func (f *fixture) goalRows(t *testing.T, liveID uint) int64 {
	t.Helper()
	var n int64
	require.NoError(t, f.store.DB().Model(&models.LiveGoal{}).Where("live_id = ?", liveID).Count(&n).Error)
	return n
}

func parseAt(token string) (*rtc.Claims, error) {
	return rtc.Parse(token, "app-secret", jwt.WithTimeFunc(func() time.Time { return testNow }))
}
