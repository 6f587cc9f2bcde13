// Package seed provides helpers to create demo data for development databases.
package seed

import (
	"context"
	"fmt"
	"strings"
	"time"

	"fanlive/internal/database"
	"fanlive/internal/models"
	"fanlive/internal/service"

	"github.com/brianvoe/gofakeit/v6"
	"gorm.io/gorm"
)

// Options configure the seeder.
type Options struct {
	Creators int
	Fans     int
	// Seed makes the generated data reproducible. Zero picks a random seed.
	Seed int64
	Now  time.Time
}

// Summary counts what a run created.
type Summary struct {
	Users        int
	Lives        int
	Bookings     int
	Transactions int
	Calls        int
}

var tipActivities = []string{
	"Say my name", "Dance break", "Song request", "Outfit change",
	"Shout-out", "Q&A answer", "Play a game", "Draw something",
}

// Seeder builds demo creators, fans and their lives.
type Seeder struct {
	db    *gorm.DB
	faker *gofakeit.Faker
	opts  Options
}

func NewSeeder(db *gorm.DB, opts Options) *Seeder {
	if opts.Now.IsZero() {
		opts.Now = time.Now()
	}
	if opts.Creators <= 0 {
		opts.Creators = 5
	}
	if opts.Fans < 0 {
		opts.Fans = 0
	}
	return &Seeder{db: db, faker: gofakeit.New(opts.Seed), opts: opts}
}

// ClearAll deletes every row the service owns, children first.
func (s *Seeder) ClearAll(ctx context.Context) error {
	tables := database.Models()
	for i := len(tables) - 1; i >= 0; i-- {
		if err := s.db.WithContext(ctx).Session(&gorm.Session{AllowGlobalUpdate: true}).Delete(tables[i]).Error; err != nil {
			return fmt.Errorf("clear %T: %w", tables[i], err)
		}
	}
	return nil
}

// Run creates the users, one scheduled live per creator with a goal and a
// tip menu, bookings and tips from random fans, and one ringing call.
func (s *Seeder) Run(ctx context.Context) (*Summary, error) {
	sum := &Summary{}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		creators, err := s.users(tx, s.opts.Creators, true)
		if err != nil {
			return err
		}
		fans, err := s.users(tx, s.opts.Fans, false)
		if err != nil {
			return err
		}
		sum.Users = len(creators) + len(fans)

		for _, creator := range creators {
			live, goal, err := s.live(tx, creator)
			if err != nil {
				return err
			}
			sum.Lives++

			for _, fan := range fans {
				if !s.faker.Bool() {
					continue
				}
				n, err := s.book(tx, live, goal, creator, fan)
				if err != nil {
					return err
				}
				sum.Bookings++
				sum.Transactions += n
			}
		}

		if len(creators) > 0 && len(fans) > 0 {
			call := &models.Call{
				RoomID:     "room-" + s.faker.UUID(),
				CallerID:   fans[0].ID,
				ReceiverID: creators[0].ID,
				Status:     models.CallStatusRinging,
			}
			if err := tx.Create(call).Error; err != nil {
				return fmt.Errorf("create call: %w", err)
			}
			sum.Calls++
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return sum, nil
}

func (s *Seeder) users(tx *gorm.DB, n int, creators bool) ([]models.User, error) {
	users := make([]models.User, 0, n)
	for i := 0; i < n; i++ {
		name := strings.ToLower(s.faker.Username())
		users = append(users, models.User{
			Username:   fmt.Sprintf("%s_%d", name, s.faker.Number(1000, 9999)),
			Email:      fmt.Sprintf("%s.%s@example.com", name, s.faker.UUID()[:8]),
			IsVerified: creators || s.faker.Bool(),
			IsCreator:  creators,
		})
	}
	if len(users) == 0 {
		return users, nil
	}
	if err := tx.CreateInBatches(&users, 100).Error; err != nil {
		return nil, fmt.Errorf("create users: %w", err)
	}
	return users, nil
}

func (s *Seeder) live(tx *gorm.DB, creator models.User) (*models.Live, *models.LiveGoal, error) {
	start := s.opts.Now.Add(time.Duration(s.faker.Number(24, 24*14)) * time.Hour).Truncate(time.Minute).UTC()
	live := &models.Live{
		UserID:          creator.ID,
		ChannelName:     service.NewChannelName(creator.ID),
		Type:            models.LiveTypeScheduled,
		Title:           strings.TrimSuffix(s.faker.Sentence(4), "."),
		ScheduledAt:     start,
		Timezone:        s.faker.RandomString([]string{"UTC", "Europe/Berlin", "America/New_York", "Asia/Tokyo"}),
		DurationMinutes: s.faker.RandomInt([]int{30, 45, 60, 90, 120}),
		Price:           int64(s.faker.Number(0, 50) * 10),
		Availability:    s.faker.RandomString(models.LiveAvailabilities),
		Status:          models.LiveStatusScheduled,
		Filter:          s.faker.RandomString(models.LiveFilters),
	}
	if err := tx.Create(live).Error; err != nil {
		return nil, nil, fmt.Errorf("create live: %w", err)
	}

	goal := &models.LiveGoal{
		LiveID: live.ID,
		Name:   "New " + s.faker.HipsterWord(),
		Amount: int64(s.faker.Number(10, 100) * 50),
		Active: true,
	}
	if err := tx.Create(goal).Error; err != nil {
		return nil, nil, fmt.Errorf("create goal: %w", err)
	}

	count := s.faker.Number(2, 4)
	menu := make([]models.LiveTipMenu, 0, count)
	order := indexes(len(tipActivities))
	s.faker.ShuffleInts(order)
	for _, i := range order[:count] {
		menu = append(menu, models.LiveTipMenu{
			LiveID:   live.ID,
			Activity: tipActivities[i],
			Coins:    int64(s.faker.Number(1, 20) * 5),
			Active:   true,
		})
	}
	if err := tx.CreateInBatches(&menu, 100).Error; err != nil {
		return nil, nil, fmt.Errorf("create tip menu: %w", err)
	}
	return live, goal, nil
}

// book records a booking with its payment and sometimes a goal tip. It
// returns how many transactions were written.
func (s *Seeder) book(tx *gorm.DB, live *models.Live, goal *models.LiveGoal, creator, fan models.User) (int, error) {
	if err := tx.Create(&models.LiveBooking{LiveID: live.ID, UserID: fan.ID, Coins: live.Price}).Error; err != nil {
		return 0, fmt.Errorf("create booking: %w", err)
	}
	liveID, goalID := live.ID, goal.ID
	txns := []models.Transaction{{
		SenderID: fan.ID, ReceiverID: creator.ID, LiveID: &liveID,
		Type: models.TransactionLiveBooking, Coins: live.Price, Status: models.TransactionStatusCompleted,
	}}
	if s.faker.Bool() {
		txns = append(txns, models.Transaction{
			SenderID: fan.ID, ReceiverID: creator.ID, LiveID: &liveID, GoalID: &goalID,
			Type: models.TransactionLiveGoalTip, Coins: int64(s.faker.Number(1, 10) * 10), Status: models.TransactionStatusCompleted,
		})
	}
	if err := tx.Create(&txns).Error; err != nil {
		return 0, fmt.Errorf("create transactions: %w", err)
	}
	return len(txns), nil
}

func indexes(n int) []int {
	out := make([]int, n)
	for i := range out {
		out[i] = i
	}
	return out
}
