package seed

import (
	"context"
	"testing"
	"time"

	"fanlive/internal/database"
	"fanlive/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func setupDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{TranslateError: true})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	require.NoError(t, database.Migrate(db))
	return db
}

func TestSeeder_Run(t *testing.T) {
	t.Parallel()
	db := setupDB(t)
	now := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)
	s := NewSeeder(db, Options{Creators: 3, Fans: 6, Seed: 42, Now: now})

	sum, err := s.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 9, sum.Users)
	assert.Equal(t, 3, sum.Lives)
	assert.Equal(t, 1, sum.Calls)

	var lives []models.Live
	require.NoError(t, db.Find(&lives).Error)
	require.Len(t, lives, 3)
	owners := map[uint]bool{}
	for _, l := range lives {
		assert.Equal(t, models.LiveStatusScheduled, l.Status)
		assert.True(t, l.ScheduledAt.After(now))
		assert.Equal(t, l.Filter, models.SanitizeFilter(l.Filter))
		assert.False(t, owners[l.UserID], "one scheduled live per creator")
		owners[l.UserID] = true

		var active int64
		require.NoError(t, db.Model(&models.LiveGoal{}).Where("live_id = ? AND active = ?", l.ID, true).Count(&active).Error)
		assert.Equal(t, int64(1), active)
	}

	var bookings int64
	require.NoError(t, db.Model(&models.LiveBooking{}).Count(&bookings).Error)
	assert.Equal(t, int64(sum.Bookings), bookings)
}

func TestSeeder_ClearAll(t *testing.T) {
	t.Parallel()
	db := setupDB(t)
	s := NewSeeder(db, Options{Creators: 2, Fans: 2, Seed: 7})
	_, err := s.Run(context.Background())
	require.NoError(t, err)

	require.NoError(t, s.ClearAll(context.Background()))
	for _, m := range database.Models() {
		var n int64
		require.NoError(t, db.Model(m).Count(&n).Error)
		assert.Zero(t, n, "%T", m)
	}
}
