package database

import (
	"errors"
	"fmt"
	"testing"

	"fanlive/internal/models"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func openSQLite(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{TranslateError: true})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, Migrate(db))
	return db
}

func TestIsUniqueViolation(t *testing.T) {
	t.Parallel()
	assert.False(t, IsUniqueViolation(nil))
	assert.False(t, IsUniqueViolation(errors.New("boom")))
	assert.True(t, IsUniqueViolation(gorm.ErrDuplicatedKey))
	assert.True(t, IsUniqueViolation(fmt.Errorf("insert: %w", &pgconn.PgError{Code: "23505"})))
	assert.False(t, IsUniqueViolation(&pgconn.PgError{Code: "23503"}))
}

func TestMigrate_OneScheduledLivePerUser(t *testing.T) {
	t.Parallel()
	db := openSQLite(t)

	first := models.Live{UserID: 7, ChannelName: "a-7", Type: models.LiveTypeScheduled, DurationMinutes: 30}
	require.NoError(t, db.Create(&first).Error)

	second := models.Live{UserID: 7, ChannelName: "b-7", Type: models.LiveTypeScheduled, DurationMinutes: 30}
	err := db.Create(&second).Error
	require.Error(t, err)
	assert.True(t, IsUniqueViolation(err))

	// Finished lives do not count.
	require.NoError(t, db.Model(&first).Update("status", models.LiveStatusCompleted).Error)
	require.NoError(t, db.Create(&second).Error)
}

func TestMigrate_OneActiveGoalPerLive(t *testing.T) {
	t.Parallel()
	db := openSQLite(t)

	require.NoError(t, db.Create(&models.LiveGoal{LiveID: 1, Active: true}).Error)
	require.NoError(t, db.Create(&models.LiveGoal{LiveID: 1, Active: false, Name: "old"}).Error)

	err := db.Create(&models.LiveGoal{LiveID: 1, Active: true, Name: "dup", Amount: 5}).Error
	require.Error(t, err)
	assert.True(t, IsUniqueViolation(err))

	require.NoError(t, db.Create(&models.LiveGoal{LiveID: 2, Active: true}).Error)
}

func TestMigrate_ChannelNameUnique(t *testing.T) {
	t.Parallel()
	db := openSQLite(t)

	require.NoError(t, db.Create(&models.Live{UserID: 1, ChannelName: "same", Status: models.LiveStatusCompleted}).Error)
	err := db.Create(&models.Live{UserID: 2, ChannelName: "same"}).Error
	assert.True(t, IsUniqueViolation(err))
}
