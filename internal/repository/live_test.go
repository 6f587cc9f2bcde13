package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	"fanlive/internal/models"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newLive(ownerID uint, channel string) *models.Live {
	return &models.Live{
		UserID:          ownerID,
		ChannelName:     channel,
		Type:            models.LiveTypeScheduled,
		ScheduledAt:     time.Now().Add(48 * time.Hour).UTC(),
		DurationMinutes: 60,
	}
}

func TestLiveRepository_CreateRejectsSecondScheduled(t *testing.T) {
	t.Parallel()
	db := setupTestDB(t)
	repo := NewLiveRepository(db)
	ctx := context.Background()

	require.NoError(t, repo.Create(ctx, newLive(1, "c-1")))

	err := repo.Create(ctx, newLive(1, "c-2"))
	require.Error(t, err)
	assert.Equal(t, models.CodeConflict, models.ErrorCode(err))
	assert.Equal(t, ErrLiveAlreadyCreated, err.(*models.AppError).Message)

	has, err := repo.HasScheduled(ctx, 1)
	require.NoError(t, err)
	assert.True(t, has)

	has, err = repo.HasScheduled(ctx, 2)
	require.NoError(t, err)
	assert.False(t, has)
}

func TestLiveRepository_GetOwnedHidesOtherOwners(t *testing.T) {
	t.Parallel()
	db := setupTestDB(t)
	repo := NewLiveRepository(db)
	ctx := context.Background()

	live := newLive(1, "c-1")
	require.NoError(t, repo.Create(ctx, live))

	got, err := repo.GetOwned(ctx, live.ID, 1)
	require.NoError(t, err)
	assert.Equal(t, "c-1", got.ChannelName)

	_, err = repo.GetOwned(ctx, live.ID, 2)
	assert.Equal(t, models.CodeNotFound, models.ErrorCode(err))

	_, err = repo.GetByID(ctx, 999)
	assert.Equal(t, models.CodeNotFound, models.ErrorCode(err))
}

func TestLiveRepository_MarkCreatorJoinedOnce(t *testing.T) {
	t.Parallel()
	db := setupTestDB(t)
	repo := NewLiveRepository(db)
	ctx := context.Background()

	live := newLive(1, "c-1")
	require.NoError(t, repo.Create(ctx, live))

	flipped, err := repo.MarkCreatorJoined(ctx, live.ID)
	require.NoError(t, err)
	assert.True(t, flipped)

	flipped, err = repo.MarkCreatorJoined(ctx, live.ID)
	require.NoError(t, err)
	assert.False(t, flipped)

	got, err := repo.GetByID(ctx, live.ID)
	require.NoError(t, err)
	assert.True(t, got.CreatorJoined)
}

func TestLiveRepository_SetStatusOnlyMovesFromStatus(t *testing.T) {
	t.Parallel()
	db := setupTestDB(t)
	repo := NewLiveRepository(db)
	ctx := context.Background()

	a := newLive(1, "a")
	b := newLive(2, "b")
	require.NoError(t, repo.Create(ctx, a))
	require.NoError(t, repo.Create(ctx, b))
	require.NoError(t, repo.UpdateStatus(ctx, b.ID, models.LiveStatusCompleted))

	n, err := repo.SetStatus(ctx, []uint{a.ID, b.ID}, models.LiveStatusScheduled, models.LiveStatusExpired)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	n, err = repo.SetStatus(ctx, nil, models.LiveStatusScheduled, models.LiveStatusExpired)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestLiveRepository_ListScheduledBefore(t *testing.T) {
	t.Parallel()
	db := setupTestDB(t)
	repo := NewLiveRepository(db)
	ctx := context.Background()

	past := newLive(1, "past")
	past.ScheduledAt = time.Now().Add(-3 * time.Hour).UTC()
	require.NoError(t, repo.Create(ctx, past))
	require.NoError(t, repo.Create(ctx, newLive(2, "future")))

	lives, err := repo.ListScheduledBefore(ctx, time.Now().UTC())
	require.NoError(t, err)
	require.Len(t, lives, 1)
	assert.Equal(t, "past", lives[0].ChannelName)
}

func TestLiveRepository_GetOwnedForUpdateLocksRow(t *testing.T) {
	t.Parallel()
	db, mock := setupMockDB(t)
	repo := NewLiveRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "lives" WHERE user_id = $1 AND "lives"."id" = $2 ORDER BY "lives"."id" LIMIT $3 FOR UPDATE`)).
		WithArgs(7, 3, 1).
		WillReturnRows(sqlmock.NewRows([]string{"id", "user_id", "channel_name", "status"}).
			AddRow(3, 7, "chan", 0))

	live, err := repo.GetOwnedForUpdate(context.Background(), 3, 7)
	require.NoError(t, err)
	assert.Equal(t, "chan", live.ChannelName)
	assert.NoError(t, mock.ExpectationsWereMet())
}
