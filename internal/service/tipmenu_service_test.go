package service

import (
	"context"
	"testing"
	"time"

	"fanlive/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateTipMenu(t *testing.T) {
	t.Parallel()
	items, err := ValidateTipMenu(TipMenuInput{Activities: []string{" Wave "}, Coins: []int64{5}}, 1, 100)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "Wave", items[0].Activity)

	_, err = ValidateTipMenu(TipMenuInput{Activities: []string{"a", "b"}, Coins: []int64{1}}, 1, 100)
	assert.Equal(t, models.CodeValidation, models.ErrorCode(err))

	_, err = ValidateTipMenu(TipMenuInput{Activities: []string{"a", "b"}, Coins: []int64{0, 101}}, 1, 100)
	require.Error(t, err)
	fields := err.(*models.AppError).Fields
	assert.Contains(t, fields, "coins[0]")
	assert.Contains(t, fields, "coins[1]")

	items, err = ValidateTipMenu(TipMenuInput{}, 1, 100)
	require.NoError(t, err)
	assert.Empty(t, items)
}

func TestTipMenuService_ReplaceIsAtomic(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.user(t, 1, true)
	live := f.createScheduled(t, 1, testNow.Add(48*time.Hour))
	ctx := context.Background()

	menu, err := f.tipmenus.Replace(ctx, 1, live.ID, TipMenuInput{Activities: []string{"Wave", "Song"}, Coins: []int64{5, 50}})
	require.NoError(t, err)
	require.Len(t, menu, 2)

	_, err = f.tipmenus.Replace(ctx, 1, live.ID, TipMenuInput{Activities: []string{"Dance", ""}, Coins: []int64{10, 10}})
	assert.Equal(t, models.CodeValidation, models.ErrorCode(err))

	current, err := f.tipmenus.Active(ctx, live.ID)
	require.NoError(t, err)
	require.Len(t, current, 2)
	assert.Equal(t, "Wave", current[0].Activity)
	assert.Equal(t, "Song", current[1].Activity)

	menu, err = f.tipmenus.Replace(ctx, 1, live.ID, TipMenuInput{Activities: []string{"Dance"}, Coins: []int64{10}})
	require.NoError(t, err)
	require.Len(t, menu, 1)
	assert.Equal(t, "Dance", menu[0].Activity)

	f.effects.Wait()
	assert.True(t, f.events.has(EventTipMenu))
}

func TestTipMenuService_Ownership(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.user(t, 1, true)
	live := f.createScheduled(t, 1, testNow.Add(48*time.Hour))

	_, err := f.tipmenus.Replace(context.Background(), 2, live.ID, TipMenuInput{Activities: []string{"Wave"}, Coins: []int64{5}})
	assert.Equal(t, models.CodeForbidden, models.ErrorCode(err))

	_, err = f.tipmenus.Active(context.Background(), 999)
	assert.Equal(t, models.CodeNotFound, models.ErrorCode(err))
}
