package cache

import (
	"context"
	"fmt"
	"strconv"

	"fanlive/internal/models"

	"github.com/redis/go-redis/v9"
)

// GoalMirror keeps a derived copy of each live's active goal progress.
// It is rebuilt from the database on every sync and never read back as truth.
type GoalMirror struct {
	rdb *redis.Client
}

func NewGoalMirror(rdb *redis.Client) *GoalMirror {
	return &GoalMirror{rdb: rdb}
}

// Sync overwrites the mirrored record for p.LiveID.
func (m *GoalMirror) Sync(ctx context.Context, p models.GoalProgress) error {
	if m == nil || m.rdb == nil {
		return nil
	}
	key := GoalMirrorKey(p.LiveID)
	pipe := m.rdb.TxPipeline()
	pipe.Del(ctx, key)
	pipe.HSet(ctx, key, map[string]any{
		"goal_id":    p.GoalID,
		"live_id":    p.LiveID,
		"name":       p.Name,
		"amount":     p.Amount,
		"tips":       p.Tips,
		"percentage": p.Percentage,
	})
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("sync goal mirror %d: %w", p.LiveID, err)
	}
	return nil
}

// Get returns the mirrored record for liveID. ok is false when nothing is mirrored.
func (m *GoalMirror) Get(ctx context.Context, liveID uint) (p models.GoalProgress, ok bool, err error) {
	if m == nil || m.rdb == nil {
		return p, false, nil
	}
	vals, err := m.rdb.HGetAll(ctx, GoalMirrorKey(liveID)).Result()
	if err != nil {
		return p, false, fmt.Errorf("read goal mirror %d: %w", liveID, err)
	}
	if len(vals) == 0 {
		return p, false, nil
	}

	p.LiveID = liveID
	p.Name = vals["name"]
	goalID, _ := strconv.ParseUint(vals["goal_id"], 10, 64)
	p.GoalID = uint(goalID)
	p.Amount, _ = strconv.ParseInt(vals["amount"], 10, 64)
	p.Tips, _ = strconv.ParseInt(vals["tips"], 10, 64)
	p.Percentage, _ = strconv.ParseInt(vals["percentage"], 10, 64)
	return p, true, nil
}

// Clear drops the mirrored record for liveID.
func (m *GoalMirror) Clear(ctx context.Context, liveID uint) error {
	if m == nil || m.rdb == nil {
		return nil
	}
	return m.rdb.Del(ctx, GoalMirrorKey(liveID)).Err()
}
