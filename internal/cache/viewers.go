package cache

import (
	"context"
	"strconv"

	"github.com/redis/go-redis/v9"
)

// ViewerSet tracks which users are connected to a live.
type ViewerSet struct {
	rdb *redis.Client
}

func NewViewerSet(rdb *redis.Client) *ViewerSet {
	return &ViewerSet{rdb: rdb}
}

// Add marks userID as watching liveID.
func (v *ViewerSet) Add(ctx context.Context, liveID, userID uint) error {
	if v == nil || v.rdb == nil {
		return nil
	}
	return v.rdb.SAdd(ctx, ViewerSetKey(liveID), strconv.FormatUint(uint64(userID), 10)).Err()
}

// Remove clears userID from liveID's viewers.
func (v *ViewerSet) Remove(ctx context.Context, liveID, userID uint) error {
	if v == nil || v.rdb == nil {
		return nil
	}
	return v.rdb.SRem(ctx, ViewerSetKey(liveID), strconv.FormatUint(uint64(userID), 10)).Err()
}

// Count returns the number of distinct viewers of liveID. Zero without Redis.
func (v *ViewerSet) Count(ctx context.Context, liveID uint) (int64, error) {
	if v == nil || v.rdb == nil {
		return 0, nil
	}
	return v.rdb.SCard(ctx, ViewerSetKey(liveID)).Result()
}

// Reset drops every viewer of liveID.
func (v *ViewerSet) Reset(ctx context.Context, liveID uint) error {
	if v == nil || v.rdb == nil {
		return nil
	}
	return v.rdb.Del(ctx, ViewerSetKey(liveID)).Err()
}
