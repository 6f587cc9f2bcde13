package notifications

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"fanlive/internal/cache"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testEventuallyTimeout = time.Second
	testPollInterval      = 10 * time.Millisecond
)

func newTestRedis(t *testing.T) *redis.Client {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return rdb
}

func TestNotifier_NilRedisIsNoop(t *testing.T) {
	t.Parallel()
	n := NewNotifier(nil)
	ctx := context.Background()
	assert.NoError(t, n.PublishUser(ctx, 1, "payload"))
	assert.NoError(t, n.PublishLiveEvent(ctx, 1, "filter", map[string]string{"filter": "lark"}))
	assert.NoError(t, n.StartLiveSubscriber(ctx, func(string, string) {}))
}

func TestNotifier_PublishLiveEvent(t *testing.T) {
	t.Parallel()
	rdb := newTestRedis(t)
	n := NewNotifier(rdb)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	got := make(chan [2]string, 1)
	require.NoError(t, n.StartLiveSubscriber(ctx, func(channel, payload string) {
		got <- [2]string{channel, payload}
	}))

	require.NoError(t, n.PublishLiveEvent(context.Background(), 9, "filter", map[string]string{"filter": "lark"}))

	select {
	case msg := <-got:
		assert.Equal(t, cache.LiveEventsChannel(9), msg[0])
		var ev struct {
			Type    string            `json:"type"`
			Payload map[string]string `json:"payload"`
		}
		require.NoError(t, json.Unmarshal([]byte(msg[1]), &ev))
		assert.Equal(t, "filter", ev.Type)
		assert.Equal(t, "lark", ev.Payload["filter"])
	case <-time.After(testEventuallyTimeout):
		t.Fatal("live event not delivered")
	}
}

func TestChannels(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "notifications:user:100", UserChannel(100))

	id, ok := ParseUserChannel(UserChannel(42))
	assert.True(t, ok)
	assert.Equal(t, uint(42), id)

	id, ok = ParseLiveChannel(cache.LiveEventsChannel(7))
	assert.True(t, ok)
	assert.Equal(t, uint(7), id)

	_, ok = ParseLiveChannel("live:abc:events")
	assert.False(t, ok)
	_, ok = ParseUserChannel("notifications:user:")
	assert.False(t, ok)
}
