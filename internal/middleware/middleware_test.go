package middleware

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func captureLogs(t *testing.T, env string) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	prev := Logger
	Logger = NewLogger(&buf, env, "debug")
	t.Cleanup(func() { Logger = prev })
	return &buf
}

func TestNewLogger_AddsContextValues(t *testing.T) {
	buf := captureLogs(t, "production")

	ctx := context.WithValue(context.Background(), RequestIDKey, "req-1")
	ctx = context.WithValue(ctx, UserIDKey, uint(7))
	ctx = WithLiveID(ctx, 42)
	Logger.With("component", "test").InfoContext(ctx, "hello")

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "hello", line["msg"])
	assert.Equal(t, "req-1", line["request_id"])
	assert.EqualValues(t, 7, line["user_id"])
	assert.EqualValues(t, 42, line["live_id"])
	assert.Equal(t, "test", line["component"])
}

func TestNewLogger_Level(t *testing.T) {
	var buf bytes.Buffer
	l := NewLogger(&buf, "development", "warn")
	l.Info("quiet")
	l.Warn("loud")
	assert.NotContains(t, buf.String(), "quiet")
	assert.Contains(t, buf.String(), "loud")

	buf.Reset()
	NewLogger(&buf, "development", "nonsense").Info("default info")
	assert.Contains(t, buf.String(), "default info")
}

func TestStructuredLogger(t *testing.T) {
	buf := captureLogs(t, "development")

	app := fiber.New()
	app.Use(func(c *fiber.Ctx) error {
		c.Locals("requestid", "req-9")
		return c.Next()
	})
	app.Use(ContextMiddleware(), StructuredLogger())
	app.Get("/health/live", func(c *fiber.Ctx) error { return c.SendStatus(fiber.StatusOK) })
	app.Get("/ok/:id", func(c *fiber.Ctx) error { return c.SendString("ok") })
	app.Get("/bad", func(c *fiber.Ctx) error { return c.SendStatus(fiber.StatusForbidden) })

	for _, path := range []string{"/health/live", "/ok/abc", "/bad"} {
		resp, err := app.Test(httptest.NewRequest(http.MethodGet, path, nil), -1)
		require.NoError(t, err)
		_ = resp.Body.Close()
	}

	out := buf.String()
	assert.NotContains(t, out, "/health/live")
	assert.Contains(t, out, "route=/ok/:id")
	assert.Contains(t, out, "request_id=req-9")
	assert.Contains(t, out, "level=WARN msg=\"request rejected\"")
	assert.Equal(t, 2, strings.Count(out, "\n"))
}

func newLimiter(t *testing.T, enabled bool, policy FailPolicy) (*RateLimiter, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return NewRateLimiter(rdb, enabled, policy), mr
}

func TestRateLimiter_Allow(t *testing.T) {
	l, mr := newLimiter(t, true, FailOpen)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		ok, _, err := l.Allow(ctx, "live_create", "user:1", 3, time.Minute)
		require.NoError(t, err)
		assert.True(t, ok, "hit %d", i+1)
	}
	ok, retry, err := l.Allow(ctx, "live_create", "user:1", 3, time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Greater(t, retry, time.Duration(0))
	assert.LessOrEqual(t, retry, time.Minute)

	ok, _, err = l.Allow(ctx, "live_create", "user:2", 3, time.Minute)
	require.NoError(t, err)
	assert.True(t, ok, "other callers have their own window")

	mr.FastForward(time.Minute + time.Second)
	ok, _, err = l.Allow(ctx, "live_create", "user:1", 3, time.Minute)
	require.NoError(t, err)
	assert.True(t, ok, "window resets")
}

func TestRateLimiter_Disabled(t *testing.T) {
	l := NewRateLimiter(nil, false, FailClosed)
	for i := 0; i < 5; i++ {
		ok, _, err := l.Allow(context.Background(), "r", "ip:1", 1, time.Minute)
		require.NoError(t, err)
		assert.True(t, ok)
	}
}

func TestRateLimiter_Handler(t *testing.T) {
	tests := []struct {
		name   string
		policy FailPolicy
		down   bool
		want   []int
	}{
		{"limits per caller", FailOpen, false, []int{200, 200, 429}},
		{"fail open", FailOpen, true, []int{200, 200, 200}},
		{"fail closed", FailClosed, true, []int{503, 503, 503}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l, mr := newLimiter(t, true, tt.policy)
			if tt.down {
				mr.Close()
			}
			app := fiber.New()
			app.Get("/x", l.Handler("x", 2, time.Minute), func(c *fiber.Ctx) error {
				return c.SendStatus(fiber.StatusOK)
			})

			for i, want := range tt.want {
				resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/x", nil), -1)
				require.NoError(t, err)
				assert.Equal(t, want, resp.StatusCode, "request %d", i+1)
				if want == fiber.StatusTooManyRequests {
					assert.NotEmpty(t, resp.Header.Get(fiber.HeaderRetryAfter))
					var body map[string]any
					require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
					assert.Equal(t, "LIMIT_EXCEEDED", body["code"])
				}
				_ = resp.Body.Close()
			}
		})
	}
}
