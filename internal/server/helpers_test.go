package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"fanlive/internal/config"
	"fanlive/internal/database"
	"fanlive/internal/models"

	"github.com/alicebob/miniredis/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

const testJWTSecret = "test-secret-key-12345678901234567890123456789012"

var testNow = time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)

type testEnv struct {
	srv *Server
	app *fiber.App
	mr  *miniredis.Miniredis
	rdb *redis.Client
}

type envelope struct {
	Success bool              `json:"success"`
	Message string            `json:"message"`
	Error   string            `json:"error"`
	Code    string            `json:"code"`
	Fields  map[string]string `json:"fields"`
	Data    json.RawMessage   `json:"data"`
}

func testConfig() *config.Config {
	return &config.Config{
		JWTSecret:    testJWTSecret,
		Port:         "0",
		AppURL:       "https://fan.example",
		IDCodecKey:   "test-id-codec-key",
		RTCAppID:     "app-id",
		RTCAppSecret: "app-secret",
		Env:          "test",
	}
}

func newTestEnv(t *testing.T, mutate ...func(*config.Config)) *testEnv {
	t.Helper()
	cfg := testConfig()
	for _, m := range mutate {
		m(cfg)
	}

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{TranslateError: true})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	require.NoError(t, database.Migrate(db))

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	srv, err := NewServerWithDeps(cfg, db, rdb, WithClock(func() time.Time { return testNow }))
	require.NoError(t, err)
	t.Cleanup(srv.effects.Wait)

	return &testEnv{srv: srv, app: srv.App(), mr: mr, rdb: rdb}
}

func (e *testEnv) user(t *testing.T, id uint, verified bool) {
	t.Helper()
	u := &models.User{
		ID:         id,
		Username:   "user" + strconv.Itoa(int(id)),
		Email:      "user" + strconv.Itoa(int(id)) + "@example.com",
		IsVerified: verified,
	}
	require.NoError(t, e.srv.store.Users.Create(context.Background(), u))
}

func signToken(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	str, err := token.SignedString([]byte(testJWTSecret))
	require.NoError(t, err)
	return str
}

func tokenFor(t *testing.T, userID uint) string {
	return signToken(t, jwt.MapClaims{
		"sub": strconv.FormatUint(uint64(userID), 10),
		"iss": TokenIssuer,
		"aud": TokenAudience,
		"exp": testNow.Add(time.Hour).Unix(),
		"jti": "jti-" + strconv.FormatUint(uint64(userID), 10),
	})
}

// call performs a request as userID (0 for anonymous) and decodes the envelope.
func (e *testEnv) call(t *testing.T, method, path string, userID uint, body any) (int, envelope) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if userID != 0 {
		req.Header.Set("Authorization", "Bearer "+tokenFor(t, userID))
	}
	resp, err := e.app.Test(req, -1)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()

	var env envelope
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	if len(raw) > 0 {
		require.NoError(t, json.Unmarshal(raw, &env), string(raw))
	}
	return resp.StatusCode, env
}

func decodeData[T any](t *testing.T, env envelope) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(env.Data, &out))
	return out
}

func scheduledBody(at time.Time) fiber.Map {
	return fiber.Map{
		"type":         "scheduled",
		"title":        "Evening stream",
		"date":         at.Format("2006-01-02"),
		"time":         at.Format("15:04"),
		"timezone":     "UTC",
		"duration":     60,
		"price":        100,
		"availability": "everyone",
	}
}

// createLive creates a scheduled live 48h ahead for ownerID and returns its opaque id.
func (e *testEnv) createLive(t *testing.T, ownerID uint) string {
	t.Helper()
	status, env := e.call(t, http.MethodPost, "/api/live/create", ownerID, scheduledBody(testNow.Add(48*time.Hour)))
	require.Equal(t, http.StatusOK, status, env.Message)
	return decodeData[LiveCreateResponse](t, env).ID
}

func (e *testEnv) liveID(t *testing.T, opaque string) uint {
	t.Helper()
	id, ok := e.srv.codec.Decode(opaque)
	require.True(t, ok)
	return id
}
