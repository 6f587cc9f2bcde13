package server

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"fanlive/internal/cache"
	"fanlive/internal/config"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/alicebob/miniredis/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func TestServer_AuthRequired(t *testing.T) {
	t.Parallel()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	require.NoError(t, rdb.Set(context.Background(), cache.RevokedTokenKey("revoked-jti"), "1", time.Hour).Err())

	s := &Server{
		config: &config.Config{JWTSecret: testJWTSecret},
		redis:  rdb,
		now:    func() time.Time { return testNow },
	}
	app := fiber.New()
	app.Get("/protected", s.AuthRequired(), func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"userID": c.Locals("userID")})
	})
	app.Get("/api/ws/live/:id", s.AuthRequired(), func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusOK)
	})

	generate := func(sub any, issuer, audience string, exp time.Duration, jti string) string {
		return signToken(t, jwt.MapClaims{
			"sub": sub,
			"iss": issuer,
			"aud": audience,
			"exp": testNow.Add(exp).Unix(),
			"jti": jti,
		})
	}
	valid := generate("123", TokenIssuer, TokenAudience, time.Hour, "ok-jti")

	tests := []struct {
		name       string
		path       string
		authHeader string
		status     int
	}{
		{"valid token", "/protected", "Bearer " + valid, http.StatusOK},
		{"expired token", "/protected", "Bearer " + generate("123", TokenIssuer, TokenAudience, -time.Hour, "x"), http.StatusUnauthorized},
		{"wrong issuer", "/protected", "Bearer " + generate("123", "someone-else", TokenAudience, time.Hour, "x"), http.StatusUnauthorized},
		{"wrong audience", "/protected", "Bearer " + generate("123", TokenIssuer, "other-client", time.Hour, "x"), http.StatusUnauthorized},
		{"numeric subject", "/protected", "Bearer " + generate(123, TokenIssuer, TokenAudience, time.Hour, "x"), http.StatusUnauthorized},
		{"zero subject", "/protected", "Bearer " + generate("0", TokenIssuer, TokenAudience, time.Hour, "x"), http.StatusUnauthorized},
		{"revoked", "/protected", "Bearer " + generate("123", TokenIssuer, TokenAudience, time.Hour, "revoked-jti"), http.StatusUnauthorized},
		{"missing header", "/protected", "", http.StatusUnauthorized},
		{"malformed header", "/protected", "BearerTokenOnly", http.StatusUnauthorized},
		{"query token ignored", "/protected?token=" + valid, "", http.StatusUnauthorized},
		{"query token ignored on websocket", "/api/ws/live/1?token=" + valid, "", http.StatusUnauthorized},
		{"header on websocket", "/api/ws/live/1", "Bearer " + valid, http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tt.path, nil)
			if tt.authHeader != "" {
				req.Header.Set("Authorization", tt.authHeader)
			}
			resp, err := app.Test(req)
			require.NoError(t, err)
			defer func() { _ = resp.Body.Close() }()
			assert.Equal(t, tt.status, resp.StatusCode)
		})
	}
}

func TestHealthChecks(t *testing.T) {
	t.Parallel()
	e := newTestEnv(t)

	for _, path := range []string{"/health/live", "/health/ready", "/health"} {
		resp, err := e.app.Test(httptest.NewRequest(http.MethodGet, path, nil))
		require.NoError(t, err)
		_ = resp.Body.Close()
		assert.Equal(t, http.StatusOK, resp.StatusCode, path)
	}
}

func TestReadinessCheck_DatabaseDown(t *testing.T) {
	t.Parallel()
	sqlDB, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	require.NoError(t, err)
	db, err := gorm.Open(postgres.New(postgres.Config{Conn: sqlDB}), &gorm.Config{DisableAutomaticPing: true})
	require.NoError(t, err)
	mock.ExpectPing().WillReturnError(assert.AnError)

	s := &Server{db: db, now: func() time.Time { return testNow }}
	app := fiber.New()
	app.Get("/health/ready", s.ReadinessCheck)

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSecurityHeaders(t *testing.T) {
	t.Parallel()
	e := newTestEnv(t)

	resp, err := e.app.Test(httptest.NewRequest(http.MethodGet, "/health/live", nil))
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	assert.NotEmpty(t, resp.Header.Get("X-Content-Type-Options"))
	assert.NotEmpty(t, resp.Header.Get("X-Frame-Options"))
	assert.NotEmpty(t, resp.Header.Get("X-Request-Id"))
}

func TestWebSocketLive_PreUpgradeChecks(t *testing.T) {
	t.Parallel()
	e := newTestEnv(t)
	e.user(t, 1, true)
	e.user(t, 2, true)
	id := e.createLive(t, 1)

	upgrade := func(path string, userID uint) int {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		req.Header.Set("Connection", "Upgrade")
		req.Header.Set("Upgrade", "websocket")
		req.Header.Set("Sec-WebSocket-Version", "13")
		req.Header.Set("Sec-WebSocket-Key", "dGhlIHNhbXBsZSBub25jZQ==")
		if userID != 0 {
			req.Header.Set("Authorization", "Bearer "+tokenFor(t, userID))
		}
		resp, err := e.app.Test(req, -1)
		require.NoError(t, err)
		_ = resp.Body.Close()
		return resp.StatusCode
	}

	assert.Equal(t, http.StatusUnauthorized, upgrade("/api/ws/live/"+id, 0))
	assert.Equal(t, http.StatusBadRequest, upgrade("/api/ws/live/garbage", 2))
	assert.Equal(t, http.StatusNotFound, upgrade("/api/ws/live/"+e.srv.codec.Encode(31337), 2))
	assert.Equal(t, http.StatusForbidden, upgrade("/api/ws/live/"+id, 2))

	// A ticket reaches the live checks through a single redemption.
	status, env := e.call(t, http.MethodPost, "/api/ws/ticket", 2, nil)
	require.Equal(t, http.StatusOK, status)
	ticket := decodeData[WSTicketResponse](t, env).Ticket
	assert.Equal(t, http.StatusForbidden, upgrade("/api/ws/live/"+id+"?ticket="+ticket, 0))
	assert.Equal(t, http.StatusUnauthorized, upgrade("/api/ws/live/"+id+"?ticket="+ticket, 0))

	// Plain HTTP is refused before any lookup.
	req := httptest.NewRequest(http.MethodGet, "/api/ws/live/"+id, nil)
	req.Header.Set("Authorization", "Bearer "+tokenFor(t, 1))
	resp, err := e.app.Test(req, -1)
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusUpgradeRequired, resp.StatusCode)
}

func TestNewServerWithDeps_BadCodecKey(t *testing.T) {
	t.Parallel()
	cfg := testConfig()
	cfg.IDCodecKey = ""
	_, err := NewServerWithDeps(cfg, nil, nil)
	assert.Error(t, err)
}
