// Package server contains HTTP and WebSocket handlers for the live session API.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	_ "fanlive/docs" // swagger docs
	"fanlive/internal/cache"
	"fanlive/internal/config"
	"fanlive/internal/database"
	"fanlive/internal/idcodec"
	"fanlive/internal/middleware"
	"fanlive/internal/models"
	"fanlive/internal/notifications"
	"fanlive/internal/queue"
	"fanlive/internal/repository"
	"fanlive/internal/rtc"
	"fanlive/internal/service"
	"fanlive/internal/settings"

	"github.com/ansrivas/fiberprometheus/v2"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/helmet"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/gofiber/swagger"
	"github.com/golang-jwt/jwt/v5"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

// Token claims accepted by AuthRequired.
const (
	TokenIssuer   = "fanlive-api"
	TokenAudience = "fanlive-client"
)

// Server holds all dependencies and provides handlers
type Server struct {
	config         *config.Config
	db             *gorm.DB
	redis          *redis.Client
	app            *fiber.App
	promMiddleware *fiberprometheus.FiberPrometheus
	shutdownCtx    context.Context
	shutdownFn     context.CancelFunc
	now            func() time.Time

	store     *repository.Store
	codec     idcodec.Codec
	validate  *validator.Validate
	settings  *settings.Provider
	queue     *queue.Client
	notifier  *notifications.Notifier
	hub       *notifications.Hub
	mirror    *cache.GoalMirror
	effects   *service.SideEffects
	reminders *notifications.ReminderScheduler

	lives    *service.LiveService
	goals    *service.GoalService
	tipMenus *service.TipMenuService
	details  *service.LiveDetailsService
}

// Option customizes a Server built by NewServerWithDeps.
type Option func(*Server)

// WithClock replaces the time source of the server and its services.
func WithClock(now func() time.Time) Option {
	return func(s *Server) { s.now = now }
}

// WithQueue routes reminder tasks through q.
func WithQueue(q *queue.Client) Option {
	return func(s *Server) { s.queue = q }
}

// NewServer creates a new server instance with all dependencies
func NewServer(cfg *config.Config) (*Server, error) {
	db, err := database.Connect(cfg)
	if err != nil {
		return nil, fmt.Errorf("database connection failed: %w", err)
	}

	cache.InitRedis(cfg.RedisURL)
	redisClient := cache.GetClient()

	var opts []Option
	if redisClient != nil {
		q, err := queue.NewClient(cfg.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("queue client: %w", err)
		}
		opts = append(opts, WithQueue(q))
	}
	return NewServerWithDeps(cfg, db, redisClient, opts...)
}

// NewServerWithDeps creates a Server using already-initialized dependencies.
// Use this in tests or when a bootstrap layer establishes DB/Redis itself.
// Without Redis the server runs with no viewer presence, goal mirror or
// websocket fan-out.
func NewServerWithDeps(cfg *config.Config, db *gorm.DB, redisClient *redis.Client, opts ...Option) (*Server, error) {
	codec, err := idcodec.New(cfg.IDCodecKey)
	if err != nil {
		return nil, fmt.Errorf("id codec: %w", err)
	}

	server := &Server{
		config:         cfg,
		db:             db,
		redis:          redisClient,
		promMiddleware: middleware.InitMetrics("fanlive-api"),
		now:            time.Now,
		store:          repository.NewStore(db),
		codec:          codec,
		validate:       newValidator(),
		effects:        service.NewSideEffects(0),
	}
	for _, opt := range opts {
		opt(server)
	}

	server.settings = settings.NewProvider(db, settings.Defaults(cfg), cfg.SettingsTTL)
	server.settings.SetClock(server.now)
	issuer := rtc.NewIssuer(rtc.WithClock(server.now))

	var (
		mirror  service.GoalMirror
		viewers service.ViewerCounter
		events  service.EventPublisher
	)
	if redisClient != nil {
		viewerSet := cache.NewViewerSet(redisClient)
		server.mirror = cache.NewGoalMirror(redisClient)
		server.notifier = notifications.NewNotifier(redisClient)
		server.hub = notifications.NewHub(viewerSet)
		mirror, viewers, events = server.mirror, viewerSet, server.notifier
	}

	var enq notifications.Enqueuer
	if server.queue != nil {
		enq = server.queue
	}
	server.reminders = notifications.NewReminderScheduler(server.store.Notifications, enq)
	server.reminders.SetClock(server.now)

	server.goals = service.NewGoalService(server.store, mirror, events, server.effects)
	server.tipMenus = service.NewTipMenuService(server.store, server.settings, events, server.effects)
	server.lives = service.NewLiveService(server.store, server.settings, issuer, server.goals, server.reminders, events, server.effects)
	server.lives.SetClock(server.now)
	server.details = service.NewLiveDetailsService(server.store, server.settings, issuer, server.goals, viewers, server.effects)

	return server, nil
}

// SetupMiddleware configures middleware for the Fiber app
func (s *Server) SetupMiddleware(app *fiber.App) {
	app.Use(recover.New())
	app.Use(requestid.New())
	app.Use(middleware.ContextMiddleware())
	app.Use(middleware.TracingMiddleware())

	if s.promMiddleware != nil {
		app.Use(middleware.MetricsMiddleware(s.promMiddleware))
	}

	app.Use(helmet.New())
	app.Use(middleware.StructuredLogger())

	// CORS runs before the limiter so rejected requests still carry CORS headers.
	origins := s.config.AllowedOrigins
	if origins == "" {
		origins = "http://localhost:5173,http://localhost:3000,http://127.0.0.1:5173"
	}
	app.Use(cors.New(cors.Config{
		AllowOrigins:     origins,
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization, Upgrade, Connection, Sec-WebSocket-Key, Sec-WebSocket-Version",
		AllowCredentials: true,
		MaxAge:           86400,
	}))

	app.Use(limiter.New(limiter.Config{
		Max:        100,
		Expiration: time.Minute,
		Next: func(c *fiber.Ctx) bool {
			return c.Method() == fiber.MethodOptions
		},
		KeyGenerator: func(c *fiber.Ctx) string {
			return c.IP()
		},
		LimitReached: func(c *fiber.Ctx) error {
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
				"error": "Too many requests, please try again later.",
			})
		},
	}))
}

// SetupRoutes configures all routes for the application
func (s *Server) SetupRoutes(app *fiber.App) {
	app.Get("/health/live", s.LivenessCheck)
	app.Get("/health/ready", s.ReadinessCheck)
	app.Get("/health", s.ReadinessCheck)

	if s.promMiddleware != nil {
		s.promMiddleware.RegisterAt(app, "/metrics")
	}

	api := app.Group("/api")
	api.Get("/swagger/*", swagger.HandlerDefault)

	limits := middleware.NewRateLimiter(s.redis, s.config.Env != "test" && s.config.Env != "development", middleware.FailOpen)

	// WebSocket routes go before the protected group so a ticket is
	// redeemed by exactly one AuthRequired.
	api.Post("/ws/ticket", s.AuthRequired(), limits.Handler("ws_ticket", 30, time.Minute), s.IssueWSTicket)
	ws := api.Group("/ws", s.AuthRequired())
	ws.Get("/live/:id", s.WebSocketLiveHandler())

	protected := api.Group("", s.AuthRequired())

	live := protected.Group("/live")
	live.Post("/create", limits.Handler("live_create", 20, time.Minute), s.CreateLive)
	live.Get("/go/:id", s.GoLive)
	live.Get("/watch/:id", s.WatchLive)
	live.Delete("/delete/:id", s.DeleteLive)
	live.Get("/filter", s.GetFilter)
	live.Post("/filter", s.ApplyFilter)
	// Specific /goal routes before /goal/:id
	live.Post("/goal", s.UpsertGoal)
	live.Post("/goal/deactivate", s.DeactivateGoals)
	live.Get("/goal/:id", s.GetGoal)
	live.Post("/tipmenu", s.ReplaceTipMenu)
	live.Get("/tipmenu/:id", s.GetTipMenu)

	agora := protected.Group("/agora")
	agora.Get("/details", limits.Handler("call_credential", 30, time.Minute), s.GetCallDetails)
}

// App builds a Fiber app with middleware and routes installed.
func (s *Server) App() *fiber.App {
	app := fiber.New(fiber.Config{
		AppName: "fanlive API",
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			if fe, ok := err.(*fiber.Error); ok {
				return models.RespondWithError(c, fe.Code, fe)
			}
			middleware.Logger.ErrorContext(c.UserContext(), "unhandled error", slog.String("error", err.Error()))
			return models.RespondWithError(c, fiber.StatusInternalServerError, models.NewInternalError(err))
		},
	})
	s.SetupMiddleware(app)
	s.SetupRoutes(app)
	return app
}

// LivenessCheck handles liveness probe requests
func (s *Server) LivenessCheck(c *fiber.Ctx) error {
	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"status": "up",
		"time":   s.now(),
	})
}

// ReadinessCheck handles readiness probe requests
func (s *Server) ReadinessCheck(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.Context(), 5*time.Second)
	defer cancel()

	dbStatus := "healthy"
	sqlDB, err := s.db.DB()
	if err != nil {
		dbStatus = "unhealthy"
	} else if err := sqlDB.PingContext(ctx); err != nil {
		dbStatus = "unhealthy"
	}

	redisStatus := "healthy"
	if s.redis != nil {
		if err := s.redis.Ping(ctx).Err(); err != nil {
			redisStatus = "unhealthy"
		}
	} else {
		redisStatus = "unavailable"
	}

	status := fiber.StatusOK
	overallStatus := "healthy"
	if dbStatus == "unhealthy" || redisStatus != "healthy" {
		status = fiber.StatusServiceUnavailable
		overallStatus = "unhealthy"
	}

	return c.Status(status).JSON(fiber.Map{
		"status": overallStatus,
		"checks": fiber.Map{
			"database": dbStatus,
			"redis":    redisStatus,
		},
		"time": s.now(),
	})
}

// AuthRequired returns the authentication middleware
func (s *Server) AuthRequired() fiber.Handler {
	return func(c *fiber.Ctx) error {
		// Browsers cannot set headers on websocket upgrades, so those
		// present a single-use ticket instead of the JWT.
		if ticket := c.Query("ticket"); ticket != "" && strings.HasPrefix(c.Path(), wsLivePrefix) {
			userID, err := s.redeemWSTicket(c.Context(), ticket)
			if err != nil {
				return models.RespondWithError(c, fiber.StatusUnauthorized,
					models.NewUnauthorizedError("Invalid or expired WebSocket ticket"))
			}
			c.Locals("userID", userID)
			ctx := context.WithValue(c.UserContext(), middleware.UserIDKey, userID)
			c.SetUserContext(ctx)
			return c.Next()
		}

		tokenString := ""
		if parts := strings.SplitN(c.Get("Authorization"), " ", 2); len(parts) == 2 && parts[0] == "Bearer" {
			tokenString = parts[1]
		}
		if tokenString == "" {
			return models.RespondWithError(c, fiber.StatusUnauthorized,
				models.NewUnauthorizedError("Authorization required"))
		}

		token, err := jwt.Parse(tokenString, func(token *jwt.Token) (any, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fiber.NewError(fiber.StatusUnauthorized, "Invalid signing method")
			}
			return []byte(s.config.JWTSecret), nil
		}, jwt.WithTimeFunc(s.now), jwt.WithIssuer(TokenIssuer), jwt.WithAudience(TokenAudience))
		if err != nil || !token.Valid {
			return models.RespondWithError(c, fiber.StatusUnauthorized,
				models.NewUnauthorizedError("Invalid or expired token"))
		}

		claims, ok := token.Claims.(jwt.MapClaims)
		if !ok {
			return models.RespondWithError(c, fiber.StatusUnauthorized,
				models.NewUnauthorizedError("Invalid token claims"))
		}

		sub, _ := claims.GetSubject()
		userID, err := strconv.ParseUint(sub, 10, 32)
		if err != nil || userID == 0 {
			return models.RespondWithError(c, fiber.StatusUnauthorized,
				models.NewUnauthorizedError("Invalid user ID in token"))
		}

		if jti, _ := claims["jti"].(string); jti != "" && s.redis != nil {
			revoked, err := s.redis.Exists(c.Context(), cache.RevokedTokenKey(jti)).Result()
			if err == nil && revoked > 0 {
				return models.RespondWithError(c, fiber.StatusUnauthorized,
					models.NewUnauthorizedError("Token has been revoked"))
			}
		}

		c.Locals("userID", uint(userID))
		ctx := context.WithValue(c.UserContext(), middleware.UserIDKey, uint(userID))
		c.SetUserContext(ctx)

		return c.Next()
	}
}

// Start starts the server
func (s *Server) Start() error {
	ctx, cancel := context.WithCancel(context.Background())
	s.shutdownCtx = ctx
	s.shutdownFn = cancel

	s.app = s.App()

	if s.hub != nil && s.notifier != nil {
		go func() {
			if err := s.hub.StartWiring(s.shutdownCtx, s.notifier); err != nil {
				middleware.Logger.Error("failed to start hub wiring",
					slog.String("hub", s.hub.Name()), slog.String("error", err.Error()))
			}
		}()
	}

	middleware.Logger.Info("server starting", slog.String("port", s.config.Port))
	return s.app.Listen(":" + s.config.Port)
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	if s.shutdownFn != nil {
		s.shutdownFn()
	}

	if s.app != nil {
		if err := s.app.ShutdownWithContext(ctx); err != nil {
			middleware.Logger.Error("error shutting down HTTP server", slog.String("error", err.Error()))
		}
	}

	if s.hub != nil {
		if err := s.hub.Shutdown(ctx); err != nil {
			middleware.Logger.Error("error shutting down hub", slog.String("error", err.Error()))
		}
	}

	s.effects.Wait()

	if s.queue != nil {
		if err := s.queue.Close(); err != nil {
			middleware.Logger.Error("error closing queue client", slog.String("error", err.Error()))
		}
	}

	if sqlDB, err := s.db.DB(); err == nil {
		if cerr := sqlDB.Close(); cerr != nil {
			middleware.Logger.Error("error closing sql DB", slog.String("error", cerr.Error()))
		}
	}

	if s.redis != nil {
		if rerr := s.redis.Close(); rerr != nil {
			middleware.Logger.Error("error closing redis", slog.String("error", rerr.Error()))
		}
	}

	middleware.Logger.Info("server shutdown complete")
	return nil
}
