// Command main runs the background worker: reminder delivery and the expiry sweep.
package main

import (
	"context"
	"log"
	"log/slog"
	"os/signal"
	"syscall"

	"fanlive/internal/bootstrap"
	"fanlive/internal/cache"
	"fanlive/internal/config"
	"fanlive/internal/middleware"
	"fanlive/internal/notifications"
	"fanlive/internal/queue"
	"fanlive/internal/repository"
	"fanlive/internal/rtc"
	"fanlive/internal/service"
	"fanlive/internal/settings"
)

const taskExpireLives = "live:expire"

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, rdb, err := bootstrap.InitRuntime(ctx, cfg, bootstrap.Options{RequireRedis: true})
	if err != nil {
		log.Fatalf("Failed to initialize runtime: %v", err)
	}
	defer func() { _ = rdb.Close() }()

	store := repository.NewStore(db)
	notifier := notifications.NewNotifier(rdb)
	effects := service.NewSideEffects(0)
	defer effects.Wait()

	provider := settings.NewProvider(db, settings.Defaults(cfg), cfg.SettingsTTL)
	goals := service.NewGoalService(store, cache.NewGoalMirror(rdb), notifier, effects)
	lives := service.NewLiveService(store, provider, rtc.NewIssuer(), goals, nil, notifier, effects)

	worker, err := queue.NewServer(cfg.RedisURL, cfg.WorkerConcurrency, middleware.Logger)
	if err != nil {
		log.Fatalf("Failed to create worker: %v", err)
	}
	worker.Handle(notifications.TaskLiveReminder, notifications.NewReminderHandler(store, notifier).Handle)
	worker.Handle(taskExpireLives, func(ctx context.Context, _ queue.Task) error {
		n, err := lives.ExpireStale(ctx)
		if err != nil {
			return err
		}
		if n > 0 {
			middleware.Logger.InfoContext(ctx, "expired stale lives", slog.Int64("count", n))
		}
		return nil
	})
	if err := worker.Every("@every 1m", taskExpireLives); err != nil {
		log.Fatalf("Failed to schedule expiry sweep: %v", err)
	}

	if err := worker.Run(ctx); err != nil {
		log.Fatalf("Worker stopped: %v", err)
	}
	middleware.Logger.Info("worker shutdown complete")
}
