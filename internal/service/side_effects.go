package service

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"fanlive/internal/middleware"
	"fanlive/internal/observability"
)

const defaultSideEffectTimeout = 10 * time.Second

// SideEffects runs best-effort work after the primary result is decided.
// Failures are logged and counted but never reach the caller.
type SideEffects struct {
	wg      sync.WaitGroup
	timeout time.Duration
	logger  *slog.Logger
}

func NewSideEffects(timeout time.Duration) *SideEffects {
	if timeout <= 0 {
		timeout = defaultSideEffectTimeout
	}
	return &SideEffects{timeout: timeout}
}

func (s *SideEffects) log() *slog.Logger {
	if s.logger != nil {
		return s.logger
	}
	return middleware.Logger
}

// Go runs fn in its own goroutine with a context detached from the request.
func (s *SideEffects) Go(ctx context.Context, name string, fn func(ctx context.Context) error) {
	s.wg.Add(1)
	detached := context.WithoutCancel(ctx)
	go func() {
		defer s.wg.Done()
		ctx, cancel := context.WithTimeout(detached, s.timeout)
		defer cancel()

		err := func() (err error) {
			defer func() {
				if r := recover(); r != nil {
					err = fmt.Errorf("panic: %v\n%s", r, debug.Stack())
				}
			}()
			return fn(ctx)
		}()
		if err != nil {
			observability.SideEffectFailures.WithLabelValues(name).Inc()
			s.log().WarnContext(ctx, "side effect failed",
				slog.String("side_effect", name),
				slog.String("error", err.Error()),
			)
		}
	}()
}

// Wait blocks until every started side effect has finished.
func (s *SideEffects) Wait() {
	s.wg.Wait()
}
