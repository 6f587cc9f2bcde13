// Package queue adapts hibiken/asynq to the background tasks of the service.
package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/hibiken/asynq"
)

// Queue names used by the service.
const (
	QueueDefault   = "default"
	QueueReminders = "reminders"
)

// ErrDuplicate is returned when a task with the same id is already queued.
var ErrDuplicate = errors.New("queue: task already enqueued")

// Task is a background job with an opaque payload.
type Task struct {
	Type    string
	Payload []byte
}

// Options controls how a task is enqueued. Zero values are ignored.
type Options struct {
	Queue     string
	TaskID    string
	ProcessAt time.Time
	MaxRetry  int
	Retention time.Duration
}

func (o Options) asynq() []asynq.Option {
	var opts []asynq.Option
	if o.Queue != "" {
		opts = append(opts, asynq.Queue(o.Queue))
	}
	if o.TaskID != "" {
		opts = append(opts, asynq.TaskID(o.TaskID))
	}
	if !o.ProcessAt.IsZero() {
		opts = append(opts, asynq.ProcessAt(o.ProcessAt))
	}
	if o.MaxRetry > 0 {
		opts = append(opts, asynq.MaxRetry(o.MaxRetry))
	}
	if o.Retention > 0 {
		opts = append(opts, asynq.Retention(o.Retention))
	}
	return opts
}

// Handler processes one task. Returning an error retries it unless it wraps Permanent.
type Handler func(ctx context.Context, t Task) error

// Permanent marks err as not worth retrying.
func Permanent(err error) error {
	return fmt.Errorf("%w: %w", err, asynq.SkipRetry)
}

// RedisOpt accepts a redis:// URI or a bare host:port address.
func RedisOpt(redisURL string) (asynq.RedisConnOpt, error) {
	redisURL = strings.TrimSpace(redisURL)
	if redisURL == "" {
		return nil, errors.New("queue: redis address is required")
	}
	if !strings.Contains(redisURL, "://") {
		return asynq.RedisClientOpt{Addr: redisURL}, nil
	}
	opt, err := asynq.ParseRedisURI(redisURL)
	if err != nil {
		return nil, fmt.Errorf("queue: parse redis url: %w", err)
	}
	return opt, nil
}

// Client enqueues tasks.
type Client struct {
	client *asynq.Client
}

func NewClient(redisURL string) (*Client, error) {
	opt, err := RedisOpt(redisURL)
	if err != nil {
		return nil, err
	}
	return &Client{client: asynq.NewClient(opt)}, nil
}

// Enqueue schedules t and returns the queue's task id.
func (c *Client) Enqueue(ctx context.Context, t Task, opts Options) (string, error) {
	if t.Type == "" {
		return "", errors.New("queue: task type is required")
	}
	info, err := c.client.EnqueueContext(ctx, asynq.NewTask(t.Type, t.Payload), opts.asynq()...)
	if errors.Is(err, asynq.ErrTaskIDConflict) || errors.Is(err, asynq.ErrDuplicateTask) {
		return "", ErrDuplicate
	}
	if err != nil {
		return "", err
	}
	return info.ID, nil
}

func (c *Client) Close() error {
	return c.client.Close()
}

// Server runs task handlers and periodic tasks.
type Server struct {
	server    *asynq.Server
	scheduler *asynq.Scheduler
	mux       *asynq.ServeMux
	logger    *slog.Logger
	periodic  int
}

func NewServer(redisURL string, concurrency int, logger *slog.Logger) (*Server, error) {
	opt, err := RedisOpt(redisURL)
	if err != nil {
		return nil, err
	}
	if concurrency <= 0 {
		concurrency = 10
	}
	if logger == nil {
		logger = slog.Default()
	}

	srv := asynq.NewServer(opt, asynq.Config{
		Concurrency: concurrency,
		Queues:      map[string]int{QueueReminders: 6, QueueDefault: 3},
		ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
			logger.WarnContext(ctx, "task failed",
				slog.String("task_type", task.Type()),
				slog.String("error", err.Error()),
			)
		}),
	})
	return &Server{
		server:    srv,
		scheduler: asynq.NewScheduler(opt, &asynq.SchedulerOpts{Location: time.UTC}),
		mux:       asynq.NewServeMux(),
		logger:    logger,
	}, nil
}

// Handle registers h for taskType.
func (s *Server) Handle(taskType string, h Handler) {
	s.mux.HandleFunc(taskType, func(ctx context.Context, t *asynq.Task) error {
		return h(ctx, Task{Type: t.Type(), Payload: t.Payload()})
	})
}

// Every enqueues an empty taskType task on cronspec, e.g. "@every 1m".
func (s *Server) Every(cronspec, taskType string) error {
	if _, err := s.scheduler.Register(cronspec, asynq.NewTask(taskType, nil), asynq.Queue(QueueDefault)); err != nil {
		return fmt.Errorf("queue: register %s: %w", taskType, err)
	}
	s.periodic++
	return nil
}

// Run starts processing and blocks until ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	if err := s.server.Start(s.mux); err != nil {
		return err
	}
	if s.periodic > 0 {
		if err := s.scheduler.Start(); err != nil {
			s.server.Shutdown()
			return err
		}
	}
	s.logger.Info("worker started", slog.Int("periodic_tasks", s.periodic))

	<-ctx.Done()
	if s.periodic > 0 {
		s.scheduler.Shutdown()
	}
	s.server.Shutdown()
	return nil
}
