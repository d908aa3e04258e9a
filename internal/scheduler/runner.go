package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Handler executes one due task.
type Handler func(ctx context.Context, task Task) error

// RunnerConfig controls the drain cadence.
type RunnerConfig struct {
	Interval   time.Duration
	BatchSize  int
	MaxRetries int
}

// Runner drains due tasks on a cron tick and dispatches them by kind. Tasks
// that keep failing are dropped after MaxRetries with a warning; the lazy
// checks at the read paths are the backstop.
type Runner struct {
	store    *Store
	handlers map[string]Handler
	logger   *zap.Logger
	cron     *cron.Cron
	cfg      RunnerConfig
}

func NewRunner(store *Store, logger *zap.Logger, cfg RunnerConfig) *Runner {
	if cfg.Interval <= 0 {
		cfg.Interval = 5 * time.Second
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 50
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	r := &Runner{
		store:    store,
		handlers: make(map[string]Handler),
		logger:   logger,
		cfg:      cfg,
		cron:     cron.New(cron.WithSeconds()),
	}

	schedule := fmt.Sprintf("@every %ds", int(cfg.Interval.Seconds()))
	_, _ = r.cron.AddFunc(schedule, func() {
		ctx, cancel := context.WithTimeout(context.Background(), cfg.Interval)
		defer cancel()
		if err := r.Drain(ctx); err != nil {
			r.logger.Error("scheduler drain failed", zap.Error(err))
		}
	})

	return r
}

// Register binds a handler to a task kind. Not safe to call after Start.
func (r *Runner) Register(kind string, h Handler) {
	r.handlers[kind] = h
}

// Start launches the cron scheduler.
func (r *Runner) Start() {
	if r == nil || r.cron == nil {
		return
	}
	r.cron.Start()
	r.logger.Info("scheduler started", zap.Duration("interval", r.cfg.Interval))
}

// Stop gracefully stops the scheduler.
func (r *Runner) Stop(ctx context.Context) {
	if r == nil || r.cron == nil {
		return
	}
	stopCtx := r.cron.Stop()
	select {
	case <-stopCtx.Done():
	case <-ctx.Done():
	}
	r.logger.Info("scheduler stopped")
}

// SchedulePollExpiry registers a durable poll close at the given time.
func (r *Runner) SchedulePollExpiry(pollID string, at time.Time) error {
	if r == nil || r.store == nil {
		return fmt.Errorf("scheduler not configured")
	}
	return r.store.Put(Task{
		Kind:     KindPollExpiry,
		TargetID: pollID,
		DueAt:    at,
	})
}

// Drain processes due tasks synchronously. Exposed for tests and for the
// startup recovery pass.
func (r *Runner) Drain(ctx context.Context) error {
	if r == nil || r.store == nil {
		return nil
	}

	tasks, err := r.store.Due(time.Now(), r.cfg.BatchSize)
	if err != nil {
		return err
	}

	for _, task := range tasks {
		handler, ok := r.handlers[task.Kind]
		if !ok {
			r.logger.Warn("dropping task with no handler", zap.String("kind", task.Kind))
			_ = r.store.Remove(task)
			continue
		}

		if err := handler(ctx, task); err != nil {
			r.logger.Error("task failed",
				zap.String("id", task.ID),
				zap.String("kind", task.Kind),
				zap.Error(err))

			task.Retries++
			if task.Retries >= r.cfg.MaxRetries {
				r.logger.Warn("dropping task (max retries reached)", zap.String("id", task.ID))
				_ = r.store.Remove(task)
				continue
			}
			if err := r.store.Requeue(task, r.cfg.Interval); err != nil {
				r.logger.Error("failed to requeue task", zap.Error(err))
			}
			continue
		}

		if err := r.store.Remove(task); err != nil {
			r.logger.Warn("failed to purge completed task", zap.Error(err))
		}
	}
	return nil
}

// Pending returns the number of tasks waiting to fire.
func (r *Runner) Pending() int {
	if r == nil || r.store == nil {
		return 0
	}
	size, err := r.store.Size()
	if err != nil {
		return 0
	}
	return size
}
