// Package syncloop keeps a client's view of a lecture fresh by re-reading shared state on fixed
// intervals. There is no push channel: anything another client changes shows up within one interval.
package syncloop

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Task runs fn once immediately, then on every tick or Trigger until its context ends.
type Task struct {
	name     string
	interval time.Duration
	fn       func(ctx context.Context)
	logger   *zap.Logger
	kick     chan struct{}
}

// NewTask creates a ticker task. A non-positive interval falls back to one second.
func NewTask(name string, interval time.Duration, fn func(ctx context.Context), logger *zap.Logger) *Task {
	if interval <= 0 {
		interval = time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Task{
		name:     name,
		interval: interval,
		fn:       fn,
		logger:   logger,
		kick:     make(chan struct{}, 1),
	}
}

// Interval returns the tick period.
func (t *Task) Interval() time.Duration { return t.interval }

// Trigger asks for an extra run as soon as possible (e.g. after a page switch).
func (t *Task) Trigger() {
	select {
	case t.kick <- struct{}{}:
	default:
	}
}

// Run blocks until ctx is done. It always returns nil so it can sit in an errgroup.
func (t *Task) Run(ctx context.Context) error {
	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()
	t.logger.Debug("sync task started", zap.String("task", t.name), zap.Duration("interval", t.interval))

	t.fn(ctx)
	for {
		select {
		case <-ctx.Done():
			t.logger.Debug("sync task stopped", zap.String("task", t.name))
			return nil
		case <-t.kick:
			t.fn(ctx)
		case <-ticker.C:
			t.fn(ctx)
		}
	}
}
