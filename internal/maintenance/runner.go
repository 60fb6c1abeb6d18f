package maintenance

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/xaenox/assistant-bot/internal/metrics"
)

const DefaultInterval = 24 * time.Hour

// Task is one periodic job. With Immediate set it also runs at start.
type Task struct {
	Name      string
	Interval  time.Duration
	Immediate bool
	Run       func(ctx context.Context) error
}

// Runner drives each task in its own goroutine. A failing or panicking
// task is logged and retried on its next interval without touching the
// others.
type Runner struct {
	tasks  []Task
	logger *zap.Logger
	wg     sync.WaitGroup
}

func NewRunner(logger *zap.Logger, tasks ...Task) *Runner {
	return &Runner{tasks: tasks, logger: logger}
}

func (r *Runner) Start(ctx context.Context) {
	for _, t := range r.tasks {
		if t.Interval <= 0 {
			t.Interval = DefaultInterval
		}
		r.wg.Add(1)
		go func(t Task) {
			defer r.wg.Done()
			r.loop(ctx, t)
		}(t)
	}
}

// Wait blocks until every loop has observed ctx cancellation.
func (r *Runner) Wait() {
	r.wg.Wait()
}

func (r *Runner) loop(ctx context.Context, t Task) {
	ticker := time.NewTicker(t.Interval)
	defer ticker.Stop()

	r.logger.Info("Maintenance task started",
		zap.String("task", t.Name),
		zap.Duration("interval", t.Interval))
	if t.Immediate {
		r.runOnce(ctx, t)
	}
	for {
		select {
		case <-ticker.C:
			r.runOnce(ctx, t)
		case <-ctx.Done():
			return
		}
	}
}

func (r *Runner) runOnce(ctx context.Context, t Task) {
	defer func() {
		if p := recover(); p != nil {
			metrics.LoopErrors.WithLabelValues(t.Name).Inc()
			r.logger.Error("Maintenance task panicked", zap.String("task", t.Name), zap.Any("panic", p))
		}
	}()

	if err := t.Run(ctx); err != nil {
		metrics.LoopErrors.WithLabelValues(t.Name).Inc()
		r.logger.Error("Maintenance task failed", zap.String("task", t.Name), zap.Error(err))
	}
}
