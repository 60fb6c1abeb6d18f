// Package maintenance runs the periodic housekeeping tasks: history
// retention and completion model failover.
package maintenance

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/xaenox/assistant-bot/internal/metrics"
	"github.com/xaenox/assistant-bot/internal/storage"
)

const DefaultRetentionDays = 90

// Retention purges history entries older than a fixed number of days.
type Retention struct {
	store  storage.HistoryStorage
	days   int
	logger *zap.Logger
	now    func() time.Time
}

func NewRetention(store storage.HistoryStorage, days int, logger *zap.Logger) *Retention {
	if days <= 0 {
		days = DefaultRetentionDays
	}
	return &Retention{store: store, days: days, logger: logger, now: time.Now}
}

func (r *Retention) WithClock(now func() time.Time) *Retention {
	r.now = now
	return r
}

// Cutoff is the oldest timestamp that survives a sweep.
func (r *Retention) Cutoff() time.Time {
	return r.now().Add(-time.Duration(r.days) * 24 * time.Hour)
}

// Sweep deletes every entry strictly older than Cutoff.
func (r *Retention) Sweep(ctx context.Context) (int64, error) {
	cutoff := r.Cutoff()
	n, err := r.store.DeleteHistoryBefore(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to purge history: %w", err)
	}
	metrics.HistoryPurged.Add(float64(n))
	r.logger.Info("History retention sweep finished",
		zap.Int64("deleted", n),
		zap.Time("cutoff", cutoff))
	return n, nil
}

// Run adapts Sweep to a Task.
func (r *Retention) Run(ctx context.Context) error {
	_, err := r.Sweep(ctx)
	return err
}
