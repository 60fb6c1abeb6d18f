package reminder

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/xaenox/assistant-bot/internal/metrics"
	"github.com/xaenox/assistant-bot/internal/models"
)

const digestHorizon = 24 * time.Hour

// Digest sends every authorized user the reminders due in the next day, once
// a day at a fixed local time. It never modifies reminders.
type Digest struct {
	svc    *Service
	users  func() []int64
	hour   int
	minute int
	logger *zap.Logger
	sleep  func(ctx context.Context, d time.Duration) bool
}

func NewDigest(svc *Service, users func() []int64, hour, minute int, logger *zap.Logger) *Digest {
	return &Digest{
		svc:    svc,
		users:  users,
		hour:   hour,
		minute: minute,
		logger: logger,
		sleep:  sleepCtx,
	}
}

// NextRun returns the first hour:minute in now's location strictly after now.
func NextRun(now time.Time, hour, minute int) time.Time {
	next := time.Date(now.Year(), now.Month(), now.Day(), hour, minute, 0, 0, now.Location())
	if !next.After(now) {
		next = next.AddDate(0, 0, 1)
	}
	return next
}

// Send delivers the digest to every user with something due and returns how
// many digests went out. A user whose reminders cannot be loaded is skipped
// and reported in the returned error.
func (d *Digest) Send(ctx context.Context) (int, error) {
	var errs []error
	sent := 0
	for _, userID := range d.users() {
		due, err := d.svc.Upcoming(ctx, userID, digestHorizon)
		if err != nil {
			d.logger.Warn("Failed to load digest reminders", zap.Error(err), zap.Int64("user_id", userID))
			errs = append(errs, fmt.Errorf("failed to load reminders of %d: %w", userID, err))
			continue
		}
		if len(due) == 0 {
			continue
		}
		if err := d.svc.notifier.SendText(ctx, userID, FormatDigest(due, d.svc.now().Location())); err != nil {
			d.logger.Warn("Failed to send digest", zap.Error(err), zap.Int64("user_id", userID))
			continue
		}
		sent++
	}
	return sent, errors.Join(errs...)
}

func FormatDigest(due []models.Reminder, loc *time.Location) string {
	var b strings.Builder
	b.WriteString("☀️ Today's reminders:\n")
	for _, r := range due {
		fmt.Fprintf(&b, "• %s – %s\n", r.RemindAt.In(loc).Format("15:04"), r.Text)
	}
	return strings.TrimRight(b.String(), "\n")
}

// Run wakes at each scheduled time until ctx is done.
func (d *Digest) Run(ctx context.Context) {
	for {
		now := d.svc.now()
		next := NextRun(now, d.hour, d.minute)
		d.logger.Info("Next daily digest scheduled", zap.Time("at", next))
		if !d.sleep(ctx, next.Sub(now)) {
			return
		}

		d.safeSend(ctx)
	}
}

func (d *Digest) safeSend(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			metrics.LoopErrors.WithLabelValues("digest").Inc()
			d.logger.Error("Daily digest panicked", zap.Any("panic", r))
		}
	}()

	n, err := d.Send(ctx)
	if err != nil {
		metrics.LoopErrors.WithLabelValues("digest").Inc()
		d.logger.Error("Daily digest incomplete", zap.Error(err))
	}
	d.logger.Info("Daily digest sent", zap.Int("users", n))
}

// sleepCtx waits for d or ctx, reporting whether the wait completed.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}
