// Package reminder schedules reminders and delivers them when they fall due.
package reminder

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/xaenox/assistant-bot/internal/apperr"
	"github.com/xaenox/assistant-bot/internal/metrics"
	"github.com/xaenox/assistant-bot/internal/models"
	"github.com/xaenox/assistant-bot/internal/storage"
)

const (
	DefaultInterval = 30 * time.Second
	SnoozedText     = "Snoozed reminder"
)

// SnoozeOffsets are offered on every fired reminder, in minutes.
var SnoozeOffsets = []int{30, 60}

// Notifier delivers outbound messages through the chat transport.
type Notifier interface {
	// SendReminder delivers a fired reminder with acknowledge and snooze
	// affordances.
	SendReminder(ctx context.Context, r models.Reminder) error
	SendText(ctx context.Context, userID int64, text string) error
}

type Service struct {
	store    storage.ReminderStorage
	notifier Notifier
	logger   *zap.Logger
	now      func() time.Time
	interval time.Duration
}

func NewService(store storage.ReminderStorage, notifier Notifier, logger *zap.Logger) *Service {
	return &Service{
		store:    store,
		notifier: notifier,
		logger:   logger,
		now:      time.Now,
		interval: DefaultInterval,
	}
}

func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

func (s *Service) WithInterval(d time.Duration) *Service {
	if d > 0 {
		s.interval = d
	}
	return s
}

// SetNotifier wires the transport once it exists.
func (s *Service) SetNotifier(n Notifier) {
	s.notifier = n
}

// Now returns the service clock's current time.
func (s *Service) Now() time.Time {
	return s.now()
}

// Create schedules a reminder. remindAt must be strictly in the future.
func (s *Service) Create(ctx context.Context, userID int64, remindAt time.Time, text string) (models.Reminder, error) {
	now := s.now()
	if !remindAt.After(now) {
		return models.Reminder{}, apperr.ErrReminderInPast
	}
	text = strings.TrimSpace(text)
	if text == "" {
		text = DefaultText
	}

	r := models.Reminder{
		UserID:    userID,
		RemindAt:  remindAt,
		Text:      text,
		CreatedAt: now,
	}
	if err := s.store.CreateReminder(ctx, &r); err != nil {
		return models.Reminder{}, fmt.Errorf("failed to create reminder: %w", err)
	}

	s.logger.Info("Reminder scheduled",
		zap.Int64("user_id", userID),
		zap.Int64("reminder_id", r.ID),
		zap.Time("remind_at", r.RemindAt))
	return r, nil
}

// CreateFromText parses a time expression out of text and schedules the
// remainder. It returns apperr.ErrTimeParse when no time is recognized.
func (s *Service) CreateFromText(ctx context.Context, userID int64, text string) (models.Reminder, error) {
	at, rest, ok := ParseTime(text, s.now())
	if !ok {
		return models.Reminder{}, apperr.ErrTimeParse
	}
	return s.Create(ctx, userID, at, rest)
}

// CreateIn schedules text after a fixed offset.
func (s *Service) CreateIn(ctx context.Context, userID int64, after time.Duration, text string) (models.Reminder, error) {
	return s.Create(ctx, userID, s.now().Add(after), text)
}

func (s *Service) List(ctx context.Context, userID int64) ([]models.Reminder, error) {
	return s.store.ListReminders(ctx, userID)
}

// Upcoming returns the user's reminders due within the given horizon.
func (s *Service) Upcoming(ctx context.Context, userID int64, within time.Duration) ([]models.Reminder, error) {
	return s.store.ListRemindersBefore(ctx, userID, s.now().Add(within))
}

// Delete removes a scheduled reminder owned by userID.
func (s *Service) Delete(ctx context.Context, id, userID int64) (bool, error) {
	ok, err := s.store.DeleteReminder(ctx, id, userID)
	if err != nil {
		return false, fmt.Errorf("failed to delete reminder: %w", err)
	}
	return ok, nil
}

// Snooze schedules a fresh reminder minutes from now. The fired reminder is
// already gone, so firedID is informational only.
func (s *Service) Snooze(ctx context.Context, userID, firedID int64, minutes int, text string) (models.Reminder, error) {
	if minutes <= 0 {
		return models.Reminder{}, fmt.Errorf("invalid snooze of %d minutes", minutes)
	}
	if strings.TrimSpace(text) == "" {
		text = SnoozedText
	}

	r, err := s.CreateIn(ctx, userID, time.Duration(minutes)*time.Minute, text)
	if err != nil {
		return models.Reminder{}, err
	}
	s.logger.Info("Reminder snoozed",
		zap.Int64("user_id", userID),
		zap.Int64("fired_id", firedID),
		zap.Int64("reminder_id", r.ID),
		zap.Int("minutes", minutes))
	return r, nil
}

// Tick fires every due reminder once. A reminder is removed before its
// single delivery attempt, so it is never delivered twice; a reminder whose
// removal fails is left for the next tick and not sent. Failures of single
// reminders do not stop the tick.
func (s *Service) Tick(ctx context.Context) (int, error) {
	due, err := s.store.DueReminders(ctx, s.now())
	if err != nil {
		return 0, fmt.Errorf("failed to load due reminders: %w", err)
	}

	var errs []error
	fired := 0
	for _, r := range due {
		if err := s.store.DeleteReminderByID(ctx, r.ID); err != nil {
			errs = append(errs, fmt.Errorf("failed to delete due reminder %d: %w", r.ID, err))
			continue
		}

		sendErr := s.notifier.SendReminder(ctx, r)
		metrics.RemindersFired.WithLabelValues(metrics.Result(sendErr)).Inc()
		if sendErr != nil {
			s.logger.Error("Failed to deliver reminder",
				zap.Error(sendErr),
				zap.Int64("user_id", r.UserID),
				zap.Int64("reminder_id", r.ID))
		}
		fired++
	}
	return fired, errors.Join(errs...)
}

// Run polls for due reminders until ctx is done. Failed ticks are logged and
// retried on the next interval.
func (s *Service) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.logger.Info("Reminder loop started", zap.Duration("interval", s.interval))
	for {
		s.safeTick(ctx)

		select {
		case <-ticker.C:
		case <-ctx.Done():
			return
		}
	}
}

func (s *Service) safeTick(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			metrics.LoopErrors.WithLabelValues("reminders").Inc()
			s.logger.Error("Reminder tick panicked", zap.Any("panic", r))
		}
	}()

	n, err := s.Tick(ctx)
	if n > 0 {
		s.logger.Info("Reminders fired", zap.Int("count", n))
	}
	if err != nil {
		metrics.LoopErrors.WithLabelValues("reminders").Inc()
		s.logger.Error("Reminder tick failed", zap.Error(err))
	}
}
