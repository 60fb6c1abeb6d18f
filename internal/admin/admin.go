// Package admin implements the operator actions shared by the chat admin
// commands and the command line.
package admin

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/xaenox/assistant-bot/internal/access"
	"github.com/xaenox/assistant-bot/internal/models"
	"github.com/xaenox/assistant-bot/internal/ratelimit"
	"github.com/xaenox/assistant-bot/internal/storage"
)

// ConfirmToken must accompany a wipe request.
const ConfirmToken = "CONFIRM"

const (
	broadcastBatch = 20
	broadcastPause = time.Second
)

var ErrConfirmationRequired = errors.New("wipe requires the confirmation token " + ConfirmToken)

// SendFunc delivers one broadcast message.
type SendFunc func(ctx context.Context, userID int64, text string) error

type BroadcastResult struct {
	Sent    int
	Failed  int
	Skipped int
}

type Service struct {
	store     storage.Storage
	guard     *access.Guard
	limiter   *ratelimit.Limiter
	backupDir string
	logger    *zap.Logger
	sleep     func(ctx context.Context, d time.Duration) bool
}

// NewService wires the admin actions. limiter may be nil when no chat
// traffic is being served.
func NewService(store storage.Storage, guard *access.Guard, limiter *ratelimit.Limiter, backupDir string, logger *zap.Logger) *Service {
	return &Service{
		store:     store,
		guard:     guard,
		limiter:   limiter,
		backupDir: backupDir,
		logger:    logger,
		sleep:     sleepCtx,
	}
}

func (s *Service) Stats(ctx context.Context) (models.Stats, error) {
	return s.store.Stats(ctx)
}

func (s *Service) Ban(ctx context.Context, userID int64) error {
	if err := s.guard.Ban(ctx, userID); err != nil {
		return err
	}
	s.logger.Info("User banned", zap.Int64("user_id", userID))
	return nil
}

func (s *Service) Unban(ctx context.Context, userID int64) error {
	if err := s.guard.Unban(ctx, userID); err != nil {
		return err
	}
	s.logger.Info("User unbanned", zap.Int64("user_id", userID))
	return nil
}

// Wipe backs the store up and then clears every record set, the ban set
// and the rate limiter. Nothing is cleared if the backup fails. Settings
// survive.
func (s *Service) Wipe(ctx context.Context, token string) (string, error) {
	if token != ConfirmToken {
		return "", ErrConfirmationRequired
	}

	path, err := s.store.Backup(ctx, s.backupDir)
	if err != nil {
		return "", fmt.Errorf("backup before wipe failed: %w", err)
	}
	if err := s.store.Wipe(ctx); err != nil {
		return path, fmt.Errorf("failed to wipe store: %w", err)
	}
	s.guard.ClearBans()
	if s.limiter != nil {
		s.limiter.Reset()
	}

	s.logger.Warn("All data wiped", zap.String("backup", path))
	return path, nil
}

// Broadcast sends text to every user with history except admins and banned
// users, pausing after each batch of sends.
func (s *Service) Broadcast(ctx context.Context, send SendFunc, text string) (BroadcastResult, error) {
	users, err := s.store.HistoryUsers(ctx)
	if err != nil {
		return BroadcastResult{}, fmt.Errorf("failed to list users: %w", err)
	}

	var res BroadcastResult
	for _, id := range users {
		if s.guard.IsAdmin(id) || s.guard.IsBanned(id) {
			res.Skipped++
			continue
		}
		if err := send(ctx, id, text); err != nil {
			res.Failed++
			s.logger.Warn("Broadcast delivery failed", zap.Error(err), zap.Int64("user_id", id))
		} else {
			res.Sent++
		}

		if attempted := res.Sent + res.Failed; attempted%broadcastBatch == 0 {
			if !s.sleep(ctx, broadcastPause) {
				return res, ctx.Err()
			}
		}
	}

	s.logger.Info("Broadcast finished",
		zap.Int("sent", res.Sent),
		zap.Int("failed", res.Failed),
		zap.Int("skipped", res.Skipped))
	return res, nil
}

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
