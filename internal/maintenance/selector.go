package maintenance

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/xaenox/assistant-bot/internal/models"
	"github.com/xaenox/assistant-bot/internal/providers"
	"github.com/xaenox/assistant-bot/internal/storage"
)

// SettingActiveModel is the settings key holding the selected model.
const SettingActiveModel = "active_model"

const pingTimeout = 30 * time.Second

// DefaultCandidates are tried in this order.
var DefaultCandidates = []string{
	"llama-3.3-70b-versatile",
	"llama-3.1-70b-versatile",
	"llama3-70b-8192",
	"mixtral-8x7b-32768",
}

var ErrNoModel = errors.New("no candidate model responded")

// Notifier reports model changes to admins.
type Notifier interface {
	SendText(ctx context.Context, userID int64, text string) error
}

// Selector tracks the active completion model and fails over to the first
// healthy candidate.
type Selector struct {
	completer  providers.Completer
	store      storage.SettingStorage
	candidates []string
	logger     *zap.Logger

	active atomic.Pointer[string]

	notifier Notifier
	admins   []int64
}

func NewSelector(completer providers.Completer, store storage.SettingStorage, candidates []string, logger *zap.Logger) *Selector {
	if len(candidates) == 0 {
		candidates = DefaultCandidates
	}
	s := &Selector{
		completer:  completer,
		store:      store,
		candidates: append([]string(nil), candidates...),
		logger:     logger,
	}
	first := s.candidates[0]
	s.active.Store(&first)
	return s
}

// SetNotifier enables change reports to the given admins.
func (s *Selector) SetNotifier(n Notifier, admins []int64) {
	s.notifier = n
	s.admins = admins
}

func (s *Selector) Active() string {
	return *s.active.Load()
}

func (s *Selector) Candidates() []string {
	return append([]string(nil), s.candidates...)
}

// Load restores the persisted model, if any.
func (s *Selector) Load(ctx context.Context) error {
	model, ok, err := s.store.GetSetting(ctx, SettingActiveModel)
	if err != nil {
		return fmt.Errorf("failed to load active model: %w", err)
	}
	if ok && model != "" {
		s.active.Store(&model)
		s.logger.Info("Active model restored", zap.String("model", model))
	}
	return nil
}

// Check pings the candidates in order and activates the first that
// answers. It reports whether the active model changed. When no candidate
// answers the current model is kept and ErrNoModel is returned.
func (s *Selector) Check(ctx context.Context) (string, bool, error) {
	prev := s.Active()

	for _, model := range s.candidates {
		if err := s.ping(ctx, model); err != nil {
			s.logger.Warn("Model health check failed", zap.String("model", model), zap.Error(err))
			continue
		}
		if model == prev {
			return model, false, nil
		}

		s.active.Store(&model)
		if err := s.store.SetSetting(ctx, SettingActiveModel, model); err != nil {
			s.logger.Error("Failed to persist active model", zap.Error(err), zap.String("model", model))
		}
		s.logger.Info("Active model changed", zap.String("from", prev), zap.String("to", model))
		s.report(ctx, prev, model)
		return model, true, nil
	}
	return prev, false, ErrNoModel
}

func (s *Selector) ping(ctx context.Context, model string) error {
	ctx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()

	_, err := s.completer.Complete(ctx, model, []providers.Message{
		{Role: models.RoleUser, Content: "hi"},
	}, 5, 0)
	return err
}

func (s *Selector) report(ctx context.Context, from, to string) {
	if s.notifier == nil {
		return
	}
	text := fmt.Sprintf("🔄 Model switched: %s → %s", from, to)
	for _, id := range s.admins {
		if err := s.notifier.SendText(ctx, id, text); err != nil {
			s.logger.Warn("Failed to notify admin", zap.Error(err), zap.Int64("admin_id", id))
		}
	}
}

// Run adapts Check to a Task.
func (s *Selector) Run(ctx context.Context) error {
	_, _, err := s.Check(ctx)
	return err
}
