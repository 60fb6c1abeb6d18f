// Package conversation turns inbound user messages into assistant replies.
// It owns the admission checks, the implicit reminder diversion, fact
// observation, context assembly and history persistence.
package conversation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/xaenox/assistant-bot/internal/access"
	"github.com/xaenox/assistant-bot/internal/apperr"
	"github.com/xaenox/assistant-bot/internal/memory"
	"github.com/xaenox/assistant-bot/internal/metrics"
	"github.com/xaenox/assistant-bot/internal/models"
	"github.com/xaenox/assistant-bot/internal/providers"
	"github.com/xaenox/assistant-bot/internal/ratelimit"
	"github.com/xaenox/assistant-bot/internal/reminder"
	"github.com/xaenox/assistant-bot/internal/storage"
)

// VoicePrefix marks history entries that came from a transcribed voice message.
const VoicePrefix = "[voice] "

const DefaultPersona = "Character: direct, concise, dry humor in the right dose. " +
	"Expertise: IT, automation, programming, AI, cloud. " +
	"Keep answers short and focused. Do not open with filler such as \"Certainly!\" or \"Great question!\"."

type Config struct {
	BotName        string
	Persona        string
	HistoryLimit   int
	MaxTokens      int
	VoiceMaxTokens int
	SearchTokens   int
	Temperature    float32
	SearchResults  int
	Language       string
	Location       *time.Location
}

func DefaultConfig() Config {
	return Config{
		BotName:        "Assistant",
		Persona:        DefaultPersona,
		HistoryLimit:   20,
		MaxTokens:      900,
		VoiceMaxTokens: 400,
		SearchTokens:   600,
		Temperature:    0.7,
		SearchResults:  6,
		Location:       time.Local,
	}
}

// ModelSource yields the completion model currently in use.
type ModelSource interface {
	Active() string
}

// Store is the slice of storage the orchestrator touches.
type Store interface {
	storage.HistoryStorage
	storage.NoteStorage
}

// Deps groups the collaborators. Transcriber, Synthesizer, Images and
// Searcher may be nil, which disables the corresponding feature.
type Deps struct {
	Store       Store
	Guard       *access.Guard
	Limiter     *ratelimit.Limiter
	Reminders   *reminder.Service
	Memory      *memory.Engine
	Completer   providers.Completer
	Models      ModelSource
	Transcriber providers.Transcriber
	Synthesizer providers.Synthesizer
	Images      providers.ImageGenerator
	Searcher    providers.Searcher
}

// ErrUnavailable is returned when an optional provider is not configured.
var ErrUnavailable = errors.New("feature is not configured")

// Reply is the outcome of one text turn. Exactly one of Text or Reminder is
// set.
type Reply struct {
	Text     string
	Reminder *models.Reminder
}

type Service struct {
	cfg    Config
	deps   Deps
	logger *zap.Logger
	now    func() time.Time
}

func NewService(cfg Config, deps Deps, logger *zap.Logger) *Service {
	if cfg.HistoryLimit <= 0 {
		cfg.HistoryLimit = 20
	}
	if cfg.Location == nil {
		cfg.Location = time.Local
	}
	return &Service{
		cfg:    cfg,
		deps:   deps,
		logger: logger,
		now:    time.Now,
	}
}

func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// admit runs the authorization and rate-limit checks for one request.
func (s *Service) admit(userID int64, c ratelimit.Category) error {
	if err := s.deps.Guard.Check(userID); err != nil {
		return err
	}
	if !s.deps.Limiter.Allow(userID, c) {
		metrics.RateLimited.WithLabelValues(string(c)).Inc()
		rule, _ := s.deps.Limiter.Rule(c)
		return &apperr.RateLimitError{Category: string(c), Limit: rule.Limit, Window: rule.Window}
	}
	return nil
}

// HandleText processes one free-text message. A message that asks for a
// reminder and carries a recognizable time is turned into a reminder and
// never reaches the completion provider.
func (s *Service) HandleText(ctx context.Context, userID int64, text string) (Reply, error) {
	if err := s.admit(userID, ratelimit.Messages); err != nil {
		return Reply{}, err
	}
	return s.turn(ctx, userID, text, text, s.cfg.MaxTokens)
}

func (s *Service) turn(ctx context.Context, userID int64, text, stored string, maxTokens int) (Reply, error) {
	if r, ok, err := s.divertReminder(ctx, userID, text); err != nil || ok {
		if err != nil {
			return Reply{}, err
		}
		return Reply{Reminder: &r}, nil
	}

	s.deps.Memory.Observe(ctx, userID, text)

	answer, err := s.respond(ctx, userID, text, stored, maxTokens)
	if err != nil {
		return Reply{}, err
	}
	return Reply{Text: answer}, nil
}

func (s *Service) divertReminder(ctx context.Context, userID int64, text string) (models.Reminder, bool, error) {
	if !reminder.HasTrigger(text) {
		return models.Reminder{}, false, nil
	}
	r, err := s.deps.Reminders.CreateFromText(ctx, userID, text)
	if errors.Is(err, apperr.ErrTimeParse) {
		return models.Reminder{}, false, nil
	}
	if err != nil {
		return models.Reminder{}, false, err
	}
	return r, true, nil
}

// Respond asks the completion provider for a reply to text and records both
// turns. Nothing is recorded when the provider fails.
func (s *Service) Respond(ctx context.Context, userID int64, text string) (string, error) {
	return s.respond(ctx, userID, text, text, s.cfg.MaxTokens)
}

func (s *Service) respond(ctx context.Context, userID int64, text, stored string, maxTokens int) (string, error) {
	messages, err := s.buildContext(ctx, userID, text)
	if err != nil {
		return "", err
	}

	model := s.deps.Models.Active()
	answer, err := s.deps.Completer.Complete(ctx, model, messages, maxTokens, s.cfg.Temperature)
	if err != nil {
		s.logger.Error("Completion failed",
			zap.Error(err),
			zap.Int64("user_id", userID),
			zap.String("model", model))
		return "", apperr.Provider("complete", err)
	}

	now := s.now()
	for _, e := range []models.HistoryEntry{
		{UserID: userID, Role: models.RoleUser, Content: stored, Timestamp: now},
		{UserID: userID, Role: models.RoleAssistant, Content: answer, Timestamp: now},
	} {
		if err := s.deps.Store.AppendHistory(ctx, e); err != nil {
			s.logger.Error("Failed to save history",
				zap.Error(err),
				zap.Int64("user_id", userID),
				zap.String("role", string(e.Role)))
		}
	}
	return answer, nil
}

func (s *Service) buildContext(ctx context.Context, userID int64, text string) ([]providers.Message, error) {
	history, err := s.deps.Store.RecentHistory(ctx, userID, s.cfg.HistoryLimit)
	if err != nil {
		return nil, fmt.Errorf("failed to load history: %w", err)
	}
	facts, err := s.deps.Memory.Summary(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to load facts: %w", err)
	}

	messages := make([]providers.Message, 0, len(history)+2)
	messages = append(messages, providers.Message{Role: models.RoleSystem, Content: s.preamble(facts)})
	for _, h := range history {
		messages = append(messages, providers.Message{Role: h.Role, Content: h.Content})
	}
	messages = append(messages, providers.Message{Role: models.RoleUser, Content: text})
	return messages, nil
}

func (s *Service) preamble(facts string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "You are %s, a personal assistant.\n", s.cfg.BotName)
	if s.cfg.Persona != "" {
		b.WriteString(s.cfg.Persona)
		b.WriteString("\n")
	}
	fmt.Fprintf(&b, "Current time: %s\n", s.now().In(s.cfg.Location).Format("02/01/2006 15:04"))
	fmt.Fprintf(&b, "Facts you remember about the user:\n%s", facts)
	return b.String()
}

// LastReply returns the most recent assistant turn of userID.
func (s *Service) LastReply(ctx context.Context, userID int64) (string, error) {
	history, err := s.deps.Store.RecentHistory(ctx, userID, s.cfg.HistoryLimit)
	if err != nil {
		return "", fmt.Errorf("failed to load history: %w", err)
	}
	for i := len(history) - 1; i >= 0; i-- {
		if history[i].Role == models.RoleAssistant {
			return history[i].Content, nil
		}
	}
	return "", apperr.ErrNotFound
}

// SaveLastReply stores the most recent assistant turn as a note.
func (s *Service) SaveLastReply(ctx context.Context, userID int64) (models.Note, error) {
	reply, err := s.LastReply(ctx, userID)
	if err != nil {
		return models.Note{}, err
	}
	title := []rune(strings.TrimSpace(reply))
	if len(title) > 40 {
		title = append(title[:40], '…')
	}
	n := models.Note{
		UserID:    userID,
		Title:     string(title),
		Content:   reply,
		CreatedAt: s.now(),
	}
	if err := s.deps.Store.CreateNote(ctx, &n); err != nil {
		return models.Note{}, fmt.Errorf("failed to save note: %w", err)
	}
	return n, nil
}

// ClearHistory drops the whole conversation of userID.
func (s *Service) ClearHistory(ctx context.Context, userID int64) error {
	return s.deps.Store.ClearHistory(ctx, userID)
}
