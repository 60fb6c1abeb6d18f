// Package memory extracts personal facts from chat messages and keeps the
// per-user fact map.
package memory

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/xaenox/assistant-bot/internal/models"
	"github.com/xaenox/assistant-bot/internal/storage"
)

// NoFacts is the summary of an empty fact map.
const NoFacts = "none yet"

const lockStripes = 64

type Engine struct {
	store  storage.FactStorage
	rules  []Rule
	logger *zap.Logger
	now    func() time.Time

	// load-merge-save of one user must not interleave
	locks [lockStripes]sync.Mutex
}

func NewEngine(store storage.FactStorage, logger *zap.Logger) *Engine {
	return &Engine{
		store:  store,
		rules:  DefaultRules,
		logger: logger,
		now:    time.Now,
	}
}

func (e *Engine) WithClock(now func() time.Time) *Engine {
	e.now = now
	return e
}

func (e *Engine) lock(userID int64) *sync.Mutex {
	i := userID % lockStripes
	if i < 0 {
		i = -i
	}
	return &e.locks[i]
}

func (e *Engine) Extract(text string) models.Facts {
	return Extract(e.rules, text)
}

// MergeAndPersist overwrites only the keys present in extracted and stores
// the full map. Nothing is written when extracted is empty.
func (e *Engine) MergeAndPersist(ctx context.Context, userID int64, extracted models.Facts) (models.Facts, error) {
	mu := e.lock(userID)
	mu.Lock()
	defer mu.Unlock()

	facts, err := e.store.GetFacts(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to load facts: %w", err)
	}
	if len(extracted) == 0 {
		return facts, nil
	}

	facts.Merge(extracted)
	err = e.store.SaveFacts(ctx, models.UserFacts{
		UserID:    userID,
		Facts:     facts,
		UpdatedAt: e.now(),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to save facts: %w", err)
	}
	return facts, nil
}

// Observe scans a chat message and remembers whatever it reveals. Failures
// are logged, never returned.
func (e *Engine) Observe(ctx context.Context, userID int64, text string) {
	extracted := e.Extract(text)
	if len(extracted) == 0 {
		return
	}
	if _, err := e.MergeAndPersist(ctx, userID, extracted); err != nil {
		e.logger.Warn("Failed to remember facts",
			zap.Error(err),
			zap.Int64("user_id", userID))
		return
	}
	e.logger.Debug("Remembered facts",
		zap.Int64("user_id", userID),
		zap.Strings("keys", extracted.Keys()))
}

func (e *Engine) Facts(ctx context.Context, userID int64) (models.Facts, error) {
	return e.store.GetFacts(ctx, userID)
}

func (e *Engine) Forget(ctx context.Context, userID int64) error {
	return e.store.DeleteFacts(ctx, userID)
}

// Summary renders the fact map as a bullet list for the model context.
func (e *Engine) Summary(ctx context.Context, userID int64) (string, error) {
	facts, err := e.store.GetFacts(ctx, userID)
	if err != nil {
		return "", err
	}
	return FormatFacts(facts), nil
}

func FormatFacts(facts models.Facts) string {
	if len(facts) == 0 {
		return NoFacts
	}
	lines := make([]string, 0, len(facts))
	for _, k := range facts.Keys() {
		lines = append(lines, fmt.Sprintf("- %s: %s", k, facts[k]))
	}
	return strings.Join(lines, "\n")
}
