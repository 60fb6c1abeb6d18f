package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/xaenox/assistant-bot/internal/models"
	"github.com/xaenox/assistant-bot/internal/storage"
)

func TestExtract(t *testing.T) {
	cases := []struct {
		text string
		want models.Facts
	}{
		{"I live in Haifa", models.Facts{"location": "Haifa"}},
		{"Hi! My name is Dana. I work at Intel and love it.", models.Facts{"name": "Dana", "job": "Intel"}},
		{"I'm 34 years old", models.Facts{"age": "34"}},
		{"I am 5 minutes late", models.Facts{}},
		{"my phone number is +972 54-123-4567", models.Facts{"phone": "+972 54-123-4567"}},
		{"אני גר בחיפה.", models.Facts{"location": "חיפה"}},
		{"אני בן 40", models.Facts{"age": "40"}},
		{"what's the weather?", models.Facts{}},
	}
	for _, tc := range cases {
		t.Run(tc.text, func(t *testing.T) {
			assert.Equal(t, tc.want, Extract(DefaultRules, tc.text))
		})
	}
}

func TestLaterRuleOverwritesEarlier(t *testing.T) {
	got := Extract(DefaultRules, "I live in Haifa, but I moved to Tel Aviv")
	assert.Equal(t, "Tel Aviv", got[models.FactLocation])
}

func TestMergeKeepsOtherKeys(t *testing.T) {
	ctx := context.Background()
	e := NewEngine(storage.NewMemoryStorage(), zap.NewNop())

	_, err := e.MergeAndPersist(ctx, 1, models.Facts{"name": "Dana", "location": "Haifa"})
	require.NoError(t, err)
	facts, err := e.MergeAndPersist(ctx, 1, models.Facts{"location": "Eilat"})
	require.NoError(t, err)

	assert.Equal(t, models.Facts{"name": "Dana", "location": "Eilat"}, facts)
}

func TestObserveIsIdempotent(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStorage()
	e := NewEngine(store, zap.NewNop())

	e.Observe(ctx, 1, "My name is Dana. I live in Haifa")
	once, err := e.Facts(ctx, 1)
	require.NoError(t, err)

	e.Observe(ctx, 1, "My name is Dana. I live in Haifa")
	twice, err := e.Facts(ctx, 1)
	require.NoError(t, err)

	assert.Equal(t, once, twice)
}

func TestSummary(t *testing.T) {
	ctx := context.Background()
	e := NewEngine(storage.NewMemoryStorage(), zap.NewNop())

	s, err := e.Summary(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, NoFacts, s)

	e.Observe(ctx, 1, "I live in Haifa")
	e.Observe(ctx, 1, "what do you remember about me?")
	s, err = e.Summary(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, "- location: Haifa", s)

	require.NoError(t, e.Forget(ctx, 1))
	s, err = e.Summary(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, NoFacts, s)
}

type failingFacts struct{ storage.FactStorage }

func (failingFacts) GetFacts(context.Context, int64) (models.Facts, error) {
	return nil, errors.New("db down")
}

func TestObserveSwallowsStoreErrors(t *testing.T) {
	e := NewEngine(failingFacts{}, zap.NewNop()).WithClock(func() time.Time { return time.Unix(0, 0) })
	assert.NotPanics(t, func() { e.Observe(context.Background(), 1, "I live in Haifa") })
}
