package admin

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/xaenox/assistant-bot/internal/access"
	"github.com/xaenox/assistant-bot/internal/apperr"
	"github.com/xaenox/assistant-bot/internal/models"
	"github.com/xaenox/assistant-bot/internal/ratelimit"
	"github.com/xaenox/assistant-bot/internal/storage"
)

const adminID int64 = 1

var ts = time.Date(2026, 1, 5, 10, 0, 0, 0, time.UTC)

func newService(t *testing.T) (*Service, *storage.MemoryStorage, *access.Guard, *ratelimit.Limiter) {
	t.Helper()
	store := storage.NewMemoryStorage()
	guard := access.NewGuard([]int64{adminID}, nil, store)
	limiter := ratelimit.New(ratelimit.DefaultRules())
	return NewService(store, guard, limiter, t.TempDir(), zap.NewNop()), store, guard, limiter
}

func seedUsers(t *testing.T, store storage.Storage, ids ...int64) {
	t.Helper()
	for _, id := range ids {
		require.NoError(t, store.AppendHistory(context.Background(), models.HistoryEntry{
			UserID: id, Role: models.RoleUser, Content: "hi", Timestamp: ts,
		}))
	}
}

func TestBroadcastSkipsAdminsAndBanned(t *testing.T) {
	ctx := context.Background()
	svc, store, guard, _ := newService(t)
	seedUsers(t, store, adminID, 2, 3, 4)
	require.NoError(t, guard.Ban(ctx, 3))

	var got []int64
	res, err := svc.Broadcast(ctx, func(ctx context.Context, id int64, text string) error {
		got = append(got, id)
		if id == 4 {
			return errors.New("blocked by user")
		}
		return nil
	}, "hello")
	require.NoError(t, err)

	assert.Equal(t, []int64{2, 4}, got)
	assert.Equal(t, BroadcastResult{Sent: 1, Failed: 1, Skipped: 2}, res)
}

func TestBroadcastPausesEveryBatch(t *testing.T) {
	svc, store, _, _ := newService(t)
	var ids []int64
	for i := int64(100); i < 145; i++ {
		ids = append(ids, i)
	}
	seedUsers(t, store, ids...)

	pauses := 0
	svc.sleep = func(ctx context.Context, d time.Duration) bool {
		assert.Equal(t, time.Second, d)
		pauses++
		return true
	}
	res, err := svc.Broadcast(context.Background(), func(context.Context, int64, string) error { return nil }, "x")
	require.NoError(t, err)
	assert.Equal(t, 45, res.Sent)
	assert.Equal(t, 2, pauses)
}

func TestWipeRequiresTokenAndBacksUpFirst(t *testing.T) {
	ctx := context.Background()
	svc, store, guard, limiter := newService(t)
	seedUsers(t, store, 2)
	require.NoError(t, store.SetSetting(ctx, "active_model", "m"))
	require.NoError(t, guard.Ban(ctx, 5))
	for i := 0; i < 4; i++ {
		require.True(t, limiter.Allow(2, ratelimit.Images))
	}
	require.False(t, limiter.Allow(2, ratelimit.Images))

	_, err := svc.Wipe(ctx, "yes")
	assert.ErrorIs(t, err, ErrConfirmationRequired)
	st, err := svc.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), st.HistoryEntries)

	path, err := svc.Wipe(ctx, ConfirmToken)
	require.NoError(t, err)
	_, err = os.Stat(path)
	require.NoError(t, err)

	st, err = svc.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, models.Stats{}, st)
	assert.False(t, guard.IsBanned(5))
	assert.True(t, limiter.Allow(2, ratelimit.Images))

	model, ok, err := store.GetSetting(ctx, "active_model")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "m", model)
}

func TestBanAdminIsRejected(t *testing.T) {
	svc, _, _, _ := newService(t)
	assert.ErrorIs(t, svc.Ban(context.Background(), adminID), apperr.ErrCannotBanAdmin)
}
