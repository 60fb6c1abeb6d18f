package access

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xaenox/assistant-bot/internal/apperr"
	"github.com/xaenox/assistant-bot/internal/storage"
)

func TestTiers(t *testing.T) {
	g := NewGuard([]int64{1}, []int64{2, 1}, storage.NewMemoryStorage())

	assert.Equal(t, Admin, g.Tier(1))
	assert.Equal(t, Allowed, g.Tier(2))
	assert.Equal(t, Anonymous, g.Tier(3))
	assert.ErrorIs(t, g.Check(3), apperr.ErrUnauthorized)
	assert.NoError(t, g.Check(2))
	assert.Equal(t, []int64{1, 2}, g.Authorized())
	assert.Equal(t, []int64{1}, g.Admins())
}

func TestEmptyAllowListAdmitsOnlyAdmins(t *testing.T) {
	g := NewGuard([]int64{1}, nil, storage.NewMemoryStorage())
	assert.NoError(t, g.Check(1))
	assert.ErrorIs(t, g.Check(2), apperr.ErrUnauthorized)
}

func TestBanIsPersistedAndReloaded(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStorage()
	g := NewGuard([]int64{1}, []int64{2}, store)

	assert.ErrorIs(t, g.Ban(ctx, 1), apperr.ErrCannotBanAdmin)
	require.NoError(t, g.Ban(ctx, 2))
	assert.ErrorIs(t, g.Check(2), apperr.ErrBanned)

	restarted := NewGuard([]int64{1}, []int64{2}, store)
	require.NoError(t, restarted.Load(ctx))
	assert.True(t, restarted.IsBanned(2))

	require.NoError(t, restarted.Unban(ctx, 2))
	assert.NoError(t, restarted.Check(2))
	bans, err := store.ListBans(ctx)
	require.NoError(t, err)
	assert.Empty(t, bans)
}

func TestLoadPicksUpExternalBanChanges(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStorage()
	g := NewGuard([]int64{1}, []int64{2, 3}, store)
	require.NoError(t, g.Load(ctx))

	// another process bans 2 and 3 directly in the store
	require.NoError(t, store.AddBan(ctx, 2))
	require.NoError(t, store.AddBan(ctx, 3))
	assert.NoError(t, g.Check(2))

	require.NoError(t, g.Load(ctx))
	assert.ErrorIs(t, g.Check(2), apperr.ErrBanned)
	assert.ErrorIs(t, g.Check(3), apperr.ErrBanned)

	require.NoError(t, store.RemoveBan(ctx, 3))
	require.NoError(t, g.Load(ctx))
	assert.ErrorIs(t, g.Check(2), apperr.ErrBanned)
	assert.NoError(t, g.Check(3))
}
