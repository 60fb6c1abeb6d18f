package storage

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/xaenox/assistant-bot/internal/models"
)

func backends(t *testing.T) map[string]Storage {
	t.Helper()

	sqlite, err := NewSQLiteStorage(filepath.Join(t.TempDir(), "bot.db"), zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { sqlite.Close() })

	return map[string]Storage{
		"memory": NewMemoryStorage(),
		"sqlite": sqlite,
	}
}

func forEachBackend(t *testing.T, fn func(t *testing.T, s Storage)) {
	for name, s := range backends(t) {
		s := s
		t.Run(name, func(t *testing.T) { fn(t, s) })
	}
}

var base = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

func TestRecentHistoryIsChronologicalAndBounded(t *testing.T) {
	forEachBackend(t, func(t *testing.T, s Storage) {
		ctx := context.Background()
		for i := 0; i < 5; i++ {
			require.NoError(t, s.AppendHistory(ctx, models.HistoryEntry{
				UserID:    1,
				Role:      models.RoleUser,
				Content:   string(rune('a' + i)),
				Timestamp: base.Add(time.Duration(i) * time.Minute),
			}))
		}
		require.NoError(t, s.AppendHistory(ctx, models.HistoryEntry{
			UserID: 2, Role: models.RoleUser, Content: "other", Timestamp: base,
		}))

		got, err := s.RecentHistory(ctx, 1, 3)
		require.NoError(t, err)
		require.Len(t, got, 3)
		assert.Equal(t, "c", got[0].Content)
		assert.Equal(t, "e", got[2].Content)

		users, err := s.HistoryUsers(ctx)
		require.NoError(t, err)
		assert.Equal(t, []int64{1, 2}, users)
	})
}

func TestRecentHistorySameSecondKeepsInsertionOrder(t *testing.T) {
	forEachBackend(t, func(t *testing.T, s Storage) {
		ctx := context.Background()
		turns := []models.HistoryEntry{
			{UserID: 7, Role: models.RoleUser, Content: "q1", Timestamp: base},
			{UserID: 7, Role: models.RoleAssistant, Content: "a1", Timestamp: base},
			{UserID: 7, Role: models.RoleUser, Content: "q2", Timestamp: base},
			{UserID: 7, Role: models.RoleAssistant, Content: "a2", Timestamp: base},
		}
		for _, e := range turns {
			require.NoError(t, s.AppendHistory(ctx, e))
		}

		got, err := s.RecentHistory(ctx, 7, 3)
		require.NoError(t, err)
		require.Len(t, got, 3)
		assert.Equal(t, "a1", got[0].Content)
		assert.Equal(t, "q2", got[1].Content)
		assert.Equal(t, "a2", got[2].Content)
		assert.Equal(t, models.RoleAssistant, got[2].Role)
	})
}

func TestDeleteHistoryBeforeKeepsCutoff(t *testing.T) {
	forEachBackend(t, func(t *testing.T, s Storage) {
		ctx := context.Background()
		cutoff := base
		for _, ts := range []time.Time{cutoff.Add(-time.Second), cutoff, cutoff.Add(time.Second)} {
			require.NoError(t, s.AppendHistory(ctx, models.HistoryEntry{
				UserID: 7, Role: models.RoleAssistant, Content: ts.String(), Timestamp: ts,
			}))
		}

		n, err := s.DeleteHistoryBefore(ctx, cutoff)
		require.NoError(t, err)
		assert.Equal(t, int64(1), n)

		left, err := s.RecentHistory(ctx, 7, 10)
		require.NoError(t, err)
		require.Len(t, left, 2)
		assert.Equal(t, cutoff.Unix(), left[0].Timestamp.Unix())
	})
}

func TestReminderLifecycle(t *testing.T) {
	forEachBackend(t, func(t *testing.T, s Storage) {
		ctx := context.Background()
		late := &models.Reminder{UserID: 1, RemindAt: base.Add(2 * time.Hour), Text: "late", CreatedAt: base}
		early := &models.Reminder{UserID: 1, RemindAt: base.Add(time.Hour), Text: "early", CreatedAt: base}
		foreign := &models.Reminder{UserID: 2, RemindAt: base.Add(-time.Minute), Text: "foreign", CreatedAt: base}
		for _, r := range []*models.Reminder{late, early, foreign} {
			require.NoError(t, s.CreateReminder(ctx, r))
			assert.NotZero(t, r.ID)
		}

		list, err := s.ListReminders(ctx, 1)
		require.NoError(t, err)
		require.Len(t, list, 2)
		assert.Equal(t, "early", list[0].Text)
		assert.Equal(t, "late", list[1].Text)

		due, err := s.DueReminders(ctx, base)
		require.NoError(t, err)
		require.Len(t, due, 1)
		assert.Equal(t, foreign.ID, due[0].ID)

		soon, err := s.ListRemindersBefore(ctx, 1, base.Add(90*time.Minute))
		require.NoError(t, err)
		require.Len(t, soon, 1)
		assert.Equal(t, early.ID, soon[0].ID)

		ok, err := s.DeleteReminder(ctx, early.ID, 2)
		require.NoError(t, err)
		assert.False(t, ok, "foreign owner must not delete")

		ok, err = s.DeleteReminder(ctx, early.ID, 1)
		require.NoError(t, err)
		assert.True(t, ok)

		require.NoError(t, s.DeleteReminderByID(ctx, foreign.ID))
		due, err = s.DueReminders(ctx, base)
		require.NoError(t, err)
		assert.Empty(t, due)
	})
}

func TestNotes(t *testing.T) {
	forEachBackend(t, func(t *testing.T, s Storage) {
		ctx := context.Background()
		first := &models.Note{UserID: 3, Title: "Groceries", Content: "milk, eggs", CreatedAt: base}
		second := &models.Note{UserID: 3, Title: "Ideas", Content: "Buy a boat", CreatedAt: base.Add(time.Hour)}
		require.NoError(t, s.CreateNote(ctx, first))
		require.NoError(t, s.CreateNote(ctx, second))

		list, err := s.ListNotes(ctx, 3, 10)
		require.NoError(t, err)
		require.Len(t, list, 2)
		assert.Equal(t, "Ideas", list[0].Title)

		found, err := s.SearchNotes(ctx, 3, "MILK")
		require.NoError(t, err)
		require.Len(t, found, 1)
		assert.Equal(t, first.ID, found[0].ID)

		ok, err := s.DeleteNote(ctx, first.ID, 4)
		require.NoError(t, err)
		assert.False(t, ok)
		ok, err = s.DeleteNote(ctx, first.ID, 3)
		require.NoError(t, err)
		assert.True(t, ok)
	})
}

func TestFactsBansSettings(t *testing.T) {
	forEachBackend(t, func(t *testing.T, s Storage) {
		ctx := context.Background()

		facts, err := s.GetFacts(ctx, 9)
		require.NoError(t, err)
		assert.Empty(t, facts)

		require.NoError(t, s.SaveFacts(ctx, models.UserFacts{
			UserID: 9, Facts: models.Facts{models.FactLocation: "Haifa"}, UpdatedAt: base,
		}))
		require.NoError(t, s.SaveFacts(ctx, models.UserFacts{
			UserID: 9, Facts: models.Facts{models.FactLocation: "Haifa", models.FactJob: "Intel"}, UpdatedAt: base,
		}))
		facts, err = s.GetFacts(ctx, 9)
		require.NoError(t, err)
		assert.Equal(t, models.Facts{"location": "Haifa", "job": "Intel"}, facts)

		require.NoError(t, s.DeleteFacts(ctx, 9))
		facts, err = s.GetFacts(ctx, 9)
		require.NoError(t, err)
		assert.Empty(t, facts)

		require.NoError(t, s.AddBan(ctx, 5))
		require.NoError(t, s.AddBan(ctx, 5))
		bans, err := s.ListBans(ctx)
		require.NoError(t, err)
		assert.Equal(t, []int64{5}, bans)
		require.NoError(t, s.RemoveBan(ctx, 5))
		bans, err = s.ListBans(ctx)
		require.NoError(t, err)
		assert.Empty(t, bans)

		_, ok, err := s.GetSetting(ctx, "active_model")
		require.NoError(t, err)
		assert.False(t, ok)
		require.NoError(t, s.SetSetting(ctx, "active_model", "a"))
		require.NoError(t, s.SetSetting(ctx, "active_model", "b"))
		v, ok, err := s.GetSetting(ctx, "active_model")
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, "b", v)
	})
}

func TestStatsBackupAndWipe(t *testing.T) {
	forEachBackend(t, func(t *testing.T, s Storage) {
		ctx := context.Background()
		require.NoError(t, s.AppendHistory(ctx, models.HistoryEntry{UserID: 1, Role: models.RoleUser, Content: "hi", Timestamp: base}))
		require.NoError(t, s.AppendHistory(ctx, models.HistoryEntry{UserID: 2, Role: models.RoleUser, Content: "yo", Timestamp: base}))
		require.NoError(t, s.CreateReminder(ctx, &models.Reminder{UserID: 1, RemindAt: base, Text: "x", CreatedAt: base}))
		require.NoError(t, s.CreateNote(ctx, &models.Note{UserID: 1, Title: "t", CreatedAt: base}))
		require.NoError(t, s.AddBan(ctx, 42))

		st, err := s.Stats(ctx)
		require.NoError(t, err)
		assert.Equal(t, models.Stats{HistoryEntries: 2, Users: 2, Reminders: 1, Notes: 1}, st)

		us, err := s.UserStats(ctx, 1)
		require.NoError(t, err)
		assert.Equal(t, models.UserStats{HistoryEntries: 1, Reminders: 1, Notes: 1}, us)

		path, err := s.Backup(ctx, t.TempDir())
		require.NoError(t, err)
		info, err := os.Stat(path)
		require.NoError(t, err)
		assert.Positive(t, info.Size())

		require.NoError(t, s.Wipe(ctx))
		st, err = s.Stats(ctx)
		require.NoError(t, err)
		assert.Equal(t, models.Stats{}, st)
		bans, err := s.ListBans(ctx)
		require.NoError(t, err)
		assert.Empty(t, bans)
	})
}

func TestRebindPostgres(t *testing.T) {
	s := &sqlStorage{dialect: dialectPostgres}
	assert.Equal(t, "SELECT 1 WHERE a = $1 AND b = $2", s.rebind("SELECT 1 WHERE a = ? AND b = ?"))

	lite := &sqlStorage{dialect: dialectSQLite}
	assert.Equal(t, "a = ?", lite.rebind("a = ?"))
}
