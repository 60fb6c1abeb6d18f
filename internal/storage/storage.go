package storage

import (
	"context"
	"time"

	"github.com/xaenox/assistant-bot/internal/models"
)

// Storage is the durable state of the assistant. Every method is a
// short, self-contained operation; no call holds a transaction open across
// another call.
type Storage interface {
	HistoryStorage
	ReminderStorage
	NoteStorage
	BanStorage
	FactStorage
	SettingStorage

	Stats(ctx context.Context) (models.Stats, error)
	UserStats(ctx context.Context, userID int64) (models.UserStats, error)
	// Backup writes a copy of the store into dir and returns its path.
	Backup(ctx context.Context, dir string) (string, error)
	// Wipe deletes every record of every set.
	Wipe(ctx context.Context) error
	Close() error
}

type HistoryStorage interface {
	AppendHistory(ctx context.Context, entry models.HistoryEntry) error
	// RecentHistory returns the newest limit entries in chronological order.
	RecentHistory(ctx context.Context, userID int64, limit int) ([]models.HistoryEntry, error)
	// DeleteHistoryBefore removes entries with a timestamp strictly before cutoff.
	DeleteHistoryBefore(ctx context.Context, cutoff time.Time) (int64, error)
	ClearHistory(ctx context.Context, userID int64) error
	HistoryUsers(ctx context.Context) ([]int64, error)
}

type ReminderStorage interface {
	// CreateReminder inserts r and assigns its ID.
	CreateReminder(ctx context.Context, r *models.Reminder) error
	// ListReminders returns the user's reminders ordered by remind_at.
	ListReminders(ctx context.Context, userID int64) ([]models.Reminder, error)
	// ListRemindersBefore returns the user's reminders with remind_at < before.
	ListRemindersBefore(ctx context.Context, userID int64, before time.Time) ([]models.Reminder, error)
	// DueReminders returns every reminder with remind_at <= now.
	DueReminders(ctx context.Context, now time.Time) ([]models.Reminder, error)
	// DeleteReminder deletes the reminder only if userID owns it.
	DeleteReminder(ctx context.Context, id, userID int64) (bool, error)
	DeleteReminderByID(ctx context.Context, id int64) error
}

type NoteStorage interface {
	CreateNote(ctx context.Context, n *models.Note) error
	// ListNotes returns the newest notes first; limit <= 0 means all.
	ListNotes(ctx context.Context, userID int64, limit int) ([]models.Note, error)
	SearchNotes(ctx context.Context, userID int64, query string) ([]models.Note, error)
	DeleteNote(ctx context.Context, id, userID int64) (bool, error)
}

type BanStorage interface {
	AddBan(ctx context.Context, userID int64) error
	RemoveBan(ctx context.Context, userID int64) error
	ListBans(ctx context.Context) ([]int64, error)
}

type FactStorage interface {
	// GetFacts returns an empty map for users without facts.
	GetFacts(ctx context.Context, userID int64) (models.Facts, error)
	SaveFacts(ctx context.Context, uf models.UserFacts) error
	DeleteFacts(ctx context.Context, userID int64) error
}

// SettingStorage keeps small process-wide values such as the active model.
type SettingStorage interface {
	GetSetting(ctx context.Context, key string) (string, bool, error)
	SetSetting(ctx context.Context, key, value string) error
}
