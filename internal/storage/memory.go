package storage

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/xaenox/assistant-bot/internal/models"
)

// MemoryStorage keeps everything in process memory. It is used in tests and
// when database.driver is "memory".
type MemoryStorage struct {
	mu        sync.RWMutex
	history   []models.HistoryEntry
	reminders map[int64]models.Reminder
	notes     map[int64]models.Note
	bans      map[int64]struct{}
	facts     map[int64]models.UserFacts
	settings  map[string]string
	nextID    int64
}

func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{
		reminders: make(map[int64]models.Reminder),
		notes:     make(map[int64]models.Note),
		bans:      make(map[int64]struct{}),
		facts:     make(map[int64]models.UserFacts),
		settings:  make(map[string]string),
	}
}

func (s *MemoryStorage) id() int64 {
	s.nextID++
	return s.nextID
}

// History methods
func (s *MemoryStorage) AppendHistory(ctx context.Context, entry models.HistoryEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry.Timestamp = entry.Timestamp.Truncate(time.Second)
	s.history = append(s.history, entry)
	return nil
}

func (s *MemoryStorage) RecentHistory(ctx context.Context, userID int64, limit int) ([]models.HistoryEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []models.HistoryEntry
	for _, e := range s.history {
		if e.UserID == userID {
			out = append(out, e)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Timestamp.Before(out[j].Timestamp) })
	if limit > 0 && len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out, nil
}

func (s *MemoryStorage) DeleteHistoryBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	kept := s.history[:0]
	var deleted int64
	for _, e := range s.history {
		if e.Timestamp.Unix() < cutoff.Unix() {
			deleted++
			continue
		}
		kept = append(kept, e)
	}
	s.history = kept
	return deleted, nil
}

func (s *MemoryStorage) ClearHistory(ctx context.Context, userID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	kept := s.history[:0]
	for _, e := range s.history {
		if e.UserID != userID {
			kept = append(kept, e)
		}
	}
	s.history = kept
	return nil
}

func (s *MemoryStorage) HistoryUsers(ctx context.Context) ([]int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	seen := make(map[int64]struct{})
	var users []int64
	for _, e := range s.history {
		if _, ok := seen[e.UserID]; !ok {
			seen[e.UserID] = struct{}{}
			users = append(users, e.UserID)
		}
	}
	sort.Slice(users, func(i, j int) bool { return users[i] < users[j] })
	return users, nil
}

// Reminder methods
func (s *MemoryStorage) CreateReminder(ctx context.Context, r *models.Reminder) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	r.ID = s.id()
	r.RemindAt = r.RemindAt.Truncate(time.Second)
	r.CreatedAt = r.CreatedAt.Truncate(time.Second)
	s.reminders[r.ID] = *r
	return nil
}

func (s *MemoryStorage) filterReminders(keep func(models.Reminder) bool) []models.Reminder {
	var out []models.Reminder
	for _, r := range s.reminders {
		if keep(r) {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].RemindAt.Equal(out[j].RemindAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].RemindAt.Before(out[j].RemindAt)
	})
	return out
}

func (s *MemoryStorage) ListReminders(ctx context.Context, userID int64) ([]models.Reminder, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.filterReminders(func(r models.Reminder) bool { return r.UserID == userID }), nil
}

func (s *MemoryStorage) ListRemindersBefore(ctx context.Context, userID int64, before time.Time) ([]models.Reminder, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.filterReminders(func(r models.Reminder) bool {
		return r.UserID == userID && r.RemindAt.Before(before)
	}), nil
}

func (s *MemoryStorage) DueReminders(ctx context.Context, now time.Time) ([]models.Reminder, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.filterReminders(func(r models.Reminder) bool { return r.Due(now) }), nil
}

func (s *MemoryStorage) DeleteReminder(ctx context.Context, id, userID int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.reminders[id]
	if !ok || r.UserID != userID {
		return false, nil
	}
	delete(s.reminders, id)
	return true, nil
}

func (s *MemoryStorage) DeleteReminderByID(ctx context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.reminders, id)
	return nil
}

// Note methods
func (s *MemoryStorage) CreateNote(ctx context.Context, n *models.Note) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	n.ID = s.id()
	n.CreatedAt = n.CreatedAt.Truncate(time.Second)
	s.notes[n.ID] = *n
	return nil
}

func (s *MemoryStorage) userNotes(userID int64, keep func(models.Note) bool) []models.Note {
	var out []models.Note
	for _, n := range s.notes {
		if n.UserID == userID && keep(n) {
			out = append(out, n)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out
}

func (s *MemoryStorage) ListNotes(ctx context.Context, userID int64, limit int) ([]models.Note, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := s.userNotes(userID, func(models.Note) bool { return true })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *MemoryStorage) SearchNotes(ctx context.Context, userID int64, query string) ([]models.Note, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	q := strings.ToLower(query)
	return s.userNotes(userID, func(n models.Note) bool {
		return strings.Contains(strings.ToLower(n.Title), q) || strings.Contains(strings.ToLower(n.Content), q)
	}), nil
}

func (s *MemoryStorage) DeleteNote(ctx context.Context, id, userID int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n, ok := s.notes[id]
	if !ok || n.UserID != userID {
		return false, nil
	}
	delete(s.notes, id)
	return true, nil
}

// Ban methods
func (s *MemoryStorage) AddBan(ctx context.Context, userID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.bans[userID] = struct{}{}
	return nil
}

func (s *MemoryStorage) RemoveBan(ctx context.Context, userID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.bans, userID)
	return nil
}

func (s *MemoryStorage) ListBans(ctx context.Context) ([]int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]int64, 0, len(s.bans))
	for id := range s.bans {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out, nil
}

// Fact methods
func (s *MemoryStorage) GetFacts(ctx context.Context, userID int64) (models.Facts, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := models.Facts{}
	if uf, ok := s.facts[userID]; ok {
		for k, v := range uf.Facts {
			out[k] = v
		}
	}
	return out, nil
}

func (s *MemoryStorage) SaveFacts(ctx context.Context, uf models.UserFacts) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	copied := models.Facts{}
	for k, v := range uf.Facts {
		copied[k] = v
	}
	uf.Facts = copied
	s.facts[uf.UserID] = uf
	return nil
}

func (s *MemoryStorage) DeleteFacts(ctx context.Context, userID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.facts, userID)
	return nil
}

// Setting methods
func (s *MemoryStorage) GetSetting(ctx context.Context, key string) (string, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	v, ok := s.settings[key]
	return v, ok, nil
}

func (s *MemoryStorage) SetSetting(ctx context.Context, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.settings[key] = value
	return nil
}

func (s *MemoryStorage) Stats(ctx context.Context) (models.Stats, error) {
	users, _ := s.HistoryUsers(ctx)

	s.mu.RLock()
	defer s.mu.RUnlock()

	return models.Stats{
		HistoryEntries: int64(len(s.history)),
		Users:          int64(len(users)),
		Reminders:      int64(len(s.reminders)),
		Notes:          int64(len(s.notes)),
	}, nil
}

func (s *MemoryStorage) UserStats(ctx context.Context, userID int64) (models.UserStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var st models.UserStats
	for _, e := range s.history {
		if e.UserID == userID {
			st.HistoryEntries++
		}
	}
	for _, r := range s.reminders {
		if r.UserID == userID {
			st.Reminders++
		}
	}
	for _, n := range s.notes {
		if n.UserID == userID {
			st.Notes++
		}
	}
	return st, nil
}

func (s *MemoryStorage) snapshot(ctx context.Context) (*Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap := &Snapshot{
		History:  append([]models.HistoryEntry(nil), s.history...),
		Settings: make(map[string]string, len(s.settings)),
	}
	snap.Reminders = s.filterReminders(func(models.Reminder) bool { return true })
	for _, n := range s.notes {
		snap.Notes = append(snap.Notes, n)
	}
	sort.Slice(snap.Notes, func(i, j int) bool { return snap.Notes[i].ID < snap.Notes[j].ID })
	for id := range s.bans {
		snap.Bans = append(snap.Bans, id)
	}
	for _, uf := range s.facts {
		snap.Facts = append(snap.Facts, uf)
	}
	for k, v := range s.settings {
		snap.Settings[k] = v
	}
	return snap, nil
}

func (s *MemoryStorage) Backup(ctx context.Context, dir string) (string, error) {
	return writeSnapshot(ctx, dir, s.snapshot)
}

func (s *MemoryStorage) Wipe(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.history = nil
	s.reminders = make(map[int64]models.Reminder)
	s.notes = make(map[int64]models.Note)
	s.bans = make(map[int64]struct{})
	s.facts = make(map[int64]models.UserFacts)
	return nil
}

func (s *MemoryStorage) Close() error {
	// Nothing to close for in-memory storage
	return nil
}
