package models

import (
	"sort"
	"time"
)

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// HistoryEntry is one turn of a user's conversation.
type HistoryEntry struct {
	UserID    int64     `json:"user_id"`
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// Reminder is a scheduled notification. A reminder exists only while it is
// scheduled; firing deletes it.
type Reminder struct {
	ID        int64     `json:"id"`
	UserID    int64     `json:"user_id"`
	RemindAt  time.Time `json:"remind_at"`
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"created_at"`
}

// Due reports whether the reminder may fire at now.
func (r Reminder) Due(now time.Time) bool {
	return !r.RemindAt.After(now)
}

type Note struct {
	ID        int64     `json:"id"`
	UserID    int64     `json:"user_id"`
	Title     string    `json:"title"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

// Fact keys. The vocabulary is open: new keys need no schema change.
const (
	FactLocation = "location"
	FactJob      = "job"
	FactName     = "name"
	FactAge      = "age"
	FactPhone    = "phone"
)

// Facts maps a fact key to its latest known value.
type Facts map[string]string

// Merge overwrites the keys present in other and leaves the rest untouched.
// It reports whether any value changed.
func (f Facts) Merge(other Facts) bool {
	changed := false
	for k, v := range other {
		if cur, ok := f[k]; !ok || cur != v {
			f[k] = v
			changed = true
		}
	}
	return changed
}

// Keys returns the fact keys in sorted order.
func (f Facts) Keys() []string {
	keys := make([]string, 0, len(f))
	for k := range f {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// UserFacts is the persisted fact map of a single user.
type UserFacts struct {
	UserID    int64     `json:"user_id"`
	Facts     Facts     `json:"facts"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Stats holds global record counts.
type Stats struct {
	HistoryEntries int64 `json:"history_entries"`
	Users          int64 `json:"users"`
	Reminders      int64 `json:"reminders"`
	Notes          int64 `json:"notes"`
}

// UserStats holds the record counts of one user.
type UserStats struct {
	HistoryEntries int64 `json:"history_entries"`
	Reminders      int64 `json:"reminders"`
	Notes          int64 `json:"notes"`
}
