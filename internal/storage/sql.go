package storage

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/xaenox/assistant-bot/internal/models"
)

//go:embed migrations/*.sql
var migrations embed.FS

type dialect int

const (
	dialectSQLite dialect = iota
	dialectPostgres
)

// sqlStorage implements Storage on database/sql. SQLite and PostgreSQL share
// every query; only placeholders and backups differ.
type sqlStorage struct {
	db      *sql.DB
	dialect dialect
}

func (s *sqlStorage) initializeSchema(file string) error {
	migrationSQL, err := migrations.ReadFile("migrations/" + file)
	if err != nil {
		return fmt.Errorf("error reading migrations file: %w", err)
	}
	if _, err := s.db.Exec(string(migrationSQL)); err != nil {
		return fmt.Errorf("error executing migrations: %w", err)
	}
	return nil
}

// rebind rewrites ? placeholders into $n for PostgreSQL.
func (s *sqlStorage) rebind(query string) string {
	if s.dialect != dialectPostgres {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func (s *sqlStorage) exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return s.db.ExecContext(ctx, s.rebind(query), args...)
}

func (s *sqlStorage) query(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return s.db.QueryContext(ctx, s.rebind(query), args...)
}

func (s *sqlStorage) queryRow(ctx context.Context, query string, args ...any) *sql.Row {
	return s.db.QueryRowContext(ctx, s.rebind(query), args...)
}

// History methods
func (s *sqlStorage) AppendHistory(ctx context.Context, e models.HistoryEntry) error {
	_, err := s.exec(ctx,
		`INSERT INTO history (user_id, role, content, timestamp) VALUES (?, ?, ?, ?)`,
		e.UserID, string(e.Role), e.Content, e.Timestamp.Unix())
	if err != nil {
		return fmt.Errorf("error saving history entry: %w", err)
	}
	return nil
}

func (s *sqlStorage) RecentHistory(ctx context.Context, userID int64, limit int) ([]models.HistoryEntry, error) {
	rows, err := s.query(ctx, `
		SELECT user_id, role, content, timestamp
		FROM history
		WHERE user_id = ?
		ORDER BY timestamp DESC, id DESC
		LIMIT ?`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("error querying history: %w", err)
	}
	defer rows.Close()

	entries, err := scanHistory(rows)
	if err != nil {
		return nil, err
	}
	for i, j := 0, len(entries)-1; i < j; i, j = i+1, j-1 {
		entries[i], entries[j] = entries[j], entries[i]
	}
	return entries, nil
}

func scanHistory(rows *sql.Rows) ([]models.HistoryEntry, error) {
	var entries []models.HistoryEntry
	for rows.Next() {
		var (
			e    models.HistoryEntry
			role string
			ts   int64
		)
		if err := rows.Scan(&e.UserID, &role, &e.Content, &ts); err != nil {
			return nil, fmt.Errorf("error scanning history entry: %w", err)
		}
		e.Role = models.Role(role)
		e.Timestamp = time.Unix(ts, 0)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func (s *sqlStorage) DeleteHistoryBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.exec(ctx, `DELETE FROM history WHERE timestamp < ?`, cutoff.Unix())
	if err != nil {
		return 0, fmt.Errorf("error deleting old history: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("error getting rows affected: %w", err)
	}
	return n, nil
}

func (s *sqlStorage) ClearHistory(ctx context.Context, userID int64) error {
	if _, err := s.exec(ctx, `DELETE FROM history WHERE user_id = ?`, userID); err != nil {
		return fmt.Errorf("error clearing history: %w", err)
	}
	return nil
}

func (s *sqlStorage) HistoryUsers(ctx context.Context) ([]int64, error) {
	return s.int64s(ctx, `SELECT DISTINCT user_id FROM history ORDER BY user_id`)
}

func (s *sqlStorage) int64s(ctx context.Context, query string, args ...any) ([]int64, error) {
	rows, err := s.query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("error querying ids: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("error scanning id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// Reminder methods
func (s *sqlStorage) CreateReminder(ctx context.Context, r *models.Reminder) error {
	err := s.queryRow(ctx, `
		INSERT INTO reminders (user_id, remind_at, text, created_at)
		VALUES (?, ?, ?, ?)
		RETURNING id`,
		r.UserID, r.RemindAt.Unix(), r.Text, r.CreatedAt.Unix(),
	).Scan(&r.ID)
	if err != nil {
		return fmt.Errorf("error creating reminder: %w", err)
	}
	return nil
}

const reminderColumns = `id, user_id, remind_at, text, created_at`

func (s *sqlStorage) reminders(ctx context.Context, query string, args ...any) ([]models.Reminder, error) {
	rows, err := s.query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("error querying reminders: %w", err)
	}
	defer rows.Close()

	var out []models.Reminder
	for rows.Next() {
		var (
			r                 models.Reminder
			remindAt, created int64
		)
		if err := rows.Scan(&r.ID, &r.UserID, &remindAt, &r.Text, &created); err != nil {
			return nil, fmt.Errorf("error scanning reminder: %w", err)
		}
		r.RemindAt = time.Unix(remindAt, 0)
		r.CreatedAt = time.Unix(created, 0)
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *sqlStorage) ListReminders(ctx context.Context, userID int64) ([]models.Reminder, error) {
	return s.reminders(ctx, `SELECT `+reminderColumns+` FROM reminders
		WHERE user_id = ? ORDER BY remind_at, id`, userID)
}

func (s *sqlStorage) ListRemindersBefore(ctx context.Context, userID int64, before time.Time) ([]models.Reminder, error) {
	return s.reminders(ctx, `SELECT `+reminderColumns+` FROM reminders
		WHERE user_id = ? AND remind_at < ? ORDER BY remind_at, id`, userID, before.Unix())
}

func (s *sqlStorage) DueReminders(ctx context.Context, now time.Time) ([]models.Reminder, error) {
	return s.reminders(ctx, `SELECT `+reminderColumns+` FROM reminders
		WHERE remind_at <= ? ORDER BY remind_at, id`, now.Unix())
}

func (s *sqlStorage) DeleteReminder(ctx context.Context, id, userID int64) (bool, error) {
	return s.deleteOwned(ctx, `DELETE FROM reminders WHERE id = ? AND user_id = ?`, id, userID)
}

func (s *sqlStorage) DeleteReminderByID(ctx context.Context, id int64) error {
	if _, err := s.exec(ctx, `DELETE FROM reminders WHERE id = ?`, id); err != nil {
		return fmt.Errorf("error deleting reminder: %w", err)
	}
	return nil
}

func (s *sqlStorage) deleteOwned(ctx context.Context, query string, id, userID int64) (bool, error) {
	res, err := s.exec(ctx, query, id, userID)
	if err != nil {
		return false, fmt.Errorf("error deleting record: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("error getting rows affected: %w", err)
	}
	return n > 0, nil
}

// Note methods
func (s *sqlStorage) CreateNote(ctx context.Context, n *models.Note) error {
	err := s.queryRow(ctx, `
		INSERT INTO notes (user_id, title, content, created_at)
		VALUES (?, ?, ?, ?)
		RETURNING id`,
		n.UserID, n.Title, n.Content, n.CreatedAt.Unix(),
	).Scan(&n.ID)
	if err != nil {
		return fmt.Errorf("error creating note: %w", err)
	}
	return nil
}

func (s *sqlStorage) notes(ctx context.Context, query string, args ...any) ([]models.Note, error) {
	rows, err := s.query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("error querying notes: %w", err)
	}
	defer rows.Close()

	var out []models.Note
	for rows.Next() {
		var (
			n       models.Note
			created int64
		)
		if err := rows.Scan(&n.ID, &n.UserID, &n.Title, &n.Content, &created); err != nil {
			return nil, fmt.Errorf("error scanning note: %w", err)
		}
		n.CreatedAt = time.Unix(created, 0)
		out = append(out, n)
	}
	return out, rows.Err()
}

func (s *sqlStorage) ListNotes(ctx context.Context, userID int64, limit int) ([]models.Note, error) {
	if limit <= 0 {
		return s.notes(ctx, `SELECT id, user_id, title, content, created_at FROM notes
			WHERE user_id = ? ORDER BY created_at DESC, id DESC`, userID)
	}
	return s.notes(ctx, `SELECT id, user_id, title, content, created_at FROM notes
		WHERE user_id = ? ORDER BY created_at DESC, id DESC LIMIT ?`, userID, limit)
}

func (s *sqlStorage) SearchNotes(ctx context.Context, userID int64, query string) ([]models.Note, error) {
	pattern := "%" + strings.ToLower(query) + "%"
	return s.notes(ctx, `SELECT id, user_id, title, content, created_at FROM notes
		WHERE user_id = ? AND (LOWER(title) LIKE ? OR LOWER(content) LIKE ?)
		ORDER BY created_at DESC, id DESC`, userID, pattern, pattern)
}

func (s *sqlStorage) DeleteNote(ctx context.Context, id, userID int64) (bool, error) {
	return s.deleteOwned(ctx, `DELETE FROM notes WHERE id = ? AND user_id = ?`, id, userID)
}

// Ban methods
func (s *sqlStorage) AddBan(ctx context.Context, userID int64) error {
	if _, err := s.exec(ctx, `INSERT INTO bans (user_id) VALUES (?) ON CONFLICT DO NOTHING`, userID); err != nil {
		return fmt.Errorf("error saving ban: %w", err)
	}
	return nil
}

func (s *sqlStorage) RemoveBan(ctx context.Context, userID int64) error {
	if _, err := s.exec(ctx, `DELETE FROM bans WHERE user_id = ?`, userID); err != nil {
		return fmt.Errorf("error removing ban: %w", err)
	}
	return nil
}

func (s *sqlStorage) ListBans(ctx context.Context) ([]int64, error) {
	return s.int64s(ctx, `SELECT user_id FROM bans ORDER BY user_id`)
}

// Fact methods
func (s *sqlStorage) GetFacts(ctx context.Context, userID int64) (models.Facts, error) {
	var raw string
	err := s.queryRow(ctx, `SELECT facts FROM user_facts WHERE user_id = ?`, userID).Scan(&raw)
	if err == sql.ErrNoRows {
		return models.Facts{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("error querying facts: %w", err)
	}
	facts := models.Facts{}
	if err := json.Unmarshal([]byte(raw), &facts); err != nil {
		return nil, fmt.Errorf("error decoding facts: %w", err)
	}
	return facts, nil
}

func (s *sqlStorage) SaveFacts(ctx context.Context, uf models.UserFacts) error {
	raw, err := json.Marshal(uf.Facts)
	if err != nil {
		return fmt.Errorf("error encoding facts: %w", err)
	}
	_, err = s.exec(ctx, `
		INSERT INTO user_facts (user_id, facts, updated_at) VALUES (?, ?, ?)
		ON CONFLICT (user_id) DO UPDATE SET facts = excluded.facts, updated_at = excluded.updated_at`,
		uf.UserID, string(raw), uf.UpdatedAt.Unix())
	if err != nil {
		return fmt.Errorf("error saving facts: %w", err)
	}
	return nil
}

func (s *sqlStorage) DeleteFacts(ctx context.Context, userID int64) error {
	if _, err := s.exec(ctx, `DELETE FROM user_facts WHERE user_id = ?`, userID); err != nil {
		return fmt.Errorf("error deleting facts: %w", err)
	}
	return nil
}

// Setting methods
func (s *sqlStorage) GetSetting(ctx context.Context, key string) (string, bool, error) {
	var value string
	err := s.queryRow(ctx, `SELECT value FROM settings WHERE key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("error querying setting: %w", err)
	}
	return value, true, nil
}

func (s *sqlStorage) SetSetting(ctx context.Context, key, value string) error {
	_, err := s.exec(ctx, `
		INSERT INTO settings (key, value) VALUES (?, ?)
		ON CONFLICT (key) DO UPDATE SET value = excluded.value`, key, value)
	if err != nil {
		return fmt.Errorf("error saving setting: %w", err)
	}
	return nil
}

func (s *sqlStorage) count(ctx context.Context, query string, args ...any) (int64, error) {
	var n int64
	if err := s.queryRow(ctx, query, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("error counting records: %w", err)
	}
	return n, nil
}

func (s *sqlStorage) Stats(ctx context.Context) (models.Stats, error) {
	var (
		st  models.Stats
		err error
	)
	if st.HistoryEntries, err = s.count(ctx, `SELECT COUNT(*) FROM history`); err != nil {
		return st, err
	}
	if st.Users, err = s.count(ctx, `SELECT COUNT(DISTINCT user_id) FROM history`); err != nil {
		return st, err
	}
	if st.Reminders, err = s.count(ctx, `SELECT COUNT(*) FROM reminders`); err != nil {
		return st, err
	}
	if st.Notes, err = s.count(ctx, `SELECT COUNT(*) FROM notes`); err != nil {
		return st, err
	}
	return st, nil
}

func (s *sqlStorage) UserStats(ctx context.Context, userID int64) (models.UserStats, error) {
	var (
		st  models.UserStats
		err error
	)
	if st.HistoryEntries, err = s.count(ctx, `SELECT COUNT(*) FROM history WHERE user_id = ?`, userID); err != nil {
		return st, err
	}
	if st.Reminders, err = s.count(ctx, `SELECT COUNT(*) FROM reminders WHERE user_id = ?`, userID); err != nil {
		return st, err
	}
	if st.Notes, err = s.count(ctx, `SELECT COUNT(*) FROM notes WHERE user_id = ?`, userID); err != nil {
		return st, err
	}
	return st, nil
}

var wipeTables = []string{"history", "bans", "reminders", "notes", "user_facts"}

func (s *sqlStorage) Wipe(ctx context.Context) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("error starting wipe: %w", err)
	}
	defer tx.Rollback()

	for _, table := range wipeTables {
		if _, err := tx.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return fmt.Errorf("error wiping %s: %w", table, err)
		}
	}
	return tx.Commit()
}

func (s *sqlStorage) snapshot(ctx context.Context) (*Snapshot, error) {
	snap := &Snapshot{Settings: map[string]string{}}

	rows, err := s.query(ctx, `SELECT user_id, role, content, timestamp FROM history ORDER BY timestamp, id`)
	if err != nil {
		return nil, fmt.Errorf("error querying history: %w", err)
	}
	snap.History, err = scanHistory(rows)
	rows.Close()
	if err != nil {
		return nil, err
	}

	if snap.Reminders, err = s.reminders(ctx, `SELECT `+reminderColumns+` FROM reminders ORDER BY id`); err != nil {
		return nil, err
	}
	if snap.Notes, err = s.notes(ctx, `SELECT id, user_id, title, content, created_at FROM notes ORDER BY id`); err != nil {
		return nil, err
	}
	if snap.Bans, err = s.ListBans(ctx); err != nil {
		return nil, err
	}

	factUsers, err := s.int64s(ctx, `SELECT user_id FROM user_facts ORDER BY user_id`)
	if err != nil {
		return nil, err
	}
	for _, uid := range factUsers {
		facts, err := s.GetFacts(ctx, uid)
		if err != nil {
			return nil, err
		}
		snap.Facts = append(snap.Facts, models.UserFacts{UserID: uid, Facts: facts})
	}

	settings, err := s.query(ctx, `SELECT key, value FROM settings`)
	if err != nil {
		return nil, fmt.Errorf("error querying settings: %w", err)
	}
	defer settings.Close()
	for settings.Next() {
		var k, v string
		if err := settings.Scan(&k, &v); err != nil {
			return nil, fmt.Errorf("error scanning setting: %w", err)
		}
		snap.Settings[k] = v
	}
	return snap, settings.Err()
}

func (s *sqlStorage) Close() error {
	return s.db.Close()
}
