package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/xaenox/assistant-bot/internal/models"
)

// Snapshot is a full logical dump of the store.
type Snapshot struct {
	TakenAt   time.Time             `json:"taken_at"`
	History   []models.HistoryEntry `json:"history"`
	Reminders []models.Reminder     `json:"reminders"`
	Notes     []models.Note         `json:"notes"`
	Bans      []int64               `json:"bans"`
	Facts     []models.UserFacts    `json:"user_facts"`
	Settings  map[string]string     `json:"settings"`
}

func backupPath(dir, ext string, now time.Time) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("error creating backup dir: %w", err)
	}
	name := fmt.Sprintf("bot_backup_%s%s", now.Format("20060102_150405"), ext)
	return filepath.Join(dir, name), nil
}

func writeSnapshot(ctx context.Context, dir string, take func(ctx context.Context) (*Snapshot, error)) (string, error) {
	snap, err := take(ctx)
	if err != nil {
		return "", err
	}
	snap.TakenAt = time.Now()

	path, err := backupPath(dir, ".json", snap.TakenAt)
	if err != nil {
		return "", err
	}
	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return "", fmt.Errorf("error encoding snapshot: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return "", fmt.Errorf("error writing snapshot: %w", err)
	}
	return path, nil
}
