package storage

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"
	_ "modernc.org/sqlite"
)

type SQLiteStorage struct {
	sqlStorage
	path string
}

// NewSQLiteStorage opens (or creates) the database file at path with WAL
// journaling enabled.
func NewSQLiteStorage(path string, logger *zap.Logger) (*SQLiteStorage, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("error creating database dir: %w", err)
	}

	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("error opening database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("error connecting to the database: %w", err)
	}

	storage := &SQLiteStorage{sqlStorage: sqlStorage{db: db, dialect: dialectSQLite}, path: path}
	if err := storage.initializeSchema("sqlite.sql"); err != nil {
		db.Close()
		return nil, fmt.Errorf("error initializing database schema: %w", err)
	}

	logger.Info("SQLite storage ready", zap.String("path", path))
	return storage, nil
}

// Backup copies the live database with VACUUM INTO, which is consistent
// under concurrent WAL writers.
func (s *SQLiteStorage) Backup(ctx context.Context, dir string) (string, error) {
	path, err := backupPath(dir, ".db", time.Now())
	if err != nil {
		return "", err
	}
	if _, err := s.db.ExecContext(ctx, `VACUUM INTO ?`, path); err != nil {
		return "", fmt.Errorf("error backing up database: %w", err)
	}
	return path, nil
}
