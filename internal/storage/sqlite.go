package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/bobby-s-dev/weather-dashboard/internal/models"
	"go.uber.org/zap"

	_ "modernc.org/sqlite"
)

const (
	DefaultListLimit = 50
	MaxListLimit     = 500
)

// Fixed-width so stored timestamps sort lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

var schema = []string{
	`CREATE TABLE IF NOT EXISTS fetches (
	id TEXT PRIMARY KEY,
	location TEXT NOT NULL,
	outcome TEXT NOT NULL,
	error_kind TEXT,
	message TEXT,
	temperature TEXT,
	started_at TEXT NOT NULL,
	completed_at TEXT NOT NULL,
	duration_ms INTEGER NOT NULL
)`,
	`CREATE INDEX IF NOT EXISTS idx_fetches_completed_at ON fetches(completed_at)`,
}

// SQLiteStore is an append-only log of completed fetch attempts.
type SQLiteStore struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewSQLite opens (or creates) the database at path and applies the schema.
func NewSQLite(path string, logger *zap.Logger) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening history database: %w", err)
	}
	// One writer; sqlite serialises writes anyway.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL;"); err != nil {
		logger.Warn("Could not set WAL mode", zap.String("path", path), zap.Error(err))
	}

	for _, stmt := range schema {
		if _, err := db.Exec(stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("applying history schema: %w", err)
		}
	}

	logger.Info("Fetch history enabled", zap.String("path", path))
	return &SQLiteStore{db: db, logger: logger}, nil
}

func (s *SQLiteStore) RecordFetch(ctx context.Context, r models.FetchRecord) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO fetches(id, location, outcome, error_kind, message, temperature, started_at, completed_at, duration_ms)
		VALUES(?,?,?,?,?,?,?,?,?)`,
		r.ID, r.Location, r.Outcome, r.ErrorKind, r.Message, r.Temperature,
		r.StartedAt.UTC().Format(timeLayout),
		r.CompletedAt.UTC().Format(timeLayout),
		r.Duration.Milliseconds())
	if err != nil {
		return fmt.Errorf("recording fetch %s: %w", r.ID, err)
	}
	return nil
}

// ListFetches returns the most recent fetches, newest first. limit is
// clamped to [1, MaxListLimit]; zero or negative means DefaultListLimit.
func (s *SQLiteStore) ListFetches(ctx context.Context, limit int) ([]models.FetchRecord, error) {
	switch {
	case limit <= 0:
		limit = DefaultListLimit
	case limit > MaxListLimit:
		limit = MaxListLimit
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, location, outcome, error_kind, message, temperature, started_at, completed_at, duration_ms
		FROM fetches ORDER BY completed_at DESC, rowid DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("listing fetches: %w", err)
	}
	defer rows.Close()

	out := make([]models.FetchRecord, 0)
	for rows.Next() {
		var (
			r                    models.FetchRecord
			errorKind, message   sql.NullString
			temperature          sql.NullString
			startedAt, completed string
			durationMS           int64
		)
		if err := rows.Scan(&r.ID, &r.Location, &r.Outcome, &errorKind, &message, &temperature, &startedAt, &completed, &durationMS); err != nil {
			return nil, fmt.Errorf("scanning fetch: %w", err)
		}
		r.ErrorKind = errorKind.String
		r.Message = message.String
		r.Temperature = temperature.String
		r.Duration = time.Duration(durationMS) * time.Millisecond
		if t, err := time.Parse(timeLayout, startedAt); err == nil {
			r.StartedAt = t
		}
		if t, err := time.Parse(timeLayout, completed); err == nil {
			r.CompletedAt = t
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("listing fetches: %w", err)
	}
	return out, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
