package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"
)

const historySchema = `
CREATE TABLE IF NOT EXISTS searches (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	artist TEXT NOT NULL,
	album TEXT NOT NULL,
	title TEXT NOT NULL,
	result_count INTEGER NOT NULL,
	cache_hit INTEGER NOT NULL,
	duration_ms INTEGER NOT NULL,
	created_at TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_searches_created_at ON searches(created_at);
`

// SearchRecord is one logged search.
type SearchRecord struct {
	Artist      string        `json:"artist"`
	Album       string        `json:"album"`
	Title       string        `json:"title"`
	ResultCount int           `json:"result_count"`
	CacheHit    bool          `json:"cache_hit"`
	Duration    time.Duration `json:"duration_ms"`
	CreatedAt   time.Time     `json:"created_at"`
}

// History is an append-only sqlite log of searches.
type History struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewHistory opens (creating if needed) the history database at path.
func NewHistory(path string, logger *zap.Logger) (*History, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("opening history database: %w", err)
	}
	if _, err := db.Exec(historySchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("creating history schema: %w", err)
	}

	return &History{db: db, logger: logger}, nil
}

// Record appends one search to the log.
func (h *History) Record(ctx context.Context, record SearchRecord) error {
	_, err := h.db.ExecContext(ctx,
		`INSERT INTO searches (artist, album, title, result_count, cache_hit, duration_ms, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		record.Artist, record.Album, record.Title,
		record.ResultCount, record.CacheHit,
		record.Duration.Milliseconds(), record.CreatedAt)
	if err != nil {
		return fmt.Errorf("recording search: %w", err)
	}
	return nil
}

// Recent returns the most recent searches, newest first.
func (h *History) Recent(ctx context.Context, limit int) ([]SearchRecord, error) {
	if limit <= 0 {
		limit = 20
	}

	rows, err := h.db.QueryContext(ctx,
		`SELECT artist, album, title, result_count, cache_hit, duration_ms, created_at
		 FROM searches ORDER BY created_at DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("querying history: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	var records []SearchRecord
	for rows.Next() {
		var r SearchRecord
		var durationMS int64
		if err := rows.Scan(&r.Artist, &r.Album, &r.Title, &r.ResultCount, &r.CacheHit, &durationMS, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning history row: %w", err)
		}
		r.Duration = time.Duration(durationMS) * time.Millisecond
		records = append(records, r)
	}
	return records, rows.Err()
}

// Close closes the underlying database.
func (h *History) Close() error {
	return h.db.Close()
}
