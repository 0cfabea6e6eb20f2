// Package store persists fetched response bodies in SQLite so that a cache
// survives restarts.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/charmbracelet/log"
	_ "modernc.org/sqlite"

	"github.com/vilaca/flatrest/internal/domain"
	"github.com/vilaca/flatrest/internal/logging"
)

// Schema is applied on Open.
const Schema = `
CREATE TABLE IF NOT EXISTS responses (
    url         TEXT PRIMARY KEY,
    status      INTEGER NOT NULL,
    body        TEXT NOT NULL,
    fetched_at  INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_responses_fetched ON responses(fetched_at);
`

// SQLiteStore implements api.BodyStore on a SQLite database.
type SQLiteStore struct {
	DB     *sql.DB
	logger *log.Logger
	now    func() time.Time
}

// Open opens (creating if needed) the database at path and applies Schema.
// The path ":memory:" opens a private in-memory database.
func Open(path string, logger *log.Logger) (*SQLiteStore, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create store directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open store %s: %w", path, err)
	}
	// A single connection keeps ":memory:" databases shared and serialises writers.
	db.SetMaxOpenConns(1)

	for _, pragma := range []string{"PRAGMA journal_mode=WAL", "PRAGMA busy_timeout=10000", "PRAGMA synchronous=NORMAL"} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("%s: %w", pragma, err)
		}
	}
	if _, err := db.Exec(Schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	return &SQLiteStore{DB: db, logger: logging.OrDiscard(logger), now: time.Now}, nil
}

// Load returns the stored response for url when it is younger than maxAge.
// A maxAge <= 0 accepts any age.
func (s *SQLiteStore) Load(ctx context.Context, url string, maxAge time.Duration) (*domain.RawResponse, bool, error) {
	var (
		resp      = domain.RawResponse{URL: url}
		fetchedAt int64
	)
	err := s.DB.QueryRowContext(ctx,
		`SELECT status, body, fetched_at FROM responses WHERE url = ?`, url,
	).Scan(&resp.StatusCode, &resp.Body, &fetchedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("load %s: %w", url, err)
	}

	if maxAge > 0 && s.now().Sub(time.UnixMilli(fetchedAt)) > maxAge {
		return nil, false, nil
	}
	return &resp, true, nil
}

// Save upserts resp.
func (s *SQLiteStore) Save(ctx context.Context, resp *domain.RawResponse) error {
	if resp == nil || resp.URL == "" {
		return &domain.PreconditionViolation{What: "store: response without URL"}
	}
	_, err := s.DB.ExecContext(ctx, `
		INSERT INTO responses (url, status, body, fetched_at) VALUES (?, ?, ?, ?)
		ON CONFLICT(url) DO UPDATE SET status = excluded.status, body = excluded.body, fetched_at = excluded.fetched_at`,
		resp.URL, resp.StatusCode, resp.Body, s.now().UnixMilli())
	if err != nil {
		return fmt.Errorf("save %s: %w", resp.URL, err)
	}
	return nil
}

// Prune deletes responses fetched more than olderThan ago and returns the count.
func (s *SQLiteStore) Prune(ctx context.Context, olderThan time.Duration) (int64, error) {
	cutoff := s.now().Add(-olderThan).UnixMilli()
	res, err := s.DB.ExecContext(ctx, `DELETE FROM responses WHERE fetched_at < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("prune: %w", err)
	}
	n, _ := res.RowsAffected()
	if n > 0 {
		s.logger.Info("pruned stored responses", "count", n, "older_than", olderThan)
	}
	return n, nil
}

// Count returns the number of stored responses.
func (s *SQLiteStore) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.DB.QueryRowContext(ctx, `SELECT COUNT(*) FROM responses`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count: %w", err)
	}
	return n, nil
}

// Close closes the database.
func (s *SQLiteStore) Close() error { return s.DB.Close() }
