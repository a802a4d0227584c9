// Package history keeps per-user query history so past questions and
// response previews can be reviewed later. Responses themselves are not
// persisted here; only the preview a history list needs.
package history

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"pharmalens.org/internal/ids"
)

// Item is one history entry.
type Item struct {
	ID              string    `json:"id"`
	UserID          string    `json:"user_id"`
	Query           string    `json:"query"`
	Timestamp       time.Time `json:"timestamp"`
	ResponsePreview string    `json:"response_preview"`
	Confidence      string    `json:"confidence"`
}

const previewLimit = 200

// Store persists history in SQLite.
type Store struct {
	db *sql.DB
}

// Open opens or creates the history database at the given path.
func Open(dbPath string) (*Store, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create db dir: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(wal)&_pragma=foreign_keys(on)")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS query_history (
		id          TEXT PRIMARY KEY,
		user_id     TEXT NOT NULL,
		query       TEXT NOT NULL,
		created_at  TEXT NOT NULL,
		preview     TEXT NOT NULL,
		confidence  TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_history_user_created ON query_history(user_id, created_at DESC);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Record appends one history entry, truncating the preview on a rune
// boundary.
func (s *Store) Record(ctx context.Context, userID, query, summary, confidence string, at time.Time) (Item, error) {
	userID = strings.TrimSpace(userID)
	query = strings.TrimSpace(query)
	if userID == "" || query == "" {
		return Item{}, fmt.Errorf("history: user id and query are required")
	}

	item := Item{
		ID:              ids.New(),
		UserID:          userID,
		Query:           query,
		Timestamp:       at.UTC(),
		ResponsePreview: preview(summary),
		Confidence:      confidence,
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO query_history (id, user_id, query, created_at, preview, confidence)
		VALUES (?, ?, ?, ?, ?, ?)`,
		item.ID, item.UserID, item.Query, item.Timestamp.Format(time.RFC3339Nano),
		item.ResponsePreview, item.Confidence,
	)
	if err != nil {
		return Item{}, err
	}
	return item, nil
}

// List returns the newest entries for a user, most recent first.
func (s *Store) List(ctx context.Context, userID string, limit int) ([]Item, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, query, created_at, preview, confidence
		FROM query_history
		WHERE user_id = ?
		ORDER BY created_at DESC
		LIMIT ?`, strings.TrimSpace(userID), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []Item
	for rows.Next() {
		var item Item
		var created string
		if err := rows.Scan(&item.ID, &item.UserID, &item.Query, &created, &item.ResponsePreview, &item.Confidence); err != nil {
			return nil, err
		}
		ts, err := time.Parse(time.RFC3339Nano, created)
		if err != nil {
			return nil, fmt.Errorf("history: bad timestamp %q: %w", created, err)
		}
		item.Timestamp = ts
		items = append(items, item)
	}
	return items, rows.Err()
}

// Purge removes all history for a user.
func (s *Store) Purge(ctx context.Context, userID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM query_history WHERE user_id = ?`, strings.TrimSpace(userID))
	return err
}

func preview(summary string) string {
	summary = strings.TrimSpace(summary)
	runes := []rune(summary)
	if len(runes) <= previewLimit {
		return summary
	}
	return string(runes[:previewLimit]) + "…"
}
