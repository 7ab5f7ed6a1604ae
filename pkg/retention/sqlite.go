package retention

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/aretw0/introspection"
	_ "modernc.org/sqlite"

	"github.com/aretw0/mahina/pkg/core"
)

const schema = `
CREATE TABLE IF NOT EXISTS exposures (
	id TEXT PRIMARY KEY,
	path TEXT NOT NULL,
	expires_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_exposures_expires ON exposures(expires_at);
`

// SQLiteStore is a Store persisted in a SQLite database, so exposures
// recorded before a restart are still swept afterwards.
type SQLiteStore struct {
	db   *sql.DB
	path string
}

// OpenSQLite opens (creating if needed) the exposure database at path.
func OpenSQLite(path string) (*SQLiteStore, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// One writer avoids SQLITE_BUSY between the handler and the sweeper.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create table: %w", err)
	}
	return &SQLiteStore{db: db, path: path}, nil
}

func (s *SQLiteStore) Put(ctx context.Context, e Entry) error {
	if e.ID == "" {
		return fmt.Errorf("retention: empty id")
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO exposures (id, path, expires_at) VALUES (?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET path = excluded.path, expires_at = excluded.expires_at`,
		e.ID, e.Path, e.ExpiresAt.UnixNano())
	if err != nil {
		return fmt.Errorf("retention: put %s: %w", e.ID, err)
	}
	return nil
}

func (s *SQLiteStore) Get(ctx context.Context, id string, now time.Time) (Entry, error) {
	var (
		e       = Entry{ID: id}
		expires int64
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT path, expires_at FROM exposures WHERE id = ?`, id).Scan(&e.Path, &expires)
	if errors.Is(err, sql.ErrNoRows) {
		return Entry{}, core.ErrNotFound
	}
	if err != nil {
		return Entry{}, fmt.Errorf("retention: get %s: %w", id, err)
	}
	e.ExpiresAt = time.Unix(0, expires)
	if e.Expired(now) {
		return Entry{}, core.ErrExpired
	}
	return e, nil
}

func (s *SQLiteStore) Delete(ctx context.Context, id string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM exposures WHERE id = ?`, id); err != nil {
		return fmt.Errorf("retention: delete %s: %w", id, err)
	}
	return nil
}

func (s *SQLiteStore) Expired(ctx context.Context, now time.Time) ([]Entry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, path, expires_at FROM exposures WHERE expires_at <= ? ORDER BY expires_at`,
		now.UnixNano())
	if err != nil {
		return nil, fmt.Errorf("retention: query expired: %w", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var (
			e       Entry
			expires int64
		)
		if err := rows.Scan(&e.ID, &e.Path, &expires); err != nil {
			return nil, err
		}
		e.ExpiresAt = time.Unix(0, expires)
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) Len(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM exposures`).Scan(&n)
	return n, err
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error { return s.db.Close() }

// State implements introspection.Introspectable.
func (s *SQLiteStore) State() any {
	n, _ := s.Len(context.Background())
	return StoreState{Backend: "sqlite", Path: s.path, Entries: n}
}

// ComponentType implements introspection.Component.
func (s *SQLiteStore) ComponentType() string { return "retention-store" }

var _ Store = (*SQLiteStore)(nil)
var _ introspection.Introspectable = (*SQLiteStore)(nil)
