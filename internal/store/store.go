// Package store provides the SQLite-backed character table used by the
// character service.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/starford/charforge/internal/apperr"
	"github.com/starford/charforge/internal/models"
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS characters (
	id         TEXT PRIMARY KEY,
	name       TEXT NOT NULL DEFAULT '',
	body       TEXT NOT NULL,
	created_at TEXT NOT NULL,
	updated_at TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_characters_updated_at ON characters(updated_at);
`

// Timestamps are stored as fixed-width RFC 3339 text so that lexical order
// matches time order and nanoseconds survive.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// CharacterStore defines the persistence operations of the service.
// Consumers should depend on this interface rather than the concrete *DB.
type CharacterStore interface {
	Get(ctx context.Context, id string) (*models.CharacterSheet, error)
	List(ctx context.Context) ([]models.Summary, error)
	Upsert(ctx context.Context, sheet *models.CharacterSheet) error
	Delete(ctx context.Context, id string) error
	DeleteAll(ctx context.Context) (int, error)
	Count(ctx context.Context) (int, error)
	Close() error
}

// Verify *DB satisfies CharacterStore at compile time.
var _ CharacterStore = (*DB)(nil)

// DB wraps a sql.DB with character operations.
type DB struct {
	conn *sql.DB
}

// Open opens (or creates) the SQLite database and applies the schema.
func Open(dsn string) (*DB, error) {
	conn, err := sql.Open("sqlite3", dsn+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("store: open db: %w", err)
	}
	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("store: ping: %w", err)
	}
	if _, err := conn.Exec(schemaSQL); err != nil {
		conn.Close()
		return nil, fmt.Errorf("store: apply schema: %w", err)
	}
	return &DB{conn: conn}, nil
}

// Close closes the underlying database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

// Ping checks the connection, for readiness probes.
func (db *DB) Ping(ctx context.Context) error {
	return db.conn.PingContext(ctx)
}

// Get returns the stored record or apperr.ErrNotFound.
func (db *DB) Get(ctx context.Context, id string) (*models.CharacterSheet, error) {
	var body string
	err := db.conn.QueryRowContext(ctx, `SELECT body FROM characters WHERE id = ?`, id).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("store: get %s: %w", id, err)
	}
	var sheet models.CharacterSheet
	if err := json.Unmarshal([]byte(body), &sheet); err != nil {
		return nil, fmt.Errorf("store: decode %s: %w", id, err)
	}
	return &sheet, nil
}

// List returns summaries ordered by most recent update first.
func (db *DB) List(ctx context.Context) ([]models.Summary, error) {
	rows, err := db.conn.QueryContext(ctx, `SELECT id, name, updated_at FROM characters ORDER BY updated_at DESC, id`)
	if err != nil {
		return nil, fmt.Errorf("store: list: %w", err)
	}
	defer rows.Close()

	out := []models.Summary{}
	for rows.Next() {
		var (
			s       models.Summary
			updated string
		)
		if err := rows.Scan(&s.ID, &s.Name, &updated); err != nil {
			return nil, err
		}
		s.UpdatedAt, err = time.Parse(timeLayout, updated)
		if err != nil {
			return nil, fmt.Errorf("store: parse updated_at of %s: %w", s.ID, err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// Upsert inserts or replaces a record.
func (db *DB) Upsert(ctx context.Context, sheet *models.CharacterSheet) error {
	body, err := json.Marshal(sheet)
	if err != nil {
		return fmt.Errorf("store: encode %s: %w", sheet.ID, err)
	}
	_, err = db.conn.ExecContext(ctx, `
		INSERT INTO characters (id, name, body, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name       = excluded.name,
			body       = excluded.body,
			updated_at = excluded.updated_at
	`, sheet.ID, sheet.Name, string(body),
		sheet.CreatedAt.UTC().Format(timeLayout),
		sheet.UpdatedAt.UTC().Format(timeLayout))
	if err != nil {
		return fmt.Errorf("store: upsert %s: %w", sheet.ID, err)
	}
	return nil
}

// Delete removes one record. A missing record yields apperr.ErrNotFound.
func (db *DB) Delete(ctx context.Context, id string) error {
	res, err := db.conn.ExecContext(ctx, `DELETE FROM characters WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("store: delete %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperr.ErrNotFound
	}
	return nil
}

// DeleteAll removes every record and returns how many were deleted.
func (db *DB) DeleteAll(ctx context.Context) (int, error) {
	res, err := db.conn.ExecContext(ctx, `DELETE FROM characters`)
	if err != nil {
		return 0, fmt.Errorf("store: delete all: %w", err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

// Count returns the number of stored records.
func (db *DB) Count(ctx context.Context) (int, error) {
	var n int
	if err := db.conn.QueryRowContext(ctx, `SELECT count(*) FROM characters`).Scan(&n); err != nil {
		return 0, fmt.Errorf("store: count: %w", err)
	}
	return n, nil
}
