package cache

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"price-aggregator/models"

	_ "modernc.org/sqlite"
)

// OpenSQLite opens (creating if needed) the shared cache database at path.
// All adapters keep their rows in the same file.
func OpenSQLite(path string) (*sql.DB, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("creating cache dir: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening cache db: %w", err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS cache_entries (
			adapter  TEXT    NOT NULL,
			key      TEXT    NOT NULL,
			value    TEXT    NOT NULL,
			saved_at INTEGER NOT NULL,
			PRIMARY KEY (adapter, key)
		);

		CREATE TABLE IF NOT EXISTS meta (
			key   TEXT PRIMARY KEY,
			value TEXT NOT NULL
		);
	`); err != nil {
		db.Close()
		return nil, fmt.Errorf("initializing schema: %w", err)
	}
	if _, err := db.Exec(
		`INSERT INTO meta (key, value) VALUES ('schema_version', ?) ON CONFLICT(key) DO NOTHING`,
		strconv.Itoa(SchemaVersion),
	); err != nil {
		db.Close()
		return nil, fmt.Errorf("writing schema version: %w", err)
	}
	return db, nil
}

// SQLiteStore keeps one adapter's entries in a shared sqlite database. The
// database handle is owned by the caller.
type SQLiteStore struct {
	db   *sql.DB
	name string
}

// NewSQLiteStore returns the store for adapter name.
func NewSQLiteStore(db *sql.DB, name string) *SQLiteStore {
	return &SQLiteStore{db: db, name: name}
}

func (s *SQLiteStore) Load(ctx context.Context) (map[string]Entry, error) {
	var version string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM meta WHERE key = 'schema_version'`).Scan(&version)
	if err != nil {
		return nil, fmt.Errorf("reading schema version: %w", err)
	}
	if version != strconv.Itoa(SchemaVersion) {
		return nil, fmt.Errorf("cache db has version %s: %w", version, ErrSchemaVersion)
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT key, value, saved_at FROM cache_entries WHERE adapter = ?`, s.name)
	if err != nil {
		return nil, fmt.Errorf("querying entries: %w", err)
	}
	defer rows.Close()

	entries := make(map[string]Entry)
	for rows.Next() {
		var (
			key, raw string
			savedAt  int64
		)
		if err := rows.Scan(&key, &raw, &savedAt); err != nil {
			return nil, fmt.Errorf("scanning entry: %w", err)
		}
		var value []models.Listing
		if err := json.Unmarshal([]byte(raw), &value); err != nil {
			continue
		}
		entries[key] = Entry{Value: value, Timestamp: time.Unix(0, savedAt)}
	}
	return entries, rows.Err()
}

// Save replaces every row belonging to the adapter in one transaction.
func (s *SQLiteStore) Save(ctx context.Context, entries map[string]Entry) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM cache_entries WHERE adapter = ?`, s.name); err != nil {
		return fmt.Errorf("clearing entries: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO cache_entries (adapter, key, value, saved_at) VALUES (?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for key, e := range entries {
		raw, err := json.Marshal(e.Value)
		if err != nil {
			return fmt.Errorf("encoding entry %q: %w", key, err)
		}
		if _, err := stmt.ExecContext(ctx, s.name, key, string(raw), e.Timestamp.UnixNano()); err != nil {
			return fmt.Errorf("inserting entry %q: %w", key, err)
		}
	}

	return tx.Commit()
}

func (s *SQLiteStore) Close() error { return nil }
