package cache

import (
	"context"
	"database/sql"
	"fmt"
	"math"
	"time"

	_ "github.com/mattn/go-sqlite3" // registers the sqlite3 driver
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS cache_entries (
	key          TEXT PRIMARY KEY,
	value        BLOB NOT NULL,
	created_at   INTEGER NOT NULL,
	ttl_seconds  INTEGER NOT NULL,
	last_access  INTEGER NOT NULL
);`

// SQLiteStore keeps records in a SQLite database.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (and migrates) the database at path.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", path+"?_busy_timeout=5000&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	db.SetMaxOpenConns(1)

	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate sqlite: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// Save replaces all rows in one transaction.
func (s *SQLiteStore) Save(ctx context.Context, records []Record) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	if _, err := tx.ExecContext(ctx, `DELETE FROM cache_entries`); err != nil {
		return fmt.Errorf("clear cache: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO cache_entries (key, value, created_at, ttl_seconds, last_access) VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, r := range records {
		if _, err := stmt.ExecContext(ctx,
			r.Key, []byte(r.Value), r.CreatedAt.UnixNano(), r.TTLSeconds, r.LastAccess.UnixNano(),
		); err != nil {
			return fmt.Errorf("insert %s: %w", r.Key, err)
		}
	}

	return tx.Commit()
}

// Load returns all rows ordered by last access.
func (s *SQLiteStore) Load(ctx context.Context) ([]Record, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT key, value, created_at, ttl_seconds, last_access FROM cache_entries ORDER BY last_access`)
	if err != nil {
		return nil, fmt.Errorf("query cache: %w", err)
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		var (
			r                 Record
			value             []byte
			created, accessed int64
			ttl               float64 // older databases declared the column REAL
		)
		if err := rows.Scan(&r.Key, &value, &created, &ttl, &accessed); err != nil {
			return nil, fmt.Errorf("scan cache row: %w", err)
		}
		r.TTLSeconds = int64(math.Ceil(ttl))
		r.Value = value
		r.CreatedAt = time.Unix(0, created)
		r.LastAccess = time.Unix(0, accessed)
		records = append(records, r)
	}

	return records, rows.Err()
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
