package cache

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteStore persists entries in a single fact_check_cache table.
type SQLiteStore struct {
	db  *sql.DB
	now func() time.Time
}

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS fact_check_cache (
	claim_hash TEXT PRIMARY KEY,
	result     BLOB NOT NULL,
	created_at INTEGER NOT NULL,
	expires_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_fact_check_cache_expires ON fact_check_cache(expires_at);
`

// OpenSQLite opens or creates the database at path.
func OpenSQLite(path string) (*SQLiteStore, error) {
	if path == "" {
		return nil, fmt.Errorf("sqlite cache path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("create cache dir: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// A single writer avoids SQLITE_BUSY under concurrent claim branches
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}
	if _, err := db.Exec(sqliteSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate sqlite: %w", err)
	}

	return &SQLiteStore{db: db, now: time.Now}, nil
}

// Get returns the stored value unless it has expired
func (s *SQLiteStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	var (
		value     []byte
		expiresAt int64
	)
	err := s.db.QueryRowContext(ctx,
		"SELECT result, expires_at FROM fact_check_cache WHERE claim_hash = ?", key,
	).Scan(&value, &expiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, unavailable("sqlite get", err)
	}

	if s.now().Unix() >= expiresAt {
		_, _ = s.db.ExecContext(ctx, "DELETE FROM fact_check_cache WHERE claim_hash = ?", key)
		return nil, false, nil
	}

	return value, true, nil
}

// Set upserts a value
func (s *SQLiteStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	now := s.now()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO fact_check_cache (claim_hash, result, created_at, expires_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(claim_hash) DO UPDATE SET
			result = excluded.result,
			created_at = excluded.created_at,
			expires_at = excluded.expires_at`,
		key, value, now.Unix(), now.Add(ttl).Unix(),
	)
	if err != nil {
		return unavailable("sqlite set", err)
	}
	return nil
}

// Delete removes a value
func (s *SQLiteStore) Delete(ctx context.Context, key string) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM fact_check_cache WHERE claim_hash = ?", key); err != nil {
		return unavailable("sqlite delete", err)
	}
	return nil
}

// Clear removes every row
func (s *SQLiteStore) Clear(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM fact_check_cache"); err != nil {
		return unavailable("sqlite clear", err)
	}
	return nil
}

// PurgeExpired deletes expired rows and returns how many were removed
func (s *SQLiteStore) PurgeExpired(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx, "DELETE FROM fact_check_cache WHERE expires_at <= ?", s.now().Unix())
	if err != nil {
		return 0, unavailable("sqlite purge", err)
	}
	return res.RowsAffected()
}

// Close closes the database
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
