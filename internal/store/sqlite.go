package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/lockguard/lockguard/pkg/errclass"
)

// SQLite keeps blobs in a single table of a WAL-mode database.
type SQLite struct {
	db *sql.DB
}

// OpenSQLite opens (or creates) the database at path.
func OpenSQLite(path string) (*SQLite, error) {
	dsn := path + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(FULL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, errclass.ErrStoreUnavailable.WithMessagef("open %s: %v", path, err)
	}
	db.SetMaxOpenConns(1)

	s := &SQLite{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, errclass.ErrStoreUnavailable.WithMessagef("migrate %s: %v", path, err)
	}
	return s, nil
}

func (s *SQLite) migrate() error {
	_, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS blobs (
		key        TEXT PRIMARY KEY,
		value      BLOB NOT NULL,
		updated_at INTEGER NOT NULL
	)`)
	return err
}

// Load implements KV.
func (s *SQLite) Load(ctx context.Context, key string) ([]byte, bool, error) {
	if err := validateKey(key); err != nil {
		return nil, false, err
	}
	var data []byte
	err := retryOp(defaultRetryConfig, func() error {
		return s.db.QueryRowContext(ctx, `SELECT value FROM blobs WHERE key = ?`, key).Scan(&data)
	})
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, errclass.ErrStoreUnavailable.WithMessagef("load %s: %v", key, err)
	}
	return data, true, nil
}

// Save implements KV.
func (s *SQLite) Save(ctx context.Context, key string, data []byte) error {
	if err := validateKey(key); err != nil {
		return err
	}
	err := retryOp(defaultRetryConfig, func() error {
		_, err := s.db.ExecContext(ctx, `INSERT INTO blobs (key, value, updated_at) VALUES (?, ?, ?)
			ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
			key, data, time.Now().UnixMilli())
		return err
	})
	if err != nil {
		return fmt.Errorf("save %s: %w", key, err)
	}
	return nil
}

// Remove implements KV.
func (s *SQLite) Remove(ctx context.Context, key string) error {
	if err := validateKey(key); err != nil {
		return err
	}
	err := retryOp(defaultRetryConfig, func() error {
		_, err := s.db.ExecContext(ctx, `DELETE FROM blobs WHERE key = ?`, key)
		return err
	})
	if err != nil {
		return fmt.Errorf("remove %s: %w", key, err)
	}
	return nil
}

// Close implements KV.
func (s *SQLite) Close() error { return s.db.Close() }

var _ KV = (*SQLite)(nil)
