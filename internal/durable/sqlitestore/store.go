// Copyright (c) The OpenTofu Authors
// SPDX-License-Identifier: MPL-2.0

// Package sqlitestore is a [durable.Store] backed by a single SQLite
// database file.
//
// This is the larger local tier. Every write is a transaction, so a
// document is either fully replaced or left untouched.
package sqlitestore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"path/filepath"
	"strings"
	"time"

	msqlite "modernc.org/sqlite"
	sqlite3lib "modernc.org/sqlite/lib"

	"github.com/opentofu/mapsync/internal/durable"
	"github.com/opentofu/mapsync/internal/durable/sqlitestore/migrations"
	"github.com/opentofu/mapsync/internal/sqlitemigrate"
)

// Store persists values in the documents table of a SQLite database.
type Store struct {
	sqlDB *sql.DB

	// limit, if positive, caps the total size of all stored values.
	limit int64
}

var _ durable.Store = (*Store)(nil)

// Open opens or creates the SQLite database at path and applies the
// embedded migrations.
//
// limit is the maximum total size of all values in bytes, or zero for no
// limit beyond what the disk allows.
func Open(ctx context.Context, path string, limit int64) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}
	cleanPath := filepath.Clean(path)
	dsn := cleanPath + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)&_txlock=immediate"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if err := sqlitemigrate.Apply(ctx, sqlDB, migrations.FS, ""); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	log.Printf("[TRACE] sqlitestore: opened %s", cleanPath)
	return &Store{sqlDB: sqlDB, limit: limit}, nil
}

// Close closes the SQLite handle.
func (s *Store) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var data []byte
	err := s.sqlDB.QueryRowContext(ctx, `SELECT data FROM documents WHERE name = ?`, key).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, durable.NotFoundError(key)
	}
	if err != nil {
		return nil, fmt.Errorf("get %q: %w", key, err)
	}
	return data, nil
}

func (s *Store) Put(ctx context.Context, key string, value []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := durable.ValidateKey(key); err != nil {
		return err
	}
	if value == nil {
		value = []byte{}
	}

	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		// Rollback after a successful commit is a harmless no-op.
		_ = tx.Rollback()
	}()

	if s.limit > 0 {
		var others int64
		err := tx.QueryRowContext(ctx,
			`SELECT COALESCE(SUM(size), 0) FROM documents WHERE name != ?`, key,
		).Scan(&others)
		if err != nil {
			return fmt.Errorf("measuring storage use: %w", err)
		}
		if total := others + int64(len(value)); total > s.limit {
			return &durable.CapacityError{Key: key, Size: total, Limit: s.limit}
		}
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO documents (name, data, size, updated_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT(name) DO UPDATE SET
		   data = excluded.data,
		   size = excluded.size,
		   updated_at = excluded.updated_at`,
		key,
		value,
		len(value),
		time.Now().UTC().UnixMilli(),
	)
	if err != nil {
		if isFullError(err) {
			return &durable.CapacityError{Key: key, Size: int64(len(value)), Limit: s.limit}
		}
		return fmt.Errorf("put %q: %w", key, err)
	}
	if err := tx.Commit(); err != nil {
		if isFullError(err) {
			return &durable.CapacityError{Key: key, Size: int64(len(value)), Limit: s.limit}
		}
		return fmt.Errorf("commit %q: %w", key, err)
	}
	return nil
}

func (s *Store) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if _, err := s.sqlDB.ExecContext(ctx, `DELETE FROM documents WHERE name = ?`, key); err != nil {
		return fmt.Errorf("delete %q: %w", key, err)
	}
	return nil
}

func (s *Store) Keys(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	rows, err := s.sqlDB.QueryContext(ctx, `SELECT name FROM documents ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("list keys: %w", err)
	}
	defer rows.Close()

	var ret []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scan key: %w", err)
		}
		ret = append(ret, name)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list keys: %w", err)
	}
	return ret, nil
}

// UpdatedAt returns the time key was last written.
func (s *Store) UpdatedAt(ctx context.Context, key string) (time.Time, error) {
	var millis int64
	err := s.sqlDB.QueryRowContext(ctx, `SELECT updated_at FROM documents WHERE name = ?`, key).Scan(&millis)
	if errors.Is(err, sql.ErrNoRows) {
		return time.Time{}, durable.NotFoundError(key)
	}
	if err != nil {
		return time.Time{}, fmt.Errorf("get %q: %w", key, err)
	}
	return time.UnixMilli(millis).UTC(), nil
}

func isFullError(err error) bool {
	var sqliteErr *msqlite.Error
	if !errors.As(err, &sqliteErr) {
		return false
	}
	return sqliteErr.Code()&0xff == sqlite3lib.SQLITE_FULL
}
