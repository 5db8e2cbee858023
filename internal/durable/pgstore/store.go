// Copyright (c) The OpenTofu Authors
// SPDX-License-Identifier: MPL-2.0

// Package pgstore is a [durable.Store] backed by a PostgreSQL table, for
// map servers that share their storage between several instances.
package pgstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"github.com/opentofu/mapsync/internal/durable"
)

const (
	DefaultSchemaName = "mapsync"
	DefaultTableName  = "documents"
)

// Config describes where a [Store] keeps its data.
type Config struct {
	ConnStr    string
	SchemaName string
	TableName  string

	// SkipSchemaCreation is for users who have not been granted the
	// CREATE SCHEMA privilege and have created the schema themselves.
	SkipSchemaCreation bool
	SkipTableCreation  bool
}

// Store keeps each value as one row of a table.
type Store struct {
	db    *sql.DB
	table string // quoted and schema-qualified
}

var _ durable.Store = (*Store)(nil)

// Open connects to the database and prepares the schema and table.
func Open(ctx context.Context, cfg Config) (*Store, error) {
	if cfg.ConnStr == "" {
		return nil, fmt.Errorf("connection string is required")
	}
	if cfg.SchemaName == "" {
		cfg.SchemaName = DefaultSchemaName
	}
	if cfg.TableName == "" {
		cfg.TableName = DefaultTableName
	}

	db, err := sql.Open("postgres", cfg.ConnStr)
	if err != nil {
		return nil, err
	}
	s := &Store{
		db:    db,
		table: pq.QuoteIdentifier(cfg.SchemaName) + "." + pq.QuoteIdentifier(cfg.TableName),
	}
	if err := s.prepare(ctx, cfg); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("preparing database: %w", err)
	}
	return s, nil
}

func (s *Store) prepare(ctx context.Context, cfg Config) error {
	if !cfg.SkipSchemaCreation {
		// `CREATE SCHEMA IF NOT EXISTS` still requires the CREATE SCHEMA
		// privilege, so we check first.
		var count int
		query := `select count(1) from information_schema.schemata where schema_name = $1`
		if err := s.db.QueryRowContext(ctx, query, cfg.SchemaName).Scan(&count); err != nil {
			return err
		}
		if count < 1 {
			query = fmt.Sprintf(`CREATE SCHEMA IF NOT EXISTS %s`, pq.QuoteIdentifier(cfg.SchemaName))
			if _, err := s.db.ExecContext(ctx, query); err != nil {
				return err
			}
		}
	}

	if !cfg.SkipTableCreation {
		query := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			name text PRIMARY KEY,
			data bytea NOT NULL,
			updated_at timestamptz NOT NULL DEFAULT now()
			)`, s.table)
		if _, err := s.db.ExecContext(ctx, query); err != nil {
			return err
		}
	}
	return nil
}

// Close closes the database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	var data []byte
	query := fmt.Sprintf(`SELECT data FROM %s WHERE name = $1`, s.table)
	err := s.db.QueryRowContext(ctx, query, key).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, durable.NotFoundError(key)
	}
	if err != nil {
		return nil, fmt.Errorf("get %q: %w", key, err)
	}
	return data, nil
}

func (s *Store) Put(ctx context.Context, key string, value []byte) error {
	if err := durable.ValidateKey(key); err != nil {
		return err
	}
	if value == nil {
		value = []byte{}
	}
	query := fmt.Sprintf(`INSERT INTO %s (name, data, updated_at) VALUES ($1, $2, now())
		ON CONFLICT (name) DO UPDATE SET data = $2, updated_at = now()`, s.table)
	if _, err := s.db.ExecContext(ctx, query, key, value); err != nil {
		return fmt.Errorf("put %q: %w", key, err)
	}
	return nil
}

func (s *Store) Delete(ctx context.Context, key string) error {
	query := fmt.Sprintf(`DELETE FROM %s WHERE name = $1`, s.table)
	if _, err := s.db.ExecContext(ctx, query, key); err != nil {
		return fmt.Errorf("delete %q: %w", key, err)
	}
	return nil
}

func (s *Store) Keys(ctx context.Context) ([]string, error) {
	query := fmt.Sprintf(`SELECT name FROM %s ORDER BY name`, s.table)
	rows, err := s.db.QueryContext(ctx, query)
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
	return ret, rows.Err()
}
