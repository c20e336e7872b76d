// Package postgres provides a PostgreSQL-backed [configstore.Store]. Remote
// configuration documents live in a single config_documents table keyed by
// name; the sync engine polls them and merges into the local config.
//
// Usage:
//
//	store, err := postgres.New(ctx, dsn)
//	if err != nil { … }
//	defer store.Close()
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/MrWong99/aizuchi/pkg/provider/configstore"
)

const ddlConfigDocuments = `
CREATE TABLE IF NOT EXISTS config_documents (
    name        TEXT         PRIMARY KEY,
    body        BYTEA        NOT NULL,
    updated_at  TIMESTAMPTZ  NOT NULL DEFAULT now()
);
`

// Store implements configstore.Store over a pgxpool.Pool.
type Store struct {
	pool *pgxpool.Pool
}

var _ configstore.Store = (*Store)(nil)

// New creates a Store, establishes a connection pool to the PostgreSQL
// database at dsn, and ensures the config_documents table exists.
func New(ctx context.Context, dsn string) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres configstore: parse dsn: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("postgres configstore: create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres configstore: ping: %w", err)
	}

	if _, err := pool.Exec(ctx, ddlConfigDocuments); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres configstore: migrate: %w", err)
	}

	return &Store{pool: pool}, nil
}

// NewWithPool wraps an existing pool without migrating. The caller owns the
// pool lifecycle; Close becomes a no-op.
func NewWithPool(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Get implements configstore.Store.
func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	const q = `SELECT body FROM config_documents WHERE name = $1`

	var body []byte
	err := s.pool.QueryRow(ctx, q, key).Scan(&body)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: %q", configstore.ErrNotFound, key)
	}
	if err != nil {
		return nil, fmt.Errorf("postgres configstore: get %q: %w", key, err)
	}
	return body, nil
}

// GetAll implements configstore.Store.
func (s *Store) GetAll(ctx context.Context) (map[string][]byte, error) {
	const q = `SELECT name, body FROM config_documents ORDER BY name`

	rows, err := s.pool.Query(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("postgres configstore: get all: %w", err)
	}
	defer rows.Close()

	docs := make(map[string][]byte)
	for rows.Next() {
		var name string
		var body []byte
		if err := rows.Scan(&name, &body); err != nil {
			return nil, fmt.Errorf("postgres configstore: scan: %w", err)
		}
		docs[name] = body
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres configstore: iterate: %w", err)
	}
	return docs, nil
}

// Has implements configstore.Store.
func (s *Store) Has(ctx context.Context, key string) (bool, error) {
	const q = `SELECT EXISTS (SELECT 1 FROM config_documents WHERE name = $1)`

	var exists bool
	if err := s.pool.QueryRow(ctx, q, key).Scan(&exists); err != nil {
		return false, fmt.Errorf("postgres configstore: has %q: %w", key, err)
	}
	return exists, nil
}

// Put stores or replaces the document under key. Used by operators to push
// remote config; the sync engine itself only reads.
func (s *Store) Put(ctx context.Context, key string, body []byte) error {
	const q = `
		INSERT INTO config_documents (name, body, updated_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (name) DO UPDATE SET body = EXCLUDED.body, updated_at = EXCLUDED.updated_at`

	if _, err := s.pool.Exec(ctx, q, key, body, time.Now().UTC()); err != nil {
		return fmt.Errorf("postgres configstore: put %q: %w", key, err)
	}
	return nil
}

// Close implements configstore.Store.
func (s *Store) Close() error {
	if s.pool != nil {
		s.pool.Close()
		s.pool = nil
	}
	return nil
}
