package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore persists objects in a single key-addressed table. It backs
// deployments that already run Postgres and want durable cache entries
// shared across instances.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore wraps an existing connection pool and ensures the backing
// table exists.
func NewPostgresStore(ctx context.Context, pool *pgxpool.Pool) (*PostgresStore, error) {
	if pool == nil {
		return nil, errors.New("storage: pool is required")
	}
	_, err := pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS merge_cache (
			key           text PRIMARY KEY,
			data          bytea NOT NULL,
			content_type  text NOT NULL,
			metadata      jsonb NOT NULL DEFAULT '{}'::jsonb,
			last_modified timestamptz NOT NULL DEFAULT now()
		)`)
	if err != nil {
		return nil, fmt.Errorf("storage: ensure merge_cache table: %w", err)
	}
	return &PostgresStore{pool: pool}, nil
}

// Get reads the object at key. Returns ErrNotFound when no row exists.
func (s *PostgresStore) Get(ctx context.Context, key string) (*Object, error) {
	if s == nil || s.pool == nil {
		return nil, errors.New("storage: no store configured")
	}
	obj := &Object{Metadata: map[string]string{}}
	row := s.pool.QueryRow(ctx,
		`SELECT data, content_type, metadata, last_modified FROM merge_cache WHERE key = $1`, key)
	if err := row.Scan(&obj.Data, &obj.ContentType, &obj.Metadata, &obj.LastModified); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("storage: read object: %w", err)
	}
	obj.LastModified = obj.LastModified.UTC()
	return obj, nil
}

// Put upserts the object at key. Same-key races resolve last-writer-wins.
func (s *PostgresStore) Put(ctx context.Context, key string, obj *Object) error {
	if s == nil || s.pool == nil {
		return errors.New("storage: no store configured")
	}
	if obj == nil {
		return errors.New("storage: object is required")
	}
	metadata := obj.Metadata
	if metadata == nil {
		metadata = map[string]string{}
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO merge_cache (key, data, content_type, metadata, last_modified)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (key) DO UPDATE SET
			data = EXCLUDED.data,
			content_type = EXCLUDED.content_type,
			metadata = EXCLUDED.metadata,
			last_modified = EXCLUDED.last_modified`,
		key, obj.Data, obj.ContentType, metadata, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("storage: write object: %w", err)
	}
	return nil
}
