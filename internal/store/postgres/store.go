// Package postgres provides a PostgreSQL implementation of the document
// store. Documents live in a single jsonb table; pass-level mutual
// exclusion uses session advisory locks.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"hash/fnv"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/kwetu-labs/whatsdrip/internal/store"
)

// Store implements store.Store and store.Locker using PostgreSQL.
type Store struct {
	db *pgxpool.Pool
}

// NewStore creates a PostgreSQL document store.
func NewStore(db *pgxpool.Pool) *Store {
	return &Store{db: db}
}

// Load reads the named document.
func (s *Store) Load(ctx context.Context, name string, into any) error {
	if err := store.CheckName(name); err != nil {
		return err
	}

	var data []byte
	err := s.db.QueryRow(ctx, `SELECT doc FROM documents WHERE name = $1`, name).Scan(&data)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return store.ErrNotFound
		}
		return fmt.Errorf("load document %s: %w", name, err)
	}

	if err := json.Unmarshal(data, into); err != nil {
		return fmt.Errorf("decode document %s: %w", name, err)
	}
	return nil
}

// Save upserts the named document in one statement, so readers observe
// either the previous or the new version, never a mix.
func (s *Store) Save(ctx context.Context, name string, doc any) error {
	if err := store.CheckName(name); err != nil {
		return err
	}

	data, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("encode document %s: %w", name, err)
	}

	_, err = s.db.Exec(ctx, `
		INSERT INTO documents (name, doc, updated_at)
		VALUES ($1, $2, now())
		ON CONFLICT (name) DO UPDATE SET doc = EXCLUDED.doc, updated_at = now()
	`, name, data)
	if err != nil {
		return fmt.Errorf("save document %s: %w", name, err)
	}
	return nil
}

// Acquire takes a session advisory lock keyed by the document name. The
// lock is pinned to one pooled connection and held until release is
// called; pg_advisory_lock blocks server-side, and context cancellation
// aborts the wait through query cancellation.
func (s *Store) Acquire(ctx context.Context, name string) (func(), error) {
	if err := store.CheckName(name); err != nil {
		return nil, err
	}

	conn, err := s.db.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire connection: %w", err)
	}

	key := lockKey(name)
	if _, err := conn.Exec(ctx, `SELECT pg_advisory_lock($1)`, key); err != nil {
		conn.Release()
		return nil, fmt.Errorf("acquire lock %s: %w", name, err)
	}

	return func() {
		// Unlock with a background context: release must work even when
		// the pass context is already cancelled.
		_, _ = conn.Exec(context.Background(), `SELECT pg_advisory_unlock($1)`, key)
		conn.Release()
	}, nil
}

func lockKey(name string) int64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(name))
	return int64(h.Sum64())
}
