// Package file provides a JSON-file implementation of the document store.
package file

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/kwetu-labs/whatsdrip/internal/store"
)

const (
	defaultLockTTL   = 5 * time.Minute
	lockPollInterval = 100 * time.Millisecond
)

// Store keeps each named document as a pretty-printed JSON file in a data
// directory. Writes go through a temp file and rename, so concurrent
// readers never see a torn document.
type Store struct {
	dir     string
	lockTTL time.Duration
	mu      sync.Mutex
}

// Option configures the store.
type Option func(*Store)

// WithLockTTL overrides the stale-lock takeover age.
func WithLockTTL(ttl time.Duration) Option {
	return func(s *Store) { s.lockTTL = ttl }
}

// New creates a file store rooted at dir, creating it if needed.
func New(dir string, opts ...Option) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}

	s := &Store{
		dir:     dir,
		lockTTL: defaultLockTTL,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Load reads the named document. Returns store.ErrNotFound when no file
// exists yet.
func (s *Store) Load(_ context.Context, name string, into any) error {
	if err := store.CheckName(name); err != nil {
		return err
	}

	data, err := os.ReadFile(s.path(name))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return store.ErrNotFound
		}
		return fmt.Errorf("read document %s: %w", name, err)
	}

	if err := json.Unmarshal(data, into); err != nil {
		return fmt.Errorf("decode document %s: %w", name, err)
	}
	return nil
}

// Save replaces the named document. The write is atomic: the document is
// marshalled to a temp file in the same directory and renamed over the
// previous version.
func (s *Store) Save(_ context.Context, name string, doc any) error {
	if err := store.CheckName(name); err != nil {
		return err
	}

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("encode document %s: %w", name, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tmp, err := os.CreateTemp(s.dir, name+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("write document %s: %w", name, err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("close temp file: %w", err)
	}

	if err := os.Rename(tmpName, s.path(name)); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("replace document %s: %w", name, err)
	}
	return nil
}

// Acquire takes an exclusive lock for the named resource by creating a
// lock file. It blocks, polling, until the lock is free or the context is
// cancelled. Lock files older than the TTL are treated as leftovers from a
// crashed process and taken over.
func (s *Store) Acquire(ctx context.Context, name string) (func(), error) {
	if err := store.CheckName(name); err != nil {
		return nil, err
	}

	lockPath := filepath.Join(s.dir, name+".lock")

	for {
		f, err := os.OpenFile(lockPath, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
		if err == nil {
			fmt.Fprintf(f, "%d\n", os.Getpid())
			_ = f.Close()
			return func() {
				if rmErr := os.Remove(lockPath); rmErr != nil && !errors.Is(rmErr, os.ErrNotExist) {
					slog.Error("failed to release lock", "name", name, "error", rmErr)
				}
			}, nil
		}
		if !errors.Is(err, os.ErrExist) {
			return nil, fmt.Errorf("acquire lock %s: %w", name, err)
		}

		s.removeIfStale(lockPath, name)

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("acquire lock %s: %w", name, ctx.Err())
		case <-time.After(lockPollInterval):
		}
	}
}

func (s *Store) removeIfStale(lockPath, name string) {
	info, err := os.Stat(lockPath)
	if err != nil {
		return
	}
	if time.Since(info.ModTime()) < s.lockTTL {
		return
	}

	slog.Warn("taking over stale lock", "name", name, "age", time.Since(info.ModTime()))
	_ = os.Remove(lockPath)
}

func (s *Store) path(name string) string {
	return filepath.Join(s.dir, name+".json")
}
