// Package store defines whole-document persistence used for queues and
// webhook configuration.
package store

import (
	"context"
	"errors"
)

// Store errors.
var (
	ErrNotFound    = errors.New("document not found")
	ErrInvalidName = errors.New("invalid document name")
)

// Store persists named JSON documents. Both operations are atomic per
// call: a reader never observes a partially written document. There is no
// finer granularity than the whole document; callers that need
// read-modify-write cycles must serialize them through a Locker.
type Store interface {
	// Load unmarshals the named document into the given value. Returns
	// ErrNotFound when the document does not exist.
	Load(ctx context.Context, name string, into any) error
	// Save marshals the given value and replaces the named document.
	Save(ctx context.Context, name string, doc any) error
}

// Locker provides mutual exclusion around a read-modify-write cycle on a
// named document. The queue processor holds a lock for the duration of a
// full processing pass so that overlapping invocations cannot discard each
// other's progress.
type Locker interface {
	// Acquire blocks until the named lock is held or the context is
	// cancelled. The returned function releases the lock.
	Acquire(ctx context.Context, name string) (release func(), err error)
}

// validName reports whether a document name is safe to use as a storage
// key. Names are caller-controlled identifiers, never user input, but the
// file backend maps them to paths so they are restricted anyway.
func validName(name string) bool {
	if name == "" {
		return false
	}
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z':
		case r >= 'A' && r <= 'Z':
		case r >= '0' && r <= '9':
		case r == '_' || r == '-':
		default:
			return false
		}
	}
	return true
}

// CheckName validates a document name for use by any backend.
func CheckName(name string) error {
	if !validName(name) {
		return ErrInvalidName
	}
	return nil
}
