package file

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kwetu-labs/whatsdrip/internal/store"
)

type testDoc struct {
	Count int      `json:"count"`
	Items []string `json:"items"`
}

func newTestStore(t *testing.T, opts ...Option) *Store {
	t.Helper()
	s, err := New(t.TempDir(), opts...)
	require.NoError(t, err)
	return s
}

func TestStore_LoadMissing(t *testing.T) {
	s := newTestStore(t)

	var doc testDoc
	err := s.Load(context.Background(), "missing", &doc)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestStore_SaveLoadRoundtrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	saved := testDoc{Count: 2, Items: []string{"a", "b"}}
	require.NoError(t, s.Save(ctx, "queue", saved))

	var loaded testDoc
	require.NoError(t, s.Load(ctx, "queue", &loaded))
	assert.Equal(t, saved, loaded)
}

func TestStore_SaveReplacesWholeDocument(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Save(ctx, "queue", testDoc{Count: 1, Items: []string{"a"}}))
	require.NoError(t, s.Save(ctx, "queue", testDoc{Count: 0}))

	var loaded testDoc
	require.NoError(t, s.Load(ctx, "queue", &loaded))
	assert.Equal(t, testDoc{Count: 0}, loaded)
}

func TestStore_RejectsInvalidNames(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for _, name := range []string{"", "../escape", "a/b", "a.b"} {
		assert.ErrorIs(t, s.Save(ctx, name, testDoc{}), store.ErrInvalidName, name)
		assert.ErrorIs(t, s.Load(ctx, name, &testDoc{}), store.ErrInvalidName, name)
	}
}

func TestStore_SaveLeavesNoTempFiles(t *testing.T) {
	dir := t.TempDir()
	s, err := New(dir)
	require.NoError(t, err)

	require.NoError(t, s.Save(context.Background(), "queue", testDoc{Count: 1}))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "queue.json", entries[0].Name())
}

func TestStore_AcquireBlocksSecondHolder(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	release, err := s.Acquire(ctx, "drip_queue")
	require.NoError(t, err)

	blockedCtx, cancel := context.WithTimeout(ctx, 300*time.Millisecond)
	defer cancel()

	_, err = s.Acquire(blockedCtx, "drip_queue")
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	release()

	release2, err := s.Acquire(ctx, "drip_queue")
	require.NoError(t, err)
	release2()
}

func TestStore_AcquireIndependentNames(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	release1, err := s.Acquire(ctx, "drip_queue")
	require.NoError(t, err)
	defer release1()

	release2, err := s.Acquire(ctx, "hybrid_queue")
	require.NoError(t, err)
	release2()
}

func TestStore_AcquireTakesOverStaleLock(t *testing.T) {
	dir := t.TempDir()
	s, err := New(dir, WithLockTTL(50*time.Millisecond))
	require.NoError(t, err)

	// Simulate a lock left behind by a crashed process.
	lockPath := filepath.Join(dir, "drip_queue.lock")
	require.NoError(t, os.WriteFile(lockPath, []byte("12345\n"), 0o644))
	old := time.Now().Add(-time.Minute)
	require.NoError(t, os.Chtimes(lockPath, old, old))

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	release, err := s.Acquire(ctx, "drip_queue")
	require.NoError(t, err)
	release()
}
