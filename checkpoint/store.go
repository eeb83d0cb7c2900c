package checkpoint

import (
	"context"

	"github.com/parlorhq/parlor/core"
)

// ThreadInfo pairs a thread id with its display name ("" when unnamed).
type ThreadInfo struct {
	ThreadID string
	Name     string
}

// Store persists immutable thread history snapshots plus per-thread
// metadata. Implementations must uphold:
//
//   - Commit is atomic: a crash mid-commit leaves the prior snapshot as the
//     latest readable state, never a partial write.
//   - Commit upserts: no prior "create thread" call is required.
//   - The name passed to Commit is applied only when the thread has no name
//     yet; SetName overwrites unconditionally.
//   - LoadLatest of an unknown thread returns an empty history, not an
//     error: thread creation is implicit on first use.
//   - Delete is idempotent.
//   - Commits to different threads may proceed concurrently; commits to the
//     same thread serialize.
type Store interface {
	// LoadLatest returns the most recent committed history for a thread,
	// or an empty history if the thread is new.
	LoadLatest(ctx context.Context, threadID string) ([]core.Message, error)

	// Commit atomically persists a new snapshot and returns its identity.
	// A non-empty name is persisted only if the thread is still unnamed.
	Commit(ctx context.Context, threadID string, history []core.Message, name string) (core.Checkpoint, error)

	// ListThreads returns every thread with at least one checkpoint, in
	// creation order.
	ListThreads(ctx context.Context) ([]ThreadInfo, error)

	// SetName sets a thread's display name, overwriting any existing name.
	SetName(ctx context.Context, threadID, name string) error

	// Delete removes all checkpoints and metadata for the thread. Deleting
	// a non-existent thread is not an error.
	Delete(ctx context.Context, threadID string) error

	// Close releases any resources held by the store.
	Close() error
}
