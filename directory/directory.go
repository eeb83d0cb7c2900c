// Package directory resolves the list of known conversation threads and
// their display names.
package directory

import (
	"context"
	"fmt"

	"github.com/parlorhq/parlor/checkpoint"
	"github.com/parlorhq/parlor/core"
	"github.com/parlorhq/parlor/logging"
)

// ThreadSummary is one entry in the thread directory.
type ThreadSummary struct {
	ThreadID string `json:"thread_id"`
	Name     string `json:"name"`
}

// Directory lists threads from a checkpoint store and fills in display
// names for threads that were committed before naming was recorded. A
// derived name is written back to the store so the derivation happens at
// most once per thread; the positional "Chat N" fallback is never
// persisted because a later turn may still supply a real name.
type Directory struct {
	store  checkpoint.Store
	logger logging.Logger
}

// New creates a Directory over the given store. A nil logger is replaced
// with a no-op logger.
func New(store checkpoint.Store, logger logging.Logger) *Directory {
	if logger == nil {
		logger = logging.NoOpLogger{}
	}
	return &Directory{store: store, logger: logger}
}

// List returns every thread with at least one checkpoint, in the order the
// threads were first committed. Threads without a stored name get one
// derived from the first user message of their history; threads whose
// history contains no user text fall back to a positional label.
func (d *Directory) List(ctx context.Context) ([]ThreadSummary, error) {
	infos, err := d.store.ListThreads(ctx)
	if err != nil {
		return nil, core.PersistenceError{Err: err}
	}

	summaries := make([]ThreadSummary, 0, len(infos))
	for i, info := range infos {
		name := info.Name
		if name == "" {
			name = d.resolveName(ctx, info.ThreadID)
		}
		if name == "" {
			name = fmt.Sprintf("Chat %d", i+1)
		}
		summaries = append(summaries, ThreadSummary{ThreadID: info.ThreadID, Name: name})
	}
	return summaries, nil
}

// resolveName derives a name from the thread's first user message and
// persists it. It returns "" when the history has no user text or the
// store cannot be read; List then falls back to a positional label.
func (d *Directory) resolveName(ctx context.Context, threadID string) string {
	history, err := d.store.LoadLatest(ctx, threadID)
	if err != nil {
		d.logger.Warn("loading history for thread naming", "thread_id", threadID, "error", err)
		return ""
	}

	for _, msg := range history {
		if user, ok := msg.(core.UserMessage); ok && user.Text != "" {
			name := core.DeriveThreadName(user.Text)
			if err := d.store.SetName(ctx, threadID, name); err != nil {
				d.logger.Warn("persisting derived thread name", "thread_id", threadID, "error", err)
			}
			return name
		}
	}
	return ""
}
