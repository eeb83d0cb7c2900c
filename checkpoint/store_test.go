package checkpoint

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/parlorhq/parlor/core"
)

func storeImplementations(t *testing.T) map[string]Store {
	t.Helper()

	sqlite, err := NewSQLiteStore(filepath.Join(t.TempDir(), "parlor.db"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { sqlite.Close() })

	return map[string]Store{
		"sqlite":   sqlite,
		"inmemory": NewInMemoryStore(),
	}
}

func TestStore_LoadLatestUnknownThread(t *testing.T) {
	for name, store := range storeImplementations(t) {
		t.Run(name, func(t *testing.T) {
			history, err := store.LoadLatest(context.Background(), "missing")
			require.NoError(t, err)
			assert.Empty(t, history)
		})
	}
}

func TestStore_CommitRoundTrip(t *testing.T) {
	for name, store := range storeImplementations(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			threadID := core.NewThreadID()

			history := []core.Message{
				core.UserMessage{Text: "What is 2 + 3?"},
				core.AssistantMessage{ToolCalls: []core.ToolCall{
					{ID: "call-1", Name: "calculator", Arguments: map[string]any{"operation": "add"}},
				}},
				core.ToolResultMessage{CallID: "call-1", Content: `{"result":5}`},
				core.AssistantMessage{Text: "2 + 3 is 5."},
			}

			cp, err := store.Commit(ctx, threadID, history, "What is 2 + 3?")
			require.NoError(t, err)
			assert.Equal(t, threadID, cp.ThreadID)
			assert.Equal(t, int64(1), cp.Seq)

			loaded, err := store.LoadLatest(ctx, threadID)
			require.NoError(t, err)
			assert.Equal(t, history, loaded)
		})
	}
}

func TestStore_SeqIncrements(t *testing.T) {
	for name, store := range storeImplementations(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			threadID := core.NewThreadID()

			first := []core.Message{core.UserMessage{Text: "hi"}, core.AssistantMessage{Text: "hello"}}
			second := append(first, core.UserMessage{Text: "bye"}, core.AssistantMessage{Text: "goodbye"})

			cp1, err := store.Commit(ctx, threadID, first, "hi")
			require.NoError(t, err)
			cp2, err := store.Commit(ctx, threadID, second, "")
			require.NoError(t, err)

			assert.Equal(t, int64(1), cp1.Seq)
			assert.Equal(t, int64(2), cp2.Seq)

			loaded, err := store.LoadLatest(ctx, threadID)
			require.NoError(t, err)
			assert.Equal(t, second, loaded)
		})
	}
}

func TestStore_CommitNameOnlyIfUnnamed(t *testing.T) {
	for name, store := range storeImplementations(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			threadID := core.NewThreadID()

			_, err := store.Commit(ctx, threadID, []core.Message{core.UserMessage{Text: "first"}}, "first name")
			require.NoError(t, err)
			_, err = store.Commit(ctx, threadID, []core.Message{core.UserMessage{Text: "second"}}, "second name")
			require.NoError(t, err)

			threads, err := store.ListThreads(ctx)
			require.NoError(t, err)
			require.Len(t, threads, 1)
			assert.Equal(t, "first name", threads[0].Name)
		})
	}
}

func TestStore_SetNameOverwrites(t *testing.T) {
	for name, store := range storeImplementations(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			threadID := core.NewThreadID()

			_, err := store.Commit(ctx, threadID, []core.Message{core.UserMessage{Text: "hi"}}, "old name")
			require.NoError(t, err)
			require.NoError(t, store.SetName(ctx, threadID, "new name"))

			threads, err := store.ListThreads(ctx)
			require.NoError(t, err)
			require.Len(t, threads, 1)
			assert.Equal(t, "new name", threads[0].Name)
		})
	}
}

func TestStore_ListThreadsOrderAndFilter(t *testing.T) {
	for name, store := range storeImplementations(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			first := "thread-a"
			second := "thread-b"
			namedOnly := "thread-c"

			_, err := store.Commit(ctx, first, []core.Message{core.UserMessage{Text: "one"}}, "one")
			require.NoError(t, err)
			_, err = store.Commit(ctx, second, []core.Message{core.UserMessage{Text: "two"}}, "")
			require.NoError(t, err)

			// A thread with a name but no checkpoint must not be listed.
			require.NoError(t, store.SetName(ctx, namedOnly, "ghost"))

			threads, err := store.ListThreads(ctx)
			require.NoError(t, err)
			require.Len(t, threads, 2)
			assert.Equal(t, first, threads[0].ThreadID)
			assert.Equal(t, "one", threads[0].Name)
			assert.Equal(t, second, threads[1].ThreadID)
			assert.Equal(t, "", threads[1].Name)
		})
	}
}

func TestStore_DeleteIsIdempotent(t *testing.T) {
	for name, store := range storeImplementations(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			threadID := core.NewThreadID()

			_, err := store.Commit(ctx, threadID, []core.Message{core.UserMessage{Text: "hi"}}, "hi")
			require.NoError(t, err)

			require.NoError(t, store.Delete(ctx, threadID))
			require.NoError(t, store.Delete(ctx, threadID))

			history, err := store.LoadLatest(ctx, threadID)
			require.NoError(t, err)
			assert.Empty(t, history)

			threads, err := store.ListThreads(ctx)
			require.NoError(t, err)
			assert.Empty(t, threads)
		})
	}
}

func TestSQLiteStore_ReopenKeepsData(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "parlor.db")

	store, err := NewSQLiteStore(path, nil)
	require.NoError(t, err)

	threadID := core.NewThreadID()
	history := []core.Message{
		core.UserMessage{Text: "persist me"},
		core.AssistantMessage{Text: "done"},
	}
	_, err = store.Commit(ctx, threadID, history, "persist me")
	require.NoError(t, err)
	require.NoError(t, store.Close())

	reopened, err := NewSQLiteStore(path, nil)
	require.NoError(t, err)
	defer reopened.Close()

	loaded, err := reopened.LoadLatest(ctx, threadID)
	require.NoError(t, err)
	assert.Equal(t, history, loaded)

	threads, err := reopened.ListThreads(ctx)
	require.NoError(t, err)
	require.Len(t, threads, 1)
	assert.Equal(t, "persist me", threads[0].Name)
}
