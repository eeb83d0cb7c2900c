package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/parlorhq/parlor/checkpoint"
	"github.com/parlorhq/parlor/core"
	"github.com/parlorhq/parlor/model"
	"github.com/parlorhq/parlor/tool"
)

// fakeTool is a configurable tool for turn tests.
type fakeTool struct {
	name   string
	invoke func(ctx context.Context, args map[string]any) (string, error)

	mu    sync.Mutex
	calls []map[string]any
}

func (f *fakeTool) Name() string        { return f.name }
func (f *fakeTool) Description() string { return "test tool" }
func (f *fakeTool) Parameters() map[string]any {
	return map[string]any{"type": "object", "properties": map[string]any{}}
}

func (f *fakeTool) Invoke(ctx context.Context, args map[string]any) (string, error) {
	f.mu.Lock()
	f.calls = append(f.calls, args)
	f.mu.Unlock()
	return f.invoke(ctx, args)
}

func newTestEngine(t *testing.T, m model.Model, tools ...tool.Tool) (*Engine, checkpoint.Store) {
	t.Helper()

	registry := tool.NewRegistry(nil)
	for _, tl := range tools {
		registry.Register(tl)
	}
	store := checkpoint.NewInMemoryStore()

	eng := New(m,
		WithStore(store),
		WithTools(registry),
		WithInstructions("You are a helpful assistant."),
	)
	return eng, store
}

func TestEngine_FinalOnlyTurn(t *testing.T) {
	ctx := context.Background()
	mock := model.NewMockModel("test", "mock")
	mock.Script(core.AssistantMessage{Text: "Hello there!"})

	eng, store := newTestEngine(t, mock)
	threadID := core.NewThreadID()

	answer, err := eng.RunTurn(ctx, threadID, "Hi")
	require.NoError(t, err)
	assert.Equal(t, "Hello there!", answer)

	history, err := store.LoadLatest(ctx, threadID)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, core.UserMessage{Text: "Hi"}, history[0])
	assert.Equal(t, core.AssistantMessage{Text: "Hello there!"}, history[1])

	threads, err := store.ListThreads(ctx)
	require.NoError(t, err)
	require.Len(t, threads, 1)
	assert.Equal(t, "Hi", threads[0].Name)
}

func TestEngine_ToolLoop(t *testing.T) {
	ctx := context.Background()

	echo := &fakeTool{
		name: "echo",
		invoke: func(_ context.Context, args map[string]any) (string, error) {
			return fmt.Sprintf(`{"echoed":%q}`, args["text"]), nil
		},
	}

	mock := model.NewMockModel("test", "mock")
	mock.Script(
		core.AssistantMessage{ToolCalls: []core.ToolCall{
			{ID: "call-1", Name: "echo", Arguments: map[string]any{"text": "ping"}},
		}},
		core.AssistantMessage{Text: "The tool said ping."},
	)

	eng, store := newTestEngine(t, mock, echo)
	threadID := core.NewThreadID()

	answer, err := eng.RunTurn(ctx, threadID, "Call the echo tool")
	require.NoError(t, err)
	assert.Equal(t, "The tool said ping.", answer)

	history, err := store.LoadLatest(ctx, threadID)
	require.NoError(t, err)
	require.Len(t, history, 4)

	result, ok := history[2].(core.ToolResultMessage)
	require.True(t, ok)
	assert.Equal(t, "call-1", result.CallID)
	assert.JSONEq(t, `{"echoed":"ping"}`, result.Content)

	require.Len(t, echo.calls, 1)
	assert.Equal(t, "ping", echo.calls[0]["text"])
}

func TestEngine_ToolResultsKeepRequestOrder(t *testing.T) {
	ctx := context.Background()

	// The first requested call finishes last; results must still come
	// back in request order.
	sleepy := &fakeTool{
		name: "sleepy",
		invoke: func(_ context.Context, args map[string]any) (string, error) {
			delay, _ := args["delay_ms"].(float64)
			time.Sleep(time.Duration(delay) * time.Millisecond)
			return fmt.Sprintf(`{"tag":%q}`, args["tag"]), nil
		},
	}

	mock := model.NewMockModel("test", "mock")
	mock.Script(
		core.AssistantMessage{ToolCalls: []core.ToolCall{
			{ID: "c1", Name: "sleepy", Arguments: map[string]any{"tag": "first", "delay_ms": float64(80)}},
			{ID: "c2", Name: "sleepy", Arguments: map[string]any{"tag": "second", "delay_ms": float64(20)}},
			{ID: "c3", Name: "sleepy", Arguments: map[string]any{"tag": "third", "delay_ms": float64(0)}},
		}},
		core.AssistantMessage{Text: "done"},
	)

	eng, store := newTestEngine(t, mock, sleepy)
	threadID := core.NewThreadID()

	_, err := eng.RunTurn(ctx, threadID, "run them")
	require.NoError(t, err)

	history, err := store.LoadLatest(ctx, threadID)
	require.NoError(t, err)
	require.Len(t, history, 6)

	wantTags := []string{"first", "second", "third"}
	wantIDs := []string{"c1", "c2", "c3"}
	for i := 0; i < 3; i++ {
		result, ok := history[2+i].(core.ToolResultMessage)
		require.True(t, ok)
		assert.Equal(t, wantIDs[i], result.CallID)
		assert.Contains(t, result.Content, wantTags[i])
	}
}

func TestEngine_StreamsContentDeltas(t *testing.T) {
	ctx := context.Background()
	mock := model.NewMockModel("test", "mock")
	mock.Script(core.AssistantMessage{Text: "streamed answer"})

	eng, _ := newTestEngine(t, mock)

	var sb strings.Builder
	var types []EventType
	for ev := range eng.StartTurn(ctx, core.NewThreadID(), "go") {
		types = append(types, ev.Type)
		if ev.Type == EventContent {
			sb.WriteString(ev.Delta)
		}
	}

	assert.Equal(t, "streamed answer", sb.String())
	require.NotEmpty(t, types)
	assert.Equal(t, EventDone, types[len(types)-1])
	for _, typ := range types[:len(types)-1] {
		assert.Equal(t, EventContent, typ)
	}
}

func TestEngine_LoopLimit(t *testing.T) {
	ctx := context.Background()

	noop := &fakeTool{
		name:   "noop",
		invoke: func(context.Context, map[string]any) (string, error) { return `{}`, nil },
	}

	mock := model.NewMockModel("test", "mock")
	limit := 3
	for i := 0; i < limit+1; i++ {
		mock.Script(core.AssistantMessage{ToolCalls: []core.ToolCall{
			{ID: fmt.Sprintf("c%d", i), Name: "noop", Arguments: map[string]any{}},
		}})
	}

	registry := tool.NewRegistry(nil)
	registry.Register(noop)
	store := checkpoint.NewInMemoryStore()
	eng := New(mock,
		WithStore(store),
		WithTools(registry),
		WithConfig(Config{MaxIterations: limit}),
	)

	threadID := core.NewThreadID()
	_, err := eng.RunTurn(ctx, threadID, "loop forever")

	var loopErr core.LoopLimitError
	require.ErrorAs(t, err, &loopErr)
	assert.Equal(t, limit, loopErr.Limit)

	// The failed turn must not commit anything.
	threads, err := store.ListThreads(ctx)
	require.NoError(t, err)
	assert.Empty(t, threads)
}

func TestEngine_ProviderFailureCommitsNothing(t *testing.T) {
	ctx := context.Background()
	mock := model.NewMockModel("test", "mock")
	mock.FailNext(errors.New("upstream 500"))

	eng, store := newTestEngine(t, mock)
	threadID := core.NewThreadID()

	_, err := eng.RunTurn(ctx, threadID, "hello")
	var provErr core.ProviderError
	require.ErrorAs(t, err, &provErr)

	history, err := store.LoadLatest(ctx, threadID)
	require.NoError(t, err)
	assert.Empty(t, history)
}

func TestEngine_FailedTurnRollsBackToPriorCheckpoint(t *testing.T) {
	ctx := context.Background()
	mock := model.NewMockModel("test", "mock")
	mock.Script(core.AssistantMessage{Text: "first answer"})

	eng, store := newTestEngine(t, mock)
	threadID := core.NewThreadID()

	_, err := eng.RunTurn(ctx, threadID, "first")
	require.NoError(t, err)

	mock.FailNext(errors.New("upstream flake"))
	_, err = eng.RunTurn(ctx, threadID, "second")
	require.Error(t, err)

	history, err := store.LoadLatest(ctx, threadID)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, core.UserMessage{Text: "first"}, history[0])
}

func TestEngine_CancelledTurnCommitsNothing(t *testing.T) {
	mock := model.NewMockModel("test", "mock")
	mock.Script(core.AssistantMessage{Text: "never delivered"})

	eng, store := newTestEngine(t, mock)
	threadID := core.NewThreadID()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := eng.RunTurn(ctx, threadID, "hello")
	require.ErrorIs(t, err, context.Canceled)

	history, err := store.LoadLatest(context.Background(), threadID)
	require.NoError(t, err)
	assert.Empty(t, history)
}

func TestEngine_SameThreadTurnsSerialize(t *testing.T) {
	ctx := context.Background()
	mock := model.NewMockModel("test", "mock")
	mock.AddResponse("alpha", "answer alpha")
	mock.AddResponse("beta", "answer beta")

	eng, store := newTestEngine(t, mock)
	threadID := core.NewThreadID()

	var wg sync.WaitGroup
	for _, prompt := range []string{"alpha", "beta"} {
		wg.Add(1)
		go func(p string) {
			defer wg.Done()
			_, err := eng.RunTurn(ctx, threadID, p)
			assert.NoError(t, err)
		}(prompt)
	}
	wg.Wait()

	// Both turns committed against the same thread; the second turn must
	// have started from the first turn's checkpoint.
	history, err := store.LoadLatest(ctx, threadID)
	require.NoError(t, err)
	assert.Len(t, history, 4)
}

func TestEngine_NameDerivedFromFirstTurnOnly(t *testing.T) {
	ctx := context.Background()
	mock := model.NewMockModel("test", "mock")
	mock.Script(
		core.AssistantMessage{Text: "first"},
		core.AssistantMessage{Text: "second"},
	)

	eng, store := newTestEngine(t, mock)
	threadID := core.NewThreadID()

	_, err := eng.RunTurn(ctx, threadID, "opening question")
	require.NoError(t, err)
	_, err = eng.RunTurn(ctx, threadID, "followup question")
	require.NoError(t, err)

	threads, err := store.ListThreads(ctx)
	require.NoError(t, err)
	require.Len(t, threads, 1)
	assert.Equal(t, "opening question", threads[0].Name)
}

func TestEngine_UnknownToolDoesNotAbortTurn(t *testing.T) {
	ctx := context.Background()
	mock := model.NewMockModel("test", "mock")
	mock.Script(
		core.AssistantMessage{ToolCalls: []core.ToolCall{
			{ID: "c1", Name: "does_not_exist", Arguments: map[string]any{}},
		}},
		core.AssistantMessage{Text: "recovered"},
	)

	eng, store := newTestEngine(t, mock)
	threadID := core.NewThreadID()

	answer, err := eng.RunTurn(ctx, threadID, "try it")
	require.NoError(t, err)
	assert.Equal(t, "recovered", answer)

	history, err := store.LoadLatest(ctx, threadID)
	require.NoError(t, err)
	require.Len(t, history, 4)

	result, ok := history[2].(core.ToolResultMessage)
	require.True(t, ok)
	assert.Contains(t, result.Content, "error")
}

func TestEngine_HistoryUnknownThread(t *testing.T) {
	mock := model.NewMockModel("test", "mock")
	eng, _ := newTestEngine(t, mock)

	history, err := eng.History(context.Background(), "missing")
	require.NoError(t, err)
	assert.Empty(t, history)
}
