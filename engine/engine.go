package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/parlorhq/parlor/checkpoint"
	"github.com/parlorhq/parlor/core"
	"github.com/parlorhq/parlor/logging"
	"github.com/parlorhq/parlor/model"
	"github.com/parlorhq/parlor/tool"
)

// Config defines tuning parameters for turn execution.
type Config struct {
	// MaxIterations bounds the number of model calls per turn. A turn that
	// still wants tool calls after this many rounds fails with
	// core.LoopLimitError. Set to 0 for the default.
	MaxIterations int

	// MaxParallelTools limits how many tool calls from one assistant
	// message run concurrently. Set to 0 for no explicit limit.
	MaxParallelTools int

	// EventBufferSize sets the turn event channel buffer size.
	EventBufferSize int
}

// DefaultConfig provides the default turn execution parameters.
var DefaultConfig = Config{
	MaxIterations:    10,
	MaxParallelTools: 4,
	EventBufferSize:  64,
}

// Options configures an Engine instance using the functional options pattern.
type Options struct {
	// Config contains operational parameters for turn execution.
	Config Config

	// Store persists thread histories. Defaults to an in-memory store.
	Store checkpoint.Store

	// Tools is the registry the model may call into. Defaults to an empty
	// registry.
	Tools *tool.Registry

	// Instructions is the system prompt sent with every model request.
	Instructions string

	// Logger provides structured logging. Defaults to a no-op logger.
	Logger logging.Logger
}

// Engine drives complete conversation turns: it feeds thread history to a
// model, dispatches the tool calls the model requests, streams answer text
// to the caller, and commits exactly one checkpoint when the turn reaches a
// final answer.
//
// Turns on the same thread are serialized; turns on different threads run
// concurrently. A turn that fails or is cancelled commits nothing, so the
// thread rolls back to its previous checkpoint.
type Engine struct {
	model        model.Model
	store        checkpoint.Store
	tools        *tool.Registry
	instructions string
	config       Config
	logger       logging.Logger

	mu          sync.Mutex
	threadLocks map[string]*sync.Mutex
}

// New creates an Engine around the given model. All other dependencies have
// in-memory or no-op defaults suitable for development and testing.
func New(m model.Model, optFns ...func(o *Options)) *Engine {
	opts := Options{
		Config: DefaultConfig,
		Store:  checkpoint.NewInMemoryStore(),
		Logger: logging.NoOpLogger{},
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	if opts.Tools == nil {
		opts.Tools = tool.NewRegistry(opts.Logger)
	}
	if opts.Config.MaxIterations <= 0 {
		opts.Config.MaxIterations = DefaultConfig.MaxIterations
	}
	if opts.Config.EventBufferSize <= 0 {
		opts.Config.EventBufferSize = DefaultConfig.EventBufferSize
	}

	return &Engine{
		model:        m,
		store:        opts.Store,
		tools:        opts.Tools,
		instructions: opts.Instructions,
		config:       opts.Config,
		logger:       opts.Logger,
		threadLocks:  make(map[string]*sync.Mutex),
	}
}

// WithConfig overrides the default turn execution parameters.
func WithConfig(cfg Config) func(o *Options) {
	return func(o *Options) { o.Config = cfg }
}

// WithStore sets the checkpoint store used for thread persistence.
func WithStore(store checkpoint.Store) func(o *Options) {
	return func(o *Options) { o.Store = store }
}

// WithTools sets the tool registry available to the model.
func WithTools(tools *tool.Registry) func(o *Options) {
	return func(o *Options) { o.Tools = tools }
}

// WithInstructions sets the system prompt sent with every model request.
func WithInstructions(instructions string) func(o *Options) {
	return func(o *Options) { o.Instructions = instructions }
}

// WithLogger sets the structured logger.
func WithLogger(logger logging.Logger) func(o *Options) {
	return func(o *Options) { o.Logger = logger }
}

// Store exposes the engine's checkpoint store for thread management
// operations that fall outside turn execution.
func (e *Engine) Store() checkpoint.Store { return e.store }

// StartTurn runs one complete turn asynchronously and returns a channel of
// turn events. The channel carries zero or more EventContent deltas
// followed by exactly one terminal event: EventDone on success or
// EventError on failure. The channel is closed after the terminal event.
//
// The turn holds the thread's lock for its full duration, so concurrent
// turns on the same thread execute one after another.
func (e *Engine) StartTurn(ctx context.Context, threadID, userText string) <-chan TurnEvent {
	events := make(chan TurnEvent, e.config.EventBufferSize)

	go func() {
		defer close(events)

		lock := e.threadLock(threadID)
		lock.Lock()
		defer lock.Unlock()

		if err := e.runTurn(ctx, threadID, userText, events); err != nil {
			e.logger.Error("turn failed", "thread_id", threadID, "error", err)
			emit(ctx, events, TurnEvent{Type: EventError, Err: err})
			return
		}
		emit(ctx, events, TurnEvent{Type: EventDone})
	}()

	return events
}

// RunTurn runs one complete turn synchronously and returns the final answer
// text. It is a convenience wrapper around StartTurn for callers that do
// not need streaming.
func (e *Engine) RunTurn(ctx context.Context, threadID, userText string) (string, error) {
	var answer []byte
	for ev := range e.StartTurn(ctx, threadID, userText) {
		switch ev.Type {
		case EventContent:
			answer = append(answer, ev.Delta...)
		case EventError:
			return "", ev.Err
		}
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return string(answer), nil
}

// History returns the committed history of a thread. An unknown thread
// yields an empty history.
func (e *Engine) History(ctx context.Context, threadID string) ([]core.Message, error) {
	history, err := e.store.LoadLatest(ctx, threadID)
	if err != nil {
		return nil, core.PersistenceError{Err: err}
	}
	return history, nil
}

// runTurn is the turn state machine. It appends the user message to the
// loaded history, alternates model calls with tool dispatch until the
// model produces a final answer, and commits the grown history as one
// checkpoint. Nothing is committed on any failure path.
func (e *Engine) runTurn(ctx context.Context, threadID, userText string, events chan<- TurnEvent) error {
	history, err := e.store.LoadLatest(ctx, threadID)
	if err != nil {
		return core.PersistenceError{Err: err}
	}

	// Name the thread from its first user message. Evaluated before the
	// turn runs so the name reflects the opening prompt even when later
	// messages reshape the conversation.
	name := ""
	if len(history) == 0 {
		name = core.DeriveThreadName(userText)
	}

	history = append(history, core.UserMessage{Text: userText})

	var final core.AssistantMessage
	settled := false

	for iteration := 0; iteration < e.config.MaxIterations; iteration++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		msg, err := e.callModel(ctx, history, events)
		if err != nil {
			return err
		}
		history = append(history, msg)

		if msg.IsFinal() {
			final = msg
			settled = true
			break
		}

		results := e.dispatchToolCalls(ctx, msg.ToolCalls)
		if err := ctx.Err(); err != nil {
			return err
		}
		for _, res := range results {
			history = append(history, res)
		}
	}

	if !settled {
		return core.LoopLimitError{Limit: e.config.MaxIterations}
	}

	cp, err := e.store.Commit(ctx, threadID, history, name)
	if err != nil {
		return core.PersistenceError{Err: err}
	}

	e.logger.Info("turn completed",
		"thread_id", threadID,
		"seq", cp.Seq,
		"messages", len(history),
		"answer_len", len(final.Text),
	)
	return nil
}

// callModel performs one model round, forwarding text deltas to the events
// channel and returning the assembled assistant message.
func (e *Engine) callModel(ctx context.Context, history []core.Message, events chan<- TurnEvent) (core.AssistantMessage, error) {
	req := model.Request{
		Instructions: e.instructions,
		History:      history,
		Tools:        e.tools.Definitions(),
		Stream:       true,
	}

	respCh, errCh := e.model.Generate(ctx, req)

	var msg core.AssistantMessage
	assembled := false
	streamed := false

	for respCh != nil || errCh != nil {
		select {
		case <-ctx.Done():
			return core.AssistantMessage{}, ctx.Err()

		case resp, ok := <-respCh:
			if !ok {
				respCh = nil
				continue
			}
			if resp.Partial {
				if resp.TextDelta != "" {
					streamed = true
					emit(ctx, events, TurnEvent{Type: EventContent, Delta: resp.TextDelta})
				}
				continue
			}
			msg = resp.Message
			assembled = true
			// Non-streaming providers deliver the answer in one terminal
			// response; surface its text as a single delta.
			if msg.IsFinal() && msg.Text != "" && !streamed {
				emit(ctx, events, TurnEvent{Type: EventContent, Delta: msg.Text})
			}

		case err, ok := <-errCh:
			if !ok {
				errCh = nil
				continue
			}
			if err != nil {
				if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
					return core.AssistantMessage{}, err
				}
				return core.AssistantMessage{}, core.ProviderError{Err: err}
			}
		}
	}

	if !assembled {
		return core.AssistantMessage{}, core.ProviderError{Err: fmt.Errorf("model produced no message")}
	}
	return msg, nil
}

// dispatchToolCalls executes a batch of tool calls, possibly in parallel,
// and returns one result per call in the order the model requested them.
// Individual tool failures are encoded in the result payloads and never
// abort the batch.
func (e *Engine) dispatchToolCalls(ctx context.Context, calls []core.ToolCall) []core.ToolResultMessage {
	n := len(calls)
	results := make([]core.ToolResultMessage, n)

	if n == 1 {
		results[0] = core.ToolResultMessage{
			CallID:  calls[0].ID,
			Content: e.tools.Dispatch(ctx, calls[0].Name, calls[0].Arguments),
		}
		return results
	}

	maxPar := e.config.MaxParallelTools
	if maxPar <= 0 || maxPar > n {
		maxPar = n
	}

	var wg sync.WaitGroup
	sem := make(chan struct{}, maxPar)

	for i := range calls {
		if ctx.Err() != nil {
			break
		}
		wg.Add(1)
		sem <- struct{}{}
		go func(idx int, call core.ToolCall) {
			defer wg.Done()
			defer func() { <-sem }()

			results[idx] = core.ToolResultMessage{
				CallID:  call.ID,
				Content: e.tools.Dispatch(ctx, call.Name, call.Arguments),
			}
		}(i, calls[i])
	}

	wg.Wait()
	return results
}

// threadLock returns the mutex serializing turns on the given thread,
// creating it on first use.
func (e *Engine) threadLock(threadID string) *sync.Mutex {
	e.mu.Lock()
	defer e.mu.Unlock()

	lock, ok := e.threadLocks[threadID]
	if !ok {
		lock = &sync.Mutex{}
		e.threadLocks[threadID] = lock
	}
	return lock
}

// emit forwards a turn event unless the context is cancelled.
func emit(ctx context.Context, events chan<- TurnEvent, ev TurnEvent) {
	select {
	case <-ctx.Done():
	case events <- ev:
	}
}
