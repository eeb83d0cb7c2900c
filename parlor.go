// Package parlor provides a high-level façade over the turn engine and its
// services (checkpoint store, tool registry, thread directory & logging)
// enabling rapid construction of conversational agents. Most applications
// interact with this package by:
//  1. Creating an Assistant via New() with a model implementation
//  2. Running turns against named threads (StartTurn / RunTurn)
//  3. Browsing and managing threads (Threads, History, DeleteThread)
//
// The façade delegates turn orchestration to engine.Engine while keeping
// setup and usage ergonomics concise. All defaults are safe for local
// development and testing; production deployments typically supply a
// SQLite-backed store and a structured logger.
package parlor

import (
	"context"

	"github.com/parlorhq/parlor/checkpoint"
	"github.com/parlorhq/parlor/core"
	"github.com/parlorhq/parlor/directory"
	"github.com/parlorhq/parlor/engine"
	"github.com/parlorhq/parlor/logging"
	"github.com/parlorhq/parlor/model"
	"github.com/parlorhq/parlor/tool"
)

// Options configures the Assistant instance.
type Options struct {
	// EngineConfig holds turn execution parameters (loop limit, tool
	// parallelism, event buffering).
	EngineConfig engine.Config

	// Instructions is the system prompt sent with every model request.
	Instructions string

	// Store persists thread histories (defaults to an in-memory
	// implementation if not provided).
	Store checkpoint.Store

	// Tools is the registry of tools available to the model (defaults to
	// an empty registry).
	Tools *tool.Registry

	// Logger (defaults to NoOp logger if nil)
	Logger logging.Logger
}

// Assistant is the high-level façade aggregating the turn engine, the
// checkpoint store and the thread directory.
type Assistant struct {
	opts      Options
	engine    *engine.Engine
	store     checkpoint.Store
	directory *directory.Directory
}

// New creates a new Assistant around the given model with optional
// overrides. Any unset service is initialized with an in-memory or no-op
// implementation.
func New(m model.Model, optFns ...func(o *Options)) *Assistant {
	opts := Options{
		EngineConfig: engine.DefaultConfig,
		Store:        checkpoint.NewInMemoryStore(),
		Logger:       logging.NoOpLogger{},
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	if opts.Tools == nil {
		opts.Tools = tool.NewRegistry(opts.Logger)
	}

	eng := engine.New(m,
		engine.WithConfig(opts.EngineConfig),
		engine.WithStore(opts.Store),
		engine.WithTools(opts.Tools),
		engine.WithInstructions(opts.Instructions),
		engine.WithLogger(opts.Logger),
	)

	return &Assistant{
		opts:      opts,
		engine:    eng,
		store:     opts.Store,
		directory: directory.New(opts.Store, opts.Logger),
	}
}

// NewThreadID mints a fresh thread identifier. The thread comes into
// existence in the store when its first turn commits.
func (a *Assistant) NewThreadID() string { return core.NewThreadID() }

// StartTurn runs one turn asynchronously and returns the turn's event
// stream: content deltas followed by a terminal done or error event.
func (a *Assistant) StartTurn(ctx context.Context, threadID, userText string) <-chan engine.TurnEvent {
	return a.engine.StartTurn(ctx, threadID, userText)
}

// RunTurn runs one turn synchronously and returns the final answer text.
func (a *Assistant) RunTurn(ctx context.Context, threadID, userText string) (string, error) {
	return a.engine.RunTurn(ctx, threadID, userText)
}

// History returns the committed conversation history of a thread. An
// unknown thread yields an empty history.
func (a *Assistant) History(ctx context.Context, threadID string) ([]core.Message, error) {
	return a.engine.History(ctx, threadID)
}

// Threads lists all known threads with display names, oldest first.
func (a *Assistant) Threads(ctx context.Context) ([]directory.ThreadSummary, error) {
	return a.directory.List(ctx)
}

// DeleteThread removes a thread and all its checkpoints. Deleting an
// unknown thread is a no-op.
func (a *Assistant) DeleteThread(ctx context.Context, threadID string) error {
	if err := a.store.Delete(ctx, threadID); err != nil {
		return core.PersistenceError{Err: err}
	}
	return nil
}

// Close releases the underlying store.
func (a *Assistant) Close() error { return a.store.Close() }
