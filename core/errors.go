package core

import "fmt"

// The engine distinguishes three fatal turn failures. Tool failures are not
// represented here: they are converted to error payloads inside
// ToolResultMessages and never abort a turn.

// ProviderError wraps a model provider failure (network, quota, malformed
// response). The turn aborts without committing a checkpoint; prior thread
// state remains resumable.
type ProviderError struct {
	Err error
}

func (e ProviderError) Error() string { return fmt.Sprintf("model provider: %v", e.Err) }

// Unwrap exposes the underlying provider error for errors.Is/As.
func (e ProviderError) Unwrap() error { return e.Err }

// LoopLimitError reports that the model kept requesting tools past the
// configured maximum turn iterations. Surfaced distinctly so callers can
// detect runaway tool-calling separately from provider failures.
type LoopLimitError struct {
	Limit int
}

func (e LoopLimitError) Error() string {
	return fmt.Sprintf("turn exceeded maximum of %d model iterations", e.Limit)
}

// PersistenceError wraps a checkpoint commit failure. The turn result may
// already have been streamed to the caller, so this must never be dropped
// silently: the conversation may not resume correctly.
type PersistenceError struct {
	Err error
}

func (e PersistenceError) Error() string { return fmt.Sprintf("checkpoint commit: %v", e.Err) }

// Unwrap exposes the underlying storage error for errors.Is/As.
func (e PersistenceError) Unwrap() error { return e.Err }
