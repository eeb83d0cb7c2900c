package core

import (
	"time"

	"github.com/google/uuid"
)

// Thread is a single ongoing conversation: an opaque id, an optional display
// name and an ordered message history. History is append-only within a turn;
// messages are never rewritten or removed except by whole-thread deletion.
type Thread struct {
	ID      string
	Name    string
	History []Message
}

// Checkpoint identifies one immutable persisted snapshot of a thread's
// history. Seq increases monotonically per thread.
type Checkpoint struct {
	ThreadID  string
	Seq       int64
	CreatedAt time.Time
}

// NewThreadID generates a fresh globally unique thread identifier.
func NewThreadID() string { return uuid.NewString() }

// NewCallID generates an identifier for a tool call when the provider did
// not supply one.
func NewCallID() string { return uuid.NewString() }

// maxDerivedNameLen bounds automatically derived thread names.
const maxDerivedNameLen = 50

// DeriveThreadName produces a display name from the first user message of a
// thread: the text unmodified when it fits, otherwise a 50-character prefix
// with an ellipsis marker. Counted in runes so multi-byte text is not split.
func DeriveThreadName(text string) string {
	r := []rune(text)
	if len(r) <= maxDerivedNameLen {
		return text
	}
	return string(r[:maxDerivedNameLen]) + "..."
}
