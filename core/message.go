package core

// Message is a single entry in a thread's conversation history. The set of
// implementations is closed: exactly UserMessage, AssistantMessage and
// ToolResultMessage satisfy it via the unexported marker method, enabling
// exhaustive switches at consumption sites.
type Message interface{ isMessage() }

// UserMessage is an utterance submitted by the caller.
type UserMessage struct {
	Text string
}

// isMessage implements the Message interface for UserMessage.
func (UserMessage) isMessage() {}

// AssistantMessage is a model response. ToolCalls is empty for a final
// answer; a non-empty ToolCalls means the model requested tool execution
// before it can answer.
type AssistantMessage struct {
	Text      string
	ToolCalls []ToolCall
}

// isMessage implements the Message interface for AssistantMessage.
func (AssistantMessage) isMessage() {}

// IsFinal reports whether this response terminates the turn (no pending
// tool calls).
func (m AssistantMessage) IsFinal() bool { return len(m.ToolCalls) == 0 }

// ToolResultMessage carries the outcome of exactly one prior ToolCall,
// correlated by CallID. Content is the string-serialized result or an
// error payload; a failed tool still produces a result message.
type ToolResultMessage struct {
	CallID  string
	Content string
}

// isMessage implements the Message interface for ToolResultMessage.
func (ToolResultMessage) isMessage() {}

// ToolCall is a structured request, emitted by the model, to invoke a named
// capability. ID is opaque and unique within its assistant message.
type ToolCall struct {
	ID        string         `json:"id"`
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments,omitempty"`
}
