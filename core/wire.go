package core

import (
	"encoding/json"
	"fmt"
)

// Conversation roles used by the wire encoding and the display surface.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
)

// wireMessage is the persisted JSON envelope for the Message sum type. One
// flat struct with a role tag keeps the stored form stable and greppable.
type wireMessage struct {
	Role      string     `json:"role"`
	Text      string     `json:"text,omitempty"`
	ToolCalls []ToolCall `json:"tool_calls,omitempty"`
	CallID    string     `json:"call_id,omitempty"`
	Content   string     `json:"content,omitempty"`
}

// MarshalHistory encodes an ordered message history as JSON for checkpoint
// storage.
func MarshalHistory(history []Message) ([]byte, error) {
	wire := make([]wireMessage, 0, len(history))
	for i, msg := range history {
		switch m := msg.(type) {
		case UserMessage:
			wire = append(wire, wireMessage{Role: RoleUser, Text: m.Text})
		case AssistantMessage:
			wire = append(wire, wireMessage{Role: RoleAssistant, Text: m.Text, ToolCalls: m.ToolCalls})
		case ToolResultMessage:
			wire = append(wire, wireMessage{Role: RoleTool, CallID: m.CallID, Content: m.Content})
		default:
			return nil, fmt.Errorf("marshal history: unsupported message type %T at index %d", msg, i)
		}
	}
	return json.Marshal(wire)
}

// UnmarshalHistory decodes a stored history blob. A nil or empty blob yields
// an empty history. Unknown roles are rejected so a corrupted checkpoint
// surfaces loudly instead of silently dropping messages.
func UnmarshalHistory(data []byte) ([]Message, error) {
	if len(data) == 0 {
		return []Message{}, nil
	}
	var wire []wireMessage
	if err := json.Unmarshal(data, &wire); err != nil {
		return nil, fmt.Errorf("unmarshal history: %w", err)
	}
	history := make([]Message, 0, len(wire))
	for i, wm := range wire {
		switch wm.Role {
		case RoleUser:
			history = append(history, UserMessage{Text: wm.Text})
		case RoleAssistant:
			history = append(history, AssistantMessage{Text: wm.Text, ToolCalls: wm.ToolCalls})
		case RoleTool:
			history = append(history, ToolResultMessage{CallID: wm.CallID, Content: wm.Content})
		default:
			return nil, fmt.Errorf("unmarshal history: unknown role %q at index %d", wm.Role, i)
		}
	}
	return history, nil
}
