package model

import (
	"context"
	"fmt"
	"sync"

	"github.com/parlorhq/parlor/core"
)

// ToolDefinition declaratively exposes a callable tool to the model.
// Parameters is a JSON Schema object (minimal subset expected).
type ToolDefinition struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
}

// Request captures the normalized model input: optional system instructions,
// the full ordered conversation history and the declared tool schemas.
type Request struct {
	Instructions string           `json:"instructions,omitempty"`
	History      []core.Message   `json:"history"`
	Tools        []ToolDefinition `json:"tools,omitempty"`
	Stream       bool             `json:"stream,omitempty"`
}

// Response is a (partial or final) chunk emitted by a model. Partial
// responses carry only TextDelta; the terminal response carries the complete
// AssistantMessage including any tool calls.
type Response struct {
	Partial      bool                  `json:"partial"`
	TextDelta    string                `json:"text_delta,omitempty"`
	Message      core.AssistantMessage `json:"message"`
	FinishReason string                `json:"finish_reason,omitempty"` // "stop", "tool_calls", etc.
}

// Info contains metadata about a model implementation.
type Info struct {
	Name          string `json:"name"`
	Provider      string `json:"provider"` // "openai", "anthropic", "mock", etc.
	SupportsTools bool   `json:"supports_tools"`
}

// Model is the minimal interface the turn engine needs to drive generation.
// Generate returns a response channel and an error channel; both are closed
// when the call completes. A provider that cannot stream may emit a single
// terminal Response.
type Model interface {
	Generate(ctx context.Context, req Request) (<-chan Response, <-chan error)

	// Info returns information about the model implementation.
	Info() Info
}

// MockModel is a lightweight in-memory Model useful for tests & examples.
// Scripted assistant messages are consumed in FIFO order across Generate
// calls, which makes multi-iteration tool loops easy to stage. When the
// script is exhausted it falls back to canned prompt responses, then to a
// deterministic echo.
type MockModel struct {
	info      Info
	mu        sync.Mutex
	script    []core.AssistantMessage
	errScript []error
	responses map[string]string
}

// NewMockModel constructs a MockModel with tool support enabled.
func NewMockModel(name, provider string) *MockModel {
	return &MockModel{
		info: Info{
			Name:          name,
			Provider:      provider,
			SupportsTools: true,
		},
		responses: make(map[string]string),
	}
}

// Script enqueues assistant messages returned by subsequent Generate calls.
func (m *MockModel) Script(msgs ...core.AssistantMessage) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.script = append(m.script, msgs...)
}

// FailNext enqueues an error emitted instead of a response by the next
// Generate call.
func (m *MockModel) FailNext(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errScript = append(m.errScript, err)
}

// AddResponse registers a deterministic canned completion for an input prompt.
func (m *MockModel) AddResponse(prompt, response string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.responses[prompt] = response
}

// next pops the scripted error or message for one Generate call.
func (m *MockModel) next(req Request) (core.AssistantMessage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.errScript) > 0 {
		err := m.errScript[0]
		m.errScript = m.errScript[1:]
		return core.AssistantMessage{}, err
	}
	if len(m.script) > 0 {
		msg := m.script[0]
		m.script = m.script[1:]
		return msg, nil
	}

	var lastUser string
	for _, msg := range req.History {
		if um, ok := msg.(core.UserMessage); ok {
			lastUser = um.Text
		}
	}
	if canned, ok := m.responses[lastUser]; ok {
		return core.AssistantMessage{Text: canned}, nil
	}
	return core.AssistantMessage{Text: fmt.Sprintf("Mock response to: %s", lastUser)}, nil
}

// Generate implements Model; emits optional streaming char chunks then the
// terminal response.
func (m *MockModel) Generate(ctx context.Context, req Request) (<-chan Response, <-chan error) {
	respCh := make(chan Response, 16)
	errCh := make(chan error, 1)

	go func() {
		defer close(respCh)
		defer close(errCh)

		msg, err := m.next(req)
		if err != nil {
			errCh <- err
			return
		}

		if req.Stream && msg.Text != "" {
			for _, r := range msg.Text {
				select {
				case <-ctx.Done():
					errCh <- ctx.Err()
					return
				case respCh <- Response{Partial: true, TextDelta: string(r)}:
				}
			}
		}

		finish := "stop"
		if len(msg.ToolCalls) > 0 {
			finish = "tool_calls"
		}
		select {
		case <-ctx.Done():
			errCh <- ctx.Err()
		case respCh <- Response{Message: msg, FinishReason: finish}:
		}
	}()

	return respCh, errCh
}

// Info implements the Model interface.
func (m *MockModel) Info() Info { return m.info }
