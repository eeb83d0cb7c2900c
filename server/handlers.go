package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/parlorhq/parlor/core"
	"github.com/parlorhq/parlor/engine"
)

// ChatRequest is the JSON request body for POST /chat and POST /chat/stream.
type ChatRequest struct {
	ThreadID string `json:"thread_id"`
	Message  string `json:"message"`
}

// ChatResponse is the JSON response for POST /chat.
type ChatResponse struct {
	ThreadID string `json:"thread_id"`
	Response string `json:"response"`
}

// ThreadResponse is one entry in the GET /threads listing.
type ThreadResponse struct {
	ThreadID string `json:"thread_id"`
	Name     string `json:"name"`
}

// MessageResponse is one conversation message in GET /conversation
// responses. Only user and assistant text is surfaced; tool traffic is
// an engine implementation detail.
type MessageResponse struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ConversationResponse is the JSON response for GET /conversation/{thread_id}.
type ConversationResponse struct {
	ThreadID string            `json:"thread_id"`
	Messages []MessageResponse `json:"messages"`
}

func (s *Server) handleRoot(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"message": "parlor API"})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleChat runs a complete turn and returns the final answer in one
// JSON response.
func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	req, err := parseChatRequest(r)
	if err != nil {
		s.sendJSONError(w, http.StatusBadRequest, err.Error())
		return
	}

	answer, err := s.assistant.RunTurn(r.Context(), req.ThreadID, req.Message)
	if err != nil {
		status, msg := classifyTurnError(err)
		s.logger.Error("chat turn failed", "thread_id", req.ThreadID, "error", err)
		s.sendJSONError(w, status, msg)
		return
	}

	writeJSON(w, http.StatusOK, ChatResponse{ThreadID: req.ThreadID, Response: answer})
}

// handleChatStream runs a turn and streams its events as SSE. Each event
// is a JSON object on a data: line; the stream ends with a done or error
// event.
func (s *Server) handleChatStream(w http.ResponseWriter, r *http.Request) {
	req, err := parseChatRequest(r)
	if err != nil {
		s.sendJSONError(w, http.StatusBadRequest, err.Error())
		return
	}

	// Check streaming support before sending (fail fast)
	flusher, ok := w.(http.Flusher)
	if !ok {
		s.logger.Error("streaming not supported")
		s.sendJSONError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	for ev := range s.assistant.StartTurn(r.Context(), req.ThreadID, req.Message) {
		switch ev.Type {
		case engine.EventContent:
			writeSSEData(w, map[string]string{"type": "content", "content": ev.Delta})
		case engine.EventDone:
			writeSSEData(w, map[string]string{"type": "done", "thread_id": req.ThreadID})
		case engine.EventError:
			s.logger.Error("streamed turn failed", "thread_id", req.ThreadID, "error", ev.Err)
			_, msg := classifyTurnError(ev.Err)
			writeSSEData(w, map[string]string{"type": "error", "error": msg})
		}
		flusher.Flush()
	}
}

func (s *Server) handleListThreads(w http.ResponseWriter, r *http.Request) {
	threads, err := s.assistant.Threads(r.Context())
	if err != nil {
		s.logger.Error("listing threads failed", "error", err)
		s.sendJSONError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	response := make([]ThreadResponse, 0, len(threads))
	for _, t := range threads {
		response = append(response, ThreadResponse{ThreadID: t.ThreadID, Name: t.Name})
	}
	writeJSON(w, http.StatusOK, response)
}

func (s *Server) handleConversation(w http.ResponseWriter, r *http.Request) {
	threadID := r.PathValue("thread_id")

	history, err := s.assistant.History(r.Context(), threadID)
	if err != nil {
		s.logger.Error("loading conversation failed", "thread_id", threadID, "error", err)
		s.sendJSONError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	messages := make([]MessageResponse, 0, len(history))
	for _, msg := range history {
		switch m := msg.(type) {
		case core.UserMessage:
			messages = append(messages, MessageResponse{Role: core.RoleUser, Content: m.Text})
		case core.AssistantMessage:
			// Skip pure tool-call requests; they carry no display text.
			if m.Text != "" {
				messages = append(messages, MessageResponse{Role: core.RoleAssistant, Content: m.Text})
			}
		}
	}
	writeJSON(w, http.StatusOK, ConversationResponse{ThreadID: threadID, Messages: messages})
}

func (s *Server) handleNewThread(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"thread_id": s.assistant.NewThreadID()})
}

func (s *Server) handleDeleteThread(w http.ResponseWriter, r *http.Request) {
	threadID := r.PathValue("thread_id")

	if err := s.assistant.DeleteThread(r.Context(), threadID); err != nil {
		s.logger.Error("deleting thread failed", "thread_id", threadID, "error", err)
		s.sendJSONError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted", "thread_id": threadID})
}

// parseChatRequest decodes and validates a chat request body.
func parseChatRequest(r *http.Request) (*ChatRequest, error) {
	var req ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return nil, errors.New("invalid JSON body")
	}
	if req.ThreadID == "" {
		return nil, errors.New("thread_id is required")
	}
	if req.Message == "" {
		return nil, errors.New("message is required")
	}
	return &req, nil
}

// classifyTurnError maps turn failures to an HTTP status and a safe
// client-facing message.
func classifyTurnError(err error) (int, string) {
	var loopErr core.LoopLimitError
	if errors.As(err, &loopErr) {
		return http.StatusUnprocessableEntity, loopErr.Error()
	}
	var provErr core.ProviderError
	if errors.As(err, &provErr) {
		return http.StatusBadGateway, "model provider error"
	}
	return http.StatusInternalServerError, "internal server error"
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeSSEData writes one SSE data line carrying a JSON payload.
func writeSSEData(w http.ResponseWriter, data any) {
	payload, err := json.Marshal(data)
	if err != nil {
		return
	}
	fmt.Fprintf(w, "data: %s\n\n", payload)
}

// sendJSONError writes a JSON error response.
func (s *Server) sendJSONError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
