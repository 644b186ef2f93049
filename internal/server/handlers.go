// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/jeranaias/chatdesk/internal/cloud"
	"github.com/jeranaias/chatdesk/internal/model"
	"github.com/jeranaias/chatdesk/internal/store"
	"github.com/jeranaias/chatdesk/internal/util"
)

// ============================================================================
// REQUEST AND RESPONSE TYPES
// ============================================================================

// CompletionRequest is the POST /api/chat body. Messages is decoded lazily so
// shape errors produce the gateway's validation messages.
type CompletionRequest struct {
	Messages json.RawMessage `json:"messages"`
}

// CompletionResponse is the POST /api/chat success body.
type CompletionResponse struct {
	Content string `json:"content"`
}

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

// StateResponse is the GET /api/state body.
type StateResponse struct {
	Chats            []model.Chat `json:"chats"`
	Todos            []model.Todo `json:"todos"`
	ActiveChat       string       `json:"activeChat"`
	LeftSidebarOpen  bool         `json:"leftSidebarOpen"`
	RightSidebarOpen bool         `json:"rightSidebarOpen"`
}

// RenameRequest is the PATCH /api/chats/{id} body.
type RenameRequest struct {
	Name string `json:"name"`
}

// ContentRequest is the body of POST /api/messages and POST /api/todos.
// ViewportWidth is only read by POST /api/messages; a mobile-sized width
// closes both panels before the send.
type ContentRequest struct {
	Content       string `json:"content"`
	ViewportWidth int    `json:"viewportWidth,omitempty"`
}

// PanelsRequest is the PATCH /api/ui body. Omitted flags are unchanged.
// ViewportWidth is applied after the flags, so a mobile-sized width wins.
type PanelsRequest struct {
	LeftSidebarOpen  *bool `json:"leftSidebarOpen,omitempty"`
	RightSidebarOpen *bool `json:"rightSidebarOpen,omitempty"`
	ViewportWidth    int   `json:"viewportWidth,omitempty"`
}

// SendResponse is the POST /api/messages body.
type SendResponse struct {
	Chat  model.Chat    `json:"chat"`
	Reply model.Message `json:"reply"`
	Todo  *model.Todo   `json:"todo,omitempty"`
	Error string        `json:"error,omitempty"`
}

// HealthResponse represents the health check response.
type HealthResponse struct {
	Status    string  `json:"status"`
	Version   string  `json:"version"`
	Gateway   string  `json:"gateway"`
	Chats     int     `json:"chats"`
	OpenTodos int     `json:"open_todos"`
	Uptime    float64 `json:"uptime_seconds"`
}

// ============================================================================
// COMPLETION PROXY
// ============================================================================

// handleChatCompletion handles POST /api/chat.
func (s *Server) handleChatCompletion(w http.ResponseWriter, r *http.Request) {
	// Unreadable bodies are internal errors on this route, like transport
	// failures.
	var req CompletionRequest
	if err := s.readJSON(w, r, &req); err != nil {
		writeJSON(w, http.StatusInternalServerError, ErrorResponse{Error: "Internal server error", Message: err.Error()})
		return
	}

	messages := parseMessages(req.Messages)
	content, err := s.gateway.Complete(r.Context(), messages)
	if err != nil {
		if cloud.IsValidationError(err) {
			s.logger.Debug("completion rejected", zap.Error(err))
		} else {
			s.logger.Info("completion failed", zap.Int("status", cloud.StatusCode(err)), zap.Error(err))
		}
		status := cloud.StatusCode(err)
		var gwErr *cloud.Error
		if errors.As(err, &gwErr) && gwErr.Kind == cloud.KindTransport {
			msg := ""
			if gwErr.Cause != nil {
				msg = gwErr.Cause.Error()
			}
			writeJSON(w, status, ErrorResponse{Error: gwErr.Message, Message: msg})
			return
		}
		if gwErr != nil {
			writeError(w, status, gwErr.Message)
			return
		}
		writeJSON(w, http.StatusInternalServerError, ErrorResponse{Error: "Internal server error", Message: err.Error()})
		return
	}

	writeJSON(w, http.StatusOK, CompletionResponse{Content: content})
}

// parseMessages converts the raw messages field. Anything that is not an
// array yields nil; entries whose role or content is not a string yield
// empty fields. Both are then rejected by gateway validation.
func parseMessages(raw json.RawMessage) []cloud.ChatMessage {
	var items []map[string]any
	if len(raw) == 0 || json.Unmarshal(raw, &items) != nil {
		return nil
	}
	messages := make([]cloud.ChatMessage, len(items))
	for i, item := range items {
		role, _ := item["role"].(string)
		content, _ := item["content"].(string)
		messages[i] = cloud.ChatMessage{Role: role, Content: content}
	}
	return messages
}

// ============================================================================
// STATE AND CHATS
// ============================================================================

// handleState handles GET /api/state.
func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	s.writeState(w)
}

// handlePanels handles PATCH /api/ui.
func (s *Server) handlePanels(w http.ResponseWriter, r *http.Request) {
	var req PanelsRequest
	if !s.decodeJSON(w, r, &req) {
		return
	}
	if req.LeftSidebarOpen != nil {
		s.store.SetLeftSidebarOpen(*req.LeftSidebarOpen)
	}
	if req.RightSidebarOpen != nil {
		s.store.SetRightSidebarOpen(*req.RightSidebarOpen)
	}
	s.store.AdjustForViewport(req.ViewportWidth)
	s.writeState(w)
}

func (s *Server) writeState(w http.ResponseWriter) {
	state := s.store.Snapshot()
	writeJSON(w, http.StatusOK, StateResponse{
		Chats:            state.SortedChats(),
		Todos:            state.Todos,
		ActiveChat:       state.ActiveChatID,
		LeftSidebarOpen:  state.LeftSidebarOpen,
		RightSidebarOpen: state.RightSidebarOpen,
	})
}

// handleCreateChat handles POST /api/chats.
func (s *Server) handleCreateChat(w http.ResponseWriter, r *http.Request) {
	created := s.store.CreateChat()
	s.logger.Debug("chat created", zap.String("chat", created.ID))
	writeJSON(w, http.StatusCreated, created)
}

// handleGetChat handles GET /api/chats/{id}.
func (s *Server) handleGetChat(w http.ResponseWriter, r *http.Request) {
	c, ok := s.store.Chat(r.PathValue("id"))
	if !ok {
		writeError(w, http.StatusNotFound, "Chat not found")
		return
	}
	writeJSON(w, http.StatusOK, c)
}

// handleRenameChat handles PATCH /api/chats/{id}.
func (s *Server) handleRenameChat(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if _, ok := s.store.Chat(id); !ok {
		writeError(w, http.StatusNotFound, "Chat not found")
		return
	}

	var req RenameRequest
	if !s.decodeJSON(w, r, &req) {
		return
	}
	if err := s.store.RenameChat(id, req.Name); err != nil {
		writeStoreError(w, err)
		return
	}

	c, _ := s.store.Chat(id)
	writeJSON(w, http.StatusOK, c)
}

// handleDeleteChat handles DELETE /api/chats/{id}.
func (s *Server) handleDeleteChat(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if _, ok := s.store.Chat(id); !ok {
		writeError(w, http.StatusNotFound, "Chat not found")
		return
	}
	if err := s.store.DeleteChat(id); err != nil {
		writeStoreError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleActivateChat handles POST /api/chats/{id}/activate.
func (s *Server) handleActivateChat(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if _, ok := s.store.Chat(id); !ok {
		writeError(w, http.StatusNotFound, "Chat not found")
		return
	}
	s.store.SetActiveChat(id)
	c, _ := s.store.Chat(id)
	writeJSON(w, http.StatusOK, c)
}

// ============================================================================
// SEND WORKFLOW
// ============================================================================

// handleSendMessage handles POST /api/messages. The workflow runs to
// completion even if the client disconnects so the placeholder is never
// left pending.
func (s *Server) handleSendMessage(w http.ResponseWriter, r *http.Request) {
	var req ContentRequest
	if !s.decodeJSON(w, r, &req) {
		return
	}
	if _, ok := util.CleanInput(req.Content); !ok {
		writeError(w, http.StatusBadRequest, "Message content cannot be empty")
		return
	}
	if _, ok := s.store.ActiveChat(); !ok {
		writeError(w, http.StatusConflict, "No active chat")
		return
	}
	s.store.AdjustForViewport(req.ViewportWidth)

	ctx, cancel := context.WithTimeout(context.WithoutCancel(r.Context()), s.opts.SendTimeout)
	defer cancel()

	res := s.workflow.Send(ctx, req.Content)
	if res.Skipped {
		writeError(w, http.StatusConflict, "No active chat")
		return
	}

	resp := SendResponse{Reply: res.Reply, Todo: res.Todo}
	if res.Err != nil {
		resp.Error = res.Err.Error()
	}
	if c, ok := s.store.Chat(res.ChatID); ok {
		resp.Chat = c
	}
	writeJSON(w, http.StatusOK, resp)
}

// ============================================================================
// TODOS
// ============================================================================

// handleListTodos handles GET /api/todos.
func (s *Server) handleListTodos(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.store.Todos())
}

// handleAddTodo handles POST /api/todos.
func (s *Server) handleAddTodo(w http.ResponseWriter, r *http.Request) {
	var req ContentRequest
	if !s.decodeJSON(w, r, &req) {
		return
	}
	todo, err := s.store.AddTodo(req.Content)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, todo)
}

// handleToggleTodo handles POST /api/todos/{id}/toggle.
func (s *Server) handleToggleTodo(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if _, ok := s.store.Todo(id); !ok {
		writeError(w, http.StatusNotFound, "Todo not found")
		return
	}
	s.store.ToggleTodo(id)
	todo, _ := s.store.Todo(id)
	writeJSON(w, http.StatusOK, todo)
}

// handleDeleteTodo handles DELETE /api/todos/{id}.
func (s *Server) handleDeleteTodo(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if _, ok := s.store.Todo(id); !ok {
		writeError(w, http.StatusNotFound, "Todo not found")
		return
	}
	s.store.DeleteTodo(id)
	w.WriteHeader(http.StatusNoContent)
}

// ============================================================================
// HEALTH HANDLER
// ============================================================================

// handleHealth handles GET /health.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	health := HealthResponse{
		Status:    "ok",
		Version:   Version,
		Gateway:   "not_configured",
		Chats:     len(s.store.Chats()),
		OpenTodos: model.CountOpen(s.store.Todos()),
		Uptime:    time.Since(s.started).Seconds(),
	}
	if s.gateway != nil && s.gateway.IsConfigured() {
		health.Gateway = "configured"
	} else {
		health.Status = "degraded"
	}
	writeJSON(w, http.StatusOK, health)
}

// ============================================================================
// HELPERS
// ============================================================================

// decodeJSON reads a size-limited JSON body into v. On failure it writes the
// response and returns false.
func (s *Server) decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := s.readJSON(w, r, v); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "Request body too large")
			return false
		}
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "Invalid JSON body", Message: err.Error()})
		return false
	}
	return true
}

// readJSON decodes a body capped at MaxBodyBytes.
func (s *Server) readJSON(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, s.opts.MaxBodyBytes)
	return json.NewDecoder(r.Body).Decode(v)
}

// writeStoreError maps store policy errors to status codes.
func writeStoreError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, store.ErrEmptyName), errors.Is(err, store.ErrEmptyContent):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, store.ErrProtectedChat):
		writeError(w, http.StatusForbidden, err.Error())
	default:
		writeJSON(w, http.StatusInternalServerError, ErrorResponse{Error: "Internal server error", Message: err.Error()})
	}
}

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError writes {"error": message}.
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, ErrorResponse{Error: message})
}
