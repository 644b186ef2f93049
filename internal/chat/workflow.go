// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/jeranaias/chatdesk/internal/cloud"
	"github.com/jeranaias/chatdesk/internal/model"
	"github.com/jeranaias/chatdesk/internal/store"
	"github.com/jeranaias/chatdesk/internal/util"
)

// SystemPrompt is prepended to the first request of a conversation.
const SystemPrompt = "You are a helpful assistant."

// fallbackFailure is shown when an error carries no message.
const fallbackFailure = "Failed to get response from AI"

// ErrEmptyPayload means the history produced nothing to send.
var ErrEmptyPayload = errors.New("no messages to send to API")

// Completer turns a message history into an assistant reply.
type Completer interface {
	Complete(ctx context.Context, messages []cloud.ChatMessage) (string, error)
}

// Result describes one send.
type Result struct {
	// Skipped is true when nothing happened: no active chat or blank input.
	Skipped bool

	ChatID string
	User   model.Message

	// Reply is the assistant message: the acknowledgment in the to-do chat,
	// otherwise the placeholder (pending) or its rewritten form.
	Reply model.Message

	// Todo is set when the send created a todo.
	Todo *model.Todo

	// Err is the gateway or internal failure already shown in Reply.
	Err error
}

// Workflow runs sends against a store and a gateway.
type Workflow struct {
	store   *store.Store
	gateway Completer
	logger  *zap.Logger
	newID   func() string

	wg sync.WaitGroup
}

// NewWorkflow creates a workflow. logger may be nil.
func NewWorkflow(st *store.Store, gateway Completer, logger *zap.Logger) *Workflow {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Workflow{
		store:   st,
		gateway: gateway,
		logger:  logger,
		newID:   model.NewID,
	}
}

// pending identifies a placeholder waiting for its reply.
type pending struct {
	chatID        string
	placeholderID string
	result        Result
}

// =============================================================================
// SEND
// =============================================================================

// Send runs the full workflow and returns once the placeholder (if any) has
// been rewritten.
func (w *Workflow) Send(ctx context.Context, content string) Result {
	res, done := w.SendAsync(ctx, content)
	if done == nil {
		return res
	}
	return <-done
}

// SendAsync performs the synchronous part of a send and returns its result.
// When a completion request is needed, the placeholder is already in the
// store and the final Result arrives on done; otherwise done is nil.
func (w *Workflow) SendAsync(ctx context.Context, content string) (Result, <-chan Result) {
	p, res := w.begin(content)
	if p == nil {
		return res, nil
	}

	done := make(chan Result, 1)
	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		defer close(done)
		done <- w.resolve(ctx, p)
	}()
	return res, done
}

// Wait blocks until all in-flight sends have resolved.
func (w *Workflow) Wait() {
	w.wg.Wait()
}

// begin appends the user message and either finishes a to-do send or inserts
// the placeholder.
func (w *Workflow) begin(content string) (*pending, Result) {
	chat, ok := w.store.ActiveChat()
	if !ok {
		return nil, Result{Skipped: true}
	}
	content, ok = util.CleanInput(content)
	if !ok {
		return nil, Result{Skipped: true, ChatID: chat.ID}
	}

	user, ok := w.store.AddMessage(chat.ID, model.Message{Role: model.RoleUser, Content: content})
	if !ok {
		// The chat disappeared between the read and the append.
		return nil, Result{Skipped: true}
	}
	res := Result{ChatID: chat.ID, User: user}

	if chat.IsDefault {
		todo, err := w.store.AddTodo(content)
		if err != nil {
			res.Err = err
			return nil, res
		}
		res.Todo = &todo
		reply, ok := w.store.AddMessage(chat.ID, model.Message{
			Role:    model.RoleAssistant,
			Content: TodoAcknowledgment(content),
		})
		if !ok {
			res.Err = fmt.Errorf("failed to add acknowledgment to chat %s", chat.ID)
			return nil, res
		}
		res.Reply = reply
		w.logger.Debug("todo created from chat", zap.String("todo", todo.ID))
		return nil, res
	}

	placeholder := model.NewPlaceholder()
	placeholder.ID = w.newID()
	stored, ok := w.store.AddMessage(chat.ID, placeholder)
	if !ok {
		res.Err = fmt.Errorf("failed to add placeholder to chat %s", chat.ID)
		return nil, res
	}
	res.Reply = stored

	return &pending{chatID: chat.ID, placeholderID: stored.ID, result: res}, res
}

// resolve builds the payload, calls the gateway once, and rewrites the
// placeholder exactly once.
func (w *Workflow) resolve(ctx context.Context, p *pending) (res Result) {
	res = p.result
	defer func() {
		if r := recover(); r != nil {
			w.logger.Error("send panicked", zap.Any("panic", r))
			res = w.finish(p, res, "", fmt.Errorf("unexpected failure: %v", r))
		}
	}()

	chat, ok := w.store.Chat(p.chatID)
	if !ok {
		res.Err = fmt.Errorf("chat %s was deleted before the reply arrived", p.chatID)
		return res
	}

	payload := BuildPayload(chat.Messages, p.placeholderID)
	if len(payload) == 0 {
		return w.finish(p, res, "", ErrEmptyPayload)
	}

	w.logger.Debug("requesting completion",
		zap.String("chat", p.chatID), zap.Int("messages", len(payload)))
	reply, err := w.gateway.Complete(ctx, payload)
	return w.finish(p, res, reply, err)
}

// finish applies the single rewrite and returns the updated result.
func (w *Workflow) finish(p *pending, res Result, reply string, err error) Result {
	content, status := reply, model.StatusResolved
	if err != nil {
		content, status = FailureText(err), model.StatusFailed
		res.Err = err
		w.logger.Warn("send failed", zap.String("chat", p.chatID), zap.Error(err))
	}

	if w.store.UpdateMessage(p.chatID, p.placeholderID, content, status) {
		res.Reply.Content = content
		res.Reply.Status = status
	} else if chat, ok := w.store.Chat(p.chatID); ok {
		if msg, ok := chat.GetMessageByID(p.placeholderID); ok {
			res.Reply = msg
		}
	}
	return res
}

// =============================================================================
// PAYLOAD AND TEXT
// =============================================================================

// BuildPayload maps history to gateway messages, skipping the placeholder
// and any other reply still pending. A lone user message gets SystemPrompt
// prepended; the stored history is not touched.
func BuildPayload(history []model.Message, placeholderID string) []cloud.ChatMessage {
	payload := make([]cloud.ChatMessage, 0, len(history)+1)
	for _, m := range history {
		if m.ID == placeholderID || m.IsPending() {
			continue
		}
		payload = append(payload, toChatMessage(m))
	}
	if len(payload) == 1 && payload[0].Role == string(model.RoleUser) {
		payload = append([]cloud.ChatMessage{cloud.NewSystemMessage(SystemPrompt)}, payload...)
	}
	return payload
}

func toChatMessage(m model.Message) cloud.ChatMessage {
	switch m.Role {
	case model.RoleUser:
		return cloud.NewUserMessage(m.Content)
	case model.RoleAssistant:
		return cloud.NewAssistantMessage(m.Content)
	case model.RoleSystem:
		return cloud.NewSystemMessage(m.Content)
	default:
		return cloud.ChatMessage{Role: string(m.Role), Content: m.Content}
	}
}

// TodoAcknowledgment is the assistant reply to a message in the to-do chat.
func TodoAcknowledgment(content string) string {
	return `Added "` + content + `" to your to-do list.`
}

// FailureText is the placeholder content after a failed send.
func FailureText(err error) string {
	msg := ""
	if err != nil {
		msg = err.Error()
	}
	if msg == "" {
		msg = fallbackFailure
	}
	return "Error: " + msg + ". Please try again."
}
