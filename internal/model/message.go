// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package model contains the data structures for chats, messages, and todos.
package model

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// =============================================================================
// ROLE TYPE
// =============================================================================

// Role represents the sender of a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// String returns the string representation of the role.
func (r Role) String() string {
	return string(r)
}

// DisplayName returns a human-readable name for the role.
func (r Role) DisplayName() string {
	switch r {
	case RoleUser:
		return "You"
	case RoleAssistant:
		return "Assistant"
	case RoleSystem:
		return "System"
	default:
		return string(r)
	}
}

// IsValid reports whether r is one of the known roles.
func (r Role) IsValid() bool {
	switch r {
	case RoleUser, RoleAssistant, RoleSystem:
		return true
	}
	return false
}

// =============================================================================
// MESSAGE STATUS
// =============================================================================

// MessageStatus tracks whether an assistant reply is still outstanding.
type MessageStatus string

const (
	// StatusPending marks a placeholder waiting for the completion gateway.
	StatusPending MessageStatus = "pending"
	// StatusResolved marks final content.
	StatusResolved MessageStatus = "resolved"
	// StatusFailed marks a placeholder rewritten with an error text.
	StatusFailed MessageStatus = "failed"
)

// String returns the string representation of the status.
func (s MessageStatus) String() string {
	return string(s)
}

// IsFinal reports whether the status can no longer change.
func (s MessageStatus) IsFinal() bool {
	return s == StatusResolved || s == StatusFailed
}

// PlaceholderText is shown while a reply is pending. It is display text only;
// pending messages are always identified by Status.
const PlaceholderText = "Loading..."

// =============================================================================
// MESSAGE TYPE
// =============================================================================

// Message represents a single message in a chat.
type Message struct {
	ID        string        `json:"id"`
	Content   string        `json:"content"`
	Role      Role          `json:"role"`
	CreatedAt time.Time     `json:"createdAt"`
	Status    MessageStatus `json:"status,omitempty"`
}

// NewMessage creates a resolved message with a generated ID.
func NewMessage(role Role, content string) Message {
	return Message{
		ID:        NewID(),
		Content:   content,
		Role:      role,
		CreatedAt: time.Now(),
		Status:    StatusResolved,
	}
}

// NewPlaceholder creates a pending assistant message.
func NewPlaceholder() Message {
	msg := NewMessage(RoleAssistant, PlaceholderText)
	msg.Status = StatusPending
	return msg
}

// IsPending reports whether the message is waiting for a reply.
func (m Message) IsPending() bool {
	return m.Status == StatusPending
}

// EffectiveStatus returns the status, treating a missing one as resolved.
// Records written before statuses existed carry none.
func (m Message) EffectiveStatus() MessageStatus {
	if m.Status == "" {
		return StatusResolved
	}
	return m.Status
}

// Preview returns a one-line preview of the content limited to maxLen runes.
func (m Message) Preview(maxLen int) string {
	content := strings.Join(strings.Fields(m.Content), " ")
	runes := []rune(content)
	if maxLen <= 0 || len(runes) <= maxLen {
		return content
	}
	if maxLen <= 3 {
		return string(runes[:maxLen])
	}
	return string(runes[:maxLen-3]) + "..."
}

// =============================================================================
// HELPERS
// =============================================================================

// NewID returns a new unique opaque identifier.
func NewID() string {
	return uuid.New().String()
}
