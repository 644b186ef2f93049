// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

import (
	"sort"
	"time"
)

// DefaultChatName is the name given to newly created chats.
const DefaultChatName = "New Chat"

// =============================================================================
// CHAT TYPE
// =============================================================================

// Chat holds a named conversation and its message history.
type Chat struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Messages    []Message `json:"messages"`
	CreatedAt   time.Time `json:"createdAt"`
	LastVisited time.Time `json:"lastVisited"`

	// IsDefault marks the to-do chat. Messages sent there become todos.
	IsDefault bool `json:"isDefault,omitempty"`
}

// NewChat creates an empty chat with a generated ID.
func NewChat(name string) Chat {
	now := time.Now()
	return Chat{
		ID:          NewID(),
		Name:        name,
		Messages:    make([]Message, 0),
		CreatedAt:   now,
		LastVisited: now,
	}
}

// =============================================================================
// MESSAGE MANAGEMENT
// =============================================================================

// Append adds a message to the end of the chat.
func (c *Chat) Append(msg Message) {
	c.Messages = append(c.Messages, msg)
}

// MessageIndex returns the position of the message with the given ID, or -1.
func (c *Chat) MessageIndex(id string) int {
	for i := range c.Messages {
		if c.Messages[i].ID == id {
			return i
		}
	}
	return -1
}

// GetMessageByID returns a message by its ID.
func (c *Chat) GetMessageByID(id string) (Message, bool) {
	if i := c.MessageIndex(id); i >= 0 {
		return c.Messages[i], true
	}
	return Message{}, false
}

// LastMessage returns the most recent message.
func (c *Chat) LastMessage() (Message, bool) {
	if len(c.Messages) == 0 {
		return Message{}, false
	}
	return c.Messages[len(c.Messages)-1], true
}

// PendingCount returns how many replies are still outstanding.
func (c *Chat) PendingCount() int {
	n := 0
	for _, m := range c.Messages {
		if m.IsPending() {
			n++
		}
	}
	return n
}

// IsEmpty returns true if the chat has no messages.
func (c *Chat) IsEmpty() bool {
	return len(c.Messages) == 0
}

// Clone returns a deep copy of the chat.
func (c Chat) Clone() Chat {
	clone := c
	clone.Messages = make([]Message, len(c.Messages))
	copy(clone.Messages, c.Messages)
	return clone
}

// =============================================================================
// ORDERING
// =============================================================================

// CloneChats deep-copies a chat list.
func CloneChats(chats []Chat) []Chat {
	out := make([]Chat, len(chats))
	for i := range chats {
		out[i] = chats[i].Clone()
	}
	return out
}

// SortByLastVisited returns a copy of chats ordered most recently visited
// first. Ties keep their relative order. The input slice is not modified.
func SortByLastVisited(chats []Chat) []Chat {
	sorted := CloneChats(chats)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].LastVisited.After(sorted[j].LastVisited)
	})
	return sorted
}
