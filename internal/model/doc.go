// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package model contains the data structures for chats, messages, and todos.
//
// This package defines the core domain types shared by the store, the
// send-message workflow, and the HTTP and terminal surfaces.
//
// # Key Types
//
//   - Chat: Named, ordered conversation of messages with visit tracking
//   - Message: Single message with role, content, timestamp, and status
//   - MessageStatus: pending/resolved/failed lifecycle of assistant replies
//   - Todo: To-do item created directly or from the to-do chat
//   - Role: Message role enumeration (user, assistant, system)
//
// # Usage
//
// Create a chat and append a message:
//
//	chat := model.NewChat("New Chat")
//	chat.Append(model.NewMessage(model.RoleUser, "Hello!"))
//
// List chats most recently visited first:
//
//	for _, c := range model.SortByLastVisited(chats) {
//	    fmt.Println(c.Name)
//	}
package model
