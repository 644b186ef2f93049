// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package store is the single source of truth for chats, todos, the active
// chat selection, and panel visibility.
//
// A Store is an explicit, injectable container: construct one per process and
// hand it to the workflow, the server, and the REPL. Every mutation runs under
// one lock, so readers never observe a partially applied change. After each
// mutation of chats or todos the {chats, todos} subset is written to the
// configured Persister; failures are logged and never fail the mutation.
//
// # Key Types
//
//   - Store: state container with the mutation API
//   - State: deep-copied view returned by Snapshot and passed to subscribers
//   - Persister: load/save of storage.Snapshot (storage.StateStore implements it)
//
// # Usage
//
//	st := store.New(storage.NewStateStore(backend, ""), store.WithLogger(logger))
//	if err := st.Initialize(ctx); err != nil {
//	    return err
//	}
//	chat := st.CreateChat()
//	st.AddMessage(chat.ID, model.Message{Role: model.RoleUser, Content: "Hello"})
//
// # To-Do Chat
//
// The seeded "todo-chat" is flagged IsDefault. It cannot be renamed or deleted
// through the Store; those calls return ErrProtectedChat.
package store
