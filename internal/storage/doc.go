// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package storage provides durable persistence for chatdesk state.
//
// Persistence is a generic namespaced key-value layer. The application saves
// a single record under the "ai-chatbot-storage" namespace holding the chats
// and todos; UI flags are never written.
//
// # Key Types
//
//   - Backend: key-value interface (Get, Set, Delete, Close)
//   - FileBackend: one JSON file per key, written atomically
//   - SQLiteBackend: kv table in a SQLite database (modernc.org/sqlite)
//   - MemoryBackend: in-process backend for tests and ephemeral runs
//   - StateStore: encodes Snapshot records into a Backend
//
// # Usage
//
//	backend, err := storage.Open(storage.KindFile, "~/.chatdesk/data")
//	states := storage.NewStateStore(backend, storage.DefaultNamespace)
//	snap, found, err := states.Load(ctx)
//
// # Record Layout
//
//	{"state":{"chats":[...],"todos":[...]},"version":0}
package storage
