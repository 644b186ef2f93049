// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package cli provides the chatdesk command tree and interactive chat.
//
// Commands are built with cobra. Every command opens an App, which wires
// config, logging, storage, the state store, the Groq client, and the send
// workflow in the same order the HTTP server uses.
//
// # Key Types
//
//   - App: One wired chatdesk instance
//   - REPL: The interactive chat loop with slash commands
//   - Renderer: Terminal output for messages, chat lists, and todos
//   - HistoryInput: liner-backed line editing with persisted history
//
// # Usage
//
//	os.Exit(cli.Execute())
//
// # Commands Overview
//
//   - chat: Interactive chat (also the default with no arguments)
//   - serve: HTTP API
//   - send: One message to the active chat
//   - chats: list, new, rename, delete
//   - todos: list, add, toggle, delete
//   - config: init, show
//   - export: A chat as Markdown or JSON, or the todo list
//   - reset: Delete saved chats and todos
//   - version: Build information
package cli
