// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package server provides the chatdesk HTTP API.
//
// # Endpoints
//
//   - POST   /api/chat                  - Groq completion proxy ({messages} to {content})
//   - GET    /api/state                 - Chats, todos, and panel state
//   - POST   /api/chats                 - Create a chat
//   - GET    /api/chats/{id}            - Fetch a chat
//   - PATCH  /api/chats/{id}            - Rename a chat
//   - DELETE /api/chats/{id}            - Delete a chat
//   - POST   /api/chats/{id}/activate   - Select a chat
//   - POST   /api/messages              - Run the send workflow on the active chat
//   - GET    /api/todos                 - List todos
//   - POST   /api/todos                 - Add a todo
//   - POST   /api/todos/{id}/toggle     - Toggle completion
//   - DELETE /api/todos/{id}            - Delete a todo
//   - GET    /health                    - Health check
//
// # Middleware
//
// Requests pass through panic recovery, zap request logging, CORS, security
// headers, a per-client token bucket (golang.org/x/time/rate), and optional
// bearer token auth on /api routes.
//
// # Key Types
//
//   - Server: Routes, middleware, and lifecycle
//   - Options: Listener, limits, and auth settings
//   - Gateway: The completion service behind POST /api/chat
//
// # Usage
//
//	srv := server.New(server.OptionsFromConfig(cfg.Server), st, workflow, client, logger)
//	if err := srv.Run(ctx); err != nil {
//		log.Fatal(err)
//	}
package server
