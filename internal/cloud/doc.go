// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package cloud provides the Groq chat completion gateway.
//
// Groq exposes an OpenAI-compatible API, so requests go through
// github.com/sashabaranov/go-openai pointed at the Groq base URL. The model,
// temperature, and output limit are fixed; callers supply only the message
// history.
//
// # Key Types
//
//   - Client: single-attempt completion client (no retries)
//   - ChatMessage: {role, content} pair sent upstream
//   - Error: classified failure with an ErrorKind and HTTP-equivalent status
//
// # Usage
//
//	client := cloud.NewClient(cloud.ClientConfig{APIKey: cfg.Gateway.APIKey})
//	reply, err := client.Complete(ctx, []cloud.ChatMessage{
//	    cloud.NewSystemMessage("You are a helpful assistant."),
//	    cloud.NewUserMessage("Hello"),
//	})
//	if cloud.IsConfigError(err) {
//	    // GROQ_API_KEY missing
//	}
//
// # Security
//
// API keys are never logged. Upstream responses are capped at
// MaxResponseSize.
package cloud
