// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package chat implements the send-message workflow.
//
// A send appends the user's message to the active chat and then either files
// a todo (in the to-do chat) or inserts a pending assistant placeholder,
// calls the completion gateway once, and rewrites that placeholder in place
// with the reply or an error text. Failures never escape Send; they end up
// in the placeholder.
//
// # Key Types
//
//   - Workflow: coordinates the store and the gateway
//   - Completer: the gateway dependency (cloud.Client implements it)
//   - Result: what a send did
//
// # Usage
//
//	wf := chat.NewWorkflow(st, gateway, logger)
//	res := wf.Send(ctx, "Hello")
//	fmt.Println(res.Reply.Content)
//
// Render the pending state while the request runs:
//
//	pending, done := wf.SendAsync(ctx, "Hello")
//	showSpinner(pending.Reply)
//	final := <-done
package chat
