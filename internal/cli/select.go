// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/jeranaias/chatdesk/internal/model"
)

// selectChat resolves ref as a 1-based position in chats or as a chat id.
func selectChat(chats []model.Chat, ref string) (model.Chat, error) {
	ref = strings.TrimSpace(ref)
	if n, err := strconv.Atoi(ref); err == nil {
		if n < 1 || n > len(chats) {
			return model.Chat{}, fmt.Errorf("chat number %d out of range (1-%d)", n, len(chats))
		}
		return chats[n-1], nil
	}
	for _, c := range chats {
		if c.ID == ref {
			return c, nil
		}
	}
	return model.Chat{}, fmt.Errorf("no chat matches %q", ref)
}

// selectTodo resolves ref as a 1-based position in todos or as a todo id.
func selectTodo(todos []model.Todo, ref string) (model.Todo, error) {
	ref = strings.TrimSpace(ref)
	if n, err := strconv.Atoi(ref); err == nil {
		if n < 1 || n > len(todos) {
			return model.Todo{}, fmt.Errorf("todo number %d out of range (1-%d)", n, len(todos))
		}
		return todos[n-1], nil
	}
	for _, t := range todos {
		if t.ID == ref {
			return t, nil
		}
	}
	return model.Todo{}, fmt.Errorf("no todo matches %q", ref)
}
