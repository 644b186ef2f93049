// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

import "time"

// Todo is a single to-do list item.
type Todo struct {
	ID        string    `json:"id"`
	Content   string    `json:"content"`
	Completed bool      `json:"completed"`
	CreatedAt time.Time `json:"createdAt"`
}

// NewTodo creates an open todo with a generated ID.
func NewTodo(content string) Todo {
	return Todo{
		ID:        NewID(),
		Content:   content,
		CreatedAt: time.Now(),
	}
}

// CloneTodos copies a todo list.
func CloneTodos(todos []Todo) []Todo {
	out := make([]Todo, len(todos))
	copy(out, todos)
	return out
}

// CountOpen returns the number of todos not yet completed.
func CountOpen(todos []Todo) int {
	n := 0
	for _, t := range todos {
		if !t.Completed {
			n++
		}
	}
	return n
}
