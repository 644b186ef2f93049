// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jeranaias/chatdesk/internal/model"
)

// DefaultNamespace is the key under which application state is persisted.
const DefaultNamespace = "ai-chatbot-storage"

// CurrentVersion is the record layout version written by Save.
const CurrentVersion = 0

// Snapshot is the persisted subset of application state.
type Snapshot struct {
	Chats []model.Chat `json:"chats"`
	Todos []model.Todo `json:"todos"`
}

// Clone deep-copies the snapshot.
func (s Snapshot) Clone() Snapshot {
	return Snapshot{
		Chats: model.CloneChats(s.Chats),
		Todos: model.CloneTodos(s.Todos),
	}
}

type record struct {
	State   Snapshot `json:"state"`
	Version int      `json:"version"`
}

// StateStore reads and writes Snapshot records in a Backend.
type StateStore struct {
	backend   Backend
	namespace string
}

// NewStateStore returns a StateStore using namespace as the record key.
// An empty namespace uses DefaultNamespace.
func NewStateStore(backend Backend, namespace string) *StateStore {
	if namespace == "" {
		namespace = DefaultNamespace
	}
	return &StateStore{backend: backend, namespace: namespace}
}

// Namespace returns the record key.
func (s *StateStore) Namespace() string { return s.namespace }

// Load returns the persisted snapshot. found is false when nothing has been
// saved yet.
func (s *StateStore) Load(ctx context.Context) (snap Snapshot, found bool, err error) {
	data, err := s.backend.Get(ctx, s.namespace)
	if errors.Is(err, ErrNotFound) {
		return Snapshot{}, false, nil
	}
	if err != nil {
		return Snapshot{}, false, err
	}

	var rec record
	if err := json.Unmarshal(data, &rec); err != nil {
		return Snapshot{}, false, fmt.Errorf("failed to decode %s: %w", s.namespace, err)
	}
	if rec.Version > CurrentVersion {
		return Snapshot{}, false, fmt.Errorf("%s has unsupported version %d", s.namespace, rec.Version)
	}

	normalize(&rec.State)
	return rec.State, true, nil
}

// Save replaces the persisted snapshot.
func (s *StateStore) Save(ctx context.Context, snap Snapshot) error {
	if snap.Chats == nil {
		snap.Chats = []model.Chat{}
	}
	if snap.Todos == nil {
		snap.Todos = []model.Todo{}
	}
	data, err := json.Marshal(record{State: snap, Version: CurrentVersion})
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", s.namespace, err)
	}
	return s.backend.Set(ctx, s.namespace, data)
}

// Clear removes the persisted snapshot.
func (s *StateStore) Clear(ctx context.Context) error {
	return s.backend.Delete(ctx, s.namespace)
}

// normalize repairs records written by older builds: nil slices and
// messages without a status.
func normalize(snap *Snapshot) {
	if snap.Chats == nil {
		snap.Chats = []model.Chat{}
	}
	if snap.Todos == nil {
		snap.Todos = []model.Todo{}
	}
	for i := range snap.Chats {
		if snap.Chats[i].Messages == nil {
			snap.Chats[i].Messages = []model.Message{}
		}
		for j := range snap.Chats[i].Messages {
			msg := &snap.Chats[i].Messages[j]
			if msg.Status == "" {
				msg.Status = model.StatusResolved
			}
		}
	}
}
