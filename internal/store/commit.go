// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package store

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/jeranaias/chatdesk/internal/model"
	"github.com/jeranaias/chatdesk/internal/storage"
)

// saveTimeout bounds a single persistence write.
const saveTimeout = 10 * time.Second

// commit applies fn under the write lock. When fn reports a change the
// revision is bumped, the persisted subset is saved (if persist is set), and
// subscribers are notified. It returns fn's result.
func (s *Store) commit(persist bool, fn func() bool) bool {
	s.mu.Lock()
	if !fn() {
		s.mu.Unlock()
		return false
	}
	s.revision++
	rev := s.revision
	var snap storage.Snapshot
	if persist {
		snap = storage.Snapshot{
			Chats: model.CloneChats(s.chats),
			Todos: model.CloneTodos(s.todos),
		}
	}
	var state State
	notify := s.hasSubscribers()
	if notify {
		state = s.stateLocked()
	}
	s.mu.Unlock()

	if persist {
		s.save(rev, snap)
	}
	if notify {
		s.publish(state)
	}
	return true
}

// save writes snap unless a newer revision has already been written.
func (s *Store) save(rev uint64, snap storage.Snapshot) {
	if s.persister == nil {
		return
	}
	s.saveMu.Lock()
	defer s.saveMu.Unlock()
	if rev <= s.savedRev {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), saveTimeout)
	defer cancel()
	if err := s.persister.Save(ctx, snap); err != nil {
		s.logger.Error("failed to persist state",
			zap.Uint64("revision", rev), zap.Error(err))
		return
	}
	s.savedRev = rev
}

// =============================================================================
// SUBSCRIPTIONS
// =============================================================================

// Subscribe registers fn to receive a State copy after every committed
// mutation. fn runs on the mutating goroutine after the lock is released.
// The returned function removes the subscription.
func (s *Store) Subscribe(fn func(State)) (unsubscribe func()) {
	s.subMu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = fn
	s.subMu.Unlock()

	return func() {
		s.subMu.Lock()
		delete(s.subs, id)
		s.subMu.Unlock()
	}
}

func (s *Store) hasSubscribers() bool {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	return len(s.subs) > 0
}

func (s *Store) publish(state State) {
	s.subMu.Lock()
	fns := make([]func(State), 0, len(s.subs))
	for _, fn := range s.subs {
		fns = append(fns, fn)
	}
	s.subMu.Unlock()

	for _, fn := range fns {
		fn(state)
	}
}

// =============================================================================
// READS
// =============================================================================

func (s *Store) stateLocked() State {
	return State{
		Chats:            model.CloneChats(s.chats),
		Todos:            model.CloneTodos(s.todos),
		ActiveChatID:     s.activeID,
		LeftSidebarOpen:  s.leftOpen,
		RightSidebarOpen: s.rightOpen,
		Revision:         s.revision,
	}
}

// Snapshot returns a deep copy of the whole state.
func (s *Store) Snapshot() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.stateLocked()
}

// ActiveChatID returns the active chat id, or "" when none is active.
func (s *Store) ActiveChatID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.activeID
}

// ActiveChat returns a copy of the active chat.
func (s *Store) ActiveChat() (model.Chat, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.chatLocked(s.activeID)
}

// Chat returns a copy of the chat with the given id.
func (s *Store) Chat(id string) (model.Chat, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.chatLocked(id)
}

// TodoChat returns a copy of the to-do chat.
func (s *Store) TodoChat() (model.Chat, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, c := range s.chats {
		if c.IsDefault {
			return c.Clone(), true
		}
	}
	return model.Chat{}, false
}

// IsTodoChat reports whether id names the to-do chat.
func (s *Store) IsTodoChat(id string) bool {
	chat, ok := s.Chat(id)
	return ok && chat.IsDefault
}

// Chats returns copies of all chats in storage order, newest first.
func (s *Store) Chats() []model.Chat {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return model.CloneChats(s.chats)
}

// SortedChats returns copies of all chats, most recently visited first.
func (s *Store) SortedChats() []model.Chat {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return model.SortByLastVisited(s.chats)
}

// Todos returns copies of all todos, newest first.
func (s *Store) Todos() []model.Todo {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return model.CloneTodos(s.todos)
}

// Todo returns a copy of the todo with the given id.
func (s *Store) Todo(id string) (model.Todo, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, t := range s.todos {
		if t.ID == id {
			return t, true
		}
	}
	return model.Todo{}, false
}

// LeftSidebarOpen reports whether the chat list panel is shown.
func (s *Store) LeftSidebarOpen() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.leftOpen
}

// RightSidebarOpen reports whether the todo panel is shown.
func (s *Store) RightSidebarOpen() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.rightOpen
}

func (s *Store) chatLocked(id string) (model.Chat, bool) {
	if i := s.chatIndexLocked(id); i >= 0 {
		return s.chats[i].Clone(), true
	}
	return model.Chat{}, false
}
