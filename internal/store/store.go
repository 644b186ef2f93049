// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package store

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/jeranaias/chatdesk/internal/model"
	"github.com/jeranaias/chatdesk/internal/storage"
	"github.com/jeranaias/chatdesk/internal/util"
)

// Seeded chats.
const (
	DefaultChatID = "default-chat"
	TodoChatID    = "todo-chat"
	TodoChatName  = "To-Do Chat"
)

// MobileBreakpoint is the widest viewport, in columns or pixels, treated as
// small. Both panels start closed at or below it.
const MobileBreakpoint = 768

// InterruptedText replaces placeholders that were still pending when the
// previous process exited.
const InterruptedText = "Error: Request was interrupted. Please try again."

var (
	// ErrEmptyName is returned when a chat name is blank after trimming.
	ErrEmptyName = errors.New("chat name cannot be empty")

	// ErrEmptyContent is returned when todo content is blank after trimming.
	ErrEmptyContent = errors.New("todo content cannot be empty")

	// ErrProtectedChat is returned when renaming or deleting the to-do chat.
	ErrProtectedChat = errors.New("the to-do chat cannot be renamed or deleted")
)

// Persister loads and saves the persisted subset of state.
type Persister interface {
	Load(ctx context.Context) (storage.Snapshot, bool, error)
	Save(ctx context.Context, snap storage.Snapshot) error
}

// =============================================================================
// STATE
// =============================================================================

// State is a deep copy of the store contents.
type State struct {
	Chats            []model.Chat `json:"chats"`
	Todos            []model.Todo `json:"todos"`
	ActiveChatID     string       `json:"activeChat,omitempty"`
	LeftSidebarOpen  bool         `json:"leftSidebarOpen"`
	RightSidebarOpen bool         `json:"rightSidebarOpen"`

	// Revision counts committed mutations since the store was created.
	Revision uint64 `json:"-"`
}

// ActiveChat returns the active chat from the copy.
func (s State) ActiveChat() (model.Chat, bool) {
	for _, c := range s.Chats {
		if c.ID == s.ActiveChatID {
			return c, true
		}
	}
	return model.Chat{}, false
}

// SortedChats returns the chats most recently visited first.
func (s State) SortedChats() []model.Chat {
	return model.SortByLastVisited(s.Chats)
}

// =============================================================================
// STORE
// =============================================================================

// Store holds application state. The zero value is not usable; call New.
type Store struct {
	mu        sync.RWMutex
	chats     []model.Chat
	todos     []model.Todo
	activeID  string
	leftOpen  bool
	rightOpen bool
	hydrated  bool
	revision  uint64

	persister Persister
	saveMu    sync.Mutex
	savedRev  uint64

	subMu   sync.Mutex
	subs    map[int]func(State)
	nextSub int

	logger *zap.Logger
	now    func() time.Time
	newID  func() string
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the logger used for persistence failures.
func WithLogger(logger *zap.Logger) Option {
	return func(s *Store) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithClock overrides time.Now for timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

// WithIDGenerator overrides model.NewID for generated ids.
func WithIDGenerator(fn func() string) Option {
	return func(s *Store) {
		if fn != nil {
			s.newID = fn
		}
	}
}

// New creates an empty store. persister may be nil for an in-memory store.
// Both panels start open.
func New(persister Persister, opts ...Option) *Store {
	s := &Store{
		chats:     make([]model.Chat, 0),
		todos:     make([]model.Todo, 0),
		leftOpen:  true,
		rightOpen: true,
		persister: persister,
		subs:      make(map[int]func(State)),
		logger:    zap.NewNop(),
		now:       time.Now,
		newID:     model.NewID,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// =============================================================================
// LIFECYCLE
// =============================================================================

// Initialize rehydrates persisted state once and seeds the two default chats
// when none exist. Calling it again is a no-op apart from re-selecting an
// active chat if none is set.
func (s *Store) Initialize(ctx context.Context) error {
	var (
		snap  storage.Snapshot
		found bool
	)
	s.mu.RLock()
	needLoad := !s.hydrated && s.persister != nil
	s.mu.RUnlock()

	if needLoad {
		var err error
		snap, found, err = s.persister.Load(ctx)
		if err != nil {
			return fmt.Errorf("failed to load state: %w", err)
		}
	}

	s.commit(true, func() bool {
		changed := false
		if !s.hydrated {
			s.hydrated = true
			if found && len(s.chats) == 0 && len(s.todos) == 0 {
				s.chats = snap.Chats
				s.todos = snap.Todos
				changed = s.interruptPendingLocked()
			}
		}

		if len(s.chats) == 0 {
			now := s.now()
			s.chats = []model.Chat{
				{ID: DefaultChatID, Name: model.DefaultChatName, Messages: []model.Message{}, CreatedAt: now, LastVisited: now},
				{ID: TodoChatID, Name: TodoChatName, Messages: []model.Message{}, CreatedAt: now, LastVisited: now, IsDefault: true},
			}
			s.activeID = DefaultChatID
			return true
		}

		// The active selection is not persisted.
		if s.chatIndexLocked(s.activeID) < 0 {
			s.activeID = s.chats[0].ID
			s.chats[0].LastVisited = s.now()
			changed = true
		}
		return changed
	})
	return nil
}

// interruptPendingLocked fails placeholders left pending by a previous run;
// their requests can no longer resolve.
func (s *Store) interruptPendingLocked() bool {
	changed := false
	for i := range s.chats {
		for j := range s.chats[i].Messages {
			msg := &s.chats[i].Messages[j]
			if msg.IsPending() {
				msg.Content = InterruptedText
				msg.Status = model.StatusFailed
				changed = true
			}
		}
	}
	if changed {
		s.logger.Info("marked interrupted replies as failed")
	}
	return changed
}

// =============================================================================
// CHAT OPERATIONS
// =============================================================================

// SetActiveChat selects a chat and stamps its LastVisited. Unknown ids are
// ignored.
func (s *Store) SetActiveChat(id string) {
	s.commit(true, func() bool {
		i := s.chatIndexLocked(id)
		if i < 0 {
			return false
		}
		s.activeID = id
		s.chats[i].LastVisited = s.now()
		return true
	})
}

// CreateChat adds an empty chat named "New Chat" as the newest chat and makes
// it active.
func (s *Store) CreateChat() model.Chat {
	var created model.Chat
	s.commit(true, func() bool {
		now := s.now()
		created = model.NewChat(model.DefaultChatName)
		created.ID = s.uniqueChatIDLocked()
		created.CreatedAt = now
		created.LastVisited = now
		s.chats = append([]model.Chat{created}, s.chats...)
		s.activeID = created.ID
		return true
	})
	return created.Clone()
}

// DeleteChat removes a chat. If it was active, the first remaining chat
// becomes active, or no chat when none remain. Unknown ids are ignored.
func (s *Store) DeleteChat(id string) error {
	var err error
	s.commit(true, func() bool {
		i := s.chatIndexLocked(id)
		if i < 0 {
			return false
		}
		if s.chats[i].IsDefault {
			err = ErrProtectedChat
			return false
		}
		s.chats = append(s.chats[:i], s.chats[i+1:]...)
		if s.activeID == id {
			s.activeID = ""
			if len(s.chats) > 0 {
				s.activeID = s.chats[0].ID
			}
		}
		return true
	})
	return err
}

// RenameChat replaces a chat name with the trimmed name. Unknown ids are
// ignored.
func (s *Store) RenameChat(id, name string) error {
	name, ok := util.CleanInput(name)
	if !ok {
		return ErrEmptyName
	}
	var err error
	s.commit(true, func() bool {
		i := s.chatIndexLocked(id)
		if i < 0 {
			return false
		}
		if s.chats[i].IsDefault {
			err = ErrProtectedChat
			return false
		}
		if s.chats[i].Name == name {
			return false
		}
		s.chats[i].Name = name
		return true
	})
	return err
}

// =============================================================================
// MESSAGE OPERATIONS
// =============================================================================

// AddMessage appends msg to a chat and stamps the chat's LastVisited.
// A zero ID, CreatedAt, or Status is filled in; callers pre-allocate an ID
// only when they need to rewrite the message later. It returns the stored
// message, or false when the chat is unknown or the ID is already used in
// that chat.
func (s *Store) AddMessage(chatID string, msg model.Message) (model.Message, bool) {
	added := false
	s.commit(true, func() bool {
		i := s.chatIndexLocked(chatID)
		if i < 0 {
			return false
		}
		if msg.ID == "" {
			msg.ID = s.newID()
		} else if s.chats[i].MessageIndex(msg.ID) >= 0 {
			s.logger.Warn("duplicate message id rejected",
				zap.String("chat", chatID), zap.String("message", msg.ID))
			return false
		}
		now := s.now()
		if msg.CreatedAt.IsZero() {
			msg.CreatedAt = now
		}
		if msg.Status == "" {
			msg.Status = model.StatusResolved
		}
		s.chats[i].Append(msg)
		s.chats[i].LastVisited = now
		added = true
		return true
	})
	if !added {
		return model.Message{}, false
	}
	return msg, true
}

// UpdateMessage performs the single permitted rewrite of a pending message,
// replacing its content and moving it to a final status. ID, role, and
// CreatedAt are unchanged. It reports false when the message is unknown, is
// no longer pending, or status is not final.
func (s *Store) UpdateMessage(chatID, msgID, content string, status model.MessageStatus) bool {
	if !status.IsFinal() {
		return false
	}
	return s.commit(true, func() bool {
		i := s.chatIndexLocked(chatID)
		if i < 0 {
			return false
		}
		j := s.chats[i].MessageIndex(msgID)
		if j < 0 || !s.chats[i].Messages[j].IsPending() {
			return false
		}
		s.chats[i].Messages[j].Content = content
		s.chats[i].Messages[j].Status = status
		return true
	})
}

// =============================================================================
// TODO OPERATIONS
// =============================================================================

// AddTodo adds an open todo with the trimmed content as the newest item.
func (s *Store) AddTodo(content string) (model.Todo, error) {
	content, ok := util.CleanInput(content)
	if !ok {
		return model.Todo{}, ErrEmptyContent
	}
	var todo model.Todo
	s.commit(true, func() bool {
		todo = model.NewTodo(content)
		todo.ID = s.newID()
		todo.CreatedAt = s.now()
		s.todos = append([]model.Todo{todo}, s.todos...)
		return true
	})
	return todo, nil
}

// ToggleTodo flips a todo's Completed flag. Unknown ids are ignored.
func (s *Store) ToggleTodo(id string) {
	s.commit(true, func() bool {
		for i := range s.todos {
			if s.todos[i].ID == id {
				s.todos[i].Completed = !s.todos[i].Completed
				return true
			}
		}
		return false
	})
}

// DeleteTodo removes a todo. Unknown ids are ignored.
func (s *Store) DeleteTodo(id string) {
	s.commit(true, func() bool {
		for i := range s.todos {
			if s.todos[i].ID == id {
				s.todos = append(s.todos[:i], s.todos[i+1:]...)
				return true
			}
		}
		return false
	})
}

// =============================================================================
// PANEL VISIBILITY
// =============================================================================

// SetLeftSidebarOpen shows or hides the chat list panel.
func (s *Store) SetLeftSidebarOpen(open bool) {
	s.commit(false, func() bool {
		if s.leftOpen == open {
			return false
		}
		s.leftOpen = open
		return true
	})
}

// SetRightSidebarOpen shows or hides the todo panel.
func (s *Store) SetRightSidebarOpen(open bool) {
	s.commit(false, func() bool {
		if s.rightOpen == open {
			return false
		}
		s.rightOpen = open
		return true
	})
}

// AdjustForViewport closes both panels when width is at or below
// MobileBreakpoint. Non-positive widths are unknown and ignored.
func (s *Store) AdjustForViewport(width int) {
	if width <= 0 || width > MobileBreakpoint {
		return
	}
	s.SetLeftSidebarOpen(false)
	s.SetRightSidebarOpen(false)
}

// =============================================================================
// HELPERS
// =============================================================================

func (s *Store) chatIndexLocked(id string) int {
	if id == "" {
		return -1
	}
	for i := range s.chats {
		if s.chats[i].ID == id {
			return i
		}
	}
	return -1
}

func (s *Store) uniqueChatIDLocked() string {
	for {
		id := s.newID()
		if s.chatIndexLocked(id) < 0 {
			return id
		}
	}
}
