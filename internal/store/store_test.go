// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package store

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeranaias/chatdesk/internal/model"
	"github.com/jeranaias/chatdesk/internal/storage"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

// tickClock returns a clock that advances one second per call.
func tickClock() func() time.Time {
	var mu sync.Mutex
	t := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		t = t.Add(time.Second)
		return t
	}
}

func seqIDs() func() string {
	var mu sync.Mutex
	n := 0
	return func() string {
		mu.Lock()
		defer mu.Unlock()
		n++
		return fmt.Sprintf("id-%d", n)
	}
}

type recordingPersister struct {
	mu    sync.Mutex
	saved []storage.Snapshot
	load  storage.Snapshot
	found bool
	err   error
}

func (p *recordingPersister) Load(context.Context) (storage.Snapshot, bool, error) {
	return p.load, p.found, nil
}

func (p *recordingPersister) Save(_ context.Context, snap storage.Snapshot) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.saved = append(p.saved, snap)
	return nil
}

func (p *recordingPersister) saves() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.saved)
}

func (p *recordingPersister) last() storage.Snapshot {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.saved[len(p.saved)-1]
}

func newTestStore(t *testing.T, p Persister) *Store {
	t.Helper()
	s := New(p, WithClock(tickClock()), WithIDGenerator(seqIDs()))
	require.NoError(t, s.Initialize(context.Background()))
	return s
}

// =============================================================================
// INITIALIZE TESTS
// =============================================================================

func TestInitialize_SeedsDefaultChats(t *testing.T) {
	s := newTestStore(t, nil)

	chats := s.Chats()
	require.Len(t, chats, 2)

	assert.Equal(t, DefaultChatID, chats[0].ID)
	assert.Equal(t, "New Chat", chats[0].Name)
	assert.False(t, chats[0].IsDefault)

	assert.Equal(t, TodoChatID, chats[1].ID)
	assert.Equal(t, "To-Do Chat", chats[1].Name)
	assert.True(t, chats[1].IsDefault)

	assert.Equal(t, DefaultChatID, s.ActiveChatID())
}

func TestInitialize_Idempotent(t *testing.T) {
	s := newTestStore(t, nil)
	require.NoError(t, s.Initialize(context.Background()))
	require.NoError(t, s.Initialize(context.Background()))
	assert.Len(t, s.Chats(), 2)
}

func TestInitialize_RehydratesWithoutSeeding(t *testing.T) {
	at := time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC)
	p := &recordingPersister{
		found: true,
		load: storage.Snapshot{
			Chats: []model.Chat{
				{ID: "c1", Name: "Trip", Messages: []model.Message{}, CreatedAt: at, LastVisited: at},
				{ID: TodoChatID, Name: TodoChatName, Messages: []model.Message{}, CreatedAt: at, LastVisited: at, IsDefault: true},
			},
			Todos: []model.Todo{{ID: "t1", Content: "Pack", CreatedAt: at}},
		},
	}

	s := newTestStore(t, p)

	chats := s.Chats()
	require.Len(t, chats, 2)
	assert.Equal(t, "c1", chats[0].ID)
	assert.Equal(t, "c1", s.ActiveChatID(), "first chat becomes active after rehydration")
	assert.True(t, chats[0].LastVisited.After(at), "selecting the first chat stamps its visit")
	assert.True(t, chats[1].LastVisited.Equal(at), "other chats keep their visit time")
	assert.Len(t, s.Todos(), 1)
	assert.GreaterOrEqual(t, p.saves(), 1, "the new visit time is persisted")
}

func TestInitialize_FailsInterruptedPlaceholders(t *testing.T) {
	at := time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC)
	p := &recordingPersister{
		found: true,
		load: storage.Snapshot{
			Chats: []model.Chat{{
				ID: "c1", Name: "Chat", CreatedAt: at, LastVisited: at,
				Messages: []model.Message{
					{ID: "u", Role: model.RoleUser, Content: "Hi", CreatedAt: at, Status: model.StatusResolved},
					{ID: "p", Role: model.RoleAssistant, Content: model.PlaceholderText, CreatedAt: at, Status: model.StatusPending},
				},
			}},
		},
	}

	s := newTestStore(t, p)

	chat, ok := s.Chat("c1")
	require.True(t, ok)
	msg := chat.Messages[1]
	assert.Equal(t, model.StatusFailed, msg.Status)
	assert.Equal(t, InterruptedText, msg.Content)
	assert.GreaterOrEqual(t, p.saves(), 1, "repair is persisted")
}

type failingLoader struct{ recordingPersister }

func (f *failingLoader) Load(context.Context) (storage.Snapshot, bool, error) {
	return storage.Snapshot{}, false, errors.New("disk on fire")
}

func TestInitialize_LoadError(t *testing.T) {
	s := New(&failingLoader{})
	err := s.Initialize(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk on fire")
	assert.Empty(t, s.Chats())
}

// =============================================================================
// CHAT OPERATION TESTS
// =============================================================================

func TestSetActiveChat(t *testing.T) {
	s := newTestStore(t, nil)
	before, _ := s.Chat(TodoChatID)

	s.SetActiveChat(TodoChatID)

	assert.Equal(t, TodoChatID, s.ActiveChatID())
	after, _ := s.Chat(TodoChatID)
	assert.True(t, after.LastVisited.After(before.LastVisited))

	s.SetActiveChat("nope")
	assert.Equal(t, TodoChatID, s.ActiveChatID(), "unknown id is ignored")
}

func TestCreateChat(t *testing.T) {
	s := newTestStore(t, nil)
	created := s.CreateChat()

	assert.Equal(t, model.DefaultChatName, created.Name)
	assert.Empty(t, created.Messages)
	assert.Equal(t, created.CreatedAt, created.LastVisited)
	assert.Equal(t, created.ID, s.ActiveChatID())

	chats := s.Chats()
	require.Len(t, chats, 3)
	assert.Equal(t, created.ID, chats[0].ID, "new chat is inserted first")

	second := s.CreateChat()
	assert.Equal(t, created.Name, second.Name, "duplicate names are allowed")
	assert.NotEqual(t, created.ID, second.ID)
}

func TestDeleteChat_ActiveFallsBackToFirst(t *testing.T) {
	s := newTestStore(t, nil)
	a := s.CreateChat()
	b := s.CreateChat()
	// Order is now [b, a, default-chat, todo-chat].
	s.SetActiveChat(a.ID)

	require.NoError(t, s.DeleteChat(a.ID))

	chats := s.Chats()
	require.Len(t, chats, 3)
	assert.Equal(t, b.ID, chats[0].ID)
	assert.Equal(t, chats[0].ID, s.ActiveChatID())
}

func TestDeleteChat_InactiveKeepsSelection(t *testing.T) {
	s := newTestStore(t, nil)
	a := s.CreateChat()
	s.SetActiveChat(DefaultChatID)

	require.NoError(t, s.DeleteChat(a.ID))
	assert.Equal(t, DefaultChatID, s.ActiveChatID())
}

func TestDeleteChat_LastChatClearsActive(t *testing.T) {
	s := New(nil)
	s.hydrated = true
	s.chats = []model.Chat{{ID: "only", Messages: []model.Message{}}}
	s.activeID = "only"

	require.NoError(t, s.DeleteChat("only"))
	assert.Empty(t, s.Chats())
	assert.Equal(t, "", s.ActiveChatID())
	_, ok := s.ActiveChat()
	assert.False(t, ok)
}

func TestDeleteChat_ProtectsTodoChat(t *testing.T) {
	s := newTestStore(t, nil)
	err := s.DeleteChat(TodoChatID)
	assert.ErrorIs(t, err, ErrProtectedChat)
	assert.Len(t, s.Chats(), 2)

	assert.NoError(t, s.DeleteChat("missing"), "unknown id is a no-op")
}

func TestRenameChat(t *testing.T) {
	s := newTestStore(t, nil)

	require.NoError(t, s.RenameChat(DefaultChatID, "  Groceries  "))
	chat, _ := s.Chat(DefaultChatID)
	assert.Equal(t, "Groceries", chat.Name)

	assert.ErrorIs(t, s.RenameChat(DefaultChatID, "   "), ErrEmptyName)
	chat, _ = s.Chat(DefaultChatID)
	assert.Equal(t, "Groceries", chat.Name, "blank rename leaves name unchanged")

	assert.ErrorIs(t, s.RenameChat(TodoChatID, "Chores"), ErrProtectedChat)
	assert.NoError(t, s.RenameChat("missing", "x"))
}

// =============================================================================
// MESSAGE OPERATION TESTS
// =============================================================================

func TestAddMessage_FillsDefaults(t *testing.T) {
	s := newTestStore(t, nil)
	before, _ := s.Chat(DefaultChatID)

	msg, ok := s.AddMessage(DefaultChatID, model.Message{Role: model.RoleUser, Content: "Hello"})
	require.True(t, ok)
	assert.NotEmpty(t, msg.ID)
	assert.False(t, msg.CreatedAt.IsZero())
	assert.Equal(t, model.StatusResolved, msg.Status)

	after, _ := s.Chat(DefaultChatID)
	require.Len(t, after.Messages, 1)
	assert.Equal(t, msg, after.Messages[0])
	assert.True(t, after.LastVisited.After(before.LastVisited))
}

func TestAddMessage_KeepsSuppliedIdentity(t *testing.T) {
	s := newTestStore(t, nil)
	at := time.Date(2024, 12, 24, 0, 0, 0, 0, time.UTC)

	msg, ok := s.AddMessage(DefaultChatID, model.Message{
		ID: "reserved", Role: model.RoleAssistant, Content: model.PlaceholderText,
		CreatedAt: at, Status: model.StatusPending,
	})
	require.True(t, ok)
	assert.Equal(t, "reserved", msg.ID)
	assert.Equal(t, at, msg.CreatedAt)
	assert.Equal(t, model.StatusPending, msg.Status)

	_, ok = s.AddMessage(DefaultChatID, model.Message{ID: "reserved", Role: model.RoleUser, Content: "dup"})
	assert.False(t, ok, "duplicate id within a chat is rejected")
}

func TestAddMessage_UnknownChat(t *testing.T) {
	p := &recordingPersister{}
	s := newTestStore(t, p)
	saves := p.saves()

	_, ok := s.AddMessage("missing", model.Message{Role: model.RoleUser, Content: "x"})
	assert.False(t, ok)
	assert.Equal(t, saves, p.saves(), "no-op does not persist")
}

func TestUpdateMessage_SingleRewrite(t *testing.T) {
	s := newTestStore(t, nil)
	placeholder := model.Message{ID: "p", Role: model.RoleAssistant, Content: model.PlaceholderText, Status: model.StatusPending}
	stored, ok := s.AddMessage(DefaultChatID, placeholder)
	require.True(t, ok)

	assert.False(t, s.UpdateMessage(DefaultChatID, "p", "x", model.StatusPending), "target status must be final")
	assert.True(t, s.UpdateMessage(DefaultChatID, "p", "Hi there", model.StatusResolved))
	assert.False(t, s.UpdateMessage(DefaultChatID, "p", "again", model.StatusFailed), "second rewrite is refused")
	assert.False(t, s.UpdateMessage(DefaultChatID, "missing", "x", model.StatusResolved))

	chat, _ := s.Chat(DefaultChatID)
	got := chat.Messages[0]
	assert.Equal(t, "Hi there", got.Content)
	assert.Equal(t, model.StatusResolved, got.Status)
	assert.Equal(t, stored.ID, got.ID)
	assert.Equal(t, stored.Role, got.Role)
	assert.Equal(t, stored.CreatedAt, got.CreatedAt)
}

// =============================================================================
// TODO OPERATION TESTS
// =============================================================================

func TestTodos(t *testing.T) {
	s := newTestStore(t, nil)

	first, err := s.AddTodo(" Buy milk ")
	require.NoError(t, err)
	assert.Equal(t, "Buy milk", first.Content)
	assert.False(t, first.Completed)

	second, err := s.AddTodo("Walk dog")
	require.NoError(t, err)

	todos := s.Todos()
	require.Len(t, todos, 2)
	assert.Equal(t, second.ID, todos[0].ID, "newest first")

	s.ToggleTodo(first.ID)
	got, _ := s.Todo(first.ID)
	assert.True(t, got.Completed)
	s.ToggleTodo(first.ID)
	got, _ = s.Todo(first.ID)
	assert.False(t, got.Completed)

	s.ToggleTodo("missing")
	s.DeleteTodo("missing")
	assert.Len(t, s.Todos(), 2)

	s.DeleteTodo(second.ID)
	todos = s.Todos()
	require.Len(t, todos, 1)
	assert.Equal(t, first.ID, todos[0].ID)

	_, err = s.AddTodo("  ")
	assert.ErrorIs(t, err, ErrEmptyContent)
}

// =============================================================================
// PANEL TESTS
// =============================================================================

func TestPanels(t *testing.T) {
	p := &recordingPersister{}
	s := newTestStore(t, p)
	saves := p.saves()

	assert.True(t, s.LeftSidebarOpen())
	assert.True(t, s.RightSidebarOpen())

	s.SetLeftSidebarOpen(false)
	assert.False(t, s.LeftSidebarOpen())
	assert.True(t, s.RightSidebarOpen())

	s.SetRightSidebarOpen(false)
	s.SetRightSidebarOpen(true)
	assert.True(t, s.RightSidebarOpen())

	assert.Equal(t, saves, p.saves(), "panel flags are never persisted")
}

func TestAdjustForViewport(t *testing.T) {
	tests := []struct {
		width    int
		wantOpen bool
	}{
		{0, true},
		{1280, true},
		{769, true},
		{768, false},
		{375, false},
	}
	for _, tc := range tests {
		t.Run(fmt.Sprint(tc.width), func(t *testing.T) {
			s := newTestStore(t, nil)
			s.AdjustForViewport(tc.width)
			assert.Equal(t, tc.wantOpen, s.LeftSidebarOpen())
			assert.Equal(t, tc.wantOpen, s.RightSidebarOpen())
		})
	}
}

// =============================================================================
// PERSISTENCE TESTS
// =============================================================================

func TestPersistence_EveryMutationSavesChatsAndTodos(t *testing.T) {
	p := &recordingPersister{}
	s := newTestStore(t, p)
	require.Equal(t, 1, p.saves(), "seeding persists")

	c := s.CreateChat()
	s.AddMessage(c.ID, model.Message{Role: model.RoleUser, Content: "Hello"})
	_, _ = s.AddTodo("Buy milk")
	require.Equal(t, 4, p.saves())

	last := p.last()
	require.Len(t, last.Chats, 3)
	assert.Equal(t, "Hello", last.Chats[0].Messages[0].Content)
	require.Len(t, last.Todos, 1)
}

func TestPersistence_SnapshotsAreIsolated(t *testing.T) {
	p := &recordingPersister{}
	s := newTestStore(t, p)
	c := s.CreateChat()
	saved := p.last()

	s.AddMessage(c.ID, model.Message{Role: model.RoleUser, Content: "later"})

	assert.Empty(t, saved.Chats[0].Messages, "saved snapshot must not alias live state")
}

func TestPersistence_FailureDoesNotFailMutation(t *testing.T) {
	p := &recordingPersister{err: errors.New("read-only filesystem")}
	s := newTestStore(t, p)

	c := s.CreateChat()
	_, ok := s.Chat(c.ID)
	assert.True(t, ok)
}

func TestPersistence_RoundTripThroughStateStore(t *testing.T) {
	ctx := context.Background()
	backend := storage.NewMemoryBackend()

	s := New(storage.NewStateStore(backend, ""))
	require.NoError(t, s.Initialize(ctx))
	c := s.CreateChat()
	require.NoError(t, s.RenameChat(c.ID, "Trip"))
	s.AddMessage(c.ID, model.Message{Role: model.RoleUser, Content: "Hello"})
	_, _ = s.AddTodo("Pack")
	want := s.Snapshot()

	reloaded := New(storage.NewStateStore(backend, ""))
	require.NoError(t, reloaded.Initialize(ctx))
	got := reloaded.Snapshot()

	require.Len(t, got.Chats, len(want.Chats))
	for i := range want.Chats {
		assert.Equal(t, want.Chats[i].ID, got.Chats[i].ID)
		assert.Equal(t, want.Chats[i].Name, got.Chats[i].Name)
		assert.Equal(t, want.Chats[i].IsDefault, got.Chats[i].IsDefault)
		if i == 0 {
			// Rehydration re-selects the first chat and stamps it.
			assert.False(t, got.Chats[i].LastVisited.Before(want.Chats[i].LastVisited))
		} else {
			assert.True(t, want.Chats[i].LastVisited.Equal(got.Chats[i].LastVisited))
		}
		require.Len(t, got.Chats[i].Messages, len(want.Chats[i].Messages))
	}
	assert.Equal(t, want.Todos[0].ID, got.Todos[0].ID)
}

// =============================================================================
// INVARIANT TESTS
// =============================================================================

func TestInvariant_RandomCreateDelete(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	s := newTestStore(t, nil)

	for step := 0; step < 500; step++ {
		chats := s.Chats()
		if rng.Intn(3) == 0 || len(chats) == 0 {
			s.CreateChat()
		} else {
			victim := chats[rng.Intn(len(chats))]
			err := s.DeleteChat(victim.ID)
			if victim.IsDefault {
				require.ErrorIs(t, err, ErrProtectedChat)
			} else {
				require.NoError(t, err)
			}
		}

		seen := make(map[string]bool)
		for _, c := range s.Chats() {
			require.False(t, seen[c.ID], "duplicate chat id %s at step %d", c.ID, step)
			seen[c.ID] = true
		}
		if active := s.ActiveChatID(); active != "" {
			require.True(t, seen[active], "active chat %s missing at step %d", active, step)
		}
	}
}

func TestConcurrentMutations(t *testing.T) {
	s := newTestStore(t, &recordingPersister{})

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(2)
		go func(n int) {
			defer wg.Done()
			s.AddMessage(DefaultChatID, model.Message{Role: model.RoleUser, Content: fmt.Sprint(n)})
		}(i)
		go func() {
			defer wg.Done()
			_ = s.Snapshot()
			_ = s.SortedChats()
		}()
	}
	wg.Wait()

	chat, _ := s.Chat(DefaultChatID)
	assert.Len(t, chat.Messages, 20)
}

func TestSubscribe(t *testing.T) {
	s := newTestStore(t, nil)

	var got []State
	unsubscribe := s.Subscribe(func(st State) { got = append(got, st) })

	s.CreateChat()
	s.SetLeftSidebarOpen(false)
	unsubscribe()
	s.CreateChat()

	require.Len(t, got, 2)
	assert.Len(t, got[0].Chats, 3)
	assert.False(t, got[1].LeftSidebarOpen)
	assert.Equal(t, got[0].Revision+1, got[1].Revision)
}

func TestState_SortedChats(t *testing.T) {
	s := newTestStore(t, nil)
	s.SetActiveChat(TodoChatID)

	sorted := s.Snapshot().SortedChats()
	assert.Equal(t, TodoChatID, sorted[0].ID)
	assert.Equal(t, DefaultChatID, s.Chats()[0].ID, "storage order is unchanged")
}
