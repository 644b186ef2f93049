// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/jeranaias/chatdesk/internal/config"
	"github.com/jeranaias/chatdesk/internal/model"
	"github.com/jeranaias/chatdesk/internal/store"
)

// =============================================================================
// HELPERS
// =============================================================================

const completionBody = `{"id":"c1","object":"chat.completion","model":"llama3-70b-8192",` +
	`"choices":[{"index":0,"message":{"role":"assistant","content":"Hello there!"},"finish_reason":"stop"}]}`

// groqStub serves a fixed chat completion and counts requests.
func groqStub(t *testing.T) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	calls := &atomic.Int32{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, completionBody)
	}))
	t.Cleanup(srv.Close)
	return srv, calls
}

// clearEnv keeps the developer's environment out of config loading.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"GROQ_API_KEY", "CHATDESK_GROQ_BASE_URL", "CHATDESK_STORAGE", "CHATDESK_STORAGE_PATH",
		"CHATDESK_HOST", "CHATDESK_PORT", "CHATDESK_AUTH_TOKEN", "CHATDESK_LOG_LEVEL", "CHATDESK_LOG_FORMAT",
	} {
		t.Setenv(key, "")
	}
}

// writeConfig writes a TOML config using the file backend under a temp dir.
func writeConfig(t *testing.T, baseURL string) string {
	t.Helper()
	clearEnv(t)
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	body := fmt.Sprintf(`[gateway]
api_key = "gsk_test"
base_url = %q

[storage]
backend = "file"
path = %q

[logging]
level = "error"
`, baseURL, filepath.Join(dir, "data"))
	if err := os.WriteFile(path, []byte(body), 0600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

// run executes the command tree and returns stdout.
func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	root := NewRootCommand()
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func mustRun(t *testing.T, args ...string) string {
	t.Helper()
	out, err := run(t, args...)
	if err != nil {
		t.Fatalf("%v: %v\n%s", args, err, out)
	}
	return out
}

// fakeReader feeds scripted lines to the REPL, then reports EOF.
type fakeReader struct {
	lines   []string
	history []string
}

func (f *fakeReader) Prompt(string) (string, error) {
	if len(f.lines) == 0 {
		return "", io.EOF
	}
	line := f.lines[0]
	f.lines = f.lines[1:]
	return line, nil
}

func (f *fakeReader) AppendHistory(item string) {
	f.history = append(f.history, item)
}

// newTestApp wires an App on the memory backend.
func newTestApp(t *testing.T, baseURL, apiKey string) *App {
	t.Helper()
	clearEnv(t)
	cfg := config.Default()
	cfg.Gateway.APIKey = apiKey
	cfg.Gateway.BaseURL = baseURL
	cfg.Storage.Backend = config.BackendMemory
	cfg.Logging.Level = "error"

	app, err := NewApp(context.Background(), cfg, AppOptions{})
	if err != nil {
		t.Fatalf("NewApp: %v", err)
	}
	t.Cleanup(func() { _ = app.Close() })
	return app
}

// =============================================================================
// SELECTOR TESTS
// =============================================================================

func TestSelectChat(t *testing.T) {
	chats := []model.Chat{{ID: "a", Name: "First"}, {ID: "b", Name: "Second"}}

	tests := []struct {
		ref     string
		wantID  string
		wantErr bool
	}{
		{ref: "1", wantID: "a"},
		{ref: " 2 ", wantID: "b"},
		{ref: "b", wantID: "b"},
		{ref: "0", wantErr: true},
		{ref: "3", wantErr: true},
		{ref: "missing", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.ref, func(t *testing.T) {
			got, err := selectChat(chats, tt.ref)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("selectChat(%q) = %v, want error", tt.ref, got.ID)
				}
				return
			}
			if err != nil {
				t.Fatalf("selectChat(%q) error: %v", tt.ref, err)
			}
			if got.ID != tt.wantID {
				t.Errorf("selectChat(%q) = %q, want %q", tt.ref, got.ID, tt.wantID)
			}
		})
	}
}

func TestSelectTodo(t *testing.T) {
	todos := []model.Todo{{ID: "t1", Content: "milk"}}

	if got, err := selectTodo(todos, "1"); err != nil || got.ID != "t1" {
		t.Errorf("selectTodo(1) = %v, %v", got, err)
	}
	if got, err := selectTodo(todos, "t1"); err != nil || got.ID != "t1" {
		t.Errorf("selectTodo(t1) = %v, %v", got, err)
	}
	if _, err := selectTodo(nil, "1"); err == nil {
		t.Error("selectTodo on empty list should fail")
	}
}

// =============================================================================
// REPL TESTS
// =============================================================================

func TestREPL_SendShowsReply(t *testing.T) {
	upstream, calls := groqStub(t)
	app := newTestApp(t, upstream.URL, "gsk_test")

	var out bytes.Buffer
	in := &fakeReader{lines: []string{"Hi there"}}
	if err := NewREPL(app, NewRenderer(&out, false, 0), in).Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}

	if calls.Load() != 1 {
		t.Errorf("gateway calls = %d, want 1", calls.Load())
	}
	if !strings.Contains(out.String(), "Hello there!") {
		t.Errorf("output missing reply:\n%s", out.String())
	}
	if len(in.history) != 1 || in.history[0] != "Hi there" {
		t.Errorf("history = %v", in.history)
	}

	c, _ := app.Store.Chat(store.DefaultChatID)
	if len(c.Messages) != 2 || c.Messages[1].Content != "Hello there!" {
		t.Errorf("default chat messages = %+v", c.Messages)
	}
}

func TestREPL_UnconfiguredShowsFailure(t *testing.T) {
	app := newTestApp(t, "", "")

	var out bytes.Buffer
	in := &fakeReader{lines: []string{"Hi"}}
	if err := NewREPL(app, NewRenderer(&out, false, 0), in).Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}

	text := out.String()
	if !strings.Contains(text, "GROQ_API_KEY is not set") {
		t.Errorf("welcome should warn about the missing key:\n%s", text)
	}
	if !strings.Contains(text, "Please try again.") {
		t.Errorf("output missing failure text:\n%s", text)
	}
	c, _ := app.Store.Chat(store.DefaultChatID)
	if got := c.Messages[1].EffectiveStatus(); got != model.StatusFailed {
		t.Errorf("reply status = %q, want failed", got)
	}
}

func TestREPL_TodoChatCreatesTodo(t *testing.T) {
	upstream, calls := groqStub(t)
	app := newTestApp(t, upstream.URL, "gsk_test")
	repl := NewREPL(app, NewRenderer(io.Discard, false, 0), &fakeReader{})
	ctx := context.Background()

	if err := repl.Handle(ctx, "/use "+store.TodoChatID); err != nil {
		t.Fatalf("/use: %v", err)
	}
	if err := repl.Handle(ctx, "buy milk"); err != nil {
		t.Fatalf("send: %v", err)
	}

	if calls.Load() != 0 {
		t.Errorf("gateway calls = %d, want 0 in the to-do chat", calls.Load())
	}
	todos := app.Store.Todos()
	if len(todos) != 1 || todos[0].Content != "buy milk" {
		t.Fatalf("todos = %+v", todos)
	}
}

func TestREPL_Commands(t *testing.T) {
	app := newTestApp(t, "", "")
	var out bytes.Buffer
	repl := NewREPL(app, NewRenderer(&out, false, 0), &fakeReader{})
	ctx := context.Background()

	steps := []struct {
		input   string
		wantErr bool
		check   func(t *testing.T)
	}{
		{input: "/new", check: func(t *testing.T) {
			if n := len(app.Store.Chats()); n != 3 {
				t.Errorf("chats = %d, want 3", n)
			}
		}},
		{input: "/rename Groceries", check: func(t *testing.T) {
			if c, _ := app.Store.ActiveChat(); c.Name != "Groceries" {
				t.Errorf("active name = %q", c.Name)
			}
		}},
		{input: "/rename   ", wantErr: true},
		{input: "/todo  call mom ", check: func(t *testing.T) {
			if todos := app.Store.Todos(); len(todos) != 1 || todos[0].Content != "call mom" {
				t.Errorf("todos = %+v", todos)
			}
		}},
		{input: "/todo", wantErr: true},
		{input: "/done 1", check: func(t *testing.T) {
			if !app.Store.Todos()[0].Completed {
				t.Error("todo should be completed")
			}
		}},
		{input: "/done 1", check: func(t *testing.T) {
			if app.Store.Todos()[0].Completed {
				t.Error("todo should be reopened")
			}
		}},
		{input: "/rm 1", check: func(t *testing.T) {
			if n := len(app.Store.Todos()); n != 0 {
				t.Errorf("todos = %d, want 0", n)
			}
		}},
		{input: "/delete " + store.TodoChatID, wantErr: true},
		{input: "/delete", check: func(t *testing.T) {
			if n := len(app.Store.Chats()); n != 2 {
				t.Errorf("chats = %d, want 2", n)
			}
		}},
		{input: "/use 99", wantErr: true},
		{input: "/use", wantErr: true},
		{input: "/chats"},
		{input: "/todos"},
		{input: "/help"},
		{input: "/bogus", wantErr: true},
		{input: "   "},
	}

	for _, step := range steps {
		err := repl.Handle(ctx, step.input)
		if step.wantErr && err == nil {
			t.Errorf("Handle(%q) should fail", step.input)
		}
		if !step.wantErr && err != nil {
			t.Errorf("Handle(%q) error: %v", step.input, err)
		}
		if step.check != nil {
			step.check(t)
		}
	}
}

func TestREPL_Quit(t *testing.T) {
	app := newTestApp(t, "", "")
	repl := NewREPL(app, NewRenderer(io.Discard, false, 0), &fakeReader{})

	for _, input := range []string{"/quit", "/q", "exit", "QUIT"} {
		if err := repl.Handle(context.Background(), input); err != errQuit {
			t.Errorf("Handle(%q) = %v, want errQuit", input, err)
		}
	}

	in := &fakeReader{lines: []string{"/quit", "never read"}}
	if err := NewREPL(app, NewRenderer(io.Discard, false, 0), in).Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(in.lines) != 1 {
		t.Errorf("Run should stop at /quit, %d lines left", len(in.lines))
	}
}

func TestREPL_Panels(t *testing.T) {
	app := newTestApp(t, "", "")
	var out bytes.Buffer
	repl := NewREPL(app, NewRenderer(&out, false, 0), &fakeReader{})
	ctx := context.Background()

	steps := []struct {
		input     string
		wantErr   bool
		wantLeft  bool
		wantRight bool
	}{
		{input: "/panels", wantLeft: true, wantRight: true},
		{input: "/panels right off", wantLeft: true, wantRight: false},
		{input: "/panels LEFT OFF", wantLeft: false, wantRight: false},
		{input: "/panels left on", wantLeft: true, wantRight: false},
		{input: "/panels middle on", wantErr: true, wantLeft: true},
		{input: "/panels right maybe", wantErr: true, wantLeft: true},
		{input: "/panels right", wantErr: true, wantLeft: true},
	}
	for _, step := range steps {
		err := repl.Handle(ctx, step.input)
		if step.wantErr != (err != nil) {
			t.Errorf("Handle(%q) error = %v, wantErr %v", step.input, err, step.wantErr)
		}
		if got := app.Store.LeftSidebarOpen(); got != step.wantLeft {
			t.Errorf("after %q left open = %v, want %v", step.input, got, step.wantLeft)
		}
		if got := app.Store.RightSidebarOpen(); got != step.wantRight {
			t.Errorf("after %q right open = %v, want %v", step.input, got, step.wantRight)
		}
	}
	if !strings.Contains(out.String(), "left (chats): on  right (todos): on") {
		t.Errorf("/panels should report both panels:\n%s", out.String())
	}
}

func TestREPL_NarrowTerminalClosesPanels(t *testing.T) {
	app := newTestApp(t, "", "")
	repl := NewREPL(app, NewRenderer(io.Discard, false, 0), &fakeReader{})
	repl.columns = func() int { return 60 }

	if err := repl.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if app.Store.LeftSidebarOpen() || app.Store.RightSidebarOpen() {
		t.Error("a 60 column terminal should close both panels")
	}
}

func TestREPL_WideTerminalKeepsPanels(t *testing.T) {
	app := newTestApp(t, "", "")
	repl := NewREPL(app, NewRenderer(io.Discard, false, 0), &fakeReader{})
	repl.columns = func() int { return 120 }

	if err := repl.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !app.Store.LeftSidebarOpen() || !app.Store.RightSidebarOpen() {
		t.Error("a 120 column terminal should keep both panels open")
	}
}

func TestREPL_RedrawsTodoPanelAfterChange(t *testing.T) {
	app := newTestApp(t, "", "")
	var out bytes.Buffer
	in := &fakeReader{lines: []string{"/use " + store.TodoChatID, "buy milk"}}
	if err := NewREPL(app, NewRenderer(&out, false, 0), in).Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}

	if !strings.Contains(out.String(), "1 open, 1 total") {
		t.Errorf("todo panel should be redrawn after the send:\n%s", out.String())
	}
	if strings.Count(out.String(), "1 open, 1 total") != 1 {
		t.Errorf("todo panel should be drawn once per change:\n%s", out.String())
	}
}

func TestREPL_ClosedTodoPanelIsNotRedrawn(t *testing.T) {
	app := newTestApp(t, "", "")
	var out bytes.Buffer
	in := &fakeReader{lines: []string{"/panels right off", "/use " + store.TodoChatID, "buy milk"}}
	if err := NewREPL(app, NewRenderer(&out, false, 0), in).Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}

	if strings.Contains(out.String(), "1 open, 1 total") {
		t.Errorf("closed todo panel should stay hidden:\n%s", out.String())
	}
	if len(app.Store.Todos()) != 1 {
		t.Errorf("todos = %+v", app.Store.Todos())
	}
}

// =============================================================================
// COMMAND TESTS
// =============================================================================

func TestVersionCommand(t *testing.T) {
	out := mustRun(t, "version")
	if !strings.Contains(out, "chatdesk "+Version) {
		t.Errorf("version output = %q", out)
	}
}

func TestSendCommand_PersistsAcrossRuns(t *testing.T) {
	upstream, calls := groqStub(t)
	cfgPath := writeConfig(t, upstream.URL)

	out := mustRun(t, "--config", cfgPath, "send", "Hi", "there")
	if !strings.Contains(out, "Hello there!") {
		t.Errorf("send output = %q", out)
	}
	if calls.Load() != 1 {
		t.Errorf("gateway calls = %d, want 1", calls.Load())
	}

	out = mustRun(t, "--config", cfgPath, "chats", "list")
	if !strings.Contains(out, "Hello there!") || !strings.Contains(out, "2 msgs") {
		t.Errorf("chats list should show the persisted exchange:\n%s", out)
	}
}

func TestSendCommand_TodoChat(t *testing.T) {
	upstream, calls := groqStub(t)
	cfgPath := writeConfig(t, upstream.URL)

	out := mustRun(t, "--config", cfgPath, "send", "--chat", store.TodoChatID, "water plants")
	if !strings.Contains(out, `Added "water plants" to your to-do list.`) {
		t.Errorf("send output = %q", out)
	}
	if calls.Load() != 0 {
		t.Errorf("gateway calls = %d, want 0", calls.Load())
	}

	out = mustRun(t, "--config", cfgPath, "todos")
	if !strings.Contains(out, "water plants") || !strings.Contains(out, "1 open, 1 total") {
		t.Errorf("todos output:\n%s", out)
	}
}

func TestSendCommand_GatewayFailure(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = io.WriteString(w, `{"error":{"message":"boom"}}`)
	}))
	t.Cleanup(upstream.Close)
	cfgPath := writeConfig(t, upstream.URL)

	out, err := run(t, "--config", cfgPath, "send", "Hi")
	if err == nil {
		t.Fatal("send should fail when the gateway fails")
	}
	if !strings.Contains(out, "Please try again.") {
		t.Errorf("failure text should still be printed:\n%s", out)
	}
}

func TestChatsCommands(t *testing.T) {
	cfgPath := writeConfig(t, "http://127.0.0.1:1")

	mustRun(t, "--config", cfgPath, "chats", "new")
	out := mustRun(t, "--config", cfgPath, "chats", "list")
	if strings.Count(out, "msgs") != 3 {
		t.Fatalf("expected three chats:\n%s", out)
	}

	mustRun(t, "--config", cfgPath, "chats", "rename", store.DefaultChatID, "Work", "notes")
	out = mustRun(t, "--config", cfgPath, "chats")
	if !strings.Contains(out, "Work notes") {
		t.Errorf("rename not persisted:\n%s", out)
	}

	if _, err := run(t, "--config", cfgPath, "chats", "delete", store.TodoChatID); err == nil {
		t.Error("deleting the to-do chat should fail")
	}
	if _, err := run(t, "--config", cfgPath, "chats", "rename", "1", "  "); err == nil {
		t.Error("blank rename should fail")
	}

	mustRun(t, "--config", cfgPath, "chats", "rm", store.DefaultChatID)
	out = mustRun(t, "--config", cfgPath, "chats")
	if strings.Contains(out, "Work notes") {
		t.Errorf("deleted chat still listed:\n%s", out)
	}
}

func TestTodosCommands(t *testing.T) {
	cfgPath := writeConfig(t, "http://127.0.0.1:1")

	mustRun(t, "--config", cfgPath, "todos", "add", "first")
	mustRun(t, "--config", cfgPath, "todos", "add", "second")

	// Newest first: "second" is number 1.
	mustRun(t, "--config", cfgPath, "todos", "toggle", "1")
	out := mustRun(t, "--config", cfgPath, "todos", "list")
	if !strings.Contains(out, "1 open, 2 total") {
		t.Errorf("todos after toggle:\n%s", out)
	}
	if newest, oldest := strings.Index(out, "second"), strings.Index(out, "first"); newest > oldest {
		t.Errorf("newest todo should be listed first:\n%s", out)
	}

	mustRun(t, "--config", cfgPath, "todos", "delete", "2")
	out = mustRun(t, "--config", cfgPath, "todos")
	if strings.Contains(out, "first") || !strings.Contains(out, "0 open, 1 total") {
		t.Errorf("todos after delete:\n%s", out)
	}

	if _, err := run(t, "--config", cfgPath, "todos", "add", "   "); err == nil {
		t.Error("blank todo should fail")
	}
	if _, err := run(t, "--config", cfgPath, "todos", "toggle", "9"); err == nil {
		t.Error("out of range toggle should fail")
	}
}

func TestConfigCommands(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "config.toml")

	out := mustRun(t, "--config", path, "config", "init")
	if !strings.Contains(out, path) {
		t.Errorf("init output = %q", out)
	}
	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("config not written: %v", err)
	}
	if perm := info.Mode().Perm(); perm != 0600 {
		t.Errorf("config permissions = %o, want 600", perm)
	}

	if _, err := run(t, "--config", path, "config", "init"); err == nil {
		t.Error("init should refuse to overwrite without --force")
	}
	mustRun(t, "--config", path, "config", "init", "--force")

	t.Setenv("GROQ_API_KEY", "gsk_secret_value")
	out = mustRun(t, "--config", path, "config", "show")
	if strings.Contains(out, "gsk_secret_value") {
		t.Errorf("config show leaked the API key:\n%s", out)
	}
	if !strings.Contains(out, "# loaded from "+path) || !strings.Contains(out, "REDACTED") {
		t.Errorf("config show output:\n%s", out)
	}
}

func TestExportCommand(t *testing.T) {
	upstream, _ := groqStub(t)
	cfgPath := writeConfig(t, upstream.URL)
	outDir := t.TempDir()

	if _, err := run(t, "--config", cfgPath, "export", "--out", outDir); err == nil {
		t.Error("exporting an empty chat should fail")
	}

	mustRun(t, "--config", cfgPath, "send", "Hi")
	mustRun(t, "--config", cfgPath, "export", store.DefaultChatID, "--format", "json", "--out", outDir)
	mustRun(t, "--config", cfgPath, "todos", "add", "pack bags")
	mustRun(t, "--config", cfgPath, "export", "--todos", "--out", outDir)

	matches, err := filepath.Glob(filepath.Join(outDir, "chat_New_Chat_*.json"))
	if err != nil || len(matches) != 1 {
		t.Fatalf("json export files = %v, %v", matches, err)
	}
	data, err := os.ReadFile(matches[0])
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), "Hello there!") {
		t.Errorf("json export missing reply:\n%s", data)
	}

	todos, err := os.ReadFile(filepath.Join(outDir, "todos.md"))
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(todos), "- [ ] pack bags") {
		t.Errorf("todo export:\n%s", todos)
	}

	if _, err := run(t, "--config", cfgPath, "export", "1", "--format", "html", "--out", outDir); err == nil {
		t.Error("unsupported format should fail")
	}
}

func TestResetCommand(t *testing.T) {
	cfgPath := writeConfig(t, "http://127.0.0.1:1")
	mustRun(t, "--config", cfgPath, "todos", "add", "pack bags")

	if _, err := run(t, "--config", cfgPath, "reset"); err == nil {
		t.Error("reset without --yes should fail")
	}
	if out := mustRun(t, "--config", cfgPath, "todos"); !strings.Contains(out, "pack bags") {
		t.Errorf("refused reset should keep todos:\n%s", out)
	}

	out := mustRun(t, "--config", cfgPath, "reset", "--yes")
	if !strings.Contains(out, "Cleared saved chats and todos") {
		t.Errorf("reset output = %q", out)
	}
	if out := mustRun(t, "--config", cfgPath, "todos"); strings.Contains(out, "pack bags") {
		t.Errorf("todos after reset:\n%s", out)
	}
}
