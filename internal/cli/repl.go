// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/peterh/liner"
	"go.uber.org/zap"

	"github.com/jeranaias/chatdesk/internal/config"
	"github.com/jeranaias/chatdesk/internal/store"
)

// =============================================================================
// INPUT HISTORY
// =============================================================================

// lineReader is the line editor used by the REPL.
type lineReader interface {
	Prompt(prompt string) (string, error)
	AppendHistory(item string)
}

// HistoryInput provides line editing with history persisted across runs.
type HistoryInput struct {
	line        *liner.State
	historyFile string
}

// NewHistoryInput creates a liner-backed input reading history from
// ~/.chatdesk/history.
func NewHistoryInput() *HistoryInput {
	line := liner.NewLiner()
	line.SetCtrlCAborts(true)

	dir, err := config.ConfigDir()
	if err != nil {
		dir = os.TempDir()
	}
	h := &HistoryInput{line: line, historyFile: filepath.Join(dir, "history")}

	if f, err := os.Open(h.historyFile); err == nil {
		_, _ = h.line.ReadHistory(f)
		f.Close()
	}
	return h
}

// Prompt reads one line.
func (h *HistoryInput) Prompt(prompt string) (string, error) {
	return h.line.Prompt(prompt)
}

// AppendHistory records a line for arrow-key recall.
func (h *HistoryInput) AppendHistory(item string) {
	h.line.AppendHistory(item)
}

// Close saves history with 0600 permissions and restores the terminal.
func (h *HistoryInput) Close() error {
	defer h.line.Close()
	if err := config.EnsureConfigDir(); err != nil {
		return err
	}
	f, err := os.OpenFile(h.historyFile, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = h.line.WriteHistory(f)
	return err
}

// =============================================================================
// REPL
// =============================================================================

// errQuit ends the REPL loop.
var errQuit = errors.New("quit")

// pixelsPerColumn converts terminal columns to the viewport width used by
// the panel breakpoint.
const pixelsPerColumn = 8

// REPL is the interactive chat loop.
type REPL struct {
	app *App
	out *Renderer
	in  lineReader

	// columns reports the terminal width; 0 means unknown.
	columns func() int

	todosChanged atomic.Bool
}

// NewREPL creates a REPL reading from in and writing through out.
func NewREPL(app *App, out *Renderer, in lineReader) *REPL {
	return &REPL{app: app, out: out, in: in, columns: stdoutColumns}
}

func stdoutColumns() int {
	if !IsStdoutTTY() {
		return 0
	}
	return GetTerminalWidth()
}

// Run reads lines until /quit, EOF, Ctrl+C, or ctx cancellation.
func (p *REPL) Run(ctx context.Context) error {
	defer p.watch()()
	p.adjustPanels()
	p.printWelcome()

	for {
		if ctx.Err() != nil {
			return nil
		}

		input, err := p.in.Prompt(p.prompt())
		if err != nil {
			// Ctrl+C, Ctrl+D, and closed stdin all end the session.
			if errors.Is(err, liner.ErrPromptAborted) || errors.Is(err, io.EOF) {
				p.out.Println()
				return nil
			}
			return fmt.Errorf("failed to read input: %w", err)
		}

		if strings.TrimSpace(input) != "" {
			p.in.AppendHistory(input)
		}

		if err := p.Handle(ctx, input); err != nil {
			if errors.Is(err, errQuit) {
				return nil
			}
			p.out.Error(err)
		}
		p.drawPanels()
	}
}

// watch subscribes to the store and flags todo changes for drawPanels.
func (p *REPL) watch() (unsubscribe func()) {
	var mu sync.Mutex
	last := p.app.Store.Todos()
	return p.app.Store.Subscribe(func(state store.State) {
		mu.Lock()
		defer mu.Unlock()
		if !slices.Equal(last, state.Todos) {
			last = state.Todos
			p.todosChanged.Store(true)
		}
	})
}

// adjustPanels closes both panels when the terminal is mobile-narrow.
func (p *REPL) adjustPanels() {
	if p.columns == nil {
		return
	}
	p.app.Store.AdjustForViewport(p.columns() * pixelsPerColumn)
}

// drawPanels shows the todo list after it changed while the todo panel is
// open.
func (p *REPL) drawPanels() {
	if !p.todosChanged.Swap(false) || !p.app.Store.RightSidebarOpen() {
		return
	}
	p.out.Println(DimStyle.Render(RenderSeparator(40)))
	p.out.TodoList(p.app.Store.Todos())
}

func (p *REPL) prompt() string {
	name := "no chat"
	if c, ok := p.app.Store.ActiveChat(); ok {
		name = c.Name
	}
	return "[" + name + "] > "
}

// Handle processes one input line. It returns errQuit for /quit.
func (p *REPL) Handle(ctx context.Context, input string) error {
	input = strings.TrimSpace(input)
	switch {
	case input == "":
		return nil
	case strings.EqualFold(input, "exit"), strings.EqualFold(input, "quit"):
		return errQuit
	case strings.HasPrefix(input, "/"):
		return p.command(ctx, input)
	default:
		return p.send(ctx, input)
	}
}

// send runs the workflow and prints the reply, showing a thinking line while
// the placeholder is pending.
func (p *REPL) send(ctx context.Context, text string) error {
	p.adjustPanels()
	res, done := p.app.Workflow.SendAsync(ctx, text)
	if res.Skipped {
		return errors.New("no active chat; create one with /new")
	}
	if res.Todo != nil {
		p.out.Message(res.Reply)
		return nil
	}
	if res.Err != nil && done == nil {
		return res.Err
	}

	if done != nil {
		p.out.Println(DimStyle.Render("thinking..."))
		select {
		case final, ok := <-done:
			if ok {
				res = final
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	p.out.Message(res.Reply)
	if res.Err != nil {
		p.app.Logger.Debug("reply failed", zap.Error(res.Err))
	}
	return nil
}

// =============================================================================
// SLASH COMMANDS
// =============================================================================

func (p *REPL) command(ctx context.Context, input string) error {
	name, arg, _ := strings.Cut(input, " ")
	arg = strings.TrimSpace(arg)
	st := p.app.Store

	switch strings.ToLower(name) {
	case "/quit", "/exit", "/q":
		return errQuit

	case "/help", "/?":
		p.printHelp()

	case "/chats":
		p.out.ChatList(st.SortedChats(), st.ActiveChatID())

	case "/new":
		c := st.CreateChat()
		p.out.Success("Created %q", c.Name)

	case "/use":
		if arg == "" {
			return errors.New("usage: /use <n|id>")
		}
		c, err := selectChat(st.SortedChats(), arg)
		if err != nil {
			return err
		}
		st.SetActiveChat(c.ID)
		if c, ok := st.Chat(c.ID); ok {
			p.out.Transcript(c)
		}
		if st.IsTodoChat(c.ID) {
			p.out.Println(DimStyle.Render("Messages here become todos."))
		}

	case "/panels":
		return p.panels(arg)

	case "/show":
		c, ok := st.ActiveChat()
		if !ok {
			return errors.New("no active chat")
		}
		p.out.Transcript(c)

	case "/rename":
		c, ok := st.ActiveChat()
		if !ok {
			return errors.New("no active chat")
		}
		if err := st.RenameChat(c.ID, arg); err != nil {
			return err
		}
		p.out.Success("Renamed to %q", strings.TrimSpace(arg))

	case "/delete":
		target, ok := st.ActiveChat()
		if arg != "" {
			var err error
			if target, err = selectChat(st.SortedChats(), arg); err != nil {
				return err
			}
		} else if !ok {
			return errors.New("no active chat")
		}
		if err := st.DeleteChat(target.ID); err != nil {
			return err
		}
		p.out.Success("Deleted %q", target.Name)

	case "/todos":
		p.out.TodoList(st.Todos())

	case "/todo":
		todo, err := st.AddTodo(arg)
		if err != nil {
			return err
		}
		p.out.Success("Added %q", todo.Content)

	case "/done":
		todo, err := selectTodo(st.Todos(), arg)
		if err != nil {
			return err
		}
		st.ToggleTodo(todo.ID)
		if updated, ok := st.Todo(todo.ID); ok && updated.Completed {
			p.out.Success("Completed %q", todo.Content)
		} else {
			p.out.Success("Reopened %q", todo.Content)
		}

	case "/rm":
		todo, err := selectTodo(st.Todos(), arg)
		if err != nil {
			return err
		}
		st.DeleteTodo(todo.ID)
		p.out.Success("Removed %q", todo.Content)

	case "/export":
		c, ok := st.ActiveChat()
		if !ok {
			return errors.New("no active chat")
		}
		path, err := exportChat(c, arg, ".")
		if err != nil {
			return err
		}
		p.out.Success("Wrote %s", path)

	default:
		return fmt.Errorf("unknown command %s (try /help)", name)
	}
	return nil
}

// panels handles "/panels", "/panels left off", and "/panels right on".
func (p *REPL) panels(arg string) error {
	st := p.app.Store
	fields := strings.Fields(strings.ToLower(arg))
	if len(fields) == 0 {
		p.out.Printf("left (chats): %s  right (todos): %s\n",
			onOff(st.LeftSidebarOpen()), onOff(st.RightSidebarOpen()))
		return nil
	}
	if len(fields) != 2 || (fields[1] != "on" && fields[1] != "off") {
		return errors.New("usage: /panels [left|right on|off]")
	}

	open := fields[1] == "on"
	switch fields[0] {
	case "left":
		st.SetLeftSidebarOpen(open)
		if open {
			p.out.ChatList(st.SortedChats(), st.ActiveChatID())
		}
	case "right":
		st.SetRightSidebarOpen(open)
		if open {
			p.out.TodoList(st.Todos())
		}
	default:
		return errors.New("usage: /panels [left|right on|off]")
	}
	p.out.Success("%s panel %s", fields[0], fields[1])
	return nil
}

func onOff(open bool) string {
	if open {
		return "on"
	}
	return "off"
}

// =============================================================================
// DISPLAY
// =============================================================================

func (p *REPL) printWelcome() {
	p.out.Println(TitleStyle.Render("chatdesk"))
	if !p.app.Client.IsConfigured() {
		p.out.Println(WarningStyle.Render("GROQ_API_KEY is not set; replies will show a configuration error."))
	}
	p.out.Println(DimStyle.Render("Type a message, or /help for commands. Messages in the To-Do Chat become todos."))
	if p.app.Store.LeftSidebarOpen() && len(p.app.Store.Chats()) > 1 {
		p.out.ChatList(p.app.Store.SortedChats(), p.app.Store.ActiveChatID())
	}
	if c, ok := p.app.Store.ActiveChat(); ok && !c.IsEmpty() {
		p.out.Transcript(c)
	}
}

var replHelp = []struct{ cmd, desc string }{
	{"/chats", "List chats, most recently visited first"},
	{"/new", "Create a chat and switch to it"},
	{"/use <n|id>", "Switch to a chat"},
	{"/show", "Show the active chat"},
	{"/rename <name>", "Rename the active chat"},
	{"/delete [n|id]", "Delete a chat (default: active)"},
	{"/todos", "List todos"},
	{"/todo <text>", "Add a todo"},
	{"/done <n>", "Toggle a todo"},
	{"/rm <n>", "Delete a todo"},
	{"/panels [left|right on|off]", "Show or set chat list and todo panels"},
	{"/export [md|json]", "Export the active chat to the current directory"},
	{"/help", "Show this help"},
	{"/quit", "Exit"},
}

func (p *REPL) printHelp() {
	p.out.Println(TitleStyle.Render("Commands"))
	for _, h := range replHelp {
		p.out.Printf("  %-28s %s\n", h.cmd, DimStyle.Render(h.desc))
	}
}
