// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/glamour"

	"github.com/jeranaias/chatdesk/internal/model"
	"github.com/jeranaias/chatdesk/internal/util"
)

// Column widths for listings.
const (
	nameColumn    = 28
	previewColumn = 48
)

// Renderer writes chats, messages, and todos to a terminal or a pipe.
type Renderer struct {
	out      io.Writer
	markdown *glamour.TermRenderer
	now      func() time.Time
}

// NewRenderer creates a renderer. Markdown rendering is enabled only when
// markdown is set and out is an interactive terminal; otherwise replies are
// printed verbatim.
func NewRenderer(out io.Writer, markdown bool, wordWrap int) *Renderer {
	r := &Renderer{out: out, now: time.Now}
	if markdown && IsStdoutTTY() {
		if wordWrap <= 0 || wordWrap > GetTerminalWidth() {
			wordWrap = GetTerminalWidth()
		}
		md, err := glamour.NewTermRenderer(
			glamour.WithAutoStyle(),
			glamour.WithWordWrap(wordWrap),
		)
		if err == nil {
			r.markdown = md
		}
	}
	return r
}

// Printf writes formatted text.
func (r *Renderer) Printf(format string, args ...any) {
	fmt.Fprintf(r.out, format, args...)
}

// Println writes a line.
func (r *Renderer) Println(args ...any) {
	fmt.Fprintln(r.out, args...)
}

// Success writes a confirmation line.
func (r *Renderer) Success(format string, args ...any) {
	fmt.Fprintln(r.out, SuccessStyle.Render("[OK]")+" "+fmt.Sprintf(format, args...))
}

// Error writes an error line.
func (r *Renderer) Error(err error) {
	fmt.Fprintln(r.out, ErrorStyle.Render("[Error]")+" "+err.Error())
}

// =============================================================================
// MESSAGES
// =============================================================================

// Message writes one message with its role label.
func (r *Renderer) Message(msg model.Message) {
	switch msg.Role {
	case model.RoleUser:
		fmt.Fprintln(r.out, UserStyle.Render("You:")+" "+msg.Content)
	case model.RoleAssistant:
		label := AssistantStyle.Render("AI:")
		switch msg.EffectiveStatus() {
		case model.StatusPending:
			fmt.Fprintln(r.out, label+" "+DimStyle.Render(msg.Content))
		case model.StatusFailed:
			fmt.Fprintln(r.out, label+" "+ErrorStyle.Render(msg.Content))
		default:
			fmt.Fprintln(r.out, label)
			fmt.Fprintln(r.out, r.renderMarkdown(msg.Content))
		}
	default:
		fmt.Fprintln(r.out, DimStyle.Render(msg.Role.DisplayName()+": "+msg.Content))
	}
}

func (r *Renderer) renderMarkdown(content string) string {
	if r.markdown == nil {
		return content
	}
	out, err := r.markdown.Render(content)
	if err != nil {
		return content
	}
	return strings.TrimRight(out, "\n")
}

// Transcript writes every message of a chat under a header.
func (r *Renderer) Transcript(c model.Chat) {
	fmt.Fprintln(r.out, TitleStyle.Render(c.Name))
	if c.IsEmpty() {
		fmt.Fprintln(r.out, DimStyle.Render("No messages yet."))
		return
	}
	for _, msg := range c.Messages {
		r.Message(msg)
	}
}

// =============================================================================
// LISTINGS
// =============================================================================

// ChatList writes numbered chats in the given order. The active chat is
// marked with "*".
func (r *Renderer) ChatList(chats []model.Chat, activeID string) {
	if len(chats) == 0 {
		fmt.Fprintln(r.out, DimStyle.Render("No chats."))
		return
	}
	for i, c := range chats {
		marker := " "
		name := util.PadWidth(util.SingleLine(c.Name), nameColumn)
		if c.ID == activeID {
			marker = "*"
			name = HighlightStyle.Render(name)
		}

		preview := ""
		if last, ok := c.LastMessage(); ok {
			preview = util.TruncateWidth(last.Preview(0), previewColumn)
		}
		if n := c.PendingCount(); n > 0 {
			preview = fmt.Sprintf("(%d waiting) %s", n, preview)
		}
		fmt.Fprintf(r.out, "%s %2d. %s %s %s\n",
			marker, i+1, name,
			DimStyle.Render(fmt.Sprintf("%3d msgs  %s", len(c.Messages), r.ago(c.LastVisited))),
			DimStyle.Render(preview))
	}
}

// TodoList writes numbered todos with their completion box.
func (r *Renderer) TodoList(todos []model.Todo) {
	if len(todos) == 0 {
		fmt.Fprintln(r.out, DimStyle.Render("No todos yet. Add one with /todo <text> or in the To-Do Chat."))
		return
	}
	for i, t := range todos {
		box := "[ ]"
		content := t.Content
		if t.Completed {
			box = SuccessStyle.Render("[x]")
			content = DimStyle.Render(content)
		}
		fmt.Fprintf(r.out, "%2d. %s %s\n", i+1, box, content)
	}
	fmt.Fprintln(r.out, DimStyle.Render(fmt.Sprintf("%d open, %d total", model.CountOpen(todos), len(todos))))
}

// ago formats a timestamp relative to now.
func (r *Renderer) ago(t time.Time) string {
	if t.IsZero() {
		return "never"
	}
	d := r.now().Sub(t)
	switch {
	case d < time.Minute:
		return "just now"
	case d < time.Hour:
		return fmt.Sprintf("%dm ago", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh ago", int(d.Hours()))
	default:
		return t.Local().Format("Jan 2")
	}
}
