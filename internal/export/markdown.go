// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package export

import (
	"fmt"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/jeranaias/chatdesk/internal/model"
)

// =============================================================================
// MARKDOWN EXPORTER
// =============================================================================

// MarkdownExporter exports chats to Markdown.
type MarkdownExporter struct {
	options *Options
}

// NewMarkdownExporter creates a new Markdown exporter.
func NewMarkdownExporter(opts *Options) *MarkdownExporter {
	if opts == nil {
		opts = DefaultOptions()
	}
	return &MarkdownExporter{options: opts}
}

// frontmatter is the YAML header of a Markdown export.
type frontmatter struct {
	Title     string `yaml:"title"`
	Created   string `yaml:"created"`
	Visited   string `yaml:"last_visited"`
	Messages  int    `yaml:"messages"`
	Exported  string `yaml:"exported"`
	Generator string `yaml:"generator"`
}

// Export converts a chat to Markdown. Pending replies are skipped.
func (e *MarkdownExporter) Export(chat model.Chat) ([]byte, error) {
	messages := exportable(chat.Messages)
	if len(messages) == 0 {
		return nil, ErrEmptyChat
	}

	var sb strings.Builder

	if e.options.IncludeMetadata {
		header, err := yaml.Marshal(frontmatter{
			Title:     chat.Name,
			Created:   chat.CreatedAt.Format(time.RFC3339),
			Visited:   chat.LastVisited.Format(time.RFC3339),
			Messages:  len(messages),
			Exported:  e.options.now().Format(time.RFC3339),
			Generator: "chatdesk",
		})
		if err != nil {
			return nil, fmt.Errorf("encode frontmatter: %w", err)
		}
		sb.WriteString("---\n")
		sb.Write(header)
		sb.WriteString("---\n\n")
	}

	fmt.Fprintf(&sb, "# %s\n\n", escapeMarkdown(chat.Name))

	for i, msg := range messages {
		label := roleLabel(msg.Role)
		if e.options.IncludeTimestamps && !msg.CreatedAt.IsZero() {
			fmt.Fprintf(&sb, "### %s <sub>%s</sub>\n\n", label, msg.CreatedAt.Format("2006-01-02 15:04"))
		} else {
			fmt.Fprintf(&sb, "### %s\n\n", label)
		}

		content := strings.TrimSpace(msg.Content)
		if msg.EffectiveStatus() == model.StatusFailed {
			content = "> " + content
		}
		sb.WriteString(content)
		sb.WriteString("\n\n")

		if i < len(messages)-1 {
			sb.WriteString("---\n\n")
		}
	}

	return []byte(sb.String()), nil
}

// FileExtension returns the file extension for Markdown.
func (e *MarkdownExporter) FileExtension() string {
	return ".md"
}

// MimeType returns the MIME type for Markdown.
func (e *MarkdownExporter) MimeType() string {
	return "text/markdown"
}

// =============================================================================
// TODO CHECKLIST
// =============================================================================

// TodoChecklist renders todos as a Markdown task list in their stored order.
func TodoChecklist(todos []model.Todo) []byte {
	var sb strings.Builder
	sb.WriteString("# To-Do\n\n")
	if len(todos) == 0 {
		sb.WriteString("_No todos._\n")
		return []byte(sb.String())
	}
	for _, t := range todos {
		box := " "
		if t.Completed {
			box = "x"
		}
		fmt.Fprintf(&sb, "- [%s] %s\n", box, strings.TrimSpace(t.Content))
	}
	return []byte(sb.String())
}

// =============================================================================
// FORMATTING HELPERS
// =============================================================================

// exportable drops replies that have not resolved yet.
func exportable(messages []model.Message) []model.Message {
	out := make([]model.Message, 0, len(messages))
	for _, m := range messages {
		if m.IsPending() {
			continue
		}
		out = append(out, m)
	}
	return out
}

func roleLabel(role model.Role) string {
	if role == "" {
		return "[Unknown]"
	}
	return "[" + role.DisplayName() + "]"
}

// escapeMarkdown escapes characters that break the title heading.
func escapeMarkdown(s string) string {
	s = strings.ReplaceAll(s, "\n", " ")
	s = strings.ReplaceAll(s, "#", "\\#")
	s = strings.ReplaceAll(s, "*", "\\*")
	s = strings.ReplaceAll(s, "_", "\\_")
	s = strings.ReplaceAll(s, "[", "\\[")
	s = strings.ReplaceAll(s, "]", "\\]")
	return s
}
