// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package export

import (
	"encoding/json"
	"time"

	"github.com/jeranaias/chatdesk/internal/model"
)

// =============================================================================
// JSON EXPORTER
// =============================================================================

// JSONExporter exports chats to JSON using the persisted chat shape, wrapped
// with export metadata. Pending replies are included as stored.
type JSONExporter struct {
	options *Options
}

// NewJSONExporter creates a new JSON exporter.
func NewJSONExporter(opts *Options) *JSONExporter {
	if opts == nil {
		opts = DefaultOptions()
	}
	return &JSONExporter{options: opts}
}

// document is the top-level JSON export.
type document struct {
	Exported  time.Time  `json:"exported"`
	Generator string     `json:"generator"`
	Chat      model.Chat `json:"chat"`
}

// Export converts a chat to indented JSON.
func (e *JSONExporter) Export(chat model.Chat) ([]byte, error) {
	if len(chat.Messages) == 0 {
		return nil, ErrEmptyChat
	}
	return json.MarshalIndent(document{
		Exported:  e.options.now().UTC(),
		Generator: "chatdesk",
		Chat:      chat,
	}, "", "  ")
}

// FileExtension returns the file extension for JSON.
func (e *JSONExporter) FileExtension() string {
	return ".json"
}

// MimeType returns the MIME type for JSON.
func (e *JSONExporter) MimeType() string {
	return "application/json"
}
