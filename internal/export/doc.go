// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package export writes chats and the todo list to files.
//
// # Key Types
//
//   - Exporter: Format interface
//   - MarkdownExporter: Human-readable export with YAML frontmatter
//   - JSONExporter: The persisted chat shape plus export metadata
//   - Options: Output directory and metadata toggles
//
// # Usage
//
//	exp, err := export.ForFormat("md", nil)
//	if err != nil {
//	    return err
//	}
//	path, err := export.ToFile(chat, exp, &export.Options{OutputDir: dir})
package export
