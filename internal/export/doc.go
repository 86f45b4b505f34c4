// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package export writes stored conversations to shareable files.
//
// # Supported Formats
//
//   - Markdown: YAML frontmatter, one section per message, project files as
//     fenced blocks
//   - HTML: standalone page; message markdown is rendered with goldmark
//   - JSON: the stored conversation as-is
//
// Replies generated locally by the fallback generator are labelled
// "Offline fallback" in the Markdown and HTML output.
//
// # Usage
//
//	path, err := export.ExportConversation(conv, "html", export.DefaultOptions())
package export
