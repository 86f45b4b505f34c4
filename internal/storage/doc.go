// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package storage persists chat transcripts.
//
// Each conversation is one JSON file, written atomically. Messages that were
// produced by the local fallback generator are stored with a fallback flag and
// reason; Context leaves them out so they are never sent back to the model.
//
// # Key Types
//
//   - ConversationStore: file-backed store with list, search and retention
//   - StoredConversation: messages plus the last generated project files
//   - ConversationMeta: lightweight metadata for listing
//
// # Usage
//
//	store, err := storage.NewConversationStore()
//	conv := storage.NewConversation("thinking")
//	conv.Append(model.RoleUser, "build a timer")
//	id, err := store.Save(conv)
//	msgs := conv.Context(10)
//
// # Storage Location
//
// Conversations are stored in ~/.vibecode/conversations/ as JSON files.
package storage
