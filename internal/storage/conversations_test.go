// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package storage

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeranaias/vibecode/internal/files"
	"github.com/jeranaias/vibecode/internal/model"
)

func newStore(t *testing.T) *ConversationStore {
	t.Helper()
	store, err := NewConversationStoreWithDir(t.TempDir())
	require.NoError(t, err)
	return store
}

// steppingClock returns a clock that advances one minute per call.
func steppingClock() func() time.Time {
	base := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	n := 0
	return func() time.Time {
		n++
		return base.Add(time.Duration(n) * time.Minute)
	}
}

// =============================================================================
// CONVERSATION TESTS
// =============================================================================

func TestConversation_ContextSkipsFallback(t *testing.T) {
	conv := NewConversation(model.KeyPro)
	conv.Append(model.RoleUser, "first")
	conv.Append(model.RoleAssistant, "real answer")
	conv.Append(model.RoleUser, "second")
	fb := conv.AppendFallback("offline template", "Request timed out after 90s.")

	assert.True(t, fb.Fallback)
	assert.Equal(t, "Request timed out after 90s.", fb.FallbackReason)
	assert.Equal(t, 1, conv.FallbackCount())

	ctx := conv.Context(0)
	require.Len(t, ctx, 3)
	for _, m := range ctx {
		assert.NotEqual(t, "offline template", m.Content)
	}

	last := conv.Context(2)
	require.Len(t, last, 2)
	assert.Equal(t, "real answer", last[0].Content)
	assert.Equal(t, model.RoleUser, last[1].Role)
}

func TestConversation_SummaryAndPreview(t *testing.T) {
	store := newStore(t)
	conv := NewConversation(model.KeyThinking)
	conv.Append(model.RoleSystem, "ignored")
	conv.Append(model.RoleUser, "build me\na   pomodoro timer "+strings.Repeat("x", 80))

	_, err := store.Save(conv)
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(conv.Summary, "build me a pomodoro timer"))
	assert.Len(t, []rune(conv.Summary), 50)
	assert.True(t, strings.HasSuffix(conv.GetPreview(), "..."))

	empty := NewConversation(model.KeyPro)
	_, err = store.Save(empty)
	require.NoError(t, err)
	assert.Equal(t, "New conversation", empty.Summary)
}

// =============================================================================
// STORE TESTS
// =============================================================================

func TestConversationStore_SaveAndLoad(t *testing.T) {
	store := newStore(t)

	conv := NewConversation("pro")
	conv.Append(model.RoleUser, "Hello")
	conv.AppendFallback("Hi (offline)", "network down")
	conv.SetFiles([]files.ProjectFile{{ID: "f1", Name: "index.html", Content: "<p>hi</p>", Language: "html"}})

	id, err := store.Save(conv)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(id, "conv_"))

	info, err := os.Stat(filepath.Join(store.BaseDir, id+".json"))
	require.NoError(t, err)
	if os.PathSeparator == '/' {
		assert.Equal(t, os.FileMode(0600), info.Mode().Perm())
	}

	loaded, err := store.Load(id)
	require.NoError(t, err)
	assert.Equal(t, "pro", loaded.Model)
	require.Len(t, loaded.Messages, 2)
	assert.True(t, loaded.Messages[1].Fallback)
	assert.Equal(t, "network down", loaded.Messages[1].FallbackReason)
	require.Len(t, loaded.Files, 1)
	assert.Equal(t, "index.html", loaded.Files[0].Name)
	assert.False(t, loaded.CreatedAt.IsZero())
}

func TestConversationStore_LoadErrors(t *testing.T) {
	store := newStore(t)

	_, err := store.Load("nonexistent-id")
	assert.ErrorIs(t, err, ErrConversationNotFound)

	_, err = store.Load("../etc/passwd")
	assert.ErrorIs(t, err, ErrConversationNotFound)

	require.NoError(t, os.WriteFile(filepath.Join(store.BaseDir, "conv_bad.json"), []byte("{"), 0600))
	_, err = store.Load("conv_bad")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "corrupt conversation")

	_, err = store.Save(&StoredConversation{ID: "../escape"})
	assert.ErrorIs(t, err, ErrInvalidID)
}

func TestConversationStore_Delete(t *testing.T) {
	store := newStore(t)
	conv := NewConversation("pro")
	conv.Append(model.RoleUser, "Test")
	id, err := store.Save(conv)
	require.NoError(t, err)

	require.NoError(t, store.Delete(id))
	_, err = store.Load(id)
	assert.ErrorIs(t, err, ErrConversationNotFound)
	assert.ErrorIs(t, store.Delete(id), ErrConversationNotFound)
}

func TestConversationStore_ListOrderAndCorruptSkip(t *testing.T) {
	store := newStore(t)
	store.SetClock(steppingClock())

	var ids []string
	for _, text := range []string{"alpha", "beta", "gamma"} {
		conv := NewConversation("pro")
		conv.Append(model.RoleUser, text)
		id, err := store.Save(conv)
		require.NoError(t, err)
		ids = append(ids, id)
	}
	require.NoError(t, os.WriteFile(filepath.Join(store.BaseDir, "junk.json"), []byte("not json"), 0600))

	metas, err := store.List()
	require.NoError(t, err)
	require.Len(t, metas, 3)
	assert.Equal(t, ids[2], metas[0].ID)
	assert.Equal(t, ids[0], metas[2].ID)
	assert.Equal(t, 1, metas[0].MessageCount)

	conv, err := store.LoadByIndex(0)
	require.NoError(t, err)
	assert.Equal(t, "gamma", conv.Messages[0].Content)

	_, err = store.LoadByIndex(3)
	assert.ErrorIs(t, err, ErrConversationNotFound)
}

func TestConversationStore_EnforceLimit(t *testing.T) {
	store := newStore(t)
	store.SetClock(steppingClock())
	store.MaxConversations = 2

	var ids []string
	for i := 0; i < 4; i++ {
		conv := NewConversation("pro")
		conv.Append(model.RoleUser, "message")
		id, err := store.Save(conv)
		require.NoError(t, err)
		ids = append(ids, id)
	}

	metas, err := store.List()
	require.NoError(t, err)
	require.Len(t, metas, 2)
	assert.Equal(t, ids[3], metas[0].ID)
	assert.Equal(t, ids[2], metas[1].ID)
}

func TestConversationStore_Search(t *testing.T) {
	store := newStore(t)

	a := NewConversation("pro")
	a.Append(model.RoleUser, "make a snake game")
	a.Append(model.RoleAssistant, "Here is a canvas loop")
	_, err := store.Save(a)
	require.NoError(t, err)

	b := NewConversation("pro")
	b.Append(model.RoleUser, "explain flexbox")
	_, err = store.Save(b)
	require.NoError(t, err)

	results, err := store.Search("SNAKE")
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, a.ID, results[0].ID)

	results, err = store.Search("canvas")
	require.NoError(t, err)
	require.Len(t, results, 1)

	all, err := store.Search("  ")
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestConversationStore_Resolve(t *testing.T) {
	store := newStore(t)
	store.SetClock(steppingClock())

	first := NewConversation("pro")
	first.Append(model.RoleUser, "one")
	_, err := store.Save(first)
	require.NoError(t, err)

	second := NewConversation("pro")
	second.Append(model.RoleUser, "two")
	_, err = store.Save(second)
	require.NoError(t, err)

	got, err := store.Resolve("1")
	require.NoError(t, err)
	assert.Equal(t, second.ID, got.ID)

	got, err = store.Resolve(first.ID)
	require.NoError(t, err)
	assert.Equal(t, first.ID, got.ID)

	got, err = store.Resolve(strings.TrimPrefix(first.ID, "conv_")[:10])
	require.NoError(t, err)
	assert.Equal(t, first.ID, got.ID)

	_, err = store.Resolve("conv_")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ambiguous")

	_, err = store.Resolve("")
	assert.ErrorIs(t, err, ErrConversationNotFound)
}

func TestConversationStore_Clear(t *testing.T) {
	store := newStore(t)
	for i := 0; i < 3; i++ {
		conv := NewConversation("pro")
		conv.Append(model.RoleUser, "x")
		_, err := store.Save(conv)
		require.NoError(t, err)
	}

	n, err := store.Clear()
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	metas, err := store.List()
	require.NoError(t, err)
	assert.Empty(t, metas)
}

func TestFormatSessionList(t *testing.T) {
	assert.Equal(t, "No sessions found.", FormatSessionList(nil))

	out := FormatSessionList([]ConversationMeta{{
		ID:           "conv_0123456789abcdef",
		Summary:      "build a timer",
		UpdatedAt:    time.Now(),
		MessageCount: 4,
	}})
	assert.Contains(t, out, "conv_0123456789abcdef")
	assert.Contains(t, out, "build a timer")
	assert.Contains(t, out, "1    ")
}
