// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package storage

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/jeranaias/vibecode/internal/files"
	"github.com/jeranaias/vibecode/internal/model"
	"github.com/jeranaias/vibecode/internal/util"
)

// DefaultMaxConversations is the retention limit used when none is set.
const DefaultMaxConversations = 100

const (
	summaryRunes = 50
	previewRunes = 80
	idPrefix     = "conv_"
)

// =============================================================================
// STORED CONVERSATION TYPE
// =============================================================================

// StoredConversation is one persisted chat transcript.
type StoredConversation struct {
	ID        string    `json:"id"`
	Summary   string    `json:"summary"`
	Model     string    `json:"model"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Messages []StoredMessage `json:"messages"`

	// Files holds the project files produced by the last build reply.
	Files []files.ProjectFile `json:"files,omitempty"`
}

// StoredMessage is one persisted message.
type StoredMessage struct {
	ID        string     `json:"id"`
	Role      model.Role `json:"role"`
	Content   string     `json:"content"`
	Timestamp time.Time  `json:"timestamp"`

	// Fallback marks locally generated substitute text.
	Fallback       bool   `json:"fallback,omitempty"`
	FallbackReason string `json:"fallback_reason,omitempty"`

	ModelKey   string `json:"model,omitempty"`
	DurationMs int64  `json:"duration_ms,omitempty"`
}

// ConversationMeta is the listing view of a conversation.
type ConversationMeta struct {
	ID           string    `json:"id"`
	Summary      string    `json:"summary"`
	Model        string    `json:"model"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
	MessageCount int       `json:"message_count"`
	FileCount    int       `json:"file_count"`
	Preview      string    `json:"preview"`
}

// NewConversation returns an empty conversation for modelKey.
func NewConversation(modelKey string) *StoredConversation {
	return &StoredConversation{Model: modelKey}
}

// Append adds a message and returns it.
func (c *StoredConversation) Append(role model.Role, content string) *StoredMessage {
	c.Messages = append(c.Messages, StoredMessage{
		ID:        uuid.NewString(),
		Role:      role,
		Content:   content,
		Timestamp: time.Now(),
	})
	return &c.Messages[len(c.Messages)-1]
}

// AppendFallback adds an assistant message that was produced locally.
func (c *StoredConversation) AppendFallback(content, reason string) *StoredMessage {
	m := c.Append(model.RoleAssistant, content)
	m.Fallback = true
	m.FallbackReason = reason
	return m
}

// Context returns at most the last n messages in provider form. Fallback
// messages are skipped so substitute text never reaches the model. n <= 0
// returns every eligible message.
func (c *StoredConversation) Context(n int) []model.Message {
	out := make([]model.Message, 0, len(c.Messages))
	for _, m := range c.Messages {
		if m.Fallback || !m.Role.Valid() || m.Content == "" {
			continue
		}
		out = append(out, model.Message{Role: m.Role, Content: m.Content})
	}
	if n <= 0 {
		return out
	}
	return model.Tail(out, n)
}

// SetFiles replaces the stored project files.
func (c *StoredConversation) SetFiles(fs []files.ProjectFile) {
	c.Files = append([]files.ProjectFile(nil), fs...)
}

// GetPreview returns the first user message, truncated.
func (c *StoredConversation) GetPreview() string {
	for _, msg := range c.Messages {
		if msg.Role == model.RoleUser && msg.Content != "" {
			return util.TruncateRunes(msg.Content, previewRunes)
		}
	}
	return ""
}

// MessageCount returns the number of messages in the conversation.
func (c *StoredConversation) MessageCount() int {
	return len(c.Messages)
}

// FallbackCount returns how many messages were generated locally.
func (c *StoredConversation) FallbackCount() int {
	n := 0
	for _, m := range c.Messages {
		if m.Fallback {
			n++
		}
	}
	return n
}

func (c *StoredConversation) meta() ConversationMeta {
	return ConversationMeta{
		ID:           c.ID,
		Summary:      c.Summary,
		Model:        c.Model,
		CreatedAt:    c.CreatedAt,
		UpdatedAt:    c.UpdatedAt,
		MessageCount: len(c.Messages),
		FileCount:    len(c.Files),
		Preview:      c.GetPreview(),
	}
}

// =============================================================================
// CONVERSATION STORE
// =============================================================================

// ConversationStore keeps one JSON file per conversation under BaseDir.
type ConversationStore struct {
	// BaseDir is the directory for storing conversations.
	// Default: ~/.vibecode/conversations/
	BaseDir string

	// MaxConversations limits stored conversations (0 = unlimited).
	MaxConversations int

	mu  sync.Mutex
	now func() time.Time
}

// NewConversationStore opens the store in the default location.
func NewConversationStore() (*ConversationStore, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return nil, err
	}
	return NewConversationStoreWithDir(filepath.Join(homeDir, ".vibecode", "conversations"))
}

// NewConversationStoreWithDir opens a store rooted at baseDir.
func NewConversationStoreWithDir(baseDir string) (*ConversationStore, error) {
	if err := os.MkdirAll(baseDir, 0700); err != nil {
		return nil, err
	}
	return &ConversationStore{
		BaseDir:          baseDir,
		MaxConversations: DefaultMaxConversations,
		now:              time.Now,
	}, nil
}

// SetClock replaces the time source.
func (s *ConversationStore) SetClock(now func() time.Time) {
	s.mu.Lock()
	s.now = now
	s.mu.Unlock()
}

// =============================================================================
// SAVE OPERATIONS
// =============================================================================

// Save persists a conversation and returns its ID.
func (s *ConversationStore) Save(conv *StoredConversation) (string, error) {
	if conv == nil {
		return "", &ConversationError{Message: "nil conversation"}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if conv.ID == "" {
		conv.ID = generateConversationID()
	} else if !validID(conv.ID) {
		return "", ErrInvalidID
	}
	if conv.Summary == "" {
		conv.Summary = generateSummary(conv)
	}

	conv.UpdatedAt = s.clock()
	if conv.CreatedAt.IsZero() {
		conv.CreatedAt = conv.UpdatedAt
	}

	data, err := json.MarshalIndent(conv, "", "  ")
	if err != nil {
		return "", err
	}
	if err := util.AtomicWriteFileWithDir(s.filePath(conv.ID), data, 0600, 0700); err != nil {
		return "", err
	}

	if s.MaxConversations > 0 {
		s.enforceLimit(conv.ID)
	}
	return conv.ID, nil
}

func (s *ConversationStore) clock() time.Time {
	if s.now == nil {
		return time.Now()
	}
	return s.now()
}

// generateSummary uses the first user message on a single line.
func generateSummary(conv *StoredConversation) string {
	for _, msg := range conv.Messages {
		if msg.Role == model.RoleUser && strings.TrimSpace(msg.Content) != "" {
			line := strings.Join(strings.Fields(msg.Content), " ")
			return util.TruncateRunes(line, summaryRunes)
		}
	}
	return "New conversation"
}

// enforceLimit removes the oldest conversations over the limit, never the
// one just saved.
func (s *ConversationStore) enforceLimit(keep string) {
	metas, err := s.list()
	if err != nil || len(metas) <= s.MaxConversations {
		return
	}
	sort.Slice(metas, func(i, j int) bool {
		return metas[i].UpdatedAt.Before(metas[j].UpdatedAt)
	})
	excess := len(metas) - s.MaxConversations
	for i := 0; i < len(metas) && excess > 0; i++ {
		if metas[i].ID == keep {
			continue
		}
		if os.Remove(s.filePath(metas[i].ID)) == nil {
			excess--
		}
	}
}

// =============================================================================
// LOAD OPERATIONS
// =============================================================================

// Load retrieves a conversation by ID.
func (s *ConversationStore) Load(id string) (*StoredConversation, error) {
	if !validID(id) {
		return nil, ErrConversationNotFound
	}
	data, err := os.ReadFile(s.filePath(id))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrConversationNotFound
		}
		return nil, err
	}

	var conv StoredConversation
	if err := json.Unmarshal(data, &conv); err != nil {
		return nil, &ConversationError{Message: "corrupt conversation " + id, Err: err}
	}
	return &conv, nil
}

// LoadByIndex loads a conversation by its position in List (0 = most recent).
func (s *ConversationStore) LoadByIndex(index int) (*StoredConversation, error) {
	metas, err := s.List()
	if err != nil {
		return nil, err
	}
	if index < 0 || index >= len(metas) {
		return nil, ErrConversationNotFound
	}
	return s.Load(metas[index].ID)
}

// Resolve accepts a full ID, a unique ID prefix, or a 1-based list index
// of at most four digits.
func (s *ConversationStore) Resolve(ref string) (*StoredConversation, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return nil, ErrConversationNotFound
	}
	if n, err := strconv.Atoi(ref); err == nil && len(ref) <= 4 {
		return s.LoadByIndex(n - 1)
	}
	if conv, err := s.Load(ref); err == nil {
		return conv, nil
	}

	metas, err := s.List()
	if err != nil {
		return nil, err
	}
	var match string
	for _, m := range metas {
		if strings.HasPrefix(m.ID, ref) || strings.HasPrefix(m.ID, idPrefix+ref) {
			if match != "" {
				return nil, &ConversationError{Message: "ambiguous conversation reference " + ref}
			}
			match = m.ID
		}
	}
	if match == "" {
		return nil, ErrConversationNotFound
	}
	return s.Load(match)
}

// =============================================================================
// LIST OPERATIONS
// =============================================================================

// List returns all saved conversations, most recent first. Corrupt files
// are skipped.
func (s *ConversationStore) List() ([]ConversationMeta, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.list()
}

func (s *ConversationStore) list() ([]ConversationMeta, error) {
	entries, err := os.ReadDir(s.BaseDir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return []ConversationMeta{}, nil
		}
		return nil, err
	}

	metas := make([]ConversationMeta, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		conv, err := s.Load(strings.TrimSuffix(entry.Name(), ".json"))
		if err != nil {
			continue
		}
		metas = append(metas, conv.meta())
	}

	sort.Slice(metas, func(i, j int) bool {
		return metas[i].UpdatedAt.After(metas[j].UpdatedAt)
	})
	return metas, nil
}

// Search matches query against summaries and message content,
// case-insensitively. An empty query lists everything.
func (s *ConversationStore) Search(query string) ([]ConversationMeta, error) {
	all, err := s.List()
	if err != nil {
		return nil, err
	}
	query = strings.ToLower(strings.TrimSpace(query))
	if query == "" {
		return all, nil
	}

	var results []ConversationMeta
	for _, meta := range all {
		if strings.Contains(strings.ToLower(meta.Summary), query) {
			results = append(results, meta)
			continue
		}
		conv, err := s.Load(meta.ID)
		if err != nil {
			continue
		}
		for _, msg := range conv.Messages {
			if strings.Contains(strings.ToLower(msg.Content), query) {
				results = append(results, meta)
				break
			}
		}
	}
	return results, nil
}

// =============================================================================
// DELETE OPERATIONS
// =============================================================================

// Delete removes a conversation by ID.
func (s *ConversationStore) Delete(id string) error {
	if !validID(id) {
		return ErrConversationNotFound
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.Remove(s.filePath(id)); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return ErrConversationNotFound
		}
		return err
	}
	return nil
}

// Clear removes all saved conversations and returns how many were removed.
func (s *ConversationStore) Clear() (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := os.ReadDir(s.BaseDir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return 0, nil
		}
		return 0, err
	}
	n := 0
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		if os.Remove(filepath.Join(s.BaseDir, entry.Name())) == nil {
			n++
		}
	}
	return n, nil
}

// =============================================================================
// HELPER FUNCTIONS
// =============================================================================

func (s *ConversationStore) filePath(id string) string {
	return filepath.Join(s.BaseDir, id+".json")
}

func generateConversationID() string {
	return idPrefix + strings.ReplaceAll(uuid.NewString(), "-", "")[:16]
}

// validID rejects anything that could escape BaseDir.
func validID(id string) bool {
	if id == "" || len(id) > 128 {
		return false
	}
	for _, r := range id {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_', r == '-':
		default:
			return false
		}
	}
	return true
}

// =============================================================================
// ERRORS
// =============================================================================

var (
	// ErrConversationNotFound is returned when a conversation doesn't exist.
	ErrConversationNotFound = &ConversationError{Message: "conversation not found"}

	// ErrInvalidID is returned for IDs containing path characters.
	ErrInvalidID = &ConversationError{Message: "invalid conversation id"}
)

// ConversationError is a store failure. Errors with the same Message compare
// equal under errors.Is.
type ConversationError struct {
	Message string
	Err     error
}

func (e *ConversationError) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *ConversationError) Unwrap() error { return e.Err }

// Is implements errors.Is support for comparing conversation errors.
func (e *ConversationError) Is(target error) bool {
	t, ok := target.(*ConversationError)
	if !ok {
		return false
	}
	return e.Message == t.Message
}

// =============================================================================
// SESSION LIST FORMATTING
// =============================================================================

// FormatSessionList renders a session table with a 1-based index column.
func FormatSessionList(sessions []ConversationMeta) string {
	if len(sessions) == 0 {
		return "No sessions found."
	}

	var sb strings.Builder
	header := util.PadRight("#", 4) + " " + util.PadRight("ID", 21) + " " +
		util.PadRight("Updated", 16) + " " + util.PadRight("Msgs", 5) + " Summary"
	rule := strings.Repeat("-", util.DisplayWidth(header)+20)
	sb.WriteString(header + "\n" + rule + "\n")

	for i, s := range sessions {
		sb.WriteString(util.PadRight(strconv.Itoa(i+1), 4) + " " +
			util.PadRight(s.ID, 21) + " " +
			util.PadRight(s.UpdatedAt.Local().Format("2006-01-02 15:04"), 16) + " " +
			util.PadRight(strconv.Itoa(s.MessageCount), 5) + " " +
			util.TruncateRunes(s.Summary, 40) + "\n")
	}
	return sb.String()
}
