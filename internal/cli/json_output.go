// json_output.go - Machine-readable output for --json.
//
// Every command prints one JSONResponse envelope to stdout. Human-readable
// progress goes to stderr in JSON mode.
//
// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later
package cli

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/jeranaias/vibecode/internal/files"
	"github.com/jeranaias/vibecode/internal/usage"
)

// JSONResponse is the envelope for all --json output.
type JSONResponse struct {
	Success   bool        `json:"success"`
	Data      interface{} `json:"data"`
	Error     *string     `json:"error"`
	Timestamp string      `json:"timestamp"`
	Command   string      `json:"command,omitempty"`
}

// NewJSONResponse creates a new successful JSON response.
func NewJSONResponse(command string, data interface{}) *JSONResponse {
	return &JSONResponse{
		Success:   true,
		Data:      data,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Command:   command,
	}
}

// NewJSONErrorResponse creates a new error JSON response.
func NewJSONErrorResponse(command string, err error) *JSONResponse {
	errStr := err.Error()
	return &JSONResponse{
		Success:   false,
		Error:     &errStr,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Command:   command,
	}
}

// Print writes the response to stdout.
func (r *JSONResponse) Print() error {
	encoder := json.NewEncoder(stdout)
	encoder.SetIndent("", "  ")
	return encoder.Encode(r)
}

// String returns the JSON response as a string.
func (r *JSONResponse) String() string {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return fmt.Sprintf(`{"success":false,"error":"failed to marshal response: %s","timestamp":"%s"}`,
			err.Error(), time.Now().UTC().Format(time.RFC3339))
	}
	return string(data)
}

// StderrPrint prints a message to stderr.
func StderrPrint(format string, args ...interface{}) {
	fmt.Fprintf(stderr, format, args...)
}

// =============================================================================
// DATA PAYLOADS
// =============================================================================

// VersionData is the payload of "version --json".
type VersionData struct {
	Version   string `json:"version"`
	GitCommit string `json:"git_commit"`
	BuildDate string `json:"build_date"`
	GoVersion string `json:"go_version"`
}

// AskData is the payload of "ask --json".
type AskData struct {
	Strategy       string              `json:"strategy"`
	Model          string              `json:"model"`
	Reply          string              `json:"reply"`
	ReplyTokens    int                 `json:"reply_tokens"`
	Fallback       bool                `json:"fallback"`
	FallbackReason string              `json:"fallback_reason,omitempty"`
	Plan           string              `json:"plan,omitempty"`
	Todo           []TodoItem          `json:"todo,omitempty"`
	Refined        bool                `json:"refined,omitempty"`
	Scaffolded     bool                `json:"scaffolded,omitempty"`
	Files          []files.ProjectFile `json:"files,omitempty"`
	Written        []string            `json:"written,omitempty"`
	Edits          *EditData           `json:"edits,omitempty"`
	SessionID      string              `json:"session_id,omitempty"`
	DurationMs     int64               `json:"duration_ms"`
}

// TodoItem is one generated task.
type TodoItem struct {
	Task     string `json:"task"`
	Priority string `json:"priority"`
}

// EditData reports edit-block results.
type EditData struct {
	Blocks  int    `json:"blocks"`
	Applied int    `json:"applied"`
	Skipped []int  `json:"skipped,omitempty"`
	Summary string `json:"summary"`
	Diff    string `json:"diff,omitempty"`
	Written bool   `json:"written"`
}

// FilesData is the payload of "files --json".
type FilesData struct {
	Files   []files.ProjectFile `json:"files"`
	Written []string            `json:"written,omitempty"`
	Preview bool                `json:"previewable"`
}

// UsageData is the payload of "usage --json".
type UsageData struct {
	Plan      string      `json:"plan"`
	Used      int         `json:"used"`
	Limit     int         `json:"limit"`
	Remaining int         `json:"remaining"`
	History   []usage.Day `json:"history,omitempty"`
	Persisted bool        `json:"persisted"`
}

// ModelData describes one model for "models --json".
type ModelData struct {
	Key         string `json:"key"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Tier        string `json:"tier"`
	Credits     int    `json:"credits"`
	WebResearch bool   `json:"web_research"`
	Default     bool   `json:"default"`
}

// ThinkingData describes one thinking level for "models --json".
type ThinkingData struct {
	ID      string `json:"id"`
	Label   string `json:"label"`
	Credits int    `json:"credits"`
	Default bool   `json:"default"`
}

// ModelsData is the payload of "models --json".
type ModelsData struct {
	Models   []ModelData    `json:"models"`
	Thinking []ThinkingData `json:"thinking_levels"`
}
