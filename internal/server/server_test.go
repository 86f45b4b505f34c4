// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package server

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeranaias/vibecode/internal/files"
)

func sampleProject() []files.ProjectFile {
	return []files.ProjectFile{
		{ID: "1", Name: "index.html", Content: "<html><head></head><body><h1>Old</h1></body></html>", Language: files.LangHTML},
		{ID: "2", Name: "style.css", Content: "h1 { color: red; }", Language: files.LangCSS},
		{ID: "3", Name: "js/app.js", Content: "console.log('hi');", Language: files.LangJavaScript},
	}
}

func do(t *testing.T, h http.Handler, method, path, contentType, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

// =============================================================================
// READ ENDPOINTS
// =============================================================================

func TestPreview_EmptyAndCombined(t *testing.T) {
	s := New("")

	rec := do(t, s.Handler(), http.MethodGet, "/", "", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "No preview yet")
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))

	s.SetFiles(sampleProject())
	rec = do(t, s.Handler(), http.MethodGet, "/", "", "")
	body := rec.Body.String()
	assert.Contains(t, body, "<h1>Old</h1>")
	assert.Contains(t, body, "h1 { color: red; }")
	assert.Contains(t, body, "console.log('hi');")
	assert.Equal(t, "text/html; charset=utf-8", rec.Header().Get("Content-Type"))
}

func TestFiles_ListAndRaw(t *testing.T) {
	s := New("")
	s.SetFiles(sampleProject())

	rec := do(t, s.Handler(), http.MethodGet, "/files", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var list struct {
		Files []FileInfo `json:"files"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	require.Len(t, list.Files, 3)
	assert.Equal(t, "style.css", list.Files[1].Name)
	assert.Equal(t, len("h1 { color: red; }"), list.Files[1].Size)

	rec = do(t, s.Handler(), http.MethodGet, "/files/style.css", "", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/css; charset=utf-8", rec.Header().Get("Content-Type"))
	assert.Equal(t, "h1 { color: red; }", rec.Body.String())

	rec = do(t, s.Handler(), http.MethodGet, "/files/js/app.js", "", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/javascript; charset=utf-8", rec.Header().Get("Content-Type"))

	rec = do(t, s.Handler(), http.MethodGet, "/files/missing.txt", "", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Body.String(), "missing.txt")
}

func TestHealth(t *testing.T) {
	s := New("")
	s.SetFiles(sampleProject())
	rec := do(t, s.Handler(), http.MethodGet, "/healthz", "", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp HealthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, 3, resp.Files)
}

// =============================================================================
// WRITE ENDPOINTS
// =============================================================================

func TestParse_RawAndJSON(t *testing.T) {
	var changed []files.ProjectFile
	s := New("", WithOnChange(func(p []files.ProjectFile) { changed = p }))

	reply := "Here:\n```html\n<p>x</p>\n```\n```css\np { margin: 0; }\n```"
	rec := do(t, s.Handler(), http.MethodPost, "/api/parse", "text/plain", reply)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp ParseResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Files, 2)
	assert.False(t, resp.Scaffolded)
	assert.Len(t, changed, 2)
	assert.Len(t, s.Files(), 2)

	body, _ := json.Marshal(ParseRequest{Reply: "no code here", Prompt: "a timer"})
	rec = do(t, s.Handler(), http.MethodPost, "/api/parse", "application/json", string(body))
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp.Scaffolded)
	assert.Len(t, resp.Files, 3)
}

func TestParse_Errors(t *testing.T) {
	s := New("")
	s.SetFiles(sampleProject())

	rec := do(t, s.Handler(), http.MethodPost, "/api/parse", "text/plain", "just words")
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Len(t, s.Files(), 3)

	rec = do(t, s.Handler(), http.MethodPost, "/api/parse", "application/json", "{broken")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	big := strings.Repeat("x", MaxRequestBodySize+1)
	rec = do(t, s.Handler(), http.MethodPost, "/api/parse", "text/plain", big)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestEdit(t *testing.T) {
	var changes int
	s := New("", WithOnChange(func([]files.ProjectFile) { changes++ }))
	s.SetFiles(sampleProject())

	edits := "<<<EDIT>>>\nFIND:\n<h1>Old</h1>\nREPLACE:\n<h1>New</h1>\n<<<END_EDIT>>>\n" +
		"<<<EDIT>>>\nFIND:\nnot there\nREPLACE:\nx\n<<<END_EDIT>>>"
	rec := do(t, s.Handler(), http.MethodPost, "/api/edit/index.html", "text/plain", edits)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp EditResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 1, resp.Applied)
	assert.Equal(t, []int{1}, resp.Skipped)
	assert.Equal(t, "1 of 2 edits applied", resp.Summary)
	assert.Contains(t, resp.Diff, "+<html><head></head><body><h1>New</h1></body></html>")
	assert.Equal(t, 1, changes)

	f, ok := files.Find(s.Files(), "index.html")
	require.True(t, ok)
	assert.Contains(t, f.Content, "<h1>New</h1>")
	assert.Equal(t, "1", f.ID)
}

func TestEdit_Errors(t *testing.T) {
	var changes int
	s := New("", WithOnChange(func([]files.ProjectFile) { changes++ }))
	s.SetFiles(sampleProject())

	rec := do(t, s.Handler(), http.MethodPost, "/api/edit/index.html", "text/plain", "no blocks")
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	body, _ := json.Marshal(EditRequest{Edits: "<<<EDIT>>>\nFIND:\na\nREPLACE:\nb\n<<<END_EDIT>>>"})
	rec = do(t, s.Handler(), http.MethodPost, "/api/edit/nope.js", "application/json", string(body))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	// Nothing matched: the project is left alone.
	body, _ = json.Marshal(EditRequest{Edits: "<<<EDIT>>>\nFIND:\nzzz\nREPLACE:\nb\n<<<END_EDIT>>>"})
	rec = do(t, s.Handler(), http.MethodPost, "/api/edit/style.css", "application/json", string(body))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 0, changes)
}

// =============================================================================
// MIDDLEWARE
// =============================================================================

func TestRecoveryMiddleware(t *testing.T) {
	s := New("")
	h := RecoveryMiddleware(s.log)(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))
	rec := do(t, h, http.MethodGet, "/", "", "")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestMethodNotAllowed(t *testing.T) {
	s := New("")
	rec := do(t, s.Handler(), http.MethodDelete, "/files", "", "")
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

// =============================================================================
// LIFECYCLE
// =============================================================================

func TestRun_RejectsPublicAddress(t *testing.T) {
	err := New("0.0.0.0:0").Run(context.Background(), nil)
	assert.ErrorIs(t, err, ErrNonLoopback)

	err = New("not-an-address").Run(context.Background(), nil)
	assert.Error(t, err)
}

func TestRun_ServesUntilCancelled(t *testing.T) {
	s := New("127.0.0.1:0")
	s.SetFiles(sampleProject())

	ctx, cancel := context.WithCancel(context.Background())
	urls := make(chan string, 1)
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx, func(u string) { urls <- u }) }()

	var base string
	select {
	case base = <-urls:
	case <-time.After(5 * time.Second):
		t.Fatal("server did not start")
	}

	resp, err := http.Get(base + "/files/style.css")
	require.NoError(t, err)
	data, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	require.NoError(t, err)
	assert.Equal(t, "h1 { color: red; }", string(data))

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("server did not stop")
	}
}
