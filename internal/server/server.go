// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/sirupsen/logrus"

	"github.com/jeranaias/vibecode/internal/edit"
	"github.com/jeranaias/vibecode/internal/files"
	"github.com/jeranaias/vibecode/internal/logging"
	"github.com/jeranaias/vibecode/internal/offline"
)

// ============================================================================
// CONSTANTS
// ============================================================================

const (
	// DefaultAddr is the loopback address the preview binds to.
	DefaultAddr = "127.0.0.1:8765"

	// MaxRequestBodySize bounds POST bodies (4MB).
	MaxRequestBodySize = 4 * 1024 * 1024

	shutdownTimeout = 5 * time.Second
)

// ErrNonLoopback is returned when the preview is asked to bind a public address.
var ErrNonLoopback = errors.New("preview server only binds loopback addresses")

var contentTypes = map[string]string{
	files.LangHTML:       "text/html; charset=utf-8",
	files.LangCSS:        "text/css; charset=utf-8",
	files.LangJavaScript: "text/javascript; charset=utf-8",
	files.LangJSON:       "application/json",
	files.LangMarkdown:   "text/markdown; charset=utf-8",
	"svg":                "image/svg+xml",
}

// ============================================================================
// SERVER
// ============================================================================

// Server serves the current project files and a combined preview page.
type Server struct {
	addr   string
	log    *logrus.Entry
	router chi.Router

	mu       sync.RWMutex
	project  []files.ProjectFile
	onChange func([]files.ProjectFile)
	started  time.Time
	updated  time.Time
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the logger.
func WithLogger(l *logrus.Logger) Option {
	return func(s *Server) { s.log = logging.Component(l, "preview") }
}

// WithOnChange registers a callback run after files are replaced or edited
// through the API.
func WithOnChange(fn func([]files.ProjectFile)) Option {
	return func(s *Server) { s.onChange = fn }
}

// New returns a preview server for addr. Empty addr means DefaultAddr.
func New(addr string, opts ...Option) *Server {
	if addr == "" {
		addr = DefaultAddr
	}
	s := &Server{
		addr:    addr,
		log:     logging.Component(logging.Discard(), "preview"),
		started: time.Now(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	r := chi.NewRouter()
	r.Use(RecoveryMiddleware(s.log))
	r.Use(SecurityHeadersMiddleware())
	r.Use(LoggingMiddleware(s.log))

	r.Get("/", s.handlePreview)
	r.Get("/healthz", s.handleHealth)
	r.Get("/files", s.handleList)
	r.Get("/files/*", s.handleFile)
	r.Post("/api/parse", s.handleParse)
	r.Post("/api/edit/*", s.handleEdit)

	s.router = r
}

// Handler returns the routed handler with middleware applied.
func (s *Server) Handler() http.Handler {
	return s.router
}

// SetFiles replaces the served project.
func (s *Server) SetFiles(project []files.ProjectFile) {
	s.mu.Lock()
	s.project = append([]files.ProjectFile(nil), project...)
	s.updated = time.Now()
	s.mu.Unlock()
}

// Files returns a copy of the served project.
func (s *Server) Files() []files.ProjectFile {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]files.ProjectFile(nil), s.project...)
}

func (s *Server) changed(project []files.ProjectFile) {
	s.SetFiles(project)
	if s.onChange != nil {
		s.onChange(project)
	}
}

// ============================================================================
// LIFECYCLE
// ============================================================================

// Run listens on the configured loopback address and serves until ctx is
// done. ready, if set, receives the base URL once the listener is open.
func (s *Server) Run(ctx context.Context, ready func(url string)) error {
	host, _, err := net.SplitHostPort(s.addr)
	if err != nil {
		return fmt.Errorf("preview address %q: %w", s.addr, err)
	}
	if host == "" || !offline.IsLocalhost(host) {
		return fmt.Errorf("%w: %s", ErrNonLoopback, s.addr)
	}

	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return err
	}

	srv := &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	url := "http://" + ln.Addr().String()
	s.log.WithField("url", url).Info("preview server started")
	if ready != nil {
		ready(url)
	}

	errc := make(chan error, 1)
	go func() { errc <- srv.Serve(ln) }()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	s.log.Info("preview server shutting down")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errc; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// ============================================================================
// HANDLERS
// ============================================================================

// FileInfo is the listing view of one file.
type FileInfo struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Language string `json:"language"`
	Size     int    `json:"size"`
}

func fileInfos(project []files.ProjectFile) []FileInfo {
	out := make([]FileInfo, 0, len(project))
	for _, f := range project {
		out = append(out, FileInfo{ID: f.ID, Name: f.Name, Language: f.Language, Size: len(f.Content)})
	}
	return out
}

func (s *Server) handlePreview(w http.ResponseWriter, r *http.Request) {
	page, ok := files.PreviewHTML(s.Files())
	if !ok {
		page = emptyPage
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	io.WriteString(w, page)
}

// HealthResponse is the body of GET /healthz.
type HealthResponse struct {
	Status  string    `json:"status"`
	Files   int       `json:"files"`
	Uptime  string    `json:"uptime"`
	Updated time.Time `json:"updated,omitempty"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.mu.RLock()
	resp := HealthResponse{
		Status:  "ok",
		Files:   len(s.project),
		Uptime:  time.Since(s.started).Round(time.Second).String(),
		Updated: s.updated,
	}
	s.mu.RUnlock()
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{"files": fileInfos(s.Files())})
}

func (s *Server) handleFile(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "*")
	f, ok := files.Find(s.Files(), name)
	if !ok {
		writeError(w, http.StatusNotFound, fmt.Sprintf("file %q not found", name))
		return
	}
	w.Header().Set("Content-Type", contentTypeFor(f))
	io.WriteString(w, f.Content)
}

func contentTypeFor(f files.ProjectFile) string {
	if ct, ok := contentTypes[f.Language]; ok {
		return ct
	}
	if ct := mime.TypeByExtension("." + files.Extension(f.Name)); ct != "" && !strings.HasPrefix(ct, "application/octet") {
		return ct
	}
	return "text/plain; charset=utf-8"
}

// ParseRequest is the JSON form of POST /api/parse. A non-JSON body is
// taken as the reply text itself.
type ParseRequest struct {
	Reply string `json:"reply"`
	// Prompt, when set, lets a reply without code fall back to the starter
	// project for that prompt.
	Prompt string `json:"prompt,omitempty"`
}

// ParseResponse is the body returned by POST /api/parse.
type ParseResponse struct {
	Files      []FileInfo `json:"files"`
	Scaffolded bool       `json:"scaffolded"`
}

func (s *Server) handleParse(w http.ResponseWriter, r *http.Request) {
	var req ParseRequest
	if err := decodeBody(w, r, &req.Reply, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	reply, scaffolded := req.Reply, false
	if req.Prompt != "" {
		reply, scaffolded = files.EnsureCode(reply, req.Prompt)
	}
	project := files.Parse(reply)
	if len(project) == 0 {
		writeError(w, http.StatusUnprocessableEntity, "reply contains no fenced code blocks")
		return
	}

	s.changed(project)
	s.log.WithField("files", len(project)).Info("project replaced")
	writeJSON(w, http.StatusOK, ParseResponse{Files: fileInfos(project), Scaffolded: scaffolded})
}

// EditRequest is the JSON form of POST /api/edit/{name}. A non-JSON body
// is taken as the edit-block text itself.
type EditRequest struct {
	Edits string `json:"edits"`
}

// EditResponse is the body returned by POST /api/edit/{name}.
type EditResponse struct {
	File     FileInfo       `json:"file"`
	Summary  string         `json:"summary"`
	Applied  int            `json:"applied"`
	Skipped  []int          `json:"skipped"`
	Outcomes []edit.Outcome `json:"outcomes"`
	Diff     string         `json:"diff"`
}

func (s *Server) handleEdit(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "*")

	var req EditRequest
	if err := decodeBody(w, r, &req.Edits, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	blocks := edit.Parse(req.Edits)
	if len(blocks) == 0 {
		writeError(w, http.StatusUnprocessableEntity, "no <<<EDIT>>> blocks found")
		return
	}

	s.mu.Lock()
	idx := -1
	for i, f := range s.project {
		if f.Name == name {
			idx = i
			break
		}
	}
	if idx < 0 {
		s.mu.Unlock()
		writeError(w, http.StatusNotFound, fmt.Sprintf("file %q not found", name))
		return
	}
	old := s.project[idx]
	report := edit.ApplyReport(old.Content, blocks)
	updated := old
	updated.Content = report.Result
	project := append([]files.ProjectFile(nil), s.project...)
	project[idx] = updated
	s.mu.Unlock()

	if report.Applied() > 0 {
		s.changed(project)
	}
	s.log.WithFields(logrus.Fields{"file": name, "applied": report.Applied(), "blocks": len(blocks)}).Info("edits applied")

	writeJSON(w, http.StatusOK, EditResponse{
		File:     fileInfos([]files.ProjectFile{updated})[0],
		Summary:  report.Summary(),
		Applied:  report.Applied(),
		Skipped:  report.Skipped(),
		Outcomes: report.Outcomes,
		Diff:     edit.ComputeDiff(name, old.Content, updated.Content).Unified(),
	})
}

// ============================================================================
// HELPERS
// ============================================================================

// decodeBody reads a size-limited body. JSON bodies decode into v; anything
// else is stored verbatim in raw.
func decodeBody(w http.ResponseWriter, r *http.Request, raw *string, v interface{}) error {
	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, MaxRequestBodySize))
	if err != nil {
		return fmt.Errorf("read body: %w", err)
	}
	ct, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if ct == "application/json" {
		if err := json.Unmarshal(data, v); err != nil {
			return fmt.Errorf("invalid JSON: %w", err)
		}
		return nil
	}
	*raw = string(data)
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]interface{}{
		"error": map[string]interface{}{
			"message": message,
			"code":    status,
		},
	})
}

const emptyPage = `<!DOCTYPE html>
<html lang="en">
<head><meta charset="UTF-8"><title>vibe preview</title></head>
<body style="font-family: system-ui, sans-serif; padding: 2rem; color: #555;">
<h1>No preview yet</h1>
<p>Generate a project with <code>vibe ask</code> or <code>vibe chat</code>, or POST a reply to <code>/api/parse</code>.</p>
</body>
</html>`
