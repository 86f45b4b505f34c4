// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// app.go - Builds the component graph shared by the commands.
package cli

import (
	"io"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/jeranaias/vibecode/internal/cloud"
	"github.com/jeranaias/vibecode/internal/config"
	"github.com/jeranaias/vibecode/internal/logging"
	"github.com/jeranaias/vibecode/internal/model"
	"github.com/jeranaias/vibecode/internal/offline"
	"github.com/jeranaias/vibecode/internal/pipeline"
	"github.com/jeranaias/vibecode/internal/storage"
	"github.com/jeranaias/vibecode/internal/usage"
)

// ledger is what the commands need from a usage ledger.
type ledger interface {
	usage.Ledger
	Reset() error
}

// historyLedger is a ledger that keeps per-day rows.
type historyLedger interface {
	History(n int) ([]usage.Day, error)
}

// liveSettings is the config the executor reads its endpoint from. Chat
// swaps it when the config file changes.
type liveSettings struct {
	mu  sync.RWMutex
	cfg *config.Config
}

func (s *liveSettings) APISettings() (string, string) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cfg.APISettings()
}

func (s *liveSettings) set(cfg *config.Config) {
	s.mu.Lock()
	s.cfg = cfg
	s.mu.Unlock()
}

func (s *liveSettings) get() *config.Config {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cfg
}

// App holds the components for one command invocation.
type App struct {
	Config   *config.Config
	Log      *logrus.Logger
	Ledger   ledger
	Exec     *cloud.Executor
	Pipeline *pipeline.Pipeline
	Store    *storage.ConversationStore
	Render   *Renderer

	// ModelKey and Thinking are the effective selections for this run.
	ModelKey string
	Thinking string

	// Persisted is false when the SQLite ledger could not be opened.
	Persisted bool

	settings *liveSettings
	closers  []io.Closer
}

// appOptions are the pieces of NewApp tests replace.
type appOptions struct {
	executorOpts []cloud.ExecutorOption
}

// testExecutorOptions is appended to every executor built by NewApp. Tests
// use it to inject an HTTP client.
var testExecutorOptions []cloud.ExecutorOption

// NewApp loads config and wires the pipeline. Global flags override config
// values for this run only.
func NewApp(args Args) (*App, error) {
	cfg, err := loadConfig(args)
	if err != nil {
		return nil, err
	}
	return newAppWithConfig(args, cfg, appOptions{executorOpts: testExecutorOptions})
}

func newAppWithConfig(args Args, cfg *config.Config, opts appOptions) (*App, error) {
	a := &App{Config: cfg, settings: &liveSettings{cfg: cfg}}

	// Selections
	a.ModelKey = cfg.DefaultModel
	if args.Model != "" {
		d, ok := model.Lookup(args.Model)
		if !ok {
			return nil, NewValidationErrorWithExample("model", args.Model, "unknown model",
				"--model "+strings.Join(model.Keys(), "|"))
		}
		a.ModelKey = d.Key
	} else if d, ok := model.Lookup(a.ModelKey); ok {
		a.ModelKey = d.Key
	}
	a.Thinking = cfg.ThinkingLevel
	if args.Thinking != "" {
		if !model.IsThinkingLevel(args.Thinking) {
			return nil, NewValidationErrorWithExample("thinking level", args.Thinking, "unknown level",
				"--thinking low|mid|high|extra-high")
		}
		a.Thinking = strings.ToLower(args.Thinking)
	}

	if args.Offline {
		cfg.Offline = true
	}
	offline.SetOfflineMode(cfg.Offline)

	logger, closer, err := newLogger(cfg, args)
	if err != nil {
		return nil, err
	}
	a.Log = logger
	a.closers = append(a.closers, closer)

	// Usage ledger
	a.Ledger = usage.NewMemoryLedger(cfg.DailyLimit())
	if path, err := cfg.UsageDBPath(); err == nil {
		if l, err := usage.OpenSQLite(path, cfg.DailyLimit()); err == nil {
			a.Ledger = l
			a.Persisted = true
			a.closers = append(a.closers, l)
		} else {
			logger.WithError(err).Warn("usage ledger unavailable, tracking in memory")
		}
	}

	// Executor and pipeline
	execOpts := []cloud.ExecutorOption{
		cloud.WithLedger(a.Ledger),
		cloud.WithLogger(logger),
		cloud.WithTimeout(cfg.Timeout()),
		cloud.WithFallbackPolicy(cfg.FallbackPolicy()),
	}
	var assistantOpts []pipeline.AssistantOption
	if cfg.Research.Enabled {
		r := cloud.NewWebResearcher(cfg.Research.Endpoint, cfg.Research.RatePerSec, logger)
		execOpts = append(execOpts, cloud.WithResearcher(r))
		assistantOpts = append(assistantOpts, pipeline.WithResearcher(r))
	}
	execOpts = append(execOpts, opts.executorOpts...)
	a.Exec = cloud.NewExecutor(a.settings, execOpts...)

	assistantOpts = append(assistantOpts, pipeline.WithAssistantLogger(logger))
	a.Pipeline = pipeline.New(
		pipeline.NewAssistant(a.Exec, assistantOpts...),
		pipeline.WithLedger(a.Ledger),
		pipeline.WithLogger(logger),
	)

	// Conversation store
	if dir, err := cfg.ConversationsDir(); err == nil {
		if store, err := storage.NewConversationStoreWithDir(dir); err == nil {
			store.MaxConversations = cfg.Storage.MaxConversations
			a.Store = store
		} else {
			logger.WithError(err).Warn("conversation store unavailable")
		}
	}

	a.Render = NewRenderer(cfg.UI.Markdown && !args.JSON, cfg.UI.Highlight, cfg.UI.Theme)
	return a, nil
}

// Reload applies a changed config file to the running app. Selections made
// on the command line keep priority over the file.
func (a *App) Reload(cfg *config.Config, args Args) {
	if cfg == nil {
		return
	}
	if args.Offline {
		cfg.Offline = true
	}
	a.settings.set(cfg)
	a.Config = cfg
	offline.SetOfflineMode(cfg.Offline)
	if args.Model == "" {
		if d, ok := model.Lookup(cfg.DefaultModel); ok {
			a.ModelKey = d.Key
		}
	}
	if args.Thinking == "" && model.IsThinkingLevel(cfg.ThinkingLevel) {
		a.Thinking = cfg.ThinkingLevel
	}
	a.Log.WithField("model", a.ModelKey).Info("settings reloaded")
}

// contextMessages is the number of prior messages sent with each turn.
func (a *App) contextMessages() int {
	if n := a.settings.get().Storage.ContextMessages; n > 0 {
		return n
	}
	return pipeline.BuildContextMessages
}

// Close releases the ledger and log file.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		_ = a.closers[i].Close()
	}
	a.closers = nil
}

// =============================================================================
// LOCAL COMMANDS
// =============================================================================

// loadConfig loads config for commands that make no model calls.
func loadConfig(args Args) (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		if cfg == nil {
			return nil, WrapError(err, "failed to load config")
		}
		if !args.JSON && !args.Quiet {
			StderrPrint("%s %v (using defaults)\n", WarningStyle.Render("Warning:"), err)
		}
	}
	if args.Offline {
		cfg.Offline = true
	}
	offline.SetOfflineMode(cfg.Offline)
	return cfg, nil
}

// openStore opens the conversation store configured in cfg.
func openStore(cfg *config.Config) (*storage.ConversationStore, error) {
	dir, err := cfg.ConversationsDir()
	if err != nil {
		return nil, WrapError(err, "failed to locate conversations")
	}
	store, err := storage.NewConversationStoreWithDir(dir)
	if err != nil {
		return nil, WrapError(err, "failed to open conversation store")
	}
	store.MaxConversations = cfg.Storage.MaxConversations
	return store, nil
}

// newLogger builds the logger for cfg. Terminal logging defaults to warn
// because commands print their own status lines.
func newLogger(cfg *config.Config, args Args) (*logrus.Logger, io.Closer, error) {
	level := cfg.Log.Level
	switch {
	case args.Verbose:
		level = "debug"
	case args.Quiet && cfg.Log.File == "":
		level = "error"
	case cfg.Log.File == "" && level == "info":
		level = "warn"
	}
	logger, closer, err := logging.New(level, cfg.Log.File)
	if err != nil {
		return nil, nil, WrapError(err, "invalid log settings")
	}
	return logger, closer, nil
}

// rendererFor builds the renderer for a local command.
func rendererFor(cfg *config.Config, args Args) *Renderer {
	return NewRenderer(cfg.UI.Markdown && !args.JSON, cfg.UI.Highlight, cfg.UI.Theme)
}
