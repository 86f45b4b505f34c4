// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// chat.go - Interactive chat session for vibe.
//
// Features:
//   - Line editing and persistent input history (liner)
//   - Ctrl+C cancels the in-flight request; Ctrl+C at the prompt exits
//   - Build, chat and research modes switched with slash commands
//   - Settings reload when the config file changes
//   - Every turn is saved as a session
package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"syscall"

	"github.com/peterh/liner"

	"github.com/jeranaias/vibecode/internal/config"
	"github.com/jeranaias/vibecode/internal/files"
	"github.com/jeranaias/vibecode/internal/model"
	"github.com/jeranaias/vibecode/internal/pipeline"
	"github.com/jeranaias/vibecode/internal/prompt"
	"github.com/jeranaias/vibecode/internal/storage"
)

// =============================================================================
// INPUT
// =============================================================================

// lineReader reads one line of user input.
type lineReader interface {
	ReadInput(prompt string) (string, error)
	Close()
}

// ChatCLI provides input history and line editing for interactive chat.
type ChatCLI struct {
	line        *liner.State
	historyFile string
}

// NewChatCLI creates a ChatCLI with history loaded from the config dir.
func NewChatCLI() *ChatCLI {
	line := liner.NewLiner()
	line.SetCtrlCAborts(true)

	configDir, err := config.ConfigDir()
	if err != nil {
		configDir = os.TempDir()
	}
	c := &ChatCLI{
		line:        line,
		historyFile: filepath.Join(configDir, "chat_history"),
	}
	c.LoadHistory()
	return c
}

// LoadHistory loads command history from file.
func (c *ChatCLI) LoadHistory() {
	if f, err := os.Open(c.historyFile); err == nil {
		_, _ = c.line.ReadHistory(f)
		f.Close()
	}
}

// ReadInput reads a line of input with the given prompt.
func (c *ChatCLI) ReadInput(prompt string) (string, error) {
	input, err := c.line.Prompt(prompt)
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(input) != "" {
		c.line.AppendHistory(input)
	}
	return input, nil
}

// SaveHistory persists command history with 0600 permissions.
func (c *ChatCLI) SaveHistory() {
	if err := config.EnsureConfigDir(); err != nil {
		return
	}
	f, err := os.OpenFile(c.historyFile, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return
	}
	defer f.Close()
	_, _ = c.line.WriteHistory(f)
}

// Close saves history and closes the liner.
func (c *ChatCLI) Close() {
	c.SaveHistory()
	c.line.Close()
}

// pipedReader reads lines from a non-terminal stdin.
type pipedReader struct {
	scanner *bufio.Scanner
}

func newPipedReader(r io.Reader) *pipedReader {
	s := bufio.NewScanner(r)
	s.Buffer(make([]byte, 64*1024), maxStdinPrompt)
	return &pipedReader{scanner: s}
}

func (p *pipedReader) ReadInput(string) (string, error) {
	if p.scanner.Scan() {
		return p.scanner.Text(), nil
	}
	if err := p.scanner.Err(); err != nil {
		return "", err
	}
	return "", io.EOF
}

func (p *pipedReader) Close() {}

// =============================================================================
// SESSION STATE
// =============================================================================

// Chat modes.
const (
	modeBuild    = "build"
	modeChat     = "chat"
	modeResearch = "research"
)

// ChatSession holds the state of one interactive session.
type ChatSession struct {
	app  *App
	args Args
	in   lineReader

	conv    *storage.StoredConversation
	project []files.ProjectFile

	mode     string
	research prompt.ResearchMode
	aiMode   string
	persona  string
	turns    int

	reloads chan *config.Config

	mu         sync.Mutex
	cancelTurn context.CancelFunc
}

func newChatSession(app *App, args Args, in lineReader) *ChatSession {
	return &ChatSession{
		app:     app,
		args:    args,
		in:      in,
		conv:    storage.NewConversation(app.ModelKey),
		mode:    modeBuild,
		aiMode:  app.Config.AIMode,
		persona: app.Config.Persona,
		reloads: make(chan *config.Config, 1),
	}
}

// =============================================================================
// CHAT COMMAND
// =============================================================================

// HandleChat handles "vibe chat".
func HandleChat(args Args) error {
	app, err := NewApp(args)
	if err != nil {
		return err
	}
	defer app.Close()

	var in lineReader
	if IsTTY() {
		in = NewChatCLI()
	} else {
		in = newPipedReader(stdin)
	}
	defer in.Close()

	s := newChatSession(app, args, in)

	p := NewArgParser(args.Raw, askBoolFlags...)
	if ref := p.Flag("session"); ref != "" && app.Store != nil {
		conv, err := app.Store.Resolve(ref)
		if err != nil {
			return sessionError(ref, err)
		}
		s.conv = conv
		s.project = conv.Files
	}
	if dir := p.Flag("dir"); dir != "" {
		if s.project, err = files.ReadDir(dir); err != nil {
			return WrapError(err, "failed to load project")
		}
	}

	ctx, stop := context.WithCancel(context.Background())
	defer stop()
	s.watchConfig(ctx)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		for {
			select {
			case <-sigCh:
				if s.interrupt() {
					fmt.Fprintln(stderr, "\n"+WarningStyle.Render("[Cancelled]"))
				}
			case <-ctx.Done():
				return
			}
		}
	}()

	if !args.Quiet {
		s.printWelcome()
	}
	return s.loop()
}

// loop runs the read-eval-print loop until exit or end of input.
func (s *ChatSession) loop() error {
	for {
		s.applyReloads()

		input, err := s.in.ReadInput(s.prompt())
		if err != nil {
			if errors.Is(err, liner.ErrPromptAborted) || errors.Is(err, io.EOF) {
				fmt.Fprintln(stdout)
				s.printExitSummary()
				return nil
			}
			return WrapError(err, "failed to read input")
		}

		input = strings.TrimSpace(input)
		if input == "" {
			continue
		}
		if strings.HasPrefix(input, "/") {
			cont, err := s.handleSlashCommand(input)
			if err != nil {
				fmt.Fprintf(stderr, "%s %v\n", ErrorStyle.Render("[Error]"), err)
			}
			if !cont {
				s.printExitSummary()
				return nil
			}
			continue
		}
		if strings.EqualFold(input, "exit") || strings.EqualFold(input, "quit") {
			s.printExitSummary()
			return nil
		}

		if err := s.send(input); err != nil {
			fmt.Fprintf(stderr, "%s %v\n", ErrorStyle.Render("[Error]"), err)
			if hint := errorHint(err); hint != "" {
				fmt.Fprintln(stderr, DimStyle.Render(hint))
			}
		}
	}
}

func (s *ChatSession) prompt() string {
	label := s.mode
	if s.mode == modeResearch && s.research != prompt.ResearchChat {
		label += ":" + strings.TrimSuffix(strings.TrimSuffix(string(s.research), "-research"), "-search")
	}
	return fmt.Sprintf("vibe [%s|%s]> ", label, s.app.ModelKey)
}

// send runs one message through the pipeline and saves the session.
func (s *ChatSession) send(message string) error {
	ctx, cancel := context.WithCancel(context.Background())
	s.mu.Lock()
	s.cancelTurn = cancel
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.cancelTurn = nil
		s.mu.Unlock()
		cancel()
	}()

	req := pipeline.Request{
		Message:  message,
		History:  s.conv.Context(s.app.contextMessages()),
		ModelKey: s.app.ModelKey,
		Thinking: s.app.Thinking,
		AIMode:   s.aiMode,
		Persona:  s.persona,
		Chat:     s.mode == modeChat,
		Files:    s.project,
	}
	if s.mode == modeResearch {
		req.Research = s.research
	}

	out, err := runTurn(ctx, s.app, req, s.args)
	if err != nil {
		return err
	}
	s.turns++
	if out.Files != nil {
		s.project = out.Files
		if !s.args.Quiet {
			fmt.Fprintf(stderr, "%s %d file(s) in project (/files to list, /write <dir> to save)\n",
				InfoStyle.Render("*"), len(s.project))
		}
	}
	if out.Edit != nil && !s.args.Quiet {
		fmt.Fprintf(stderr, "%s %s\n", RenderStatus(editStatus(*out.Edit)), out.Edit.Summary())
	}

	recordTurn(s.conv, message, out, s.app.ModelKey)
	s.save()
	return nil
}

func (s *ChatSession) save() {
	if s.app.Store == nil {
		return
	}
	if _, err := s.app.Store.Save(s.conv); err != nil {
		s.app.Log.WithError(err).Warn("failed to save session")
	}
}

// interrupt cancels the in-flight turn. It reports whether one was running.
func (s *ChatSession) interrupt() bool {
	s.mu.Lock()
	cancel := s.cancelTurn
	s.cancelTurn = nil
	s.mu.Unlock()
	if cancel == nil {
		return false
	}
	s.app.Exec.Cancel()
	cancel()
	return true
}

// =============================================================================
// CONFIG RELOAD
// =============================================================================

// watchConfig queues reloaded settings; the loop applies them between turns.
func (s *ChatSession) watchConfig(ctx context.Context) {
	path, err := config.ConfigPathTOML()
	if err != nil {
		return
	}
	if jsonPath, jerr := config.ConfigPathJSON(); jerr == nil {
		if _, serr := os.Stat(path); serr != nil {
			if _, serr := os.Stat(jsonPath); serr == nil {
				path = jsonPath
			}
		}
	}
	if err := config.EnsureConfigDir(); err != nil {
		return
	}
	err = config.Watch(ctx, path, func(cfg *config.Config, err error) {
		if err != nil {
			s.app.Log.WithError(err).Warn("config reload failed")
			return
		}
		select {
		case s.reloads <- cfg:
		default:
			// Replace a pending reload with the newer one.
			select {
			case <-s.reloads:
			default:
			}
			s.reloads <- cfg
		}
	})
	if err != nil {
		s.app.Log.WithError(err).Debug("config watch unavailable")
	}
}

func (s *ChatSession) applyReloads() {
	select {
	case cfg := <-s.reloads:
		s.app.Reload(cfg, s.args)
		s.aiMode = cfg.AIMode
		s.persona = cfg.Persona
		if !s.args.Quiet {
			fmt.Fprintln(stderr, DimStyle.Render("[settings reloaded]"))
		}
	default:
	}
}

// =============================================================================
// SLASH COMMANDS
// =============================================================================

// handleSlashCommand runs a slash command. It returns false to end the session.
func (s *ChatSession) handleSlashCommand(cmd string) (bool, error) {
	parts := strings.Fields(cmd)
	if len(parts) == 0 {
		return true, nil
	}
	command := strings.ToLower(parts[0])
	rest := parts[1:]

	switch command {
	case "/help", "/h", "/?", "/":
		printChatHelp()
	case "/quit", "/q", "/exit":
		return false, nil
	case "/clear", "/new":
		s.save()
		s.conv = storage.NewConversation(s.app.ModelKey)
		s.project = nil
		s.turns = 0
		fmt.Fprintln(stdout, DimStyle.Render("[New conversation]"))
	case "/model", "/m":
		return true, s.setModel(rest)
	case "/thinking", "/t":
		return true, s.setThinking(rest)
	case "/mode":
		return true, s.setMode(rest)
	case "/fast":
		s.aiMode = pipeline.AIModeCodeFast
		fmt.Fprintln(stdout, InfoStyle.Render("[AI mode] code-fast"))
	case "/plan":
		s.aiMode = pipeline.AIModePlanBuild
		fmt.Fprintln(stdout, InfoStyle.Render("[AI mode] plan-build"))
	case "/files":
		s.showFiles(rest)
	case "/write":
		return true, s.writeFiles(rest)
	case "/load":
		return true, s.loadFiles(rest)
	case "/save":
		if s.app.Store == nil {
			return true, NewCommandError("chat", "save", "conversation store unavailable", nil)
		}
		id, err := s.app.Store.Save(s.conv)
		if err != nil {
			return true, err
		}
		fmt.Fprintf(stdout, "%s %s\n", SuccessStyle.Render("[Saved]"), id)
	case "/usage":
		if info, err := s.app.Ledger.Info(0); err == nil {
			fmt.Fprintf(stdout, "%s %d of %d credits used today (%d left)\n",
				InfoStyle.Render("[Usage]"), info.Used, info.Limit, info.Remaining)
		}
	case "/status":
		s.printStatus()
	default:
		return true, fmt.Errorf("unknown command: %s (type /help for commands)", command)
	}
	return true, nil
}

func (s *ChatSession) setModel(rest []string) error {
	if len(rest) == 0 {
		fmt.Fprintf(stdout, "%s %s (available: %s)\n", InfoStyle.Render("[Model]"),
			s.app.ModelKey, strings.Join(model.Keys(), ", "))
		return nil
	}
	d, ok := model.Lookup(strings.Join(rest, " "))
	if !ok {
		return NewValidationErrorWithExample("model", rest[0], "unknown model", "/model "+strings.Join(model.Keys(), "|"))
	}
	s.app.ModelKey = d.Key
	s.args.Model = d.Key
	fmt.Fprintf(stdout, "%s %s %s (%s)\n", InfoStyle.Render("[Model]"), d.TierIcon(), d.Name, d.CostString())
	return nil
}

func (s *ChatSession) setThinking(rest []string) error {
	if len(rest) == 0 {
		lvl := model.Thinking(s.app.Thinking)
		fmt.Fprintf(stdout, "%s %s (%d credits per build)\n", InfoStyle.Render("[Thinking]"), lvl.Label, lvl.Credits)
		return nil
	}
	if !model.IsThinkingLevel(rest[0]) {
		return NewValidationErrorWithExample("thinking level", rest[0], "unknown level", "/thinking low|mid|high|extra-high")
	}
	s.app.Thinking = strings.ToLower(rest[0])
	s.args.Thinking = s.app.Thinking
	lvl := model.Thinking(s.app.Thinking)
	fmt.Fprintf(stdout, "%s %s (%d credits per build)\n", InfoStyle.Render("[Thinking]"), lvl.Label, lvl.Credits)
	return nil
}

func (s *ChatSession) setMode(rest []string) error {
	if len(rest) == 0 {
		fmt.Fprintf(stdout, "%s %s\n", InfoStyle.Render("[Mode]"), s.mode)
		return nil
	}
	switch strings.ToLower(rest[0]) {
	case modeBuild:
		s.mode = modeBuild
	case modeChat:
		s.mode = modeChat
	case modeResearch:
		s.mode = modeResearch
		sub := ""
		if len(rest) > 1 {
			sub = rest[1]
		}
		s.research = prompt.ParseResearchMode(sub)
	default:
		return NewValidationErrorWithExample("mode", rest[0], "unknown mode", "/mode build|chat|research [chat|deep|web]")
	}
	fmt.Fprintf(stdout, "%s %s\n", InfoStyle.Render("[Mode]"), strings.TrimPrefix(s.prompt(), "vibe "))
	return nil
}

func (s *ChatSession) showFiles(rest []string) {
	if len(rest) > 0 {
		if f, ok := files.Find(s.project, rest[0]); ok {
			s.app.Render.PrintFiles([]files.ProjectFile{f}, true)
			return
		}
		fmt.Fprintf(stderr, "%s no file named %s\n", WarningStyle.Render("[Files]"), rest[0])
		return
	}
	s.app.Render.PrintFiles(s.project, false)
}

func (s *ChatSession) writeFiles(rest []string) error {
	if len(rest) == 0 {
		return ErrMissingArgument("directory", "/write ./my-app")
	}
	if len(s.project) == 0 {
		return errors.New("no project files yet")
	}
	written, err := files.WriteDir(rest[0], s.project)
	if err != nil {
		return err
	}
	for _, path := range written {
		fmt.Fprintf(stdout, "  %s %s\n", SuccessStyle.Render("wrote"), path)
	}
	return nil
}

func (s *ChatSession) loadFiles(rest []string) error {
	if len(rest) == 0 {
		return ErrMissingArgument("directory", "/load ./my-app")
	}
	project, err := files.ReadDir(rest[0])
	if err != nil {
		return err
	}
	s.project = project
	s.conv.SetFiles(project)
	fmt.Fprintf(stdout, "%s loaded %d file(s)\n", InfoStyle.Render("[Files]"), len(project))
	return nil
}

// =============================================================================
// DISPLAY
// =============================================================================

func (s *ChatSession) printWelcome() {
	d, _ := model.Lookup(s.app.ModelKey)
	fmt.Fprintln(stdout, TitleStyle.Render("vibe chat"))
	fmt.Fprintf(stdout, "%s %s %s (%s)\n", RenderLabel("Model"), d.TierIcon(), d.Name, d.CostString())
	fmt.Fprintf(stdout, "%s %s\n", RenderLabel("Thinking"), model.Thinking(s.app.Thinking).Label)
	if len(s.project) > 0 {
		fmt.Fprintf(stdout, "%s %d\n", RenderLabel("Project files"), len(s.project))
	}
	if badge := offlineBadge(); badge != "" {
		fmt.Fprintf(stdout, "%s %s\n", RenderLabel("Network"), badge)
	}
	fmt.Fprintln(stdout, DimStyle.Render("Describe an app to build it. /help for commands, Ctrl+C cancels a request."))
	fmt.Fprintln(stdout)
}

func printChatHelp() {
	help := `Commands:
  /mode build|chat|research [chat|deep|web]   Switch how messages are handled
  /model [key]          Show or set the model
  /thinking [level]     Show or set the thinking level
  /fast, /plan          Skip or use the planning step
  /files [name]         List project files, or show one
  /write <dir>          Write project files to a directory
  /load <dir>           Load a project from a directory
  /save                 Save the session now
  /usage                Today's credits
  /status               Session status
  /clear                Start a new conversation
  /exit                 Leave`
	fmt.Fprintln(stdout, help)
}

func (s *ChatSession) printStatus() {
	fmt.Fprintf(stdout, "%s %s\n", RenderLabel("Mode"), s.mode)
	fmt.Fprintf(stdout, "%s %s\n", RenderLabel("AI mode"), s.aiMode)
	fmt.Fprintf(stdout, "%s %s\n", RenderLabel("Model"), s.app.ModelKey)
	fmt.Fprintf(stdout, "%s %s\n", RenderLabel("Thinking"), s.app.Thinking)
	fmt.Fprintf(stdout, "%s %d\n", RenderLabel("Messages"), s.conv.MessageCount())
	fmt.Fprintf(stdout, "%s %d\n", RenderLabel("Project files"), len(s.project))
	if s.conv.ID != "" {
		fmt.Fprintf(stdout, "%s %s\n", RenderLabel("Session"), s.conv.ID)
	}
}

func (s *ChatSession) printExitSummary() {
	if s.args.Quiet {
		return
	}
	msg := fmt.Sprintf("%d turn(s)", s.turns)
	if s.conv.ID != "" {
		msg += ", saved as " + s.conv.ID
	}
	fmt.Fprintln(stdout, DimStyle.Render("Goodbye. "+msg))
}
