// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// ask.go - The "ask" command: one request through the pipeline.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/jeranaias/vibecode/internal/files"
	"github.com/jeranaias/vibecode/internal/model"
	"github.com/jeranaias/vibecode/internal/pipeline"
	"github.com/jeranaias/vibecode/internal/prompt"
	"github.com/jeranaias/vibecode/internal/storage"
)

// askBoolFlags take no value.
var askBoolFlags = []string{"chat", "fast", "no-save", "dry-run", "confirm", "scaffold", "list"}

// maxStdinPrompt bounds a prompt read from a pipe.
const maxStdinPrompt = 1 << 20

// =============================================================================
// ASK COMMAND
// =============================================================================

// HandleAsk handles "vibe ask <prompt>" and bare prompts.
func HandleAsk(args Args) error {
	p := NewArgParser(args.Raw, askBoolFlags...)

	query := strings.TrimSpace(args.Query)
	if query == "" && !IsTTY() {
		data, err := io.ReadAll(io.LimitReader(stdin, maxStdinPrompt))
		if err != nil {
			return WrapError(err, "failed to read prompt from stdin")
		}
		query = strings.TrimSpace(string(data))
	}
	if query == "" {
		return ErrMissingArgument("prompt", `vibe ask "build a pomodoro timer"`)
	}

	research, err := researchFlag(p)
	if err != nil {
		return err
	}

	app, err := NewApp(args)
	if err != nil {
		return err
	}
	defer app.Close()

	ctx, stop := interruptContext(app)
	defer stop()

	// Conversation to continue, if any.
	conv := storage.NewConversation(app.ModelKey)
	if ref := p.Flag("session"); ref != "" {
		if app.Store == nil {
			return NewCommandError("ask", "load session", "conversation store unavailable", nil)
		}
		conv, err = app.Store.Resolve(ref)
		if err != nil {
			return sessionError(ref, err)
		}
	}
	project := conv.Files

	dir := p.Flag("dir")
	if dir != "" {
		project, err = files.ReadDir(dir)
		if err != nil {
			return WrapError(err, "failed to load project")
		}
	}

	aiMode := app.Config.AIMode
	if p.BoolFlag("fast") {
		aiMode = pipeline.AIModeCodeFast
	}
	persona := p.FlagOrDefault("persona", app.Config.Persona)

	req := pipeline.Request{
		Message:  query,
		History:  conv.Context(app.contextMessages()),
		ModelKey: app.ModelKey,
		Thinking: app.Thinking,
		AIMode:   aiMode,
		Persona:  persona,
		Chat:     p.BoolFlag("chat"),
		Research: research,
		Files:    project,
	}

	out, err := runTurn(ctx, app, req, args)
	if err != nil {
		return err
	}

	// Files: --out wins; --dir receives edits in place.
	var written []string
	target := p.Flag("out")
	if target == "" && dir != "" && out.Files != nil {
		target = dir
	}
	if target != "" && len(out.Files) > 0 {
		written, err = files.WriteDir(target, out.Files)
		if err != nil {
			return WrapError(err, "failed to write files")
		}
	}

	var sessionID string
	if !p.BoolFlag("no-save") && app.Store != nil {
		recordTurn(conv, query, out, app.ModelKey)
		sessionID, err = app.Store.Save(conv)
		if err != nil {
			app.Log.WithError(err).Warn("failed to save session")
		}
	}

	if args.JSON {
		return NewJSONResponse("ask", askData(app, out, written, sessionID)).Print()
	}
	if !args.Quiet {
		printTurnSummary(app, out, written, sessionID)
	}
	return nil
}

// researchFlag validates --research.
func researchFlag(p *ArgParser) (prompt.ResearchMode, error) {
	v := p.Flag("research")
	if v == "" {
		if p.BoolFlag("research") {
			return prompt.ResearchChat, nil
		}
		return "", nil
	}
	switch strings.ToLower(v) {
	case "chat", "deep", "web", string(prompt.ResearchDeep), string(prompt.ResearchWeb):
		return prompt.ParseResearchMode(v), nil
	}
	return "", NewValidationErrorWithExample("research mode", v, "unknown mode", "--research chat|deep|web")
}

// interruptContext cancels the in-flight call on SIGINT or SIGTERM.
func interruptContext(app *App) (context.Context, func()) {
	ctx, cancel := context.WithCancel(context.Background())
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		select {
		case <-sigCh:
			app.Exec.Cancel()
			cancel()
		case <-ctx.Done():
		}
	}()
	return ctx, func() {
		signal.Stop(sigCh)
		cancel()
	}
}

// =============================================================================
// TURN EXECUTION (shared with chat)
// =============================================================================

// runTurn sends req and prints the reply. Replies stream to stdout unless
// they are rendered as markdown or the output is JSON.
func runTurn(ctx context.Context, app *App, req pipeline.Request, args Args) (pipeline.Outcome, error) {
	stream := !args.JSON && !app.Render.Markdown()
	streamed := false
	if stream {
		req.OnChunk = func(delta, _ string) {
			if delta == "" {
				return
			}
			streamed = true
			fmt.Fprint(stdout, delta)
		}
	}
	if !args.Quiet && !args.JSON {
		req.OnPhase = func(ph pipeline.Phase) {
			if streamed {
				fmt.Fprintln(stdout)
				streamed = false
			}
			fmt.Fprintf(stderr, "%s %s...\n", InfoStyle.Render("*"), ph)
		}
	}

	app.Log.WithField("strategy", pipeline.Select(req)).Debug("turn started")
	out, err := app.Pipeline.Send(ctx, req)
	if streamed {
		fmt.Fprintln(stdout)
	}
	if err != nil {
		if errors.Is(err, context.Canceled) && ctx.Err() != nil {
			return out, WrapError(err, "interrupted")
		}
		return out, err
	}

	if !args.JSON {
		if !stream {
			app.Render.DisplayResponse(out.Reply)
		}
		if out.Fallback && !args.Quiet {
			fmt.Fprintf(stderr, "%s %s\n", FallbackStyle.Render("Offline fallback:"), out.FallbackReason)
		}
	}
	return out, nil
}

// recordTurn appends the exchange to conv.
func recordTurn(conv *storage.StoredConversation, message string, out pipeline.Outcome, modelKey string) {
	conv.Append(model.RoleUser, message)
	var msg *storage.StoredMessage
	if out.Fallback {
		msg = conv.AppendFallback(out.Reply, out.FallbackReason)
	} else {
		msg = conv.Append(model.RoleAssistant, out.Reply)
	}
	msg.ModelKey = modelKey
	msg.DurationMs = out.Duration.Milliseconds()
	if out.Files != nil {
		conv.SetFiles(out.Files)
	}
	if conv.Model == "" {
		conv.Model = modelKey
	}
}

func printTurnSummary(app *App, out pipeline.Outcome, written []string, sessionID string) {
	parts := []string{string(out.Strategy)}
	if out.Edit != nil {
		parts = append(parts, out.Edit.Summary())
	}
	if n := len(out.Files); n > 0 {
		parts = append(parts, fmt.Sprintf("%d file(s)", n))
	}
	if out.Refined {
		parts = append(parts, "refined")
	}
	if out.Scaffolded {
		parts = append(parts, "starter project added")
	}
	if info, err := app.Ledger.Info(0); err == nil {
		parts = append(parts, fmt.Sprintf("%d/%d credits used", info.Used, info.Limit))
	}
	fmt.Fprintln(stderr, DimStyle.Render(strings.Join(parts, " | ")))

	for _, path := range written {
		fmt.Fprintf(stderr, "  %s %s\n", SuccessStyle.Render("wrote"), path)
	}
	if sessionID != "" {
		fmt.Fprintln(stderr, DimStyle.Render("session "+sessionID))
	}
}

func askData(app *App, out pipeline.Outcome, written []string, sessionID string) AskData {
	data := AskData{
		Strategy:       string(out.Strategy),
		Model:          app.ModelKey,
		Reply:          out.Reply,
		ReplyTokens:    prompt.EstimateTokens(out.Reply),
		Fallback:       out.Fallback,
		FallbackReason: out.FallbackReason,
		Plan:           out.Plan,
		Refined:        out.Refined,
		Scaffolded:     out.Scaffolded,
		Files:          out.Files,
		Written:        written,
		SessionID:      sessionID,
		DurationMs:     out.Duration.Milliseconds(),
	}
	for _, t := range out.Todo {
		data.Todo = append(data.Todo, TodoItem{Task: t.Task, Priority: t.Priority})
	}
	if out.Edit != nil {
		data.Edits = &EditData{
			Blocks:  len(out.Edit.Outcomes),
			Applied: out.Edit.Applied(),
			Skipped: out.Edit.Skipped(),
			Summary: out.Edit.Summary(),
			Written: len(written) > 0,
		}
	}
	return data
}

// sessionError maps store lookup failures to CLI errors.
func sessionError(ref string, err error) error {
	if errors.Is(err, storage.ErrConversationNotFound) {
		return NewNotFoundError("session", ref)
	}
	return WrapError(err, "failed to load session")
}
