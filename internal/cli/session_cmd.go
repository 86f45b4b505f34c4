// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// session_cmd.go - Saved session commands for vibe.
//
// Command: sessions [subcommand]
// Short:   Manage saved conversations
// Aliases: session
//
// Subcommands:
//   list (default)      List saved sessions, newest first (aliases: ls)
//   show <ref>          Transcript and files
//   export <ref>        Write the transcript as md, html or json
//   delete <ref>        Delete a session (requires --confirm)
//   search <text>       Sessions whose text contains <text>
//   clear               Delete every session (requires --confirm)
//
// A <ref> is a 1-based list index, a full ID or a unique ID prefix.
//
// Examples:
//   vibe sessions show 1
//   vibe sessions export 1 --format html --out ./exports
//   vibe sessions delete conv_2025 --confirm
package cli

import (
	"fmt"
	"strings"
	"time"

	"github.com/jeranaias/vibecode/internal/export"
	"github.com/jeranaias/vibecode/internal/storage"
)

// SessionListData is the JSON payload of "sessions list" and "sessions search".
type SessionListData struct {
	Sessions []storage.ConversationMeta `json:"sessions"`
	Count    int                        `json:"count"`
	Query    string                     `json:"query,omitempty"`
}

// HandleSessions handles the "sessions" command.
func HandleSessions(args Args) error {
	p := NewArgParser(args.Raw, askBoolFlags...)

	cfg, err := loadConfig(args)
	if err != nil {
		return err
	}
	store, err := openStore(cfg)
	if err != nil {
		return err
	}

	switch args.Subcommand {
	case "", "list", "ls":
		metas, err := store.List()
		if err != nil {
			return WrapError(err, "failed to list sessions")
		}
		return printSessionList(metas, "", args)

	case "search":
		q := strings.Join(p.PositionalFrom(1), " ")
		if q == "" {
			return ErrMissingArgument("text", `vibe sessions search "todo app"`)
		}
		metas, err := store.Search(q)
		if err != nil {
			return WrapError(err, "failed to search sessions")
		}
		return printSessionList(metas, q, args)

	case "show":
		conv, err := resolveSession(store, p.Positional(1), "vibe sessions show 1")
		if err != nil {
			return err
		}
		if args.JSON {
			return NewJSONResponse("sessions show", conv).Print()
		}
		printSession(conv, rendererFor(cfg, args), args)
		return nil

	case "export":
		conv, err := resolveSession(store, p.Positional(1), "vibe sessions export 1 --format html")
		if err != nil {
			return err
		}
		format := p.FlagOrDefault("format", "md")
		if _, err := export.ParseFormat(format); err != nil {
			return ErrUnsupportedFormat(format, []string{"md", "html", "json"})
		}
		outDir, err := ValidateOutputPath(p.FlagOrDefault("out", "."))
		if err != nil {
			return NewValidationError("out", p.Flag("out"), err.Error())
		}
		opts := export.DefaultOptions()
		opts.OutputDir = outDir
		opts.Theme = cfg.UI.Theme
		if opts.Theme != "light" {
			opts.Theme = "dark"
		}
		path, err := export.ExportConversation(conv, format, opts)
		if err != nil {
			return WrapError(err, "export failed")
		}
		if args.JSON {
			return NewJSONResponse("sessions export", map[string]interface{}{
				"id":     conv.ID,
				"format": format,
				"path":   path,
			}).Print()
		}
		fmt.Fprintf(stdout, "%s exported %s to %s\n", SuccessStyle.Render("[OK]"), conv.ID, path)
		return nil

	case "delete", "rm":
		conv, err := resolveSession(store, p.Positional(1), "vibe sessions delete 1 --confirm")
		if err != nil {
			return err
		}
		if !p.BoolFlag("confirm") {
			return NewValidationErrorWithExample("confirm", "", "deleting a session cannot be undone",
				"vibe sessions delete "+conv.ID+" --confirm")
		}
		if err := store.Delete(conv.ID); err != nil {
			return sessionError(conv.ID, err)
		}
		if args.JSON {
			return NewJSONResponse("sessions delete", map[string]interface{}{"id": conv.ID}).Print()
		}
		fmt.Fprintf(stdout, "%s deleted %s\n", SuccessStyle.Render("[OK]"), conv.ID)
		return nil

	case "clear":
		if !p.BoolFlag("confirm") {
			return NewValidationErrorWithExample("confirm", "", "clearing deletes every saved session",
				"vibe sessions clear --confirm")
		}
		n, err := store.Clear()
		if err != nil {
			return WrapError(err, "failed to clear sessions")
		}
		if args.JSON {
			return NewJSONResponse("sessions clear", map[string]interface{}{"deleted": n}).Print()
		}
		fmt.Fprintf(stdout, "%s deleted %d session(s)\n", SuccessStyle.Render("[OK]"), n)
		return nil

	default:
		return NewValidationErrorWithExample("sessions subcommand", args.Subcommand,
			"unknown subcommand", "vibe sessions list|show|export|delete|search|clear")
	}
}

func resolveSession(store *storage.ConversationStore, ref, example string) (*storage.StoredConversation, error) {
	if ref == "" {
		return nil, ErrMissingArgument("session", example)
	}
	conv, err := store.Resolve(ref)
	if err != nil {
		return nil, sessionError(ref, err)
	}
	return conv, nil
}

func printSessionList(metas []storage.ConversationMeta, query string, args Args) error {
	if args.JSON {
		if metas == nil {
			metas = []storage.ConversationMeta{}
		}
		return NewJSONResponse("sessions", SessionListData{Sessions: metas, Count: len(metas), Query: query}).Print()
	}
	fmt.Fprint(stdout, storage.FormatSessionList(metas))
	if len(metas) == 0 {
		fmt.Fprintln(stdout)
	}
	return nil
}

func printSession(conv *storage.StoredConversation, r *Renderer, args Args) {
	fmt.Fprintln(stdout, TitleStyle.Render(conv.Summary))
	fmt.Fprintf(stdout, "%s%s\n", RenderLabel("ID:"), conv.ID)
	fmt.Fprintf(stdout, "%s%s\n", RenderLabel("Model:"), conv.Model)
	fmt.Fprintf(stdout, "%s%s\n", RenderLabel("Updated:"), conv.UpdatedAt.Local().Format("2006-01-02 15:04"))
	fmt.Fprintf(stdout, "%s%d (%d fallback)\n", RenderLabel("Messages:"), conv.MessageCount(), conv.FallbackCount())
	fmt.Fprintln(stdout, RenderSeparatorAdaptive())

	for _, m := range conv.Messages {
		header := SectionStyle.Render(m.Role.DisplayName())
		if m.Fallback {
			header += " " + FallbackStyle.Render("(offline fallback: "+m.FallbackReason+")")
		}
		if m.DurationMs > 0 {
			header += " " + DimStyle.Render(formatDurationShort(time.Duration(m.DurationMs)*time.Millisecond))
		}
		fmt.Fprintln(stdout, header)
		if args.Quiet {
			fmt.Fprintln(stdout, m.Content)
		} else {
			r.DisplayResponse(m.Content)
		}
	}

	if len(conv.Files) > 0 {
		fmt.Fprintln(stdout, RenderSeparatorAdaptive())
		r.PrintFiles(conv.Files, false)
	}
}
