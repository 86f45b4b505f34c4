// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// preview_cmd.go - The "preview" command: serve a project on loopback.
package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/jeranaias/vibecode/internal/files"
	"github.com/jeranaias/vibecode/internal/server"
)

// HandlePreview handles "vibe preview [dir]" and "vibe preview --session <ref>".
// Edits made through the preview API are written back to the directory or
// saved to the session.
func HandlePreview(args Args) error {
	p := NewArgParser(args.Raw, askBoolFlags...)

	cfg, err := loadConfig(args)
	if err != nil {
		return err
	}
	logger, closer, err := newLogger(cfg, args)
	if err != nil {
		return err
	}
	defer closer.Close()

	var (
		project  []files.ProjectFile
		onChange func([]files.ProjectFile)
		source   string
	)

	if ref := p.Flag("session"); ref != "" {
		store, err := openStore(cfg)
		if err != nil {
			return err
		}
		conv, err := store.Resolve(ref)
		if err != nil {
			return sessionError(ref, err)
		}
		project = conv.Files
		source = "session " + conv.ID
		onChange = func(updated []files.ProjectFile) {
			conv.SetFiles(updated)
			if _, err := store.Save(conv); err != nil {
				logger.WithError(err).Warn("failed to save session files")
			}
		}
	} else {
		dir := p.Subcommand()
		if dir == "" {
			dir = "."
		}
		project, err = files.ReadDir(dir)
		if err != nil {
			return WrapError(err, "failed to load project")
		}
		source = dir
		onChange = func(updated []files.ProjectFile) {
			if _, err := files.WriteDir(dir, updated); err != nil {
				logger.WithError(err).Warn("failed to write project files")
			}
		}
	}
	if len(project) == 0 {
		return NewCommandError("preview", "load", "no project files to serve", nil)
	}

	addr := p.FlagOrDefault("addr", cfg.Preview.Addr)
	srv := server.New(addr, server.WithLogger(logger), server.WithOnChange(onChange))
	srv.SetFiles(project)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return srv.Run(ctx, func(url string) {
		if args.JSON {
			_ = NewJSONResponse("preview", map[string]interface{}{
				"url":    url,
				"source": source,
				"files":  len(project),
			}).Print()
			return
		}
		fmt.Fprintf(stdout, "%s %s\n", SuccessStyle.Render("Preview:"), url)
		if !args.Quiet {
			fmt.Fprintf(stdout, "%s %s (%d files)\n", RenderLabel("Serving"), source, len(project))
			fmt.Fprintln(stdout, DimStyle.Render("Press Ctrl+C to stop."))
		}
	})
}
