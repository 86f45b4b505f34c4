// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// files_cmd.go - The "files" command: split a reply into project files.
package cli

import (
	"fmt"
	"strings"

	"github.com/jeranaias/vibecode/internal/files"
	"github.com/jeranaias/vibecode/internal/util"
)

// HandleFiles handles "vibe files [reply|-]".
//
//	vibe files reply.md --out ./app     Parse and write
//	vibe files --session 2 --list       Files of a saved session
//	vibe files reply.md --html page.html  Write the combined preview page
func HandleFiles(args Args) error {
	p := NewArgParser(args.Raw, askBoolFlags...)

	cfg, err := loadConfig(args)
	if err != nil {
		return err
	}

	var project []files.ProjectFile
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
	} else {
		text, err := readSource(p.Subcommand())
		if err != nil {
			return err
		}
		if p.BoolFlag("scaffold") {
			title := p.FlagOrDefault("title", firstLine(text))
			var added bool
			if text, added = files.EnsureCode(text, title); added && !args.Quiet && !args.JSON {
				fmt.Fprintln(stderr, DimStyle.Render("no code found, starter project added"))
			}
		}
		project = files.Parse(text)
	}

	var written []string
	if out := p.Flag("out"); out != "" && len(project) > 0 {
		written, err = files.WriteDir(out, project)
		if err != nil {
			return WrapError(err, "failed to write files")
		}
	}

	page, previewable := files.PreviewHTML(project)
	if htmlPath := p.Flag("html"); htmlPath != "" {
		if !previewable {
			return NewCommandError("files", "html", "project has no HTML, CSS or JavaScript to combine", nil)
		}
		if err := util.AtomicWriteFile(htmlPath, []byte(page), 0644); err != nil {
			return WrapError(err, "failed to write preview page")
		}
		written = append(written, htmlPath)
	}

	if args.JSON {
		return NewJSONResponse("files", FilesData{Files: project, Written: written, Preview: previewable}).Print()
	}

	r := rendererFor(cfg, args)
	if !args.Quiet || len(written) == 0 {
		r.PrintFiles(project, !p.BoolFlag("list"))
	}
	for _, path := range written {
		fmt.Fprintf(stderr, "  %s %s\n", SuccessStyle.Render("wrote"), path)
	}
	return nil
}

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i]
	}
	return strings.TrimSpace(strings.TrimLeft(s, "#"))
}
