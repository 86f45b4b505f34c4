// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// edit_cmd.go - The "edit" command: apply <<<EDIT>>> blocks to a file.
package cli

import (
	"errors"
	"fmt"
	"os"

	"github.com/jeranaias/vibecode/internal/edit"
	"github.com/jeranaias/vibecode/internal/util"
)

// HandleEdit handles "vibe edit <file> [edits|-]".
//
//	vibe edit index.html changes.txt       Apply blocks from a file
//	vibe reply | vibe edit index.html -    Apply blocks from stdin
//	vibe edit index.html -i "make the button blue"
func HandleEdit(args Args) error {
	p := NewArgParser(args.Raw, askBoolFlags...)
	target := p.Subcommand()
	if target == "" {
		return ErrMissingArgument("file", `vibe edit index.html -i "make the header sticky"`)
	}

	info, err := os.Stat(target)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return NewNotFoundError("file", target)
		}
		return err
	}
	source, err := os.ReadFile(target)
	if err != nil {
		return WrapError(err, "failed to read file")
	}

	var edits string
	if instruction := p.FlagAny("instruction", "i"); instruction != "" {
		edits, err = requestEdits(args, instruction, string(source))
		if err != nil {
			return err
		}
	} else {
		edits, err = readSource(p.Positional(1))
		if err != nil {
			return err
		}
	}

	blocks := edit.Parse(edits)
	if len(blocks) == 0 {
		return NewCommandError("edit", "parse", "no <<<EDIT>>> blocks found", nil)
	}
	report := edit.ApplyReport(string(source), blocks)
	diff := edit.ComputeDiff(target, string(source), report.Result)

	dryRun := p.BoolFlag("dry-run")
	written := false
	if !dryRun && report.Applied() > 0 && !diff.Empty() {
		if err := util.AtomicWriteFile(target, []byte(report.Result), info.Mode().Perm()); err != nil {
			return WrapError(err, "failed to write file")
		}
		written = true
	}

	if args.JSON {
		return NewJSONResponse("edit", EditData{
			Blocks:  len(blocks),
			Applied: report.Applied(),
			Skipped: report.Skipped(),
			Summary: report.Summary(),
			Diff:    diff.Unified(),
			Written: written,
		}).Print()
	}

	cfg, err := loadConfig(args)
	if err != nil {
		return err
	}
	r := rendererFor(cfg, args)
	if !args.Quiet && !diff.Empty() {
		fmt.Fprint(stdout, r.highlightDiff(diff.Unified()))
	}
	fmt.Fprintf(stderr, "%s %s (%s)\n", RenderStatus(editStatus(report)), report.Summary(), diff.Stat())
	for _, i := range report.Skipped() {
		fmt.Fprintf(stderr, "  %s block %d: FIND text not found\n", WarningStyle.Render("skipped"), i+1)
	}
	switch {
	case written:
		fmt.Fprintf(stderr, "  %s %s\n", SuccessStyle.Render("wrote"), target)
	case dryRun:
		fmt.Fprintln(stderr, DimStyle.Render("dry run, nothing written"))
	}
	if report.Applied() == 0 {
		return NewCommandError("edit", "apply", "no edit matched the file", nil)
	}
	return nil
}

// requestEdits asks the model for edit blocks against source.
func requestEdits(args Args, instruction, source string) (string, error) {
	app, err := NewApp(args)
	if err != nil {
		return "", err
	}
	defer app.Close()

	ctx, stop := interruptContext(app)
	defer stop()

	if !args.Quiet && !args.JSON {
		fmt.Fprintf(stderr, "%s Smart Editing...\n", InfoStyle.Render("*"))
	}
	res, err := app.Pipeline.Assistant().SmartEdit(ctx, instruction, source, nil, app.ModelKey, nil)
	if err != nil {
		return "", err
	}
	if res.Fallback {
		return "", NewCommandError("edit", "request", res.Reason, res.Err)
	}
	return res.Text, nil
}
