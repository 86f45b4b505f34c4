// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// render.go - Markdown rendering (glamour) and syntax highlighting (chroma).
package cli

import (
	"fmt"
	"strings"

	"github.com/alecthomas/chroma/v2"
	"github.com/alecthomas/chroma/v2/formatters"
	"github.com/alecthomas/chroma/v2/lexers"
	chromaStyles "github.com/alecthomas/chroma/v2/styles"
	"github.com/charmbracelet/glamour"

	"github.com/jeranaias/vibecode/internal/files"
)

// =============================================================================
// MARKDOWN RENDERING
// =============================================================================

// Renderer formats replies for the terminal. The zero value prints text as-is.
type Renderer struct {
	md        *glamour.TermRenderer
	highlight bool
}

// NewRenderer builds a renderer for the given UI settings. Markdown is only
// rendered when stdout is a terminal so piped output stays byte-exact.
func NewRenderer(markdown, highlight bool, theme string) *Renderer {
	r := &Renderer{highlight: highlight && ColorsEnabled()}
	if !markdown || !IsStdoutTTY() {
		return r
	}

	style := glamour.WithAutoStyle()
	switch theme {
	case "dark", "light", "notty":
		style = glamour.WithStandardStyle(theme)
	}
	width := GetTerminalWidth()
	if width > 100 {
		width = 100
	}
	md, err := glamour.NewTermRenderer(style, glamour.WithWordWrap(width-4))
	if err == nil {
		r.md = md
	}
	return r
}

// Markdown reports whether replies are rendered rather than streamed.
func (r *Renderer) Markdown() bool {
	return r != nil && r.md != nil
}

// RenderMarkdown renders content, returning it unchanged on failure.
func (r *Renderer) RenderMarkdown(content string) string {
	if !r.Markdown() {
		return content
	}
	rendered, err := r.md.Render(content)
	if err != nil {
		return content
	}
	return rendered
}

// DisplayResponse writes a complete reply to stdout.
func (r *Renderer) DisplayResponse(response string) {
	out := r.RenderMarkdown(response)
	fmt.Fprint(stdout, out)
	if !strings.HasSuffix(out, "\n") {
		fmt.Fprintln(stdout)
	}
}

// =============================================================================
// SYNTAX HIGHLIGHTING
// =============================================================================

// HighlightCode colors code for a 256-color terminal. language is a chroma
// lexer name or alias; unknown names fall back to content analysis.
func (r *Renderer) HighlightCode(code, language string) string {
	if r == nil || !r.highlight {
		return code
	}
	return highlightCode(code, language)
}

func highlightCode(code, language string) string {
	lexer := lexers.Get(language)
	if lexer == nil {
		lexer = lexers.Analyse(code)
	}
	if lexer == nil {
		lexer = lexers.Fallback
	}
	lexer = chroma.Coalesce(lexer)

	style := chromaStyles.Get("monokai")
	if style == nil {
		style = chromaStyles.Fallback
	}
	formatter := formatters.Get("terminal256")
	if formatter == nil {
		formatter = formatters.Fallback
	}

	iterator, err := lexer.Tokenise(nil, code)
	if err != nil {
		return code
	}
	var buf strings.Builder
	if err := formatter.Format(&buf, style, iterator); err != nil {
		return code
	}
	return buf.String()
}

// highlightDiff colors a unified diff.
func (r *Renderer) highlightDiff(diff string) string {
	return r.HighlightCode(diff, "diff")
}

// =============================================================================
// FILE LISTINGS
// =============================================================================

// PrintFiles writes each project file under a header. With contents false
// only the names and sizes are listed.
func (r *Renderer) PrintFiles(project []files.ProjectFile, contents bool) {
	if len(project) == 0 {
		fmt.Fprintln(stdout, DimStyle.Render("No files."))
		return
	}
	for _, f := range project {
		lang := f.Language
		if lang == "" {
			lang = files.LanguageFor(f.Name)
		}
		if !contents {
			fmt.Fprintf(stdout, "  %s %s\n", RenderLabel(f.Name, 28), DimStyle.Render(lang+", "+formatBytes(int64(len(f.Content)))))
			continue
		}
		fmt.Fprintln(stdout, FileHeaderStyle.Render(f.Name))
		body := r.HighlightCode(f.Content, lang)
		fmt.Fprint(stdout, body)
		if !strings.HasSuffix(body, "\n") {
			fmt.Fprintln(stdout)
		}
		fmt.Fprintln(stdout)
	}
}
