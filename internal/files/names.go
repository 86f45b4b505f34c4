// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package files

import (
	"regexp"
	"strconv"
	"strings"
)

// Languages the parser knows default names for.
const (
	LangHTML       = "html"
	LangCSS        = "css"
	LangJavaScript = "javascript"
	LangJSON       = "json"
	LangPython     = "python"
	LangTypeScript = "typescript"
	LangMarkdown   = "markdown"
	LangText       = "text"
)

var extLanguage = map[string]string{
	"html": LangHTML,
	"htm":  LangHTML,
	"css":  LangCSS,
	"js":   LangJavaScript,
	"json": LangJSON,
	"md":   LangMarkdown,
	"py":   LangPython,
	"ts":   LangTypeScript,
	"tsx":  LangTypeScript,
	"jsx":  LangJavaScript,
}

var defaultFilename = map[string]string{
	LangHTML:       "index.html",
	LangCSS:        "style.css",
	LangJavaScript: "script.js",
	LangJSON:       "data.json",
	LangPython:     "main.py",
	LangTypeScript: "main.ts",
	LangMarkdown:   "README.md",
	LangText:       "notes.txt",
}

var languageExt = map[string]string{
	LangHTML:       "html",
	LangCSS:        "css",
	LangJavaScript: "js",
	LangJSON:       "json",
	LangPython:     "py",
	LangTypeScript: "ts",
	LangMarkdown:   "md",
	LangText:       "txt",
}

// Extension returns the text after the last dot of name, or "" when there is
// no dot or the only dot is the first character.
func Extension(name string) string {
	i := strings.LastIndex(name, ".")
	if i <= 0 {
		return ""
	}
	return name[i+1:]
}

// LanguageFor infers a language from a filename's extension, "text" if unknown.
func LanguageFor(name string) string {
	if lang, ok := extLanguage[strings.ToLower(Extension(name))]; ok {
		return lang
	}
	return LangText
}

// =============================================================================
// FILENAME CLEANING
// =============================================================================

var (
	quotesRe      = regexp.MustCompile("^['\"`]+|['\"`]+$")
	filePrefixRe  = regexp.MustCompile(`(?i)^file(name)?\s*[:=]\s*`)
	pathPrefixRe  = regexp.MustCompile(`(?i)^path\s*[:=]\s*`)
	dotSlashRe    = regexp.MustCompile(`^\./+`)
	trailPunctRe  = regexp.MustCompile(`[),.;:]+$`)
	validNameRe   = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9._/-]*\.[a-zA-Z0-9]+$`)
	candidateRe   = regexp.MustCompile("`?([a-zA-Z0-9][a-zA-Z0-9._/-]*\\.[a-zA-Z0-9]+)`?")
	commentWrapRe = regexp.MustCompile(`^(?://+|#+|/\*+|<!--|--|;+)\s*|\s*(?:\*+/|-->)$`)
	commentOpenRe = regexp.MustCompile(`^(?://|#|/\*|<!--|--|;)`)
)

// CleanFilename strips quoting, "file:"/"filename="/"path:" prefixes, a
// leading "./" and trailing punctuation, then accepts the result only if it
// looks like a relative filename with an extension. Anything containing a URL
// scheme is rejected. Rejected input returns "".
func CleanFilename(value string) string {
	name := strings.TrimSpace(value)
	if name == "" {
		return ""
	}
	name = quotesRe.ReplaceAllString(name, "")
	name = filePrefixRe.ReplaceAllString(name, "")
	name = pathPrefixRe.ReplaceAllString(name, "")
	name = dotSlashRe.ReplaceAllString(name, "")
	name = trailPunctRe.ReplaceAllString(name, "")
	if strings.Contains(name, "://") || !validNameRe.MatchString(name) {
		return ""
	}
	return name
}

// PickFilename returns the last filename-looking token in text that survives
// CleanFilename, or "".
func PickFilename(text string) string {
	last := ""
	for _, m := range candidateRe.FindAllStringSubmatch(text, -1) {
		if c := CleanFilename(m[1]); c != "" {
			last = c
		}
	}
	return last
}

// =============================================================================
// FILENAME RULES
// =============================================================================

// ruleInput is what each filename rule may look at.
type ruleInput struct {
	block    Block
	index    int
	language string
	// before is the plain text preceding the block, bounded by the previous
	// block's end.
	before string
}

// filenameRule proposes a filename or returns "".
type filenameRule func(in ruleInput) string

// explicitRules name the file from what the reply actually says. Their
// result also decides the language when its extension is known.
var explicitRules = []filenameRule{
	headerRule,
	firstLineRule,
	precedingTextRule,
}

// defaultRules only run when no explicit rule matched.
var defaultRules = []filenameRule{
	languageDefaultRule,
	positionalRule,
}

// headerRule takes the first header token containing a dot: ```css styles/main.css
func headerRule(in ruleInput) string {
	for _, part := range strings.Fields(in.block.Header) {
		if strings.Contains(part, ".") {
			return CleanFilename(part)
		}
	}
	return ""
}

// firstLineRule reads a filename from the first code line. A comment line may
// carry a note next to the name ("// app.js - entry point"), so it yields the
// last filename-looking token. A plain code line must be nothing but a
// filename, otherwise member access like "document.body" would match.
func firstLineRule(in ruleInput) string {
	line := in.block.Code
	if i := strings.IndexByte(line, '\n'); i >= 0 {
		line = line[:i]
	}
	line = strings.TrimSpace(line)
	if commentOpenRe.MatchString(line) {
		return PickFilename(commentWrapRe.ReplaceAllString(line, ""))
	}
	if line == "" || strings.ContainsAny(line, " \t") && !filePrefixRe.MatchString(line) && !pathPrefixRe.MatchString(line) {
		return ""
	}
	return CleanFilename(line)
}

// precedingTextRule looks for "Here is `app.js`:" style mentions.
func precedingTextRule(in ruleInput) string {
	return PickFilename(in.before)
}

func languageDefaultRule(in ruleInput) string {
	return defaultFilename[in.language]
}

func positionalRule(in ruleInput) string {
	ext, ok := languageExt[in.language]
	if !ok {
		ext = "txt"
	}
	return "file" + strconv.Itoa(in.index+1) + "." + ext
}

// =============================================================================
// UNIQUE NAMES
// =============================================================================

// Namer hands out filenames unique under case-insensitive comparison by
// suffixing -2, -3, ... before the extension.
type Namer struct {
	used map[string]struct{}
}

// NewNamer returns an empty Namer.
func NewNamer() *Namer {
	return &Namer{used: make(map[string]struct{})}
}

// Reserve marks name as taken without returning it.
func (n *Namer) Reserve(name string) {
	n.used[strings.ToLower(name)] = struct{}{}
}

// Unique returns name, or the first free suffixed variant of it.
func (n *Namer) Unique(name string) string {
	if name == "" {
		return ""
	}
	if _, taken := n.used[strings.ToLower(name)]; !taken {
		n.Reserve(name)
		return name
	}

	ext := Extension(name)
	base := name
	if ext != "" {
		base = name[:len(name)-len(ext)-1]
	} else {
		ext = "txt"
	}

	for i := 2; ; i++ {
		next := base + "-" + strconv.Itoa(i) + "." + ext
		if _, taken := n.used[strings.ToLower(next)]; !taken {
			n.Reserve(next)
			return next
		}
	}
}
