// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package files turns a free-form model reply into named project files.
//
// Filenames are only loosely implied by model output, so each fenced block
// is named by an ordered chain of rules: the fence header, a bare filename on
// the first code line, a filename mentioned just before the block, a default
// name for the language, and finally a positional name. The first rule that
// yields a valid name wins, and names are made unique within one reply.
package files

import (
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"
)

// lookbehind bounds how much text before a block is searched for a filename.
const lookbehind = 260

// ProjectFile is one generated file.
type ProjectFile struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Content  string `json:"content"`
	Language string `json:"language"`
}

// Parse extracts the project files from reply. A reply without fenced blocks
// yields no files; substituting a scaffold is the caller's decision.
func Parse(reply string) []ProjectFile {
	blocks := ExtractBlocks(reply)
	if len(blocks) == 0 {
		return nil
	}

	namer := NewNamer()
	out := make([]ProjectFile, 0, len(blocks))

	for i, b := range blocks {
		boundary := 0
		if i > 0 {
			boundary = blocks[i-1].End
		}
		in := ruleInput{
			block:    b,
			index:    i,
			language: b.Language,
			before:   reply[lookbehindStart(reply, boundary, b.Start):b.Start],
		}

		name := firstMatch(explicitRules, in)
		if name != "" {
			if inferred := LanguageFor(name); inferred != LangText {
				in.language = inferred
			}
		} else {
			name = firstMatch(defaultRules, in)
		}

		out = append(out, ProjectFile{
			ID:       uuid.New().String(),
			Name:     namer.Unique(name),
			Content:  b.Code,
			Language: in.language,
		})
	}
	return out
}

func firstMatch(rules []filenameRule, in ruleInput) string {
	for _, rule := range rules {
		if name := rule(in); name != "" {
			return name
		}
	}
	return ""
}

// lookbehindStart returns max(boundary, start-lookbehind), moved forward to a
// rune boundary.
func lookbehindStart(s string, boundary, start int) int {
	from := start - lookbehind
	if from < boundary {
		from = boundary
	}
	for from < start && !utf8.RuneStart(s[from]) {
		from++
	}
	return from
}

// Find returns the first file whose name matches exactly.
func Find(files []ProjectFile, name string) (ProjectFile, bool) {
	for _, f := range files {
		if f.Name == name {
			return f, true
		}
	}
	return ProjectFile{}, false
}

// Render writes project back out as fenced blocks whose headers carry the
// language and filename, so Parse recovers the same names.
func Render(project []ProjectFile) string {
	var sb strings.Builder
	for i, f := range project {
		if i > 0 {
			sb.WriteString("\n")
		}
		lang := f.Language
		if lang == "" {
			lang = LanguageFor(f.Name)
		}
		sb.WriteString("```" + lang + " " + f.Name + "\n" + f.Content + "\n```\n")
	}
	return sb.String()
}
