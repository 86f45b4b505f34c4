// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package files

import (
	"regexp"
	"strings"
)

var (
	fenceRe       = regexp.MustCompile("```([^\\n`]*)\\n([\\s\\S]*?)```")
	fileTokenRe   = regexp.MustCompile(`(?i)\.[a-z0-9]+$`)
	languageAlias = map[string]string{
		"js":  "javascript",
		"jsx": "javascript",
		"ts":  "typescript",
		"tsx": "typescript",
		"py":  "python",
		"md":  "markdown",
		"yml": "yaml",
		"sh":  "bash",
	}
)

// Block is one fenced code block found in a reply.
type Block struct {
	// Language is derived from the first header token: a filename-looking
	// token maps through its extension, anything else is lower-cased and
	// de-aliased. Empty headers give "text".
	Language string
	Header   string
	Code     string

	// Start and End are byte offsets of the whole fence in the reply.
	Start int
	End   int
}

// ExtractBlocks returns every fenced block in text in document order.
func ExtractBlocks(text string) []Block {
	locs := fenceRe.FindAllStringSubmatchIndex(text, -1)
	blocks := make([]Block, 0, len(locs))
	for _, loc := range locs {
		header := strings.TrimSpace(text[loc[2]:loc[3]])
		blocks = append(blocks, Block{
			Language: headerLanguage(header),
			Header:   header,
			Code:     strings.TrimSpace(text[loc[4]:loc[5]]),
			Start:    loc[0],
			End:      loc[1],
		})
	}
	return blocks
}

// CountBlocks returns the number of fenced blocks in text.
func CountBlocks(text string) int {
	return len(fenceRe.FindAllStringIndex(text, -1))
}

func headerLanguage(header string) string {
	token := ""
	if fields := strings.Fields(header); len(fields) > 0 {
		token = fields[0]
	}

	raw := strings.ToLower(token)
	if fileTokenRe.MatchString(token) {
		raw = LanguageFor(token)
	}
	if alias, ok := languageAlias[raw]; ok {
		return alias
	}
	if raw == "" {
		return LangText
	}
	return raw
}
