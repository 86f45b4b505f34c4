// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package pipeline

import (
	"regexp"
	"strings"

	"github.com/jeranaias/vibecode/internal/files"
)

const (
	largePromptChars = 200
	largePromptLines = 5

	// minEditableCode is the trimmed length current code needs before an
	// edit-sounding message is routed to smart editing.
	minEditableCode = 50

	checklistMinItems = 4
)

var (
	editIntentRe = regexp.MustCompile(`(?i)\b(edit|change|modify|fix|update|replace|add|remove|delete|rename|move|tweak|adjust|make it|convert)\b`)
	listItemRe   = regexp.MustCompile(`^\s*(?:\d+[.)]|[-*])\s+`)
)

// LooksLikeChecklist reports whether a build reply is a plan or task list
// instead of code.
func LooksLikeChecklist(text string) bool {
	lower := strings.ToLower(text)
	if strings.Contains(lower, "implementation plan") || strings.Contains(lower, "todo") || strings.Contains(lower, "to-do") {
		return true
	}
	items := 0
	for _, line := range strings.Split(text, "\n") {
		if listItemRe.MatchString(line) {
			items++
		}
	}
	return items >= checklistMinItems && files.CountBlocks(text) == 0
}

// IsLargePrompt reports whether message is long enough to deserve a todo list.
func IsLargePrompt(message string) bool {
	return len(message) > largePromptChars || len(strings.Split(message, "\n")) > largePromptLines
}

// IsEditRequest reports whether message asks to change existing code.
func IsEditRequest(message, currentCode string) bool {
	return len(strings.TrimSpace(currentCode)) > minEditableCode && editIntentRe.MatchString(message)
}
