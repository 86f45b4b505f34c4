// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

import "strings"

// ThinkingLevel trades credits for effort on build requests. The level's
// guidance is injected into the user message, and Credits becomes the usage
// cost of the request.
type ThinkingLevel struct {
	ID       string
	Label    string
	Credits  int
	Guidance string
}

// Thinking level IDs.
const (
	ThinkingLow       = "low"
	ThinkingMid       = "mid"
	ThinkingHigh      = "high"
	ThinkingExtraHigh = "extra-high"
)

// DefaultThinking is used for unknown or empty level IDs.
const DefaultThinking = ThinkingMid

var thinkingLevels = map[string]ThinkingLevel{
	ThinkingLow: {
		ID: ThinkingLow, Label: "Low", Credits: 1,
		Guidance: "Use fast iteration and keep the solution straightforward.",
	},
	ThinkingMid: {
		ID: ThinkingMid, Label: "Mid", Credits: 3,
		Guidance: "Balance speed and quality with solid structure.",
	},
	ThinkingHigh: {
		ID: ThinkingHigh, Label: "High", Credits: 5,
		Guidance: "Reason carefully, handle edge cases, and polish UX details.",
	},
	ThinkingExtraHigh: {
		ID: ThinkingExtraHigh, Label: "Extra High", Credits: 50,
		Guidance: "Use deep planning, stronger architecture, and enhanced prompt interpretation.",
	},
}

// Thinking returns the level for id, falling back to the mid level.
func Thinking(id string) ThinkingLevel {
	if lvl, ok := thinkingLevels[strings.ToLower(strings.TrimSpace(id))]; ok {
		return lvl
	}
	return thinkingLevels[DefaultThinking]
}

// IsThinkingLevel reports whether id names a known level.
func IsThinkingLevel(id string) bool {
	_, ok := thinkingLevels[strings.ToLower(strings.TrimSpace(id))]
	return ok
}

// ThinkingLevels returns all levels ordered by credits.
func ThinkingLevels() []ThinkingLevel {
	return []ThinkingLevel{
		thinkingLevels[ThinkingLow],
		thinkingLevels[ThinkingMid],
		thinkingLevels[ThinkingHigh],
		thinkingLevels[ThinkingExtraHigh],
	}
}
