// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package edit parses the targeted find/replace blocks a model emits for
// incremental changes and applies them to the current file content.
//
// A block looks like:
//
//	<<<EDIT>>>
//	FIND:
//	<exact existing text>
//	REPLACE:
//	<new text>
//	<<<END_EDIT>>>
//
// Markers are literal and case-sensitive. Application is best effort: a block
// whose FIND text is no longer present is skipped, never fatal.
package edit

import (
	"fmt"
	"regexp"
	"strings"
)

var blockRe = regexp.MustCompile(`<<<EDIT>>>\s*FIND:\s*([\s\S]*?)\s*REPLACE:\s*([\s\S]*?)\s*<<<END_EDIT>>>`)

// Block is one find/replace pair.
type Block struct {
	Find    string `json:"find"`
	Replace string `json:"replace"`
}

// Parse returns the edit blocks in text, in order. Sections are trimmed.
// No blocks is a valid result; the caller then treats the reply as whole files.
func Parse(text string) []Block {
	matches := blockRe.FindAllStringSubmatch(text, -1)
	if len(matches) == 0 {
		return nil
	}
	blocks := make([]Block, 0, len(matches))
	for _, m := range matches {
		blocks = append(blocks, Block{
			Find:    strings.TrimSpace(m[1]),
			Replace: strings.TrimSpace(m[2]),
		})
	}
	return blocks
}

// Apply runs the blocks against source in order and returns the patched text.
// Each block replaces only the first occurrence of its Find text in the
// already-patched source. Blocks whose Find text is absent or empty are skipped.
func Apply(source string, blocks []Block) string {
	return ApplyReport(source, blocks).Result
}

// Outcome records what happened to a single block.
type Outcome struct {
	Index   int  `json:"index"`
	Applied bool `json:"applied"`
	// Line is the 1-based line of the patched source where the replacement
	// starts. Zero when the block was skipped.
	Line int `json:"line,omitempty"`
}

// Report is the result of applying a list of blocks.
type Report struct {
	Result   string    `json:"result"`
	Outcomes []Outcome `json:"outcomes"`
}

// ApplyReport is Apply plus a per-block account of which edits landed.
func ApplyReport(source string, blocks []Block) Report {
	result := source
	outcomes := make([]Outcome, 0, len(blocks))

	for i, b := range blocks {
		pos := -1
		if b.Find != "" {
			pos = strings.Index(result, b.Find)
		}
		if pos < 0 {
			outcomes = append(outcomes, Outcome{Index: i})
			continue
		}
		result = result[:pos] + b.Replace + result[pos+len(b.Find):]
		outcomes = append(outcomes, Outcome{
			Index:   i,
			Applied: true,
			Line:    strings.Count(result[:pos], "\n") + 1,
		})
	}

	return Report{Result: result, Outcomes: outcomes}
}

// Applied returns the number of blocks that were applied.
func (r Report) Applied() int {
	n := 0
	for _, o := range r.Outcomes {
		if o.Applied {
			n++
		}
	}
	return n
}

// Skipped returns the indexes of blocks whose Find text was not found.
func (r Report) Skipped() []int {
	var idx []int
	for _, o := range r.Outcomes {
		if !o.Applied {
			idx = append(idx, o.Index)
		}
	}
	return idx
}

// Summary returns a one-line description like "2 of 3 edits applied".
func (r Report) Summary() string {
	total := len(r.Outcomes)
	noun := "edits"
	if total == 1 {
		noun = "edit"
	}
	return fmt.Sprintf("%d of %d %s applied", r.Applied(), total, noun)
}
