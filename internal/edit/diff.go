// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package edit

import (
	"fmt"
	"strings"
)

// =============================================================================
// LINE DIFF
// =============================================================================

// LineKind is the kind of a diff line.
type LineKind int

const (
	LineContext LineKind = iota
	LineAdded
	LineRemoved
)

// Prefix returns the unified-diff prefix for the kind.
func (k LineKind) Prefix() string {
	switch k {
	case LineAdded:
		return "+"
	case LineRemoved:
		return "-"
	default:
		return " "
	}
}

// DiffLine is one line of a diff.
type DiffLine struct {
	Kind    LineKind
	Content string
	OldLine int // 0 for added lines
	NewLine int // 0 for removed lines
}

// Hunk is a run of changes with surrounding context.
type Hunk struct {
	OldStart, OldCount int
	NewStart, NewCount int
	Lines              []DiffLine
}

// Diff describes the change between two versions of a file.
type Diff struct {
	Path      string
	Hunks     []Hunk
	Additions int
	Deletions int
}

const contextLines = 3

// ComputeDiff returns the line diff from oldContent to newContent.
func ComputeDiff(path, oldContent, newContent string) *Diff {
	lines := diffLines(splitLines(oldContent), splitLines(newContent))
	d := &Diff{Path: path, Hunks: groupHunks(lines)}
	for _, l := range lines {
		switch l.Kind {
		case LineAdded:
			d.Additions++
		case LineRemoved:
			d.Deletions++
		}
	}
	return d
}

// Empty reports whether the two versions were identical.
func (d *Diff) Empty() bool {
	return d.Additions == 0 && d.Deletions == 0
}

// Unified renders the diff in unified format.
func (d *Diff) Unified() string {
	if d.Empty() {
		return ""
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "--- a/%s\n+++ b/%s\n", d.Path, d.Path)
	for _, h := range d.Hunks {
		fmt.Fprintf(&sb, "@@ -%d,%d +%d,%d @@\n", h.OldStart, h.OldCount, h.NewStart, h.NewCount)
		for _, l := range h.Lines {
			sb.WriteString(l.Kind.Prefix())
			sb.WriteString(l.Content)
			sb.WriteByte('\n')
		}
	}
	return sb.String()
}

// Stat returns "+a -d".
func (d *Diff) Stat() string {
	return fmt.Sprintf("+%d -%d", d.Additions, d.Deletions)
}

func splitLines(content string) []string {
	if content == "" {
		return nil
	}
	lines := strings.Split(content, "\n")
	if lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}
	return lines
}

// diffLines walks an LCS table to produce context/added/removed lines in order.
func diffLines(a, b []string) []DiffLine {
	m, n := len(a), len(b)
	// lcs[i][j] is the LCS length of a[i:] and b[j:].
	lcs := make([][]int, m+1)
	for i := range lcs {
		lcs[i] = make([]int, n+1)
	}
	for i := m - 1; i >= 0; i-- {
		for j := n - 1; j >= 0; j-- {
			if a[i] == b[j] {
				lcs[i][j] = lcs[i+1][j+1] + 1
			} else {
				lcs[i][j] = max(lcs[i+1][j], lcs[i][j+1])
			}
		}
	}

	var out []DiffLine
	i, j := 0, 0
	for i < m || j < n {
		switch {
		case i < m && j < n && a[i] == b[j]:
			out = append(out, DiffLine{Kind: LineContext, Content: a[i], OldLine: i + 1, NewLine: j + 1})
			i++
			j++
		case j >= n || (i < m && lcs[i+1][j] >= lcs[i][j+1]):
			out = append(out, DiffLine{Kind: LineRemoved, Content: a[i], OldLine: i + 1})
			i++
		default:
			out = append(out, DiffLine{Kind: LineAdded, Content: b[j], NewLine: j + 1})
			j++
		}
	}
	return out
}

func groupHunks(lines []DiffLine) []Hunk {
	var hunks []Hunk
	i := 0
	for i < len(lines) {
		if lines[i].Kind == LineContext {
			i++
			continue
		}
		start := max(0, i-contextLines)
		end := i
		// Extend while the next change is within two context windows.
		for k := i; k < len(lines); k++ {
			if lines[k].Kind != LineContext {
				end = k
			} else if k-end > 2*contextLines {
				break
			}
		}
		stop := min(len(lines), end+contextLines+1)
		hunks = append(hunks, newHunk(lines[start:stop]))
		i = stop
	}
	return hunks
}

func newHunk(lines []DiffLine) Hunk {
	h := Hunk{Lines: lines}
	for _, l := range lines {
		if l.Kind != LineAdded {
			if h.OldStart == 0 {
				h.OldStart = l.OldLine
			}
			h.OldCount++
		}
		if l.Kind != LineRemoved {
			if h.NewStart == 0 {
				h.NewStart = l.NewLine
			}
			h.NewCount++
		}
	}
	return h
}
