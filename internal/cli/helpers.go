// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// helpers.go - Small helpers shared across commands.
package cli

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/jeranaias/vibecode/internal/edit"
	"github.com/jeranaias/vibecode/internal/files"
	"github.com/jeranaias/vibecode/internal/offline"
)

// formatDurationShort formats a short duration string.
func formatDurationShort(d time.Duration) string {
	if d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	}
	if d < time.Minute {
		return fmt.Sprintf("%.1fs", d.Seconds())
	}
	m := int(d.Minutes())
	s := int(d.Seconds()) % 60
	return fmt.Sprintf("%dm%ds", m, s)
}

// formatBytes formats a byte count for display.
func formatBytes(bytes int64) string {
	const (
		KB = 1024
		MB = KB * 1024
	)
	switch {
	case bytes >= MB:
		return fmt.Sprintf("%.2f MB", float64(bytes)/MB)
	case bytes >= KB:
		return fmt.Sprintf("%.2f KB", float64(bytes)/KB)
	default:
		return fmt.Sprintf("%d bytes", bytes)
	}
}

// editStatus classifies an edit report for RenderStatus.
func editStatus(r edit.Report) string {
	switch applied := r.Applied(); {
	case applied == 0:
		return "failed"
	case applied < len(r.Outcomes):
		return "warning"
	default:
		return "ok"
	}
}

// offlineBadge renders the offline indicator, or "" when online.
func offlineBadge() string {
	badge := offline.StatusBadge()
	if badge == "" {
		return ""
	}
	return WarningStyle.Render(badge) + " " + DimStyle.Render("network limited to loopback endpoints")
}

// readSource reads path, or stdin when path is "" or "-". Input is capped
// at files.MaxReadSize.
func readSource(path string) (string, error) {
	var r io.Reader = stdin
	if path != "" && path != "-" {
		f, err := os.Open(path)
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				return "", NewNotFoundError("file", path)
			}
			return "", err
		}
		defer f.Close()
		r = f
	} else if IsTTY() {
		return "", ErrMissingArgument("input", "pipe text in, or pass a file name")
	}
	data, err := io.ReadAll(io.LimitReader(r, files.MaxReadSize+1))
	if err != nil {
		return "", err
	}
	if len(data) > files.MaxReadSize {
		return "", fmt.Errorf("input exceeds %s", formatBytes(files.MaxReadSize))
	}
	return string(data), nil
}

// ValidateOutputPath resolves path and requires it to be inside the home,
// working or temp directory.
func ValidateOutputPath(path string) (string, error) {
	if strings.Contains(path, "..") {
		return "", errors.New("path traversal not allowed")
	}
	abs, err := filepath.Abs(filepath.Clean(path))
	if err != nil {
		return "", fmt.Errorf("invalid path: %w", err)
	}

	home, _ := os.UserHomeDir()
	cwd, _ := os.Getwd()
	for _, dir := range []string{home, cwd, os.TempDir()} {
		if dir != "" && isPathWithinDir(abs, dir) {
			return abs, nil
		}
	}
	return "", fmt.Errorf("path must be within home, cwd, or temp directory")
}

// isPathWithinDir checks containment on path boundaries, so /home/userEVIL
// is not inside /home/user.
func isPathWithinDir(path, dir string) bool {
	cleanPath := filepath.Clean(path)
	cleanDir := filepath.Clean(dir)
	if cleanPath == cleanDir {
		return true
	}
	return strings.HasPrefix(cleanPath, cleanDir+string(filepath.Separator))
}
