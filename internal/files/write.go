// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package files

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/jeranaias/vibecode/internal/util"
)

// MaxReadSize caps the size of a single file loaded by ReadDir.
const MaxReadSize = 1 << 20

// ErrUnsafePath is returned for file names that would escape the target directory.
var ErrUnsafePath = errors.New("unsafe file path")

// SafeJoin joins dir and a project-relative name, rejecting absolute names
// and any name that resolves outside dir.
func SafeJoin(dir, name string) (string, error) {
	if name == "" || filepath.IsAbs(name) || strings.HasPrefix(name, "/") {
		return "", fmt.Errorf("%w: %q", ErrUnsafePath, name)
	}
	clean := filepath.Clean(filepath.FromSlash(name))
	if clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %q", ErrUnsafePath, name)
	}
	return filepath.Join(dir, clean), nil
}

// WriteDir writes every file under dir and returns the paths written.
// Nothing is written if any name is unsafe.
func WriteDir(dir string, project []ProjectFile) ([]string, error) {
	paths := make([]string, 0, len(project))
	for _, f := range project {
		p, err := SafeJoin(dir, f.Name)
		if err != nil {
			return nil, err
		}
		paths = append(paths, p)
	}
	for i, f := range project {
		if err := util.AtomicWriteFile(paths[i], []byte(f.Content), 0644); err != nil {
			return paths[:i], fmt.Errorf("write %s: %w", f.Name, err)
		}
	}
	return paths, nil
}

// ReadDir loads the regular files under dir as project files, skipping
// hidden entries and files larger than MaxReadSize. Names use forward
// slashes and are sorted.
func ReadDir(dir string) ([]ProjectFile, error) {
	var project []ProjectFile
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if path != dir && strings.HasPrefix(d.Name(), ".") {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() || !d.Type().IsRegular() {
			return nil
		}
		info, err := d.Info()
		if err != nil || info.Size() > MaxReadSize {
			return nil
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}
		name := filepath.ToSlash(rel)
		project = append(project, ProjectFile{
			ID:       uuid.New().String(),
			Name:     name,
			Content:  string(data),
			Language: LanguageFor(name),
		})
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(project, func(i, j int) bool { return project[i].Name < project[j].Name })
	return project, nil
}
