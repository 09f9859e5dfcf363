// Copyright (C) 2026 The Sfshare Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

// Package selection turns what the user asked to send into the list of
// files that will be offered. Only regular files are ever offered; paths
// that can't be read are skipped with a warning.
package selection

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/gobwas/glob"

	"github.com/sfshare/sfshare/internal/slogutil"
	"github.com/sfshare/sfshare/lib/protocol"
)

type Mode int

const (
	ModeSingle Mode = iota
	ModeSelected
	ModeAllNonRecursive
	ModeAllRecursive
	ModeGlob
)

var modeNames = map[Mode]string{
	ModeSingle:          "single",
	ModeSelected:        "selected",
	ModeAllNonRecursive: "all",
	ModeAllRecursive:    "all-recursive",
	ModeGlob:            "glob",
}

var ErrUnknownMode = errors.New("unknown selection mode")

func (m Mode) String() string {
	if s, ok := modeNames[m]; ok {
		return s
	}
	return fmt.Sprintf("unknown-mode-%d", int(m))
}

func (m Mode) MarshalText() ([]byte, error) {
	return []byte(m.String()), nil
}

func (m *Mode) UnmarshalText(bs []byte) error {
	for mode, name := range modeNames {
		if name == string(bs) {
			*m = mode
			return nil
		}
	}
	return fmt.Errorf("%w: %q", ErrUnknownMode, bs)
}

// A Selection is one of the ways of choosing files. Paths holds the file
// for ModeSingle, the files for ModeSelected, the directory for the All
// modes (empty means the working directory) and the pattern for ModeGlob.
type Selection struct {
	Mode  Mode
	Paths []string
}

func (s Selection) String() string {
	switch s.Mode {
	case ModeAllNonRecursive:
		return "all in " + s.dir() + " (not recursive)"
	case ModeAllRecursive:
		return "all in " + s.dir() + " and subdirectories"
	default:
		return fmt.Sprintf("%v %q", s.Mode, s.Paths)
	}
}

func (s Selection) dir() string {
	if len(s.Paths) == 0 || s.Paths[0] == "" {
		return "."
	}
	return s.Paths[0]
}

// Resolve returns the files to offer, in a stable order. An empty result
// is not an error.
func Resolve(s Selection) ([]protocol.FileMeta, error) {
	switch s.Mode {
	case ModeSingle:
		if len(s.Paths) != 1 {
			return nil, fmt.Errorf("single selection needs exactly one path, got %d", len(s.Paths))
		}
		return Selected(s.Paths), nil
	case ModeSelected:
		return Selected(s.Paths), nil
	case ModeAllNonRecursive:
		return AllNonRecursive(s.dir()), nil
	case ModeAllRecursive:
		return AllRecursive(s.dir()), nil
	case ModeGlob:
		var files []protocol.FileMeta
		for _, pattern := range s.Paths {
			matched, err := Glob(pattern)
			if err != nil {
				return nil, err
			}
			files = append(files, matched...)
		}
		return dedup(files), nil
	default:
		return nil, fmt.Errorf("%w: %v", ErrUnknownMode, s.Mode)
	}
}

// Selected returns the files among paths that can be offered, in the
// given order. A path given twice is offered once.
func Selected(paths []string) []protocol.FileMeta {
	files := make([]protocol.FileMeta, 0, len(paths))
	for _, path := range paths {
		if fm, ok := fileMeta(path); ok {
			files = append(files, fm)
		}
	}
	return dedup(files)
}

// AllNonRecursive returns the regular files directly in dir.
func AllNonRecursive(dir string) []protocol.FileMeta {
	entries, err := os.ReadDir(dir)
	if err != nil {
		slog.Warn("Skipping unreadable directory", "path", dir, slogutil.Error(err))
	}
	var files []protocol.FileMeta
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if fm, ok := fileMeta(filepath.Join(dir, e.Name())); ok {
			files = append(files, fm)
		}
	}
	return files
}

// AllRecursive returns the regular files in dir and every directory below
// it, in lexical walk order.
func AllRecursive(dir string) []protocol.FileMeta {
	var files []protocol.FileMeta
	walk(dir, -1, func(path string) {
		if fm, ok := fileMeta(path); ok {
			files = append(files, fm)
		}
	})
	return files
}

// Glob returns the regular files matching pattern. The pattern uses '/'
// as separator on all platforms; "*" does not cross directories while
// "**" does.
func Glob(pattern string) ([]protocol.FileMeta, error) {
	pattern = filepath.ToSlash(filepath.Clean(pattern))
	g, err := glob.Compile(pattern, '/')
	if err != nil {
		return nil, fmt.Errorf("glob %q: %w", pattern, err)
	}

	base := staticPrefix(pattern)
	depth := -1
	if !strings.Contains(pattern, "**") {
		depth = strings.Count(pattern, "/") - strings.Count(base, "/")
		if base == "." {
			depth++
		}
	}

	var files []protocol.FileMeta
	walk(filepath.FromSlash(base), depth, func(path string) {
		if !g.Match(filepath.ToSlash(path)) {
			return
		}
		if fm, ok := fileMeta(path); ok {
			files = append(files, fm)
		}
	})
	return files, nil
}

// staticPrefix is the directory part of pattern before the first
// component with glob meta characters.
func staticPrefix(pattern string) string {
	parts := strings.Split(pattern, "/")
	var static []string
	for _, p := range parts[:len(parts)-1] {
		if strings.ContainsAny(p, `*?[]{}\`) {
			break
		}
		static = append(static, p)
	}
	switch {
	case len(static) == 0:
		return "."
	case len(static) == 1 && static[0] == "":
		return "/"
	default:
		return strings.Join(static, "/")
	}
}

// walk calls fn for every non-directory below root, descending at most
// maxDepth levels (negative means unlimited). Unreadable directories are
// skipped with a warning.
func walk(root string, maxDepth int, fn func(path string)) {
	rootDepth := strings.Count(filepath.Clean(root), string(filepath.Separator))
	if filepath.Clean(root) == "." {
		rootDepth = -1
	}
	_ = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			slog.Warn("Skipping unreadable path", "path", path, slogutil.Error(err))
			if d != nil && d.IsDir() {
				return fs.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			if maxDepth >= 0 && path != root && strings.Count(path, string(filepath.Separator))-rootDepth >= maxDepth {
				return fs.SkipDir
			}
			return nil
		}
		fn(path)
		return nil
	})
}

func fileMeta(path string) (protocol.FileMeta, bool) {
	fm, err := protocol.FileMetaFromPath(path)
	switch {
	case errors.Is(err, protocol.ErrNotRegular):
		slog.Warn("Skipping, not a regular file", "path", path)
		return fm, false
	case err != nil:
		slog.Warn("Skipping unreadable file", "path", path, slogutil.Error(err))
		return fm, false
	}
	// Stat is not enough to know we'll be able to read it later.
	fd, err := os.Open(path)
	if err != nil {
		slog.Warn("Skipping unreadable file", "path", path, slogutil.Error(err))
		return fm, false
	}
	fd.Close()
	return fm, true
}

func dedup(files []protocol.FileMeta) []protocol.FileMeta {
	seen := make(map[string]struct{}, len(files))
	out := files[:0]
	for _, f := range files {
		key := filepath.Clean(f.Path)
		if abs, err := filepath.Abs(key); err == nil {
			key = abs
		}
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, f)
	}
	return out
}
