// Copyright (C) 2026 The Sfshare Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

package protocol

import (
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"unicode/utf8"

	"github.com/cespare/xxhash/v2"
)

// FileMeta describes one file in an offer. Path is only set on the side
// that has the file locally.
type FileMeta struct {
	ID   uint32
	Name string
	Size uint64
	Path string
}

// FileID returns the identifier for a file with the given base name. Two
// files with the same base name get the same ID; nothing disambiguates
// them.
func FileID(name string) uint32 {
	return uint32(xxhash.Sum64String(name) % (1<<32 - 1))
}

// FileMetaFromPath builds the FileMeta for a local regular file. A missing
// file gives an error satisfying errors.Is(err, fs.ErrNotExist).
func FileMetaFromPath(path string) (FileMeta, error) {
	info, err := os.Stat(path)
	if err != nil {
		return FileMeta{}, err
	}
	if !info.Mode().IsRegular() {
		return FileMeta{}, fmt.Errorf("%s: %w", path, ErrNotRegular)
	}
	name := filepath.Base(path)
	if len(name) > MaxNameLen {
		return FileMeta{}, fmt.Errorf("%s: %w", path, ErrNameTooLong)
	}
	return FileMeta{
		ID:   FileID(name),
		Name: name,
		Size: uint64(info.Size()),
		Path: path,
	}, nil
}

// TotalSize returns the sum of the file sizes.
func TotalSize(files []FileMeta) uint64 {
	var tot uint64
	for _, f := range files {
		tot += f.Size
	}
	return tot
}

func (f FileMeta) String() string {
	return fmt.Sprintf("%s (id=%08x size=%d)", f.Name, f.ID, f.Size)
}

func (f FileMeta) appendTo(bs []byte) ([]byte, error) {
	if len(f.Name) > MaxNameLen {
		return nil, fmt.Errorf("%q: %w", f.Name, ErrNameTooLong)
	}
	bs = binary.BigEndian.AppendUint32(bs, f.ID)
	bs = binary.BigEndian.AppendUint64(bs, f.Size)
	bs = binary.BigEndian.AppendUint16(bs, uint16(len(f.Name)))
	return append(bs, f.Name...), nil
}

// readFileMeta is the inverse of appendTo. The returned FileMeta never
// has a Path. buf must be at least eight bytes.
func readFileMeta(r io.Reader, buf []byte) (FileMeta, error) {
	if _, err := io.ReadFull(r, buf[:4]); err != nil {
		return FileMeta{}, truncated("file id", err)
	}
	id := binary.BigEndian.Uint32(buf)
	if _, err := io.ReadFull(r, buf[:8]); err != nil {
		return FileMeta{}, truncated("file size", err)
	}
	size := binary.BigEndian.Uint64(buf)
	if _, err := io.ReadFull(r, buf[:2]); err != nil {
		return FileMeta{}, truncated("name length", err)
	}
	name := make([]byte, binary.BigEndian.Uint16(buf))
	if _, err := io.ReadFull(r, name); err != nil {
		return FileMeta{}, truncated("file name", err)
	}
	if !utf8.Valid(name) {
		return FileMeta{}, fmt.Errorf("file name %q is not valid UTF-8", name)
	}
	return FileMeta{ID: id, Name: string(name), Size: size}, nil
}
