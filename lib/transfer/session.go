// Copyright (C) 2026 The Sfshare Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

package transfer

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/sfshare/sfshare/internal/slogutil"
	"github.com/sfshare/sfshare/lib/events"
	"github.com/sfshare/sfshare/lib/protocol"
)

// A session is the receiving side of one accepted offer. It is owned by
// the goroutine handling the connection and never shared.
type session struct {
	peer     string
	dir      string
	pending  map[uint32]protocol.FileMeta
	active   *activeFile // nil while idle
	started  int
	evLogger *events.Logger
	prog     *progressReporter
}

// activeFile is the one file currently being written.
type activeFile struct {
	meta     protocol.FileMeta
	fd       *os.File
	checksum protocol.Checksum
	written  uint64
}

func newSession(peer, dir string, files []protocol.FileMeta, evLogger *events.Logger, prog *progressReporter) *session {
	pending := make(map[uint32]protocol.FileMeta, len(files))
	for _, f := range files {
		if prev, ok := pending[f.ID]; ok {
			slog.Warn("Duplicate file id in offer, only the first one can be received", "id", f.ID, "name", f.Name, "kept", prev.Name)
			continue
		}
		pending[f.ID] = f
	}
	return &session{
		peer:     peer,
		dir:      dir,
		pending:  pending,
		evLogger: evLogger,
		prog:     prog,
	}
}

// done is true once every offered file has been received.
func (s *session) done() bool {
	return len(s.pending) == 0 && s.active == nil
}

func (s *session) handleBlock(b *protocol.FileBlock) error {
	if s.active == nil {
		meta, ok := s.pending[b.ID]
		if !ok {
			s.discard(b)
			return nil
		}
		delete(s.pending, b.ID)
		if err := s.open(meta); err != nil {
			return err
		}
	} else if s.active.meta.ID != b.ID {
		return newProtocolError(b.Type(), fmt.Errorf("%w: got block for %08x while writing %s", ErrIDMismatch, b.ID, s.active.meta))
	}

	if _, err := s.active.fd.Write(b.Data); err != nil {
		return fmt.Errorf("writing %s: %w", s.active.meta.Path, err)
	}
	s.active.checksum = s.active.checksum.Update(b.Data)
	s.active.written += uint64(len(b.Data))
	s.prog.add(len(b.Data))
	return nil
}

// handleEnd closes the active file. A checksum mismatch is reported but
// the file is kept as it is.
func (s *session) handleEnd(e *protocol.FileEnd) error {
	if s.active == nil {
		slog.Warn("Ignoring file end without an open file", "peer", s.peer)
		return nil
	}
	af := s.active
	s.active = nil

	if err := af.fd.Close(); err != nil {
		return fmt.Errorf("closing %s: %w", af.meta.Path, err)
	}
	s.prog.flush()

	ok := af.checksum == e.Checksum
	if ok {
		slog.Info("Received file", "name", af.meta.Name, "size", af.written, "peer", s.peer)
		metricFiles.WithLabelValues(dirRecv, resultOK).Inc()
	} else {
		slog.Warn("Checksum mismatch, keeping file as received", "name", af.meta.Name, "expected", uint64(e.Checksum), "actual", uint64(af.checksum), "peer", s.peer)
		metricFiles.WithLabelValues(dirRecv, resultMismatch).Inc()
		s.evLogger.Log(events.ChecksumMismatch, map[string]interface{}{
			"item":     af.meta.Name,
			"path":     af.meta.Path,
			"peer":     s.peer,
			"expected": uint64(e.Checksum),
			"actual":   uint64(af.checksum),
		})
	}
	s.evLogger.Log(events.ItemFinished, map[string]interface{}{
		"item":       af.meta.Name,
		"path":       af.meta.Path,
		"peer":       s.peer,
		"size":       af.written,
		"checksumOK": ok,
		"error":      nil,
	})
	return nil
}

// abort closes the file being written, if any. Whatever was written so
// far stays on disk.
func (s *session) abort() {
	if s.active == nil {
		return
	}
	if err := s.active.fd.Close(); err != nil {
		slog.Warn("Failed to close partial file", "path", s.active.meta.Path, slogutil.Error(err))
	}
	s.evLogger.Log(events.ItemFinished, map[string]interface{}{
		"item":  s.active.meta.Name,
		"path":  s.active.meta.Path,
		"peer":  s.peer,
		"size":  s.active.written,
		"error": events.Error(fmt.Errorf("transfer aborted after %d bytes", s.active.written)),
	})
	s.active = nil
}

func (s *session) open(meta protocol.FileMeta) error {
	path, err := destinationPath(s.dir, meta.Name)
	if err != nil {
		return err
	}
	// An existing file of the same name is overwritten.
	fd, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating %s: %w", path, err)
	}
	meta.Path = path
	s.active = &activeFile{meta: meta, fd: fd}
	s.started++
	s.prog.startFile(s.started, meta.Name)

	slog.Info("Receiving file", "name", meta.Name, "size", meta.Size, "peer", s.peer)
	s.evLogger.Log(events.ItemStarted, map[string]interface{}{
		"item": meta.Name,
		"path": path,
		"peer": s.peer,
		"size": meta.Size,
	})
	return nil
}

func (s *session) discard(b *protocol.FileBlock) {
	slog.Warn("Discarding block for a file that was not requested", "id", b.ID, "len", len(b.Data), "peer", s.peer)
	metricDiscardedBlocks.Inc()
	s.evLogger.Log(events.UnrequestedBlock, map[string]interface{}{
		"id":   b.ID,
		"peer": s.peer,
	})
}

// destinationPath places the bare name carried on the wire in dir. Names
// that would escape dir are refused.
func destinationPath(dir, name string) (string, error) {
	switch {
	case name == "", name == ".", name == "..",
		strings.ContainsAny(name, `/\`+"\x00"),
		filepath.Base(name) != name:
		return "", fmt.Errorf("%w: %q", ErrInvalidFilename, name)
	}
	return filepath.Join(dir, name), nil
}
