// Copyright (C) 2026 The Sfshare Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

package transfer

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"time"

	"golang.org/x/time/rate"

	"github.com/sfshare/sfshare/internal/slogutil"
	"github.com/sfshare/sfshare/lib/dialer"
	"github.com/sfshare/sfshare/lib/events"
	"github.com/sfshare/sfshare/lib/protocol"
)

const (
	// Offers larger than this, in bytes or in number of files, need the
	// sender's confirmation.
	DefaultConfirmSize  = 1_000_000
	DefaultConfirmCount = 5
)

// A Sender offers a list of files to one receiver and streams them if the
// offer is accepted. A Sender may be reused for several attempts but not
// concurrently.
type Sender struct {
	Files []protocol.FileMeta

	// Confirm is asked before offering more than ConfirmSize bytes or
	// ConfirmCount files. A nil Confirm goes ahead without asking.
	Confirm      ConfirmFunc
	ConfirmSize  uint64
	ConfirmCount int

	Progress         ProgressFunc
	ProgressInterval time.Duration

	// Limiter, if set, throttles the file data rate. Its burst must be at
	// least protocol.BlockSize.
	Limiter *rate.Limiter

	// TrafficClass is applied to dialed connections when non-zero.
	TrafficClass int

	Events *events.Logger
}

// SendTo dials the receiver at addr and runs Send over the connection.
func (s *Sender) SendTo(ctx context.Context, addr string) error {
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrPeerUnreachable, err)
	}
	defer conn.Close()

	if err := dialer.SetTCPOptions(conn); err != nil {
		slog.Debug("Failed to set TCP options", "peer", addr, slogutil.Error(err))
	}
	if s.TrafficClass != 0 {
		if err := dialer.SetTrafficClass(conn, s.TrafficClass); err != nil {
			slog.Debug("Failed to set traffic class", "peer", addr, slogutil.Error(err))
		}
	}
	return s.Send(ctx, conn, addr)
}

// Send runs the handshake, the negotiation and, if accepted, the file
// stream over conn. The connection is not closed.
func (s *Sender) Send(ctx context.Context, conn io.ReadWriter, peer string) error {
	if c, ok := conn.(net.Conn); ok {
		stop := context.AfterFunc(ctx, func() { c.Close() })
		defer stop()
	}

	evLogger := s.evLogger()
	r := bufio.NewReader(protocol.NewCountingReader(conn, peer))
	w := protocol.NewCountingWriter(conn, peer)

	if _, err := Handshake(r, w); err != nil {
		return err
	}
	slog.Info("Receiver is reachable", "peer", peer)

	offer, fds := s.openFiles(peer)
	defer func() {
		for _, fd := range fds {
			if fd != nil {
				fd.Close()
			}
		}
	}()
	if len(offer) == 0 {
		return ErrNoFilesFound
	}

	total := protocol.TotalSize(offer)
	if s.Confirm != nil && s.needsConfirm(total, len(offer)) {
		ok, err := s.Confirm(ctx, ConfirmRequest{Peer: peer, Files: offer, TotalSize: total})
		if err != nil {
			return fmt.Errorf("confirmation: %w", err)
		}
		if !ok {
			return ErrAborted
		}
	}

	if err := protocol.WritePacket(w, &protocol.AckReq{Files: offer}); err != nil {
		return fmt.Errorf("sending offer: %w", err)
	}
	evLogger.Log(events.TransferRequested, map[string]interface{}{
		"peer":  peer,
		"files": len(offer),
		"size":  total,
	})
	slog.Info("Asked receiver to accept files, waiting for answer", "peer", peer, "files", len(offer), "size", total)

	p, err := protocol.ReadPacket(r)
	if err != nil {
		return fmt.Errorf("awaiting answer: %w", err)
	}
	res, ok := p.(*protocol.AckRes)
	if !ok {
		metricTransfers.WithLabelValues(dirSend, resultFailed).Inc()
		return newProtocolError(p.Type(), fmt.Errorf("%w while awaiting AckRes", ErrUnexpectedPacket))
	}
	if !res.Accepted {
		metricTransfers.WithLabelValues(dirSend, resultDeclined).Inc()
		evLogger.Log(events.TransferDeclined, map[string]interface{}{"peer": peer})
		return ErrRequestDeclined
	}
	evLogger.Log(events.TransferAccepted, map[string]interface{}{"peer": peer})

	if err := s.stream(ctx, w, peer, offer, fds, total); err != nil {
		metricTransfers.WithLabelValues(dirSend, resultFailed).Inc()
		return err
	}
	metricTransfers.WithLabelValues(dirSend, resultCompleted).Inc()
	evLogger.Log(events.TransferFinished, map[string]interface{}{"peer": peer})
	return nil
}

func (s *Sender) needsConfirm(total uint64, files int) bool {
	size := s.ConfirmSize
	if size == 0 {
		size = DefaultConfirmSize
	}
	count := s.ConfirmCount
	if count == 0 {
		count = DefaultConfirmCount
	}
	return total > size || files > count
}

func (s *Sender) evLogger() *events.Logger {
	if s.Events != nil {
		return s.Events
	}
	return events.Default
}

// openFiles opens every file up front. Files that can't be opened are
// left out of the offer, so the receiver is never told to expect them.
// The returned fds match the returned files by index.
func (s *Sender) openFiles(peer string) ([]protocol.FileMeta, []*os.File) {
	evLogger := s.evLogger()
	offer := make([]protocol.FileMeta, 0, len(s.Files))
	fds := make([]*os.File, 0, len(s.Files))
	for _, f := range s.Files {
		fd, err := os.Open(f.Path)
		if err != nil {
			slog.Warn("Skipping unreadable file", "path", f.Path, slogutil.Error(err))
			metricFiles.WithLabelValues(dirSend, resultSkipped).Inc()
			evLogger.Log(events.ItemFinished, map[string]interface{}{
				"item":  f.Name,
				"peer":  peer,
				"error": events.Error(err),
			})
			continue
		}
		offer = append(offer, f)
		fds = append(fds, fd)
	}
	return offer, fds
}

// stream sends every offered file in declared order, closing each fd once
// it has been sent.
func (s *Sender) stream(ctx context.Context, w io.Writer, peer string, files []protocol.FileMeta, fds []*os.File, total uint64) error {
	evLogger := s.evLogger()
	prog := newProgressReporter(s.Progress, evLogger, s.ProgressInterval, total, len(files))
	bw := bufio.NewWriterSize(w, 64<<10)
	buf := make([]byte, protocol.BlockSize)

	for i, f := range files {
		if err := ctx.Err(); err != nil {
			return err
		}

		prog.startFile(i+1, f.Name)
		evLogger.Log(events.ItemStarted, map[string]interface{}{"item": f.Name, "peer": peer, "size": f.Size})
		cs, err := s.streamFile(ctx, bw, fds[i], f, buf, prog)
		fds[i].Close()
		fds[i] = nil
		if err != nil {
			return err
		}
		prog.flush()

		slog.Info("Sent file", "name", f.Name, "peer", peer, "checksum", uint64(cs))
		metricFiles.WithLabelValues(dirSend, resultOK).Inc()
		evLogger.Log(events.ItemFinished, map[string]interface{}{
			"item":     f.Name,
			"peer":     peer,
			"checksum": uint64(cs),
			"error":    nil,
		})
	}
	return nil
}

// streamFile sends full blocks until the file is exhausted; the final
// block is shorter than a full block and may be empty.
func (s *Sender) streamFile(ctx context.Context, bw *bufio.Writer, r io.Reader, f protocol.FileMeta, buf []byte, prog *progressReporter) (protocol.Checksum, error) {
	var cs protocol.Checksum
	for {
		n, err := io.ReadFull(r, buf)
		if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF) {
			return 0, fmt.Errorf("reading %s: %w", f.Path, err)
		}
		data := buf[:n]
		cs = cs.Update(data)

		if s.Limiter != nil && n > 0 {
			if err := s.Limiter.WaitN(ctx, n); err != nil {
				return 0, err
			}
		}
		if err := protocol.WritePacket(bw, &protocol.FileBlock{ID: f.ID, Data: data}); err != nil {
			return 0, fmt.Errorf("sending block: %w", err)
		}
		prog.add(n)

		if n < len(buf) {
			break
		}
	}

	if err := protocol.WritePacket(bw, &protocol.FileEnd{Checksum: cs}); err != nil {
		return 0, fmt.Errorf("sending file end: %w", err)
	}
	if err := bw.Flush(); err != nil {
		return 0, fmt.Errorf("sending file end: %w", err)
	}
	return cs, nil
}
