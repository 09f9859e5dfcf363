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
	"time"

	"github.com/sfshare/sfshare/internal/slogutil"
	"github.com/sfshare/sfshare/lib/events"
	"github.com/sfshare/sfshare/lib/protocol"
)

// A Receiver answers pings, decides on offers and writes accepted files
// into Dir. One Receiver may serve many connections, concurrently or not;
// all per connection state lives in HandleConn.
type Receiver struct {
	// Dir is where received files are created. Empty means the current
	// working directory.
	Dir string

	// Confirm is asked for every offer. A nil Confirm accepts everything.
	Confirm ConfirmFunc

	Progress         ProgressFunc
	ProgressInterval time.Duration

	Events *events.Logger
}

// HandleConn processes packets from one connection until the peer closes
// it, which is not an error. Cancelling ctx closes the connection if it is
// an io.Closer. An unknown packet type, a protocol violation
// or a failure to write a file ends the connection with an error.
func (r *Receiver) HandleConn(ctx context.Context, conn io.ReadWriter, peer string) (err error) {
	if c, ok := conn.(io.Closer); ok {
		stop := context.AfterFunc(ctx, func() { c.Close() })
		defer stop()
	}

	evLogger := r.evLogger()
	cr := protocol.NewCountingReader(conn, peer)
	br := bufio.NewReader(cr)
	w := protocol.NewCountingWriter(conn, peer)

	var sess *session
	defer func() {
		slog.Debug("Connection done", "peer", peer, "recv", cr.Tot(), "sent", w.Tot())
		if sess != nil {
			sess.abort()
			metricTransfers.WithLabelValues(dirRecv, resultFailed).Inc()
			if err == nil {
				slog.Warn("Connection closed before all files were received", "peer", peer, "missing", len(sess.pending))
			}
		}
	}()

	for {
		p, err := protocol.ReadPacket(br)
		if err != nil && ctx.Err() != nil {
			return ctx.Err()
		}
		if protocol.IsClosed(err) {
			slog.Debug("Connection closed by peer", "peer", peer, slogutil.Error(err))
			return nil
		}
		if errors.Is(err, protocol.ErrUnknownPacketType) {
			slog.Warn("Unknown packet, dropping connection", "peer", peer, slogutil.Error(err))
			return err
		}
		if err != nil {
			return err
		}
		slog.Debug("Handle packet", "peer", peer, "packet", p)

		switch p := p.(type) {
		case *protocol.Ping:
			if err := protocol.WritePacket(w, &protocol.Pong{}); err != nil {
				return fmt.Errorf("sending pong: %w", err)
			}

		case *protocol.Pong:
			slog.Info("Received a pong without sending a ping", "peer", peer)

		case *protocol.AckReq:
			if sess != nil {
				return newProtocolError(p.Type(), fmt.Errorf("%w: offer during a transfer", ErrUnexpectedPacket))
			}
			sess, err = r.negotiate(ctx, w, peer, p.Files)
			if err != nil {
				return err
			}

		case *protocol.FileBlock:
			if sess == nil {
				slog.Warn("Discarding block outside of a transfer", "id", p.ID, "peer", peer)
				metricDiscardedBlocks.Inc()
				evLogger.Log(events.UnrequestedBlock, map[string]interface{}{"id": p.ID, "peer": peer})
				continue
			}
			if err := sess.handleBlock(p); err != nil {
				return err
			}

		case *protocol.FileEnd:
			if sess == nil {
				slog.Warn("Ignoring file end outside of a transfer", "peer", peer)
				continue
			}
			if err := sess.handleEnd(p); err != nil {
				return err
			}
			if sess.done() {
				slog.Info("Transfer complete", "peer", peer, "files", sess.started)
				metricTransfers.WithLabelValues(dirRecv, resultCompleted).Inc()
				evLogger.Log(events.TransferFinished, map[string]interface{}{"peer": peer, "files": sess.started})
				sess = nil
			}

		default:
			return newProtocolError(p.Type(), ErrUnexpectedPacket)
		}
	}
}

// negotiate asks for confirmation and answers the offer. It returns the
// new session if the offer was accepted and has files in it.
func (r *Receiver) negotiate(ctx context.Context, w io.Writer, peer string, files []protocol.FileMeta) (*session, error) {
	evLogger := r.evLogger()
	total := protocol.TotalSize(files)
	slog.Info("Received transfer request", "peer", peer, "files", len(files), "size", total)
	slog.Debug("Offered files", "peer", peer, "files", slogutil.Expensive(func() any {
		names := make([]string, len(files))
		for i, f := range files {
			names[i] = f.String()
		}
		return names
	}))
	evLogger.Log(events.TransferRequested, map[string]interface{}{
		"peer":  peer,
		"files": len(files),
		"size":  total,
	})

	accepted := true
	if r.Confirm != nil {
		var err error
		accepted, err = r.Confirm(ctx, ConfirmRequest{Peer: peer, Files: files, TotalSize: total})
		if err != nil {
			return nil, fmt.Errorf("confirmation: %w", err)
		}
	}

	if err := protocol.WritePacket(w, &protocol.AckRes{Accepted: accepted}); err != nil {
		return nil, fmt.Errorf("sending answer: %w", err)
	}
	if !accepted {
		slog.Info("Declined transfer request", "peer", peer)
		metricTransfers.WithLabelValues(dirRecv, resultDeclined).Inc()
		evLogger.Log(events.TransferDeclined, map[string]interface{}{"peer": peer})
		return nil, nil
	}

	evLogger.Log(events.TransferAccepted, map[string]interface{}{"peer": peer, "files": len(files)})
	if len(files) == 0 {
		return nil, nil
	}
	prog := newProgressReporter(r.Progress, evLogger, r.ProgressInterval, total, len(files))
	return newSession(peer, r.dir(), files, evLogger, prog), nil
}

func (r *Receiver) dir() string {
	if r.Dir == "" {
		return "."
	}
	return r.Dir
}

func (r *Receiver) evLogger() *events.Logger {
	if r.Events != nil {
		return r.Events
	}
	return events.Default
}
