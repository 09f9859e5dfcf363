// Copyright (C) 2016 The Syncthing Authors.
// Copyright (C) 2026 The Sfshare Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

// Package connections runs the receiving TCP listener.
package connections

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/sfshare/sfshare/internal/slogutil"
	"github.com/sfshare/sfshare/lib/dialer"
	"github.com/sfshare/sfshare/lib/events"
	"github.com/sfshare/sfshare/lib/svcutil"
)

// A Handler serves one accepted connection until it returns.
type Handler interface {
	HandleConn(ctx context.Context, conn io.ReadWriter, peer string) error
}

// Listener accepts TCP connections and hands them to the Handler, one at a
// time. A failing connection is logged and the listener keeps going.
type Listener struct {
	svcutil.ServiceWithError

	addr         string
	trafficClass int
	handler      Handler
	evLogger     *events.Logger

	laddr net.Addr
	mut   sync.RWMutex
}

func NewListener(addr string, trafficClass int, handler Handler, evLogger *events.Logger) *Listener {
	if evLogger == nil {
		evLogger = events.Default
	}
	l := &Listener{
		addr:         addr,
		trafficClass: trafficClass,
		handler:      handler,
		evLogger:     evLogger,
	}
	l.ServiceWithError = svcutil.AsService(l.serve, l.String())
	return l
}

func (l *Listener) serve(ctx context.Context) error {
	tcaddr, err := net.ResolveTCPAddr("tcp", l.addr)
	if err != nil {
		slog.Info("Listen (tcp)", "address", l.addr, slogutil.Error(err))
		return err
	}

	lc := net.ListenConfig{
		Control: dialer.ReusePortControl,
	}

	listener, err := lc.Listen(ctx, "tcp", tcaddr.String())
	if err != nil {
		slog.Info("Listen (tcp)", "address", tcaddr, slogutil.Error(err))
		return err
	}
	defer listener.Close()

	// We might bind to :0, so use the port we've been given.
	tcaddr = listener.Addr().(*net.TCPAddr)

	l.mut.Lock()
	l.laddr = tcaddr
	l.mut.Unlock()
	defer func() {
		l.mut.Lock()
		l.laddr = nil
		l.mut.Unlock()
	}()

	slog.Info("TCP listener starting", "address", tcaddr)
	defer slog.Info("TCP listener shutting down", "address", tcaddr)
	l.evLogger.Log(events.ListenerStarted, map[string]interface{}{"address": tcaddr.String()})

	acceptFailures := 0
	const maxAcceptFailures = 10

	tcpListener := listener.(*net.TCPListener)

	for {
		_ = tcpListener.SetDeadline(time.Now().Add(time.Second))
		conn, err := tcpListener.Accept()
		select {
		case <-ctx.Done():
			if err == nil {
				conn.Close()
			}
			return nil
		default:
		}
		if err != nil {
			var opErr *net.OpError
			if !errors.As(err, &opErr) || !opErr.Timeout() {
				slog.Warn("Accepting connection", slogutil.Error(err))
				metricAcceptFailures.Inc()

				acceptFailures++
				if acceptFailures > maxAcceptFailures {
					// Return to restart the listener, because something
					// seems permanently damaged.
					return err
				}

				// Slightly increased delay for each failure.
				time.Sleep(time.Duration(acceptFailures) * time.Second)
			}
			continue
		}

		acceptFailures = 0
		l.handle(ctx, conn.(*net.TCPConn))
	}
}

func (l *Listener) handle(ctx context.Context, conn *net.TCPConn) {
	defer conn.Close()

	peer := conn.RemoteAddr().String()
	connID := uuid.New().String()
	slog.Debug("Accepted connection", "peer", peer, "conn", connID)
	metricConnections.Inc()

	if err := dialer.SetTCPOptions(conn); err != nil {
		slog.Debug("Setting TCP options", "peer", peer, slogutil.Error(err))
	}
	if l.trafficClass != 0 {
		if err := dialer.SetTrafficClass(conn, l.trafficClass); err != nil {
			slog.Debug("Setting traffic class", "peer", peer, slogutil.Error(err))
		}
	}

	l.evLogger.Log(events.PeerConnected, map[string]interface{}{"peer": peer, "conn": connID})
	err := l.handler.HandleConn(ctx, conn, peer)
	if err != nil && ctx.Err() == nil {
		slog.Warn("Connection failed", "peer", peer, "conn", connID, slogutil.Error(err))
		metricConnectionErrors.Inc()
	}
	l.evLogger.Log(events.PeerDisconnected, map[string]interface{}{
		"peer":  peer,
		"conn":  connID,
		"error": events.Error(err),
	})
}

// Addr returns the bound address, or nil while not listening.
func (l *Listener) Addr() net.Addr {
	l.mut.RLock()
	defer l.mut.RUnlock()
	return l.laddr
}

func (l *Listener) String() string {
	return fmt.Sprintf("tcp listener@%s", l.addr)
}
