// Copyright (C) 2014 The Syncthing Authors.
// Copyright (C) 2026 The Sfshare Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

package protocol

import (
	"io"
	"net"
	"sync/atomic"
)

// A CountingReader counts the bytes read through it, per peer and in
// total.
type CountingReader struct {
	io.Reader

	peer string
	tot  atomic.Int64
}

var (
	totalIncoming atomic.Int64
	totalOutgoing atomic.Int64
)

func NewCountingReader(r io.Reader, peer string) *CountingReader {
	peer = peerLabel(peer)
	registerPeerMetrics(peer)
	return &CountingReader{Reader: r, peer: peer}
}

func (c *CountingReader) Read(bs []byte) (int, error) {
	n, err := c.Reader.Read(bs)
	c.tot.Add(int64(n))
	totalIncoming.Add(int64(n))
	metricPeerRecvBytes.WithLabelValues(c.peer).Add(float64(n))
	return n, err
}

func (c *CountingReader) Tot() int64 { return c.tot.Load() }

// A CountingWriter counts the bytes written through it, per peer and in
// total.
type CountingWriter struct {
	io.Writer

	peer string
	tot  atomic.Int64
}

func NewCountingWriter(w io.Writer, peer string) *CountingWriter {
	peer = peerLabel(peer)
	registerPeerMetrics(peer)
	return &CountingWriter{Writer: w, peer: peer}
}

func (c *CountingWriter) Write(bs []byte) (int, error) {
	n, err := c.Writer.Write(bs)
	c.tot.Add(int64(n))
	totalOutgoing.Add(int64(n))
	metricPeerSentBytes.WithLabelValues(c.peer).Add(float64(n))
	return n, err
}

func (c *CountingWriter) Tot() int64 { return c.tot.Load() }

func TotalInOut() (int64, int64) {
	return totalIncoming.Load(), totalOutgoing.Load()
}

// peerLabel returns the host part of a peer address, or the peer as given
// when it has no port.
func peerLabel(peer string) string {
	if host, _, err := net.SplitHostPort(peer); err == nil {
		return host
	}
	return peer
}
