// Copyright (C) 2026 The Sfshare Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

package transfer

import (
	"fmt"
	"io"
	"log/slog"

	"github.com/sfshare/sfshare/lib/protocol"
)

type HandshakeState int

const (
	Disconnected HandshakeState = iota
	AwaitingPong
	Live
)

func (s HandshakeState) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case AwaitingPong:
		return "awaiting-pong"
	case Live:
		return "live"
	default:
		return fmt.Sprintf("unknown-%d", int(s))
	}
}

// Handshake sends a Ping and waits for exactly one reply. Anything but a
// Pong, including a read error, is ErrPeerUnreachable. The returned state
// is where the handshake stopped.
func Handshake(r io.Reader, w io.Writer) (HandshakeState, error) {
	state := Disconnected
	if err := protocol.WritePacket(w, &protocol.Ping{}); err != nil {
		return state, fmt.Errorf("%w: sending ping: %w", ErrPeerUnreachable, err)
	}

	state = AwaitingPong
	p, err := protocol.ReadPacket(r)
	if err != nil {
		return state, fmt.Errorf("%w: awaiting pong: %w", ErrPeerUnreachable, err)
	}
	if p.Type() != protocol.TypePong {
		return state, fmt.Errorf("%w: got %v instead of Pong", ErrPeerUnreachable, p.Type())
	}

	state = Live
	slog.Debug("Handshake complete", "state", state)
	return state, nil
}
