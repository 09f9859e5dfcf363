// Copyright (C) 2026 The Sfshare Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

package transfer

import (
	"errors"
	"fmt"

	"github.com/sfshare/sfshare/lib/protocol"
)

var (
	// ErrPeerUnreachable is returned when the handshake with the receiver
	// fails for any reason.
	ErrPeerUnreachable = errors.New("receiver can't be reached")
	ErrNoFilesFound    = errors.New("no files found")
	// ErrAborted is returned when the sender's own confirmation was
	// refused, before anything was offered.
	ErrAborted = errors.New("transfer aborted")
	// ErrRequestDeclined is returned when the receiver declined the offer.
	ErrRequestDeclined  = errors.New("the receiver didn't accept the request")
	ErrUnexpectedPacket = errors.New("unexpected packet")
	// ErrIDMismatch is returned when a block for another file arrives while
	// a file is being written. Files are never interleaved.
	ErrIDMismatch      = errors.New("block for a file other than the one being written")
	ErrInvalidFilename = errors.New("filename is invalid")
)

// A ProtocolError is a violation of the packet sequencing rules. It is
// fatal to the connection.
type ProtocolError struct {
	Packet protocol.PacketType
	Err    error
}

func newProtocolError(typ protocol.PacketType, err error) *ProtocolError {
	return &ProtocolError{Packet: typ, Err: err}
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("protocol error on %v packet: %v", e.Packet, e.Err)
}

func (e *ProtocolError) Unwrap() error {
	return e.Err
}
