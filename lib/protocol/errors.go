// Copyright (C) 2026 The Sfshare Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

package protocol

import (
	"errors"
	"fmt"
	"io"
)

var (
	// ErrUnknownPacketType is returned when the flag byte is not a known
	// packet type. The stream cannot be parsed any further.
	ErrUnknownPacketType = errors.New("unknown packet type")
	// ErrTruncated is returned when the stream ends in the middle of a
	// packet.
	ErrTruncated     = errors.New("truncated packet")
	ErrTooManyFiles  = errors.New("too many files in offer")
	ErrNameTooLong   = errors.New("file name too long")
	ErrBlockTooLarge = errors.New("block too large")
	ErrNotRegular    = errors.New("not a regular file")
)

// UnknownPacketTypeError carries the offending flag byte.
type UnknownPacketTypeError struct {
	Flag byte
}

func (e *UnknownPacketTypeError) Error() string {
	return fmt.Sprintf("unknown packet type 0x%02x", e.Flag)
}

func (e *UnknownPacketTypeError) Is(target error) bool {
	return target == ErrUnknownPacketType
}

// IsClosed returns true if the error means the peer closed the stream,
// either cleanly between packets or in the middle of one.
func IsClosed(err error) bool {
	return errors.Is(err, io.EOF) || errors.Is(err, ErrTruncated)
}

func truncated(what string, err error) error {
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return fmt.Errorf("%w: reading %s: %w", ErrTruncated, what, io.ErrUnexpectedEOF)
	}
	return fmt.Errorf("reading %s: %w", what, err)
}
