// Copyright (C) 2026 The Sfshare Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

// Package protocol implements the sfshare wire protocol: a single flag byte
// followed by a fixed or length prefixed payload. All integers are big
// endian.
//
//	Ping      [0x01]
//	Pong      [0x02]
//	AckReq    [0x11][u32 count][count x FileMeta record]
//	AckRes    [0x12][u8 accepted]
//	FileBlock [0x21][u32 id][u16 data_len][data]
//	FileEnd   [0x22][u64 checksum]
//
// A FileMeta record is [u32 id][u64 size][u16 name_len][name].
//
// There is no outer frame around a packet, so a stream that has been
// misparsed once cannot be resynchronized.
package protocol

import (
	"fmt"
)

const (
	// Port is the well known TCP port of the receiver.
	Port = 5123

	// BlockSize is the largest amount of file data the sender puts in a
	// single FileBlock. The decoder accepts anything that fits the 16 bit
	// length field.
	BlockSize = 1300

	// MaxBlockLen is the largest data length representable on the wire.
	MaxBlockLen = 1<<16 - 1

	// MaxNameLen is the longest file name representable on the wire.
	MaxNameLen = 1<<16 - 1

	// MaxOfferFiles is the largest number of files accepted in a single
	// AckReq. Larger declared counts are rejected before allocating.
	MaxOfferFiles = 1 << 16
)

type PacketType uint8

const (
	TypePing      PacketType = 0x01
	TypePong      PacketType = 0x02
	TypeAckReq    PacketType = 0x11
	TypeAckRes    PacketType = 0x12
	TypeFileBlock PacketType = 0x21
	TypeFileEnd   PacketType = 0x22
)

func (t PacketType) String() string {
	switch t {
	case TypePing:
		return "Ping"
	case TypePong:
		return "Pong"
	case TypeAckReq:
		return "AckReq"
	case TypeAckRes:
		return "AckRes"
	case TypeFileBlock:
		return "FileBlock"
	case TypeFileEnd:
		return "FileEnd"
	default:
		return fmt.Sprintf("Unknown(0x%02x)", uint8(t))
	}
}

// A Packet is one of *Ping, *Pong, *AckReq, *AckRes, *FileBlock or
// *FileEnd.
type Packet interface {
	Type() PacketType
	// appendTo appends the encoded packet, including the flag byte.
	appendTo(bs []byte) ([]byte, error)
}

type Ping struct{}

type Pong struct{}

// AckReq offers a set of files to the receiver.
type AckReq struct {
	Files []FileMeta
}

// AckRes accepts or declines an offer as a whole.
type AckRes struct {
	Accepted bool
}

// FileBlock carries one chunk of the file with the given ID.
type FileBlock struct {
	ID   uint32
	Data []byte
}

// FileEnd terminates the current file and carries the sender's checksum
// of its contents.
type FileEnd struct {
	Checksum Checksum
}

func (*Ping) Type() PacketType      { return TypePing }
func (*Pong) Type() PacketType      { return TypePong }
func (*AckReq) Type() PacketType    { return TypeAckReq }
func (*AckRes) Type() PacketType    { return TypeAckRes }
func (*FileBlock) Type() PacketType { return TypeFileBlock }
func (*FileEnd) Type() PacketType   { return TypeFileEnd }

func (*Ping) String() string { return "Ping" }
func (*Pong) String() string { return "Pong" }

func (p *AckReq) String() string {
	return fmt.Sprintf("AckReq{files=%d size=%d}", len(p.Files), TotalSize(p.Files))
}

func (p *AckRes) String() string {
	return fmt.Sprintf("AckRes{accepted=%v}", p.Accepted)
}

func (p *FileBlock) String() string {
	return fmt.Sprintf("FileBlock{id=%08x len=%d}", p.ID, len(p.Data))
}

func (p *FileEnd) String() string {
	return fmt.Sprintf("FileEnd{checksum=%d}", p.Checksum)
}
