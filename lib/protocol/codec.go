// Copyright (C) 2026 The Sfshare Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

package protocol

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// Marshal returns the wire encoding of the packet.
func Marshal(p Packet) ([]byte, error) {
	return p.appendTo(nil)
}

// WritePacket writes the packet to w in a single Write call.
func WritePacket(w io.Writer, p Packet) error {
	bs, err := Marshal(p)
	if err != nil {
		return err
	}
	if _, err := w.Write(bs); err != nil {
		return err
	}
	metricSentPackets.WithLabelValues(p.Type().String()).Inc()
	return nil
}

// ReadPacket reads exactly one packet from r. It returns io.EOF if the
// stream ends before the flag byte, an error wrapping ErrTruncated if it
// ends in the middle of a packet and an error wrapping
// ErrUnknownPacketType for an unknown flag byte. The reader should be
// buffered; the codec does many small reads.
func ReadPacket(r io.Reader) (Packet, error) {
	var buf [8]byte
	if _, err := io.ReadFull(r, buf[:1]); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, io.EOF
		}
		return nil, fmt.Errorf("reading packet type: %w", err)
	}

	var p Packet
	var err error
	switch typ := PacketType(buf[0]); typ {
	case TypePing:
		p = &Ping{}
	case TypePong:
		p = &Pong{}
	case TypeAckReq:
		p, err = readAckReq(r, buf[:])
	case TypeAckRes:
		p, err = readAckRes(r, buf[:])
	case TypeFileBlock:
		p, err = readFileBlock(r, buf[:])
	case TypeFileEnd:
		p, err = readFileEnd(r, buf[:])
	default:
		return nil, &UnknownPacketTypeError{Flag: buf[0]}
	}
	if err != nil {
		return nil, err
	}
	metricRecvPackets.WithLabelValues(p.Type().String()).Inc()
	return p, nil
}

func (*Ping) appendTo(bs []byte) ([]byte, error) {
	return append(bs, byte(TypePing)), nil
}

func (*Pong) appendTo(bs []byte) ([]byte, error) {
	return append(bs, byte(TypePong)), nil
}

func (p *AckReq) appendTo(bs []byte) ([]byte, error) {
	if uint64(len(p.Files)) > MaxOfferFiles {
		return nil, fmt.Errorf("%w: %d", ErrTooManyFiles, len(p.Files))
	}
	size := 5
	for _, f := range p.Files {
		size += 14 + len(f.Name)
	}
	bs = grow(bs, size)
	bs = append(bs, byte(TypeAckReq))
	bs = binary.BigEndian.AppendUint32(bs, uint32(len(p.Files)))
	for _, f := range p.Files {
		var err error
		bs, err = f.appendTo(bs)
		if err != nil {
			return nil, err
		}
	}
	return bs, nil
}

func readAckReq(r io.Reader, buf []byte) (*AckReq, error) {
	if _, err := io.ReadFull(r, buf[:4]); err != nil {
		return nil, truncated("file count", err)
	}
	count := binary.BigEndian.Uint32(buf)
	if count > MaxOfferFiles {
		return nil, fmt.Errorf("%w: declared %d, max %d", ErrTooManyFiles, count, MaxOfferFiles)
	}

	// The count is untrusted; let the slice grow as records actually
	// arrive.
	files := make([]FileMeta, 0, min(count, 64))
	for i := uint32(0); i < count; i++ {
		f, err := readFileMeta(r, buf)
		if err != nil {
			return nil, err
		}
		files = append(files, f)
	}
	return &AckReq{Files: files}, nil
}

func (p *AckRes) appendTo(bs []byte) ([]byte, error) {
	var accepted byte
	if p.Accepted {
		accepted = 1
	}
	return append(bs, byte(TypeAckRes), accepted), nil
}

func readAckRes(r io.Reader, buf []byte) (*AckRes, error) {
	if _, err := io.ReadFull(r, buf[:1]); err != nil {
		return nil, truncated("accepted flag", err)
	}
	// Anything but zero is taken as acceptance.
	return &AckRes{Accepted: buf[0] != 0}, nil
}

func (p *FileBlock) appendTo(bs []byte) ([]byte, error) {
	if len(p.Data) > MaxBlockLen {
		return nil, fmt.Errorf("%w: %d bytes", ErrBlockTooLarge, len(p.Data))
	}
	bs = grow(bs, 7+len(p.Data))
	bs = append(bs, byte(TypeFileBlock))
	bs = binary.BigEndian.AppendUint32(bs, p.ID)
	bs = binary.BigEndian.AppendUint16(bs, uint16(len(p.Data)))
	return append(bs, p.Data...), nil
}

func readFileBlock(r io.Reader, buf []byte) (*FileBlock, error) {
	if _, err := io.ReadFull(r, buf[:6]); err != nil {
		return nil, truncated("block header", err)
	}
	id := binary.BigEndian.Uint32(buf)
	dataLen := binary.BigEndian.Uint16(buf[4:])
	data := make([]byte, dataLen)
	if _, err := io.ReadFull(r, data); err != nil {
		return nil, truncated("block data", err)
	}
	return &FileBlock{ID: id, Data: data}, nil
}

func (p *FileEnd) appendTo(bs []byte) ([]byte, error) {
	bs = append(bs, byte(TypeFileEnd))
	return binary.BigEndian.AppendUint64(bs, uint64(p.Checksum)), nil
}

func readFileEnd(r io.Reader, buf []byte) (*FileEnd, error) {
	if _, err := io.ReadFull(r, buf[:8]); err != nil {
		return nil, truncated("checksum", err)
	}
	return &FileEnd{Checksum: Checksum(binary.BigEndian.Uint64(buf))}, nil
}

func grow(bs []byte, n int) []byte {
	if cap(bs)-len(bs) >= n {
		return bs
	}
	nb := make([]byte, len(bs), len(bs)+n)
	copy(nb, bs)
	return nb
}
