// Copyright (C) 2026 The Sfshare Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

package protocol

import (
	"bytes"
	"testing"
	"testing/quick"
)

func TestChecksumKnownValues(t *testing.T) {
	cases := []struct {
		data []byte
		want Checksum
	}{
		{nil, 0},
		{[]byte{1, 2, 3}, 6},
		{[]byte("abc"), 97 + 98 + 99},
		{bytes.Repeat([]byte{0xff}, 3000), 255 * 3000},
	}
	for _, tc := range cases {
		if got := Checksum(0).Update(tc.data); got != tc.want {
			t.Errorf("checksum of %d bytes = %d, want %d", len(tc.data), got, tc.want)
		}
	}
}

func TestChecksumWrapsAtModulus(t *testing.T) {
	c := Checksum(ChecksumModulus - 1).Update([]byte{1})
	if c != 0 {
		t.Errorf("expected wrap to zero, got %d", c)
	}
	c = Checksum(ChecksumModulus - 10).Update([]byte{20, 5})
	if c != 15 {
		t.Errorf("expected 15, got %d", c)
	}
}

func TestChecksumChunkInvariant(t *testing.T) {
	f := func(data []byte, cuts []uint16) bool {
		whole := Checksum(0).Update(data)

		var chunked Checksum
		rest := data
		for _, cut := range cuts {
			if len(rest) == 0 {
				break
			}
			n := int(cut) % (len(rest) + 1)
			chunked = chunked.Update(rest[:n])
			rest = rest[n:]
		}
		chunked = chunked.Update(rest)

		return whole == chunked
	}
	if err := quick.Check(f, nil); err != nil {
		t.Error(err)
	}
}

func TestChecksumBlockSizes(t *testing.T) {
	data := make([]byte, 10000)
	for i := range data {
		data[i] = byte(i * 7)
	}
	want := Checksum(0).Update(data)
	for _, size := range []int{1, 2, 100, BlockSize, 4096, len(data)} {
		var c Checksum
		for off := 0; off < len(data); off += size {
			c = c.Update(data[off:min(off+size, len(data))])
		}
		if c != want {
			t.Errorf("block size %d: got %d, want %d", size, c, want)
		}
	}
}
