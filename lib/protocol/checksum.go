// Copyright (C) 2026 The Sfshare Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

package protocol

// ChecksumModulus is 2^31-1.
const ChecksumModulus = 2147483647

// Checksum is the additive file checksum: the sum of all byte values
// modulo ChecksumModulus. It catches transport corruption only and is
// independent of how the data is split into blocks.
type Checksum uint64

// Update returns the checksum with the given data added.
func (c Checksum) Update(data []byte) Checksum {
	var sum uint64
	for _, b := range data {
		sum += uint64(b)
	}
	return Checksum((uint64(c) + sum%ChecksumModulus) % ChecksumModulus)
}
