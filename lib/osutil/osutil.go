// Copyright (C) 2026 The Sfshare Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

// Package osutil implements utilities for native OS support.
package osutil

import (
	"errors"
	"fmt"

	"github.com/shirou/gopsutil/v4/disk"
)

var ErrInsufficientSpace = errors.New("insufficient space")

// CheckAvailableSpace returns ErrInsufficientSpace if the filesystem
// holding dir can't take req more bytes. If usage can't be determined the
// check passes.
func CheckAvailableSpace(dir string, req uint64) error {
	usage, err := disk.Usage(dir)
	if err != nil {
		return nil //nolint: nilerr
	}
	if usage.Free < req {
		return fmt.Errorf("%w in %s: %d bytes free, %d required", ErrInsufficientSpace, dir, usage.Free, req)
	}
	return nil
}
