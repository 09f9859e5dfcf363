// Copyright (C) 2026 The Sfshare Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

package transfer

import (
	"context"

	"github.com/sfshare/sfshare/lib/protocol"
)

// A ConfirmRequest is the yes/no question put to the operator before a
// transfer goes ahead.
type ConfirmRequest struct {
	Peer      string
	Files     []protocol.FileMeta
	TotalSize uint64
}

// ConfirmFunc blocks until the operator has answered. An error is fatal to
// the current attempt.
type ConfirmFunc func(ctx context.Context, req ConfirmRequest) (bool, error)

// AlwaysAccept is a ConfirmFunc that says yes without asking.
func AlwaysAccept(context.Context, ConfirmRequest) (bool, error) {
	return true, nil
}

// Progress is reported at a throttled rate while files are streamed.
type Progress struct {
	BytesDone  uint64
	BytesTotal uint64
	FileIndex  int // 1-based
	FileCount  int
	File       string
}

func (p Progress) Percent() float64 {
	if p.BytesTotal == 0 {
		return 100
	}
	return 100 * float64(p.BytesDone) / float64(p.BytesTotal)
}

// ProgressFunc is purely observational.
type ProgressFunc func(Progress)
