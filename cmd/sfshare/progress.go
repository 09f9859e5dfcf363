// Copyright (C) 2026 The Sfshare Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

package main

import (
	"fmt"
	"io"
	"sync"

	"github.com/cheggaaa/pb"

	"github.com/sfshare/sfshare/lib/transfer"
)

// progressBar draws one bar per transfer. The bar is finished when all
// bytes are done, so the next transfer starts a new one.
type progressBar struct {
	out      io.Writer
	disabled bool

	mut sync.Mutex
	bar *pb.ProgressBar
}

func newProgressBar(out io.Writer, disabled bool) *progressBar {
	return &progressBar{out: out, disabled: disabled}
}

func (p *progressBar) update(tp transfer.Progress) {
	if p.disabled {
		return
	}
	p.mut.Lock()
	defer p.mut.Unlock()

	if p.bar == nil {
		p.bar = pb.New64(int64(tp.BytesTotal))
		p.bar.SetUnits(pb.U_BYTES)
		p.bar.Output = p.out
		p.bar.ShowSpeed = true
		p.bar.Start()
	}
	p.bar.Prefix(fmt.Sprintf("[%d/%d] %s ", tp.FileIndex, tp.FileCount, tp.File))
	p.bar.Set64(int64(tp.BytesDone))
	if tp.BytesDone >= tp.BytesTotal && tp.FileIndex == tp.FileCount {
		p.bar.Finish()
		p.bar = nil
	}
}

// finish stops a bar left running by an interrupted transfer.
func (p *progressBar) finish() {
	p.mut.Lock()
	defer p.mut.Unlock()
	if p.bar != nil {
		p.bar.Finish()
		p.bar = nil
	}
}
