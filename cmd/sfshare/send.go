// Copyright (C) 2026 The Sfshare Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

package main

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/sfshare/sfshare/lib/protocol"
	"github.com/sfshare/sfshare/lib/selection"
	"github.com/sfshare/sfshare/lib/transfer"
)

type sendCmd struct {
	Receiver    string         `arg:"" help:"Receiver address, host or host:port"`
	Paths       []string       `arg:"" optional:"" help:"Files to send; a directory for the all modes, patterns for glob"`
	Mode        selection.Mode `help:"How paths select files: single, selected, all, all-recursive or glob" default:"selected" short:"m"`
	Yes         bool           `help:"Don't ask before sending large transfers" short:"y"`
	MaxSendKbps int            `help:"Limit the send rate, in KiB/s" env:"SFSHARE_MAX_SEND_KBPS" placeholder:"KIBPS"`
	NoProgress  bool           `help:"Don't show a progress bar"`
}

func (c *sendCmd) Run(rc *runContext) error {
	opts := rc.opts
	if c.MaxSendKbps > 0 {
		opts.MaxSendKbps = c.MaxSendKbps
	}

	sel := selection.Selection{Mode: c.Mode, Paths: c.Paths}
	files, err := selection.Resolve(sel)
	if err != nil {
		return err
	}
	addr := opts.TargetAddress(c.Receiver)
	fmt.Fprintf(rc.stdout, "Sending %v to %s\n", sel, addr)
	slog.Info("Resolved files to send", "files", len(files), "size", protocol.TotalSize(files))

	bar := newProgressBar(rc.stdout, c.NoProgress)
	defer bar.finish()

	s := &transfer.Sender{
		Files:            files,
		ConfirmSize:      opts.ConfirmSize,
		ConfirmCount:     opts.ConfirmCount,
		Progress:         bar.update,
		ProgressInterval: opts.ProgressInterval(),
		Limiter:          opts.SendLimiter(),
		TrafficClass:     opts.TrafficClass,
		Events:           rc.events,
	}
	if !c.Yes {
		s.Confirm = newPrompter(rc.stdin, rc.stdout).confirmSend
	}

	err = s.SendTo(rc.ctx, addr)
	switch {
	case errors.Is(err, transfer.ErrPeerUnreachable):
		return fmt.Errorf("%w; make sure both are on the same network and sfshare is running in recv mode", err)
	case errors.Is(err, transfer.ErrRequestDeclined):
		return fmt.Errorf("%w, maybe next time", err)
	case err != nil:
		return err
	}
	_, out := protocol.TotalInOut()
	fmt.Fprintf(rc.stdout, "Sent %d files (%d bytes on the wire)\n", len(files), out)
	return nil
}
