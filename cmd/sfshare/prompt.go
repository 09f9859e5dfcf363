// Copyright (C) 2026 The Sfshare Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/sfshare/sfshare/lib/transfer"
)

// prompter asks yes/no questions on the terminal until it gets a valid
// answer.
type prompter struct {
	in  *bufio.Reader
	out io.Writer
	mut sync.Mutex
}

func newPrompter(in io.Reader, out io.Writer) *prompter {
	return &prompter{in: bufio.NewReader(in), out: out}
}

func (p *prompter) ask(ctx context.Context, question string) (bool, error) {
	p.mut.Lock()
	defer p.mut.Unlock()

	fmt.Fprintln(p.out, question)
	for {
		if err := ctx.Err(); err != nil {
			return false, err
		}
		fmt.Fprintln(p.out, "[y] yes / [n] no")
		line, err := p.in.ReadString('\n')
		switch strings.ToLower(strings.TrimSpace(line)) {
		case "y", "yes":
			return true, nil
		case "n", "no":
			return false, nil
		}
		if err != nil {
			return false, fmt.Errorf("reading answer: %w", err)
		}
	}
}

func (p *prompter) confirmSend(ctx context.Context, req transfer.ConfirmRequest) (bool, error) {
	return p.ask(ctx, fmt.Sprintf("Are you sure you want to send %d files with %smb size total?", len(req.Files), megabytes(req.TotalSize)))
}

func (p *prompter) confirmReceive(ctx context.Context, req transfer.ConfirmRequest) (bool, error) {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%s wants to send you %d files with %smb size total:", req.Peer, len(req.Files), megabytes(req.TotalSize))
	for _, f := range req.Files {
		fmt.Fprintf(&sb, "\n  %s (%smb)", f.Name, megabytes(f.Size))
	}
	sb.WriteString("\nDo you want to receive them?")
	return p.ask(ctx, sb.String())
}

func megabytes(n uint64) string {
	return strings.TrimRight(strings.TrimRight(fmt.Sprintf("%.3f", float64(n)/1_000_000), "0"), ".")
}
