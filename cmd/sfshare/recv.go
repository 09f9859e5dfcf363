// Copyright (C) 2026 The Sfshare Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/thejerf/suture/v4"

	"github.com/sfshare/sfshare/internal/slogutil"
	"github.com/sfshare/sfshare/lib/config"
	"github.com/sfshare/sfshare/lib/connections"
	"github.com/sfshare/sfshare/lib/events"
	"github.com/sfshare/sfshare/lib/netutil"
	"github.com/sfshare/sfshare/lib/osutil"
	"github.com/sfshare/sfshare/lib/svcutil"
	"github.com/sfshare/sfshare/lib/transfer"
)

type recvCmd struct {
	Dir            string `help:"Directory to save received files in" env:"SFSHARE_DIR" placeholder:"PATH"`
	Listen         string `help:"Address to listen on" env:"SFSHARE_LISTEN_ADDRESS" placeholder:"ADDR"`
	Yes            bool   `help:"Accept every transfer without asking" short:"y"`
	MetricsAddress string `help:"Serve Prometheus metrics on this address" env:"SFSHARE_METRICS_ADDRESS" placeholder:"ADDR"`
	NoProgress     bool   `help:"Don't show a progress bar"`
}

func (c *recvCmd) apply(opts config.Options) config.Options {
	if c.Dir != "" {
		opts.Dir = c.Dir
	}
	if c.Listen != "" {
		opts.ListenAddress = c.Listen
	}
	if c.MetricsAddress != "" {
		opts.MetricsAddress = c.MetricsAddress
	}
	return opts
}

func (c *recvCmd) Run(rc *runContext) error {
	opts := c.apply(rc.opts)
	if err := opts.Validate(); err != nil {
		return svcutil.AsFatalErr(err, svcutil.ExitUsage)
	}

	printAddresses(rc.ctx, rc.stdout, opts.ListenAddress)

	bar := newProgressBar(rc.stdout, c.NoProgress)
	defer bar.finish()
	prompt := newPrompter(rc.stdin, rc.stdout)

	receiver := &transfer.Receiver{
		Dir: opts.Dir,
		Confirm: func(ctx context.Context, req transfer.ConfirmRequest) (bool, error) {
			if err := osutil.CheckAvailableSpace(opts.Dir, req.TotalSize); err != nil {
				slog.Warn("Declining transfer", "peer", req.Peer, slogutil.Error(err))
				return false, nil
			}
			if c.Yes {
				return transfer.AlwaysAccept(ctx, req)
			}
			return prompt.confirmReceive(ctx, req)
		},
		Progress:         bar.update,
		ProgressInterval: opts.ProgressInterval(),
		Events:           rc.events,
	}

	sup := suture.New("sfshare", svcutil.SpecWithInfoLogger())
	sup.Add(connections.NewListener(opts.ListenAddress, opts.TrafficClass, receiver, rc.events))
	sup.Add(svcutil.AsService(newEventPrinter(rc.events, rc.stdout).serve, "event printer"))
	if opts.MetricsAddress != "" {
		sup.Add(svcutil.AsService(newMetricsServer(opts.MetricsAddress).serve, "metrics server"))
	}

	svcutil.OnSupervisorDone(sup, func() { slog.Info("Receiver stopped") })

	fmt.Fprintln(rc.stdout, "Waiting for files...")
	err := sup.Serve(rc.ctx)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func printAddresses(ctx context.Context, out io.Writer, listenAddr string) {
	_, portStr, err := net.SplitHostPort(listenAddr)
	if err != nil {
		return
	}
	port, _ := strconv.Atoi(portStr)
	addrs, err := netutil.ListenAddresses(ctx, port)
	if err != nil {
		slog.Warn("Failed to list interface addresses", slogutil.Error(err))
		return
	}
	fmt.Fprintln(out, "IP addresses to connect to:")
	for _, a := range addrs {
		family := "IPv4"
		if a.Addr.Is6() {
			family = "IPv6"
		}
		fmt.Fprintf(out, " %-12s %s > %s\n", a.Interface, family, a)
	}
}

// eventPrinter tells the user about transfers as they happen.
type eventPrinter struct {
	sub *events.Subscription
	evl *events.Logger
	out io.Writer
}

func newEventPrinter(evl *events.Logger, out io.Writer) *eventPrinter {
	mask := events.PeerConnected | events.TransferDeclined | events.TransferFinished | events.ItemFinished | events.ChecksumMismatch
	return &eventPrinter{sub: evl.Subscribe(mask), evl: evl, out: out}
}

func (p *eventPrinter) serve(ctx context.Context) error {
	defer p.evl.Unsubscribe(p.sub)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-p.sub.C():
			if !ok {
				return svcutil.NoRestartErr(nil)
			}
			p.print(ev)
		}
	}
}

func (p *eventPrinter) print(ev events.Event) {
	data, _ := ev.Data.(map[string]interface{})
	switch ev.Type {
	case events.PeerConnected:
		fmt.Fprintf(p.out, "Connection from %v\n", data["peer"])
	case events.TransferDeclined:
		fmt.Fprintf(p.out, "Declined files from %v\n", data["peer"])
	case events.TransferFinished:
		fmt.Fprintf(p.out, "Received %v files from %v\n", data["files"], data["peer"])
	case events.ItemFinished:
		if errStr, ok := data["error"].(*string); ok && errStr != nil {
			fmt.Fprintf(p.out, "Failed %v: %s\n", data["item"], *errStr)
		} else {
			fmt.Fprintf(p.out, "Saved %v\n", data["path"])
		}
	case events.ChecksumMismatch:
		fmt.Fprintf(p.out, "Warning: %v is corrupted (checksum mismatch), keeping it anyway\n", data["item"])
	}
}

type metricsServer struct {
	addr string
}

func newMetricsServer(addr string) *metricsServer {
	return &metricsServer{addr: addr}
}

func (s *metricsServer) serve(ctx context.Context) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{
		Addr:              s.addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errs := make(chan error, 1)
	go func() { errs <- srv.ListenAndServe() }()
	slog.Info("Serving metrics", "address", s.addr)

	select {
	case err := <-errs:
		return err
	case <-ctx.Done():
		sctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = srv.Shutdown(sctx)
		return ctx.Err()
	}
}
