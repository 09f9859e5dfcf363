// Copyright (C) 2026 The Sfshare Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

// Command sfshare sends files to another sfshare instance on the same
// network.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"sort"
	"strconv"
	"syscall"

	"github.com/alecthomas/kong"
	"go.uber.org/automaxprocs/maxprocs"

	"github.com/sfshare/sfshare/internal/slogutil"
	"github.com/sfshare/sfshare/lib/build"
	"github.com/sfshare/sfshare/lib/config"
	"github.com/sfshare/sfshare/lib/events"
	"github.com/sfshare/sfshare/lib/svcutil"
	"github.com/sfshare/sfshare/lib/transfer"
)

type CLI struct {
	Config   string `help:"Path to a YAML configuration file" env:"SFSHARE_CONFIG" placeholder:"PATH"`
	LogLevel string `help:"Default log level (${enum})" enum:"debug,info,warn,error" default:"info" env:"SFSHARE_LOG_LEVEL"`
	Trace    string `help:"Per package log levels, e.g. transfer,protocol:WARN" env:"SFTRACE" placeholder:"PKGS"`

	LogFormatTimestamp   string `help:"Format for timestamp, set to empty to disable timestamps" env:"SFSHARE_LOG_FORMAT_TIMESTAMP" default:"${timestampFormat}"`
	LogFormatLevelString bool   `help:"Whether to include level string in log line" env:"SFSHARE_LOG_FORMAT_LEVEL_STRING" default:"${levelString}" negatable:""`
	LogFormatLevelSyslog bool   `help:"Whether to include level as syslog prefix in log line" env:"SFSHARE_LOG_FORMAT_LEVEL_SYSLOG" default:"${levelSyslog}" negatable:""`

	Send        sendCmd        `cmd:"" help:"Send files to a receiver"`
	Recv        recvCmd        `cmd:"" help:"Wait for files and receive them"`
	ShowConfig  showConfigCmd  `cmd:"" help:"Print the effective configuration"`
	LogPackages logPackagesCmd `cmd:"" help:"List the packages that have their own log level"`
	Version     versionCmd     `cmd:"" help:"Show version"`
}

// runContext is what every command's Run gets.
type runContext struct {
	ctx    context.Context
	opts   config.Options
	events *events.Logger
	stdin  io.Reader
	stdout io.Writer
}

func main() {
	var cli CLI
	kctx := kong.Parse(&cli,
		kong.Name("sfshare"),
		kong.Description("Simple file sharing over TCP."),
		kong.UsageOnError(),
		kongVars(),
	)

	slogutil.SetLineFormat(slogutil.LineFormat{
		TimestampFormat: cli.LogFormatTimestamp,
		LevelString:     cli.LogFormatLevelString,
		LevelSyslog:     cli.LogFormatLevelSyslog,
	})
	setupLogging(cli.LogLevel, cli.Trace)
	if _, err := maxprocs.Set(maxprocs.Logger(func(format string, args ...any) {
		slog.Debug(fmt.Sprintf(format, args...))
	})); err != nil {
		slog.Debug("Failed to set GOMAXPROCS", slogutil.Error(err))
	}

	opts, err := loadOptions(cli.Config)
	if err != nil {
		slog.Error("Failed to load configuration", slogutil.Error(err))
		os.Exit(svcutil.ExitUsage.AsInt())
	}

	events.Default.Log(events.Starting, map[string]string{"version": build.Version})

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	err = kctx.Run(&runContext{
		ctx:    ctx,
		opts:   opts,
		events: events.Default,
		stdin:  os.Stdin,
		stdout: os.Stdout,
	})
	if err != nil {
		slog.Error(err.Error())
	}
	cancel()
	os.Exit(exitStatus(err).AsInt())
}

func kongVars() kong.Vars {
	return kong.Vars{
		"timestampFormat": slogutil.DefaultLineFormat.TimestampFormat,
		"levelString":     strconv.FormatBool(slogutil.DefaultLineFormat.LevelString),
		"levelSyslog":     strconv.FormatBool(slogutil.DefaultLineFormat.LevelSyslog),
	}
}

func setupLogging(level, trace string) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err == nil {
		slogutil.SetDefaultLevel(lvl)
	}
	slogutil.SetLevelOverrides(trace)
}

func loadOptions(path string) (config.Options, error) {
	if path == "" {
		return config.New(), nil
	}
	return config.Load(path)
}

func exitStatus(err error) svcutil.ExitStatus {
	var ferr *svcutil.FatalErr
	switch {
	case err == nil, errors.Is(err, context.Canceled):
		return svcutil.ExitSuccess
	case errors.As(err, &ferr):
		return ferr.Status
	case errors.Is(err, transfer.ErrRequestDeclined), errors.Is(err, transfer.ErrAborted):
		return svcutil.ExitDeclined
	default:
		return svcutil.ExitError
	}
}

type versionCmd struct{}

func (versionCmd) Run(rc *runContext) error {
	fmt.Fprintln(rc.stdout, build.LongVersion)
	return nil
}

type showConfigCmd struct{}

func (showConfigCmd) Run(rc *runContext) error {
	bs, err := rc.opts.Marshal()
	if err != nil {
		return err
	}
	_, err = rc.stdout.Write(bs)
	return err
}

type logPackagesCmd struct{}

func (logPackagesCmd) Run(rc *runContext) error {
	descrs := slogutil.PackageDescrs()
	levels := slogutil.PackageLevels()
	pkgs := make([]string, 0, len(descrs))
	for pkg := range descrs {
		pkgs = append(pkgs, pkg)
	}
	sort.Strings(pkgs)
	for _, pkg := range pkgs {
		fmt.Fprintf(rc.stdout, "%-12s %-5s %s\n", pkg, levels[pkg], descrs[pkg])
	}
	return nil
}
