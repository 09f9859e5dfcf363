// Copyright (C) 2026 The Sfshare Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

// Package config implements reading the optional YAML configuration file
// and the defaults that apply without one.
package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
	"time"

	"golang.org/x/time/rate"
	"sigs.k8s.io/yaml"

	"github.com/sfshare/sfshare/lib/protocol"
)

const limiterBurstSize = 4 * 128 << 10

var (
	ErrInvalidPort  = errors.New("port out of range")
	ErrInvalidValue = errors.New("invalid value")
)

type Options struct {
	ListenAddress      string `json:"listenAddress" default:"[::]:5123"`
	Port               int    `json:"port" default:"5123"`
	Dir                string `json:"dir" default:"."`
	ConfirmSize        uint64 `json:"confirmSize" default:"1000000"`
	ConfirmCount       int    `json:"confirmCount" default:"5"`
	ProgressIntervalMs int    `json:"progressIntervalMs" default:"250"`
	MaxSendKbps        int    `json:"maxSendKbps" default:"0"`
	MetricsAddress     string `json:"metricsAddress" default:""`
	TrafficClass       int    `json:"trafficClass" default:"0"`
}

// New returns the default options.
func New() Options {
	var opts Options
	SetDefaults(&opts)
	return opts
}

// Load reads the YAML file at path on top of the defaults. Unknown keys
// are an error.
func Load(path string) (Options, error) {
	bs, err := os.ReadFile(path)
	if err != nil {
		return Options{}, err
	}
	return Parse(bs)
}

func Parse(bs []byte) (Options, error) {
	opts := New()
	if err := yaml.UnmarshalStrict(bs, &opts); err != nil {
		return Options{}, fmt.Errorf("parsing configuration: %w", err)
	}
	if err := opts.Validate(); err != nil {
		return Options{}, err
	}
	return opts, nil
}

// Marshal returns the options as YAML.
func (o Options) Marshal() ([]byte, error) {
	return yaml.Marshal(o)
}

func (o Options) Validate() error {
	if o.Port < 1 || o.Port > 65535 {
		return fmt.Errorf("%w: %d", ErrInvalidPort, o.Port)
	}
	if _, _, err := net.SplitHostPort(o.ListenAddress); err != nil {
		return fmt.Errorf("%w: listenAddress: %w", ErrInvalidValue, err)
	}
	switch {
	case o.ConfirmCount < 0:
		return fmt.Errorf("%w: confirmCount %d", ErrInvalidValue, o.ConfirmCount)
	case o.ProgressIntervalMs <= 0:
		return fmt.Errorf("%w: progressIntervalMs %d", ErrInvalidValue, o.ProgressIntervalMs)
	case o.MaxSendKbps < 0:
		return fmt.Errorf("%w: maxSendKbps %d", ErrInvalidValue, o.MaxSendKbps)
	case o.TrafficClass < 0 || o.TrafficClass > 255:
		return fmt.Errorf("%w: trafficClass %d", ErrInvalidValue, o.TrafficClass)
	}
	return nil
}

func (o Options) ProgressInterval() time.Duration {
	return time.Duration(o.ProgressIntervalMs) * time.Millisecond
}

// SendLimiter returns the limiter for outgoing file data, or nil when
// sending is unlimited.
func (o Options) SendLimiter() *rate.Limiter {
	if o.MaxSendKbps <= 0 {
		return nil
	}
	burst := limiterBurstSize
	if burst < protocol.BlockSize {
		burst = protocol.BlockSize
	}
	return rate.NewLimiter(rate.Limit(o.MaxSendKbps)*1024, burst)
}

// TargetAddress adds the configured port to host unless it already has
// one. IPv6 literals may be given with or without brackets.
func (o Options) TargetAddress(host string) string {
	if _, _, err := net.SplitHostPort(host); err == nil {
		return host
	}
	if len(host) > 1 && host[0] == '[' && host[len(host)-1] == ']' {
		host = host[1 : len(host)-1]
	}
	return net.JoinHostPort(host, strconv.Itoa(o.Port))
}
