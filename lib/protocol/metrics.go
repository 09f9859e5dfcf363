// Copyright (C) 2023 The Syncthing Authors.
// Copyright (C) 2026 The Sfshare Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

package protocol

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	metricPeerSentBytes = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "sfshare",
		Subsystem: "protocol",
		Name:      "sent_bytes_total",
		Help:      "Total amount of data sent",
	}, []string{"peer"})
	metricSentPackets = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "sfshare",
		Subsystem: "protocol",
		Name:      "sent_packets_total",
		Help:      "Total number of packets sent",
	}, []string{"type"})

	metricPeerRecvBytes = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "sfshare",
		Subsystem: "protocol",
		Name:      "recv_bytes_total",
		Help:      "Total amount of data received",
	}, []string{"peer"})
	metricRecvPackets = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "sfshare",
		Subsystem: "protocol",
		Name:      "recv_packets_total",
		Help:      "Total number of packets received",
	}, []string{"type"})
)

func registerPeerMetrics(peer string) {
	// Register metrics for this peer, so that counters are present even
	// when zero.
	metricPeerSentBytes.WithLabelValues(peer)
	metricPeerRecvBytes.WithLabelValues(peer)
}
