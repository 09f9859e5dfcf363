// Copyright (C) 2026 The Sfshare Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

package transfer

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	metricTransfers = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "sfshare",
		Subsystem: "transfer",
		Name:      "transfers_total",
		Help:      "Total number of negotiated transfers, by direction and result",
	}, []string{"direction", "result"})
	metricFiles = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "sfshare",
		Subsystem: "transfer",
		Name:      "files_total",
		Help:      "Total number of files handled, by direction and result",
	}, []string{"direction", "result"})
	metricDiscardedBlocks = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "sfshare",
		Subsystem: "transfer",
		Name:      "discarded_blocks_total",
		Help:      "Total number of blocks received for files that were not requested",
	})
)

const (
	dirSend = "send"
	dirRecv = "recv"

	resultCompleted = "completed"
	resultDeclined  = "declined"
	resultFailed    = "failed"
	resultOK        = "ok"
	resultMismatch  = "checksum_mismatch"
	resultSkipped   = "skipped"
)
