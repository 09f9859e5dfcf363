// Copyright (C) 2024 The Syncthing Authors.
// Copyright (C) 2026 The Sfshare Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

package connections

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	metricConnections = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "sfshare",
		Subsystem: "connections",
		Name:      "accepted_total",
		Help:      "Total number of accepted connections",
	})
	metricConnectionErrors = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "sfshare",
		Subsystem: "connections",
		Name:      "errors_total",
		Help:      "Total number of connections that ended with an error",
	})
	metricAcceptFailures = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "sfshare",
		Subsystem: "connections",
		Name:      "accept_failures_total",
		Help:      "Total number of failed accept calls",
	})
)
