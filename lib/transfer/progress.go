// Copyright (C) 2026 The Sfshare Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

package transfer

import (
	"time"

	"golang.org/x/time/rate"

	"github.com/sfshare/sfshare/lib/events"
)

const DefaultProgressInterval = 250 * time.Millisecond

// progressReporter passes progress to the callback and the event log,
// at most once per interval except when explicitly flushed.
type progressReporter struct {
	fn        ProgressFunc
	evLogger  *events.Logger
	sometimes *rate.Sometimes
	cur       Progress
}

func newProgressReporter(fn ProgressFunc, evLogger *events.Logger, interval time.Duration, total uint64, count int) *progressReporter {
	if interval <= 0 {
		interval = DefaultProgressInterval
	}
	return &progressReporter{
		fn:        fn,
		evLogger:  evLogger,
		sometimes: &rate.Sometimes{First: 1, Interval: interval},
		cur:       Progress{BytesTotal: total, FileCount: count},
	}
}

func (r *progressReporter) startFile(index int, name string) {
	r.cur.FileIndex = index
	r.cur.File = name
}

func (r *progressReporter) add(n int) {
	r.cur.BytesDone += uint64(n)
	r.sometimes.Do(r.report)
}

func (r *progressReporter) flush() {
	r.report()
}

func (r *progressReporter) report() {
	if r.fn != nil {
		r.fn(r.cur)
	}
	r.evLogger.Log(events.ItemProgress, map[string]interface{}{
		"item":       r.cur.File,
		"bytesDone":  r.cur.BytesDone,
		"bytesTotal": r.cur.BytesTotal,
		"fileIndex":  r.cur.FileIndex,
		"fileCount":  r.cur.FileCount,
	})
}
