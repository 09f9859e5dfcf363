// Copyright (C) 2026 The Sfshare Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

package svcutil

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/thejerf/suture/v4"
)

func TestFatalErr(t *testing.T) {
	err := AsFatalErr(io.EOF, ExitDeclined)
	if !errors.Is(err, suture.ErrTerminateSupervisorTree) {
		t.Error("fatal error should terminate the tree")
	}
	if !errors.Is(err, io.EOF) {
		t.Error("fatal error should wrap its cause")
	}
	if again := AsFatalErr(err, ExitError); again != err || again.Status != ExitDeclined {
		t.Error("fatal error should not be wrapped twice")
	}
}

func TestNoRestartErr(t *testing.T) {
	if !errors.Is(NoRestartErr(nil), suture.ErrDoNotRestart) {
		t.Error("nil should map to ErrDoNotRestart")
	}
	err := NoRestartErr(io.EOF)
	if !errors.Is(err, suture.ErrDoNotRestart) || !errors.Is(err, io.EOF) {
		t.Errorf("unexpected error %v", err)
	}
}

func TestAsServiceRecordsError(t *testing.T) {
	svc := AsService(func(context.Context) error { return io.EOF }, "test")
	if err := svc.Serve(context.Background()); err != io.EOF {
		t.Fatal(err)
	}
	if svc.Error() != io.EOF {
		t.Error("error not recorded")
	}
}

func TestSupervisorTerminatesOnFatal(t *testing.T) {
	sup := suture.New("test", SpecWithInfoLogger())
	sup.Add(AsService(func(context.Context) error {
		return AsFatalErr(io.EOF, ExitError)
	}, "test"))

	done := make(chan struct{})
	OnSupervisorDone(sup, func() { close(done) })

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err := sup.Serve(ctx)
	var ferr *FatalErr
	if !errors.As(err, &ferr) || ferr.Status != ExitError {
		t.Errorf("unexpected error %v", err)
	}
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Error("done hook not called")
	}
}
