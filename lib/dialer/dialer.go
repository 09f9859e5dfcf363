// Copyright (C) 2015 The Syncthing Authors.
// Copyright (C) 2026 The Sfshare Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

// Package dialer makes outgoing TCP connections, through a proxy when the
// environment configures one.
package dialer

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/url"
	"os"

	"golang.org/x/net/proxy"
)

var (
	noFallback = os.Getenv("ALL_PROXY_NO_FALLBACK") != ""

	errUnexpectedInterfaceType = errors.New("unexpected interface type")
)

func init() {
	proxy.RegisterDialerType("socks", socksDialerFunction)
}

// Same as proxy.FromURL for the "socks5" scheme, under the shorter name.
func socksDialerFunction(u *url.URL, forward proxy.Dialer) (proxy.Dialer, error) {
	var auth *proxy.Auth
	if u.User != nil {
		auth = new(proxy.Auth)
		auth.User = u.User.Username()
		if p, ok := u.User.Password(); ok {
			auth.Password = p
		}
	}

	return proxy.SOCKS5("tcp", u.Host, auth, forward)
}

// DialContext dials addr through the proxy from the environment, if any,
// and directly. With a proxy both are attempted at the same time and the
// proxied connection wins if it succeeds. Setting ALL_PROXY_NO_FALLBACK
// disables the direct attempt.
func DialContext(ctx context.Context, network, addr string) (net.Conn, error) {
	return dialContextWithFallback(ctx, &net.Dialer{}, network, addr)
}

func dialContextWithFallback(ctx context.Context, fallback proxy.ContextDialer, network, addr string) (net.Conn, error) {
	dialer, ok := proxy.FromEnvironment().(proxy.ContextDialer)
	if !ok {
		return nil, errUnexpectedInterfaceType
	}
	if dialer == proxy.Direct {
		conn, err := fallback.DialContext(ctx, network, addr)
		slog.Debug("Dialing direct", "network", network, "addr", addr, "error", err)
		return conn, err
	}
	if noFallback {
		conn, err := dialer.DialContext(ctx, network, addr)
		slog.Debug("Dialing through proxy without fallback", "network", network, "addr", addr, "error", err)
		if err != nil {
			return nil, err
		}
		return dialerConn{conn, newDialerAddr(network, addr)}, nil
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	var proxyConn, fallbackConn net.Conn
	var proxyErr, fallbackErr error
	proxyDone := make(chan struct{})
	fallbackDone := make(chan struct{})
	go func() {
		proxyConn, proxyErr = dialer.DialContext(ctx, network, addr)
		slog.Debug("Dialing through proxy", "network", network, "addr", addr, "error", proxyErr)
		if proxyErr == nil {
			proxyConn = dialerConn{proxyConn, newDialerAddr(network, addr)}
		}
		close(proxyDone)
	}()
	go func() {
		fallbackConn, fallbackErr = fallback.DialContext(ctx, network, addr)
		slog.Debug("Dialing fallback", "network", network, "addr", addr, "error", fallbackErr)
		close(fallbackDone)
	}()
	<-proxyDone
	if proxyErr == nil {
		go func() {
			<-fallbackDone
			if fallbackErr == nil {
				_ = fallbackConn.Close()
			}
		}()
		return proxyConn, nil
	}
	<-fallbackDone
	return fallbackConn, fallbackErr
}

// dialerConn reports the dialed address as the remote address instead of
// the proxy's.
type dialerConn struct {
	net.Conn

	addr net.Addr
}

func (c dialerConn) RemoteAddr() net.Addr {
	return c.addr
}

func newDialerAddr(network, addr string) net.Addr {
	if tcpAddr, err := net.ResolveTCPAddr(network, addr); err == nil {
		return tcpAddr
	}
	return fallbackAddr{network, addr}
}

type fallbackAddr struct {
	network string
	addr    string
}

func (a fallbackAddr) Network() string {
	return a.network
}

func (a fallbackAddr) String() string {
	return a.addr
}
