// Copyright (C) 2026 The Sfshare Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

package netutil

import (
	"context"
	"net"
	"net/netip"
	"slices"
	"strconv"
	"strings"

	psnet "github.com/shirou/gopsutil/v4/net"
)

// An Address is one local address a sender can reach us on.
type Address struct {
	Interface string
	Addr      netip.Addr
	Port      int
}

// String returns host:port, with IPv6 hosts in brackets.
func (a Address) String() string {
	return net.JoinHostPort(a.Addr.String(), strconv.Itoa(a.Port))
}

// ListenAddresses lists the addresses of all interfaces that are up, paired
// with port. Loopback addresses are included and sorted last; link local
// IPv6 addresses get their zone.
func ListenAddresses(ctx context.Context, port int) ([]Address, error) {
	intfs, err := psnet.InterfacesWithContext(ctx)
	if err != nil {
		return nil, err
	}

	var addrs []Address
	for _, intf := range intfs {
		if !slices.Contains(intf.Flags, "up") {
			continue
		}
		for _, ia := range intf.Addrs {
			addr, ok := parseInterfaceAddr(ia.Addr)
			if !ok {
				continue
			}
			if addr.Is6() && addr.IsLinkLocalUnicast() {
				addr = addr.WithZone(intf.Name)
			}
			addrs = append(addrs, Address{Interface: intf.Name, Addr: addr, Port: port})
		}
	}

	slices.SortStableFunc(addrs, func(a, b Address) int {
		switch {
		case a.Addr.IsLoopback() == b.Addr.IsLoopback():
			return 0
		case a.Addr.IsLoopback():
			return 1
		default:
			return -1
		}
	})
	return addrs, nil
}

// parseInterfaceAddr accepts both "192.0.2.1/24" and a bare address.
func parseInterfaceAddr(s string) (netip.Addr, bool) {
	if i := strings.IndexByte(s, '/'); i >= 0 {
		s = s[:i]
	}
	addr, err := netip.ParseAddr(s)
	if err != nil {
		return netip.Addr{}, false
	}
	return addr.Unmap(), true
}
