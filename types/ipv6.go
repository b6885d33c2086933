// Copyright 2023 Intel Corporation.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package types

import (
	"fmt"
	"net"
)

// IPv6Address is kept in wire order.
type IPv6Address [IPv6AddrLen]uint8

func (addr IPv6Address) String() string {
	return fmt.Sprintf("%02x%02x:%02x%02x:%02x%02x:%02x%02x:%02x%02x:%02x%02x:%02x%02x:%02x%02x",
		addr[0], addr[1], addr[2], addr[3],
		addr[4], addr[5], addr[6], addr[7],
		addr[8], addr[9], addr[10], addr[11],
		addr[12], addr[13], addr[14], addr[15])
}

// StringToIPv6 parses an IPv6 literal.
func StringToIPv6(s string) (IPv6Address, error) {
	var out IPv6Address
	ip := net.ParseIP(s)
	if ip == nil {
		return out, fmt.Errorf("failed to parse address %s", s)
	}
	ipv6 := ip.To16()
	if ipv6 == nil || ip.To4() != nil {
		return out, fmt.Errorf("bad IPv6 address %s", s)
	}
	copy(out[:], ipv6)
	return out, nil
}
