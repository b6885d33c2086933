// Copyright 2023 Intel Corporation.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package types

import (
	"fmt"
	"net"
)

// IPv4Address keeps the address in host-independent big-endian value
// form: the most significant byte is the first byte on the wire. All
// MAP arithmetic (prefix | suffix composition, embedding into IPv6
// interface identifiers) happens on this value form.
type IPv4Address uint32

// BytesToIPv4 converts four wire-order bytes to IPv4Address.
func BytesToIPv4(a byte, b byte, c byte, d byte) IPv4Address {
	return IPv4Address(a)<<24 | IPv4Address(b)<<16 | IPv4Address(c)<<8 | IPv4Address(d)
}

// SliceToIPv4 converts a four element wire-order slice to IPv4Address.
func SliceToIPv4(s []byte) IPv4Address {
	return BytesToIPv4(s[0], s[1], s[2], s[3])
}

// IPv4ToBytes converts an IPv4Address to wire-order bytes.
func IPv4ToBytes(v IPv4Address) [IPv4AddrLen]byte {
	return [IPv4AddrLen]byte{byte(v >> 24), byte(v >> 16), byte(v >> 8), byte(v)}
}

func (addr IPv4Address) String() string {
	return fmt.Sprintf("%d.%d.%d.%d", byte(addr>>24), byte(addr>>16), byte(addr>>8), byte(addr))
}

// StringToIPv4 parses an IPv4 literal.
func StringToIPv4(s string) (IPv4Address, error) {
	ip := net.ParseIP(s)
	if ip == nil {
		return 0, fmt.Errorf("failed to parse address %s", s)
	}
	ipv4 := ip.To4()
	if ipv4 == nil {
		return 0, fmt.Errorf("bad IPv4 address %s", s)
	}
	return BytesToIPv4(ipv4[0], ipv4[1], ipv4[2], ipv4[3]), nil
}
