// Copyright 2023 Intel Corporation.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package mapt

import (
	"github.com/intel-go/maptperf/types"
)

// DMRAddress embeds an IPv4 address into the DMR IPv6 prefix following
// RFC 6052 section 2.2. For prefixes shorter than /96 the address
// straddles the reserved u octet (bits 64 to 71), which stays zero;
// with a /96 prefix the address simply occupies the last four octets.
func DMRAddress(prefix types.IPv6Address, prefixLength uint8, ipv4 types.IPv4Address) types.IPv6Address {
	out := prefix
	v := uint32(ipv4)
	octetsBeforeU := (64 - int(prefixLength)) / 8
	octetsAfterU := 4 - octetsBeforeU
	if octetsBeforeU < 0 {
		// /96 prefix, no u octet inside the embedded address
		for i := 0; i < 4; i++ {
			out[15-i] = byte(v >> (i * 8))
		}
		return out
	}
	for i := 0; i < octetsBeforeU; i++ {
		out[7-i] = byte(v >> ((i + octetsAfterU) * 8))
	}
	out[8] = 0 // u octet
	for i := 0; i < octetsAfterU; i++ {
		out[9+i] = byte(v >> ((octetsAfterU - 1 - i) * 8))
	}
	return out
}

// DMRExtractIPv4 recovers the IPv4 address embedded by DMRAddress. It
// is the inverse of the embedding for every RFC 6052 prefix length.
func DMRExtractIPv4(addr types.IPv6Address, prefixLength uint8) types.IPv4Address {
	var v uint32
	octetsBeforeU := (64 - int(prefixLength)) / 8
	octetsAfterU := 4 - octetsBeforeU
	if octetsBeforeU < 0 {
		for i := 0; i < 4; i++ {
			v |= uint32(addr[15-i]) << (i * 8)
		}
		return types.IPv4Address(v)
	}
	for i := 0; i < octetsBeforeU; i++ {
		v |= uint32(addr[7-i]) << ((i + octetsAfterU) * 8)
	}
	for i := 0; i < octetsAfterU; i++ {
		v |= uint32(addr[9+i]) << ((octetsAfterU - 1 - i) * 8)
	}
	return types.IPv4Address(v)
}
