// Copyright 2023 Intel Corporation.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package packet

import (
	"encoding/binary"

	"github.com/intel-go/maptperf/types"
)

// RawCksum calculates the 16-bit one's complement sum of the given
// bytes interpreted as big-endian words. Returned is the sum with
// carry: carry should be folded in and the value negated for use as a
// network checksum.
func RawCksum(b []byte) uint32 {
	var sum uint32
	n := len(b) &^ 1
	for i := 0; i < n; i += 2 {
		sum += uint32(b[i])<<8 | uint32(b[i+1])
	}
	if len(b)&1 != 0 {
		sum += uint32(b[len(b)-1]) << 8
	}
	return sum
}

// RawCksumUint64 calculates the checksum contribution of a 64-bit
// counter as it appears on the wire in little-endian byte order.
func RawCksumUint64(v uint64) uint32 {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], v)
	return RawCksum(b[:])
}

// ReduceCksum folds the carry of a checksum accumulator into the low
// 16 bits. Folding twice is enough for any sum of 16-bit words.
func ReduceCksum(sum uint32) uint16 {
	sum = (sum >> 16) + (sum & 0xffff)
	sum = (sum >> 16) + (sum & 0xffff)
	return uint16(sum)
}

// UncomplementedIPv4HdrCksum calculates the reduced but uncomplemented
// checksum of the IPv4 header of a frame. The checksum field itself
// must currently hold zero.
func UncomplementedIPv4HdrCksum(frame []byte) uint16 {
	return ReduceCksum(RawCksum(frame[types.EtherLen : types.EtherLen+types.IPv4MinLen]))
}

// UncomplementedIPv4UDPCksum calculates the reduced but uncomplemented
// UDP checksum of an IPv4 test frame, including the pseudo header. The
// UDP checksum field must currently hold zero.
func UncomplementedIPv4UDPCksum(frame []byte) uint16 {
	sum := RawCksum(frame[IPv4SrcAddrOffset : IPv4SrcAddrOffset+2*types.IPv4AddrLen]) +
		uint32(types.UDPNumber) +
		uint32(binary.BigEndian.Uint16(frame[IPv4UDPLenOffset:])) +
		RawCksum(frame[IPv4UDPOffset:])
	return ReduceCksum(sum)
}

// UncomplementedIPv6UDPCksum calculates the reduced but uncomplemented
// UDP checksum of an IPv6 test frame, including the pseudo header. The
// UDP checksum field must currently hold zero.
func UncomplementedIPv6UDPCksum(frame []byte) uint16 {
	sum := RawCksum(frame[IPv6SrcAddrOffset : IPv6SrcAddrOffset+2*types.IPv6AddrLen]) +
		uint32(types.UDPNumber) +
		uint32(binary.BigEndian.Uint16(frame[IPv6UDPLenOffset:])) +
		RawCksum(frame[IPv6UDPOffset:])
	return ReduceCksum(sum)
}

// IPv4UDPCksum recomputes the complemented UDP checksum of an IPv4 test
// frame from scratch. Used by tests to validate the incremental update
// path of the sender; the zero substitution matches the sender.
func IPv4UDPCksum(frame []byte) uint16 {
	saved := binary.BigEndian.Uint16(frame[IPv4UDPCksumOffset:])
	binary.BigEndian.PutUint16(frame[IPv4UDPCksumOffset:], 0)
	cksum := ^UncomplementedIPv4UDPCksum(frame)
	binary.BigEndian.PutUint16(frame[IPv4UDPCksumOffset:], saved)
	if cksum == 0 {
		cksum = 0xffff
	}
	return cksum
}

// IPv6UDPCksum recomputes the complemented UDP checksum of an IPv6 test
// frame from scratch.
func IPv6UDPCksum(frame []byte) uint16 {
	saved := binary.BigEndian.Uint16(frame[IPv6UDPCksumOffset:])
	binary.BigEndian.PutUint16(frame[IPv6UDPCksumOffset:], 0)
	cksum := ^UncomplementedIPv6UDPCksum(frame)
	binary.BigEndian.PutUint16(frame[IPv6UDPCksumOffset:], saved)
	return cksum
}

// IPv4HdrCksum recomputes the complemented IPv4 header checksum of a
// test frame from scratch, with the same zero substitution the sender
// applies.
func IPv4HdrCksum(frame []byte) uint16 {
	saved := binary.BigEndian.Uint16(frame[IPv4CksumOffset:])
	binary.BigEndian.PutUint16(frame[IPv4CksumOffset:], 0)
	cksum := ^UncomplementedIPv4HdrCksum(frame)
	binary.BigEndian.PutUint16(frame[IPv4CksumOffset:], saved)
	if cksum == 0 {
		cksum = 0xffff
	}
	return cksum
}
