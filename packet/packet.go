// Copyright 2023 Intel Corporation.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package packet builds and classifies the Test Frames of the tester.
//
// Frames are flat byte slices with fixed structure: Ethernet II, then
// IPv4 or IPv6, then UDP, then the test payload. No IP options and no
// extension headers are used, so every interesting field lives at a
// constant offset from the start of the frame. The sender mutates the
// few variable fields of pre-built template frames through these
// offsets and patches the checksums incrementally; the receiver
// classifies frames with single loads at the same offsets.
//
// The test payload starts with an 8-byte ASCII marker: "IDENTIFY" for
// normal Test Frames and PDV Frames, "Identify" for tagged Latency
// Frames. Latency Frames carry a 16-bit frame ID and PDV Frames a
// 64-bit little-endian sequence counter right after the marker.
package packet

import (
	"encoding/binary"
)

// Field offsets from the start of the Ethernet frame.
//
// EtherType: 6+6=12
// IPv6 Next header: 14+6=20, UDP Data for IPv6: 14+40+8=62
// IPv4 Protocol: 14+9=23, UDP Data for IPv4: 14+20+8=42
const (
	EtherTypeOffset = 12

	IPv4ProtoOffset    = 23
	IPv4CksumOffset    = 24
	IPv4SrcAddrOffset  = 26
	IPv4DstAddrOffset  = 30
	IPv4UDPOffset      = 34
	IPv4SrcPortOffset  = 34
	IPv4DstPortOffset  = 36
	IPv4UDPLenOffset   = 38
	IPv4UDPCksumOffset = 40
	IPv4DataOffset     = 42

	IPv6NextHdrOffset  = 20
	IPv6SrcAddrOffset  = 22
	IPv6DstAddrOffset  = 38
	IPv6UDPOffset      = 54
	IPv6SrcPortOffset  = 54
	IPv6DstPortOffset  = 56
	IPv6UDPLenOffset   = 58
	IPv6UDPCksumOffset = 60
	IPv6DataOffset     = 62
)

// Offsets of the identification fields relative to the UDP data.
const (
	MagicLen      = 8
	LatencyIDOff  = 8 // 16-bit tagged frame ID
	PdvCounterOff = 8 // 64-bit little-endian sequence counter
)

// 8-byte payload markers, compared as single big-endian loads.
var (
	magicTest    = [MagicLen]byte{'I', 'D', 'E', 'N', 'T', 'I', 'F', 'Y'}
	magicLatency = [MagicLen]byte{'I', 'd', 'e', 'n', 't', 'i', 'f', 'y'}

	// MagicTest identifies normal Test Frames and PDV Frames.
	MagicTest = binary.BigEndian.Uint64(magicTest[:])
	// MagicLatency identifies tagged Latency Frames.
	MagicLatency = binary.BigEndian.Uint64(magicLatency[:])
)

// Magic reads the payload marker of a frame given the offset of its UDP
// data.
func Magic(frame []byte, dataOffset int) uint64 {
	return binary.BigEndian.Uint64(frame[dataOffset:])
}
