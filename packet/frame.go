// Copyright 2023 Intel Corporation.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package packet

import (
	"encoding/binary"

	"github.com/intel-go/maptperf/types"
)

// Template frames follow RFC 2544 appendix C.2.6.4: TTL/hop limit 10,
// UDP, static port numbers when an axis does not vary and zero
// otherwise, payload marker plus modulo-256 filler. Frame sizes passed
// in include the 4 bytes of the Ethernet FCS, which the NIC appends;
// the built buffer excludes them.

func mkEthHeader(frame []byte, dstMAC, srcMAC types.MACAddress, etherType uint16) {
	copy(frame[0:], dstMAC[:])
	copy(frame[types.EtherAddrLen:], srcMAC[:])
	binary.BigEndian.PutUint16(frame[EtherTypeOffset:], etherType)
}

func mkIPv4Header(frame []byte, ipLength uint16, srcIP, dstIP types.IPv4Address) {
	h := frame[types.EtherLen:]
	h[0] = types.IPv4VersionIhl
	h[1] = 0 // type of service
	binary.BigEndian.PutUint16(h[2:], ipLength)
	binary.BigEndian.PutUint16(h[4:], 0) // packet ID
	binary.BigEndian.PutUint16(h[6:], 0) // fragment offset
	h[8] = types.TestFrameTTL
	h[9] = types.UDPNumber
	binary.BigEndian.PutUint16(h[10:], 0) // checksum is set after the UDP checksum
	src := types.IPv4ToBytes(srcIP)
	dst := types.IPv4ToBytes(dstIP)
	copy(h[12:], src[:])
	copy(h[16:], dst[:])
}

func mkIPv6Header(frame []byte, ipLength uint16, srcIP, dstIP types.IPv6Address) {
	h := frame[types.EtherLen:]
	binary.BigEndian.PutUint32(h[0:], types.IPv6VtcFlow)
	binary.BigEndian.PutUint16(h[4:], ipLength-types.IPv6Len)
	h[6] = types.UDPNumber
	h[7] = types.TestFrameTTL
	copy(h[8:], srcIP[:])
	copy(h[24:], dstIP[:])
}

func mkUDPHeader(udp []byte, udpLength uint16, varSport, varDport types.PortVariation) {
	sport := uint16(types.StaticSrcPort)
	if varSport != types.PortFixed {
		sport = 0 // will change per frame
	}
	dport := uint16(types.StaticDstPort)
	if varDport != types.PortFixed {
		dport = 0 // will change per frame
	}
	binary.BigEndian.PutUint16(udp[0:], sport)
	binary.BigEndian.PutUint16(udp[2:], dport)
	binary.BigEndian.PutUint16(udp[4:], udpLength)
	binary.BigEndian.PutUint16(udp[6:], 0) // checksum is calculated later
}

func mkData(data []byte) {
	copy(data, magicTest[:])
	fill(data[MagicLen:])
}

func mkDataLatency(data []byte, latencyFrameID uint16) {
	copy(data, magicLatency[:])
	binary.LittleEndian.PutUint16(data[LatencyIDOff:], latencyFrameID)
	fill(data[LatencyIDOff+2:])
}

func mkDataPdv(data []byte) {
	copy(data, magicTest[:])
	binary.LittleEndian.PutUint64(data[PdvCounterOff:], 0) // place for the sequence counter
	fill(data[PdvCounterOff+8:])
}

func fill(data []byte) {
	for i := range data {
		data[i] = byte(i % 256)
	}
}

type dataKind uint8

const (
	dataTest dataKind = iota
	dataLatency
	dataPdv
)

func mkFrame4(frameSize uint16, dstMAC, srcMAC types.MACAddress, srcIP, dstIP types.IPv4Address,
	varSport, varDport types.PortVariation, kind dataKind, latencyID uint16) []byte {
	length := frameSize - types.EtherCRC
	frame := make([]byte, length)
	mkEthHeader(frame, dstMAC, srcMAC, types.IPV4Number)
	ipLength := length - types.EtherLen
	mkIPv4Header(frame, ipLength, srcIP, dstIP)
	udpLength := ipLength - types.IPv4MinLen
	mkUDPHeader(frame[IPv4UDPOffset:], udpLength, varSport, varDport)
	switch kind {
	case dataTest:
		mkData(frame[IPv4DataOffset:])
	case dataLatency:
		mkDataLatency(frame[IPv4DataOffset:], latencyID)
	case dataPdv:
		mkDataPdv(frame[IPv4DataOffset:])
	}
	binary.BigEndian.PutUint16(frame[IPv4UDPCksumOffset:], ^UncomplementedIPv4UDPCksum(frame))
	binary.BigEndian.PutUint16(frame[IPv4CksumOffset:], ^UncomplementedIPv4HdrCksum(frame))
	return frame
}

func mkFrame6(frameSize uint16, dstMAC, srcMAC types.MACAddress, srcIP, dstIP types.IPv6Address,
	varSport, varDport types.PortVariation, kind dataKind, latencyID uint16) []byte {
	length := frameSize - types.EtherCRC
	frame := make([]byte, length)
	mkEthHeader(frame, dstMAC, srcMAC, types.IPV6Number)
	ipLength := length - types.EtherLen
	mkIPv6Header(frame, ipLength, srcIP, dstIP)
	udpLength := ipLength - types.IPv6Len
	mkUDPHeader(frame[IPv6UDPOffset:], udpLength, varSport, varDport)
	switch kind {
	case dataTest:
		mkData(frame[IPv6DataOffset:])
	case dataLatency:
		mkDataLatency(frame[IPv6DataOffset:], latencyID)
	case dataPdv:
		mkDataPdv(frame[IPv6DataOffset:])
	}
	binary.BigEndian.PutUint16(frame[IPv6UDPCksumOffset:], ^UncomplementedIPv6UDPCksum(frame))
	return frame
}

// TestFrame4 builds an IPv4 Test Frame. With sentinel destination
// 0.0.0.0 the stored checksums are the starting values the sender
// extends by simple addition.
func TestFrame4(frameSize uint16, dstMAC, srcMAC types.MACAddress, srcIP, dstIP types.IPv4Address,
	varSport, varDport types.PortVariation) []byte {
	return mkFrame4(frameSize, dstMAC, srcMAC, srcIP, dstIP, varSport, varDport, dataTest, 0)
}

// TestFrame6 builds an IPv6 Test Frame. With sentinel source :: the
// stored UDP checksum is the starting value the sender extends by
// simple addition.
func TestFrame6(frameSize uint16, dstMAC, srcMAC types.MACAddress, srcIP, dstIP types.IPv6Address,
	varSport, varDport types.PortVariation) []byte {
	return mkFrame6(frameSize, dstMAC, srcMAC, srcIP, dstIP, varSport, varDport, dataTest, 0)
}

// LatencyFrame4 builds a tagged IPv4 Latency Frame carrying the given
// frame ID.
func LatencyFrame4(frameSize uint16, dstMAC, srcMAC types.MACAddress, srcIP, dstIP types.IPv4Address,
	varSport, varDport types.PortVariation, id uint16) []byte {
	return mkFrame4(frameSize, dstMAC, srcMAC, srcIP, dstIP, varSport, varDport, dataLatency, id)
}

// LatencyFrame6 builds a tagged IPv6 Latency Frame carrying the given
// frame ID.
func LatencyFrame6(frameSize uint16, dstMAC, srcMAC types.MACAddress, srcIP, dstIP types.IPv6Address,
	varSport, varDport types.PortVariation, id uint16) []byte {
	return mkFrame6(frameSize, dstMAC, srcMAC, srcIP, dstIP, varSport, varDport, dataLatency, id)
}

// PdvFrame4 builds an IPv4 PDV Frame with a zeroed place for the
// sequence counter.
func PdvFrame4(frameSize uint16, dstMAC, srcMAC types.MACAddress, srcIP, dstIP types.IPv4Address,
	varSport, varDport types.PortVariation) []byte {
	return mkFrame4(frameSize, dstMAC, srcMAC, srcIP, dstIP, varSport, varDport, dataPdv, 0)
}

// PdvFrame6 builds an IPv6 PDV Frame with a zeroed place for the
// sequence counter.
func PdvFrame6(frameSize uint16, dstMAC, srcMAC types.MACAddress, srcIP, dstIP types.IPv6Address,
	varSport, varDport types.PortVariation) []byte {
	return mkFrame6(frameSize, dstMAC, srcMAC, srcIP, dstIP, varSport, varDport, dataPdv, 0)
}

// View caches the offsets of the fields the sender mutates in a
// template frame together with the uncomplemented starting checksums
// recovered from the factory-computed values. It replaces the raw
// pointers a DPDK sender would hold into the mbuf.
type View struct {
	Frame []byte

	// uncomplemented starting checksums over the sentinel-valued frame
	UDPCksumStart  uint16
	IPv4CksumStart uint16

	SrcIPv6Offset  int // -1 for IPv4 frames
	DstIPv4Offset  int // -1 for IPv6 frames
	SrcPortOffset  int
	DstPortOffset  int
	UDPCksumOffset int
	IPv4CksumOffset int // -1 for IPv6 frames
	DataOffset     int
}

// ViewIPv4 builds the field view of an IPv4 template frame.
func ViewIPv4(frame []byte) View {
	return View{
		Frame:           frame,
		UDPCksumStart:   ^binary.BigEndian.Uint16(frame[IPv4UDPCksumOffset:]),
		IPv4CksumStart:  ^binary.BigEndian.Uint16(frame[IPv4CksumOffset:]),
		SrcIPv6Offset:   -1,
		DstIPv4Offset:   IPv4DstAddrOffset,
		SrcPortOffset:   IPv4SrcPortOffset,
		DstPortOffset:   IPv4DstPortOffset,
		UDPCksumOffset:  IPv4UDPCksumOffset,
		IPv4CksumOffset: IPv4CksumOffset,
		DataOffset:      IPv4DataOffset,
	}
}

// ViewIPv6 builds the field view of an IPv6 template frame.
func ViewIPv6(frame []byte) View {
	return View{
		Frame:           frame,
		UDPCksumStart:   ^binary.BigEndian.Uint16(frame[IPv6UDPCksumOffset:]),
		SrcIPv6Offset:   IPv6SrcAddrOffset,
		DstIPv4Offset:   -1,
		SrcPortOffset:   IPv6SrcPortOffset,
		DstPortOffset:   IPv6DstPortOffset,
		UDPCksumOffset:  IPv6UDPCksumOffset,
		IPv4CksumOffset: -1,
		DataOffset:      IPv6DataOffset,
	}
}
