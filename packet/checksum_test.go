// Copyright 2023 Intel Corporation.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package packet_test

import (
	"bytes"
	"testing"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"

	"github.com/intel-go/maptperf/packet"
	"github.com/intel-go/maptperf/types"
)

func TestRawCksum(t *testing.T) {
	tests := []struct {
		name string
		data []byte
		want uint32
	}{
		{"empty", nil, 0},
		{"one word", []byte{0x12, 0x34}, 0x1234},
		{"two words", []byte{0x12, 0x34, 0x56, 0x78}, 0x1234 + 0x5678},
		{"odd tail padded", []byte{0x12, 0x34, 0xab}, 0x1234 + 0xab00},
		{"carry accumulates", []byte{0xff, 0xff, 0xff, 0xff}, 0x1fffe},
	}
	for _, tc := range tests {
		if got := packet.RawCksum(tc.data); got != tc.want {
			t.Errorf("%s: got %#x, want %#x", tc.name, got, tc.want)
		}
	}
}

func TestReduceCksum(t *testing.T) {
	tests := []struct {
		sum  uint32
		want uint16
	}{
		{0, 0},
		{0x1234, 0x1234},
		{0x1fffe, 0xffff},
		{0x10000, 1},
		{0xffffffff, 0xffff},
	}
	for _, tc := range tests {
		if got := packet.ReduceCksum(tc.sum); got != tc.want {
			t.Errorf("ReduceCksum(%#x): got %#x, want %#x", tc.sum, got, tc.want)
		}
	}
}

func TestRawCksumUint64(t *testing.T) {
	// 0x0102030405060708 on the wire in little-endian order is
	// 08 07 06 05 04 03 02 01
	want := uint32(0x0807 + 0x0605 + 0x0403 + 0x0201)
	if got := packet.RawCksumUint64(0x0102030405060708); got != want {
		t.Errorf("got %#x, want %#x", got, want)
	}
}

var (
	testDstMAC = types.MACAddress{0x0a, 0x0b, 0x0c, 0x0d, 0x0e, 0x0f}
	testSrcMAC = types.MACAddress{0x11, 0x22, 0x33, 0x44, 0x55, 0x66}
)

// reserialize decodes a built frame with gopacket and serializes it
// back with recomputed checksums; byte equality proves that the frame
// factory's checksums agree with an independent implementation.
func reserialize(t *testing.T, frame []byte, first gopacket.LayerType) []byte {
	t.Helper()
	pkt := gopacket.NewPacket(frame, first, gopacket.Default)
	if err := pkt.ErrorLayer(); err != nil {
		t.Fatalf("cannot decode the built frame: %v", err.Error())
	}
	eth := pkt.Layer(layers.LayerTypeEthernet).(*layers.Ethernet)
	udp := pkt.Layer(layers.LayerTypeUDP).(*layers.UDP)

	var netLayer gopacket.SerializableLayer
	if ip4, ok := pkt.Layer(layers.LayerTypeIPv4).(*layers.IPv4); ok && ip4 != nil {
		if err := udp.SetNetworkLayerForChecksum(ip4); err != nil {
			t.Fatal(err)
		}
		netLayer = ip4
	} else {
		ip6 := pkt.Layer(layers.LayerTypeIPv6).(*layers.IPv6)
		if err := udp.SetNetworkLayerForChecksum(ip6); err != nil {
			t.Fatal(err)
		}
		netLayer = ip6
	}

	buf := gopacket.NewSerializeBuffer()
	opts := gopacket.SerializeOptions{ComputeChecksums: true}
	err := gopacket.SerializeLayers(buf, opts, eth, netLayer, udp,
		gopacket.Payload(udp.Payload))
	if err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func TestIPv4FrameChecksumsAgreeWithGopacket(t *testing.T) {
	src, _ := types.StringToIPv4("198.19.0.2")
	dst, _ := types.StringToIPv4("198.18.0.5")
	frame := packet.TestFrame4(84, testDstMAC, testSrcMAC, src, dst,
		types.PortFixed, types.PortFixed)
	if got := reserialize(t, frame, layers.LayerTypeEthernet); !bytes.Equal(got, frame) {
		t.Errorf("gopacket reserialization differs:\ngot  %x\nwant %x", got, frame)
	}
}

func TestIPv6FrameChecksumsAgreeWithGopacket(t *testing.T) {
	src, _ := types.StringToIPv6("2001:db8:ce::1")
	dst, _ := types.StringToIPv6("64:ff9b::c000:201")
	frame := packet.TestFrame6(104, testDstMAC, testSrcMAC, src, dst,
		types.PortFixed, types.PortFixed)
	if got := reserialize(t, frame, layers.LayerTypeEthernet); !bytes.Equal(got, frame) {
		t.Errorf("gopacket reserialization differs:\ngot  %x\nwant %x", got, frame)
	}
}

func TestFromScratchHelpersMatchStoredChecksums(t *testing.T) {
	src, _ := types.StringToIPv4("198.19.0.2")
	dst, _ := types.StringToIPv4("198.18.0.5")
	frame := packet.TestFrame4(84, testDstMAC, testSrcMAC, src, dst,
		types.PortFixed, types.PortFixed)
	v := packet.ViewIPv4(frame)
	if got, want := packet.IPv4UDPCksum(frame), ^v.UDPCksumStart; got != want {
		t.Errorf("UDP checksum: got %#x, want %#x", got, want)
	}
	if got, want := packet.IPv4HdrCksum(frame), ^v.IPv4CksumStart; got != want {
		t.Errorf("IPv4 header checksum: got %#x, want %#x", got, want)
	}
}
