// Copyright 2023 Intel Corporation.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package tester

import (
	"encoding/binary"
	"testing"

	"github.com/intel-go/maptperf/packet"
	"github.com/intel-go/maptperf/tsc"
	"github.com/intel-go/maptperf/types"
)

func rxDeadline() uint64 {
	hz := tsc.Hz() // force calibration before the deadline's start time is captured
	return tsc.Rdtsc() + hz/50 // about 20 ms of polling
}

func testFrames(t *testing.T) (v6, v4, junk []byte) {
	t.Helper()
	src6, _ := types.StringToIPv6("2001:2::2")
	dst6, _ := types.StringToIPv6("2001:2:0:8000::2")
	src4, _ := types.StringToIPv4("198.19.0.2")
	dst4, _ := types.StringToIPv4("198.18.0.5")
	v6 = packet.TestFrame6(84, dutLMAC, testerLMAC, src6, dst6, types.PortFixed, types.PortFixed)
	v4 = packet.TestFrame4(84, dutLMAC, testerLMAC, src4, dst4, types.PortFixed, types.PortFixed)
	junk = packet.TestFrame6(84, dutLMAC, testerLMAC, src6, dst6, types.PortFixed, types.PortFixed)
	// break the marker: not a test frame, must be silently dropped
	junk[packet.IPv6DataOffset] = 'X'
	return v6, v4, junk
}

func TestReceiveCountsTestFrames(t *testing.T) {
	v6, v4, junk := testFrames(t)
	arp := make([]byte, 60) // EtherType neither IPv4 nor IPv6
	binary.BigEndian.PutUint16(arp[packet.EtherTypeOffset:], 0x0806)

	port := &mockPort{rx: [][]byte{v6, v4, junk, arp, v6}}
	r := &Receiver{
		FinishReceiving: rxDeadline(),
		Port:            port,
		Direction:       types.Forward,
		Mode:            ModeThroughput,
	}
	received, err := r.Receive()
	if err != nil {
		t.Fatal(err)
	}
	if received != 3 {
		t.Errorf("received: got %d, want 3", received)
	}
}

func TestReceiveLatencyRecordsTimestamps(t *testing.T) {
	v6, v4, _ := testFrames(t)
	src6, _ := types.StringToIPv6("2001:2::2")
	dst6, _ := types.StringToIPv6("2001:2:0:8000::2")
	tagged := packet.LatencyFrame6(84, dutLMAC, testerLMAC, src6, dst6,
		types.PortFixed, types.PortFixed, 2)

	receiveTS := make([]uint64, 4)
	port := &mockPort{rx: [][]byte{v6, tagged, v4}}
	r := &Receiver{
		FinishReceiving: rxDeadline(),
		Port:            port,
		Direction:       types.Forward,
		Mode:            ModeLatency,
		NumOfTagged:     4,
		ReceiveTS:       receiveTS,
	}
	received, err := r.Receive()
	if err != nil {
		t.Fatal(err)
	}
	if received != 3 {
		t.Errorf("received: got %d, want 3 (a tagged frame counts as a test frame)", received)
	}
	if receiveTS[2] == 0 {
		t.Error("the timestamp of tagged frame 2 was not recorded")
	}
	for _, i := range []int{0, 1, 3} {
		if receiveTS[i] != 0 {
			t.Errorf("timestamp %d must stay zero", i)
		}
	}
}

func TestReceiveLatencyRejectsInvalidID(t *testing.T) {
	src6, _ := types.StringToIPv6("2001:2::2")
	dst6, _ := types.StringToIPv6("2001:2:0:8000::2")
	tagged := packet.LatencyFrame6(84, dutLMAC, testerLMAC, src6, dst6,
		types.PortFixed, types.PortFixed, 7)

	r := &Receiver{
		FinishReceiving: rxDeadline(),
		Port:            &mockPort{rx: [][]byte{tagged}},
		Direction:       types.Forward,
		Mode:            ModeLatency,
		NumOfTagged:     4,
		ReceiveTS:       make([]uint64, 4),
	}
	if _, err := r.Receive(); err == nil {
		t.Fatal("an out-of-range tagged frame ID must be an error")
	}
}

func TestReceivePdvRecordsByCounter(t *testing.T) {
	src6, _ := types.StringToIPv6("2001:2::2")
	dst6, _ := types.StringToIPv6("2001:2:0:8000::2")
	frame := packet.PdvFrame6(84, dutLMAC, testerLMAC, src6, dst6,
		types.PortFixed, types.PortFixed)
	binary.LittleEndian.PutUint64(frame[packet.IPv6DataOffset+packet.PdvCounterOff:], 41)

	src4, _ := types.StringToIPv4("198.19.0.2")
	frame4 := packet.PdvFrame4(84, dutLMAC, testerLMAC, src4, 0,
		types.PortFixed, types.PortFixed)
	binary.LittleEndian.PutUint64(frame4[packet.IPv4DataOffset+packet.PdvCounterOff:], 7)

	recTS := make([]uint64, 100)
	r := &Receiver{
		FinishReceiving: rxDeadline(),
		Port:            &mockPort{rx: [][]byte{frame, frame4}},
		Direction:       types.Forward,
		Mode:            ModePdv,
		NumFrames:       100,
		RecTS:           recTS,
	}
	received, err := r.Receive()
	if err != nil {
		t.Fatal(err)
	}
	if received != 2 {
		t.Errorf("received: got %d, want 2", received)
	}
	if recTS[41] == 0 || recTS[7] == 0 {
		t.Error("the timestamps were not stored at the counter indices")
	}
}

func TestReceivePdvRejectsInvalidCounter(t *testing.T) {
	src6, _ := types.StringToIPv6("2001:2::2")
	dst6, _ := types.StringToIPv6("2001:2:0:8000::2")
	frame := packet.PdvFrame6(84, dutLMAC, testerLMAC, src6, dst6,
		types.PortFixed, types.PortFixed)
	binary.LittleEndian.PutUint64(frame[packet.IPv6DataOffset+packet.PdvCounterOff:], 100)

	r := &Receiver{
		FinishReceiving: rxDeadline(),
		Port:            &mockPort{rx: [][]byte{frame}},
		Direction:       types.Forward,
		Mode:            ModePdv,
		NumFrames:       100,
		RecTS:           make([]uint64, 100),
	}
	if _, err := r.Receive(); err == nil {
		t.Fatal("an out-of-range sequence counter must be an error")
	}
}
