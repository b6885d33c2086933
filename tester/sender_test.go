// Copyright 2023 Intel Corporation.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package tester

import (
	"bytes"
	"encoding/binary"
	"math/rand"
	"testing"

	"github.com/intel-go/maptperf/mapt"
	"github.com/intel-go/maptperf/packet"
	"github.com/intel-go/maptperf/tsc"
	"github.com/intel-go/maptperf/types"
)

// mockPort captures transmitted frames and replays prepared ones.
type mockPort struct {
	sent [][]byte
	rx   [][]byte
	pos  int
}

func (m *mockPort) TxBurst(frames [][]byte) int {
	for _, f := range frames {
		cp := make([]byte, len(f))
		copy(cp, f)
		m.sent = append(m.sent, cp)
	}
	return len(frames)
}

func (m *mockPort) RxBurst(frames [][]byte) int {
	n := 0
	for n < len(frames) && m.pos < len(m.rx) {
		frames[n] = m.rx[m.pos]
		m.pos++
		n++
	}
	return n
}

func (m *mockPort) Close() error { return nil }

var (
	testerLMAC = types.MACAddress{0xa0, 0x36, 0x9f, 0xc5, 0xfa, 0x1c}
	dutLMAC    = types.MACAddress{0xa0, 0x36, 0x9f, 0xc5, 0xe6, 0x58}
)

func scenarioBMR(t *testing.T) (*mapt.BMR, mapt.Derived) {
	t.Helper()
	prefix, _ := types.StringToIPv6("2001:db8:ce::")
	ipv4, _ := types.StringToIPv4("198.18.0.0")
	bmr := &mapt.BMR{
		RulePrefix:       prefix,
		RulePrefixLength: 51,
		IPv4Prefix:       ipv4,
		IPv4PrefixLength: 24,
		EALength:         13,
	}
	d, err := bmr.Derive()
	if err != nil {
		t.Fatal(err)
	}
	return bmr, d
}

func newCommon(t *testing.T, d mapt.Derived, frameRate uint32, duration uint16, n, m uint32, numCEs uint32) *SenderCommon {
	t.Helper()
	leftIPv6, _ := types.StringToIPv6("2001:2::2")
	rightIPv6, _ := types.StringToIPv6("2001:2:0:8000::2")
	rightIPv4, _ := types.StringToIPv4("198.19.0.2")
	dmrPrefix, _ := types.StringToIPv6("64:ff9b::")
	return &SenderCommon{
		IPv6FrameSize: 84,
		IPv4FrameSize: 64,
		FrameRate:     frameRate,
		TestDuration:  duration,
		N:             n,
		M:             m,
		Hz:            tsc.Hz(),
		StartTSC:      tsc.Rdtsc(),
		FramesToSend:  uint64(duration) * uint64(frameRate),
		NumOfCEs:      numCEs,
		NumOfPortSets: d.NumPortSets,
		NumOfPorts:    d.PortsPerSet,
		TesterLIPv6:   leftIPv6,
		TesterRIPv4:   rightIPv4,
		DMRIPv6:       mapt.DMRAddress(dmrPrefix, 96, rightIPv4),
		TesterRIPv6:   rightIPv6,
		BgSportMin:    1024,
		BgSportMax:    65535,
		BgDportMin:    1,
		BgDportMax:    49151,
	}
}

func buildCEs(t *testing.T, bmr *mapt.BMR, d mapt.Derived, num uint32) []mapt.CE {
	t.Helper()
	perm := mapt.RandomPermutation(d.SuffixLength, d.PsidLength, rand.New(rand.NewSource(5)))
	ces, err := mapt.BuildCEArray(bmr, d, perm, num)
	if err != nil {
		t.Fatal(err)
	}
	return ces
}

// Minimal throughput scenario: 2000 frames in the forward direction,
// alternating 1000 foreground IPv6 frames to the DMR address and 1000
// background tester-to-tester frames.
func TestSendForegroundBackgroundMix(t *testing.T) {
	if testing.Short() {
		t.Skip("sends paced traffic for two seconds")
	}
	bmr, d := scenarioBMR(t)
	cp := newCommon(t, d, 1000, 2, 2, 1, 1)
	port := &mockPort{}
	s := &Sender{
		SenderCommon:         cp,
		Port:                 port,
		Direction:            types.Forward,
		CEArray:              buildCEs(t, bmr, d, 1),
		DstMAC:               dutLMAC,
		SrcMAC:               testerLMAC,
		VarSport:             types.PortRandom,
		VarDport:             types.PortRandom,
		PreconfiguredPortMin: 1,
		PreconfiguredPortMax: 49151,
		Mode:                 ModeThroughput,
	}
	if err := s.Send(); err != nil {
		t.Fatal(err)
	}
	if len(port.sent) != 2000 {
		t.Fatalf("frames sent: got %d, want 2000", len(port.sent))
	}

	ce := s.CEArray[0]
	sportMin := uint16(uint32(ce.Psid) * d.PortsPerSet)
	sportMax := uint16((uint32(ce.Psid)+1)*d.PortsPerSet - 1)
	var foreground, background int
	for k, f := range port.sent {
		if got := binary.BigEndian.Uint16(f[packet.EtherTypeOffset:]); got != types.IPV6Number {
			t.Fatalf("frame %d: EtherType %#x", k, got)
		}
		dst := f[packet.IPv6DstAddrOffset : packet.IPv6DstAddrOffset+16]
		sport := binary.BigEndian.Uint16(f[packet.IPv6SrcPortOffset:])
		dport := binary.BigEndian.Uint16(f[packet.IPv6DstPortOffset:])
		if k%2 == 0 {
			// foreground frame towards the DMR, sourced by the CE
			foreground++
			if !bytes.Equal(dst, cp.DMRIPv6[:]) {
				t.Fatalf("frame %d: foreground destination %x", k, dst)
			}
			src := f[packet.IPv6SrcAddrOffset : packet.IPv6SrcAddrOffset+16]
			if !bytes.Equal(src, ce.MapAddr[:]) {
				t.Fatalf("frame %d: foreground source %x, want the MAP address", k, src)
			}
			if sport < sportMin || sport > sportMax {
				t.Fatalf("frame %d: sport %d outside the port set [%d, %d]", k, sport, sportMin, sportMax)
			}
			if dport < 1 || dport > 49151 {
				t.Fatalf("frame %d: dport %d outside the wide range", k, dport)
			}
		} else {
			background++
			if !bytes.Equal(dst, cp.TesterRIPv6[:]) {
				t.Fatalf("frame %d: background destination %x", k, dst)
			}
			if sport < 1024 {
				t.Fatalf("frame %d: background sport %d below the range", k, sport)
			}
		}
		// the incremental checksum must equal the one computed from
		// scratch over the final frame
		if got, want := binary.BigEndian.Uint16(f[packet.IPv6UDPCksumOffset:]), packet.IPv6UDPCksum(f); got != want {
			t.Fatalf("frame %d: UDP checksum got %#x, want %#x", k, got, want)
		}
	}
	if foreground != 1000 || background != 1000 {
		t.Errorf("traffic mix: %d foreground, %d background, want 1000/1000", foreground, background)
	}
}

// Port-set discipline: with destination port incrementing in the
// reverse direction and every CE in port set 5 of 8192-port sets, the
// emitted dports walk successive integers of [40960, 49151].
func TestSendReversePortSetDiscipline(t *testing.T) {
	if testing.Short() {
		t.Skip("sends paced traffic for a second")
	}
	prefix, _ := types.StringToIPv6("2001:db8:ce::")
	ipv4, _ := types.StringToIPv4("198.18.0.0")
	bmr := &mapt.BMR{
		RulePrefix:       prefix,
		RulePrefixLength: 51,
		IPv4Prefix:       ipv4,
		IPv4PrefixLength: 24,
		EALength:         11, // 8 suffix bits + 3 PSID bits
	}
	d, err := bmr.Derive()
	if err != nil {
		t.Fatal(err)
	}
	if d.NumPortSets != 8 || d.PortsPerSet != 8192 {
		t.Fatalf("unexpected derivation: %+v", d)
	}

	// ten CEs, all in port set 5
	perm := make([]mapt.EABits, 10)
	for i := range perm {
		perm[i] = mapt.EABits{IPv4Suffix: uint32(i + 1), Psid: 5}
	}
	ces, err := mapt.BuildCEArray(bmr, d, perm, 10)
	if err != nil {
		t.Fatal(err)
	}

	cp := newCommon(t, d, 10, 1, 2, 2, 10) // m == n: everything is foreground
	port := &mockPort{}
	s := &Sender{
		SenderCommon:         cp,
		Port:                 port,
		Direction:            types.Reverse,
		CEArray:              ces,
		DstMAC:               dutLMAC,
		SrcMAC:               testerLMAC,
		VarSport:             types.PortRandom,
		VarDport:             types.PortIncrease,
		PreconfiguredPortMin: 1024,
		PreconfiguredPortMax: 65535,
		Mode:                 ModeThroughput,
	}
	if err := s.Send(); err != nil {
		t.Fatal(err)
	}
	if len(port.sent) != 10 {
		t.Fatalf("frames sent: got %d, want 10", len(port.sent))
	}
	for k, f := range port.sent {
		if got := binary.BigEndian.Uint16(f[packet.EtherTypeOffset:]); got != types.IPV4Number {
			t.Fatalf("frame %d: EtherType %#x", k, got)
		}
		wantDport := uint16(40960 + k)
		if got := binary.BigEndian.Uint16(f[packet.IPv4DstPortOffset:]); got != wantDport {
			t.Errorf("frame %d: dport got %d, want %d", k, got, wantDport)
		}
		wantDst := types.IPv4ToBytes(ces[k].IPv4Addr)
		if !bytes.Equal(f[packet.IPv4DstAddrOffset:packet.IPv4DstAddrOffset+4], wantDst[:]) {
			t.Errorf("frame %d: destination address mismatch", k)
		}
		if got, want := binary.BigEndian.Uint16(f[packet.IPv4CksumOffset:]), packet.IPv4HdrCksum(f); got != want {
			t.Errorf("frame %d: IPv4 header checksum got %#x, want %#x", k, got, want)
		}
		if got, want := binary.BigEndian.Uint16(f[packet.IPv4UDPCksumOffset:]), packet.IPv4UDPCksum(f); got != want {
			t.Errorf("frame %d: UDP checksum got %#x, want %#x", k, got, want)
		}
	}
}

// Latency tagging: with a one second delay and four tagged frames over
// the remaining second at 1000 fps, the tagged frames replace the
// normal ones at frame counts 1000, 1250, 1500 and 1750.
func TestSendLatencyTagging(t *testing.T) {
	if testing.Short() {
		t.Skip("sends paced traffic for two seconds")
	}
	bmr, d := scenarioBMR(t)
	cp := newCommon(t, d, 1000, 2, 2, 1, 1)
	port := &mockPort{}
	sendTS := make([]uint64, 4)
	s := &Sender{
		SenderCommon:         cp,
		Port:                 port,
		Direction:            types.Forward,
		CEArray:              buildCEs(t, bmr, d, 1),
		DstMAC:               dutLMAC,
		SrcMAC:               testerLMAC,
		VarSport:             types.PortRandom,
		VarDport:             types.PortRandom,
		PreconfiguredPortMin: 1,
		PreconfiguredPortMax: 49151,
		Mode:                 ModeLatency,
		FirstTaggedDelay:     1,
		NumOfTagged:          4,
		SendTS:               sendTS,
	}
	if err := s.Send(); err != nil {
		t.Fatal(err)
	}
	if len(port.sent) != 2000 {
		t.Fatalf("frames sent: got %d, want 2000", len(port.sent))
	}

	var taggedAt []int
	for k, f := range port.sent {
		if packet.Magic(f, packet.IPv6DataOffset) == packet.MagicLatency {
			id := binary.LittleEndian.Uint16(f[packet.IPv6DataOffset+packet.LatencyIDOff:])
			if int(id) != len(taggedAt) {
				t.Errorf("tagged frame at %d: ID got %d, want %d", k, id, len(taggedAt))
			}
			taggedAt = append(taggedAt, k)
		}
	}
	want := []int{1000, 1250, 1500, 1750}
	if len(taggedAt) != len(want) {
		t.Fatalf("tagged frames at %v, want %v", taggedAt, want)
	}
	for i := range want {
		if taggedAt[i] != want[i] {
			t.Errorf("tagged frame %d sent at frame count %d, want %d", i, taggedAt[i], want[i])
		}
	}
	for i, ts := range sendTS {
		if ts == 0 {
			t.Errorf("send timestamp %d was not recorded", i)
		}
	}
}

// Every PDV frame carries its own frame count and a checksum covering
// it, and every send timestamp is recorded.
func TestSendPdvCounters(t *testing.T) {
	if testing.Short() {
		t.Skip("sends paced traffic for a second")
	}
	bmr, d := scenarioBMR(t)
	cp := newCommon(t, d, 500, 1, 2, 1, 1)
	port := &mockPort{}
	sndTS := make([]uint64, cp.FramesToSend)
	s := &Sender{
		SenderCommon:         cp,
		Port:                 port,
		Direction:            types.Forward,
		CEArray:              buildCEs(t, bmr, d, 1),
		DstMAC:               dutLMAC,
		SrcMAC:               testerLMAC,
		VarSport:             types.PortRandom,
		VarDport:             types.PortRandom,
		PreconfiguredPortMin: 1,
		PreconfiguredPortMax: 49151,
		Mode:                 ModePdv,
		SndTS:                sndTS,
	}
	if err := s.Send(); err != nil {
		t.Fatal(err)
	}
	if len(port.sent) != 500 {
		t.Fatalf("frames sent: got %d, want 500", len(port.sent))
	}
	for k, f := range port.sent {
		counter := binary.LittleEndian.Uint64(f[packet.IPv6DataOffset+packet.PdvCounterOff:])
		if counter != uint64(k) {
			t.Fatalf("frame %d: counter got %d", k, counter)
		}
		if got, want := binary.BigEndian.Uint16(f[packet.IPv6UDPCksumOffset:]), packet.IPv6UDPCksum(f); got != want {
			t.Fatalf("frame %d: UDP checksum got %#x, want %#x", k, got, want)
		}
		if sndTS[k] == 0 {
			t.Errorf("send timestamp %d was not recorded", k)
		}
	}
}

// Increment mode with a single port set: consecutive foreground frames
// differ by one. The 20 frames start at the lower bound 0 and stay far
// below the upper bound, so the wrap itself is not reached.
func TestSendIncrementSinglePortSet(t *testing.T) {
	if testing.Short() {
		t.Skip("sends paced traffic for a second")
	}
	prefix, _ := types.StringToIPv6("2001:db8:ce::")
	ipv4, _ := types.StringToIPv4("198.18.0.0")
	bmr := &mapt.BMR{
		RulePrefix:       prefix,
		RulePrefixLength: 51,
		IPv4Prefix:       ipv4,
		IPv4PrefixLength: 24,
		EALength:         8, // PSID length 0: a single port set
	}
	d, err := bmr.Derive()
	if err != nil {
		t.Fatal(err)
	}
	if d.NumPortSets != 1 || d.PortsPerSet != 65536 {
		t.Fatalf("unexpected derivation: %+v", d)
	}
	ces, err := mapt.BuildCEArray(bmr, d,
		[]mapt.EABits{{IPv4Suffix: 1, Psid: 0}}, 1)
	if err != nil {
		t.Fatal(err)
	}

	cp := newCommon(t, d, 20, 1, 2, 2, 1)
	port := &mockPort{}
	s := &Sender{
		SenderCommon:         cp,
		Port:                 port,
		Direction:            types.Forward,
		CEArray:              ces,
		DstMAC:               dutLMAC,
		SrcMAC:               testerLMAC,
		VarSport:             types.PortIncrease,
		VarDport:             types.PortRandom,
		PreconfiguredPortMin: 1,
		PreconfiguredPortMax: 49151,
		Mode:                 ModeThroughput,
	}
	if err := s.Send(); err != nil {
		t.Fatal(err)
	}
	var prev uint16
	for k, f := range port.sent {
		sport := binary.BigEndian.Uint16(f[packet.IPv6SrcPortOffset:])
		if k > 0 {
			if want := prev + 1; sport != want { // uint16 wraparound included
				t.Errorf("frame %d: sport got %d, want %d", k, sport, want)
			}
		}
		prev = sport
	}
}
