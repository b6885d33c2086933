// Copyright 2023 Intel Corporation.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package tester

import (
	"encoding/binary"
	"fmt"
	"math/rand"

	"github.com/intel-go/maptperf/common"
	"github.com/intel-go/maptperf/device"
	"github.com/intel-go/maptperf/mapt"
	"github.com/intel-go/maptperf/packet"
	"github.com/intel-go/maptperf/tsc"
	"github.com/intel-go/maptperf/types"
)

// SenderCommon keeps the parameters identical for both senders.
type SenderCommon struct {
	IPv6FrameSize uint16
	IPv4FrameSize uint16
	FrameRate     uint32
	TestDuration  uint16
	N, M          uint32
	Hz            uint64
	StartTSC      uint64
	FramesToSend  uint64
	NumOfCEs      uint32
	NumOfPortSets uint32
	NumOfPorts    uint32
	TesterLIPv6   types.IPv6Address
	TesterRIPv4   types.IPv4Address
	DMRIPv6       types.IPv6Address
	TesterRIPv6   types.IPv6Address
	BgSportMin    uint16
	BgSportMax    uint16
	BgDportMin    uint16
	BgDportMax    uint16
}

// Sender owns one direction of the test traffic from the first to the
// last transmitted frame. All referenced data is immutable during the
// measurement; the timestamp slices are written by this sender only.
type Sender struct {
	*SenderCommon
	Port      device.Port
	Direction types.Direction
	CEArray   []mapt.CE
	DstMAC    types.MACAddress
	SrcMAC    types.MACAddress
	VarSport  types.PortVariation
	VarDport  types.PortVariation
	// the preconfigured wide range: destination ports in the forward
	// direction, source ports in the reverse direction
	PreconfiguredPortMin uint16
	PreconfiguredPortMax uint16

	Mode Mode

	// latency variant
	FirstTaggedDelay uint16
	NumOfTagged      uint16
	SendTS           []uint64 // send timestamps indexed by tagged frame ID

	// PDV variant
	SndTS []uint64 // send timestamps indexed by frame counter
}

// buildTemplates creates the N foreground and N background template
// frames together with their field views. Foreground frames of the
// reverse direction are IPv4, everything else is IPv6. Background
// frames travel between the tester's own addresses.
func (s *Sender) buildTemplates() (fg, bg []packet.View) {
	var zeroIPv6 types.IPv6Address
	var srcBg, dstBg types.IPv6Address
	if s.Direction == types.Forward {
		srcBg, dstBg = s.TesterLIPv6, s.TesterRIPv6
	} else {
		srcBg, dstBg = s.TesterRIPv6, s.TesterLIPv6
	}

	fg = make([]packet.View, N)
	bg = make([]packet.View, N)
	for i := 0; i < N; i++ {
		if s.Direction == types.Reverse {
			// destination IPv4 stays the sentinel 0.0.0.0 so the
			// template checksums are valid starting values
			var f []byte
			if s.Mode == ModePdv {
				f = packet.PdvFrame4(s.IPv4FrameSize, s.DstMAC, s.SrcMAC,
					s.TesterRIPv4, 0, s.VarSport, s.VarDport)
			} else {
				f = packet.TestFrame4(s.IPv4FrameSize, s.DstMAC, s.SrcMAC,
					s.TesterRIPv4, 0, s.VarSport, s.VarDport)
			}
			fg[i] = packet.ViewIPv4(f)
		} else {
			// source IPv6 stays the sentinel ::
			var f []byte
			if s.Mode == ModePdv {
				f = packet.PdvFrame6(s.IPv6FrameSize, s.DstMAC, s.SrcMAC,
					zeroIPv6, s.DMRIPv6, s.VarSport, s.VarDport)
			} else {
				f = packet.TestFrame6(s.IPv6FrameSize, s.DstMAC, s.SrcMAC,
					zeroIPv6, s.DMRIPv6, s.VarSport, s.VarDport)
			}
			fg[i] = packet.ViewIPv6(f)
		}
		var f []byte
		if s.Mode == ModePdv {
			f = packet.PdvFrame6(s.IPv6FrameSize, s.DstMAC, s.SrcMAC,
				srcBg, dstBg, s.VarSport, s.VarDport)
		} else {
			f = packet.TestFrame6(s.IPv6FrameSize, s.DstMAC, s.SrcMAC,
				srcBg, dstBg, s.VarSport, s.VarDport)
		}
		bg[i] = packet.ViewIPv6(f)
	}
	return fg, bg
}

// buildLatencyTemplates creates one tagged template per latency frame.
// Slot i is a foreground frame exactly when the frame count at which it
// will be sent selects foreground in the main loop, so every tagged
// frame goes out during its correctly-typed cycle.
func (s *Sender) buildLatencyTemplates(startLatencyFrame, latencyTestTime uint64) []packet.View {
	var zeroIPv6 types.IPv6Address
	var srcBg, dstBg types.IPv6Address
	if s.Direction == types.Forward {
		srcBg, dstBg = s.TesterLIPv6, s.TesterRIPv6
	} else {
		srcBg, dstBg = s.TesterRIPv6, s.TesterLIPv6
	}

	lat := make([]packet.View, s.NumOfTagged)
	for i := range lat {
		sentAt := startLatencyFrame + uint64(i)*uint64(s.FrameRate)*latencyTestTime/uint64(s.NumOfTagged)
		if sentAt%uint64(s.N) < uint64(s.M) {
			// foreground latency frame, may be IPv4 or IPv6
			if s.Direction == types.Reverse {
				f := packet.LatencyFrame4(s.IPv4FrameSize, s.DstMAC, s.SrcMAC,
					s.TesterRIPv4, 0, s.VarSport, s.VarDport, uint16(i))
				lat[i] = packet.ViewIPv4(f)
			} else {
				f := packet.LatencyFrame6(s.IPv6FrameSize, s.DstMAC, s.SrcMAC,
					zeroIPv6, s.DMRIPv6, s.VarSport, s.VarDport, uint16(i))
				lat[i] = packet.ViewIPv6(f)
			}
		} else {
			// background latency frame, must be IPv6
			f := packet.LatencyFrame6(s.IPv6FrameSize, s.DstMAC, s.SrcMAC,
				srcBg, dstBg, s.VarSport, s.VarDport, uint16(i))
			lat[i] = packet.ViewIPv6(f)
		}
	}
	return lat
}

func randomPort(gen *rand.Rand, min, max uint16) uint16 {
	return min + uint16(gen.Int63n(int64(max)-int64(min)+1))
}

// Send is the naive paced sender: simple and fast. It transmits
// FramesToSend frames, frame k at StartTSC + k*Hz/FrameRate, always
// reusing one of the N pre-built copies of the current template with
// only the variable fields and the checksums updated.
func (s *Sender) Send() error {
	if s.CEArray == nil {
		return common.WrapWithTesterError(nil,
			"no CE array can be accessed by the "+s.Direction.String()+" sender", common.NoCEArray)
	}

	fg, bg := s.buildTemplates()

	// latency bookkeeping; the sentinel keeps the comparison in the
	// main loop false forever for the other variants
	sendNextLatencyFrame := ^uint64(0)
	var startLatencyFrame, latencyTestFrames uint64
	var lat []packet.View
	if s.Mode == ModeLatency {
		latencyTestTime := uint64(s.TestDuration - s.FirstTaggedDelay)
		latencyTestFrames = latencyTestTime * uint64(s.FrameRate)
		startLatencyFrame = uint64(s.FirstTaggedDelay) * uint64(s.FrameRate)
		lat = s.buildLatencyTemplates(startLatencyFrame, latencyTestTime)
		sendNextLatencyFrame = startLatencyFrame
	}

	// port boundaries of every port set, and the saved walking position
	// within each set for the increasing/decreasing modes
	sportMinForPS := make([]uint16, s.NumOfPortSets)
	sportMaxForPS := make([]uint16, s.NumOfPortSets)
	dportMinForPS := make([]uint16, s.NumOfPortSets)
	dportMaxForPS := make([]uint16, s.NumOfPortSets)
	currSportForPS := make([]uint16, s.NumOfPortSets)
	currDportForPS := make([]uint16, s.NumOfPortSets)
	for i := uint32(0); i < s.NumOfPortSets; i++ {
		sportMinForPS[i] = uint16(i * s.NumOfPorts)
		sportMaxForPS[i] = uint16((i+1)*s.NumOfPorts - 1)
		dportMinForPS[i] = sportMinForPS[i]
		dportMaxForPS[i] = sportMaxForPS[i]
		switch s.VarSport {
		case types.PortIncrease:
			currSportForPS[i] = sportMinForPS[i]
		case types.PortDecrease:
			currSportForPS[i] = sportMaxForPS[i]
		}
		switch s.VarDport {
		case types.PortIncrease:
			currDportForPS[i] = dportMinForPS[i]
		case types.PortDecrease:
			currDportForPS[i] = dportMaxForPS[i]
		}
	}

	// the wide preconfigured range: source ports in the reverse
	// direction, destination ports in the forward one; the port-set
	// constrained axis gets its range inside the loop from the PSID of
	// the current CE
	var sportMin, sportMax, dportMin, dportMax uint16
	if s.Direction == types.Reverse {
		sportMin, sportMax = s.PreconfiguredPortMin, s.PreconfiguredPortMax
	} else {
		dportMin, dportMax = s.PreconfiguredPortMin, s.PreconfiguredPortMax
	}

	var sport, dport, bgSport, bgDport uint16
	switch s.VarSport {
	case types.PortIncrease:
		sport, bgSport = sportMin, s.BgSportMin
	case types.PortDecrease:
		sport, bgSport = sportMax, s.BgSportMax
	}
	switch s.VarDport {
	case types.PortIncrease:
		dport, bgDport = dportMin, s.BgDportMin
	case types.PortDecrease:
		dport, bgDport = dportMax, s.BgDportMax
	}

	genSport := mapt.NewRand()
	genDport := mapt.NewRand()

	txBuf := make([][]byte, 1)
	i := 0                   // template slot, {0..N-1}
	currentCE := 0           // index of the currently simulated CE
	latencyTimestampNo := 0  // counter of the sent tagged frames
	var chksum, ipChksum uint32
	var sentFrames uint64

	for sentFrames = 0; sentFrames < s.FramesToSend; sentFrames++ {
		tagged := sentFrames == sendNextLatencyFrame
		fgFrame := sentFrames%uint64(s.N) < uint64(s.M)

		var v *packet.View
		if tagged {
			v = &lat[latencyTimestampNo]
		} else if fgFrame {
			v = &fg[i]
		} else {
			v = &bg[i]
		}

		if fgFrame {
			ce := &s.CEArray[currentCE]
			psid := ce.Psid
			chksum = uint32(v.UDPCksumStart)

			if s.Direction == types.Forward {
				// the source address becomes the CE's MAP address
				copy(v.Frame[v.SrcIPv6Offset:], ce.MapAddr[:])
				chksum += uint32(ce.MapAddrChksum)

				sportMin = sportMinForPS[psid]
				sportMax = sportMaxForPS[psid]
				if s.VarSport == types.PortIncrease || s.VarSport == types.PortDecrease {
					sport = currSportForPS[psid]
				}
			} else {
				// the destination address becomes the CE's IPv4 address
				ipChksum = uint32(v.IPv4CksumStart)
				addr := types.IPv4ToBytes(ce.IPv4Addr)
				copy(v.Frame[v.DstIPv4Offset:], addr[:])
				chksum += uint32(ce.IPv4AddrChksum)
				ipChksum += uint32(ce.IPv4AddrChksum)
				ipc := ^packet.ReduceCksum(ipChksum)
				if ipc == 0 { // 0 means no checksum is used
					ipc = 0xffff
				}
				binary.BigEndian.PutUint16(v.Frame[v.IPv4CksumOffset:], ipc)

				dportMin = dportMinForPS[psid]
				dportMax = dportMaxForPS[psid]
				if s.VarDport == types.PortIncrease || s.VarDport == types.PortDecrease {
					dport = currDportForPS[psid]
				}
			}

			var sp, dp uint16
			switch s.VarSport {
			case types.PortIncrease:
				sp = sport
				if sport == sportMax {
					sport = sportMin
				} else {
					sport++
				}
			case types.PortDecrease:
				sp = sport
				if sport == sportMin {
					sport = sportMax
				} else {
					sport--
				}
			case types.PortRandom:
				sp = randomPort(genSport, sportMin, sportMax)
			}
			binary.BigEndian.PutUint16(v.Frame[v.SrcPortOffset:], sp)
			chksum += uint32(sp)

			switch s.VarDport {
			case types.PortIncrease:
				dp = dport
				if dport == dportMax {
					dport = dportMin
				} else {
					dport++
				}
			case types.PortDecrease:
				dp = dport
				if dport == dportMin {
					dport = dportMax
				} else {
					dport--
				}
			case types.PortRandom:
				dp = randomPort(genDport, dportMin, dportMax)
			}
			binary.BigEndian.PutUint16(v.Frame[v.DstPortOffset:], dp)
			chksum += uint32(dp)

			// save the walking position of the port-set constrained
			// axis so a later frame with the same PSID resumes there
			if s.Direction == types.Forward {
				currSportForPS[psid] = sport
			} else {
				currDportForPS[psid] = dport
			}
		} else {
			// background frame between the tester's own addresses
			chksum = uint32(v.UDPCksumStart)

			var sp, dp uint16
			switch s.VarSport {
			case types.PortIncrease:
				sp = bgSport
				if bgSport == s.BgSportMax {
					bgSport = s.BgSportMin
				} else {
					bgSport++
				}
			case types.PortDecrease:
				sp = bgSport
				if bgSport == s.BgSportMin {
					bgSport = s.BgSportMax
				} else {
					bgSport--
				}
			case types.PortRandom:
				sp = randomPort(genSport, s.BgSportMin, s.BgSportMax)
			}
			binary.BigEndian.PutUint16(v.Frame[v.SrcPortOffset:], sp)
			chksum += uint32(sp)

			switch s.VarDport {
			case types.PortIncrease:
				dp = bgDport
				if bgDport == s.BgDportMax {
					bgDport = s.BgDportMin
				} else {
					bgDport++
				}
			case types.PortDecrease:
				dp = bgDport
				if bgDport == s.BgDportMin {
					bgDport = s.BgDportMax
				} else {
					bgDport--
				}
			case types.PortRandom:
				dp = randomPort(genDport, s.BgDportMin, s.BgDportMax)
			}
			binary.BigEndian.PutUint16(v.Frame[v.DstPortOffset:], dp)
			chksum += uint32(dp)
		}

		if s.Mode == ModePdv {
			// the sequence counter is part of the UDP data
			binary.LittleEndian.PutUint64(v.Frame[v.DataOffset+packet.PdvCounterOff:], sentFrames)
			chksum += packet.RawCksumUint64(sentFrames)
		}

		cksum := ^packet.ReduceCksum(chksum)
		if s.Direction == types.Reverse && cksum == 0 {
			// checksum should not be 0 (0 means, no checksum is used)
			cksum = 0xffff
		}
		binary.BigEndian.PutUint16(v.Frame[v.UDPCksumOffset:], cksum)

		// finally, send the frame
		target := s.StartTSC + sentFrames*s.Hz/uint64(s.FrameRate)
		for tsc.Rdtsc() < target {
			// busy wait for the scheduled send time
		}
		txBuf[0] = v.Frame
		for s.Port.TxBurst(txBuf) == 0 {
			// busy loop until the NIC accepts the frame
		}

		if s.Mode == ModePdv {
			s.SndTS[sentFrames] = tsc.Rdtsc()
		}
		if tagged {
			s.SendTS[latencyTimestampNo] = tsc.Rdtsc()
			latencyTimestampNo++
			sendNextLatencyFrame = startLatencyFrame +
				uint64(latencyTimestampNo)*latencyTestFrames/uint64(s.NumOfTagged)
		} else {
			i = (i + 1) % N
		}
		currentCE = (currentCE + 1) % int(s.NumOfCEs)
	}

	elapsed := float64(tsc.Rdtsc()-s.StartTSC) / float64(s.Hz)
	fmt.Printf("Info: %s sender's sending took %3.10f seconds.\n", s.Direction, elapsed)
	if elapsed > float64(s.TestDuration)*Tolerance {
		return common.WrapWithTesterError(nil, fmt.Sprintf(
			"%s sending exceeded the %3.10f seconds limit, the test is invalid",
			s.Direction, float64(s.TestDuration)*Tolerance), common.SendTimeExceeded)
	}
	fmt.Printf("%s frames sent: %d\n", s.Direction, sentFrames)
	return nil
}
