// Copyright 2023 Intel Corporation.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package tester

import (
	"encoding/binary"
	"fmt"

	"github.com/intel-go/maptperf/common"
	"github.com/intel-go/maptperf/device"
	"github.com/intel-go/maptperf/packet"
	"github.com/intel-go/maptperf/tsc"
	"github.com/intel-go/maptperf/types"
)

// Receiver polls one port until the receive deadline and classifies
// every arriving frame by EtherType and payload marker. Depending on
// the variant it only counts the test frames, or additionally records
// per-frame receive timestamps indexed by the identifier embedded in
// the payload, which restores the send-to-receive mapping independently
// of arrival order.
type Receiver struct {
	FinishReceiving uint64
	Port            device.Port
	Direction       types.Direction

	Mode Mode

	// latency variant
	NumOfTagged uint16
	ReceiveTS   []uint64 // receive timestamps indexed by tagged frame ID

	// PDV variant
	NumFrames    uint64
	RecTS        []uint64 // receive timestamps indexed by frame counter
	FrameTimeout uint16
}

// Receive counts (and for latency/PDV timestamps) test frames until
// FinishReceiving. Non-test frames are silently dropped. A tagged ID or
// sequence counter out of range is an error: it indicates corruption or
// a misbehaving DUT, not a recoverable condition.
func (r *Receiver) Receive() (uint64, error) {
	bufs := make([][]byte, device.MaxPktBurst)
	var received uint64

	for tsc.Rdtsc() < r.FinishReceiving {
		frames := r.Port.RxBurst(bufs)
		for i := 0; i < frames; i++ {
			pkt := bufs[i]
			if len(pkt) < types.EtherLen {
				continue
			}
			switch binary.BigEndian.Uint16(pkt[packet.EtherTypeOffset:]) {
			case types.IPV6Number:
				// every test frame is long enough for the marker and
				// the identification fields; shorter frames are alien
				if len(pkt) < packet.IPv6DataOffset+packet.MagicLen+8 ||
					pkt[packet.IPv6NextHdrOffset] != types.UDPNumber {
					continue
				}
				magic := packet.Magic(pkt, packet.IPv6DataOffset)
				if magic == packet.MagicTest {
					if r.Mode == ModePdv {
						timestamp := tsc.Rdtsc()
						counter := binary.LittleEndian.Uint64(pkt[packet.IPv6DataOffset+packet.PdvCounterOff:])
						if counter >= r.NumFrames {
							return received, invalidFrameID("PDV")
						}
						r.RecTS[counter] = timestamp
					}
					received++
				} else if magic == packet.MagicLatency && r.Mode == ModeLatency {
					timestamp := tsc.Rdtsc() // get a timestamp ASAP
					id := binary.LittleEndian.Uint16(pkt[packet.IPv6DataOffset+packet.LatencyIDOff:])
					if id >= r.NumOfTagged {
						return received, invalidFrameID("Latency")
					}
					r.ReceiveTS[id] = timestamp
					received++ // a Latency Frame is also counted as a Test Frame
				}
			case types.IPV4Number:
				if len(pkt) < packet.IPv4DataOffset+packet.MagicLen+8 ||
					pkt[packet.IPv4ProtoOffset] != types.UDPNumber {
					continue
				}
				magic := packet.Magic(pkt, packet.IPv4DataOffset)
				if magic == packet.MagicTest {
					if r.Mode == ModePdv {
						timestamp := tsc.Rdtsc()
						counter := binary.LittleEndian.Uint64(pkt[packet.IPv4DataOffset+packet.PdvCounterOff:])
						if counter >= r.NumFrames {
							return received, invalidFrameID("PDV")
						}
						r.RecTS[counter] = timestamp
					}
					received++
				} else if magic == packet.MagicLatency && r.Mode == ModeLatency {
					timestamp := tsc.Rdtsc()
					id := binary.LittleEndian.Uint16(pkt[packet.IPv4DataOffset+packet.LatencyIDOff:])
					if id >= r.NumOfTagged {
						return received, invalidFrameID("Latency")
					}
					r.ReceiveTS[id] = timestamp
					received++
				}
			}
		}
	}

	if r.Mode != ModePdv || r.FrameTimeout == 0 {
		// with a frame timeout the receive count is reported by the
		// evaluator instead, corrected for frames that arrived too late
		fmt.Printf("%s frames received: %d\n", r.Direction, received)
	}
	return received, nil
}

func invalidFrameID(kind string) error {
	return common.WrapWithTesterError(nil,
		kind+" Frame with invalid frame ID was received", common.InvalidFrameID)
}
