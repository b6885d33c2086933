// Copyright 2023 Intel Corporation.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package conf

import (
	"fmt"
	"strconv"

	"github.com/intel-go/maptperf/common"
)

// CmdArgs carries the positional command line arguments common to all
// measurement variants: ipv6_frame_size frame_rate test_duration
// stream_timeout n m.
type CmdArgs struct {
	IPv6FrameSize uint16 // includes the 4 bytes of the FCS
	IPv4FrameSize uint16 // automatically set to IPv6FrameSize - 20
	FrameRate     uint32 // frames per second
	TestDuration  uint16 // seconds
	StreamTimeout uint16 // milliseconds
	N             uint32 // foreground:background cycle modulo
	M             uint32 // foreground threshold within the cycle
}

// LatencyArgs carries the two extra arguments of the latency variant.
type LatencyArgs struct {
	FirstTaggedDelay uint16 // seconds before the first tagged frame
	NumOfTagged      uint16 // number of tagged frames
}

// PdvArgs carries the extra argument of the PDV variant.
type PdvArgs struct {
	FrameTimeout uint16 // milliseconds, 0 means PDV measurement
}

func badArg(reason string) error {
	return common.WrapWithTesterError(nil, reason, common.BadArgument)
}

// ReadCmdLine parses the six common positional arguments. It may be
// called only after the configuration file was read.
func ReadCmdLine(args []string) (*CmdArgs, error) {
	if len(args) < 6 {
		return nil, badArg("too few command line arguments")
	}
	a := &CmdArgs{}
	v, err := strconv.ParseUint(args[0], 10, 16)
	if err != nil || v < 84 || v > 1538 {
		return nil, badArg("IPv6 frame size must be between 84 and 1538")
	}
	a.IPv6FrameSize = uint16(v)
	a.IPv4FrameSize = a.IPv6FrameSize - 20
	v, err = strconv.ParseUint(args[1], 10, 32)
	if err != nil || v < 1 || v > 14880952 {
		// 14,880,952 is the maximum frame rate for 10Gbps Ethernet
		// using 64-byte frame size
		return nil, badArg("frame rate must be between 1 and 14880952")
	}
	a.FrameRate = uint32(v)
	v, err = strconv.ParseUint(args[2], 10, 16)
	if err != nil || v < 1 || v > 3600 {
		return nil, badArg("test duration must be between 1 and 3600")
	}
	a.TestDuration = uint16(v)
	v, err = strconv.ParseUint(args[3], 10, 16)
	if err != nil || v > 60000 {
		return nil, badArg("stream timeout must be between 0 and 60000")
	}
	a.StreamTimeout = uint16(v)
	v, err = strconv.ParseUint(args[4], 10, 32)
	if err != nil || v < 2 {
		return nil, badArg("the value of 'n' must be at least 2")
	}
	a.N = uint32(v)
	v, err = strconv.ParseUint(args[5], 10, 32)
	if err != nil {
		return nil, badArg("cannot read the value of 'm'")
	}
	a.M = uint32(v)
	if a.M > a.N {
		return nil, badArg("the value of 'm' must not be greater than 'n'")
	}
	return a, nil
}

// ReadLatencyCmdLine parses first_tagged_delay and num_of_tagged after
// the common arguments.
func ReadLatencyCmdLine(args []string, base *CmdArgs) (*LatencyArgs, error) {
	if len(args) < 8 {
		return nil, badArg("too few command line arguments")
	}
	a := &LatencyArgs{}
	v, err := strconv.ParseUint(args[6], 10, 16)
	if err != nil || v >= uint64(base.TestDuration) {
		return nil, badArg("delay before the first tagged frame must be shorter than the test duration")
	}
	a.FirstTaggedDelay = uint16(v)
	v, err = strconv.ParseUint(args[7], 10, 16)
	if err != nil || v < 1 || v > 50000 {
		// RFC 8219 requires at least 500, RFC 2544 requires 1
		return nil, badArg("number of tagged frames must be between 1 and 50000")
	}
	a.NumOfTagged = uint16(v)
	available := uint64(base.TestDuration-a.FirstTaggedDelay) * uint64(base.FrameRate)
	if available < uint64(a.NumOfTagged) {
		return nil, badArg(fmt.Sprintf(
			"at most %d tagged frames fit into the %d seconds of tagging", available,
			base.TestDuration-a.FirstTaggedDelay))
	}
	return a, nil
}

// ReadPdvCmdLine parses frame_timeout after the common arguments.
func ReadPdvCmdLine(args []string, base *CmdArgs) (*PdvArgs, error) {
	if len(args) < 7 {
		return nil, badArg("too few command line arguments")
	}
	a := &PdvArgs{}
	v, err := strconv.ParseUint(args[6], 10, 16)
	limit := 1000*uint64(base.TestDuration) + uint64(base.StreamTimeout)
	if err != nil || v >= limit {
		return nil, badArg("frame timeout must be less than 1000*test_duration+stream_timeout, (0 means PDV measurement)")
	}
	a.FrameTimeout = uint16(v)
	return a, nil
}
