// Copyright 2023 Intel Corporation.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package tester implements the measurement engine: the rate-paced
// sender loops, the timestamp-capturing receiver loops and the
// statistical evaluators of the RFC 8219 benchmarking procedures for a
// MAP-T Border Relay.
//
// The engine runs up to five logical roles concurrently: the
// coordinator plus a sender and a receiver per active direction, each
// pinned to its own core. Everything a worker reads is either immutable
// after launch or owned exclusively by that worker until it is joined,
// so the measurement hot paths need no synchronization at all.
package tester

import (
	"fmt"
	"time"

	"github.com/intel-go/maptperf/common"
	"github.com/intel-go/maptperf/conf"
	"github.com/intel-go/maptperf/device"
	"github.com/intel-go/maptperf/mapt"
	"github.com/intel-go/maptperf/tsc"
	"github.com/intel-go/maptperf/types"
)

const (
	// N is the number of copies each template frame exists in, to
	// mitigate the problem of write after send.
	N = 40
	// StartDelay (ms) before senders start sending, used for
	// synchronized start. Beware that DUT NICs need time to get ready!
	StartDelay = 5000
	// Tolerance of the sending time: 1.00001 allows 0.001% more time
	Tolerance = 1.00001
)

// Mode selects the measurement variant.
type Mode uint8

const (
	ModeThroughput Mode = iota
	ModeLatency
	ModePdv
)

// Tester aggregates the configuration and everything Init derives from
// it. It corresponds to one invocation of a measurement binary.
type Tester struct {
	Cfg     *conf.Config
	Args    *conf.CmdArgs
	Mode    Mode
	Latency conf.LatencyArgs // valid when Mode == ModeLatency
	Pdv     conf.PdvArgs     // valid when Mode == ModePdv

	// set by InitPorts
	LeftPort  device.Port
	RightPort device.Port

	// set by Init
	Derived         mapt.Derived
	Hz              uint64
	StartTSC        uint64
	FinishReceiving uint64
	FramesToSend    uint64
	DMRIPv6         types.IPv6Address
	FwUniqueEA      []mapt.EABits
	RvUniqueEA      []mapt.EABits
	FwCE            []mapt.CE
	RvCE            []mapt.CE
}

// SenderPoolSize returns the number of NIC buffers a sender needs:
// foreground and background Test Frames exist in N copies each, plus
// the TX queue depth and some slack. The latency variant adds one
// buffer per tagged frame.
func (t *Tester) SenderPoolSize() int {
	size := 2*N + device.PortTxQueueSize + 100
	if t.Mode == ModeLatency {
		size += int(t.Latency.NumOfTagged)
	}
	return size
}

// InitPorts opens the two AF_XDP ports, applies promiscuous mode, waits
// for the links and checks NUMA locality of the pinned cores.
func (t *Tester) InitPorts(leftIf, rightIf string) error {
	left, err := device.OpenXDPPort(leftIf, t.SenderPoolSize())
	if err != nil {
		return err
	}
	t.LeftPort = left
	right, err := device.OpenXDPPort(rightIf, t.SenderPoolSize())
	if err != nil {
		return err
	}
	t.RightPort = right

	if t.Cfg.Promisc {
		if err := device.SetPromiscuous(leftIf); err != nil {
			return err
		}
		if err := device.SetPromiscuous(rightIf); err != nil {
			return err
		}
	}
	if err := device.WaitLinkUp(leftIf, "Left"); err != nil {
		return err
	}
	if err := device.WaitLinkUp(rightIf, "Right"); err != nil {
		return err
	}

	if nodes := common.NumConfiguredNumaNodes(); nodes == 0 {
		common.LogInfo(common.Initialization, "This computer does not support NUMA.")
	} else if nodes == 1 {
		common.LogInfo(common.Initialization, "Only a single NUMA node is configured, there is no possibility for mismatch.")
	} else {
		if t.Cfg.Forward {
			device.NumaCheck(leftIf, "Left", t.Cfg.LeftSenderCPU, "Left Sender")
			device.NumaCheck(rightIf, "Right", t.Cfg.RightReceiverCPU, "Right Receiver")
		}
		if t.Cfg.Reverse {
			device.NumaCheck(rightIf, "Right", t.Cfg.RightSenderCPU, "Right Sender")
			device.NumaCheck(leftIf, "Left", t.Cfg.LeftReceiverCPU, "Left Receiver")
		}
	}
	return nil
}

// Init validates the MAP parameters, checks TSC synchronization of the
// pinned cores, prepares the timing values and drives the builders that
// pre-generate the EA-bit permutations and the CE arrays on the cores
// that will read them.
func (t *Tester) Init() error {
	d, err := t.Cfg.BMR.Derive()
	if err != nil {
		return err
	}
	t.Derived = d
	if max := d.EACardinality(); uint64(t.Cfg.NumOfCEs) > max {
		return common.WrapWithTesterError(nil, fmt.Sprintf(
			"the number of CEs (%d) to be simulated exceeds the maximum number that EA-bits allow (%d)",
			t.Cfg.NumOfCEs, max), common.TooManyCEs)
	}

	if t.Cfg.Forward {
		if err := CheckTSC(t.Cfg.LeftSenderCPU, "Left Sender"); err != nil {
			return err
		}
		if err := CheckTSC(t.Cfg.RightReceiverCPU, "Right Receiver"); err != nil {
			return err
		}
	}
	if t.Cfg.Reverse {
		if err := CheckTSC(t.Cfg.RightSenderCPU, "Right Sender"); err != nil {
			return err
		}
		if err := CheckTSC(t.Cfg.LeftReceiverCPU, "Left Receiver"); err != nil {
			return err
		}
	}

	t.Hz = tsc.Hz()
	t.StartTSC = tsc.Rdtsc() + t.Hz*StartDelay/1000
	t.FinishReceiving = t.StartTSC +
		uint64(float64(t.Hz)*(float64(t.Args.TestDuration)+float64(t.Args.StreamTimeout)/1000.0))
	t.FramesToSend = uint64(t.Args.TestDuration) * uint64(t.Args.FrameRate)

	if t.Cfg.Forward {
		if err := t.buildArrays(types.Forward, t.Cfg.LeftSenderCPU, &t.FwUniqueEA, &t.FwCE); err != nil {
			return err
		}
	}
	if t.Cfg.Reverse {
		if err := t.buildArrays(types.Reverse, t.Cfg.RightSenderCPU, &t.RvUniqueEA, &t.RvCE); err != nil {
			return err
		}
	}

	// The DMR IPv6 address is the destination of the foreground traffic
	// in the forward direction; the IPv4 source of the reverse
	// direction is the address embedded in it.
	t.DMRIPv6 = mapt.DMRAddress(t.Cfg.DMRPrefix, t.Cfg.DMRPrefixLength, t.Cfg.TesterRightIPv4)
	return nil
}

// buildArrays generates the EA-bit permutation and the CE array for one
// direction on the core of the sender that will read them, so the
// first-touch allocation lands on the right NUMA node.
func (t *Tester) buildArrays(dir types.Direction, cpu int, ea *[]mapt.EABits, ces *[]mapt.CE) error {
	errCh := launch(cpu, func() error {
		common.LogInfo(common.Initialization,
			"Pre-generating NUMA local unique EA-bits combinations for the", dir.String(), "sender")
		start := time.Now()
		*ea = mapt.RandomPermutation(t.Derived.SuffixLength, t.Derived.PsidLength, mapt.NewRand())
		common.LogInfo(common.Initialization, "Done. lasted",
			time.Since(start).Seconds(), "seconds for the", dir.String(), "sender")

		start = time.Now()
		built, err := mapt.BuildCEArray(&t.Cfg.BMR, t.Derived, *ea, t.Cfg.NumOfCEs)
		if err != nil {
			return err
		}
		*ces = built
		common.LogInfo(common.Initialization, "building CE Array: Done. lasted",
			time.Since(start).Seconds(), "seconds for the", dir.String(), "sender")
		return nil
	})
	return <-errCh
}

// launch runs fn on its own OS thread pinned to the given core and
// reports its result on the returned channel.
func launch(cpu int, fn func() error) <-chan error {
	ch := make(chan error, 1)
	go func() {
		if err := common.PinToCore(cpu); err != nil {
			ch <- err
			return
		}
		ch <- fn()
	}()
	return ch
}
