// Copyright 2023 Intel Corporation.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package tester

import (
	"github.com/intel-go/maptperf/common"
	"github.com/intel-go/maptperf/types"
)

func (t *Tester) commonParams() *SenderCommon {
	return &SenderCommon{
		IPv6FrameSize: t.Args.IPv6FrameSize,
		IPv4FrameSize: t.Args.IPv4FrameSize,
		FrameRate:     t.Args.FrameRate,
		TestDuration:  t.Args.TestDuration,
		N:             t.Args.N,
		M:             t.Args.M,
		Hz:            t.Hz,
		StartTSC:      t.StartTSC,
		FramesToSend:  t.FramesToSend,
		NumOfCEs:      t.Cfg.NumOfCEs,
		NumOfPortSets: t.Derived.NumPortSets,
		NumOfPorts:    t.Derived.PortsPerSet,
		TesterLIPv6:   t.Cfg.TesterLeftIPv6,
		TesterRIPv4:   t.Cfg.TesterRightIPv4,
		DMRIPv6:       t.DMRIPv6,
		TesterRIPv6:   t.Cfg.TesterRightIPv6,
		BgSportMin:    t.Cfg.BgSportMin,
		BgSportMax:    t.Cfg.BgSportMax,
		BgDportMin:    t.Cfg.BgDportMin,
		BgDportMax:    t.Cfg.BgDportMax,
	}
}

// Measure launches the sender and the receiver of every active
// direction on their pinned cores, waits until all of them finish and
// evaluates the collected timestamps. Timestamp slices are written by
// exactly one worker and read only after that worker is joined.
func (t *Tester) Measure() error {
	scp := t.commonParams()

	var workers []<-chan error
	var leftSendTS, rightSendTS, leftReceiveTS, rightReceiveTS []uint64

	if t.Cfg.Forward { // left to right direction is active
		switch t.Mode {
		case ModeLatency:
			leftSendTS = make([]uint64, t.Latency.NumOfTagged)
			// zero means: the frame with that timestamp was not received
			rightReceiveTS = make([]uint64, t.Latency.NumOfTagged)
		case ModePdv:
			leftSendTS = make([]uint64, t.FramesToSend)
			rightReceiveTS = make([]uint64, t.FramesToSend)
		}

		sender := &Sender{
			SenderCommon:         scp,
			Port:                 t.LeftPort,
			Direction:            types.Forward,
			CEArray:              t.FwCE,
			DstMAC:               t.Cfg.DUTLeftMAC,
			SrcMAC:               t.Cfg.TesterLeftMAC,
			VarSport:             t.Cfg.FwdVarSport,
			VarDport:             t.Cfg.FwdVarDport,
			PreconfiguredPortMin: t.Cfg.FwdDportMin,
			PreconfiguredPortMax: t.Cfg.FwdDportMax,
			Mode:                 t.Mode,
			FirstTaggedDelay:     t.Latency.FirstTaggedDelay,
			NumOfTagged:          t.Latency.NumOfTagged,
			SendTS:               leftSendTS,
			SndTS:                leftSendTS,
		}
		receiver := &Receiver{
			FinishReceiving: t.FinishReceiving,
			Port:            t.RightPort,
			Direction:       types.Forward,
			Mode:            t.Mode,
			NumOfTagged:     t.Latency.NumOfTagged,
			ReceiveTS:       rightReceiveTS,
			NumFrames:       t.FramesToSend,
			RecTS:           rightReceiveTS,
			FrameTimeout:    t.Pdv.FrameTimeout,
		}
		workers = append(workers,
			launch(t.Cfg.LeftSenderCPU, sender.Send),
			launch(t.Cfg.RightReceiverCPU, func() error {
				_, err := receiver.Receive()
				return err
			}))
	}

	if t.Cfg.Reverse { // right to left direction is active
		switch t.Mode {
		case ModeLatency:
			rightSendTS = make([]uint64, t.Latency.NumOfTagged)
			leftReceiveTS = make([]uint64, t.Latency.NumOfTagged)
		case ModePdv:
			rightSendTS = make([]uint64, t.FramesToSend)
			leftReceiveTS = make([]uint64, t.FramesToSend)
		}

		sender := &Sender{
			SenderCommon:         scp,
			Port:                 t.RightPort,
			Direction:            types.Reverse,
			CEArray:              t.RvCE,
			DstMAC:               t.Cfg.DUTRightMAC,
			SrcMAC:               t.Cfg.TesterRightMAC,
			VarSport:             t.Cfg.RevVarSport,
			VarDport:             t.Cfg.RevVarDport,
			PreconfiguredPortMin: t.Cfg.RevSportMin,
			PreconfiguredPortMax: t.Cfg.RevSportMax,
			Mode:                 t.Mode,
			FirstTaggedDelay:     t.Latency.FirstTaggedDelay,
			NumOfTagged:          t.Latency.NumOfTagged,
			SendTS:               rightSendTS,
			SndTS:                rightSendTS,
		}
		receiver := &Receiver{
			FinishReceiving: t.FinishReceiving,
			Port:            t.LeftPort,
			Direction:       types.Reverse,
			Mode:            t.Mode,
			NumOfTagged:     t.Latency.NumOfTagged,
			ReceiveTS:       leftReceiveTS,
			NumFrames:       t.FramesToSend,
			RecTS:           leftReceiveTS,
			FrameTimeout:    t.Pdv.FrameTimeout,
		}
		workers = append(workers,
			launch(t.Cfg.RightSenderCPU, sender.Send),
			launch(t.Cfg.LeftReceiverCPU, func() error {
				_, err := receiver.Receive()
				return err
			}))
	}

	common.LogInfo(common.Initialization, "Testing started.")

	var firstErr error
	for _, w := range workers {
		if err := <-w; err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if firstErr != nil {
		return firstErr
	}

	switch t.Mode {
	case ModeLatency:
		penalty := 1000*(int(t.Args.TestDuration)-int(t.Latency.FirstTaggedDelay)) +
			int(t.Args.StreamTimeout)
		if t.Cfg.Forward {
			EvaluateLatency(t.Latency.NumOfTagged, leftSendTS, rightReceiveTS,
				t.Hz, penalty, types.Forward)
		}
		if t.Cfg.Reverse {
			EvaluateLatency(t.Latency.NumOfTagged, rightSendTS, leftReceiveTS,
				t.Hz, penalty, types.Reverse)
		}
	case ModePdv:
		penalty := int64(1000)*int64(t.Args.TestDuration) + int64(t.Args.StreamTimeout)
		if t.Cfg.Forward {
			EvaluatePdv(t.FramesToSend, leftSendTS, rightReceiveTS,
				t.Hz, t.Pdv.FrameTimeout, penalty, types.Forward)
		}
		if t.Cfg.Reverse {
			EvaluatePdv(t.FramesToSend, rightSendTS, leftReceiveTS,
				t.Hz, t.Pdv.FrameTimeout, penalty, types.Reverse)
		}
	}

	common.LogInfo(common.Initialization, "Test finished.")
	return nil
}
