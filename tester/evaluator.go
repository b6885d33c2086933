// Copyright 2023 Intel Corporation.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package tester

import (
	"fmt"
	"math"
	"sort"

	"github.com/intel-go/maptperf/common"
	"github.com/intel-go/maptperf/types"
)

// EvaluateLatency post-processes the timestamp arrays of one direction
// and emits the Typical Latency (median) and the Worst-Case Latency
// (99.9th percentile) in milliseconds. A lost tagged frame gets the
// penalty latency, which exceeds every latency a surviving frame can
// have.
func EvaluateLatency(numOfTagged uint16, sendTS, receiveTS []uint64, hz uint64,
	penalty int, direction types.Direction) (typical, worstCase float64) {

	latency := make([]float64, numOfTagged)
	for i := 0; i < int(numOfTagged); i++ {
		if receiveTS[i] != 0 {
			latency[i] = 1000.0 * float64(receiveTS[i]-sendTS[i]) / float64(hz)
		} else {
			latency[i] = float64(penalty) // penalty of the lost timestamp
		}
	}
	if numOfTagged < 2 {
		typical, worstCase = latency[0], latency[0]
	} else {
		sort.Float64s(latency)
		if numOfTagged%2 == 1 {
			typical = latency[numOfTagged/2]
		} else {
			typical = (latency[numOfTagged/2-1] + latency[numOfTagged/2]) / 2
		}
		worstCase = latency[int(math.Ceil(0.999*float64(numOfTagged)))-1]
	}
	fmt.Printf("%s TL: %f\n", direction, typical)
	fmt.Printf("%s WCL: %f\n", direction, worstCase)
	return typical, worstCase
}

// PdvResult carries the evaluated PDV figures of one direction. When a
// frame timeout is active only the counters are meaningful; otherwise
// the delay percentiles are.
type PdvResult struct {
	FramesReceived uint64 // frames that arrived within the timeout
	FramesLost     uint64 // frames that never arrived
	NumCorrected   uint64 // negative delays clamped to zero
	Dmin           float64
	Dmax           float64
	D999           float64
	PDV            float64
}

// EvaluatePdv post-processes the per-frame timestamp arrays of one
// direction. With frameTimeout > 0 it reports how many frames arrived
// within the timeout; otherwise it emits Dmin, Dmax, the 99.9th
// percentile delay and PDV = D99.9 - Dmin in milliseconds. Negative
// delays (clock skew between the two cores) are clamped to zero and
// counted.
func EvaluatePdv(numOfFrames uint64, sendTS, receiveTS []uint64, hz uint64,
	frameTimeout uint16, penalty int64, direction types.Direction) PdvResult {

	var res PdvResult
	frameTo := int64(frameTimeout) * int64(hz) / 1000
	penaltyTsc := penalty * int64(hz) / 1000
	latency := make([]int64, numOfFrames)
	for i := uint64(0); i < numOfFrames; i++ {
		if receiveTS[i] != 0 {
			delay := int64(receiveTS[i]) - int64(sendTS[i])
			if delay < 0 {
				delay = 0 // correct negative delay to 0
				res.NumCorrected++
			}
			latency[i] = delay
		} else {
			res.FramesLost++ // frame physically lost
			latency[i] = penaltyTsc
		}
	}
	if res.NumCorrected > 0 {
		common.LogDebug(common.Debug, direction.String(),
			"number of negative delay values corrected to 0:", res.NumCorrected)
	}
	if frameTimeout > 0 {
		// count the frames arrived in time
		for i := uint64(0); i < numOfFrames; i++ {
			if latency[i] <= frameTo {
				res.FramesReceived++
			}
		}
		fmt.Printf("%s frames received: %d\n", direction, res.FramesReceived)
		common.LogInfo(common.Initialization, direction.String(),
			"frames completely missing:", res.FramesLost)
		return res
	}

	dmin, dmax := latency[0], latency[0]
	for i := uint64(1); i < numOfFrames; i++ {
		if latency[i] < dmin {
			dmin = latency[i]
		}
		if latency[i] > dmax {
			dmax = latency[i]
		}
	}
	sort.Slice(latency, func(a, b int) bool { return latency[a] < latency[b] })
	d999 := latency[int(math.Ceil(0.999*float64(numOfFrames)))-1]

	res.Dmin = 1000.0 * float64(dmin) / float64(hz)
	res.Dmax = 1000.0 * float64(dmax) / float64(hz)
	res.D999 = 1000.0 * float64(d999) / float64(hz)
	res.PDV = res.D999 - res.Dmin
	common.LogInfo(common.Initialization, direction.String(), "D99_9th_perc:", res.D999)
	common.LogInfo(common.Initialization, direction.String(), "Dmin:", res.Dmin)
	common.LogInfo(common.Initialization, direction.String(), "Dmax:", res.Dmax)
	fmt.Printf("%s PDV: %f\n", direction, res.PDV)
	return res
}
