// Copyright 2023 Intel Corporation.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package tester

import (
	"github.com/intel-go/maptperf/common"
	"github.com/intel-go/maptperf/tsc"
)

// CheckTSC verifies that the cycle counter of the given core is
// synchronized with that of the coordinator core. A counter reported
// from the remote core must fall between two local samples taken around
// the remote read; TSCs of different physical CPUs may differ, which
// would prevent the tester from working correctly.
func CheckTSC(cpu int, cpuName string) error {
	var reported uint64
	before := tsc.Rdtsc()
	err := <-launch(cpu, func() error {
		reported = tsc.Rdtsc()
		return nil
	})
	after := tsc.Rdtsc()
	if err != nil {
		return err
	}
	if reported < before || reported > after {
		return common.WrapWithTesterError(nil,
			"TSC of core for "+cpuName+" is not synchronized with that of the main core",
			common.TSCSyncErr)
	}
	return nil
}
