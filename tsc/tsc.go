// Copyright 2023 Intel Corporation.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package tsc reads the CPU cycle counter and calibrates its frequency.
// The measurement loops schedule and timestamp exclusively in TSC units;
// conversion to seconds happens only after a loop finishes (the sender's
// elapsed-time check) and in the evaluators.
package tsc

import (
	"sync"
	"time"
)

var (
	hzOnce sync.Once
	hz     uint64
)

// Rdtsc returns the current value of the cycle counter of the executing
// core. On amd64 this is the RDTSC instruction; other architectures fall
// back to the monotonic clock scaled to a nominal 1 GHz.
func Rdtsc() uint64 {
	return rdtsc()
}

// Hz returns the number of cycle counter increments per second. The
// first call calibrates against the monotonic clock; subsequent calls
// return the cached value.
func Hz() uint64 {
	hzOnce.Do(calibrate)
	return hz
}

func calibrate() {
	const window = 100 * time.Millisecond
	t0 := time.Now()
	c0 := rdtsc()
	time.Sleep(window)
	c1 := rdtsc()
	elapsed := time.Since(t0)
	hz = uint64(float64(c1-c0) / elapsed.Seconds())
	if hz == 0 {
		hz = 1
	}
}

// Ms converts a duration in milliseconds to cycle counter units.
func Ms(ms uint64) uint64 {
	return Hz() * ms / 1000
}
