// Copyright 2023 Intel Corporation.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

//go:build !amd64

package tsc

import "time"

var epoch = time.Now()

func rdtsc() uint64 {
	// nominal 1 GHz tick from the monotonic clock
	return uint64(time.Since(epoch).Nanoseconds())
}
