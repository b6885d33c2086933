// Copyright 2023 Intel Corporation.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

//go:build amd64

package tsc

// rdtsc is implemented in tsc_amd64.s
func rdtsc() uint64
