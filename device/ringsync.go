// Copyright 2023 Intel Corporation.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

//go:build linux

package device

import "sync/atomic"

// producer/consumer indices are shared with the kernel; plain loads and
// stores would allow reordering against the descriptor writes

func loadAcquire(p *uint32) uint32 {
	return atomic.LoadUint32(p)
}

func storeRelease(p *uint32, v uint32) {
	atomic.StoreUint32(p, v)
}
