// Copyright 2023 Intel Corporation.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package device owns the two physical Ethernet ports that frame the
// DUT. It hides the AF_XDP plumbing behind a burst-oriented Port
// interface so the measurement loops stay free of any socket detail.
package device

// Sizes taken from well-tried packet generator setups.
const (
	// MaxPktBurst is the maximum burst size of an RxBurst call.
	MaxPktBurst = 32
	// PortRxQueueSize and PortTxQueueSize are the ring sizes of the
	// NIC queues.
	PortRxQueueSize = 1024
	PortTxQueueSize = 1024
	// MaxPortTrials bounds how many times the link state is polled
	// before the port is declared down.
	MaxPortTrials = 10
)

// Port is a unidirectionally used NIC port. A sender calls only
// TxBurst, a receiver only RxBurst; the two never share a Port value.
type Port interface {
	// TxBurst enqueues the given frames for transmission and returns
	// how many of them were accepted. It never blocks; the caller
	// busy-loops until the frame is taken.
	TxBurst(frames [][]byte) int
	// RxBurst fills the given slice with views of received frames and
	// returns their number. The views stay valid only until the next
	// RxBurst call on the same Port.
	RxBurst(frames [][]byte) int
	// Close releases the port resources.
	Close() error
}
