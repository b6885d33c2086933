// Copyright 2023 Intel Corporation.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package common

import (
	"os"
	"runtime"
	"strconv"
	"strings"

	"golang.org/x/sys/unix"
)

// PinToCore locks the calling goroutine to its OS thread and restricts
// the thread to the single given CPU core. Worker loops call it first
// thing and stay pinned for their whole lifetime.
func PinToCore(cpu int) error {
	runtime.LockOSThread()
	var set unix.CPUSet
	set.Zero()
	set.Set(cpu)
	if err := unix.SchedSetaffinity(0, &set); err != nil {
		return WrapWithTesterError(err, "cannot set affinity to core "+strconv.Itoa(cpu), SetAffinityErr)
	}
	return nil
}

// NumaNodeOfCPU returns the NUMA node the given core belongs to, or -1
// when the sysfs topology is unavailable (no NUMA support).
func NumaNodeOfCPU(cpu int) int {
	base := "/sys/devices/system/cpu/cpu" + strconv.Itoa(cpu)
	entries, err := os.ReadDir(base)
	if err != nil {
		return -1
	}
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), "node") {
			node, err := strconv.Atoi(e.Name()[4:])
			if err == nil {
				return node
			}
		}
	}
	return -1
}

// NumConfiguredNumaNodes counts the memory nodes known to the kernel.
func NumConfiguredNumaNodes() int {
	entries, err := os.ReadDir("/sys/devices/system/node")
	if err != nil {
		return 0
	}
	n := 0
	for _, e := range entries {
		name := e.Name()
		if strings.HasPrefix(name, "node") {
			if _, err := strconv.Atoi(name[4:]); err == nil {
				n++
			}
		}
	}
	return n
}
