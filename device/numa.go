// Copyright 2023 Intel Corporation.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package device

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/vishvananda/netlink"

	"github.com/intel-go/maptperf/common"
	"github.com/intel-go/maptperf/types"
)

// NumaNodeOfPort returns the NUMA node the NIC behind the interface is
// attached to, or -1 when the information is unavailable.
func NumaNodeOfPort(ifName string) int {
	data, err := os.ReadFile("/sys/class/net/" + ifName + "/device/numa_node")
	if err != nil {
		return -1
	}
	node, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return -1
	}
	return node
}

// NumaCheck warns when the NUMA node of a port and of the core pinned
// to work on it differ.
func NumaCheck(ifName, portSide string, cpu int, cpuName string) {
	nPort := NumaNodeOfPort(ifName)
	nCPU := common.NumaNodeOfCPU(cpu)
	if nPort == nCPU {
		common.LogInfo(common.Initialization, portSide, "port and", cpuName,
			"CPU core belong to the same NUMA node:", nPort)
	} else {
		common.LogWarning(common.Initialization, portSide, "port and", cpuName,
			"CPU core belong to NUMA nodes", nPort, ",", nCPU, ", respectively.")
	}
}

// MACOfPort reads the MAC address of the interface.
func MACOfPort(ifName string) (types.MACAddress, error) {
	link, err := netlink.LinkByName(ifName)
	if err != nil {
		return types.MACAddress{}, common.WrapWithTesterError(err,
			"network port '"+ifName+"' is not available", common.FailToInitPort)
	}
	return types.NetHWAddressToMAC(link.Attrs().HardwareAddr), nil
}

// SetPromiscuous turns promiscuous mode on for the interface.
func SetPromiscuous(ifName string) error {
	link, err := netlink.LinkByName(ifName)
	if err != nil {
		return common.WrapWithTesterError(err,
			"network port '"+ifName+"' is not available", common.FailToInitPort)
	}
	if err := netlink.SetPromiscOn(link); err != nil {
		return common.WrapWithTesterError(err,
			"cannot enable promiscuous mode on '"+ifName+"'", common.FailToInitPort)
	}
	return nil
}

// WaitLinkUp polls the operational state of the interface up to
// MaxPortTrials times and fails when the link stays down.
func WaitLinkUp(ifName, portSide string) error {
	for trials := 0; trials < MaxPortTrials; trials++ {
		link, err := netlink.LinkByName(ifName)
		if err != nil {
			return common.WrapWithTesterError(err,
				"network port '"+ifName+"' is not available", common.FailToInitPort)
		}
		if link.Attrs().OperState == netlink.OperUp {
			return nil
		}
		time.Sleep(100 * time.Millisecond)
	}
	return common.WrapWithTesterError(nil,
		portSide+" Ethernet port is DOWN", common.LinkDownErr)
}
