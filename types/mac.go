// Copyright 2023 Intel Corporation.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package types

import (
	"fmt"
	"net"
)

type MACAddress [EtherAddrLen]uint8

// String returns the MAC address as colon-separated hex octets.
func (mac MACAddress) String() string {
	return fmt.Sprintf("%02x:%02x:%02x:%02x:%02x:%02x", mac[0], mac[1], mac[2], mac[3], mac[4], mac[5])
}

// StringToMACAddress parses string and returns MACAddress.
func StringToMACAddress(str string) (MACAddress, error) {
	hw, err := net.ParseMAC(str)
	if err != nil {
		return MACAddress{}, err
	}
	if len(hw) != EtherAddrLen {
		return MACAddress{}, fmt.Errorf("bad MAC address length %d", len(hw))
	}
	return NetHWAddressToMAC(hw), nil
}

// NetHWAddressToMAC converts net.HardwareAddr to MACAddress address.
func NetHWAddressToMAC(hw net.HardwareAddr) MACAddress {
	var out MACAddress
	copy(out[:], hw)
	return out
}
