// Copyright 2023 Intel Corporation.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package mapt

import (
	"fmt"

	"github.com/intel-go/maptperf/common"
	"github.com/intel-go/maptperf/packet"
	"github.com/intel-go/maptperf/types"
)

// CE holds everything the senders need about one simulated customer
// edge: its public IPv4 address, its MAP IPv6 address, the PSID
// selecting its port set, and the uncomplemented checksums of both
// addresses so a sender can extend a template's precomputed checksum
// by simple addition instead of recomputing it from scratch.
type CE struct {
	IPv4Addr       types.IPv4Address
	IPv4AddrChksum uint16
	MapAddr        types.IPv6Address
	MapAddrChksum  uint16
	Psid           uint16
}

// BuildCEArray materializes the first numOfCEs entries of the EA-bit
// permutation into CE records. The MAP address of each CE is the rule
// prefix, the IPv4 suffix and the PSID, followed by the RFC 7597
// interface identifier derived from the IPv4 address and the PSID.
func BuildCEArray(bmr *BMR, d Derived, uniqueEA []EABits, numOfCEs uint32) ([]CE, error) {
	if uniqueEA == nil {
		return nil, common.WrapWithTesterError(nil,
			"no pre-generated unique EA-bits combinations", common.NoCEArray)
	}
	if uint64(numOfCEs) > uint64(len(uniqueEA)) {
		return nil, common.WrapWithTesterError(nil,
			fmt.Sprintf("the number of CEs (%d) to be simulated exceeds the maximum number that EA-bits allow (%d)",
				numOfCEs, len(uniqueEA)), common.TooManyCEs)
	}

	prefixBytes := int(bmr.RulePrefixLength / 8)
	prefixBits := uint(bmr.RulePrefixLength % 8)

	ces := make([]CE, numOfCEs)
	for curr := range ces {
		suffix := uniqueEA[curr].IPv4Suffix
		psid := uniqueEA[curr].Psid

		var endUserPrefix uint64
		for i := 0; i < prefixBytes; i++ {
			endUserPrefix = endUserPrefix<<8 | uint64(bmr.RulePrefix[i])
		}
		if prefixBits != 0 {
			endUserPrefix = endUserPrefix<<prefixBits | uint64(bmr.RulePrefix[prefixBytes]>>(8-prefixBits))
		}
		endUserPrefix = endUserPrefix<<d.SuffixLength | uint64(suffix)
		endUserPrefix = endUserPrefix<<d.PsidLength | uint64(psid)
		if eaEnd := uint(bmr.RulePrefixLength) + uint(d.SuffixLength) + uint(d.PsidLength); eaEnd < 64 {
			// the subnet ID bits following the end user prefix stay zero
			endUserPrefix <<= 64 - eaEnd
		}

		ipv4 := bmr.IPv4Prefix | types.IPv4Address(suffix)
		interfaceID := uint64(ipv4)<<16 | uint64(psid)

		ce := &ces[curr]
		ce.Psid = psid
		ce.IPv4Addr = ipv4
		ipv4Bytes := types.IPv4ToBytes(ipv4)
		ce.IPv4AddrChksum = packet.ReduceCksum(packet.RawCksum(ipv4Bytes[:]))
		ce.MapAddr = concatenate(endUserPrefix, interfaceID)
		ce.MapAddrChksum = packet.ReduceCksum(packet.RawCksum(ce.MapAddr[:]))
	}
	return ces, nil
}

// concatenate joins two 64-bit halves into an IPv6 address, big-endian.
// The end user IPv6 prefix forms the upper half and the interface ID
// the lower one.
func concatenate(in1, in2 uint64) types.IPv6Address {
	return types.IPv6Address{
		byte(in1 >> 56), byte(in1 >> 48), byte(in1 >> 40), byte(in1 >> 32),
		byte(in1 >> 24), byte(in1 >> 16), byte(in1 >> 8), byte(in1),
		byte(in2 >> 56), byte(in2 >> 48), byte(in2 >> 40), byte(in2 >> 32),
		byte(in2 >> 24), byte(in2 >> 16), byte(in2 >> 8), byte(in2),
	}
}
