// Copyright 2023 Intel Corporation.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package mapt implements the MAP-T address arithmetic of RFC 7597 and
// RFC 7599 needed to simulate a population of customer edge devices:
// Basic Mapping Rule parameter derivation, Default Mapping Rule address
// synthesis per RFC 6052, the pseudorandom enumeration of the EA-bit
// space and the construction of per-CE precomputed addresses and
// checksums.
package mapt

import (
	"fmt"

	"github.com/intel-go/maptperf/common"
	"github.com/intel-go/maptperf/types"
)

// BMR keeps the Basic Mapping Rule as configured.
type BMR struct {
	RulePrefix       types.IPv6Address // the rule IPv6 prefix of the MAP address
	RulePrefixLength uint8             // 1..64
	IPv4Prefix       types.IPv4Address // public IPv4 prefix reserved for CEs
	IPv4PrefixLength uint8             // 0..32
	EALength         uint8             // 0..48, per RFC 7597 section 5.2
}

// Derived holds the values computed from the BMR that the builders and
// the senders work with.
type Derived struct {
	SuffixLength uint8  // 32 - IPv4 prefix length
	PsidLength   uint8  // EA length - suffix length
	NumPortSets  uint32 // 2^PSID length
	PortsPerSet  uint32 // 65536 / number of port sets
}

// Derive validates the BMR and produces the derived MAP parameters.
func (bmr *BMR) Derive() (Derived, error) {
	var d Derived
	if bmr.IPv4PrefixLength > 32 {
		return d, common.WrapWithTesterError(nil,
			fmt.Sprintf("BMR IPv4 prefix length %d is beyond 32", bmr.IPv4PrefixLength), common.BadConfig)
	}
	d.SuffixLength = 32 - bmr.IPv4PrefixLength
	if bmr.EALength < d.SuffixLength {
		return d, common.WrapWithTesterError(nil,
			fmt.Sprintf("EA length %d is shorter than the IPv4 suffix length %d",
				bmr.EALength, d.SuffixLength), common.BadConfig)
	}
	d.PsidLength = bmr.EALength - d.SuffixLength
	if d.PsidLength > 16 {
		return d, common.WrapWithTesterError(nil,
			fmt.Sprintf("PSID length %d does not fit UDP port numbers", d.PsidLength), common.BadConfig)
	}
	if d.SuffixLength == 0 {
		// excluding the all-zeros and all-ones suffixes leaves nothing
		return d, common.WrapWithTesterError(nil,
			"BMR IPv4 suffix length 0 leaves no usable suffix", common.BadConfig)
	}
	d.NumPortSets = 1 << d.PsidLength
	d.PortsPerSet = 65536 / d.NumPortSets
	return d, nil
}

// EACardinality is the number of distinct EA-bit combinations: suffixes
// excluding all-zeros and all-ones (subnet and broadcast addresses)
// times the number of port sets.
func (d Derived) EACardinality() uint64 {
	return (uint64(1)<<d.SuffixLength - 2) * uint64(d.NumPortSets)
}
