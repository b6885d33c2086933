// Copyright 2023 Intel Corporation.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package conf loads the tester configuration: the configuration file
// with one "key value" pair per line ('#' starts a comment) and the
// positional command line arguments of the measurement variants.
package conf

import (
	"fmt"
	"strconv"

	"gopkg.in/ini.v1"

	"github.com/intel-go/maptperf/common"
	"github.com/intel-go/maptperf/mapt"
	"github.com/intel-go/maptperf/types"
)

// Config carries every parameter of the configuration file. Fields not
// present in the file keep their defaults; the port range defaults are
// the maximum ranges recommended by RFC 4814.
type Config struct {
	TesterLeftIPv6  types.IPv6Address
	TesterRightIPv4 types.IPv4Address
	TesterRightIPv6 types.IPv6Address

	TesterLeftMAC  types.MACAddress
	TesterRightMAC types.MACAddress
	DUTLeftMAC     types.MACAddress
	DUTRightMAC    types.MACAddress

	FwdVarSport types.PortVariation
	FwdVarDport types.PortVariation
	RevVarSport types.PortVariation
	RevVarDport types.PortVariation

	FwdDportMin uint16
	FwdDportMax uint16
	RevSportMin uint16
	RevSportMax uint16

	BgSportMin uint16
	BgSportMax uint16
	BgDportMin uint16
	BgDportMax uint16

	NumOfCEs uint32
	BMR      mapt.BMR

	DMRPrefix       types.IPv6Address
	DMRPrefixLength uint8

	LeftSenderCPU    int
	RightReceiverCPU int
	RightSenderCPU   int
	LeftReceiverCPU  int

	MemoryChannels uint8
	Forward        bool
	Reverse        bool
	Promisc        bool
}

// NewConfig returns a Config with the documented default values.
func NewConfig() *Config {
	return &Config{
		Forward:          true,
		Reverse:          true,
		LeftSenderCPU:    -1,
		RightReceiverCPU: -1,
		RightSenderCPU:   -1,
		LeftReceiverCPU:  -1,
		MemoryChannels:   1,
		FwdVarSport:      types.PortRandom,
		FwdVarDport:      types.PortRandom,
		FwdDportMin:      1,
		FwdDportMax:      49151,
		RevVarSport:      types.PortRandom,
		RevVarDport:      types.PortRandom,
		RevSportMin:      1024,
		RevSportMax:      65535,
		BgSportMin:       1024,
		BgSportMax:       65535,
		BgDportMin:       1,
		BgDportMax:       49151,
		BMR: mapt.BMR{
			RulePrefix:       types.IPv6Address{0x20, 0x01, 0x0d, 0xb8, 0x00, 0xce}, // 2001:db8:ce::
			RulePrefixLength: 51,
			IPv4PrefixLength: 24,
			EALength:         13,
		},
		DMRPrefix:       types.IPv6Address{0x00, 0x64, 0xff, 0x9b}, // 64:ff9b::
		DMRPrefixLength: 64,
	}
}

func badKey(key, reason string) error {
	return common.WrapWithTesterError(nil,
		fmt.Sprintf("bad '%s': %s", key, reason), common.BadConfig)
}

func (c *Config) setIPv6(key, value string, out *types.IPv6Address) error {
	addr, err := types.StringToIPv6(value)
	if err != nil {
		return badKey(key, "cannot parse IPv6 address")
	}
	*out = addr
	return nil
}

func (c *Config) setMAC(key, value string, out *types.MACAddress) error {
	mac, err := types.StringToMACAddress(value)
	if err != nil {
		return badKey(key, "cannot parse MAC address")
	}
	*out = mac
	return nil
}

func parseUint(key, value string, bits int) (uint64, error) {
	v, err := strconv.ParseUint(value, 10, bits)
	if err != nil {
		return 0, badKey(key, "cannot parse number")
	}
	return v, nil
}

func parsePortVariation(key, value string, out *types.PortVariation) error {
	v, err := parseUint(key, value, 8)
	if err != nil || v < 1 || v > 3 {
		return badKey(key, "must be either 1 for increasing, 2 for decreasing, or 3 for random")
	}
	*out = types.PortVariation(v)
	return nil
}

func parseSwitch(key, value string, out *bool) error {
	v, err := parseUint(key, value, 8)
	if err != nil || v > 1 {
		return badKey(key, "must be either 0 for inactive or 1 for active")
	}
	*out = v == 1
	return nil
}

func parseCPU(key, value string, out *int) error {
	v, err := strconv.Atoi(value)
	if err != nil || v < 0 {
		return badKey(key, "must be a valid core ID")
	}
	*out = v
	return nil
}

// ReadConfigFile reads the configuration file and merges it over the
// defaults. Unrecognized keys are errors; '#' starts a comment.
func (c *Config) ReadConfigFile(filename string) error {
	f, err := ini.LoadSources(ini.LoadOptions{
		KeyValueDelimiters: " \t",
	}, filename)
	if err != nil {
		return common.WrapWithTesterError(err, "cannot open file '"+filename+"'", common.BadConfig)
	}
	for _, key := range f.Section("").Keys() {
		if err := c.applyKey(key.Name(), key.Value()); err != nil {
			return err
		}
	}
	return c.check()
}

func (c *Config) applyKey(name, value string) error {
	switch name {
	case "Tester-L-IPv6":
		return c.setIPv6(name, value, &c.TesterLeftIPv6)
	case "Tester-R-IPv6":
		return c.setIPv6(name, value, &c.TesterRightIPv6)
	case "Tester-R-IPv4":
		addr, err := types.StringToIPv4(value)
		if err != nil {
			return badKey(name, "cannot parse IPv4 address")
		}
		c.TesterRightIPv4 = addr
	case "Tester-L-MAC":
		return c.setMAC(name, value, &c.TesterLeftMAC)
	case "Tester-R-MAC":
		return c.setMAC(name, value, &c.TesterRightMAC)
	case "DUT-L-MAC":
		return c.setMAC(name, value, &c.DUTLeftMAC)
	case "DUT-R-MAC":
		return c.setMAC(name, value, &c.DUTRightMAC)
	case "FW-var-sport":
		return parsePortVariation(name, value, &c.FwdVarSport)
	case "FW-var-dport":
		return parsePortVariation(name, value, &c.FwdVarDport)
	case "RV-var-sport":
		return parsePortVariation(name, value, &c.RevVarSport)
	case "RV-var-dport":
		return parsePortVariation(name, value, &c.RevVarDport)
	case "FW-dport-min":
		return c.setPort(name, value, &c.FwdDportMin)
	case "FW-dport-max":
		return c.setPort(name, value, &c.FwdDportMax)
	case "RV-sport-min":
		return c.setPort(name, value, &c.RevSportMin)
	case "RV-sport-max":
		return c.setPort(name, value, &c.RevSportMax)
	case "bg-sport-min":
		return c.setPort(name, value, &c.BgSportMin)
	case "bg-sport-max":
		return c.setPort(name, value, &c.BgSportMax)
	case "bg-dport-min":
		return c.setPort(name, value, &c.BgDportMin)
	case "bg-dport-max":
		return c.setPort(name, value, &c.BgDportMax)
	case "NUM-OF-CEs":
		v, err := parseUint(name, value, 32)
		if err != nil || v < 1 || v > 1000000 {
			return badKey(name, "must be >= 1 and <= 1000000")
		}
		c.NumOfCEs = uint32(v)
	case "BMR-IPv6-Prefix":
		return c.setIPv6(name, value, &c.BMR.RulePrefix)
	case "BMR-IPv6-prefix-length":
		v, err := parseUint(name, value, 8)
		if err != nil || v < 1 || v > 64 {
			return badKey(name, "must be >= 1 and <= 64")
		}
		c.BMR.RulePrefixLength = uint8(v)
	case "BMR-IPv4-Prefix":
		addr, err := types.StringToIPv4(value)
		if err != nil {
			return badKey(name, "cannot parse IPv4 address")
		}
		c.BMR.IPv4Prefix = addr
	case "BMR-IPv4-prefix-length":
		v, err := parseUint(name, value, 8)
		if err != nil || v > 32 {
			return badKey(name, "must be >= 0 and <= 32")
		}
		c.BMR.IPv4PrefixLength = uint8(v)
	case "BMR-EA-length":
		v, err := parseUint(name, value, 8)
		if err != nil || v > 48 {
			// according to RFC 7597 section 5.2
			return badKey(name, "must be >= 0 and <= 48")
		}
		c.BMR.EALength = uint8(v)
	case "DMR-IPv6-Prefix":
		return c.setIPv6(name, value, &c.DMRPrefix)
	case "DMR-IPv6-prefix-length":
		v, err := parseUint(name, value, 8)
		if err != nil || v < 64 || v > 96 {
			// according to RFC 7599 section 5.1
			return badKey(name, "must be >= 64 and <= 96")
		}
		c.DMRPrefixLength = uint8(v)
	case "CPU-FW-Send":
		return parseCPU(name, value, &c.LeftSenderCPU)
	case "CPU-FW-Receive":
		return parseCPU(name, value, &c.RightReceiverCPU)
	case "CPU-RV-Send":
		return parseCPU(name, value, &c.RightSenderCPU)
	case "CPU-RV-Receive":
		return parseCPU(name, value, &c.LeftReceiverCPU)
	case "Mem-Channels":
		v, err := parseUint(name, value, 8)
		if err != nil || v == 0 {
			return badKey(name, "must be > 0")
		}
		c.MemoryChannels = uint8(v)
	case "FW":
		return parseSwitch(name, value, &c.Forward)
	case "RV":
		return parseSwitch(name, value, &c.Reverse)
	case "Promisc":
		return parseSwitch(name, value, &c.Promisc)
	default:
		return common.WrapWithTesterError(nil,
			fmt.Sprintf("cannot interpret configuration key '%s'", name), common.BadConfig)
	}
	return nil
}

func (c *Config) setPort(key, value string, out *uint16) error {
	v, err := parseUint(key, value, 16)
	if err != nil {
		return badKey(key, "cannot parse port number")
	}
	*out = uint16(v)
	return nil
}

// check enforces the cross-key constraints after the whole file was
// read: at least one direction active, CPU pins present for the active
// directions.
func (c *Config) check() error {
	if !c.Forward && !c.Reverse {
		return common.WrapWithTesterError(nil,
			"no active direction was specified", common.NoActiveDirection)
	}
	if c.Forward {
		if c.LeftSenderCPU < 0 {
			return common.WrapWithTesterError(nil, "no 'CPU-FW-Send' was specified", common.BadConfig)
		}
		if c.RightReceiverCPU < 0 {
			return common.WrapWithTesterError(nil, "no 'CPU-FW-Receive' was specified", common.BadConfig)
		}
	}
	if c.Reverse {
		if c.RightSenderCPU < 0 {
			return common.WrapWithTesterError(nil, "no 'CPU-RV-Send' was specified", common.BadConfig)
		}
		if c.LeftReceiverCPU < 0 {
			return common.WrapWithTesterError(nil, "no 'CPU-RV-Receive' was specified", common.BadConfig)
		}
	}
	return nil
}
