// Copyright 2023 Intel Corporation.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// maptperf is an RFC 8219 compliant MAP-T Border Relay tester.
//
// The binary hosts the three measurement variants as subcommands:
//
//	maptperf throughput <ipv6_frame_size> <frame_rate> <test_duration> <stream_timeout> <n> <m>
//	maptperf latency    <...throughput args...> <first_tagged_delay> <num_of_tagged>
//	maptperf pdv        <...throughput args...> <frame_timeout>
//
// Measurement results are emitted as "key: value" lines on stdout;
// everything else is Info:/Warning:/Debug:/Error: lines.
package main

import (
	"os"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/intel-go/maptperf/common"
	"github.com/intel-go/maptperf/conf"
	"github.com/intel-go/maptperf/tester"
)

var (
	configFile string
	leftIface  string
	rightIface string
)

func main() {
	root := &cobra.Command{
		Use:           "maptperf",
		Short:         "RFC 8219 benchmarking tester for MAP-T Border Relays",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&configFile, "config", "c", "maptperf.conf",
		"configuration file")
	root.PersistentFlags().StringVarP(&leftIface, "left", "l", "",
		"network interface of the Left port")
	root.PersistentFlags().StringVarP(&rightIface, "right", "r", "",
		"network interface of the Right port")
	root.MarkPersistentFlagRequired("left")
	root.MarkPersistentFlagRequired("right")

	root.AddCommand(throughputCmd(), latencyCmd(), pdvCmd())

	if err := root.Execute(); err != nil {
		common.LogFatal(common.Initialization, err)
	}
	os.Exit(0)
}

// setup performs the common part of every variant: it reads the
// configuration file and the common command line arguments. Ports and
// MAP parameters are prepared later by run.
func setup(t *tester.Tester, args []string) {
	cfg := conf.NewConfig()
	if err := cfg.ReadConfigFile(configFile); err != nil {
		common.LogFatal(common.Initialization, err)
	}
	cmdArgs, err := conf.ReadCmdLine(args)
	if err != nil {
		common.LogFatal(common.Initialization, err)
	}
	t.Cfg = cfg
	t.Args = cmdArgs
}

func run(t *tester.Tester) {
	if err := t.InitPorts(leftIface, rightIface); err != nil {
		common.LogFatal(common.Initialization, err)
	}
	if err := t.Init(); err != nil {
		common.LogFatal(common.Initialization, err)
	}
	common.LogInfo(common.Initialization, "Offered load:",
		humanize.Comma(int64(t.Args.FrameRate)), "frames per second,",
		humanize.Comma(int64(t.Args.IPv6FrameSize)), "byte frames")
	if err := t.Measure(); err != nil {
		common.LogFatal(common.Initialization, err)
	}
}

func throughputCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "throughput <ipv6_frame_size> <frame_rate> <test_duration> <stream_timeout> <n> <m>",
		Short: "throughput and frame loss rate measurement",
		Args:  cobra.ExactArgs(6),
		Run: func(cmd *cobra.Command, args []string) {
			t := &tester.Tester{Mode: tester.ModeThroughput}
			setup(t, args)
			run(t)
		},
	}
}

func latencyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "latency <ipv6_frame_size> <frame_rate> <test_duration> <stream_timeout> <n> <m> <first_tagged_delay> <num_of_tagged>",
		Short: "latency measurement (typical and worst-case)",
		Args:  cobra.ExactArgs(8),
		Run: func(cmd *cobra.Command, args []string) {
			t := &tester.Tester{Mode: tester.ModeLatency}
			setup(t, args)
			lat, err := conf.ReadLatencyCmdLine(args, t.Args)
			if err != nil {
				common.LogFatal(common.Initialization, err)
			}
			t.Latency = *lat
			run(t)
		},
	}
}

func pdvCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "pdv <ipv6_frame_size> <frame_rate> <test_duration> <stream_timeout> <n> <m> <frame_timeout>",
		Short: "packet delay variation measurement",
		Args:  cobra.ExactArgs(7),
		Run: func(cmd *cobra.Command, args []string) {
			t := &tester.Tester{Mode: tester.ModePdv}
			setup(t, args)
			pdv, err := conf.ReadPdvCmdLine(args, t.Args)
			if err != nil {
				common.LogFatal(common.Initialization, err)
			}
			t.Pdv = *pdv
			run(t)
		},
	}
}
