// Copyright 2023 Intel Corporation.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package common

import (
	"fmt"
	"log"
	"os"
)

// LogType - type of logging, used in all tester packages
type LogType uint8

const (
	// No - no output even after fatal errors
	No LogType = 1 << iota
	// Initialization - output during environment and test setup
	Initialization
	// Debug - output of per-run diagnostic values (e.g. corrected delays)
	Debug
	// Verbose - output during measurement as soon as something happens.
	// Can influence performance
	Verbose
)

var currentLogType = No | Initialization | Debug

var stderrLogger = log.New(os.Stderr, "", 0)

// LogFatal reports an unrecoverable error to stderr and terminates the
// process with a nonzero exit code.
func LogFatal(logType LogType, v ...interface{}) {
	if logType&currentLogType != 0 {
		t := fmt.Sprintln(v...)
		stderrLogger.Print("Error: ", t)
	}
	os.Exit(1)
}

// LogFatalf is a wrapper at LogFatal which makes formatting before logger.
func LogFatalf(logType LogType, format string, v ...interface{}) {
	LogFatal(logType, fmt.Sprintf(format, v...))
}

// LogError internal, used in all packages
func LogError(logType LogType, v ...interface{}) string {
	if logType&currentLogType != 0 {
		t := fmt.Sprintln(v...)
		stderrLogger.Print("Error: ", t)
		return t
	}
	return ""
}

// LogWarning internal, used in all packages
func LogWarning(logType LogType, v ...interface{}) {
	if logType&currentLogType != 0 {
		t := fmt.Sprintln(v...)
		log.Print("Warning: ", t)
	}
}

// LogDebug internal, used in all packages
func LogDebug(logType LogType, v ...interface{}) {
	if logType&currentLogType != 0 {
		t := fmt.Sprintln(v...)
		log.Print("Debug: ", t)
	}
}

// LogInfo internal, used in all packages
func LogInfo(logType LogType, v ...interface{}) {
	if logType&currentLogType != 0 {
		t := fmt.Sprintln(v...)
		log.Print("Info: ", t)
	}
}

// SetLogType internal, used to tune verbosity
func SetLogType(logType LogType) {
	log.SetFlags(0)
	log.SetOutput(os.Stdout)
	currentLogType = logType
}

func init() {
	// metric lines and Info/Warning lines share stdout; only Error goes
	// to stderr
	log.SetFlags(0)
	log.SetOutput(os.Stdout)
}
