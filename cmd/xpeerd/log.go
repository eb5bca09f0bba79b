// Copyright (c) 2013-2016 The btcsuite developers
// Copyright (c) 2015-2021 The Decred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/decred/slog"
	"github.com/jrick/logrotate/rotator"

	"github.com/exccoin-labs/xpeerd/addrmgr"
	"github.com/exccoin-labs/xpeerd/connmgr"
	"github.com/exccoin-labs/xpeerd/engine"
	"github.com/exccoin-labs/xpeerd/headerstore"
	"github.com/exccoin-labs/xpeerd/netsync"
	"github.com/exccoin-labs/xpeerd/peer"
	"github.com/exccoin-labs/xpeerd/wire"
)

// logWriter implements an io.Writer that outputs to both standard output
// and the log rotator.
type logWriter struct{}

func (logWriter) Write(p []byte) (n int, err error) {
	os.Stdout.Write(p)
	logRotator.Write(p)
	return len(p), nil
}

// logRotator is one of the logging outputs. It should be closed on
// application shutdown.
var logRotator *rotator.Rotator

// backendLog is the logging backend used to create all subsystem loggers.
var backendLog = slog.NewBackend(logWriter{})

// subsystemLoggers maps each subsystem identifier to its logger instance.
var subsystemLoggers = map[string]slog.Logger{
	"XPRD": backendLog.Logger("XPRD"),
	"ENGN": backendLog.Logger("ENGN"),
	"SYNC": backendLog.Logger("SYNC"),
	"CMGR": backendLog.Logger("CMGR"),
	"PEER": backendLog.Logger("PEER"),
	"ADXR": backendLog.Logger("ADXR"),
	"HDST": backendLog.Logger("HDST"),
	"WIRE": backendLog.Logger("WIRE"),
}

var log = subsystemLoggers["XPRD"]

// initLogRotator initializes the logging rotator to write logs to logFile
// and create roll files in the same directory. It must be called before
// the package-level log rotator variable is used.
func initLogRotator(logFile string) error {
	logDir, _ := filepath.Split(logFile)
	if err := os.MkdirAll(logDir, 0700); err != nil {
		return fmt.Errorf("failed to create log directory: %w", err)
	}
	r, err := rotator.New(logFile, 10*1024, false, 3)
	if err != nil {
		return fmt.Errorf("failed to create file rotator: %w", err)
	}
	logRotator = r
	return nil
}

// setLogLevels sets the log level for every subsystem. A return value of
// false indicates an invalid or unsupported level was specified.
func setLogLevels(levelStr string) bool {
	level, ok := slog.LevelFromString(levelStr)
	if !ok {
		return false
	}
	for _, l := range subsystemLoggers {
		l.SetLevel(level)
	}
	return true
}

// useLoggers wires the shared subsystem loggers into every collaborator
// package that exposes a UseLogger hook.
func useLoggers() {
	engine.UseLogger(subsystemLoggers["ENGN"])
	netsync.UseLogger(subsystemLoggers["SYNC"])
	connmgr.UseLogger(subsystemLoggers["CMGR"])
	peer.UseLogger(subsystemLoggers["PEER"])
	addrmgr.UseLogger(subsystemLoggers["ADXR"])
	headerstore.UseLogger(subsystemLoggers["HDST"])
	wire.UseLogger(subsystemLoggers["WIRE"])
}
