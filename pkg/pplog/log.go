// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2016-present Datadog, Inc.

// Package pplog is the scheduler's logging facade: a seelog-backed global
// logger singleton, adapted from the wrapper the rest of this corpus uses,
// scaled down to what a preprocessing worker pool needs to log (task
// lifecycle, step failures, queue synchronization failures).
package pplog

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/cihub/seelog"
)

var (
	logger *schedLogger

	// logsBuffer holds log lines produced before Setup is called. Callers
	// that construct a queue or worker pool before wiring a logger (e.g. in
	// tests) should not lose those lines nor block on them.
	logsBuffer           []func()
	bufferLogsBeforeInit = true
	bufferMutex          sync.Mutex
	defaultStackDepth    = 3
)

// schedLogger wraps a seelog logger behind a level check. The level is set
// once by Setup before the logger is installed; shouldLog reads it under mu.
type schedLogger struct {
	inner seelog.LoggerInterface
	level seelog.LogLevel
	mu    sync.RWMutex
}

// Setup installs l as the package logger and parses level (trace, debug,
// info, warn, error, critical; unrecognized values fall back to info).
// Buffered lines recorded before Setup was called are flushed immediately.
func Setup(l seelog.LoggerInterface, level string) {
	newLogger := &schedLogger{inner: l}

	lvl, ok := seelog.LogLevelFromString(strings.ToLower(level))
	if !ok {
		lvl = seelog.InfoLvl
	}
	newLogger.level = lvl
	newLogger.inner.SetAdditionalStackDepth(defaultStackDepth) //nolint:errcheck

	bufferMutex.Lock()
	logger = newLogger
	bufferLogsBeforeInit = false
	buffered := logsBuffer
	logsBuffer = nil
	bufferMutex.Unlock()

	for _, logLine := range buffered {
		logLine()
	}
}

// SetupDefault installs a seelog logger writing to stderr at level, for
// callers (and tests) that do not need a custom seelog configuration.
func SetupDefault(level string) error {
	l, err := seelog.LoggerFromWriterWithMinLevel(os.Stderr, seelog.TraceLvl)
	if err != nil {
		return fmt.Errorf("pplog: %w", err)
	}
	Setup(l, level)
	return nil
}

// Flush flushes the underlying seelog logger, if any.
func Flush() {
	bufferMutex.Lock()
	l := logger
	bufferMutex.Unlock()
	if l != nil {
		l.inner.Flush()
	}
}

func addLogToBuffer(logHandle func()) {
	bufferMutex.Lock()
	defer bufferMutex.Unlock()
	logsBuffer = append(logsBuffer, logHandle)
}

func (sw *schedLogger) shouldLog(level seelog.LogLevel) bool {
	sw.mu.RLock()
	defer sw.mu.RUnlock()
	return level >= sw.level
}

func buildEntry(v ...interface{}) string {
	var buf bytes.Buffer
	for i := 0; i < len(v)-1; i++ {
		buf.WriteString("%v ")
	}
	buf.WriteString("%v")
	return fmt.Sprintf(buf.String(), v...)
}

func logAt(level seelog.LogLevel, bufferFunc func(), logFunc func(string), v ...interface{}) {
	bufferMutex.Lock()
	l := logger
	buffering := bufferLogsBeforeInit && l == nil
	bufferMutex.Unlock()

	if l != nil && l.shouldLog(level) {
		logFunc(buildEntry(v...))
	} else if buffering {
		addLogToBuffer(bufferFunc)
	}
}

func logfAt(level seelog.LogLevel, bufferFunc func(), logFunc func(string), format string, params ...interface{}) {
	bufferMutex.Lock()
	l := logger
	buffering := bufferLogsBeforeInit && l == nil
	bufferMutex.Unlock()

	if l != nil && l.shouldLog(level) {
		logFunc(fmt.Sprintf(format, params...))
	} else if buffering {
		addLogToBuffer(bufferFunc)
	}
}

// Trace logs at the trace level.
func Trace(v ...interface{}) {
	logAt(seelog.TraceLvl, func() { Trace(v...) }, func(s string) { logger.inner.Trace(s) }, v...)
}

// Tracef logs with format at the trace level.
func Tracef(format string, params ...interface{}) {
	logfAt(seelog.TraceLvl, func() { Tracef(format, params...) }, func(s string) { logger.inner.Trace(s) }, format, params...)
}

// Debug logs at the debug level.
func Debug(v ...interface{}) {
	logAt(seelog.DebugLvl, func() { Debug(v...) }, func(s string) { logger.inner.Debug(s) }, v...)
}

// Debugf logs with format at the debug level.
func Debugf(format string, params ...interface{}) {
	logfAt(seelog.DebugLvl, func() { Debugf(format, params...) }, func(s string) { logger.inner.Debug(s) }, format, params...)
}

// Info logs at the info level.
func Info(v ...interface{}) {
	logAt(seelog.InfoLvl, func() { Info(v...) }, func(s string) { logger.inner.Info(s) }, v...)
}

// Infof logs with format at the info level.
func Infof(format string, params ...interface{}) {
	logfAt(seelog.InfoLvl, func() { Infof(format, params...) }, func(s string) { logger.inner.Info(s) }, format, params...)
}

// Warnf logs with format at the warn level and also returns the message as
// an error, matching the rest of this corpus's convention of being able to
// `return log.Warnf(...)` from a function that both logs and fails.
func Warnf(format string, params ...interface{}) error {
	msg := fmt.Sprintf(format, params...)
	logfAt(seelog.WarnLvl, func() { Warnf(format, params...) }, func(s string) { logger.inner.Warn(s) }, format, params...) //nolint:errcheck
	return errors.New(msg)
}

// Errorf logs with format at the error level and also returns the message
// as an error.
func Errorf(format string, params ...interface{}) error {
	msg := fmt.Sprintf(format, params...)
	logfAt(seelog.ErrorLvl, func() { Errorf(format, params...) }, func(s string) { logger.inner.Error(s) }, format, params...) //nolint:errcheck
	return errors.New(msg)
}

// Criticalf logs with format at the critical level and also returns the
// message as an error.
func Criticalf(format string, params ...interface{}) error {
	msg := fmt.Sprintf(format, params...)
	logfAt(seelog.CriticalLvl, func() { Criticalf(format, params...) }, func(s string) { logger.inner.Critical(s) }, format, params...) //nolint:errcheck
	return errors.New(msg)
}
