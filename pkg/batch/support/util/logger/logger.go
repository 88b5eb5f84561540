// Package logger is the levelled logging facade used by every package in the batch runtime.
// Messages go through the standard `log` package with a "[LEVEL] " prefix, so the output
// destination and flags can still be controlled with log.SetOutput / log.SetFlags.
package logger

import (
	"fmt"
	"log"
	"strings"
	"sync/atomic"
)

// LogLevel orders log messages by severity. Smaller values are more verbose.
type LogLevel int32

const (
	LevelDebug LogLevel = iota // per-chunk and per-statement detail
	LevelInfo                  // step and job lifecycle
	LevelWarn                  // recoverable anomalies, forced status transitions
	LevelError                 // failed steps and jobs
	LevelFatal                 // process termination
)

var levelNames = map[LogLevel]string{
	LevelDebug: "DEBUG",
	LevelInfo:  "INFO",
	LevelWarn:  "WARN",
	LevelError: "ERROR",
	LevelFatal: "FATAL",
}

// String returns the upper-case name of the level.
func (l LogLevel) String() string {
	if name, ok := levelNames[l]; ok {
		return name
	}
	return fmt.Sprintf("LEVEL(%d)", int32(l))
}

var currentLevel atomic.Int32

func init() {
	currentLevel.Store(int32(LevelInfo))
}

// ParseLevel converts a level name (case-insensitive) into a LogLevel.
// The second return value is false when the name is not recognised.
func ParseLevel(level string) (LogLevel, bool) {
	name := strings.ToUpper(strings.TrimSpace(level))
	for l, n := range levelNames {
		if n == name {
			return l, true
		}
	}
	return LevelInfo, false
}

// SetLogLevel sets the global level from a configuration string ("DEBUG", "INFO", "WARN", "ERROR", "FATAL").
// Unknown values fall back to INFO and print a notice.
func SetLogLevel(level string) {
	l, ok := ParseLevel(level)
	if !ok {
		fmt.Printf("Unknown log level '%s' specified. Defaulting to INFO level.\n", level)
	}
	currentLevel.Store(int32(l))
}

// GetLogLevel returns the level currently in effect.
func GetLogLevel() LogLevel {
	return LogLevel(currentLevel.Load())
}

// Enabled reports whether messages at level l are written.
func Enabled(l LogLevel) bool {
	return LogLevel(currentLevel.Load()) <= l
}

func output(l LogLevel, format string, v ...interface{}) {
	if Enabled(l) {
		log.Printf("["+l.String()+"] "+format, v...)
	}
}

// Debugf logs at DEBUG level.
func Debugf(format string, v ...interface{}) { output(LevelDebug, format, v...) }

// Infof logs at INFO level.
func Infof(format string, v ...interface{}) { output(LevelInfo, format, v...) }

// Warnf logs at WARN level.
func Warnf(format string, v ...interface{}) { output(LevelWarn, format, v...) }

// Errorf logs at ERROR level.
func Errorf(format string, v ...interface{}) { output(LevelError, format, v...) }

// Fatalf logs the message regardless of level and exits the process with status 1.
func Fatalf(format string, v ...interface{}) {
	log.Fatalf("[FATAL] "+format, v...)
}
