// Package klog provides the kernel's structured logger. All subsystems log
// through here rather than calling fmt.Printf directly, so that boot
// verbosity can be controlled from one place.
package klog

import (
	"fmt"
	"os"

	"go.uber.org/zap"
)

var sugar *zap.SugaredLogger

func init() {
	l, err := zap.NewDevelopment()
	if err != nil {
		// logging must never be the reason the kernel fails to boot
		l = zap.NewNop()
	}
	sugar = l.Sugar()
}

// Use replaces the package logger, e.g. with the level-configured logger
// cmd/biscuitctl builds once boot flags have been parsed.
func Use(l *zap.Logger) {
	sugar = l.Sugar()
}

// Infof logs a boot/lifecycle event.
func Infof(format string, args ...interface{}) {
	sugar.Infof(format, args...)
}

// Warnf logs a recoverable anomaly (unknown syscall number, spurious disk
// interrupt).
func Warnf(format string, args ...interface{}) {
	sugar.Warnf(format, args...)
}

// Errorf logs a failed operation that the caller will itself surface as an
// Err_t; this is for operator visibility, not control flow.
func Errorf(format string, args ...interface{}) {
	sugar.Errorf(format, args...)
}

// Panicf prints a kernel panic banner and halts the current goroutine.
// Unlike the other helpers this always prints, even with logging disabled,
// because a panic banner is an operator-facing message, not a log line.
func Panicf(format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	fmt.Fprintf(os.Stderr, "panic: %s\npanicked, halting CPU\n", msg)
	sugar.Sync()
	panic(msg)
}
