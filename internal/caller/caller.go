// Package caller captures call-stack traces for lock diagnostics: spin
// locks with Trace enabled record the call stack of their current holder
// until Release clears it; nothing in this port reads or prints that
// record. Grounded on biscuit/src/caller/caller.go's Callerdump, adapted
// to return a string rather than print directly to stdout.
package caller

import (
	"fmt"
	"runtime"
)

// Stack formats the call stack as a single line of function names joined
// by " <- ". With skip 0 it starts at Stack's own frame; each increment
// drops one more frame from the top.
func Stack(skip int) string {
	pcs := make([]uintptr, 16)
	n := runtime.Callers(skip+1, pcs)
	frames := runtime.CallersFrames(pcs[:n])
	s := ""
	for {
		fr, more := frames.Next()
		if s == "" {
			s = fr.Function
		} else {
			s += " <- " + fr.Function
		}
		if !more {
			break
		}
	}
	return s
}

// Dump prints the call stack starting at depth start, one frame per line,
// matching Callerdump's operator-facing format for ad hoc debugging.
func Dump(start int) {
	i := start
	s := ""
	for {
		_, f, l, ok := runtime.Caller(i)
		if !ok {
			break
		}
		i++
		if s == "" {
			s = fmt.Sprintf("%s:%d\n", f, l)
		} else {
			s += fmt.Sprintf("\t<-%s:%d\n", f, l)
		}
	}
	fmt.Printf("%s", s)
}
