// Package spinlock implements the kernel's mutual-exclusion primitive, a
// named lock, together with Cli, the per-CPU nested interrupt-disable
// counter that cpu.T embeds. Lock_t does not touch Cli (see Acquire), and
// a re-entrant Acquire is not detected: it blocks like any contended
// acquire. The underlying mutual
// exclusion is a sync.Mutex — the same primitive the teacher reaches for
// throughout (biscuit/src/mem/mem.go, vm/as.go, accnt/accnt.go) now that a
// CPU is a goroutine rather than a physical core spinning in assembly.
// Grounded on original_source/spinlock.c for the pushcli/popcli semantics;
// held-lock call-stack capture is delegated to internal/caller, itself
// adapted from biscuit/src/caller/caller.go's Callerdump.
package spinlock

import (
	"sync"

	"github.com/j-gatsby/biscuit/internal/caller"
	"github.com/j-gatsby/biscuit/internal/klog"
)

// Cli tracks one CPU's interrupt-disable nesting depth. cpu.T embeds one
// Cli per CPU, so pushcli/popcli nest across every bracket taken on that
// CPU rather than per lock.
type Cli struct {
	mu    sync.Mutex
	depth int
	saved bool // interrupt-enable state from before the outermost pushcli
}

// Pushcli increments the disable depth, remembering the true interrupt
// state the first time depth goes from 0 to 1.
func (c *Cli) Pushcli(wasEnabled bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.depth == 0 {
		c.saved = wasEnabled
	}
	c.depth++
}

// Popcli decrements the disable depth and reports whether interrupts
// should be re-enabled now that depth has reached zero.
func (c *Cli) Popcli() (reenable bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.depth == 0 {
		klog.Panicf("spinlock: popcli: popped below zero")
	}
	c.depth--
	return c.depth == 0 && c.saved
}

// Depth reports the current nesting depth, for tests and panic diagnostics.
func (c *Cli) Depth() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.depth
}

// Lock_t is a mutual-exclusion lock identified by name for diagnostics,
// with an optional captured call stack recorded at acquire time.
type Lock_t struct {
	Name string

	mu sync.Mutex

	// Trace, when true, records the acquirer's call stack until Release
	// clears it; no code path reads the record. Off by default;
	// Callerdump-style tracing is expensive.
	Trace bool
	stack string
}

// Acquire takes the lock. Unlike the original assembly, a CPU here is a
// goroutine rather than a physical core that must stop servicing
// interrupts while spinning, so Acquire does not itself push a cli frame;
// cpu.T's Pushcli/Popcli bracket trap handling instead, at the one place
// interrupt delivery is actually simulated (trap.Dispatcher_t.Dispatch).
func (l *Lock_t) Acquire() {
	l.mu.Lock()
	if l.Trace {
		l.stack = caller.Stack(2)
	}
}

// Release gives up the lock.
func (l *Lock_t) Release() {
	l.stack = ""
	l.mu.Unlock()
}

// Holding reports whether the lock is currently held, without blocking.
// Matches the teacher's habit (e.g. accnt.go) of using TryLock-shaped
// checks for assertions rather than control flow.
func (l *Lock_t) Holding() bool {
	if l.mu.TryLock() {
		l.mu.Unlock()
		return false
	}
	return true
}
