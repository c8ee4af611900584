// Package cpu models one virtual CPU: the per-core state the scheduler and
// trap dispatcher consult to decide what runs next. On real hardware this
// would be a struct addressed via a segment-relative pointer; here each CPU
// is a goroutine that owns exactly one cpu.T for its lifetime, so the
// "thread-local" pointers the teacher implements with inline assembly
// (biscuit's per-CPU gs-relative access) become an ordinary field threaded
// through function calls. Grounded on spec.md's CPU-local record (§3) and
// original_source/proc.h's struct cpu.
package cpu

import (
	"github.com/j-gatsby/biscuit/internal/spinlock"
)

// Ctx_t is the saved register context restored by a context switch. The
// real kernel saves callee-saved registers plus the return EIP; the
// simulation instead hands control back and forth over a channel, so Ctx_t
// exists only to preserve the shape of switch(&from, to) call sites.
// forkret's one-time bookkeeping lives in sched, behind a sync.Once.
type Ctx_t struct {
	resume chan struct{}
}

// T is one CPU's local record.
type T struct {
	ID      int
	Started bool

	Cli spinlock.Cli // nested interrupt-disable depth for this CPU

	// IntEnaSaved mirrors the teacher's cpu.Intena field. Nothing in this
	// port sets or reads it: sched's context switch does not save the
	// interrupt-enable state.
	IntEnaSaved bool

	Proc      ProcRef // current process running on this CPU, or nil
	scheduler Ctx_t
}

// ProcRef is satisfied by *proc.Proc_t. Declared as an interface here so
// cpu does not import proc: cpu only needs to hold an opaque reference.
type ProcRef interface {
	OnCPU() bool
}

// New returns an initialized, not-yet-started CPU record.
func New(id int) *T {
	return &T{ID: id, scheduler: Ctx_t{resume: make(chan struct{})}}
}

// Pushcli disables interrupts (conceptually) and bumps the nesting depth.
func (c *T) Pushcli(wasEnabled bool) {
	c.Cli.Pushcli(wasEnabled)
}

// Popcli pops one interrupt-disable frame, returning whether interrupts
// should now be re-enabled.
func (c *T) Popcli() bool {
	return c.Cli.Popcli()
}

// NestDepth reports the current pushcli nesting depth.
func (c *T) NestDepth() int {
	return c.Cli.Depth()
}
