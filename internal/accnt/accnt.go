/**
 * Package accnt accumulates per-process CPU-time accounting: how long a
 * process has spent running versus servicing its own syscalls, counters
 * that Snapshot reports and proc.Reap folds into the parent. Adapted from
 * biscuit/src/accnt/accnt.go, trimmed to the two counters this port
 * actually drives (the original's rusage byte-serialization assumed a
 * struct-rusage ABI no syscall here emits).
 */
package accnt

import (
	"sync"
	"sync/atomic"
	"time"
)

// Accnt_t holds one process's runtime and syscall-time counters, both in
// nanoseconds. The embedded mutex lets a reporting caller take a
// consistent snapshot of both fields together.
type Accnt_t struct {
	/// Nanoseconds spent running user code.
	Userns int64
	/// Nanoseconds spent inside syscalls on this process's behalf.
	Sysns int64
	sync.Mutex
}

// Utadd adds delta nanoseconds to the user-time counter.
func (a *Accnt_t) Utadd(delta int64) {
	atomic.AddInt64(&a.Userns, delta)
}

// Systadd adds delta nanoseconds to the system-time counter.
func (a *Accnt_t) Systadd(delta int64) {
	atomic.AddInt64(&a.Sysns, delta)
}

// Now returns the current time in nanoseconds since the Unix epoch, the
// timestamp callers pass back into Finish.
func (a *Accnt_t) Now() int64 {
	return time.Now().UnixNano()
}

// Finish adds the time elapsed since start to the system-time counter,
// called when a syscall handler returns.
func (a *Accnt_t) Finish(start int64) {
	a.Systadd(a.Now() - start)
}

// Add merges another process's accounting into this one, used when a
// reaped zombie's usage is folded into its parent (a future wait4/rusage
// syscall would read this).
func (a *Accnt_t) Add(n *Accnt_t) {
	a.Lock()
	defer a.Unlock()
	a.Userns += n.Userns
	a.Sysns += n.Sysns
}

// Snapshot returns a consistent copy of the two counters.
func (a *Accnt_t) Snapshot() (userns, sysns int64) {
	a.Lock()
	defer a.Unlock()
	return a.Userns, a.Sysns
}
