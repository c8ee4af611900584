// Package sleeplock implements the kernel's long-term mutex: unlike a spin
// lock, a contended sleeplock parks the caller instead of busy-waiting, so
// it may be held across blocking operations (disk I/O, inode reads).
// Grounded on spec.md §3's "Sleep lock" data model entry and restyled
// after the teacher's buffer locking in biscuit/src/fs/blk.go, which pairs
// a sync.Mutex-guarded flag with a condition-variable-shaped wait. Unlike
// spinlock.Lock_t, Acquire names its calling process explicitly (there is
// no hardware "current process" register to consult), the same convention
// pipe and ide already use for their blocking calls; Release takes no
// process.
package sleeplock

import (
	"github.com/j-gatsby/biscuit/internal/proc"
	"github.com/j-gatsby/biscuit/internal/sched"
	"github.com/j-gatsby/biscuit/internal/spinlock"
)

// Lock_t is a sleep lock: a boolean guarded by a spin lock, with the lock's
// own address used as the sleep channel.
type Lock_t struct {
	Name string

	guard  spinlock.Lock_t
	locked bool
	table  *proc.Table_t
}

// New returns an unlocked sleep lock whose contended acquirers park via t.
func New(name string, t *proc.Table_t) *Lock_t {
	return &Lock_t{Name: name, guard: spinlock.Lock_t{Name: name + ".guard"}, table: t}
}

// Acquire blocks cur until the lock is free, then takes it.
func (l *Lock_t) Acquire(cur *proc.Proc_t) {
	l.guard.Acquire()
	for l.locked {
		sched.Sleep(l.table, cur, l, &l.guard)
	}
	l.locked = true
	l.guard.Release()
}

// Release gives up the lock and wakes any parked acquirers.
func (l *Lock_t) Release() {
	l.guard.Acquire()
	l.locked = false
	l.guard.Release()
	sched.Wakeup(l.table, l)
}

// Holding reports whether the lock is currently held, without blocking.
func (l *Lock_t) Holding() bool {
	l.guard.Acquire()
	defer l.guard.Release()
	return l.locked
}
