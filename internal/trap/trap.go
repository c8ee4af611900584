// Package trap implements the trap dispatcher: the routing layer spec.md
// §4.5 describes between a hardware interrupt or the syscall vector and
// the subsystem that handles it. There is no real IDT or CPU trap gate in
// this simulation — the dispatcher's callers are the timer-ticker
// goroutine standing in for the clock interrupt and the syscall entry
// point reached from a process body (ide's completion goroutine calls the
// driver's interrupt handler directly) —
// but the routing table, the per-tick wakeup, and the syscall argument
// helpers are faithful to original_source/trap.c and syscall.c.
package trap

import (
	"sync"

	"github.com/j-gatsby/biscuit/internal/cpu"
	"github.com/j-gatsby/biscuit/internal/defs"
	"github.com/j-gatsby/biscuit/internal/klog"
	"github.com/j-gatsby/biscuit/internal/mem"
	"github.com/j-gatsby/biscuit/internal/proc"
	"github.com/j-gatsby/biscuit/internal/sched"
	"github.com/j-gatsby/biscuit/internal/spinlock"
	"github.com/j-gatsby/biscuit/internal/util"
	"github.com/j-gatsby/biscuit/internal/vm"
)

// Trap numbers. IRQ0 is the offset hardware interrupts are remapped to,
// matching the PIC remapping original_source/trap.c relies on; TrapSyscall
// is the single software-interrupt vector user code traps through.
const (
	IRQ0 = 32

	IRQTimer    = IRQ0 + 0
	IRQKbd      = IRQ0 + 1
	IRQCOM1     = IRQ0 + 4
	IRQIDE      = IRQ0 + 14
	IRQSpurious = IRQ0 + 31

	TrapSyscall = 64
)

// Frame_t is the saved-register snapshot a trap hands the dispatcher.
// Only the fields the syscall path and argument helpers need are modeled;
// segment selectors and the general-purpose registers beyond Eax have no
// role in this port.
type Frame_t struct {
	Trapno int
	Eax    uint32 // syscall number in, return value out
	Esp    uint32 // user stack pointer; syscall arguments live just above it
}

// SyscallFunc is one entry in the syscall table: it receives the calling
// process and its trap frame (for argument fetching) and returns a value
// to store back into Eax, or an error.
type SyscallFunc func(cur *proc.Proc_t, tf *Frame_t) (uint32, defs.Err_t)

// Dispatcher_t wires the trap-number switch to the scheduler, the disk
// driver's interrupt path, and the syscall table. One Dispatcher_t is
// shared by every CPU, matching ptable/idelock's single shared instances.
type Dispatcher_t struct {
	Table *proc.Table_t
	VM    *vm.VM_t

	ticksLock spinlock.Lock_t
	ticks     uint64

	mu       sync.RWMutex
	syscalls map[int]SyscallFunc
}

// New returns a dispatcher with an empty syscall table; register entries
// with RegisterSyscall before traps start arriving.
func New(t *proc.Table_t, v *vm.VM_t) *Dispatcher_t {
	return &Dispatcher_t{
		Table:     t,
		VM:        v,
		ticksLock: spinlock.Lock_t{Name: "tickslock"},
		syscalls:  make(map[int]SyscallFunc),
	}
}

// RegisterSyscall installs fn under num, following the fixed function-table
// layout spec.md §4.5 names: fork, exit, wait, pipe, read, kill, exec,
// fstat, chdir, dup, getpid, sbrk, sleep, uptime, open, write, mknod,
// unlink, link, mkdir, close, symlink.
func (d *Dispatcher_t) RegisterSyscall(num int, fn SyscallFunc) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.syscalls[num] = fn
}

// Ticks reports the current tick count, which the uptime syscall returns.
// Each timer trap wakes sleepers on the tick channel; the sleep syscall
// yields rather than sleeping on it.
func (d *Dispatcher_t) Ticks() uint64 {
	d.ticksLock.Acquire()
	defer d.ticksLock.Release()
	return d.ticks
}

// Dispatch routes one trap for cur, taken on c. fromUser distinguishes a
// trap taken while running user code (syscalls are only ever fromUser)
// from one taken in kernel context, per spec.md §4.5's kernel-panic-vs-
// mark-killed split for unknown trap numbers. A real trap gate disables
// interrupts before the handler runs; c.Pushcli/Popcli reproduce that
// bookkeeping on the CPU's nested-cli depth for the duration of the call.
func (d *Dispatcher_t) Dispatch(c *cpu.T, cur *proc.Proc_t, tf *Frame_t, fromUser bool) {
	c.Pushcli(false)
	defer c.Popcli()

	switch {
	case tf.Trapno == TrapSyscall:
		if cur.Killed {
			sched.Exit(d.Table, cur)
			return
		}
		d.syscall(cur, tf)
		if cur.Killed {
			sched.Exit(d.Table, cur)
			return
		}

	case tf.Trapno == IRQTimer:
		d.ticksLock.Acquire()
		d.ticks++
		d.ticksLock.Release()
		sched.Wakeup(d.Table, &d.ticks)

	case tf.Trapno == IRQIDE:
		// The disk's own completion goroutine (ide.Disk_t.ideintr) already
		// plays this role directly; routed here only so a caller that
		// drives traps generically has somewhere to send IRQIDE.

	case tf.Trapno == IRQKbd, tf.Trapno == IRQCOM1:
		// Keyboard/serial input is an external collaborator (spec.md §6);
		// nothing in the core consumes it yet.

	case tf.Trapno == IRQSpurious:
		// Acknowledge and ignore, same as the real PIC spurious-vector case.

	default:
		if fromUser {
			cur.Killed = true
		} else {
			klog.Panicf("trap: unexpected trap %d in kernel context", tf.Trapno)
		}
	}

	if fromUser && cur.Killed {
		sched.Exit(d.Table, cur)
		return
	}
	if fromUser && tf.Trapno == IRQTimer && cur.State == proc.RUNNING {
		sched.Yield(d.Table, cur)
	}
	if fromUser && cur.Killed {
		sched.Exit(d.Table, cur)
	}
}

func (d *Dispatcher_t) syscall(cur *proc.Proc_t, tf *Frame_t) {
	num := int(tf.Eax)
	d.mu.RLock()
	fn, ok := d.syscalls[num]
	d.mu.RUnlock()
	if !ok {
		klog.Warnf("trap: unknown syscall %d from pid %s", num, cur.Pid)
		tf.Eax = uint32(int32(-1))
		return
	}
	start := cur.Accnt.Now()
	ret, err := fn(cur, tf)
	cur.Accnt.Finish(start)
	if err != 0 {
		tf.Eax = uint32(int32(-err))
		return
	}
	tf.Eax = ret
}

// Fetchint reads a 4-byte little-endian word from user address addr,
// rejecting anything at or beyond cur's mapped size.
func (d *Dispatcher_t) Fetchint(cur *proc.Proc_t, addr uint32) (uint32, bool) {
	var buf [4]byte
	if !d.fetchBytes(cur, addr, buf[:]) {
		return 0, false
	}
	return uint32(buf[0]) | uint32(buf[1])<<8 | uint32(buf[2])<<16 | uint32(buf[3])<<24, true
}

// Fetchstr reads a NUL-terminated string starting at user address addr,
// refusing to run past cur's mapped size.
func (d *Dispatcher_t) Fetchstr(cur *proc.Proc_t, addr uint32) (string, bool) {
	if addr >= cur.Sz {
		return "", false
	}
	var out []byte
	for a := addr; a < cur.Sz; a++ {
		var b [1]byte
		if !d.fetchBytes(cur, a, b[:]) {
			return "", false
		}
		if b[0] == 0 {
			return string(out), true
		}
		out = append(out, b[0])
	}
	return "", false
}

// Argint fetches the n-th word of the syscall's argument list, which sits
// just above the return address on the user stack.
func (d *Dispatcher_t) Argint(cur *proc.Proc_t, tf *Frame_t, n int) (uint32, bool) {
	addr := tf.Esp + uint32(4+4*n)
	return d.Fetchint(cur, addr)
}

// Argptr fetches the n-th argument as a user pointer and bounds-checks
// that [ptr, ptr+size) lies entirely within cur's mapped size, returning a
// slice of the frame backing it.
func (d *Dispatcher_t) Argptr(cur *proc.Proc_t, tf *Frame_t, n int, size uint32) ([]byte, bool) {
	addr, ok := d.Argint(cur, tf, n)
	if !ok {
		return nil, false
	}
	if addr >= cur.Sz || addr+size > cur.Sz {
		return nil, false
	}
	out := make([]byte, size)
	if !d.fetchBytes(cur, addr, out) {
		return nil, false
	}
	return out, true
}

// Argstr fetches the n-th argument as a user pointer and reads it as a
// NUL-terminated string.
func (d *Dispatcher_t) Argstr(cur *proc.Proc_t, tf *Frame_t, n int) (string, bool) {
	addr, ok := d.Argint(cur, tf, n)
	if !ok {
		return "", false
	}
	return d.Fetchstr(cur, addr)
}

// fetchBytes copies len(dst) bytes starting at user address addr out of
// cur's address space, page by page via Uva2ka — the read-direction
// counterpart of vm.VM_t.Copyout.
func (d *Dispatcher_t) fetchBytes(cur *proc.Proc_t, addr uint32, dst []byte) bool {
	if addr >= cur.Sz || addr+uint32(len(dst)) > cur.Sz {
		return false
	}
	remaining := dst
	va := addr
	for len(remaining) > 0 {
		va0 := util.Rounddown(va, uint32(mem.PGSIZE))
		pg, ok := d.VM.Uva2ka(cur.Pgdir, vm.Va_t(va0))
		if !ok {
			return false
		}
		off := va - va0
		n := uint32(mem.PGSIZE) - off
		if n > uint32(len(remaining)) {
			n = uint32(len(remaining))
		}
		copy(remaining[:n], pg[off:off+n])
		remaining = remaining[n:]
		va = va0 + mem.PGSIZE
	}
	return true
}
