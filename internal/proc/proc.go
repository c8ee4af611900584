// Package proc implements the process table: the fixed array of process
// slots, PID allocation, and the lifecycle operations (allocproc,
// userinit, fork, growproc, kill, and Reap for wait's slot teardown) that
// build and tear down process state. The scheduler loop, sleep/wakeup
// rendezvous, exit and wait, which also touch
// ptable.lock live in sched, which imports this package — kept apart
// because spec.md treats the process table and the scheduler as separate,
// if mutually dependent, modules. Grounded on original_source/proc.c.
package proc

import (
	"github.com/j-gatsby/biscuit/internal/accnt"
	"github.com/j-gatsby/biscuit/internal/defs"
	"github.com/j-gatsby/biscuit/internal/klog"
	"github.com/j-gatsby/biscuit/internal/mem"
	"github.com/j-gatsby/biscuit/internal/spinlock"
	"github.com/j-gatsby/biscuit/internal/vm"
)

// State is a process's position in the lifecycle spec.md §3 describes.
type State int

const (
	UNUSED State = iota
	EMBRYO
	SLEEPING
	RUNNABLE
	RUNNING
	ZOMBIE
)

func (s State) String() string {
	switch s {
	case UNUSED:
		return "UNUSED"
	case EMBRYO:
		return "EMBRYO"
	case SLEEPING:
		return "SLEEPING"
	case RUNNABLE:
		return "RUNNABLE"
	case RUNNING:
		return "RUNNING"
	case ZOMBIE:
		return "ZOMBIE"
	default:
		return "???"
	}
}

// Body is the kernel-thread entry point for a process: the code that runs
// on its (simulated) kernel stack between forkret and the next voluntary
// sched(). init's shell loop, a forked child, and this port's test
// harnesses are all just distinct Body values.
type Body func(p *Proc_t)

// FdSlot is the minimal surface an open file descriptor must expose to the
// process table: enough to duplicate it across fork and close it on exit,
// without this package importing fd (fd needs FdSlot's concrete type to
// implement it, so the dependency can only run one way). Grounded on
// fd.go's Copyfd/Close_panic call sites (biscuit/src/fd/fd.go).
type FdSlot interface {
	Dup() (FdSlot, defs.Err_t)
	Close() defs.Err_t
}

// Proc_t is one process-table slot.
type Proc_t struct {
	Pid    defs.Pid_t
	State  State
	Parent *Proc_t

	Kstack mem.Pa_t // frame backing the kernel stack, owned by this slot
	Pgdir  mem.Pa_t
	Sz     uint32 // bytes of user memory, [0, Sz)

	SleepChan interface{} // opaque rendezvous identity; nil when not sleeping
	Killed    bool
	Name      string
	Cwd       string // external inode handle stands in as a path string here

	Fds []FdSlot

	// Accnt is a pointer, not a value, so that Reap's *c = Proc_t{} reset
	// doesn't copy the mutex embedded in accnt.Accnt_t.
	Accnt *accnt.Accnt_t

	Body Body

	// Resume/Done are the handoff channels sched uses to switch between
	// this process's goroutine and the CPU's scheduler goroutine, playing
	// the role of swtch(&from, to) in the original assembly.
	Resume chan struct{}
	Done   chan struct{}
}

// CloseFds closes every open descriptor, ignoring individual close errors
// the way exit() does — once a process is exiting there is no caller left
// to report a failed close to.
func (p *Proc_t) CloseFds() {
	for _, f := range p.Fds {
		if f != nil {
			f.Close()
		}
	}
	p.Fds = nil
}

// OnCPU satisfies cpu.ProcRef.
func (p *Proc_t) OnCPU() bool { return p.State == RUNNING }

// Table_t is the process table: a fixed slot array plus the lock guarding
// every state transition, matching the teacher's and xv6's single global
// ptable.
type Table_t struct {
	Lock spinlock.Lock_t

	Procs   []Proc_t
	nextPid defs.Pid_t
	Init    *Proc_t

	VM   *vm.VM_t
	Kmap []byte // opaque; real kernel-map rows live behind vm.KernelMap
}

// NewTable allocates a process table with n slots.
func NewTable(n int, v *vm.VM_t) *Table_t {
	return &Table_t{
		Lock:  spinlock.Lock_t{Name: "ptable"},
		Procs: make([]Proc_t, n),
		VM:    v,
	}
}

// Allocproc scans for an UNUSED slot, marks it EMBRYO, assigns the next
// PID, and allocates its kernel-stack frame. Returns nil, false if the
// table is full or the allocator is exhausted.
func (t *Table_t) Allocproc() (*Proc_t, bool) {
	t.Lock.Acquire()
	var p *Proc_t
	for i := range t.Procs {
		if t.Procs[i].State == UNUSED {
			p = &t.Procs[i]
			break
		}
	}
	if p == nil {
		t.Lock.Release()
		return nil, false
	}
	p.State = EMBRYO
	t.nextPid++
	p.Pid = t.nextPid
	t.Lock.Release()

	kstack, ok := t.VM.Phys.Kalloc()
	if !ok {
		p.State = UNUSED
		return nil, false
	}
	p.Kstack = kstack
	p.Resume = make(chan struct{})
	p.Done = make(chan struct{})
	p.Accnt = &accnt.Accnt_t{}
	return p, true
}

// Userinit creates the first process: a fresh kernel directory, the
// embedded initcode blob mapped at virtual address 0, and cwd "/". The
// slot is left RUNNABLE for the scheduler to pick up.
func (t *Table_t) Userinit(kmap []byte, initcode []byte, body Body) (*Proc_t, bool) {
	p, ok := t.Allocproc()
	if !ok {
		return nil, false
	}
	pgdir, ok := t.VM.Setupkvm(nil)
	if !ok {
		klog.Panicf("proc: userinit: out of memory")
	}
	if !t.VM.Inituvm(pgdir, initcode) {
		klog.Panicf("proc: userinit: out of memory")
	}
	p.Pgdir = pgdir
	p.Sz = mem.PGSIZE
	p.Name = "initcode"
	p.Cwd = "/"
	p.Body = body

	t.Lock.Acquire()
	p.State = RUNNABLE
	t.Init = p
	t.Lock.Release()
	return p, true
}

// Fork allocates a new slot, copies parent's address space via Copyuvm,
// duplicates its bookkeeping, and marks the child RUNNABLE. There is no
// saved return register to clear: sched.Fork starts the child's kernel
// thread at body.
func (t *Table_t) Fork(parent *Proc_t, body Body) (*Proc_t, bool) {
	np, ok := t.Allocproc()
	if !ok {
		return nil, false
	}
	pgdir, ok := t.VM.Copyuvm(parent.Pgdir, parent.Sz, nil)
	if !ok {
		t.VM.Phys.Kfree(np.Kstack)
		np.State = UNUSED
		return nil, false
	}
	np.Pgdir = pgdir
	np.Sz = parent.Sz
	np.Parent = parent
	np.Name = parent.Name
	np.Cwd = parent.Cwd
	np.Body = body

	np.Fds = make([]FdSlot, len(parent.Fds))
	for i, f := range parent.Fds {
		if f == nil {
			continue
		}
		dup, err := f.Dup()
		if err != 0 {
			for _, d := range np.Fds {
				if d != nil {
					d.Close()
				}
			}
			t.VM.Freevm(np.Pgdir, np.Sz)
			t.VM.Phys.Kfree(np.Kstack)
			np.State = UNUSED
			return nil, false
		}
		np.Fds[i] = dup
	}

	t.Lock.Acquire()
	np.State = RUNNABLE
	t.Lock.Release()
	return np, true
}

// Growproc grows or shrinks p's memory by n bytes using allocuvm/
// deallocuvm. kernbase bounds how large user memory may grow.
func (t *Table_t) Growproc(p *Proc_t, n int32, kernbase uint32) bool {
	sz := p.Sz
	if n > 0 {
		newsz, ok := t.VM.Allocuvm(p.Pgdir, sz, sz+uint32(n), kernbase)
		if !ok {
			return false
		}
		sz = newsz
	} else if n < 0 {
		sz = t.VM.Deallocuvm(p.Pgdir, sz, sz-uint32(-n))
	}
	p.Sz = sz
	return true
}

// Kill marks pid as killed. A SLEEPING target is promoted to RUNNABLE so
// it observes the flag at its next wakeup.
func (t *Table_t) Kill(pid defs.Pid_t) bool {
	t.Lock.Acquire()
	defer t.Lock.Release()
	for i := range t.Procs {
		c := &t.Procs[i]
		if c.Pid == pid {
			c.Killed = true
			if c.State == SLEEPING {
				c.State = RUNNABLE
			}
			return true
		}
	}
	return false
}

// Reap clears a ZOMBIE slot back to UNUSED, freeing its kernel stack and
// page tables. Caller must hold t.Lock.
func (t *Table_t) Reap(c *Proc_t) defs.Pid_t {
	pid := c.Pid
	t.VM.Phys.Kfree(c.Kstack)
	t.VM.Freevm(c.Pgdir, c.Sz)
	if c.Parent != nil && c.Parent.Accnt != nil {
		c.Parent.Accnt.Add(c.Accnt)
	}
	*c = Proc_t{}
	return pid
}
