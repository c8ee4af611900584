// Package sched implements the per-CPU scheduler loop together with
// sched/yield/sleep/wakeup and forkret. Each process is a goroutine that
// owns exactly one kernel-thread-of-control; swtch(&from, to) becomes a
// pair of unbuffered channel operations (Proc_t.Resume/Done) handed
// between that goroutine and the CPU goroutine running Scheduler — the
// channel send only unblocks once the receiver is ready, which is exactly
// the synchronous baton-pass swtch performs in assembly. Grounded on
// original_source/proc.c's scheduler/sched/sleep/wakeup/forkret and on
// spec.md §4.4.
package sched

import (
	"runtime"
	"sync"

	"github.com/j-gatsby/biscuit/internal/cpu"
	"github.com/j-gatsby/biscuit/internal/defs"
	"github.com/j-gatsby/biscuit/internal/klog"
	"github.com/j-gatsby/biscuit/internal/proc"
	"github.com/j-gatsby/biscuit/internal/spinlock"
)

var forkretOnce sync.Once

// OnForkretOnce runs once, the first time any process's kernel thread is
// entered for the first time — the simulation's stand-in for the original
// iinit/initlog calls forkret makes on the system's very first thread
// entry. A caller that needs deferred-but-sleepable init work done sets
// this before booting; nothing in this repository sets it.
var OnForkretOnce = func() {}

// Start launches p's kernel thread as a goroutine. It must be called
// exactly once per slot, right after Allocproc/Userinit/Fork succeeds and
// before the slot can be picked up by Scheduler.
func Start(t *proc.Table_t, p *proc.Proc_t) {
	go func() {
		<-p.Resume
		forkret(t, p)
		if p.Body != nil {
			p.Body(p)
		}
		if p == t.Init {
			// Exiting init is fatal, so an init Body that returns parks
			// here instead, sleeping on its own channel for good.
			t.Lock.Acquire()
			for {
				Sleep(t, p, p, &t.Lock)
			}
		}
		// Any other Body that returns without calling Exit is exited on
		// its behalf rather than leaving a RUNNING slot stuck forever.
		Exit(t, p)
	}()
}

// forkret is every kernel thread's first "return": it releases the
// ptable.lock the scheduler was holding when it resumed this slot.
func forkret(t *proc.Table_t, p *proc.Proc_t) {
	t.Lock.Release()
	forkretOnce.Do(OnForkretOnce)
}

// schedSwitch is sched(): it hands control back to whichever CPU
// goroutine is waiting on p.Done, then blocks until that CPU goroutine
// (or another) resumes this slot. Precondition: caller holds t.Lock,
// p.State is not RUNNING, and this goroutine is not about to touch t.Lock
// again until Resume fires.
func schedSwitch(p *proc.Proc_t) {
	p.Done <- struct{}{}
	<-p.Resume
}

// Scheduler is the per-CPU loop: forever scan for a RUNNABLE slot, run it
// to its next suspension point, repeat. One goroutine per simulated CPU;
// multiple CPUs share t.Lock exactly as multiple cores share ptable.lock.
func Scheduler(t *proc.Table_t, c *cpu.T) {
	c.Started = true
	for {
		t.Lock.Acquire()
		for i := range t.Procs {
			p := &t.Procs[i]
			if p.State != proc.RUNNABLE {
				continue
			}
			c.Proc = p
			p.State = proc.RUNNING
			start := p.Accnt.Now()
			p.Resume <- struct{}{}
			<-p.Done
			p.Accnt.Utadd(p.Accnt.Now() - start)
			c.Proc = nil
		}
		t.Lock.Release()
		runtime.Gosched()
	}
}

// Yield gives up the CPU for one scheduling round.
func Yield(t *proc.Table_t, p *proc.Proc_t) {
	t.Lock.Acquire()
	p.State = proc.RUNNABLE
	schedSwitch(p)
	t.Lock.Release()
}

// Sleep atomically releases lk (unless it is already t.Lock) and blocks p
// until a Wakeup call names chan_. It reacquires lk before returning, so
// to the caller Sleep behaves like a restartable, lock-respecting wait.
func Sleep(t *proc.Table_t, p *proc.Proc_t, chan_ interface{}, lk *spinlock.Lock_t) {
	if p == nil {
		klog.Panicf("sched: sleep with no current process")
	}
	if lk == nil {
		klog.Panicf("sched: sleep without a lock")
	}
	if lk != &t.Lock {
		t.Lock.Acquire()
		lk.Release()
	}
	p.SleepChan = chan_
	p.State = proc.SLEEPING
	schedSwitch(p)
	p.SleepChan = nil
	if lk != &t.Lock {
		t.Lock.Release()
		lk.Acquire()
	}
}

// wakeupLocked promotes every SLEEPING process waiting on chan_ to
// RUNNABLE. Caller must hold t.Lock.
func wakeupLocked(t *proc.Table_t, chan_ interface{}) {
	for i := range t.Procs {
		c := &t.Procs[i]
		if c.State == proc.SLEEPING && c.SleepChan == chan_ {
			c.State = proc.RUNNABLE
		}
	}
}

// Wakeup wakes every sleeper on chan_.
func Wakeup(t *proc.Table_t, chan_ interface{}) {
	t.Lock.Acquire()
	wakeupLocked(t, chan_)
	t.Lock.Release()
}

// Fork creates a child of parent running childBody and returns its pid.
// The parent observes this as fork()'s return value; the child never
// "returns" from fork at all — its kernel thread simply begins at
// childBody, which is this simulation's replacement for a cleared %eax.
func Fork(t *proc.Table_t, parent *proc.Proc_t, childBody proc.Body) (defs.Pid_t, bool) {
	np, ok := t.Fork(parent, childBody)
	if !ok {
		return 0, false
	}
	Start(t, np)
	return np.Pid, true
}

// Exit tears down p: closes out its lifecycle bookkeeping, wakes its
// parent, reparents its children to init, marks it ZOMBIE, and switches
// away for the last time. Exiting the init process is a fatal kernel
// error. Exit never returns to its caller.
func Exit(t *proc.Table_t, p *proc.Proc_t) {
	if p == t.Init {
		klog.Panicf("sched: init exiting")
	}
	p.CloseFds()

	t.Lock.Acquire()
	wakeupLocked(t, p.Parent)
	for i := range t.Procs {
		c := &t.Procs[i]
		if c.Parent == p {
			c.Parent = t.Init
			if c.State == proc.ZOMBIE {
				wakeupLocked(t, t.Init)
			}
		}
	}
	p.State = proc.ZOMBIE
	schedSwitch(p)
	klog.Panicf("sched: zombie exit")
}

// Wait blocks p until one of its children becomes a ZOMBIE, reaps it, and
// returns its pid. Returns false if p has no children or has been killed.
func Wait(t *proc.Table_t, p *proc.Proc_t) (defs.Pid_t, bool) {
	t.Lock.Acquire()
	for {
		havekids := false
		for i := range t.Procs {
			c := &t.Procs[i]
			if c.Parent != p {
				continue
			}
			havekids = true
			if c.State == proc.ZOMBIE {
				pid := t.Reap(c)
				t.Lock.Release()
				return pid, true
			}
		}
		if !havekids || p.Killed {
			t.Lock.Release()
			return 0, false
		}
		Sleep(t, p, p, &t.Lock)
	}
}
