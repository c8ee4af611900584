package sched

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/j-gatsby/biscuit/internal/cpu"
	"github.com/j-gatsby/biscuit/internal/defs"
	"github.com/j-gatsby/biscuit/internal/mem"
	"github.com/j-gatsby/biscuit/internal/proc"
	"github.com/j-gatsby/biscuit/internal/vm"
)

func freshTable(t *testing.T, n int) *proc.Table_t {
	t.Helper()
	size := 4 * 1024 * 1024
	kernelEnd := mem.Pa_t(mem.PGSIZE * 4)
	m := mem.NewPhysmem(size, kernelEnd)
	m.Kinit1(kernelEnd, mem.Pa_t(size))
	m.Kinit2(mem.Pa_t(size), mem.Pa_t(size))
	return proc.NewTable(n, vm.New(m))
}

// TestForkExitWaitReapsZombie mirrors the zombie-reaper scenario: a parent
// forks a child that exits immediately, then waits and reaps it.
func TestForkExitWaitReapsZombie(t *testing.T) {
	tbl := freshTable(t, 4)
	type outcome struct {
		pid defs.Pid_t
		ok  bool
	}
	resultCh := make(chan outcome, 1)

	initBody := func(p *proc.Proc_t) {
		childPid, ok := Fork(tbl, p, func(*proc.Proc_t) {})
		if !ok {
			resultCh <- outcome{0, false}
			return
		}
		reaped, ok := Wait(tbl, p)
		if reaped != childPid {
			ok = false
		}
		resultCh <- outcome{reaped, ok}
	}

	p, ok := tbl.Userinit(nil, []byte{0}, initBody)
	require.True(t, ok, "Userinit failed")
	go Scheduler(tbl, cpu.New(0))
	Start(tbl, p)

	select {
	case got := <-resultCh:
		require.True(t, got.ok, "fork/wait did not succeed: %+v", got)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for fork/exit/wait to complete")
	}

	userns, _ := p.Accnt.Snapshot()
	require.Greater(t, userns, int64(0), "Scheduler did not charge any user time to the process it ran")
}

// TestWaitReturnsFalseWithNoChildren checks that a process with nothing to
// reap does not block forever.
func TestWaitReturnsFalseWithNoChildren(t *testing.T) {
	tbl := freshTable(t, 4)
	resultCh := make(chan bool, 1)

	initBody := func(p *proc.Proc_t) {
		_, ok := Wait(tbl, p)
		resultCh <- ok
	}

	p, ok := tbl.Userinit(nil, []byte{0}, initBody)
	require.True(t, ok, "Userinit failed")
	go Scheduler(tbl, cpu.New(0))
	Start(tbl, p)

	select {
	case got := <-resultCh:
		require.False(t, got, "Wait reported success for a process with no children")
	case <-time.After(2 * time.Second):
		t.Fatal("timed out: Wait blocked forever instead of returning false")
	}
}

// TestKillWakesSleeper exercises the killed-during-sleep scenario: a
// sleeping process observes Killed and stops waiting once woken.
func TestKillWakesSleeper(t *testing.T) {
	tbl := freshTable(t, 4)
	doneCh := make(chan bool, 1)
	var chanKey int

	initBody := func(p *proc.Proc_t) {
		tbl.Lock.Acquire()
		Sleep(tbl, p, &chanKey, &tbl.Lock)
		doneCh <- p.Killed
	}

	p, ok := tbl.Userinit(nil, []byte{0}, initBody)
	require.True(t, ok, "Userinit failed")
	go Scheduler(tbl, cpu.New(0))
	Start(tbl, p)

	time.Sleep(50 * time.Millisecond) // let it reach Sleep
	require.True(t, tbl.Kill(p.Pid), "Kill reported failure")

	select {
	case killed := <-doneCh:
		require.True(t, killed, "process woke up but Killed was not observed as true")
	case <-time.After(2 * time.Second):
		t.Fatal("timed out: killing a sleeper did not wake it")
	}
}
