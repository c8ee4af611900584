package ide

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/j-gatsby/biscuit/internal/cpu"
	"github.com/j-gatsby/biscuit/internal/mem"
	"github.com/j-gatsby/biscuit/internal/proc"
	"github.com/j-gatsby/biscuit/internal/sched"
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

// TestIderwWriteThenReadRoundtrips drives a write, then a fresh read of the
// same block, through a real process body running under the scheduler, since
// Iderw blocks via sched.Sleep.
func TestIderwWriteThenReadRoundtrips(t *testing.T) {
	tbl := freshTable(t, 4)
	path := filepath.Join(t.TempDir(), "disk.img")
	d, err := Open(path, 4, tbl)
	require.NoError(t, err)
	defer d.Close()

	resultCh := make(chan string, 1)
	initBody := func(p *proc.Proc_t) {
		wb := d.NewBuf(0, 1)
		wb.Lock.Acquire(p)
		copy(wb.Data[:], []byte("hello disk"))
		wb.SetDirty()
		d.Iderw(p, wb)
		wb.Lock.Release()

		rb := d.NewBuf(0, 1)
		rb.Lock.Acquire(p)
		d.Iderw(p, rb)
		rb.Lock.Release()

		if string(rb.Data[:10]) != "hello disk" {
			resultCh <- "mismatch: " + string(rb.Data[:10])
			return
		}
		resultCh <- "ok"
	}

	p, ok := tbl.Userinit(nil, []byte{0}, initBody)
	require.True(t, ok, "Userinit failed")
	go sched.Scheduler(tbl, cpu.New(0))
	sched.Start(tbl, p)

	select {
	case got := <-resultCh:
		require.Equal(t, "ok", got)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for disk round trip")
	}
}

func TestIderwPanicsWithoutLock(t *testing.T) {
	tbl := freshTable(t, 1)
	path := filepath.Join(t.TempDir(), "disk.img")
	d, err := Open(path, 4, tbl)
	require.NoError(t, err)
	defer d.Close()

	b := d.NewBuf(0, 0)
	b.SetDirty()
	require.Panics(t, func() {
		d.Iderw(&proc.Proc_t{}, b)
	}, "Iderw did not panic when called without holding the buffer's lock")
}
