// Package selftest runs the allocator and virtual-memory invariant
// checks spec.md §8.1's boot scenario describes, standalone, so
// `biscuitctl fsck` can exercise them without booting the full scheduler.
// Grounded on spec.md §8's testable properties and original_source's
// kinit1/kinit2 free-list accounting.
package selftest

import (
	"fmt"

	"github.com/j-gatsby/biscuit/internal/layout"
	"github.com/j-gatsby/biscuit/internal/mem"
	"github.com/j-gatsby/biscuit/internal/vm"
)

// Result is one invariant check's outcome.
type Result struct {
	Name string
	Err  error
}

// Run exercises the allocator and page-table invariants against a fresh
// arena of physTopMB megabytes, returning one Result per check in a fixed
// order so callers (tests, biscuitctl fsck) get a stable report.
func Run(physTopMB int) []Result {
	size := physTopMB * 1024 * 1024
	kernelEnd := mem.Pa_t(layout.EXTMEM)
	m := mem.NewPhysmem(size, kernelEnd)
	m.Kinit1(kernelEnd, mem.Pa_t(size))
	m.Kinit2(mem.Pa_t(size), mem.Pa_t(size))

	return []Result{
		checkFreeListSize(m, size, kernelEnd),
		checkAllocFreeRoundtrip(m),
		checkFillByteOnFree(m),
		checkPageTableWalk(m),
		checkAllocuvmBoundsKernbase(m),
	}
}

func checkFreeListSize(m *mem.Physmem_t, size int, kernelEnd mem.Pa_t) Result {
	want := (size - int(kernelEnd)) / mem.PGSIZE
	got := m.Nfree()
	if got != want {
		return Result{"free-list-size", fmt.Errorf("got %d frames free, want %d", got, want)}
	}
	return Result{"free-list-size", nil}
}

func checkAllocFreeRoundtrip(m *mem.Physmem_t) Result {
	before := m.Nfree()
	pa, ok := m.Kalloc()
	if !ok {
		return Result{"alloc-free-roundtrip", fmt.Errorf("kalloc failed with %d frames free", before)}
	}
	if m.Nfree() != before-1 {
		return Result{"alloc-free-roundtrip", fmt.Errorf("nfree did not drop by one after kalloc")}
	}
	m.Kfree(pa)
	if m.Nfree() != before {
		return Result{"alloc-free-roundtrip", fmt.Errorf("nfree did not return to %d after kfree", before)}
	}
	return Result{"alloc-free-roundtrip", nil}
}

func checkFillByteOnFree(m *mem.Physmem_t) Result {
	pa, ok := m.Kalloc()
	if !ok {
		return Result{"fill-byte-on-free", fmt.Errorf("kalloc failed")}
	}
	frame := m.Frame(pa)
	for i := range frame {
		frame[i] = 0xAB
	}
	m.Kfree(pa)
	for i, b := range frame {
		if b != 0x01 {
			return Result{"fill-byte-on-free", fmt.Errorf("byte %d is %#x, want fill byte 0x01", i, b)}
		}
	}
	return Result{"fill-byte-on-free", nil}
}

func checkPageTableWalk(m *mem.Physmem_t) Result {
	v := vm.New(m)
	pgdir, ok := v.Setupkvm(nil)
	if !ok {
		return Result{"page-table-walk", fmt.Errorf("setupkvm failed")}
	}
	defer v.Freevm(pgdir, 0)

	pa, ok := m.Kalloc()
	if !ok {
		return Result{"page-table-walk", fmt.Errorf("kalloc failed")}
	}
	if !v.MapRange(pgdir, 0, mem.PGSIZE, pa, vm.PTE_W|vm.PTE_U) {
		return Result{"page-table-walk", fmt.Errorf("maprange failed")}
	}
	got, ok := v.Uva2ka(pgdir, 0)
	if !ok {
		return Result{"page-table-walk", fmt.Errorf("uva2ka found nothing at va 0")}
	}
	if got != m.Frame(pa) {
		return Result{"page-table-walk", fmt.Errorf("uva2ka returned the wrong frame")}
	}
	return Result{"page-table-walk", nil}
}

func checkAllocuvmBoundsKernbase(m *mem.Physmem_t) Result {
	v := vm.New(m)
	pgdir, ok := v.Setupkvm(nil)
	if !ok {
		return Result{"allocuvm-kernbase-bound", fmt.Errorf("setupkvm failed")}
	}
	defer v.Freevm(pgdir, 0)

	_, ok = v.Allocuvm(pgdir, 0, layout.KERNBASE+mem.PGSIZE, layout.KERNBASE)
	if ok {
		return Result{"allocuvm-kernbase-bound", fmt.Errorf("allocuvm grew past kernbase")}
	}
	return Result{"allocuvm-kernbase-bound", nil}
}
