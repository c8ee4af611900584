// Package vm implements the two-level x86-style page table: directory and
// page-table frames drawn from mem.Physmem_t, kernel-region installation,
// and the user address-space operations (inituvm/loaduvm/allocuvm/
// deallocuvm/freevm/copyuvm/clearpteu/uva2ka/copyout) that fork, exec and
// growproc build on. Grounded on original_source/vm.c, restyled after the
// teacher's habit of attaching page-table operations to a receiver struct
// (biscuit/src/vm/as.go's Vm_t) rather than xv6's free functions taking an
// explicit pgdir argument.
package vm

import (
	"unsafe"

	"github.com/j-gatsby/biscuit/internal/klog"
	"github.com/j-gatsby/biscuit/internal/mem"
	"github.com/j-gatsby/biscuit/internal/util"
)

const (
	NPDENTRIES = 1024
	NPTENTRIES = 1024

	PTE_P = 1 << 0 // present
	PTE_W = 1 << 1 // writable
	PTE_U = 1 << 2 // user-accessible

	pteAddrMask = ^uint32(0xFFF)
)

// Va_t is a 32-bit user or kernel virtual address.
type Va_t uint32

func pdx(va Va_t) uint32 { return uint32(va) >> 22 }
func ptx(va Va_t) uint32 { return (uint32(va) >> 12) & 0x3FF }

// entries reinterprets a directory or page-table frame as 1024 PDE/PTE
// words. Grounded on the teacher's mem.Pg2pte-style reinterpretation of a
// raw frame (biscuit/src/mem/mem.go's Pg_t casts).
func entries(m *mem.Physmem_t, pa mem.Pa_t) *[NPDENTRIES]uint32 {
	return (*[NPDENTRIES]uint32)(unsafe.Pointer(m.Frame(pa)))
}

// kmapRegion is one row of the static kernel map installed into every page
// directory. Informational in this simulation — the kernel itself runs as
// ordinary Go code rather than mapped pages. KernelMap records every region
// from spec.md §4.3, but no caller passes its rows to Setupkvm and no test
// checks them.
type kmapRegion struct {
	name      string
	virtStart Va_t
	physStart mem.Pa_t
	physEnd   mem.Pa_t
	perm      uint32
}

// KernelMap describes the four static regions every directory must carry.
// Call it once PHYSTOP and the kernel image end are known.
func KernelMap(kernbase Va_t, extmem, kernlink, dataEnd, phystop mem.Pa_t, devspace Va_t) []kmapRegion {
	return []kmapRegion{
		{"io", kernbase, 0, extmem, PTE_W},
		{"text+rodata", kernbase + Va_t(uint32(kernlink)), kernlink, dataEnd, 0},
		{"data+free", kernbase + Va_t(uint32(dataEnd)), dataEnd, phystop, PTE_W},
		{"devices", devspace, mem.Pa_t(devspace), 0, PTE_W},
	}
}

// VM_t is the page-table subsystem: every operation needs the physical
// allocator to obtain and release frames.
type VM_t struct {
	Phys *mem.Physmem_t
}

// New returns a VM_t backed by m.
func New(m *mem.Physmem_t) *VM_t {
	return &VM_t{Phys: m}
}

func (vm *VM_t) zeroFrame(pa mem.Pa_t) {
	pg := vm.Phys.Frame(pa)
	for i := range pg {
		pg[i] = 0
	}
}

// Walk returns a pointer to the PTE for va within pgdir, allocating an
// intermediate page-table frame (zeroed, present+writable+user) if create
// is set and none exists yet.
func (vm *VM_t) Walk(pgdir mem.Pa_t, va Va_t, create bool) (*uint32, bool) {
	pd := entries(vm.Phys, pgdir)
	pde := &pd[pdx(va)]

	var pgtab mem.Pa_t
	if *pde&PTE_P != 0 {
		pgtab = mem.Pa_t(*pde & pteAddrMask)
	} else {
		if !create {
			return nil, false
		}
		var ok bool
		pgtab, ok = vm.Phys.Kalloc()
		if !ok {
			return nil, false
		}
		vm.zeroFrame(pgtab)
		*pde = uint32(pgtab) | PTE_P | PTE_W | PTE_U
	}
	pt := entries(vm.Phys, pgtab)
	return &pt[ptx(va)], true
}

// MapRange installs PTEs over [va, va+size) mapping to consecutive physical
// frames starting at pa, with the given permission bits. Remapping an
// already-present PTE is a fatal kernel error.
func (vm *VM_t) MapRange(pgdir mem.Pa_t, va Va_t, size uint32, pa mem.Pa_t, perm uint32) bool {
	start := Va_t(util.Rounddown(uint32(va), mem.PGSIZE))
	last := Va_t(util.Rounddown(uint32(va)+size-1, mem.PGSIZE))

	a, p := start, pa
	for {
		pte, ok := vm.Walk(pgdir, a, true)
		if !ok {
			return false
		}
		if *pte&PTE_P != 0 {
			klog.Panicf("vm: remap of va %#x", a)
		}
		*pte = uint32(p) | perm | PTE_P
		if a == last {
			break
		}
		a += mem.PGSIZE
		p += mem.PGSIZE
	}
	return true
}

// Setupkvm allocates a zeroed directory and installs the static kernel
// regions described by kmap. Every process directory is built this way;
// every caller in this port passes a nil kmap, so those directories carry
// no kernel mappings.
func (vm *VM_t) Setupkvm(kmap []kmapRegion) (mem.Pa_t, bool) {
	pgdir, ok := vm.Phys.Kalloc()
	if !ok {
		return 0, false
	}
	vm.zeroFrame(pgdir)
	for _, k := range kmap {
		size := uint32(k.physEnd - k.physStart)
		if size == 0 {
			continue
		}
		if !vm.MapRange(pgdir, k.virtStart, size, k.physStart, k.perm) {
			return 0, false
		}
	}
	return pgdir, true
}

// Inituvm allocates one frame, copies init (at most PGSIZE bytes) into it,
// and maps it at virtual address 0 with user+write permission.
func (vm *VM_t) Inituvm(pgdir mem.Pa_t, init []byte) bool {
	if len(init) > mem.PGSIZE {
		klog.Panicf("vm: inituvm: more than a page")
	}
	pa, ok := vm.Phys.Kalloc()
	if !ok {
		return false
	}
	vm.zeroFrame(pa)
	copy(vm.Phys.Frame(pa)[:], init)
	return vm.MapRange(pgdir, 0, mem.PGSIZE, pa, PTE_W|PTE_U)
}

// Reader is satisfied by the external inode collaborator; loaduvm reads
// directly from the file system, never from a byte slice already in
// memory, so it is expressed against this narrow interface instead of the
// fsiface package (which itself sits above vm).
type Reader interface {
	ReadAt(dst []byte, off int) (int, error)
}

// Loaduvm reads sz bytes from ip at offset into the already-mapped pages
// starting at page-aligned va.
func (vm *VM_t) Loaduvm(pgdir mem.Pa_t, va Va_t, ip Reader, offset, sz uint32) bool {
	if uint32(va)%mem.PGSIZE != 0 {
		klog.Panicf("vm: loaduvm: va not page aligned")
	}
	for i := uint32(0); i < sz; i += mem.PGSIZE {
		pte, ok := vm.Walk(pgdir, va+Va_t(i), false)
		if !ok {
			klog.Panicf("vm: loaduvm: address should exist")
		}
		pa := mem.Pa_t(*pte & pteAddrMask)
		n := uint32(mem.PGSIZE)
		if sz-i < n {
			n = sz - i
		}
		got, err := ip.ReadAt(vm.Phys.Frame(pa)[:n], int(offset+i))
		if err != nil || uint32(got) != n {
			return false
		}
	}
	return true
}

// Allocuvm grows the address space from oldsz to newsz, allocating and
// zeroing a frame per new page. On any allocation failure it rolls back
// via Deallocuvm and reports failure with the original size.
func (vm *VM_t) Allocuvm(pgdir mem.Pa_t, oldsz, newsz, kernbase uint32) (uint32, bool) {
	if newsz >= kernbase {
		return oldsz, false
	}
	if newsz < oldsz {
		return oldsz, true
	}
	a := util.Roundup(oldsz, uint32(mem.PGSIZE))
	for ; a < newsz; a += mem.PGSIZE {
		pa, ok := vm.Phys.Kalloc()
		if !ok {
			vm.Deallocuvm(pgdir, newsz, oldsz)
			return oldsz, false
		}
		vm.zeroFrame(pa)
		if !vm.MapRange(pgdir, Va_t(a), mem.PGSIZE, pa, PTE_W|PTE_U) {
			vm.Phys.Kfree(pa)
			vm.Deallocuvm(pgdir, newsz, oldsz)
			return oldsz, false
		}
	}
	return newsz, true
}

// Deallocuvm frees the backing frame for each mapped page in [newsz,
// oldsz) and clears the PTE. Missing page-table pages are skipped over a
// full page-table span rather than walked page by page.
func (vm *VM_t) Deallocuvm(pgdir mem.Pa_t, oldsz, newsz uint32) uint32 {
	if newsz >= oldsz {
		return oldsz
	}
	a := util.Roundup(newsz, uint32(mem.PGSIZE))
	for a < oldsz {
		pte, ok := vm.Walk(pgdir, Va_t(a), false)
		if !ok {
			a += (NPTENTRIES - 1) * mem.PGSIZE
		} else if *pte&PTE_P != 0 {
			pa := mem.Pa_t(*pte & pteAddrMask)
			if pa == 0 {
				klog.Panicf("vm: deallocuvm: freeing frame 0")
			}
			vm.Phys.Kfree(pa)
			*pte = 0
		}
		a += mem.PGSIZE
	}
	return newsz
}

// Freevm deallocates all user mappings below usersz, frees every
// page-table frame, then the directory frame itself.
func (vm *VM_t) Freevm(pgdir mem.Pa_t, usersz uint32) {
	vm.Deallocuvm(pgdir, usersz, 0)
	pd := entries(vm.Phys, pgdir)
	for i := 0; i < NPDENTRIES; i++ {
		if pd[i]&PTE_P != 0 {
			vm.Phys.Kfree(mem.Pa_t(pd[i] & pteAddrMask))
		}
	}
	vm.Phys.Kfree(pgdir)
}

// Copyuvm builds a fresh directory with the same kernel map plus a
// byte-identical, independently-owned copy of every present user page in
// [0, sz). On any failure the partial directory is freed and ok is false.
func (vm *VM_t) Copyuvm(pgdir mem.Pa_t, sz uint32, kmap []kmapRegion) (mem.Pa_t, bool) {
	d, ok := vm.Setupkvm(kmap)
	if !ok {
		return 0, false
	}
	for i := uint32(0); i < sz; i += mem.PGSIZE {
		pte, ok := vm.Walk(pgdir, Va_t(i), false)
		if !ok || *pte&PTE_P == 0 {
			klog.Panicf("vm: copyuvm: page not present")
		}
		pa := mem.Pa_t(*pte & pteAddrMask)
		flags := *pte & 0xFFF

		np, ok := vm.Phys.Kalloc()
		if !ok {
			vm.Freevm(d, i)
			return 0, false
		}
		copy(vm.Phys.Frame(np)[:], vm.Phys.Frame(pa)[:])
		if !vm.MapRange(d, Va_t(i), mem.PGSIZE, np, flags) {
			vm.Phys.Kfree(np)
			vm.Freevm(d, i)
			return 0, false
		}
	}
	return d, true
}

// Clearpteu clears the user-accessible bit on the PTE for uva, used to turn
// the page beneath the user stack into a guard page.
func (vm *VM_t) Clearpteu(pgdir mem.Pa_t, uva Va_t) {
	pte, ok := vm.Walk(pgdir, uva, false)
	if !ok {
		klog.Panicf("vm: clearpteu: no such mapping")
	}
	*pte &^= PTE_U
}

// Uva2ka translates a user virtual address to the kernel-accessible frame
// backing it, requiring both present and user bits.
func (vm *VM_t) Uva2ka(pgdir mem.Pa_t, uva Va_t) (*mem.Page_t, bool) {
	pte, ok := vm.Walk(pgdir, uva, false)
	if !ok || *pte&PTE_P == 0 || *pte&PTE_U == 0 {
		return nil, false
	}
	return vm.Phys.Frame(mem.Pa_t(*pte & pteAddrMask)), true
}

// Copyout copies len(src) bytes into va within pgdir, one page at a time,
// using Uva2ka so the destination need not be the currently loaded address
// space.
func (vm *VM_t) Copyout(pgdir mem.Pa_t, va Va_t, src []byte) bool {
	for len(src) > 0 {
		va0 := Va_t(util.Rounddown(uint32(va), uint32(mem.PGSIZE)))
		pg, ok := vm.Uva2ka(pgdir, va0)
		if !ok {
			return false
		}
		off := uint32(va) - uint32(va0)
		n := uint32(mem.PGSIZE) - off
		if n > uint32(len(src)) {
			n = uint32(len(src))
		}
		copy(pg[off:off+n], src[:n])
		src = src[n:]
		va = va0 + mem.PGSIZE
	}
	return true
}
