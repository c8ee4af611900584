// Package mem implements the physical frame allocator: a singly-linked free
// list of 4 KiB frames carved out of a simulated RAM arena, protected by a
// spin lock once locking is enabled. Grounded on original_source/kalloc.c,
// restyled after the teacher's mem.Physmem_t / Pa_t split between physical
// addresses and the bytes they name (biscuit/src/mem/mem.go).
package mem

import (
	"unsafe"

	"github.com/j-gatsby/biscuit/internal/klog"
	"github.com/j-gatsby/biscuit/internal/spinlock"
	"github.com/j-gatsby/biscuit/internal/util"
)

// PGSHIFT is the base-2 exponent of the page size.
const PGSHIFT = 12

// PGSIZE is the size of a single frame in bytes.
const PGSIZE = 1 << PGSHIFT

// PGOFFSET masks the in-page offset of an address.
const PGOFFSET = PGSIZE - 1

// Pa_t is a physical address: an offset into the simulated RAM arena.
type Pa_t uintptr

// Page_t is the byte contents of one frame.
type Page_t [PGSIZE]byte

// fillByte is written across every frame when it is released, so that
// use-after-free shows up as garbage instead of silently reusing old data.
const fillByte = 0x01

// noFrame marks the end of the free list.
const noFrame = ^Pa_t(0)

// Physmem_t is the process-wide physical memory allocator. It owns the
// backing arena plus the free-list head and the lock protecting it. The
// free-list linkage lives in a side table (nexti), indexed by frame number,
// rather than inside the frame's own bytes — unlike xv6's in-band struct
// run, this keeps the whole frame, including its first byte, under the
// fillByte invariant after release. Grounded on the teacher's split between
// page content (Pg_t) and per-frame metadata (Physpg_t.nexti in
// biscuit/src/mem/mem.go).
type Physmem_t struct {
	arena     []byte
	nexti     []Pa_t // nexti[pa/PGSIZE] is the next frame on the free list
	kernelEnd Pa_t   // frames below this belong to the fixed kernel image
	phystop   Pa_t   // frames at or above this do not exist

	lock    spinlock.Lock_t
	locking bool
	free    Pa_t // head of the free list, or noFrame
	nfree   int
}

// NewPhysmem allocates the simulated RAM arena. kernelEnd marks the first
// frame available for the allocator (everything below simulates the kernel
// image loaded by the bootloader); size is PHYSTOP, the total amount of
// simulated physical memory in bytes.
func NewPhysmem(size int, kernelEnd Pa_t) *Physmem_t {
	if size%PGSIZE != 0 {
		klog.Panicf("mem: size %d is not page aligned", size)
	}
	m := &Physmem_t{
		arena:     make([]byte, size),
		nexti:     make([]Pa_t, size/PGSIZE),
		kernelEnd: kernelEnd,
		phystop:   Pa_t(size),
		free:      noFrame,
	}
	m.lock = spinlock.Lock_t{Name: "kmem"}
	return m
}

// Frame returns the byte contents backing the frame at pa. Callers must hold
// their own synchronization; Frame itself does no locking, matching the
// teacher's Dmap, which merely computes an address.
func (m *Physmem_t) Frame(pa Pa_t) *Page_t {
	if pa%PGSIZE != 0 {
		klog.Panicf("mem: Frame(%#x) is not page aligned", pa)
	}
	if pa+PGSIZE > m.phystop {
		klog.Panicf("mem: Frame(%#x) is beyond phystop", pa)
	}
	return (*Page_t)(unsafe.Pointer(&m.arena[pa]))
}

func (m *Physmem_t) next(pa Pa_t) Pa_t {
	return m.nexti[pa/PGSIZE]
}

func (m *Physmem_t) setNext(pa, next Pa_t) {
	m.nexti[pa/PGSIZE] = next
}

// valid reports whether v is a frame this allocator may free: page aligned,
// at or above kernelEnd, and below phystop. This is the corrected form of
// the original kfree check — the xv6 source's `v < end || V2P(v >= PHYSTOP)`
// has a parenthesization typo; the intended check is the one implemented
// here (see spec's open question on kfree's bounds check).
func (m *Physmem_t) valid(v Pa_t) bool {
	return v%PGSIZE == 0 && v >= m.kernelEnd && v < m.phystop
}

// Kfree releases the frame at v back to the free list, first overwriting its
// contents with fillByte so that stale readers observe garbage rather than
// live data. v must be a frame previously handed out by Kalloc or covered by
// Kinit1/Kinit2's initial range.
func (m *Physmem_t) Kfree(v Pa_t) {
	if !m.valid(v) {
		klog.Panicf("mem: Kfree(%#x): not a valid frame", v)
	}
	pg := m.arena[v : v+PGSIZE]
	for i := range pg {
		pg[i] = fillByte
	}
	if m.locking {
		m.lock.Acquire()
	}
	m.setNext(v, m.free)
	m.free = v
	m.nfree++
	if m.locking {
		m.lock.Release()
	}
}

// Kalloc removes and returns the head of the free list. The second return
// value is false if the pool is exhausted. The caller is responsible for
// zeroing the frame if the use case requires it — most do, since Kfree fills
// it with fillByte, not zero.
func (m *Physmem_t) Kalloc() (Pa_t, bool) {
	if m.locking {
		m.lock.Acquire()
	}
	v := m.free
	ok := v != noFrame
	if ok {
		m.free = m.next(v)
		m.nfree--
	}
	if m.locking {
		m.lock.Release()
	}
	return v, ok
}

// Nfree reports the number of frames currently on the free list. Used by
// tests and the boot-time accounting scenario in spec.md §8.1.
func (m *Physmem_t) Nfree() int {
	if m.locking {
		m.lock.Acquire()
		defer m.lock.Release()
	}
	return m.nfree
}

func (m *Physmem_t) freerange(start, end Pa_t) {
	p := Pa_t(util.Roundup(int(start), PGSIZE))
	for p+PGSIZE <= end {
		m.Kfree(p)
		p += PGSIZE
	}
}

// Kinit1 releases [start,end) with locking disabled, for use while only one
// CPU is running and no per-CPU state exists yet.
func (m *Physmem_t) Kinit1(start, end Pa_t) {
	m.locking = false
	m.freerange(start, end)
}

// Kinit2 releases the remaining [start,end) range and enables locking, once
// it is safe to take the allocator's spin lock from multiple CPUs.
func (m *Physmem_t) Kinit2(start, end Pa_t) {
	m.freerange(start, end)
	m.locking = true
}
