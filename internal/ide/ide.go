// Package ide implements the single-outstanding-request disk queue: at
// most one request is ever "in flight" to the backing store, later
// requests wait in a FIFO linked through Buf_t.qnext, and completion is
// signalled the way a real IDE controller would — asynchronously, via an
// interrupt handler that pops the queue head, marks it done, and wakes its
// waiters. The backing store is a disk image file accessed through
// golang.org/x/sys/unix's Pread/Pwrite (positioned I/O, no shared file
// offset to race over), grounded in other_examples' go-ublk user-space
// block driver, which does the same for the same reason: concurrent
// readers/writers at different offsets must not serialize on a single
// fd's cursor. The queue/interrupt shape is grounded on
// original_source/ide.c.
package ide

import (
	"golang.org/x/sys/unix"

	"github.com/j-gatsby/biscuit/internal/klog"
	"github.com/j-gatsby/biscuit/internal/proc"
	"github.com/j-gatsby/biscuit/internal/sched"
	"github.com/j-gatsby/biscuit/internal/sleeplock"
	"github.com/j-gatsby/biscuit/internal/spinlock"
)

// BlockSize is the fixed disk-block size, matching SECTOR_SIZE in the
// original PIO driver.
const BlockSize = 512

const (
	flagValid = 1 << 0
	flagDirty = 1 << 1
)

// Buf_t is one disk-block buffer. Dev/Blockno name the block it mirrors;
// Data holds its contents; Lock is the per-buffer sleep lock the caller
// must hold across Iderw.
type Buf_t struct {
	Dev     int
	Blockno uint32
	Data    [BlockSize]byte
	flags   int

	Lock *sleeplock.Lock_t

	qnext *Buf_t
}

func (b *Buf_t) valid() bool { return b.flags&flagValid != 0 }
func (b *Buf_t) dirty() bool { return b.flags&flagDirty != 0 }

// SetDirty marks b as needing to be written back; callers do this after
// modifying Data in place, before calling Iderw.
func (b *Buf_t) SetDirty() { b.flags |= flagDirty }

// Disk_t is the single-queue disk driver.
type Disk_t struct {
	lock  spinlock.Lock_t // idelock
	queue *Buf_t          // idequeue head; at most this one is in flight

	table *proc.Table_t
	fd    int
}

// Open opens (creating if absent) the backing disk image at path, sized
// to hold nblocks blocks.
func Open(path string, nblocks int, t *proc.Table_t) (*Disk_t, error) {
	fd, err := unix.Open(path, unix.O_RDWR|unix.O_CREAT, 0o600)
	if err != nil {
		return nil, err
	}
	size := int64(nblocks) * BlockSize
	if err := unix.Ftruncate(fd, size); err != nil {
		unix.Close(fd)
		return nil, err
	}
	return &Disk_t{
		lock:  spinlock.Lock_t{Name: "ide"},
		table: t,
		fd:    fd,
	}, nil
}

// Close releases the backing file descriptor.
func (d *Disk_t) Close() error {
	return unix.Close(d.fd)
}

// NewBuf allocates a buffer for (dev, blockno), with its own sleep lock.
func (d *Disk_t) NewBuf(dev int, blockno uint32) *Buf_t {
	b := &Buf_t{Dev: dev, Blockno: blockno}
	b.Lock = sleeplock.New("buf", d.table)
	return b
}

// idestart issues b's operation to the backing store. Real hardware would
// accept the command immediately and raise an interrupt on completion;
// here the positioned I/O runs on a background goroutine that calls
// ideintr when done, playing the role of that interrupt.
func (d *Disk_t) idestart(b *Buf_t) {
	go func() {
		off := int64(b.Blockno) * BlockSize
		var err error
		if b.dirty() {
			_, err = unix.Pwrite(d.fd, b.Data[:], off)
		} else {
			_, err = unix.Pread(d.fd, b.Data[:], off)
		}
		if err != nil {
			klog.Errorf("ide: block %d: %v", b.Blockno, err)
		}
		d.ideintr()
	}()
}

// ideintr is the disk interrupt handler: pop the queue head, mark it
// VALID (and no longer DIRTY), wake its waiters, and kick off the next
// queued request if any.
func (d *Disk_t) ideintr() {
	d.lock.Acquire()
	b := d.queue
	if b == nil {
		d.lock.Release()
		klog.Warnf("ide: spurious interrupt")
		return
	}
	d.queue = b.qnext
	b.flags = flagValid
	sched.Wakeup(d.table, b)
	if d.queue != nil {
		d.idestart(d.queue)
	}
	d.lock.Release()
}

// Iderw enqueues b and blocks the caller until it completes. Caller must
// hold b.Lock. A buffer that is already clean and valid has nothing to do;
// requesting that is a kernel bug.
func (d *Disk_t) Iderw(cur *proc.Proc_t, b *Buf_t) {
	if !b.Lock.Holding() {
		klog.Panicf("ide: iderw: buf not locked")
	}
	if b.valid() && !b.dirty() {
		klog.Panicf("ide: iderw: nothing to do")
	}

	d.lock.Acquire()
	b.qnext = nil
	if d.queue == nil {
		d.queue = b
	} else {
		last := d.queue
		for last.qnext != nil {
			last = last.qnext
		}
		last.qnext = b
	}
	if d.queue == b {
		d.idestart(b)
	}
	for !(b.valid() && !b.dirty()) {
		sched.Sleep(d.table, cur, b, &d.lock)
	}
	d.lock.Release()
}
