// Package pipe implements the bounded, blocking byte stream that backs the
// pipe(2) system call: a fixed 512-byte ring buffer with monotonic read and
// write counters (ring index = counter mod capacity), guarded by a spin
// lock, with blocking handed to sched's sleep/wakeup. Grounded on
// original_source/pipe.c, with head/tail-counter bookkeeping restyled
// after the teacher's Circbuf_t (biscuit/src/circbuf/circbuf.go), which
// tracks monotonic head/tail counters rather than raw indices for the same
// reason: it makes Full/Empty branch-free.
package pipe

import (
	"github.com/j-gatsby/biscuit/internal/proc"
	"github.com/j-gatsby/biscuit/internal/sched"
	"github.com/j-gatsby/biscuit/internal/spinlock"
)

// Size is the pipe's fixed capacity in bytes.
const Size = 512

// Pipe_t is one pipe's shared state between its read and write ends.
type Pipe_t struct {
	lock spinlock.Lock_t
	data [Size]byte

	nread  uint64
	nwrite uint64

	readopen  bool
	writeopen bool

	table *proc.Table_t
}

// New allocates a pipe with both ends open.
func New(t *proc.Table_t) *Pipe_t {
	return &Pipe_t{
		lock:      spinlock.Lock_t{Name: "pipe"},
		readopen:  true,
		writeopen: true,
		table:     t,
	}
}

func (p *Pipe_t) full() bool  { return p.nwrite-p.nread == Size }
func (p *Pipe_t) empty() bool { return p.nread == p.nwrite }

// Write copies src into the pipe on behalf of cur, blocking while the
// buffer is full. Returns -1 if the read end closes or cur is killed before
// all bytes are written.
func (p *Pipe_t) Write(cur *proc.Proc_t, src []byte) int {
	p.lock.Acquire()
	for i := 0; i < len(src); i++ {
		for p.full() {
			if !p.readopen || cur.Killed {
				p.lock.Release()
				return -1
			}
			sched.Wakeup(p.table, &p.nread)
			sched.Sleep(p.table, cur, &p.nwrite, &p.lock)
		}
		p.data[p.nwrite%Size] = src[i]
		p.nwrite++
	}
	sched.Wakeup(p.table, &p.nread)
	p.lock.Release()
	return len(src)
}

// Read copies up to len(dst) bytes out of the pipe into dst, blocking
// while empty and the write end is still open. Returns the number of
// bytes actually read; 0 means EOF (writer closed and buffer drained).
// Returns -1 if cur is killed while waiting.
func (p *Pipe_t) Read(cur *proc.Proc_t, dst []byte) int {
	p.lock.Acquire()
	for p.empty() && p.writeopen {
		if cur.Killed {
			p.lock.Release()
			return -1
		}
		sched.Sleep(p.table, cur, &p.nread, &p.lock)
	}
	n := 0
	for n < len(dst) {
		if p.nread == p.nwrite {
			break
		}
		dst[n] = p.data[p.nread%Size]
		p.nread++
		n++
	}
	sched.Wakeup(p.table, &p.nwrite)
	p.lock.Release()
	return n
}

// Close closes the read end (writable=false) or write end (writable=true)
// and wakes the opposite side.
func (p *Pipe_t) Close(writable bool) {
	p.lock.Acquire()
	if writable {
		p.writeopen = false
		sched.Wakeup(p.table, &p.nread)
	} else {
		p.readopen = false
		sched.Wakeup(p.table, &p.nwrite)
	}
	p.lock.Release()
}
