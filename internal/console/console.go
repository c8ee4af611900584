// Package console implements the external console device spec.md §6 scopes
// out in detail (device major 1, minor 1): a line-buffered input queue fed
// by consoleintr and a pass-through output side. Userinit does not open
// it, and no /console node is created; a descriptor reaches it only when a
// caller wraps a device in fd.ConsoleFops. original_source
// never ships console.c (only its consoleinit/consoleintr prototypes in
// defs.h), so the input queue here follows the well-known xv6 line
// discipline — backspace, ^U kill-line, ^D/newline flushes a line to
// waiting readers — restyled with the monotonic read/write counters
// internal/pipe already adapted from the teacher's Circbuf_t, rather than
// inventing a second ring-buffer shape for the same idea.
package console

import (
	"os"

	"github.com/j-gatsby/biscuit/internal/proc"
	"github.com/j-gatsby/biscuit/internal/sched"
	"github.com/j-gatsby/biscuit/internal/spinlock"
)

// Major and Minor are the console's device numbers, matching the CONSOLE
// major/minor xv6 assigns; no device node is registered under them.
const (
	Major = 1
	Minor = 1
)

// inputSize is the input queue's capacity, matching xv6's INPUT_BUF.
const inputSize = 128

const (
	backspace = 0x100
	ctrlD     = 0x04
	ctrlU     = 0x15
)

// Device_t is the console: a line-buffered input queue plus direct
// pass-through output. One Device_t is shared process-wide, the same way
// idequeue and ptable are.
type Device_t struct {
	lock spinlock.Lock_t

	buf     [inputSize]byte
	r, w, e uint64 // read, write, and edit positions (monotonic)
	table   *proc.Table_t
	out     *os.File
}

// New returns a console writing to out (typically os.Stdout).
func New(t *proc.Table_t, out *os.File) *Device_t {
	return &Device_t{
		lock:  spinlock.Lock_t{Name: "console"},
		table: t,
		out:   out,
	}
}

// Intr feeds one input event (a rune, or backspace/ctrlU/ctrlD) into the
// line-editing buffer, playing the role of consoleintr(kbdgetc). A
// newline or ^D advances the read boundary to the edit boundary, handing
// the accumulated line to any process blocked in Read.
func (d *Device_t) Intr(c int) {
	d.lock.Acquire()
	defer d.lock.Release()

	switch c {
	case ctrlU:
		for d.e != d.w && d.buf[(d.e-1)%inputSize] != '\n' {
			d.e--
		}
	case backspace:
		if d.e != d.w {
			d.e--
		}
	default:
		if c != 0 && d.e-d.r < inputSize {
			if c == ctrlD {
				c = '\n'
			}
			d.buf[d.e%inputSize] = byte(c)
			d.e++
			if c == '\n' || c == ctrlD || d.e-d.r == inputSize {
				d.w = d.e
				sched.Wakeup(d.table, &d.r)
			}
		}
	}
}

// Read copies one line (up to len(dst) bytes, stopping after a newline)
// into dst on behalf of cur, blocking until a full line is available.
// Returns the number of bytes read, or -1 if cur is killed while waiting.
func (d *Device_t) Read(cur *proc.Proc_t, dst []byte) int {
	d.lock.Acquire()
	for d.r == d.w {
		if cur.Killed {
			d.lock.Release()
			return -1
		}
		sched.Sleep(d.table, cur, &d.r, &d.lock)
	}
	n := 0
	for n < len(dst) {
		if d.r == d.w {
			break
		}
		c := d.buf[d.r%inputSize]
		d.r++
		dst[n] = c
		n++
		if c == '\n' {
			break
		}
	}
	d.lock.Release()
	return n
}

// Write sends src straight to the underlying output file; the console has
// no output buffering to speak of.
func (d *Device_t) Write(cur *proc.Proc_t, src []byte) int {
	n, err := d.out.Write(src)
	if err != nil {
		return -1
	}
	return n
}
