// Package fd implements the open file descriptor: a permission mask plus
// a backing fdops.Fdops_i, the object actually moving bytes. Adapted from
// biscuit/src/fd/fd.go — Copyfd becomes Fd_t.Dup so it can satisfy
// proc.FdSlot, and Close_panic is dropped since nothing in this port ever
// expects a close to be infallible.
package fd

import (
	"github.com/j-gatsby/biscuit/internal/defs"
	"github.com/j-gatsby/biscuit/internal/fdops"
	"github.com/j-gatsby/biscuit/internal/proc"
)

// Permission bits recorded alongside a descriptor's Fops.
const (
	FD_READ    = 0x1
	FD_WRITE   = 0x2
	FD_CLOEXEC = 0x4
)

// Fd_t is one open file descriptor.
type Fd_t struct {
	Fops  fdops.Fdops_i
	Perms int
}

// New wraps ops under perms.
func New(ops fdops.Fdops_i, perms int) *Fd_t {
	return &Fd_t{Fops: ops, Perms: perms}
}

// Dup duplicates the descriptor by asking its Fops to reopen, satisfying
// proc.FdSlot so the process table can dup every descriptor across fork
// without importing this package.
func (f *Fd_t) Dup() (proc.FdSlot, defs.Err_t) {
	nf := &Fd_t{}
	*nf = *f
	if err := nf.Fops.Reopen(); err != 0 {
		return nil, err
	}
	return nf, 0
}

// Close closes the underlying Fops, satisfying proc.FdSlot.
func (f *Fd_t) Close() defs.Err_t {
	return f.Fops.Close()
}

// Read reads through Fops, rejecting descriptors not opened for reading.
func (f *Fd_t) Read(cur *proc.Proc_t, dst []byte) (int, defs.Err_t) {
	if f.Perms&FD_READ == 0 {
		return 0, defs.EBADF
	}
	return f.Fops.Read(cur, dst)
}

// Write writes through Fops, rejecting descriptors not opened for writing.
func (f *Fd_t) Write(cur *proc.Proc_t, src []byte) (int, defs.Err_t) {
	if f.Perms&FD_WRITE == 0 {
		return 0, defs.EBADF
	}
	return f.Fops.Write(cur, src)
}
