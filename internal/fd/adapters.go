package fd

import (
	"github.com/j-gatsby/biscuit/internal/console"
	"github.com/j-gatsby/biscuit/internal/defs"
	"github.com/j-gatsby/biscuit/internal/fsiface"
	"github.com/j-gatsby/biscuit/internal/pipe"
	"github.com/j-gatsby/biscuit/internal/proc"
)

// PipeFops adapts one end of a pipe to fdops.Fdops_i. Writable selects
// which end this descriptor is.
//
// Simplification: the real kernel refcounts pipe ends across dup/fork so
// the pipe only closes once its last descriptor does; this port has no
// struct-file layer to hold that count, so Close always closes this end
// outright. Acceptable for the scenarios spec.md §8 exercises (none dup
// a pipe end before closing it), recorded in DESIGN.md.
type PipeFops struct {
	P        *pipe.Pipe_t
	Writable bool
}

func (p *PipeFops) Read(cur *proc.Proc_t, dst []byte) (int, defs.Err_t) {
	if p.Writable {
		return 0, defs.EINVAL
	}
	n := p.P.Read(cur, dst)
	if n < 0 {
		return 0, defs.EINTR
	}
	return n, 0
}

func (p *PipeFops) Write(cur *proc.Proc_t, src []byte) (int, defs.Err_t) {
	if !p.Writable {
		return 0, defs.EINVAL
	}
	n := p.P.Write(cur, src)
	if n < 0 {
		return 0, defs.EPIPE
	}
	return n, 0
}

func (p *PipeFops) Close() defs.Err_t {
	p.P.Close(p.Writable)
	return 0
}

func (p *PipeFops) Reopen() defs.Err_t { return 0 }

// ConsoleFops adapts the console device to fdops.Fdops_i.
type ConsoleFops struct {
	Dev *console.Device_t
}

func (c *ConsoleFops) Read(cur *proc.Proc_t, dst []byte) (int, defs.Err_t) {
	n := c.Dev.Read(cur, dst)
	if n < 0 {
		return 0, defs.EINTR
	}
	return n, 0
}

func (c *ConsoleFops) Write(cur *proc.Proc_t, src []byte) (int, defs.Err_t) {
	n := c.Dev.Write(cur, src)
	if n < 0 {
		return 0, defs.EIO
	}
	return n, 0
}

func (c *ConsoleFops) Close() defs.Err_t  { return 0 }
func (c *ConsoleFops) Reopen() defs.Err_t { return 0 }

// InodeFops adapts a regular file's in-memory inode to fdops.Fdops_i,
// tracking this descriptor's own read/write offset.
//
// A dup'd regular-file descriptor shares its offset with the original, as
// the real kernel's shared struct-file does: Dup copies the Fd_t value,
// and the copy keeps the same *InodeFops pointer. Recorded in DESIGN.md
// alongside the pipe simplification above.
type InodeFops struct {
	Ip       *fsiface.Inode_t
	Off      int
	Writable bool
}

func (i *InodeFops) Read(cur *proc.Proc_t, dst []byte) (int, defs.Err_t) {
	n, err := i.Ip.ReadAt(dst, i.Off)
	if err != nil {
		return 0, defs.EIO
	}
	i.Off += n
	return n, 0
}

func (i *InodeFops) Write(cur *proc.Proc_t, src []byte) (int, defs.Err_t) {
	if !i.Writable {
		return 0, defs.EBADF
	}
	n := i.Ip.WriteAt(src, i.Off)
	i.Off += n
	return n, 0
}

func (i *InodeFops) Close() defs.Err_t  { return 0 }
func (i *InodeFops) Reopen() defs.Err_t { return 0 }
