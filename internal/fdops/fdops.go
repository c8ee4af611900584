// Package fdops declares the narrow interface a file descriptor's backing
// object must satisfy: pipes, the console device, and file-system inodes
// all look the same from fd's point of view. Grounded on fd.go's own
// Fops.Reopen()/Fops.Close() call sites (biscuit/src/fd/fd.go), which
// assume such an interface but ship it as an empty placeholder package in
// the retrieved pack; Read/Write are added here since this port's
// descriptors need to round-trip actual bytes, not just be duplicated
// and closed.
package fdops

import (
	"github.com/j-gatsby/biscuit/internal/defs"
	"github.com/j-gatsby/biscuit/internal/proc"
)

// Fdops_i is implemented by anything an Fd_t can wrap.
type Fdops_i interface {
	Read(cur *proc.Proc_t, dst []byte) (int, defs.Err_t)
	Write(cur *proc.Proc_t, src []byte) (int, defs.Err_t)
	Close() defs.Err_t
	Reopen() defs.Err_t
}
