// Package syscalls implements the fixed syscall table spec.md §4.5 names
// and registers it against a trap.Dispatcher_t: fork, exit, wait, pipe,
// read, kill, exec, fstat, chdir, dup, getpid, sbrk, sleep, uptime, open,
// write, mknod, unlink, link, mkdir, close, symlink. Grounded on
// original_source/syscall.c's dispatch table and exec.c for exec's
// validate-then-commit shape; the file-system calls (mknod/link/mkdir/
// symlink) are necessarily shallow since fsiface has no directory tree,
// but each still exercises its real collaborator rather than being a
// stub that only returns success.
package syscalls

import (
	"debug/elf"

	"github.com/j-gatsby/biscuit/internal/console"
	"github.com/j-gatsby/biscuit/internal/defs"
	"github.com/j-gatsby/biscuit/internal/fd"
	"github.com/j-gatsby/biscuit/internal/fsiface"
	"github.com/j-gatsby/biscuit/internal/pipe"
	"github.com/j-gatsby/biscuit/internal/proc"
	"github.com/j-gatsby/biscuit/internal/sched"
	"github.com/j-gatsby/biscuit/internal/stat"
	"github.com/j-gatsby/biscuit/internal/trap"
	"github.com/j-gatsby/biscuit/internal/vm"
)

// Syscall numbers, matching the order spec.md §4.5 lists them in.
const (
	SysFork = iota + 1
	SysExit
	SysWait
	SysPipe
	SysRead
	SysKill
	SysExec
	SysFstat
	SysChdir
	SysDup
	SysGetpid
	SysSbrk
	SysSleep
	SysUptime
	SysOpen
	SysWrite
	SysMknod
	SysUnlink
	SysLink
	SysMkdir
	SysClose
	SysSymlink
)

// Open flags, matching O_RDONLY/O_WRONLY/O_RDWR/O_CREATE's historical
// bit assignment.
const (
	ORdonly = 0x000
	OWronly = 0x001
	ORdwr   = 0x002
	OCreate = 0x200
)

// Kernel_t bundles every subsystem a syscall handler needs to touch, plus
// the dispatcher it fetches arguments through. One Kernel_t is shared by
// the whole simulated machine.
type Kernel_t struct {
	Table    *proc.Table_t
	VM       *vm.VM_t
	FS       *fsiface.FS_t
	Console  *console.Device_t
	D        *trap.Dispatcher_t
	Kernbase uint32
}

// Register installs every syscall handler on d and remembers d for
// argument fetching.
func (k *Kernel_t) Register(d *trap.Dispatcher_t) {
	k.D = d
	d.RegisterSyscall(SysFork, k.sysFork)
	d.RegisterSyscall(SysExit, k.sysExit)
	d.RegisterSyscall(SysWait, k.sysWait)
	d.RegisterSyscall(SysPipe, k.sysPipe)
	d.RegisterSyscall(SysRead, k.sysRead)
	d.RegisterSyscall(SysKill, k.sysKill)
	d.RegisterSyscall(SysExec, k.sysExec)
	d.RegisterSyscall(SysFstat, k.sysFstat)
	d.RegisterSyscall(SysChdir, k.sysChdir)
	d.RegisterSyscall(SysDup, k.sysDup)
	d.RegisterSyscall(SysGetpid, k.sysGetpid)
	d.RegisterSyscall(SysSbrk, k.sysSbrk)
	d.RegisterSyscall(SysSleep, k.sysSleep)
	d.RegisterSyscall(SysUptime, k.sysUptime)
	d.RegisterSyscall(SysOpen, k.sysOpen)
	d.RegisterSyscall(SysWrite, k.sysWrite)
	d.RegisterSyscall(SysMknod, k.sysMknod)
	d.RegisterSyscall(SysUnlink, k.sysUnlink)
	d.RegisterSyscall(SysLink, k.sysLink)
	d.RegisterSyscall(SysMkdir, k.sysMkdir)
	d.RegisterSyscall(SysClose, k.sysClose)
	d.RegisterSyscall(SysSymlink, k.sysSymlink)
}

// argUint fetches the n-th syscall argument as a raw word.
func (k *Kernel_t) argUint(cur *proc.Proc_t, tf *trap.Frame_t, n int) (uint32, bool) {
	return k.D.Argint(cur, tf, n)
}

// argptr fetches the n-th argument as a user pointer and returns a
// kernel-side copy of the size bytes it names.
func (k *Kernel_t) argptr(cur *proc.Proc_t, tf *trap.Frame_t, n int, size uint32) ([]byte, bool) {
	return k.D.Argptr(cur, tf, n, size)
}

// argstr fetches the n-th argument as a NUL-terminated user string.
func (k *Kernel_t) argstr(cur *proc.Proc_t, tf *trap.Frame_t, n int) (string, bool) {
	return k.D.Argstr(cur, tf, n)
}

func (k *Kernel_t) fdarg(cur *proc.Proc_t, tf *trap.Frame_t, n int) (*fd.Fd_t, bool) {
	i, ok := k.argUint(cur, tf, n)
	if !ok || int(i) >= len(cur.Fds) || cur.Fds[i] == nil {
		return nil, false
	}
	f, ok := cur.Fds[i].(*fd.Fd_t)
	return f, ok
}

func (k *Kernel_t) sysFork(cur *proc.Proc_t, tf *trap.Frame_t) (uint32, defs.Err_t) {
	pid, ok := sched.Fork(k.Table, cur, cur.Body)
	if !ok {
		return 0, defs.ENOMEM
	}
	return uint32(pid), 0
}

func (k *Kernel_t) sysExit(cur *proc.Proc_t, tf *trap.Frame_t) (uint32, defs.Err_t) {
	sched.Exit(k.Table, cur)
	return 0, 0 // unreachable: Exit never returns
}

func (k *Kernel_t) sysWait(cur *proc.Proc_t, tf *trap.Frame_t) (uint32, defs.Err_t) {
	pid, ok := sched.Wait(k.Table, cur)
	if !ok {
		return uint32(int32(-1)), defs.ECHILD
	}
	return uint32(pid), 0
}

func (k *Kernel_t) sysPipe(cur *proc.Proc_t, tf *trap.Frame_t) (uint32, defs.Err_t) {
	addr, ok := k.argUint(cur, tf, 0)
	if !ok {
		return 0, defs.EFAULT
	}
	p := pipe.New(k.Table)
	ri := k.appendFd(cur, fd.New(&fd.PipeFops{P: p, Writable: false}, fd.FD_READ))
	wi := k.appendFd(cur, fd.New(&fd.PipeFops{P: p, Writable: true}, fd.FD_WRITE))

	var buf [8]byte
	putint32(buf[0:4], int32(ri))
	putint32(buf[4:8], int32(wi))
	if !k.VM.Copyout(cur.Pgdir, vm.Va_t(addr), buf[:]) {
		return 0, defs.EFAULT
	}
	return 0, 0
}

func (k *Kernel_t) sysRead(cur *proc.Proc_t, tf *trap.Frame_t) (uint32, defs.Err_t) {
	fdesc, ok := k.fdarg(cur, tf, 0)
	if !ok {
		return 0, defs.EBADF
	}
	addr, ok := k.argUint(cur, tf, 1)
	if !ok {
		return 0, defs.EFAULT
	}
	n, ok := k.argUint(cur, tf, 2)
	if !ok {
		return 0, defs.EFAULT
	}
	buf := make([]byte, n)
	cnt, err := fdesc.Read(cur, buf)
	if err != 0 {
		return 0, err
	}
	if !k.VM.Copyout(cur.Pgdir, vm.Va_t(addr), buf[:cnt]) {
		return 0, defs.EFAULT
	}
	return uint32(cnt), 0
}

func (k *Kernel_t) sysWrite(cur *proc.Proc_t, tf *trap.Frame_t) (uint32, defs.Err_t) {
	fdesc, ok := k.fdarg(cur, tf, 0)
	if !ok {
		return 0, defs.EBADF
	}
	n, ok := k.argUint(cur, tf, 2)
	if !ok {
		return 0, defs.EFAULT
	}
	buf, ok := k.argptr(cur, tf, 1, n)
	if !ok {
		return 0, defs.EFAULT
	}
	cnt, err := fdesc.Write(cur, buf)
	if err != 0 {
		return 0, err
	}
	return uint32(cnt), 0
}

func (k *Kernel_t) sysKill(cur *proc.Proc_t, tf *trap.Frame_t) (uint32, defs.Err_t) {
	pid, ok := k.argUint(cur, tf, 0)
	if !ok {
		return 0, defs.EFAULT
	}
	if !k.Table.Kill(defs.Pid_t(pid)) {
		return uint32(int32(-1)), defs.ESRCH
	}
	return 0, 0
}

func (k *Kernel_t) sysGetpid(cur *proc.Proc_t, tf *trap.Frame_t) (uint32, defs.Err_t) {
	return uint32(cur.Pid), 0
}

func (k *Kernel_t) sysSbrk(cur *proc.Proc_t, tf *trap.Frame_t) (uint32, defs.Err_t) {
	n, ok := k.argUint(cur, tf, 0)
	if !ok {
		return 0, defs.EFAULT
	}
	old := cur.Sz
	if !k.Table.Growproc(cur, int32(n), k.Kernbase) {
		return uint32(int32(-1)), defs.ENOMEM
	}
	return old, 0
}

func (k *Kernel_t) sysSleep(cur *proc.Proc_t, tf *trap.Frame_t) (uint32, defs.Err_t) {
	n, ok := k.argUint(cur, tf, 0)
	if !ok {
		return 0, defs.EFAULT
	}
	for i := uint32(0); i < n && !cur.Killed; i++ {
		sched.Yield(k.Table, cur)
	}
	return 0, 0
}

func (k *Kernel_t) sysUptime(cur *proc.Proc_t, tf *trap.Frame_t) (uint32, defs.Err_t) {
	return uint32(k.D.Ticks()), 0
}

func (k *Kernel_t) sysDup(cur *proc.Proc_t, tf *trap.Frame_t) (uint32, defs.Err_t) {
	fdesc, ok := k.fdarg(cur, tf, 0)
	if !ok {
		return 0, defs.EBADF
	}
	dup, err := fdesc.Dup()
	if err != 0 {
		return 0, err
	}
	i := k.appendFdSlot(cur, dup)
	return uint32(i), 0
}

func (k *Kernel_t) sysClose(cur *proc.Proc_t, tf *trap.Frame_t) (uint32, defs.Err_t) {
	i, ok := k.argUint(cur, tf, 0)
	if !ok || int(i) >= len(cur.Fds) || cur.Fds[i] == nil {
		return 0, defs.EBADF
	}
	err := cur.Fds[i].Close()
	cur.Fds[i] = nil
	return 0, err
}

func (k *Kernel_t) sysFstat(cur *proc.Proc_t, tf *trap.Frame_t) (uint32, defs.Err_t) {
	fdesc, ok := k.fdarg(cur, tf, 0)
	if !ok {
		return 0, defs.EBADF
	}
	ip, ok := fdesc.Fops.(*fd.InodeFops)
	if !ok {
		return 0, defs.EINVAL
	}
	st := &stat.Stat_t{}
	st.Wsize(uint64(ip.Ip.Size()))
	st.Wmode(uint32(ip.Ip.Mode))
	addr, ok := k.argUint(cur, tf, 1)
	if !ok || !k.VM.Copyout(cur.Pgdir, vm.Va_t(addr), st.Bytes()) {
		return 0, defs.EFAULT
	}
	return 0, 0
}

func (k *Kernel_t) sysChdir(cur *proc.Proc_t, tf *trap.Frame_t) (uint32, defs.Err_t) {
	path, ok := k.argstr(cur, tf, 0)
	if !ok {
		return 0, defs.EFAULT
	}
	if _, ok := k.FS.Namei(cur.Cwd, path); !ok {
		return uint32(int32(-1)), defs.ENOENT
	}
	cur.Cwd = path
	return 0, 0
}

func (k *Kernel_t) sysOpen(cur *proc.Proc_t, tf *trap.Frame_t) (uint32, defs.Err_t) {
	path, ok := k.argstr(cur, tf, 0)
	if !ok {
		return 0, defs.EFAULT
	}
	flags, ok := k.argUint(cur, tf, 1)
	if !ok {
		return 0, defs.EFAULT
	}
	ip, exists := k.FS.Namei(cur.Cwd, path)
	if !exists {
		if flags&OCreate == 0 {
			return uint32(int32(-1)), defs.ENOENT
		}
		ip = k.FS.Create(cur.Cwd, path, 0)
	}
	writable := flags&OWronly != 0 || flags&ORdwr != 0
	perms := fd.FD_READ
	if flags&OWronly != 0 {
		perms = fd.FD_WRITE
	} else if flags&ORdwr != 0 {
		perms = fd.FD_READ | fd.FD_WRITE
	}
	i := k.appendFd(cur, fd.New(&fd.InodeFops{Ip: ip, Writable: writable}, perms))
	return uint32(i), 0
}

func (k *Kernel_t) sysMknod(cur *proc.Proc_t, tf *trap.Frame_t) (uint32, defs.Err_t) {
	path, ok := k.argstr(cur, tf, 0)
	if !ok {
		return 0, defs.EFAULT
	}
	k.FS.Create(cur.Cwd, path, 0)
	return 0, 0
}

func (k *Kernel_t) sysMkdir(cur *proc.Proc_t, tf *trap.Frame_t) (uint32, defs.Err_t) {
	path, ok := k.argstr(cur, tf, 0)
	if !ok {
		return 0, defs.EFAULT
	}
	k.FS.Create(cur.Cwd, path, 0o040000)
	return 0, 0
}

func (k *Kernel_t) sysUnlink(cur *proc.Proc_t, tf *trap.Frame_t) (uint32, defs.Err_t) {
	path, ok := k.argstr(cur, tf, 0)
	if !ok {
		return 0, defs.EFAULT
	}
	if !k.FS.Unlink(cur.Cwd, path) {
		return uint32(int32(-1)), defs.ENOENT
	}
	return 0, 0
}

// sysLink and sysSymlink alias newp onto oldp's inode. The in-memory
// namespace has no hard-link refcounting or distinct symlink inode type;
// aliasing the same *Inode_t under a second path is the closest honest
// analog available without a directory-entry layer.
func (k *Kernel_t) sysLink(cur *proc.Proc_t, tf *trap.Frame_t) (uint32, defs.Err_t) {
	oldp, ok := k.argstr(cur, tf, 0)
	if !ok {
		return 0, defs.EFAULT
	}
	newp, ok := k.argstr(cur, tf, 1)
	if !ok {
		return 0, defs.EFAULT
	}
	ip, ok := k.FS.Namei(cur.Cwd, oldp)
	if !ok {
		return uint32(int32(-1)), defs.ENOENT
	}
	k.FS.AliasUnsafe(cur.Cwd, newp, ip.Path)
	return 0, 0
}

func (k *Kernel_t) sysSymlink(cur *proc.Proc_t, tf *trap.Frame_t) (uint32, defs.Err_t) {
	return k.sysLink(cur, tf)
}

// sysExec replaces cur's address space with the ELF binary at path,
// following the validate-then-commit shape of original_source/exec.c:
// every allocation happens against a freshly built page directory, and
// only once every program header has loaded and the stack guard page is
// installed does it swap in the new directory and free the old one.
func (k *Kernel_t) sysExec(cur *proc.Proc_t, tf *trap.Frame_t) (uint32, defs.Err_t) {
	path, ok := k.argstr(cur, tf, 0)
	if !ok {
		return 0, defs.EFAULT
	}
	ip, ok := k.FS.Namei(cur.Cwd, path)
	if !ok {
		return uint32(int32(-1)), defs.ENOENT
	}

	ef, err := elf.NewFile(inodeReaderAt{ip})
	if err != nil {
		return uint32(int32(-1)), defs.ENOEXEC
	}

	pgdir, ok := k.VM.Setupkvm(nil)
	if !ok {
		return uint32(int32(-1)), defs.ENOMEM
	}
	var sz uint32
	for _, prog := range ef.Progs {
		if prog.Type != elf.PT_LOAD {
			continue
		}
		if uint32(prog.Vaddr)%4096 != 0 {
			k.VM.Freevm(pgdir, sz)
			return uint32(int32(-1)), defs.ENOEXEC
		}
		if uint32(prog.Vaddr) < sz {
			// overlaps a segment already loaded; Allocuvm would treat
			// this as a no-op shrink instead of rejecting it.
			k.VM.Freevm(pgdir, sz)
			return uint32(int32(-1)), defs.ENOEXEC
		}
		newsz, ok := k.VM.Allocuvm(pgdir, sz, uint32(prog.Vaddr+prog.Memsz), k.Kernbase)
		if !ok {
			k.VM.Freevm(pgdir, sz)
			return uint32(int32(-1)), defs.ENOMEM
		}
		sz = newsz
		if !k.VM.Loaduvm(pgdir, vm.Va_t(prog.Vaddr), progReaderAt{prog}, 0, uint32(prog.Filesz)) {
			k.VM.Freevm(pgdir, sz)
			return uint32(int32(-1)), defs.ENOEXEC
		}
	}

	sz = roundup(sz)
	newsz, ok := k.VM.Allocuvm(pgdir, sz, sz+2*4096, k.Kernbase)
	if !ok {
		k.VM.Freevm(pgdir, sz)
		return uint32(int32(-1)), defs.ENOMEM
	}
	k.VM.Clearpteu(pgdir, vm.Va_t(newsz-2*4096))

	oldpgdir, oldsz := cur.Pgdir, cur.Sz
	cur.Pgdir = pgdir
	cur.Sz = newsz
	cur.Name = path
	k.VM.Freevm(oldpgdir, oldsz)
	return uint32(ef.Entry), 0
}

func roundup(sz uint32) uint32 {
	if sz%4096 == 0 {
		return sz
	}
	return sz + 4096 - sz%4096
}

// inodeReaderAt adapts fsiface.Inode_t's int-offset ReadAt to the int64
// offset debug/elf.NewFile requires.
type inodeReaderAt struct{ ip *fsiface.Inode_t }

func (r inodeReaderAt) ReadAt(p []byte, off int64) (int, error) {
	return r.ip.ReadAt(p, int(off))
}

// progReaderAt adapts an ELF program header's ReaderAt to vm.Reader's
// int-offset signature.
type progReaderAt struct{ prog *elf.Prog }

func (r progReaderAt) ReadAt(dst []byte, off int) (int, error) {
	return r.prog.ReadAt(dst, int64(off))
}

func (k *Kernel_t) appendFd(cur *proc.Proc_t, f *fd.Fd_t) int {
	return k.appendFdSlot(cur, f)
}

func (k *Kernel_t) appendFdSlot(cur *proc.Proc_t, f proc.FdSlot) int {
	for i, slot := range cur.Fds {
		if slot == nil {
			cur.Fds[i] = f
			return i
		}
	}
	cur.Fds = append(cur.Fds, f)
	return len(cur.Fds) - 1
}

func putint32(b []byte, v int32) {
	u := uint32(v)
	b[0] = byte(u)
	b[1] = byte(u >> 8)
	b[2] = byte(u >> 16)
	b[3] = byte(u >> 24)
}
