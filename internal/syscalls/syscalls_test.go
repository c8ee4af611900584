package syscalls

import (
	"debug/elf"
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/j-gatsby/biscuit/internal/console"
	"github.com/j-gatsby/biscuit/internal/defs"
	"github.com/j-gatsby/biscuit/internal/fsiface"
	"github.com/j-gatsby/biscuit/internal/ide"
	"github.com/j-gatsby/biscuit/internal/layout"
	"github.com/j-gatsby/biscuit/internal/mem"
	"github.com/j-gatsby/biscuit/internal/proc"
	"github.com/j-gatsby/biscuit/internal/trap"
	"github.com/j-gatsby/biscuit/internal/vm"
)

const testPages = 8

func freshKernel(t *testing.T) (*Kernel_t, *proc.Proc_t, *trap.Frame_t) {
	t.Helper()
	size := 4 * 1024 * 1024
	kernelEnd := mem.Pa_t(mem.PGSIZE * 4)
	m := mem.NewPhysmem(size, kernelEnd)
	m.Kinit1(kernelEnd, mem.Pa_t(size))
	m.Kinit2(mem.Pa_t(size), mem.Pa_t(size))
	v := vm.New(m)
	table := proc.NewTable(4, v)

	diskPath := filepath.Join(t.TempDir(), "disk.img")
	disk, err := ide.Open(diskPath, 64, table)
	require.NoError(t, err, "ide.Open failed")
	t.Cleanup(func() { disk.Close() })
	fs := fsiface.New(disk, table)
	con := console.New(table, os.Stdout)

	d := trap.New(table, v)
	k := &Kernel_t{Table: table, VM: v, FS: fs, Console: con, Kernbase: layout.KERNBASE}
	k.Register(d)

	pgdir, ok := v.Setupkvm(nil)
	require.True(t, ok, "Setupkvm failed")
	sz, ok := v.Allocuvm(pgdir, 0, testPages*mem.PGSIZE, layout.KERNBASE)
	require.True(t, ok, "Allocuvm failed")
	cur := &proc.Proc_t{Pid: 1, Pgdir: pgdir, Sz: sz, Cwd: "/"}
	tf := &trap.Frame_t{Esp: 0}
	return k, cur, tf
}

// setArg writes value as the n-th syscall argument word, matching
// Dispatcher_t.Argint's addressing (Esp + 4 + 4*n).
func setArg(t *testing.T, k *Kernel_t, cur *proc.Proc_t, tf *trap.Frame_t, n int, value uint32) {
	t.Helper()
	var buf [4]byte
	binary.LittleEndian.PutUint32(buf[:], value)
	addr := tf.Esp + uint32(4+4*n)
	require.True(t, k.VM.Copyout(cur.Pgdir, vm.Va_t(addr), buf[:]), "Copyout of arg %d failed", n)
}

// setStrArg writes s (NUL-terminated) at a scratch address well above the
// argument words and sets arg n to point at it.
func setStrArg(t *testing.T, k *Kernel_t, cur *proc.Proc_t, tf *trap.Frame_t, n int, s string) {
	t.Helper()
	const scratch = 2048
	b := append([]byte(s), 0)
	require.True(t, k.VM.Copyout(cur.Pgdir, vm.Va_t(scratch+1024*n), b), "Copyout of string arg %d failed", n)
	setArg(t, k, cur, tf, n, scratch+1024*n)
}

func TestSysGetpid(t *testing.T) {
	k, cur, tf := freshKernel(t)
	ret, err := k.sysGetpid(cur, tf)
	require.Zero(t, err)
	require.EqualValues(t, 1, ret)
}

func TestSysSbrkGrowsAndReturnsOldSize(t *testing.T) {
	k, cur, tf := freshKernel(t)
	old := cur.Sz
	setArg(t, k, cur, tf, 0, mem.PGSIZE)
	ret, err := k.sysSbrk(cur, tf)
	require.Zero(t, err)
	require.Equal(t, old, ret)
	require.Equal(t, old+mem.PGSIZE, cur.Sz)
}

func TestSysSleepZeroReturnsImmediately(t *testing.T) {
	k, cur, tf := freshKernel(t)
	setArg(t, k, cur, tf, 0, 0)
	_, err := k.sysSleep(cur, tf)
	require.Zero(t, err)
}

func TestSysOpenCreateWriteReadFstat(t *testing.T) {
	k, cur, tf := freshKernel(t)
	setStrArg(t, k, cur, tf, 0, "file.txt")
	setArg(t, k, cur, tf, 1, OCreate|ORdwr)

	fdnum, err := k.sysOpen(cur, tf)
	require.Zero(t, err)

	wtf := &trap.Frame_t{Esp: 4096}
	setArg(t, k, cur, wtf, 0, fdnum)
	payload := "hello kernel"
	const dataAddr = 8192
	require.True(t, k.VM.Copyout(cur.Pgdir, vm.Va_t(dataAddr), append([]byte(payload), 0)), "Copyout of write payload failed")
	setArg(t, k, cur, wtf, 1, dataAddr)
	setArg(t, k, cur, wtf, 2, uint32(len(payload)))
	n, err := k.sysWrite(cur, wtf)
	require.Zero(t, err)
	require.EqualValues(t, len(payload), n)

	rtf := &trap.Frame_t{Esp: 4096}
	setArg(t, k, cur, rtf, 0, fdnum)
	const readAddr = 16384
	setArg(t, k, cur, rtf, 1, readAddr)
	setArg(t, k, cur, rtf, 2, uint32(len(payload)))
	rn, err := k.sysRead(cur, rtf)
	require.Zero(t, err)
	require.EqualValues(t, 0, rn, "sysRead right after the write returned bytes, want 0 (the descriptor's offset is past the data)")

	stf := &trap.Frame_t{Esp: 8192}
	setArg(t, k, cur, stf, 0, fdnum)
	const statAddr = 20480
	setArg(t, k, cur, stf, 1, statAddr)
	_, err = k.sysFstat(cur, stf)
	require.Zero(t, err)
	statBytes, ok := k.argptr(cur, stf, 1, 24)
	require.True(t, ok, "argptr on the stat buffer failed")
	gotSize := binary.LittleEndian.Uint64(statBytes[12:20])
	require.EqualValues(t, len(payload), gotSize)
}

func TestSysMknodMkdirUnlink(t *testing.T) {
	k, cur, tf := freshKernel(t)
	setStrArg(t, k, cur, tf, 0, "/dev/null")
	_, err := k.sysMknod(cur, tf)
	require.Zero(t, err)
	_, ok := k.FS.Namei(cur.Cwd, "/dev/null")
	require.True(t, ok, "sysMknod did not create an inode")

	mtf := &trap.Frame_t{Esp: 4096}
	setStrArg(t, k, cur, mtf, 0, "/mydir")
	_, err = k.sysMkdir(cur, mtf)
	require.Zero(t, err)

	utf := &trap.Frame_t{Esp: 8192}
	setStrArg(t, k, cur, utf, 0, "/dev/null")
	_, err = k.sysUnlink(cur, utf)
	require.Zero(t, err)
	_, ok = k.FS.Namei(cur.Cwd, "/dev/null")
	require.False(t, ok, "sysUnlink did not remove the inode")
}

func TestSysUnlinkMissingPathFails(t *testing.T) {
	k, cur, tf := freshKernel(t)
	setStrArg(t, k, cur, tf, 0, "/nope")
	_, err := k.sysUnlink(cur, tf)
	require.Equal(t, defs.ENOENT, err)
}

func TestSysLinkAliasesSameInode(t *testing.T) {
	k, cur, tf := freshKernel(t)
	ip := k.FS.Create(cur.Cwd, "/orig", 0)
	ip.WriteAt([]byte("data"), 0)

	setStrArg(t, k, cur, tf, 0, "/orig")
	setStrArg(t, k, cur, tf, 1, "/alias")
	_, err := k.sysLink(cur, tf)
	require.Zero(t, err)

	got, ok := k.FS.Namei(cur.Cwd, "/alias")
	require.True(t, ok, "sysLink did not create /alias")
	require.Same(t, ip, got, "sysLink did not alias /alias onto the same inode as /orig")
}

func TestSysKillUnknownPid(t *testing.T) {
	k, cur, tf := freshKernel(t)
	setArg(t, k, cur, tf, 0, 9999)
	_, err := k.sysKill(cur, tf)
	require.Equal(t, defs.ESRCH, err)
}

func TestSysChdirToMissingPathFails(t *testing.T) {
	k, cur, tf := freshKernel(t)
	setStrArg(t, k, cur, tf, 0, "/nowhere")
	_, err := k.sysChdir(cur, tf)
	require.Equal(t, defs.ENOENT, err)
}

func TestSysExecMissingPathFails(t *testing.T) {
	k, cur, tf := freshKernel(t)
	setStrArg(t, k, cur, tf, 0, "/no/such/binary")
	_, err := k.sysExec(cur, tf)
	require.Equal(t, defs.ENOENT, err)
}

func TestSysExecNotAnELFRollsBack(t *testing.T) {
	k, cur, tf := freshKernel(t)
	ip := k.FS.Create(cur.Cwd, "/garbage", 0)
	ip.WriteAt([]byte("not an elf binary at all"), 0)

	oldPgdir, oldSz := cur.Pgdir, cur.Sz
	setStrArg(t, k, cur, tf, 0, "/garbage")
	_, err := k.sysExec(cur, tf)
	require.Equal(t, defs.ENOEXEC, err)
	require.Equal(t, oldPgdir, cur.Pgdir, "sysExec mutated the caller's page directory despite failing to parse the ELF")
	require.Equal(t, oldSz, cur.Sz, "sysExec mutated the caller's size despite failing to parse the ELF")
}

// buildOverlappingELF32 hand-assembles a minimal 32-bit ELF executable
// with two PT_LOAD segments that both start at vaddr 0, so the second
// overlaps the page the first already mapped.
func buildOverlappingELF32(segData []byte) []byte {
	const (
		ehsize = 52
		phsize = 32
		phoff  = ehsize
		nph    = 2
		dataAt = phoff + nph*phsize
	)

	buf := make([]byte, dataAt+len(segData))

	buf[0], buf[1], buf[2], buf[3] = 0x7f, 'E', 'L', 'F'
	buf[4] = 1 // ELFCLASS32
	buf[5] = 1 // ELFDATA2LSB
	buf[6] = 1 // EV_CURRENT
	le := binary.LittleEndian
	le.PutUint16(buf[16:], uint16(elf.ET_EXEC))
	le.PutUint16(buf[18:], uint16(elf.EM_386))
	le.PutUint32(buf[20:], uint32(elf.EV_CURRENT))
	le.PutUint32(buf[24:], 0) // e_entry
	le.PutUint32(buf[28:], phoff)
	le.PutUint32(buf[32:], 0) // e_shoff
	le.PutUint32(buf[36:], 0) // e_flags
	le.PutUint16(buf[40:], ehsize)
	le.PutUint16(buf[42:], phsize)
	le.PutUint16(buf[44:], nph)
	le.PutUint16(buf[46:], 0) // e_shentsize
	le.PutUint16(buf[48:], 0) // e_shnum
	le.PutUint16(buf[50:], 0) // e_shstrndx

	putProg := func(i int, vaddr, off, filesz, memsz uint32) {
		p := buf[phoff+i*phsize:]
		le.PutUint32(p[0:], uint32(elf.PT_LOAD))
		le.PutUint32(p[4:], off)
		le.PutUint32(p[8:], vaddr)
		le.PutUint32(p[12:], vaddr) // p_paddr
		le.PutUint32(p[16:], filesz)
		le.PutUint32(p[20:], memsz)
		le.PutUint32(p[24:], uint32(elf.PF_R|elf.PF_W|elf.PF_X))
		le.PutUint32(p[28:], 4096)
	}
	// First segment: vaddr 0, one page.
	putProg(0, 0, dataAt, uint32(len(segData)), 4096)
	// Second segment: also vaddr 0, overlapping the first.
	putProg(1, 0, dataAt, 0, 0)

	copy(buf[dataAt:], segData)
	return buf
}

func TestSysExecOverlappingSegmentRollsBack(t *testing.T) {
	k, cur, tf := freshKernel(t)
	ip := k.FS.Create(cur.Cwd, "/overlap", 0)
	ip.WriteAt(buildOverlappingELF32([]byte("hi")), 0)

	oldPgdir, oldSz := cur.Pgdir, cur.Sz
	setStrArg(t, k, cur, tf, 0, "/overlap")
	_, err := k.sysExec(cur, tf)
	require.Equal(t, defs.ENOEXEC, err, "sysExec must reject a second PT_LOAD segment overlapping the first")
	require.Equal(t, oldPgdir, cur.Pgdir, "sysExec mutated the caller's page directory despite rejecting the overlap")
	require.Equal(t, oldSz, cur.Sz, "sysExec mutated the caller's size despite rejecting the overlap")
}
