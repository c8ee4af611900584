// Package fsiface is the external collaborator spec.md §6 calls out: the
// on-disk file system and its logging layer are out of the core's scope,
// but exec, open, unlink and friends still need something that looks like
// bread/bwrite and a minimal inode to round-trip through. This is that
// something — deliberately thin, with no directory tree, crash-consistent
// log, or block cache, just enough surface for the core's process
// lifecycle to exercise a real collaborator instead of a stub. Grounded on
// original_source/defs.h's bio.c/fs.c prototypes and spec.md §6's
// "Disk collaborator" paragraph.
package fsiface

import (
	"sync"

	"github.com/j-gatsby/biscuit/internal/ide"
	"github.com/j-gatsby/biscuit/internal/proc"
	"github.com/j-gatsby/biscuit/internal/ustr"
)

// Inode_t is a minimal in-memory file: a byte blob addressed by path.
// Real inodes carry device/inum identity and a block list; this
// collaborator keeps its backing bytes directly, which is enough for
// exec's readi calls and for open/unlink round-trips in tests.
type Inode_t struct {
	Path string
	Mode int

	mu   sync.Mutex
	data []byte
}

// ReadAt satisfies vm.Reader, letting loaduvm pull ELF segments straight
// out of an inode.
func (ip *Inode_t) ReadAt(dst []byte, off int) (int, error) {
	ip.mu.Lock()
	defer ip.mu.Unlock()
	if off >= len(ip.data) {
		return 0, nil
	}
	n := copy(dst, ip.data[off:])
	return n, nil
}

// WriteAt overwrites ip's contents starting at off, growing as needed.
func (ip *Inode_t) WriteAt(src []byte, off int) int {
	ip.mu.Lock()
	defer ip.mu.Unlock()
	need := off + len(src)
	if need > len(ip.data) {
		grown := make([]byte, need)
		copy(grown, ip.data)
		ip.data = grown
	}
	return copy(ip.data[off:], src)
}

// Size reports the inode's current byte length.
func (ip *Inode_t) Size() int {
	ip.mu.Lock()
	defer ip.mu.Unlock()
	return len(ip.data)
}

// FS_t is the collaborator: a flat namespace of inodes plus pass-through
// access to the disk queue for Bread/Bwrite callers that want real block
// I/O (e.g. a future log layer) rather than the in-memory fast path.
type FS_t struct {
	disk  *ide.Disk_t
	table *proc.Table_t

	mu     sync.Mutex
	inodes map[string]*Inode_t
}

// New returns an empty namespace backed by disk.
func New(disk *ide.Disk_t, t *proc.Table_t) *FS_t {
	return &FS_t{disk: disk, table: t, inodes: make(map[string]*Inode_t)}
}

// BeginOp and EndOp bracket a mutating operation. The real kernel journals
// writes between these calls so a crash never leaves the disk
// inconsistent; this collaborator has no log, so they are transaction
// markers only — kept so exec/exit/unlink's call sites look, and read,
// exactly like the real thing.
func (fs *FS_t) BeginOp() {}
func (fs *FS_t) EndOp()   {}

// Namei resolves path (relative to cwd if not absolute) to its inode,
// after cleaning "." and ".." components the way namei() does before ever
// touching a directory block.
func (fs *FS_t) Namei(cwd, path string) (*Inode_t, bool) {
	clean := ustr.Join(cwd, path)
	fs.mu.Lock()
	defer fs.mu.Unlock()
	ip, ok := fs.inodes[clean]
	return ip, ok
}

// Create makes (or replaces) an empty inode at path.
func (fs *FS_t) Create(cwd, path string, mode int) *Inode_t {
	clean := ustr.Join(cwd, path)
	fs.mu.Lock()
	defer fs.mu.Unlock()
	ip := &Inode_t{Path: clean, Mode: mode}
	fs.inodes[clean] = ip
	return ip
}

// AliasUnsafe makes newPath resolve to the same Inode_t as an already
// resolved path. Stands in for link(2)'s directory-entry aliasing: the
// real kernel bumps an on-disk link count, but this namespace has no
// directory entries of its own, only the inodes map itself, so aliasing
// a second key onto the same *Inode_t is the honest equivalent.
func (fs *FS_t) AliasUnsafe(cwd, newPath, existingClean string) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	ip, ok := fs.inodes[existingClean]
	if !ok {
		return
	}
	fs.inodes[ustr.Join(cwd, newPath)] = ip
}

// Unlink removes path, reporting whether it existed.
func (fs *FS_t) Unlink(cwd, path string) bool {
	clean := ustr.Join(cwd, path)
	fs.mu.Lock()
	defer fs.mu.Unlock()
	if _, ok := fs.inodes[clean]; !ok {
		return false
	}
	delete(fs.inodes, clean)
	return true
}

// Bread reads block blockno of dev through the disk queue, returning a
// locked buffer the caller must Brelse.
func (fs *FS_t) Bread(cur *proc.Proc_t, dev int, blockno uint32) *ide.Buf_t {
	b := fs.disk.NewBuf(dev, blockno)
	b.Lock.Acquire(cur)
	fs.disk.Iderw(cur, b)
	return b
}

// Bwrite marks b dirty and pushes it through the disk queue synchronously.
func (fs *FS_t) Bwrite(cur *proc.Proc_t, b *ide.Buf_t) {
	b.SetDirty()
	fs.disk.Iderw(cur, b)
}

// Brelse releases a buffer obtained from Bread.
func (fs *FS_t) Brelse(b *ide.Buf_t) {
	b.Lock.Release()
}
