// Package stat mirrors the fixed-layout struct stat copied out to user
// space by the fstat syscall. Adapted from biscuit/src/stat/stat.go: the
// field set is unchanged, but Wsize/Wmode etc. now take the fixed-width
// types fsiface actually has on hand (uint32/uint64) and Bytes lays the
// struct out explicitly instead of reinterpreting it via unsafe, since
// there is no hardware ABI here to match byte-for-byte.
package stat

import "encoding/binary"

// Stat_t mirrors a file's metadata as copied out to user space.
type Stat_t struct {
	dev    uint32
	ino    uint32
	mode   uint32
	size   uint64
	rdev   uint32
}

func (st *Stat_t) Wdev(v uint32)  { st.dev = v }
func (st *Stat_t) Wino(v uint32)  { st.ino = v }
func (st *Stat_t) Wmode(v uint32) { st.mode = v }
func (st *Stat_t) Wsize(v uint64) { st.size = v }
func (st *Stat_t) Wrdev(v uint32) { st.rdev = v }

func (st *Stat_t) Mode() uint32 { return st.mode }
func (st *Stat_t) Size() uint64 { return st.size }
func (st *Stat_t) Rdev() uint32 { return st.rdev }
func (st *Stat_t) Rino() uint32 { return st.ino }

// Bytes serializes st in a fixed little-endian layout suitable for
// copying into user memory via vm.VM_t.Copyout.
func (st *Stat_t) Bytes() []byte {
	b := make([]byte, 24)
	binary.LittleEndian.PutUint32(b[0:4], st.dev)
	binary.LittleEndian.PutUint32(b[4:8], st.ino)
	binary.LittleEndian.PutUint32(b[8:12], st.mode)
	binary.LittleEndian.PutUint64(b[12:20], st.size)
	binary.LittleEndian.PutUint32(b[20:24], st.rdev)
	return b
}
