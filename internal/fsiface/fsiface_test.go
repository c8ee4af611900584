package fsiface

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func freshFS() *FS_t {
	return New(nil, nil)
}

func TestCreateThenNamei(t *testing.T) {
	fs := freshFS()
	fs.Create("/", "foo", 0)
	ip, ok := fs.Namei("/", "foo")
	require.True(t, ok, "Namei did not find a path just created")
	require.Equal(t, "/foo", ip.Path)
}

func TestNameiResolvesRelativeToCwd(t *testing.T) {
	fs := freshFS()
	fs.Create("/a/b", "foo", 0)
	_, ok := fs.Namei("/", "foo")
	require.False(t, ok, "Namei found /foo but only /a/b/foo was created")
	_, ok = fs.Namei("/a/b", "foo")
	require.True(t, ok, "Namei did not resolve foo relative to cwd /a/b")
	_, ok = fs.Namei("/a/c", "../b/foo")
	require.True(t, ok, "Namei did not resolve ../b/foo relative to cwd /a/c")
}

func TestUnlinkRemovesAndReportsPresence(t *testing.T) {
	fs := freshFS()
	fs.Create("/", "foo", 0)
	require.True(t, fs.Unlink("/", "foo"), "Unlink reported false for a path that existed")
	require.False(t, fs.Unlink("/", "foo"), "Unlink reported true for a path already removed")
	_, ok := fs.Namei("/", "foo")
	require.False(t, ok, "Namei still finds an unlinked path")
}

func TestAliasUnsafeSharesInode(t *testing.T) {
	fs := freshFS()
	ip := fs.Create("/", "orig", 0)
	ip.WriteAt([]byte("hello"), 0)

	fs.AliasUnsafe("/", "alias", "/orig")
	got, ok := fs.Namei("/", "alias")
	require.True(t, ok, "Namei did not find the aliased path")
	require.Same(t, ip, got, "AliasUnsafe did not alias the same *Inode_t")

	buf := make([]byte, 5)
	got.ReadAt(buf, 0)
	require.Equal(t, "hello", string(buf))
}

func TestAliasUnsafeNoopOnMissingSource(t *testing.T) {
	fs := freshFS()
	fs.AliasUnsafe("/", "alias", "/nonexistent")
	_, ok := fs.Namei("/", "alias")
	require.False(t, ok, "AliasUnsafe created an alias for a source path that does not exist")
}

func TestInodeReadWriteAtGrows(t *testing.T) {
	ip := &Inode_t{}
	n := ip.WriteAt([]byte("hello"), 2)
	require.Equal(t, 5, n)
	require.Equal(t, 7, ip.Size())

	buf := make([]byte, 5)
	got, err := ip.ReadAt(buf, 2)
	require.NoError(t, err)
	require.Equal(t, 5, got)
	require.Equal(t, "hello", string(buf))
}

func TestInodeReadAtPastEndReturnsZero(t *testing.T) {
	ip := &Inode_t{}
	ip.WriteAt([]byte("ab"), 0)
	buf := make([]byte, 4)
	n, err := ip.ReadAt(buf, 10)
	require.NoError(t, err)
	require.Zero(t, n)
}
