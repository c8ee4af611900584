package stat

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBytesLayout(t *testing.T) {
	var st Stat_t
	st.Wdev(1)
	st.Wino(2)
	st.Wmode(0o644)
	st.Wsize(12345)
	st.Wrdev(9)

	b := st.Bytes()
	require.Len(t, b, 24)
	require.EqualValues(t, 1, binary.LittleEndian.Uint32(b[0:4]), "dev")
	require.EqualValues(t, 2, binary.LittleEndian.Uint32(b[4:8]), "ino")
	require.EqualValues(t, 0o644, binary.LittleEndian.Uint32(b[8:12]), "mode")
	require.EqualValues(t, 12345, binary.LittleEndian.Uint64(b[12:20]), "size")
	require.EqualValues(t, 9, binary.LittleEndian.Uint32(b[20:24]), "rdev")
}

func TestAccessors(t *testing.T) {
	var st Stat_t
	st.Wmode(0o755)
	st.Wsize(42)
	st.Wrdev(3)
	st.Wino(7)
	require.EqualValues(t, 0o755, st.Mode())
	require.EqualValues(t, 42, st.Size())
	require.EqualValues(t, 3, st.Rdev())
	require.EqualValues(t, 7, st.Rino())
}
