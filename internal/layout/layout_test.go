package layout

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMemoryLayoutConstants(t *testing.T) {
	require.EqualValues(t, 0x80000000, KERNBASE)
	require.Equal(t, EXTMEM, KERNLINK)
	require.Greater(t, uint64(DEVSPACE), uint64(KERNBASE))
}
