package caller

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestStackIncludesCaller(t *testing.T) {
	s := Stack(0)
	require.Contains(t, s, "TestStackIncludesCaller")
}

func TestStackJoinsMultipleFrames(t *testing.T) {
	s := helperForStack()
	require.Contains(t, s, "helperForStack")
	require.Contains(t, s, "<-")
}

func helperForStack() string {
	return Stack(0)
}
