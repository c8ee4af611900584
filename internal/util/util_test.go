package util

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMinMax(t *testing.T) {
	require.EqualValues(t, 3, Min(3, 5))
	require.EqualValues(t, 5, Max(3, 5))
}

func TestRounddown(t *testing.T) {
	cases := []struct{ v, b, want uint32 }{
		{0, 4096, 0},
		{1, 4096, 0},
		{4096, 4096, 4096},
		{4097, 4096, 4096},
		{8191, 4096, 4096},
	}
	for _, c := range cases {
		require.Equal(t, c.want, Rounddown(c.v, c.b))
	}
}

func TestRoundup(t *testing.T) {
	cases := []struct{ v, b, want uint32 }{
		{0, 4096, 0},
		{1, 4096, 4096},
		{4096, 4096, 4096},
		{4097, 4096, 8192},
	}
	for _, c := range cases {
		require.Equal(t, c.want, Roundup(c.v, c.b))
	}
}
