package ustr

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseDropsEmptySegments(t *testing.T) {
	got := Parse("a//b/")
	want := Ustr{"a", "b"}
	require.True(t, got.Eq(want), "Parse(%q) = %v, want %v", "a//b/", got, want)
}

func TestIsdotIsdotdot(t *testing.T) {
	require.True(t, Parse(".").Isdot())
	require.True(t, Parse("..").Isdotdot())
	require.False(t, Parse("a").Isdot())
	require.False(t, Parse("a").Isdotdot())
}

func TestCleanResolvesDotDot(t *testing.T) {
	cases := map[string]string{
		"/a/b/../c": "/a/c",
		"/a/./b":    "/a/b",
		"/../a":     "/a",
		"/a/b":      "/a/b",
		"/":         "/",
	}
	for in, want := range cases {
		require.Equal(t, want, Clean(in), "Clean(%q)", in)
	}
}

func TestJoinRelativeAgainstCwd(t *testing.T) {
	require.Equal(t, "/a/b/c", Join("/a/b", "c"))
	require.Equal(t, "/a/c", Join("/a/b", "../c"))
}

func TestJoinAbsoluteIgnoresCwd(t *testing.T) {
	require.Equal(t, "/x/y", Join("/somewhere/else", "/x/y"))
}
