package zarr

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSplitPath(t *testing.T) {
	require.Equal(t, []string{"a", "b", "c"}, SplitPath("a/b/c"))
	require.Equal(t, []string{"a", "b"}, SplitPath("/a//b/"))
	require.Empty(t, SplitPath("/"))
	require.Empty(t, SplitPath(""))
}

func TestCleanAndJoinPath(t *testing.T) {
	require.Equal(t, "", CleanPath("/"))
	require.Equal(t, "a/b", CleanPath("//a/b/"))
	require.Equal(t, "a/b", JoinPath("/a", "b"))
	require.Equal(t, "b", JoinPath("", "b"))
}

func TestSplitParent(t *testing.T) {
	parent, name, err := splitParent("/grp/sub/data")
	require.NoError(t, err)
	require.Equal(t, "grp/sub", parent)
	require.Equal(t, "data", name)

	parent, name, err = splitParent("data")
	require.NoError(t, err)
	require.Equal(t, "", parent)
	require.Equal(t, "data", name)

	for _, bad := range []string{"", "/", "a/../b", "a/.zarray", "./x"} {
		_, _, err := splitParent(bad)
		require.ErrorIs(t, err, ErrInvalidPath, bad)
	}
}

func TestStoreKey(t *testing.T) {
	require.Equal(t, ".zgroup", storeKey("", groupKey))
	require.Equal(t, "a/b/.zarray", storeKey("a/b", arrayKey))
}
