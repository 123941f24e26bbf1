package pathfs

import (
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arota-fs/simfs/blockdev"
	"github.com/arota-fs/simfs/common"
	"github.com/arota-fs/simfs/dirent"
	"github.com/arota-fs/simfs/inode"
)

func TestNormalizeCollapsesBackslashesAndSlashes(t *testing.T) {
	assert.Equal(t, "/a/b/c", Normalize(`\a\\b//c`))
	assert.Equal(t, "/", Normalize("/"))
	assert.Equal(t, "/a", Normalize("/a/"))
	assert.Equal(t, "/a/b", Normalize("//a///b//"))
}

func TestValidateRejectsBadPaths(t *testing.T) {
	assert.Error(t, Validate(""))
	assert.Error(t, Validate(strings.Repeat("a", 2000)))
	assert.Error(t, Validate("/a\x00b"))
	assert.Error(t, Validate("/a\r\n"))
	assert.NoError(t, Validate("/docs/readme.txt"))
}

func TestParseSplitsIntoComponents(t *testing.T) {
	parts, err := Parse("/docs//readme.txt")
	require.NoError(t, err)
	assert.Equal(t, []string{"docs", "readme.txt"}, parts)

	parts, err = Parse("/")
	require.NoError(t, err)
	assert.Empty(t, parts)
}

func TestBasenameAndParent(t *testing.T) {
	base, err := Basename("/docs/readme.txt")
	require.NoError(t, err)
	assert.Equal(t, "readme.txt", base)

	parent, err := Parent("/docs/readme.txt")
	require.NoError(t, err)
	assert.Equal(t, "/docs", parent)

	parent, err = Parent("/readme.txt")
	require.NoError(t, err)
	assert.Equal(t, "/", parent)
}

// mustRootResolver builds a minimal mounted image with a root directory
// containing one child directory ("docs") and one file inside it
// ("readme.txt"), for exercising Resolver.
func mustRootResolver(t *testing.T) (*Resolver, int, int, int) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "disk.img")
	require.NoError(t, blockdev.CreateDisk(path, 2))
	dev, err := blockdev.OpenDisk(path)
	require.NoError(t, err)
	t.Cleanup(func() { dev.Close() })

	layout, err := dev.Format()
	require.NoError(t, err)

	inodes := inode.New(dev)
	require.NoError(t, inodes.Initialize(layout))

	root, err := inodes.AllocateInode()
	require.NoError(t, err)
	in, err := inodes.ReadInode(root)
	require.NoError(t, err)
	in.Mode = common.FileTypeDirectory | common.PermRead | common.PermWrite | common.PermExecute
	require.NoError(t, inodes.WriteInode(root, in))
	_, err = inodes.AllocateDataBlocks(root, 1)
	require.NoError(t, err)

	dirs := dirent.New(inodes)
	require.NoError(t, dirs.Write(root, []dirent.Entry{
		{InodeNumber: int32(root), Name: ".", NameLength: 1},
		{InodeNumber: int32(root), Name: "..", NameLength: 2},
	}))

	docs, err := dirs.Create(root, "docs")
	require.NoError(t, err)

	file, err := inodes.AllocateInode()
	require.NoError(t, err)
	require.NoError(t, dirs.AddEntry(docs, "readme.txt", file))

	return New(dirs), root, docs, file
}

func TestFindInodeResolvesNestedPath(t *testing.T) {
	r, root, docs, file := mustRootResolver(t)

	assert.Equal(t, root, mustFind(t, r, "/"))
	assert.Equal(t, docs, mustFind(t, r, "/docs"))
	assert.Equal(t, file, mustFind(t, r, "/docs/readme.txt"))
}

func TestFindInodeNotFound(t *testing.T) {
	r, _, _, _ := mustRootResolver(t)
	_, err := r.FindInode("/ghost")
	assert.Error(t, err)
}

func TestFileExists(t *testing.T) {
	r, _, _, _ := mustRootResolver(t)
	assert.True(t, r.FileExists("/docs/readme.txt"))
	assert.False(t, r.FileExists("/docs/missing.txt"))
}

func TestFindInodeFollowsPhysicalDotDot(t *testing.T) {
	r, root, docs, _ := mustRootResolver(t)
	// ".." is a physical directory entry, not a resolver fiction.
	assert.Equal(t, root, mustFind(t, r, "/docs/.."))
	assert.Equal(t, docs, mustFind(t, r, "/docs/."))
}

func mustFind(t *testing.T, r *Resolver, path string) int {
	t.Helper()
	n, err := r.FindInode(path)
	require.NoError(t, err)
	return n
}
