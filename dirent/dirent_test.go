package dirent

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arota-fs/simfs/blockdev"
	"github.com/arota-fs/simfs/common"
	"github.com/arota-fs/simfs/fserrors"
	"github.com/arota-fs/simfs/inode"
)

func mustRootDir(t *testing.T, sizeMB int) (*Store, *inode.Store, int) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "disk.img")
	require.NoError(t, blockdev.CreateDisk(path, sizeMB))
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
	in.LinkCount = 2
	require.NoError(t, inodes.WriteInode(root, in))
	_, err = inodes.AllocateDataBlocks(root, 1)
	require.NoError(t, err)

	dirs := New(inodes)
	require.NoError(t, dirs.Write(root, []Entry{
		{InodeNumber: int32(root), Name: ".", NameLength: 1},
		{InodeNumber: int32(root), Name: "..", NameLength: 2},
	}))
	return dirs, inodes, root
}

func TestCreateProducesDotAndDotDot(t *testing.T) {
	dirs, _, root := mustRootDir(t, 2)
	child, err := dirs.Create(root, "docs")
	require.NoError(t, err)

	entries, err := dirs.Read(child)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, ".", entries[0].Name)
	assert.Equal(t, int32(child), entries[0].InodeNumber)
	assert.Equal(t, "..", entries[1].Name)
	assert.Equal(t, int32(root), entries[1].InodeNumber)
}

func TestCreateRejectsDuplicateName(t *testing.T) {
	dirs, _, root := mustRootDir(t, 2)
	_, err := dirs.Create(root, "docs")
	require.NoError(t, err)

	_, err = dirs.Create(root, "docs")
	assert.True(t, fserrors.Is(err, fserrors.FileAlreadyExists))
}

func TestCreateAddsEntryToParent(t *testing.T) {
	dirs, _, root := mustRootDir(t, 2)
	child, err := dirs.Create(root, "docs")
	require.NoError(t, err)

	names, err := dirs.List(root)
	require.NoError(t, err)
	assert.Contains(t, names, "docs")

	got, err := dirs.Read(root)
	require.NoError(t, err)
	found := false
	for _, e := range got {
		if e.Name == "docs" {
			found = true
			assert.Equal(t, int32(child), e.InodeNumber)
		}
	}
	assert.True(t, found)
}

func TestRemoveRejectsNonEmptyDirectory(t *testing.T) {
	dirs, inodes, root := mustRootDir(t, 2)
	child, err := dirs.Create(root, "docs")
	require.NoError(t, err)

	grandchild, err := inodes.AllocateInode()
	require.NoError(t, err)
	require.NoError(t, dirs.AddEntry(child, "readme.txt", grandchild))

	err = dirs.Remove(child, root, "docs")
	assert.True(t, fserrors.Is(err, fserrors.DirectoryNotEmpty))
}

func TestRemoveRejectsRoot(t *testing.T) {
	dirs, _, root := mustRootDir(t, 2)
	err := dirs.Remove(root, root, ".")
	assert.Error(t, err)
}

func TestRemoveDeletesEmptyDirectory(t *testing.T) {
	dirs, inodes, root := mustRootDir(t, 2)
	child, err := dirs.Create(root, "empty")
	require.NoError(t, err)

	require.NoError(t, dirs.Remove(child, root, "empty"))

	names, err := dirs.List(root)
	require.NoError(t, err)
	assert.NotContains(t, names, "empty")
	assert.False(t, inodes.IsInodeAllocated(child))
}

func TestAddEntryRejectsDuplicateName(t *testing.T) {
	dirs, inodes, root := mustRootDir(t, 2)
	n, err := inodes.AllocateInode()
	require.NoError(t, err)
	require.NoError(t, dirs.AddEntry(root, "a.txt", n))

	m, err := inodes.AllocateInode()
	require.NoError(t, err)
	err = dirs.AddEntry(root, "a.txt", m)
	assert.True(t, fserrors.Is(err, fserrors.FileAlreadyExists))
}

func TestRemoveEntryNotFound(t *testing.T) {
	dirs, _, root := mustRootDir(t, 2)
	err := dirs.RemoveEntry(root, "ghost")
	assert.True(t, fserrors.Is(err, fserrors.FileNotFound))
}

func TestReadRejectsNonDirectory(t *testing.T) {
	dirs, inodes, _ := mustRootDir(t, 2)
	n, err := inodes.AllocateInode()
	require.NoError(t, err)
	in, err := inodes.ReadInode(n)
	require.NoError(t, err)
	in.Mode = common.FileTypeRegular | common.PermRead
	require.NoError(t, inodes.WriteInode(n, in))

	_, err = dirs.Read(n)
	assert.True(t, fserrors.Is(err, fserrors.NotADirectory))
}

func TestWriteSpillsAcrossMultipleBlocks(t *testing.T) {
	dirs, _, root := mustRootDir(t, 8)
	// Force enough entries to require a second directory data block.
	count := common.DirEntriesPerBlock + 5
	for i := 0; i < count; i++ {
		_, err := dirs.Create(root, nameFor(i))
		require.NoError(t, err)
	}
	names, err := dirs.List(root)
	require.NoError(t, err)
	assert.Len(t, names, count+2) // plus "." and ".."
}

func nameFor(i int) string {
	const letters = "abcdefghijklmnopqrstuvwxyz"
	return string(letters[i%26]) + string(letters[(i/26)%26]) + string(rune('0'+i%10))
}
