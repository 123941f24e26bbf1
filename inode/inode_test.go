package inode

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arota-fs/simfs/blockdev"
	"github.com/arota-fs/simfs/common"
)

func mustFormattedStore(t *testing.T, sizeMB int) (*Store, *blockdev.FileDevice) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "disk.img")
	require.NoError(t, blockdev.CreateDisk(path, sizeMB))
	dev, err := blockdev.OpenDisk(path)
	require.NoError(t, err)
	t.Cleanup(func() { dev.Close() })

	layout, err := dev.Format()
	require.NoError(t, err)

	s := New(dev)
	require.NoError(t, s.Initialize(layout))
	return s, dev
}

func TestAllocateInodeIsZeroedAndLinked(t *testing.T) {
	s, _ := mustFormattedStore(t, 1)
	n, err := s.AllocateInode()
	require.NoError(t, err)

	in, err := s.ReadInode(n)
	require.NoError(t, err)
	assert.Equal(t, int32(1), in.LinkCount)
	assert.Equal(t, common.NoIndirectBlock, in.IndirectBlock)
	assert.Equal(t, common.NoIndirectBlock, in.DoubleIndirectBlock)
	for _, p := range in.DirectBlocks {
		assert.Equal(t, common.NoDirectBlock, p)
	}
}

func TestAllocateInodeMonotoneUnique(t *testing.T) {
	s, _ := mustFormattedStore(t, 1)
	a, err := s.AllocateInode()
	require.NoError(t, err)
	b, err := s.AllocateInode()
	require.NoError(t, err)
	assert.NotEqual(t, a, b)

	require.NoError(t, s.FreeInode(a))
	c, err := s.AllocateInode()
	require.NoError(t, err)
	assert.Equal(t, a, c, "freeing a releases its bit for reuse")
}

func TestWriteInodeIsolatesNeighborsInSameBlock(t *testing.T) {
	s, _ := mustFormattedStore(t, 1)
	a, err := s.AllocateInode()
	require.NoError(t, err)
	b, err := s.AllocateInode()
	require.NoError(t, err)

	inA, err := s.ReadInode(a)
	require.NoError(t, err)
	inA.Size = 1234
	require.NoError(t, s.WriteInode(a, inA))

	inB, err := s.ReadInode(b)
	require.NoError(t, err)
	inB.Size = 9999
	require.NoError(t, s.WriteInode(b, inB))

	gotA, err := s.ReadInode(a)
	require.NoError(t, err)
	assert.Equal(t, int64(1234), gotA.Size, "writing b must not clobber a's slot in the shared block")
}

func TestFreeInodesConservationInvariant(t *testing.T) {
	s, _ := mustFormattedStore(t, 1)
	total := s.TotalInodes()
	var allocated []int
	for i := 0; i < 5; i++ {
		n, err := s.AllocateInode()
		require.NoError(t, err)
		allocated = append(allocated, n)
	}
	assert.Equal(t, total-5, s.FreeInodes())

	for _, n := range allocated {
		require.NoError(t, s.FreeInode(n))
	}
	assert.Equal(t, total, s.FreeInodes())
}

func TestReadInodeRejectsOutOfRange(t *testing.T) {
	s, _ := mustFormattedStore(t, 1)
	_, err := s.ReadInode(-1)
	assert.Error(t, err)
	_, err = s.ReadInode(s.TotalInodes() + 100)
	assert.Error(t, err)
}

func TestAllocateDataBlocksDirectOnly(t *testing.T) {
	s, _ := mustFormattedStore(t, 1)
	n, err := s.AllocateInode()
	require.NoError(t, err)

	blocks, err := s.AllocateDataBlocks(n, 3)
	require.NoError(t, err)
	assert.Len(t, blocks, 3)

	got, err := s.GetDataBlocks(n)
	require.NoError(t, err)
	assert.Equal(t, blocks, got, "GetDataBlocks order is the file's byte order")
}

func TestAllocateDataBlocksSpillsIntoIndirect(t *testing.T) {
	s, _ := mustFormattedStore(t, 4)
	n, err := s.AllocateInode()
	require.NoError(t, err)

	total := common.DirectBlocksCount + 20
	_, err = s.AllocateDataBlocks(n, total)
	require.NoError(t, err)

	got, err := s.GetDataBlocks(n)
	require.NoError(t, err)
	assert.Len(t, got, total)

	in, err := s.ReadInode(n)
	require.NoError(t, err)
	assert.NotEqual(t, common.NoIndirectBlock, in.IndirectBlock)
}

func TestAllocateDataBlocksSpillsIntoDoubleIndirect(t *testing.T) {
	s, _ := mustFormattedStore(t, 20)
	n, err := s.AllocateInode()
	require.NoError(t, err)

	total := common.DirectBlocksCount + common.PointersPerBlock + 10
	_, err = s.AllocateDataBlocks(n, total)
	require.NoError(t, err)

	got, err := s.GetDataBlocks(n)
	require.NoError(t, err)
	assert.Len(t, got, total)

	in, err := s.ReadInode(n)
	require.NoError(t, err)
	assert.NotEqual(t, common.NoIndirectBlock, in.DoubleIndirectBlock)
}

func TestFreeDataBlocksReleasesEverythingIncludingIndirectionTree(t *testing.T) {
	s, _ := mustFormattedStore(t, 20)
	n, err := s.AllocateInode()
	require.NoError(t, err)

	total := common.DirectBlocksCount + common.PointersPerBlock + 5
	_, err = s.AllocateDataBlocks(n, total)
	require.NoError(t, err)
	freeAfterAlloc := s.FreeDataBitCount()

	require.NoError(t, s.FreeDataBlocks(n))

	got, err := s.GetDataBlocks(n)
	require.NoError(t, err)
	assert.Empty(t, got)

	// Every block — direct, indirect, double-indirect, and the inner
	// indirect block — must be back on the free list: the total data
	// blocks + 1 indirect + 1 double-indirect + 1 inner indirect pointer
	// block.
	freeAfterFree := s.FreeDataBitCount()
	assert.Equal(t, freeAfterAlloc+total+3, freeAfterFree)

	in, err := s.ReadInode(n)
	require.NoError(t, err)
	assert.Equal(t, int64(0), in.Size)
	assert.Equal(t, common.NoIndirectBlock, in.IndirectBlock)
	assert.Equal(t, common.NoIndirectBlock, in.DoubleIndirectBlock)
}

func TestAllocateDataBlocksRollsBackOnDiskFull(t *testing.T) {
	s, _ := mustFormattedStore(t, 1)
	n, err := s.AllocateInode()
	require.NoError(t, err)

	freeBefore := s.FreeDataBitCount()
	_, err = s.AllocateDataBlocks(n, freeBefore+1000)
	assert.Error(t, err)
	assert.Equal(t, freeBefore, s.FreeDataBitCount(), "a failed allocation must not leak reserved bits")
}
