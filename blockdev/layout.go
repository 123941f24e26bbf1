package blockdev

import "github.com/arota-fs/simfs/common"

// Layout describes the on-image region boundaries. It is never stored
// verbatim; it is recomputed on every mount/format from the total block
// count, per spec §3/§4.1.
type Layout struct {
	SuperblockStart int
	SuperblockBlocks int

	InodeTableStart  int
	InodeTableBlocks int

	InodeBitmapStart  int
	InodeBitmapBlocks int

	DataBitmapStart  int
	DataBitmapBlocks int

	DataBlocksStart int
	DataBlocksCount int
}

// ComputeLayout derives the region layout from the total block count alone.
// Region order is fixed: superblock, inode table, inode bitmap, data
// bitmap, data blocks.
func ComputeLayout(totalBlocks int) Layout {
	var l Layout
	l.SuperblockStart = 0
	l.SuperblockBlocks = 1

	inodeCount := ceilDiv(totalBlocks/10, common.InodesPerBlock) * common.InodesPerBlock
	if inodeCount == 0 && totalBlocks > 10 {
		inodeCount = common.InodesPerBlock
	}

	l.InodeTableBlocks = inodeCount / common.InodesPerBlock
	l.InodeTableStart = l.SuperblockStart + l.SuperblockBlocks

	l.InodeBitmapBlocks = ceilDiv(inodeCount, common.BitsPerBlock)
	l.InodeBitmapStart = l.InodeTableStart + l.InodeTableBlocks

	l.DataBitmapBlocks = ceilDiv(totalBlocks, common.BitsPerBlock)
	l.DataBitmapStart = l.InodeBitmapStart + l.InodeBitmapBlocks

	l.DataBlocksStart = l.DataBitmapStart + l.DataBitmapBlocks
	if totalBlocks > l.DataBlocksStart {
		l.DataBlocksCount = totalBlocks - l.DataBlocksStart
	}

	return l
}

func ceilDiv(a, b int) int {
	if b == 0 {
		return 0
	}
	return (a + b - 1) / b
}

// TotalInodes is the number of inode slots the layout actually allocated.
func (l Layout) TotalInodes() int {
	return l.InodeTableBlocks * common.InodesPerBlock
}
