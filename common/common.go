// Package common holds the on-image constants shared by every simfs layer:
// block geometry, the magic number, file-type/permission/open-mode bits,
// and the fixed on-disk record sizes that the layout computation in
// blockdev depends on.
//
// Adapted from the teacher's common/common.go, which held the equivalent
// block-geometry and sentinel constants (NBITBLOCK, INODESZ, NULLINUM,
// NULLBNUM) for the journaled on-disk format; here the constants describe
// simfs's own superblock/inode/directory-entry layout instead.
package common

const (
	// BlockSize is the fixed unit of on-disk I/O and allocation.
	BlockSize = 4096
	// BitsPerBlock is how many bitmap bits one block of bitmap can hold.
	BitsPerBlock = BlockSize * 8

	// MagicNumber identifies a mountable image ("MIND" as hex ASCII; stored
	// little-endian, its bytes read "DNIM").
	MagicNumber int32 = 0x4D494E44

	MaxFilenameLength = 256
	MaxPathLength      = 1024

	DirectBlocksCount = 10

	// NoIndirectBlock is the sentinel for "this inode has no indirect block".
	NoIndirectBlock int32 = -1
	// NoDirectBlock is the sentinel for an unused direct-block slot; block 0
	// is the superblock and is never addressable as data.
	NoDirectBlock int32 = 0

	FileTypeRegular   = 0x8000
	FileTypeDirectory = 0x4000

	PermRead    = 0x400
	PermWrite   = 0x200
	PermExecute = 0x100

	OpenRead   = 0x01
	OpenWrite  = 0x02
	OpenCreate = 0x04
	OpenAppend = 0x08

	// SuperblockSize is the packed byte size of the Superblock record (12
	// little-endian int32 fields).
	SuperblockSize = 12 * 4

	// InodeSize is the packed byte size of one Inode record: mode, owner,
	// group, size, access/modification/creation time, link count (8 int32),
	// 10 direct pointers, indirect, double-indirect (12 int32) = 20 int32.
	InodeSize = 20 * 4
	// InodesPerBlock is floor(BlockSize / InodeSize).
	InodesPerBlock = BlockSize / InodeSize

	// DirEntrySize is the packed byte size of one DirectoryEntry record:
	// inode number (int32) + name[256] + name length (int32).
	DirEntrySize = 4 + MaxFilenameLength + 4
	// DirEntriesPerBlock is floor(BlockSize / DirEntrySize).
	DirEntriesPerBlock = BlockSize / DirEntrySize

	// PointersPerBlock is how many int32 block pointers fit in one indirect
	// block.
	PointersPerBlock = BlockSize / 4
)
