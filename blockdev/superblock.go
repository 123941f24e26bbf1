package blockdev

import (
	"encoding/binary"

	"github.com/arota-fs/simfs/common"
)

// Superblock is the global metadata record stored at block 0.
type Superblock struct {
	MagicNumber      int32
	TotalBlocks      int32
	FreeBlocks       int32
	TotalInodes      int32
	FreeInodes       int32
	BlockSize        int32
	InodeTableStart  int32
	DataBlocksStart  int32
	InodeBitmapStart int32
	DataBitmapStart  int32
	MountTime        int32
	WriteTime        int32
}

// MarshalBinary packs the superblock into a fixed-size little-endian
// record. The caller embeds it at the front of a zeroed block buffer.
func (s Superblock) MarshalBinary() []byte {
	buf := make([]byte, common.SuperblockSize)
	fields := []int32{
		s.MagicNumber, s.TotalBlocks, s.FreeBlocks, s.TotalInodes, s.FreeInodes,
		s.BlockSize, s.InodeTableStart, s.DataBlocksStart, s.InodeBitmapStart,
		s.DataBitmapStart, s.MountTime, s.WriteTime,
	}
	for i, v := range fields {
		binary.LittleEndian.PutUint32(buf[i*4:], uint32(v))
	}
	return buf
}

// UnmarshalBinary reads a superblock out of a block buffer.
func (s *Superblock) UnmarshalBinary(buf []byte) {
	read := func(i int) int32 { return int32(binary.LittleEndian.Uint32(buf[i*4:])) }
	s.MagicNumber = read(0)
	s.TotalBlocks = read(1)
	s.FreeBlocks = read(2)
	s.TotalInodes = read(3)
	s.FreeInodes = read(4)
	s.BlockSize = read(5)
	s.InodeTableStart = read(6)
	s.DataBlocksStart = read(7)
	s.InodeBitmapStart = read(8)
	s.DataBitmapStart = read(9)
	s.MountTime = read(10)
	s.WriteTime = read(11)
}

// ToLayout reconstructs a Layout from a loaded superblock; used on mount so
// the region boundaries come from the persisted fields rather than being
// guessed.
func (s Superblock) ToLayout() Layout {
	l := ComputeLayout(int(s.TotalBlocks))
	l.InodeTableStart = int(s.InodeTableStart)
	l.InodeBitmapStart = int(s.InodeBitmapStart)
	l.DataBitmapStart = int(s.DataBitmapStart)
	l.DataBlocksStart = int(s.DataBlocksStart)
	return l
}
