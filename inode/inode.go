// Package inode implements the inode table: allocation, read-modify-write
// inode updates, and the direct/single-indirect/double-indirect data-block
// addressing scheme described in spec §3/§4.3.
//
// Grounded on the original C++ InodeManager (original_source/src/core/
// inode_manager.cpp) for the block-pointer rebuild algorithm, and on the
// teacher's buf/addr.go Addr type (block number + bit offset) for the
// shape of "a location inside a block" used by the bitmap-backed
// allocators in package bitmap.
package inode

import (
	"encoding/binary"
	"time"

	"github.com/arota-fs/simfs/bitmap"
	"github.com/arota-fs/simfs/blockdev"
	"github.com/arota-fs/simfs/common"
	"github.com/arota-fs/simfs/diag"
	"github.com/arota-fs/simfs/fserrors"
)

var log = diag.WithComponent("inode")

// Inode is the in-memory representation of one inode record. Size is
// widened to int64 per spec §9's design note even though the on-disk
// record keeps a signed 32-bit field.
type Inode struct {
	Mode             int32
	OwnerID          int32
	GroupID          int32
	Size             int64
	AccessTime       int32
	ModificationTime int32
	CreationTime     int32
	LinkCount        int32

	DirectBlocks        [common.DirectBlocksCount]int32
	IndirectBlock       int32
	DoubleIndirectBlock int32
}

// IsDirectory reports whether the directory type bit is set.
func (in Inode) IsDirectory() bool { return in.Mode&common.FileTypeDirectory != 0 }

// IsRegular reports whether the regular-file type bit is set.
func (in Inode) IsRegular() bool { return in.Mode&common.FileTypeRegular != 0 }

func (in Inode) marshalInto(buf []byte) {
	put := func(i int, v int32) { binary.LittleEndian.PutUint32(buf[i*4:], uint32(v)) }
	put(0, in.Mode)
	put(1, in.OwnerID)
	put(2, in.GroupID)
	put(3, int32(in.Size))
	put(4, in.AccessTime)
	put(5, in.ModificationTime)
	put(6, in.CreationTime)
	put(7, in.LinkCount)
	for i, p := range in.DirectBlocks {
		put(8+i, p)
	}
	put(8+common.DirectBlocksCount, in.IndirectBlock)
	put(8+common.DirectBlocksCount+1, in.DoubleIndirectBlock)
}

func (in *Inode) unmarshalFrom(buf []byte) {
	get := func(i int) int32 { return int32(binary.LittleEndian.Uint32(buf[i*4:])) }
	in.Mode = get(0)
	in.OwnerID = get(1)
	in.GroupID = get(2)
	in.Size = int64(get(3))
	in.AccessTime = get(4)
	in.ModificationTime = get(5)
	in.CreationTime = get(6)
	in.LinkCount = get(7)
	for i := range in.DirectBlocks {
		in.DirectBlocks[i] = get(8 + i)
	}
	in.IndirectBlock = get(8 + common.DirectBlocksCount)
	in.DoubleIndirectBlock = get(8 + common.DirectBlocksCount + 1)
}

// Store owns the inode table and the two bitmaps (inode, data) that back
// it.
type Store struct {
	dev    blockdev.Device
	layout blockdev.Layout

	inodeBitmap *bitmap.Bitmap
	dataBitmap  *bitmap.Bitmap

	initialized bool
}

// New returns an uninitialized Store; call Initialize before use.
func New(dev blockdev.Device) *Store {
	return &Store{dev: dev}
}

// Initialize (re)creates the bitmaps for the given layout and loads their
// contents from disk. The data bitmap carries one bit per total block, per
// spec §3: bits below layout.DataBlocksStart are pinned allocated so they
// are never handed out by AllocateDataBlocks.
func (s *Store) Initialize(layout blockdev.Layout) error {
	const op = "InodeStore.Initialize"
	s.layout = layout
	s.inodeBitmap = bitmap.New(layout.TotalInodes())
	s.dataBitmap = bitmap.New(s.dev.TotalBlocks())

	if err := s.inodeBitmap.LoadFromDevice(s.dev, layout.InodeBitmapStart, layout.InodeBitmapBlocks); err != nil {
		return fserrors.Wrap(err, fserrors.IOError, op)
	}
	if err := s.dataBitmap.LoadFromDevice(s.dev, layout.DataBitmapStart, layout.DataBitmapBlocks); err != nil {
		return fserrors.Wrap(err, fserrors.IOError, op)
	}
	if err := s.pinNonDataBits(); err != nil {
		return fserrors.Wrap(err, fserrors.IOError, op)
	}
	s.initialized = true
	return nil
}

// pinNonDataBits marks every bit below DataBlocksStart as allocated so
// AllocateDataBlocks's first-fit scan never hands out a superblock,
// inode-table, or bitmap block.
func (s *Store) pinNonDataBits() error {
	changed := false
	for i := 0; i < s.layout.DataBlocksStart; i++ {
		if !s.dataBitmap.IsAllocated(i) {
			if _, err := s.dataBitmap.AllocateBitAt(i); err != nil {
				return err
			}
			changed = true
		}
	}
	if changed {
		return s.saveDataBitmap()
	}
	return nil
}

func (s *Store) checkInitialized(op string) error {
	if !s.initialized {
		return fserrors.New(fserrors.InvalidArgument, op)
	}
	return nil
}

func (s *Store) saveInodeBitmap() error {
	return s.inodeBitmap.SaveToDevice(s.dev, s.layout.InodeBitmapStart, s.layout.InodeBitmapBlocks)
}

func (s *Store) saveDataBitmap() error {
	return s.dataBitmap.SaveToDevice(s.dev, s.layout.DataBitmapStart, s.layout.DataBitmapBlocks)
}

// ReloadBitmaps reloads both bitmaps from disk, e.g. after a format.
func (s *Store) ReloadBitmaps() error {
	const op = "InodeStore.ReloadBitmaps"
	if err := s.checkInitialized(op); err != nil {
		return err
	}
	if err := s.inodeBitmap.LoadFromDevice(s.dev, s.layout.InodeBitmapStart, s.layout.InodeBitmapBlocks); err != nil {
		return fserrors.Wrap(err, fserrors.IOError, op)
	}
	if err := s.dataBitmap.LoadFromDevice(s.dev, s.layout.DataBitmapStart, s.layout.DataBitmapBlocks); err != nil {
		return fserrors.Wrap(err, fserrors.IOError, op)
	}
	return s.pinNonDataBits()
}

// ReadBlockRaw and WriteBlockRaw give higher layers (DirectoryStore) direct
// access to a data block's bytes without duplicating the Store's device
// handle; block-pointer semantics stay entirely inside this package.
func (s *Store) ReadBlockRaw(block int, buf []byte) error {
	return s.dev.ReadBlock(block, buf)
}

func (s *Store) WriteBlockRaw(block int, buf []byte) error {
	return s.dev.WriteBlock(block, buf)
}

// TotalInodes, FreeInodes, FreeDataBitCount expose the O(1) bitmap
// counters. FreeDataBitCount is named distinctly from the FreeDataBlocks
// operation in blocks.go, which releases one inode's data blocks.
func (s *Store) TotalInodes() int      { return s.inodeBitmap.TotalBits() }
func (s *Store) FreeInodes() int       { return s.inodeBitmap.FreeBits() }
func (s *Store) FreeDataBitCount() int { return s.dataBitmap.FreeBits() }

// IsInodeAllocated reports whether inodeNum is currently allocated.
func (s *Store) IsInodeAllocated(inodeNum int) bool {
	if !s.initialized {
		return false
	}
	return s.inodeBitmap.IsAllocated(inodeNum)
}

func (s *Store) inodePosition(inodeNum int) (block, offset int, err error) {
	if inodeNum < 0 || inodeNum >= s.inodeBitmap.TotalBits() {
		return 0, 0, fserrors.New(fserrors.InvalidInode, "InodeStore.inodePosition")
	}
	block = s.layout.InodeTableStart + inodeNum/common.InodesPerBlock
	offset = (inodeNum % common.InodesPerBlock) * common.InodeSize
	return block, offset, nil
}

// ReadInode loads inode n from the table.
func (s *Store) ReadInode(n int) (Inode, error) {
	const op = "InodeStore.ReadInode"
	if err := s.checkInitialized(op); err != nil {
		return Inode{}, err
	}
	block, offset, err := s.inodePosition(n)
	if err != nil {
		return Inode{}, err
	}
	buf := make([]byte, s.dev.BlockSize())
	if err := s.dev.ReadBlock(block, buf); err != nil {
		return Inode{}, fserrors.Wrap(err, fserrors.IOError, op)
	}
	var in Inode
	in.unmarshalFrom(buf[offset : offset+common.InodeSize])
	return in, nil
}

// WriteInode persists inode n via read-modify-write, preserving the other
// inodes packed into the same block.
func (s *Store) WriteInode(n int, in Inode) error {
	const op = "InodeStore.WriteInode"
	if err := s.checkInitialized(op); err != nil {
		return err
	}
	block, offset, err := s.inodePosition(n)
	if err != nil {
		return err
	}
	buf := make([]byte, s.dev.BlockSize())
	if err := s.dev.ReadBlock(block, buf); err != nil {
		return fserrors.Wrap(err, fserrors.IOError, op)
	}
	in.marshalInto(buf[offset : offset+common.InodeSize])
	if err := s.dev.WriteBlock(block, buf); err != nil {
		return fserrors.Wrap(err, fserrors.IOError, op)
	}
	return nil
}

// AllocateInode takes a free inode bit, zero-initializes the inode, and
// persists both. On any sub-step failure the bitmap change is rolled back.
func (s *Store) AllocateInode() (int, error) {
	const op = "InodeStore.AllocateInode"
	if err := s.checkInitialized(op); err != nil {
		return -1, err
	}
	n, err := s.inodeBitmap.AllocateBit()
	if err != nil {
		return -1, fserrors.Wrap(err, fserrors.NoFreeInodes, op)
	}

	now := int32(time.Now().Unix())
	in := Inode{
		LinkCount:           1,
		IndirectBlock:       common.NoIndirectBlock,
		DoubleIndirectBlock: common.NoIndirectBlock,
		AccessTime:          now,
		ModificationTime:    now,
		CreationTime:        now,
	}
	if err := s.WriteInode(n, in); err != nil {
		s.inodeBitmap.FreeBit(n)
		return -1, fserrors.Wrap(err, fserrors.InvalidInode, op)
	}
	if err := s.saveInodeBitmap(); err != nil {
		s.inodeBitmap.FreeBit(n)
		return -1, fserrors.Wrap(err, fserrors.IOError, op)
	}
	log.Debug("allocated inode", "inode", n)
	return n, nil
}

// FreeInode releases every data block owned by inodeNum, then frees the
// inode bit itself.
func (s *Store) FreeInode(inodeNum int) error {
	const op = "InodeStore.FreeInode"
	if err := s.checkInitialized(op); err != nil {
		return err
	}
	if !s.inodeBitmap.IsAllocated(inodeNum) {
		return fserrors.New(fserrors.InvalidArgument, op)
	}
	if err := s.FreeDataBlocks(inodeNum); err != nil {
		return fserrors.Wrap(err, fserrors.IOError, op)
	}
	if err := s.inodeBitmap.FreeBit(inodeNum); err != nil {
		return fserrors.Wrap(err, fserrors.InvalidArgument, op)
	}
	if err := s.saveInodeBitmap(); err != nil {
		return fserrors.Wrap(err, fserrors.IOError, op)
	}
	log.Debug("freed inode", "inode", inodeNum)
	return nil
}
