package inode

import (
	"encoding/binary"
	"time"

	"github.com/arota-fs/simfs/common"
	"github.com/arota-fs/simfs/fserrors"
)

const pointersPerBlock = common.PointersPerBlock

func (s *Store) readPointerBlock(blockNum int) ([]int32, error) {
	const op = "InodeStore.readPointerBlock"
	buf := make([]byte, s.dev.BlockSize())
	if err := s.dev.ReadBlock(blockNum, buf); err != nil {
		return nil, fserrors.Wrap(err, fserrors.IOError, op)
	}
	ptrs := make([]int32, pointersPerBlock)
	for i := range ptrs {
		ptrs[i] = int32(binary.LittleEndian.Uint32(buf[i*4:]))
	}
	return ptrs, nil
}

func (s *Store) writePointerBlock(blockNum int, ptrs []int32) error {
	const op = "InodeStore.writePointerBlock"
	buf := make([]byte, s.dev.BlockSize())
	for i, p := range ptrs {
		binary.LittleEndian.PutUint32(buf[i*4:], uint32(p))
	}
	if err := s.dev.WriteBlock(blockNum, buf); err != nil {
		return fserrors.Wrap(err, fserrors.IOError, op)
	}
	return nil
}

// GetDataBlocks walks an inode's direct, single-indirect, and
// double-indirect pointers and returns every allocated data block number
// in address order. Pointer lists are read as zero-terminated: a zero
// entry marks the end of in-use pointers in that block, which holds
// because blocks are only ever appended in this order.
func (s *Store) GetDataBlocks(inodeNum int) ([]int, error) {
	const op = "InodeStore.GetDataBlocks"
	if err := s.checkInitialized(op); err != nil {
		return nil, err
	}
	in, err := s.ReadInode(inodeNum)
	if err != nil {
		return nil, err
	}

	var blocks []int
	for _, p := range in.DirectBlocks {
		if p == common.NoDirectBlock {
			break
		}
		blocks = append(blocks, int(p))
	}

	if in.IndirectBlock != common.NoIndirectBlock {
		ptrs, err := s.readPointerBlock(int(in.IndirectBlock))
		if err != nil {
			return nil, err
		}
		for _, p := range ptrs {
			if p == 0 {
				break
			}
			blocks = append(blocks, int(p))
		}
	}

	if in.DoubleIndirectBlock != common.NoIndirectBlock {
		outer, err := s.readPointerBlock(int(in.DoubleIndirectBlock))
		if err != nil {
			return nil, err
		}
		for _, inner := range outer {
			if inner == 0 {
				break
			}
			innerPtrs, err := s.readPointerBlock(int(inner))
			if err != nil {
				return nil, err
			}
			for _, p := range innerPtrs {
				if p == 0 {
					break
				}
				blocks = append(blocks, int(p))
			}
		}
	}
	return blocks, nil
}

// AllocateDataBlocks reserves count new data blocks from the data bitmap
// and splices them into inodeNum's block-pointer tree, rebuilding the
// direct and single-indirect slots from the full (old+new) block list and
// reusing the double-indirect block and its children in place. On any
// failure every bit reserved during this call — including intermediate
// pointer blocks — is rolled back.
func (s *Store) AllocateDataBlocks(inodeNum int, count int) ([]int, error) {
	const op = "InodeStore.AllocateDataBlocks"
	if err := s.checkInitialized(op); err != nil {
		return nil, err
	}
	if count <= 0 {
		return nil, fserrors.New(fserrors.InvalidArgument, op)
	}

	reserved := make([]int, 0, count)
	rollback := func() {
		for _, b := range reserved {
			s.dataBitmap.FreeBit(b)
		}
		s.saveDataBitmap()
	}

	for i := 0; i < count; i++ {
		bit, err := s.dataBitmap.AllocateBit()
		if err != nil {
			rollback()
			return nil, fserrors.Wrap(err, fserrors.DiskFull, op)
		}
		reserved = append(reserved, bit)
	}

	in, err := s.ReadInode(inodeNum)
	if err != nil {
		rollback()
		return nil, err
	}

	extra, oldIndirect, err := s.updateInodeBlockPointers(inodeNum, &in, reserved)
	if err != nil {
		reserved = append(reserved, extra...)
		rollback()
		return nil, err
	}
	reserved = append(reserved, extra...)

	in.ModificationTime = int32(time.Now().Unix())
	if err := s.WriteInode(inodeNum, in); err != nil {
		rollback()
		return nil, err
	}
	// Only free the rebuild's now-obsolete single-indirect block once the
	// rebuilt inode is durably persisted: freeing it earlier, and then
	// failing to write the inode, would leave the on-disk inode pointing
	// at a freed block.
	if oldIndirect != common.NoIndirectBlock {
		s.dataBitmap.FreeBit(int(oldIndirect))
	}
	if err := s.saveDataBitmap(); err != nil {
		return nil, fserrors.Wrap(err, fserrors.IOError, op)
	}
	log.Debug("allocated data blocks", "inode", inodeNum, "count", count)
	return reserved[:count], nil
}

// updateInodeBlockPointers rebuilds in's direct and single-indirect slots
// from GetDataBlocks(old)+newBlocks, and extends the double-indirect tree
// in place. It returns any pointer blocks it allocated along the way, so
// the caller can roll them back on a later failure, plus the old
// single-indirect block (if any) that the rebuild made obsolete. The
// caller frees that old block only once the rebuilt inode is durably
// persisted, so a failed rebuild leaves the on-disk inode's existing
// IndirectBlock pointer valid rather than dangling.
func (s *Store) updateInodeBlockPointers(inodeNum int, in *Inode, newBlocks []int) ([]int, int32, error) {
	const op = "InodeStore.updateInodeBlockPointers"
	var extra []int
	oldIndirect := common.NoIndirectBlock

	existing, err := s.GetDataBlocks(inodeNum)
	if err != nil {
		return extra, oldIndirect, err
	}
	all := make([]int, 0, len(existing)+len(newBlocks))
	all = append(all, existing...)
	all = append(all, newBlocks...)

	for i := range in.DirectBlocks {
		in.DirectBlocks[i] = common.NoDirectBlock
	}
	if in.IndirectBlock != common.NoIndirectBlock {
		oldIndirect = in.IndirectBlock
		in.IndirectBlock = common.NoIndirectBlock
	}

	idx := 0
	for ; idx < len(all) && idx < common.DirectBlocksCount; idx++ {
		in.DirectBlocks[idx] = int32(all[idx])
	}
	remaining := all[idx:]

	if len(remaining) > 0 {
		n := len(remaining)
		if n > pointersPerBlock {
			n = pointersPerBlock
		}
		bit, err := s.dataBitmap.AllocateBit()
		if err != nil {
			return extra, oldIndirect, fserrors.Wrap(err, fserrors.DiskFull, op)
		}
		extra = append(extra, bit)
		in.IndirectBlock = int32(bit)

		ptrs := make([]int32, pointersPerBlock)
		for i := 0; i < n; i++ {
			ptrs[i] = int32(remaining[i])
		}
		if err := s.writePointerBlock(bit, ptrs); err != nil {
			return extra, oldIndirect, err
		}
		remaining = remaining[n:]
	}

	if len(remaining) == 0 {
		return extra, oldIndirect, nil
	}

	if in.DoubleIndirectBlock == common.NoIndirectBlock {
		bit, err := s.dataBitmap.AllocateBit()
		if err != nil {
			return extra, oldIndirect, fserrors.Wrap(err, fserrors.DiskFull, op)
		}
		extra = append(extra, bit)
		in.DoubleIndirectBlock = int32(bit)
		if err := s.writePointerBlock(bit, make([]int32, pointersPerBlock)); err != nil {
			return extra, oldIndirect, err
		}
	}

	outer, err := s.readPointerBlock(int(in.DoubleIndirectBlock))
	if err != nil {
		return extra, oldIndirect, err
	}

	for chunk := 0; len(remaining) > 0; chunk++ {
		if chunk >= pointersPerBlock {
			return extra, oldIndirect, fserrors.New(fserrors.DiskFull, op)
		}
		n := len(remaining)
		if n > pointersPerBlock {
			n = pointersPerBlock
		}

		inner := outer[chunk]
		if inner == 0 {
			bit, err := s.dataBitmap.AllocateBit()
			if err != nil {
				return extra, oldIndirect, fserrors.Wrap(err, fserrors.DiskFull, op)
			}
			extra = append(extra, bit)
			inner = int32(bit)
			outer[chunk] = inner
		}

		ptrs := make([]int32, pointersPerBlock)
		for i := 0; i < n; i++ {
			ptrs[i] = int32(remaining[i])
		}
		if err := s.writePointerBlock(int(inner), ptrs); err != nil {
			return extra, oldIndirect, err
		}
		remaining = remaining[n:]
	}

	if err := s.writePointerBlock(int(in.DoubleIndirectBlock), outer); err != nil {
		return extra, oldIndirect, err
	}
	return extra, oldIndirect, nil
}

// FreeDataBlocks releases every data block owned by inodeNum, freeing the
// indirection tree bottom-up: each inner indirect block's data entries,
// then the inner indirect block itself, then the outer double-indirect
// block. Earlier revisions of this scheme freed only the data entries and
// leaked the inner indirect blocks; this walk closes that gap.
func (s *Store) FreeDataBlocks(inodeNum int) error {
	const op = "InodeStore.FreeDataBlocks"
	if err := s.checkInitialized(op); err != nil {
		return err
	}
	in, err := s.ReadInode(inodeNum)
	if err != nil {
		return err
	}

	for i, p := range in.DirectBlocks {
		if p != common.NoDirectBlock {
			s.dataBitmap.FreeBit(int(p))
			in.DirectBlocks[i] = common.NoDirectBlock
		}
	}

	if in.IndirectBlock != common.NoIndirectBlock {
		ptrs, err := s.readPointerBlock(int(in.IndirectBlock))
		if err != nil {
			return err
		}
		for _, p := range ptrs {
			if p == 0 {
				break
			}
			s.dataBitmap.FreeBit(int(p))
		}
		s.dataBitmap.FreeBit(int(in.IndirectBlock))
		in.IndirectBlock = common.NoIndirectBlock
	}

	if in.DoubleIndirectBlock != common.NoIndirectBlock {
		outer, err := s.readPointerBlock(int(in.DoubleIndirectBlock))
		if err != nil {
			return err
		}
		for _, inner := range outer {
			if inner == 0 {
				break
			}
			innerPtrs, err := s.readPointerBlock(int(inner))
			if err != nil {
				return err
			}
			for _, p := range innerPtrs {
				if p == 0 {
					break
				}
				s.dataBitmap.FreeBit(int(p))
			}
			s.dataBitmap.FreeBit(int(inner))
		}
		s.dataBitmap.FreeBit(int(in.DoubleIndirectBlock))
		in.DoubleIndirectBlock = common.NoIndirectBlock
	}

	in.Size = 0
	if err := s.WriteInode(inodeNum, in); err != nil {
		return err
	}
	if err := s.saveDataBitmap(); err != nil {
		return fserrors.Wrap(err, fserrors.IOError, op)
	}
	return nil
}
